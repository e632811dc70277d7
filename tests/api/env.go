package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bobmcallan/stockboard/internal/app"
	"github.com/bobmcallan/stockboard/internal/clients/yahoo"
	cmn "github.com/bobmcallan/stockboard/internal/common"
	"github.com/bobmcallan/stockboard/internal/server"
	"github.com/bobmcallan/stockboard/internal/services/events"
	"github.com/bobmcallan/stockboard/internal/services/pricedata"
	"github.com/bobmcallan/stockboard/internal/services/quote"
)

// Env is an in-process API test environment: the full HTTP server wired to a
// stub upstream. The bar store is disabled so tests exercise the direct
// upstream path without a database.
type Env struct {
	t        *testing.T
	Upstream *http.ServeMux

	upstreamSrv *httptest.Server
	apiSrv      *httptest.Server
	app         *app.App
}

// NewEnv builds the environment. Tests register upstream fixtures on
// env.Upstream before issuing API requests.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	upstreamMux := http.NewServeMux()
	upstreamSrv := httptest.NewServer(upstreamMux)

	config := cmn.NewDefaultConfig()
	logger := cmn.NewSilentLogger()

	client := yahoo.NewClient(
		yahoo.WithBaseURL(upstreamSrv.URL),
		yahoo.WithLogger(logger),
		yahoo.WithTimeout(5*time.Second),
	)

	a := &app.App{
		Config:           config,
		Logger:           logger,
		YahooClient:      client,
		PriceDataService: pricedata.NewService(nil, client, logger),
		QuoteService:     quote.NewCacheStore(client, logger),
		EventService:     events.NewService(client, logger),
		StartupTime:      time.Now(),
	}

	apiSrv := httptest.NewServer(server.NewServer(a).Handler())

	return &Env{
		t:           t,
		Upstream:    upstreamMux,
		upstreamSrv: upstreamSrv,
		apiSrv:      apiSrv,
		app:         a,
	}
}

// HTTPGet issues a GET request against the API server.
func (e *Env) HTTPGet(path string) (*http.Response, error) {
	return http.Get(e.apiSrv.URL + path)
}

// Cleanup shuts down both servers.
func (e *Env) Cleanup() {
	e.apiSrv.Close()
	e.upstreamSrv.Close()
}
