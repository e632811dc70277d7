package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bobmcallan/stockboard/internal/app"
	"github.com/bobmcallan/stockboard/internal/common"
	"github.com/bobmcallan/stockboard/internal/models"
)

type fakePriceDataService struct {
	series *models.PriceSeries
	err    error

	lastSymbol    string
	lastStart     string
	lastEnd       string
	lastTimeframe models.Timeframe
}

func (f *fakePriceDataService) GetPriceData(_ context.Context, symbol, startDate, endDate string, timeframe models.Timeframe, _ bool) (*models.PriceSeries, error) {
	f.lastSymbol = symbol
	f.lastStart = startDate
	f.lastEnd = endDate
	f.lastTimeframe = timeframe
	if f.err != nil {
		return nil, f.err
	}
	if f.series != nil {
		return f.series, nil
	}
	return &models.PriceSeries{}, nil
}

type fakeQuoteService struct {
	quotes map[string]*models.Quote
	fund   *models.Fundamentals
	err    error
}

func (f *fakeQuoteService) FetchQuotes(_ context.Context, symbols []string, _ int) (map[string]*models.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]*models.Quote)
	for _, raw := range symbols {
		symbol := models.NormalizeSymbol(raw)
		if q, ok := f.quotes[symbol]; ok {
			out[symbol] = q
		}
	}
	return out, nil
}

func (f *fakeQuoteService) GetFundamentals(_ context.Context, symbol string) (*models.Fundamentals, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.fund, nil
}

type fakeEventService struct {
	calendar *models.CalendarEvents
	events   []models.ChartEvent
	err      error
}

func (f *fakeEventService) GetCalendarEvents(_ context.Context, symbol string) (*models.CalendarEvents, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.calendar, nil
}

func (f *fakeEventService) GetEventsFromChart(_ context.Context, _, _, _ string) ([]models.ChartEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func newTestServer(prices *fakePriceDataService, quotes *fakeQuoteService, events *fakeEventService) *Server {
	a := &app.App{
		Config:           common.NewDefaultConfig(),
		Logger:           common.NewSilentLogger(),
		PriceDataService: prices,
		QuoteService:     quotes,
		EventService:     events,
	}
	return NewServer(a)
}

func doRequest(t *testing.T, srv *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	srv := newTestServer(&fakePriceDataService{}, &fakeQuoteService{}, &fakeEventService{})

	rec := doRequest(t, srv, http.MethodGet, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestHandleVersion(t *testing.T) {
	srv := newTestServer(&fakePriceDataService{}, &fakeQuoteService{}, &fakeEventService{})

	rec := doRequest(t, srv, http.MethodGet, "/api/version")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["version"] == "" {
		t.Error("expected version in response")
	}
}

func TestHandleHistory(t *testing.T) {
	prices := &fakePriceDataService{
		series: &models.PriceSeries{
			Quotes: []models.Bar{
				{Symbol: "AAPL", Timeframe: models.TimeframeDaily, Date: "2024-01-02", Close: 185.64},
				{Symbol: "AAPL", Timeframe: models.TimeframeDaily, Date: "2024-01-03", Close: 184.25},
			},
		},
	}
	srv := newTestServer(prices, &fakeQuoteService{}, &fakeEventService{})

	rec := doRequest(t, srv, http.MethodGet, "/api/stocks/aapl/history?start=2024-01-01&end=2024-01-05")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var body struct {
		Symbol string       `json:"symbol"`
		Quotes []models.Bar `json:"quotes"`
		Count  int          `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Symbol != "AAPL" {
		t.Errorf("expected normalized symbol AAPL, got %q", body.Symbol)
	}
	if body.Count != 2 || len(body.Quotes) != 2 {
		t.Errorf("expected 2 quotes, got count=%d len=%d", body.Count, len(body.Quotes))
	}
	if prices.lastStart != "2024-01-01" || prices.lastEnd != "2024-01-05" {
		t.Errorf("service called with range %s..%s", prices.lastStart, prices.lastEnd)
	}
}

func TestHandleHistory_DefaultRange(t *testing.T) {
	prices := &fakePriceDataService{}
	srv := newTestServer(prices, &fakeQuoteService{}, &fakeEventService{})

	rec := doRequest(t, srv, http.MethodGet, "/api/stocks/AAPL/history")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with defaulted range, got %d: %s", rec.Code, rec.Body.String())
	}
	if prices.lastStart == "" || prices.lastEnd == "" {
		t.Error("expected defaulted start/end to reach the service")
	}
	if prices.lastStart >= prices.lastEnd {
		t.Errorf("default range inverted: %s..%s", prices.lastStart, prices.lastEnd)
	}
}

func TestHandleHistory_ValidationBeforeService(t *testing.T) {
	prices := &fakePriceDataService{}
	srv := newTestServer(prices, &fakeQuoteService{}, &fakeEventService{})

	cases := []string{
		"/api/stocks/AAPL/history?start=2024-02-01&end=2024-01-01",
		"/api/stocks/AAPL/history?start=bogus&end=2024-01-01",
		"/api/stocks/AAPL/history?start=2024-01-01&end=2024-01-05&timeframe=2d",
	}
	for _, target := range cases {
		rec := doRequest(t, srv, http.MethodGet, target)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", target, rec.Code)
		}
	}
	if prices.lastSymbol != "" {
		t.Error("invalid requests must not reach the price data service")
	}
}

func TestHandleHistory_ServiceError(t *testing.T) {
	prices := &fakePriceDataService{err: errors.New("upstream down")}
	srv := newTestServer(prices, &fakeQuoteService{}, &fakeEventService{})

	rec := doRequest(t, srv, http.MethodGet, "/api/stocks/AAPL/history?start=2024-01-01&end=2024-01-05")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
}

func TestHandleHistory_MethodNotAllowed(t *testing.T) {
	srv := newTestServer(&fakePriceDataService{}, &fakeQuoteService{}, &fakeEventService{})

	rec := doRequest(t, srv, http.MethodPost, "/api/stocks/AAPL/history")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", rec.Code)
	}
}

func TestHandleChart(t *testing.T) {
	prices := &fakePriceDataService{
		series: &models.PriceSeries{
			Quotes: []models.Bar{
				{Date: "2024-01-02", Close: 185.64},
				{Date: "2024-01-03", Close: 184.25},
				{Date: "2024-01-04", Close: 181.91},
			},
		},
	}
	srv := newTestServer(prices, &fakeQuoteService{}, &fakeEventService{})

	rec := doRequest(t, srv, http.MethodGet, "/api/stocks/AAPL/chart.png?start=2024-01-01&end=2024-01-05")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %q", ct)
	}
	// PNG magic bytes
	body := rec.Body.Bytes()
	if len(body) < 8 || body[0] != 0x89 || body[1] != 'P' || body[2] != 'N' || body[3] != 'G' {
		t.Error("response is not a PNG")
	}
}

func TestHandleChart_TooFewBars(t *testing.T) {
	prices := &fakePriceDataService{
		series: &models.PriceSeries{Quotes: []models.Bar{{Date: "2024-01-02", Close: 185.64}}},
	}
	srv := newTestServer(prices, &fakeQuoteService{}, &fakeEventService{})

	rec := doRequest(t, srv, http.MethodGet, "/api/stocks/AAPL/chart.png?start=2024-01-01&end=2024-01-05")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422 for unrenderable series, got %d", rec.Code)
	}
}

func TestHandleQuotes(t *testing.T) {
	quotes := &fakeQuoteService{
		quotes: map[string]*models.Quote{
			"AAPL": {Symbol: "AAPL", Price: 185.64},
			"MSFT": {Symbol: "MSFT", Price: 376.04},
		},
	}
	srv := newTestServer(&fakePriceDataService{}, quotes, &fakeEventService{})

	rec := doRequest(t, srv, http.MethodGet, "/api/quotes?symbols=aapl,msft,MISSING")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body struct {
		Quotes map[string]*models.Quote `json:"quotes"`
		Count  int                      `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Count != 2 {
		t.Errorf("expected 2 resolved quotes, got %d", body.Count)
	}
	if _, ok := body.Quotes["MISSING"]; ok {
		t.Error("unresolved symbol must be omitted")
	}
}

func TestHandleQuotes_MissingSymbols(t *testing.T) {
	srv := newTestServer(&fakePriceDataService{}, &fakeQuoteService{}, &fakeEventService{})

	rec := doRequest(t, srv, http.MethodGet, "/api/quotes")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without symbols param, got %d", rec.Code)
	}
}

func TestHandleQuote_Single(t *testing.T) {
	quotes := &fakeQuoteService{
		quotes: map[string]*models.Quote{"AAPL": {Symbol: "AAPL", Price: 185.64}},
	}
	srv := newTestServer(&fakePriceDataService{}, quotes, &fakeEventService{})

	rec := doRequest(t, srv, http.MethodGet, "/api/stocks/aapl/quote")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var quote models.Quote
	json.Unmarshal(rec.Body.Bytes(), &quote)
	if quote.Symbol != "AAPL" || quote.Price != 185.64 {
		t.Errorf("unexpected quote %+v", quote)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/stocks/MISSING/quote")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502 for unresolved symbol, got %d", rec.Code)
	}
}

func TestHandleFundamentals(t *testing.T) {
	quotes := &fakeQuoteService{
		fund: &models.Fundamentals{Symbol: "AAPL", PE: 28.5, MarketCap: 2.9e12},
	}
	srv := newTestServer(&fakePriceDataService{}, quotes, &fakeEventService{})

	rec := doRequest(t, srv, http.MethodGet, "/api/stocks/AAPL/fundamentals")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var fund models.Fundamentals
	json.Unmarshal(rec.Body.Bytes(), &fund)
	if fund.PE != 28.5 {
		t.Errorf("unexpected fundamentals %+v", fund)
	}
}

func TestHandleEvents_Calendar(t *testing.T) {
	events := &fakeEventService{
		calendar: &models.CalendarEvents{
			Symbol:        "AAPL",
			EarningsDates: []string{"2024-05-02"},
			DividendDate:  "2024-05-15",
		},
	}
	srv := newTestServer(&fakePriceDataService{}, &fakeQuoteService{}, events)

	rec := doRequest(t, srv, http.MethodGet, "/api/stocks/AAPL/events")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var calendar models.CalendarEvents
	json.Unmarshal(rec.Body.Bytes(), &calendar)
	if calendar.DividendDate != "2024-05-15" {
		t.Errorf("unexpected calendar %+v", calendar)
	}
}

func TestHandleEvents_ChartRange(t *testing.T) {
	events := &fakeEventService{
		events: []models.ChartEvent{
			{Type: "dividend", Date: "2024-02-09", Amount: 0.24},
			{Type: "dividend", Date: "2024-05-10", Amount: 0.25},
		},
	}
	srv := newTestServer(&fakePriceDataService{}, &fakeQuoteService{}, events)

	rec := doRequest(t, srv, http.MethodGet, "/api/stocks/AAPL/events?start=2024-01-01&end=2024-06-30")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Events []models.ChartEvent `json:"events"`
		Count  int                 `json:"count"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Count != 2 {
		t.Errorf("expected 2 events, got %d", body.Count)
	}

	rec = doRequest(t, srv, http.MethodGet, "/api/stocks/AAPL/events?start=2024-06-30&end=2024-01-01")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for reversed range, got %d", rec.Code)
	}
}

func TestRouteStocks_Unknown(t *testing.T) {
	srv := newTestServer(&fakePriceDataService{}, &fakeQuoteService{}, &fakeEventService{})

	rec := doRequest(t, srv, http.MethodGet, "/api/stocks/AAPL/unknown")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}
