package server

import (
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/bobmcallan/stockboard/internal/common"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/shutdown", s.handleShutdown)
	mux.HandleFunc("/debug/memstats", s.handleMemstats)

	// Quotes
	mux.HandleFunc("/api/quotes", s.handleQuotes)

	// Per-symbol stock data
	mux.HandleFunc("/api/stocks/", s.routeStocks)
}

// routeStocks dispatches /api/stocks/{symbol}/* to the appropriate handler.
func (s *Server) routeStocks(w http.ResponseWriter, r *http.Request) {
	symbol := PathParam(r, "/api/stocks/", "")
	if symbol == "" {
		WriteError(w, http.StatusBadRequest, "symbol is required in path")
		return
	}

	subpath := strings.TrimPrefix(r.URL.Path, "/api/stocks/"+symbol)
	subpath = strings.TrimPrefix(subpath, "/")

	switch subpath {
	case "history":
		s.handleHistory(w, r, symbol)
	case "chart.png":
		s.handleChart(w, r, symbol)
	case "quote":
		s.handleQuote(w, r, symbol)
	case "fundamentals":
		s.handleFundamentals(w, r, symbol)
	case "events":
		s.handleEvents(w, r, symbol)
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

// --- System handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}

// handleShutdown handles POST /api/shutdown (dev mode only).
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	if s.app.Config.IsProduction() {
		WriteError(w, http.StatusForbidden, "Shutdown endpoint disabled in production")
		return
	}

	s.logger.Info().Msg("Shutdown requested via HTTP endpoint")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Shutting down gracefully...\n"))

	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	if s.shutdownChan != nil {
		go func() {
			time.Sleep(100 * time.Millisecond)
			s.shutdownChan <- struct{}{}
		}()
	}
}

func (s *Server) handleMemstats(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"heap_alloc_bytes": m.HeapAlloc,
		"heap_inuse_bytes": m.HeapInuse,
		"sys_bytes":        m.Sys,
		"num_gc":           m.NumGC,
		"heap_alloc_mb":    float64(m.HeapAlloc) / 1024 / 1024,
		"sys_mb":           float64(m.Sys) / 1024 / 1024,
	})
}
