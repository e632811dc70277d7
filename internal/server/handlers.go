package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bobmcallan/stockboard/internal/models"
	"github.com/bobmcallan/stockboard/internal/services/pricedata"
)

// defaultHistoryDays is the lookback window when a history request omits its
// date range.
const defaultHistoryDays = 90

// historyRange resolves the start/end query parameters, defaulting to the
// trailing window ending today.
func historyRange(r *http.Request) (string, string) {
	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")
	if end == "" {
		end = models.FormatDate(time.Now().UTC())
	}
	if start == "" {
		d, err := models.ParseDate(end)
		if err == nil {
			start = models.FormatDate(d.AddDate(0, 0, -defaultHistoryDays))
		}
	}
	return start, end
}

// handleHistory handles GET /api/stocks/{symbol}/history.
// Query params: start, end (YYYY-MM-DD), timeframe (1d|1wk|1mo|...), metadata (bool).
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, symbol string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	start, end := historyRange(r)
	dateRange := models.DateRange{Start: start, End: end}
	if err := dateRange.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	timeframe := models.TimeframeDaily
	if tf := r.URL.Query().Get("timeframe"); tf != "" {
		timeframe = models.Timeframe(tf)
		if !timeframe.Valid() {
			WriteError(w, http.StatusBadRequest, fmt.Sprintf("unsupported timeframe %q", tf))
			return
		}
	}

	includeMetadata := r.URL.Query().Get("metadata") == "true"

	series, err := s.app.PriceDataService.GetPriceData(r.Context(), symbol, start, end, timeframe, includeMetadata)
	if err != nil {
		WriteError(w, http.StatusBadGateway, fmt.Sprintf("Price data error: %v", err))
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":    models.NormalizeSymbol(symbol),
		"timeframe": timeframe,
		"start":     start,
		"end":       end,
		"meta":      series.Meta,
		"quotes":    series.Quotes,
		"count":     len(series.Quotes),
	})
}

// handleChart handles GET /api/stocks/{symbol}/chart.png.
// Renders the daily close series for the requested range as a PNG.
func (s *Server) handleChart(w http.ResponseWriter, r *http.Request, symbol string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	start, end := historyRange(r)
	dateRange := models.DateRange{Start: start, End: end}
	if err := dateRange.Validate(); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	timeframe := models.TimeframeDaily
	if tf := r.URL.Query().Get("timeframe"); tf != "" {
		timeframe = models.Timeframe(tf)
		if !timeframe.Valid() {
			WriteError(w, http.StatusBadRequest, fmt.Sprintf("unsupported timeframe %q", tf))
			return
		}
	}

	series, err := s.app.PriceDataService.GetPriceData(r.Context(), symbol, start, end, timeframe, false)
	if err != nil {
		WriteError(w, http.StatusBadGateway, fmt.Sprintf("Price data error: %v", err))
		return
	}

	png, err := pricedata.RenderPriceChart(models.NormalizeSymbol(symbol), series.Quotes)
	if err != nil {
		WriteError(w, http.StatusUnprocessableEntity, fmt.Sprintf("Chart error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// handleQuotes handles GET /api/quotes?symbols=AAPL,MSFT.
func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	raw := r.URL.Query().Get("symbols")
	if strings.TrimSpace(raw) == "" {
		WriteError(w, http.StatusBadRequest, "symbols query parameter is required")
		return
	}
	symbols := strings.Split(raw, ",")

	quotes, err := s.app.QuoteService.FetchQuotes(r.Context(), symbols, s.app.Config.Cache.QuoteBatchSize)
	if err != nil {
		WriteError(w, http.StatusBadGateway, fmt.Sprintf("Quote error: %v", err))
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"quotes": quotes,
		"count":  len(quotes),
	})
}

// handleQuote handles GET /api/stocks/{symbol}/quote.
func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request, symbol string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		WriteError(w, http.StatusBadRequest, "symbol is required")
		return
	}

	quotes, err := s.app.QuoteService.FetchQuotes(r.Context(), []string{symbol}, 1)
	if err != nil {
		WriteError(w, http.StatusBadGateway, fmt.Sprintf("Quote error: %v", err))
		return
	}
	quote, ok := quotes[symbol]
	if !ok {
		WriteError(w, http.StatusBadGateway, fmt.Sprintf("Quote unavailable for %s", symbol))
		return
	}

	WriteJSON(w, http.StatusOK, quote)
}

// handleFundamentals handles GET /api/stocks/{symbol}/fundamentals.
func (s *Server) handleFundamentals(w http.ResponseWriter, r *http.Request, symbol string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	fund, err := s.app.QuoteService.GetFundamentals(r.Context(), symbol)
	if err != nil {
		WriteError(w, http.StatusBadGateway, fmt.Sprintf("Fundamentals error: %v", err))
		return
	}

	WriteJSON(w, http.StatusOK, fund)
}

// handleEvents handles GET /api/stocks/{symbol}/events.
// Without a date range it returns the upcoming calendar (earnings, dividends).
// With start and end it returns historical dividend/split events from chart data.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, symbol string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	start := r.URL.Query().Get("start")
	end := r.URL.Query().Get("end")

	if start != "" || end != "" {
		dateRange := models.DateRange{Start: start, End: end}
		if err := dateRange.Validate(); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		events, err := s.app.EventService.GetEventsFromChart(r.Context(), symbol, start, end)
		if err != nil {
			WriteError(w, http.StatusBadGateway, fmt.Sprintf("Events error: %v", err))
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"symbol": models.NormalizeSymbol(symbol),
			"events": events,
			"count":  len(events),
		})
		return
	}

	calendar, err := s.app.EventService.GetCalendarEvents(r.Context(), symbol)
	if err != nil {
		WriteError(w, http.StatusBadGateway, fmt.Sprintf("Events error: %v", err))
		return
	}

	WriteJSON(w, http.StatusOK, calendar)
}
