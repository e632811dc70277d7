// Package interfaces defines service contracts for stockboard
package interfaces

import (
	"context"

	"github.com/bobmcallan/stockboard/internal/models"
)

// QuoteSource provides access to the upstream market-data API. It is the
// expensive, rate-limited collaborator the cache layer sits in front of.
type QuoteSource interface {
	// FetchHistory retrieves OHLCV bars for a date range. The upstream
	// provider rejects ranges where start equals end; callers expand
	// single-day windows before fetching.
	FetchHistory(ctx context.Context, symbol string, dateRange models.DateRange, timeframe models.Timeframe) ([]models.Bar, error)

	// FetchHistoryWithMeta retrieves bars plus chart metadata.
	FetchHistoryWithMeta(ctx context.Context, symbol string, dateRange models.DateRange, timeframe models.Timeframe) (*models.PriceSeries, error)

	// FetchQuote retrieves a live quote for a single symbol.
	FetchQuote(ctx context.Context, symbol string) (*models.Quote, error)

	// FetchFundamentals retrieves the fundamentals bundle for a symbol.
	FetchFundamentals(ctx context.Context, symbol string) (*models.Fundamentals, error)

	// FetchCalendarEvents retrieves upcoming earnings and dividend dates.
	FetchCalendarEvents(ctx context.Context, symbol string) (*models.CalendarEvents, error)

	// FetchChartEvents retrieves dividend/split events embedded in chart
	// data for a date range.
	FetchChartEvents(ctx context.Context, symbol string, dateRange models.DateRange) ([]models.ChartEvent, error)
}
