// Package interfaces defines service contracts for stockboard
package interfaces

import (
	"context"

	"github.com/bobmcallan/stockboard/internal/models"
)

// PriceDataService serves range queries from the local bar cache, fetching
// only missing sub-ranges from upstream.
type PriceDataService interface {
	// GetPriceData returns a complete, gap-free, date-sorted series for the
	// range. When the store is unavailable it degrades to a direct upstream
	// fetch. Meta is nil unless includeMetadata is set.
	GetPriceData(ctx context.Context, symbol, startDate, endDate string, timeframe models.Timeframe, includeMetadata bool) (*models.PriceSeries, error)
}

// QuoteService serves batched live quotes and fundamentals through the
// TTL/single-flight cache.
type QuoteService interface {
	// FetchQuotes resolves quotes for the given symbols. Symbols absent from
	// the result map failed upstream; a partial map is not an error.
	FetchQuotes(ctx context.Context, symbols []string, batchSize int) (map[string]*models.Quote, error)

	// GetFundamentals returns the fundamentals bundle for one symbol.
	// Unlike a batch quote slot, failure propagates as an error.
	GetFundamentals(ctx context.Context, symbol string) (*models.Fundamentals, error)
}

// EventService serves earnings/dividend calendar lookups.
type EventService interface {
	GetCalendarEvents(ctx context.Context, symbol string) (*models.CalendarEvents, error)
	GetEventsFromChart(ctx context.Context, symbol, startDate, endDate string) ([]models.ChartEvent, error)
}
