// Package interfaces defines service contracts for stockboard
package interfaces

import (
	"context"

	"github.com/bobmcallan/stockboard/internal/models"
)

// BarStore is the persistent range store of OHLCV bars, keyed by
// (symbol, timeframe, date). Any backend offering range queries and
// idempotent upserts can implement it.
type BarStore interface {
	// FindBars returns all bars for a symbol/timeframe within the range,
	// sorted ascending by date.
	FindBars(ctx context.Context, symbol string, timeframe models.Timeframe, dateRange models.DateRange) ([]models.Bar, error)

	// UpsertBars writes bars idempotently per (symbol, timeframe, date) key.
	// A bad record must not abort the rest of the batch.
	UpsertBars(ctx context.Context, symbol string, timeframe models.Timeframe, bars []models.Bar) error

	// FindDates returns the set of dates that already hold a bar for the
	// symbol/timeframe within the range. Existence-only projection used by
	// gap analysis.
	FindDates(ctx context.Context, symbol string, timeframe models.Timeframe, dateRange models.DateRange) (map[string]bool, error)
}

// StorageManager coordinates storage backends and their lifecycle.
type StorageManager interface {
	BarStore() BarStore
	Close() error
}
