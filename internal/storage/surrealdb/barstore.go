package surrealdb

import (
	"context"
	"fmt"

	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

	"github.com/bobmcallan/stockboard/internal/common"
	"github.com/bobmcallan/stockboard/internal/interfaces"
	"github.com/bobmcallan/stockboard/internal/models"
)

// BarStore persists OHLCV bars in the `bar` table, one record per
// (symbol, timeframe, date) key.
type BarStore struct {
	db     *surrealdb.DB
	logger *common.Logger
}

func NewBarStore(db *surrealdb.DB, logger *common.Logger) *BarStore {
	return &BarStore{
		db:     db,
		logger: logger,
	}
}

// recordID builds the deterministic record ID for a bar key, making
// repeated upserts of the same key converge on one record.
func recordID(symbol string, timeframe models.Timeframe, date string) surrealmodels.RecordID {
	return surrealmodels.NewRecordID("bar", fmt.Sprintf("%s:%s:%s", symbol, timeframe, date))
}

func (s *BarStore) FindBars(ctx context.Context, symbol string, timeframe models.Timeframe, dateRange models.DateRange) ([]models.Bar, error) {
	sql := "SELECT * FROM bar WHERE symbol = $symbol AND timeframe = $timeframe AND date >= $start AND date <= $end ORDER BY date ASC"
	vars := map[string]any{
		"symbol":    models.NormalizeSymbol(symbol),
		"timeframe": timeframe,
		"start":     dateRange.Start,
		"end":       dateRange.End,
	}

	results, err := surrealdb.Query[[]models.Bar](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to find bars: %w", err)
	}

	if results != nil && len(*results) > 0 {
		return (*results)[0].Result, nil
	}
	return nil, nil
}

// UpsertBars writes each bar under its deterministic record ID. One bad
// record does not abort the batch; the write fails only when every record
// fails.
func (s *BarStore) UpsertBars(ctx context.Context, symbol string, timeframe models.Timeframe, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	symbol = models.NormalizeSymbol(symbol)

	sql := "UPSERT $rid CONTENT $bar"
	failed := 0
	var lastErr error

	for i := range bars {
		bar := bars[i]
		bar.Symbol = symbol
		bar.Timeframe = timeframe

		vars := map[string]any{
			"rid": recordID(symbol, timeframe, bar.Date),
			"bar": bar,
		}

		var err error
		for attempt := 1; attempt <= 3; attempt++ {
			_, err = surrealdb.Query[[]models.Bar](ctx, s.db, sql, vars)
			if err == nil {
				break
			}
		}
		if err != nil {
			failed++
			lastErr = err
			s.logger.Warn().Err(err).
				Str("symbol", symbol).
				Str("date", bar.Date).
				Msg("Failed to upsert bar")
		}
	}

	if failed == len(bars) {
		return fmt.Errorf("failed to upsert all %d bars: %w", len(bars), lastErr)
	}
	if failed > 0 {
		s.logger.Warn().
			Str("symbol", symbol).
			Int("failed", failed).
			Int("total", len(bars)).
			Msg("Partial bar upsert")
	}
	return nil
}

func (s *BarStore) FindDates(ctx context.Context, symbol string, timeframe models.Timeframe, dateRange models.DateRange) (map[string]bool, error) {
	sql := "SELECT date FROM bar WHERE symbol = $symbol AND timeframe = $timeframe AND date >= $start AND date <= $end"
	vars := map[string]any{
		"symbol":    models.NormalizeSymbol(symbol),
		"timeframe": timeframe,
		"start":     dateRange.Start,
		"end":       dateRange.End,
	}

	type dateResult struct {
		Date string `json:"date"`
	}

	results, err := surrealdb.Query[[]dateResult](ctx, s.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("failed to find dates: %w", err)
	}

	dates := make(map[string]bool)
	if results != nil && len(*results) > 0 {
		for _, res := range (*results)[0].Result {
			dates[res.Date] = true
		}
	}
	return dates, nil
}

// Ensure BarStore implements the interface
var _ interfaces.BarStore = (*BarStore)(nil)
