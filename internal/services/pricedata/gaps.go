// Package pricedata serves historical price queries from a local bar cache,
// fetching only the missing date sub-ranges from upstream.
package pricedata

import (
	"context"
	"fmt"

	"github.com/bobmcallan/stockboard/internal/common"
	"github.com/bobmcallan/stockboard/internal/interfaces"
	"github.com/bobmcallan/stockboard/internal/models"
)

// GapAnalyzer computes which date sub-ranges of a query are absent from the
// bar store.
type GapAnalyzer struct {
	store  interfaces.BarStore
	logger *common.Logger
}

// NewGapAnalyzer creates a gap analyzer over the given store.
func NewGapAnalyzer(store interfaces.BarStore, logger *common.Logger) *GapAnalyzer {
	return &GapAnalyzer{
		store:  store,
		logger: logger,
	}
}

// FindGaps returns the minimal set of missing sub-ranges for the query,
// pairwise disjoint and sorted ascending. An empty result means the store
// fully covers the range. A store read failure is returned as an error:
// coverage is unknown and the caller must fall back to a full upstream
// fetch, never assume "no gaps".
func (a *GapAnalyzer) FindGaps(ctx context.Context, symbol string, timeframe models.Timeframe, dateRange models.DateRange) ([]models.Gap, error) {
	symbol = models.NormalizeSymbol(symbol)

	existing, err := a.store.FindDates(ctx, symbol, timeframe, dateRange)
	if err != nil {
		return nil, fmt.Errorf("gap analysis for %s: %w", symbol, err)
	}

	missing := missingDates(timeframe, dateRange, existing)
	gaps := coalesceGaps(timeframe, missing)

	a.logger.Debug().
		Str("symbol", symbol).
		Str("timeframe", string(timeframe)).
		Str("start", dateRange.Start).
		Str("end", dateRange.End).
		Int("cached_dates", len(existing)).
		Int("gaps", len(gaps)).
		Msg("Gap analysis complete")

	return gaps, nil
}

// missingDates enumerates the expected date sequence for the range at the
// timeframe's spacing and returns, in order, the dates absent from existing.
func missingDates(timeframe models.Timeframe, dateRange models.DateRange, existing map[string]bool) []string {
	start, err := models.ParseDate(dateRange.Start)
	if err != nil {
		return nil
	}
	end, err := models.ParseDate(dateRange.End)
	if err != nil {
		return nil
	}

	var missing []string
	for d := start; !d.After(end); d = timeframe.Next(d) {
		date := models.FormatDate(d)
		if !existing[date] {
			missing = append(missing, date)
		}
	}
	return missing
}

// coalesceGaps merges consecutive missing dates into maximal ranges. Two
// missing dates join the same gap when their day-difference is within the
// timeframe's threshold; a cached date in between forces a new gap.
func coalesceGaps(timeframe models.Timeframe, missing []string) []models.Gap {
	if len(missing) == 0 {
		return nil
	}

	threshold := timeframe.GapThresholdDays()

	gaps := []models.Gap{{Start: missing[0], End: missing[0]}}
	prev, _ := models.ParseDate(missing[0])

	for _, date := range missing[1:] {
		cur, err := models.ParseDate(date)
		if err != nil {
			continue
		}
		if models.DaysBetween(prev, cur) <= threshold {
			gaps[len(gaps)-1].End = date
		} else {
			gaps = append(gaps, models.Gap{Start: date, End: date})
		}
		prev = cur
	}

	return gaps
}
