package pricedata

import (
	"context"
	"fmt"
	"sort"

	"github.com/bobmcallan/stockboard/internal/common"
	"github.com/bobmcallan/stockboard/internal/interfaces"
	"github.com/bobmcallan/stockboard/internal/models"
)

// Service is the price data orchestrator. It reads the bar store, fills
// missing sub-ranges from upstream, persists what it fetched, and returns a
// merged, date-sorted series. The store is best-effort: every store failure
// degrades to partial data or a direct upstream fetch rather than an error.
type Service struct {
	store    interfaces.BarStore // nil when the store is unreachable
	upstream interfaces.QuoteSource
	gaps     *GapAnalyzer
	logger   *common.Logger
}

// NewService creates a price data service. store may be nil, in which case
// every query goes straight to upstream.
func NewService(store interfaces.BarStore, upstream interfaces.QuoteSource, logger *common.Logger) *Service {
	s := &Service{
		store:    store,
		upstream: upstream,
		logger:   logger,
	}
	if store != nil {
		s.gaps = NewGapAnalyzer(store, logger)
	}
	return s
}

// GetPriceData serves a range query. The returned series is sorted ascending
// by date and deduplicated by date. Meta is populated only when
// includeMetadata is set. If the cached path fails unexpectedly, one direct
// upstream fetch is attempted before the original error propagates.
func (s *Service) GetPriceData(ctx context.Context, symbol, startDate, endDate string, timeframe models.Timeframe, includeMetadata bool) (*models.PriceSeries, error) {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	if !timeframe.Valid() {
		timeframe = models.TimeframeDaily
	}

	dateRange := models.DateRange{Start: startDate, End: endDate}
	if err := dateRange.Validate(); err != nil {
		return nil, err
	}

	// Store unreachable: degraded but correct, straight to upstream.
	if s.store == nil {
		return s.fetchDirect(ctx, symbol, dateRange, timeframe, includeMetadata)
	}

	series, err := s.getCached(ctx, symbol, dateRange, timeframe, includeMetadata)
	if err == nil {
		return series, nil
	}

	s.logger.Warn().Err(err).
		Str("symbol", symbol).
		Msg("Cached price data path failed, attempting direct upstream fetch")

	fallback, ferr := s.fetchDirect(ctx, symbol, dateRange, timeframe, includeMetadata)
	if ferr != nil {
		// Propagate the original error, not the fallback's.
		return nil, err
	}
	return fallback, nil
}

// getCached is the store-backed path: read, analyze gaps, fill, merge.
func (s *Service) getCached(ctx context.Context, symbol string, dateRange models.DateRange, timeframe models.Timeframe, includeMetadata bool) (*models.PriceSeries, error) {
	cached, err := s.store.FindBars(ctx, symbol, timeframe, dateRange)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("symbol", symbol).
			Msg("Bar store read failed, falling back to upstream for full range")
		return s.fetchDirect(ctx, symbol, dateRange, timeframe, includeMetadata)
	}

	gaps, err := s.gaps.FindGaps(ctx, symbol, timeframe, dateRange)
	if err != nil {
		// Unknown coverage. Return what we have rather than failing the
		// call; metadata still needs its own upstream lookup.
		s.logger.Warn().Err(err).
			Str("symbol", symbol).
			Msg("Gap analysis failed, returning cached bars only")
		return s.withMetadata(ctx, symbol, dateRange, timeframe, cached, includeMetadata), nil
	}

	if len(gaps) == 0 {
		return s.withMetadata(ctx, symbol, dateRange, timeframe, cached, includeMetadata), nil
	}

	fetched := s.fillGaps(ctx, symbol, timeframe, gaps)
	merged := mergeBars(cached, fetched)

	return s.withMetadata(ctx, symbol, dateRange, timeframe, merged, includeMetadata), nil
}

// fillGaps fetches each gap from upstream sequentially. Per-gap failures are
// isolated: log and continue, the merged result simply lacks that data.
func (s *Service) fillGaps(ctx context.Context, symbol string, timeframe models.Timeframe, gaps []models.Gap) []models.Bar {
	var fetched []models.Bar

	for _, gap := range gaps {
		// The upstream API rejects windows where start equals end, so a
		// single-day gap fetches [day-1, day+1] and filters back down.
		window := expandSingleDay(gap)

		bars, err := s.upstream.FetchHistory(ctx, symbol, window, timeframe)
		if err != nil {
			s.logger.Warn().Err(err).
				Str("symbol", symbol).
				Str("start", gap.Start).
				Str("end", gap.End).
				Msg("Gap fetch failed, continuing with remaining gaps")
			continue
		}

		// Persist the whole fetched window, not just the gap: bars outside
		// the gap opportunistically fill neighboring cache entries.
		if err := s.store.UpsertBars(ctx, symbol, timeframe, bars); err != nil {
			s.logger.Warn().Err(err).
				Str("symbol", symbol).
				Msg("Bar store write failed, returning fetched data uncached")
		}

		for _, bar := range bars {
			if gap.Contains(bar.Date) {
				fetched = append(fetched, bar)
			}
		}
	}

	return fetched
}

// withMetadata attaches upstream chart metadata when requested. The store
// holds no metadata, so even a fully cached range costs one upstream call
// here. Metadata failure degrades to a quotes-only result.
func (s *Service) withMetadata(ctx context.Context, symbol string, dateRange models.DateRange, timeframe models.Timeframe, bars []models.Bar, includeMetadata bool) *models.PriceSeries {
	series := &models.PriceSeries{Quotes: bars}
	if !includeMetadata {
		return series
	}

	upstream, err := s.upstream.FetchHistoryWithMeta(ctx, symbol, expandSingleDay(dateRange), timeframe)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("symbol", symbol).
			Msg("Metadata fetch failed, returning quotes only")
		return series
	}

	series.Meta = upstream.Meta
	// Cached bars stay canonical when present; the upstream quotes only
	// stand in when the cache produced nothing.
	if len(series.Quotes) == 0 {
		series.Quotes = filterRange(upstream.Quotes, dateRange)
	}
	return series
}

// fetchDirect bypasses the store entirely: one upstream call for the whole
// range, filtered back to the requested window.
func (s *Service) fetchDirect(ctx context.Context, symbol string, dateRange models.DateRange, timeframe models.Timeframe, includeMetadata bool) (*models.PriceSeries, error) {
	window := expandSingleDay(dateRange)

	if includeMetadata {
		series, err := s.upstream.FetchHistoryWithMeta(ctx, symbol, window, timeframe)
		if err != nil {
			return nil, fmt.Errorf("upstream history fetch for %s: %w", symbol, err)
		}
		series.Quotes = filterRange(series.Quotes, dateRange)
		sortBars(series.Quotes)
		return series, nil
	}

	bars, err := s.upstream.FetchHistory(ctx, symbol, window, timeframe)
	if err != nil {
		return nil, fmt.Errorf("upstream history fetch for %s: %w", symbol, err)
	}
	bars = filterRange(bars, dateRange)
	sortBars(bars)
	return &models.PriceSeries{Quotes: bars}, nil
}

// expandSingleDay widens a degenerate [d, d] range to [d-1, d+1] so the
// upstream accepts it. Callers filter the result back to the original date.
func expandSingleDay(r models.DateRange) models.DateRange {
	if !r.SingleDay() {
		return r
	}
	d, err := models.ParseDate(r.Start)
	if err != nil {
		return r
	}
	return models.DateRange{
		Start: models.FormatDate(d.AddDate(0, 0, -1)),
		End:   models.FormatDate(d.AddDate(0, 0, 1)),
	}
}

// filterRange keeps only bars within the closed range. Guards against
// upstream returning a slightly wider window than asked.
func filterRange(bars []models.Bar, r models.DateRange) []models.Bar {
	filtered := make([]models.Bar, 0, len(bars))
	for _, bar := range bars {
		if r.Contains(bar.Date) {
			filtered = append(filtered, bar)
		}
	}
	return filtered
}

// mergeBars combines cached and freshly fetched bars, deduplicating by date
// with the fresh bar winning, sorted ascending.
func mergeBars(cached, fetched []models.Bar) []models.Bar {
	byDate := make(map[string]models.Bar, len(cached)+len(fetched))
	for _, bar := range cached {
		byDate[bar.Date] = bar
	}
	for _, bar := range fetched {
		byDate[bar.Date] = bar
	}

	merged := make([]models.Bar, 0, len(byDate))
	for _, bar := range byDate {
		merged = append(merged, bar)
	}
	sortBars(merged)
	return merged
}

func sortBars(bars []models.Bar) {
	sort.Slice(bars, func(i, j int) bool {
		return bars[i].Date < bars[j].Date
	})
}

// Ensure Service implements PriceDataService
var _ interfaces.PriceDataService = (*Service)(nil)
