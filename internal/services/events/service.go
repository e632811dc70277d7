// Package events serves earnings and dividend calendar lookups, caching
// upstream calendar responses for the events TTL.
package events

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bobmcallan/stockboard/internal/common"
	"github.com/bobmcallan/stockboard/internal/interfaces"
	"github.com/bobmcallan/stockboard/internal/models"
)

type calendarEntry struct {
	events  *models.CalendarEvents
	updated time.Time
}

type calendarFlight struct {
	done   chan struct{}
	events *models.CalendarEvents
	err    error
}

// Service resolves calendar events through a TTL cache and extracts
// dividend/split events from chart data. Chart events are ranged queries and
// are not cached.
type Service struct {
	upstream interfaces.QuoteSource
	logger   *common.Logger

	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	calendar map[string]*calendarEntry
	flights  map[string]*calendarFlight
}

// Option configures an events Service.
type Option func(*Service)

// WithTTL overrides the calendar cache TTL.
func WithTTL(ttl time.Duration) Option {
	return func(s *Service) {
		s.ttl = ttl
	}
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates an events service over the upstream source.
func NewService(upstream interfaces.QuoteSource, logger *common.Logger, opts ...Option) *Service {
	s := &Service{
		upstream: upstream,
		logger:   logger,
		ttl:      common.EventsTTL,
		now:      time.Now,
		calendar: make(map[string]*calendarEntry),
		flights:  make(map[string]*calendarFlight),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetCalendarEvents returns upcoming earnings and dividend dates for a
// symbol. Results are cached; concurrent cold lookups for the same symbol
// share one upstream request.
func (s *Service) GetCalendarEvents(ctx context.Context, symbol string) (*models.CalendarEvents, error) {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	s.mu.Lock()
	if entry, ok := s.calendar[symbol]; ok && s.fresh(entry.updated) {
		s.mu.Unlock()
		return entry.events, nil
	}
	if f, ok := s.flights[symbol]; ok {
		s.mu.Unlock()
		select {
		case <-f.done:
			if f.err != nil {
				return nil, fmt.Errorf("calendar events fetch for %s: %w", symbol, f.err)
			}
			return f.events, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f := &calendarFlight{done: make(chan struct{})}
	s.flights[symbol] = f
	s.mu.Unlock()

	events, err := s.upstream.FetchCalendarEvents(ctx, symbol)

	s.mu.Lock()
	delete(s.flights, symbol)
	if err == nil {
		s.calendar[symbol] = &calendarEntry{events: events, updated: s.now()}
	}
	s.mu.Unlock()

	f.events = events
	f.err = err
	close(f.done)

	if err != nil {
		return nil, fmt.Errorf("calendar events fetch for %s: %w", symbol, err)
	}
	return events, nil
}

// GetEventsFromChart returns dividend and split events for a date range,
// sorted ascending by date. Single-day ranges are widened before the fetch
// since the upstream rejects start == end, then filtered back.
func (s *Service) GetEventsFromChart(ctx context.Context, symbol, startDate, endDate string) ([]models.ChartEvent, error) {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	dateRange := models.DateRange{Start: startDate, End: endDate}
	if err := dateRange.Validate(); err != nil {
		return nil, err
	}

	window := dateRange
	if window.SingleDay() {
		d, err := models.ParseDate(window.Start)
		if err == nil {
			window = models.DateRange{
				Start: models.FormatDate(d.AddDate(0, 0, -1)),
				End:   models.FormatDate(d.AddDate(0, 0, 1)),
			}
		}
	}

	events, err := s.upstream.FetchChartEvents(ctx, symbol, window)
	if err != nil {
		return nil, fmt.Errorf("chart events fetch for %s: %w", symbol, err)
	}

	filtered := make([]models.ChartEvent, 0, len(events))
	for _, ev := range events {
		if dateRange.Contains(ev.Date) {
			filtered = append(filtered, ev)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].Date < filtered[j].Date
	})

	return filtered, nil
}

func (s *Service) fresh(updated time.Time) bool {
	return common.IsFresh(s.now(), updated, s.ttl)
}

// Ensure Service implements EventService
var _ interfaces.EventService = (*Service)(nil)
