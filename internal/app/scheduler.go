package app

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the background refresh jobs: warming the quote cache for
// watch symbols on a short cadence and refreshing their calendar events
// daily. Jobs are best-effort, a failed refresh waits for the next tick.
type Scheduler struct {
	app  *App
	cron *cron.Cron
}

// NewScheduler builds the cron schedule from config. Both cron expressions
// must parse; a bad expression is a config error, not something to limp past.
func NewScheduler(a *App) (*Scheduler, error) {
	c := cron.New()

	if _, err := c.AddFunc(a.Config.Scheduler.QuoteCron, func() { refreshQuotes(a) }); err != nil {
		return nil, fmt.Errorf("invalid quote_cron %q: %w", a.Config.Scheduler.QuoteCron, err)
	}
	if _, err := c.AddFunc(a.Config.Scheduler.EventsCron, func() { refreshEvents(a) }); err != nil {
		return nil, fmt.Errorf("invalid events_cron %q: %w", a.Config.Scheduler.EventsCron, err)
	}

	return &Scheduler{app: a, cron: c}, nil
}

// Start begins running the scheduled jobs.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.app.Logger.Info().
		Str("quote_cron", s.app.Config.Scheduler.QuoteCron).
		Str("events_cron", s.app.Config.Scheduler.EventsCron).
		Int("watch_symbols", len(s.app.Config.Scheduler.WatchSymbols)).
		Msg("Scheduler started")
}

// Stop halts the scheduler, waiting for any running job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(10 * time.Second):
		s.app.Logger.Warn().Msg("Scheduler jobs did not finish within shutdown deadline")
	}
}

// refreshQuotes warms the quote cache for the configured watch symbols.
func refreshQuotes(a *App) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	symbols := a.Config.Scheduler.WatchSymbols
	quotes, err := a.QuoteService.FetchQuotes(ctx, symbols, a.Config.Cache.QuoteBatchSize)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("Scheduled quote refresh failed")
		return
	}

	a.Logger.Debug().
		Int("requested", len(symbols)).
		Int("resolved", len(quotes)).
		Msg("Scheduled quote refresh complete")
}

// refreshEvents refreshes calendar events for the watch symbols.
func refreshEvents(a *App) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	refreshed := 0
	for _, symbol := range a.Config.Scheduler.WatchSymbols {
		if _, err := a.EventService.GetCalendarEvents(ctx, symbol); err != nil {
			a.Logger.Warn().Err(err).
				Str("symbol", symbol).
				Msg("Scheduled events refresh failed for symbol")
			continue
		}
		refreshed++
	}

	a.Logger.Debug().
		Int("refreshed", refreshed).
		Msg("Scheduled events refresh complete")
}
