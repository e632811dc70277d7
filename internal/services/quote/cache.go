// Package quote caches live quotes and fundamentals in memory with TTL
// expiry, collapsing concurrent upstream fetches for the same symbol into a
// single in-flight request.
package quote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bobmcallan/stockboard/internal/common"
	"github.com/bobmcallan/stockboard/internal/interfaces"
	"github.com/bobmcallan/stockboard/internal/models"
)

// DefaultBatchSize is the number of quote misses fetched concurrently per
// batch when the caller does not specify one.
const DefaultBatchSize = 20

type quoteEntry struct {
	quote   *models.Quote
	updated time.Time
}

type fundEntry struct {
	fund    *models.Fundamentals
	updated time.Time
}

// quoteFlight tracks one in-flight upstream quote fetch. Joiners wait on done
// and read the settled result.
type quoteFlight struct {
	done  chan struct{}
	quote *models.Quote
	err   error
}

type fundFlight struct {
	done chan struct{}
	fund *models.Fundamentals
	err  error
}

// CacheStore is a TTL cache over the upstream quote source. At most one
// upstream request per symbol is in flight at any time; concurrent callers
// for the same symbol share the result.
type CacheStore struct {
	upstream interfaces.QuoteSource
	logger   *common.Logger

	quoteTTL time.Duration
	fundTTL  time.Duration
	now      func() time.Time

	mu           sync.Mutex
	quotes       map[string]*quoteEntry
	fundamentals map[string]*fundEntry
	quoteFlights map[string]*quoteFlight
	fundFlights  map[string]*fundFlight
}

// Option configures a CacheStore.
type Option func(*CacheStore)

// WithQuoteTTL overrides the quote freshness window.
func WithQuoteTTL(ttl time.Duration) Option {
	return func(c *CacheStore) {
		c.quoteTTL = ttl
	}
}

// WithFundamentalsTTL overrides the fundamentals freshness window.
func WithFundamentalsTTL(ttl time.Duration) Option {
	return func(c *CacheStore) {
		c.fundTTL = ttl
	}
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(c *CacheStore) {
		c.now = now
	}
}

// NewCacheStore creates a quote/fundamentals cache over the upstream source.
func NewCacheStore(upstream interfaces.QuoteSource, logger *common.Logger, opts ...Option) *CacheStore {
	c := &CacheStore{
		upstream:     upstream,
		logger:       logger,
		quoteTTL:     common.QuoteTTL,
		fundTTL:      common.FundamentalsTTL,
		now:          time.Now,
		quotes:       make(map[string]*quoteEntry),
		fundamentals: make(map[string]*fundEntry),
		quoteFlights: make(map[string]*quoteFlight),
		fundFlights:  make(map[string]*fundFlight),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchQuotes resolves quotes for the given symbols, serving fresh cache
// entries directly and fetching misses in batches of batchSize. A symbol
// whose fetch fails is omitted from the result; a partial map is not an
// error. Duplicate and blank symbols are collapsed.
func (c *CacheStore) FetchQuotes(ctx context.Context, symbols []string, batchSize int) (map[string]*models.Quote, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	result := make(map[string]*models.Quote)
	seen := make(map[string]bool)
	var misses []string

	c.mu.Lock()
	for _, raw := range symbols {
		symbol := models.NormalizeSymbol(raw)
		if symbol == "" || seen[symbol] {
			continue
		}
		seen[symbol] = true

		if entry, ok := c.quotes[symbol]; ok && c.fresh(entry.updated, c.quoteTTL) {
			result[symbol] = entry.quote
			continue
		}
		misses = append(misses, symbol)
	}
	c.mu.Unlock()

	if len(misses) == 0 {
		return result, nil
	}

	var resultMu sync.Mutex
	for start := 0; start < len(misses); start += batchSize {
		end := start + batchSize
		if end > len(misses) {
			end = len(misses)
		}

		var wg sync.WaitGroup
		for _, symbol := range misses[start:end] {
			wg.Add(1)
			go func(symbol string) {
				defer wg.Done()
				quote, err := c.fetchQuote(ctx, symbol)
				if err != nil {
					c.logger.Warn().Err(err).
						Str("symbol", symbol).
						Msg("Quote fetch failed, omitting from batch result")
					return
				}
				resultMu.Lock()
				result[symbol] = quote
				resultMu.Unlock()
			}(symbol)
		}
		wg.Wait()
	}

	return result, nil
}

// GetQuote resolves a single symbol through the cache.
func (c *CacheStore) GetQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	c.mu.Lock()
	if entry, ok := c.quotes[symbol]; ok && c.fresh(entry.updated, c.quoteTTL) {
		c.mu.Unlock()
		return entry.quote, nil
	}
	c.mu.Unlock()

	return c.fetchQuote(ctx, symbol)
}

// fetchQuote joins an existing in-flight request for the symbol, or becomes
// the owner of a new one. The flight entry is removed when the request
// settles, success or failure, so a later call after expiry starts fresh.
func (c *CacheStore) fetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	c.mu.Lock()
	// Re-check freshness under the lock: another flight may have settled
	// between the caller's miss and now.
	if entry, ok := c.quotes[symbol]; ok && c.fresh(entry.updated, c.quoteTTL) {
		c.mu.Unlock()
		return entry.quote, nil
	}
	if f, ok := c.quoteFlights[symbol]; ok {
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.quote, f.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f := &quoteFlight{done: make(chan struct{})}
	c.quoteFlights[symbol] = f
	c.mu.Unlock()

	quote, err := c.upstream.FetchQuote(ctx, symbol)

	c.mu.Lock()
	delete(c.quoteFlights, symbol)
	if err == nil {
		c.quotes[symbol] = &quoteEntry{quote: quote, updated: c.now()}
	}
	c.mu.Unlock()

	f.quote = quote
	f.err = err
	close(f.done)

	return quote, err
}

// GetFundamentals returns the fundamentals bundle for a symbol, cached for
// the fundamentals TTL. Unlike quote batches, a fetch failure propagates.
func (c *CacheStore) GetFundamentals(ctx context.Context, symbol string) (*models.Fundamentals, error) {
	symbol = models.NormalizeSymbol(symbol)
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}

	c.mu.Lock()
	if entry, ok := c.fundamentals[symbol]; ok && c.fresh(entry.updated, c.fundTTL) {
		c.mu.Unlock()
		return entry.fund, nil
	}
	if f, ok := c.fundFlights[symbol]; ok {
		c.mu.Unlock()
		select {
		case <-f.done:
			if f.err != nil {
				return nil, fmt.Errorf("fundamentals fetch for %s: %w", symbol, f.err)
			}
			return f.fund, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f := &fundFlight{done: make(chan struct{})}
	c.fundFlights[symbol] = f
	c.mu.Unlock()

	fund, err := c.upstream.FetchFundamentals(ctx, symbol)

	c.mu.Lock()
	delete(c.fundFlights, symbol)
	if err == nil {
		c.fundamentals[symbol] = &fundEntry{fund: fund, updated: c.now()}
	}
	c.mu.Unlock()

	f.fund = fund
	f.err = err
	close(f.done)

	if err != nil {
		return nil, fmt.Errorf("fundamentals fetch for %s: %w", symbol, err)
	}
	return fund, nil
}

// Invalidate drops any cached quote and fundamentals for the symbol.
func (c *CacheStore) Invalidate(symbol string) {
	symbol = models.NormalizeSymbol(symbol)
	c.mu.Lock()
	delete(c.quotes, symbol)
	delete(c.fundamentals, symbol)
	c.mu.Unlock()
}

func (c *CacheStore) fresh(updated time.Time, ttl time.Duration) bool {
	return common.IsFresh(c.now(), updated, ttl)
}

// Ensure CacheStore implements QuoteService
var _ interfaces.QuoteService = (*CacheStore)(nil)
