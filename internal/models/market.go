// Package models defines data structures for stockboard
package models

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe is the sampling granularity of a price series.
type Timeframe string

const (
	Timeframe1Min   Timeframe = "1m"
	Timeframe5Min   Timeframe = "5m"
	Timeframe15Min  Timeframe = "15m"
	Timeframe30Min  Timeframe = "30m"
	Timeframe1Hour  Timeframe = "1h"
	TimeframeDaily  Timeframe = "1d"
	TimeframeWeekly Timeframe = "1wk"
	TimeframeMonth  Timeframe = "1mo"
)

// supportedTimeframes is the set of accepted timeframe values.
var supportedTimeframes = map[Timeframe]bool{
	Timeframe1Min:   true,
	Timeframe5Min:   true,
	Timeframe15Min:  true,
	Timeframe30Min:  true,
	Timeframe1Hour:  true,
	TimeframeDaily:  true,
	TimeframeWeekly: true,
	TimeframeMonth:  true,
}

// Valid returns true if the timeframe is one of the supported values.
func (tf Timeframe) Valid() bool {
	return supportedTimeframes[tf]
}

// Next advances a date by one timeframe step. Daily spacing is the default
// for intraday and unrecognized timeframes, since bars are keyed by calendar
// date regardless of granularity.
func (tf Timeframe) Next(t time.Time) time.Time {
	switch tf {
	case TimeframeWeekly:
		return t.AddDate(0, 0, 7)
	case TimeframeMonth:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// GapThresholdDays is the maximum day-difference between two missing dates
// for them to coalesce into the same gap.
func (tf Timeframe) GapThresholdDays() int {
	switch tf {
	case TimeframeWeekly:
		return 7
	case TimeframeMonth:
		return 30
	default:
		return 1
	}
}

// Bar is one OHLCV record. The triple (Symbol, Timeframe, Date) is unique:
// at most one bar per symbol/timeframe/day.
type Bar struct {
	Symbol    string    `json:"symbol"`
	Timeframe Timeframe `json:"timeframe"`
	Date      string    `json:"date"` // YYYY-MM-DD, UTC calendar date
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
	AdjClose  *float64  `json:"adj_close"` // nil when upstream omits it
}

// Key returns the unique store key for the bar.
func (b *Bar) Key() string {
	return fmt.Sprintf("%s:%s:%s", b.Symbol, b.Timeframe, b.Date)
}

// DateRange is a closed interval [Start, End] of calendar dates, both
// inclusive, in YYYY-MM-DD form. A Gap is a DateRange representing a maximal
// run of expected dates absent from the store.
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Gap is a missing date sub-range relative to a query.
type Gap = DateRange

// Validate checks both bounds parse and Start <= End.
func (r DateRange) Validate() error {
	start, err := ParseDate(r.Start)
	if err != nil {
		return fmt.Errorf("invalid start date %q: %w", r.Start, err)
	}
	end, err := ParseDate(r.End)
	if err != nil {
		return fmt.Errorf("invalid end date %q: %w", r.End, err)
	}
	if start.After(end) {
		return fmt.Errorf("start date %s is after end date %s", r.Start, r.End)
	}
	return nil
}

// SingleDay returns true when the range covers exactly one date.
func (r DateRange) SingleDay() bool {
	return r.Start == r.End
}

// Contains reports whether date (YYYY-MM-DD) falls within the range.
// Lexicographic comparison is date order for this format.
func (r DateRange) Contains(date string) bool {
	return date >= r.Start && date <= r.End
}

// Quote is a live market snapshot for a symbol, passed through from upstream.
type Quote struct {
	Symbol           string    `json:"symbol"`
	Name             string    `json:"name,omitempty"`
	Price            float64   `json:"price"`
	Change           float64   `json:"change"`
	ChangePct        float64   `json:"change_pct"`
	PreviousClose    float64   `json:"previous_close"`
	Volume           float64   `json:"volume,omitempty"`
	Currency         string    `json:"currency,omitempty"`
	MarketState      string    `json:"market_state,omitempty"`
	Timestamp        time.Time `json:"timestamp"`
	FiftyTwoWeekLow  float64   `json:"fifty_two_week_low,omitempty"`
	FiftyTwoWeekHigh float64   `json:"fifty_two_week_high,omitempty"`
}

// Fundamentals is the slower-changing per-symbol summary bundle.
type Fundamentals struct {
	Symbol            string    `json:"symbol"`
	Name              string    `json:"name,omitempty"`
	MarketCap         float64   `json:"market_cap"`
	PE                float64   `json:"pe_ratio"`
	ForwardPE         float64   `json:"forward_pe,omitempty"`
	PB                float64   `json:"pb_ratio"`
	EPS               float64   `json:"eps"`
	DividendYield     float64   `json:"dividend_yield"`
	Beta              float64   `json:"beta"`
	SharesOutstanding int64     `json:"shares_outstanding"`
	Sector            string    `json:"sector,omitempty"`
	Industry          string    `json:"industry,omitempty"`
	Description       string    `json:"description,omitempty"`
	LastUpdated       time.Time `json:"last_updated"`
}

// EarningsDate is a single upcoming or historical earnings entry.
type EarningsDate struct {
	Date        string  `json:"date"` // YYYY-MM-DD
	EPSEstimate float64 `json:"eps_estimate,omitempty"`
	EPSActual   float64 `json:"eps_actual,omitempty"`
	Surprise    float64 `json:"surprise_pct,omitempty"`
}

// CalendarEvents holds upcoming earnings and dividend dates for a symbol.
type CalendarEvents struct {
	Symbol          string         `json:"symbol"`
	EarningsDates   []string       `json:"earnings_dates,omitempty"` // YYYY-MM-DD
	DividendDate    string         `json:"dividend_date,omitempty"`
	ExDividendDate  string         `json:"ex_dividend_date,omitempty"`
	EarningsHistory []EarningsDate `json:"earnings_history,omitempty"`
}

// ChartEvent is a dividend or split event extracted from chart metadata.
type ChartEvent struct {
	Type   string  `json:"type"` // "dividend" or "split"
	Date   string  `json:"date"` // YYYY-MM-DD
	Amount float64 `json:"amount,omitempty"`
	Ratio  string  `json:"ratio,omitempty"` // splits only, e.g. "4:1"
}

// SeriesMeta is the upstream chart metadata returned alongside a series.
type SeriesMeta struct {
	Symbol             string  `json:"symbol"`
	Currency           string  `json:"currency,omitempty"`
	ExchangeName       string  `json:"exchange_name,omitempty"`
	InstrumentType     string  `json:"instrument_type,omitempty"`
	RegularMarketPrice float64 `json:"regular_market_price,omitempty"`
	PreviousClose      float64 `json:"previous_close,omitempty"`
	Timezone           string  `json:"timezone,omitempty"`
}

// PriceSeries is the metadata-bearing result shape of a history query.
type PriceSeries struct {
	Meta   *SeriesMeta `json:"meta,omitempty"`
	Quotes []Bar       `json:"quotes"`
}

// NormalizeSymbol uppercases and trims a ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
