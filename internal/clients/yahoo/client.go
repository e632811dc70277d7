// Package yahoo provides a client for the Yahoo Finance API
package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/bobmcallan/stockboard/internal/common"
	"github.com/bobmcallan/stockboard/internal/interfaces"
	"github.com/bobmcallan/stockboard/internal/models"
)

const (
	DefaultBaseURL   = "https://query1.finance.yahoo.com"
	DefaultTimeout   = 30 * time.Second
	DefaultRateLimit = 10 // requests per second
)

// Client implements the QuoteSource interface against the Yahoo Finance API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new Yahoo Finance client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents an API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("yahoo API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET request
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "stockboard/"+common.GetVersion())

	c.logger.Debug().Str("url", c.baseURL+path).Msg("Yahoo API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// chartResponse mirrors the v8 chart endpoint payload.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				Currency           string  `json:"currency"`
				ExchangeName       string  `json:"exchangeName"`
				InstrumentType     string  `json:"instrumentType"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				PreviousClose      float64 `json:"chartPreviousClose"`
				Timezone           string  `json:"timezone"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
				AdjClose []struct {
					AdjClose []*float64 `json:"adjclose"`
				} `json:"adjclose"`
			} `json:"indicators"`
			Events *chartEvents `json:"events"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartEvents struct {
	Dividends map[string]struct {
		Amount float64 `json:"amount"`
		Date   int64   `json:"date"`
	} `json:"dividends"`
	Splits map[string]struct {
		Date        int64  `json:"date"`
		SplitRatio  string `json:"splitRatio"`
		Numerator   int    `json:"numerator"`
		Denominator int    `json:"denominator"`
	} `json:"splits"`
}

// chart fetches the raw chart payload for a range. The provider rejects
// degenerate windows where period1 equals period2, so single-day ranges
// error here; callers expand the window first.
func (c *Client) chart(ctx context.Context, symbol string, dateRange models.DateRange, timeframe models.Timeframe, withEvents bool) (*chartResponse, error) {
	if dateRange.Start == dateRange.End {
		return nil, fmt.Errorf("chart range for %s requires distinct start and end dates (got %s)", symbol, dateRange.Start)
	}

	start, err := models.ParseDate(dateRange.Start)
	if err != nil {
		return nil, fmt.Errorf("invalid range start: %w", err)
	}
	end, err := models.ParseDate(dateRange.End)
	if err != nil {
		return nil, fmt.Errorf("invalid range end: %w", err)
	}

	interval := string(timeframe)
	if !timeframe.Valid() {
		interval = string(models.TimeframeDaily)
	}

	params := url.Values{}
	params.Set("period1", strconv.FormatInt(start.Unix(), 10))
	// End is inclusive: push period2 to the end of that calendar day.
	params.Set("period2", strconv.FormatInt(end.AddDate(0, 0, 1).Unix(), 10))
	params.Set("interval", interval)
	if withEvents {
		params.Set("events", "div|split")
	}

	path := fmt.Sprintf("/v8/finance/chart/%s", url.PathEscape(symbol))

	var resp chartResponse
	if err := c.get(ctx, path, params, &resp); err != nil {
		return nil, err
	}

	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("chart request for %s failed: %s (%s)",
			symbol, resp.Chart.Error.Description, resp.Chart.Error.Code)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, fmt.Errorf("chart request for %s returned no result", symbol)
	}

	return &resp, nil
}

// barsFromChart converts the parallel-array chart payload into Bars.
// Rows with a missing close are skipped; timestamps normalize to UTC
// calendar dates.
func barsFromChart(symbol string, timeframe models.Timeframe, resp *chartResponse) []models.Bar {
	result := resp.Chart.Result[0]
	if len(result.Indicators.Quote) == 0 {
		return nil
	}
	quote := result.Indicators.Quote[0]

	var adj []*float64
	if len(result.Indicators.AdjClose) > 0 {
		adj = result.Indicators.AdjClose[0].AdjClose
	}

	deref := func(vals []*float64, i int) (float64, bool) {
		if i >= len(vals) || vals[i] == nil {
			return 0, false
		}
		return *vals[i], true
	}

	bars := make([]models.Bar, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		closePx, ok := deref(quote.Close, i)
		if !ok {
			continue
		}
		date, err := models.NormalizeDate(ts)
		if err != nil {
			continue
		}

		open, _ := deref(quote.Open, i)
		high, _ := deref(quote.High, i)
		low, _ := deref(quote.Low, i)
		volume, _ := deref(quote.Volume, i)

		bar := models.Bar{
			Symbol:    symbol,
			Timeframe: timeframe,
			Date:      date,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePx,
			Volume:    volume,
		}
		if v, ok := deref(adj, i); ok {
			bar.AdjClose = &v
		}
		bars = append(bars, bar)
	}

	return bars
}

// FetchHistory retrieves OHLCV bars for a date range.
func (c *Client) FetchHistory(ctx context.Context, symbol string, dateRange models.DateRange, timeframe models.Timeframe) ([]models.Bar, error) {
	symbol = models.NormalizeSymbol(symbol)

	resp, err := c.chart(ctx, symbol, dateRange, timeframe, false)
	if err != nil {
		return nil, err
	}

	bars := barsFromChart(symbol, timeframe, resp)
	c.logger.Debug().
		Str("symbol", symbol).
		Str("start", dateRange.Start).
		Str("end", dateRange.End).
		Int("bars", len(bars)).
		Msg("Yahoo history fetched")

	return bars, nil
}

// FetchHistoryWithMeta retrieves bars plus chart metadata.
func (c *Client) FetchHistoryWithMeta(ctx context.Context, symbol string, dateRange models.DateRange, timeframe models.Timeframe) (*models.PriceSeries, error) {
	symbol = models.NormalizeSymbol(symbol)

	resp, err := c.chart(ctx, symbol, dateRange, timeframe, false)
	if err != nil {
		return nil, err
	}

	meta := resp.Chart.Result[0].Meta
	return &models.PriceSeries{
		Meta: &models.SeriesMeta{
			Symbol:             meta.Symbol,
			Currency:           meta.Currency,
			ExchangeName:       meta.ExchangeName,
			InstrumentType:     meta.InstrumentType,
			RegularMarketPrice: meta.RegularMarketPrice,
			PreviousClose:      meta.PreviousClose,
			Timezone:           meta.Timezone,
		},
		Quotes: barsFromChart(symbol, timeframe, resp),
	}, nil
}

// FetchChartEvents retrieves dividend and split events for a date range.
func (c *Client) FetchChartEvents(ctx context.Context, symbol string, dateRange models.DateRange) ([]models.ChartEvent, error) {
	symbol = models.NormalizeSymbol(symbol)

	resp, err := c.chart(ctx, symbol, dateRange, models.TimeframeDaily, true)
	if err != nil {
		return nil, err
	}

	raw := resp.Chart.Result[0].Events
	if raw == nil {
		return nil, nil
	}

	var events []models.ChartEvent
	for _, div := range raw.Dividends {
		date, err := models.NormalizeDate(div.Date)
		if err != nil {
			continue
		}
		events = append(events, models.ChartEvent{
			Type:   "dividend",
			Date:   date,
			Amount: div.Amount,
		})
	}
	for _, split := range raw.Splits {
		date, err := models.NormalizeDate(split.Date)
		if err != nil {
			continue
		}
		events = append(events, models.ChartEvent{
			Type:  "split",
			Date:  date,
			Ratio: split.SplitRatio,
		})
	}

	return events, nil
}

// quoteResponse mirrors the v7 quote endpoint payload.
type quoteResponse struct {
	QuoteResponse struct {
		Result []struct {
			Symbol                     string  `json:"symbol"`
			LongName                   string  `json:"longName"`
			ShortName                  string  `json:"shortName"`
			RegularMarketPrice         float64 `json:"regularMarketPrice"`
			RegularMarketChange        float64 `json:"regularMarketChange"`
			RegularMarketChangePct     float64 `json:"regularMarketChangePercent"`
			RegularMarketPreviousClose float64 `json:"regularMarketPreviousClose"`
			RegularMarketVolume        float64 `json:"regularMarketVolume"`
			RegularMarketTime          int64   `json:"regularMarketTime"`
			Currency                   string  `json:"currency"`
			MarketState                string  `json:"marketState"`
			FiftyTwoWeekLow            float64 `json:"fiftyTwoWeekLow"`
			FiftyTwoWeekHigh           float64 `json:"fiftyTwoWeekHigh"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteResponse"`
}

// FetchQuote retrieves a live quote for a single symbol.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (*models.Quote, error) {
	symbol = models.NormalizeSymbol(symbol)

	params := url.Values{}
	params.Set("symbols", symbol)

	var resp quoteResponse
	if err := c.get(ctx, "/v7/finance/quote", params, &resp); err != nil {
		return nil, err
	}

	if resp.QuoteResponse.Error != nil {
		return nil, fmt.Errorf("quote request for %s failed: %s", symbol, resp.QuoteResponse.Error.Description)
	}
	if len(resp.QuoteResponse.Result) == 0 {
		return nil, fmt.Errorf("no quote returned for %s", symbol)
	}

	r := resp.QuoteResponse.Result[0]
	name := r.LongName
	if name == "" {
		name = r.ShortName
	}

	return &models.Quote{
		Symbol:           r.Symbol,
		Name:             name,
		Price:            r.RegularMarketPrice,
		Change:           r.RegularMarketChange,
		ChangePct:        r.RegularMarketChangePct,
		PreviousClose:    r.RegularMarketPreviousClose,
		Volume:           r.RegularMarketVolume,
		Currency:         r.Currency,
		MarketState:      r.MarketState,
		Timestamp:        time.Unix(r.RegularMarketTime, 0).UTC(),
		FiftyTwoWeekLow:  r.FiftyTwoWeekLow,
		FiftyTwoWeekHigh: r.FiftyTwoWeekHigh,
	}, nil
}

// summaryResponse mirrors the quoteSummary endpoint payload for the modules
// stockboard consumes. Yahoo wraps every numeric in a {raw, fmt} object.
type summaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			Price *struct {
				LongName string `json:"longName"`
			} `json:"price"`
			SummaryDetail *struct {
				TrailingPE    rawValue `json:"trailingPE"`
				DividendYield rawValue `json:"dividendYield"`
				Beta          rawValue `json:"beta"`
				MarketCap     rawValue `json:"marketCap"`
			} `json:"summaryDetail"`
			DefaultKeyStatistics *struct {
				ForwardPE         rawValue `json:"forwardPE"`
				PriceToBook       rawValue `json:"priceToBook"`
				TrailingEps       rawValue `json:"trailingEps"`
				SharesOutstanding rawValue `json:"sharesOutstanding"`
			} `json:"defaultKeyStatistics"`
			AssetProfile *struct {
				Sector          string `json:"sector"`
				Industry        string `json:"industry"`
				LongBusinessSum string `json:"longBusinessSummary"`
			} `json:"assetProfile"`
			CalendarEvents *struct {
				Earnings struct {
					EarningsDate []rawValue `json:"earningsDate"`
				} `json:"earnings"`
				DividendDate   rawValue `json:"dividendDate"`
				ExDividendDate rawValue `json:"exDividendDate"`
			} `json:"calendarEvents"`
			EarningsHistory *struct {
				History []struct {
					Quarter     rawValue `json:"quarter"`
					EpsEstimate rawValue `json:"epsEstimate"`
					EpsActual   rawValue `json:"epsActual"`
					SurprisePct rawValue `json:"surprisePercent"`
				} `json:"history"`
			} `json:"earningsHistory"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"quoteSummary"`
}

// rawValue unwraps Yahoo's {raw: 1.23, fmt: "1.23"} number envelope.
type rawValue struct {
	Raw float64 `json:"raw"`
}

func (c *Client) quoteSummary(ctx context.Context, symbol string, mods string) (*summaryResponse, error) {
	params := url.Values{}
	params.Set("modules", mods)

	path := fmt.Sprintf("/v10/finance/quoteSummary/%s", url.PathEscape(symbol))

	var resp summaryResponse
	if err := c.get(ctx, path, params, &resp); err != nil {
		return nil, err
	}

	if resp.QuoteSummary.Error != nil {
		return nil, fmt.Errorf("quoteSummary for %s failed: %s", symbol, resp.QuoteSummary.Error.Description)
	}
	if len(resp.QuoteSummary.Result) == 0 {
		return nil, fmt.Errorf("no quoteSummary returned for %s", symbol)
	}

	return &resp, nil
}

// FetchFundamentals retrieves the fundamentals bundle for a symbol.
func (c *Client) FetchFundamentals(ctx context.Context, symbol string) (*models.Fundamentals, error) {
	symbol = models.NormalizeSymbol(symbol)

	resp, err := c.quoteSummary(ctx, symbol, "summaryDetail,defaultKeyStatistics,assetProfile,price")
	if err != nil {
		return nil, err
	}

	r := resp.QuoteSummary.Result[0]
	f := &models.Fundamentals{
		Symbol:      symbol,
		LastUpdated: time.Now().UTC(),
	}

	if r.Price != nil {
		f.Name = r.Price.LongName
	}
	if sd := r.SummaryDetail; sd != nil {
		f.PE = sd.TrailingPE.Raw
		f.DividendYield = sd.DividendYield.Raw
		f.Beta = sd.Beta.Raw
		f.MarketCap = sd.MarketCap.Raw
	}
	if ks := r.DefaultKeyStatistics; ks != nil {
		f.ForwardPE = ks.ForwardPE.Raw
		f.PB = ks.PriceToBook.Raw
		f.EPS = ks.TrailingEps.Raw
		f.SharesOutstanding = int64(ks.SharesOutstanding.Raw)
	}
	if ap := r.AssetProfile; ap != nil {
		f.Sector = ap.Sector
		f.Industry = ap.Industry
		f.Description = ap.LongBusinessSum
	}

	return f, nil
}

// FetchCalendarEvents retrieves upcoming earnings and dividend dates.
func (c *Client) FetchCalendarEvents(ctx context.Context, symbol string) (*models.CalendarEvents, error) {
	symbol = models.NormalizeSymbol(symbol)

	resp, err := c.quoteSummary(ctx, symbol, "calendarEvents,earningsHistory")
	if err != nil {
		return nil, err
	}

	r := resp.QuoteSummary.Result[0]
	events := &models.CalendarEvents{Symbol: symbol}

	if ce := r.CalendarEvents; ce != nil {
		for _, d := range ce.Earnings.EarningsDate {
			if d.Raw == 0 {
				continue
			}
			if date, err := models.NormalizeDate(d.Raw); err == nil {
				events.EarningsDates = append(events.EarningsDates, date)
			}
		}
		if ce.DividendDate.Raw != 0 {
			if date, err := models.NormalizeDate(ce.DividendDate.Raw); err == nil {
				events.DividendDate = date
			}
		}
		if ce.ExDividendDate.Raw != 0 {
			if date, err := models.NormalizeDate(ce.ExDividendDate.Raw); err == nil {
				events.ExDividendDate = date
			}
		}
	}

	if eh := r.EarningsHistory; eh != nil {
		for _, h := range eh.History {
			if h.Quarter.Raw == 0 {
				continue
			}
			date, err := models.NormalizeDate(h.Quarter.Raw)
			if err != nil {
				continue
			}
			events.EarningsHistory = append(events.EarningsHistory, models.EarningsDate{
				Date:        date,
				EPSEstimate: h.EpsEstimate.Raw,
				EPSActual:   h.EpsActual.Raw,
				Surprise:    h.SurprisePct.Raw,
			})
		}
	}

	return events, nil
}

// Ensure Client implements QuoteSource
var _ interfaces.QuoteSource = (*Client)(nil)
