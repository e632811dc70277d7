package pricedata

import (
	"context"
	"errors"
	"testing"

	"github.com/bobmcallan/stockboard/internal/common"
	"github.com/bobmcallan/stockboard/internal/models"
)

// fakeQuoteSource is a scriptable upstream. history holds the bars the
// provider would return for any window; FetchHistory returns the subset
// falling inside the requested range.
type fakeQuoteSource struct {
	history    []models.Bar
	meta       *models.SeriesMeta
	historyErr error
	metaErr    error

	// failRanges marks specific windows whose fetch should fail.
	failRanges map[models.DateRange]bool

	historyCalls []models.DateRange
	metaCalls    []models.DateRange
}

func (f *fakeQuoteSource) FetchHistory(_ context.Context, _ string, dateRange models.DateRange, _ models.Timeframe) ([]models.Bar, error) {
	f.historyCalls = append(f.historyCalls, dateRange)
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	if f.failRanges[dateRange] {
		return nil, errors.New("upstream unavailable")
	}
	var out []models.Bar
	for _, bar := range f.history {
		if dateRange.Contains(bar.Date) {
			out = append(out, bar)
		}
	}
	return out, nil
}

func (f *fakeQuoteSource) FetchHistoryWithMeta(ctx context.Context, symbol string, dateRange models.DateRange, timeframe models.Timeframe) (*models.PriceSeries, error) {
	f.metaCalls = append(f.metaCalls, dateRange)
	if f.metaErr != nil {
		return nil, f.metaErr
	}
	bars, err := f.FetchHistory(ctx, symbol, dateRange, timeframe)
	if err != nil {
		return nil, err
	}
	return &models.PriceSeries{Meta: f.meta, Quotes: bars}, nil
}

func (f *fakeQuoteSource) FetchQuote(context.Context, string) (*models.Quote, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeQuoteSource) FetchFundamentals(context.Context, string) (*models.Fundamentals, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeQuoteSource) FetchCalendarEvents(context.Context, string) (*models.CalendarEvents, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeQuoteSource) FetchChartEvents(context.Context, string, models.DateRange) ([]models.ChartEvent, error) {
	return nil, errors.New("not implemented")
}

func newTestService(store *fakeBarStore, upstream *fakeQuoteSource) *Service {
	if store == nil {
		return NewService(nil, upstream, common.NewSilentLogger())
	}
	return NewService(store, upstream, common.NewSilentLogger())
}

func dates(bars []models.Bar) []string {
	out := make([]string, len(bars))
	for i, bar := range bars {
		out[i] = bar.Date
	}
	return out
}

func TestGetPriceData_FullyCached(t *testing.T) {
	store := newFakeBarStore()
	for _, date := range []string{"2024-01-01", "2024-01-02", "2024-01-03"} {
		store.put(dailyBar("AAPL", date, 100))
	}
	upstream := &fakeQuoteSource{}
	svc := newTestService(store, upstream)

	series, err := svc.GetPriceData(context.Background(), "AAPL", "2024-01-01", "2024-01-03", models.TimeframeDaily, false)
	if err != nil {
		t.Fatalf("GetPriceData failed: %v", err)
	}

	if len(series.Quotes) != 3 {
		t.Errorf("expected 3 bars, got %d: %v", len(series.Quotes), dates(series.Quotes))
	}
	if len(upstream.historyCalls) != 0 {
		t.Errorf("expected no upstream calls for fully cached range, got %d", len(upstream.historyCalls))
	}
}

func TestGetPriceData_EmptyStoreFetchesAndPersists(t *testing.T) {
	store := newFakeBarStore()
	upstream := &fakeQuoteSource{}
	for _, date := range []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"} {
		upstream.history = append(upstream.history, dailyBar("AAPL", date, 100))
	}
	svc := newTestService(store, upstream)

	series, err := svc.GetPriceData(context.Background(), "AAPL", "2024-01-01", "2024-01-05", models.TimeframeDaily, false)
	if err != nil {
		t.Fatalf("GetPriceData failed: %v", err)
	}

	if len(series.Quotes) != 5 {
		t.Fatalf("expected 5 bars, got %d: %v", len(series.Quotes), dates(series.Quotes))
	}
	for i := 1; i < len(series.Quotes); i++ {
		if series.Quotes[i].Date <= series.Quotes[i-1].Date {
			t.Errorf("bars not strictly ascending: %s after %s", series.Quotes[i].Date, series.Quotes[i-1].Date)
		}
	}
	if len(store.bars) != 5 {
		t.Errorf("expected 5 bars persisted, got %d", len(store.bars))
	}

	// A repeat of the same query is now served from the store.
	upstream.historyCalls = nil
	if _, err := svc.GetPriceData(context.Background(), "AAPL", "2024-01-01", "2024-01-05", models.TimeframeDaily, false); err != nil {
		t.Fatalf("second GetPriceData failed: %v", err)
	}
	if len(upstream.historyCalls) != 0 {
		t.Errorf("expected repeat query to hit cache only, got %d upstream calls", len(upstream.historyCalls))
	}
}

func TestGetPriceData_SingleDayGapExpandsWindow(t *testing.T) {
	store := newFakeBarStore()
	store.put(dailyBar("AAPL", "2024-03-04", 100))
	store.put(dailyBar("AAPL", "2024-03-06", 102))
	upstream := &fakeQuoteSource{}
	for _, date := range []string{"2024-03-04", "2024-03-05", "2024-03-06"} {
		upstream.history = append(upstream.history, dailyBar("AAPL", date, 200))
	}
	svc := newTestService(store, upstream)

	series, err := svc.GetPriceData(context.Background(), "AAPL", "2024-03-04", "2024-03-06", models.TimeframeDaily, false)
	if err != nil {
		t.Fatalf("GetPriceData failed: %v", err)
	}

	// The single-day gap 03-05 must be fetched as the widened window
	// 03-04..03-06 since upstream rejects start == end.
	if len(upstream.historyCalls) != 1 {
		t.Fatalf("expected 1 upstream call, got %d: %v", len(upstream.historyCalls), upstream.historyCalls)
	}
	call := upstream.historyCalls[0]
	if call.Start != "2024-03-04" || call.End != "2024-03-06" {
		t.Errorf("expected widened window 2024-03-04..2024-03-06, got %+v", call)
	}

	if len(series.Quotes) != 3 {
		t.Fatalf("expected 3 bars, got %d: %v", len(series.Quotes), dates(series.Quotes))
	}
	// Only the gap date comes from the fetch; the cached neighbors stay
	// canonical in the response.
	for _, bar := range series.Quotes {
		switch bar.Date {
		case "2024-03-05":
			if bar.Close != 200 {
				t.Errorf("gap bar close = %v, want fetched value 200", bar.Close)
			}
		case "2024-03-04":
			if bar.Close != 100 {
				t.Errorf("cached bar 03-04 close = %v, want 100", bar.Close)
			}
		}
	}
}

func TestGetPriceData_WholeWindowPersisted(t *testing.T) {
	store := newFakeBarStore()
	store.put(dailyBar("AAPL", "2024-03-04", 100))
	store.put(dailyBar("AAPL", "2024-03-06", 102))
	upstream := &fakeQuoteSource{}
	for _, date := range []string{"2024-03-04", "2024-03-05", "2024-03-06"} {
		upstream.history = append(upstream.history, dailyBar("AAPL", date, 200))
	}
	svc := newTestService(store, upstream)

	if _, err := svc.GetPriceData(context.Background(), "AAPL", "2024-03-04", "2024-03-06", models.TimeframeDaily, false); err != nil {
		t.Fatalf("GetPriceData failed: %v", err)
	}

	// All three bars of the widened fetch window get persisted, not just the
	// gap date. The neighbors are overwritten with the fresher values.
	if len(store.upsertCalls) != 1 {
		t.Fatalf("expected 1 upsert, got %d", len(store.upsertCalls))
	}
	if len(store.upsertCalls[0]) != 3 {
		t.Errorf("expected whole 3-bar window persisted, got %d bars", len(store.upsertCalls[0]))
	}
}

func TestGetPriceData_MergePrefersFetched(t *testing.T) {
	store := newFakeBarStore()
	store.put(dailyBar("AAPL", "2024-01-01", 100))
	// 2024-01-02 missing. Upstream returns both days, 01-01 with close 105.
	upstream := &fakeQuoteSource{
		history: []models.Bar{
			dailyBar("AAPL", "2024-01-01", 105),
			dailyBar("AAPL", "2024-01-02", 106),
		},
	}
	svc := newTestService(store, upstream)

	series, err := svc.GetPriceData(context.Background(), "AAPL", "2024-01-01", "2024-01-02", models.TimeframeDaily, false)
	if err != nil {
		t.Fatalf("GetPriceData failed: %v", err)
	}

	if len(series.Quotes) != 2 {
		t.Fatalf("expected 2 bars, got %d: %v", len(series.Quotes), dates(series.Quotes))
	}
	// Gap filtering keeps only the 01-02 bar from the fetch, so the cached
	// 01-01 value survives the merge.
	if series.Quotes[0].Date != "2024-01-01" || series.Quotes[0].Close != 100 {
		t.Errorf("bar[0] = %s close %v, want cached 2024-01-01 close 100", series.Quotes[0].Date, series.Quotes[0].Close)
	}
	if series.Quotes[1].Date != "2024-01-02" || series.Quotes[1].Close != 106 {
		t.Errorf("bar[1] = %s close %v, want fetched 2024-01-02 close 106", series.Quotes[1].Date, series.Quotes[1].Close)
	}
}

func TestGetPriceData_PartialGapFailure(t *testing.T) {
	store := newFakeBarStore()
	// Coverage leaves two disjoint gaps: 01-02..01-03 and 01-06..01-07.
	store.put(dailyBar("AAPL", "2024-01-01", 100))
	store.put(dailyBar("AAPL", "2024-01-04", 103))
	store.put(dailyBar("AAPL", "2024-01-05", 104))
	upstream := &fakeQuoteSource{
		failRanges: map[models.DateRange]bool{
			{Start: "2024-01-02", End: "2024-01-03"}: true,
		},
	}
	for _, date := range []string{"2024-01-06", "2024-01-07"} {
		upstream.history = append(upstream.history, dailyBar("AAPL", date, 200))
	}
	svc := newTestService(store, upstream)

	series, err := svc.GetPriceData(context.Background(), "AAPL", "2024-01-01", "2024-01-07", models.TimeframeDaily, false)
	if err != nil {
		t.Fatalf("expected partial result despite failed gap, got error: %v", err)
	}

	// Cached 3 + second gap's 2. The failed gap's dates are simply absent.
	want := []string{"2024-01-01", "2024-01-04", "2024-01-05", "2024-01-06", "2024-01-07"}
	got := dates(series.Quotes)
	if len(got) != len(want) {
		t.Fatalf("expected dates %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("date[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestGetPriceData_NilStoreFetchesDirect(t *testing.T) {
	upstream := &fakeQuoteSource{
		history: []models.Bar{
			dailyBar("AAPL", "2024-01-01", 100),
			dailyBar("AAPL", "2024-01-02", 101),
		},
	}
	svc := newTestService(nil, upstream)

	series, err := svc.GetPriceData(context.Background(), "AAPL", "2024-01-01", "2024-01-02", models.TimeframeDaily, false)
	if err != nil {
		t.Fatalf("GetPriceData failed: %v", err)
	}
	if len(series.Quotes) != 2 {
		t.Errorf("expected 2 bars, got %d", len(series.Quotes))
	}
	if len(upstream.historyCalls) != 1 {
		t.Errorf("expected exactly 1 upstream call, got %d", len(upstream.historyCalls))
	}
}

func TestGetPriceData_StoreReadFailureFallsBack(t *testing.T) {
	store := newFakeBarStore()
	store.findBarsErr = errors.New("connection reset")
	upstream := &fakeQuoteSource{
		history: []models.Bar{dailyBar("AAPL", "2024-01-01", 100), dailyBar("AAPL", "2024-01-02", 101)},
	}
	svc := newTestService(store, upstream)

	series, err := svc.GetPriceData(context.Background(), "AAPL", "2024-01-01", "2024-01-02", models.TimeframeDaily, false)
	if err != nil {
		t.Fatalf("expected upstream fallback, got error: %v", err)
	}
	if len(series.Quotes) != 2 {
		t.Errorf("expected 2 bars from fallback, got %d", len(series.Quotes))
	}
}

func TestGetPriceData_GapAnalysisFailureReturnsCached(t *testing.T) {
	store := newFakeBarStore()
	store.put(dailyBar("AAPL", "2024-01-01", 100))
	store.findDatesErr = errors.New("query timeout")
	upstream := &fakeQuoteSource{}
	svc := newTestService(store, upstream)

	series, err := svc.GetPriceData(context.Background(), "AAPL", "2024-01-01", "2024-01-05", models.TimeframeDaily, false)
	if err != nil {
		t.Fatalf("expected cached-only degradation, got error: %v", err)
	}
	if len(series.Quotes) != 1 || series.Quotes[0].Date != "2024-01-01" {
		t.Errorf("expected the one cached bar, got %v", dates(series.Quotes))
	}
	if len(upstream.historyCalls) != 0 {
		t.Errorf("expected no gap fetches when coverage is unknown, got %d", len(upstream.historyCalls))
	}
}

func TestGetPriceData_UpstreamAndStoreBothDown(t *testing.T) {
	store := newFakeBarStore()
	store.findBarsErr = errors.New("store down")
	upstream := &fakeQuoteSource{historyErr: errors.New("upstream down")}
	svc := newTestService(store, upstream)

	_, err := svc.GetPriceData(context.Background(), "AAPL", "2024-01-01", "2024-01-05", models.TimeframeDaily, false)
	if err == nil {
		t.Fatal("expected error when both store and upstream fail")
	}
}

func TestGetPriceData_InvalidRange(t *testing.T) {
	upstream := &fakeQuoteSource{}
	svc := newTestService(newFakeBarStore(), upstream)

	cases := []struct {
		name       string
		start, end string
	}{
		{"reversed", "2024-02-01", "2024-01-01"},
		{"malformed start", "01/01/2024", "2024-02-01"},
		{"malformed end", "2024-01-01", "yesterday"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.GetPriceData(context.Background(), "AAPL", tc.start, tc.end, models.TimeframeDaily, false)
			if err == nil {
				t.Error("expected validation error")
			}
		})
	}
	if len(upstream.historyCalls) != 0 {
		t.Errorf("validation failures must not reach upstream, got %d calls", len(upstream.historyCalls))
	}
}

func TestGetPriceData_EmptySymbol(t *testing.T) {
	svc := newTestService(newFakeBarStore(), &fakeQuoteSource{})
	if _, err := svc.GetPriceData(context.Background(), "  ", "2024-01-01", "2024-01-02", models.TimeframeDaily, false); err == nil {
		t.Error("expected error for blank symbol")
	}
}

func TestGetPriceData_InvalidTimeframeDefaultsToDaily(t *testing.T) {
	store := newFakeBarStore()
	store.put(dailyBar("AAPL", "2024-01-01", 100))
	store.put(dailyBar("AAPL", "2024-01-02", 101))
	svc := newTestService(store, &fakeQuoteSource{})

	series, err := svc.GetPriceData(context.Background(), "AAPL", "2024-01-01", "2024-01-02", models.Timeframe("2d"), false)
	if err != nil {
		t.Fatalf("GetPriceData failed: %v", err)
	}
	if len(series.Quotes) != 2 {
		t.Errorf("expected daily bars under default timeframe, got %v", dates(series.Quotes))
	}
}

func TestGetPriceData_SymbolNormalized(t *testing.T) {
	store := newFakeBarStore()
	store.put(dailyBar("AAPL", "2024-01-01", 100))
	svc := newTestService(store, &fakeQuoteSource{})

	series, err := svc.GetPriceData(context.Background(), " aapl ", "2024-01-01", "2024-01-01", models.TimeframeDaily, false)
	if err != nil {
		t.Fatalf("GetPriceData failed: %v", err)
	}
	if len(series.Quotes) != 1 {
		t.Errorf("expected normalized lookup to find the cached bar, got %v", dates(series.Quotes))
	}
}

func TestGetPriceData_MetadataAttached(t *testing.T) {
	store := newFakeBarStore()
	store.put(dailyBar("AAPL", "2024-01-01", 100))
	store.put(dailyBar("AAPL", "2024-01-02", 101))
	upstream := &fakeQuoteSource{
		meta: &models.SeriesMeta{Symbol: "AAPL", Currency: "USD", ExchangeName: "NMS"},
		history: []models.Bar{
			dailyBar("AAPL", "2024-01-01", 200),
			dailyBar("AAPL", "2024-01-02", 201),
		},
	}
	svc := newTestService(store, upstream)

	series, err := svc.GetPriceData(context.Background(), "AAPL", "2024-01-01", "2024-01-02", models.TimeframeDaily, true)
	if err != nil {
		t.Fatalf("GetPriceData failed: %v", err)
	}

	if series.Meta == nil || series.Meta.Currency != "USD" {
		t.Errorf("expected metadata attached, got %+v", series.Meta)
	}
	// Cached bars stay canonical even though the metadata call returned its
	// own quotes.
	if series.Quotes[0].Close != 100 {
		t.Errorf("expected cached close 100, got %v", series.Quotes[0].Close)
	}
}

func TestGetPriceData_MetadataFailureDegradesToQuotes(t *testing.T) {
	store := newFakeBarStore()
	store.put(dailyBar("AAPL", "2024-01-01", 100))
	upstream := &fakeQuoteSource{metaErr: errors.New("meta endpoint down")}
	svc := newTestService(store, upstream)

	series, err := svc.GetPriceData(context.Background(), "AAPL", "2024-01-01", "2024-01-01", models.TimeframeDaily, true)
	if err != nil {
		t.Fatalf("expected quotes-only degradation, got error: %v", err)
	}
	if series.Meta != nil {
		t.Errorf("expected nil meta after failure, got %+v", series.Meta)
	}
	if len(series.Quotes) != 1 {
		t.Errorf("expected the cached bar, got %v", dates(series.Quotes))
	}
}

func TestMergeBars_CollidingDatePrefersFetched(t *testing.T) {
	cached := []models.Bar{
		dailyBar("AAPL", "2024-01-02", 100),
		dailyBar("AAPL", "2024-01-01", 99),
	}
	fetched := []models.Bar{
		dailyBar("AAPL", "2024-01-02", 105),
		dailyBar("AAPL", "2024-01-03", 106),
	}

	merged := mergeBars(cached, fetched)

	want := []string{"2024-01-01", "2024-01-02", "2024-01-03"}
	got := dates(merged)
	if len(got) != len(want) {
		t.Fatalf("expected dates %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected dates %v, got %v", want, got)
		}
	}
	if merged[1].Close != 105 {
		t.Errorf("expected fetched close 105 for colliding date, got %v", merged[1].Close)
	}
	if merged[0].Close != 99 || merged[2].Close != 106 {
		t.Errorf("unexpected closes for non-colliding dates: %v", merged)
	}
}
