package service

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"quant-dashboard/internal/backtest"
	"quant-dashboard/internal/collector"
	"quant-dashboard/internal/indicator"
	"quant-dashboard/internal/model"
	"quant-dashboard/internal/notification"
	"quant-dashboard/internal/series"
)

// ────────────────────────────────────────────────────────────
// Fakes
// ────────────────────────────────────────────────────────────

type memStore struct {
	mu     sync.Mutex
	bars   map[string]map[string]model.PriceBar
	names  map[string]string
	writes int
}

func newMemStore() *memStore {
	return &memStore{bars: map[string]map[string]model.PriceBar{}, names: map[string]string{}}
}

func (m *memStore) ReadBars(_ context.Context, symbol string) ([]model.PriceBar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.PriceBar{}
	for _, b := range m.bars[symbol] {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

func (m *memStore) WriteBars(_ context.Context, symbol string, bars []model.PriceBar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bars[symbol] == nil {
		m.bars[symbol] = map[string]model.PriceBar{}
	}
	for _, b := range bars {
		m.bars[symbol][b.Time] = b
	}
	m.writes++
	return nil
}

func (m *memStore) CompanyName(_ context.Context, symbol string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.names[symbol]; ok {
		return n, nil
	}
	return "", model.ErrNotFound
}

func (m *memStore) SaveCompany(_ context.Context, symbol, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.names[symbol] = name
	return nil
}

func (m *memStore) ListSymbols(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []string{}
	for s := range m.bars {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) Ping(context.Context) error { return nil }
func (m *memStore) Close() error               { return nil }

type fakeFetcher struct {
	mu    sync.Mutex
	bars  map[string][]model.PriceBar
	calls int
}

func (f *fakeFetcher) FetchDailyBars(_ context.Context, symbol, _ string) ([]model.PriceBar, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	b, ok := f.bars[symbol]
	if !ok {
		return nil, collector.ErrSymbolNotFound
	}
	return b, nil
}

func (f *fakeFetcher) FetchCompanyName(_ context.Context, symbol string) (string, error) {
	return symbol + " Inc.", nil
}

type memCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	gets    int
	sets    int
	failing bool
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.failing {
		return nil, errors.New("cache down")
	}
	return c.data[key], nil
}

func (c *memCache) Set(_ context.Context, key string, data []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failing {
		return errors.New("cache down")
	}
	c.sets++
	c.data[key] = data
	return nil
}

func (c *memCache) Invalidate(_ context.Context, symbol string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := strings.TrimSuffix(model.DashboardPattern(symbol), "*")
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			delete(c.data, k)
		}
	}
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []notification.Alert
}

func (r *recordingNotifier) Send(_ context.Context, a notification.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingPublisher) Publish(symbol, kind string, _ any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind+":"+symbol)
}

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func barsFromCloses(closes ...float64) []model.PriceBar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.PriceBar, len(closes))
	for i, c := range closes {
		out[i] = model.PriceBar{
			Time:   start.AddDate(0, 0, i).Format(model.DayLayout),
			Open:   c,
			High:   c,
			Low:    c,
			Close:  c,
			Volume: 100,
		}
	}
	return out
}

// goldenCrossOnLastBar: 24 flat days then a jump, so SMA5 crosses SMA20 on
// the final bar.
func goldenCrossOnLastBar() []model.PriceBar {
	closes := make([]float64, 25)
	for i := range closes {
		closes[i] = 100
	}
	closes[24] = 150
	return barsFromCloses(closes...)
}

type fixture struct {
	svc      *Service
	store    *memStore
	fetcher  *fakeFetcher
	cache    *memCache
	notifier *recordingNotifier
	pub      *recordingPublisher
}

func newFixture(t *testing.T, defaults indicator.Params) *fixture {
	t.Helper()
	f := &fixture{
		store:    newMemStore(),
		fetcher:  &fakeFetcher{bars: map[string][]model.PriceBar{}},
		cache:    newMemCache(),
		notifier: &recordingNotifier{},
		pub:      &recordingPublisher{},
	}
	svc, err := New(Options{
		Store:     f.store,
		Cache:     f.cache,
		Fetcher:   f.fetcher,
		Notifier:  f.notifier,
		Publisher: f.pub,
		Defaults:  defaults,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.svc = svc
	return f
}

// ────────────────────────────────────────────────────────────
// History / lazy ingestion
// ────────────────────────────────────────────────────────────

func TestHistory_LazyIngestion(t *testing.T) {
	f := newFixture(t, indicator.DefaultParams())
	f.fetcher.bars["NVDA"] = []model.PriceBar{
		{Time: "2024-01-03T00:00:00Z", Open: 2, High: 2, Low: 2, Close: 2},
		{Time: "2024-01-02T00:00:00Z", Open: 1, High: 1, Low: 1, Close: 1},
		{Time: "2024-01-03", Open: 3, High: 3, Low: 3, Close: 3},
	}

	h, err := f.svc.History(context.Background(), " nvda ")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if h.Symbol != "NVDA" || h.CompanyName != "NVDA Inc." {
		t.Errorf("unexpected header: %+v", h)
	}
	if len(h.Data) != 2 || h.Data[0].Time != "2024-01-02" || h.Data[1].Close != 3 {
		t.Errorf("expected normalized, deduped (keep-last) bars, got %+v", h.Data)
	}

	if _, err := f.svc.History(context.Background(), "NVDA"); err != nil {
		t.Fatal(err)
	}
	if f.fetcher.calls != 1 {
		t.Errorf("stored symbol must not be re-fetched, got %d fetches", f.fetcher.calls)
	}
}

// gatedFetcher blocks every fetch until release is closed.
type gatedFetcher struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once

	mu     sync.Mutex
	calls  int
	ctxErr error
}

func (g *gatedFetcher) FetchDailyBars(ctx context.Context, symbol, _ string) ([]model.PriceBar, error) {
	g.mu.Lock()
	g.calls++
	g.mu.Unlock()
	g.once.Do(func() { close(g.started) })

	select {
	case <-g.release:
	case <-ctx.Done():
	}
	g.mu.Lock()
	g.ctxErr = ctx.Err()
	g.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []model.PriceBar{
		{Time: "2024-01-02", Open: 1, High: 1, Low: 1, Close: 1},
		{Time: "2024-01-03", Open: 2, High: 2, Low: 2, Close: 2},
	}, nil
}

func (g *gatedFetcher) FetchCompanyName(_ context.Context, symbol string) (string, error) {
	return symbol, nil
}

func TestHistory_SharedIngestionSurvivesCallerCancel(t *testing.T) {
	g := &gatedFetcher{started: make(chan struct{}), release: make(chan struct{})}
	svc, err := New(Options{Store: newMemStore(), Fetcher: g})
	if err != nil {
		t.Fatal(err)
	}

	reqCtx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := svc.History(reqCtx, "AMD")
		first <- err
	}()
	<-g.started

	second := make(chan error, 1)
	go func() {
		_, err := svc.History(context.Background(), "AMD")
		second <- err
	}()

	cancel()
	time.Sleep(50 * time.Millisecond)
	close(g.release)

	if err := <-second; err != nil {
		t.Fatalf("waiting caller failed after the first caller went away: %v", err)
	}
	<-first

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ctxErr != nil {
		t.Errorf("ingestion context was cancelled: %v", g.ctxErr)
	}
	if g.calls != 1 {
		t.Errorf("expected one shared fetch, got %d", g.calls)
	}
}

func TestHistory_UnknownSymbol(t *testing.T) {
	f := newFixture(t, indicator.DefaultParams())
	_, err := f.svc.History(context.Background(), "ZZZZ")
	if !errors.Is(err, ErrUnknownSymbol) {
		t.Errorf("expected ErrUnknownSymbol, got %v", err)
	}
}

func TestHistory_NoFetcher(t *testing.T) {
	svc, err := New(Options{Store: newMemStore()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.History(context.Background(), "AAPL"); !errors.Is(err, ErrUnknownSymbol) {
		t.Errorf("expected ErrUnknownSymbol, got %v", err)
	}
	if _, err := svc.Refresh(context.Background(), "AAPL"); !errors.Is(err, ErrNoFetcher) {
		t.Errorf("expected ErrNoFetcher, got %v", err)
	}
}

func TestHistory_CompanyFallsBackToSymbol(t *testing.T) {
	f := newFixture(t, indicator.DefaultParams())
	f.store.WriteBars(context.Background(), "MSFT", barsFromCloses(1, 2, 3))

	h, err := f.svc.History(context.Background(), "msft")
	if err != nil {
		t.Fatal(err)
	}
	if h.CompanyName != "MSFT" {
		t.Errorf("expected symbol fallback, got %q", h.CompanyName)
	}
}

// ────────────────────────────────────────────────────────────
// Dashboard
// ────────────────────────────────────────────────────────────

func TestDashboard_ComputesThenCaches(t *testing.T) {
	f := newFixture(t, indicator.DefaultParams())
	f.store.WriteBars(context.Background(), "AAPL", barsFromCloses(make([]float64, 40)...))
	p := indicator.DefaultParams()

	d1, err := f.svc.Dashboard(context.Background(), "AAPL", p)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}
	if f.cache.sets != 1 {
		t.Fatalf("expected one cache write, got %d", f.cache.sets)
	}
	d2, err := f.svc.Dashboard(context.Background(), "aapl", p)
	if err != nil {
		t.Fatal(err)
	}
	if f.cache.sets != 1 {
		t.Errorf("second call should be served from cache")
	}
	if d1.Bars != 40 || d2.Bars != 40 || len(d2.SMALong) != len(d1.SMALong) {
		t.Errorf("cached dashboard differs: %d/%d", len(d1.SMALong), len(d2.SMALong))
	}
	if d2.Markers == nil {
		t.Error("markers must be present (possibly empty) when SMA is enabled")
	}
}

func TestDashboard_DisabledFamiliesAreNil(t *testing.T) {
	f := newFixture(t, indicator.DefaultParams())
	f.store.WriteBars(context.Background(), "AAPL", barsFromCloses(1, 2, 3))
	p := indicator.DefaultParams()
	p.EnableSMA, p.EnableMACD = false, false

	d, err := f.svc.Dashboard(context.Background(), "AAPL", p)
	if err != nil {
		t.Fatal(err)
	}
	if d.SMAShort != nil || d.MACD != nil || d.Markers != nil {
		t.Errorf("disabled families must be nil: %+v", d)
	}
	if d.RSI == nil || len(d.RSI) != 0 {
		t.Errorf("enabled RSI with short history must be empty, got %#v", d.RSI)
	}
}

func TestDashboard_InvalidParams(t *testing.T) {
	f := newFixture(t, indicator.DefaultParams())
	p := indicator.DefaultParams()
	p.SMAShort = 0

	_, err := f.svc.Dashboard(context.Background(), "AAPL", p)
	var pe *indicator.ParamError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParamError, got %v", err)
	}
}

func TestDashboard_CacheFailureFallsThrough(t *testing.T) {
	f := newFixture(t, indicator.DefaultParams())
	f.cache.failing = true
	f.store.WriteBars(context.Background(), "AAPL", barsFromCloses(1, 2, 3, 4, 5, 6))

	d, err := f.svc.Dashboard(context.Background(), "AAPL", indicator.DefaultParams())
	if err != nil {
		t.Fatalf("cache outage must not fail the request: %v", err)
	}
	if len(d.SMAShort) != 2 {
		t.Errorf("expected 2 SMA5 points, got %d", len(d.SMAShort))
	}
}

// ────────────────────────────────────────────────────────────
// Refresh
// ────────────────────────────────────────────────────────────

func TestRefresh_InvalidatesPushesAndAlertsOnce(t *testing.T) {
	defaults := indicator.DefaultParams()
	defaults.EnableRSI = false
	f := newFixture(t, defaults)
	f.fetcher.bars["TSLA"] = goldenCrossOnLastBar()
	ctx := context.Background()

	f.store.WriteBars(ctx, "TSLA", barsFromCloses(1, 2, 3))
	if _, err := f.svc.Dashboard(ctx, "TSLA", defaults); err != nil {
		t.Fatal(err)
	}

	res, err := f.svc.Refresh(ctx, "tsla")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if res.Bars != 25 || res.Last != "2024-01-25" {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.Alert == nil || res.Alert.Direction != model.Buy || res.Alert.Reason != model.ReasonGoldenCross {
		t.Fatalf("expected golden-cross alert, got %+v", res.Alert)
	}
	if len(f.notifier.alerts) != 1 || f.notifier.alerts[0].Symbol != "TSLA" {
		t.Errorf("expected one alert, got %+v", f.notifier.alerts)
	}
	if len(f.pub.events) != 1 || f.pub.events[0] != "dashboard:TSLA" {
		t.Errorf("expected dashboard push, got %v", f.pub.events)
	}

	d, err := f.svc.Dashboard(ctx, "TSLA", defaults)
	if err != nil {
		t.Fatal(err)
	}
	if d.Bars != 25 {
		t.Errorf("stale cache served after refresh: %d bars", d.Bars)
	}

	if _, err := f.svc.Refresh(ctx, "TSLA"); err != nil {
		t.Fatal(err)
	}
	if len(f.notifier.alerts) != 1 {
		t.Errorf("same-day marker must alert once, got %d", len(f.notifier.alerts))
	}
}

func TestRefresh_RejectsInvalidData(t *testing.T) {
	f := newFixture(t, indicator.DefaultParams())
	f.fetcher.bars["BAD"] = []model.PriceBar{
		{Time: "2024-01-02", Close: 1},
		{Time: "2024-01-03", Close: math.NaN()},
	}

	_, err := f.svc.Refresh(context.Background(), "BAD")
	var ve *series.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if !errors.Is(err, ErrBadSourceData) {
		t.Errorf("expected ErrBadSourceData, got %v", err)
	}
	if f.store.writes != 0 {
		t.Error("invalid data must not be written")
	}
}

func TestPrepare(t *testing.T) {
	bars, err := Prepare([]model.PriceBar{
		{Time: "2024-01-04 00:00:00", Close: 4},
		{Time: "2024-01-02", Close: 2},
		{Time: "2024-01-04", Close: 5},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(bars) != 2 || bars[0].Time != "2024-01-02" || bars[1].Close != 5 {
		t.Errorf("unexpected prepared bars %+v", bars)
	}
}

// ────────────────────────────────────────────────────────────
// Signals / Backtest
// ────────────────────────────────────────────────────────────

func TestSignals(t *testing.T) {
	f := newFixture(t, indicator.DefaultParams())
	f.store.WriteBars(context.Background(), "TSLA", goldenCrossOnLastBar())
	p := indicator.DefaultParams()
	p.EnableRSI = false

	markers, err := f.svc.Signals(context.Background(), "TSLA", p)
	if err != nil {
		t.Fatal(err)
	}
	if len(markers) != 1 || markers[0].Time != "2024-01-25" {
		t.Errorf("unexpected markers %+v", markers)
	}
}

func TestBacktest(t *testing.T) {
	f := newFixture(t, indicator.DefaultParams())
	f.store.WriteBars(context.Background(), "TSLA", goldenCrossOnLastBar())

	res, err := f.svc.Backtest(context.Background(), "tsla", backtest.DefaultParams())
	if err != nil {
		t.Fatalf("Backtest: %v", err)
	}
	if res.Ticker != "TSLA" || len(res.Results) != 25 {
		t.Errorf("unexpected result: ticker=%s points=%d", res.Ticker, len(res.Results))
	}

	if _, err := f.svc.Backtest(context.Background(), "NOPE", backtest.DefaultParams()); !errors.Is(err, ErrUnknownSymbol) {
		t.Errorf("expected ErrUnknownSymbol, got %v", err)
	}
}

func TestNew_RequiresStore(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("expected error without a store")
	}
	p := indicator.DefaultParams()
	p.SMALong = 1
	if _, err := New(Options{Store: newMemStore(), Defaults: p}); err == nil {
		t.Error("expected error for invalid defaults")
	}
}

// ────────────────────────────────────────────────────────────
// Staleness
// ────────────────────────────────────────────────────────────

type fixedSessions string

func (f fixedSessions) LastSessionKey(string, time.Time) string { return string(f) }

func TestBars_StaleDataRefreshesInBackground(t *testing.T) {
	store := newMemStore()
	fetcher := &fakeFetcher{bars: map[string][]model.PriceBar{"AAPL": barsFromCloses(1, 2, 3, 4, 5)}}
	svc, err := New(Options{Store: store, Fetcher: fetcher, Sessions: fixedSessions("2024-01-05")})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	store.WriteBars(ctx, "AAPL", barsFromCloses(1, 2))

	h, err := svc.History(ctx, "AAPL")
	if err != nil {
		t.Fatal(err)
	}
	if len(h.Data) != 2 {
		t.Errorf("stale data must be served immediately, got %d bars", len(h.Data))
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		bars, _ := store.ReadBars(ctx, "AAPL")
		if len(bars) == 5 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("background refresh did not land, have %d bars", len(bars))
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := svc.History(ctx, "AAPL"); err != nil {
		t.Fatal(err)
	}
	fetcher.mu.Lock()
	calls := fetcher.calls
	fetcher.mu.Unlock()
	if calls != 1 {
		t.Errorf("fresh data must not trigger another fetch, got %d", calls)
	}
}

func TestStale_RetryWindow(t *testing.T) {
	svc, err := New(Options{Store: newMemStore(), Fetcher: &fakeFetcher{}, Sessions: fixedSessions("2024-01-10")})
	if err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 1, 11, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	if !svc.stale("AAPL", "2024-01-05") {
		t.Fatal("expected stale")
	}
	if svc.stale("AAPL", "2024-01-05") {
		t.Error("second check inside the retry window must not refresh again")
	}
	now = now.Add(svc.staleRetry)
	if !svc.stale("AAPL", "2024-01-05") {
		t.Error("expected a retry after the window")
	}
	if svc.stale("AAPL", "2024-01-10") {
		t.Error("up-to-date data is never stale")
	}
}
