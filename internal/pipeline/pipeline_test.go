package pipeline

import (
	"context"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"fundingflow/config"
	"fundingflow/models"
	"fundingflow/reader"
)

type staticSource struct {
	name  string
	rates []models.FundingRate
	err   error
}

func (s *staticSource) Name() string { return s.name }

func (s *staticSource) Fetch(ctx context.Context) ([]models.FundingRate, error) {
	return s.rates, s.err
}

// stuckSource ignores its context until release is closed.
type stuckSource struct {
	name    string
	release chan struct{}
}

func (s *stuckSource) Name() string { return s.name }

func (s *stuckSource) Fetch(ctx context.Context) ([]models.FundingRate, error) {
	<-s.release
	return []models.FundingRate{fundingRate(s.name, "BTCUSDT", 1)}, nil
}

type panicSource struct{}

func (panicSource) Name() string { return "Broken" }

func (panicSource) Fetch(ctx context.Context) ([]models.FundingRate, error) {
	panic("boom")
}

func fundingRate(exchange, symbol string, pct float64) models.FundingRate {
	return models.FundingRate{Exchange: exchange, Symbol: symbol, RatePercent: pct}
}

type recordingPublisher struct {
	mu    sync.Mutex
	snaps []models.Snapshot
	err   error
	seen  chan struct{}
}

func (p *recordingPublisher) Publish(ctx context.Context, snap models.Snapshot) error {
	p.mu.Lock()
	p.snaps = append(p.snaps, snap)
	p.mu.Unlock()
	if p.seen != nil {
		select {
		case p.seen <- struct{}{}:
		default:
		}
	}
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snaps)
}

type recordingAlerter struct {
	calls int
	last  []models.Opportunity
}

func (a *recordingAlerter) Process(ctx context.Context, opps []models.Opportunity) error {
	a.calls++
	a.last = opps
	return nil
}

func TestFetchAllIsolatesFailures(t *testing.T) {
	malformed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"retCode":0,"result":{"list":[`)
	}))
	t.Cleanup(malformed.Close)

	stuck := &stuckSource{name: "Slow", release: make(chan struct{})}
	t.Cleanup(func() { close(stuck.release) })

	client := reader.NewHTTPClient(time.Second, time.Second)
	sources := []reader.Source{
		&staticSource{name: "Alpha", rates: []models.FundingRate{fundingRate("Alpha", "BTCUSDT", -0.01)}},
		stuck,
		reader.NewBybit(client, config.SourceConfig{URL: malformed.URL}),
		&staticSource{name: "Beta", rates: []models.FundingRate{fundingRate("Beta", "BTCUSDT", 0.03)}},
	}
	coord := NewCoordinator(sources, 100*time.Millisecond)

	start := time.Now()
	rates, reports := coord.FetchAll(context.Background())
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("stuck source delayed the cycle: %v", elapsed)
	}

	if len(rates) != 2 {
		t.Fatalf("expected 2 rates, got %+v", rates)
	}
	wantStatus := []string{"1", "ERR", "ERR", "1"}
	for i, r := range reports {
		if r.Exchange != sources[i].Name() {
			t.Fatalf("report %d is %s, want %s", i, r.Exchange, sources[i].Name())
		}
		if r.Status() != wantStatus[i] {
			t.Errorf("%s status = %s, want %s", r.Exchange, r.Status(), wantStatus[i])
		}
	}
	if !strings.Contains(reports[1].Err, "deadline") {
		t.Errorf("expected timeout error for stuck source, got %q", reports[1].Err)
	}

	pub := &recordingPublisher{}
	sched := NewScheduler(&fixedFetcher{rates: rates, reports: reports}, time.Second, 0.025, nil, pub)
	snap := sched.RunOnce(context.Background())
	if len(snap.Opportunities) != 1 {
		t.Fatalf("expected one opportunity, got %+v", snap.Opportunities)
	}
	o := snap.Opportunities[0]
	if o.LongExchange != "Alpha" || o.ShortExchange != "Beta" {
		t.Fatalf("unexpected legs: %+v", o)
	}
}

func TestFetchAllOrderAndTimestamp(t *testing.T) {
	sources := []reader.Source{
		&staticSource{name: "Zeta", rates: []models.FundingRate{fundingRate("Zeta", "ETHUSDT", 0.1), fundingRate("Zeta", "BTCUSDT", 0.2)}},
		&staticSource{name: "Alpha", rates: []models.FundingRate{fundingRate("Alpha", "SOLUSDT", 0.3)}},
		&staticSource{name: "Down", err: errors.New("unexpected status 502"), rates: []models.FundingRate{fundingRate("Down", "BTCUSDT", 9)}},
	}
	coord := NewCoordinator(sources, time.Second)
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	coord.now = func() time.Time { return fixed }

	rates, reports := coord.FetchAll(context.Background())

	var got []string
	for _, r := range rates {
		got = append(got, r.Exchange+"/"+r.Symbol)
		if !r.ObservedAt.Equal(fixed) {
			t.Fatalf("record %s/%s has timestamp %v", r.Exchange, r.Symbol, r.ObservedAt)
		}
	}
	if strings.Join(got, ",") != "Zeta/ETHUSDT,Zeta/BTCUSDT,Alpha/SOLUSDT" {
		t.Fatalf("unexpected order: %v", got)
	}
	if reports[2].Count != 0 || !reports[2].Failed() {
		t.Fatalf("failed source must contribute nothing: %+v", reports[2])
	}
}

func TestFetchAllRecoversPanics(t *testing.T) {
	coord := NewCoordinator([]reader.Source{panicSource{}, &staticSource{name: "Ok", rates: []models.FundingRate{fundingRate("Ok", "BTCUSDT", 0)}}}, time.Second)
	rates, reports := coord.FetchAll(context.Background())
	if len(rates) != 1 {
		t.Fatalf("expected healthy source rates, got %+v", rates)
	}
	if !strings.Contains(reports[0].Err, "panic") {
		t.Fatalf("expected panic report, got %+v", reports[0])
	}
}

type fixedFetcher struct {
	rates   []models.FundingRate
	reports []models.SourceReport
	calls   int
	mu      sync.Mutex
	active  int
	overlap bool
	delay   time.Duration
}

func (f *fixedFetcher) FetchAll(ctx context.Context) ([]models.FundingRate, []models.SourceReport) {
	f.mu.Lock()
	f.calls++
	f.active++
	if f.active > 1 {
		f.overlap = true
	}
	f.mu.Unlock()

	time.Sleep(f.delay)

	f.mu.Lock()
	f.active--
	f.mu.Unlock()
	return f.rates, f.reports
}

func TestRunOncePublishesToAll(t *testing.T) {
	fetcher := &fixedFetcher{
		rates: []models.FundingRate{
			fundingRate("Alpha", "BTCUSDT", -0.01),
			fundingRate("Beta", "BTCUSDT", 0.03),
			fundingRate("Alpha", "ETHUSDT", 0.01),
		},
		reports: []models.SourceReport{{Exchange: "Alpha", Count: 2}, {Exchange: "Beta", Count: 1}},
	}
	failing := &recordingPublisher{err: errors.New("redis down")}
	store := &recordingPublisher{}
	alerter := &recordingAlerter{}
	sched := NewScheduler(fetcher, time.Second, 0.025, alerter, failing, store)

	snap := sched.RunOnce(context.Background())

	if failing.count() != 1 || store.count() != 1 {
		t.Fatalf("every publisher must see the snapshot: %d %d", failing.count(), store.count())
	}
	if alerter.calls != 1 || len(alerter.last) != 1 {
		t.Fatalf("alerter not called with opportunities: %+v", alerter)
	}
	if snap.CycleID == "" || snap.Metadata.TotalPairsScanned != 2 || snap.Metadata.ContributingExchanges != 2 {
		t.Fatalf("unexpected snapshot metadata: %+v", snap)
	}
	if sched.State() != StateIdle {
		t.Fatalf("state after cycle = %v", sched.State())
	}
}

func TestRunOnceEmptyCycleStillPublishes(t *testing.T) {
	pub := &recordingPublisher{}
	sched := NewScheduler(&fixedFetcher{}, time.Second, 0.025, nil, pub)
	snap := sched.RunOnce(context.Background())
	if pub.count() != 1 {
		t.Fatalf("empty cycle not published")
	}
	if len(snap.Opportunities) != 0 || snap.Metadata.TopLongExchange != models.ExchangeNone {
		t.Fatalf("unexpected empty snapshot: %+v", snap)
	}
}

func TestRunLoopsUntilCancelled(t *testing.T) {
	fetcher := &fixedFetcher{delay: 5 * time.Millisecond}
	pub := &recordingPublisher{seen: make(chan struct{}, 1)}
	sched := NewScheduler(fetcher, 10*time.Millisecond, 0.025, nil, pub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for pub.count() < 3 {
		select {
		case <-pub.seen:
		case <-deadline:
			t.Fatalf("only %d cycles completed", pub.count())
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()
	if fetcher.overlap {
		t.Fatal("cycles overlapped")
	}
}

func TestRunRejectsSecondStart(t *testing.T) {
	sched := NewScheduler(&fixedFetcher{}, time.Hour, 0.025, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	deadline := time.Now().Add(time.Second)
	for {
		sched.mu.Lock()
		running := sched.running
		sched.mu.Unlock()
		if running || time.Now().After(deadline) {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if err := sched.Run(ctx); err == nil {
		t.Fatal("expected error for concurrent Run")
	}
	cancel()
	<-done
}

// cancellingFetcher cancels the loop's context from inside the first cycle.
type cancellingFetcher struct {
	cancel context.CancelFunc
	delay  time.Duration
	mu     sync.Mutex
	calls  int
}

func (f *cancellingFetcher) FetchAll(ctx context.Context) ([]models.FundingRate, []models.SourceReport) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	f.cancel()
	time.Sleep(f.delay)
	return nil, nil
}

func TestRunStopsAfterCycleWhenCancelled(t *testing.T) {
	for i := 0; i < 50; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		fetcher := &cancellingFetcher{cancel: cancel, delay: 3 * time.Millisecond}
		pub := &recordingPublisher{}
		sched := NewScheduler(fetcher, time.Millisecond, 0.025, nil, pub)

		if err := sched.Run(ctx); err != nil {
			t.Fatalf("Run returned %v", err)
		}
		if fetcher.calls != 1 {
			t.Fatalf("iteration %d: %d cycles started, want 1", i, fetcher.calls)
		}
		if pub.count() != 1 {
			t.Fatalf("iteration %d: interrupted cycle was not published", i)
		}
	}
}

// timedFetcher records when each cycle's fetch begins.
type timedFetcher struct {
	delay  time.Duration
	mu     sync.Mutex
	starts []time.Time
	enough chan struct{}
	want   int
}

func (f *timedFetcher) FetchAll(ctx context.Context) ([]models.FundingRate, []models.SourceReport) {
	f.mu.Lock()
	f.starts = append(f.starts, time.Now())
	if len(f.starts) == f.want {
		close(f.enough)
	}
	f.mu.Unlock()
	time.Sleep(f.delay)
	return nil, nil
}

func runUntilStarts(t *testing.T, f *timedFetcher, interval time.Duration) []time.Time {
	t.Helper()
	sched := NewScheduler(f, interval, 0.025, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	select {
	case <-f.enough:
	case <-time.After(5 * time.Second):
		cancel()
		<-done
		t.Fatalf("fewer than %d cycles started", f.want)
	}
	cancel()
	<-done

	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.starts...)
}

func TestRunPacesCycleStarts(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		delay    time.Duration
		minGap   time.Duration
		maxGap   time.Duration
	}{
		// fast cycles wait out the rest of the interval
		{name: "fast cycle", interval: 60 * time.Millisecond, delay: 10 * time.Millisecond, minGap: 50 * time.Millisecond, maxGap: time.Second},
		// slow cycles start the next one without an extra wait
		{name: "slow cycle", interval: 5 * time.Millisecond, delay: 40 * time.Millisecond, minGap: 40 * time.Millisecond, maxGap: time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &timedFetcher{delay: tt.delay, enough: make(chan struct{}), want: 4}
			starts := runUntilStarts(t, f, tt.interval)
			for i := 1; i < 4; i++ {
				gap := starts[i].Sub(starts[i-1])
				if gap < tt.minGap || gap > tt.maxGap {
					t.Errorf("gap %d = %v, want between %v and %v", i, gap, tt.minGap, tt.maxGap)
				}
			}
		})
	}
}

func TestRunOnceSpreadAboveThreshold(t *testing.T) {
	sources := []reader.Source{
		&staticSource{name: "Alpha", rates: []models.FundingRate{fundingRate("Alpha", "BTCUSDT", -0.01)}},
		&staticSource{name: "Beta", rates: []models.FundingRate{fundingRate("Beta", "BTCUSDT", 0.03)}},
		&staticSource{name: "Gamma", rates: []models.FundingRate{fundingRate("Gamma", "ETHUSDT", 0.05)}},
	}
	pub := &recordingPublisher{}
	sched := NewScheduler(NewCoordinator(sources, time.Second), time.Second, 0.025, nil, pub)

	snap := sched.RunOnce(context.Background())

	if len(snap.Opportunities) != 1 {
		t.Fatalf("expected one opportunity, got %+v", snap.Opportunities)
	}
	o := snap.Opportunities[0]
	if o.Symbol != "BTCUSDT" || o.LongExchange != "Alpha" || o.ShortExchange != "Beta" {
		t.Fatalf("unexpected opportunity: %+v", o)
	}
	if math.Abs(o.SpreadPercent-0.04) > 1e-9 {
		t.Errorf("spread = %v, want 0.04", o.SpreadPercent)
	}
	if math.Abs(o.AnnualizedSpreadPercent-43.8) > 1e-6 {
		t.Errorf("annualized = %v, want 43.8", o.AnnualizedSpreadPercent)
	}
	if snap.Metadata.ContributingExchanges != 3 || snap.Metadata.TotalPairsScanned != 2 {
		t.Errorf("unexpected metadata: %+v", snap.Metadata)
	}
	if pub.count() != 1 {
		t.Fatalf("snapshot not published")
	}
}
