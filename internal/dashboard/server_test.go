package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fundingflow/config"
	"fundingflow/internal/metrics"
	"fundingflow/logger"
	"fundingflow/models"
)

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		"":                               "0.0.0.0:5000",
		"  :9090  ":                      "0.0.0.0:9090",
		"localhost":                      "localhost:5000",
		"0.0.0.0:80":                     "0.0.0.0:80",
		"[::1]:443":                      "[::1]:443",
		"::1":                            "[::1]:5000",
		"*:8080":                         "0.0.0.0:8080",
		"http://13.200.112.203:8080":     "13.200.112.203:8080",
		"https://13.200.112.203":         "13.200.112.203:5000",
		"http://:7070":                   "0.0.0.0:7070",
		"https://dashboard.example.com/": "dashboard.example.com:5000",
	}

	for input, want := range cases {
		if got := normalizeAddress(input); got != want {
			t.Fatalf("normalizeAddress(%q) = %q, want %q", input, got, want)
		}
	}
}

func newTestServer(t *testing.T) (*Server, *Store) {
	t.Helper()
	store := NewStore()
	srv, err := NewServer(config.DashboardConfig{Enabled: true, Address: ":9000", MetricsHistory: 10, LogHistory: 10}, logger.Logger(), store, nil)
	if err != nil {
		t.Fatalf("NewServer returned error: %v", err)
	}
	if srv == nil {
		t.Fatal("expected dashboard server, got nil")
	}
	t.Cleanup(srv.cleanup)
	return srv, store
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	router, err := srv.buildRouter()
	if err != nil {
		t.Fatalf("buildRouter error: %v", err)
	}
	res := httptest.NewRecorder()
	router.ServeHTTP(res, httptest.NewRequest(http.MethodGet, path, nil))
	if res.Code != http.StatusOK {
		t.Fatalf("GET %s: unexpected status %d", path, res.Code)
	}
	return res
}

func TestNewServerDisabled(t *testing.T) {
	srv, err := NewServer(config.DashboardConfig{Enabled: false}, logger.Logger(), NewStore(), nil)
	if err != nil || srv != nil {
		t.Fatalf("expected nil server for disabled dashboard, got %v %v", srv, err)
	}
}

func TestNewServerNormalizesConfiguredAddress(t *testing.T) {
	srv, _ := newTestServer(t)
	if got := srv.Address(); got != "0.0.0.0:9000" {
		t.Fatalf("server address = %q, want %q", got, "0.0.0.0:9000")
	}
}

func TestDataEndpointServesLatestSnapshot(t *testing.T) {
	srv, store := newTestServer(t)

	res := get(t, srv, "/api/data")
	var initial models.Snapshot
	if err := json.Unmarshal(res.Body.Bytes(), &initial); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if initial.Metadata.TopLongExchange != models.ExchangeAnalyzing {
		t.Fatalf("expected placeholder before first cycle, got %+v", initial.Metadata)
	}

	store.Publish(context.Background(), models.Snapshot{
		CycleID:       "c1",
		Opportunities: []models.Opportunity{{Symbol: "BTCUSDT", SpreadPercent: 0.04, LongExchange: "Bybit", ShortExchange: "OKX", AnnualizedSpreadPercent: 43.8}},
		Metadata:      models.SnapshotMetadata{TotalPairsScanned: 1, TopLongExchange: "Bybit", TopShortExchange: "OKX"},
	})

	res = get(t, srv, "/api/data")
	body := res.Body.String()
	for _, want := range []string{`"opportunities":[{"symbol":"BTCUSDT"`, `"long_exchange":"Bybit"`, `"metadata":{`, `"total_pairs_scanned":1`} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %s in %s", want, body)
		}
	}
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	srv, _ := newTestServer(t)

	if body := get(t, srv, "/healthz").Body.String(); !strings.Contains(body, `"status":"ok"`) {
		t.Fatalf("unexpected health body: %s", body)
	}
	if body := get(t, srv, "/metrics").Body.String(); !strings.Contains(body, "go_goroutines") {
		t.Fatalf("prometheus output missing runtime collectors")
	}
}

func TestMetricsEndpointEmitsStoredMetrics(t *testing.T) {
	srv, _ := newTestServer(t)

	metrics.EmitMetric(logger.Logger(), "fetch", "source_records", 5, "gauge", logger.Fields{"exchange": "okx"})

	body := get(t, srv, "/api/metrics").Body.String()
	if !strings.Contains(body, "source_records") {
		t.Fatalf("metric not exposed: %s", body)
	}
}

func TestLogsEndpointKeepsWarnings(t *testing.T) {
	srv, _ := newTestServer(t)

	srv.log.WithComponent("fetcher").Info("routine")
	srv.log.WithComponent("fetcher").Warn("source degraded")

	body := get(t, srv, "/api/logs").Body.String()
	if !strings.Contains(body, "source degraded") || strings.Contains(body, "routine") {
		t.Fatalf("unexpected logs payload: %s", body)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	store := NewStore()
	srv, err := NewServer(config.DashboardConfig{Enabled: true, Address: "127.0.0.1:0", SampleInterval: 10 * time.Millisecond}, logger.Logger(), store, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestStorePublishIsolatesCallers(t *testing.T) {
	store := NewStore()
	snap := models.Snapshot{Opportunities: []models.Opportunity{{Symbol: "BTCUSDT"}}}
	store.Publish(context.Background(), snap)
	snap.Opportunities[0].Symbol = "MUTATED"

	got := store.Latest()
	if got.Opportunities[0].Symbol != "BTCUSDT" {
		t.Fatalf("store shares memory with publisher")
	}
	got.Opportunities[0].Symbol = "CHANGED"
	if store.Latest().Opportunities[0].Symbol != "BTCUSDT" {
		t.Fatalf("store shares memory with reader")
	}
}

func TestStoreConcurrentReaders(t *testing.T) {
	store := NewStore()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			store.Publish(context.Background(), models.Snapshot{
				CycleID:       "c",
				Opportunities: make([]models.Opportunity, i%5),
				Metadata:      models.SnapshotMetadata{Count: i % 5},
			})
		}
	}()
	for i := 0; i < 200; i++ {
		snap := store.Latest()
		if snap.CycleID != "" && snap.Metadata.Count != len(snap.Opportunities) {
			t.Fatalf("torn snapshot: count %d with %d opportunities", snap.Metadata.Count, len(snap.Opportunities))
		}
	}
	<-done
}
