package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"fundingflow/config"
	"fundingflow/models"
)

type recordingSender struct {
	name     string
	messages []string
	err      error
}

func (r *recordingSender) Send(ctx context.Context, text string) error {
	r.messages = append(r.messages, text)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func opportunities(n int) []models.Opportunity {
	out := make([]models.Opportunity, n)
	for i := range out {
		out[i] = models.Opportunity{
			Symbol:           "SYM" + string(rune('A'+i)) + "USDT",
			SpreadPercent:    0.1 - float64(i)*0.001,
			LongExchange:     "Bybit",
			LongRatePercent:  -0.05,
			ShortExchange:    "OKX",
			ShortRatePercent: 0.05,
		}
	}
	return out
}

func newTestThrottle(cfg config.AlertConfig, senders ...Sender) (*Throttle, *time.Time) {
	th := NewThrottle(cfg, senders...)
	clock := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	th.now = func() time.Time { return clock }
	return th, &clock
}

func TestThrottleSkipsEmpty(t *testing.T) {
	s := &recordingSender{name: "rec"}
	th, _ := newTestThrottle(config.AlertConfig{Cooldown: time.Hour, TopN: 10}, s)
	if err := th.Process(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.messages) != 0 {
		t.Fatal("empty list must not alert")
	}
}

func TestThrottleCooldown(t *testing.T) {
	s := &recordingSender{name: "rec"}
	th, clock := newTestThrottle(config.AlertConfig{Cooldown: time.Hour, TopN: 10}, s)
	ctx := context.Background()

	th.Process(ctx, opportunities(2))
	*clock = clock.Add(59 * time.Minute)
	th.Process(ctx, opportunities(2))
	if len(s.messages) != 1 {
		t.Fatalf("expected one alert inside cooldown, got %d", len(s.messages))
	}

	*clock = clock.Add(2 * time.Minute)
	th.Process(ctx, opportunities(2))
	if len(s.messages) != 2 {
		t.Fatalf("expected alert after cooldown, got %d", len(s.messages))
	}
}

func TestThrottleFailureStillStartsCooldown(t *testing.T) {
	failing := &recordingSender{name: "bad", err: errors.New("boom")}
	ok := &recordingSender{name: "good"}
	th, _ := newTestThrottle(config.AlertConfig{Cooldown: time.Hour, TopN: 10}, failing, ok)

	err := th.Process(context.Background(), opportunities(1))
	if err == nil || !strings.Contains(err.Error(), "bad") {
		t.Fatalf("expected sender error, got %v", err)
	}
	if len(ok.messages) != 1 {
		t.Fatal("healthy sender skipped after failing one")
	}
	th.Process(context.Background(), opportunities(1))
	if len(failing.messages) != 1 {
		t.Fatal("failed send retried inside cooldown")
	}
}

func TestFormat(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	msg := Format(opportunities(12), now, 10, "https://example.com/dash")

	for _, want := range []string{
		"`09:30 UTC`",
		"Best Spread: `+0.1000%`",
		"Opportunities: `12`",
		"TOP 10 PER ROUND",
		"🥇 *SYMAUSDT* │ `+0.1000%`",
		"🥈 *SYMBUSDT*",
		"🥉 *SYMCUSDT*",
		"#4 *SYMDUSDT*",
		"L: Bybit (`-0.0500%`)",
		"S: OKX (`+0.0500%`)",
		"[Live Command Center](https://example.com/dash)",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "SYMKUSDT") {
		t.Error("message exceeds top-n")
	}

	if short := Format(opportunities(2), now, 10, ""); strings.Contains(short, "Command Center") || !strings.Contains(short, "TOP 2") {
		t.Errorf("unexpected short message:\n%s", short)
	}
}

func TestTelegramSenderUnconfigured(t *testing.T) {
	s := NewTelegramSender(config.AlertConfig{ChatIDs: []string{"1"}}, nil)
	if s.Configured() {
		t.Fatal("sender without token reports configured")
	}
	if err := s.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("unconfigured sender must be a no-op, got %v", err)
	}
}

func TestTelegramSenderDeliversToEveryChat(t *testing.T) {
	var mu sync.Mutex
	var got []map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/botTOKEN/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var payload map[string]interface{}
		json.NewDecoder(r.Body).Decode(&payload)
		mu.Lock()
		got = append(got, payload)
		mu.Unlock()
		if payload["chat_id"] == "2" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewTelegramSender(config.AlertConfig{
		TelegramURL:       srv.URL + "/",
		TelegramToken:     "TOKEN",
		ChatIDs:           []string{"1", "2", "3"},
		MessagesPerSecond: 1000,
	}, srv.Client())

	err := s.Send(context.Background(), "*hello*")
	if err == nil || !strings.Contains(err.Error(), "chat 2") {
		t.Fatalf("expected failure for chat 2, got %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 {
		t.Fatalf("expected 3 deliveries, got %d", len(got))
	}
	if got[2]["chat_id"] != "3" || got[0]["parse_mode"] != "Markdown" || got[0]["disable_web_page_preview"] != true {
		t.Fatalf("unexpected payloads: %v", got)
	}
}

func TestTelegramErrorsHideToken(t *testing.T) {
	s := NewTelegramSender(config.AlertConfig{
		TelegramURL:       "http://127.0.0.1:1",
		TelegramToken:     "SECRET",
		ChatIDs:           []string{"1"},
		MessagesPerSecond: 1000,
	}, nil)
	err := s.Send(context.Background(), "x")
	if err == nil {
		t.Fatal("expected connection error")
	}
	if strings.Contains(err.Error(), "SECRET") {
		t.Fatalf("error leaks token: %v", err)
	}
}
