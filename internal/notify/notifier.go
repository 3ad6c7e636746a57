// Package notify turns ranked opportunities into a periodic summary and
// delivers it through outbound messaging channels.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"fundingflow/config"
	"fundingflow/logger"
	"fundingflow/models"
)

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers a Markdown formatted message.
	Send(ctx context.Context, text string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// Throttle sends at most one summary per cooldown window and only when there
// is something to report.
type Throttle struct {
	senders      []Sender
	cooldown     time.Duration
	topN         int
	dashboardURL string

	mu       sync.Mutex
	lastSent time.Time
	now      func() time.Time
	log      *logger.Log
}

func NewThrottle(cfg config.AlertConfig, senders ...Sender) *Throttle {
	topN := cfg.TopN
	if topN <= 0 {
		topN = 10
	}
	return &Throttle{
		senders:      senders,
		cooldown:     cfg.Cooldown,
		topN:         topN,
		dashboardURL: cfg.DashboardURL,
		now:          time.Now,
		log:          logger.GetLogger(),
	}
}

// Process formats and dispatches a summary when opps is non-empty and the
// cooldown has elapsed. The cooldown restarts after every send attempt,
// successful or not, so a broken channel is not retried every cycle.
func (t *Throttle) Process(ctx context.Context, opps []models.Opportunity) error {
	if len(opps) == 0 {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().UTC()
	if !t.lastSent.IsZero() && now.Sub(t.lastSent) < t.cooldown {
		return nil
	}

	msg := Format(opps, now, t.topN, t.dashboardURL)
	err := t.dispatch(ctx, msg)
	t.lastSent = now
	return err
}

func (t *Throttle) dispatch(ctx context.Context, msg string) error {
	log := t.log.WithComponent("notifier")
	var errs []error
	for _, s := range t.senders {
		if err := s.Send(ctx, msg); err != nil {
			log.WithError(err).WithField("sender", s.Name()).Error("sender failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		log.WithField("sender", s.Name()).Debug("notification sent")
	}
	return errors.Join(errs...)
}

var medals = []string{"🥇", "🥈", "🥉"}

// Format renders the top-n summary. opps must already be ranked.
func Format(opps []models.Opportunity, now time.Time, n int, dashboardURL string) string {
	if n > len(opps) {
		n = len(opps)
	}

	var b strings.Builder
	b.WriteString("⚡ *ARB SIGNAL DETECTED* ⚡\n")
	b.WriteString("───────────────────\n")
	fmt.Fprintf(&b, "🕒 `%s`\n", now.UTC().Format("15:04 UTC"))
	fmt.Fprintf(&b, "💎 Best Spread: `+%.4f%%`\n", opps[0].SpreadPercent)
	fmt.Fprintf(&b, "📊 Opportunities: `%d`\n\n", len(opps))
	fmt.Fprintf(&b, "*🏆 TOP %d PER ROUND (8H)*\n", n)

	for i, o := range opps[:n] {
		rank := fmt.Sprintf("#%d", i+1)
		if i < len(medals) {
			rank = medals[i]
		}
		fmt.Fprintf(&b, "\n%s *%s* │ `+%.4f%%`\n", rank, o.Symbol, o.SpreadPercent)
		fmt.Fprintf(&b, "       L: %s (`%+.4f%%`)\n", o.LongExchange, o.LongRatePercent)
		fmt.Fprintf(&b, "       S: %s (`%+.4f%%`)\n", o.ShortExchange, o.ShortRatePercent)
	}

	if dashboardURL != "" {
		b.WriteString("\n───────────────────\n")
		fmt.Fprintf(&b, "🖥️ [Live Command Center](%s)", dashboardURL)
	}
	return b.String()
}
