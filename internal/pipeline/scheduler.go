package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"fundingflow/internal/metrics"
	"fundingflow/logger"
	"fundingflow/models"
	"fundingflow/processor"
)

// State is the scheduler's position in the poll cycle.
type State int32

const (
	StateIdle State = iota
	StateFetching
)

func (s State) String() string {
	if s == StateFetching {
		return "fetching"
	}
	return "idle-waiting"
}

// Fetcher returns one cycle's rates and per-source reports.
type Fetcher interface {
	FetchAll(ctx context.Context) ([]models.FundingRate, []models.SourceReport)
}

// Publisher receives every completed snapshot.
type Publisher interface {
	Publish(ctx context.Context, snap models.Snapshot) error
}

// Alerter sees the ranked opportunities of every cycle and decides itself
// whether to notify.
type Alerter interface {
	Process(ctx context.Context, opps []models.Opportunity) error
}

// Scheduler drives fetch, detect and publish cycles at a fixed target
// interval. Cycles never overlap.
type Scheduler struct {
	fetcher    Fetcher
	publishers []Publisher
	alerter    Alerter
	interval   time.Duration
	minSpread  float64

	state   atomic.Int32
	mu      sync.Mutex
	running bool
	now     func() time.Time
	log     *logger.Log
}

// NewScheduler builds a scheduler. alerter may be nil.
func NewScheduler(fetcher Fetcher, interval time.Duration, minSpread float64, alerter Alerter, publishers ...Publisher) *Scheduler {
	return &Scheduler{
		fetcher:    fetcher,
		publishers: publishers,
		alerter:    alerter,
		interval:   interval,
		minSpread:  minSpread,
		now:        time.Now,
		log:        logger.GetLogger(),
	}
}

// State reports whether a cycle is in flight.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Run executes cycles until ctx is cancelled. A cycle that has started runs
// to the end of its publish step even if ctx is cancelled meanwhile.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	log := s.log.WithComponent("scheduler")
	log.WithFields(logger.Fields{
		"interval":   s.interval,
		"min_spread": s.minSpread,
		"publishers": len(s.publishers),
	}).Info("starting poll loop")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("poll loop stopped due to context cancellation")
			return nil
		case <-timer.C:
		}

		start := time.Now()
		s.RunOnce(ctx)
		if ctx.Err() != nil {
			log.Info("poll loop stopped after final cycle")
			return nil
		}

		elapsed := time.Since(start)
		wait := s.interval - elapsed
		if wait < 0 {
			log.WithFields(logger.Fields{
				"duration_ms": elapsed.Milliseconds(),
				"interval":    s.interval,
			}).Warn("cycle took longer than interval")
			wait = 0
		}
		timer.Reset(wait)
	}
}

// RunOnce executes exactly one cycle and returns the published snapshot.
func (s *Scheduler) RunOnce(ctx context.Context) models.Snapshot {
	ctx = context.WithoutCancel(ctx)
	log := s.log.WithComponent("scheduler")

	s.state.Store(int32(StateFetching))
	defer s.state.Store(int32(StateIdle))

	cycleID := uuid.NewString()
	start := time.Now()

	rates, reports := s.fetcher.FetchAll(ctx)
	opps := processor.Detect(rates, s.minSpread)
	latency := time.Since(start)

	snap := processor.BuildSnapshot(cycleID, rates, opps, reports, s.now().UTC(), latency)

	for _, p := range s.publishers {
		if err := p.Publish(ctx, snap.Clone()); err != nil {
			log.WithError(err).WithField("publisher", fmt.Sprintf("%T", p)).Warn("failed to publish snapshot")
		}
	}
	if s.alerter != nil {
		if err := s.alerter.Process(ctx, snap.Clone().Opportunities); err != nil {
			log.WithError(err).Warn("alert delivery failed")
		}
	}

	elapsed := time.Since(start)
	metrics.ObserveCycle(elapsed, opps)
	logger.PublishCycle(ctx, cycleSummary(elapsed, opps, reports))
	logger.IncrementCycle()
	logger.LogPerformanceEntry(log, "scheduler", "cycle", elapsed, nil)

	log.WithFields(logger.Fields{
		"cycle_id":      cycleID,
		"records":       len(rates),
		"pairs":         snap.Metadata.TotalPairsScanned,
		"opportunities": len(opps),
		"latency_ms":    snap.Metadata.LatencyMs,
	}).Info("cycle complete")

	return snap
}

func cycleSummary(elapsed time.Duration, opps []models.Opportunity, reports []models.SourceReport) logger.CycleSummary {
	summary := logger.CycleSummary{
		Duration:      elapsed,
		Opportunities: len(opps),
		Sources:       make([]logger.SourceOutcome, 0, len(reports)),
	}
	if len(opps) > 0 {
		summary.BestSpread = opps[0].SpreadPercent
	}
	for _, r := range reports {
		summary.Sources = append(summary.Sources, logger.SourceOutcome{Exchange: r.Exchange, Records: r.Count, Failed: r.Failed()})
	}
	return summary
}
