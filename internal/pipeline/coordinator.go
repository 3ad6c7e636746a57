package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"fundingflow/internal/metrics"
	"fundingflow/internal/metrics/rate"
	"fundingflow/logger"
	"fundingflow/models"
	"fundingflow/reader"
)

// Coordinator fans a cycle's fetch out to every source and joins the results.
type Coordinator struct {
	sources []reader.Source
	timeout time.Duration
	now     func() time.Time
	log     *logger.Log
}

// NewCoordinator bounds every source call by timeout. A non-positive timeout
// leaves the call bounded only by the caller's context.
func NewCoordinator(sources []reader.Source, timeout time.Duration) *Coordinator {
	return &Coordinator{
		sources: sources,
		timeout: timeout,
		now:     time.Now,
		log:     logger.GetLogger(),
	}
}

type fetchResult struct {
	rates []models.FundingRate
	err   error
}

// FetchAll queries every source concurrently and waits for all of them. The
// rates come back in registry order and carry one shared capture timestamp.
// Failed sources contribute nothing and are only visible in the reports.
func (c *Coordinator) FetchAll(ctx context.Context) ([]models.FundingRate, []models.SourceReport) {
	observedAt := c.now().UTC()

	results := make([][]models.FundingRate, len(c.sources))
	reports := make([]models.SourceReport, len(c.sources))

	var g errgroup.Group
	for i, src := range c.sources {
		g.Go(func() error {
			start := time.Now()
			rates, err := c.fetchOne(ctx, src)
			report := models.SourceReport{
				Exchange: src.Name(),
				Duration: time.Since(start),
			}
			if err != nil {
				report.Err = err.Error()
				rates = nil
			}
			report.Count = len(rates)
			results[i] = rates
			reports[i] = report
			c.observe(report, err)
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, rs := range results {
		total += len(rs)
	}
	rates := make([]models.FundingRate, 0, total)
	for _, rs := range results {
		for _, r := range rs {
			r.ObservedAt = observedAt
			rates = append(rates, r)
		}
	}

	c.logReport(reports, len(rates))
	return rates, reports
}

// fetchOne runs the source on its own goroutine so a source that ignores its
// context is abandoned at the deadline instead of stalling the cycle.
func (c *Coordinator) fetchOne(ctx context.Context, src reader.Source) ([]models.FundingRate, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	done := make(chan fetchResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fetchResult{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		rates, err := src.Fetch(ctx)
		done <- fetchResult{rates: rates, err: err}
	}()

	select {
	case res := <-done:
		return res.rates, res.err
	case <-ctx.Done():
		select {
		case res := <-done:
			return res.rates, res.err
		default:
		}
		return nil, fmt.Errorf("abandoned: %w", ctx.Err())
	}
}

func (c *Coordinator) observe(report models.SourceReport, err error) {
	logger.RecordFetch(report.Count, report.Failed())

	reason := ""
	if err != nil {
		host := ""
		var se *reader.StatusError
		if errors.As(err, &se) {
			host = se.Host
		}
		switch limit := rate.ReportLimitFromError(c.log, report.Exchange, host, err); {
		case limit != rate.LimitNone:
			reason = limit.String()
		case errors.Is(err, context.DeadlineExceeded):
			reason = "timeout"
		case se != nil:
			reason = "http_status"
		default:
			reason = "error"
		}
	}
	metrics.ObserveSource(report, reason)

	entry := c.log.WithComponent("fetcher").WithFields(logger.Fields{
		"exchange":    report.Exchange,
		"records":     report.Count,
		"duration_ms": report.Duration.Milliseconds(),
	})
	if err != nil {
		entry.WithError(err).WithField("reason", reason).Debug("source fetch failed")
		return
	}
	entry.Debug("source fetched")
}

// logReport writes the compact one-line fetch report, e.g.
// "Binance:412 Bybit:ERR OKX:230".
func (c *Coordinator) logReport(reports []models.SourceReport, total int) {
	var b strings.Builder
	failed := 0
	for i, r := range reports {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(r.Exchange)
		b.WriteByte(':')
		b.WriteString(r.Status())
		if r.Failed() {
			failed++
		}
	}

	c.log.WithComponent("fetcher").WithFields(logger.Fields{
		"report":  b.String(),
		"records": total,
		"sources": len(reports),
		"failed":  failed,
	}).Info("fetch report")
}
