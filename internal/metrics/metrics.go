// Registers:
//
//	#fundingflow_source_records
//	#fundingflow_source_failures_total
//	#fundingflow_source_fetch_seconds
//	#fundingflow_cycles_total
//	#fundingflow_cycle_duration_seconds
//	#fundingflow_opportunities
//	#fundingflow_best_spread_percent
//	#go_* and process_* system metrics
//
// The dashboard serves them on /metrics through Handler.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fundingflow/models"
)

var (
	once     sync.Once
	registry = prometheus.NewRegistry()

	sourceRecords  *prometheus.GaugeVec
	sourceFailures *prometheus.CounterVec
	sourceFetch    *prometheus.HistogramVec
	cycles         prometheus.Counter
	cycleDuration  prometheus.Histogram
	opportunities  prometheus.Gauge
	bestSpread     prometheus.Gauge
)

func Init() {
	once.Do(func() {
		sourceRecords = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fundingflow_source_records",
				Help: "Funding records returned by the exchange in the last cycle",
			},
			[]string{"exchange"},
		)
		sourceFailures = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fundingflow_source_failures_total",
				Help: "Failed exchange fetches",
			},
			[]string{"exchange", "reason"},
		)
		sourceFetch = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fundingflow_source_fetch_seconds",
				Help:    "Time spent fetching one exchange",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"exchange"},
		)
		cycles = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fundingflow_cycles_total",
			Help: "Completed poll cycles",
		})
		cycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fundingflow_cycle_duration_seconds",
			Help:    "Wall time of one poll cycle",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		})
		opportunities = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fundingflow_opportunities",
			Help: "Opportunities found in the last cycle",
		})
		bestSpread = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fundingflow_best_spread_percent",
			Help: "Largest spread found in the last cycle",
		})

		registry.MustRegister(
			sourceRecords,
			sourceFailures,
			sourceFetch,
			cycles,
			cycleDuration,
			opportunities,
			bestSpread,
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveSource records one exchange's fetch outcome. reason labels the
// failure counter and is ignored for successful fetches.
func ObserveSource(report models.SourceReport, reason string) {
	Init()
	sourceFetch.WithLabelValues(report.Exchange).Observe(report.Duration.Seconds())
	if report.Failed() {
		if reason == "" {
			reason = "error"
		}
		sourceFailures.WithLabelValues(report.Exchange, reason).Inc()
		sourceRecords.WithLabelValues(report.Exchange).Set(0)
		return
	}
	sourceRecords.WithLabelValues(report.Exchange).Set(float64(report.Count))
}

// ObserveCycle records the duration and outcome of a completed cycle.
// Opportunities are expected in descending spread order.
func ObserveCycle(duration time.Duration, opps []models.Opportunity) {
	Init()
	cycles.Inc()
	cycleDuration.Observe(duration.Seconds())
	opportunities.Set(float64(len(opps)))
	if len(opps) == 0 {
		bestSpread.Set(0)
		return
	}
	bestSpread.Set(opps[0].SpreadPercent)
}
