package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	gnet "github.com/shirou/gopsutil/v3/net"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

type componentStat struct {
	warns  int64
	errors int64
}

var (
	cyclesRun     int64
	fetchFailures int64
	sourceRecords int64
	components    sync.Map // map[string]*componentStat
)

func componentFor(name string) *componentStat {
	v, _ := components.LoadOrStore(name, &componentStat{})
	return v.(*componentStat)
}

func recordWarn(component string) {
	atomic.AddInt64(&componentFor(component).warns, 1)
}

func recordError(component string) {
	atomic.AddInt64(&componentFor(component).errors, 1)
}

// IncrementCycle counts one completed poll cycle.
func IncrementCycle() {
	atomic.AddInt64(&cyclesRun, 1)
}

// RecordFetch counts one source fetch and its outcome.
func RecordFetch(records int, failed bool) {
	atomic.AddInt64(&sourceRecords, int64(records))
	if failed {
		atomic.AddInt64(&fetchFailures, 1)
	}
}

// ReportStats is the counter portion of the runtime report.
type ReportStats struct {
	Cycles        int64
	FetchFailures int64
	SourceRecords int64
	Warns         map[string]int64
	Errors        map[string]int64
}

// Stats returns the current report counters.
func Stats() ReportStats {
	st := ReportStats{
		Cycles:        atomic.LoadInt64(&cyclesRun),
		FetchFailures: atomic.LoadInt64(&fetchFailures),
		SourceRecords: atomic.LoadInt64(&sourceRecords),
		Warns:         map[string]int64{},
		Errors:        map[string]int64{},
	}
	components.Range(func(k, v any) bool {
		cs := v.(*componentStat)
		st.Warns[k.(string)] = atomic.LoadInt64(&cs.warns)
		st.Errors[k.(string)] = atomic.LoadInt64(&cs.errors)
		return true
	})
	return st
}

// StartReport begins periodic logging of runtime and cycle statistics until
// ctx is cancelled.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

func logReport(ctx context.Context, log *Log) {
	cpuPercent, _ := cpu.Percent(0, false)
	memStats, _ := mem.VirtualMemory()
	netStats, _ := gnet.IOCounters(false)

	cpuPct := 0.0
	if len(cpuPercent) > 0 {
		cpuPct = cpuPercent[0]
	}
	memMB := 0.0
	if memStats != nil {
		memMB = float64(memStats.Used) / 1024 / 1024
	}
	var bytesRecv uint64
	if len(netStats) > 0 {
		bytesRecv = netStats[0].BytesRecv
	}

	st := Stats()
	log.WithComponent("report").WithFields(Fields{
		"cycles":         st.Cycles,
		"fetch_failures": st.FetchFailures,
		"source_records": st.SourceRecords,
		"warns":          st.Warns,
		"errors":         st.Errors,
		"goroutines":     runtime.NumGoroutine(),
		"cpu_percent":    cpuPct,
		"memory_mb":      int64(memMB),
		"net_bytes_recv": int64(bytesRecv),
	}).Info("runtime report")

	publishMetrics(ctx, []cwtypes.MetricDatum{
		{MetricName: aws.String("CPUPercent"), Unit: cwtypes.StandardUnitPercent, Value: aws.Float64(cpuPct)},
		{MetricName: aws.String("MemoryMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(memMB)},
		{MetricName: aws.String("Cycles"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(st.Cycles))},
		{MetricName: aws.String("FetchFailures"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(st.FetchFailures))},
		{MetricName: aws.String("SourceRecords"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(st.SourceRecords))},
		{MetricName: aws.String("NetBytesRecv"), Unit: cwtypes.StandardUnitBytes, Value: aws.Float64(float64(bytesRecv))},
	})
}
