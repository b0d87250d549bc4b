package meshjoin

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    mergeCounter     prometheus.Counter
//	    resolveHistogram prometheus.Histogram
//	}
//
//	func (p *PrometheusCollector) RecordMerge(n, local, global int, duration time.Duration, err error) {
//	    p.mergeCounter.Inc()
//	    // ... record error state, duration, etc.
//	}
type MetricsCollector interface {
	// RecordBoxIndex is called after each box index build.
	// nBoxes is the local box count, fit the distribution balance,
	// duration the total time taken, err is nil if successful.
	RecordBoxIndex(nBoxes int, fit float64, duration time.Duration, err error)

	// RecordMerge is called after each vertex merge resolution.
	// n is the local element count, local and global the number of
	// spreading rounds of each kind.
	RecordMerge(n, local, global int, duration time.Duration, err error)

	// RecordResolve is called after each distributed equivalence
	// resolution. rounds is the number of synchronization rounds.
	RecordResolve(rounds int, duration time.Duration, err error)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordBoxIndex(int, float64, time.Duration, error) {}
func (NoopMetricsCollector) RecordMerge(int, int, int, time.Duration, error)   {}
func (NoopMetricsCollector) RecordResolve(int, time.Duration, error)           {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	BoxIndexCount      atomic.Int64
	BoxIndexErrors     atomic.Int64
	BoxIndexTotalNanos atomic.Int64
	MergeCount         atomic.Int64
	MergeErrors        atomic.Int64
	MergeTotalNanos    atomic.Int64
	MergeLocalRounds   atomic.Int64
	MergeGlobalRounds  atomic.Int64
	ResolveCount       atomic.Int64
	ResolveErrors      atomic.Int64
	ResolveRounds      atomic.Int64
}

// RecordBoxIndex implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBoxIndex(nBoxes int, fit float64, duration time.Duration, err error) {
	b.BoxIndexCount.Add(1)
	b.BoxIndexTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.BoxIndexErrors.Add(1)
	}
}

// RecordMerge implements MetricsCollector.
func (b *BasicMetricsCollector) RecordMerge(n, local, global int, duration time.Duration, err error) {
	b.MergeCount.Add(1)
	b.MergeTotalNanos.Add(duration.Nanoseconds())
	b.MergeLocalRounds.Add(int64(local))
	b.MergeGlobalRounds.Add(int64(global))
	if err != nil {
		b.MergeErrors.Add(1)
	}
}

// RecordResolve implements MetricsCollector.
func (b *BasicMetricsCollector) RecordResolve(rounds int, duration time.Duration, err error) {
	b.ResolveCount.Add(1)
	b.ResolveRounds.Add(int64(rounds))
	if err != nil {
		b.ResolveErrors.Add(1)
	}
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		BoxIndexCount:     b.BoxIndexCount.Load(),
		BoxIndexErrors:    b.BoxIndexErrors.Load(),
		BoxIndexAvgNanos:  avgNanos(&b.BoxIndexTotalNanos, &b.BoxIndexCount),
		MergeCount:        b.MergeCount.Load(),
		MergeErrors:       b.MergeErrors.Load(),
		MergeAvgNanos:     avgNanos(&b.MergeTotalNanos, &b.MergeCount),
		MergeLocalRounds:  b.MergeLocalRounds.Load(),
		MergeGlobalRounds: b.MergeGlobalRounds.Load(),
		ResolveCount:      b.ResolveCount.Load(),
		ResolveErrors:     b.ResolveErrors.Load(),
		ResolveRounds:     b.ResolveRounds.Load(),
	}
}

func avgNanos(total, count *atomic.Int64) int64 {
	c := count.Load()
	if c == 0 {
		return 0
	}
	return total.Load() / c
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	BoxIndexCount     int64
	BoxIndexErrors    int64
	BoxIndexAvgNanos  int64
	MergeCount        int64
	MergeErrors       int64
	MergeAvgNanos     int64
	MergeLocalRounds  int64
	MergeGlobalRounds int64
	ResolveCount      int64
	ResolveErrors     int64
	ResolveRounds     int64
}
