package meshjoin

import (
	"github.com/hupe1980/meshjoin/boxes"
	"github.com/hupe1980/meshjoin/morton"
)

type options struct {
	logger           *Logger
	metricsCollector MetricsCollector

	leafLevel          uint8
	maxLevel           uint8
	normalize          bool
	projection         bool
	imbalanceTolerance float64
	nQuantiles         int

	maxLocalIterations  int
	maxGlobalIterations int
	maxSyncRounds       int
}

// Option configures Joiner behavior.
type Option func(*options)

func defaultOptions() options {
	return options{
		logger:              NoopLogger(),
		metricsCollector:    NoopMetricsCollector{},
		leafLevel:           6,
		maxLevel:            morton.MaxLevel,
		normalize:           true,
		projection:          true,
		imbalanceTolerance:  boxes.DefaultImbalanceTolerance,
		nQuantiles:          5,
		maxLocalIterations:  50,
		maxGlobalIterations: 50,
		maxSyncRounds:       50,
	}
}

// WithLogger configures structured logging. If nil is passed, logging is
// disabled.
func WithLogger(l *Logger) Option {
	return func(o *options) {
		if l == nil {
			l = NoopLogger()
		}
		o.logger = l
	}
}

// WithMetricsCollector configures operational metrics collection. If nil
// is passed, collection is disabled.
func WithMetricsCollector(m MetricsCollector) Option {
	return func(o *options) {
		if m == nil {
			m = NoopMetricsCollector{}
		}
		o.metricsCollector = m
	}
}

// WithLeafLevel sets the Morton level at which local boxes are
// aggregated into weighted leaves before balancing. Higher levels give a
// finer initial decomposition at the cost of more gathered leaves.
func WithLeafLevel(level uint8) Option {
	return func(o *options) {
		if level > morton.MaxLevel {
			level = morton.MaxLevel
		}
		o.leafLevel = level
	}
}

// WithMaxLevel caps the refinement level used when oversized leaves are
// split during balancing.
func WithMaxLevel(level uint8) Option {
	return func(o *options) {
		if level > morton.MaxLevel {
			level = morton.MaxLevel
		}
		o.maxLevel = level
	}
}

// WithNormalize rescales box extents into [0,1] per active axis.
// Enabled by default.
func WithNormalize(normalize bool) Option {
	return func(o *options) { o.normalize = normalize }
}

// WithProjection drops axes along which every box straddles the median
// plane, reducing the indexing dimension for planar layouts. Enabled by
// default.
func WithProjection(projection bool) Option {
	return func(o *options) { o.projection = projection }
}

// WithImbalanceTolerance bounds how much of the ideal per-rank weight a
// single leaf may carry before it is refined.
func WithImbalanceTolerance(tolerance float64) Option {
	return func(o *options) {
		if tolerance > 0 {
			o.imbalanceTolerance = tolerance
		}
	}
}

// WithQuantiles sets the number of histogram buckets in distribution
// statistics.
func WithQuantiles(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.nQuantiles = n
		}
	}
}

// WithMaxIterations bounds the iterative resolutions: local is the limit
// on rank-local spreading passes, global on collective rounds. Exceeding
// either limit fails with ErrConvergenceFailed.
func WithMaxIterations(local, global int) Option {
	return func(o *options) {
		if local > 0 {
			o.maxLocalIterations = local
		}
		if global > 0 {
			o.maxGlobalIterations = global
		}
	}
}

// WithMaxSyncRounds bounds the number of block synchronization rounds in
// ResolveEquivalences. Exceeding the limit fails with
// ErrConvergenceFailed.
func WithMaxSyncRounds(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxSyncRounds = n
		}
	}
}
