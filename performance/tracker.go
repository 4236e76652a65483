package performance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	constant "github.com/projectecosystemapp/lib-resilience/constants"
	"github.com/projectecosystemapp/lib-resilience/correlation"
	"github.com/projectecosystemapp/lib-resilience/log"
)

// Default configuration values applied by NewTracker.
const (
	DefaultBufferSize    = 1000
	DefaultFlushInterval = 60 * time.Second
	DefaultMaxBatchSize  = 20
	DefaultMinSampleSize = 10

	// DefaultAdoptSpeedThreshold is the speed improvement (percent) above
	// which a candidate variant is recommended for adoption.
	DefaultAdoptSpeedThreshold = 10.0
	// DefaultInvestigateSpeedThreshold is the speed regression (percent)
	// below which a candidate variant warrants investigation.
	DefaultInvestigateSpeedThreshold = -10.0
	// DefaultInvestigateErrorDelta is the error-rate increase (percentage
	// points) above which a candidate variant warrants investigation.
	DefaultInvestigateErrorDelta = 5.0
)

// ErrInvalidTrackerConfig indicates an invalid tracker configuration.
var ErrInvalidTrackerConfig = errors.New("invalid performance tracker config")

// Config configures a Tracker. Zero values take documented defaults.
type Config struct {
	// BufferSize caps the in-memory metric buffer; reaching it triggers an
	// eager flush.
	BufferSize int
	// FlushInterval is the period of the background flush.
	FlushInterval time.Duration
	// MaxBatchSize caps the number of measurements per sink call.
	MaxBatchSize int
	// MinSampleSize is the minimum per-variant sample count before
	// CompareVariants produces a non-"insufficient data" recommendation.
	MinSampleSize int

	AdoptSpeedThreshold       float64
	InvestigateSpeedThreshold float64
	InvestigateErrorDelta     float64

	// Sink receives flushed aggregates. Nil means NopSink.
	Sink Sink
	// Logger receives operational logging. Nil means NopLogger.
	Logger log.Logger
}

func (cfg *Config) normalize() {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}

	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}

	if cfg.MaxBatchSize <= 0 {
		cfg.MaxBatchSize = DefaultMaxBatchSize
	}

	if cfg.MinSampleSize <= 0 {
		cfg.MinSampleSize = DefaultMinSampleSize
	}

	if cfg.AdoptSpeedThreshold == 0 {
		cfg.AdoptSpeedThreshold = DefaultAdoptSpeedThreshold
	}

	if cfg.InvestigateSpeedThreshold == 0 {
		cfg.InvestigateSpeedThreshold = DefaultInvestigateSpeedThreshold
	}

	if cfg.InvestigateErrorDelta == 0 {
		cfg.InvestigateErrorDelta = DefaultInvestigateErrorDelta
	}

	if cfg.Sink == nil {
		cfg.Sink = NopSink{}
	}

	if cfg.Logger == nil {
		cfg.Logger = &log.NopLogger{}
	}
}

func (cfg *Config) validate() error {
	if cfg.InvestigateSpeedThreshold > 0 {
		return fmt.Errorf("%w: InvestigateSpeedThreshold must be negative", ErrInvalidTrackerConfig)
	}

	if cfg.AdoptSpeedThreshold < 0 {
		return fmt.Errorf("%w: AdoptSpeedThreshold must be positive", ErrInvalidTrackerConfig)
	}

	return nil
}

// Tracker buffers performance metrics per process and periodically flushes
// per-(operation, variant) aggregates to the configured sink. The buffer is
// private to the process; only flushes cross process boundaries.
type Tracker struct {
	cfg    Config
	logger log.Logger
	sink   Sink

	mu     sync.Mutex
	buffer []Metric

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewTracker creates a Tracker. Call Start to run the background flush loop;
// the tracker records and flushes eagerly without it.
func NewTracker(cfg Config) (*Tracker, error) {
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Tracker{
		cfg:      cfg,
		logger:   cfg.Logger,
		sink:     cfg.Sink,
		buffer:   make([]Metric, 0, cfg.BufferSize),
		stopChan: make(chan struct{}),
	}, nil
}

// RecordMetric appends one completed operation to the buffer and logs it.
// The correlation ID is read from ctx when one is active. Reaching the
// buffer capacity triggers an eager flush.
func (t *Tracker) RecordMetric(ctx context.Context, operation string, duration time.Duration, success bool, variant, errorKind string) {
	metric := Metric{
		Operation:     operation,
		Variant:       variant,
		Duration:      duration,
		Success:       success,
		Timestamp:     time.Now(),
		CorrelationID: correlation.CorrelationIDFromContext(ctx),
		ErrorKind:     errorKind,
	}

	t.logger.Debugf("Metric recorded: operation=%s variant=%s duration=%v success=%v correlation_id=%s",
		operation, variant, duration, success, metric.CorrelationID)

	t.mu.Lock()
	t.buffer = append(t.buffer, metric)
	full := len(t.buffer) >= t.cfg.BufferSize
	t.mu.Unlock()

	if full {
		if err := t.Flush(ctx); err != nil {
			t.logger.Warnf("Eager flush failed, metrics re-queued: %v", err)
		}
	}
}

// GetStats summarizes all buffered metrics for operation inside the trailing
// window, across every variant.
func (t *Tracker) GetStats(operation string, window time.Duration) Stats {
	return computeStats(t.snapshot(operation, "", window))
}

// GetVariantStats summarizes buffered metrics for one (operation, variant)
// pair inside the trailing window.
func (t *Tracker) GetVariantStats(operation, variant string, window time.Duration) Stats {
	return computeStats(t.snapshot(operation, variant, window))
}

// snapshot copies buffered metrics matching operation (and variant, when
// non-empty) with timestamps inside the trailing window.
func (t *Tracker) snapshot(operation, variant string, window time.Duration) []Metric {
	cutoff := time.Now().Add(-window)

	t.mu.Lock()
	defer t.mu.Unlock()

	var matched []Metric

	for _, m := range t.buffer {
		if m.Operation != operation {
			continue
		}

		if variant != "" && m.Variant != variant {
			continue
		}

		if m.Timestamp.Before(cutoff) {
			continue
		}

		matched = append(matched, m)
	}

	return matched
}

// CompareVariants computes independent stats for the baseline and candidate
// variants of operation over the trailing window and derives a qualitative
// recommendation from fixed thresholds.
func (t *Tracker) CompareVariants(operation string, window time.Duration, baseline, candidate string) Comparison {
	cmp := Comparison{
		Operation:      operation,
		Baseline:       baseline,
		Candidate:      candidate,
		BaselineStats:  t.GetVariantStats(operation, baseline, window),
		CandidateStats: t.GetVariantStats(operation, candidate, window),
	}

	if cmp.BaselineStats.Count < t.cfg.MinSampleSize || cmp.CandidateStats.Count < t.cfg.MinSampleSize {
		cmp.Recommendation = RecommendationInsufficientData

		return cmp
	}

	if cmp.BaselineStats.Mean > 0 {
		cmp.SpeedImprovement = float64(cmp.BaselineStats.Mean-cmp.CandidateStats.Mean) /
			float64(cmp.BaselineStats.Mean) * 100
	}

	cmp.ErrorRateDelta = cmp.CandidateStats.ErrorRate - cmp.BaselineStats.ErrorRate

	switch {
	case cmp.SpeedImprovement >= t.cfg.AdoptSpeedThreshold && cmp.ErrorRateDelta <= 0:
		cmp.Recommendation = RecommendationAdopt
	case cmp.SpeedImprovement <= t.cfg.InvestigateSpeedThreshold || cmp.ErrorRateDelta >= t.cfg.InvestigateErrorDelta:
		cmp.Recommendation = RecommendationInvestigate
	default:
		cmp.Recommendation = RecommendationNeutral
	}

	return cmp
}

// Flush aggregates the buffered metrics per (operation, variant), sends the
// aggregates to the sink in batches of at most MaxBatchSize, and clears the
// buffer. On a sink failure only the metrics of groups whose aggregates were
// not fully delivered are re-queued (bounded by the buffer capacity, oldest
// dropped first) and the error is returned.
func (t *Tracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	taken := t.buffer
	t.buffer = make([]Metric, 0, t.cfg.BufferSize)
	t.mu.Unlock()

	if len(taken) == 0 {
		return nil
	}

	measurements, groups := aggregate(taken)

	sent := 0

	for _, batch := range chunkMeasurements(measurements, t.cfg.MaxBatchSize) {
		if err := t.sink.Send(ctx, batch); err != nil {
			t.requeue(undeliveredMetrics(groups, sent))

			return fmt.Errorf("send metrics batch: %w", err)
		}

		sent += len(batch)
	}

	t.logger.Debugf("Flushed %d metrics as %d measurements", len(taken), len(measurements))

	return nil
}

// undeliveredMetrics returns the metrics of every group that still has
// measurements past the first sent measurement count. A group straddling the
// failed batch counts as undelivered.
func undeliveredMetrics(groups [][]Metric, sent int) []Metric {
	var remaining []Metric

	for i, group := range groups {
		if (i+1)*measurementsPerGroup > sent {
			remaining = append(remaining, group...)
		}
	}

	return remaining
}

// requeue puts taken metrics back in front of anything recorded meanwhile,
// dropping the oldest entries when the combined size exceeds the buffer
// capacity.
func (t *Tracker) requeue(taken []Metric) {
	t.mu.Lock()
	defer t.mu.Unlock()

	combined := make([]Metric, 0, len(taken)+len(t.buffer))
	combined = append(combined, taken...)
	combined = append(combined, t.buffer...)

	if overflow := len(combined) - t.cfg.BufferSize; overflow > 0 {
		t.logger.Warnf("Metric buffer over capacity after re-queue, dropping %d oldest metrics", overflow)

		combined = combined[overflow:]
	}

	t.buffer = combined
}

// Start runs the periodic background flush until Stop is called.
func (t *Tracker) Start() {
	t.wg.Add(1)

	go t.flushLoop()

	t.logger.Infof("Performance tracker started - flushing every %v", t.cfg.FlushInterval)
}

// Stop halts the background flush and performs a final synchronous flush.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() {
		close(t.stopChan)
	})

	t.wg.Wait()

	if err := t.Flush(context.Background()); err != nil {
		t.logger.Warnf("Final flush failed: %v", err)
	}

	t.logger.Info("Performance tracker stopped")
}

func (t *Tracker) flushLoop() {
	defer t.wg.Done()

	ticker := time.NewTicker(t.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := t.Flush(context.Background()); err != nil {
				t.logger.Warnf("Periodic flush failed, metrics re-queued: %v", err)
			}
		case <-t.stopChan:
			return
		}
	}
}

// aggregate groups metrics by (operation, variant) and produces the named
// measurements for each group.
// aggregate folds metrics into per-(operation, variant) measurements. The
// returned groups slice holds the source metrics of each group in the same
// order, so a partially failed send can re-queue exactly the groups whose
// measurements were not delivered.
func aggregate(metrics []Metric) ([]Measurement, [][]Metric) {
	type groupKey struct {
		operation string
		variant   string
	}

	groups := make(map[groupKey][]Metric)
	order := make([]groupKey, 0)

	for _, m := range metrics {
		key := groupKey{operation: m.Operation, variant: m.Variant}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}

		groups[key] = append(groups[key], m)
	}

	now := time.Now()
	measurements := make([]Measurement, 0, len(groups)*measurementsPerGroup)
	grouped := make([][]Metric, 0, len(groups))

	for _, key := range order {
		grouped = append(grouped, groups[key])

		stats := computeStats(groups[key])
		labels := map[string]string{
			constant.LabelOperation: constant.SanitizeMetricLabel(key.operation),
			constant.LabelVariant:   constant.SanitizeMetricLabel(key.variant),
		}

		measurements = append(measurements,
			Measurement{Name: "resilience_operation_count", Value: float64(stats.Count), Unit: "1", Timestamp: now, Labels: labels},
			Measurement{Name: "resilience_operation_errors", Value: float64(stats.Failures), Unit: "1", Timestamp: now, Labels: labels},
			Measurement{Name: "resilience_operation_error_rate_pct", Value: stats.ErrorRate, Unit: "%", Timestamp: now, Labels: labels},
			Measurement{Name: "resilience_operation_duration_mean_ms", Value: durationMs(stats.Mean), Unit: "ms", Timestamp: now, Labels: labels},
			Measurement{Name: "resilience_operation_duration_min_ms", Value: durationMs(stats.Min), Unit: "ms", Timestamp: now, Labels: labels},
			Measurement{Name: "resilience_operation_duration_max_ms", Value: durationMs(stats.Max), Unit: "ms", Timestamp: now, Labels: labels},
			Measurement{Name: "resilience_operation_duration_p50_ms", Value: durationMs(stats.P50), Unit: "ms", Timestamp: now, Labels: labels},
			Measurement{Name: "resilience_operation_duration_p95_ms", Value: durationMs(stats.P95), Unit: "ms", Timestamp: now, Labels: labels},
			Measurement{Name: "resilience_operation_duration_p99_ms", Value: durationMs(stats.P99), Unit: "ms", Timestamp: now, Labels: labels},
		)
	}

	return measurements, grouped
}

// measurementsPerGroup is the number of measurements emitted per
// (operation, variant) group by aggregate.
const measurementsPerGroup = 9

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
