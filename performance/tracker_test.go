package performance

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingSink struct {
	mu      sync.Mutex
	batches [][]Measurement
	fail    bool
}

func (s *capturingSink) Send(_ context.Context, batch []Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail {
		return assert.AnError
	}

	copied := make([]Measurement, len(batch))
	copy(copied, batch)
	s.batches = append(s.batches, copied)

	return nil
}

func (s *capturingSink) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *capturingSink) all() []Measurement {
	s.mu.Lock()
	defer s.mu.Unlock()

	var flat []Measurement
	for _, batch := range s.batches {
		flat = append(flat, batch...)
	}

	return flat
}

func newTestTracker(t *testing.T, cfg Config) *Tracker {
	t.Helper()

	tracker, err := NewTracker(cfg)
	require.NoError(t, err)

	return tracker
}

func record(tracker *Tracker, operation, variant string, duration time.Duration, success bool) {
	tracker.RecordMetric(context.Background(), operation, duration, success, variant, "")
}

func TestTracker_GetStats(t *testing.T) {
	tracker := newTestTracker(t, Config{})

	record(tracker, "search", "a", 100*time.Millisecond, true)
	record(tracker, "search", "a", 200*time.Millisecond, true)
	record(tracker, "search", "b", 300*time.Millisecond, false)
	record(tracker, "checkout", "a", 900*time.Millisecond, true)

	stats := tracker.GetStats("search", time.Minute)
	assert.Equal(t, 3, stats.Count)
	assert.Equal(t, 2, stats.Successes)
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, 200*time.Millisecond, stats.Mean)

	variantStats := tracker.GetVariantStats("search", "b", time.Minute)
	assert.Equal(t, 1, variantStats.Count)
	assert.InDelta(t, 100.0, variantStats.ErrorRate, 0.01)
}

func TestTracker_GetStatsRespectsWindow(t *testing.T) {
	tracker := newTestTracker(t, Config{})

	record(tracker, "search", "a", 100*time.Millisecond, true)

	stats := tracker.GetStats("search", time.Nanosecond)
	assert.Zero(t, stats.Count, "metrics outside the window are excluded")
}

func TestTracker_CompareVariants_InsufficientData(t *testing.T) {
	tracker := newTestTracker(t, Config{MinSampleSize: 5})

	for i := 0; i < 5; i++ {
		record(tracker, "search", "a", 100*time.Millisecond, true)
	}

	record(tracker, "search", "b", 50*time.Millisecond, true)

	cmp := tracker.CompareVariants("search", time.Minute, "a", "b")
	assert.Equal(t, RecommendationInsufficientData, cmp.Recommendation)
}

func TestTracker_CompareVariants_Adopt(t *testing.T) {
	tracker := newTestTracker(t, Config{MinSampleSize: 5})

	for i := 0; i < 10; i++ {
		record(tracker, "search", "a", 200*time.Millisecond, true)
		record(tracker, "search", "b", 100*time.Millisecond, true)
	}

	cmp := tracker.CompareVariants("search", time.Minute, "a", "b")
	assert.Equal(t, RecommendationAdopt, cmp.Recommendation)
	assert.InDelta(t, 50.0, cmp.SpeedImprovement, 0.01)
	assert.Zero(t, cmp.ErrorRateDelta)
}

func TestTracker_CompareVariants_InvestigateSlower(t *testing.T) {
	tracker := newTestTracker(t, Config{MinSampleSize: 5})

	for i := 0; i < 10; i++ {
		record(tracker, "search", "a", 100*time.Millisecond, true)
		record(tracker, "search", "b", 200*time.Millisecond, true)
	}

	cmp := tracker.CompareVariants("search", time.Minute, "a", "b")
	assert.Equal(t, RecommendationInvestigate, cmp.Recommendation)
	assert.InDelta(t, -100.0, cmp.SpeedImprovement, 0.01)
}

func TestTracker_CompareVariants_InvestigateErrorRate(t *testing.T) {
	tracker := newTestTracker(t, Config{MinSampleSize: 5})

	for i := 0; i < 10; i++ {
		record(tracker, "search", "a", 100*time.Millisecond, true)
		record(tracker, "search", "b", 100*time.Millisecond, i%2 == 0)
	}

	cmp := tracker.CompareVariants("search", time.Minute, "a", "b")
	assert.Equal(t, RecommendationInvestigate, cmp.Recommendation)
	assert.InDelta(t, 50.0, cmp.ErrorRateDelta, 0.01)
}

func TestTracker_CompareVariants_Neutral(t *testing.T) {
	tracker := newTestTracker(t, Config{MinSampleSize: 5})

	for i := 0; i < 10; i++ {
		record(tracker, "search", "a", 100*time.Millisecond, true)
		record(tracker, "search", "b", 99*time.Millisecond, true)
	}

	cmp := tracker.CompareVariants("search", time.Minute, "a", "b")
	assert.Equal(t, RecommendationNeutral, cmp.Recommendation)
}

func TestTracker_FlushAggregatesPerOperationAndVariant(t *testing.T) {
	sink := &capturingSink{}
	tracker := newTestTracker(t, Config{Sink: sink})

	record(tracker, "search", "a", 100*time.Millisecond, true)
	record(tracker, "search", "a", 200*time.Millisecond, false)
	record(tracker, "search", "b", 300*time.Millisecond, true)

	require.NoError(t, tracker.Flush(context.Background()))

	byNameAndVariant := make(map[string]float64)
	for _, m := range sink.all() {
		byNameAndVariant[m.Name+"/"+m.Labels["variant"]] = m.Value
	}

	assert.InDelta(t, 2, byNameAndVariant["resilience_operation_count/a"], 0.01)
	assert.InDelta(t, 1, byNameAndVariant["resilience_operation_errors/a"], 0.01)
	assert.InDelta(t, 50.0, byNameAndVariant["resilience_operation_error_rate_pct/a"], 0.01)
	assert.InDelta(t, 150.0, byNameAndVariant["resilience_operation_duration_mean_ms/a"], 0.01)
	assert.InDelta(t, 300.0, byNameAndVariant["resilience_operation_duration_mean_ms/b"], 0.01)

	// The buffer is cleared after a successful flush.
	assert.Zero(t, tracker.GetStats("search", time.Minute).Count)
}

func TestTracker_FlushRespectsBatchSize(t *testing.T) {
	sink := &capturingSink{}
	tracker := newTestTracker(t, Config{Sink: sink, MaxBatchSize: 4})

	for i := 0; i < 3; i++ {
		record(tracker, "search", string(rune('a'+i)), 100*time.Millisecond, true)
	}

	require.NoError(t, tracker.Flush(context.Background()))

	sink.mu.Lock()
	defer sink.mu.Unlock()

	require.NotEmpty(t, sink.batches)

	for _, batch := range sink.batches {
		assert.LessOrEqual(t, len(batch), 4)
	}
}

func TestTracker_FlushFailureRequeues(t *testing.T) {
	sink := &capturingSink{fail: true}
	tracker := newTestTracker(t, Config{Sink: sink})

	record(tracker, "search", "a", 100*time.Millisecond, true)

	err := tracker.Flush(context.Background())
	require.Error(t, err)

	// The metric is back in the buffer and a later flush delivers it.
	assert.Equal(t, 1, tracker.GetStats("search", time.Minute).Count)

	sink.setFail(false)
	require.NoError(t, tracker.Flush(context.Background()))
	assert.NotEmpty(t, sink.all())
}

// failingBatchSink delivers every batch except the one whose ordinal matches
// failOnCall.
type failingBatchSink struct {
	mu         sync.Mutex
	calls      int
	failOnCall int
	batches    [][]Measurement
}

func (s *failingBatchSink) Send(_ context.Context, batch []Measurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.calls == s.failOnCall {
		return assert.AnError
	}

	copied := make([]Measurement, len(batch))
	copy(copied, batch)
	s.batches = append(s.batches, copied)

	return nil
}

func (s *failingBatchSink) all() []Measurement {
	s.mu.Lock()
	defer s.mu.Unlock()

	var flat []Measurement
	for _, batch := range s.batches {
		flat = append(flat, batch...)
	}

	return flat
}

func TestTracker_PartialFlushFailureRequeuesOnlyUndelivered(t *testing.T) {
	sink := &failingBatchSink{failOnCall: 2}
	tracker := newTestTracker(t, Config{Sink: sink, MaxBatchSize: measurementsPerGroup})

	record(tracker, "search", "a", 100*time.Millisecond, true)
	record(tracker, "search", "a", 200*time.Millisecond, true)
	record(tracker, "search", "b", 100*time.Millisecond, true)

	err := tracker.Flush(context.Background())
	require.Error(t, err)

	// Variant a's aggregates went out in the first batch, so only variant b
	// stays buffered.
	assert.Equal(t, 0, tracker.GetVariantStats("search", "a", time.Minute).Count)
	assert.Equal(t, 1, tracker.GetVariantStats("search", "b", time.Minute).Count)

	require.NoError(t, tracker.Flush(context.Background()))

	countEmits := map[string]int{}

	for _, m := range sink.all() {
		if m.Name == "resilience_operation_count" {
			countEmits[m.Labels["variant"]]++
		}
	}

	assert.Equal(t, 1, countEmits["a"])
	assert.Equal(t, 1, countEmits["b"])
}

func TestTracker_RequeueBoundedByBufferSize(t *testing.T) {
	sink := &capturingSink{fail: true}
	tracker := newTestTracker(t, Config{Sink: sink, BufferSize: 5})

	for i := 0; i < 5; i++ {
		record(tracker, "search", "a", 100*time.Millisecond, true)
	}

	// The eager flush at capacity fails and re-queues without growing
	// past the configured buffer size.
	assert.Equal(t, 5, tracker.GetStats("search", time.Minute).Count)

	record(tracker, "search", "a", 100*time.Millisecond, true)
	assert.LessOrEqual(t, tracker.GetStats("search", time.Minute).Count, 5)
}

func TestTracker_StartStopFlushes(t *testing.T) {
	sink := &capturingSink{}
	tracker := newTestTracker(t, Config{Sink: sink, FlushInterval: time.Hour})

	tracker.Start()

	record(tracker, "search", "a", 100*time.Millisecond, true)

	tracker.Stop()

	assert.NotEmpty(t, sink.all(), "Stop performs a final flush")
}

func TestTracker_InvalidConfig(t *testing.T) {
	_, err := NewTracker(Config{InvestigateSpeedThreshold: 10})
	assert.ErrorIs(t, err, ErrInvalidTrackerConfig)
}

func TestChunkMeasurements(t *testing.T) {
	measurements := make([]Measurement, 7)

	chunks := chunkMeasurements(measurements, 3)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 3)
	assert.Len(t, chunks[1], 3)
	assert.Len(t, chunks[2], 1)

	assert.Nil(t, chunkMeasurements(nil, 3))
	assert.Nil(t, chunkMeasurements(measurements, 0))
}
