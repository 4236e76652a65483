package performance

import (
	"context"
	"time"
)

// Measurement is one named numeric value with dimensional tags, ready for an
// external metrics backend.
type Measurement struct {
	Name      string
	Value     float64
	Unit      string
	Timestamp time.Time
	Labels    map[string]string
}

// Sink delivers batches of measurements to an external metrics backend.
// Implementations receive batches no larger than the tracker's configured
// maximum batch size and should treat each call independently.
type Sink interface {
	Send(ctx context.Context, batch []Measurement) error
}

// NopSink discards all measurements. Used when no sink is configured so the
// tracker's buffering and statistics still work.
type NopSink struct{}

// Send discards the batch.
func (NopSink) Send(_ context.Context, _ []Measurement) error { return nil }

// chunkMeasurements splits measurements into slices of at most size elements.
func chunkMeasurements(measurements []Measurement, size int) [][]Measurement {
	if size <= 0 || len(measurements) == 0 {
		return nil
	}

	chunks := make([][]Measurement, 0, (len(measurements)+size-1)/size)

	for start := 0; start < len(measurements); start += size {
		end := start + size
		if end > len(measurements) {
			end = len(measurements)
		}

		chunks = append(chunks, measurements[start:end])
	}

	return chunks
}
