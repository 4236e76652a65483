package performance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/projectecosystemapp/lib-resilience/log"
	"github.com/projectecosystemapp/lib-resilience/telemetry/metrics"
)

// ErrNilMetricsFactory indicates an OTelSink was created without a factory.
var ErrNilMetricsFactory = errors.New("metrics factory cannot be nil")

// OTelSink exports flushed measurements through a metrics.MetricsFactory.
// Occurrence measurements (count and error suffixes) become counters carrying
// per-flush deltas; everything else becomes a float gauge holding the latest
// aggregate, so fractional rates and millisecond values survive intact.
type OTelSink struct {
	factory *metrics.MetricsFactory
	logger  log.Logger
}

// NewOTelSink creates an OTelSink over the given factory.
func NewOTelSink(factory *metrics.MetricsFactory, logger log.Logger) (*OTelSink, error) {
	if factory == nil {
		return nil, ErrNilMetricsFactory
	}

	if logger == nil {
		logger = &log.NopLogger{}
	}

	return &OTelSink{factory: factory, logger: logger}, nil
}

// Send records every measurement in the batch. The first instrument or
// recording error aborts the batch so the caller can re-queue it.
func (s *OTelSink) Send(ctx context.Context, batch []Measurement) error {
	for _, m := range batch {
		if err := s.record(ctx, m); err != nil {
			return fmt.Errorf("record measurement %s: %w", m.Name, err)
		}
	}

	return nil
}

func (s *OTelSink) record(ctx context.Context, m Measurement) error {
	if isOccurrence(m.Name) {
		counter, err := s.factory.Counter(metrics.Metric{Name: m.Name, Unit: m.Unit})
		if err != nil {
			return err
		}

		return counter.WithLabels(m.Labels).Add(ctx, int64(m.Value))
	}

	gauge, err := s.factory.FloatGauge(metrics.Metric{Name: m.Name, Unit: m.Unit})
	if err != nil {
		return err
	}

	return gauge.WithLabels(m.Labels).Set(ctx, m.Value)
}

func isOccurrence(name string) bool {
	return strings.HasSuffix(name, "_count") ||
		strings.HasSuffix(name, "_errors") ||
		strings.HasSuffix(name, "_total")
}
