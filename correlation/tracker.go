package correlation

import (
	"context"
	"time"

	"github.com/projectecosystemapp/lib-resilience/log"
)

// Tracker creates, propagates, and exposes correlation contexts. Construct
// one per service and hand it to anything that needs tracing.
type Tracker struct {
	service string
	logger  log.Logger
}

// NewTracker creates a tracker for the named service. A nil logger is
// replaced with a no-op logger.
func NewTracker(service string, logger log.Logger) *Tracker {
	if logger == nil {
		logger = &log.NopLogger{}
	}

	return &Tracker{
		service: service,
		logger:  logger,
	}
}

// Service returns the service name this tracker stamps on every context.
func (t *Tracker) Service() string { return t.service }

// StartCorrelation builds a new correlation context for operation and returns
// a derived context.Context carrying it as the active context.
//
// When a context is already active, the new one inherits its trace ID,
// correlation ID, user ID, and metadata, and records the active span as its
// parent. Otherwise fresh correlation and trace IDs are generated.
func (t *Tracker) StartCorrelation(ctx context.Context, operation string, metadata map[string]string) (context.Context, *Context) {
	var corr *Context

	if parent, ok := FromContext(ctx); ok {
		corr = parent.child(operation, metadata)
	} else {
		corr = &Context{
			CorrelationID: newCorrelationID(),
			TraceID:       newTraceID(),
			SpanID:        newSpanID(),
			Service:       t.service,
			Operation:     operation,
			Metadata:      mergeMetadata(nil, metadata),
			StartedAt:     time.Now(),
		}
	}

	return ContextWith(ctx, corr), corr
}

// StartChildSpan derives a context sharing the active correlation and trace
// but with a fresh span whose parent is the current span. Use it for
// sub-operations that should appear as children without starting a wholly
// new correlation. Outside a traced extent it behaves like StartCorrelation.
func (t *Tracker) StartChildSpan(ctx context.Context, operation string) (context.Context, *Context) {
	return t.StartCorrelation(ctx, operation, nil)
}

// CurrentContext returns the active correlation context without creating one.
func (t *Tracker) CurrentContext(ctx context.Context) (*Context, bool) {
	return FromContext(ctx)
}

// CurrentCorrelationID returns the active correlation ID, or empty string
// outside a traced extent.
func (t *Tracker) CurrentCorrelationID(ctx context.Context) string {
	return CorrelationIDFromContext(ctx)
}

// RunWithCorrelation starts a correlation context, makes it active for the
// whole dynamic extent of fn (including any asynchronous work fn spawns from
// the context it receives), and detaches it when fn returns. Start,
// completion, and failure are logged with the context's identifiers.
//
// A failure of fn is re-raised unchanged, never swallowed.
func (t *Tracker) RunWithCorrelation(ctx context.Context, operation string, metadata map[string]string, fn func(context.Context) error) error {
	runCtx, corr := t.StartCorrelation(ctx, operation, metadata)

	logger := t.logger.WithFields(
		"correlation_id", corr.CorrelationID,
		"trace_id", corr.TraceID,
		"span_id", corr.SpanID,
		"operation", operation,
	)

	logger.Infof("Operation started")

	start := time.Now()

	if err := fn(runCtx); err != nil {
		logger.Errorf("Operation failed after %v: %v", time.Since(start), err)

		return err
	}

	logger.Infof("Operation completed in %v", time.Since(start))

	return nil
}

// Run is the result-returning form of Tracker.RunWithCorrelation.
func Run[T any](ctx context.Context, t *Tracker, operation string, fn func(context.Context) (T, error)) (T, error) {
	var result T

	err := t.RunWithCorrelation(ctx, operation, nil, func(runCtx context.Context) error {
		var fnErr error

		result, fnErr = fn(runCtx)

		return fnErr
	})

	return result, err
}
