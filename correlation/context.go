package correlation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Context is the identity and trace record of one hop of a logical operation.
// It is immutable once created; derived hops get a fresh copy.
type Context struct {
	// CorrelationID is shared by all hops of one logical operation.
	CorrelationID string
	// TraceID identifies the whole distributed trace. Generated once at the
	// root invocation and inherited by children.
	TraceID string
	// SpanID is unique to this hop.
	SpanID string
	// ParentID is the enclosing hop's SpanID, empty at the root.
	ParentID string
	// Service names the service that owns this hop.
	Service string
	// Operation names the unit of work this hop performs.
	Operation string
	// UserID is the acting user, when known.
	UserID string
	// Metadata is an open key/value bag, merged additively down the call tree.
	Metadata map[string]string
	// StartedAt is when this hop began.
	StartedAt time.Time
}

type contextKey struct{}

// activeKey is the context.Context key under which the active Context lives.
var activeKey = contextKey{}

// ContextWith returns a context carrying corr as the active correlation context.
func ContextWith(ctx context.Context, corr *Context) context.Context {
	return context.WithValue(ctx, activeKey, corr)
}

// FromContext returns the active correlation context, if any.
func FromContext(ctx context.Context) (*Context, bool) {
	if ctx == nil {
		return nil, false
	}

	corr, ok := ctx.Value(activeKey).(*Context)
	if !ok || corr == nil {
		return nil, false
	}

	return corr, true
}

// CorrelationIDFromContext returns the active correlation ID, or empty string
// outside a traced extent.
func CorrelationIDFromContext(ctx context.Context) string {
	if corr, ok := FromContext(ctx); ok {
		return corr.CorrelationID
	}

	return ""
}

// child derives a new hop under c: same correlation, trace, user, and
// metadata lineage, fresh span, parent pointing at c.
func (c *Context) child(operation string, metadata map[string]string) *Context {
	return &Context{
		CorrelationID: c.CorrelationID,
		TraceID:       c.TraceID,
		SpanID:        newSpanID(),
		ParentID:      c.SpanID,
		Service:       c.Service,
		Operation:     operation,
		UserID:        c.UserID,
		Metadata:      mergeMetadata(c.Metadata, metadata),
		StartedAt:     time.Now(),
	}
}

// mergeMetadata combines parent and child bags; child keys win on conflict.
func mergeMetadata(parent, extra map[string]string) map[string]string {
	if len(parent) == 0 && len(extra) == 0 {
		return nil
	}

	merged := make(map[string]string, len(parent)+len(extra))
	maps.Copy(merged, parent)
	maps.Copy(merged, extra)

	return merged
}

// newCorrelationID generates the identifier shared by all hops of one
// logical operation.
func newCorrelationID() string {
	return uuid.New().String()
}

// traceRandomBytes is the size of the random component of a trace ID.
const traceRandomBytes = 12

// newTraceID generates a trace identifier with a time component and a random
// component, compatible with AWS-style trace ID conventions:
// "1-<8 hex epoch seconds>-<24 hex random>".
func newTraceID() string {
	var b [traceRandomBytes]byte

	// rand.Read on crypto/rand never fails on supported platforms; a short
	// read would surface as a panic inside the package.
	_, _ = rand.Read(b[:])

	return fmt.Sprintf("1-%08x-%s", time.Now().Unix(), hex.EncodeToString(b[:]))
}

// spanRandomBytes is the size of a span ID.
const spanRandomBytes = 8

// newSpanID generates a 16-hex-char span identifier.
func newSpanID() string {
	var b [spanRandomBytes]byte

	_, _ = rand.Read(b[:])

	return hex.EncodeToString(b[:])
}
