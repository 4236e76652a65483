package correlation

import (
	"context"
	"net/http"
	"time"

	constant "github.com/projectecosystemapp/lib-resilience/constants"
	"google.golang.org/grpc/metadata"
)

// ExtractFromHeaders reconstructs a correlation context from inbound
// header-like transport metadata. It reports false when no propagated
// identifiers are present.
//
// The reconstructed context treats the remote hop as the parent: the remote
// span ID (when propagated) becomes ParentID and a fresh local span is
// generated.
func ExtractFromHeaders(h http.Header) (*Context, bool) {
	correlationID := h.Get(constant.HeaderCorrelationID)

	traceID := h.Get(constant.HeaderTraceID)
	if traceID == "" {
		traceID = h.Get(constant.HeaderAmznTraceID)
	}

	if correlationID == "" && traceID == "" {
		return nil, false
	}

	if correlationID == "" {
		correlationID = newCorrelationID()
	}

	if traceID == "" {
		traceID = newTraceID()
	}

	return &Context{
		CorrelationID: correlationID,
		TraceID:       traceID,
		SpanID:        newSpanID(),
		ParentID:      h.Get(constant.HeaderSpanID),
		Service:       h.Get(constant.HeaderService),
		UserID:        h.Get(constant.HeaderUserID),
		StartedAt:     time.Now(),
	}, true
}

// InjectIntoHeaders serializes the active correlation context's identifiers
// into outgoing transport metadata. A no-op outside a traced extent.
func InjectIntoHeaders(ctx context.Context, h http.Header) {
	corr, ok := FromContext(ctx)
	if !ok {
		return
	}

	h.Set(constant.HeaderCorrelationID, corr.CorrelationID)
	h.Set(constant.HeaderTraceID, corr.TraceID)
	h.Set(constant.HeaderSpanID, corr.SpanID)

	if corr.ParentID != "" {
		h.Set(constant.HeaderParentID, corr.ParentID)
	}

	if corr.Service != "" {
		h.Set(constant.HeaderService, corr.Service)
	}

	if corr.UserID != "" {
		h.Set(constant.HeaderUserID, corr.UserID)
	}
}

// InjectIntoGRPC returns a context whose outgoing gRPC metadata carries the
// active correlation identifiers. Metadata keys are lowercased by the gRPC
// runtime on the wire.
func InjectIntoGRPC(ctx context.Context) context.Context {
	corr, ok := FromContext(ctx)
	if !ok {
		return ctx
	}

	md, _ := metadata.FromOutgoingContext(ctx)
	if md == nil {
		md = metadata.New(nil)
	} else {
		md = md.Copy()
	}

	md.Set(constant.HeaderCorrelationID, corr.CorrelationID)
	md.Set(constant.HeaderTraceID, corr.TraceID)
	md.Set(constant.HeaderSpanID, corr.SpanID)

	if corr.Service != "" {
		md.Set(constant.HeaderService, corr.Service)
	}

	return metadata.NewOutgoingContext(ctx, md)
}

// ExtractFromGRPC reconstructs a correlation context from incoming gRPC
// metadata. It reports false when no propagated identifiers are present.
func ExtractFromGRPC(ctx context.Context) (*Context, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok || md == nil {
		return nil, false
	}

	h := make(http.Header, len(md))
	for key, values := range md {
		for _, value := range values {
			h.Add(key, value)
		}
	}

	return ExtractFromHeaders(h)
}
