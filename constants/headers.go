package constant

const (
	// HeaderCorrelationID carries the identifier shared by every hop of one
	// logical operation.
	HeaderCorrelationID = "X-Correlation-Id"
	// HeaderTraceID carries the identifier of the whole distributed trace.
	HeaderTraceID = "X-Trace-Id"
	// HeaderSpanID carries the identifier of the sending hop.
	HeaderSpanID = "X-Span-Id"
	// HeaderParentID carries the span identifier of the enclosing hop.
	HeaderParentID = "X-Parent-Id"
	// HeaderService names the service that emitted the request.
	HeaderService = "X-Service"
	// HeaderUserID carries the acting user, when known.
	HeaderUserID = "X-User-Id"
	// HeaderAmznTraceID is the AWS-style trace header accepted as a TraceID
	// source on inbound requests.
	HeaderAmznTraceID = "X-Amzn-Trace-Id"

	// HeaderTraceparent is the W3C traceparent header key.
	HeaderTraceparent = "Traceparent"
	// HeaderContentType is the HTTP Content-Type header key.
	HeaderContentType = "Content-Type"
)
