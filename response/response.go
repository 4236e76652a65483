package response

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/projectecosystemapp/lib-resilience/correlation"
)

var (
	// ErrResponseFailed is returned by ExtractData for failed responses.
	ErrResponseFailed = errors.New("response failed")
	// ErrNoData is returned by ExtractData when a successful response
	// carries no data.
	ErrNoData = errors.New("response has no data")
)

// Error codes produced by the normalizers.
const (
	// CodeInvalidResponse marks a response matching no known shape.
	CodeInvalidResponse = "INVALID_RESPONSE"
	// CodeBatchPartialFailure marks a merged batch with at least one failure.
	CodeBatchPartialFailure = "BATCH_PARTIAL_FAILURE"
)

// ErrorDetail describes a failure inside a normalized response.
type ErrorDetail struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// Metadata carries the provenance of a normalized response.
type Metadata struct {
	CorrelationID string        `json:"correlationId,omitempty"`
	Timestamp     time.Time     `json:"timestamp"`
	SourceVariant string        `json:"sourceVariant,omitempty"`
	Duration      time.Duration `json:"duration,omitempty"`
}

// Response is the canonical envelope. Partial data plus an error is legal
// for partial-batch operations, but Success false always carries a
// non-empty error message.
type Response struct {
	Success  bool         `json:"success"`
	Data     any          `json:"data,omitempty"`
	Error    *ErrorDetail `json:"error,omitempty"`
	Metadata Metadata     `json:"metadata"`
}

// BatchItemError pairs one failed batch item with its position.
type BatchItemError struct {
	Index int         `json:"index"`
	Error ErrorDetail `json:"error"`
}

func newMetadata(ctx context.Context, variant string, duration time.Duration) Metadata {
	return Metadata{
		CorrelationID: correlation.CorrelationIDFromContext(ctx),
		Timestamp:     time.Now(),
		SourceVariant: variant,
		Duration:      duration,
	}
}

// ExtractData unwraps a successful response's data, failing with the
// envelope's error message otherwise.
func ExtractData(resp Response) (any, error) {
	if !resp.Success {
		message := "request failed"
		if resp.Error != nil && resp.Error.Message != "" {
			message = resp.Error.Message
		}

		return nil, fmt.Errorf("%w: %s", ErrResponseFailed, message)
	}

	if resp.Data == nil {
		return nil, ErrNoData
	}

	return resp.Data, nil
}

// MergeResponses combines a batch of normalized responses into one.
// Overall success requires every item to have succeeded; the merged data
// is the ordered data of the successful items. Any failure produces an
// aggregate error with per-item details.
func MergeResponses(responses []Response) Response {
	merged := Response{
		Success:  true,
		Metadata: Metadata{Timestamp: time.Now()},
	}

	data := make([]any, 0, len(responses))

	var failures []BatchItemError

	for i, resp := range responses {
		if merged.Metadata.CorrelationID == "" {
			merged.Metadata.CorrelationID = resp.Metadata.CorrelationID
		}

		if resp.Success {
			data = append(data, resp.Data)

			continue
		}

		detail := ErrorDetail{Message: "request failed"}
		if resp.Error != nil {
			detail = *resp.Error
		}

		failures = append(failures, BatchItemError{Index: i, Error: detail})
	}

	merged.Data = data

	if len(failures) > 0 {
		merged.Success = false
		merged.Error = &ErrorDetail{
			Code:    CodeBatchPartialFailure,
			Message: fmt.Sprintf("%d of %d requests failed", len(failures), len(responses)),
			Details: failures,
		}
	}

	return merged
}
