package response

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// NormalizeTransportA converts the data-or-errors-array shape. A missing
// or empty errors array means success; a non-empty one yields a failure
// carrying the first error's message and code, preserving partial data.
func NormalizeTransportA(ctx context.Context, raw any, variant string, duration time.Duration) Response {
	meta := newMetadata(ctx, variant, duration)

	envelope, ok := raw.(map[string]any)
	if !ok {
		return Response{Success: true, Data: raw, Metadata: meta}
	}

	data, hasData := envelope["data"]
	if !hasData {
		data = raw
	}

	errorsList, _ := envelope["errors"].([]any)
	if len(errorsList) == 0 {
		return Response{Success: true, Data: data, Metadata: meta}
	}

	detail := &ErrorDetail{Message: "Unknown error", Details: errorsList}

	if first, ok := errorsList[0].(map[string]any); ok {
		if message, ok := first["message"].(string); ok && message != "" {
			detail.Message = message
		}

		if code, ok := first["errorType"].(string); ok {
			detail.Code = code
		} else if code, ok := first["code"].(string); ok {
			detail.Code = code
		}
	}

	resp := Response{Success: false, Error: detail, Metadata: meta}
	if hasData {
		// Partial data alongside errors is legal for batch operations.
		resp.Data = data
	}

	return resp
}

// NormalizeTransportB converts the HTTP-envelope shape. Recognized forms
// are a statusCode+body envelope (the body may be a JSON string, parsed
// with a fallback to the raw string), a {success, data, error} object,
// and a bare payload treated as an implicit success.
func NormalizeTransportB(ctx context.Context, raw any, variant string, duration time.Duration) Response {
	meta := newMetadata(ctx, variant, duration)

	if raw == nil {
		return invalidResponse(meta, "response is empty")
	}

	envelope, ok := raw.(map[string]any)
	if !ok {
		return Response{Success: true, Data: raw, Metadata: meta}
	}

	if statusCode, ok := numericField(envelope, "statusCode"); ok {
		return normalizeStatusEnvelope(statusCode, envelope["body"], meta)
	}

	if success, ok := envelope["success"].(bool); ok {
		return normalizeSuccessEnvelope(success, envelope, meta)
	}

	return Response{Success: true, Data: raw, Metadata: meta}
}

func normalizeStatusEnvelope(statusCode int, body any, meta Metadata) Response {
	parsed := parseBody(body)

	if statusCode >= 200 && statusCode < 300 {
		return Response{Success: true, Data: parsed, Metadata: meta}
	}

	detail := &ErrorDetail{
		Code:    fmt.Sprintf("HTTP_%d", statusCode),
		Message: errorMessageFromBody(parsed, statusCode),
		Details: parsed,
	}

	return Response{Success: false, Error: detail, Metadata: meta}
}

func normalizeSuccessEnvelope(success bool, envelope map[string]any, meta Metadata) Response {
	if success {
		return Response{Success: true, Data: envelope["data"], Metadata: meta}
	}

	detail := &ErrorDetail{Message: "Unknown error"}

	switch errValue := envelope["error"].(type) {
	case string:
		detail.Message = errValue
	case map[string]any:
		if message, ok := errValue["message"].(string); ok && message != "" {
			detail.Message = message
		}

		if code, ok := errValue["code"].(string); ok {
			detail.Code = code
		}

		detail.Details = errValue["details"]
	}

	resp := Response{Success: false, Error: detail, Metadata: meta}
	if data, ok := envelope["data"]; ok {
		resp.Data = data
	}

	return resp
}

// parseBody decodes a JSON string body, falling back to the raw string
// when it does not parse. Non-string bodies pass through unchanged.
func parseBody(body any) any {
	text, ok := body.(string)
	if !ok {
		return body
	}

	var parsed any
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return text
	}

	return parsed
}

func errorMessageFromBody(body any, statusCode int) string {
	if envelope, ok := body.(map[string]any); ok {
		if message, ok := envelope["error"].(string); ok && message != "" {
			return message
		}

		if message, ok := envelope["message"].(string); ok && message != "" {
			return message
		}
	}

	if text, ok := body.(string); ok && text != "" {
		return text
	}

	if text := http.StatusText(statusCode); text != "" {
		return text
	}

	return fmt.Sprintf("request failed with status %d", statusCode)
}

func numericField(envelope map[string]any, key string) (int, bool) {
	switch value := envelope[key].(type) {
	case int:
		return value, true
	case int64:
		return int(value), true
	case float64:
		return int(value), true
	case json.Number:
		n, err := value.Int64()
		if err != nil {
			return 0, false
		}

		return int(n), true
	default:
		return 0, false
	}
}

func invalidResponse(meta Metadata, message string) Response {
	return Response{
		Success: false,
		Error: &ErrorDetail{
			Code:    CodeInvalidResponse,
			Message: message,
		},
		Metadata: meta,
	}
}
