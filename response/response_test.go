package response

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func successResponse(data any) Response {
	return Response{Success: true, Data: data, Metadata: Metadata{Timestamp: time.Now()}}
}

func failureResponse(code, message string) Response {
	return Response{
		Success:  false,
		Error:    &ErrorDetail{Code: code, Message: message},
		Metadata: Metadata{Timestamp: time.Now()},
	}
}

func TestExtractData(t *testing.T) {
	data, err := ExtractData(successResponse("payload"))
	assert.NoError(t, err)
	assert.Equal(t, "payload", data)
}

func TestExtractData_Failure(t *testing.T) {
	_, err := ExtractData(failureResponse("HTTP_500", "internal error"))
	assert.ErrorIs(t, err, ErrResponseFailed)
	assert.ErrorContains(t, err, "internal error")
}

func TestExtractData_NoData(t *testing.T) {
	_, err := ExtractData(successResponse(nil))
	assert.ErrorIs(t, err, ErrNoData)
}

func TestIsRetriable(t *testing.T) {
	tests := []struct {
		name string
		resp Response
		want bool
	}{
		{name: "success is never retriable", resp: successResponse("x"), want: false},
		{name: "throttled status", resp: failureResponse("HTTP_429", "slow down"), want: true},
		{name: "bad gateway", resp: failureResponse("HTTP_502", ""), want: true},
		{name: "service unavailable", resp: failureResponse("HTTP_503", "down"), want: true},
		{name: "gateway timeout", resp: failureResponse("HTTP_504", ""), want: true},
		{name: "timeout code", resp: failureResponse("TIMEOUT", ""), want: true},
		{name: "aws throttling", resp: failureResponse("ThrottlingException", ""), want: true},
		{name: "timeout in message", resp: failureResponse("", "upstream timed out"), want: true},
		{name: "rate limit in message", resp: failureResponse("", "Rate limit exceeded"), want: true},
		{name: "validation error", resp: failureResponse("VALIDATION_ERROR", "bad email"), want: false},
		{name: "not found", resp: failureResponse("HTTP_404", "missing"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetriable(tt.resp))
		})
	}
}

func TestToUserMessage_KnownCode(t *testing.T) {
	message := ToUserMessage(failureResponse("HTTP_503", "connection refused to 10.0.0.7"))

	// Internal detail must not leak; the vetted message is used instead.
	assert.Equal(t, "The service is temporarily unavailable. Please try again shortly.", message)
}

func TestToUserMessage_UnknownCodeFallsBack(t *testing.T) {
	message := ToUserMessage(failureResponse("CUSTOM_CODE", "custom failure"))
	assert.Equal(t, "custom failure", message)
}

func TestToUserMessage_Success(t *testing.T) {
	assert.Empty(t, ToUserMessage(successResponse("x")))
}

func TestMergeResponses_AllSuccessful(t *testing.T) {
	merged := MergeResponses([]Response{
		successResponse("a"),
		successResponse("b"),
	})

	assert.True(t, merged.Success)
	assert.Equal(t, []any{"a", "b"}, merged.Data)
	assert.Nil(t, merged.Error)
}

func TestMergeResponses_PartialFailure(t *testing.T) {
	merged := MergeResponses([]Response{
		successResponse("a"),
		failureResponse("HTTP_500", "boom"),
		successResponse("c"),
	})

	assert.False(t, merged.Success)
	assert.Equal(t, []any{"a", "c"}, merged.Data)

	require.NotNil(t, merged.Error)
	assert.Equal(t, CodeBatchPartialFailure, merged.Error.Code)
	assert.Equal(t, "1 of 3 requests failed", merged.Error.Message)

	details, ok := merged.Error.Details.([]BatchItemError)
	require.True(t, ok)
	require.Len(t, details, 1)
	assert.Equal(t, 1, details[0].Index)
	assert.Equal(t, "boom", details[0].Error.Message)
}

func TestMergeResponses_Empty(t *testing.T) {
	merged := MergeResponses(nil)
	assert.True(t, merged.Success)
	assert.Empty(t, merged.Data)
}
