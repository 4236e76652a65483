package response

import "strings"

// retriableCodes are the error codes that warrant a retry above the breaker.
var retriableCodes = map[string]struct{}{
	"HTTP_429":                 {},
	"HTTP_502":                 {},
	"HTTP_503":                 {},
	"HTTP_504":                 {},
	"TIMEOUT":                  {},
	"THROTTLING":               {},
	"ThrottlingException":      {},
	"TooManyRequestsException": {},
	"ServiceUnavailable":       {},
}

// retriableFragments classify errors by message text when no known code is
// present.
var retriableFragments = []string{
	"timeout",
	"timed out",
	"throttl",
	"rate limit",
	"too many requests",
	"service unavailable",
}

// IsRetriable reports whether the response's failure is transient enough
// to retry. Successful responses are never retriable.
func IsRetriable(resp Response) bool {
	if resp.Success || resp.Error == nil {
		return false
	}

	if _, ok := retriableCodes[resp.Error.Code]; ok {
		return true
	}

	message := strings.ToLower(resp.Error.Message)

	for _, fragment := range retriableFragments {
		if strings.Contains(message, fragment) {
			return true
		}
	}

	return false
}

// userMessages maps known error codes to vetted human-readable strings so
// internal codes never reach end users directly.
var userMessages = map[string]string{
	"HTTP_400":              "The request was invalid. Please check your input.",
	"HTTP_401":              "You are not authorized to perform this action.",
	"HTTP_403":              "You do not have permission to perform this action.",
	"HTTP_404":              "The requested item could not be found.",
	"HTTP_429":              "The service is busy. Please try again in a moment.",
	"HTTP_500":              "Something went wrong. Please try again.",
	"HTTP_502":              "The service is temporarily unavailable. Please try again shortly.",
	"HTTP_503":              "The service is temporarily unavailable. Please try again shortly.",
	"HTTP_504":              "The request took too long. Please try again.",
	"TIMEOUT":               "The request took too long. Please try again.",
	"THROTTLING":            "The service is busy. Please try again in a moment.",
	"UNAUTHORIZED":          "You are not authorized to perform this action.",
	"FORBIDDEN":             "You do not have permission to perform this action.",
	"NOT_FOUND":             "The requested item could not be found.",
	"VALIDATION_ERROR":      "The request was invalid. Please check your input.",
	CodeInvalidResponse:     "Something went wrong. Please try again.",
	CodeBatchPartialFailure: "Some items could not be processed. Please try again.",
}

// ToUserMessage maps a failed response to a human-readable message,
// falling back to the raw error message for unknown codes. Successful
// responses map to an empty string.
func ToUserMessage(resp Response) string {
	if resp.Success || resp.Error == nil {
		return ""
	}

	if message, ok := userMessages[resp.Error.Code]; ok {
		return message
	}

	if resp.Error.Message != "" {
		return resp.Error.Message
	}

	return "Something went wrong. Please try again."
}
