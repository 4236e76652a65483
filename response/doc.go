// Package response converts the wire shapes of the two supported backend
// transports into one canonical envelope, so the breaker, tracker, and
// metrics layers stay backend-agnostic.
package response
