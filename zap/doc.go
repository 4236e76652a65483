// Package zap provides the production implementation of log.Logger backed by
// go.uber.org/zap. Structured fields added via WithFields are carried on the
// underlying sugared logger, and messages are sanitized against log injection
// the same way the stdlib implementation is.
package zap
