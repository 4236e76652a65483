// Package log defines the logging interface used across the library and two
// reference implementations: GoLogger on the standard library logger and
// NopLogger as a null object. Production services plug in the zap-backed
// implementation from the zap package.
package log
