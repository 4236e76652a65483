// Package metrics provides a thread-safe factory over an OpenTelemetry meter
// with lazy instrument creation and fluent builders for labeled recordings.
package metrics
