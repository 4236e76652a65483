// Package telemetry bootstraps OpenTelemetry tracing and metrics for
// services embedding this library: OTLP gRPC exporters, provider wiring,
// graceful shutdown, and span error helpers. The metrics subpackage exposes
// the factory the performance sink records through.
package telemetry
