package constant

// TelemetrySDKName identifies this library in OTEL telemetry resource attributes.
const TelemetrySDKName = "lib-resilience/telemetry"

// MaxMetricLabelLength is the maximum length for metric labels to prevent cardinality explosion.
// Used by the performance and circuitbreaker packages for label sanitization.
const MaxMetricLabelLength = 64

// Telemetry attribute keys for database connectors.
const (
	// AttrDBSystem is the OTEL semantic convention attribute key for the database system name.
	AttrDBSystem = "db.system"
)

// Database system identifiers used as values for AttrDBSystem.
const (
	// DBSystemRedis is the OTEL semantic convention value for Redis.
	DBSystemRedis = "redis"
)

// Metric dimension keys shared by the performance tracker and its sinks.
const (
	// LabelOperation tags a measurement with the logical operation name.
	LabelOperation = "operation"
	// LabelVariant tags a measurement with the backend variant that answered.
	LabelVariant = "variant"
)

// SanitizeMetricLabel truncates a label value to MaxMetricLabelLength
// to prevent metric cardinality explosion in OTEL backends.
func SanitizeMetricLabel(value string) string {
	if len(value) > MaxMetricLabelLength {
		return value[:MaxMetricLabelLength]
	}

	return value
}
