package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/projectecosystemapp/lib-resilience/log"
)

// State represents a circuit breaker state.
type State string

const (
	// StateClosed allows every call through.
	StateClosed State = "CLOSED"
	// StateOpen rejects every call until the reset timeout elapses.
	StateOpen State = "OPEN"
	// StateHalfOpen allows a single probe call at a time.
	StateHalfOpen State = "HALF_OPEN"
	// StateUnknown is reported for breakers the manager does not know.
	StateUnknown State = "UNKNOWN"
)

var (
	// ErrCircuitOpen is returned when a call is rejected because the
	// breaker is open and no fallback was supplied.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTimeout is returned when a guarded call exceeds the configured timeout.
	ErrTimeout = errors.New("operation timed out")
	// ErrInvalidConfig indicates an invalid breaker configuration.
	ErrInvalidConfig = errors.New("invalid circuit breaker config")
)

// OpenError names the breaker that rejected a call. It unwraps to ErrCircuitOpen.
type OpenError struct {
	Name string
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open: request rejected", e.Name)
}

func (e *OpenError) Unwrap() error { return ErrCircuitOpen }

// Metrics holds the rolling counters of one breaker. ErrorRate is always
// recomputed from Failures and TotalRequests, never mutated independently.
type Metrics struct {
	Successes            uint32  `json:"successes"`
	Failures             uint32  `json:"failures"`
	ConsecutiveSuccesses uint32  `json:"consecutiveSuccesses"`
	ConsecutiveFailures  uint32  `json:"consecutiveFailures"`
	TotalRequests        uint32  `json:"totalRequests"`
	ErrorRate            float64 `json:"errorRate"`
}

// recomputeErrorRate derives the percentage of failed requests.
func (m *Metrics) recomputeErrorRate() {
	if m.TotalRequests == 0 {
		m.ErrorRate = 0

		return
	}

	m.ErrorRate = float64(m.Failures) / float64(m.TotalRequests) * 100
}

// Status is a read-only snapshot of one breaker.
type Status struct {
	Name            string    `json:"name"`
	State           State     `json:"state"`
	Metrics         Metrics   `json:"metrics"`
	LastStateChange time.Time `json:"lastStateChange"`
}

// Operation is a guarded call. The context carries the per-call deadline.
type Operation func(ctx context.Context) (any, error)

// Default configuration values applied by normalize.
const (
	DefaultFailureThreshold         = 5
	DefaultSuccessThreshold         = 2
	DefaultTimeout                  = 10 * time.Second
	DefaultResetTimeout             = 30 * time.Second
	DefaultVolumeThreshold          = 10
	DefaultErrorThresholdPercentage = 50.0
)

// Config holds circuit breaker configuration. Zero values take documented
// defaults.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens a
	// closed breaker.
	FailureThreshold uint32
	// SuccessThreshold is the number of consecutive successes that closes
	// a half-open breaker.
	SuccessThreshold uint32
	// Timeout is the maximum wait per guarded call; exceeding it counts
	// as a failure.
	Timeout time.Duration
	// ResetTimeout is how long an open breaker waits before probing.
	ResetTimeout time.Duration
	// VolumeThreshold is the minimum request count before the error rate
	// is evaluated.
	VolumeThreshold uint32
	// ErrorThresholdPercentage opens a closed breaker once the error rate
	// reaches it and VolumeThreshold is met.
	ErrorThresholdPercentage float64

	// Store persists state across restarts. Nil keeps state in memory only.
	Store StateStore
	// Logger receives operational logging. Nil means NopLogger.
	Logger log.Logger
}

func (cfg *Config) normalize() {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}

	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = DefaultSuccessThreshold
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}

	if cfg.VolumeThreshold == 0 {
		cfg.VolumeThreshold = DefaultVolumeThreshold
	}

	if cfg.ErrorThresholdPercentage <= 0 {
		cfg.ErrorThresholdPercentage = DefaultErrorThresholdPercentage
	}

	if cfg.Store == nil {
		cfg.Store = NopStore{}
	}

	if cfg.Logger == nil {
		cfg.Logger = &log.NopLogger{}
	}
}

func (cfg Config) validate() error {
	if cfg.ErrorThresholdPercentage > 100 {
		return fmt.Errorf("%w: ErrorThresholdPercentage must not exceed 100", ErrInvalidConfig)
	}

	return nil
}

// StateChangeListener is notified when a breaker changes state.
type StateChangeListener interface {
	OnStateChange(name string, from State, to State)
}

// HealthCheckFunc checks whether a guarded dependency is reachable.
type HealthCheckFunc func(ctx context.Context) error
