package circuitbreaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/projectecosystemapp/lib-resilience/correlation"
	"github.com/projectecosystemapp/lib-resilience/log"
)

// Breaker guards one named remote operation. The in-memory state is
// authoritative for the process; the store is a best-effort cache for
// cross-process learning, written after every outcome and read once at
// construction.
type Breaker struct {
	name   string
	cfg    Config
	logger log.Logger
	store  StateStore

	// onStateChange is invoked synchronously under the state mutex; the
	// manager fans out to listeners on goroutines.
	onStateChange func(name string, from, to State)

	mu              sync.Mutex
	state           State
	metrics         Metrics
	lastStateChange time.Time
	probing         bool
}

// New creates a breaker, seeding its state from the store when a
// non-stale record exists. Load failures are logged and ignored.
func New(ctx context.Context, name string, cfg Config) (*Breaker, error) {
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	b := &Breaker{
		name:            name,
		cfg:             cfg,
		logger:          cfg.Logger,
		store:           cfg.Store,
		state:           StateClosed,
		lastStateChange: time.Now(),
	}

	b.restore(ctx)

	return b, nil
}

// restore adopts persisted state unless the record is older than twice the
// reset timeout, which would let a crashed process resurrect stale OPEN
// state indefinitely.
func (b *Breaker) restore(ctx context.Context) {
	record, err := b.store.Load(ctx, b.name)
	if err != nil {
		b.logger.Warnf("Circuit breaker [%s] state load failed, starting CLOSED: %v", b.name, err)

		return
	}

	if record == nil {
		return
	}

	if age := time.Since(record.LastStateChange); age > 2*b.cfg.ResetTimeout {
		b.logger.Infof("Circuit breaker [%s] ignoring stale persisted state (%s old), starting CLOSED", b.name, age)

		return
	}

	b.state = record.State
	b.metrics = record.Metrics
	b.metrics.recomputeErrorRate()
	b.lastStateChange = record.LastStateChange

	b.logger.Infof("Circuit breaker [%s] restored persisted state: %s", b.name, record.State)
}

// Execute runs operation through the breaker. A rejected call invokes the
// fallback when one is supplied, otherwise it fails with an OpenError. A
// failed call that leaves the breaker OPEN is also masked by the fallback.
func (b *Breaker) Execute(ctx context.Context, operation Operation, fallback Operation) (any, error) {
	if !b.canAttempt() {
		if fallback != nil {
			b.logger.Warnf("Circuit breaker [%s] is %s - using fallback", b.name, b.State())

			return fallback(ctx)
		}

		return nil, &OpenError{Name: b.name}
	}

	result, err := b.run(ctx, operation)
	if err != nil {
		nowOpen := b.onFailure(ctx, err)

		if fallback != nil && nowOpen {
			b.logger.Warnf("Circuit breaker [%s] opened - using fallback", b.name)

			return fallback(ctx)
		}

		return nil, err
	}

	b.onSuccess(ctx)

	return result, nil
}

// Do runs a typed operation through the breaker.
func Do[T any](ctx context.Context, b *Breaker, operation func(ctx context.Context) (T, error), fallback func(ctx context.Context) (T, error)) (T, error) {
	var fallbackAny Operation
	if fallback != nil {
		fallbackAny = func(ctx context.Context) (any, error) { return fallback(ctx) }
	}

	result, err := b.Execute(ctx, func(ctx context.Context) (any, error) {
		return operation(ctx)
	}, fallbackAny)
	if err != nil {
		var zero T

		return zero, err
	}

	typed, ok := result.(T)
	if !ok {
		var zero T

		return zero, fmt.Errorf("circuit breaker %q: unexpected result type %T", b.name, result)
	}

	return typed, nil
}

// canAttempt decides whether a call may proceed, transitioning OPEN to
// HALF_OPEN once the reset timeout has elapsed. HALF_OPEN admits a single
// in-flight probe; concurrent callers are rejected until it completes.
func (b *Breaker) canAttempt() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.lastStateChange) < b.cfg.ResetTimeout {
			return false
		}

		b.transitionLocked(StateHalfOpen)
		b.probing = true

		return true
	case StateHalfOpen:
		if b.probing {
			return false
		}

		b.probing = true

		return true
	default:
		return false
	}
}

// run races the operation against the configured timeout. On timeout the
// operation's context is cancelled but the call itself is not awaited
// further; it keeps running in the background until it observes the
// cancellation.
func (b *Breaker) run(ctx context.Context, operation Operation) (any, error) {
	opCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}

	done := make(chan outcome, 1)

	go func() {
		result, err := operation(opCtx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-opCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		return nil, fmt.Errorf("%w: circuit breaker %q gave up after %v", ErrTimeout, b.name, b.cfg.Timeout)
	}
}

func (b *Breaker) onSuccess(ctx context.Context) {
	b.mu.Lock()

	b.probing = false
	b.metrics.TotalRequests++
	b.metrics.Successes++
	b.metrics.ConsecutiveSuccesses++
	b.metrics.ConsecutiveFailures = 0
	b.metrics.recomputeErrorRate()

	if b.state == StateHalfOpen && b.metrics.ConsecutiveSuccesses >= b.cfg.SuccessThreshold {
		b.metrics = Metrics{}
		b.transitionLocked(StateClosed)
	}

	record := b.recordLocked(ctx)
	b.mu.Unlock()

	b.persist(ctx, record)
}

// onFailure records one failed outcome and reports whether the breaker is
// OPEN afterwards.
func (b *Breaker) onFailure(ctx context.Context, err error) bool {
	b.mu.Lock()

	b.probing = false
	b.metrics.TotalRequests++
	b.metrics.Failures++
	b.metrics.ConsecutiveFailures++
	b.metrics.ConsecutiveSuccesses = 0
	b.metrics.recomputeErrorRate()

	b.logger.Warnf("Circuit breaker [%s] recorded failure %d: %v", b.name, b.metrics.ConsecutiveFailures, err)

	switch b.state {
	case StateClosed:
		if b.metrics.ConsecutiveFailures >= b.cfg.FailureThreshold ||
			(b.metrics.TotalRequests >= b.cfg.VolumeThreshold && b.metrics.ErrorRate >= b.cfg.ErrorThresholdPercentage) {
			b.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		b.transitionLocked(StateOpen)
	}

	nowOpen := b.state == StateOpen
	record := b.recordLocked(ctx)
	b.mu.Unlock()

	b.persist(ctx, record)

	return nowOpen
}

func (b *Breaker) transitionLocked(to State) {
	from := b.state
	if from == to {
		return
	}

	b.state = to
	b.lastStateChange = time.Now()

	switch to {
	case StateOpen:
		b.logger.Errorf("Circuit breaker [%s] OPENED - requests will fast-fail for %v", b.name, b.cfg.ResetTimeout)
	case StateHalfOpen:
		b.logger.Infof("Circuit breaker [%s] HALF_OPEN - probing recovery", b.name)
	case StateClosed:
		b.logger.Infof("Circuit breaker [%s] CLOSED - dependency is healthy", b.name)
	}

	if b.onStateChange != nil {
		b.onStateChange(b.name, from, to)
	}
}

func (b *Breaker) recordLocked(ctx context.Context) PersistedState {
	return PersistedState{
		Name:            b.name,
		State:           b.state,
		Metrics:         b.metrics,
		LastStateChange: b.lastStateChange,
		CorrelationID:   correlation.CorrelationIDFromContext(ctx),
		TTL:             int64((2 * b.cfg.ResetTimeout).Seconds()),
	}
}

// persist writes the record best-effort. The guarded call never fails
// because of the store.
func (b *Breaker) persist(ctx context.Context, record PersistedState) {
	if err := b.store.Save(ctx, record); err != nil {
		b.logger.Warnf("Circuit breaker [%s] state persistence failed: %v", b.name, err)
	}
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.state
}

// Metrics returns a snapshot of the rolling counters.
func (b *Breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.metrics
}

// GetStatus returns a read-only snapshot of the breaker.
func (b *Breaker) GetStatus() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Status{
		Name:            b.name,
		State:           b.state,
		Metrics:         b.metrics,
		LastStateChange: b.lastStateChange,
	}
}

// Reset forces the breaker to CLOSED with zeroed counters and persists the
// fresh state.
func (b *Breaker) Reset(ctx context.Context) {
	b.mu.Lock()

	b.metrics = Metrics{}
	b.probing = false
	b.transitionLocked(StateClosed)

	record := b.recordLocked(ctx)
	b.mu.Unlock()

	b.persist(ctx, record)
}

// Trip forces the breaker to OPEN and persists the state. Requests fast-fail
// until the reset timeout elapses or Reset is called.
func (b *Breaker) Trip(ctx context.Context) {
	b.mu.Lock()

	b.probing = false
	b.transitionLocked(StateOpen)

	record := b.recordLocked(ctx)
	b.mu.Unlock()

	b.persist(ctx, record)
}
