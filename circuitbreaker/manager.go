package circuitbreaker

import (
	"context"
	"fmt"
	"sync"

	"github.com/projectecosystemapp/lib-resilience/log"
	"github.com/projectecosystemapp/lib-resilience/telemetry/metrics"
)

// Manager owns the breakers of a process, one per guarded dependency, and
// fans state change notifications out to registered listeners.
type Manager struct {
	mu        sync.RWMutex
	breakers  map[string]*Breaker
	listeners []StateChangeListener

	logger         log.Logger
	metricsFactory *metrics.MetricsFactory
}

// NewManager creates a manager. The metrics factory is optional; when
// present, state transitions are counted per breaker.
func NewManager(logger log.Logger, factory *metrics.MetricsFactory) *Manager {
	if logger == nil {
		logger = &log.NopLogger{}
	}

	return &Manager{
		breakers:       make(map[string]*Breaker),
		listeners:      make([]StateChangeListener, 0),
		logger:         logger,
		metricsFactory: factory,
	}
}

// GetOrCreate returns the breaker registered under name, creating it with
// config on first use. The config of an existing breaker is not changed.
func (m *Manager) GetOrCreate(ctx context.Context, name string, cfg Config) (*Breaker, error) {
	m.mu.RLock()
	breaker, exists := m.breakers[name]
	m.mu.RUnlock()

	if exists {
		return breaker, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if breaker, exists = m.breakers[name]; exists {
		return breaker, nil
	}

	if cfg.Logger == nil {
		cfg.Logger = m.logger
	}

	breaker, err := New(ctx, name, cfg)
	if err != nil {
		return nil, err
	}

	breaker.onStateChange = m.handleStateChange
	m.breakers[name] = breaker

	m.logger.Infof("Created circuit breaker: %s", name)

	return breaker, nil
}

// Execute runs operation through the named breaker. The breaker must have
// been created through GetOrCreate first.
func (m *Manager) Execute(ctx context.Context, name string, operation Operation, fallback Operation) (any, error) {
	m.mu.RLock()
	breaker, exists := m.breakers[name]
	m.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("circuit breaker not found: %s (call GetOrCreate first)", name)
	}

	return breaker.Execute(ctx, operation, fallback)
}

// GetState returns the current state of the named breaker, or StateUnknown
// when no such breaker exists.
func (m *Manager) GetState(name string) State {
	m.mu.RLock()
	breaker, exists := m.breakers[name]
	m.mu.RUnlock()

	if !exists {
		return StateUnknown
	}

	return breaker.State()
}

// GetStatus returns a snapshot of the named breaker.
func (m *Manager) GetStatus(name string) (Status, bool) {
	m.mu.RLock()
	breaker, exists := m.breakers[name]
	m.mu.RUnlock()

	if !exists {
		return Status{}, false
	}

	return breaker.GetStatus(), true
}

// IsHealthy reports whether the named breaker is CLOSED. OPEN and
// HALF_OPEN both need health checker intervention.
func (m *Manager) IsHealthy(name string) bool {
	state := m.GetState(name)
	healthy := state == StateClosed

	m.logger.Debugf("IsHealthy check: name=%s, state=%s, healthy=%v", name, state, healthy)

	return healthy
}

// Reset forces the named breaker back to CLOSED with zeroed counters.
func (m *Manager) Reset(ctx context.Context, name string) {
	m.mu.RLock()
	breaker, exists := m.breakers[name]
	m.mu.RUnlock()

	if !exists {
		m.logger.Warnf("Reset requested for unknown circuit breaker: %s", name)

		return
	}

	m.logger.Infof("Resetting circuit breaker: %s", name)
	breaker.Reset(ctx)
}

// Trip forces the named breaker to OPEN. Unknown names are ignored with a
// warning.
func (m *Manager) Trip(ctx context.Context, name string) {
	m.mu.RLock()
	breaker, exists := m.breakers[name]
	m.mu.RUnlock()

	if !exists {
		m.logger.Warnf("Trip requested for unknown circuit breaker: %s", name)

		return
	}

	m.logger.Warnf("Tripping circuit breaker: %s", name)
	breaker.Trip(ctx)
}

// RegisterStateChangeListener registers a listener for state change
// notifications.
func (m *Manager) RegisterStateChangeListener(listener StateChangeListener) {
	if listener == nil {
		m.logger.Warnf("Attempted to register a nil state change listener")

		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.listeners = append(m.listeners, listener)
	m.logger.Debugf("Registered state change listener (total: %d)", len(m.listeners))
}

// handleStateChange records the transition and notifies listeners. Each
// listener runs on its own goroutine so a slow or panicking listener
// cannot block breaker operations.
func (m *Manager) handleStateChange(name string, from, to State) {
	m.logger.Warnf("Circuit breaker [%s] state changed: %s -> %s", name, from, to)

	m.recordStateChange(name, from, to)

	m.mu.RLock()
	listeners := make([]StateChangeListener, len(m.listeners))
	copy(listeners, m.listeners)
	m.mu.RUnlock()

	for _, listener := range listeners {
		go func(l StateChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Errorf("State change listener panic for breaker %s: %v", name, r)
				}
			}()

			l.OnStateChange(name, from, to)
		}(listener)
	}
}

func (m *Manager) recordStateChange(name string, from, to State) {
	if m.metricsFactory == nil {
		return
	}

	counter, err := m.metricsFactory.Counter(metrics.MetricCircuitStateChanges)
	if err != nil {
		m.logger.Warnf("Failed to build state change counter: %v", err)

		return
	}

	labels := map[string]string{
		"breaker": name,
		"from":    string(from),
		"to":      string(to),
	}

	if err := counter.WithLabels(labels).AddOne(context.Background()); err != nil {
		m.logger.Warnf("Failed to record state change: %v", err)
	}
}
