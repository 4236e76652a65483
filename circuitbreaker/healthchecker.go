package circuitbreaker

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/projectecosystemapp/lib-resilience/log"
)

var (
	// ErrInvalidHealthCheckInterval indicates that the health check interval must be positive
	ErrInvalidHealthCheckInterval = errors.New("circuitbreaker: health check interval must be positive")
	// ErrInvalidHealthCheckTimeout indicates that the health check timeout must be positive
	ErrInvalidHealthCheckTimeout = errors.New("circuitbreaker: health check timeout must be positive")
)

// HealthChecker periodically probes dependencies whose breakers are not
// CLOSED and resets the breaker once the dependency answers again. It also
// implements StateChangeListener so a freshly opened breaker gets an
// immediate check instead of waiting a full interval.
type HealthChecker struct {
	manager      *Manager
	checks       map[string]HealthCheckFunc
	interval     time.Duration
	checkTimeout time.Duration
	logger       log.Logger

	stopChan       chan struct{}
	immediateCheck chan string
	wg             sync.WaitGroup
	mu             sync.RWMutex
}

// NewHealthChecker creates a health checker.
// interval: how often to run health checks
// checkTimeout: timeout for each individual health check operation
func NewHealthChecker(manager *Manager, interval, checkTimeout time.Duration, logger log.Logger) (*HealthChecker, error) {
	if interval <= 0 {
		return nil, ErrInvalidHealthCheckInterval
	}

	if checkTimeout <= 0 {
		return nil, ErrInvalidHealthCheckTimeout
	}

	if logger == nil {
		logger = &log.NopLogger{}
	}

	return &HealthChecker{
		manager:        manager,
		checks:         make(map[string]HealthCheckFunc),
		interval:       interval,
		checkTimeout:   checkTimeout,
		logger:         logger,
		stopChan:       make(chan struct{}),
		immediateCheck: make(chan string, 10),
	}, nil
}

// Register adds a dependency to health check under the breaker's name.
func (hc *HealthChecker) Register(name string, check HealthCheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.checks[name] = check
	hc.logger.Infof("Registered health check: %s", name)
}

// Start begins the health check loop.
func (hc *HealthChecker) Start() {
	hc.wg.Add(1)

	go hc.healthCheckLoop()

	hc.logger.Infof("Health checker started - checking dependencies every %v", hc.interval)
}

// Stop gracefully stops the health checker.
func (hc *HealthChecker) Stop() {
	close(hc.stopChan)
	hc.wg.Wait()
	hc.logger.Info("Health checker stopped")
}

func (hc *HealthChecker) healthCheckLoop() {
	defer hc.wg.Done()

	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()

	// Entering the select immediately keeps the checker responsive to
	// immediate checks from the moment it starts.
	for {
		select {
		case <-ticker.C:
			hc.performHealthChecks()
		case name := <-hc.immediateCheck:
			hc.logger.Debugf("Triggering immediate health check: %s", name)
			hc.checkOne(name)
		case <-hc.stopChan:
			return
		}
	}
}

func (hc *HealthChecker) performHealthChecks() {
	hc.mu.RLock()
	// Snapshot to avoid holding the lock during checks
	checks := make(map[string]HealthCheckFunc, len(hc.checks))
	maps.Copy(checks, hc.checks)

	hc.mu.RUnlock()

	hc.logger.Debug("Performing health checks on registered dependencies...")

	unhealthyCount := 0
	recoveredCount := 0

	for name, check := range checks {
		if hc.manager.IsHealthy(name) {
			continue
		}

		unhealthyCount++

		if hc.probe(name, check) {
			recoveredCount++
		}
	}

	if unhealthyCount > 0 {
		hc.logger.Infof("Health check complete: %d dependencies needed healing, %d recovered", unhealthyCount, recoveredCount)
	} else {
		hc.logger.Debug("All dependencies healthy")
	}
}

// GetHealthStatus returns the breaker state of every registered dependency.
func (hc *HealthChecker) GetHealthStatus() map[string]string {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	status := make(map[string]string)

	for name := range hc.checks {
		status[name] = string(hc.manager.GetState(name))
	}

	return status
}

// OnStateChange implements StateChangeListener. A breaker that just opened
// gets an immediate health check scheduled.
func (hc *HealthChecker) OnStateChange(name string, from, to State) {
	hc.logger.Debugf("Health checker notified of state change for %s: %s -> %s", name, from, to)

	if to != StateOpen {
		return
	}

	hc.logger.Infof("Circuit breaker opened for %s - scheduling immediate health check", name)

	// Non-blocking send to avoid deadlock
	select {
	case hc.immediateCheck <- name:
		hc.logger.Debugf("Immediate health check scheduled: %s", name)
	default:
		hc.logger.Warnf("Immediate health check channel full for %s, will check on next interval", name)
	}
}

func (hc *HealthChecker) checkOne(name string) {
	hc.mu.RLock()
	check, exists := hc.checks[name]
	hc.mu.RUnlock()

	if !exists {
		hc.logger.Warnf("No health check registered: %s", name)

		return
	}

	if hc.manager.IsHealthy(name) {
		hc.logger.Debugf("Dependency %s is already healthy, skipping check", name)

		return
	}

	hc.probe(name, check)
}

// probe runs one health check and resets the breaker on success.
func (hc *HealthChecker) probe(name string, check HealthCheckFunc) bool {
	hc.logger.Infof("Attempting to heal dependency: %s (circuit breaker is not closed)", name)

	ctx, cancel := context.WithTimeout(context.Background(), hc.checkTimeout)
	defer cancel()

	if err := check(ctx); err != nil {
		hc.logger.Warnf("Dependency %s still unhealthy: %v - will retry in %v", name, err, hc.interval)

		return false
	}

	hc.logger.Infof("Dependency %s recovered - resetting circuit breaker", name)
	hc.manager.Reset(context.Background(), name)

	return true
}
