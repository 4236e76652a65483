package circuitbreaker

import (
	"context"
	"time"
)

// PersistedState is the durable record of one breaker. One record exists
// per breaker name; writes are unconditional last-writer-wins.
type PersistedState struct {
	Name            string    `json:"name"`
	State           State     `json:"state"`
	Metrics         Metrics   `json:"metrics"`
	LastStateChange time.Time `json:"lastStateChange"`
	CorrelationID   string    `json:"correlationId,omitempty"`
	TTL             int64     `json:"ttl"`
}

// StateStore persists breaker state across process restarts. Implementations
// must treat a missing record as (nil, nil), not an error.
type StateStore interface {
	// Load returns the persisted record for name, or nil when none exists.
	Load(ctx context.Context, name string) (*PersistedState, error)

	// Save writes the record, replacing any previous one. The record's TTL
	// (in seconds) bounds how long the store keeps it.
	Save(ctx context.Context, record PersistedState) error
}

// NopStore discards writes and never finds a record. It backs breakers that
// keep state in memory only.
type NopStore struct{}

// Load always reports no record.
func (NopStore) Load(context.Context, string) (*PersistedState, error) { return nil, nil }

// Save discards the record.
func (NopStore) Save(context.Context, PersistedState) error { return nil }
