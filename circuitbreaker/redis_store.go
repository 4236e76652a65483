package circuitbreaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	libredis "github.com/projectecosystemapp/lib-resilience/redis"
)

// ErrNilRedisClient indicates a RedisStore was created without a client.
var ErrNilRedisClient = errors.New("redis client cannot be nil")

// stateKeyPrefix namespaces breaker records in the shared keyspace.
const stateKeyPrefix = "circuit:state:"

// RedisStore persists breaker state in Redis, one JSON record per breaker
// under "circuit:state:<name>" with the record's TTL as key expiry.
type RedisStore struct {
	client *libredis.Client
}

// NewRedisStore creates a RedisStore over the given client.
func NewRedisStore(client *libredis.Client) (*RedisStore, error) {
	if client == nil {
		return nil, ErrNilRedisClient
	}

	return &RedisStore{client: client}, nil
}

// Load reads and decodes the record for name. A missing key is (nil, nil).
func (s *RedisStore) Load(ctx context.Context, name string) (*PersistedState, error) {
	rdb, err := s.client.GetClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("load circuit state: %w", err)
	}

	payload, err := rdb.Get(ctx, stateKeyPrefix+name).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("load circuit state: %w", err)
	}

	var record PersistedState
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("decode circuit state: %w", err)
	}

	return &record, nil
}

// Save encodes and writes the record, honoring its TTL as key expiry.
func (s *RedisStore) Save(ctx context.Context, record PersistedState) error {
	rdb, err := s.client.GetClient(ctx)
	if err != nil {
		return fmt.Errorf("save circuit state: %w", err)
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode circuit state: %w", err)
	}

	var expiry time.Duration
	if record.TTL > 0 {
		expiry = time.Duration(record.TTL) * time.Second
	}

	if err := rdb.Set(ctx, stateKeyPrefix+record.Name, payload, expiry).Err(); err != nil {
		return fmt.Errorf("save circuit state: %w", err)
	}

	return nil
}
