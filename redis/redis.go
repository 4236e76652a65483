package redis

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/projectecosystemapp/lib-resilience/backoff"
	constant "github.com/projectecosystemapp/lib-resilience/constants"
	"github.com/projectecosystemapp/lib-resilience/log"
	"github.com/projectecosystemapp/lib-resilience/telemetry"
	"github.com/projectecosystemapp/lib-resilience/telemetry/metrics"
)

var (
	// ErrNilClient is returned when a redis client receiver is nil.
	ErrNilClient = errors.New("redis client is nil")
	// ErrInvalidConfig indicates the provided redis configuration is invalid.
	ErrInvalidConfig = errors.New("invalid redis config")
)

// Config defines Redis client topology, auth, TLS, and connection settings.
type Config struct {
	Topology       Topology
	TLS            *TLSConfig
	Auth           Auth
	Options        ConnectionOptions
	Logger         log.Logger
	MetricsFactory *metrics.MetricsFactory
}

// Topology selects exactly one Redis deployment mode.
type Topology struct {
	Standalone *StandaloneTopology
	Sentinel   *SentinelTopology
	Cluster    *ClusterTopology
}

// StandaloneTopology configures single-node Redis access.
type StandaloneTopology struct {
	Address string
}

// SentinelTopology configures Redis Sentinel access.
type SentinelTopology struct {
	Addresses  []string
	MasterName string
}

// ClusterTopology configures Redis cluster access.
type ClusterTopology struct {
	Addresses []string
}

// TLSConfig configures TLS validation for Redis connections.
type TLSConfig struct {
	CACertBase64 string
	MinVersion   uint16
}

// Auth configures Redis authentication.
type Auth struct {
	StaticPassword *StaticPasswordAuth
}

// StaticPasswordAuth authenticates using a static password.
type StaticPasswordAuth struct {
	Password string
}

// String returns a redacted representation to prevent accidental credential logging.
func (StaticPasswordAuth) String() string { return "StaticPasswordAuth{Password:REDACTED}" }

// GoString returns a redacted representation for fmt %#v.
func (a StaticPasswordAuth) GoString() string { return a.String() }

// ConnectionOptions configures protocol, timeouts, pools, and retries.
type ConnectionOptions struct {
	DB              int
	Protocol        int
	PoolSize        int
	MinIdleConns    int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	DialTimeout     time.Duration
	PoolTimeout     time.Duration
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
}

// Status reports client connectivity.
type Status struct {
	Connected bool
}

// connectionFailuresMetric defines the counter for redis connection failures.
var connectionFailuresMetric = metrics.Metric{
	Name:        "redis_connection_failures_total",
	Unit:        "1",
	Description: "Total number of redis connection failures",
}

// reconnectionsMetric defines the counter for redis reconnection attempts.
var reconnectionsMetric = metrics.Metric{
	Name:        "redis_reconnections_total",
	Unit:        "1",
	Description: "Total number of redis reconnection attempts",
}

// Client wraps a redis.UniversalClient with validated construction and
// rate-limited reconnection.
type Client struct {
	mu             sync.RWMutex
	cfg            Config
	logger         log.Logger
	metricsFactory *metrics.MetricsFactory
	client         redis.UniversalClient
	connected      bool

	// Reconnect rate-limiting enforces exponential backoff between
	// attempts while the server is down.
	lastReconnectAttempt time.Time
	reconnectAttempts    int
}

// New validates config, connects to Redis, and returns a ready client.
func New(ctx context.Context, cfg Config) (*Client, error) {
	normalized, err := normalizeConfig(cfg)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:            normalized,
		logger:         normalized.Logger,
		metricsFactory: normalized.MetricsFactory,
	}

	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

// Connect establishes a Redis connection using the current client configuration.
func (c *Client) Connect(ctx context.Context) error {
	if c == nil {
		return ErrNilClient
	}

	tracer := otel.Tracer("redis")

	ctx, span := tracer.Start(ctx, "redis.connect")
	defer span.End()

	span.SetAttributes(attribute.String(constant.AttrDBSystem, constant.DBSystemRedis))

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.logger == nil {
		c.logger = &log.NopLogger{}
	}

	if err := c.connectLocked(ctx); err != nil {
		c.recordConnectionFailure(ctx, "connect")

		telemetry.HandleSpanError(&span, "Failed to connect to redis", err)

		return err
	}

	return nil
}

// reconnectBackoffCap is the maximum delay between reconnect attempts.
const reconnectBackoffCap = 30 * time.Second

// GetClient returns a connected redis client, reconnecting on demand if needed.
func (c *Client) GetClient(ctx context.Context) (redis.UniversalClient, error) {
	if c == nil {
		return nil, ErrNilClient
	}

	c.mu.RLock()

	if c.client != nil {
		client := c.client
		c.mu.RUnlock()

		return client, nil
	}

	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.logger == nil {
		c.logger = &log.NopLogger{}
	}

	if c.client != nil {
		return c.client, nil
	}

	// Rate-limit reconnect attempts: after a recent failure, enforce a
	// minimum delay before the next attempt.
	if c.reconnectAttempts > 0 {
		delay := backoff.ExponentialWithJitter(500*time.Millisecond, c.reconnectAttempts)
		if delay > reconnectBackoffCap {
			delay = reconnectBackoffCap
		}

		if elapsed := time.Since(c.lastReconnectAttempt); elapsed < delay {
			return nil, fmt.Errorf("redis reconnect: rate-limited (next attempt in %s)", delay-elapsed)
		}
	}

	c.lastReconnectAttempt = time.Now()

	// Only trace when actually reconnecting.
	tracer := otel.Tracer("redis")

	ctx, span := tracer.Start(ctx, "redis.reconnect")
	defer span.End()

	span.SetAttributes(attribute.String(constant.AttrDBSystem, constant.DBSystemRedis))

	if err := c.connectLocked(ctx); err != nil {
		c.reconnectAttempts++
		c.recordConnectionFailure(ctx, "reconnect")
		c.recordReconnection(ctx, "failure")

		telemetry.HandleSpanError(&span, "Failed to reconnect redis", err)

		return nil, err
	}

	c.reconnectAttempts = 0
	c.recordReconnection(ctx, "success")

	return c.client, nil
}

// Close closes the underlying Redis client.
func (c *Client) Close() error {
	if c == nil {
		return ErrNilClient
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.closeClientLocked()
}

// Status returns a snapshot of connectivity state.
func (c *Client) Status() (Status, error) {
	if c == nil {
		return Status{}, ErrNilClient
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return Status{Connected: c.connected}, nil
}

// IsConnected reports whether the underlying client is currently connected.
func (c *Client) IsConnected() (bool, error) {
	status, err := c.Status()
	if err != nil {
		return false, err
	}

	return status.Connected, nil
}

func (c *Client) connectLocked(ctx context.Context) error {
	c.logger.Info("Connecting to Redis/Valkey")

	if c.client != nil {
		if err := c.closeClientLocked(); err != nil {
			c.logger.Warnf("Close before connect failed: %v", err)
		}
	}

	opts, err := c.buildUniversalOptionsLocked()
	if err != nil {
		return fmt.Errorf("redis connect: build options: %w", err)
	}

	rdb := redis.NewUniversalClient(opts)
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()

		c.logger.Errorf("Redis ping failed: %v", err)
		c.connected = false

		return fmt.Errorf("redis connect: ping: %w", err)
	}

	c.client = rdb
	c.connected = true

	switch rdb.(type) {
	case *redis.ClusterClient:
		c.logger.Info("Connected to Redis/Valkey in cluster mode")
	case *redis.Client:
		c.logger.Info("Connected to Redis/Valkey in standalone mode")
	case *redis.Ring:
		c.logger.Info("Connected to Redis/Valkey in ring mode")
	default:
		c.logger.Warn("Connected to Redis/Valkey in unknown mode")
	}

	if c.cfg.TLS == nil {
		c.logger.Warn("Redis connection established without TLS; consider configuring TLS for production use")
	}

	return nil
}

func (c *Client) closeClientLocked() error {
	if c.client == nil {
		return nil
	}

	err := c.client.Close()
	c.client = nil
	c.connected = false

	return err
}

func (c *Client) buildUniversalOptionsLocked() (*redis.UniversalOptions, error) {
	o := c.cfg.Options
	opts := &redis.UniversalOptions{
		DB:              o.DB,
		Protocol:        o.Protocol,
		PoolSize:        o.PoolSize,
		MinIdleConns:    o.MinIdleConns,
		ReadTimeout:     o.ReadTimeout,
		WriteTimeout:    o.WriteTimeout,
		DialTimeout:     o.DialTimeout,
		PoolTimeout:     o.PoolTimeout,
		MaxRetries:      o.MaxRetries,
		MinRetryBackoff: o.MinRetryBackoff,
		MaxRetryBackoff: o.MaxRetryBackoff,
	}

	if c.cfg.Topology.Standalone != nil {
		opts.Addrs = []string{c.cfg.Topology.Standalone.Address}
	}

	if c.cfg.Topology.Sentinel != nil {
		opts.Addrs = c.cfg.Topology.Sentinel.Addresses
		opts.MasterName = c.cfg.Topology.Sentinel.MasterName
	}

	if c.cfg.Topology.Cluster != nil {
		opts.Addrs = c.cfg.Topology.Cluster.Addresses
	}

	// Guard against zero-value Config producing Addrs: nil, which causes
	// go-redis to silently default to localhost:6379. This can happen when
	// GetClient triggers a reconnect on a Client not created via New().
	if len(opts.Addrs) == 0 {
		return nil, configError("no topology configured: at least one address is required")
	}

	if c.cfg.Auth.StaticPassword != nil {
		opts.Password = c.cfg.Auth.StaticPassword.Password
	}

	if c.cfg.TLS != nil {
		tlsCfg, err := buildTLSConfig(*c.cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("redis: TLS config: %w", err)
		}

		opts.TLSConfig = tlsCfg
	}

	return opts, nil
}

func normalizeConfig(cfg Config) (Config, error) {
	normalizeLoggerDefault(&cfg)
	normalizeConnectionOptionsDefaults(&cfg.Options)
	normalizeTLSDefaults(cfg.TLS)

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func normalizeLoggerDefault(cfg *Config) {
	if cfg.Logger == nil {
		cfg.Logger = &log.NopLogger{}
	}
}

const (
	defaultPoolSize     = 10
	defaultMinIdleConns = 2
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second
	defaultDialTimeout  = 5 * time.Second
	defaultPoolTimeout  = 4 * time.Second
	defaultMaxRetries   = 3
)

func normalizeConnectionOptionsDefaults(options *ConnectionOptions) {
	if options.PoolSize <= 0 {
		options.PoolSize = defaultPoolSize
	}

	if options.MinIdleConns <= 0 {
		options.MinIdleConns = defaultMinIdleConns
	}

	if options.ReadTimeout <= 0 {
		options.ReadTimeout = defaultReadTimeout
	}

	if options.WriteTimeout <= 0 {
		options.WriteTimeout = defaultWriteTimeout
	}

	if options.DialTimeout <= 0 {
		options.DialTimeout = defaultDialTimeout
	}

	if options.PoolTimeout <= 0 {
		options.PoolTimeout = defaultPoolTimeout
	}

	if options.MaxRetries <= 0 {
		options.MaxRetries = defaultMaxRetries
	}
}

func normalizeTLSDefaults(tlsCfg *TLSConfig) {
	if tlsCfg == nil {
		return
	}

	if tlsCfg.MinVersion == 0 {
		tlsCfg.MinVersion = tls.VersionTLS12
	}
}

func validateConfig(cfg Config) error {
	return validateTopology(cfg.Topology)
}

func validateTopology(topology Topology) error {
	configured := 0

	if topology.Standalone != nil {
		configured++

		if topology.Standalone.Address == "" {
			return configError("standalone topology requires an address")
		}
	}

	if topology.Sentinel != nil {
		configured++

		if len(topology.Sentinel.Addresses) == 0 {
			return configError("sentinel topology requires at least one address")
		}

		if topology.Sentinel.MasterName == "" {
			return configError("sentinel topology requires a master name")
		}
	}

	if topology.Cluster != nil {
		configured++

		if len(topology.Cluster.Addresses) == 0 {
			return configError("cluster topology requires at least one address")
		}
	}

	if configured != 1 {
		return configError("exactly one topology must be configured")
	}

	return nil
}

func buildTLSConfig(cfg TLSConfig) (*tls.Config, error) {
	tlsCfg := &tls.Config{MinVersion: cfg.MinVersion}

	if cfg.CACertBase64 != "" {
		caCert, err := base64.StdEncoding.DecodeString(cfg.CACertBase64)
		if err != nil {
			return nil, fmt.Errorf("decode CA certificate: %w", err)
		}

		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("append CA certificate: no valid PEM data")
		}

		tlsCfg.RootCAs = pool
	}

	return tlsCfg, nil
}

func (c *Client) recordConnectionFailure(ctx context.Context, operation string) {
	if c.metricsFactory == nil {
		return
	}

	counter, err := c.metricsFactory.Counter(connectionFailuresMetric)
	if err != nil {
		c.logger.Warnf("Failed to build connection failure counter: %v", err)

		return
	}

	if err := counter.WithLabels(map[string]string{constant.LabelOperation: operation}).AddOne(ctx); err != nil {
		c.logger.Warnf("Failed to record connection failure: %v", err)
	}
}

func (c *Client) recordReconnection(ctx context.Context, result string) {
	if c.metricsFactory == nil {
		return
	}

	counter, err := c.metricsFactory.Counter(reconnectionsMetric)
	if err != nil {
		c.logger.Warnf("Failed to build reconnection counter: %v", err)

		return
	}

	if err := counter.WithLabels(map[string]string{"result": result}).AddOne(ctx); err != nil {
		c.logger.Warnf("Failed to record reconnection: %v", err)
	}
}

func configError(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, msg)
}
