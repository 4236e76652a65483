// Package redis wraps go-redis with topology-aware configuration,
// validated construction, and rate-limited reconnection.
package redis
