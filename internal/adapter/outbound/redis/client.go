// Package redis provides Redis-backed implementations of outbound ports:
// the shared spend counter store, the active-policy cache, and the
// evaluation event publisher.
package redis

import "github.com/redis/go-redis/v9"

// NewClient creates a Redis client shared by the adapters in this package.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}
