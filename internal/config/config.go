// Package config provides configuration types for the agentvault policy engine.
package config

import "time"

// Config is the top-level configuration.
type Config struct {
	// Server configures the HTTP listener.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Store configures durable policy storage.
	Store StoreConfig `yaml:"store" mapstructure:"store"`

	// Redis configures the shared counter store, policy cache, and event
	// publisher. Ignored in dev mode, which runs fully in-memory.
	Redis RedisConfig `yaml:"redis" mapstructure:"redis"`

	// Cache configures the active-policy read-through cache.
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Events configures evaluation event publishing.
	Events EventsConfig `yaml:"events" mapstructure:"events"`

	// DevMode swaps all external stores for in-memory implementations and
	// raises log verbosity. Never use in production: windowed spend counters
	// do not survive a restart.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the HTTP server. TLS is a reverse-proxy concern.
type ServerConfig struct {
	// HTTPAddr is the address to listen on. Defaults to "127.0.0.1:8080"
	// (localhost only) if empty.
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum log level.
	// Valid values: "debug", "info", "warn", "error".
	// Defaults to "info". DevMode=true overrides to "debug".
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// RequestTimeout bounds the handling of a single request (e.g. "10s").
	// Defaults to "10s".
	RequestTimeout string `yaml:"request_timeout" mapstructure:"request_timeout" validate:"omitempty"`
}

// StoreConfig configures the SQLite policy repository.
type StoreConfig struct {
	// Path is the SQLite database file. ":memory:" keeps everything
	// in-process. Defaults to "agentvault.db".
	Path string `yaml:"path" mapstructure:"path"`
}

// RedisConfig configures the Redis connection shared by the counter store,
// the policy cache, and the event publisher.
type RedisConfig struct {
	// Addr is the Redis host:port. Defaults to "127.0.0.1:6379".
	Addr string `yaml:"addr" mapstructure:"addr" validate:"omitempty,hostname_port"`

	// Password authenticates the connection. Empty means no auth.
	Password string `yaml:"password" mapstructure:"password"`

	// DB is the Redis logical database index.
	DB int `yaml:"db" mapstructure:"db" validate:"omitempty,min=0"`
}

// CacheConfig configures the active-policy cache.
type CacheConfig struct {
	// TTL is how long a cached active-policy set lives (e.g. "60s").
	// Mutations invalidate synchronously, so the TTL only bounds staleness
	// when an invalidation is lost. Defaults to "60s".
	TTL string `yaml:"ttl" mapstructure:"ttl" validate:"omitempty"`
}

// EventsConfig configures evaluation event publishing.
type EventsConfig struct {
	// Channel is the pub/sub channel evaluation outcomes are published to.
	// Defaults to "policy.evaluations".
	Channel string `yaml:"channel" mapstructure:"channel"`
}

// SetDefaults applies default values to optional fields.
func (c *Config) SetDefaults() {
	// Bind to localhost only by default. Network exposure must be explicit.
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.RequestTimeout == "" {
		c.Server.RequestTimeout = "10s"
	}

	if c.Store.Path == "" {
		c.Store.Path = "agentvault.db"
	}

	if c.Redis.Addr == "" {
		c.Redis.Addr = "127.0.0.1:6379"
	}

	if c.Cache.TTL == "" {
		c.Cache.TTL = "60s"
	}

	if c.Events.Channel == "" {
		c.Events.Channel = "policy.evaluations"
	}
}

// SetDevDefaults applies development-mode overrides. Called after CLI flags
// may have flipped DevMode, before validation.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	c.Server.LogLevel = "debug"
}

// RequestTimeout returns the parsed request timeout. Call after Validate.
func (c *Config) RequestTimeout() (time.Duration, error) {
	return time.ParseDuration(c.Server.RequestTimeout)
}

// CacheTTL returns the parsed cache TTL. Call after Validate.
func (c *Config) CacheTTL() (time.Duration, error) {
	return time.ParseDuration(c.Cache.TTL)
}
