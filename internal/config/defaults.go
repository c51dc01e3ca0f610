package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultInstanceID    = "tweetstream"
	DefaultStreamURL     = "https://stream.twitter.com/1.1"
	DefaultUserStreamURL = "https://userstream.twitter.com/1.1"
	DefaultSiteStreamURL = "https://sitestream.twitter.com/1.1"
	DefaultRestURL       = "https://api.twitter.com/1.1"
	DefaultAPITimeout    = 30 * time.Second
	DefaultMaxRetries    = 3
	DefaultCategory      = "public"
	DefaultIdleTimeout   = 90 * time.Second
	DefaultBufferSize    = 10000
	DefaultDBPort        = 5432
	DefaultDBSSLMode     = "prefer"
	DefaultMaxConns      = 10
	DefaultMinConns      = 2
	DefaultBatchSize     = 500
	DefaultFlushInterval = 30 * time.Second
	DefaultMetricsPort   = 9090
	DefaultMetricsPath   = "/metrics"
	DefaultLogLevel      = "info"
)

func (c *Config) applyDefaults() {
	if c.Instance.ID == "" {
		c.Instance.ID = DefaultInstanceID
	}

	// API defaults
	if c.API.StreamURL == "" {
		c.API.StreamURL = DefaultStreamURL
	}
	if c.API.UserStreamURL == "" {
		c.API.UserStreamURL = DefaultUserStreamURL
	}
	if c.API.SiteStreamURL == "" {
		c.API.SiteStreamURL = DefaultSiteStreamURL
	}
	if c.API.RestURL == "" {
		c.API.RestURL = DefaultRestURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = DefaultMaxRetries
	}

	// Stream defaults
	if c.Stream.Category == "" {
		c.Stream.Category = DefaultCategory
	}
	if c.Stream.IdleTimeout == 0 {
		c.Stream.IdleTimeout = DefaultIdleTimeout
	}
	if c.Stream.BufferSize == 0 {
		c.Stream.BufferSize = DefaultBufferSize
	}

	// Database defaults (only meaningful when archiving is enabled)
	if c.Database.Archive.Enabled() {
		applyDBDefaults(&c.Database.Archive)
	}

	// Writers defaults
	if c.Writers.BatchSize == 0 {
		c.Writers.BatchSize = DefaultBatchSize
	}
	if c.Writers.FlushInterval == 0 {
		c.Writers.FlushInterval = DefaultFlushInterval
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
