package config

import (
	"errors"
	"fmt"
	"log/slog"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if err := c.Credentials.validate(); err != nil {
		return err
	}

	switch c.Stream.Category {
	case "public", "user", "site":
	default:
		return fmt.Errorf("stream.category must be one of public, user, site; got %q", c.Stream.Category)
	}
	if c.Stream.IdleTimeout <= 0 {
		return errors.New("stream.idle_timeout must be > 0")
	}
	if c.Stream.BufferSize < 1 {
		return errors.New("stream.buffer_size must be >= 1")
	}

	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	if c.Database.Archive.Enabled() {
		if err := c.Database.Archive.validate("database.archive"); err != nil {
			return err
		}
	}

	if c.Writers.BatchSize < 1 {
		return errors.New("writers.batch_size must be >= 1")
	}
	if c.Writers.FlushInterval <= 0 {
		return errors.New("writers.flush_interval must be > 0")
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}

	return nil
}

func (c *CredentialsConfig) validate() error {
	if c.ConsumerKey == "" {
		return errors.New("credentials.consumer_key is required")
	}
	if c.ConsumerSecret == "" {
		return errors.New("credentials.consumer_secret is required")
	}
	if c.AccessToken == "" {
		return errors.New("credentials.access_token is required")
	}
	if c.AccessTokenSecret == "" {
		return errors.New("credentials.access_token_secret is required")
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

// SlogLevel converts Level to a slog.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return level, nil
}
