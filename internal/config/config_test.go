package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
credentials:
  consumer_key: ck
  consumer_secret: cs
  access_token: at
  access_token_secret: ats
`

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: relay-1
api:
  stream_url: https://stream.example.com/1.1
credentials:
  consumer_key: ck
  consumer_secret: cs
  access_token: at
  access_token_secret: ats
stream:
  category: public
  path: statuses/filter
  params:
    track: [golang, rust]
    stall_warnings: true
  idle_timeout: 45s
database:
  archive:
    host: localhost
    name: tweets
    user: relay
    password: pw
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "relay-1", cfg.Instance.ID)
	assert.Equal(t, "https://stream.example.com/1.1", cfg.API.StreamURL)
	assert.Equal(t, "statuses/filter", cfg.Stream.Path)
	assert.Equal(t, 45*time.Second, cfg.Stream.IdleTimeout)
	assert.Equal(t, []any{"golang", "rust"}, cfg.Stream.Params["track"])
	assert.Equal(t, true, cfg.Stream.Params["stall_warnings"])
	assert.Equal(t, "tweets", cfg.Database.Archive.Name)
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_CONSUMER_SECRET", "secret123")

	yaml := `
credentials:
  consumer_key: ck
  consumer_secret: ${TEST_CONSUMER_SECRET}
  access_token: at
  access_token_secret: ats
`
	cfg, err := Load(writeTempFile(t, yaml))
	require.NoError(t, err)
	assert.Equal(t, "secret123", cfg.Credentials.ConsumerSecret)
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := LoadWithDefaults(writeTempFile(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, DefaultInstanceID, cfg.Instance.ID)
	assert.Equal(t, DefaultStreamURL, cfg.API.StreamURL)
	assert.Equal(t, DefaultUserStreamURL, cfg.API.UserStreamURL)
	assert.Equal(t, DefaultSiteStreamURL, cfg.API.SiteStreamURL)
	assert.Equal(t, DefaultRestURL, cfg.API.RestURL)
	assert.Equal(t, DefaultCategory, cfg.Stream.Category)
	assert.Equal(t, 90*time.Second, cfg.Stream.IdleTimeout)
	assert.Equal(t, DefaultBufferSize, cfg.Stream.BufferSize)
	assert.Equal(t, DefaultBatchSize, cfg.Writers.BatchSize)
	assert.Equal(t, DefaultMetricsPort, cfg.Metrics.Port)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)

	// Archive stays disabled and untouched.
	assert.False(t, cfg.Database.Archive.Enabled())
	assert.Zero(t, cfg.Database.Archive.Port)
}

func TestLoadWithDefaults_Archive(t *testing.T) {
	yaml := minimalYAML + `
database:
  archive:
    host: db
    name: tweets
    user: relay
    password: pw
`
	cfg, err := LoadWithDefaults(writeTempFile(t, yaml))
	require.NoError(t, err)

	assert.Equal(t, DefaultDBPort, cfg.Database.Archive.Port)
	assert.Equal(t, DefaultDBSSLMode, cfg.Database.Archive.SSLMode)
	assert.Equal(t, DefaultMaxConns, cfg.Database.Archive.MaxConns)
}

func TestLoadAndValidate(t *testing.T) {
	_, err := LoadAndValidate(writeTempFile(t, minimalYAML))
	require.NoError(t, err)

	_, err = LoadAndValidate(writeTempFile(t, "instance:\n  id: x\n"))
	assert.EqualError(t, err, "validate config: credentials.consumer_key is required")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")

	_, err = Parse([]byte("stream: [unclosed"))
	assert.ErrorContains(t, err, "parse config yaml")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg, err := Parse([]byte(minimalYAML))
		require.NoError(t, err)
		cfg.applyDefaults()
		return *cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "missing access token secret",
			mutate:  func(c *Config) { c.Credentials.AccessTokenSecret = "" },
			wantErr: "credentials.access_token_secret is required",
		},
		{
			name:    "unknown category",
			mutate:  func(c *Config) { c.Stream.Category = "firehose" },
			wantErr: `stream.category must be one of public, user, site; got "firehose"`,
		},
		{
			name:    "negative idle timeout",
			mutate:  func(c *Config) { c.Stream.IdleTimeout = -time.Second },
			wantErr: "stream.idle_timeout must be > 0",
		},
		{
			name: "archive min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Database.Archive = DBConfig{Host: "db", Name: "t", User: "u", Password: "p", MaxConns: 2, MinConns: 5}
			},
			wantErr: "database.archive.min_conns (5) cannot exceed max_conns (2)",
		},
		{
			name: "archive missing password",
			mutate: func(c *Config) {
				c.Database.Archive = DBConfig{Host: "db", Name: "t", User: "u", MaxConns: 2}
			},
			wantErr: "database.archive.password is required",
		},
		{
			name:    "metrics port out of range",
			mutate:  func(c *Config) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "chatty" },
			wantErr: "log.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLogConfig_SlogLevel(t *testing.T) {
	level, err := LogConfig{Level: "debug"}.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)

	level, err = LogConfig{Level: "WARN"}.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, level)

	_, err = LogConfig{Level: "loud"}.SlogLevel()
	assert.Error(t, err)
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}
