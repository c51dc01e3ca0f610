package config

import "time"

// Config is the root configuration for a stream process.
type Config struct {
	Instance    InstanceConfig    `yaml:"instance"`
	API         APIConfig         `yaml:"api"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Stream      StreamConfig      `yaml:"stream"`
	Database    DatabaseConfig    `yaml:"database"`
	Writers     WritersConfig     `yaml:"writers"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Log         LogConfig         `yaml:"log"`
}

// InstanceConfig identifies this process.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// APIConfig holds upstream endpoint settings.
type APIConfig struct {
	StreamURL     string        `yaml:"stream_url"`      // Base URL for the public category
	UserStreamURL string        `yaml:"user_stream_url"` // Base URL for the user category
	SiteStreamURL string        `yaml:"site_stream_url"` // Base URL for the site category
	RestURL       string        `yaml:"rest_url"`
	Timeout       time.Duration `yaml:"timeout"` // REST request timeout (not applied to the stream)
	MaxRetries    int           `yaml:"max_retries"`
}

// CredentialsConfig holds OAuth 1.0a consumer and access credentials.
type CredentialsConfig struct {
	ConsumerKey       string `yaml:"consumer_key"`
	ConsumerSecret    string `yaml:"consumer_secret"`
	AccessToken       string `yaml:"access_token"`
	AccessTokenSecret string `yaml:"access_token_secret"`
}

// StreamConfig selects the endpoint and its filter parameters.
type StreamConfig struct {
	Category    string         `yaml:"category"` // public, user or site
	Path        string         `yaml:"path"`     // e.g. statuses/filter; defaults per category
	Params      map[string]any `yaml:"params"`   // list values are sent comma-joined
	IdleTimeout time.Duration  `yaml:"idle_timeout"`
	BufferSize  int            `yaml:"buffer_size"` // Initial event queue capacity
}

// DatabaseConfig holds the optional archive database.
// Archiving is disabled when Archive.Host is empty.
type DatabaseConfig struct {
	Archive DBConfig `yaml:"archive"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// Enabled reports whether a database is configured.
func (db DBConfig) Enabled() bool {
	return db.Host != ""
}

// WritersConfig holds batch writer settings.
type WritersConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
