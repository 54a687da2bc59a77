package config

import "time"

// ClientConfig is the root configuration for an EMS session client.
type ClientConfig struct {
	Instance    InstanceConfig    `yaml:"instance" toml:"instance"`
	Server      ServerConfig      `yaml:"server" toml:"server"`
	Session     SessionConfig     `yaml:"session" toml:"session"`
	Credentials CredentialsConfig `yaml:"credentials" toml:"credentials"`
	Database    DBConfig          `yaml:"database" toml:"database"`
	Recorder    RecorderConfig    `yaml:"recorder" toml:"recorder"`
	Health      HealthConfig      `yaml:"health" toml:"health"`
	Log         LogConfig         `yaml:"log" toml:"log"`
}

// InstanceConfig identifies this client process.
type InstanceConfig struct {
	ID string `yaml:"id" toml:"id"`
}

// ServerConfig describes the remote EMS endpoint.
type ServerConfig struct {
	Name          string `yaml:"name" toml:"name"`                     // Connection name, key for the stored token
	URL           string `yaml:"url" toml:"url"`                       // WebSocket URL (ws:// or wss://)
	RewriteHost   string `yaml:"rewrite_host" toml:"rewrite_host"`     // Replaces 127.0.0.1 in persistence entries; defaults to URL host
	SubscribeTag  string `yaml:"subscribe_tag" toml:"subscribe_tag"`   // Value sent with {"subscribe": ...}
	AutoSubscribe bool   `yaml:"auto_subscribe" toml:"auto_subscribe"` // Subscribe right after login
}

// SessionConfig holds session manager and transport timings.
type SessionConfig struct {
	AuthTimeout  time.Duration   `yaml:"auth_timeout" toml:"auth_timeout"`
	WriteTimeout time.Duration   `yaml:"write_timeout" toml:"write_timeout"`
	PingInterval time.Duration   `yaml:"ping_interval" toml:"ping_interval"`
	PingTimeout  time.Duration   `yaml:"ping_timeout" toml:"ping_timeout"`
	BufferSize   int             `yaml:"buffer_size" toml:"buffer_size"`
	EventBuffer  int             `yaml:"event_buffer" toml:"event_buffer"`
	Reconnect    ReconnectConfig `yaml:"reconnect" toml:"reconnect"`
}

// ReconnectConfig controls automatic token re-login after a dropped session.
type ReconnectConfig struct {
	Enabled   bool          `yaml:"enabled" toml:"enabled"`
	BaseDelay time.Duration `yaml:"base_delay" toml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay" toml:"max_delay"`
}

// CredentialsConfig selects where reconnection tokens are kept.
type CredentialsConfig struct {
	Backend string `yaml:"backend" toml:"backend"` // "memory", "file" or "postgres"
	Path    string `yaml:"path" toml:"path"`       // File backend only
	Table   string `yaml:"table" toml:"table"`     // Postgres backend only
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host" toml:"host"`
	Port     int    `yaml:"port" toml:"port"`
	Name     string `yaml:"name" toml:"name"`
	User     string `yaml:"user" toml:"user"`
	Password string `yaml:"password" toml:"password"`
	SSLMode  string `yaml:"ssl_mode" toml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns" toml:"max_conns"`
	MinConns int    `yaml:"min_conns" toml:"min_conns"`
}

// RecorderConfig holds telemetry recorder settings.
type RecorderConfig struct {
	Enabled       bool          `yaml:"enabled" toml:"enabled"`
	Table         string        `yaml:"table" toml:"table"`
	BatchSize     int           `yaml:"batch_size" toml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval" toml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size" toml:"buffer_size"`
}

// HealthConfig holds the health/debug HTTP server settings.
type HealthConfig struct {
	Port int `yaml:"port" toml:"port"`
}

// LogConfig holds slog handler settings.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // text or json
}

// NeedsDatabase reports whether any component requires the Postgres pool.
func (c *ClientConfig) NeedsDatabase() bool {
	return c.Recorder.Enabled || c.Credentials.Backend == BackendPostgres
}
