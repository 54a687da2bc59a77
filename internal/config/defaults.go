package config

import "time"

// Credential store backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
)

// Default values for optional configuration fields.
const (
	DefaultSubscribeTag       = "fenecon_monitor_v1"
	DefaultAuthTimeout        = 2 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultPingInterval       = 30 * time.Second
	DefaultPingTimeout        = 60 * time.Second
	DefaultBufferSize         = 1000
	DefaultEventBuffer        = 100
	DefaultReconnectBaseDelay = 1 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultCredentialBackend  = BackendFile
	DefaultCredentialPath     = ".ems-tokens.yaml"
	DefaultCredentialTable    = "session_tokens"
	DefaultDBPort             = 5432
	DefaultDBSSLMode          = "prefer"
	DefaultMaxConns           = 4
	DefaultMinConns           = 1
	DefaultRecorderTable      = "channel_values"
	DefaultBatchSize          = 500
	DefaultFlushInterval      = 1 * time.Second
	DefaultRecorderBuffer     = 10000
	DefaultHealthPort         = 8080
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

func (c *ClientConfig) applyDefaults() {
	// Server defaults
	if c.Server.SubscribeTag == "" {
		c.Server.SubscribeTag = DefaultSubscribeTag
	}

	// Session defaults
	if c.Session.AuthTimeout == 0 {
		c.Session.AuthTimeout = DefaultAuthTimeout
	}
	if c.Session.WriteTimeout == 0 {
		c.Session.WriteTimeout = DefaultWriteTimeout
	}
	if c.Session.PingInterval == 0 {
		c.Session.PingInterval = DefaultPingInterval
	}
	if c.Session.PingTimeout == 0 {
		c.Session.PingTimeout = DefaultPingTimeout
	}
	if c.Session.BufferSize == 0 {
		c.Session.BufferSize = DefaultBufferSize
	}
	if c.Session.EventBuffer == 0 {
		c.Session.EventBuffer = DefaultEventBuffer
	}
	if c.Session.Reconnect.BaseDelay == 0 {
		c.Session.Reconnect.BaseDelay = DefaultReconnectBaseDelay
	}
	if c.Session.Reconnect.MaxDelay == 0 {
		c.Session.Reconnect.MaxDelay = DefaultReconnectMaxDelay
	}

	// Credentials defaults
	if c.Credentials.Backend == "" {
		c.Credentials.Backend = DefaultCredentialBackend
	}
	if c.Credentials.Path == "" {
		c.Credentials.Path = DefaultCredentialPath
	}
	if c.Credentials.Table == "" {
		c.Credentials.Table = DefaultCredentialTable
	}

	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Recorder defaults
	if c.Recorder.Table == "" {
		c.Recorder.Table = DefaultRecorderTable
	}
	if c.Recorder.BatchSize == 0 {
		c.Recorder.BatchSize = DefaultBatchSize
	}
	if c.Recorder.FlushInterval == 0 {
		c.Recorder.FlushInterval = DefaultFlushInterval
	}
	if c.Recorder.BufferSize == 0 {
		c.Recorder.BufferSize = DefaultRecorderBuffer
	}

	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}
