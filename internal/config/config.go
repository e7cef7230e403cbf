package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`

	// DatabasePath points at the SQLite account store.
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL      time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	GlobalRoom    string        `mapstructure:"global_room" yaml:"global_room"`
	HistoryLimit  int           `mapstructure:"history_limit" yaml:"history_limit"`
	PreviewLength int           `mapstructure:"preview_length" yaml:"preview_length"`
	RingTimeout   time.Duration `mapstructure:"ring_timeout" yaml:"ring_timeout"`
	EventBuffer   int           `mapstructure:"event_buffer" yaml:"event_buffer"`

	MaxMessageBytes    int64   `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	RateLimitPerSecond float64 `mapstructure:"rate_limit_per_second" yaml:"rate_limit_per_second"`
	RateLimitBurst     int     `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		LogFormat:          "console",
		DatabasePath:       "parley.db",
		JWTSecret:          "change-me",
		JWTIssuer:          "parley",
		JWTAudience:        "parley",
		JWTTTL:             24 * time.Hour,
		GlobalRoom:         "global",
		HistoryLimit:       100,
		PreviewLength:      50,
		EventBuffer:        64,
		MaxMessageBytes:    1 << 20,
		RateLimitPerSecond: 20,
		RateLimitBurst:     40,
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.GlobalRoom != "" {
		c.GlobalRoom = other.GlobalRoom
	}
	if other.RingTimeout != 0 {
		c.RingTimeout = other.RingTimeout
	}
}
