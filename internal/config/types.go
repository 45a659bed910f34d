package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Privacy   PrivacyConfig   `yaml:"privacy" mapstructure:"privacy"`
	Guard     GuardConfig     `yaml:"guard" mapstructure:"guard"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Usage     UsageConfig     `yaml:"usage" mapstructure:"usage"`
	Alerts    AlertsConfig    `yaml:"alerts" mapstructure:"alerts"`
	Events    EventsConfig    `yaml:"events" mapstructure:"events"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// CustomPattern is a user-supplied redaction pattern. The expression is
// compiled at startup; an invalid expression is a fatal configuration error,
// never a per-request one.
type CustomPattern struct {
	Name        string `yaml:"name" mapstructure:"name"`
	Pattern     string `yaml:"pattern" mapstructure:"pattern"`
	Replacement string `yaml:"replacement" mapstructure:"replacement"`
	Description string `yaml:"description" mapstructure:"description"`
}

// CSVConfig contains defaults for structured-data redaction
type CSVConfig struct {
	PreserveHeaders bool `yaml:"preserve_headers" mapstructure:"preserve_headers"`
	MaxRows         int  `yaml:"max_rows" mapstructure:"max_rows"`
}

// PrivacyConfig contains PII detection and redaction configuration
type PrivacyConfig struct {
	Enabled          bool            `yaml:"enabled" mapstructure:"enabled"`
	Detectors        []string        `yaml:"detectors" mapstructure:"detectors"`
	CustomPatterns   []CustomPattern `yaml:"custom_patterns" mapstructure:"custom_patterns"`
	SensitiveColumns []string        `yaml:"sensitive_columns" mapstructure:"sensitive_columns"`
	CSV              CSVConfig       `yaml:"csv" mapstructure:"csv"`
}

// GuardConfig contains input sanitization and injection detection settings
type GuardConfig struct {
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
	Mode            string `yaml:"mode" mapstructure:"mode"` // block, log, or passthrough
	MaxLength       int    `yaml:"max_length" mapstructure:"max_length"`
	DetectInjection bool   `yaml:"detect_injection" mapstructure:"detect_injection"`
}

// RateRule defines a fixed window for one request category
type RateRule struct {
	Window time.Duration `yaml:"window" mapstructure:"window"`
	Max    int           `yaml:"max" mapstructure:"max"`
}

// RedisConfig contains connection settings for the Redis-backed limiter store
type RedisConfig struct {
	URL            string `yaml:"url" mapstructure:"url"`
	KeyPrefix      string `yaml:"key_prefix" mapstructure:"key_prefix"`
	MaxConnections int    `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int    `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
}

// GlobalRateConfig smooths total server throughput ahead of per-key windows
type GlobalRateConfig struct {
	Enabled        bool    `yaml:"enabled" mapstructure:"enabled"`
	RequestsPerSec float64 `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	Burst          int     `yaml:"burst" mapstructure:"burst"`
}

// RateLimitConfig contains fixed-window rate limiting configuration
type RateLimitConfig struct {
	Enabled       bool                `yaml:"enabled" mapstructure:"enabled"`
	Store         string              `yaml:"store" mapstructure:"store"` // memory or redis
	Default       RateRule            `yaml:"default" mapstructure:"default"`
	Rules         map[string]RateRule `yaml:"rules" mapstructure:"rules"`
	SweepInterval time.Duration       `yaml:"sweep_interval" mapstructure:"sweep_interval"`
	Redis         RedisConfig         `yaml:"redis" mapstructure:"redis"`
	Global        GlobalRateConfig    `yaml:"global" mapstructure:"global"`
}

// UsageConfig contains usage anomaly monitor tunables
type UsageConfig struct {
	Enabled           bool          `yaml:"enabled" mapstructure:"enabled"`
	Window            time.Duration `yaml:"window" mapstructure:"window"`
	MaxRequests       int           `yaml:"max_requests" mapstructure:"max_requests"`
	AnomalyMultiplier float64       `yaml:"anomaly_multiplier" mapstructure:"anomaly_multiplier"`
	SweepInterval     time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`
}

// AlertsConfig contains the optional Postgres alert sink configuration
type AlertsConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// EventsConfig contains the WebSocket event hub configuration
type EventsConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	Path            string        `yaml:"path" mapstructure:"path"`
	ReadBufferSize  int           `yaml:"read_buffer_size" mapstructure:"read_buffer_size"`
	WriteBufferSize int           `yaml:"write_buffer_size" mapstructure:"write_buffer_size"`
	MaxMessageSize  int64         `yaml:"max_message_size" mapstructure:"max_message_size"`
	PingInterval    time.Duration `yaml:"ping_interval" mapstructure:"ping_interval"`
	PongTimeout     time.Duration `yaml:"pong_timeout" mapstructure:"pong_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// FileLogConfig contains file logging configuration
type FileLogConfig struct {
	Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
	Path     string `yaml:"path" mapstructure:"path"`
	MaxSize  int    `yaml:"max_size" mapstructure:"max_size"`
	MaxAge   int    `yaml:"max_age" mapstructure:"max_age"`
	Compress bool   `yaml:"compress" mapstructure:"compress"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string        `yaml:"level" mapstructure:"level"`
	Format string        `yaml:"format" mapstructure:"format"` // json or console
	File   FileLogConfig `yaml:"file" mapstructure:"file"`
}

// GetDefaults returns a configuration with sensible defaults
func GetDefaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Privacy: PrivacyConfig{
			Enabled:   true,
			Detectors: []string{"all"},
			CSV: CSVConfig{
				PreserveHeaders: true,
				MaxRows:         50,
			},
		},
		Guard: GuardConfig{
			Enabled:         true,
			Mode:            "block",
			MaxLength:       10000,
			DetectInjection: true,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Store:   "memory",
			Default: RateRule{
				Window: time.Minute,
				Max:    60,
			},
			Rules: map[string]RateRule{
				"chat":   {Window: time.Minute, Max: 20},
				"upload": {Window: time.Minute, Max: 10},
			},
			SweepInterval: 10 * time.Minute,
			Redis: RedisConfig{
				URL:            "redis://localhost:6379/0",
				KeyPrefix:      "datagate:rl",
				MaxConnections: 10,
				MinIdleConns:   2,
			},
			Global: GlobalRateConfig{
				Enabled:        true,
				RequestsPerSec: 100,
				Burst:          200,
			},
		},
		Usage: UsageConfig{
			Enabled:           true,
			Window:            5 * time.Minute,
			MaxRequests:       200,
			AnomalyMultiplier: 3.0,
			SweepInterval:     15 * time.Minute,
		},
		Alerts: AlertsConfig{
			Enabled:         false,
			DatabaseURL:     "postgres://localhost:5432/datagate?sslmode=disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Events: EventsConfig{
			Enabled:         true,
			Path:            "/ws",
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			MaxMessageSize:  512,
			PingInterval:    54 * time.Second,
			PongTimeout:     60 * time.Second,
			WriteTimeout:    10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			File: FileLogConfig{
				Enabled:  false,
				Path:     "logs/datagate.log",
				MaxSize:  100, // MB
				MaxAge:   30,  // days
				Compress: true,
			},
		},
	}
}
