package config

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	// Set defaults
	config := GetDefaults()

	// Configure viper
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/datagate/")
	viper.AddConfigPath("$HOME/.datagate/")

	// Environment variable overrides
	viper.SetEnvPrefix("DATAGATE")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Use specific config file if provided
	if configPath != "" {
		viper.SetConfigFile(configPath)
	}

	// Read configuration
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found is not an error - we'll use defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Unmarshal into config struct
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := Validate(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// replacementToken matches the bracketed uppercase form used by the built-in
// rules, e.g. [EMAIL] or [CREDIT_CARD].
var replacementToken = regexp.MustCompile(`^\[[A-Z][A-Z_]*\]$`)

// Validate checks a configuration for startup-time defects. Malformed custom
// patterns and bad tunables fail here, before any request is served.
func Validate(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Guard.Mode != "block" && config.Guard.Mode != "log" && config.Guard.Mode != "passthrough" {
		return fmt.Errorf("invalid guard mode: %s (must be block, log, or passthrough)", config.Guard.Mode)
	}

	if config.Guard.MaxLength <= 0 {
		return fmt.Errorf("invalid guard max_length: %d", config.Guard.MaxLength)
	}

	if config.RateLimit.Store != "memory" && config.RateLimit.Store != "redis" {
		return fmt.Errorf("invalid rate limit store: %s (must be memory or redis)", config.RateLimit.Store)
	}

	if config.RateLimit.Default.Window <= 0 || config.RateLimit.Default.Max <= 0 {
		return fmt.Errorf("invalid default rate rule: window=%s max=%d",
			config.RateLimit.Default.Window, config.RateLimit.Default.Max)
	}

	for category, rule := range config.RateLimit.Rules {
		if rule.Window <= 0 || rule.Max <= 0 {
			return fmt.Errorf("invalid rate rule for %q: window=%s max=%d", category, rule.Window, rule.Max)
		}
	}

	if config.Usage.Window <= 0 {
		return fmt.Errorf("invalid usage window: %s", config.Usage.Window)
	}

	if config.Usage.MaxRequests <= 0 {
		return fmt.Errorf("invalid usage max_requests: %d", config.Usage.MaxRequests)
	}

	if config.Usage.AnomalyMultiplier <= 0 {
		return fmt.Errorf("invalid usage anomaly_multiplier: %f", config.Usage.AnomalyMultiplier)
	}

	for _, custom := range config.Privacy.CustomPatterns {
		if custom.Name == "" {
			return fmt.Errorf("custom pattern with empty name")
		}
		if _, err := regexp.Compile(custom.Pattern); err != nil {
			return fmt.Errorf("invalid custom pattern %q: %w", custom.Name, err)
		}
		// Replacements must be bracket tokens: anything else is
		// indistinguishable from data after redaction and can be re-matched
		// on a second pass. Empty means derive one from the name.
		if custom.Replacement != "" && !replacementToken.MatchString(custom.Replacement) {
			return fmt.Errorf("invalid replacement for custom pattern %q: %q (must be a bracketed uppercase token such as [TOKEN])",
				custom.Name, custom.Replacement)
		}
	}

	if config.Events.Enabled {
		if config.Events.PingInterval <= 0 {
			return fmt.Errorf("invalid events ping_interval: %s", config.Events.PingInterval)
		}
		if config.Events.PongTimeout <= 0 {
			return fmt.Errorf("invalid events pong_timeout: %s", config.Events.PongTimeout)
		}
		if config.Events.WriteTimeout <= 0 {
			return fmt.Errorf("invalid events write_timeout: %s", config.Events.WriteTimeout)
		}
	}

	if config.Logging.Level != "debug" && config.Logging.Level != "info" && config.Logging.Level != "warn" && config.Logging.Level != "error" {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", config.Logging.Level)
	}

	if config.Logging.Format != "json" && config.Logging.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", config.Logging.Format)
	}

	return nil
}

// Watch starts watching the configuration file for changes. Redaction and
// limiter state is load-once; the callback is for concerns that can swap
// safely at runtime, such as the logging level.
func Watch(config *Config, callback func(*Config)) error {
	viper.WatchConfig()
	viper.OnConfigChange(func(e fsnotify.Event) {
		newConfig := &Config{}
		if err := viper.Unmarshal(newConfig); err != nil {
			// Log error but don't crash
			return
		}

		if err := Validate(newConfig); err != nil {
			// Log error but don't crash
			return
		}

		callback(newConfig)
	})

	return nil
}
