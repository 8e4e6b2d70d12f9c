// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Ethereum  EthereumConfig  `mapstructure:"ethereum"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AppConfig holds general application settings.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`
	HealthPort  int    `mapstructure:"health_port"`
}

// EthereumConfig holds RPC endpoint configuration.
type EthereumConfig struct {
	// Endpoints is the ordered failover rotation. At least one is required.
	Endpoints []string `mapstructure:"endpoints"`
	ChainID   uint64   `mapstructure:"chain_id"`

	// AttemptTimeout bounds the wait on a single endpoint before the
	// rotation moves on.
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`

	// ScanWindow is the maximum number of most-recent blocks inspected by
	// an address scan.
	ScanWindow uint64 `mapstructure:"scan_window"`

	// RequestsPerMinute rate-limits calls per endpoint. 0 disables limiting.
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}

// TelemetryConfig holds observability configuration.
type TelemetryConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	ServiceName    string `mapstructure:"service_name"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint"`
	PrometheusPort int    `mapstructure:"prometheus_port"`
}

// Load loads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables
	v.SetEnvPrefix("CHAINQUERY")
	v.AutomaticEnv()

	bindEnvVars(v)
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func bindEnvVars(v *viper.Viper) {
	// App
	v.BindEnv("app.name", "CHAINQUERY_APP_NAME", "SERVICE_NAME")
	v.BindEnv("app.environment", "CHAINQUERY_ENVIRONMENT", "ENVIRONMENT")
	v.BindEnv("app.log_level", "CHAINQUERY_LOG_LEVEL", "LOG_LEVEL")

	// Ethereum
	v.BindEnv("ethereum.endpoints", "CHAINQUERY_ETH_ENDPOINTS", "ETH_ENDPOINTS")
	v.BindEnv("ethereum.chain_id", "CHAINQUERY_ETH_CHAIN_ID", "ETH_CHAIN_ID")
	v.BindEnv("ethereum.attempt_timeout", "CHAINQUERY_ATTEMPT_TIMEOUT")
	v.BindEnv("ethereum.scan_window", "CHAINQUERY_SCAN_WINDOW")

	// Telemetry
	v.BindEnv("telemetry.enabled", "CHAINQUERY_OTEL_ENABLED", "OTEL_ENABLED")
	v.BindEnv("telemetry.service_name", "CHAINQUERY_OTEL_SERVICE_NAME", "OTEL_SERVICE_NAME")
	v.BindEnv("telemetry.otlp_endpoint", "CHAINQUERY_OTEL_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "chainquery")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.health_port", 8081)

	// Ethereum defaults
	v.SetDefault("ethereum.chain_id", 1)
	v.SetDefault("ethereum.attempt_timeout", "10s")
	v.SetDefault("ethereum.scan_window", 1000)
	v.SetDefault("ethereum.requests_per_minute", 0)

	// Telemetry defaults
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "chainquery")
	v.SetDefault("telemetry.prometheus_port", 9090)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Ethereum.Endpoints) == 0 {
		return fmt.Errorf("ethereum.endpoints is required: configure at least one RPC endpoint")
	}
	for _, ep := range c.Ethereum.Endpoints {
		u, err := url.Parse(ep)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid ethereum endpoint %q", ep)
		}
	}
	if c.Ethereum.ChainID == 0 {
		return fmt.Errorf("ethereum.chain_id must be positive")
	}
	if c.Ethereum.AttemptTimeout <= 0 {
		return fmt.Errorf("ethereum.attempt_timeout must be positive")
	}
	if c.Ethereum.ScanWindow == 0 {
		return fmt.Errorf("ethereum.scan_window must be positive")
	}
	return nil
}
