package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	ASR       ASRConfig       `yaml:"asr"`
	Server    ServerConfig    `yaml:"server"`
	Staging   StagingConfig   `yaml:"staging"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// TelegramConfig contains Bot API credentials and webhook settings
type TelegramConfig struct {
	BotToken        string `yaml:"bot_token"`
	WebhookBaseURL  string `yaml:"webhook_base_url"`
	SecretToken     string `yaml:"secret_token"`
	APIBaseURL      string `yaml:"api_base_url"`
	FileBaseURL     string `yaml:"file_base_url"`
	RegisterWebhook bool   `yaml:"register_webhook"`
}

// ASRConfig contains speech recognition backend configuration
type ASRConfig struct {
	Endpoints    map[string]string `yaml:"endpoints"`
	DefaultModel string            `yaml:"default_model"`
	Timeout      int               `yaml:"timeout"` // seconds
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port        int    `yaml:"port"`
	BindAddress string `yaml:"bind_address"`
}

// StagingConfig contains staging directory and job time limits
type StagingConfig struct {
	Dir               string `yaml:"dir"`
	MaxFileSize       int64  `yaml:"max_file_size"`      // bytes
	JanitorInterval   int    `yaml:"janitor_interval"`   // seconds
	Retention         int    `yaml:"retention"`          // seconds
	DownloadTimeout   int    `yaml:"download_timeout"`   // seconds
	ConversionTimeout int    `yaml:"conversion_timeout"` // seconds
}

// AnalyticsConfig contains the external request logging endpoint
type AnalyticsConfig struct {
	Endpoint string `yaml:"endpoint"`
	Timeout  int    `yaml:"timeout"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file is provided
func Default() *Config {
	return &Config{
		ASR: ASRConfig{
			Endpoints:    map[string]string{},
			DefaultModel: "fast",
			Timeout:      60,
		},
		Server: ServerConfig{
			Port:        7860,
			BindAddress: "0.0.0.0",
		},
		Staging: StagingConfig{
			Dir:               "tmp_audio",
			MaxFileSize:       16 * 1024 * 1024,
			JanitorInterval:   60,
			Retention:         300,
			DownloadTimeout:   60,
			ConversionTimeout: 120,
		},
		Analytics: AnalyticsConfig{
			Timeout: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads the configuration file, applies environment overrides and validates.
// A missing file is not an error: the service can run entirely from the environment.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// applyEnvOverrides lets the environment win over file values for every
// secret and endpoint
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		c.Telegram.WebhookBaseURL = v
	}
	if v := os.Getenv("SECRET_TOKEN"); v != "" {
		c.Telegram.SecretToken = v
	}
	if c.ASR.Endpoints == nil {
		c.ASR.Endpoints = map[string]string{}
	}
	if v := os.Getenv("FAST_ENDPOINT"); v != "" {
		c.ASR.Endpoints["fast"] = v
	}
	if v := os.Getenv("PRECISE_ENDPOINT"); v != "" {
		c.ASR.Endpoints["precise"] = v
	}
	if v := os.Getenv("ANALYTICS_URL"); v != "" {
		c.Analytics.Endpoint = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Telegram.Validate(); err != nil {
		return fmt.Errorf("telegram config: %w", err)
	}

	if err := c.ASR.Validate(); err != nil {
		return fmt.Errorf("asr config: %w", err)
	}

	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Staging.Validate(); err != nil {
		return fmt.Errorf("staging config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates Telegram configuration
func (t *TelegramConfig) Validate() error {
	if t.BotToken == "" {
		return fmt.Errorf("bot_token cannot be empty")
	}

	if t.WebhookBaseURL == "" {
		return fmt.Errorf("webhook_base_url cannot be empty")
	}

	return nil
}

// Validate validates ASR configuration. Backends may be left unconfigured;
// the dispatcher reports that per job rather than blocking startup.
func (a *ASRConfig) Validate() error {
	if a.DefaultModel == "" {
		return fmt.Errorf("default_model cannot be empty")
	}

	if a.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", a.Timeout)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	return nil
}

// Validate validates staging configuration
func (s *StagingConfig) Validate() error {
	if s.Dir == "" {
		return fmt.Errorf("dir cannot be empty")
	}

	if s.MaxFileSize < 1 {
		return fmt.Errorf("max_file_size must be positive, got %d", s.MaxFileSize)
	}

	if s.JanitorInterval < 1 {
		return fmt.Errorf("janitor_interval must be at least 1 second, got %d", s.JanitorInterval)
	}

	if s.Retention < 1 {
		return fmt.Errorf("retention must be at least 1 second, got %d", s.Retention)
	}

	if s.DownloadTimeout < 1 {
		return fmt.Errorf("download_timeout must be at least 1 second, got %d", s.DownloadTimeout)
	}

	if s.ConversionTimeout < 1 {
		return fmt.Errorf("conversion_timeout must be at least 1 second, got %d", s.ConversionTimeout)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetTimeoutDuration returns the ASR request timeout as a time.Duration
func (a *ASRConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

// GetJanitorInterval returns the janitor sweep interval as a time.Duration
func (s *StagingConfig) GetJanitorInterval() time.Duration {
	return time.Duration(s.JanitorInterval) * time.Second
}

// GetRetention returns the staging file retention as a time.Duration
func (s *StagingConfig) GetRetention() time.Duration {
	return time.Duration(s.Retention) * time.Second
}

// GetDownloadTimeout returns the per-job download deadline as a time.Duration
func (s *StagingConfig) GetDownloadTimeout() time.Duration {
	return time.Duration(s.DownloadTimeout) * time.Second
}

// GetConversionTimeout returns the per-job conversion deadline as a time.Duration
func (s *StagingConfig) GetConversionTimeout() time.Duration {
	return time.Duration(s.ConversionTimeout) * time.Second
}

// GetTimeoutDuration returns the analytics request timeout as a time.Duration
func (a *AnalyticsConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}
