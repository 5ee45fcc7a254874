package config

import (
	"encoding/json"
	"fmt"
	"os"
)

type Config struct {
	Files     FilesConfig     `json:"files"`
	Client    ClientConfig    `json:"client"`
	Proxy     ProxyConfig     `json:"proxy"`
	Tasks     TasksConfig     `json:"tasks"`
	Scheduler SchedulerConfig `json:"scheduler"`
	API       APIConfig       `json:"api"`
	Storage   StorageConfig   `json:"storage"`
	Metrics   MetricsConfig   `json:"metrics"`
	Logging   LoggingConfig   `json:"logging"`
}

type FilesConfig struct {
	Accounts string `json:"accounts"`
	Proxies  string `json:"proxies"`
	ErrorLog string `json:"error_log"`
}

type ClientConfig struct {
	BaseURL           string  `json:"base_url"`
	TimeoutMs         int     `json:"timeout_ms"`
	MaxAttempts       int     `json:"max_attempts"`
	MinRetryDelayMs   int     `json:"min_retry_delay_ms"`
	MaxRetryDelayMs   int     `json:"max_retry_delay_ms"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	RetryReads        *bool   `json:"retry_reads"`
}

type ProxyConfig struct {
	IPCheckURL string `json:"ip_check_url"`
	VerifyIP   *bool  `json:"verify_ip"`
}

type TasksConfig struct {
	PopcoinSymbol string `json:"popcoin_symbol"`
	TaskDelayMs   int    `json:"task_delay_ms"`
}

type SchedulerConfig struct {
	MaxConcurrency     int `json:"max_concurrency"`
	DefaultWaitSeconds int `json:"default_wait_seconds"`
	MaxWaitSeconds     int `json:"max_wait_seconds"`
	WaitPaddingSeconds int `json:"wait_padding_seconds"`
}

type APIConfig struct {
	Enabled            bool   `json:"enabled"`
	Addr               string `json:"addr"`
	APIKeyEnv          string `json:"api_key_env"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute"`
	EnableAPIKeyAuth   bool   `json:"enable_api_key_auth"`
	EnableIPRateLimit  bool   `json:"enable_ip_rate_limit"`
}

type StorageConfig struct {
	Type string `json:"type"` // "file", "sqlite", "redis"
	Path string `json:"path"`
}

type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Endpoint  string `json:"endpoint"`
	Namespace string `json:"namespace"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // "text" or "json"
}

// Load reads configuration from a JSON file. A missing file yields the defaults.
func Load(filePath string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(filePath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config JSON: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.Files.Accounts == "" {
		c.Files.Accounts = "data.txt"
	}
	if c.Files.Proxies == "" {
		c.Files.Proxies = "proxy.txt"
	}
	if c.Files.ErrorLog == "" {
		c.Files.ErrorLog = "errorLog.txt"
	}
	if c.Client.BaseURL == "" {
		c.Client.BaseURL = "https://app-backend.ackinacki.org/api"
	}
	if c.Client.TimeoutMs == 0 {
		c.Client.TimeoutMs = 60000
	}
	if c.Client.MaxAttempts == 0 {
		c.Client.MaxAttempts = 3
	}
	if c.Client.MinRetryDelayMs == 0 {
		c.Client.MinRetryDelayMs = 4000
	}
	if c.Client.MaxRetryDelayMs == 0 {
		c.Client.MaxRetryDelayMs = 10000
	}
	if c.Client.RetryReads == nil {
		c.Client.RetryReads = boolPtr(true)
	}
	if c.Proxy.IPCheckURL == "" {
		c.Proxy.IPCheckURL = "https://api.ipify.org?format=json"
	}
	if c.Proxy.VerifyIP == nil {
		c.Proxy.VerifyIP = boolPtr(true)
	}
	if c.Tasks.PopcoinSymbol == "" {
		c.Tasks.PopcoinSymbol = "ADS"
	}
	if c.Tasks.TaskDelayMs == 0 {
		c.Tasks.TaskDelayMs = 3000
	}
	if c.Scheduler.MaxConcurrency == 0 {
		c.Scheduler.MaxConcurrency = 25
	}
	if c.Scheduler.DefaultWaitSeconds == 0 {
		c.Scheduler.DefaultWaitSeconds = 7200
	}
	if c.Scheduler.MaxWaitSeconds == 0 {
		c.Scheduler.MaxWaitSeconds = 7200
	}
	if c.Scheduler.WaitPaddingSeconds == 0 {
		c.Scheduler.WaitPaddingSeconds = 5
	}
	if c.API.Addr == "" {
		c.API.Addr = ":8083"
	}
	if c.API.APIKeyEnv == "" {
		c.API.APIKeyEnv = "FARMER_API_KEY"
	}
	if c.API.RateLimitPerMinute == 0 {
		c.API.RateLimitPerMinute = 120
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "file"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/status.json"
	}
	if c.Metrics.Endpoint == "" {
		c.Metrics.Endpoint = "/metrics"
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = "ackinacki"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Client.TimeoutMs < 100 || c.Client.TimeoutMs > 300000 {
		return fmt.Errorf("timeout_ms must be between 100 and 300000")
	}
	if c.Client.MaxAttempts < 1 || c.Client.MaxAttempts > 10 {
		return fmt.Errorf("max_attempts must be between 1 and 10")
	}
	if c.Client.MinRetryDelayMs < 0 || c.Client.MaxRetryDelayMs < c.Client.MinRetryDelayMs {
		return fmt.Errorf("retry delay range is invalid: %d..%d ms", c.Client.MinRetryDelayMs, c.Client.MaxRetryDelayMs)
	}
	if c.Client.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative")
	}
	if c.Tasks.TaskDelayMs < 0 {
		return fmt.Errorf("task_delay_ms must not be negative")
	}
	if c.Scheduler.MaxConcurrency < 1 || c.Scheduler.MaxConcurrency > 1000 {
		return fmt.Errorf("max_concurrency must be between 1 and 1000")
	}
	if c.Scheduler.MaxWaitSeconds < 1 {
		return fmt.Errorf("max_wait_seconds must be positive")
	}
	if c.Storage.Type != "file" && c.Storage.Type != "sqlite" && c.Storage.Type != "redis" {
		return fmt.Errorf("storage type must be 'file', 'sqlite', or 'redis'")
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging format must be 'text' or 'json'")
	}
	return nil
}

func boolPtr(v bool) *bool { return &v }
