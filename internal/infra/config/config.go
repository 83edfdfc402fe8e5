package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"agentforge/internal/domain"
)

// Config is the top-level application configuration.
type Config struct {
	Agent   AgentConfig   `yaml:"agent"`
	LLM     LLMConfig     `yaml:"llm"`
	Logger  LoggerConfig  `yaml:"logger"`
	Tracer  TracerConfig  `yaml:"tracer"`
	Gateway GatewayConfig `yaml:"gateway"`
}

// AgentConfig holds execution loop settings.
type AgentConfig struct {
	DataDir       string `yaml:"data_dir"`
	MaxIterations int    `yaml:"max_iterations"`
	HistoryWindow int    `yaml:"history_window"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	Provider       ProviderConfig       `yaml:"provider"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker settings for the LLM provider.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings for the LLM provider.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for the LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
	Endpoint string `yaml:"endpoint"`
}

// GatewayConfig holds HTTP/WebSocket gateway settings.
type GatewayConfig struct {
	Addr      string  `yaml:"addr"`
	RateLimit float64 `yaml:"rate_limit"` // requests/sec per client, 0 = default
	RateBurst int     `yaml:"rate_burst"`
}

// defaultDataDir returns the persistent data directory under $HOME/.agentforge.
// Falls back to "./.agentforge" if $HOME cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentforge"
	}
	return filepath.Join(home, ".agentforge")
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Agent: AgentConfig{
			DataDir:       defaultDataDir(),
			MaxIterations: 10,
			HistoryWindow: 20,
		},
		LLM: LLMConfig{
			Provider: ProviderConfig{
				Name:    "openrouter",
				BaseURL: "https://openrouter.ai/api/v1",
				Model:   domain.DefaultModel,
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled: true,
			},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "stdout",
		},
		Gateway: GatewayConfig{
			Addr: ":8000",
		},
	}
}

// Load reads a YAML config file and applies env var overrides. A missing
// file is not an error; defaults plus env vars apply.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps AGENTFORGE_* (and the conventional OPENROUTER_API_KEY)
// env vars onto config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" && cfg.LLM.Provider.APIKey == "" {
		cfg.LLM.Provider.APIKey = v
	}
	if v := os.Getenv("AGENTFORGE_API_KEY"); v != "" {
		cfg.LLM.Provider.APIKey = v
	}
	if v := os.Getenv("AGENTFORGE_BASE_URL"); v != "" {
		cfg.LLM.Provider.BaseURL = v
	}
	if v := os.Getenv("AGENTFORGE_MODEL"); v != "" {
		cfg.LLM.Provider.Model = v
	}
	if v := os.Getenv("AGENTFORGE_DATA_DIR"); v != "" {
		cfg.Agent.DataDir = v
	}
	if v := os.Getenv("AGENTFORGE_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Agent.MaxIterations = n
		}
	}
	if v := os.Getenv("AGENTFORGE_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("AGENTFORGE_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("AGENTFORGE_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
}

// Validate checks the configuration for startup-fatal mistakes.
func Validate(cfg *Config) error {
	if cfg.Agent.MaxIterations <= 0 {
		return domain.NewDomainError("config.Validate", domain.ErrConfigInvalid,
			"agent.max_iterations must be positive")
	}
	if cfg.Agent.HistoryWindow < 0 {
		return domain.NewDomainError("config.Validate", domain.ErrConfigInvalid,
			"agent.history_window must not be negative")
	}
	switch cfg.Logger.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return domain.NewDomainError("config.Validate", domain.ErrConfigInvalid,
			fmt.Sprintf("unknown logger level %q", cfg.Logger.Level))
	}
	switch cfg.Logger.Format {
	case "", "text", "json":
	default:
		return domain.NewDomainError("config.Validate", domain.ErrConfigInvalid,
			fmt.Sprintf("unknown logger format %q", cfg.Logger.Format))
	}
	if cfg.LLM.Provider.Model == "" {
		return domain.NewDomainError("config.Validate", domain.ErrConfigInvalid,
			"llm.provider.model must be set")
	}
	return nil
}
