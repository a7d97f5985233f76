package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// WorkspaceGrace is how long a workspace can outlive the execution timeout:
// the output drain after the process exits plus the forced removal of a
// timed-out container.
const WorkspaceGrace = 7 * time.Second

// EnvPrefix is prepended to every environment override, e.g. RUNBOX_SANDBOX_TIMEOUT_MS.
const EnvPrefix = "RUNBOX"

// Config represents the application configuration
type Config struct {
	Server    ServerConfig        `mapstructure:"server" yaml:"server"`
	Sandbox   SandboxConfig       `mapstructure:"sandbox" yaml:"sandbox"`
	Logging   LoggingConfig       `mapstructure:"logging" yaml:"logging"`
	RateLimit RateLimitConfig     `mapstructure:"ratelimit" yaml:"ratelimit"`
	Janitor   JanitorConfig       `mapstructure:"janitor" yaml:"janitor"`
	Languages map[string]Language `mapstructure:"languages" yaml:"languages"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport          string `mapstructure:"transport" yaml:"transport"`
	HTTPPort           int    `mapstructure:"http_port" yaml:"http_port"`
	MCPEnabled         bool   `mapstructure:"mcp_enabled" yaml:"mcp_enabled"`
	MaxBodyBytes       int64  `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	ShutdownTimeoutSec int    `mapstructure:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec"`
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Enable it only behind a proxy that sets them.
	TrustProxyHeaders bool `mapstructure:"trust_proxy_headers" yaml:"trust_proxy_headers"`
}

// SandboxConfig holds sandbox configuration
type SandboxConfig struct {
	Backend          string  `mapstructure:"backend" yaml:"backend"`
	FallbackToHost   bool    `mapstructure:"fallback_to_host" yaml:"fallback_to_host"`
	ScratchDir       string  `mapstructure:"scratch_dir" yaml:"scratch_dir"`
	TimeoutMs        int     `mapstructure:"timeout_ms" yaml:"timeout_ms"`
	OutputLimitBytes int     `mapstructure:"output_limit_bytes" yaml:"output_limit_bytes"`
	MemoryMB         int     `mapstructure:"memory_mb" yaml:"memory_mb"`
	CPUs             float64 `mapstructure:"cpus" yaml:"cpus"`
	PIDsLimit        int     `mapstructure:"pids_limit" yaml:"pids_limit"`
	NetworkEnabled   bool    `mapstructure:"network_enabled" yaml:"network_enabled"`
	ProbeTimeoutMs   int     `mapstructure:"probe_timeout_ms" yaml:"probe_timeout_ms"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode" yaml:"mode"`
	Level string `mapstructure:"level" yaml:"level"`
}

// RateLimitConfig bounds request admission on the HTTP gateway. Zero disables a limit.
type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `mapstructure:"burst" yaml:"burst"`
	PerClientRPS      float64 `mapstructure:"per_client_rps" yaml:"per_client_rps"`
	PerClientBurst    int     `mapstructure:"per_client_burst" yaml:"per_client_burst"`
	MaxConcurrent     int     `mapstructure:"max_concurrent" yaml:"max_concurrent"`
}

// JanitorConfig controls the sweep of scratch files left behind by crashed executions.
type JanitorConfig struct {
	Schedule  string `mapstructure:"schedule" yaml:"schedule"`
	MaxAgeSec int    `mapstructure:"max_age_sec" yaml:"max_age_sec"`
}

// Language describes how one language tag is staged and run.
type Language struct {
	Extension    string   `mapstructure:"extension" yaml:"extension"`
	Image        string   `mapstructure:"image" yaml:"image"`
	Interpreter  string   `mapstructure:"interpreter" yaml:"interpreter"`
	HostBinaries []string `mapstructure:"host_binaries" yaml:"host_binaries"`
	Aliases      []string `mapstructure:"aliases" yaml:"aliases"`
}

// New loads configuration from the default search paths
func New() (*Config, error) {
	return Load("")
}

// Load reads the configuration from path, or from ./runbox.yaml and
// ./config/runbox.yaml when path is empty, applies environment overrides
// and validates the result.
func Load(path string) (*Config, error) {
	// A .env file is optional; real environment variables always win.
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("runbox")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.transport", "http")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.mcp_enabled", true)
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("server.shutdown_timeout_sec", 15)
	v.SetDefault("server.trust_proxy_headers", false)

	v.SetDefault("sandbox.backend", "docker")
	v.SetDefault("sandbox.fallback_to_host", true)
	v.SetDefault("sandbox.scratch_dir", "/tmp/code-sandbox")
	v.SetDefault("sandbox.timeout_ms", 10000)
	v.SetDefault("sandbox.output_limit_bytes", 10000)
	v.SetDefault("sandbox.memory_mb", 128)
	v.SetDefault("sandbox.cpus", 0.5)
	v.SetDefault("sandbox.pids_limit", 64)
	v.SetDefault("sandbox.network_enabled", false)
	v.SetDefault("sandbox.probe_timeout_ms", 3000)

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")

	v.SetDefault("ratelimit.requests_per_second", 20)
	v.SetDefault("ratelimit.burst", 40)
	v.SetDefault("ratelimit.per_client_rps", 5)
	v.SetDefault("ratelimit.per_client_burst", 10)
	v.SetDefault("ratelimit.max_concurrent", 16)

	v.SetDefault("janitor.schedule", "@every 5m")
	v.SetDefault("janitor.max_age_sec", 300)

	v.SetDefault("languages", map[string]any{
		"node": map[string]any{
			"extension":     "js",
			"image":         "node:20-alpine",
			"interpreter":   "node",
			"host_binaries": []string{"node"},
			"aliases":       []string{"javascript"},
		},
		"python": map[string]any{
			"extension":     "py",
			"image":         "python:3.11-alpine",
			"interpreter":   "python",
			"host_binaries": []string{"python3", "python"},
		},
	})
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Server.Transport == "http" && (c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535) {
		return fmt.Errorf("invalid server.http_port: %d", c.Server.HTTPPort)
	}

	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive, got: %d", c.Server.MaxBodyBytes)
	}

	if c.Sandbox.TimeoutMs <= 0 {
		return fmt.Errorf("sandbox.timeout_ms must be positive, got: %d", c.Sandbox.TimeoutMs)
	}

	if c.Sandbox.OutputLimitBytes <= 0 {
		return fmt.Errorf("sandbox.output_limit_bytes must be positive, got: %d", c.Sandbox.OutputLimitBytes)
	}

	if c.Sandbox.MemoryMB <= 0 {
		return fmt.Errorf("sandbox.memory_mb must be positive, got: %d", c.Sandbox.MemoryMB)
	}

	if c.Sandbox.CPUs <= 0 {
		return fmt.Errorf("sandbox.cpus must be positive, got: %g", c.Sandbox.CPUs)
	}

	if c.Sandbox.ProbeTimeoutMs <= 0 {
		return fmt.Errorf("sandbox.probe_timeout_ms must be positive, got: %d", c.Sandbox.ProbeTimeoutMs)
	}

	if c.Sandbox.ScratchDir == "" {
		return errors.New("sandbox.scratch_dir must not be empty")
	}

	supportedBackends := map[string]bool{
		"docker": true,
		"podman": true,
		"local":  true,
	}

	if !supportedBackends[c.Sandbox.Backend] {
		return fmt.Errorf("unsupported sandbox.backend: %s", c.Sandbox.Backend)
	}

	if c.Janitor.MaxAgeSec > 0 && c.JanitorMaxAge() <= c.Timeout()+WorkspaceGrace {
		return fmt.Errorf("janitor.max_age_sec must exceed the execution timeout plus %s, got: %d",
			WorkspaceGrace, c.Janitor.MaxAgeSec)
	}

	if err := c.validateLogging(); err != nil {
		return err
	}

	return c.validateLanguages()
}

func (c *Config) validateLogging() error {
	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error", "dpanic", "panic", "fatal":
		return nil
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}
}

func (c *Config) validateLanguages() error {
	if len(c.Languages) == 0 {
		return errors.New("at least one language must be configured")
	}

	seen := make(map[string]string)
	for name, lang := range c.Languages {
		if lang.Extension == "" {
			return fmt.Errorf("languages.%s.extension must not be empty", name)
		}
		if lang.Interpreter == "" {
			return fmt.Errorf("languages.%s.interpreter must not be empty", name)
		}
		for _, tag := range append([]string{name}, lang.Aliases...) {
			if owner, dup := seen[tag]; dup {
				return fmt.Errorf("language tag %q is claimed by both %s and %s", tag, owner, name)
			}
			seen[tag] = name
		}
	}

	return nil
}

// Timeout returns the execution timeout as a duration
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Sandbox.TimeoutMs) * time.Millisecond
}

// ProbeTimeout bounds container runtime and interpreter probes.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Sandbox.ProbeTimeoutMs) * time.Millisecond
}

// JanitorMaxAge is the age after which a scratch file is considered leaked.
func (c *Config) JanitorMaxAge() time.Duration {
	return time.Duration(c.Janitor.MaxAgeSec) * time.Second
}

// ShutdownTimeout bounds graceful HTTP shutdown.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutSec) * time.Second
}
