package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the execution service.
type Config struct {
	Server    ServerConfig
	Execution ExecutionConfig
}

type ServerConfig struct {
	Port         int           `mapstructure:"SERVER_PORT"`
	ReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`
	RateLimit    int           `mapstructure:"SERVER_RATE_LIMIT"`
	MaxBodyBytes int64         `mapstructure:"SERVER_MAX_BODY_BYTES"`
	GinMode      string        `mapstructure:"GIN_MODE"`
}

// ExecutionConfig bounds every child process. Immutable after Load; the
// service only ever reads it.
type ExecutionConfig struct {
	PythonPath          string `mapstructure:"PYTHON_PATH"`
	SandboxInitPath     string `mapstructure:"SANDBOX_INIT_PATH"`
	MaxMemoryMB         int    `mapstructure:"MAX_MEMORY_MB"`
	MaxCPUSeconds       int    `mapstructure:"MAX_CPU_SECONDS"`
	MaxConcurrent       int    `mapstructure:"MAX_CONCURRENT_EXECUTIONS"`
	FilesystemIsolation bool   `mapstructure:"FILESYSTEM_ISOLATION"`
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("SERVER_PORT", 8000)
	viper.SetDefault("SERVER_READ_TIMEOUT", "10s")
	// Write timeout must cover the longest allowed execution (30s) plus the
	// termination grace window.
	viper.SetDefault("SERVER_WRITE_TIMEOUT", "45s")
	viper.SetDefault("SERVER_RATE_LIMIT", 120)
	viper.SetDefault("SERVER_MAX_BODY_BYTES", 1048576)
	viper.SetDefault("GIN_MODE", "release")
	viper.SetDefault("PYTHON_PATH", "python3")
	viper.SetDefault("SANDBOX_INIT_PATH", "pybox-init")
	viper.SetDefault("MAX_MEMORY_MB", 128)
	viper.SetDefault("MAX_CPU_SECONDS", 10)
	viper.SetDefault("MAX_CONCURRENT_EXECUTIONS", 10)
	viper.SetDefault("FILESYSTEM_ISOLATION", true)

	// Attempt to read .env file (non-fatal if missing)
	_ = viper.ReadInConfig()

	cfg := &Config{}
	cfg.Server.Port = viper.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = viper.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = viper.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.RateLimit = viper.GetInt("SERVER_RATE_LIMIT")
	cfg.Server.MaxBodyBytes = viper.GetInt64("SERVER_MAX_BODY_BYTES")
	cfg.Server.GinMode = viper.GetString("GIN_MODE")
	cfg.Execution.PythonPath = viper.GetString("PYTHON_PATH")
	cfg.Execution.SandboxInitPath = viper.GetString("SANDBOX_INIT_PATH")
	cfg.Execution.MaxMemoryMB = viper.GetInt("MAX_MEMORY_MB")
	cfg.Execution.MaxCPUSeconds = viper.GetInt("MAX_CPU_SECONDS")
	cfg.Execution.MaxConcurrent = viper.GetInt("MAX_CONCURRENT_EXECUTIONS")
	cfg.Execution.FilesystemIsolation = viper.GetBool("FILESYSTEM_ISOLATION")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid SERVER_PORT %d: must be in [1, 65535]", c.Server.Port)
	}
	if c.Server.RateLimit < 1 {
		return fmt.Errorf("invalid SERVER_RATE_LIMIT %d: must be at least 1", c.Server.RateLimit)
	}
	if c.Server.MaxBodyBytes < 1024 {
		return fmt.Errorf("invalid SERVER_MAX_BODY_BYTES %d: must be at least 1024", c.Server.MaxBodyBytes)
	}
	if c.Execution.PythonPath == "" {
		return fmt.Errorf("PYTHON_PATH cannot be empty")
	}
	if c.Execution.SandboxInitPath == "" {
		return fmt.Errorf("SANDBOX_INIT_PATH cannot be empty")
	}
	if c.Execution.MaxMemoryMB < 16 {
		return fmt.Errorf("invalid MAX_MEMORY_MB %d: must be at least 16", c.Execution.MaxMemoryMB)
	}
	if c.Execution.MaxCPUSeconds < 1 {
		return fmt.Errorf("invalid MAX_CPU_SECONDS %d: must be at least 1", c.Execution.MaxCPUSeconds)
	}
	if c.Execution.MaxConcurrent < 1 {
		return fmt.Errorf("invalid MAX_CONCURRENT_EXECUTIONS %d: must be at least 1", c.Execution.MaxConcurrent)
	}
	return nil
}
