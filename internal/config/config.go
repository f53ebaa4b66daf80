// Package config loads application settings from an optional file, AUDITOR_* environment
// variables and bound CLI flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/rezonia/invoice-auditor/internal/logger"
)

// EnvPrefix is prepended to every environment override, e.g. AUDITOR_RULES_PATH
const EnvPrefix = "AUDITOR"

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Log       LogConfig
	Rules     RulesConfig
	Server    ServerConfig
	Processor ProcessorConfig
}

// AppConfig holds application-wide settings
type AppConfig struct {
	Env string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// RulesConfig points at the rule document
type RulesConfig struct {
	Path string
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxBodySize  int64
	MaxBatchSize int
}

// ProcessorConfig holds batch pipeline settings
type ProcessorConfig struct {
	Workers int
}

// NewViper returns a viper instance with defaults and env overrides set.
// Callers may bind flags on it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.env", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stderr")
	v.SetDefault("rules.path", "configs/rules.yaml")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.max_body_size", int64(10<<20))
	v.SetDefault("server.max_batch_size", 500)
	v.SetDefault("processor.workers", 4)
	return v
}

// Load reads file (when non-empty) or an invoice-auditor.yaml found in the
// working directory, then builds the Config. A missing default file is not an error.
func Load(v *viper.Viper, file string) (*Config, error) {
	if v == nil {
		v = NewViper()
	}
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("invoice-auditor")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{
		App: AppConfig{
			Env: v.GetString("app.env"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Rules: RulesConfig{
			Path: v.GetString("rules.path"),
		},
		Server: ServerConfig{
			Host:         v.GetString("server.host"),
			Port:         v.GetInt("server.port"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
			MaxBodySize:  v.GetInt64("server.max_body_size"),
			MaxBatchSize: v.GetInt("server.max_batch_size"),
		},
		Processor: ProcessorConfig{
			Workers: v.GetInt("processor.workers"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Logger converts the log section into a logger config
func (c *Config) Logger() *logger.Config {
	cfg := logger.DefaultConfig()
	if c.App.Env == "production" {
		cfg = logger.ProductionConfig()
	}
	cfg.Level = c.Log.Level
	if c.Log.Format != "" {
		cfg.Format = c.Log.Format
	}
	if c.Log.Output != "" {
		cfg.Output = c.Log.Output
	}
	return cfg
}

// Addr returns host:port for the HTTP server
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (c *Config) validate() error {
	if c.Processor.Workers < 1 {
		return fmt.Errorf("processor.workers must be positive, got %d", c.Processor.Workers)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxBatchSize < 1 {
		return fmt.Errorf("server.max_batch_size must be positive")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}
