package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"lamed/internal/core"
)

// Config holds all configuration for the tracker process.
type Config struct {
	Redis             RedisConfig `yaml:"redis"`
	Log               LogConfig   `yaml:"log"`
	Retry             RetryConfig `yaml:"retry"`
	UUIDExpirySeconds int         `yaml:"uuid_expiry_seconds" envconfig:"UUID_EXPIRY_SECONDS"`
	DefaultNamespace  string      `yaml:"default_namespace" envconfig:"DEFAULT_NAMESPACE"`
}

// RedisConfig holds the backend connection parameters. URL wins over the
// discrete fields when set.
type RedisConfig struct {
	URL      string `yaml:"url" envconfig:"URL"`
	Host     string `yaml:"host" envconfig:"HOST"`
	Port     int    `yaml:"port" envconfig:"PORT"`
	Password string `yaml:"password" envconfig:"PASSWORD"`
	DB       int    `yaml:"db" envconfig:"DB"`
}

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level      string `yaml:"level" envconfig:"LEVEL"`
	Format     string `yaml:"format" envconfig:"FORMAT"`           // json, console
	Output     string `yaml:"output" envconfig:"OUTPUT"`           // stdout, stderr, file
	FilePath   string `yaml:"file_path" envconfig:"FILE_PATH"`     // used when Output is file
	TimeFormat string `yaml:"time_format" envconfig:"TIME_FORMAT"` // rfc3339, unix, iso8601
}

// RetryConfig bounds the optimistic transaction loop.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
	InitialInterval time.Duration `yaml:"initial_interval" envconfig:"INITIAL_INTERVAL"`
	MaxInterval     time.Duration `yaml:"max_interval" envconfig:"MAX_INTERVAL"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			FilePath:   "logs/lamed.log",
			TimeFormat: "rfc3339",
		},
		Retry: RetryConfig{
			MaxAttempts:     50,
			InitialInterval: 5 * time.Millisecond,
			MaxInterval:     200 * time.Millisecond,
		},
		UUIDExpirySeconds: 24 * 60 * 60,
		DefaultNamespace:  core.DefaultNamespace,
	}
}

// Load builds the configuration from defaults, then the YAML file at path (if
// path is non-empty and the file exists), then environment variables.
func Load(path string) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("error reading config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("error parsing YAML: %w", err)
			}
		}
	}

	if err := envconfig.Process("", config); err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate rejects settings the tracker cannot run with.
func (c *Config) Validate() error {
	if c.UUIDExpirySeconds <= 0 {
		return fmt.Errorf("uuid_expiry_seconds must be positive, got %d", c.UUIDExpirySeconds)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry.max_attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	if c.Redis.URL == "" && c.Redis.Host == "" {
		return errors.New("redis url or host is required")
	}
	if err := core.CheckField("default_namespace", c.DefaultNamespace); err != nil {
		return err
	}
	return nil
}

// UUIDExpiry is the lifetime of a dedup marker.
func (c *Config) UUIDExpiry() time.Duration {
	return time.Duration(c.UUIDExpirySeconds) * time.Second
}
