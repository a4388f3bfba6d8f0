// Package config loads service configuration from a YAML file with
// environment-variable overrides (prefix LEDGERLY_).
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	FX       FXConfig       `mapstructure:"fx"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug | release
}

// DatabaseConfig controls the postgres connection pool.
type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

// FXConfig controls the external rate source and the in-process rate cache.
type FXConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	FetchTimeout   time.Duration `mapstructure:"fetch_timeout"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	PersistTimeout time.Duration `mapstructure:"persist_timeout"`
}

// JobsConfig controls the in-process recompute queue.
type JobsConfig struct {
	QueueSize int `mapstructure:"queue_size"`
	Workers   int `mapstructure:"workers"`
}

// Load reads the config file at path and applies env overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("LEDGERLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "release")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("fx.base_url", "https://cdn.jsdelivr.net/npm/@fawazahmed0/currency-api@latest/v1/currencies")
	v.SetDefault("fx.fetch_timeout", 5*time.Second)
	v.SetDefault("fx.cache_ttl", time.Hour)
	v.SetDefault("fx.persist_timeout", 10*time.Second)
	v.SetDefault("jobs.queue_size", 64)
	v.SetDefault("jobs.workers", 4)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config.Load: reading %s: %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: unmarshal: %w", err)
	}
	return &cfg, nil
}
