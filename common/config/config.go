// Package config loads storectl settings.
//
// Sources, highest priority first:
//  1. explicit --config path;
//  2. CONFIG_PATH;
//  3. ./local.yaml;
//  4. environment only (cleanenv).
//
// Environment variables always overlay whatever a file provided.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Token store backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Env   string      `yaml:"env" env:"ENV" env-default:"local"`
	API   APIConfig   `yaml:"api"`
	Store StoreConfig `yaml:"store"`
}

// APIConfig describes the Remote API and how to talk to it.
type APIConfig struct {
	BaseURL        string        `yaml:"base_url"        env:"API_BASE_URL"        env-default:"http://localhost:5000/api"`
	Timeout        time.Duration `yaml:"timeout"         env:"API_TIMEOUT"         env-default:"10s"`
	RefreshTimeout time.Duration `yaml:"refresh_timeout" env:"API_REFRESH_TIMEOUT" env-default:"10s"`
	UserAgent      string        `yaml:"user_agent"      env:"API_USER_AGENT"      env-default:"storefront-admin/1.0"`
	LoginPath      string        `yaml:"login_path"      env:"API_LOGIN_PATH"      env-default:"/admin/login"`
}

// StoreConfig selects where the token pair and identity live.
type StoreConfig struct {
	Backend  string         `yaml:"backend" env:"TOKEN_STORE"      env-default:"file"`
	Path     string         `yaml:"path"    env:"TOKEN_STORE_PATH" env-default:".storefront/session.json"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"     env:"REDIS_ADDR"     env-default:"localhost:6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db"       env:"REDIS_DB"       env-default:"0"`
	Prefix   string `yaml:"prefix"   env:"REDIS_PREFIX"   env-default:"storefront:session:"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn" env:"POSTGRES_DSN"`
}

// Validate rejects combinations Load cannot catch on its own.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must not be empty")
	}
	switch c.Store.Backend {
	case BackendMemory, BackendRedis:
	case BackendFile:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path is required for the file backend")
		}
	case BackendPostgres:
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.postgres.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown token store backend %q", c.Store.Backend)
	}
	return nil
}

func Load(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func read(path string) (*Config, error) {
	var cfg Config

	tryRead := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, nil
	}

	// 1) --config
	if path != "" {
		return tryRead(path)
	}

	// 2) CONFIG_PATH
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return tryRead(envPath)
	}

	// 3) ./local.yaml
	if _, err := os.Stat("local.yaml"); err == nil {
		return tryRead("local.yaml")
	}

	// 4) env only
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}
	return &cfg, nil
}
