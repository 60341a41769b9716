package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/vitos/crypto_market_table/internal/infrastructure/coingecko"
	"github.com/vitos/crypto_market_table/internal/infrastructure/storage"
	"github.com/vitos/crypto_market_table/internal/usecase"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "config/config.yaml"

type Config struct {
	CoinGecko struct {
		BaseURL       string `yaml:"base_url"`
		APIKey        string `yaml:"api_key"`
		TimeoutMs     int    `yaml:"timeout_ms"`
		RetryAttempts int    `yaml:"retry_attempts"`
	} `yaml:"coingecko"`
	Polling struct {
		RefreshIntervalMs int `yaml:"refresh_interval_ms"`
	} `yaml:"polling"`
	Logging struct {
		Level    string `yaml:"level"`
		Encoding string `yaml:"encoding"`
	} `yaml:"logging"`
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`
	Storage struct {
		DSN  string `yaml:"dsn"`
		Keep int    `yaml:"keep"`
	} `yaml:"storage"`
}

func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Polling.RefreshIntervalMs) * time.Millisecond
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.CoinGecko.TimeoutMs) * time.Millisecond
}

// loadConfig reads the YAML file at path, then applies .env and process
// environment overrides, then defaults. A missing file is not an error.
func loadConfig(path string) (*Config, error) {
	var cfg Config

	f, err := os.Open(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	// .env is optional and never overrides variables already set.
	_ = godotenv.Load()
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv("COINGECKO_BASE_URL"); ok {
		cfg.CoinGecko.BaseURL = v
	}
	if v, ok := os.LookupEnv("COINGECKO_API_KEY"); ok {
		cfg.CoinGecko.APIKey = v
	}
	if v, ok := os.LookupEnv("LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	if v, ok := os.LookupEnv("LOG_ENCODING"); ok {
		cfg.Logging.Encoding = v
	}
	if v, ok := os.LookupEnv("STORAGE_DSN"); ok {
		cfg.Storage.DSN = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"REFRESH_INTERVAL_MS", &cfg.Polling.RefreshIntervalMs},
		{"SERVER_PORT", &cfg.Server.Port},
	}
	for _, e := range ints {
		v, ok := os.LookupEnv(e.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", e.key, v, err)
		}
		*e.dst = n
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.CoinGecko.BaseURL == "" {
		cfg.CoinGecko.BaseURL = coingecko.BaseURL
	}
	if cfg.CoinGecko.TimeoutMs <= 0 {
		cfg.CoinGecko.TimeoutMs = int(usecase.DefaultFetchTimeout / time.Millisecond)
	}
	if cfg.CoinGecko.RetryAttempts <= 0 {
		cfg.CoinGecko.RetryAttempts = coingecko.DefaultRetry.MaxAttempts
	}
	if cfg.Polling.RefreshIntervalMs <= 0 {
		cfg.Polling.RefreshIntervalMs = int(usecase.DefaultRefreshInterval / time.Millisecond)
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Encoding == "" {
		cfg.Logging.Encoding = "json"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = storage.DefaultDSN
	}
	if cfg.Storage.Keep <= 0 {
		cfg.Storage.Keep = 1000
	}
}
