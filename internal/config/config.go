package config

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

const (
	HostHTTP   = "http"
	HostChrome = "chrome"
	HostMock   = "mock"
)

type Config struct {
	Server struct {
		Port int `env:"PORT" envDefault:"8080"`
	}
	Fetch struct {
		Timeout     time.Duration `env:"FETCH_TIMEOUT" envDefault:"15s"`
		DialTimeout time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
		SizeCap     int64         `env:"SIZE_CAP" envDefault:"5242880"` // 5MB
		Concurrency int           `env:"CONCURRENCY" envDefault:"10"`
	}
	Host struct {
		// http, chrome or mock
		Mode       string        `env:"HOST_MODE" envDefault:"http"`
		ChromePath string        `env:"CHROME_PATH"`
		ChromeWait time.Duration `env:"CHROME_WAIT" envDefault:"3s"`
		MockSeed   int64         `env:"MOCK_SEED" envDefault:"0"`
	}
	LogDebug bool `env:"LOG_DEBUG" envDefault:"false"`
}

var (
	instance *Config
	loadErr  error
	once     sync.Once
)

// Load reads .env (if any) and the environment. The result is cached.
func Load() (*Config, error) {
	once.Do(func() {
		if err := loadDotEnv(".env"); err != nil {
			loadErr = err
			return
		}
		instance, loadErr = Parse()
	})
	return instance, loadErr
}

// loadDotEnv sets variables from the given files without overriding the
// environment. Missing files are skipped.
func loadDotEnv(files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Parse reads the current environment without touching .env or the cache.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Host.Mode {
	case HostHTTP, HostChrome, HostMock:
	default:
		return fmt.Errorf("HOST_MODE must be one of http, chrome, mock (got %q)", c.Host.Mode)
	}
	if c.Fetch.Concurrency < 1 {
		return fmt.Errorf("CONCURRENCY must be positive (got %d)", c.Fetch.Concurrency)
	}
	if c.Fetch.SizeCap < 1 {
		return fmt.Errorf("SIZE_CAP must be positive (got %d)", c.Fetch.SizeCap)
	}
	return nil
}
