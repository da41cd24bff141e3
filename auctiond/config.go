package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the daemon configuration, read from AUCTIOND_* environment
// variables.
type Config struct {
	// ListenAddr is the TCP address served when no vsock port is set.
	ListenAddr string `env:"AUCTIOND_LISTEN_ADDR" envDefault:"127.0.0.1:5000"`
	// VsockPort switches the listener to vsock when non-zero.
	VsockPort   uint32        `env:"AUCTIOND_VSOCK_PORT"`
	MaxWorkers  int           `env:"AUCTIOND_MAX_WORKERS,required"`
	ReadTimeout time.Duration `env:"AUCTIOND_READ_TIMEOUT" envDefault:"30s"`

	// DataDir holds the LevelDB database. Empty keeps state in memory.
	DataDir string `env:"AUCTIOND_DATA_DIR"`

	Denom      string `env:"AUCTIOND_DENOM" envDefault:"atom"`
	EscrowAddr string `env:"AUCTIOND_ESCROW_ADDR" envDefault:"escrow"`
	AllowMint  bool   `env:"AUCTIOND_ALLOW_MINT"`
	Attest     bool   `env:"AUCTIOND_ATTEST"`

	MetricsAddr string     `env:"AUCTIOND_METRICS_ADDR"`
	LogLevel    slog.Level `env:"AUCTIOND_LOG_LEVEL" envDefault:"INFO"`
}

// LoadConfig parses the configuration from environ, or from the process
// environment when environ is nil.
func LoadConfig(environ map[string]string) (Config, error) {
	var cfg Config
	opts := env.Options{Environment: environ}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("AUCTIOND_MAX_WORKERS must be positive, got %d", c.MaxWorkers)
	}
	if c.ReadTimeout <= 0 {
		return errors.New("AUCTIOND_READ_TIMEOUT must be positive")
	}
	if c.Denom == "" {
		return errors.New("AUCTIOND_DENOM must not be empty")
	}
	if c.EscrowAddr == "" {
		return errors.New("AUCTIOND_ESCROW_ADDR must not be empty")
	}
	return nil
}
