package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"

	QueueRedis  = "redis"
	QueueMemory = "memory"
)

type Config struct {
	ListenAddr string `env:"LODGELINE_LISTEN_ADDR" envDefault:":8080"`
	LogLevel   string `env:"LODGELINE_LOG_LEVEL" envDefault:"info"`

	StoreBackend  string `env:"LODGELINE_STORE_BACKEND" envDefault:"sqlite"`
	DBPath        string `env:"LODGELINE_DB_PATH" envDefault:"lodgeline.db"`
	RedisAddr     string `env:"LODGELINE_REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"LODGELINE_REDIS_PASSWORD"`

	QueueBackend      string        `env:"LODGELINE_QUEUE_BACKEND" envDefault:"memory"`
	QueueName         string        `env:"LODGELINE_QUEUE_NAME" envDefault:"lodgeline:jobs"`
	QueueSize         int           `env:"LODGELINE_QUEUE_SIZE" envDefault:"1000"`
	VisibilityTimeout time.Duration `env:"LODGELINE_VISIBILITY_TIMEOUT" envDefault:"60s"`

	Concurrency int `env:"LODGELINE_CONCURRENCY" envDefault:"4"`
	IntakeRPS   int `env:"LODGELINE_INTAKE_RPS" envDefault:"0"`

	RecordTTL     time.Duration `env:"LODGELINE_RECORD_TTL" envDefault:"168h"`
	SweepInterval time.Duration `env:"LODGELINE_SWEEP_INTERVAL" envDefault:"30s"`

	LodgeMinDelay    time.Duration `env:"LODGELINE_LODGE_MIN_DELAY" envDefault:"5s"`
	LodgeMaxDelay    time.Duration `env:"LODGELINE_LODGE_MAX_DELAY" envDefault:"25s"`
	LodgeFailureRate float64       `env:"LODGELINE_LODGE_FAILURE_RATE" envDefault:"0.2"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.StoreBackend {
	case StoreSQLite, StoreRedis:
	default:
		return fmt.Errorf("store backend %q must be one of: sqlite, redis", c.StoreBackend)
	}
	switch c.QueueBackend {
	case QueueRedis, QueueMemory:
	default:
		return fmt.Errorf("queue backend %q must be one of: redis, memory", c.QueueBackend)
	}
	if c.Concurrency < 1 {
		return errors.New("concurrency must be > 0")
	}
	if c.QueueSize < 1 {
		return errors.New("queue size must be > 0")
	}
	if c.RecordTTL <= 0 {
		return errors.New("record TTL must be positive")
	}
	if c.VisibilityTimeout <= 0 {
		return errors.New("visibility timeout must be positive")
	}
	if c.SweepInterval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	if c.LodgeMinDelay < 0 || c.LodgeMaxDelay < c.LodgeMinDelay {
		return errors.New("lodge delay bounds must satisfy 0 <= min <= max")
	}
	if c.LodgeFailureRate < 0 || c.LodgeFailureRate > 1 {
		return errors.New("lodge failure rate must be within [0, 1]")
	}
	return nil
}
