package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Sim       SimConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Scenarios ScenarioConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// SimConfig holds the simulation tunables. The transient-block probability
// and RNG seed are environment-injectable so demos and tests can pin
// deterministic behavior.
type SimConfig struct {
	TickPeriod           time.Duration `envconfig:"SIM_TICK_PERIOD" default:"200ms"`
	ProgressStep         int           `envconfig:"SIM_PROGRESS_STEP" default:"10"`
	ReleaseDelay         time.Duration `envconfig:"SIM_RELEASE_DELAY" default:"3s"`
	BlockDuration        time.Duration `envconfig:"SIM_BLOCK_DURATION" default:"1500ms"`
	BlockProbability     float64       `envconfig:"SIM_BLOCK_PROBABILITY" default:"0.15"`
	DefaultQueueCapacity int           `envconfig:"SIM_QUEUE_CAPACITY" default:"10"`
	DefaultMaxReaders    int           `envconfig:"SIM_MAX_READERS" default:"5"`
	Seed                 int64         `envconfig:"SIM_SEED" default:"0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// ScenarioConfig points at the demo scenario directory.
type ScenarioConfig struct {
	Dir string `envconfig:"SCENARIOS_DIR" default:"./scenarios"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Sim: SimConfig{
			TickPeriod:           200 * time.Millisecond,
			ProgressStep:         10,
			ReleaseDelay:         3 * time.Second,
			BlockDuration:        1500 * time.Millisecond,
			BlockProbability:     0.15,
			DefaultQueueCapacity: 10,
			DefaultMaxReaders:    5,
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Scenarios: ScenarioConfig{
			Dir: "./scenarios",
		},
	}
}
