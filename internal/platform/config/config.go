package config

import (
	"fmt"
	"strings"
	"time"

	"newsfinder/contexts/experimentation/abtest-engine/application/policy"

	"github.com/caarlos0/env/v11"
)

const (
	StorePostgres = "postgres"
	StoreBadger   = "badger"
	StoreMemory   = "memory"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName  string   `env:"SERVICE_NAME" envDefault:"newsfinder-abtest"`
	HTTPPort     string   `env:"HTTP_PORT" envDefault:"8080"`
	PostgresDSN  string   `env:"POSTGRES_DSN"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`

	Store         string `env:"ABTEST_STORE" envDefault:"memory"`
	BadgerPath    string `env:"BADGER_PATH" envDefault:"data/abtest"`
	CampaignsFile string `env:"ABTEST_CAMPAIGNS_FILE" envDefault:"config/campaigns.yaml"`

	DefaultPolicy  string  `env:"ABTEST_DEFAULT_POLICY" envDefault:"thompson"`
	PriorAlpha     float64 `env:"ABTEST_PRIOR_ALPHA" envDefault:"1"`
	PriorBeta      float64 `env:"ABTEST_PRIOR_BETA" envDefault:"1"`
	EGreedyEpsilon float64 `env:"ABTEST_EGREEDY_EPSILON" envDefault:"0.1"`
	FailSafe       bool    `env:"ABTEST_FAIL_SAFE_ASSIGNMENT" envDefault:"true"`

	StoreRetryMaxTries        uint          `env:"ABTEST_STORE_RETRY_MAX_TRIES" envDefault:"3"`
	StoreRetryInitialInterval time.Duration `env:"ABTEST_STORE_RETRY_INITIAL_INTERVAL" envDefault:"50ms"`
	OutboxPollInterval        time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Store = strings.ToLower(strings.TrimSpace(cfg.Store))
	brokers := cfg.KafkaBrokers[:0]
	for _, broker := range cfg.KafkaBrokers {
		if broker = strings.TrimSpace(broker); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	cfg.KafkaBrokers = brokers
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	name, _ := policy.ParseName(cfg.DefaultPolicy)
	cfg.DefaultPolicy = string(name)
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory:
	case StoreBadger:
		if strings.TrimSpace(c.BadgerPath) == "" {
			return fmt.Errorf("BADGER_PATH is required when ABTEST_STORE=%s", StoreBadger)
		}
	case StorePostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("POSTGRES_DSN is required when ABTEST_STORE=%s", StorePostgres)
		}
	default:
		return fmt.Errorf("ABTEST_STORE must be one of postgres, badger, memory: got %q", c.Store)
	}
	if _, err := policy.ParseName(c.DefaultPolicy); err != nil {
		return fmt.Errorf("ABTEST_DEFAULT_POLICY %q: %w", c.DefaultPolicy, err)
	}
	if c.PriorAlpha <= 0 || c.PriorBeta <= 0 {
		return fmt.Errorf("ABTEST_PRIOR_ALPHA and ABTEST_PRIOR_BETA must be positive")
	}
	if c.EGreedyEpsilon < 0 || c.EGreedyEpsilon > 1 {
		return fmt.Errorf("ABTEST_EGREEDY_EPSILON must be within [0,1]")
	}
	if c.StoreRetryMaxTries == 0 {
		return fmt.Errorf("ABTEST_STORE_RETRY_MAX_TRIES must be at least 1")
	}
	return nil
}
