package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/propdesk/pkg/logging"
)

// Config is the complete propdesk configuration
type Config struct {
	User        UserConfig        `json:"user" yaml:"user"`
	Account     AccountConfig     `json:"account" yaml:"account"`
	Storage     StorageConfig     `json:"storage" yaml:"storage"`
	Remote      RemoteConfig      `json:"remote" yaml:"remote"`
	Replication ReplicationConfig `json:"replication" yaml:"replication"`
	Pricing     PricingConfig     `json:"pricing" yaml:"pricing"`
	Server      ServerConfig      `json:"server" yaml:"server"`
	Logging     logging.LogConfig `json:"logging" yaml:"logging"`
}

type UserConfig struct {
	ID string `json:"id" yaml:"id"` // empty means guest
}

// AccountConfig sets up a fresh book
type AccountConfig struct {
	Currency string  `json:"currency" yaml:"currency"`
	Balance  float64 `json:"balance" yaml:"balance"`
	Mode     string  `json:"mode" yaml:"mode"`
}

type StorageConfig struct {
	Path string `json:"path" yaml:"path"` // SQLite file, or ":memory:"
}

type RemoteConfig struct {
	Driver string `json:"driver" yaml:"driver"` // "none" or "postgres"
	DSN    string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// ReplicationConfig holds the outbox retry policy. Durations use
// time.ParseDuration syntax, e.g. "500ms", "30s".
type ReplicationConfig struct {
	MaxAttempts    int    `json:"max_attempts" yaml:"max_attempts"`
	InitialBackoff string `json:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     string `json:"max_backoff" yaml:"max_backoff"`
	AttemptTimeout string `json:"attempt_timeout" yaml:"attempt_timeout"`
	QueueSize      int    `json:"queue_size" yaml:"queue_size"`
}

// Durations parses the three duration fields. Empty fields are zero.
func (r ReplicationConfig) Durations() (initial, maxBackoff, timeout time.Duration, err error) {
	if initial, err = parseDuration("replication.initial_backoff", r.InitialBackoff); err != nil {
		return
	}
	if maxBackoff, err = parseDuration("replication.max_backoff", r.MaxBackoff); err != nil {
		return
	}
	timeout, err = parseDuration("replication.attempt_timeout", r.AttemptTimeout)
	return
}

// PricingConfig drives the mock quote feed
type PricingConfig struct {
	Seeds      map[string]float64 `json:"seeds" yaml:"seeds"`
	Volatility float64            `json:"volatility" yaml:"volatility"`
	Interval   string             `json:"interval" yaml:"interval"`
	Seed       int64              `json:"seed,omitempty" yaml:"seed,omitempty"`
}

func (p PricingConfig) ParseInterval() (time.Duration, error) {
	return parseDuration("pricing.interval", p.Interval)
}

type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

func parseDuration(field, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	return d, nil
}

// LoadFromFile loads configuration from a file (YAML or JSON)
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := base()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = base()
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}
	if cfg.Pricing.Seeds == nil {
		cfg.Pricing.Seeds = Default().Pricing.Seeds
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Account.Currency == "" {
		return fmt.Errorf("account.currency is required")
	}
	if c.Account.Balance < 0 || math.IsNaN(c.Account.Balance) || math.IsInf(c.Account.Balance, 0) {
		return fmt.Errorf("account.balance must be a non-negative number")
	}
	if c.Account.Mode != "Evaluation" && c.Account.Mode != "Funded" {
		return fmt.Errorf("account.mode must be 'Evaluation' or 'Funded'")
	}
	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}
	switch c.Remote.Driver {
	case "none", "":
	case "postgres":
		if c.Remote.DSN == "" {
			return fmt.Errorf("remote.dsn required for postgres driver")
		}
	default:
		return fmt.Errorf("remote.driver must be 'none' or 'postgres'")
	}
	if c.Replication.MaxAttempts <= 0 {
		return fmt.Errorf("replication.max_attempts must be positive")
	}
	if c.Replication.QueueSize < 0 {
		return fmt.Errorf("replication.queue_size must not be negative")
	}
	initial, maxBackoff, _, err := c.Replication.Durations()
	if err != nil {
		return err
	}
	if maxBackoff < initial {
		return fmt.Errorf("replication.max_backoff must be at least initial_backoff")
	}
	if c.Pricing.Volatility < 0 || c.Pricing.Volatility >= 1 {
		return fmt.Errorf("pricing.volatility must be in [0, 1)")
	}
	for sym, p := range c.Pricing.Seeds {
		if p <= 0 {
			return fmt.Errorf("pricing.seeds.%s must be positive", sym)
		}
	}
	if _, err := c.Pricing.ParseInterval(); err != nil {
		return err
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	return nil
}

// base is Default without seed prices, so a file's seeds replace the
// defaults instead of merging into them.
func base() *Config {
	cfg := Default()
	cfg.Pricing.Seeds = nil
	return cfg
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			Currency: "EGP",
			Balance:  100000,
			Mode:     "Evaluation",
		},
		Storage: StorageConfig{
			Path: "./propdesk.sqlite",
		},
		Remote: RemoteConfig{
			Driver: "none",
		},
		Replication: ReplicationConfig{
			MaxAttempts:    5,
			InitialBackoff: "500ms",
			MaxBackoff:     "30s",
			AttemptTimeout: "10s",
			QueueSize:      4096,
		},
		Pricing: PricingConfig{
			Seeds: map[string]float64{
				"COMI": 50,
				"TMGH": 20,
				"HRHO": 18,
				"EAST": 30,
				"SWDY": 40,
			},
			Volatility: 0.02,
			Interval:   "2s",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Logging: logging.LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
