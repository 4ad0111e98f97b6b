package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"onchainrps/internal/state"
)

// Config holds the node-level genesis options for the match engine. They seed
// on-chain Params on first boot only; after that the admin txs are the single
// source of truth.
type Config struct {
	Admin       string `yaml:"admin"`
	MinStake    uint64 `yaml:"min_stake"`
	MaxStake    uint64 `yaml:"max_stake"`
	TimeoutSecs uint64 `yaml:"timeout_secs"`
}

func defaults() Config {
	return Config{
		Admin:       "admin",
		MinStake:    1,
		MaxStake:    1_000_000,
		TimeoutSecs: 3600,
	}
}

// Load reads the YAML options file at path. An empty path or a missing file
// yields the defaults.
func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Admin) == "" {
		return fmt.Errorf("config: admin must not be empty")
	}
	if c.MinStake == 0 {
		return fmt.Errorf("config: min_stake must be positive")
	}
	if c.MinStake >= c.MaxStake {
		return fmt.Errorf("config: min_stake (%d) must be below max_stake (%d)", c.MinStake, c.MaxStake)
	}
	if c.TimeoutSecs == 0 || c.TimeoutSecs > state.MaxTimeoutSecs {
		return fmt.Errorf("config: timeout_secs must be in (0, %d], got %d", state.MaxTimeoutSecs, c.TimeoutSecs)
	}
	return nil
}

// Params converts the genesis options into the on-chain parameter record.
func (c Config) Params() state.Params {
	return state.Params{
		Admin:       c.Admin,
		MinStake:    c.MinStake,
		MaxStake:    c.MaxStake,
		TimeoutSecs: c.TimeoutSecs,
	}
}
