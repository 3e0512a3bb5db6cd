package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// Selection strategies for the signer pool.
const (
	StrategyRoundRobin = "round_robin"
	StrategyRandom     = "random"
	StrategyWeighted   = "weighted"
)

// SignerPoolConfig is the separate signer-pool configuration file. The file
// names environment variables holding the secret material; it never embeds
// secrets itself.
type SignerPoolConfig struct {
	SignerPool SignerPoolSection `mapstructure:"signer_pool"`
	Signers    []SignerEntry     `mapstructure:"signers"`
}

// SignerPoolSection is the [signer_pool] section.
type SignerPoolSection struct {
	Strategy string `mapstructure:"strategy"`
}

// SignerEntry describes one custodial signer. Type selects the backend;
// the env-var fields point at the credentials for that backend.
type SignerEntry struct {
	Name   string `mapstructure:"name"`
	Type   string `mapstructure:"type"`
	Weight uint32 `mapstructure:"weight"`

	// memory signer: base58 private key in this env var.
	PrivateKeyEnv string `mapstructure:"private_key_env"`

	// remote custodial signers: API credential env vars.
	APIKeyEnv    string `mapstructure:"api_key_env"`
	APISecretEnv string `mapstructure:"api_secret_env"`
}

// LoadSignerPool reads the signer-pool TOML file.
func LoadSignerPool(path string) (*SignerPoolConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetDefault("signer_pool.strategy", StrategyRoundRobin)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read signer config %s: %w", path, err)
	}

	var cfg SignerPoolConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode signer config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate checks pool-level invariants: at least one signer, unique names,
// a known strategy, and nonzero weights under the weighted strategy.
func (c *SignerPoolConfig) Validate() []error {
	var errs []error

	switch c.SignerPool.Strategy {
	case StrategyRoundRobin, StrategyRandom, StrategyWeighted:
	default:
		errs = append(errs, fmt.Errorf("signer_pool.strategy: unknown strategy %q", c.SignerPool.Strategy))
	}

	if len(c.Signers) == 0 {
		errs = append(errs, fmt.Errorf("signers: at least one signer is required"))
	}

	names := make(map[string]bool, len(c.Signers))
	for i, s := range c.Signers {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("signers[%d]: name is required", i))
		} else if names[s.Name] {
			errs = append(errs, fmt.Errorf("signers[%d]: duplicate signer name %q", i, s.Name))
		}
		names[s.Name] = true

		if s.Type == "" {
			errs = append(errs, fmt.Errorf("signers[%d] (%s): type is required", i, s.Name))
		}
		if s.Type == "memory" && s.PrivateKeyEnv == "" {
			errs = append(errs, fmt.Errorf("signers[%d] (%s): private_key_env is required for memory signers", i, s.Name))
		}
		if c.SignerPool.Strategy == StrategyWeighted && s.Weight == 0 {
			errs = append(errs, fmt.Errorf("signers[%d] (%s): weight must be > 0 under the weighted strategy", i, s.Name))
		}
	}

	return errs
}
