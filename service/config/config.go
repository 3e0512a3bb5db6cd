// Package config loads and validates the relayer configuration. The main
// config is a TOML file; secrets are never embedded in it and arrive
// exclusively through environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Default limits applied when the config file omits them.
const (
	DefaultMaxRequestBodySize = 2 << 20 // 2 MiB
	DefaultMaxTimestampAge    = 300     // seconds
	DefaultAccountTTL         = 60      // seconds
)

// Config holds the full relayer configuration.
type Config struct {
	Kora       KoraConfig       `mapstructure:"kora"`
	Validation ValidationConfig `mapstructure:"validation"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`

	// Server configuration, env-only.
	ServerAddr string `mapstructure:"-"`
	LogLevel   string `mapstructure:"-"`
	RPCURL     string `mapstructure:"-"`
}

// KoraConfig is the [kora] section: server-level knobs.
type KoraConfig struct {
	RateLimit          uint64           `mapstructure:"rate_limit"`
	MaxRequestBodySize int64            `mapstructure:"max_request_body_size"`
	PaymentAddress     string           `mapstructure:"payment_address"`
	EnabledMethods     map[string]bool  `mapstructure:"enabled_methods"`
	Auth               AuthConfig       `mapstructure:"auth"`
	Cache              CacheConfig      `mapstructure:"cache"`
	UsageLimit         UsageLimitConfig `mapstructure:"usage_limit"`
}

// AuthConfig is the [kora.auth] section. Empty values disable the
// corresponding auth layer.
type AuthConfig struct {
	APIKey          string `mapstructure:"api_key"`
	HMACSecret      string `mapstructure:"hmac_secret"`
	MaxTimestampAge int64  `mapstructure:"max_timestamp_age"`
}

// CacheConfig is the [kora.cache] section controlling the account cache.
type CacheConfig struct {
	URL        string `mapstructure:"url"`
	Enabled    bool   `mapstructure:"enabled"`
	DefaultTTL uint64 `mapstructure:"default_ttl"`
	AccountTTL uint64 `mapstructure:"account_ttl"`
}

// UsageLimitConfig is the [kora.usage_limit] section.
type UsageLimitConfig struct {
	Enabled               bool   `mapstructure:"enabled"`
	CacheURL              string `mapstructure:"cache_url"`
	MaxTransactions       uint64 `mapstructure:"max_transactions"`
	FallbackIfUnavailable bool   `mapstructure:"fallback_if_unavailable"`
}

// ValidationConfig is the [validation] section: the declarative policy.
// Pubkey fields stay as base58 strings here; Compile parses them once at
// startup into Rules.
type ValidationConfig struct {
	MaxAllowedLamports  uint64          `mapstructure:"max_allowed_lamports" json:"max_allowed_lamports"`
	MaxSignatures       uint64          `mapstructure:"max_signatures" json:"max_signatures"`
	AllowedPrograms     []string        `mapstructure:"allowed_programs" json:"allowed_programs"`
	AllowedTokens       []string        `mapstructure:"allowed_tokens" json:"allowed_tokens"`
	AllowedSplPaidToken any             `mapstructure:"allowed_spl_paid_tokens" json:"allowed_spl_paid_tokens"`
	DisallowedAccounts  []string        `mapstructure:"disallowed_accounts" json:"disallowed_accounts"`
	PriceSource         string          `mapstructure:"price_source" json:"price_source"`
	Price               PriceConfig     `mapstructure:"price" json:"price"`
	Token2022           Token2022Config `mapstructure:"token_2022" json:"token_2022"`
	FeePayerPolicy      FeePayerPolicy  `mapstructure:"fee_payer_policy" json:"fee_payer_policy"`
}

// PriceConfig is the [validation.price] tagged union.
// type is one of "margin", "fixed", "free".
type PriceConfig struct {
	Type   string  `mapstructure:"type" json:"type"`
	Margin float64 `mapstructure:"margin" json:"margin,omitempty"`
	Amount uint64  `mapstructure:"amount" json:"amount,omitempty"`
	Token  string  `mapstructure:"token" json:"token,omitempty"`
	Strict bool    `mapstructure:"strict" json:"strict,omitempty"`
}

// Token2022Config is the [validation.token_2022] section: extension names
// blocked on mints and token accounts.
type Token2022Config struct {
	BlockedMintExtensions    []string `mapstructure:"blocked_mint_extensions" json:"blocked_mint_extensions"`
	BlockedAccountExtensions []string `mapstructure:"blocked_account_extensions" json:"blocked_account_extensions"`
}

// FeePayerPolicy controls whether the fee payer may appear as the
// authority of specific instruction variants. Everything defaults to
// false: the fee payer signs for fees, not for user actions.
type FeePayerPolicy struct {
	System    SystemPolicy `mapstructure:"system" json:"system"`
	SplToken  TokenPolicy  `mapstructure:"spl_token" json:"spl_token"`
	Token2022 TokenPolicy  `mapstructure:"token_2022" json:"token_2022"`
}

// SystemPolicy gates system-program instructions.
type SystemPolicy struct {
	AllowTransfer      bool        `mapstructure:"allow_transfer" json:"allow_transfer"`
	AllowAssign        bool        `mapstructure:"allow_assign" json:"allow_assign"`
	AllowCreateAccount bool        `mapstructure:"allow_create_account" json:"allow_create_account"`
	AllowAllocate      bool        `mapstructure:"allow_allocate" json:"allow_allocate"`
	Nonce              NoncePolicy `mapstructure:"nonce" json:"nonce"`
}

// NoncePolicy gates durable-nonce operations.
type NoncePolicy struct {
	Initialize bool `mapstructure:"initialize" json:"initialize"`
	Advance    bool `mapstructure:"advance" json:"advance"`
	Withdraw   bool `mapstructure:"withdraw" json:"withdraw"`
	Authorize  bool `mapstructure:"authorize" json:"authorize"`
}

// TokenPolicy gates token-program instructions; one instance each for the
// legacy and 2022 programs.
type TokenPolicy struct {
	AllowTransfer     bool `mapstructure:"allow_transfer" json:"allow_transfer"`
	AllowBurn         bool `mapstructure:"allow_burn" json:"allow_burn"`
	AllowCloseAccount bool `mapstructure:"allow_close_account" json:"allow_close_account"`
	AllowApprove      bool `mapstructure:"allow_approve" json:"allow_approve"`
	AllowRevoke       bool `mapstructure:"allow_revoke" json:"allow_revoke"`
	AllowSetAuthority bool `mapstructure:"allow_set_authority" json:"allow_set_authority"`
	AllowMintTo       bool `mapstructure:"allow_mint_to" json:"allow_mint_to"`
	AllowInitialize   bool `mapstructure:"allow_initialize" json:"allow_initialize"`
	AllowFreeze       bool `mapstructure:"allow_freeze" json:"allow_freeze"`
	AllowThaw         bool `mapstructure:"allow_thaw" json:"allow_thaw"`
}

// MetricsConfig is the [metrics] section.
type MetricsConfig struct {
	Enabled         bool                  `mapstructure:"enabled"`
	Port            int                   `mapstructure:"port"`
	Endpoint        string                `mapstructure:"endpoint"`
	ScrapeInterval  uint64                `mapstructure:"scrape_interval"`
	FeePayerBalance FeePayerBalanceConfig `mapstructure:"fee_payer_balance"`
}

// FeePayerBalanceConfig controls the background signer balance tracker.
type FeePayerBalanceConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	ExpirySeconds uint64 `mapstructure:"expiry_seconds"`
}

// Load reads the TOML config file, applies defaults, and overlays
// environment variables. It does not validate policy semantics; call
// Validate for that.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetDefault("kora.rate_limit", 100)
	v.SetDefault("kora.max_request_body_size", DefaultMaxRequestBodySize)
	v.SetDefault("kora.auth.max_timestamp_age", DefaultMaxTimestampAge)
	v.SetDefault("kora.cache.account_ttl", DefaultAccountTTL)
	v.SetDefault("kora.cache.default_ttl", 300)
	v.SetDefault("validation.max_signatures", 10)
	v.SetDefault("validation.price_source", "Jupiter")
	v.SetDefault("validation.price.type", "margin")
	v.SetDefault("metrics.endpoint", "/metrics")
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.scrape_interval", 30)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}

	// Environment overrides. Secrets never live in the file.
	if key := os.Getenv("KORA_API_KEY"); key != "" {
		cfg.Kora.Auth.APIKey = key
	}
	if secret := os.Getenv("KORA_HMAC_SECRET"); secret != "" {
		cfg.Kora.Auth.HMACSecret = secret
	}

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.RPCURL = getEnvOrDefault("RPC_URL", "")

	return &cfg, nil
}

// EnabledMethodNames returns the sorted-ish list of enabled JSON-RPC
// methods. When the section is empty every known method is enabled.
func (c *Config) EnabledMethodNames(known []string) []string {
	if len(c.Kora.EnabledMethods) == 0 {
		return known
	}
	out := make([]string, 0, len(known))
	for _, m := range known {
		if c.Kora.EnabledMethods[m] {
			out = append(out, m)
		}
	}
	return out
}

// MethodEnabled reports whether a JSON-RPC method is enabled. The liveness
// method is always enabled.
func (c *Config) MethodEnabled(method string) bool {
	if method == "liveness" {
		return true
	}
	if len(c.Kora.EnabledMethods) == 0 {
		return true
	}
	return c.Kora.EnabledMethods[method]
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// paidTokensAll reports whether allowed_spl_paid_tokens is the "All"
// sentinel rather than an allowlist.
func paidTokensAll(raw any) bool {
	s, ok := raw.(string)
	return ok && strings.EqualFold(s, "all")
}

// paidTokensList coerces the allowed_spl_paid_tokens value into a string
// slice when it is an allowlist.
func paidTokensList(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
