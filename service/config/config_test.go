package config

import (
	"os"
	"path/filepath"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustKey(t *testing.T, s string) solanago.PublicKey {
	t.Helper()
	key, err := solanago.PublicKeyFromBase58(s)
	require.NoError(t, err)
	return key
}

const (
	systemProgram = "11111111111111111111111111111111"
	tokenProgram  = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	usdcMint      = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kora.toml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

const baseConfig = `
[kora]
rate_limit = 50
payment_address = "` + usdcMint + `"

[validation]
max_allowed_lamports = 1000000
max_signatures = 5
allowed_programs = ["` + systemProgram + `", "` + tokenProgram + `"]
allowed_tokens = ["` + usdcMint + `"]
allowed_spl_paid_tokens = ["` + usdcMint + `"]
price_source = "Mock"

[validation.price]
type = "margin"
margin = 0.1
`

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
[validation]
allowed_programs = ["`+systemProgram+`"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, uint64(100), cfg.Kora.RateLimit)
	assert.Equal(t, int64(DefaultMaxRequestBodySize), cfg.Kora.MaxRequestBodySize)
	assert.Equal(t, int64(DefaultMaxTimestampAge), cfg.Kora.Auth.MaxTimestampAge)
	assert.Equal(t, uint64(DefaultAccountTTL), cfg.Kora.Cache.AccountTTL)
	assert.Equal(t, uint64(10), cfg.Validation.MaxSignatures)
	assert.Equal(t, "Jupiter", cfg.Validation.PriceSource)
	assert.Equal(t, "margin", cfg.Validation.Price.Type)
	assert.Equal(t, ":8080", cfg.ServerAddr)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("KORA_API_KEY", "from-env")
	t.Setenv("KORA_HMAC_SECRET", "hmac-from-env")
	t.Setenv("SERVER_ADDR", ":9999")
	t.Setenv("LOG_LEVEL", "debug")

	path := writeConfig(t, baseConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Kora.Auth.APIKey)
	assert.Equal(t, "hmac-from-env", cfg.Kora.Auth.HMACSecret)
	assert.Equal(t, ":9999", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}

func TestCompile(t *testing.T) {
	path := writeConfig(t, baseConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	rules, err := cfg.Compile()
	require.NoError(t, err)

	assert.Equal(t, uint64(1000000), rules.MaxAllowedLamports)
	assert.Equal(t, uint64(5), rules.MaxSignatures)
	assert.Len(t, rules.AllowedPrograms, 2)
	assert.False(t, rules.PaidTokensAll)
	require.NotNil(t, rules.PaymentAddress)
	assert.Equal(t, usdcMint, rules.PaymentAddress.String())
	assert.Equal(t, PriceModelMargin, rules.Price.Type)
	assert.InDelta(t, 0.1, rules.Price.Margin, 1e-9)
	assert.True(t, rules.Price.PaymentRequired())
}

func TestCompileAllPaidTokens(t *testing.T) {
	path := writeConfig(t, `
[validation]
allowed_programs = ["`+systemProgram+`"]
allowed_spl_paid_tokens = "All"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	rules, err := cfg.Compile()
	require.NoError(t, err)
	assert.True(t, rules.PaidTokensAll)
	assert.True(t, rules.PaidTokenAllowed(mustKey(t, usdcMint)))
}

func TestCompileRejectsBadPubkey(t *testing.T) {
	path := writeConfig(t, `
[validation]
allowed_programs = ["not-a-pubkey"]
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	_, err = cfg.Compile()
	assert.ErrorContains(t, err, "allowed_programs")
}

func TestCompilePriceModels(t *testing.T) {
	tests := []struct {
		name    string
		price   string
		want    PriceModelType
		wantErr bool
	}{
		{
			name:  "fixed",
			price: `{ type = "fixed", amount = 100, token = "` + usdcMint + `", strict = true }`,
			want:  PriceModelFixed,
		},
		{
			name:  "free",
			price: `{ type = "free" }`,
			want:  PriceModelFree,
		},
		{
			name:    "unknown",
			price:   `{ type = "auction" }`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, `
[validation]
allowed_programs = ["`+systemProgram+`"]
price = `+tt.price+`
`)
			cfg, err := Load(path)
			require.NoError(t, err)

			rules, err := cfg.Compile()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rules.Price.Type)
			if tt.want == PriceModelFree {
				assert.False(t, rules.Price.PaymentRequired())
			}
		})
	}
}

func TestMethodEnabled(t *testing.T) {
	cfg := &Config{}
	assert.True(t, cfg.MethodEnabled("signTransaction"), "empty section enables everything")

	cfg.Kora.EnabledMethods = map[string]bool{"signTransaction": true}
	assert.True(t, cfg.MethodEnabled("signTransaction"))
	assert.False(t, cfg.MethodEnabled("signAndSendTransaction"))
	assert.True(t, cfg.MethodEnabled("liveness"), "liveness is always enabled")
}

func TestEnabledMethodNames(t *testing.T) {
	known := []string{"liveness", "signTransaction", "getConfig"}

	cfg := &Config{}
	assert.Equal(t, known, cfg.EnabledMethodNames(known))

	cfg.Kora.EnabledMethods = map[string]bool{"getConfig": true}
	assert.Equal(t, []string{"getConfig"}, cfg.EnabledMethodNames(known))
}
