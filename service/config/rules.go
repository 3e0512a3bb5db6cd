package config

import (
	"fmt"
	"strings"

	solanago "github.com/gagliardetto/solana-go"
)

// PriceModelType discriminates the fee pricing overlay.
type PriceModelType int

const (
	PriceModelMargin PriceModelType = iota
	PriceModelFixed
	PriceModelFree
)

// PriceModel is the compiled form of the [validation.price] union.
type PriceModel struct {
	Type   PriceModelType
	Margin float64
	Amount uint64
	Token  solanago.PublicKey
	Strict bool
}

// PaymentRequired reports whether this model requires a user payment at all.
func (p PriceModel) PaymentRequired() bool {
	return p.Type != PriceModelFree
}

// Rules is the compiled, parse-once form of ValidationConfig used on the
// hot path. Pubkey sets are maps for O(1) membership checks.
type Rules struct {
	MaxAllowedLamports uint64
	MaxSignatures      uint64
	AllowedPrograms    map[solanago.PublicKey]bool
	AllowedTokens      map[solanago.PublicKey]bool
	PaidTokensAll      bool
	AllowedPaidTokens  map[solanago.PublicKey]bool
	DisallowedAccounts map[solanago.PublicKey]bool
	Price              PriceModel
	Token2022          Token2022Rules
	FeePayerPolicy     FeePayerPolicy
	PaymentAddress     *solanago.PublicKey
}

// Token2022Rules holds blocked extension names as sets.
type Token2022Rules struct {
	BlockedMintExtensions    map[string]bool
	BlockedAccountExtensions map[string]bool
}

// Compile parses every pubkey and the price union in the validation config.
// It is called once at startup; any malformed value is fatal.
func (c *Config) Compile() (*Rules, error) {
	v := c.Validation

	r := &Rules{
		MaxAllowedLamports: v.MaxAllowedLamports,
		MaxSignatures:      v.MaxSignatures,
		FeePayerPolicy:     v.FeePayerPolicy,
		Token2022: Token2022Rules{
			BlockedMintExtensions:    toNameSet(v.Token2022.BlockedMintExtensions),
			BlockedAccountExtensions: toNameSet(v.Token2022.BlockedAccountExtensions),
		},
	}

	var err error
	if r.AllowedPrograms, err = toKeySet(v.AllowedPrograms, "allowed_programs"); err != nil {
		return nil, err
	}
	if r.AllowedTokens, err = toKeySet(v.AllowedTokens, "allowed_tokens"); err != nil {
		return nil, err
	}
	if r.DisallowedAccounts, err = toKeySet(v.DisallowedAccounts, "disallowed_accounts"); err != nil {
		return nil, err
	}

	if paidTokensAll(v.AllowedSplPaidToken) {
		r.PaidTokensAll = true
	} else {
		if r.AllowedPaidTokens, err = toKeySet(paidTokensList(v.AllowedSplPaidToken), "allowed_spl_paid_tokens"); err != nil {
			return nil, err
		}
	}

	if r.Price, err = compilePrice(v.Price); err != nil {
		return nil, err
	}

	if c.Kora.PaymentAddress != "" {
		key, err := solanago.PublicKeyFromBase58(c.Kora.PaymentAddress)
		if err != nil {
			return nil, fmt.Errorf("kora.payment_address: invalid pubkey %q: %w", c.Kora.PaymentAddress, err)
		}
		r.PaymentAddress = &key
	}

	return r, nil
}

// PaidTokenAllowed reports whether a mint may be used to pay the relayer.
func (r *Rules) PaidTokenAllowed(mint solanago.PublicKey) bool {
	if r.PaidTokensAll {
		return true
	}
	return r.AllowedPaidTokens[mint]
}

func compilePrice(p PriceConfig) (PriceModel, error) {
	switch strings.ToLower(p.Type) {
	case "margin", "":
		return PriceModel{Type: PriceModelMargin, Margin: p.Margin}, nil
	case "fixed":
		token, err := solanago.PublicKeyFromBase58(p.Token)
		if err != nil {
			return PriceModel{}, fmt.Errorf("validation.price.token: invalid pubkey %q: %w", p.Token, err)
		}
		return PriceModel{Type: PriceModelFixed, Amount: p.Amount, Token: token, Strict: p.Strict}, nil
	case "free":
		return PriceModel{Type: PriceModelFree}, nil
	default:
		return PriceModel{}, fmt.Errorf("validation.price.type: unknown type %q", p.Type)
	}
}

func toKeySet(keys []string, field string) (map[solanago.PublicKey]bool, error) {
	out := make(map[solanago.PublicKey]bool, len(keys))
	for _, s := range keys {
		key, err := solanago.PublicKeyFromBase58(s)
		if err != nil {
			return nil, fmt.Errorf("validation.%s: invalid pubkey %q: %w", field, s, err)
		}
		out[key] = true
	}
	return out, nil
}

func toNameSet(names []string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[strings.ToLower(strings.TrimSpace(n))] = true
	}
	return out
}
