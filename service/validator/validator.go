// Package validator enforces the configured transaction policy. Checks run
// in a fixed order and the first failure wins, so error messages are
// deterministic for a given transaction and config.
package validator

import (
	"context"
	"log/slog"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/kora/service/config"
	"github.com/brojonat/kora/service/instruction"
	"github.com/brojonat/kora/service/kerr"
	"github.com/brojonat/kora/service/metrics"
	"github.com/brojonat/kora/service/soltx"
	"github.com/brojonat/kora/service/token"
)

// Validator checks transactions against the compiled policy rules.
type Validator struct {
	rules    *config.Rules
	accounts soltx.AccountGetter
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// New creates a validator. accounts backs token account and mint lookups;
// metrics may be nil.
func New(rules *config.Rules, accounts soltx.AccountGetter, logger *slog.Logger, m *metrics.Metrics) *Validator {
	return &Validator{rules: rules, accounts: accounts, logger: logger, metrics: m}
}

// Validate runs every policy check against the resolved transaction and
// returns the classified instructions for downstream fee and payment work.
// feePayer is the pool signer selected to pay for this transaction.
func (v *Validator) Validate(ctx context.Context, r *soltx.Resolved, feePayer solanago.PublicKey) ([]instruction.Classified, error) {
	classified, err := v.validate(ctx, r, feePayer)
	if v.metrics != nil {
		outcome := "accepted"
		if err != nil {
			outcome = "rejected"
		}
		v.metrics.RecordValidation(outcome)
	}
	return classified, err
}

func (v *Validator) validate(ctx context.Context, r *soltx.Resolved, feePayer solanago.PublicKey) ([]instruction.Classified, error) {
	if len(r.Instructions) == 0 {
		return nil, kerr.New(kerr.InvalidTransaction, "transaction has no instructions")
	}

	if n := uint64(r.NumRequiredSignatures()); n > v.rules.MaxSignatures {
		return nil, kerr.Newf(kerr.ValidationError,
			"transaction requires %d signatures, the maximum is %d", n, v.rules.MaxSignatures)
	}

	if !r.FeePayer().Equals(feePayer) {
		return nil, kerr.Newf(kerr.ValidationError,
			"transaction fee payer %s is not the relayer signer %s", r.FeePayer(), feePayer)
	}

	for i, ix := range r.Instructions {
		if !v.rules.AllowedPrograms[ix.ProgramID] {
			return nil, kerr.Newf(kerr.ValidationError,
				"instruction %d invokes program %s, which is not allowed", i, ix.ProgramID)
		}
	}

	// Covers static keys and every key pulled through a lookup table.
	for _, key := range r.AccountKeys {
		if v.rules.DisallowedAccounts[key] {
			return nil, kerr.Newf(kerr.ValidationError, "transaction references disallowed account %s", key)
		}
	}

	classified, err := instruction.Classify(r)
	if err != nil {
		return nil, err
	}

	if err := v.checkFeePayerPolicy(classified, feePayer); err != nil {
		return nil, err
	}

	if err := v.checkLamportOutflow(classified, feePayer); err != nil {
		return nil, err
	}

	if err := v.checkTokenInstructions(ctx, classified); err != nil {
		return nil, err
	}

	return classified, nil
}

// checkLamportOutflow caps the explicit lamports the fee payer sends through
// system transfers. Token value leaving fee-payer-owned accounts is priced
// into the fee instead.
func (v *Validator) checkLamportOutflow(classified []instruction.Classified, feePayer solanago.PublicKey) error {
	var total uint64
	for _, c := range classified {
		if ix, ok := c.(instruction.SystemTransfer); ok && ix.From.Equals(feePayer) {
			total += ix.Lamports
		}
	}
	if total > v.rules.MaxAllowedLamports {
		return kerr.Newf(kerr.ValidationError,
			"transaction spends %d lamports from the fee payer, the maximum is %d",
			total, v.rules.MaxAllowedLamports)
	}
	return nil
}

// checkFeePayerPolicy rejects instructions where the fee payer acts as the
// authority of a user-level operation the policy does not allow.
func (v *Validator) checkFeePayerPolicy(classified []instruction.Classified, feePayer solanago.PublicKey) error {
	policy := v.rules.FeePayerPolicy
	for _, c := range classified {
		var (
			gated   bool
			allowed bool
			action  string
		)
		switch ix := c.(type) {
		case instruction.SystemTransfer:
			gated, allowed, action = ix.From.Equals(feePayer), policy.System.AllowTransfer, "system transfer"
		case instruction.SystemAssign:
			gated, allowed, action = ix.Account.Equals(feePayer), policy.System.AllowAssign, "system assign"
		case instruction.SystemCreateAccount:
			gated, allowed, action = ix.Funder.Equals(feePayer), policy.System.AllowCreateAccount, "system create account"
		case instruction.SystemAllocate:
			gated, allowed, action = ix.Account.Equals(feePayer), policy.System.AllowAllocate, "system allocate"
		case instruction.NonceOp:
			gated = ix.Authority.Equals(feePayer)
			allowed = nonceAllowed(policy.System.Nonce, ix.Kind)
			action = "nonce " + ix.Kind.String()
		case instruction.SplTransfer:
			gated, allowed, action = ix.Owner.Equals(feePayer), tokenPolicy(policy, ix.Program).AllowTransfer, "token transfer"
		case instruction.SplBurn:
			gated, allowed, action = ix.Owner.Equals(feePayer), tokenPolicy(policy, ix.Program).AllowBurn, "token burn"
		case instruction.SplCloseAccount:
			gated, allowed, action = ix.Owner.Equals(feePayer), tokenPolicy(policy, ix.Program).AllowCloseAccount, "token close account"
		case instruction.SplApprove:
			gated, allowed, action = ix.Owner.Equals(feePayer), tokenPolicy(policy, ix.Program).AllowApprove, "token approve"
		case instruction.SplRevoke:
			gated, allowed, action = ix.Owner.Equals(feePayer), tokenPolicy(policy, ix.Program).AllowRevoke, "token revoke"
		case instruction.SplSetAuthority:
			gated, allowed, action = ix.Authority.Equals(feePayer), tokenPolicy(policy, ix.Program).AllowSetAuthority, "token set authority"
		case instruction.SplMintTo:
			gated, allowed, action = ix.Authority.Equals(feePayer), tokenPolicy(policy, ix.Program).AllowMintTo, "token mint"
		case instruction.SplInitialize:
			gated, allowed, action = ix.Owner.Equals(feePayer), tokenPolicy(policy, ix.Program).AllowInitialize, "token initialize"
		case instruction.SplFreeze:
			gated, allowed, action = ix.Authority.Equals(feePayer), tokenPolicy(policy, ix.Program).AllowFreeze, "token freeze"
		case instruction.SplThaw:
			gated, allowed, action = ix.Authority.Equals(feePayer), tokenPolicy(policy, ix.Program).AllowThaw, "token thaw"
		}
		if gated && !allowed {
			return kerr.Newf(kerr.ValidationError,
				"fee payer policy does not allow the fee payer to be the %s authority", action)
		}
	}
	return nil
}

func nonceAllowed(p config.NoncePolicy, kind instruction.NonceKind) bool {
	switch kind {
	case instruction.NonceInitialize:
		return p.Initialize
	case instruction.NonceAdvance:
		return p.Advance
	case instruction.NonceWithdraw:
		return p.Withdraw
	case instruction.NonceAuthorize:
		return p.Authorize
	}
	return false
}

func tokenPolicy(p config.FeePayerPolicy, program solanago.PublicKey) config.TokenPolicy {
	if program.Equals(instruction.Token2022ProgramID) {
		return p.Token2022
	}
	return p.SplToken
}

// checkTokenInstructions resolves the mint behind each token instruction,
// applies the allowed_tokens list when a payment is required, and rejects
// token-2022 mints or accounts carrying blocked extensions. The legacy
// token program has no extensions so its accounts need no fetching here.
func (v *Validator) checkTokenInstructions(ctx context.Context, classified []instruction.Classified) error {
	for _, c := range classified {
		switch ix := c.(type) {
		case instruction.SplTransfer:
			mint := ix.Mint
			if mint == nil {
				if !ix.Program.Equals(instruction.Token2022ProgramID) && !v.mintGatingActive() {
					continue
				}
				// Unchecked transfer: the mint lives on the source account.
				info, err := v.fetchTokenAccount(ctx, ix.Source, ix.Program)
				if err != nil {
					return err
				}
				mint = &info.Mint
			}
			if err := v.checkMint(ctx, *mint, ix.Program); err != nil {
				return err
			}
			if err := v.checkTokenAccounts(ctx, ix.Program, ix.Source, ix.Dest); err != nil {
				return err
			}
		case instruction.SplBurn:
			if err := v.checkMint(ctx, ix.Mint, ix.Program); err != nil {
				return err
			}
			if err := v.checkTokenAccounts(ctx, ix.Program, ix.Account); err != nil {
				return err
			}
		case instruction.SplMintTo:
			if err := v.checkMint(ctx, ix.Mint, ix.Program); err != nil {
				return err
			}
			if err := v.checkTokenAccounts(ctx, ix.Program, ix.Dest); err != nil {
				return err
			}
		case instruction.SplFreeze:
			if err := v.checkMint(ctx, ix.Mint, ix.Program); err != nil {
				return err
			}
			if err := v.checkTokenAccounts(ctx, ix.Program, ix.Account); err != nil {
				return err
			}
		case instruction.SplThaw:
			if err := v.checkMint(ctx, ix.Mint, ix.Program); err != nil {
				return err
			}
			if err := v.checkTokenAccounts(ctx, ix.Program, ix.Account); err != nil {
				return err
			}
		case instruction.SplCloseAccount:
			// Dest receives the reclaimed lamports and is not a token account.
			if err := v.checkTokenAccounts(ctx, ix.Program, ix.Account); err != nil {
				return err
			}
		case instruction.SplApprove:
			if err := v.checkTokenAccounts(ctx, ix.Program, ix.Source); err != nil {
				return err
			}
		case instruction.SplRevoke:
			if err := v.checkTokenAccounts(ctx, ix.Program, ix.Source); err != nil {
				return err
			}
		case instruction.SplInitialize:
			// An initialize_mint creates its mint in this very transaction,
			// so there is nothing on chain to check yet.
			if ix.Kind == instruction.InitializeAccount {
				if err := v.checkMint(ctx, ix.Mint, ix.Program); err != nil {
					return err
				}
			}
		case instruction.AtaCreate:
			if err := v.checkMint(ctx, ix.Mint, ix.TokenProgram); err != nil {
				return err
			}
		}
	}
	return nil
}

// mintGatingActive reports whether any check requires knowing the mint of an
// unchecked transfer.
func (v *Validator) mintGatingActive() bool {
	return v.rules.Price.PaymentRequired()
}

// checkMint enforces the allowed_tokens list (only while a payment is
// required) and blocked mint extensions for token-2022.
func (v *Validator) checkMint(ctx context.Context, mint solanago.PublicKey, program solanago.PublicKey) error {
	if v.rules.Price.PaymentRequired() && !v.rules.AllowedTokens[mint] {
		return kerr.Newf(kerr.ValidationError, "token %s is not in the allowed token list", mint)
	}

	if !program.Equals(instruction.Token2022ProgramID) {
		return nil
	}

	prog, err := token.ForProgram(program)
	if err != nil {
		return err
	}
	acct, err := v.accounts.GetAccount(ctx, mint, false)
	if err != nil {
		return kerr.Wrap(kerr.ValidationError, "failed to fetch mint "+mint.String(), err)
	}
	info, err := prog.UnpackMint(mint, acct.Data)
	if err != nil {
		return err
	}
	for _, ext := range info.Extensions {
		if v.rules.Token2022.BlockedMintExtensions[string(ext)] {
			return kerr.Newf(kerr.ValidationError, "mint %s carries blocked extension %s", mint, ext)
		}
	}
	return nil
}

// checkTokenAccounts applies blocked_account_extensions to every token-2022
// account an instruction touches, destinations included.
func (v *Validator) checkTokenAccounts(ctx context.Context, program solanago.PublicKey, addresses ...solanago.PublicKey) error {
	if !program.Equals(instruction.Token2022ProgramID) {
		return nil
	}
	if len(v.rules.Token2022.BlockedAccountExtensions) == 0 {
		return nil
	}
	for _, addr := range addresses {
		info, err := v.fetchTokenAccount(ctx, addr, program)
		if err != nil {
			return err
		}
		if err := v.checkAccountExtensions(info); err != nil {
			return err
		}
	}
	return nil
}

func (v *Validator) fetchTokenAccount(ctx context.Context, address, program solanago.PublicKey) (*token.AccountInfo, error) {
	prog, err := token.ForProgram(program)
	if err != nil {
		return nil, err
	}
	acct, err := v.accounts.GetAccount(ctx, address, false)
	if err != nil {
		return nil, kerr.Wrap(kerr.ValidationError, "failed to fetch token account "+address.String(), err)
	}
	if !acct.Owner.Equals(program) {
		return nil, kerr.Newf(kerr.ValidationError,
			"account %s is not owned by the token program it is used with", address)
	}
	return prog.UnpackAccount(address, acct.Data)
}

// checkAccountExtensions rejects token accounts carrying blocked token-2022
// extensions.
func (v *Validator) checkAccountExtensions(info *token.AccountInfo) error {
	for _, ext := range info.Extensions {
		if v.rules.Token2022.BlockedAccountExtensions[string(ext)] {
			return kerr.Newf(kerr.ValidationError,
				"token account %s carries blocked extension %s", info.Address, ext)
		}
	}
	return nil
}
