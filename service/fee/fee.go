// Package fee computes the lamport fee a transaction must cover: signature
// cost, priority fees, rent for created accounts, the value of token
// outflows from fee-payer-owned accounts, and the configured price model
// overlay.
package fee

import (
	"context"
	"log/slog"
	"math"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/brojonat/kora/service/config"
	"github.com/brojonat/kora/service/instruction"
	"github.com/brojonat/kora/service/kerr"
	"github.com/brojonat/kora/service/oracle"
	"github.com/brojonat/kora/service/soltx"
	"github.com/brojonat/kora/service/token"
)

const (
	// LamportsPerSignature is the chain's flat per-signature fee.
	LamportsPerSignature = 5000

	// PaymentInstructionOverhead is added per detected payment instruction
	// to cover its execution cost.
	PaymentInstructionOverhead = 50

	microLamportsPerLamport = 1_000_000
)

// RentFetcher returns the rent-exempt minimum for an account size; the
// chain client satisfies it.
type RentFetcher interface {
	GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64) (uint64, error)
}

// Breakdown itemizes an estimate. Total is the sum of the overlaid minimum
// fee and the additive components.
type Breakdown struct {
	BaseSignatureFee  uint64 `json:"base_signature_fee"`
	PriorityFee       uint64 `json:"priority_fee"`
	MinTransactionFee uint64 `json:"min_transaction_fee"`
	Rent              uint64 `json:"rent"`
	SplOutflow        uint64 `json:"spl_outflow"`
	PaymentOverhead   uint64 `json:"payment_overhead"`
	Total             uint64 `json:"total"`
}

// Estimator prices transactions.
type Estimator struct {
	rules    *config.Rules
	accounts soltx.AccountGetter
	rent     RentFetcher
	prices   oracle.Source
	logger   *slog.Logger
}

// New creates an estimator.
func New(rules *config.Rules, accounts soltx.AccountGetter, rent RentFetcher, prices oracle.Source, logger *slog.Logger) *Estimator {
	return &Estimator{rules: rules, accounts: accounts, rent: rent, prices: prices, logger: logger}
}

// Estimate computes the fee breakdown for a resolved, classified
// transaction with feePayer as the paying signer. sink is the payment
// destination used to detect payment instructions; it may be nil when no
// payment applies.
func (e *Estimator) Estimate(ctx context.Context, r *soltx.Resolved, classified []instruction.Classified, feePayer solanago.PublicKey, sink *solanago.PublicKey) (*Breakdown, error) {
	b := &Breakdown{}

	sigs := uint64(r.NumRequiredSignatures())
	if !signerListed(r, feePayer) {
		sigs++
	}
	b.BaseSignatureFee = sigs * LamportsPerSignature

	priority, err := priorityFee(classified)
	if err != nil {
		return nil, err
	}
	b.PriorityFee = priority

	b.MinTransactionFee, err = e.applyPriceModel(ctx, b.BaseSignatureFee+b.PriorityFee)
	if err != nil {
		return nil, err
	}

	if b.Rent, err = e.rentForCreations(ctx, classified, feePayer); err != nil {
		return nil, err
	}

	if b.SplOutflow, err = e.splOutflowValue(ctx, classified, feePayer); err != nil {
		return nil, err
	}

	if sink != nil && e.rules.Price.PaymentRequired() {
		payments, err := e.DetectPayments(ctx, classified, *sink)
		if err != nil {
			return nil, err
		}
		b.PaymentOverhead = uint64(len(payments)) * PaymentInstructionOverhead
	}

	total, err := addChecked(b.MinTransactionFee, b.Rent, b.SplOutflow, b.PaymentOverhead)
	if err != nil {
		return nil, err
	}
	b.Total = total
	return b, nil
}

// applyPriceModel overlays the configured price model on the minimum
// transaction fee (signatures plus priority).
func (e *Estimator) applyPriceModel(ctx context.Context, minFee uint64) (uint64, error) {
	switch e.rules.Price.Type {
	case config.PriceModelFree:
		return 0, nil
	case config.PriceModelFixed:
		return e.TokenToLamports(ctx, e.rules.Price.Token, e.rules.Price.Amount)
	default:
		margin := decimal.NewFromFloat(1 + e.rules.Price.Margin)
		return toLamports(fromUint64(minFee).Mul(margin))
	}
}

// priorityFee adds ceil(limit * price / 1e6) when compute-budget
// instructions set both values. A missing limit or price contributes zero.
func priorityFee(classified []instruction.Classified) (uint64, error) {
	var (
		limit    uint64
		price    uint64
		hasLimit bool
		hasPrice bool
	)
	for _, c := range classified {
		switch ix := c.(type) {
		case instruction.ComputeBudgetSetLimit:
			limit, hasLimit = uint64(ix.Units), true
		case instruction.ComputeBudgetSetPrice:
			price, hasPrice = ix.MicroLamports, true
		}
	}
	if !hasLimit || !hasPrice || limit == 0 || price == 0 {
		return 0, nil
	}
	if price > math.MaxUint64/limit {
		return 0, kerr.New(kerr.ValidationError, "priority fee overflows")
	}
	product := limit * price
	fee := product / microLamportsPerLamport
	if product%microLamportsPerLamport != 0 {
		fee++
	}
	return fee, nil
}

// rentForCreations sums the rent-exempt minimum for every account the fee
// payer funds.
func (e *Estimator) rentForCreations(ctx context.Context, classified []instruction.Classified, feePayer solanago.PublicKey) (uint64, error) {
	var total uint64
	for _, c := range classified {
		switch ix := c.(type) {
		case instruction.AtaCreate:
			if !ix.Payer.Equals(feePayer) {
				continue
			}
			rent, err := e.rent.GetMinimumBalanceForRentExemption(ctx, token.AccountSize)
			if err != nil {
				return 0, kerr.Wrap(kerr.FeeEstimationFailed, "failed to fetch rent minimum", err)
			}
			total += rent
		case instruction.SystemCreateAccount:
			if !ix.Funder.Equals(feePayer) {
				continue
			}
			rent, err := e.rent.GetMinimumBalanceForRentExemption(ctx, ix.Space)
			if err != nil {
				return 0, kerr.Wrap(kerr.FeeEstimationFailed, "failed to fetch rent minimum", err)
			}
			total += rent
		}
	}
	return total, nil
}

// splOutflowValue prices every token transfer leaving a fee-payer-owned
// token account. Without it a transaction could drain the relayer's own
// token holdings while paying only the signature fee.
func (e *Estimator) splOutflowValue(ctx context.Context, classified []instruction.Classified, feePayer solanago.PublicKey) (uint64, error) {
	type outflow struct {
		amount   decimal.Decimal
		decimals uint8
	}
	flows := make(map[solanago.PublicKey]outflow)

	for _, c := range classified {
		ix, ok := c.(instruction.SplTransfer)
		if !ok {
			continue
		}
		src, err := e.fetchTokenAccount(ctx, ix.Source, ix.Program)
		if err != nil {
			return 0, err
		}
		if !src.Owner.Equals(feePayer) {
			continue
		}
		mint, decimals, err := e.resolveTransferMint(ctx, ix, src)
		if err != nil {
			return 0, err
		}
		f := flows[mint]
		f.amount = f.amount.Add(fromUint64(ix.Amount))
		f.decimals = decimals
		flows[mint] = f
	}

	if len(flows) == 0 {
		return 0, nil
	}

	mints := make([]solanago.PublicKey, 0, len(flows))
	for mint := range flows {
		mints = append(mints, mint)
	}
	prices, err := e.prices.GetPrices(ctx, mints)
	if err != nil {
		return 0, kerr.Wrap(kerr.FeeEstimationFailed, "oracle lookup failed", err)
	}

	total := decimal.Zero
	for mint, f := range flows {
		price, ok := prices[mint]
		if !ok {
			return 0, kerr.Newf(kerr.FeeEstimationFailed, "oracle returned no price for %s", mint)
		}
		total = total.Add(tokenValueInLamports(f.amount, f.decimals, price.PriceInNative))
	}
	return toLamports(total)
}

// TokenToLamports converts base units of mint to lamports at the oracle
// price.
func (e *Estimator) TokenToLamports(ctx context.Context, mint solanago.PublicKey, amount uint64) (uint64, error) {
	decimals, price, err := e.mintPricing(ctx, mint)
	if err != nil {
		return 0, err
	}
	return toLamports(tokenValueInLamports(fromUint64(amount), decimals, price))
}

// LamportsToToken converts lamports to base units of mint at the oracle
// price, rounding up so the converted amount always covers the fee.
func (e *Estimator) LamportsToToken(ctx context.Context, mint solanago.PublicKey, lamports uint64) (uint64, error) {
	decimals, price, err := e.mintPricing(ctx, mint)
	if err != nil {
		return 0, err
	}
	if price.IsZero() {
		return 0, kerr.Newf(kerr.FeeEstimationFailed, "oracle price for %s is zero", mint)
	}
	units := fromUint64(lamports).
		Shift(int32(decimals)).
		Div(price.Mul(lamportsPerSol))
	return toUint64(units)
}

// mintPricing returns the decimals and native price of a mint.
func (e *Estimator) mintPricing(ctx context.Context, mint solanago.PublicKey) (uint8, decimal.Decimal, error) {
	info, err := e.fetchMint(ctx, mint)
	if err != nil {
		return 0, decimal.Zero, err
	}
	prices, err := e.prices.GetPrices(ctx, []solanago.PublicKey{mint})
	if err != nil {
		return 0, decimal.Zero, kerr.Wrap(kerr.FeeEstimationFailed, "oracle lookup failed", err)
	}
	price, ok := prices[mint]
	if !ok {
		return 0, decimal.Zero, kerr.Newf(kerr.FeeEstimationFailed, "oracle returned no price for %s", mint)
	}
	return info.Decimals, price.PriceInNative, nil
}

// resolveTransferMint returns the mint and decimals behind a transfer,
// fetching the mint account when the checked variant's fields are absent.
func (e *Estimator) resolveTransferMint(ctx context.Context, ix instruction.SplTransfer, src *token.AccountInfo) (solanago.PublicKey, uint8, error) {
	if ix.Mint != nil && ix.Decimals != nil {
		return *ix.Mint, *ix.Decimals, nil
	}
	info, err := e.fetchMint(ctx, src.Mint)
	if err != nil {
		return solanago.PublicKey{}, 0, err
	}
	return src.Mint, info.Decimals, nil
}

func (e *Estimator) fetchTokenAccount(ctx context.Context, address, program solanago.PublicKey) (*token.AccountInfo, error) {
	prog, err := token.ForProgram(program)
	if err != nil {
		return nil, err
	}
	acct, err := e.accounts.GetAccount(ctx, address, false)
	if err != nil {
		return nil, kerr.Wrap(kerr.FeeEstimationFailed, "failed to fetch token account "+address.String(), err)
	}
	return prog.UnpackAccount(address, acct.Data)
}

func (e *Estimator) fetchMint(ctx context.Context, mint solanago.PublicKey) (*token.MintInfo, error) {
	acct, err := e.accounts.GetAccount(ctx, mint, false)
	if err != nil {
		return nil, kerr.Wrap(kerr.FeeEstimationFailed, "failed to fetch mint "+mint.String(), err)
	}
	prog, err := token.ForProgram(acct.Owner)
	if err != nil {
		return nil, err
	}
	return prog.UnpackMint(mint, acct.Data)
}

func signerListed(r *soltx.Resolved, key solanago.PublicKey) bool {
	for _, s := range r.Signers() {
		if s.Equals(key) {
			return true
		}
	}
	return false
}

func addChecked(values ...uint64) (uint64, error) {
	var total uint64
	for _, v := range values {
		if v > math.MaxUint64-total {
			return 0, kerr.New(kerr.ValidationError, "fee total overflows")
		}
		total += v
	}
	return total, nil
}
