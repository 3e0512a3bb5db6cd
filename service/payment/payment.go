// Package payment verifies that a transaction carries enough embedded token
// payments to cover its estimated fee.
package payment

import (
	"context"
	"log/slog"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/kora/service/config"
	"github.com/brojonat/kora/service/fee"
	"github.com/brojonat/kora/service/instruction"
	"github.com/brojonat/kora/service/kerr"
	"github.com/brojonat/kora/service/metrics"
	"github.com/brojonat/kora/service/soltx"
)

// Verifier checks embedded payments against the required fee.
type Verifier struct {
	rules     *config.Rules
	estimator *fee.Estimator
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New creates a verifier. metrics may be nil.
func New(rules *config.Rules, estimator *fee.Estimator, logger *slog.Logger, m *metrics.Metrics) *Verifier {
	return &Verifier{rules: rules, estimator: estimator, logger: logger, metrics: m}
}

// Sink returns the account payments must reach: the configured payment
// address when set, otherwise the fee payer itself.
func (v *Verifier) Sink(feePayer solanago.PublicKey) solanago.PublicKey {
	if v.rules.PaymentAddress != nil {
		return *v.rules.PaymentAddress
	}
	return feePayer
}

// Verify estimates the required fee and checks the transaction's payments
// against it. Under the free price model no payment is required and only
// the estimate is returned.
func (v *Verifier) Verify(ctx context.Context, r *soltx.Resolved, classified []instruction.Classified, feePayer solanago.PublicKey) (*fee.Breakdown, error) {
	breakdown, err := v.verify(ctx, r, classified, feePayer)
	if v.metrics != nil && v.rules.Price.PaymentRequired() {
		outcome := "accepted"
		if err != nil {
			outcome = "rejected"
		}
		v.metrics.RecordPaymentVerification(outcome)
	}
	return breakdown, err
}

func (v *Verifier) verify(ctx context.Context, r *soltx.Resolved, classified []instruction.Classified, feePayer solanago.PublicKey) (*fee.Breakdown, error) {
	if !v.rules.Price.PaymentRequired() {
		return v.estimator.Estimate(ctx, r, classified, feePayer, nil)
	}

	sink := v.Sink(feePayer)
	breakdown, err := v.estimator.Estimate(ctx, r, classified, feePayer, &sink)
	if err != nil {
		return nil, err
	}

	payments, err := v.estimator.DetectPayments(ctx, classified, sink)
	if err != nil {
		return nil, err
	}
	paid, err := v.estimator.ValueOfPayments(ctx, payments)
	if err != nil {
		return nil, err
	}

	if v.rules.Price.Type == config.PriceModelFixed && v.rules.Price.Strict {
		if paid != breakdown.Total {
			return nil, kerr.Newf(kerr.InsufficientFunds,
				"strict pricing requires an exact payment of %d lamports, transaction pays %d",
				breakdown.Total, paid)
		}
		return breakdown, nil
	}

	if paid < breakdown.Total {
		return nil, kerr.Newf(kerr.InsufficientFunds,
			"transaction pays %d lamports of the %d required", paid, breakdown.Total)
	}
	return breakdown, nil
}
