package fee

import (
	"context"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"

	"github.com/brojonat/kora/service/instruction"
	"github.com/brojonat/kora/service/kerr"
	"github.com/brojonat/kora/service/token"
)

// Payment is a token transfer addressed to the payment sink's associated
// token account for an allowed payment mint.
type Payment struct {
	Mint     solanago.PublicKey
	Amount   uint64
	Decimals uint8
	Program  solanago.PublicKey
}

// DetectPayments scans the classified instructions for transfers that pay
// the sink. A transfer counts only when its destination is the sink's ATA
// for the transfer's own mint and that mint is an allowed payment token;
// transfers to any other account are ignored here.
func (e *Estimator) DetectPayments(ctx context.Context, classified []instruction.Classified, sink solanago.PublicKey) ([]Payment, error) {
	var payments []Payment
	for _, c := range classified {
		ix, ok := c.(instruction.SplTransfer)
		if !ok {
			continue
		}

		mint := ix.Mint
		if mint == nil {
			src, err := e.fetchTokenAccount(ctx, ix.Source, ix.Program)
			if err != nil {
				return nil, err
			}
			mint = &src.Mint
		}
		if !e.rules.PaidTokenAllowed(*mint) {
			continue
		}

		prog, err := token.ForProgram(ix.Program)
		if err != nil {
			return nil, err
		}
		ata, err := prog.AssociatedTokenAddress(sink, *mint)
		if err != nil {
			return nil, err
		}
		if !ix.Dest.Equals(ata) {
			continue
		}

		var decimals uint8
		if ix.Decimals != nil {
			decimals = *ix.Decimals
		} else {
			info, err := e.fetchMint(ctx, *mint)
			if err != nil {
				return nil, err
			}
			decimals = info.Decimals
		}

		payments = append(payments, Payment{
			Mint:     *mint,
			Amount:   ix.Amount,
			Decimals: decimals,
			Program:  ix.Program,
		})
	}
	return payments, nil
}

// ValueOfPayments prices a set of payments in lamports. Payments in
// different mints compose additively.
func (e *Estimator) ValueOfPayments(ctx context.Context, payments []Payment) (uint64, error) {
	if len(payments) == 0 {
		return 0, nil
	}

	seen := make(map[solanago.PublicKey]bool)
	mints := make([]solanago.PublicKey, 0, len(payments))
	for _, p := range payments {
		if !seen[p.Mint] {
			seen[p.Mint] = true
			mints = append(mints, p.Mint)
		}
	}
	prices, err := e.prices.GetPrices(ctx, mints)
	if err != nil {
		return 0, kerr.Wrap(kerr.FeeEstimationFailed, "oracle lookup failed", err)
	}

	total := decimal.Zero
	for _, p := range payments {
		price, ok := prices[p.Mint]
		if !ok {
			return 0, kerr.Newf(kerr.FeeEstimationFailed, "oracle returned no price for %s", p.Mint)
		}
		total = total.Add(tokenValueInLamports(fromUint64(p.Amount), p.Decimals, price.PriceInNative))
	}
	return toLamports(total)
}
