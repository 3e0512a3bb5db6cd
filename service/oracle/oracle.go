// Package oracle fetches token prices denominated in the chain's native
// unit. Sources compose: a base source (Jupiter or a deterministic mock)
// wrapped in bounded retry.
package oracle

import (
	"context"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// NativeMint is the wrapped-SOL mint used as the price denominator.
var NativeMint = solanago.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")

// Price is one token's price in native units (SOL per whole token).
type Price struct {
	PriceInNative decimal.Decimal
	Confidence    float64
	Source        string
}

// Source resolves prices for a batch of mints. A mint missing from the
// result means the source does not know it; callers decide whether that is
// fatal.
type Source interface {
	Name() string
	GetPrices(ctx context.Context, mints []solanago.PublicKey) (map[solanago.PublicKey]Price, error)
}
