package fee

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/brojonat/kora/service/kerr"
)

var lamportsPerSol = decimal.NewFromInt(1_000_000_000)

func fromUint64(v uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0)
}

// tokenValueInLamports converts base units of a token with the given
// decimals to lamports at a native-unit price.
func tokenValueInLamports(amount decimal.Decimal, decimals uint8, priceInNative decimal.Decimal) decimal.Decimal {
	return amount.Shift(-int32(decimals)).Mul(priceInNative).Mul(lamportsPerSol)
}

func toLamports(d decimal.Decimal) (uint64, error) {
	return toUint64(d)
}

// toUint64 rounds up and rejects values outside the uint64 range.
func toUint64(d decimal.Decimal) (uint64, error) {
	if d.IsNegative() {
		return 0, kerr.New(kerr.ValidationError, "fee amount is negative")
	}
	b := d.Ceil().BigInt()
	if !b.IsUint64() {
		return 0, kerr.New(kerr.ValidationError, "fee amount overflows")
	}
	return b.Uint64(), nil
}
