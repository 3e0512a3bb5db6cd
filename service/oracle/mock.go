package oracle

import (
	"context"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

// Mock returns a deterministic constant price per mint. It backs the
// "Mock" price_source setting and most tests.
type Mock struct {
	// Default is used for any mint without an explicit override.
	Default decimal.Decimal
	// Overrides maps specific mints to prices in native units.
	Overrides map[solanago.PublicKey]decimal.Decimal
}

// NewMock creates a mock source with the given default native price.
func NewMock(defaultPrice decimal.Decimal) *Mock {
	return &Mock{
		Default:   defaultPrice,
		Overrides: make(map[solanago.PublicKey]decimal.Decimal),
	}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) GetPrices(_ context.Context, mints []solanago.PublicKey) (map[solanago.PublicKey]Price, error) {
	out := make(map[solanago.PublicKey]Price, len(mints))
	for _, mint := range mints {
		price := m.Default
		if override, ok := m.Overrides[mint]; ok {
			price = override
		}
		if mint.Equals(NativeMint) {
			price = decimal.NewFromInt(1)
		}
		out[mint] = Price{PriceInNative: price, Confidence: 1, Source: m.Name()}
	}
	return out, nil
}
