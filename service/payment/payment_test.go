package payment

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/kora/service/config"
	"github.com/brojonat/kora/service/fee"
	"github.com/brojonat/kora/service/instruction"
	"github.com/brojonat/kora/service/kerr"
	"github.com/brojonat/kora/service/oracle"
	"github.com/brojonat/kora/service/solana"
	"github.com/brojonat/kora/service/soltx"
	"github.com/brojonat/kora/service/token"
)

type fakeAccounts struct {
	accounts map[solanago.PublicKey]*solana.Account
}

func (f *fakeAccounts) GetAccount(_ context.Context, key solanago.PublicKey, _ bool) (*solana.Account, error) {
	acct, ok := f.accounts[key]
	if !ok {
		return nil, kerr.Newf(kerr.AccountNotFound, "account %s not found", key)
	}
	return acct, nil
}

type fakeRent struct{}

func (fakeRent) GetMinimumBalanceForRentExemption(_ context.Context, dataSize uint64) (uint64, error) {
	return dataSize * 10, nil
}

func testKey(b byte) solanago.PublicKey {
	var k solanago.PublicKey
	k[0] = b
	return k
}

var (
	feePayer = testKey(0xFE)
	user     = testKey(0x01)
	usdc     = testKey(0x02)
	userATA  = testKey(0x11)
)

func mintAccount(decimals uint8) *solana.Account {
	data := make([]byte, token.MintSize)
	data[44] = decimals
	return &solana.Account{Owner: instruction.TokenProgramID, Data: data}
}

func tokenAccount(mint, owner solanago.PublicKey) *solana.Account {
	data := make([]byte, token.AccountSize)
	copy(data[0:32], mint[:])
	copy(data[32:64], owner[:])
	binary.LittleEndian.PutUint64(data[64:72], 1_000_000_000)
	data[108] = 1
	return &solana.Account{Owner: instruction.TokenProgramID, Data: data}
}

func newResolved(numSigners uint8, keys ...solanago.PublicKey) *soltx.Resolved {
	return &soltx.Resolved{
		Tx: &solanago.Transaction{
			Message: solanago.Message{
				Header: solanago.MessageHeader{NumRequiredSignatures: numSigners},
			},
		},
		AccountKeys: keys,
	}
}

// newVerifier builds a verifier over an estimator priced at 0.001 native per
// whole token, so with 6 decimals one base unit is worth one lamport.
func newVerifier(t *testing.T, rules *config.Rules) *Verifier {
	t.Helper()
	accounts := map[solanago.PublicKey]*solana.Account{
		usdc:    mintAccount(6),
		userATA: tokenAccount(usdc, user),
	}
	mock := oracle.NewMock(decimal.NewFromInt(1))
	mock.Overrides[usdc] = decimal.NewFromFloat(0.001)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	estimator := fee.New(rules, &fakeAccounts{accounts: accounts}, fakeRent{}, mock, logger)
	return New(rules, estimator, logger, nil)
}

func marginRules() *config.Rules {
	return &config.Rules{
		Price:             config.PriceModel{Type: config.PriceModelMargin},
		AllowedPaidTokens: map[solanago.PublicKey]bool{usdc: true},
	}
}

func paymentTo(t *testing.T, sink solanago.PublicKey, amount uint64) instruction.SplTransfer {
	t.Helper()
	sinkATA, err := token.Legacy{}.AssociatedTokenAddress(sink, usdc)
	require.NoError(t, err)
	mint := usdc
	decimals := uint8(6)
	return instruction.SplTransfer{
		Source:   userATA,
		Dest:     sinkATA,
		Owner:    user,
		Amount:   amount,
		Mint:     &mint,
		Decimals: &decimals,
		Program:  instruction.TokenProgramID,
	}
}

func TestSink(t *testing.T) {
	v := newVerifier(t, marginRules())
	assert.Equal(t, feePayer, v.Sink(feePayer), "defaults to the fee payer")

	rules := marginRules()
	addr := testKey(0x77)
	rules.PaymentAddress = &addr
	v = newVerifier(t, rules)
	assert.Equal(t, addr, v.Sink(feePayer))
}

func TestVerifyExactPayment(t *testing.T) {
	v := newVerifier(t, marginRules())
	r := newResolved(1, feePayer, user)

	// One signature (5000) plus one payment instruction (50).
	classified := []instruction.Classified{paymentTo(t, feePayer, 5_050)}

	breakdown, err := v.Verify(context.Background(), r, classified, feePayer)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_050), breakdown.Total)
}

func TestVerifyOneBaseUnitShort(t *testing.T) {
	v := newVerifier(t, marginRules())
	r := newResolved(1, feePayer, user)

	classified := []instruction.Classified{paymentTo(t, feePayer, 5_049)}

	_, err := v.Verify(context.Background(), r, classified, feePayer)
	require.Error(t, err)
	assert.True(t, kerr.IsKind(err, kerr.InsufficientFunds))
	assert.ErrorContains(t, err, "pays 5049 lamports of the 5050 required")
}

func TestVerifyAdditiveSplitPayments(t *testing.T) {
	v := newVerifier(t, marginRules())
	r := newResolved(1, feePayer, user)

	// Two payment instructions: 5000 signature fee plus 2x50 overhead.
	classified := []instruction.Classified{
		paymentTo(t, feePayer, 3_000),
		paymentTo(t, feePayer, 2_100),
	}

	breakdown, err := v.Verify(context.Background(), r, classified, feePayer)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_100), breakdown.Total)

	// Splitting one base unit off the second payment tips it under.
	classified[1] = paymentTo(t, feePayer, 2_099)
	_, err = v.Verify(context.Background(), r, classified, feePayer)
	assert.True(t, kerr.IsKind(err, kerr.InsufficientFunds))
}

func TestVerifyIgnoresTransfersToNonSink(t *testing.T) {
	v := newVerifier(t, marginRules())
	r := newResolved(1, feePayer, user)

	// A generous transfer to somebody else pays the relayer nothing.
	classified := []instruction.Classified{paymentTo(t, testKey(0x99), 1_000_000)}

	_, err := v.Verify(context.Background(), r, classified, feePayer)
	require.Error(t, err)
	assert.True(t, kerr.IsKind(err, kerr.InsufficientFunds))
	assert.ErrorContains(t, err, "pays 0 lamports")
}

func TestVerifyOverpaymentAccepted(t *testing.T) {
	v := newVerifier(t, marginRules())
	r := newResolved(1, feePayer, user)

	classified := []instruction.Classified{paymentTo(t, feePayer, 100_000)}
	_, err := v.Verify(context.Background(), r, classified, feePayer)
	assert.NoError(t, err)
}

func TestVerifyStrictFixedRequiresExactAmount(t *testing.T) {
	rules := &config.Rules{
		Price: config.PriceModel{
			Type:   config.PriceModelFixed,
			Amount: 5_000,
			Token:  usdc,
			Strict: true,
		},
		AllowedPaidTokens: map[solanago.PublicKey]bool{usdc: true},
	}
	v := newVerifier(t, rules)
	r := newResolved(1, feePayer, user)

	// Fixed 5000 lamports plus 50 payment overhead.
	exact := []instruction.Classified{paymentTo(t, feePayer, 5_050)}
	breakdown, err := v.Verify(context.Background(), r, exact, feePayer)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_050), breakdown.Total)

	over := []instruction.Classified{paymentTo(t, feePayer, 5_051)}
	_, err = v.Verify(context.Background(), r, over, feePayer)
	require.Error(t, err)
	assert.True(t, kerr.IsKind(err, kerr.InsufficientFunds))
	assert.ErrorContains(t, err, "exact payment")

	under := []instruction.Classified{paymentTo(t, feePayer, 5_049)}
	_, err = v.Verify(context.Background(), r, under, feePayer)
	assert.True(t, kerr.IsKind(err, kerr.InsufficientFunds))
}

func TestVerifyFreeModelSkipsPayment(t *testing.T) {
	rules := &config.Rules{Price: config.PriceModel{Type: config.PriceModelFree}}
	v := newVerifier(t, rules)
	r := newResolved(1, feePayer, user)

	breakdown, err := v.Verify(context.Background(), r, nil, feePayer)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), breakdown.Total)
	assert.Equal(t, uint64(5_000), breakdown.BaseSignatureFee)
}
