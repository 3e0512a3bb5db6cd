package validator

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/kora/service/config"
	"github.com/brojonat/kora/service/instruction"
	"github.com/brojonat/kora/service/kerr"
	"github.com/brojonat/kora/service/solana"
	"github.com/brojonat/kora/service/soltx"
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

func testKey(b byte) solanago.PublicKey {
	var k solanago.PublicKey
	k[0] = b
	return k
}

var feePayer = testKey(0xFE)

// newResolved assembles a resolved transaction directly: the fee payer is
// the first key and the only required signer unless numSigners overrides it.
func newResolved(numSigners uint8, keys []solanago.PublicKey, ixs ...soltx.Instruction) *soltx.Resolved {
	return &soltx.Resolved{
		Tx: &solanago.Transaction{
			Message: solanago.Message{
				Header: solanago.MessageHeader{NumRequiredSignatures: numSigners},
			},
		},
		AccountKeys:  keys,
		Instructions: ixs,
	}
}

func baseRules() *config.Rules {
	return &config.Rules{
		MaxAllowedLamports: 1_000_000,
		MaxSignatures:      5,
		AllowedPrograms: map[solanago.PublicKey]bool{
			instruction.SystemProgramID:          true,
			instruction.TokenProgramID:           true,
			instruction.Token2022ProgramID:       true,
			instruction.AssociatedTokenProgramID: true,
		},
		AllowedTokens:      map[solanago.PublicKey]bool{},
		AllowedPaidTokens:  map[solanago.PublicKey]bool{},
		DisallowedAccounts: map[solanago.PublicKey]bool{},
		Price:              config.PriceModel{Type: config.PriceModelFree},
		Token2022: config.Token2022Rules{
			BlockedMintExtensions:    map[string]bool{},
			BlockedAccountExtensions: map[string]bool{},
		},
	}
}

func newValidator(rules *config.Rules, accounts map[solanago.PublicKey]*solana.Account) *Validator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(rules, &fakeAccounts{accounts: accounts}, logger, nil)
}

func systemTransferIx(from, to solanago.PublicKey, lamports uint64) soltx.Instruction {
	data := make([]byte, 12)
	binary.LittleEndian.PutUint32(data[0:4], 2)
	binary.LittleEndian.PutUint64(data[4:12], lamports)
	return soltx.Instruction{
		ProgramID: instruction.SystemProgramID,
		Accounts:  []solanago.PublicKey{from, to},
		Data:      data,
	}
}

func transferCheckedIx(program, source, mint, dest, owner solanago.PublicKey, amount uint64, decimals uint8) soltx.Instruction {
	data := make([]byte, 10)
	data[0] = 12
	binary.LittleEndian.PutUint64(data[1:9], amount)
	data[9] = decimals
	return soltx.Instruction{
		ProgramID: program,
		Accounts:  []solanago.PublicKey{source, mint, dest, owner},
		Data:      data,
	}
}

// mintData serializes a base mint, optionally extended with TLV entries.
func mintData(extTypes ...uint16) []byte {
	data := make([]byte, 82)
	data[44] = 6 // decimals
	if len(extTypes) == 0 {
		return data
	}
	data = append(data, make([]byte, 165-82)...)
	data = append(data, 1) // account type: mint
	for _, t := range extTypes {
		entry := make([]byte, 5)
		binary.LittleEndian.PutUint16(entry[0:2], t)
		binary.LittleEndian.PutUint16(entry[2:4], 1)
		data = append(data, entry...)
	}
	return data
}

// tokenAccountData serializes a base token account, optionally extended.
func tokenAccountData(mint, owner solanago.PublicKey, extTypes ...uint16) []byte {
	data := make([]byte, 165)
	copy(data[0:32], mint[:])
	copy(data[32:64], owner[:])
	data[108] = 1 // initialized
	if len(extTypes) == 0 {
		return data
	}
	data = append(data, 2) // account type: token account
	for _, t := range extTypes {
		entry := make([]byte, 5)
		binary.LittleEndian.PutUint16(entry[0:2], t)
		binary.LittleEndian.PutUint16(entry[2:4], 1)
		data = append(data, entry...)
	}
	return data
}

func TestValidateEmptyTransaction(t *testing.T) {
	v := newValidator(baseRules(), nil)
	r := newResolved(1, []solanago.PublicKey{feePayer})

	_, err := v.Validate(context.Background(), r, feePayer)
	assert.True(t, kerr.IsKind(err, kerr.InvalidTransaction))
	assert.ErrorContains(t, err, "no instructions")
}

func TestValidateSignatureCount(t *testing.T) {
	v := newValidator(baseRules(), nil)
	to := testKey(2)

	keys := []solanago.PublicKey{feePayer, testKey(10), testKey(11), testKey(12), testKey(13), to}
	ix := systemTransferIx(testKey(10), to, 1)

	// Exactly at the limit passes.
	_, err := v.Validate(context.Background(), newResolved(5, keys, ix), feePayer)
	require.NoError(t, err)

	// One over fails.
	_, err = v.Validate(context.Background(), newResolved(6, keys, ix), feePayer)
	assert.True(t, kerr.IsKind(err, kerr.ValidationError))
	assert.ErrorContains(t, err, "maximum is 5")
}

func TestValidateFeePayerMismatch(t *testing.T) {
	v := newValidator(baseRules(), nil)
	other := testKey(9)
	r := newResolved(1, []solanago.PublicKey{other, testKey(2)}, systemTransferIx(other, testKey(2), 1))

	_, err := v.Validate(context.Background(), r, feePayer)
	assert.True(t, kerr.IsKind(err, kerr.ValidationError))
	assert.ErrorContains(t, err, "not the relayer signer")
}

func TestValidateDisallowedProgram(t *testing.T) {
	v := newValidator(baseRules(), nil)
	memo := testKey(0xAB)
	r := newResolved(1, []solanago.PublicKey{feePayer, memo}, soltx.Instruction{
		ProgramID: memo,
		Data:      []byte("gm"),
	})

	_, err := v.Validate(context.Background(), r, feePayer)
	assert.True(t, kerr.IsKind(err, kerr.ValidationError))
	assert.ErrorContains(t, err, "not allowed")
}

func TestValidateDisallowedAccount(t *testing.T) {
	rules := baseRules()
	sanctioned := testKey(0x66)
	rules.DisallowedAccounts[sanctioned] = true
	v := newValidator(rules, nil)

	// The disallowed key appears only in the resolved key list, as a
	// lookup-sourced key would, and still trips the check.
	r := newResolved(1,
		[]solanago.PublicKey{feePayer, testKey(2), sanctioned},
		systemTransferIx(feePayer, testKey(2), 1),
	)

	_, err := v.Validate(context.Background(), r, feePayer)
	assert.True(t, kerr.IsKind(err, kerr.ValidationError))
	assert.ErrorContains(t, err, "disallowed account")
}

func TestValidateLamportOutflowCap(t *testing.T) {
	rules := baseRules()
	rules.FeePayerPolicy.System.AllowTransfer = true
	v := newValidator(rules, nil)
	to := testKey(2)

	// Two transfers from the fee payer summing exactly to the cap pass.
	r := newResolved(1, []solanago.PublicKey{feePayer, to},
		systemTransferIx(feePayer, to, 600_000),
		systemTransferIx(feePayer, to, 400_000),
	)
	_, err := v.Validate(context.Background(), r, feePayer)
	require.NoError(t, err)

	// One lamport over fails.
	r = newResolved(1, []solanago.PublicKey{feePayer, to},
		systemTransferIx(feePayer, to, 600_000),
		systemTransferIx(feePayer, to, 400_001),
	)
	_, err = v.Validate(context.Background(), r, feePayer)
	assert.True(t, kerr.IsKind(err, kerr.ValidationError))
	assert.ErrorContains(t, err, "maximum is 1000000")
}

func TestValidateOutflowIgnoresOtherSenders(t *testing.T) {
	v := newValidator(baseRules(), nil)
	sender, to := testKey(3), testKey(2)

	r := newResolved(1, []solanago.PublicKey{feePayer, sender, to},
		systemTransferIx(sender, to, 999_999_999),
	)
	_, err := v.Validate(context.Background(), r, feePayer)
	assert.NoError(t, err)
}

func TestValidateFeePayerPolicy(t *testing.T) {
	source, mint, dest := testKey(1), testKey(2), testKey(3)

	ix := transferCheckedIx(instruction.TokenProgramID, source, mint, dest, feePayer, 100, 6)
	r := newResolved(1, []solanago.PublicKey{feePayer, source, mint, dest}, ix)

	// Default policy: fee payer may not be the transfer owner.
	v := newValidator(baseRules(), nil)
	_, err := v.Validate(context.Background(), r, feePayer)
	assert.True(t, kerr.IsKind(err, kerr.ValidationError))
	assert.ErrorContains(t, err, "fee payer policy")

	// Flipping the flag admits the same transaction.
	rules := baseRules()
	rules.FeePayerPolicy.SplToken.AllowTransfer = true
	v = newValidator(rules, nil)
	_, err = v.Validate(context.Background(), r, feePayer)
	assert.NoError(t, err)
}

func TestValidateNoncePolicy(t *testing.T) {
	nonce := testKey(1)
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, 4) // advance_nonce
	ix := soltx.Instruction{
		ProgramID: instruction.SystemProgramID,
		Accounts:  []solanago.PublicKey{nonce, testKey(2), feePayer},
		Data:      data,
	}
	r := newResolved(1, []solanago.PublicKey{feePayer, nonce}, ix)

	v := newValidator(baseRules(), nil)
	_, err := v.Validate(context.Background(), r, feePayer)
	assert.ErrorContains(t, err, "nonce advance")

	rules := baseRules()
	rules.FeePayerPolicy.System.Nonce.Advance = true
	v = newValidator(rules, nil)
	_, err = v.Validate(context.Background(), r, feePayer)
	assert.NoError(t, err)
}

func TestValidateAllowedTokensOnlyWhenPaymentRequired(t *testing.T) {
	source, mint, dest, owner := testKey(1), testKey(2), testKey(3), testKey(4)
	ix := transferCheckedIx(instruction.TokenProgramID, source, mint, dest, owner, 100, 6)
	r := newResolved(1, []solanago.PublicKey{feePayer, source, mint, dest, owner}, ix)

	// Free model: the mint is not in allowed_tokens and that is fine.
	v := newValidator(baseRules(), nil)
	_, err := v.Validate(context.Background(), r, feePayer)
	require.NoError(t, err)

	// Margin model requires payment, so the list now gates.
	rules := baseRules()
	rules.Price = config.PriceModel{Type: config.PriceModelMargin}
	v = newValidator(rules, nil)
	_, err = v.Validate(context.Background(), r, feePayer)
	assert.True(t, kerr.IsKind(err, kerr.ValidationError))
	assert.ErrorContains(t, err, "allowed token list")

	// Listing the mint admits it again.
	rules.AllowedTokens[mint] = true
	v = newValidator(rules, nil)
	_, err = v.Validate(context.Background(), r, feePayer)
	assert.NoError(t, err)
}

func TestValidateBlockedMintExtension(t *testing.T) {
	source, mint, dest, owner := testKey(1), testKey(2), testKey(3), testKey(4)
	ix := transferCheckedIx(instruction.Token2022ProgramID, source, mint, dest, owner, 100, 6)
	r := newResolved(1, []solanago.PublicKey{feePayer, source, mint, dest, owner}, ix)

	accounts := map[solanago.PublicKey]*solana.Account{
		mint: {Owner: instruction.Token2022ProgramID, Data: mintData(12)}, // permanent_delegate
	}

	rules := baseRules()
	rules.Token2022.BlockedMintExtensions["permanent_delegate"] = true
	v := newValidator(rules, accounts)

	_, err := v.Validate(context.Background(), r, feePayer)
	assert.True(t, kerr.IsKind(err, kerr.ValidationError))
	assert.ErrorContains(t, err, "blocked extension permanent_delegate")

	// The same mint passes when the extension is not blocked.
	v = newValidator(baseRules(), accounts)
	_, err = v.Validate(context.Background(), r, feePayer)
	assert.NoError(t, err)
}

func TestValidateBlockedAccountExtensionOnDestination(t *testing.T) {
	source, mint, dest, owner := testKey(1), testKey(2), testKey(3), testKey(4)
	ix := transferCheckedIx(instruction.Token2022ProgramID, source, mint, dest, owner, 100, 6)
	r := newResolved(1, []solanago.PublicKey{feePayer, source, mint, dest, owner}, ix)

	accounts := map[solanago.PublicKey]*solana.Account{
		mint:   {Owner: instruction.Token2022ProgramID, Data: mintData()},
		source: {Owner: instruction.Token2022ProgramID, Data: tokenAccountData(mint, owner)},
		dest:   {Owner: instruction.Token2022ProgramID, Data: tokenAccountData(mint, testKey(5), 8)}, // memo_transfer
	}

	rules := baseRules()
	rules.Token2022.BlockedAccountExtensions["memo_transfer"] = true
	v := newValidator(rules, accounts)

	_, err := v.Validate(context.Background(), r, feePayer)
	assert.True(t, kerr.IsKind(err, kerr.ValidationError))
	assert.ErrorContains(t, err, "blocked extension memo_transfer")
}

func TestValidateBlockedMintExtensionOnFreezeThaw(t *testing.T) {
	account, mint, authority := testKey(1), testKey(2), testKey(4)

	freezeIx := soltx.Instruction{
		ProgramID: instruction.Token2022ProgramID,
		Accounts:  []solanago.PublicKey{account, mint, authority},
		Data:      []byte{10}, // freeze_account
	}
	thawIx := soltx.Instruction{
		ProgramID: instruction.Token2022ProgramID,
		Accounts:  []solanago.PublicKey{account, mint, authority},
		Data:      []byte{11}, // thaw_account
	}

	accounts := map[solanago.PublicKey]*solana.Account{
		mint: {Owner: instruction.Token2022ProgramID, Data: mintData(14)}, // transfer_hook
	}

	rules := baseRules()
	rules.Token2022.BlockedMintExtensions["transfer_hook"] = true
	v := newValidator(rules, accounts)

	for _, ix := range []soltx.Instruction{freezeIx, thawIx} {
		r := newResolved(1, []solanago.PublicKey{feePayer, account, mint, authority}, ix)
		_, err := v.Validate(context.Background(), r, feePayer)
		assert.True(t, kerr.IsKind(err, kerr.ValidationError))
		assert.ErrorContains(t, err, "blocked extension transfer_hook")
	}

	// Without the block the same instructions pass.
	v = newValidator(baseRules(), accounts)
	r := newResolved(1, []solanago.PublicKey{feePayer, account, mint, authority}, freezeIx)
	_, err := v.Validate(context.Background(), r, feePayer)
	assert.NoError(t, err)
}

func TestValidateBlockedAccountExtensionOnCloseAndApprove(t *testing.T) {
	account, mint, owner, other := testKey(1), testKey(2), testKey(4), testKey(5)

	closeIx := soltx.Instruction{
		ProgramID: instruction.Token2022ProgramID,
		Accounts:  []solanago.PublicKey{account, other, owner},
		Data:      []byte{9}, // close_account
	}
	approveData := make([]byte, 9)
	approveData[0] = 4 // approve
	binary.LittleEndian.PutUint64(approveData[1:9], 100)
	approveIx := soltx.Instruction{
		ProgramID: instruction.Token2022ProgramID,
		Accounts:  []solanago.PublicKey{account, other, owner},
		Data:      approveData,
	}

	accounts := map[solanago.PublicKey]*solana.Account{
		account: {Owner: instruction.Token2022ProgramID, Data: tokenAccountData(mint, owner, 11)}, // cpi_guard
	}

	rules := baseRules()
	rules.Token2022.BlockedAccountExtensions["cpi_guard"] = true
	v := newValidator(rules, accounts)

	for _, ix := range []soltx.Instruction{closeIx, approveIx} {
		r := newResolved(1, []solanago.PublicKey{feePayer, account, other, owner}, ix)
		_, err := v.Validate(context.Background(), r, feePayer)
		assert.True(t, kerr.IsKind(err, kerr.ValidationError))
		assert.ErrorContains(t, err, "blocked extension cpi_guard")
	}
}

func TestValidateTokenAccountOwnerMismatch(t *testing.T) {
	source, mint, dest, owner := testKey(1), testKey(2), testKey(3), testKey(4)
	ix := transferCheckedIx(instruction.Token2022ProgramID, source, mint, dest, owner, 100, 6)
	r := newResolved(1, []solanago.PublicKey{feePayer, source, mint, dest, owner}, ix)

	accounts := map[solanago.PublicKey]*solana.Account{
		mint: {Owner: instruction.Token2022ProgramID, Data: mintData()},
		// Token account claiming to belong to the legacy program.
		source: {Owner: instruction.TokenProgramID, Data: tokenAccountData(mint, owner)},
		dest:   {Owner: instruction.Token2022ProgramID, Data: tokenAccountData(mint, testKey(5))},
	}

	rules := baseRules()
	rules.Token2022.BlockedAccountExtensions["memo_transfer"] = true
	v := newValidator(rules, accounts)

	_, err := v.Validate(context.Background(), r, feePayer)
	assert.ErrorContains(t, err, "not owned by the token program")
}

func TestValidateReturnsClassified(t *testing.T) {
	rules := baseRules()
	rules.FeePayerPolicy.System.AllowTransfer = true
	v := newValidator(rules, nil)
	to := testKey(2)

	r := newResolved(1, []solanago.PublicKey{feePayer, to}, systemTransferIx(feePayer, to, 500))
	classified, err := v.Validate(context.Background(), r, feePayer)
	require.NoError(t, err)
	require.Len(t, classified, 1)
	transfer, ok := classified[0].(instruction.SystemTransfer)
	require.True(t, ok)
	assert.Equal(t, uint64(500), transfer.Lamports)
}
