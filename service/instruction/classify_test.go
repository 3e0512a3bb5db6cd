package instruction

import (
	"encoding/binary"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/kora/service/kerr"
	"github.com/brojonat/kora/service/soltx"
)

func key(b byte) solanago.PublicKey {
	var k solanago.PublicKey
	k[0] = b
	return k
}

func sysData(disc uint32, payload ...byte) []byte {
	data := make([]byte, 4, 4+len(payload))
	binary.LittleEndian.PutUint32(data, disc)
	return append(data, payload...)
}

func u64le(v uint64) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, v)
	return out
}

func TestClassifySystemTransfer(t *testing.T) {
	from, to := key(1), key(2)
	ix := soltx.Instruction{
		ProgramID: SystemProgramID,
		Accounts:  []solanago.PublicKey{from, to},
		Data:      sysData(sysTransfer, u64le(5000)...),
	}

	c, err := classifyOne(ix)
	require.NoError(t, err)
	transfer, ok := c.(SystemTransfer)
	require.True(t, ok)
	assert.Equal(t, from, transfer.From)
	assert.Equal(t, to, transfer.To)
	assert.Equal(t, uint64(5000), transfer.Lamports)
}

func TestClassifySystemCreateAccount(t *testing.T) {
	owner := key(9)
	payload := append(u64le(2039280), u64le(165)...)
	payload = append(payload, owner[:]...)
	ix := soltx.Instruction{
		ProgramID: SystemProgramID,
		Accounts:  []solanago.PublicKey{key(1), key(2)},
		Data:      sysData(sysCreateAccount, payload...),
	}

	c, err := classifyOne(ix)
	require.NoError(t, err)
	create, ok := c.(SystemCreateAccount)
	require.True(t, ok)
	assert.Equal(t, uint64(2039280), create.Lamports)
	assert.Equal(t, uint64(165), create.Space)
	assert.Equal(t, owner, create.Owner)
}

func TestClassifyNonceOps(t *testing.T) {
	authority := key(7)

	tests := []struct {
		name     string
		ix       soltx.Instruction
		wantKind NonceKind
	}{
		{
			name: "advance",
			ix: soltx.Instruction{
				ProgramID: SystemProgramID,
				Accounts:  []solanago.PublicKey{key(1), key(2), authority},
				Data:      sysData(sysAdvanceNonce),
			},
			wantKind: NonceAdvance,
		},
		{
			name: "withdraw",
			ix: soltx.Instruction{
				ProgramID: SystemProgramID,
				Accounts:  []solanago.PublicKey{key(1), key(2), key(3), key(4), authority},
				Data:      sysData(sysWithdrawNonce, u64le(100)...),
			},
			wantKind: NonceWithdraw,
		},
		{
			name: "initialize reads authority from data",
			ix: soltx.Instruction{
				ProgramID: SystemProgramID,
				Accounts:  []solanago.PublicKey{key(1), key(2), key(3)},
				Data:      sysData(sysInitializeNonce, authority[:]...),
			},
			wantKind: NonceInitialize,
		},
		{
			name: "authorize",
			ix: soltx.Instruction{
				ProgramID: SystemProgramID,
				Accounts:  []solanago.PublicKey{key(1), authority},
				Data:      sysData(sysAuthorizeNonce, authority[:]...),
			},
			wantKind: NonceAuthorize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := classifyOne(tt.ix)
			require.NoError(t, err)
			op, ok := c.(NonceOp)
			require.True(t, ok)
			assert.Equal(t, tt.wantKind, op.Kind)
			assert.Equal(t, authority, op.Authority)
		})
	}
}

func TestClassifyTokenTransfer(t *testing.T) {
	src, dst, owner := key(1), key(2), key(3)
	ix := soltx.Instruction{
		ProgramID: TokenProgramID,
		Accounts:  []solanago.PublicKey{src, dst, owner},
		Data:      append([]byte{tokTransfer}, u64le(1_000_000)...),
	}

	c, err := classifyOne(ix)
	require.NoError(t, err)
	transfer, ok := c.(SplTransfer)
	require.True(t, ok)
	assert.Equal(t, src, transfer.Source)
	assert.Equal(t, dst, transfer.Dest)
	assert.Equal(t, owner, transfer.Owner)
	assert.Equal(t, uint64(1_000_000), transfer.Amount)
	assert.Nil(t, transfer.Mint)
	assert.Equal(t, TokenProgramID, transfer.Program)
}

func TestClassifyTokenTransferChecked(t *testing.T) {
	src, mint, dst, owner := key(1), key(2), key(3), key(4)
	data := append([]byte{tokTransferChecked}, u64le(500)...)
	data = append(data, 6) // decimals
	ix := soltx.Instruction{
		ProgramID: Token2022ProgramID,
		Accounts:  []solanago.PublicKey{src, mint, dst, owner},
		Data:      data,
	}

	c, err := classifyOne(ix)
	require.NoError(t, err)
	transfer, ok := c.(SplTransfer)
	require.True(t, ok)
	assert.Equal(t, src, transfer.Source)
	assert.Equal(t, dst, transfer.Dest)
	assert.Equal(t, owner, transfer.Owner)
	require.NotNil(t, transfer.Mint)
	assert.Equal(t, mint, *transfer.Mint)
	require.NotNil(t, transfer.Decimals)
	assert.Equal(t, uint8(6), *transfer.Decimals)
	assert.Equal(t, Token2022ProgramID, transfer.Program)
}

func TestClassifyTokenVariants(t *testing.T) {
	a, b, c3 := key(1), key(2), key(3)

	tests := []struct {
		name string
		data []byte
		acct []solanago.PublicKey
		want any
	}{
		{
			name: "burn",
			data: append([]byte{tokBurn}, u64le(10)...),
			acct: []solanago.PublicKey{a, b, c3},
			want: SplBurn{Account: a, Mint: b, Owner: c3, Amount: 10, Program: TokenProgramID},
		},
		{
			name: "close account",
			data: []byte{tokCloseAccount},
			acct: []solanago.PublicKey{a, b, c3},
			want: SplCloseAccount{Account: a, Dest: b, Owner: c3, Program: TokenProgramID},
		},
		{
			name: "approve",
			data: append([]byte{tokApprove}, u64le(77)...),
			acct: []solanago.PublicKey{a, b, c3},
			want: SplApprove{Source: a, Delegate: b, Owner: c3, Amount: 77, Program: TokenProgramID},
		},
		{
			name: "revoke",
			data: []byte{tokRevoke},
			acct: []solanago.PublicKey{a, b},
			want: SplRevoke{Source: a, Owner: b, Program: TokenProgramID},
		},
		{
			name: "set authority",
			data: []byte{tokSetAuthority, 0, 0},
			acct: []solanago.PublicKey{a, b},
			want: SplSetAuthority{Account: a, Authority: b, Program: TokenProgramID},
		},
		{
			name: "mint to",
			data: append([]byte{tokMintTo}, u64le(33)...),
			acct: []solanago.PublicKey{a, b, c3},
			want: SplMintTo{Mint: a, Dest: b, Authority: c3, Amount: 33, Program: TokenProgramID},
		},
		{
			name: "freeze",
			data: []byte{tokFreezeAccount},
			acct: []solanago.PublicKey{a, b, c3},
			want: SplFreeze{Account: a, Mint: b, Authority: c3, Program: TokenProgramID},
		},
		{
			name: "thaw",
			data: []byte{tokThawAccount},
			acct: []solanago.PublicKey{a, b, c3},
			want: SplThaw{Account: a, Mint: b, Authority: c3, Program: TokenProgramID},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := classifyOne(soltx.Instruction{
				ProgramID: TokenProgramID,
				Accounts:  tt.acct,
				Data:      tt.data,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyTokenInitialize(t *testing.T) {
	account, mint, owner := key(1), key(2), key(3)

	t.Run("initialize_account takes owner from accounts", func(t *testing.T) {
		c, err := classifyOne(soltx.Instruction{
			ProgramID: TokenProgramID,
			Accounts:  []solanago.PublicKey{account, mint, owner, key(4)},
			Data:      []byte{tokInitializeAccount},
		})
		require.NoError(t, err)
		init, ok := c.(SplInitialize)
		require.True(t, ok)
		assert.Equal(t, InitializeAccount, init.Kind)
		assert.Equal(t, owner, init.Owner)
	})

	t.Run("initialize_account3 takes owner from data", func(t *testing.T) {
		c, err := classifyOne(soltx.Instruction{
			ProgramID: TokenProgramID,
			Accounts:  []solanago.PublicKey{account, mint},
			Data:      append([]byte{tokInitializeAccount3}, owner[:]...),
		})
		require.NoError(t, err)
		init, ok := c.(SplInitialize)
		require.True(t, ok)
		assert.Equal(t, InitializeAccount, init.Kind)
		assert.Equal(t, owner, init.Owner)
	})

	t.Run("initialize_mint2 takes authority after decimals byte", func(t *testing.T) {
		data := append([]byte{tokInitializeMint2, 6}, owner[:]...)
		c, err := classifyOne(soltx.Instruction{
			ProgramID: TokenProgramID,
			Accounts:  []solanago.PublicKey{mint},
			Data:      data,
		})
		require.NoError(t, err)
		init, ok := c.(SplInitialize)
		require.True(t, ok)
		assert.Equal(t, InitializeMint, init.Kind)
		assert.Equal(t, mint, init.Mint)
		assert.Equal(t, owner, init.Owner)
	})
}

func TestClassifyComputeBudget(t *testing.T) {
	limitData := make([]byte, 5)
	limitData[0] = cbSetComputeUnitLimit
	binary.LittleEndian.PutUint32(limitData[1:], 200_000)

	c, err := classifyOne(soltx.Instruction{ProgramID: ComputeBudgetProgramID, Data: limitData})
	require.NoError(t, err)
	assert.Equal(t, ComputeBudgetSetLimit{Units: 200_000}, c)

	priceData := make([]byte, 9)
	priceData[0] = cbSetComputeUnitPrice
	binary.LittleEndian.PutUint64(priceData[1:], 10_000)

	c, err = classifyOne(soltx.Instruction{ProgramID: ComputeBudgetProgramID, Data: priceData})
	require.NoError(t, err)
	assert.Equal(t, ComputeBudgetSetPrice{MicroLamports: 10_000}, c)

	c, err = classifyOne(soltx.Instruction{ProgramID: ComputeBudgetProgramID, Data: []byte{cbRequestHeapFrame, 0, 0, 0, 0}})
	require.NoError(t, err)
	assert.Equal(t, Unknown{ProgramID: ComputeBudgetProgramID}, c)
}

func TestClassifyAtaCreate(t *testing.T) {
	payer, ata, wallet, mint := key(1), key(2), key(3), key(4)
	ix := soltx.Instruction{
		ProgramID: AssociatedTokenProgramID,
		Accounts:  []solanago.PublicKey{payer, ata, wallet, mint, SystemProgramID, TokenProgramID},
		Data:      nil,
	}

	c, err := classifyOne(ix)
	require.NoError(t, err)
	create, ok := c.(AtaCreate)
	require.True(t, ok)
	assert.Equal(t, payer, create.Payer)
	assert.Equal(t, ata, create.Address)
	assert.Equal(t, wallet, create.Wallet)
	assert.Equal(t, mint, create.Mint)
	assert.Equal(t, TokenProgramID, create.TokenProgram)
}

func TestClassifyUnknownProgram(t *testing.T) {
	memo := key(0xAB)
	c, err := classifyOne(soltx.Instruction{ProgramID: memo, Data: []byte("hello")})
	require.NoError(t, err)
	assert.Equal(t, Unknown{ProgramID: memo}, c)
}

func TestClassifyShortData(t *testing.T) {
	tests := []struct {
		name string
		ix   soltx.Instruction
	}{
		{
			name: "system discriminator truncated",
			ix:   soltx.Instruction{ProgramID: SystemProgramID, Data: []byte{2, 0}},
		},
		{
			name: "transfer lamports truncated",
			ix: soltx.Instruction{
				ProgramID: SystemProgramID,
				Accounts:  []solanago.PublicKey{key(1), key(2)},
				Data:      sysData(sysTransfer, 1, 2),
			},
		},
		{
			name: "token transfer amount truncated",
			ix: soltx.Instruction{
				ProgramID: TokenProgramID,
				Accounts:  []solanago.PublicKey{key(1), key(2), key(3)},
				Data:      []byte{tokTransfer, 1, 2},
			},
		},
		{
			name: "token transfer missing accounts",
			ix: soltx.Instruction{
				ProgramID: TokenProgramID,
				Accounts:  []solanago.PublicKey{key(1)},
				Data:      append([]byte{tokTransfer}, u64le(1)...),
			},
		},
		{
			name: "ata create missing accounts",
			ix: soltx.Instruction{
				ProgramID: AssociatedTokenProgramID,
				Accounts:  []solanago.PublicKey{key(1), key(2)},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := classifyOne(tt.ix)
			assert.Error(t, err)
		})
	}
}

func TestClassifyWrapsInstructionIndex(t *testing.T) {
	r := &soltx.Resolved{
		Instructions: []soltx.Instruction{
			{ProgramID: SystemProgramID, Accounts: []solanago.PublicKey{key(1), key(2)}, Data: sysData(sysTransfer, u64le(1)...)},
			{ProgramID: TokenProgramID, Data: nil},
		},
	}
	_, err := Classify(r)
	require.Error(t, err)
	assert.True(t, kerr.IsKind(err, kerr.InvalidTransaction))
	assert.Contains(t, err.Error(), "instruction 1")
}
