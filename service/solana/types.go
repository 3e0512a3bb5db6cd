package solana

import (
	solanago "github.com/gagliardetto/solana-go"
)

// Account is the relayer's view of an on-chain account. It carries only the
// fields the validator, fee calculator, and decoder need; the raw RPC result
// stays behind the client.
type Account struct {
	Pubkey     solanago.PublicKey
	Lamports   uint64
	Owner      solanago.PublicKey
	Data       []byte
	Executable bool
}

// Blockhash is a recent blockhash paired with its last-valid height, as
// returned by getLatestBlockhash.
type Blockhash struct {
	Blockhash            solanago.Hash
	LastValidBlockHeight uint64
}

// Token account sizes used for rent estimation. The legacy token account
// layout is fixed; token-2022 accounts grow with extensions, so creation
// rent is estimated at the base size.
const (
	TokenAccountSize = 165
	MintAccountSize  = 82
)
