// Package instruction recognizes and parses system-program, SPL-token,
// token-2022, ATA-program, and compute-budget instructions, producing one
// tagged variant per compiled instruction. Classification is total: any
// unrecognized program yields Unknown.
package instruction

import (
	solanago "github.com/gagliardetto/solana-go"
)

// Classified is a parsed instruction variant. Concrete types below; the
// validator type-switches over them.
type Classified interface {
	isClassified()
}

// NonceKind discriminates durable-nonce operations.
type NonceKind int

const (
	NonceInitialize NonceKind = iota
	NonceAdvance
	NonceWithdraw
	NonceAuthorize
)

func (k NonceKind) String() string {
	switch k {
	case NonceInitialize:
		return "initialize"
	case NonceAdvance:
		return "advance"
	case NonceWithdraw:
		return "withdraw"
	case NonceAuthorize:
		return "authorize"
	}
	return "unknown"
}

// InitializeKind discriminates token initialize variants.
type InitializeKind int

const (
	InitializeMint InitializeKind = iota
	InitializeAccount
)

type SystemTransfer struct {
	From     solanago.PublicKey
	To       solanago.PublicKey
	Lamports uint64
}

type SystemCreateAccount struct {
	Funder     solanago.PublicKey
	NewAccount solanago.PublicKey
	Lamports   uint64
	Space      uint64
	Owner      solanago.PublicKey
}

type SystemAssign struct {
	Account solanago.PublicKey
	Owner   solanago.PublicKey
}

type SystemAllocate struct {
	Account solanago.PublicKey
	Space   uint64
}

// NonceOp covers the four gated durable-nonce operations. Authority is the
// account (or, for initialize, the pubkey argument) that controls the nonce.
type NonceOp struct {
	Kind      NonceKind
	Authority solanago.PublicKey
}

// SplTransfer covers transfer and transfer_checked for both token programs.
// Mint and Decimals are only present for the checked variant.
type SplTransfer struct {
	Source   solanago.PublicKey
	Dest     solanago.PublicKey
	Owner    solanago.PublicKey
	Amount   uint64
	Mint     *solanago.PublicKey
	Decimals *uint8
	Program  solanago.PublicKey
}

type SplBurn struct {
	Account solanago.PublicKey
	Mint    solanago.PublicKey
	Owner   solanago.PublicKey
	Amount  uint64
	Program solanago.PublicKey
}

type SplCloseAccount struct {
	Account solanago.PublicKey
	Dest    solanago.PublicKey
	Owner   solanago.PublicKey
	Program solanago.PublicKey
}

type SplApprove struct {
	Source   solanago.PublicKey
	Delegate solanago.PublicKey
	Owner    solanago.PublicKey
	Amount   uint64
	Program  solanago.PublicKey
}

type SplRevoke struct {
	Source  solanago.PublicKey
	Owner   solanago.PublicKey
	Program solanago.PublicKey
}

type SplSetAuthority struct {
	Account   solanago.PublicKey
	Authority solanago.PublicKey
	Program   solanago.PublicKey
}

type SplMintTo struct {
	Mint      solanago.PublicKey
	Dest      solanago.PublicKey
	Authority solanago.PublicKey
	Amount    uint64
	Program   solanago.PublicKey
}

// SplInitialize covers mint and account initialization. Owner is the
// initialized account's owner (or the mint authority), which may come from
// the account list or the instruction data depending on the variant.
type SplInitialize struct {
	Kind    InitializeKind
	Account solanago.PublicKey
	Mint    solanago.PublicKey
	Owner   solanago.PublicKey
	Program solanago.PublicKey
}

type SplFreeze struct {
	Account   solanago.PublicKey
	Mint      solanago.PublicKey
	Authority solanago.PublicKey
	Program   solanago.PublicKey
}

type SplThaw struct {
	Account   solanago.PublicKey
	Mint      solanago.PublicKey
	Authority solanago.PublicKey
	Program   solanago.PublicKey
}

type ComputeBudgetSetLimit struct {
	Units uint32
}

type ComputeBudgetSetPrice struct {
	MicroLamports uint64
}

// AtaCreate is an associated-token-account creation (idempotent or not).
type AtaCreate struct {
	Payer        solanago.PublicKey
	Address      solanago.PublicKey
	Wallet       solanago.PublicKey
	Mint         solanago.PublicKey
	TokenProgram solanago.PublicKey
}

// Unknown is any instruction for a program outside the recognized set.
type Unknown struct {
	ProgramID solanago.PublicKey
}

func (SystemTransfer) isClassified()        {}
func (SystemCreateAccount) isClassified()   {}
func (SystemAssign) isClassified()          {}
func (SystemAllocate) isClassified()        {}
func (NonceOp) isClassified()               {}
func (SplTransfer) isClassified()           {}
func (SplBurn) isClassified()               {}
func (SplCloseAccount) isClassified()       {}
func (SplApprove) isClassified()            {}
func (SplRevoke) isClassified()             {}
func (SplSetAuthority) isClassified()       {}
func (SplMintTo) isClassified()             {}
func (SplInitialize) isClassified()         {}
func (SplFreeze) isClassified()             {}
func (SplThaw) isClassified()               {}
func (ComputeBudgetSetLimit) isClassified() {}
func (ComputeBudgetSetPrice) isClassified() {}
func (AtaCreate) isClassified()             {}
func (Unknown) isClassified()               {}
