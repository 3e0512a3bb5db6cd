// Package token provides a uniform operation surface over the legacy SPL
// token program and token-2022. The two differ in account layout tail and
// extension model; everything the relayer does with either goes through the
// Program interface, dispatched on the instruction's program ID.
package token

import (
	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/kora/service/instruction"
	"github.com/brojonat/kora/service/kerr"
)

// AccountState mirrors the on-chain token account state byte.
type AccountState uint8

const (
	StateUninitialized AccountState = iota
	StateInitialized
	StateFrozen
)

// MintInfo is an unpacked mint. Extensions is empty for the legacy program.
type MintInfo struct {
	Address         solanago.PublicKey
	Program         solanago.PublicKey
	Decimals        uint8
	Supply          uint64
	MintAuthority   *solanago.PublicKey
	FreezeAuthority *solanago.PublicKey
	Extensions      []MintExtension
}

// AccountInfo is an unpacked token account.
type AccountInfo struct {
	Address    solanago.PublicKey
	Mint       solanago.PublicKey
	Owner      solanago.PublicKey
	Amount     uint64
	Delegate   *solanago.PublicKey
	State      AccountState
	Extensions []AccountExtension
}

// Program is the capability surface the relayer needs from a token program.
type Program interface {
	ID() solanago.PublicKey
	UnpackMint(address solanago.PublicKey, data []byte) (*MintInfo, error)
	UnpackAccount(address solanago.PublicKey, data []byte) (*AccountInfo, error)
	AssociatedTokenAddress(wallet, mint solanago.PublicKey) (solanago.PublicKey, error)
	CreateTransferInstruction(source, dest, owner solanago.PublicKey, amount uint64) solanago.Instruction
	CreateTransferCheckedInstruction(source, mint, dest, owner solanago.PublicKey, amount uint64, decimals uint8) solanago.Instruction
	CreateAssociatedTokenAccountInstruction(payer, wallet, mint solanago.PublicKey) (solanago.Instruction, error)
}

// ForProgram returns the implementation for the given program ID.
func ForProgram(id solanago.PublicKey) (Program, error) {
	switch {
	case id.Equals(instruction.TokenProgramID):
		return Legacy{}, nil
	case id.Equals(instruction.Token2022ProgramID):
		return Token2022{}, nil
	default:
		return nil, kerr.Newf(kerr.TokenOperationError, "%s is not a supported token program", id)
	}
}

// associatedTokenAddress derives the ATA for (wallet, mint, tokenProgram).
func associatedTokenAddress(wallet, mint, tokenProgram solanago.PublicKey) (solanago.PublicKey, error) {
	addr, _, err := solanago.FindProgramAddress(
		[][]byte{wallet.Bytes(), tokenProgram.Bytes(), mint.Bytes()},
		instruction.AssociatedTokenProgramID,
	)
	if err != nil {
		return solanago.PublicKey{}, kerr.Wrap(kerr.TokenOperationError, "failed to derive associated token address", err)
	}
	return addr, nil
}
