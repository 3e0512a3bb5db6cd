package token

import (
	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/kora/service/instruction"
	"github.com/brojonat/kora/service/kerr"
)

// Legacy is the original SPL Token program. Accounts and mints have fixed
// sizes and no extensions.
type Legacy struct{}

func (Legacy) ID() solanago.PublicKey { return instruction.TokenProgramID }

func (Legacy) UnpackMint(address solanago.PublicKey, data []byte) (*MintInfo, error) {
	if len(data) != baseMintSize {
		return nil, kerr.Newf(kerr.TokenOperationError, "unexpected mint account size %d, want %d", len(data), baseMintSize)
	}
	return unpackBaseMint(address, instruction.TokenProgramID, data)
}

func (Legacy) UnpackAccount(address solanago.PublicKey, data []byte) (*AccountInfo, error) {
	if len(data) != baseAccountSize {
		return nil, kerr.Newf(kerr.TokenOperationError, "unexpected token account size %d, want %d", len(data), baseAccountSize)
	}
	return unpackBaseAccount(address, instruction.TokenProgramID, data)
}

func (Legacy) AssociatedTokenAddress(wallet, mint solanago.PublicKey) (solanago.PublicKey, error) {
	return associatedTokenAddress(wallet, mint, instruction.TokenProgramID)
}

func (Legacy) CreateTransferInstruction(source, dest, owner solanago.PublicKey, amount uint64) solanago.Instruction {
	return transferInstruction(instruction.TokenProgramID, source, dest, owner, amount)
}

func (Legacy) CreateTransferCheckedInstruction(source, mint, dest, owner solanago.PublicKey, amount uint64, decimals uint8) solanago.Instruction {
	return transferCheckedInstruction(instruction.TokenProgramID, source, mint, dest, owner, amount, decimals)
}

func (Legacy) CreateAssociatedTokenAccountInstruction(payer, wallet, mint solanago.PublicKey) (solanago.Instruction, error) {
	return createATAInstruction(instruction.TokenProgramID, payer, wallet, mint)
}
