package token

import (
	"encoding/binary"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/kora/service/instruction"
)

// Raw instruction builders parameterized by program ID so the same code
// serves both token programs. The upstream builder packages are pinned to
// the legacy program ID.

func transferInstruction(program, source, dest, owner solanago.PublicKey, amount uint64) solanago.Instruction {
	data := make([]byte, 9)
	data[0] = 3 // Transfer
	binary.LittleEndian.PutUint64(data[1:], amount)
	return solanago.NewInstruction(program, solanago.AccountMetaSlice{
		solanago.Meta(source).WRITE(),
		solanago.Meta(dest).WRITE(),
		solanago.Meta(owner).SIGNER(),
	}, data)
}

func transferCheckedInstruction(program, source, mint, dest, owner solanago.PublicKey, amount uint64, decimals uint8) solanago.Instruction {
	data := make([]byte, 10)
	data[0] = 12 // TransferChecked
	binary.LittleEndian.PutUint64(data[1:9], amount)
	data[9] = decimals
	return solanago.NewInstruction(program, solanago.AccountMetaSlice{
		solanago.Meta(source).WRITE(),
		solanago.Meta(mint),
		solanago.Meta(dest).WRITE(),
		solanago.Meta(owner).SIGNER(),
	}, data)
}

func createATAInstruction(tokenProgram, payer, wallet, mint solanago.PublicKey) (solanago.Instruction, error) {
	ata, err := associatedTokenAddress(wallet, mint, tokenProgram)
	if err != nil {
		return nil, err
	}
	return solanago.NewInstruction(instruction.AssociatedTokenProgramID, solanago.AccountMetaSlice{
		solanago.Meta(payer).WRITE().SIGNER(),
		solanago.Meta(ata).WRITE(),
		solanago.Meta(wallet),
		solanago.Meta(mint),
		solanago.Meta(instruction.SystemProgramID),
		solanago.Meta(tokenProgram),
	}, nil), nil
}
