package token

import (
	"encoding/binary"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/kora/service/instruction"
	"github.com/brojonat/kora/service/kerr"
)

// Token-2022 appends extension data after the base layout. Accounts carry a
// one-byte account type discriminator at offset 165 followed by TLV entries;
// mints are padded out to 165 bytes before the same discriminator.
const (
	accountTypeOffset = baseAccountSize
	tlvStartOffset    = accountTypeOffset + 1

	accountTypeMint         = 1
	accountTypeTokenAccount = 2
)

// Token2022 is the Token Extensions program.
type Token2022 struct{}

func (Token2022) ID() solanago.PublicKey { return instruction.Token2022ProgramID }

func (Token2022) UnpackMint(address solanago.PublicKey, data []byte) (*MintInfo, error) {
	info, err := unpackBaseMint(address, instruction.Token2022ProgramID, data)
	if err != nil {
		return nil, err
	}
	if len(data) > baseMintSize {
		if len(data) <= accountTypeOffset || data[accountTypeOffset] != accountTypeMint {
			return nil, kerr.New(kerr.TokenOperationError, "extended mint account has wrong account type byte")
		}
		types, err := walkTLV(data[tlvStartOffset:])
		if err != nil {
			return nil, err
		}
		for _, t := range types {
			info.Extensions = append(info.Extensions, mintExtensionName(t))
		}
	}
	return info, nil
}

func (Token2022) UnpackAccount(address solanago.PublicKey, data []byte) (*AccountInfo, error) {
	info, err := unpackBaseAccount(address, instruction.Token2022ProgramID, data)
	if err != nil {
		return nil, err
	}
	if len(data) > baseAccountSize {
		if data[accountTypeOffset] != accountTypeTokenAccount {
			return nil, kerr.New(kerr.TokenOperationError, "extended token account has wrong account type byte")
		}
		types, err := walkTLV(data[tlvStartOffset:])
		if err != nil {
			return nil, err
		}
		for _, t := range types {
			info.Extensions = append(info.Extensions, accountExtensionName(t))
		}
	}
	return info, nil
}

func (Token2022) AssociatedTokenAddress(wallet, mint solanago.PublicKey) (solanago.PublicKey, error) {
	return associatedTokenAddress(wallet, mint, instruction.Token2022ProgramID)
}

func (Token2022) CreateTransferInstruction(source, dest, owner solanago.PublicKey, amount uint64) solanago.Instruction {
	return transferInstruction(instruction.Token2022ProgramID, source, dest, owner, amount)
}

func (Token2022) CreateTransferCheckedInstruction(source, mint, dest, owner solanago.PublicKey, amount uint64, decimals uint8) solanago.Instruction {
	return transferCheckedInstruction(instruction.Token2022ProgramID, source, mint, dest, owner, amount, decimals)
}

func (Token2022) CreateAssociatedTokenAccountInstruction(payer, wallet, mint solanago.PublicKey) (solanago.Instruction, error) {
	return createATAInstruction(instruction.Token2022ProgramID, payer, wallet, mint)
}

// walkTLV returns the extension type of every entry in the TLV region. Each
// entry is a little-endian u16 type, u16 length, then length bytes of value.
// A zero type terminates the walk (uninitialized padding).
func walkTLV(tlv []byte) ([]uint16, error) {
	var types []uint16
	offset := 0
	for offset+4 <= len(tlv) {
		extType := binary.LittleEndian.Uint16(tlv[offset : offset+2])
		if extType == 0 {
			break
		}
		extLen := int(binary.LittleEndian.Uint16(tlv[offset+2 : offset+4]))
		offset += 4
		if offset+extLen > len(tlv) {
			return nil, kerr.New(kerr.TokenOperationError, "extension data extends past end of account")
		}
		types = append(types, extType)
		offset += extLen
	}
	return types, nil
}
