package token

import (
	"encoding/binary"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/kora/service/kerr"
)

// Base layout sizes shared by both token programs.
const (
	// MintSize is the serialized size of a legacy mint.
	MintSize = 82
	// AccountSize is the serialized size of a legacy token account.
	AccountSize = 165

	baseMintSize    = MintSize
	baseAccountSize = AccountSize
)

// unpackBaseMint parses the 82-byte mint prefix:
// mint_authority COption<Pubkey>, supply u64, decimals u8, is_initialized
// u8, freeze_authority COption<Pubkey>.
func unpackBaseMint(address, program solanago.PublicKey, data []byte) (*MintInfo, error) {
	if len(data) < baseMintSize {
		return nil, kerr.Newf(kerr.TokenOperationError, "mint account data too short: %d bytes", len(data))
	}

	info := &MintInfo{Address: address, Program: program}

	offset := 0
	var err error
	if info.MintAuthority, offset, err = readCOptionKey(data, offset); err != nil {
		return nil, err
	}
	info.Supply = binary.LittleEndian.Uint64(data[offset : offset+8])
	offset += 8
	info.Decimals = data[offset]
	offset += 2 // decimals + is_initialized
	if info.FreezeAuthority, _, err = readCOptionKey(data, offset); err != nil {
		return nil, err
	}

	return info, nil
}

// unpackBaseAccount parses the 165-byte token account prefix:
// mint, owner, amount u64, delegate COption<Pubkey>, state u8, is_native
// COption<u64>, delegated_amount u64, close_authority COption<Pubkey>.
func unpackBaseAccount(address, program solanago.PublicKey, data []byte) (*AccountInfo, error) {
	if len(data) < baseAccountSize {
		return nil, kerr.Newf(kerr.TokenOperationError, "token account data too short: %d bytes", len(data))
	}

	info := &AccountInfo{Address: address}
	copy(info.Mint[:], data[0:32])
	copy(info.Owner[:], data[32:64])
	info.Amount = binary.LittleEndian.Uint64(data[64:72])

	var err error
	if info.Delegate, _, err = readCOptionKey(data, 72); err != nil {
		return nil, err
	}
	info.State = AccountState(data[108])

	return info, nil
}

// readCOptionKey reads a 4-byte little-endian option flag followed by a
// 32-byte pubkey.
func readCOptionKey(data []byte, offset int) (*solanago.PublicKey, int, error) {
	if len(data) < offset+36 {
		return nil, 0, kerr.New(kerr.TokenOperationError, "truncated COption<Pubkey>")
	}
	flag := binary.LittleEndian.Uint32(data[offset : offset+4])
	next := offset + 36
	if flag == 0 {
		return nil, next, nil
	}
	var key solanago.PublicKey
	copy(key[:], data[offset+4:offset+36])
	return &key, next, nil
}
