package instruction

import (
	"encoding/binary"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/kora/service/soltx"
)

// parseToken decodes an SPL-token or token-2022 instruction: a u8
// discriminator followed by the payload. Both programs share a wire format;
// the classified variant carries the program so policy can distinguish.
//
// Required accounts per discriminator:
//
//	transfer:          3  (source@0, dest@1, owner@2)
//	transfer_checked:  4  (source@0, mint@1, dest@2, owner@3)
//	approve:           3  (source@0, delegate@1, owner@2)
//	approve_checked:   4  (source@0, mint@1, delegate@2, owner@3)
//	revoke:            2  (source@0, owner@1)
//	set_authority:     2  (account@0, authority@1)
//	mint_to[_checked]: 3  (mint@0, dest@1, authority@2)
//	burn[_checked]:    3  (account@0, mint@1, owner@2)
//	close_account:     3  (account@0, dest@1, owner@2)
//	freeze/thaw:       3  (account@0, mint@1, authority@2)
//	initialize_*:      see parseTokenInitialize
func parseToken(ix soltx.Instruction) (Classified, error) {
	if len(ix.Data) < 1 {
		return nil, errShortData
	}
	disc := ix.Data[0]
	payload := ix.Data[1:]

	switch disc {
	case tokTransfer:
		if err := requireAccounts(ix, 3); err != nil {
			return nil, err
		}
		amount, err := u64At(payload, 0)
		if err != nil {
			return nil, err
		}
		return SplTransfer{
			Source:  ix.Accounts[0],
			Dest:    ix.Accounts[1],
			Owner:   ix.Accounts[2],
			Amount:  amount,
			Program: ix.ProgramID,
		}, nil

	case tokTransferChecked:
		if err := requireAccounts(ix, 4); err != nil {
			return nil, err
		}
		amount, err := u64At(payload, 0)
		if err != nil {
			return nil, err
		}
		if len(payload) < 9 {
			return nil, errShortData
		}
		mint := ix.Accounts[1]
		decimals := payload[8]
		return SplTransfer{
			Source:   ix.Accounts[0],
			Dest:     ix.Accounts[2],
			Owner:    ix.Accounts[3],
			Amount:   amount,
			Mint:     &mint,
			Decimals: &decimals,
			Program:  ix.ProgramID,
		}, nil

	case tokApprove:
		if err := requireAccounts(ix, 3); err != nil {
			return nil, err
		}
		amount, err := u64At(payload, 0)
		if err != nil {
			return nil, err
		}
		return SplApprove{
			Source:   ix.Accounts[0],
			Delegate: ix.Accounts[1],
			Owner:    ix.Accounts[2],
			Amount:   amount,
			Program:  ix.ProgramID,
		}, nil

	case tokApproveChecked:
		if err := requireAccounts(ix, 4); err != nil {
			return nil, err
		}
		amount, err := u64At(payload, 0)
		if err != nil {
			return nil, err
		}
		return SplApprove{
			Source:   ix.Accounts[0],
			Delegate: ix.Accounts[2],
			Owner:    ix.Accounts[3],
			Amount:   amount,
			Program:  ix.ProgramID,
		}, nil

	case tokRevoke:
		if err := requireAccounts(ix, 2); err != nil {
			return nil, err
		}
		return SplRevoke{
			Source:  ix.Accounts[0],
			Owner:   ix.Accounts[1],
			Program: ix.ProgramID,
		}, nil

	case tokSetAuthority:
		if err := requireAccounts(ix, 2); err != nil {
			return nil, err
		}
		return SplSetAuthority{
			Account:   ix.Accounts[0],
			Authority: ix.Accounts[1],
			Program:   ix.ProgramID,
		}, nil

	case tokMintTo, tokMintToChecked:
		if err := requireAccounts(ix, 3); err != nil {
			return nil, err
		}
		amount, err := u64At(payload, 0)
		if err != nil {
			return nil, err
		}
		return SplMintTo{
			Mint:      ix.Accounts[0],
			Dest:      ix.Accounts[1],
			Authority: ix.Accounts[2],
			Amount:    amount,
			Program:   ix.ProgramID,
		}, nil

	case tokBurn, tokBurnChecked:
		if err := requireAccounts(ix, 3); err != nil {
			return nil, err
		}
		amount, err := u64At(payload, 0)
		if err != nil {
			return nil, err
		}
		return SplBurn{
			Account: ix.Accounts[0],
			Mint:    ix.Accounts[1],
			Owner:   ix.Accounts[2],
			Amount:  amount,
			Program: ix.ProgramID,
		}, nil

	case tokCloseAccount:
		if err := requireAccounts(ix, 3); err != nil {
			return nil, err
		}
		return SplCloseAccount{
			Account: ix.Accounts[0],
			Dest:    ix.Accounts[1],
			Owner:   ix.Accounts[2],
			Program: ix.ProgramID,
		}, nil

	case tokFreezeAccount:
		if err := requireAccounts(ix, 3); err != nil {
			return nil, err
		}
		return SplFreeze{
			Account:   ix.Accounts[0],
			Mint:      ix.Accounts[1],
			Authority: ix.Accounts[2],
			Program:   ix.ProgramID,
		}, nil

	case tokThawAccount:
		if err := requireAccounts(ix, 3); err != nil {
			return nil, err
		}
		return SplThaw{
			Account:   ix.Accounts[0],
			Mint:      ix.Accounts[1],
			Authority: ix.Accounts[2],
			Program:   ix.ProgramID,
		}, nil

	case tokInitializeMint, tokInitializeMint2, tokInitializeAccount, tokInitializeAccount2, tokInitializeAccount3:
		return parseTokenInitialize(ix, disc, payload)

	default:
		// Extension-specific and multisig instructions are not modelled;
		// allowed_programs membership still applies.
		return Unknown{ProgramID: ix.ProgramID}, nil
	}
}

// parseTokenInitialize handles the initialize variants. The owner (or mint
// authority) lives in the account list for initialize_account and in the
// instruction data for the 2/3 and mint variants.
func parseTokenInitialize(ix soltx.Instruction, disc uint8, payload []byte) (Classified, error) {
	switch disc {
	case tokInitializeAccount:
		// [account, mint, owner, rent]
		if err := requireAccounts(ix, 3); err != nil {
			return nil, err
		}
		return SplInitialize{
			Kind:    InitializeAccount,
			Account: ix.Accounts[0],
			Mint:    ix.Accounts[1],
			Owner:   ix.Accounts[2],
			Program: ix.ProgramID,
		}, nil

	case tokInitializeAccount2, tokInitializeAccount3:
		// [account, mint, (rent)], owner pubkey in data.
		if err := requireAccounts(ix, 2); err != nil {
			return nil, err
		}
		owner, err := keyAt(payload, 0)
		if err != nil {
			return nil, err
		}
		return SplInitialize{
			Kind:    InitializeAccount,
			Account: ix.Accounts[0],
			Mint:    ix.Accounts[1],
			Owner:   owner,
			Program: ix.ProgramID,
		}, nil

	case tokInitializeMint, tokInitializeMint2:
		// [mint, (rent)], data: decimals u8 then mint authority pubkey.
		if err := requireAccounts(ix, 1); err != nil {
			return nil, err
		}
		authority, err := keyAt(payload, 1)
		if err != nil {
			return nil, err
		}
		return SplInitialize{
			Kind:    InitializeMint,
			Account: ix.Accounts[0],
			Mint:    ix.Accounts[0],
			Owner:   authority,
			Program: ix.ProgramID,
		}, nil
	}
	return Unknown{ProgramID: ix.ProgramID}, nil
}

func u64At(data []byte, offset int) (uint64, error) {
	if len(data) < offset+8 {
		return 0, errShortData
	}
	return binary.LittleEndian.Uint64(data[offset : offset+8]), nil
}

func keyAt(data []byte, offset int) (solanago.PublicKey, error) {
	var key solanago.PublicKey
	if len(data) < offset+32 {
		return key, errShortData
	}
	copy(key[:], data[offset:offset+32])
	return key, nil
}
