package instruction

import (
	"encoding/binary"
	"errors"
	"fmt"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/kora/service/soltx"
)

var errShortData = errors.New("instruction data too short")

// parseSystem decodes a system-program instruction: a little-endian u32
// discriminator followed by the payload.
//
// Required accounts per discriminator:
//
//	create_account:   2  (funder@0, new@1)
//	assign:           1  (assigned@0)
//	transfer:         2  (from@0, to@1)
//	advance_nonce:    3  (nonce@0, recent_blockhashes@1, authority@2)
//	withdraw_nonce:   5  (nonce@0, to@1, recent_blockhashes@2, rent@3, authority@4)
//	initialize_nonce: 3  (nonce@0, recent_blockhashes@1, rent@2; authority in data)
//	authorize_nonce:  2  (nonce@0, authority@1)
//	allocate:         1  (account@0)
func parseSystem(ix soltx.Instruction) (Classified, error) {
	if len(ix.Data) < 4 {
		return nil, errShortData
	}
	disc := binary.LittleEndian.Uint32(ix.Data[0:4])
	payload := ix.Data[4:]

	switch disc {
	case sysTransfer:
		if err := requireAccounts(ix, 2); err != nil {
			return nil, err
		}
		if len(payload) < 8 {
			return nil, errShortData
		}
		return SystemTransfer{
			From:     ix.Accounts[0],
			To:       ix.Accounts[1],
			Lamports: binary.LittleEndian.Uint64(payload[0:8]),
		}, nil

	case sysCreateAccount:
		if err := requireAccounts(ix, 2); err != nil {
			return nil, err
		}
		if len(payload) < 48 {
			return nil, errShortData
		}
		var owner solanago.PublicKey
		copy(owner[:], payload[16:48])
		return SystemCreateAccount{
			Funder:     ix.Accounts[0],
			NewAccount: ix.Accounts[1],
			Lamports:   binary.LittleEndian.Uint64(payload[0:8]),
			Space:      binary.LittleEndian.Uint64(payload[8:16]),
			Owner:      owner,
		}, nil

	case sysAssign:
		if err := requireAccounts(ix, 1); err != nil {
			return nil, err
		}
		if len(payload) < 32 {
			return nil, errShortData
		}
		var owner solanago.PublicKey
		copy(owner[:], payload[0:32])
		return SystemAssign{Account: ix.Accounts[0], Owner: owner}, nil

	case sysAllocate:
		if err := requireAccounts(ix, 1); err != nil {
			return nil, err
		}
		if len(payload) < 8 {
			return nil, errShortData
		}
		return SystemAllocate{
			Account: ix.Accounts[0],
			Space:   binary.LittleEndian.Uint64(payload[0:8]),
		}, nil

	case sysAdvanceNonce:
		if err := requireAccounts(ix, 3); err != nil {
			return nil, err
		}
		return NonceOp{Kind: NonceAdvance, Authority: ix.Accounts[2]}, nil

	case sysWithdrawNonce:
		if err := requireAccounts(ix, 5); err != nil {
			return nil, err
		}
		return NonceOp{Kind: NonceWithdraw, Authority: ix.Accounts[4]}, nil

	case sysInitializeNonce:
		if err := requireAccounts(ix, 3); err != nil {
			return nil, err
		}
		if len(payload) < 32 {
			return nil, errShortData
		}
		var authority solanago.PublicKey
		copy(authority[:], payload[0:32])
		return NonceOp{Kind: NonceInitialize, Authority: authority}, nil

	case sysAuthorizeNonce:
		if err := requireAccounts(ix, 2); err != nil {
			return nil, err
		}
		return NonceOp{Kind: NonceAuthorize, Authority: ix.Accounts[1]}, nil

	default:
		// Unmodelled system instructions (create_with_seed, upgrade_nonce,
		// ...) pass through as Unknown so allowed_programs still governs.
		return Unknown{ProgramID: SystemProgramID}, nil
	}
}

func requireAccounts(ix soltx.Instruction, n int) error {
	if len(ix.Accounts) < n {
		return fmt.Errorf("requires at least %d accounts, got %d", n, len(ix.Accounts))
	}
	return nil
}
