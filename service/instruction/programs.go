package instruction

import (
	solanago "github.com/gagliardetto/solana-go"
)

// Well-known program IDs the classifier recognizes.
var (
	// SystemProgramID is the native program for lamport transfers, account
	// creation, and durable nonces.
	SystemProgramID = solanago.MustPublicKeyFromBase58("11111111111111111111111111111111")

	// TokenProgramID is the SPL Token program.
	TokenProgramID = solanago.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")

	// Token2022ProgramID is the Token Extensions program (Token-2022).
	Token2022ProgramID = solanago.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBqCXEpPxuEb")

	// AssociatedTokenProgramID derives and creates associated token accounts.
	AssociatedTokenProgramID = solanago.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")

	// ComputeBudgetProgramID carries priority fee instructions.
	ComputeBudgetProgramID = solanago.MustPublicKeyFromBase58("ComputeBudget111111111111111111111111111111")
)

// IsTokenProgram reports whether the program is either token program.
func IsTokenProgram(program solanago.PublicKey) bool {
	return program.Equals(TokenProgramID) || program.Equals(Token2022ProgramID)
}

// System program instruction discriminators (little-endian u32 prefix).
// upgrade_nonce (12) is intentionally not modelled: it carries no authority
// and cannot be policy-gated.
const (
	sysCreateAccount   = uint32(0)
	sysAssign          = uint32(1)
	sysTransfer        = uint32(2)
	sysAdvanceNonce    = uint32(4)
	sysWithdrawNonce   = uint32(5)
	sysInitializeNonce = uint32(6)
	sysAuthorizeNonce  = uint32(7)
	sysAllocate        = uint32(8)
)

// Token program instruction discriminators (u8 prefix), shared by the
// legacy and 2022 programs.
const (
	tokInitializeMint     = uint8(0)
	tokInitializeAccount  = uint8(1)
	tokTransfer           = uint8(3)
	tokApprove            = uint8(4)
	tokRevoke             = uint8(5)
	tokSetAuthority       = uint8(6)
	tokMintTo             = uint8(7)
	tokBurn               = uint8(8)
	tokCloseAccount       = uint8(9)
	tokFreezeAccount      = uint8(10)
	tokThawAccount        = uint8(11)
	tokTransferChecked    = uint8(12)
	tokApproveChecked     = uint8(13)
	tokMintToChecked      = uint8(14)
	tokBurnChecked        = uint8(15)
	tokInitializeAccount2 = uint8(16)
	tokInitializeAccount3 = uint8(18)
	tokInitializeMint2    = uint8(20)
)

// Compute budget instruction discriminators (u8 prefix).
const (
	cbRequestUnits        = uint8(0)
	cbRequestHeapFrame    = uint8(1)
	cbSetComputeUnitLimit = uint8(2)
	cbSetComputeUnitPrice = uint8(3)
)
