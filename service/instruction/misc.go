package instruction

import (
	"encoding/binary"

	"github.com/brojonat/kora/service/soltx"
)

// parseAtaCreate decodes an associated-token-account creation.
// Accounts: payer@0, ata@1, wallet@2, mint@3, system@4, token_program@5.
// Data is empty (Create), [0] (Create) or [1] (CreateIdempotent); both
// variants classify identically.
func parseAtaCreate(ix soltx.Instruction) (Classified, error) {
	if err := requireAccounts(ix, 6); err != nil {
		return nil, err
	}
	return AtaCreate{
		Payer:        ix.Accounts[0],
		Address:      ix.Accounts[1],
		Wallet:       ix.Accounts[2],
		Mint:         ix.Accounts[3],
		TokenProgram: ix.Accounts[5],
	}, nil
}

// parseComputeBudget decodes set_compute_unit_limit and
// set_compute_unit_price. The deprecated request variants pass through as
// Unknown.
func parseComputeBudget(ix soltx.Instruction) (Classified, error) {
	if len(ix.Data) < 1 {
		return nil, errShortData
	}
	switch ix.Data[0] {
	case cbSetComputeUnitLimit:
		if len(ix.Data) < 5 {
			return nil, errShortData
		}
		return ComputeBudgetSetLimit{
			Units: binary.LittleEndian.Uint32(ix.Data[1:5]),
		}, nil
	case cbSetComputeUnitPrice:
		if len(ix.Data) < 9 {
			return nil, errShortData
		}
		return ComputeBudgetSetPrice{
			MicroLamports: binary.LittleEndian.Uint64(ix.Data[1:9]),
		}, nil
	default:
		return Unknown{ProgramID: ComputeBudgetProgramID}, nil
	}
}
