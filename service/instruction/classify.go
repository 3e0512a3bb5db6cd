package instruction

import (
	"strconv"

	"github.com/brojonat/kora/service/kerr"
	"github.com/brojonat/kora/service/soltx"
)

// Classify maps every resolved instruction to a tagged variant, in order.
// Classification is pure: the same bytes always produce the same variant.
// An instruction with too few accounts for its discriminator, or with
// undecodable data, fails the whole transaction.
func Classify(r *soltx.Resolved) ([]Classified, error) {
	out := make([]Classified, 0, len(r.Instructions))
	for i, ix := range r.Instructions {
		c, err := classifyOne(ix)
		if err != nil {
			return nil, kerr.Wrap(kerr.InvalidTransaction,
				"instruction "+strconv.Itoa(i)+" failed to parse", err)
		}
		out = append(out, c)
	}
	return out, nil
}

func classifyOne(ix soltx.Instruction) (Classified, error) {
	switch {
	case ix.ProgramID.Equals(SystemProgramID):
		return parseSystem(ix)
	case IsTokenProgram(ix.ProgramID):
		return parseToken(ix)
	case ix.ProgramID.Equals(AssociatedTokenProgramID):
		return parseAtaCreate(ix)
	case ix.ProgramID.Equals(ComputeBudgetProgramID):
		return parseComputeBudget(ix)
	default:
		return Unknown{ProgramID: ix.ProgramID}, nil
	}
}
