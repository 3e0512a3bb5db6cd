// Package soltx decodes base64-encoded transactions (legacy and v0) into a
// resolved form: a flat, ordered account-key list with lookup-table
// references projected into real pubkeys, and instructions whose program
// IDs and account indices are fully qualified.
package soltx

import (
	"context"
	"encoding/base64"
	"encoding/binary"

	bin "github.com/gagliardetto/binary"
	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/kora/service/kerr"
	"github.com/brojonat/kora/service/solana"
)

// AddressLookupTableProgramID owns every on-chain lookup table.
var AddressLookupTableProgramID = solanago.MustPublicKeyFromBase58("AddressLookupTab1e1111111111111111111111111")

// lookupTableMetaSize is the fixed header before the address list in a
// lookup table account: discriminator (4), deactivation slot (8), last
// extended slot (8), last extended start index (1), authority option (1+32),
// padding (2).
const lookupTableMetaSize = 56

const lookupTableDiscriminator = uint32(1)

// AccountGetter fetches on-chain accounts; the account cache satisfies it.
type AccountGetter interface {
	GetAccount(ctx context.Context, key solanago.PublicKey, forceRefresh bool) (*solana.Account, error)
}

// Instruction is a compiled instruction with program ID and account indices
// resolved against the flat key list.
type Instruction struct {
	ProgramID solanago.PublicKey
	Accounts  []solanago.PublicKey
	Data      []byte
}

// Resolved pairs a decoded transaction with its flat account-key list:
// static keys first, then all writable lookup-table keys in table order,
// then all readonly lookup-table keys, matching the on-wire index order.
// The first Header.NumRequiredSignatures keys are exactly the signer set.
type Resolved struct {
	Tx           *solanago.Transaction
	AccountKeys  []solanago.PublicKey
	Instructions []Instruction
}

// Decode parses a base64 transaction and resolves lookup-table references
// through accounts. Legacy transactions resolve without I/O; v0 messages
// fetch each referenced table.
func Decode(ctx context.Context, txBase64 string, accounts AccountGetter) (*Resolved, error) {
	raw, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return nil, kerr.Wrap(kerr.InvalidTransaction, "transaction is not valid base64", err)
	}

	tx, err := solanago.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return nil, kerr.Wrap(kerr.InvalidTransaction, "failed to deserialize transaction", err)
	}

	keys := make([]solanago.PublicKey, 0, len(tx.Message.AccountKeys))
	keys = append(keys, tx.Message.AccountKeys...)

	if len(tx.Message.AddressTableLookups) > 0 {
		writable, readonly, err := resolveLookups(ctx, tx.Message.AddressTableLookups, accounts)
		if err != nil {
			return nil, err
		}
		keys = append(keys, writable...)
		keys = append(keys, readonly...)
	}

	return build(tx, keys)
}

// NewKoraBuilt wraps a transaction the relayer itself composed. No lookup
// fetching happens: the static key list is taken as already complete.
func NewKoraBuilt(tx *solanago.Transaction) (*Resolved, error) {
	keys := make([]solanago.PublicKey, len(tx.Message.AccountKeys))
	copy(keys, tx.Message.AccountKeys)
	return build(tx, keys)
}

func build(tx *solanago.Transaction, keys []solanago.PublicKey) (*Resolved, error) {
	r := &Resolved{Tx: tx, AccountKeys: keys}

	if int(tx.Message.Header.NumRequiredSignatures) > len(keys) {
		return nil, kerr.Newf(kerr.InvalidTransaction,
			"header requires %d signers but only %d account keys are present",
			tx.Message.Header.NumRequiredSignatures, len(keys))
	}

	r.Instructions = make([]Instruction, 0, len(tx.Message.Instructions))
	for i, compiled := range tx.Message.Instructions {
		if int(compiled.ProgramIDIndex) >= len(keys) {
			return nil, kerr.Newf(kerr.InvalidTransaction,
				"instruction %d: program index %d out of bounds", i, compiled.ProgramIDIndex)
		}
		ix := Instruction{
			ProgramID: keys[compiled.ProgramIDIndex],
			Accounts:  make([]solanago.PublicKey, len(compiled.Accounts)),
			Data:      compiled.Data,
		}
		for j, idx := range compiled.Accounts {
			if int(idx) >= len(keys) {
				return nil, kerr.Newf(kerr.InvalidTransaction,
					"instruction %d: account index %d out of bounds", i, idx)
			}
			ix.Accounts[j] = keys[idx]
		}
		r.Instructions = append(r.Instructions, ix)
	}

	return r, nil
}

func resolveLookups(ctx context.Context, lookups []solanago.MessageAddressTableLookup, accounts AccountGetter) (writable, readonly []solanago.PublicKey, err error) {
	for _, lookup := range lookups {
		acct, err := accounts.GetAccount(ctx, lookup.AccountKey, false)
		if err != nil {
			return nil, nil, kerr.Wrap(kerr.InvalidTransaction,
				"lookup table "+lookup.AccountKey.String()+" could not be fetched", err)
		}
		if !acct.Owner.Equals(AddressLookupTableProgramID) {
			return nil, nil, kerr.Newf(kerr.InvalidTransaction,
				"lookup table %s is not owned by the lookup table program", lookup.AccountKey)
		}

		addresses, err := parseLookupTableAddresses(acct.Data)
		if err != nil {
			return nil, nil, kerr.Wrap(kerr.InvalidTransaction,
				"lookup table "+lookup.AccountKey.String()+" did not deserialize", err)
		}

		for _, idx := range lookup.WritableIndexes {
			if int(idx) >= len(addresses) {
				return nil, nil, kerr.Newf(kerr.InvalidTransaction,
					"lookup table %s: writable index %d out of bounds", lookup.AccountKey, idx)
			}
			writable = append(writable, addresses[idx])
		}
		for _, idx := range lookup.ReadonlyIndexes {
			if int(idx) >= len(addresses) {
				return nil, nil, kerr.Newf(kerr.InvalidTransaction,
					"lookup table %s: readonly index %d out of bounds", lookup.AccountKey, idx)
			}
			readonly = append(readonly, addresses[idx])
		}
	}
	return writable, readonly, nil
}

// parseLookupTableAddresses extracts the address list from a lookup table
// account: a 56-byte metadata header followed by packed 32-byte keys.
func parseLookupTableAddresses(data []byte) ([]solanago.PublicKey, error) {
	if len(data) < lookupTableMetaSize {
		return nil, kerr.New(kerr.InvalidTransaction, "lookup table account data too short")
	}
	if binary.LittleEndian.Uint32(data[0:4]) != lookupTableDiscriminator {
		return nil, kerr.New(kerr.InvalidTransaction, "account is not an initialized lookup table")
	}

	body := data[lookupTableMetaSize:]
	if len(body)%solanago.PublicKeyLength != 0 {
		return nil, kerr.New(kerr.InvalidTransaction, "lookup table address region is misaligned")
	}

	count := len(body) / solanago.PublicKeyLength
	addresses := make([]solanago.PublicKey, count)
	for i := 0; i < count; i++ {
		copy(addresses[i][:], body[i*solanago.PublicKeyLength:(i+1)*solanago.PublicKeyLength])
	}
	return addresses, nil
}
