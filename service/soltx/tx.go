package soltx

import (
	"crypto/ed25519"
	"encoding/base64"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/kora/service/kerr"
)

// FeePayer returns the first account key, which by message layout is the
// fee payer.
func (r *Resolved) FeePayer() solanago.PublicKey {
	if len(r.AccountKeys) == 0 {
		return solanago.PublicKey{}
	}
	return r.AccountKeys[0]
}

// NumRequiredSignatures returns the header's required signer count.
func (r *Resolved) NumRequiredSignatures() int {
	return int(r.Tx.Message.Header.NumRequiredSignatures)
}

// Signers returns the prefix of the key list that must sign, in signature
// order.
func (r *Resolved) Signers() []solanago.PublicKey {
	n := r.NumRequiredSignatures()
	if n > len(r.AccountKeys) {
		n = len(r.AccountKeys)
	}
	return r.AccountKeys[:n]
}

// HasSignatureFor reports whether the signature slot for the given signer is
// populated (non-zero).
func (r *Resolved) HasSignatureFor(key solanago.PublicKey) bool {
	for i, signer := range r.Signers() {
		if signer.Equals(key) {
			return i < len(r.Tx.Signatures) && !r.Tx.Signatures[i].IsZero()
		}
	}
	return false
}

// MessageBytes serializes the message for signing. Signing is deterministic
// over these bytes, so re-signing an already-signed transaction is
// idempotent.
func (r *Resolved) MessageBytes() ([]byte, error) {
	msg, err := r.Tx.Message.MarshalBinary()
	if err != nil {
		return nil, kerr.Wrap(kerr.SerializationError, "failed to marshal message", err)
	}
	return msg, nil
}

// ApplySignature installs sig at the signer's slot, growing the signature
// vector to the required length if the client omitted placeholder entries.
func (r *Resolved) ApplySignature(signer solanago.PublicKey, sig solanago.Signature) error {
	n := r.NumRequiredSignatures()
	if len(r.Tx.Signatures) < n {
		grown := make([]solanago.Signature, n)
		copy(grown, r.Tx.Signatures)
		r.Tx.Signatures = grown
	}
	for i, key := range r.Signers() {
		if key.Equals(signer) {
			r.Tx.Signatures[i] = sig
			return nil
		}
	}
	return kerr.Newf(kerr.SigningError, "signer %s is not in the transaction signer set", signer)
}

// VerifySignatures checks every populated signature slot against the
// message bytes. All-zero placeholder slots are skipped because the
// relayer's own signature is applied after validation.
func (r *Resolved) VerifySignatures() error {
	msg, err := r.MessageBytes()
	if err != nil {
		return err
	}
	signers := r.Signers()
	for i, sig := range r.Tx.Signatures {
		if i >= len(signers) {
			return kerr.Newf(kerr.InvalidTransaction,
				"transaction carries %d signatures but only %d signers", len(r.Tx.Signatures), len(signers))
		}
		if sig.IsZero() {
			continue
		}
		key := signers[i]
		if !ed25519.Verify(ed25519.PublicKey(key.Bytes()), msg, sig[:]) {
			return kerr.Newf(kerr.InvalidTransaction,
				"signature %d does not verify for signer %s", i, key)
		}
	}
	return nil
}

// EncodeBase64 serializes the transaction back to the wire form.
func (r *Resolved) EncodeBase64() (string, error) {
	raw, err := r.Tx.MarshalBinary()
	if err != nil {
		return "", kerr.Wrap(kerr.SerializationError, "failed to marshal transaction", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// ContainsAccount reports whether key appears anywhere in the resolved
// account set, including keys pulled through lookup tables.
func (r *Resolved) ContainsAccount(key solanago.PublicKey) bool {
	for _, k := range r.AccountKeys {
		if k.Equals(key) {
			return true
		}
	}
	return false
}
