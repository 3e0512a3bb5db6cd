// Package signer holds the fee payer keypairs and the pool that selects
// among them per request.
package signer

import (
	"context"

	solanago "github.com/gagliardetto/solana-go"
)

// Signer signs raw message bytes with a single keypair.
type Signer interface {
	// Pubkey returns the signer's public key.
	Pubkey() solanago.PublicKey
	// SignMessage signs the serialized transaction message.
	SignMessage(ctx context.Context, msg []byte) (solanago.Signature, error)
}
