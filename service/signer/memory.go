package signer

import (
	"context"
	"os"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/kora/service/kerr"
)

// Memory signs with an in-process ed25519 keypair.
type Memory struct {
	key solanago.PrivateKey
}

// NewMemory wraps a base58-encoded private key.
func NewMemory(privateKey string) (*Memory, error) {
	key, err := solanago.PrivateKeyFromBase58(privateKey)
	if err != nil {
		return nil, kerr.Wrap(kerr.ConfigError, "invalid signer private key", err)
	}
	return &Memory{key: key}, nil
}

// NewMemoryFromEnv reads the base58 private key from the named environment
// variable.
func NewMemoryFromEnv(envVar string) (*Memory, error) {
	raw := os.Getenv(envVar)
	if raw == "" {
		return nil, kerr.Newf(kerr.ConfigError, "environment variable %s is not set", envVar)
	}
	return NewMemory(raw)
}

func (m *Memory) Pubkey() solanago.PublicKey { return m.key.PublicKey() }

func (m *Memory) SignMessage(_ context.Context, msg []byte) (solanago.Signature, error) {
	sig, err := m.key.Sign(msg)
	if err != nil {
		return solanago.Signature{}, kerr.Wrap(kerr.SigningError, "failed to sign message", err)
	}
	return sig, nil
}
