// Package solana wraps the chain RPC operations the relayer needs behind a
// narrow interface so tests can run without a validator endpoint.
package solana

import (
	"context"
	"errors"
	"log/slog"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/brojonat/kora/service/kerr"
	"github.com/brojonat/kora/service/metrics"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real nodes.
type RPCClient interface {
	GetAccountInfo(ctx context.Context, account solanago.PublicKey) (*rpc.GetAccountInfoResult, error)
	GetBalance(ctx context.Context, account solanago.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment rpc.CommitmentType) (uint64, error)
	SendTransactionWithOpts(ctx context.Context, tx *solanago.Transaction, opts rpc.TransactionOpts) (solanago.Signature, error)
}

// Client provides domain-level chain operations over an RPCClient, recording
// metrics and logging per call.
type Client struct {
	rpc     RPCClient
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewClient creates a new Solana client. If m is nil, no metrics are recorded.
func NewClient(rpcClient RPCClient, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		rpc:     rpcClient,
		logger:  logger,
		metrics: m,
	}
}

// GetAccount fetches a single account. A missing account is reported as a
// kerr.AccountNotFound so callers can distinguish absence from transport
// failure.
func (c *Client) GetAccount(ctx context.Context, key solanago.PublicKey) (*Account, error) {
	start := time.Now()
	out, err := c.rpc.GetAccountInfo(ctx, key)
	c.record("GetAccountInfo", start, err)

	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, kerr.Newf(kerr.AccountNotFound, "account %s not found", key)
		}
		return nil, kerr.Wrap(kerr.RpcError, "getAccountInfo failed", err)
	}
	if out == nil || out.Value == nil {
		return nil, kerr.Newf(kerr.AccountNotFound, "account %s not found", key)
	}

	acct := &Account{
		Pubkey:     key,
		Lamports:   out.Value.Lamports,
		Owner:      out.Value.Owner,
		Executable: out.Value.Executable,
	}
	if out.Value.Data != nil {
		acct.Data = out.Value.Data.GetBinary()
	}
	return acct, nil
}

// GetBalance returns the lamport balance of an account.
func (c *Client) GetBalance(ctx context.Context, key solanago.PublicKey) (uint64, error) {
	start := time.Now()
	out, err := c.rpc.GetBalance(ctx, key, rpc.CommitmentConfirmed)
	c.record("GetBalance", start, err)

	if err != nil {
		return 0, kerr.Wrap(kerr.RpcError, "getBalance failed", err)
	}
	return out.Value, nil
}

// GetLatestBlockhash returns a recent blockhash suitable for building
// transactions.
func (c *Client) GetLatestBlockhash(ctx context.Context) (*Blockhash, error) {
	start := time.Now()
	out, err := c.rpc.GetLatestBlockhash(ctx, rpc.CommitmentFinalized)
	c.record("GetLatestBlockhash", start, err)

	if err != nil {
		return nil, kerr.Wrap(kerr.RpcError, "getLatestBlockhash failed", err)
	}
	return &Blockhash{
		Blockhash:            out.Value.Blockhash,
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
	}, nil
}

// GetMinimumBalanceForRentExemption returns the rent-exempt minimum for an
// account of the given size.
func (c *Client) GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64) (uint64, error) {
	start := time.Now()
	out, err := c.rpc.GetMinimumBalanceForRentExemption(ctx, dataSize, rpc.CommitmentFinalized)
	c.record("GetMinimumBalanceForRentExemption", start, err)

	if err != nil {
		return 0, kerr.Wrap(kerr.RpcError, "getMinimumBalanceForRentExemption failed", err)
	}
	return out, nil
}

// SendTransaction submits a fully-signed transaction. Submission is
// best-effort: preflight runs but there is no retry orchestration here.
func (c *Client) SendTransaction(ctx context.Context, tx *solanago.Transaction) (solanago.Signature, error) {
	start := time.Now()
	sig, err := c.rpc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight:       false,
		PreflightCommitment: rpc.CommitmentConfirmed,
	})
	c.record("SendTransaction", start, err)

	if err != nil {
		return solanago.Signature{}, kerr.Wrap(kerr.TransactionExecutionFailed, "sendTransaction failed", err)
	}
	c.logger.DebugContext(ctx, "transaction submitted", "signature", sig.String())
	return sig, nil
}

func (c *Client) record(method string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.metrics.RecordRPCCall(method, status, time.Since(start).Seconds())
}
