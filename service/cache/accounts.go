package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/kora/service/metrics"
	"github.com/brojonat/kora/service/solana"
)

const accountKeyPrefix = "kora:account:"

// ChainReader is the slice of the chain client the cache needs.
type ChainReader interface {
	GetAccount(ctx context.Context, key solanago.PublicKey) (*solana.Account, error)
}

// cachedAccount is the stored representation of an account plus the time it
// was fetched, so staleness is checked independently of store TTL behavior.
type cachedAccount struct {
	Lamports   uint64    `json:"lamports"`
	Owner      string    `json:"owner"`
	Data       []byte    `json:"data"`
	Executable bool      `json:"executable"`
	CachedAt   time.Time `json:"cached_at"`
}

// AccountCache reads accounts through an optional TTL'd store. A nil store
// means the cache is disabled and every read goes straight to RPC.
type AccountCache struct {
	store   Store
	chain   ChainReader
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates an account cache. store may be nil (cache disabled) and
// metrics may be nil.
func New(store Store, chain ChainReader, accountTTL time.Duration, m *metrics.Metrics, logger *slog.Logger) *AccountCache {
	return &AccountCache{
		store:   store,
		chain:   chain,
		ttl:     accountTTL,
		metrics: m,
		logger:  logger,
	}
}

// GetAccount returns the account for key. With forceRefresh the store is
// skipped on read but still written back. Store failures degrade to a
// direct RPC read and are logged, never surfaced.
func (c *AccountCache) GetAccount(ctx context.Context, key solanago.PublicKey, forceRefresh bool) (*solana.Account, error) {
	if c.store == nil {
		c.record("get", "bypass")
		return c.chain.GetAccount(ctx, key)
	}

	storeKey := accountKeyPrefix + key.String()

	if !forceRefresh {
		raw, err := c.store.Get(ctx, storeKey)
		switch {
		case err == nil:
			var cached cachedAccount
			if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
				if time.Since(cached.CachedAt) < c.ttl {
					if acct, convErr := cached.toAccount(key); convErr == nil {
						c.record("get", "hit")
						return acct, nil
					}
				}
			}
			// Stale or undecodable entry: fall through to RPC.
			c.record("get", "miss")
		case err == ErrMiss:
			c.record("get", "miss")
		default:
			c.record("get", "error")
			c.logger.WarnContext(ctx, "account cache read failed, falling back to RPC",
				"account", key.String(),
				"error", err,
			)
		}
	}

	acct, err := c.chain.GetAccount(ctx, key)
	if err != nil {
		return nil, err
	}

	c.writeBack(ctx, storeKey, acct)
	return acct, nil
}

// writeBack stores the account with TTL. Failures are logged and ignored.
func (c *AccountCache) writeBack(ctx context.Context, storeKey string, acct *solana.Account) {
	entry := cachedAccount{
		Lamports:   acct.Lamports,
		Owner:      acct.Owner.String(),
		Data:       acct.Data,
		Executable: acct.Executable,
		CachedAt:   time.Now(),
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, storeKey, raw, c.ttl); err != nil {
		c.record("set", "error")
		c.logger.WarnContext(ctx, "account cache write failed",
			"key", storeKey,
			"error", err,
		)
		return
	}
	c.record("set", "success")
}

func (c *AccountCache) record(op, outcome string) {
	if c.metrics != nil {
		c.metrics.RecordCacheOperation(op, outcome)
	}
}

func (e *cachedAccount) toAccount(key solanago.PublicKey) (*solana.Account, error) {
	owner, err := solanago.PublicKeyFromBase58(e.Owner)
	if err != nil {
		return nil, err
	}
	return &solana.Account{
		Pubkey:     key,
		Lamports:   e.Lamports,
		Owner:      owner,
		Data:       e.Data,
		Executable: e.Executable,
	}, nil
}
