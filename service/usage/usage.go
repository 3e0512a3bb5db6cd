// Package usage caps how many transactions the relayer will pay for per
// sender wallet. Counters live in a shared store so the cap holds across
// replicas.
package usage

import (
	"context"
	"log/slog"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/kora/service/config"
	"github.com/brojonat/kora/service/kerr"
	"github.com/brojonat/kora/service/metrics"
	"github.com/brojonat/kora/service/soltx"
)

const usageKeyPrefix = "kora:usage_limit:"

// Store holds per-wallet transaction counters.
type Store interface {
	// Count returns the current counter value; a missing key counts as zero.
	Count(ctx context.Context, key string) (uint64, error)
	// Increment atomically adds one and returns the new value.
	Increment(ctx context.Context, key string) (uint64, error)
	Close() error
}

// PoolChecker reports whether a pubkey belongs to a pool signer; the signer
// pool satisfies it.
type PoolChecker interface {
	Contains(key solanago.PublicKey) bool
}

// Limiter enforces the per-wallet transaction cap.
type Limiter struct {
	cfg     config.UsageLimitConfig
	store   Store
	pool    PoolChecker
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New creates a limiter. store may be nil when the limiter is disabled.
func New(cfg config.UsageLimitConfig, store Store, pool PoolChecker, logger *slog.Logger, m *metrics.Metrics) *Limiter {
	return &Limiter{cfg: cfg, store: store, pool: pool, logger: logger, metrics: m}
}

// Check enforces the cap for the transaction's sender and counts the
// transaction. The sender is the first required signer that is not a pool
// signer; a transaction signed only by pool signers is not counted.
func (l *Limiter) Check(ctx context.Context, r *soltx.Resolved) error {
	if !l.cfg.Enabled || l.cfg.MaxTransactions == 0 || l.store == nil {
		return nil
	}

	sender, ok := l.sender(r)
	if !ok {
		return nil
	}
	key := usageKeyPrefix + sender.String()

	count, err := l.store.Count(ctx, key)
	if err != nil {
		return l.storeUnavailable(ctx, err)
	}
	if count >= l.cfg.MaxTransactions {
		if l.metrics != nil {
			l.metrics.RecordUsageLimitRejection()
		}
		return kerr.Newf(kerr.UsageLimitExceeded,
			"wallet %s has used %d of %d allowed transactions", sender, count, l.cfg.MaxTransactions)
	}

	if _, err := l.store.Increment(ctx, key); err != nil {
		return l.storeUnavailable(ctx, err)
	}
	return nil
}

func (l *Limiter) sender(r *soltx.Resolved) (solanago.PublicKey, bool) {
	for _, signer := range r.Signers() {
		if !l.pool.Contains(signer) {
			return signer, true
		}
	}
	return solanago.PublicKey{}, false
}

// storeUnavailable applies the configured degraded mode: fail open when
// fallback_if_unavailable is set, otherwise reject.
func (l *Limiter) storeUnavailable(ctx context.Context, err error) error {
	if l.cfg.FallbackIfUnavailable {
		l.logger.WarnContext(ctx, "usage limit store unavailable, allowing transaction",
			"error", err,
		)
		return nil
	}
	return kerr.Wrap(kerr.InternalServerError, "usage limit store unavailable", err)
}
