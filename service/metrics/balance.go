package metrics

import (
	"context"
	"log/slog"
	"sync"
	"time"

	solanago "github.com/gagliardetto/solana-go"
)

// BalanceSource fetches the lamport balance of an account. The chain client
// satisfies this; tests inject a stub.
type BalanceSource interface {
	GetBalance(ctx context.Context, key solanago.PublicKey) (uint64, error)
}

// TrackedSigner identifies one pool signer whose balance is published.
type TrackedSigner struct {
	Name    string
	Address solanago.PublicKey
}

// BalanceTracker polls every pool signer's native balance in the background
// and publishes it as a labeled gauge. Readings older than expiry are
// deleted so dead signers don't report stale balances.
type BalanceTracker struct {
	source   BalanceSource
	signers  []TrackedSigner
	metrics  *Metrics
	interval time.Duration
	expiry   time.Duration
	logger   *slog.Logger

	mu          sync.Mutex
	lastUpdated map[string]time.Time
}

// NewBalanceTracker creates a tracker. An expiry of zero disables stale
// gauge deletion.
func NewBalanceTracker(source BalanceSource, signers []TrackedSigner, m *Metrics, interval, expiry time.Duration, logger *slog.Logger) *BalanceTracker {
	return &BalanceTracker{
		source:      source,
		signers:     signers,
		metrics:     m,
		interval:    interval,
		expiry:      expiry,
		logger:      logger,
		lastUpdated: make(map[string]time.Time),
	}
}

// Start launches the polling loop. The returned stop function aborts the
// loop and waits for the in-flight poll to finish; call it at shutdown.
func (t *BalanceTracker) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		t.poll(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.poll(ctx)
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func (t *BalanceTracker) poll(ctx context.Context) {
	now := time.Now()
	for _, s := range t.signers {
		balance, err := t.source.GetBalance(ctx, s.Address)
		if err != nil {
			t.logger.WarnContext(ctx, "failed to fetch signer balance",
				"signer", s.Name,
				"address", s.Address.String(),
				"error", err,
			)
			continue
		}
		t.metrics.SetSignerBalance(s.Name, s.Address.String(), balance)
		t.mu.Lock()
		t.lastUpdated[s.Name] = now
		t.mu.Unlock()
	}

	if t.expiry <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.signers {
		last, ok := t.lastUpdated[s.Name]
		if ok && now.Sub(last) > t.expiry {
			t.metrics.DeleteSignerBalance(s.Name, s.Address.String())
			delete(t.lastUpdated, s.Name)
		}
	}
}
