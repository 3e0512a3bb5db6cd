package oracle

import (
	"context"
	"time"

	solanago "github.com/gagliardetto/solana-go"
)

// Retrying wraps a Source with bounded attempts and a fixed backoff between
// them. Context cancellation aborts the wait.
type Retrying struct {
	base     Source
	attempts int
	backoff  time.Duration
}

// NewRetrying wraps base. attempts < 1 is treated as 1.
func NewRetrying(base Source, attempts int, backoff time.Duration) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrying{base: base, attempts: attempts, backoff: backoff}
}

func (r *Retrying) Name() string { return r.base.Name() }

func (r *Retrying) GetPrices(ctx context.Context, mints []solanago.PublicKey) (map[solanago.PublicKey]Price, error) {
	var lastErr error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(r.backoff):
			}
		}
		prices, err := r.base.GetPrices(ctx, mints)
		if err == nil {
			return prices, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
