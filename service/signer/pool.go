package signer

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	solanago "github.com/gagliardetto/solana-go"

	"github.com/brojonat/kora/service/config"
	"github.com/brojonat/kora/service/kerr"
	"github.com/brojonat/kora/service/metrics"
)

// Record is a pool member. Records are copied by value; the last-used stamp
// lives behind a shared pointer so every copy observes the same value.
type Record struct {
	Name   string
	Signer Signer
	Weight int

	lastUsed *atomic.Int64
}

// LastUsed returns the unix seconds of the record's most recent selection,
// zero if it has never been selected.
func (r Record) LastUsed() int64 {
	if r.lastUsed == nil {
		return 0
	}
	return r.lastUsed.Load()
}

func (r Record) touch() {
	if r.lastUsed != nil {
		r.lastUsed.Store(time.Now().Unix())
	}
}

// Pool selects a signer per request according to the configured strategy.
// Selection is safe for concurrent use.
type Pool struct {
	strategy string
	records  []Record
	metrics  *metrics.Metrics

	next uint64 // round robin cursor

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPool builds a pool over the given records. rng may be nil, in which
// case selection for random and weighted strategies uses the global source.
func NewPool(strategy string, records []Record, m *metrics.Metrics) (*Pool, error) {
	if len(records) == 0 {
		return nil, kerr.New(kerr.ConfigError, "signer pool needs at least one signer")
	}
	switch strategy {
	case config.StrategyRoundRobin, config.StrategyRandom, config.StrategyWeighted:
	default:
		return nil, kerr.Newf(kerr.ConfigError, "unknown signer selection strategy %q", strategy)
	}
	if strategy == config.StrategyWeighted {
		for _, r := range records {
			if r.Weight <= 0 {
				return nil, kerr.Newf(kerr.ConfigError, "signer %s needs a positive weight", r.Name)
			}
		}
	}
	for i := range records {
		records[i].lastUsed = new(atomic.Int64)
	}
	return &Pool{strategy: strategy, records: records, metrics: m}, nil
}

// NewPoolFromConfig instantiates every configured signer and builds the pool.
func NewPoolFromConfig(cfg *config.SignerPoolConfig, m *metrics.Metrics) (*Pool, error) {
	records := make([]Record, 0, len(cfg.Signers))
	for _, entry := range cfg.Signers {
		var (
			s   Signer
			err error
		)
		switch entry.Type {
		case "memory":
			s, err = NewMemoryFromEnv(entry.PrivateKeyEnv)
		default:
			err = kerr.Newf(kerr.ConfigError, "unsupported signer type %q", entry.Type)
		}
		if err != nil {
			return nil, kerr.Wrap(kerr.ConfigError, "failed to initialize signer "+entry.Name, err)
		}
		records = append(records, Record{Name: entry.Name, Signer: s, Weight: int(entry.Weight)})
	}
	return NewPool(cfg.SignerPool.Strategy, records, m)
}

// Strategy returns the configured selection strategy name.
func (p *Pool) Strategy() string { return p.strategy }

// Records returns the pool members in configuration order.
func (p *Pool) Records() []Record { return p.records }

// Next selects a signer according to the pool strategy.
func (p *Pool) Next() Record {
	var rec Record
	switch p.strategy {
	case config.StrategyRandom:
		rec = p.records[p.intn(len(p.records))]
	case config.StrategyWeighted:
		rec = p.pickWeighted()
	default:
		n := atomic.AddUint64(&p.next, 1) - 1
		rec = p.records[n%uint64(len(p.records))]
	}
	rec.touch()
	if p.metrics != nil {
		p.metrics.RecordSignerSelection(rec.Name, p.strategy)
	}
	return rec
}

// GetByPubkey returns the pool signer with the given base58 public key.
// Unparseable keys and keys outside the pool both fail validation so a
// client cannot probe for arbitrary signers.
func (p *Pool) GetByPubkey(pubkey string) (Record, error) {
	key, err := solanago.PublicKeyFromBase58(pubkey)
	if err != nil {
		return Record{}, kerr.Wrap(kerr.ValidationError, "invalid signer key", err)
	}
	for _, r := range p.records {
		if r.Signer.Pubkey().Equals(key) {
			// Pinned selection is still a use.
			r.touch()
			return r, nil
		}
	}
	return Record{}, kerr.Newf(kerr.ValidationError, "signer %s is not in the pool", pubkey)
}

// Contains reports whether the key belongs to a pool signer.
func (p *Pool) Contains(key solanago.PublicKey) bool {
	for _, r := range p.records {
		if r.Signer.Pubkey().Equals(key) {
			return true
		}
	}
	return false
}

func (p *Pool) pickWeighted() Record {
	total := 0
	for _, r := range p.records {
		total += r.Weight
	}
	target := p.intn(total)
	for _, r := range p.records {
		target -= r.Weight
		if target < 0 {
			return r
		}
	}
	return p.records[len(p.records)-1]
}

func (p *Pool) intn(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rng != nil {
		return p.rng.Intn(n)
	}
	return rand.Intn(n)
}
