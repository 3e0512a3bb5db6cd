package cache

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brojonat/kora/service/solana"
)

type memStore struct {
	entries map[string][]byte
	getErr  error
	setErr  error
	sets    int
}

func newMemStore() *memStore {
	return &memStore{entries: map[string][]byte{}}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	val, ok := s.entries[key]
	if !ok {
		return nil, ErrMiss
	}
	return val, nil
}

func (s *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	if s.setErr != nil {
		return s.setErr
	}
	s.sets++
	s.entries[key] = value
	return nil
}

func (s *memStore) Close() error { return nil }

type countingChain struct {
	account *solana.Account
	err     error
	calls   int
}

func (c *countingChain) GetAccount(_ context.Context, key solanago.PublicKey) (*solana.Account, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	acct := *c.account
	acct.Pubkey = key
	return &acct, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAccount() *solana.Account {
	return &solana.Account{
		Lamports: 2_000_000,
		Owner:    solanago.SystemProgramID,
		Data:     []byte{1, 2, 3},
	}
}

func TestGetAccountNilStoreBypasses(t *testing.T) {
	chain := &countingChain{account: testAccount()}
	c := New(nil, chain, time.Minute, nil, discardLogger())

	key := solanago.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	acct, err := c.GetAccount(context.Background(), key, false)
	require.NoError(t, err)
	assert.Equal(t, key, acct.Pubkey)
	assert.Equal(t, 1, chain.calls)
}

func TestGetAccountMissThenHit(t *testing.T) {
	store := newMemStore()
	chain := &countingChain{account: testAccount()}
	c := New(store, chain, time.Minute, nil, discardLogger())

	key := solanago.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")

	acct, err := c.GetAccount(context.Background(), key, false)
	require.NoError(t, err)
	assert.Equal(t, 1, chain.calls)
	assert.Equal(t, 1, store.sets, "miss writes back")

	again, err := c.GetAccount(context.Background(), key, false)
	require.NoError(t, err)
	assert.Equal(t, 1, chain.calls, "second read is served from the store")
	assert.Equal(t, acct.Lamports, again.Lamports)
	assert.Equal(t, acct.Data, again.Data)
	assert.Equal(t, acct.Owner, again.Owner)
}

func TestGetAccountForceRefreshSkipsRead(t *testing.T) {
	store := newMemStore()
	chain := &countingChain{account: testAccount()}
	c := New(store, chain, time.Minute, nil, discardLogger())

	key := solanago.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")

	_, err := c.GetAccount(context.Background(), key, false)
	require.NoError(t, err)
	_, err = c.GetAccount(context.Background(), key, true)
	require.NoError(t, err)

	assert.Equal(t, 2, chain.calls, "force refresh always hits RPC")
	assert.Equal(t, 2, store.sets, "force refresh still writes back")
}

func TestGetAccountStaleEntryRefetches(t *testing.T) {
	store := newMemStore()
	chain := &countingChain{account: testAccount()}
	c := New(store, chain, 50*time.Millisecond, nil, discardLogger())

	key := solanago.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	storeKey := accountKeyPrefix + key.String()

	stale, err := json.Marshal(cachedAccount{
		Lamports: 1,
		Owner:    solanago.SystemProgramID.String(),
		CachedAt: time.Now().Add(-time.Minute),
	})
	require.NoError(t, err)
	store.entries[storeKey] = stale

	acct, err := c.GetAccount(context.Background(), key, false)
	require.NoError(t, err)
	assert.Equal(t, 1, chain.calls)
	assert.Equal(t, uint64(2_000_000), acct.Lamports, "stale entry is ignored")
}

func TestGetAccountCorruptEntryRefetches(t *testing.T) {
	store := newMemStore()
	chain := &countingChain{account: testAccount()}
	c := New(store, chain, time.Minute, nil, discardLogger())

	key := solanago.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	store.entries[accountKeyPrefix+key.String()] = []byte("{not json")

	_, err := c.GetAccount(context.Background(), key, false)
	require.NoError(t, err)
	assert.Equal(t, 1, chain.calls)
}

func TestGetAccountStoreErrorFallsThrough(t *testing.T) {
	store := newMemStore()
	store.getErr = errors.New("connection reset")
	chain := &countingChain{account: testAccount()}
	c := New(store, chain, time.Minute, nil, discardLogger())

	key := solanago.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	acct, err := c.GetAccount(context.Background(), key, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000), acct.Lamports)
}

func TestGetAccountWriteErrorIsIgnored(t *testing.T) {
	store := newMemStore()
	store.setErr = errors.New("store full")
	chain := &countingChain{account: testAccount()}
	c := New(store, chain, time.Minute, nil, discardLogger())

	key := solanago.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	_, err := c.GetAccount(context.Background(), key, false)
	assert.NoError(t, err)
}

func TestGetAccountRPCErrorPropagates(t *testing.T) {
	chain := &countingChain{err: errors.New("rpc down")}
	c := New(newMemStore(), chain, time.Minute, nil, discardLogger())

	key := solanago.MustPublicKeyFromBase58("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	_, err := c.GetAccount(context.Background(), key, false)
	assert.ErrorContains(t, err, "rpc down")
}
