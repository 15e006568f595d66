package balance

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oft-bridge/pkg/store"
	"oft-bridge/pkg/types"
)

const (
	testContract = "0xAbCdEf0000000000000000000000000000000001"
	testAccount  = "0xDEF0000000000000000000000000000000000002"
)

func constFetcher(v int64) Fetcher {
	return func(context.Context) (*big.Int, error) { return big.NewInt(v), nil }
}

func TestCacheKey_CaseInsensitive(t *testing.T) {
	upper := CacheKey(97, "0xABC123", "0xDEF456")
	lower := CacheKey(97, "0xabc123", "0xdef456")
	assert.Equal(t, lower, upper)
	assert.Equal(t, "97:0xabc123:0xdef456", upper)

	chainID, contract, account, err := ParseKey(upper)
	require.NoError(t, err)
	assert.Equal(t, uint64(97), chainID)
	assert.Equal(t, "0xabc123", contract)
	assert.Equal(t, "0xdef456", account)

	_, _, _, err = ParseKey("97:only-two")
	assert.Error(t, err)
	_, _, _, err = ParseKey("bsc:0xabc:0xdef")
	assert.Error(t, err)
}

func TestCache_FetchStoresFormattedAndRaw(t *testing.T) {
	c := NewCache(context.Background())
	key := CacheKey(97, testContract, testAccount)

	entry, err := c.Fetch(context.Background(), key, 18, func(context.Context) (*big.Int, error) {
		return mustBig("1234560000000000000000"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "1,234.56", entry.Formatted)
	assert.Equal(t, mustBig("1234560000000000000000"), entry.Raw)
	assert.False(t, entry.IsLoading)
	assert.False(t, entry.IsError)

	// Mixed-case key hits the same entry
	got, ok := c.Get(CacheKey(97, testContract, testAccount))
	require.True(t, ok)
	assert.Equal(t, entry.Formatted, got.Formatted)
	assert.Len(t, c.Keys(), 1)
}

func TestCache_LoadingFlagDuringFetch(t *testing.T) {
	c := NewCache(context.Background())
	key := CacheKey(97, testContract, testAccount)

	_, err := c.Fetch(context.Background(), key, 0, func(context.Context) (*big.Int, error) {
		e, ok := c.Get(key)
		require.True(t, ok)
		assert.True(t, e.IsLoading)
		assert.False(t, e.IsError)
		return big.NewInt(1), nil
	})
	require.NoError(t, err)
}

func TestCache_FailureKeepsPreviousValue(t *testing.T) {
	c := NewCache(context.Background())
	key := CacheKey(97, testContract, testAccount)

	_, err := c.Fetch(context.Background(), key, 0, constFetcher(42))
	require.NoError(t, err)

	rpcErr := errors.New("connection refused")
	entry, err := c.Fetch(context.Background(), key, 0, func(context.Context) (*big.Int, error) {
		return nil, rpcErr
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrRPCTransient))
	assert.True(t, errors.Is(err, rpcErr))
	assert.True(t, entry.IsError)
	assert.False(t, entry.IsLoading)
	assert.Equal(t, big.NewInt(42), entry.Raw)
	assert.Equal(t, "42.00", entry.Formatted)

	// A later success clears the error flag
	entry, err = c.Fetch(context.Background(), key, 0, constFetcher(43))
	require.NoError(t, err)
	assert.False(t, entry.IsError)
	assert.Nil(t, entry.Err)
}

func TestCache_NilBalanceIsAnError(t *testing.T) {
	c := NewCache(context.Background())
	_, err := c.Fetch(context.Background(), "k", 0, func(context.Context) (*big.Int, error) { return nil, nil })
	assert.True(t, errors.Is(err, types.ErrRPCTransient))
}

func TestCache_StaleResponseIsDiscarded(t *testing.T) {
	c := NewCache(context.Background())
	key := CacheKey(97, testContract, testAccount)

	slowStarted := make(chan struct{})
	releaseSlow := make(chan struct{})
	slowDone := make(chan Entry, 1)

	go func() {
		entry, err := c.Fetch(context.Background(), key, 0, func(context.Context) (*big.Int, error) {
			close(slowStarted)
			<-releaseSlow
			return big.NewInt(100), nil
		})
		assert.NoError(t, err)
		slowDone <- entry
	}()

	<-slowStarted
	fresh, err := c.Fetch(context.Background(), key, 0, constFetcher(200))
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(200), fresh.Raw)

	close(releaseSlow)
	select {
	case stale := <-slowDone:
		assert.Equal(t, big.NewInt(100), stale.Raw, "caller still gets what it fetched")
	case <-time.After(5 * time.Second):
		t.Fatal("slow fetch did not finish")
	}

	cached, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, big.NewInt(200), cached.Raw, "older response must not overwrite newer")
	assert.False(t, cached.IsLoading)
}

func TestCache_OlderFetchDoesNotClearNewerLoading(t *testing.T) {
	c := NewCache(context.Background())
	key := "1:0xa:0xb"

	newerStarted := make(chan struct{})
	releaseNewer := make(chan struct{})
	newerDone := make(chan struct{})

	olderEntered := make(chan struct{})
	releaseOlder := make(chan struct{})
	olderDone := make(chan struct{})

	go func() {
		_, _ = c.Fetch(context.Background(), key, 0, func(context.Context) (*big.Int, error) {
			close(olderEntered)
			<-releaseOlder
			return big.NewInt(1), nil
		})
		close(olderDone)
	}()
	<-olderEntered

	go func() {
		_, _ = c.Fetch(context.Background(), key, 0, func(context.Context) (*big.Int, error) {
			close(newerStarted)
			<-releaseNewer
			return big.NewInt(2), nil
		})
		close(newerDone)
	}()
	<-newerStarted

	close(releaseOlder)
	<-olderDone

	e, _ := c.Get(key)
	assert.True(t, e.IsLoading, "newer fetch is still in flight")
	assert.Nil(t, e.Raw)

	close(releaseNewer)
	<-newerDone

	e, _ = c.Get(key)
	assert.False(t, e.IsLoading)
	assert.Equal(t, big.NewInt(2), e.Raw)
}

func TestCache_InvalidateDropsInFlightResult(t *testing.T) {
	c := NewCache(context.Background())
	key := "1:0xa:0xb"

	_, err := c.Fetch(context.Background(), key, 0, func(context.Context) (*big.Int, error) {
		c.Invalidate(context.Background(), key)
		return big.NewInt(5), nil
	})
	require.NoError(t, err)

	_, ok := c.Get(key)
	assert.False(t, ok)
}

func TestCache_SnapshotIsACopy(t *testing.T) {
	c := NewCache(context.Background())
	entry, err := c.Fetch(context.Background(), "k", 0, constFetcher(10))
	require.NoError(t, err)

	entry.Raw.SetInt64(99)

	got, _ := c.Get("k")
	assert.Equal(t, big.NewInt(10), got.Raw)
}

func TestCache_WarmStart(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	now := time.UnixMilli(1_700_000_000_000)

	c := NewCache(ctx, WithStore(s), WithClock(func() time.Time { return now }))
	key := CacheKey(80002, testContract, testAccount)
	_, err := c.Fetch(ctx, key, 18, func(context.Context) (*big.Int, error) {
		return mustBig("5000000000000000000"), nil
	})
	require.NoError(t, err)

	warm := NewCache(ctx, WithStore(s))
	e, ok := warm.Get(key)
	require.True(t, ok)
	assert.Equal(t, "5.00", e.Formatted)
	assert.Equal(t, mustBig("5000000000000000000"), e.Raw)
	assert.Equal(t, now.UnixMilli(), e.UpdatedAt.UnixMilli())
	assert.False(t, e.IsLoading)

	warm.Clear(ctx)
	assert.Empty(t, warm.Keys())
	_, found, _ := s.Get(ctx, StorageKey)
	assert.False(t, found)
}

func TestCache_CorruptWarmStartIgnored(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	require.NoError(t, s.Set(ctx, StorageKey, "{broken"))

	c := NewCache(ctx, WithStore(s))
	assert.Empty(t, c.Keys())
}

func TestAddressBook_Resolve(t *testing.T) {
	book := NewAddressBook(types.Token{
		Symbol:   "OFT",
		Decimals: 18,
		Addresses: map[uint64]string{
			97:    "0x97",
			80002: "0x80002",
			1:     "",
		},
	}, 97)

	addr, err := book.Resolve(80002, "")
	require.NoError(t, err)
	assert.Equal(t, "0x80002", addr)

	addr, err = book.Resolve(80002, "0xoverride")
	require.NoError(t, err)
	assert.Equal(t, "0xoverride", addr)

	addr, err = book.Resolve(1, "")
	require.NoError(t, err)
	assert.Equal(t, "0x97", addr, "empty deployment falls back to default chain")

	addr, err = book.Resolve(421614, "")
	require.NoError(t, err)
	assert.Equal(t, "0x97", addr)

	empty := NewAddressBook(types.Token{}, 97)
	_, err = empty.Resolve(97, "")
	assert.Error(t, err)
}
