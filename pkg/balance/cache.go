// Package balance caches per-(chain, contract, account) token balances with
// stale-but-available semantics.
package balance

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"oft-bridge/pkg/metrics"
	"oft-bridge/pkg/store"
	"oft-bridge/pkg/types"
)

const StorageKey = "oft-bridge:balances"

// CacheKey builds the case-normalized key for a (chain, contract, account) triple
func CacheKey(chainID uint64, contractAddress, account string) string {
	return strings.ToLower(fmt.Sprintf("%d:%s:%s", chainID, contractAddress, account))
}

// ParseKey splits a key built by CacheKey
func ParseKey(key string) (chainID uint64, contractAddress, account string, err error) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 {
		return 0, "", "", fmt.Errorf("malformed balance key %q", key)
	}
	chainID, err = strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, "", "", fmt.Errorf("malformed chain id in key %q: %w", key, err)
	}
	return chainID, parts[1], parts[2], nil
}

// Entry is a snapshot of one cached balance
type Entry struct {
	Key       string
	Formatted string
	Raw       *big.Int
	IsLoading bool
	IsError   bool
	Err       error
	UpdatedAt time.Time
}

// HasValue reports whether a balance has ever been loaded for the key
func (e Entry) HasValue() bool {
	return e.Raw != nil
}

// Fetcher performs the actual chain read for a key
type Fetcher func(ctx context.Context) (*big.Int, error)

type slot struct {
	Entry
	generation uint64
}

type persistedEntry struct {
	Raw       string `json:"raw"`
	Formatted string `json:"formatted"`
	UpdatedAt int64  `json:"updatedAt"`
}

// Cache holds balances keyed by CacheKey. Each Fetch takes a new generation for its
// key; a result is applied only if no later fetch for the same key was issued, so a
// slow early response can never overwrite a newer one.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*slot
	store   store.Store
	logger  *zap.Logger
	nowFn   func() time.Time
}

// CacheOption configures a Cache
type CacheOption func(*Cache)

// WithStore enables warm-start persistence of loaded balances
func WithStore(s store.Store) CacheOption {
	return func(c *Cache) { c.store = s }
}

func WithLogger(logger *zap.Logger) CacheOption {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger.Named("balance")
		}
	}
}

func WithClock(nowFn func() time.Time) CacheOption {
	return func(c *Cache) { c.nowFn = nowFn }
}

// NewCache creates a cache, hydrating persisted balances when a store is configured.
// A corrupt warm-start value is logged and ignored; it is only a cache.
func NewCache(ctx context.Context, opts ...CacheOption) *Cache {
	c := &Cache{
		entries: make(map[string]*slot),
		logger:  zap.NewNop(),
		nowFn:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.store != nil {
		if err := c.hydrate(ctx); err != nil {
			c.logger.Warn("ignoring persisted balances", zap.Error(err))
		}
	}

	return c
}

func (c *Cache) hydrate(ctx context.Context) error {
	raw, found, err := c.store.Get(ctx, StorageKey)
	if err != nil || !found {
		return err
	}

	var persisted map[string]persistedEntry
	if err := json.Unmarshal([]byte(raw), &persisted); err != nil {
		return err
	}

	for key, p := range persisted {
		value, ok := new(big.Int).SetString(p.Raw, 10)
		if !ok {
			continue
		}
		c.entries[key] = &slot{Entry: Entry{
			Key:       key,
			Formatted: p.Formatted,
			Raw:       value,
			UpdatedAt: time.UnixMilli(p.UpdatedAt),
		}}
	}
	return nil
}

// Fetch refreshes key with fetch. On failure the entry is flagged IsError and keeps its
// previous value; the returned error wraps types.ErrRPCTransient. A result superseded
// by a later Fetch for the same key is returned to the caller but not cached.
func (c *Cache) Fetch(ctx context.Context, key string, decimals int32, fetch Fetcher) (Entry, error) {
	key = strings.ToLower(key)

	c.mu.Lock()
	s, ok := c.entries[key]
	if !ok {
		s = &slot{Entry: Entry{Key: key}}
		c.entries[key] = s
	}
	s.generation++
	generation := s.generation
	s.IsLoading = true
	s.IsError = false
	s.Err = nil
	c.mu.Unlock()

	raw, err := fetch(ctx)

	c.mu.Lock()
	if current, ok := c.entries[key]; !ok || current != s || s.generation != generation {
		c.mu.Unlock()
		metrics.BalanceFetchesTotal.WithLabelValues("superseded").Inc()
		c.logger.Debug("discarding superseded balance fetch", zap.String("key", key), zap.Uint64("generation", generation))
		if err != nil {
			return Entry{Key: key}, types.WrapErr(types.ErrRPCTransient, err)
		}
		return Entry{Key: key, Raw: raw, Formatted: FormatUnits(raw, decimals), UpdatedAt: c.nowFn()}, nil
	}

	if err == nil && raw == nil {
		err = fmt.Errorf("empty balance for %s", key)
	}
	if err != nil {
		s.IsLoading = false
		s.IsError = true
		s.Err = err
		snapshot := s.snapshot()
		c.mu.Unlock()

		metrics.BalanceFetchesTotal.WithLabelValues("error").Inc()
		c.logger.Warn("balance fetch failed", zap.String("key", key), zap.Error(err))
		return snapshot, types.WrapErr(types.ErrRPCTransient, err)
	}

	s.Raw = new(big.Int).Set(raw)
	s.Formatted = FormatUnits(raw, decimals)
	s.IsLoading = false
	s.UpdatedAt = c.nowFn()
	snapshot := s.snapshot()
	persisted := c.persistableLocked()
	c.mu.Unlock()

	metrics.BalanceFetchesTotal.WithLabelValues("ok").Inc()
	c.persist(ctx, persisted)

	return snapshot, nil
}

// Get returns the cached entry for key
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.entries[strings.ToLower(key)]
	if !ok {
		return Entry{}, false
	}
	return s.snapshot(), true
}

// Keys returns every cached key
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	return keys
}

// Invalidate drops one key; an in-flight fetch for it will not be applied
func (c *Cache) Invalidate(ctx context.Context, key string) {
	c.mu.Lock()
	delete(c.entries, strings.ToLower(key))
	persisted := c.persistableLocked()
	c.mu.Unlock()

	c.persist(ctx, persisted)
}

// Clear drops every entry and the persisted warm-start copy
func (c *Cache) Clear(ctx context.Context) {
	c.mu.Lock()
	c.entries = make(map[string]*slot)
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Remove(ctx, StorageKey); err != nil {
			c.logger.Warn("failed to clear persisted balances", zap.Error(err))
		}
	}
}

func (s *slot) snapshot() Entry {
	e := s.Entry
	if e.Raw != nil {
		e.Raw = new(big.Int).Set(e.Raw)
	}
	return e
}

// persistableLocked must be called with c.mu held
func (c *Cache) persistableLocked() map[string]persistedEntry {
	if c.store == nil {
		return nil
	}
	out := make(map[string]persistedEntry, len(c.entries))
	for k, s := range c.entries {
		if s.Raw == nil {
			continue
		}
		out[k] = persistedEntry{
			Raw:       s.Raw.String(),
			Formatted: s.Formatted,
			UpdatedAt: s.UpdatedAt.UnixMilli(),
		}
	}
	return out
}

func (c *Cache) persist(ctx context.Context, persisted map[string]persistedEntry) {
	if c.store == nil {
		return
	}
	data, err := json.Marshal(persisted)
	if err != nil {
		c.logger.Warn("failed to marshal balances", zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, StorageKey, string(data)); err != nil {
		c.logger.Warn("failed to persist balances", zap.Error(err))
	}
}
