package balance

import (
	"context"
	"math/big"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ConnectionChanged is published by the wallet connection when the active account or
// chain changes. An empty Account means the wallet disconnected.
type ConnectionChanged struct {
	Account string
	ChainID uint64
}

// Reader performs raw balance reads against a chain
type Reader interface {
	ReadBalance(ctx context.Context, chainID uint64, contractAddress, account string) (*big.Int, error)
}

// Service ties the cache to address resolution and a chain reader
type Service struct {
	cache    *Cache
	book     *AddressBook
	reader   Reader
	decimals int32
	logger   *zap.Logger
}

func NewService(cache *Cache, book *AddressBook, reader Reader, decimals int32, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		cache:    cache,
		book:     book,
		reader:   reader,
		decimals: decimals,
		logger:   logger.Named("balance"),
	}
}

// Cache exposes the underlying cache
func (s *Service) Cache() *Cache {
	return s.cache
}

// Balance fetches account's token balance on chainID. override, when set, replaces the
// address-book contract.
func (s *Service) Balance(ctx context.Context, chainID uint64, account, override string) (Entry, error) {
	contract, err := s.book.Resolve(chainID, override)
	if err != nil {
		return Entry{}, err
	}
	return s.fetch(ctx, chainID, contract, account)
}

func (s *Service) fetch(ctx context.Context, chainID uint64, contract, account string) (Entry, error) {
	key := CacheKey(chainID, contract, account)
	return s.cache.Fetch(ctx, key, s.decimals, func(ctx context.Context) (*big.Int, error) {
		return s.reader.ReadBalance(ctx, chainID, contract, account)
	})
}

// HandleConnectionChanged drops balances of other accounts and refetches every key
// the new account is known under, plus its key on the newly selected chain.
func (s *Service) HandleConnectionChanged(ctx context.Context, ev ConnectionChanged) error {
	account := strings.ToLower(ev.Account)
	if account == "" {
		s.logger.Debug("wallet disconnected, clearing balances")
		s.cache.Clear(ctx)
		return nil
	}

	type target struct {
		chainID  uint64
		contract string
	}
	targets := make(map[string]target)

	for _, key := range s.cache.Keys() {
		chainID, contract, keyAccount, err := ParseKey(key)
		if err != nil || keyAccount != account {
			s.cache.Invalidate(ctx, key)
			continue
		}
		targets[key] = target{chainID: chainID, contract: contract}
	}

	if contract, err := s.book.Resolve(ev.ChainID, ""); err == nil {
		targets[CacheKey(ev.ChainID, contract, account)] = target{chainID: ev.ChainID, contract: contract}
	} else {
		s.logger.Warn("no token contract for connected chain", zap.Uint64("chain_id", ev.ChainID), zap.Error(err))
	}

	var g errgroup.Group
	for _, t := range targets {
		g.Go(func() error {
			_, err := s.fetch(ctx, t.chainID, t.contract, account)
			return err
		})
	}
	return g.Wait()
}

// Watch consumes connection events until ctx is done or events is closed. Refetch
// failures are logged; the cache keeps serving the previous values.
func (s *Service) Watch(ctx context.Context, events <-chan ConnectionChanged) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := s.HandleConnectionChanged(ctx, ev); err != nil {
				s.logger.Warn("balance refresh after connection change failed",
					zap.String("account", ev.Account),
					zap.Uint64("chain_id", ev.ChainID),
					zap.Error(err))
			}
		}
	}
}
