package rpc

import (
	"context"
	"math/big"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"oft-bridge/pkg/types"
)

// Client is a per-chain connection
type Client interface {
	ReadBalance(ctx context.Context, contractAddress, account string) (*big.Int, error)
	QuoteSend(ctx context.Context, contractAddress string, param types.SendParam, payInLzToken bool) (types.MessagingFee, error)
	Send(ctx context.Context, contractAddress string, param types.SendParam, fee types.MessagingFee, refundAddress string) (string, error)
	LookupReceipt(ctx context.Context, hash string) (*types.Receipt, error)
	WaitForReceipt(ctx context.Context, hash string) (*types.Receipt, error)
	Close()
}

// Dialer opens a Client for chain
type Dialer func(ctx context.Context, chain types.Chain) (Client, error)

// EVMDialer dials EVMClients sharing opts
func EVMDialer(opts ...EVMOption) Dialer {
	return func(ctx context.Context, chain types.Chain) (Client, error) {
		return DialEVM(ctx, chain, opts...)
	}
}

// Router dispatches calls to the client of the requested chain, dialing lazily
type Router struct {
	mu      sync.Mutex
	chains  map[uint64]types.Chain
	clients map[uint64]Client
	dial    Dialer
	logger  *zap.Logger
}

func NewRouter(chains []types.Chain, dial Dialer, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	byID := make(map[uint64]types.Chain, len(chains))
	for _, c := range chains {
		byID[c.ID] = c
	}
	return &Router{
		chains:  byID,
		clients: make(map[uint64]Client),
		dial:    dial,
		logger:  logger.Named("router"),
	}
}

// Chains returns the configured chains ordered by id
func (r *Router) Chains() []types.Chain {
	out := make([]types.Chain, 0, len(r.chains))
	for _, c := range r.chains {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Client returns the connection for chainID, dialing it on first use
func (r *Router) Client(ctx context.Context, chainID uint64) (Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[chainID]; ok {
		return c, nil
	}
	chain, ok := r.chains[chainID]
	if !ok {
		return nil, errors.Errorf("chain %d not configured", chainID)
	}

	c, err := r.dial(ctx, chain)
	if err != nil {
		return nil, err
	}
	r.clients[chainID] = c
	r.logger.Debug("dialed chain", zap.String("chain", chain.Name), zap.Uint64("chain_id", chainID))
	return c, nil
}

func (r *Router) ReadBalance(ctx context.Context, chainID uint64, contractAddress, account string) (*big.Int, error) {
	c, err := r.Client(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return c.ReadBalance(ctx, contractAddress, account)
}

func (r *Router) QuoteSend(ctx context.Context, chainID uint64, contractAddress string, param types.SendParam, payInLzToken bool) (types.MessagingFee, error) {
	c, err := r.Client(ctx, chainID)
	if err != nil {
		return types.MessagingFee{}, err
	}
	return c.QuoteSend(ctx, contractAddress, param, payInLzToken)
}

func (r *Router) Send(ctx context.Context, chainID uint64, contractAddress string, param types.SendParam, fee types.MessagingFee, refundAddress string) (string, error) {
	c, err := r.Client(ctx, chainID)
	if err != nil {
		return "", err
	}
	return c.Send(ctx, contractAddress, param, fee, refundAddress)
}

func (r *Router) LookupReceipt(ctx context.Context, chainID uint64, hash string) (*types.Receipt, error) {
	c, err := r.Client(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return c.LookupReceipt(ctx, hash)
}

func (r *Router) WaitForReceipt(ctx context.Context, chainID uint64, hash string) (*types.Receipt, error) {
	c, err := r.Client(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return c.WaitForReceipt(ctx, hash)
}

// Close closes every dialed client
func (r *Router) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clients {
		c.Close()
		delete(r.clients, id)
	}
}
