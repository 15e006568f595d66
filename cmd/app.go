package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"oft-bridge/config"
	"oft-bridge/pkg/balance"
	"oft-bridge/pkg/fee"
	"oft-bridge/pkg/ledger"
	"oft-bridge/pkg/rpc"
	"oft-bridge/pkg/store"
	"oft-bridge/pkg/transfer"
	"oft-bridge/pkg/types"
)

// app wires the services a command needs from configuration
type app struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    store.Store
	ledger   *ledger.Ledger
	router   *rpc.Router
	balances *balance.Service
	prober   *fee.Prober
	sender   string
	closers  []func()
}

func newApp(cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()
	cfg := loadConfig()
	logger := newLogger(cmd, cfg.LogLevel)

	a := &app{cfg: cfg, logger: logger}

	s, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.store = s
	if rs, ok := s.(*store.RedisStore); ok {
		a.closers = append(a.closers, func() { _ = rs.Close() })
	}

	a.ledger, err = ledger.New(ctx, s, ledger.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	evmOpts := []rpc.EVMOption{rpc.WithPollInterval(cfg.ReceiptPollInterval), rpc.WithLogger(logger)}
	if cfg.PrivateKey != "" {
		a.sender, err = rpc.AddressFromKey(cfg.PrivateKey)
		if err != nil {
			return nil, err
		}
		evmOpts = append(evmOpts, rpc.WithPrivateKey(cfg.PrivateKey))
	}
	a.router = rpc.NewRouter(cfg.Chains, rpc.EVMDialer(evmOpts...), logger)
	a.closers = append(a.closers, a.router.Close)

	cache := balance.NewCache(ctx, balance.WithStore(s), balance.WithLogger(logger))
	book := balance.NewAddressBook(cfg.Token, cfg.DefaultChain)
	a.balances = balance.NewService(cache, book, a.router, cfg.Token.Decimals, logger)

	proberOpts := []fee.Option{fee.WithLogger(logger)}
	if cfg.ProbeRPS > 0 {
		proberOpts = append(proberOpts, fee.WithRateLimit(cfg.ProbeRPS))
	}
	a.prober = fee.NewProber(proberOpts...)

	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.Store {
	case config.StoreRedis:
		return store.NewRedisStore(ctx, cfg.RedisURL)
	default:
		return store.NewFileStore(cfg.LedgerPath)
	}
}

func (a *app) orchestrator(opts ...transfer.Option) *transfer.Orchestrator {
	opts = append([]transfer.Option{
		transfer.WithLogger(a.logger),
		transfer.WithBalances(a.balances),
	}, opts...)
	return transfer.NewOrchestrator(a.router, a.prober, a.ledger, transfer.Config{
		Sender:              a.sender,
		SafetyMarginPercent: a.cfg.SafetyMarginPercent,
		ScanURL:             a.cfg.ScanURL,
		ConfirmTimeout:      a.cfg.ConfirmTimeout,
	}, opts...)
}

// intent builds a transfer intent from chain names or ids. An empty from means the
// default chain; an empty recipient means the sender.
func (a *app) intent(amount, token, from, to, recipient string) (types.TransferIntent, error) {
	if token != "" && !strings.EqualFold(token, a.cfg.Token.Symbol) {
		return types.TransferIntent{}, fmt.Errorf("unknown token %s, this bridge moves %s", token, a.cfg.Token.Symbol)
	}

	fromChain, ok := a.cfg.ChainByID(a.cfg.DefaultChain)
	if from != "" {
		var err error
		if fromChain, err = a.cfg.ResolveChain(from); err != nil {
			return types.TransferIntent{}, err
		}
	} else if !ok {
		return types.TransferIntent{}, fmt.Errorf("default chain %d is not configured", a.cfg.DefaultChain)
	}

	toChain, err := a.cfg.ResolveChain(to)
	if err != nil {
		return types.TransferIntent{}, err
	}

	if recipient == "" {
		recipient = a.sender
	}

	return types.TransferIntent{
		FromChain: fromChain,
		ToChain:   toChain,
		Token:     a.cfg.Token,
		Amount:    amount,
		Recipient: recipient,
	}, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	_ = a.logger.Sync()
}

// mustApp is newApp for Run handlers
func mustApp(cmd *cobra.Command) *app {
	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	return a
}
