// Package transfer turns a transfer intent into a fee-paid, confirmed and recorded
// cross-chain send.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"oft-bridge/pkg/balance"
	"oft-bridge/pkg/fee"
	"oft-bridge/pkg/ledger"
	"oft-bridge/pkg/metrics"
	"oft-bridge/pkg/types"
)

const (
	DefaultScanURL = "https://testnet.layerzeroscan.com"
	// MaxQuoteAge bounds how old a quote may be when handed to Submit
	MaxQuoteAge = 30 * time.Second
)

// ChainRPC is the chain access the orchestrator needs
type ChainRPC interface {
	ReadBalance(ctx context.Context, chainID uint64, contractAddress, account string) (*big.Int, error)
	QuoteSend(ctx context.Context, chainID uint64, contractAddress string, param types.SendParam, payInLzToken bool) (types.MessagingFee, error)
	Send(ctx context.Context, chainID uint64, contractAddress string, param types.SendParam, fee types.MessagingFee, refundAddress string) (string, error)
	WaitForReceipt(ctx context.Context, chainID uint64, hash string) (*types.Receipt, error)
}

// State is a step of the transfer lifecycle
type State string

const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateQuoting    State = "quoting"
	StateSubmitting State = "submitting"
	StateConfirming State = "confirming"
	StateRecorded   State = "recorded"
)

// Config holds orchestrator settings
type Config struct {
	Sender              string        // Signing account, also the refund address
	SafetyMarginPercent uint64        // Native fee padding
	ScanURL             string        // Cross-chain message explorer
	ConfirmTimeout      time.Duration // 0 waits for the receipt indefinitely
}

// Quote is a padded, submission-ready fee
type Quote struct {
	types.FeeQuote
	QuotedNativeFee *big.Int // before the safety margin
	Param           types.SendParam
	Attempts        []fee.Attempt
	QuotedAt        time.Time
}

// Result describes a finished transfer attempt
type Result struct {
	TransferID string
	Hash       string
	Quote      Quote
	Receipt    *types.Receipt
	Record     ledger.Record
}

// Orchestrator runs Validating → Quoting → Submitting → Confirming → Recorded
type Orchestrator struct {
	rpc      ChainRPC
	prober   *fee.Prober
	ledger   *ledger.Ledger
	balances *balance.Service
	cfg      Config
	logger   *zap.Logger
	onState  func(State)
	nowFn    func() time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

func WithLogger(logger *zap.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger.Named("orchestrator")
		}
	}
}

// WithStateObserver is called on every lifecycle transition
func WithStateObserver(fn func(State)) Option {
	return func(o *Orchestrator) { o.onState = fn }
}

// WithBalances enables the pre-flight balance check and post-transfer refresh
func WithBalances(balances *balance.Service) Option {
	return func(o *Orchestrator) { o.balances = balances }
}

func WithClock(nowFn func() time.Time) Option {
	return func(o *Orchestrator) { o.nowFn = nowFn }
}

func NewOrchestrator(rpc ChainRPC, prober *fee.Prober, l *ledger.Ledger, cfg Config, opts ...Option) *Orchestrator {
	if cfg.ScanURL == "" {
		cfg.ScanURL = DefaultScanURL
	}
	o := &Orchestrator{
		rpc:     rpc,
		prober:  prober,
		ledger:  l,
		cfg:     cfg,
		logger:  zap.NewNop(),
		onState: func(State) {},
		nowFn:   time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// TrackingURL links a source transaction to the cross-chain message explorer
func (o *Orchestrator) TrackingURL(hash string) string {
	if hash == "" {
		return ""
	}
	return strings.TrimRight(o.cfg.ScanURL, "/") + "/tx/" + hash
}

// Validate checks the intent shape and that a sender is configured
func (o *Orchestrator) Validate(intent types.TransferIntent) error {
	if err := Validate(intent); err != nil {
		return err
	}
	if o.cfg.Sender == "" {
		return types.Validationf("no sender account configured")
	}
	return nil
}

// Preflight checks the sender holds at least the transfer amount. It is skipped when no
// balance service is configured.
func (o *Orchestrator) Preflight(ctx context.Context, intent types.TransferIntent) error {
	if o.balances == nil {
		return nil
	}
	contract, _ := intent.Token.AddressOn(intent.FromChain.ID)
	entry, err := o.balances.Balance(ctx, intent.FromChain.ID, o.cfg.Sender, contract)
	if err != nil {
		return err
	}
	amount, err := ParseAmount(intent.Amount, intent.Token.Decimals)
	if err != nil {
		return err
	}
	if entry.Raw.Cmp(amount) < 0 {
		return types.Validationf("insufficient %s balance on %s: have %s, need %s",
			intent.Token.Symbol, intent.FromChain.Name, entry.Formatted, intent.Amount)
	}
	return nil
}

// Quote probes for a viable gas option and pads the native fee by the safety margin.
// Quotes are never cached; call it right before Submit.
func (o *Orchestrator) Quote(ctx context.Context, intent types.TransferIntent) (Quote, error) {
	if err := Validate(intent); err != nil {
		return Quote{}, err
	}
	contract, _ := intent.Token.AddressOn(intent.FromChain.ID)

	quoteFn := func(ctx context.Context, options []byte) (types.MessagingFee, error) {
		param, err := BuildSendParam(intent, options)
		if err != nil {
			return types.MessagingFee{}, err
		}
		return o.rpc.QuoteSend(ctx, intent.FromChain.ID, contract, param, false)
	}

	feeQuote, attempts, err := o.prober.FindViableQuote(ctx, intent, quoteFn)
	if err != nil {
		return Quote{Attempts: attempts}, err
	}

	param, err := BuildSendParam(intent, feeQuote.GasOption)
	if err != nil {
		return Quote{}, err
	}

	quoted := feeQuote.NativeFee
	feeQuote.NativeFee = fee.ApplySafetyMargin(quoted, o.cfg.SafetyMarginPercent)

	return Quote{
		FeeQuote:        feeQuote,
		QuotedNativeFee: quoted,
		Param:           param,
		Attempts:        attempts,
		QuotedAt:        o.nowFn(),
	}, nil
}

// Submit sends the transfer with the padded native fee as value and returns the
// transaction hash. It refuses quotes older than MaxQuoteAge.
func (o *Orchestrator) Submit(ctx context.Context, intent types.TransferIntent, q Quote) (string, error) {
	if q.NativeFee == nil {
		return "", types.Validationf("quote has no native fee")
	}
	if age := o.nowFn().Sub(q.QuotedAt); age > MaxQuoteAge {
		return "", types.Validationf("quote is %s old, re-quote before sending", age.Round(time.Second))
	}
	contract, _ := intent.Token.AddressOn(intent.FromChain.ID)

	msgFee := types.MessagingFee{
		NativeFee:  q.NativeFee,
		LzTokenFee: big.NewInt(0),
	}
	hash, err := o.rpc.Send(ctx, intent.FromChain.ID, contract, q.Param, msgFee, o.cfg.Sender)
	if err != nil {
		return "", types.WrapErr(types.ErrTransactionReverted, err)
	}
	return hash, nil
}

// Confirm waits for the receipt of hash. With a ConfirmTimeout configured, running out
// of time returns ErrConfirmationTimeout. Other lookup failures return ErrRPCTransient.
func (o *Orchestrator) Confirm(ctx context.Context, intent types.TransferIntent, hash string) (*types.Receipt, error) {
	if o.cfg.ConfirmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.ConfirmTimeout)
		defer cancel()
	}

	receipt, err := o.rpc.WaitForReceipt(ctx, intent.FromChain.ID, hash)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, types.WrapErr(types.ErrConfirmationTimeout, err)
		}
		return nil, types.WrapErr(types.ErrRPCTransient, err)
	}
	if !receipt.Succeeded() {
		return receipt, types.WrapErr(types.ErrTransactionReverted,
			fmt.Errorf("transaction %s reverted in block %d", hash, receipt.BlockNumber))
	}
	return receipt, nil
}

// Transfer runs the whole lifecycle. Validation and quoting failures return before
// anything is spent or recorded. From Submitting on, every attempt writes exactly one
// ledger record: success, failed, or pending when the outcome is unknown because
// confirmation timed out, was cancelled or the receipt lookup failed.
func (o *Orchestrator) Transfer(ctx context.Context, intent types.TransferIntent) (*Result, error) {
	res := &Result{TransferID: uuid.NewString()}
	logger := o.logger.With(
		zap.String("transfer_id", res.TransferID),
		zap.String("from", intent.FromChain.Name),
		zap.String("to", intent.ToChain.Name),
		zap.String("amount", intent.Amount))

	o.onState(StateValidating)
	if err := o.Validate(intent); err != nil {
		o.onState(StateIdle)
		return nil, err
	}
	if err := o.Preflight(ctx, intent); err != nil {
		o.onState(StateIdle)
		return nil, err
	}

	o.onState(StateQuoting)
	q, err := o.Quote(ctx, intent)
	if err != nil {
		logger.Warn("quote failed", zap.Int("attempts", len(q.Attempts)), zap.Error(err))
		o.onState(StateIdle)
		return nil, err
	}
	res.Quote = q
	logger.Info("quoted transfer",
		zap.Uint64("gas", q.Gas),
		zap.String("quoted_fee", q.QuotedNativeFee.String()),
		zap.String("padded_fee", q.NativeFee.String()))

	o.onState(StateSubmitting)
	hash, err := o.Submit(ctx, intent, q)
	if err != nil {
		logger.Error("submission failed", zap.Error(err))
		return res, o.record(ctx, res, intent, ledger.StatusFailed, err)
	}
	res.Hash = hash
	logger.Info("submitted transfer", zap.String("hash", hash))

	o.onState(StateConfirming)
	receipt, err := o.Confirm(ctx, intent, hash)
	res.Receipt = receipt
	switch {
	case errors.Is(err, types.ErrConfirmationTimeout), errors.Is(err, types.ErrRPCTransient):
		// Broadcast but unconfirmed: the transaction may still land
		logger.Warn("confirmation outcome unknown, recording as pending", zap.String("hash", hash), zap.Error(err))
		return res, o.record(ctx, res, intent, ledger.StatusPending, err)
	case err != nil:
		logger.Error("transfer failed", zap.String("hash", hash), zap.Error(err))
		return res, o.record(ctx, res, intent, ledger.StatusFailed, err)
	}

	logger.Info("transfer confirmed",
		zap.String("hash", hash),
		zap.Uint64("block", receipt.BlockNumber),
		zap.Uint64("gas_used", receipt.GasUsed))

	if err := o.record(ctx, res, intent, ledger.StatusSuccess, nil); err != nil {
		return res, err
	}
	o.refreshBalance(ctx, intent, logger)

	return res, nil
}

// record writes the attempt's single ledger entry and returns cause (or the ledger
// error, if the write failed). Writes survive cancellation of ctx.
func (o *Orchestrator) record(ctx context.Context, res *Result, intent types.TransferIntent, status ledger.Status, cause error) error {
	defer o.onState(StateRecorded)
	metrics.TransfersTotal.WithLabelValues(intent.FromChain.Name, intent.ToChain.Name, string(status)).Inc()

	rec := ledger.Record{
		Kind:                  ledger.KindBridge,
		Hash:                  res.Hash,
		From:                  o.cfg.Sender,
		To:                    intent.Recipient,
		Amount:                intent.Amount,
		TokenSymbol:           intent.Token.Symbol,
		FromChainID:           intent.FromChain.ID,
		ToChainID:             intent.ToChain.ID,
		FromChainName:         intent.FromChain.Name,
		ToChainName:           intent.ToChain.Name,
		Status:                status,
		CrossChainTrackingURL: o.TrackingURL(res.Hash),
	}
	if cause != nil {
		rec.Memo = cause.Error()
	}

	added, err := o.ledger.Add(context.WithoutCancel(ctx), rec)
	res.Record = added
	if err != nil {
		o.logger.Error("failed to record transfer", zap.String("hash", res.Hash), zap.Error(err))
		if cause != nil {
			return fmt.Errorf("%w (also failed to record: %v)", cause, err)
		}
		return fmt.Errorf("transfer %s succeeded but could not be recorded: %w", res.Hash, err)
	}
	return cause
}

func (o *Orchestrator) refreshBalance(ctx context.Context, intent types.TransferIntent, logger *zap.Logger) {
	if o.balances == nil {
		return
	}
	contract, _ := intent.Token.AddressOn(intent.FromChain.ID)
	if _, err := o.balances.Balance(ctx, intent.FromChain.ID, o.cfg.Sender, contract); err != nil {
		logger.Warn("post-transfer balance refresh failed", zap.Error(err))
	}
}
