package transfer

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oft-bridge/pkg/balance"
	"oft-bridge/pkg/fee"
	"oft-bridge/pkg/ledger"
	"oft-bridge/pkg/store"
	"oft-bridge/pkg/types"
)

const (
	testSender    = "0x1111111111111111111111111111111111111111"
	testRecipient = "0x2222222222222222222222222222222222222222"
	bscContract   = "0x0000000000000000000000000000000000000097"
	amoyContract  = "0x0000000000000000000000000000000000080002"
)

var (
	bscTestnet = types.Chain{ID: 97, EndpointID: 40102, Name: "bsc-testnet", Symbol: "tBNB"}
	amoy       = types.Chain{ID: 80002, EndpointID: 40267, Name: "amoy", Symbol: "POL"}
	testToken  = types.Token{
		Symbol:   "OFT",
		Decimals: 18,
		Addresses: map[uint64]string{
			97:    bscContract,
			80002: amoyContract,
		},
	}
)

type fakeChain struct {
	mu sync.Mutex

	minGas     uint64
	nativeFee  *big.Int
	balance    *big.Int
	sendErr    error
	receipt    *types.Receipt
	receiptErr error
	blockWait  bool

	quotedGas []uint64
	sent      []sentTx
}

type sentTx struct {
	chainID  uint64
	contract string
	param    types.SendParam
	fee      types.MessagingFee
	refund   string
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		minGas:    150_000,
		nativeFee: big.NewInt(1_000_000_000_000_000),
		balance:   mustAmount("1000"),
		receipt:   &types.Receipt{BlockNumber: 42, GasUsed: 210_000, Status: 1},
	}
}

func (f *fakeChain) ReadBalance(context.Context, uint64, string, string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return new(big.Int).Set(f.balance), nil
}

func (f *fakeChain) QuoteSend(_ context.Context, _ uint64, _ string, param types.SendParam, _ bool) (types.MessagingFee, error) {
	gas, err := fee.DecodeExecutorGas(param.ExtraOptions)
	if err != nil {
		return types.MessagingFee{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotedGas = append(f.quotedGas, gas)
	if gas < f.minGas {
		return types.MessagingFee{}, errors.New("execution reverted")
	}
	return types.MessagingFee{NativeFee: new(big.Int).Set(f.nativeFee), LzTokenFee: big.NewInt(0)}, nil
}

func (f *fakeChain) Send(_ context.Context, chainID uint64, contract string, param types.SendParam, msgFee types.MessagingFee, refund string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, sentTx{chainID: chainID, contract: contract, param: param, fee: msgFee, refund: refund})
	f.balance = new(big.Int).Sub(f.balance, param.AmountLD)
	return "0xabc123", nil
}

func (f *fakeChain) WaitForReceipt(ctx context.Context, _ uint64, _ string) (*types.Receipt, error) {
	if f.blockWait {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.receiptErr != nil {
		return nil, f.receiptErr
	}
	return f.receipt, nil
}

func mustAmount(s string) *big.Int {
	v, err := ParseAmount(s, 18)
	if err != nil {
		panic(err)
	}
	return v
}

func testIntent() types.TransferIntent {
	return types.TransferIntent{
		FromChain: bscTestnet,
		ToChain:   amoy,
		Token:     testToken,
		Amount:    "100",
		Recipient: testRecipient,
	}
}

func newTestOrchestrator(t *testing.T, chain *fakeChain, opts ...Option) (*Orchestrator, *ledger.Ledger) {
	t.Helper()
	l, err := ledger.New(context.Background(), store.NewMemoryStore())
	require.NoError(t, err)
	o := NewOrchestrator(chain, fee.NewProber(), l, Config{
		Sender:              testSender,
		SafetyMarginPercent: fee.DefaultSafetyMarginPercent,
		ScanURL:             "https://testnet.layerzeroscan.com/",
	}, opts...)
	return o, l
}

func TestTransfer_EndToEnd(t *testing.T) {
	chain := newFakeChain()
	var states []State
	o, l := newTestOrchestrator(t, chain, WithStateObserver(func(s State) { states = append(states, s) }))

	res, err := o.Transfer(context.Background(), testIntent())
	require.NoError(t, err)

	// fifth rung of the ladder is the first accepted budget
	assert.Equal(t, []uint64{20_000, 50_000, 80_000, 100_000, 150_000}, chain.quotedGas)
	assert.Equal(t, uint64(150_000), res.Quote.Gas)
	assert.Equal(t, fee.EncodeExecutorGas(150_000), res.Quote.GasOption)

	require.Len(t, chain.sent, 1)
	sent := chain.sent[0]
	assert.Equal(t, uint64(97), sent.chainID)
	assert.Equal(t, bscContract, sent.contract)
	assert.Equal(t, testSender, sent.refund)
	assert.Equal(t, big.NewInt(1_100_000_000_000_000), sent.fee.NativeFee)
	assert.Equal(t, uint32(40267), sent.param.DstEid)
	assert.Equal(t, mustAmount("100"), sent.param.AmountLD)
	assert.Equal(t, sent.param.AmountLD, sent.param.MinAmountLD)
	assert.Equal(t, PadAddress(testRecipient), sent.param.To)

	records := l.GetAll()
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, ledger.KindBridge, rec.Kind)
	assert.Equal(t, ledger.StatusSuccess, rec.Status)
	assert.Equal(t, "0xabc123", rec.Hash)
	assert.Equal(t, uint64(97), rec.FromChainID)
	assert.Equal(t, uint64(80002), rec.ToChainID)
	assert.Equal(t, "100", rec.Amount)
	assert.Equal(t, "OFT", rec.TokenSymbol)
	assert.Equal(t, "https://testnet.layerzeroscan.com/tx/0xabc123", rec.CrossChainTrackingURL)
	assert.Equal(t, rec, res.Record)

	assert.Equal(t, []State{StateValidating, StateQuoting, StateSubmitting, StateConfirming, StateRecorded}, states)
}

func TestTransfer_ValidationFailsBeforeRPC(t *testing.T) {
	chain := newFakeChain()
	o, l := newTestOrchestrator(t, chain)

	intent := testIntent()
	intent.ToChain = bscTestnet

	_, err := o.Transfer(context.Background(), intent)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))
	assert.Empty(t, chain.quotedGas)
	assert.Empty(t, chain.sent)
	assert.Equal(t, 0, l.Len())
}

func TestTransfer_NoViableRouteRecordsNothing(t *testing.T) {
	chain := newFakeChain()
	chain.minGas = 1 << 62
	o, l := newTestOrchestrator(t, chain)

	_, err := o.Transfer(context.Background(), testIntent())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNoViableRoute))
	assert.Len(t, chain.quotedGas, len(fee.DefaultGasAmounts))
	assert.Empty(t, chain.sent)
	assert.Equal(t, 0, l.Len())
}

func TestTransfer_SendErrorRecordsFailed(t *testing.T) {
	chain := newFakeChain()
	chain.sendErr = errors.New("insufficient funds for gas * price + value")
	o, l := newTestOrchestrator(t, chain)

	_, err := o.Transfer(context.Background(), testIntent())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrTransactionReverted))

	records := l.GetAll()
	require.Len(t, records, 1)
	assert.Equal(t, ledger.StatusFailed, records[0].Status)
	assert.Empty(t, records[0].Hash)
	assert.Empty(t, records[0].CrossChainTrackingURL)
	assert.Contains(t, records[0].Memo, "insufficient funds")
}

func TestTransfer_RevertRecordsFailed(t *testing.T) {
	chain := newFakeChain()
	chain.receipt = &types.Receipt{BlockNumber: 7, Status: 0}
	o, l := newTestOrchestrator(t, chain)

	res, err := o.Transfer(context.Background(), testIntent())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrTransactionReverted))
	assert.Equal(t, "0xabc123", res.Hash)

	records := l.GetAll()
	require.Len(t, records, 1)
	assert.Equal(t, ledger.StatusFailed, records[0].Status)
	assert.Equal(t, "0xabc123", records[0].Hash)
}

func TestTransfer_ReceiptErrorRecordsPending(t *testing.T) {
	chain := newFakeChain()
	chain.receiptErr = errors.New("connection reset by peer")
	o, l := newTestOrchestrator(t, chain)

	res, err := o.Transfer(context.Background(), testIntent())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrRPCTransient))

	records := l.GetAll()
	require.Len(t, records, 1)
	assert.Equal(t, ledger.StatusPending, records[0].Status)
	assert.Equal(t, res.Hash, records[0].Hash)
	assert.Contains(t, records[0].Memo, "connection reset")
}

func TestTransfer_ConfirmTimeoutRecordsPending(t *testing.T) {
	chain := newFakeChain()
	chain.blockWait = true
	o, l := newTestOrchestrator(t, chain)
	o.cfg.ConfirmTimeout = 10 * time.Millisecond

	_, err := o.Transfer(context.Background(), testIntent())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConfirmationTimeout))

	pending := l.GetPending()
	require.Len(t, pending, 1)
	assert.Equal(t, "0xabc123", pending[0].Hash)
}

func TestTransfer_CancelledWhileConfirmingStillRecords(t *testing.T) {
	chain := newFakeChain()
	chain.blockWait = true
	o, l := newTestOrchestrator(t, chain)

	ctx, cancel := context.WithCancel(context.Background())
	o.onState = func(s State) {
		if s == StateConfirming {
			cancel()
		}
	}

	_, err := o.Transfer(ctx, testIntent())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConfirmationTimeout))
	assert.Len(t, l.GetPending(), 1)
}

func TestTransfer_InsufficientBalance(t *testing.T) {
	chain := newFakeChain()
	chain.balance = mustAmount("50")
	o, l := newTestOrchestrator(t, chain, WithBalances(newBalanceService(chain)))

	_, err := o.Transfer(context.Background(), testIntent())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))
	assert.Contains(t, err.Error(), "insufficient OFT balance")
	assert.Empty(t, chain.quotedGas)
	assert.Equal(t, 0, l.Len())
}

func TestSubmit_RejectsStaleQuote(t *testing.T) {
	chain := newFakeChain()
	now := time.Now()
	o, _ := newTestOrchestrator(t, chain, WithClock(func() time.Time { return now }))

	q, err := o.Quote(context.Background(), testIntent())
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1_000_000_000_000_000), q.QuotedNativeFee)
	assert.Equal(t, big.NewInt(1_100_000_000_000_000), q.NativeFee)

	now = now.Add(MaxQuoteAge + time.Second)
	_, err = o.Submit(context.Background(), testIntent(), q)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))
	assert.Empty(t, chain.sent)
}

func TestTrackingURL(t *testing.T) {
	o := NewOrchestrator(newFakeChain(), fee.NewProber(), nil, Config{})
	assert.Equal(t, DefaultScanURL+"/tx/0xfeed", o.TrackingURL("0xfeed"))
	assert.Empty(t, o.TrackingURL(""))
}

func newBalanceService(chain *fakeChain) *balance.Service {
	book := balance.NewAddressBook(testToken, 97)
	return balance.NewService(balance.NewCache(context.Background()), book, chain, 18, nil)
}

func TestTransfer_SuccessRefreshesSourceBalance(t *testing.T) {
	chain := newFakeChain()
	svc := newBalanceService(chain)
	o, _ := newTestOrchestrator(t, chain, WithBalances(svc))

	_, err := o.Transfer(context.Background(), testIntent())
	require.NoError(t, err)

	entry, ok := svc.Cache().Get(balance.CacheKey(97, bscContract, testSender))
	require.True(t, ok)
	assert.Equal(t, mustAmount("900"), entry.Raw)
	assert.Equal(t, "900.00", entry.Formatted)
}

func TestTransfer_FailureLeavesBalanceUntouched(t *testing.T) {
	chain := newFakeChain()
	chain.receipt = &types.Receipt{BlockNumber: 7, Status: 0}
	svc := newBalanceService(chain)
	o, _ := newTestOrchestrator(t, chain, WithBalances(svc))

	_, err := o.Transfer(context.Background(), testIntent())
	require.Error(t, err)

	// the preflight read is the last one cached
	entry, ok := svc.Cache().Get(balance.CacheKey(97, bscContract, testSender))
	require.True(t, ok)
	assert.Equal(t, mustAmount("1000"), entry.Raw)
}
