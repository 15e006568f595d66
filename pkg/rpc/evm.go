// Package rpc talks to OFT and ERC20 contracts over EVM JSON-RPC.
package rpc

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"oft-bridge/pkg/types"
)

const DefaultPollInterval = 3 * time.Second

const erc20ABI = `[{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"}]`

// Subset of the OFT v2 interface used for quoting and sending
const oftABI = `[
{"type":"function","name":"quoteSend","stateMutability":"view",
 "inputs":[
  {"name":"_sendParam","type":"tuple","components":[
   {"name":"dstEid","type":"uint32"},{"name":"to","type":"bytes32"},
   {"name":"amountLD","type":"uint256"},{"name":"minAmountLD","type":"uint256"},
   {"name":"extraOptions","type":"bytes"},{"name":"composeMsg","type":"bytes"},{"name":"oftCmd","type":"bytes"}]},
  {"name":"_payInLzToken","type":"bool"}],
 "outputs":[{"name":"msgFee","type":"tuple","components":[
  {"name":"nativeFee","type":"uint256"},{"name":"lzTokenFee","type":"uint256"}]}]},
{"type":"function","name":"send","stateMutability":"payable",
 "inputs":[
  {"name":"_sendParam","type":"tuple","components":[
   {"name":"dstEid","type":"uint32"},{"name":"to","type":"bytes32"},
   {"name":"amountLD","type":"uint256"},{"name":"minAmountLD","type":"uint256"},
   {"name":"extraOptions","type":"bytes"},{"name":"composeMsg","type":"bytes"},{"name":"oftCmd","type":"bytes"}]},
  {"name":"_fee","type":"tuple","components":[
   {"name":"nativeFee","type":"uint256"},{"name":"lzTokenFee","type":"uint256"}]},
  {"name":"_refundAddress","type":"address"}],
 "outputs":[]}
]`

var (
	parsedERC20 = mustParseABI(erc20ABI)
	parsedOFT   = mustParseABI(oftABI)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

// EVMClient is a connection to a single chain. Read-only use needs no private key.
type EVMClient struct {
	chain        types.Chain
	client       *ethclient.Client
	privateKey   *ecdsa.PrivateKey
	keyErr       error
	pollInterval time.Duration
	logger       *zap.Logger
}

// EVMOption configures an EVMClient
type EVMOption func(*EVMClient)

// WithPrivateKey enables signing. hexKey may carry a 0x prefix; an unparsable key
// makes DialEVM fail.
func WithPrivateKey(hexKey string) EVMOption {
	return func(e *EVMClient) {
		e.privateKey, e.keyErr = parsePrivateKey(hexKey)
	}
}

func WithPollInterval(d time.Duration) EVMOption {
	return func(e *EVMClient) {
		if d > 0 {
			e.pollInterval = d
		}
	}
}

func WithLogger(logger *zap.Logger) EVMOption {
	return func(e *EVMClient) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// DialEVM connects to chain's RPC endpoint
func DialEVM(ctx context.Context, chain types.Chain, opts ...EVMOption) (*EVMClient, error) {
	if chain.RPCURL == "" {
		return nil, errors.Errorf("RPC URL not configured for chain %s", chain.Name)
	}

	client, err := ethclient.DialContext(ctx, chain.RPCURL)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to connect to %s RPC endpoint", chain.Name)
	}

	e := &EVMClient{
		chain:        chain,
		client:       client,
		pollInterval: DefaultPollInterval,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.keyErr != nil {
		client.Close()
		return nil, e.keyErr
	}
	e.logger = e.logger.Named("rpc").With(zap.String("chain", chain.Name))
	return e, nil
}

func parsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid private key")
	}
	return key, nil
}

// AddressFromKey derives the account address of a hex private key
func AddressFromKey(hexKey string) (string, error) {
	key, err := parsePrivateKey(hexKey)
	if err != nil {
		return "", err
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex(), nil
}

// ReadBalance calls balanceOf(account) on an ERC20 or OFT contract
func (e *EVMClient) ReadBalance(ctx context.Context, contractAddress, account string) (*big.Int, error) {
	if !common.IsHexAddress(contractAddress) || !common.IsHexAddress(account) {
		return nil, errors.Errorf("invalid address pair %s / %s", contractAddress, account)
	}
	contract := common.HexToAddress(contractAddress)

	data, err := parsedERC20.Pack("balanceOf", common.HexToAddress(account))
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack balanceOf data")
	}

	result, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to call balanceOf")
	}
	if len(result) == 0 {
		return nil, errors.Errorf("no contract at %s on %s", contractAddress, e.chain.Name)
	}

	return new(big.Int).SetBytes(result), nil
}

// QuoteSend calls quoteSend on the OFT contract
func (e *EVMClient) QuoteSend(ctx context.Context, contractAddress string, param types.SendParam, payInLzToken bool) (types.MessagingFee, error) {
	contract := common.HexToAddress(contractAddress)

	data, err := parsedOFT.Pack("quoteSend", param, payInLzToken)
	if err != nil {
		return types.MessagingFee{}, errors.Wrap(err, "failed to pack quoteSend data")
	}

	result, err := e.client.CallContract(ctx, ethereum.CallMsg{To: &contract, Data: data}, nil)
	if err != nil {
		return types.MessagingFee{}, errors.Wrap(err, "quoteSend reverted")
	}

	out, err := parsedOFT.Unpack("quoteSend", result)
	if err != nil {
		return types.MessagingFee{}, errors.Wrap(err, "failed to unpack quoteSend result")
	}
	if len(out) != 1 {
		return types.MessagingFee{}, errors.Errorf("quoteSend returned %d values", len(out))
	}

	fee := *abi.ConvertType(out[0], new(types.MessagingFee)).(*types.MessagingFee)
	return fee, nil
}

// Send signs and broadcasts an OFT send paying fee.NativeFee as value
func (e *EVMClient) Send(ctx context.Context, contractAddress string, param types.SendParam, fee types.MessagingFee, refundAddress string) (string, error) {
	if e.privateKey == nil {
		return "", errors.New("no private key configured")
	}
	from := crypto.PubkeyToAddress(e.privateKey.PublicKey)
	contract := common.HexToAddress(contractAddress)

	lzTokenFee := fee.LzTokenFee
	if lzTokenFee == nil {
		lzTokenFee = big.NewInt(0)
	}
	data, err := parsedOFT.Pack("send", param, types.MessagingFee{NativeFee: fee.NativeFee, LzTokenFee: lzTokenFee}, common.HexToAddress(refundAddress))
	if err != nil {
		return "", errors.Wrap(err, "failed to pack send data")
	}

	nonce, err := e.client.PendingNonceAt(ctx, from)
	if err != nil {
		return "", errors.Wrap(err, "failed to get nonce")
	}

	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", errors.Wrap(err, "failed to get gas price")
	}

	estimatedGas, err := e.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &contract,
		Value: fee.NativeFee,
		Data:  data,
	})
	if err != nil {
		return "", errors.Wrap(err, "send would revert")
	}
	gasLimit := estimatedGas * 120 / 100 // Add 20% buffer

	tx := ethtypes.NewTransaction(nonce, contract, fee.NativeFee, gasLimit, gasPrice, data)
	chainID := new(big.Int).SetUint64(e.chain.ID)
	signedTx, err := ethtypes.SignTx(tx, ethtypes.NewEIP155Signer(chainID), e.privateKey)
	if err != nil {
		return "", errors.Wrap(err, "failed to sign transaction")
	}

	if err := e.client.SendTransaction(ctx, signedTx); err != nil {
		return "", errors.Wrap(err, "failed to send transaction")
	}

	e.logger.Debug("broadcast send",
		zap.String("hash", signedTx.Hash().Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas_limit", gasLimit),
		zap.String("value", fee.NativeFee.String()))

	return signedTx.Hash().Hex(), nil
}

// LookupReceipt returns the receipt of hash, or nil without error while it is not mined
func (e *EVMClient) LookupReceipt(ctx context.Context, hash string) (*types.Receipt, error) {
	receipt, err := e.client.TransactionReceipt(ctx, common.HexToHash(hash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get transaction receipt")
	}
	return &types.Receipt{
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
		Status:      receipt.Status,
	}, nil
}

// WaitForReceipt polls until hash is mined or ctx is done. Lookup errors are logged
// and retried on the next tick.
func (e *EVMClient) WaitForReceipt(ctx context.Context, hash string) (*types.Receipt, error) {
	ticker := time.NewTicker(e.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := e.LookupReceipt(ctx, hash)
		switch {
		case err != nil && ctx.Err() == nil:
			e.logger.Debug("receipt lookup failed", zap.String("hash", hash), zap.Error(err))
		case receipt != nil:
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (e *EVMClient) Close() {
	if e.client != nil {
		e.client.Close()
	}
}
