package transfer

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"oft-bridge/pkg/types"
)

// Validate checks an intent before any RPC call is made
func Validate(intent types.TransferIntent) error {
	if intent.FromChain.ID == intent.ToChain.ID {
		return types.Validationf("source and destination chain are both %d", intent.FromChain.ID)
	}
	if intent.ToChain.EndpointID == 0 {
		return types.Validationf("chain %s has no protocol endpoint id", intent.ToChain.Name)
	}
	if intent.FromChain.EndpointID == intent.ToChain.EndpointID {
		return types.Validationf("source and destination share endpoint id %d", intent.ToChain.EndpointID)
	}
	if _, err := ParseAmount(intent.Amount, intent.Token.Decimals); err != nil {
		return err
	}
	if addr, ok := intent.Token.AddressOn(intent.FromChain.ID); !ok || !common.IsHexAddress(addr) {
		return types.Validationf("no %s contract on %s", intent.Token.Symbol, intent.FromChain.Name)
	}
	if addr, ok := intent.Token.AddressOn(intent.ToChain.ID); !ok || !common.IsHexAddress(addr) {
		return types.Validationf("no %s contract on %s", intent.Token.Symbol, intent.ToChain.Name)
	}
	if !common.IsHexAddress(intent.Recipient) {
		return types.Validationf("invalid recipient address %q", intent.Recipient)
	}
	return nil
}

// ParseAmount converts a human amount into base units. It rejects non-positive values
// and amounts finer than the token's decimals.
func ParseAmount(amount string, decimals int32) (*big.Int, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, types.Validationf("invalid amount %q", amount)
	}
	if !d.IsPositive() {
		return nil, types.Validationf("amount must be greater than 0, got %s", amount)
	}

	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, types.Validationf("amount %s has more than %d decimal places", amount, decimals)
	}
	return scaled.BigInt(), nil
}

// PadAddress left-pads a 20-byte EVM address to the protocol's bytes32 form
func PadAddress(address string) [32]byte {
	var out [32]byte
	copy(out[:], common.LeftPadBytes(common.HexToAddress(address).Bytes(), 32))
	return out
}

// BuildSendParam assembles the OFT message payload. The minimum accepted amount equals
// the amount, i.e. zero slippage.
func BuildSendParam(intent types.TransferIntent, options []byte) (types.SendParam, error) {
	amountLD, err := ParseAmount(intent.Amount, intent.Token.Decimals)
	if err != nil {
		return types.SendParam{}, err
	}
	return types.SendParam{
		DstEid:       intent.ToChain.EndpointID,
		To:           PadAddress(intent.Recipient),
		AmountLD:     amountLD,
		MinAmountLD:  new(big.Int).Set(amountLD),
		ExtraOptions: options,
		ComposeMsg:   []byte{},
		OftCmd:       []byte{},
	}, nil
}
