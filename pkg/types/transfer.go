package types

import (
	"math/big"
	"strings"
)

// Chain describes a network the token is deployed on
type Chain struct {
	ID          uint64 `json:"id" mapstructure:"id"`
	EndpointID  uint32 `json:"eid" mapstructure:"eid"` // Protocol routing id, not the chain id
	Name        string `json:"name" mapstructure:"name"`
	Symbol      string `json:"symbol" mapstructure:"symbol"`     // Native currency symbol
	ExplorerURL string `json:"explorer" mapstructure:"explorer"` // Block explorer base URL
	RPCURL      string `json:"rpc_url,omitempty" mapstructure:"rpc_url"`
}

// TxURL returns the explorer link for a transaction hash on this chain
func (c Chain) TxURL(hash string) string {
	if c.ExplorerURL == "" {
		return ""
	}
	return strings.TrimRight(c.ExplorerURL, "/") + "/tx/" + hash
}

// Token is the omnichain fungible token, deployed once per chain
type Token struct {
	Symbol    string            `json:"symbol" mapstructure:"symbol"`
	Decimals  int32             `json:"decimals" mapstructure:"decimals"`
	Addresses map[uint64]string `json:"addresses" mapstructure:"addresses"`
}

// AddressOn returns the token contract on a chain, if one is deployed there
func (t Token) AddressOn(chainID uint64) (string, bool) {
	addr, ok := t.Addresses[chainID]
	if !ok || addr == "" {
		return "", false
	}
	return addr, true
}

// TransferIntent is a user's request to move tokens between chains
type TransferIntent struct {
	FromChain Chain
	ToChain   Chain
	Token     Token
	Amount    string // Human-readable decimal amount, e.g. "100" or "1.5"
	Recipient string
}

// SendParam is the OFT message payload passed to quoteSend and send
type SendParam struct {
	DstEid       uint32
	To           [32]byte
	AmountLD     *big.Int
	MinAmountLD  *big.Int
	ExtraOptions []byte
	ComposeMsg   []byte
	OftCmd       []byte
}

// MessagingFee is the fee returned by quoteSend
type MessagingFee struct {
	NativeFee  *big.Int
	LzTokenFee *big.Int
}

// FeeQuote is a viable fee together with the gas option that produced it
type FeeQuote struct {
	NativeFee        *big.Int
	ProtocolTokenFee *big.Int
	GasOption        []byte
	Gas              uint64
}

// Receipt is the subset of a transaction receipt the bridge cares about
type Receipt struct {
	BlockNumber uint64
	GasUsed     uint64
	Status      uint64 // 1 = success, 0 = reverted
}

// Succeeded reports whether the transaction executed without reverting
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == 1
}
