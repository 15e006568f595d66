package ledger

import "strings"

// Kind distinguishes same-chain transfers from cross-chain bridge sends
type Kind string

const (
	KindTransfer Kind = "transfer"
	KindBridge   Kind = "bridge"
)

// Status is the lifecycle state of a recorded transaction
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// Record is one persisted transaction. Field names are the persisted JSON shape.
type Record struct {
	ID                    int64  `json:"id"`
	Kind                  Kind   `json:"kind"`
	Hash                  string `json:"hash"`
	From                  string `json:"from"`
	To                    string `json:"to"`
	Amount                string `json:"amount"`
	TokenSymbol           string `json:"tokenSymbol"`
	FromChainID           uint64 `json:"fromChainId"`
	ToChainID             uint64 `json:"toChainId,omitempty"`
	FromChainName         string `json:"fromChainName,omitempty"`
	ToChainName           string `json:"toChainName,omitempty"`
	TimestampMs           int64  `json:"timestampMs"`
	Status                Status `json:"status"`
	Memo                  string `json:"memo,omitempty"`
	CrossChainTrackingURL string `json:"crossChainTrackingUrl,omitempty"`
}

// IsPending returns true if the record has not reached a terminal status
func (r *Record) IsPending() bool {
	return r.Status == StatusPending
}

// Involves returns true if address is the sender or the recipient (case-insensitive)
func (r *Record) Involves(address string) bool {
	return strings.EqualFold(r.From, address) || strings.EqualFold(r.To, address)
}

// OnChain returns true if the record left from or arrived on chainID
func (r *Record) OnChain(chainID uint64) bool {
	return r.FromChainID == chainID || (r.ToChainID != 0 && r.ToChainID == chainID)
}
