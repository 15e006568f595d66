package balance

import (
	"fmt"

	"oft-bridge/pkg/types"
)

// AddressBook resolves which token contract to read on a chain
type AddressBook struct {
	addresses    map[uint64]string
	defaultChain uint64
}

func NewAddressBook(token types.Token, defaultChain uint64) *AddressBook {
	addresses := make(map[uint64]string, len(token.Addresses))
	for id, addr := range token.Addresses {
		if addr != "" {
			addresses[id] = addr
		}
	}
	return &AddressBook{addresses: addresses, defaultChain: defaultChain}
}

// Resolve prefers an explicit override, then the chain's own deployment, then the
// default chain's deployment.
func (b *AddressBook) Resolve(chainID uint64, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	if addr, ok := b.addresses[chainID]; ok {
		return addr, nil
	}
	if addr, ok := b.addresses[b.defaultChain]; ok {
		return addr, nil
	}
	return "", fmt.Errorf("no token contract for chain %d and no default on chain %d", chainID, b.defaultChain)
}
