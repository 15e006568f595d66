package rpc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oft-bridge/pkg/types"
)

// HTTP endpoints are dialed lazily, so no node is needed here
var offlineChain = types.Chain{ID: 97, EndpointID: 40102, Name: "bsc-testnet", RPCURL: "http://127.0.0.1:1"}

func TestDialEVM_RejectsBadPrivateKey(t *testing.T) {
	_, err := DialEVM(context.Background(), offlineChain, WithPrivateKey("not-a-key"))
	assert.ErrorContains(t, err, "invalid private key")
}

func TestDialEVM_AcceptsPrefixedKey(t *testing.T) {
	c, err := DialEVM(context.Background(), offlineChain,
		WithPrivateKey("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"))
	require.NoError(t, err)
	defer c.Close()
	assert.NotNil(t, c.privateKey)
}

func TestDialEVM_RequiresRPCURL(t *testing.T) {
	_, err := DialEVM(context.Background(), types.Chain{Name: "amoy"})
	assert.ErrorContains(t, err, "RPC URL not configured for chain amoy")
}
