package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"oft-bridge/pkg/types"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreFile, cfg.Store)
	assert.Equal(t, uint64(10), cfg.SafetyMarginPercent)
	assert.Equal(t, uint64(97), cfg.DefaultChain)
	assert.Equal(t, 3*time.Second, cfg.ReceiptPollInterval)
	assert.Equal(t, "OFT", cfg.Token.Symbol)
	assert.Equal(t, int32(18), cfg.Token.Decimals)
	assert.Len(t, cfg.Chains, len(DefaultChains))
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OFT_BRIDGE_DEFAULT_CHAIN", "80002")
	t.Setenv("OFT_BRIDGE_CONFIRM_TIMEOUT", "2m")
	t.Setenv("OFT_BRIDGE_PRIVATE_KEY", "0xabc")
	t.Setenv("OFT_BRIDGE_METRICS_ADDR", "127.0.0.1:9100")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(80002), cfg.DefaultChain)
	assert.Equal(t, 2*time.Minute, cfg.ConfirmTimeout)
	assert.Equal(t, "127.0.0.1:9100", cfg.MetricsAddr)
	assert.NoError(t, cfg.RequireSigner())
}

func TestLoad_ConfigFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	yaml := `
store: redis
token:
  symbol: MYOFT
  decimals: 6
  addresses:
    97: "0x0000000000000000000000000000000000000097"
chains:
  - id: 97
    eid: 40102
    name: bsc-testnet
    rpc_url: http://localhost:8545
`
	require.NoError(t, os.WriteFile(filepath.Join(home, ".oft-bridge.yaml"), []byte(yaml), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreRedis, cfg.Store)
	assert.Equal(t, "MYOFT", cfg.Token.Symbol)
	assert.Equal(t, int32(6), cfg.Token.Decimals)
	addr, ok := cfg.Token.AddressOn(97)
	assert.True(t, ok)
	assert.Equal(t, "0x0000000000000000000000000000000000000097", addr)
	require.Len(t, cfg.Chains, 1)
	assert.Equal(t, uint32(40102), cfg.Chains[0].EndpointID)
	assert.Equal(t, "http://localhost:8545", cfg.Chains[0].RPCURL)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{Store: StoreFile, DefaultChain: 97, Chains: DefaultChains}
	}

	assert.NoError(t, base().Validate())

	cfg := base()
	cfg.Store = "s3"
	assert.ErrorContains(t, cfg.Validate(), "unknown store")

	cfg = base()
	cfg.DefaultChain = 1
	assert.ErrorContains(t, cfg.Validate(), "default chain 1")

	cfg = base()
	cfg.Chains = append([]types.Chain{}, DefaultChains...)
	cfg.Chains[1].EndpointID = cfg.Chains[0].EndpointID
	assert.ErrorContains(t, cfg.Validate(), "share eid")

	assert.Error(t, base().RequireSigner())
}

func TestResolveChain(t *testing.T) {
	cfg := &Config{Chains: DefaultChains}

	c, err := cfg.ResolveChain("Amoy")
	require.NoError(t, err)
	assert.Equal(t, uint64(80002), c.ID)

	c, err = cfg.ResolveChain("97")
	require.NoError(t, err)
	assert.Equal(t, "bsc-testnet", c.Name)

	_, err = cfg.ResolveChain("mainnet")
	assert.Error(t, err)
}
