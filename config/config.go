package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"oft-bridge/pkg/types"
)

// Config holds the application configuration
type Config struct {
	PrivateKey          string        `mapstructure:"private_key"`
	LedgerPath          string        `mapstructure:"ledger_path"`
	Store               string        `mapstructure:"store"`
	RedisURL            string        `mapstructure:"redis_url"`
	ScanURL             string        `mapstructure:"scan_url"`
	SafetyMarginPercent uint64        `mapstructure:"safety_margin_percent"`
	ProbeRPS            float64       `mapstructure:"probe_rps"`
	ConfirmTimeout      time.Duration `mapstructure:"confirm_timeout"`
	ReceiptPollInterval time.Duration `mapstructure:"receipt_poll_interval"`
	DefaultChain        uint64        `mapstructure:"default_chain"`
	LogLevel            string        `mapstructure:"log_level"`
	MetricsAddr         string        `mapstructure:"metrics_addr"`
	Token               types.Token   `mapstructure:"token"`
	Chains              []types.Chain `mapstructure:"chains"`
}

const (
	StoreFile  = "file"
	StoreRedis = "redis"
)

// DefaultChains are the testnets the bridge is deployed on
var DefaultChains = []types.Chain{
	{ID: 97, EndpointID: 40102, Name: "bsc-testnet", Symbol: "tBNB", ExplorerURL: "https://testnet.bscscan.com", RPCURL: "https://bsc-testnet-rpc.publicnode.com"},
	{ID: 80002, EndpointID: 40267, Name: "amoy", Symbol: "POL", ExplorerURL: "https://amoy.polygonscan.com", RPCURL: "https://rpc-amoy.polygon.technology"},
	{ID: 11155111, EndpointID: 40161, Name: "sepolia", Symbol: "ETH", ExplorerURL: "https://sepolia.etherscan.io", RPCURL: "https://ethereum-sepolia-rpc.publicnode.com"},
	{ID: 421614, EndpointID: 40231, Name: "arbitrum-sepolia", Symbol: "ETH", ExplorerURL: "https://sepolia.arbiscan.io", RPCURL: "https://sepolia-rollup.arbitrum.io/rpc"},
}

// Load reads configuration from environment variables and config file
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".oft-bridge")
	v.SetConfigType("yaml")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(".")

	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix("OFT_BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// No default, so Unmarshal only sees it through an explicit binding
	_ = v.BindEnv("private_key")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}
	if len(cfg.Chains) == 0 {
		cfg.Chains = DefaultChains
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ledger_path", "")
	v.SetDefault("store", StoreFile)
	v.SetDefault("redis_url", "redis://localhost:6379/0")
	v.SetDefault("scan_url", "https://testnet.layerzeroscan.com")
	v.SetDefault("safety_margin_percent", 10)
	v.SetDefault("probe_rps", 0)
	v.SetDefault("confirm_timeout", 0)
	v.SetDefault("receipt_poll_interval", 3*time.Second)
	v.SetDefault("default_chain", 97)
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_addr", "")
	v.SetDefault("token.symbol", "OFT")
	v.SetDefault("token.decimals", 18)
	v.SetDefault("token.addresses", map[string]string{})
}

// Validate checks cross-field consistency. The private key is only required by
// commands that sign, see RequireSigner.
func (c *Config) Validate() error {
	switch c.Store {
	case StoreFile, StoreRedis:
	default:
		return fmt.Errorf("unknown store %q, expected %q or %q", c.Store, StoreFile, StoreRedis)
	}

	seenEid := make(map[uint32]string, len(c.Chains))
	for _, chain := range c.Chains {
		if chain.ID == 0 || chain.EndpointID == 0 {
			return fmt.Errorf("chain %q needs both id and eid", chain.Name)
		}
		if other, ok := seenEid[chain.EndpointID]; ok {
			return fmt.Errorf("chains %s and %s share eid %d", other, chain.Name, chain.EndpointID)
		}
		seenEid[chain.EndpointID] = chain.Name
	}
	if _, ok := c.ChainByID(c.DefaultChain); !ok {
		return fmt.Errorf("default chain %d is not configured", c.DefaultChain)
	}
	if c.Token.Decimals < 0 {
		return fmt.Errorf("token decimals must not be negative")
	}
	return nil
}

// RequireSigner returns an error when no private key is configured
func (c *Config) RequireSigner() error {
	if c.PrivateKey == "" {
		return fmt.Errorf("private key not found. Please set OFT_BRIDGE_PRIVATE_KEY environment variable or add private_key to .oft-bridge.yaml")
	}
	return nil
}

// ChainByID looks up a configured chain
func (c *Config) ChainByID(id uint64) (types.Chain, bool) {
	for _, chain := range c.Chains {
		if chain.ID == id {
			return chain, true
		}
	}
	return types.Chain{}, false
}

// ResolveChain accepts a chain name or numeric id
func (c *Config) ResolveChain(nameOrID string) (types.Chain, error) {
	nameOrID = strings.TrimSpace(nameOrID)
	for _, chain := range c.Chains {
		if strings.EqualFold(chain.Name, nameOrID) || fmt.Sprint(chain.ID) == nameOrID {
			return chain, nil
		}
	}
	return types.Chain{}, fmt.Errorf("unknown chain %q", nameOrID)
}
