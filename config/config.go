package config

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"swapflow/pkg/chains"
	"swapflow/pkg/types"
)

// FlowThresholds are the per-flow severity knobs. MaxSlippage is the
// tolerance in percent; a quote whose negative slippage exceeds it is
// flagged. PriceImpactSevere and LowRateGap are exclusive bounds in percent.
type FlowThresholds struct {
	MaxSlippage       decimal.Decimal
	PriceImpactSevere decimal.Decimal
	LowRateGap        decimal.Decimal
}

// Config holds the application configuration.
type Config struct {
	PricingBaseURL string
	PrivateKey     string
	ServerAddress  string
	AllowedOrigins []string
	DefaultNetwork string

	Networks   chains.Table
	Thresholds map[types.FlowKind]FlowThresholds
}

// ThresholdsFor returns the thresholds for a flow, falling back to the swap
// defaults for an unknown flow.
func (c *Config) ThresholdsFor(flow types.FlowKind) FlowThresholds {
	if th, ok := c.Thresholds[flow]; ok {
		return th
	}
	return c.Thresholds[types.FlowSwap]
}

// Network resolves a configured network by name, using the default when
// name is empty.
func (c *Config) Network(name string) (chains.Network, error) {
	if name == "" {
		name = c.DefaultNetwork
	}
	return c.Networks.Get(name)
}

// Load reads configuration from environment variables and an optional
// .swapflow.yaml config file.
func Load() (*Config, error) {
	viper.SetConfigName(".swapflow")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME")
	viper.AddConfigPath(".")

	viper.SetDefault("pricing_base_url", "https://router.swapflow.io")
	viper.SetDefault("server_address", "localhost:8080")
	viper.SetDefault("allowed_origins", []string{"http://localhost:3000"})
	viper.SetDefault("default_network", "ethereum")

	viper.SetDefault("thresholds.swap.max_slippage", "0.1")
	viper.SetDefault("thresholds.swap.price_impact_severe", "5")
	viper.SetDefault("thresholds.swap.low_rate_gap", "1")
	viper.SetDefault("thresholds.deposit.max_slippage", "0.5")
	viper.SetDefault("thresholds.deposit.price_impact_severe", "5")
	viper.SetDefault("thresholds.deposit.low_rate_gap", "1")
	viper.SetDefault("thresholds.repay.max_slippage", "0.5")
	viper.SetDefault("thresholds.repay.price_impact_severe", "5")
	viper.SetDefault("thresholds.repay.low_rate_gap", "1")

	viper.SetEnvPrefix("SWAPFLOW")
	viper.AutomaticEnv()

	// Config file is optional; env vars and defaults cover everything.
	_ = viper.ReadInConfig()

	cfg := &Config{
		PricingBaseURL: viper.GetString("pricing_base_url"),
		PrivateKey:     viper.GetString("private_key"),
		ServerAddress:  viper.GetString("server_address"),
		AllowedOrigins: viper.GetStringSlice("allowed_origins"),
		DefaultNetwork: viper.GetString("default_network"),
		Networks:       defaultNetworks(),
	}

	var raw map[string]chains.Network
	if err := viper.UnmarshalKey("networks", &raw); err != nil {
		return nil, fmt.Errorf("failed to parse networks config: %w", err)
	}
	for name, n := range raw {
		cfg.Networks[name] = n
	}

	th := make(map[types.FlowKind]FlowThresholds)
	for _, flow := range []types.FlowKind{types.FlowSwap, types.FlowDeposit, types.FlowRepay} {
		t, err := parseThresholds(string(flow))
		if err != nil {
			return nil, err
		}
		th[flow] = t
	}
	cfg.Thresholds = th

	return cfg, nil
}

func parseThresholds(flow string) (FlowThresholds, error) {
	var out FlowThresholds
	var err error
	if out.MaxSlippage, err = decimal.NewFromString(viper.GetString("thresholds." + flow + ".max_slippage")); err != nil {
		return out, fmt.Errorf("invalid max_slippage for %s: %w", flow, err)
	}
	if out.PriceImpactSevere, err = decimal.NewFromString(viper.GetString("thresholds." + flow + ".price_impact_severe")); err != nil {
		return out, fmt.Errorf("invalid price_impact_severe for %s: %w", flow, err)
	}
	if out.LowRateGap, err = decimal.NewFromString(viper.GetString("thresholds." + flow + ".low_rate_gap")); err != nil {
		return out, fmt.Errorf("invalid low_rate_gap for %s: %w", flow, err)
	}
	return out, nil
}

func defaultNetworks() chains.Table {
	return chains.Table{
		"ethereum": {
			Name:         "ethereum",
			ChainID:      1,
			RPCURL:       "https://eth.llamarpc.com",
			ExplorerURL:  "https://etherscan.io",
			NativeSymbol: "ETH",
			Router:       "0x16C6521Dff6baB339122a0FE25a9116693265353",
		},
		"arbitrum": {
			Name:         "arbitrum",
			ChainID:      42161,
			RPCURL:       "https://arb1.arbitrum.io/rpc",
			ExplorerURL:  "https://arbiscan.io",
			NativeSymbol: "ETH",
			Router:       "0x16C6521Dff6baB339122a0FE25a9116693265353",
		},
		"polygon": {
			Name:         "polygon",
			ChainID:      137,
			RPCURL:       "https://polygon-rpc.com",
			ExplorerURL:  "https://polygonscan.com",
			NativeSymbol: "POL",
			Router:       "0x16C6521Dff6baB339122a0FE25a9116693265353",
		},
	}
}
