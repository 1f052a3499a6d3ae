// Package chains is the read-only chain/network configuration table.
package chains

import (
	"fmt"
	"strings"
)

// NativeTokenAddress is the pseudo-address used for the chain's native
// token across the codebase.
const NativeTokenAddress = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

// Network describes one EVM network.
type Network struct {
	Name         string `mapstructure:"name"`
	ChainID      uint64 `mapstructure:"chain_id"`
	RPCURL       string `mapstructure:"rpc_url"`
	ExplorerURL  string `mapstructure:"explorer_url"`
	NativeSymbol string `mapstructure:"native_symbol"`
	// Router is the contract granted allowances and executing actions.
	Router string `mapstructure:"router"`
}

// ExplorerTxURL formats the explorer link for a transaction hash.
func (n Network) ExplorerTxURL(txHash string) string {
	return strings.TrimRight(n.ExplorerURL, "/") + "/tx/" + txHash
}

// IsNativeToken reports whether the address is the native-token
// pseudo-address.
func IsNativeToken(address string) bool {
	return strings.EqualFold(address, NativeTokenAddress)
}

// Table is a lookup of configured networks by name.
type Table map[string]Network

// Get returns the named network.
func (t Table) Get(name string) (Network, error) {
	n, ok := t[strings.ToLower(name)]
	if !ok {
		return Network{}, fmt.Errorf("network %s not configured", name)
	}
	return n, nil
}

// ByChainID returns the network with the given chain id.
func (t Table) ByChainID(chainID uint64) (Network, error) {
	for _, n := range t {
		if n.ChainID == chainID {
			return n, nil
		}
	}
	return Network{}, fmt.Errorf("no network configured for chain id %d", chainID)
}

// Names returns the configured network names.
func (t Table) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	return names
}
