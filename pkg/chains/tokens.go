package chains

import "fmt"

// Token is one resolvable token on a network.
type Token struct {
	Symbol   string
	Address  string
	Decimals uint8
}

// NativeToken returns the network's native token under the pseudo-address.
func (n Network) NativeToken() Token {
	return Token{Symbol: n.NativeSymbol, Address: NativeTokenAddress, Decimals: 18}
}

// Token resolves a symbol against the network's well-known token table.
// The native symbol always resolves.
func (n Network) Token(symbol string) (Token, error) {
	if symbol == n.NativeSymbol {
		return n.NativeToken(), nil
	}
	if byChain, ok := knownTokens[n.ChainID]; ok {
		if t, ok := byChain[symbol]; ok {
			return t, nil
		}
	}
	return Token{}, fmt.Errorf("token %s not known on %s", symbol, n.Name)
}

var knownTokens = map[uint64]map[string]Token{
	1: {
		"USDC": {Symbol: "USDC", Address: "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", Decimals: 6},
		"USDT": {Symbol: "USDT", Address: "0xdAC17F958D2ee523a2206206994597C13D831ec7", Decimals: 6},
		"DAI":  {Symbol: "DAI", Address: "0x6B175474E89094C44Da98b954EedeAC495271d0F", Decimals: 18},
		"WETH": {Symbol: "WETH", Address: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", Decimals: 18},
		"WBTC": {Symbol: "WBTC", Address: "0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599", Decimals: 8},
		"CRV":  {Symbol: "CRV", Address: "0xD533a949740bb3306d119CC777fa900bA034cd52", Decimals: 18},
	},
	42161: {
		"USDC": {Symbol: "USDC", Address: "0xaf88d065e77c8cC2239327C5EDb3A432268e5831", Decimals: 6},
		"USDT": {Symbol: "USDT", Address: "0xFd086bC7CD5C481DCC9C85ebE478A1C0b69FCbb9", Decimals: 6},
		"DAI":  {Symbol: "DAI", Address: "0xDA10009cBd5D07dd0CeCc66161FC93D7c9000da1", Decimals: 18},
		"WETH": {Symbol: "WETH", Address: "0x82aF49447D8a07e3bd95BD0d56f35241523fBab1", Decimals: 18},
		"WBTC": {Symbol: "WBTC", Address: "0x2f2a2543B76A4166549F7aaB2e75Bef0aefC5B0f", Decimals: 8},
	},
	137: {
		"USDC": {Symbol: "USDC", Address: "0x3c499c542cEF5E3811e1192ce70d8cC03d5c3359", Decimals: 6},
		"USDT": {Symbol: "USDT", Address: "0xc2132D05D31c914a87C6611C10748AEb04B58e8F", Decimals: 6},
		"DAI":  {Symbol: "DAI", Address: "0x8f3Cf7ad23Cd3CaDbD9735AFf958023239c6A063", Decimals: 18},
		"WETH": {Symbol: "WETH", Address: "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619", Decimals: 18},
	},
}
