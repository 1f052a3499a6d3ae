// Package parser turns the CLI's free-form swap phrase into form input.
package parser

import (
	"fmt"
	"regexp"
	"strings"
)

// Request is a parsed swap phrase. Amount is the raw decimal string as
// typed; token symbols are uppercased and still need resolving against the
// network's token table.
type Request struct {
	Amount     string
	FromSymbol string
	ToSymbol   string
}

// Pattern: <amount> <from_token> TO <to_token>
// Matches: "1 ETH TO USDC", "1.5 WETH TO DAI", "100.25 USDC TO DAI"
var phrasePattern = regexp.MustCompile(`^(\d+\.?\d*)\s+([A-Z0-9]+)\s+TO\s+([A-Z0-9]+)$`)

// Parse reads a swap phrase such as:
//   - "swap 1 ETH to USDC"
//   - "1.5 WETH to DAI"
//   - "100 USDC to DAI"
func Parse(command string) (Request, error) {
	command = strings.TrimSpace(strings.ToUpper(command))
	command = strings.TrimPrefix(command, "SWAP ")

	matches := phrasePattern.FindStringSubmatch(command)
	if matches == nil {
		return Request{}, fmt.Errorf("invalid swap phrase. Expected: '<amount> <token> to <token>' (e.g., '100 USDC to DAI')")
	}

	return Request{
		Amount:     matches[1],
		FromSymbol: NormalizeTokenSymbol(matches[2]),
		ToSymbol:   NormalizeTokenSymbol(matches[3]),
	}, nil
}

// NormalizeTokenSymbol uppercases a symbol and resolves common aliases.
func NormalizeTokenSymbol(symbol string) string {
	symbol = strings.TrimSpace(strings.ToUpper(symbol))

	aliases := map[string]string{
		"MATIC": "POL",
	}
	if normalized, ok := aliases[symbol]; ok {
		return normalized
	}
	return symbol
}
