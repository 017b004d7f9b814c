package parser

import (
	"fmt"
	"regexp"
	"strings"

	"deposit-widget/pkg/client"
	"deposit-widget/pkg/types"
	"github.com/shopspring/decimal"
)

// DepositCommand is a parsed "<amount> <token> [on <chain>]" request
type DepositCommand struct {
	Amount string
	Token  string
	// Chain is zero when the command names no chain
	Chain types.ChainID
}

var commandPattern = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)\s+([A-Z0-9.]+)(?:\s+ON\s+([A-Z0-9]+))?$`)

// ParseDepositCommand parses a deposit command
// Examples:
//   - "10 USDC"
//   - "deposit 0.5 ETH on base"
//   - "100 USDT on 42161"
func ParseDepositCommand(command string) (*DepositCommand, error) {
	// Normalize the command
	command = strings.Join(strings.Fields(strings.ToUpper(command)), " ")
	command = strings.TrimPrefix(command, "DEPOSIT ")

	matches := commandPattern.FindStringSubmatch(command)
	if matches == nil {
		return nil, fmt.Errorf("invalid deposit command format. Expected: '<amount> <token> [on <chain>]' (e.g., '10 USDC on base')")
	}

	amount, err := decimal.NewFromString(matches[1])
	if err != nil || !amount.IsPositive() {
		return nil, fmt.Errorf("amount must be a positive number")
	}

	cmd := &DepositCommand{
		Amount: amount.String(),
		Token:  NormalizeTokenSymbol(matches[2]),
	}

	if matches[3] != "" {
		chain, err := ParseChain(matches[3])
		if err != nil {
			return nil, err
		}
		cmd.Chain = chain
	}

	return cmd, nil
}

// ParseChain accepts a numeric chain id or a blockchain name such as "base"
func ParseChain(s string) (types.ChainID, error) {
	if id, ok := client.ChainIDForBlockchain(chainAliases[strings.ToLower(s)]); ok {
		return id, nil
	}
	if id, ok := client.ChainIDForBlockchain(s); ok {
		return id, nil
	}
	id, err := types.ParseChainID(s)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("unknown chain %q", s)
	}
	return id, nil
}

var chainAliases = map[string]string{
	"ethereum":  "eth",
	"mainnet":   "eth",
	"optimism":  "op",
	"arbitrum":  "arb",
	"polygon":   "pol",
	"avalanche": "avax",
	"bnb":       "bsc",
}

// NormalizeTokenSymbol normalizes token symbols to standard format
func NormalizeTokenSymbol(symbol string) string {
	// Convert to uppercase for consistency
	symbol = strings.TrimSpace(strings.ToUpper(symbol))

	// Handle common aliases
	aliases := map[string]string{
		"ETHER":  "ETH",
		"TETHER": "USDT",
		"USDCE":  "USDC.E",
	}

	if normalized, exists := aliases[symbol]; exists {
		return normalized
	}

	return symbol
}
