package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"deposit-widget/pkg/client"
	"deposit-widget/pkg/parser"
	"deposit-widget/pkg/types"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	filterChain  string
	filterSymbol string
)

var tokensCmd = &cobra.Command{
	Use:     "tokens",
	Aliases: []string{"list-tokens", "ls"},
	Short:   "List the tokens a deposit can be paid with",
	Long: `List the tokens that can fund a deposit from each configured source chain.

Use --chain to look at a chain outside the configured set and --symbol to
narrow the list.

Examples:
  deposit-widget tokens
  deposit-widget tokens --chain base
  deposit-widget tokens --symbol usd`,
	Run: runTokens,
}

func init() {
	rootCmd.AddCommand(tokensCmd)

	tokensCmd.Flags().StringVar(&filterChain, "chain", "", "Source chain id or name (default: configured chains)")
	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Only show tokens whose symbol contains this text")
}

// chainTokens are the tokens that can pay for a deposit from one chain
type chainTokens struct {
	Chain      types.ChainID `json:"chainId"`
	Blockchain string        `json:"blockchain"`
	Tokens     []types.Token `json:"tokens"`
}

func runTokens(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.Close()

	chains := a.cfg.SourceChains()
	if filterChain != "" {
		chain, err := parser.ParseChain(filterChain)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		chains = []types.ChainID{chain}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching supported tokens..."
		s.Start()
	}
	tokens, err := a.backend.Tokens(ctx)
	s.Stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	groups := sourceTokens(tokens, chains, filterSymbol)
	if jsonOutput {
		jsonData, _ := json.MarshalIndent(groups, "", "  ")
		fmt.Println(string(jsonData))
		return
	}
	displaySourceTokens(groups, a.cfg.Destination, a.cfg.DestinationSymbol)
}

// sourceTokens groups tokens by chain in the order chains are given. Gas
// tokens come first, the rest by symbol. Chains the backend has no name for
// are skipped.
func sourceTokens(tokens []types.Token, chains []types.ChainID, symbol string) []chainTokens {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))

	groups := make([]chainTokens, 0, len(chains))
	for _, chain := range chains {
		name, ok := client.BlockchainName(chain)
		if !ok {
			continue
		}
		group := chainTokens{Chain: chain, Blockchain: name}
		for _, t := range tokens {
			if !strings.EqualFold(t.Blockchain, name) {
				continue
			}
			if symbol != "" && !strings.Contains(strings.ToUpper(t.Symbol), symbol) {
				continue
			}
			group.Tokens = append(group.Tokens, t)
		}
		sort.SliceStable(group.Tokens, func(i, j int) bool {
			a, b := group.Tokens[i], group.Tokens[j]
			if a.IsNative() != b.IsNative() {
				return a.IsNative()
			}
			return a.Symbol < b.Symbol
		})
		groups = append(groups, group)
	}
	return groups
}

func displaySourceTokens(groups []chainTokens, dest types.Destination, destSymbol string) {
	fmt.Println("\n" + strings.Repeat("=", 80))
	color.Green("                         DEPOSIT SOURCE TOKENS")
	fmt.Println(strings.Repeat("=", 80))

	target := destSymbol
	if target == "" {
		target = shortAddress(dest.Token)
	}
	if target != "" {
		fmt.Printf("\n  Deposits arrive as %s on chain %s\n", color.YellowString(target), dest.ChainID)
	}

	total := 0
	for _, group := range groups {
		color.Cyan("\n%s (%s)", strings.ToUpper(group.Blockchain), group.Chain)
		fmt.Println(strings.Repeat("-", 80))
		if len(group.Tokens) == 0 {
			fmt.Println("  no matching tokens")
			continue
		}
		for _, t := range group.Tokens {
			address := "native"
			if !t.IsNative() {
				address = shortAddress(t.Address)
			}
			fmt.Printf("  %-10s  %2d decimals  %-42s  %s\n",
				color.YellowString(t.Symbol), t.Decimals, color.HiBlackString(address), formatPrice(t.PriceUSD))
		}
		total += len(group.Tokens)
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Printf("\n%d tokens across %d chains\n", total, len(groups))
	if len(groups) > 0 && total > 0 {
		fmt.Printf("Pay with one: deposit-widget deposit <amount> <symbol> on %s\n\n", groups[0].Blockchain)
	} else {
		fmt.Println()
	}
}

func shortAddress(address string) string {
	if len(address) > 42 {
		return address[:39] + "..."
	}
	return address
}

func formatPrice(price string) string {
	if price == "" {
		return ""
	}
	return color.GreenString("$" + price)
}
