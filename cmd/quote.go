package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"deposit-widget/pkg/parser"
	"deposit-widget/pkg/route"
	"deposit-widget/pkg/types"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var fromAddress string

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <token> [on <chain>] --from <address>",
	Short: "Price a deposit without sending it",
	Long: `Build a route from the given token to the configured destination and show
what would be received. No wallet is connected and nothing is signed.

Examples:
  deposit-widget quote 10 USDC --from 0x1234...abcd
  deposit-widget quote 0.5 ETH on base --from 0x1234...abcd`,
	Args: cobra.MinimumNArgs(2),
	Run:  runQuote,
}

func init() {
	rootCmd.AddCommand(quoteCmd)

	quoteCmd.Flags().StringVar(&fromAddress, "from", "", "Source address the deposit would be sent from (REQUIRED)")
	_ = quoteCmd.MarkFlagRequired("from")
}

func runQuote(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	req, err := parser.ParseDepositCommand(strings.Join(args, " "))
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.Close()
	if err := a.cfg.ValidateDestination(); err != nil {
		printError(err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	chain := req.Chain
	if chain == 0 {
		chain = a.defaultChain()
	}
	token, err := a.resolveToken(ctx, chain, req.Token)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Fetching quote..."
		s.Start()
	}
	state, err := buildQuote(ctx, a, route.Inputs{
		SourceChain:       chain,
		SourceToken:       sourceToken(token),
		SourceDecimals:    token.Decimals,
		Amount:            req.Amount,
		SourceAddress:     fromAddress,
		Destination:       a.cfg.Destination,
		DestinationSymbol: a.cfg.DestinationSymbol,
	})
	s.Stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	quote := state.Quote
	if jsonOutput {
		output := map[string]interface{}{
			"intent_id":         quote.IntentID,
			"source_amount":     req.Amount,
			"source_token":      req.Token,
			"source_chain":      chain,
			"estimated_receive": quote.EstimatedReceive,
			"network_fee_usd":   quote.FeesUSD,
			"status":            "quote_generated",
		}
		jsonData, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                    DEPOSIT QUOTE")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("\n  Send:              %s %s\n", req.Amount, color.YellowString(token.Symbol))
	fmt.Printf("  Source Chain:      %s\n", chain)
	fmt.Printf("  Destination:       %s\n", color.CyanString(a.cfg.Destination.Address))
	if quote.EstimatedReceive != "" {
		fmt.Printf("  You Receive:       ~%s\n", quote.EstimatedReceive)
	}
	if quote.FeesUSD != "" {
		fmt.Printf("  Network Fee (USD): %s\n", quote.FeesUSD)
	}
	fmt.Printf("  Intent ID:         %s\n", color.HiBlackString(quote.IntentID))
	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

// buildQuote runs a single route build and waits for it to settle
func buildQuote(ctx context.Context, a *app, in route.Inputs) (route.State, error) {
	builder, err := route.NewBuilder(route.Config{
		Backend:     a.backend,
		Debounce:    a.cfg.Timings.Debounce,
		SlippageBps: a.cfg.SlippageBps,
		Metrics:     a.metrics,
	})
	if err != nil {
		return route.State{}, err
	}
	defer builder.Close()

	settled := make(chan route.State, 1)
	unsubscribe := builder.OnChange(func(st route.State) {
		if st.IsLoading || (st.Quote == nil && st.Err == nil) {
			return
		}
		select {
		case settled <- st:
		default:
		}
	})
	defer unsubscribe()

	builder.Update(in)
	if !builder.State().IsLoading {
		return route.State{}, fmt.Errorf("cannot build a route: check the amount, token and --from address")
	}

	select {
	case st := <-settled:
		if st.Err != nil {
			return st, st.Err
		}
		return st, nil
	case <-ctx.Done():
		return route.State{}, ctx.Err()
	}
}

func sourceToken(t *types.Token) string {
	if t.IsNative() {
		return types.NativeToken
	}
	return t.Address
}
