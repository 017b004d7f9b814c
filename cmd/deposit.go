package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"deposit-widget/pkg/flow"
	"deposit-widget/pkg/parser"
	"deposit-widget/pkg/types"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	walletName string
	noConfirm  bool
)

var depositCmd = &cobra.Command{
	Use:   "deposit <amount> <token> [on <chain>]",
	Short: "Deposit tokens into the configured destination",
	Long: `Deposit tokens from a connected wallet into the configured destination.

The widget connects a wallet, builds a route from the chosen token to the
destination, asks the wallet to sign once and follows the deposit until it
settles on the destination chain.

Examples:
  deposit-widget deposit 10 USDC
  deposit-widget deposit 0.5 ETH on base
  deposit-widget deposit 100 USDT on 42161 --wallet walletconnect --yes`,
	Args: cobra.MinimumNArgs(2),
	Run:  runDeposit,
}

func init() {
	rootCmd.AddCommand(depositCmd)

	depositCmd.Flags().StringVar(&walletName, "wallet", "", "Wallet id or name to connect (default: first detected)")
	depositCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
}

// errReported marks a failure already shown to the user
var errReported = errors.New("deposit failed")

// runDeposit exits only after deposit has released the wallet session and flow
func runDeposit(cmd *cobra.Command, args []string) {
	if err := deposit(cmd, args); err != nil {
		if !errors.Is(err, errReported) {
			printError(err)
		}
		os.Exit(1)
	}
}

func deposit(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	req, err := parser.ParseDepositCommand(strings.Join(args, " "))
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.cfg.ValidateDestination(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	chain := req.Chain
	if chain == 0 {
		chain = a.defaultChain()
	}
	token, err := a.resolveToken(ctx, chain, req.Token)
	if err != nil {
		return err
	}

	manager, err := a.walletManager(ctx, printPairing)
	if err != nil {
		return err
	}
	defer manager.Disconnect(context.Background())

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Connecting wallet..."
		s.Start()
	}
	connected, err := connectWallet(ctx, manager, walletName)
	s.Stop()
	if err != nil {
		return err
	}

	f, err := flow.New(flow.Config{
		Destination:       a.cfg.Destination,
		DestinationSymbol: a.cfg.DestinationSymbol,
		Wallet:            manager,
		Backend:           a.backend,
		Debounce:          a.cfg.Timings.Debounce,
		SlippageBps:       a.cfg.SlippageBps,
		PollInterval:      a.cfg.Timings.PollInterval,
		PollTimeout:       a.cfg.Timings.PollTimeout,
		Metrics:           a.metrics,
	})
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SyncWallet(ctx); err != nil {
		return err
	}

	if !jsonOutput {
		s.Suffix = " Fetching quote..."
		s.Start()
	}
	state, err := waitForQuote(ctx, f, func() {
		f.Navigate(flow.StepSelectToken)
		f.SelectToken(*token)
		f.Navigate(flow.StepCryptoPay)
		f.SetAmount(req.Amount)
	})
	s.Stop()
	if err != nil {
		return err
	}

	if !jsonOutput {
		displayQuote(state, connected.Name, req)
	}

	if !noConfirm && !jsonOutput {
		if !confirmDeposit() {
			fmt.Println("\nDeposit cancelled.")
			return nil
		}
	}

	done := make(chan flow.State, 1)
	unsubscribe := f.OnChange(func(st flow.State) {
		if st.Step == flow.StepSuccess || st.Step == flow.StepError {
			select {
			case done <- st:
			default:
			}
		}
	})
	defer unsubscribe()

	var lastStatus types.TxStatus
	statusUnsub := f.OnChange(func(st flow.State) {
		if jsonOutput || st.TxStatus == lastStatus {
			return
		}
		lastStatus = st.TxStatus
		s.Lock()
		s.Suffix = " " + statusLine(st.TxStatus)
		s.Unlock()
	})
	defer statusUnsub()

	if !jsonOutput {
		s.Suffix = " Waiting for wallet confirmation..."
		s.Start()
	}
	result, err := f.Confirm(ctx)
	if err != nil {
		s.Stop()
		return err
	}

	var final flow.State
	select {
	case final = <-done:
	case <-ctx.Done():
		s.Stop()
		fmt.Println("\nStopped watching. The deposit continues on chain.")
		color.Cyan("  deposit-widget status %s --watch\n", result.IntentID)
		return errReported
	}
	s.Stop()

	if jsonOutput {
		output := map[string]interface{}{
			"intent_id": result.IntentID,
			"tx_hash":   result.TxHash,
			"status":    final.TxStatus,
		}
		if final.Err != nil {
			output["error"] = final.Err.Message
		}
		if tx := f.Poller().Transaction; tx != nil {
			output["explorer_url"] = tx.ToChainTxURL
		}
		jsonData, _ := json.MarshalIndent(output, "", "  ")
		fmt.Println(string(jsonData))
		if final.Step == flow.StepError {
			return errReported
		}
		return nil
	}

	if final.Step == flow.StepError {
		color.Red("\nDeposit failed: %s", final.Err.Message)
		fmt.Printf("  Intent ID: %s\n", result.IntentID)
		fmt.Printf("  Tx Hash:   %s\n\n", color.HiBlackString(result.TxHash))
		return errReported
	}

	color.Green("\n✓ Deposit complete!")
	fmt.Printf("  Intent ID: %s\n", color.CyanString(result.IntentID))
	fmt.Printf("  Tx Hash:   %s\n", color.HiBlackString(result.TxHash))
	if tx := f.Poller().Transaction; tx != nil && tx.ToChainTxURL != "" {
		fmt.Printf("  Explorer:  %s\n", tx.ToChainTxURL)
	}
	fmt.Println()
	return nil
}

// waitForQuote applies the selection and blocks until the route builder settles
func waitForQuote(ctx context.Context, f *flow.Flow, selectFn func()) (flow.State, error) {
	settled := make(chan flow.State, 1)
	unsubscribe := f.OnChange(func(st flow.State) {
		if st.Quote.IsLoading || (st.Quote.Quote == nil && st.Quote.Err == nil) {
			return
		}
		select {
		case settled <- st:
		default:
		}
	})
	defer unsubscribe()

	selectFn()
	if q := f.State().Quote; !q.IsLoading && q.Quote == nil && q.Err == nil {
		return flow.State{}, fmt.Errorf("cannot build a route for this selection")
	}

	select {
	case st := <-settled:
		if st.Quote.Err != nil {
			return st, st.Quote.Err
		}
		return st, nil
	case <-ctx.Done():
		return flow.State{}, ctx.Err()
	}
}

func statusLine(status types.TxStatus) string {
	switch status {
	case types.TxConfirming:
		return "Waiting for wallet confirmation..."
	case types.TxProcessing:
		return "Processing deposit..."
	case types.TxBridging:
		return "Bridging to destination..."
	default:
		return string(status)
	}
}

func displayQuote(state flow.State, walletLabel string, req *parser.DepositCommand) {
	quote := state.Quote.Quote

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                    DEPOSIT QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Wallet:            %s\n", walletLabel)
	fmt.Printf("  From:              %s\n", color.CyanString(state.Selection.Address))
	fmt.Printf("  Send:              %s %s\n", req.Amount, color.YellowString(req.Token))
	fmt.Printf("  Source Chain:      %s\n", state.Selection.Chain)
	if quote.EstimatedReceive != "" {
		fmt.Printf("  You Receive:       ~%s\n", quote.EstimatedReceive)
	}
	if quote.FeesUSD != "" {
		fmt.Printf("  Network Fee (USD): %s\n", quote.FeesUSD)
	}
	fmt.Printf("  Intent ID:         %s\n", color.HiBlackString(quote.IntentID))

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func confirmDeposit() bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("\nProceed with deposit? (y/N): ")

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
