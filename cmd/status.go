package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"deposit-widget/pkg/apperr"
	"deposit-widget/pkg/poller"
	"deposit-widget/pkg/types"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <intent-id>",
	Short: "Check the status of a deposit",
	Long: `Check the status of a deposit by its intent id.

With --watch the deposit is followed until it settles, fails or the poll
timeout elapses.

Examples:
  deposit-widget status 0x1234...abcd
  deposit-widget status 0x1234...abcd --watch
  deposit-widget status 0x1234...abcd --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch status updates until the deposit settles")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 0, "Polling interval in seconds (when watching, default from config)")
}

func runStatus(cmd *cobra.Command, args []string) {
	intentID := args[0]
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.Close()

	if watchStatus {
		watchDepositStatus(a, intentID, jsonOutput)
	} else {
		checkDepositStatus(a, intentID, jsonOutput)
	}
}

func checkDepositStatus(a *app, intentID string, jsonOutput bool) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Checking deposit status..."
		s.Start()
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	status, err := a.backend.GetStatus(ctx, intentID)
	if !jsonOutput {
		s.Stop()
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		jsonData, _ := json.MarshalIndent(status, "", "  ")
		fmt.Println(string(jsonData))
	} else {
		displayStatus(status, intentID)
	}
}

// statusPrinter reports the statuses the poller hands to its sink
type statusPrinter struct{}

func (statusPrinter) SetStatus(status types.TxStatus, err *apperr.Error) {
	if err != nil {
		color.Red("  %s: %s", strings.ToUpper(string(status)), err.Message)
		return
	}
	fmt.Printf("  %s\n", getColoredStatus(string(status)))
}

func watchDepositStatus(a *app, intentID string, jsonOutput bool) {
	if jsonOutput {
		fmt.Println(`{"error": "watch mode not supported with JSON output"}`)
		os.Exit(1)
	}

	interval := a.cfg.Timings.PollInterval
	if watchInterval > 0 {
		interval = time.Duration(watchInterval) * time.Second
	}

	p, err := poller.NewPoller(poller.Config{
		Fetcher:  a.backend,
		Sink:     statusPrinter{},
		Interval: interval,
		Timeout:  a.cfg.Timings.PollTimeout,
		Metrics:  a.metrics,
	})
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	fmt.Printf("\nWatching deposit status (Intent ID: %s)\n", color.CyanString(intentID))
	fmt.Printf("Checking every %s. Press Ctrl+C to stop.\n\n", interval)

	done := make(chan poller.State, 1)
	var last types.BackendStatus
	unsubscribe := p.OnChange(func(st poller.State) {
		if st.APIStatus != "" && st.APIStatus != last {
			last = st.APIStatus
			fmt.Printf("  %s  %s\n", time.Now().Format("15:04:05"), getColoredStatus(string(st.APIStatus)))
		}
		if !st.IsPolling {
			select {
			case done <- st:
			default:
			}
		}
	})
	defer unsubscribe()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	p.StartPolling(intentID, "")

	select {
	case final := <-done:
		if final.Transaction != nil {
			displayStatus(final.Transaction, intentID)
		}
		if final.Err != nil {
			os.Exit(1)
		}
	case <-ctx.Done():
		p.StopPolling()
		fmt.Println("\nStopped watching.")
	}
}

func displayStatus(status *types.StatusResponse, intentID string) {
	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                       DEPOSIT STATUS")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Intent ID:       %s\n", color.CyanString(intentID))
	fmt.Printf("  Status:          %s\n", getColoredStatus(string(status.Status)))
	if status.StatusRaw != "" {
		fmt.Printf("  Backend Status:  %s\n", status.StatusRaw)
	}
	if status.GasStatus != "" {
		fmt.Printf("  Gas Status:      %s\n", status.GasStatus)
	}
	if status.FromChainTxURL != "" {
		fmt.Printf("  Deposit Tx:      %s\n", color.HiBlackString(status.FromChainTxURL))
	}
	if status.ToChainTxURL != "" {
		fmt.Printf("  Destination Tx:  %s\n", color.HiBlackString(status.ToChainTxURL))
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func getColoredStatus(status string) string {
	status = strings.ToUpper(status)

	switch status {
	case "SUCCESS":
		return color.GreenString(status)
	case "CONFIRMING", "PROCESSING", "BRIDGING":
		return color.YellowString(status)
	case "FAILED", "ERROR":
		return color.RedString(status)
	default:
		return status
	}
}
