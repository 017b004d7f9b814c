package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var walletsCmd = &cobra.Command{
	Use:   "wallets",
	Short: "List the wallets available for a deposit",
	Long: `Run a wallet detection pass and list every wallet that answered, plus the
relay option when a relay is configured.

Examples:
  deposit-widget wallets
  deposit-widget wallets --json`,
	Args: cobra.NoArgs,
	Run:  runWallets,
}

func init() {
	rootCmd.AddCommand(walletsCmd)
}

func runWallets(cmd *cobra.Command, args []string) {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	manager, err := a.walletManager(ctx, nil)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	if !jsonOutput {
		s.Suffix = " Detecting wallets..."
		s.Start()
	}
	wallets, err := manager.Detect(ctx)
	s.Stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if jsonOutput {
		type entry struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Category string `json:"category"`
		}
		out := make([]entry, 0, len(wallets))
		for _, w := range wallets {
			out = append(out, entry{ID: w.ID, Name: w.Name, Category: string(w.Category)})
		}
		jsonData, _ := json.MarshalIndent(out, "", "  ")
		fmt.Println(string(jsonData))
		return
	}

	if len(wallets) == 0 {
		fmt.Println("\nNo wallets detected. Configure private_key or rpc_urls, or a relay project id.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                   AVAILABLE WALLETS")
	fmt.Println(strings.Repeat("=", 60))
	for _, w := range wallets {
		fmt.Printf("\n  %-16s %-20s %s", color.YellowString(w.ID), w.Name, color.HiBlackString(string(w.Category)))
	}
	fmt.Println("\n\n" + strings.Repeat("=", 60))
	fmt.Printf("\nUse --wallet <id> with the deposit command to pick one.\n\n")
}
