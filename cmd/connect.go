package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"deposit-widget/pkg/wallet"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Pair a remote wallet over the relay",
	Long: `Start a relay session and print its pairing uri as a QR code. Scan it with a
mobile wallet and approve the session to see the connected account.

Examples:
  deposit-widget connect`,
	Args: cobra.NoArgs,
	Run:  runConnect,
}

func init() {
	rootCmd.AddCommand(connectCmd)
}

func runConnect(cmd *cobra.Command, args []string) {
	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	manager, err := a.walletManager(ctx, printPairing)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	fmt.Println("\nWaiting for a wallet to approve the session. Press Ctrl+C to stop.")
	if _, err := connectWallet(ctx, manager, "walletconnect"); err != nil {
		printError(err)
		os.Exit(1)
	}
	defer manager.Disconnect(context.Background())

	w := manager.Wallet()
	address, err := w.Address(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	chain, err := w.ChainID(ctx)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	printSuccess(fmt.Sprintf("✓ Connected %s on chain %s", color.CyanString(string(address)), chain))
}

// printPairing shows the relay pairing uri as soon as the session has one
func printPairing(session wallet.RelaySession) {
	go func() {
		uri, err := session.WaitForURI(context.Background())
		if err != nil {
			return
		}

		qr, err := qrcode.New(uri, qrcode.Medium)
		if err != nil {
			log.Warn().Err(err).Msg("failed to render pairing QR code")
		} else {
			fmt.Println("\n" + qr.ToSmallString(false))
		}
		fmt.Printf("Pairing URI: %s\n\n", color.CyanString(uri))
	}()
}
