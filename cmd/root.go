package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "deposit-widget",
	Short: "A CLI for depositing crypto into a configured destination",
	Long: `deposit-widget drives the deposit flow from a terminal: it detects and
connects a wallet, builds a cross-chain route to the configured destination,
submits the transaction and follows it until it settles.

Examples:
  deposit-widget deposit 10 USDC on base
  deposit-widget quote 0.5 ETH --from 0x1234...abcd
  deposit-widget wallets
  deposit-widget connect
  deposit-widget tokens
  deposit-widget status <intent-id> --watch`,
	Version: "0.1.0",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		verbose, _ := cmd.Flags().GetBool("verbose")
		setupLogging(verbose)
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
}

// setupLogging writes human readable logs to stderr so stdout stays parseable
func setupLogging(verbose bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// applyLogLevel honours the configured level unless --verbose was given
func applyLogLevel(cmd *cobra.Command, level string) {
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		return
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("unknown log level, keeping warn")
		return
	}
	zerolog.SetGlobalLevel(lvl)
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	fmt.Printf("\n%s\n\n", message)
}
