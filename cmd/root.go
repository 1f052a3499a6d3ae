package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	networkName string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:   "swapflow",
	Short: "Guided token swap workflows for EVM chains",
	Long: `swapflow drives the full lifecycle of an on-chain token swap: quoting,
balance and allowance checks, gas estimation and the approve/execute step
wizard, with the same guarantees a production front end gives its users.

Examples:
  swapflow swap 100 USDC to DAI
  swapflow swap 1 ETH to USDC --network arbitrum --slippage 0.5
  swapflow serve --address :8080
  swapflow networks`,
	Version: "0.1.0",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&networkName, "network", "", "Network to operate on (default from config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
}

func newLogger() zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log := zerolog.New(out).With().Timestamp().Logger()
	if !verbose {
		log = log.Level(zerolog.WarnLevel)
	}
	return log
}

func printError(err error) {
	fmt.Printf("\nError: %v\n\n", err)
}
