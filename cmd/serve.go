package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"swapflow/pkg/api"
	"swapflow/pkg/notify"
	"swapflow/pkg/parser"
	"swapflow/pkg/types"
)

var (
	serveAddress string
	servePair    string
	serveFlow    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the workflow over HTTP for a page layer",
	Long: `Run the HTTP surface a web front end drives. The server hosts one form
session for the given token pair; the page layer reads state and posts
form updates, step runs and resets.

Examples:
  swapflow serve --pair USDC/DAI
  swapflow serve --pair ETH/USDC --flow swap --address :8080`,
	Run: runServeCmd,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddress, "address", "", "Listen address (default from config)")
	serveCmd.Flags().StringVar(&servePair, "pair", "", "Token pair to serve, e.g. USDC/DAI (required)")
	serveCmd.Flags().StringVar(&serveFlow, "flow", string(types.FlowSwap), "Flow kind: swap, deposit or repay")
	_ = serveCmd.MarkFlagRequired("pair")
}

func runServeCmd(_ *cobra.Command, _ []string) {
	log := newLogger()
	s, err := buildStack(log)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer s.close()

	parts := strings.SplitN(servePair, "/", 2)
	if len(parts) != 2 {
		printError(fmt.Errorf("invalid --pair, expected FROM/TO (e.g. USDC/DAI)"))
		os.Exit(1)
	}
	fromToken, err := s.network.Token(parser.NormalizeTokenSymbol(parts[0]))
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	toToken, err := s.network.Token(parser.NormalizeTokenSymbol(parts[1]))
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	flow := types.FlowKind(serveFlow)
	switch flow {
	case types.FlowSwap, types.FlowDeposit, types.FlowRepay:
	default:
		printError(fmt.Errorf("unknown flow %q", serveFlow))
		os.Exit(1)
	}

	target := types.Target{
		ChainID:      s.network.ChainID,
		FromToken:    fromToken.Address,
		ToToken:      toToken.Address,
		FromDecimals: fromToken.Decimals,
		ToDecimals:   toToken.Decimals,
		Spender:      s.network.Router,
	}
	eng := s.newEngine(target, flow, decimal.Zero, notify.Nop{})

	serverCfg := api.ServerConfig{
		Address:        s.cfg.ServerAddress,
		AllowedOrigins: s.cfg.AllowedOrigins,
	}
	if serveAddress != "" {
		serverCfg.Address = serveAddress
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := api.NewServer(serverCfg, eng, log)
	if err := server.Start(ctx); err != nil {
		printError(err)
		os.Exit(1)
	}
}
