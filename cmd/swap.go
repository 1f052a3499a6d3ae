package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"swapflow/pkg/engine"
	"swapflow/pkg/form"
	"swapflow/pkg/notify"
	"swapflow/pkg/parser"
	"swapflow/pkg/types"
)

var (
	slippageFlag string
	poolFlag     string
	noConfirm    bool
	maxFlag      bool
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <from-token> to <to-token>",
	Short: "Swap tokens through the configured router",
	Long: `Quote and execute a token swap. The command walks the same steps a user
sees in the wizard: the quote with its slippage and price impact verdicts,
a spending approval when the router has no allowance yet, and the swap
itself. High slippage or severe price impact requires an explicit
confirmation before the transaction is sent.

Examples:
  swapflow swap 100 USDC to DAI
  swapflow swap 1 ETH to USDC --network arbitrum
  swapflow swap 0.5 WETH to USDC --slippage 0.5 --yes
  swapflow swap --max ETH to USDC`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSwapCmd,
}

func init() {
	rootCmd.AddCommand(swapCmd)

	swapCmd.Flags().StringVar(&slippageFlag, "slippage", "", "Max slippage tolerance in percent (default from config)")
	swapCmd.Flags().StringVar(&poolFlag, "pool", "", "Pool id to route through (optional)")
	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompts")
	swapCmd.Flags().BoolVar(&maxFlag, "max", false, "Swap the full spendable balance")
}

func runSwapCmd(_ *cobra.Command, args []string) {
	phrase := strings.Join(args, " ")
	if maxFlag {
		// "--max ETH to USDC" carries no amount; parse with a placeholder.
		phrase = "0 " + phrase
	}
	req, err := parser.Parse(phrase)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	log := newLogger()
	s, err := buildStack(log)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer s.close()

	fromToken, err := s.network.Token(req.FromSymbol)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	toToken, err := s.network.Token(req.ToSymbol)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	var slippage decimal.Decimal
	if slippageFlag != "" {
		if slippage, err = decimal.NewFromString(slippageFlag); err != nil {
			printError(fmt.Errorf("invalid --slippage value: %w", err))
			os.Exit(1)
		}
	}

	target := types.Target{
		ChainID:      s.network.ChainID,
		PoolID:       poolFlag,
		FromToken:    fromToken.Address,
		ToToken:      toToken.Address,
		FromDecimals: fromToken.Decimals,
		ToDecimals:   toToken.Decimals,
		Spender:      s.network.Router,
	}
	eng := s.newEngine(target, types.FlowSwap, slippage, notify.CLI{})

	ctx := context.Background()
	if maxFlag {
		if _, err := eng.SetMax(ctx); err != nil {
			printError(err)
			os.Exit(1)
		}
	} else {
		eng.UpdateFormValues(ctx, form.Patch{FromAmount: &req.Amount}, engine.UpdateOpts{})
	}
	eng.Wait()

	snap := eng.Snapshot()
	if snap.Status.Error != "" {
		printError(fmt.Errorf("%s", snap.Status.Error))
		os.Exit(1)
	}
	if code := fieldError(snap.Values); code != types.ErrCodeNone {
		printError(fieldErrorMessage(code, req.FromSymbol))
		os.Exit(1)
	}
	if snap.Quote == nil {
		printError(fmt.Errorf("no quote available for %s to %s", req.FromSymbol, req.ToSymbol))
		os.Exit(1)
	}

	var usdValue decimal.Decimal
	if rate := s.usdRate(ctx, fromToken.Address); rate.IsPositive() {
		if amount, err := decimal.NewFromString(snap.Values.FromAmount); err == nil {
			usdValue = amount.Mul(rate)
		}
	}
	displayQuote(snap, req, usdValue)
	if snap.Status.Warning != "" {
		color.Yellow("  Note: %s\n", snap.Status.Warning)
	}

	if conf := actionConfirmation(snap.Steps); conf != nil && conf.RequireCheckbox {
		color.Red("\n  %s %s", conf.Title, conf.Body)
		if !noConfirm && !confirmPrompt("Accept these conditions and continue?") {
			fmt.Println("\nSwap cancelled.")
			os.Exit(0)
		}
		eng.ConfirmWarning(true)
	} else if !noConfirm && !confirmPrompt("Proceed with swap?") {
		fmt.Println("\nSwap cancelled.")
		os.Exit(0)
	}

	if s.provider == nil {
		printError(fmt.Errorf("no private key configured; set SWAPFLOW_PRIVATE_KEY to execute"))
		os.Exit(1)
	}

	for _, step := range snap.Steps {
		switch {
		case step.Key == types.StepApproval && step.Status == types.StepReady:
			txHash, err := eng.RunApproval(ctx)
			if err != nil {
				printError(err)
				os.Exit(1)
			}
			eng.Wait()
			fmt.Printf("  Approval: %s\n", color.CyanString(s.network.ExplorerTxURL(txHash)))
		case step.Key == types.StepAction:
			txHash, err := eng.RunAction(ctx)
			if err != nil {
				printError(err)
				os.Exit(1)
			}
			color.Green("\n Swap confirmed!")
			fmt.Printf("  Transaction: %s\n\n", color.CyanString(s.network.ExplorerTxURL(txHash)))
		}
	}
}

func fieldError(v types.FormValues) types.ErrorCode {
	if v.FromError != types.ErrCodeNone {
		return v.FromError
	}
	return v.ToError
}

func fieldErrorMessage(code types.ErrorCode, symbol string) error {
	switch code {
	case types.ErrCodeTooMuch:
		return fmt.Errorf("amount exceeds your %s balance", symbol)
	case types.ErrCodeInvalidNumber:
		return fmt.Errorf("amount is not a valid number")
	default:
		return fmt.Errorf("invalid input: %s", code)
	}
}

func actionConfirmation(list []types.StepDescriptor) *types.Confirmation {
	for _, s := range list {
		if s.Key == types.StepAction {
			return s.Confirmation
		}
	}
	return nil
}

func displayQuote(snap engine.Snapshot, req parser.Request, usdValue decimal.Decimal) {
	q := snap.Quote

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     SWAP QUOTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  From:           %s %s\n", snap.Values.FromAmount, color.YellowString(req.FromSymbol))
	if usdValue.IsPositive() {
		fmt.Printf("  Value:          ~$%s\n", usdValue.StringFixed(2))
	}
	fmt.Printf("  To:             ~%s %s\n", snap.Values.ToAmount, color.YellowString(req.ToSymbol))
	fmt.Printf("  Rate:           1 %s = %s %s\n", req.FromSymbol, q.ExchangeRate.StringFixed(6), req.ToSymbol)

	slippage := q.Slippage.StringFixed(4) + "%"
	switch {
	case q.IsBonus:
		fmt.Printf("  Slippage:       %s\n", color.GreenString("+"+slippage+" (bonus)"))
	case q.IsHighSlippage:
		fmt.Printf("  Slippage:       %s\n", color.RedString(slippage))
	default:
		fmt.Printf("  Slippage:       %s\n", slippage)
	}

	impact := q.PriceImpact.StringFixed(4) + "%"
	if q.IsHighImpact {
		fmt.Printf("  Price impact:   %s\n", color.RedString(impact))
	} else {
		fmt.Printf("  Price impact:   %s\n", impact)
	}

	if len(q.Route) > 0 {
		hops := make([]string, 0, len(q.Route))
		for _, h := range q.Route {
			hops = append(hops, h.PoolID)
		}
		fmt.Printf("  Route:          %s\n", strings.Join(hops, " -> "))
	}
	if snap.Gas != nil && snap.Gas.Known {
		fmt.Printf("  Estimated gas:  %d\n", snap.Gas.Value)
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
}

func confirmPrompt(question string) bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Printf("\n%s (y/N): ", question)

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}
