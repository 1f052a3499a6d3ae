package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"swapflow/config"
)

var networksCmd = &cobra.Command{
	Use:   "networks",
	Short: "List the configured networks",
	Run:   runNetworksCmd,
}

func init() {
	rootCmd.AddCommand(networksCmd)
}

func runNetworksCmd(_ *cobra.Command, _ []string) {
	cfg, err := config.Load()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	names := cfg.Networks.Names()
	sort.Strings(names)

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                  CONFIGURED NETWORKS")
	fmt.Println(strings.Repeat("=", 60))

	for _, name := range names {
		n := cfg.Networks[name]
		marker := "  "
		if name == cfg.DefaultNetwork {
			marker = color.GreenString("* ")
		}
		fmt.Printf("\n%s%s (chain id %d)\n", marker, color.YellowString(n.Name), n.ChainID)
		fmt.Printf("    RPC:      %s\n", n.RPCURL)
		fmt.Printf("    Explorer: %s\n", n.ExplorerURL)
		fmt.Printf("    Native:   %s\n", n.NativeSymbol)
		if n.Router != "" {
			fmt.Printf("    Router:   %s\n", n.Router)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}
