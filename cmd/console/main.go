// Command console is an operator CLI for a sandmand exchange.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/defistate/sandman-swap/streams/jsonrpc/client"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
)

const (
	defaultURL     = "http://127.0.0.1:8545"
	defaultTimeout = 10 * time.Second
)

var (
	rpcURL  string
	timeout time.Duration

	rootCmd = &cobra.Command{
		Use:          "console",
		Short:        "Sandman Swap operator console",
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&rpcURL, "url", defaultURL, "sandmand endpoint (http:// or ws://)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", defaultTimeout, "per-call timeout")

	rootCmd.AddCommand(
		tokensCmd,
		poolsCmd,
		poolCmd,
		quoteCmd,
		balanceCmd,
		fundCmd,
		deployTokenCmd,
		createExchangeCmd,
		approveCmd,
		addLiquidityCmd,
		removeLiquidityCmd,
		swapCmd,
		transferSharesCmd,
		watchCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, Red+"error: "+err.Error()+Reset)
		os.Exit(1)
	}
}

// withDex dials the endpoint and runs fn under the per-call timeout.
func withDex(cmd *cobra.Command, fn func(ctx context.Context, dc *client.DexClient) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	dc, err := client.DialDex(ctx, rpcURL)
	if err != nil {
		return fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	defer dc.Close()
	return fn(ctx, dc)
}

func parseAddress(name, s string) (common.Address, error) {
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: %q is not a hex address", name, s)
	}
	return common.HexToAddress(s), nil
}

func parseAmount(name, s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %q is not a decimal amount: %w", name, s, err)
	}
	return v, nil
}

// isBase reports whether s names the base currency rather than an asset address.
func isBase(s string) bool {
	switch strings.ToLower(s) {
	case "base", "eth", "native":
		return true
	}
	return false
}
