package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/defistate/sandman-swap/ledger"
	"github.com/defistate/sandman-swap/streams/jsonrpc/client"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/cobra"
)

const bpsDenominator = 10_000

var (
	fromFlag       string
	toFlag         string
	minFlag        string
	slippageBps    uint64
	assetFlag      string
	exchangeFlag   string
	sharesFlag     bool
	nameFlag       string
	symbolFlag     string
	decimalsFlag   uint8
	quoteModes     = []string{"base-to-asset", "asset-to-base", "base-in", "asset-in"}
	errMissingFrom = errors.New("--from is required")
)

func init() {
	for _, cmd := range []*cobra.Command{deployTokenCmd, approveCmd, addLiquidityCmd, removeLiquidityCmd, swapCmd, transferSharesCmd} {
		cmd.Flags().StringVar(&fromFlag, "from", "", "acting account")
	}

	balanceCmd.Flags().StringVar(&assetFlag, "asset", "", "report a token balance instead of base currency")
	balanceCmd.Flags().StringVar(&exchangeFlag, "exchange", "", "report liquidity shares of this exchange")

	deployTokenCmd.Flags().StringVar(&nameFlag, "name", "", "token name")
	deployTokenCmd.Flags().StringVar(&symbolFlag, "symbol", "", "token symbol")
	deployTokenCmd.Flags().Uint8Var(&decimalsFlag, "decimals", 18, "token decimals")

	approveCmd.Flags().BoolVar(&sharesFlag, "shares", false, "treat the first argument as an exchange and approve its liquidity shares")

	swapCmd.Flags().StringVar(&toFlag, "to", "", "recipient of the bought side (default --from)")
	swapCmd.Flags().StringVar(&minFlag, "min", "", "minimum accepted output (default: quote less --slippage-bps)")
	swapCmd.Flags().Uint64Var(&slippageBps, "slippage-bps", 50, "tolerated slippage when --min is not set")
}

func from() (common.Address, error) {
	if fromFlag == "" {
		return common.Address{}, errMissingFrom
	}
	return parseAddress("--from", fromFlag)
}

func symbolOf(ctx context.Context, dc *client.DexClient, asset common.Address) string {
	tokens, err := dc.Tokens(ctx)
	if err != nil {
		return asset.Hex()
	}
	if s, ok := symbols(tokens)[asset]; ok {
		return s
	}
	return asset.Hex()
}

var tokensCmd = &cobra.Command{
	Use:   "tokens",
	Short: "List the base currency and every deployed token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDex(cmd, func(ctx context.Context, dc *client.DexClient) error {
			tokens, err := dc.Tokens(ctx)
			if err != nil {
				return err
			}
			printTokens(cmd.OutOrStdout(), tokens)
			return nil
		})
	},
}

var poolsCmd = &cobra.Command{
	Use:   "pools",
	Short: "List every exchange and its reserves",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withDex(cmd, func(ctx context.Context, dc *client.DexClient) error {
			pools, err := dc.Pools(ctx)
			if err != nil {
				return err
			}
			tokens, err := dc.Tokens(ctx)
			if err != nil {
				return err
			}
			printPools(cmd.OutOrStdout(), pools, symbols(tokens))
			return nil
		})
	},
}

var poolCmd = &cobra.Command{
	Use:   "pool <asset>",
	Short: "Show the exchange of one asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asset, err := parseAddress("asset", args[0])
		if err != nil {
			return err
		}
		return withDex(cmd, func(ctx context.Context, dc *client.DexClient) error {
			pool, err := dc.Pool(ctx, asset)
			if err != nil {
				return err
			}
			printPool(cmd.OutOrStdout(), pool, symbolOf(ctx, dc, asset))
			return nil
		})
	},
}

var quoteCmd = &cobra.Command{
	Use:       "quote <asset> <base-to-asset|asset-to-base|base-in|asset-in> <amount>",
	Short:     "Price a trade without executing it",
	Args:      cobra.ExactArgs(3),
	ValidArgs: quoteModes,
	RunE: func(cmd *cobra.Command, args []string) error {
		asset, err := parseAddress("asset", args[0])
		if err != nil {
			return err
		}
		amount, err := parseAmount("amount", args[2])
		if err != nil {
			return err
		}
		return withDex(cmd, func(ctx context.Context, dc *client.DexClient) error {
			var q *uint256.Int
			switch args[1] {
			case "base-to-asset":
				q, err = dc.QuoteBaseToAsset(ctx, asset, amount)
			case "asset-to-base":
				q, err = dc.QuoteAssetToBase(ctx, asset, amount)
			case "base-in":
				q, err = dc.QuoteBaseInForAssetOut(ctx, asset, amount)
			case "asset-in":
				q, err = dc.QuoteAssetInForBaseOut(ctx, asset, amount)
			default:
				return fmt.Errorf("unknown quote mode %q (want one of %v)", args[1], quoteModes)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s%s%s %s\n", Bold, args[1], Reset, q.Dec())
			return nil
		})
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance <account>",
	Short: "Show an account's base, token or share balance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := parseAddress("account", args[0])
		if err != nil {
			return err
		}
		return withDex(cmd, func(ctx context.Context, dc *client.DexClient) error {
			var (
				bal   *uint256.Int
				label = "base"
			)
			switch {
			case exchangeFlag != "":
				ex, err := parseAddress("--exchange", exchangeFlag)
				if err != nil {
					return err
				}
				bal, err = dc.ShareBalance(ctx, ex, account)
				if err != nil {
					return err
				}
				label = "shares"
			case assetFlag != "":
				asset, err := parseAddress("--asset", assetFlag)
				if err != nil {
					return err
				}
				bal, err = dc.AssetBalance(ctx, asset, account)
				if err != nil {
					return err
				}
				label = symbolOf(ctx, dc, asset)
			default:
				bal, err = dc.BaseBalance(ctx, account)
				if err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s%s%s\n", bal.Dec(), Gray, label, Reset)
			return nil
		})
	},
}

var fundCmd = &cobra.Command{
	Use:   "fund <account> <amount>",
	Short: "Mint base currency to an account (faucet-enabled daemons only)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		account, err := parseAddress("account", args[0])
		if err != nil {
			return err
		}
		amount, err := parseAmount("amount", args[1])
		if err != nil {
			return err
		}
		return withDex(cmd, func(ctx context.Context, dc *client.DexClient) error {
			if err := dc.Fund(ctx, account, amount); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), Green+"funded"+Reset)
			return nil
		})
	},
}

var deployTokenCmd = &cobra.Command{
	Use:   "deploy-token <supply>",
	Short: "Deploy a token whose supply is minted to --from",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		deployer, err := from()
		if err != nil {
			return err
		}
		supply, err := parseAmount("supply", args[0])
		if err != nil {
			return err
		}
		meta := ledger.Metadata{Name: nameFlag, Symbol: symbolFlag, Decimals: decimalsFlag}
		return withDex(cmd, func(ctx context.Context, dc *client.DexClient) error {
			asset, err := dc.DeployToken(ctx, deployer, meta, supply)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%stoken%s %s\n", Green, Reset, asset.Hex())
			return nil
		})
	},
}

var createExchangeCmd = &cobra.Command{
	Use:   "create-exchange <asset>",
	Short: "Create the exchange of an asset",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asset, err := parseAddress("asset", args[0])
		if err != nil {
			return err
		}
		return withDex(cmd, func(ctx context.Context, dc *client.DexClient) error {
			ex, err := dc.CreateExchange(ctx, asset)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%sexchange%s %s\n", Green, Reset, ex.Hex())
			return nil
		})
	},
}

var approveCmd = &cobra.Command{
	Use:   "approve <asset> <spender> <amount>",
	Short: "Set a spender's allowance over --from's tokens",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := from()
		if err != nil {
			return err
		}
		target, err := parseAddress("asset", args[0])
		if err != nil {
			return err
		}
		spender, err := parseAddress("spender", args[1])
		if err != nil {
			return err
		}
		amount, err := parseAmount("amount", args[2])
		if err != nil {
			return err
		}
		return withDex(cmd, func(ctx context.Context, dc *client.DexClient) error {
			if sharesFlag {
				err = dc.ApproveShares(ctx, target, owner, spender, amount)
			} else {
				err = dc.Approve(ctx, target, owner, spender, amount)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), Green+"approved"+Reset)
			return nil
		})
	},
}

var addLiquidityCmd = &cobra.Command{
	Use:   "add-liquidity <asset> <base> <max-asset>",
	Short: "Deposit base currency and asset into an exchange",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		caller, err := from()
		if err != nil {
			return err
		}
		asset, err := parseAddress("asset", args[0])
		if err != nil {
			return err
		}
		baseIn, err := parseAmount("base", args[1])
		if err != nil {
			return err
		}
		maxAssetIn, err := parseAmount("max-asset", args[2])
		if err != nil {
			return err
		}
		return withDex(cmd, func(ctx context.Context, dc *client.DexClient) error {
			minted, err := dc.AddLiquidity(ctx, caller, asset, baseIn, maxAssetIn)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%sminted%s %s shares\n", Green, Reset, minted.Dec())
			return nil
		})
	},
}

var removeLiquidityCmd = &cobra.Command{
	Use:   "remove-liquidity <asset> <shares>",
	Short: "Burn liquidity shares for a pro-rata slice of the reserves",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		caller, err := from()
		if err != nil {
			return err
		}
		asset, err := parseAddress("asset", args[0])
		if err != nil {
			return err
		}
		shares, err := parseAmount("shares", args[1])
		if err != nil {
			return err
		}
		return withDex(cmd, func(ctx context.Context, dc *client.DexClient) error {
			baseOut, assetOut, err := dc.RemoveLiquidity(ctx, caller, asset, shares)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%swithdrew%s %s base, %s asset\n", Green, Reset, baseOut.Dec(), assetOut.Dec())
			return nil
		})
	},
}

// withSlippage returns quote less bps basis points. The product is taken at 512
// bits, so the result never exceeds quote.
func withSlippage(quote *uint256.Int, bps uint64) *uint256.Int {
	if bps >= bpsDenominator {
		return new(uint256.Int)
	}
	out, _ := new(uint256.Int).MulDivOverflow(quote, uint256.NewInt(bpsDenominator-bps), uint256.NewInt(bpsDenominator))
	return out
}

var swapCmd = &cobra.Command{
	Use:   "swap <sell> <buy> <amount>",
	Short: "Sell an exact amount of one side for another (use \"base\" for the base currency)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		caller, err := from()
		if err != nil {
			return err
		}
		amount, err := parseAmount("amount", args[2])
		if err != nil {
			return err
		}
		var recipient *common.Address
		if toFlag != "" {
			to, err := parseAddress("--to", toFlag)
			if err != nil {
				return err
			}
			recipient = &to
		}

		sellBase, buyBase := isBase(args[0]), isBase(args[1])
		if sellBase && buyBase {
			return errors.New("sell and buy are both the base currency")
		}
		var sell, buy common.Address
		if !sellBase {
			if sell, err = parseAddress("sell", args[0]); err != nil {
				return err
			}
		}
		if !buyBase {
			if buy, err = parseAddress("buy", args[1]); err != nil {
				return err
			}
		}

		return withDex(cmd, func(ctx context.Context, dc *client.DexClient) error {
			minOut, err := swapMinimum(ctx, dc, sellBase, buyBase, sell, buy, amount)
			if err != nil {
				return err
			}

			var out *uint256.Int
			switch {
			case sellBase:
				out, err = dc.SwapBaseForAsset(ctx, caller, buy, amount, minOut, recipient)
			case buyBase:
				out, err = dc.SwapAssetForBase(ctx, caller, sell, amount, minOut, recipient)
			default:
				out, err = dc.SwapAssetForAsset(ctx, caller, sell, buy, amount, minOut, recipient)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%sbought%s %s (min %s)\n", Green, Reset, out.Dec(), minOut.Dec())
			return nil
		})
	},
}

// swapMinimum returns --min when set, otherwise the current quote less the
// tolerated slippage. An asset-to-asset quote chains both exchanges.
func swapMinimum(ctx context.Context, dc *client.DexClient, sellBase, buyBase bool, sell, buy common.Address, amount *uint256.Int) (*uint256.Int, error) {
	if minFlag != "" {
		return parseAmount("--min", minFlag)
	}
	var (
		quote *uint256.Int
		err   error
	)
	switch {
	case sellBase:
		quote, err = dc.QuoteBaseToAsset(ctx, buy, amount)
	case buyBase:
		quote, err = dc.QuoteAssetToBase(ctx, sell, amount)
	default:
		var baseMid *uint256.Int
		if baseMid, err = dc.QuoteAssetToBase(ctx, sell, amount); err != nil {
			return nil, err
		}
		quote, err = dc.QuoteBaseToAsset(ctx, buy, baseMid)
	}
	if err != nil {
		return nil, err
	}
	return withSlippage(quote, slippageBps), nil
}

var transferSharesCmd = &cobra.Command{
	Use:   "transfer-shares <exchange> <to> <amount>",
	Short: "Move liquidity shares from --from to another account",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, err := from()
		if err != nil {
			return err
		}
		ex, err := parseAddress("exchange", args[0])
		if err != nil {
			return err
		}
		to, err := parseAddress("to", args[1])
		if err != nil {
			return err
		}
		amount, err := parseAmount("amount", args[2])
		if err != nil {
			return err
		}
		return withDex(cmd, func(ctx context.Context, dc *client.DexClient) error {
			if err := dc.TransferShares(ctx, ex, owner, to, amount); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), Green+"transferred"+Reset)
			return nil
		})
	},
}
