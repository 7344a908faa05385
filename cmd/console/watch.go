package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/defistate/sandman-swap/dex"
	"github.com/defistate/sandman-swap/engine"
	"github.com/defistate/sandman-swap/protocols/exchange"
	"github.com/defistate/sandman-swap/protocols/tokenregistry"
	"github.com/defistate/sandman-swap/streams/jsonrpc/client"
	"github.com/defistate/sandman-swap/streams/jsonrpc/stateops"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

const defaultStateBufferSize = 100

var (
	watchPools   bool
	watchLogFile string
)

func init() {
	watchCmd.Flags().BoolVar(&watchPools, "pools", false, "print the exchange table on every update")
	watchCmd.Flags().StringVar(&watchLogFile, "log-file", "console.log", "where stream client logs are written")
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the state stream (requires a ws:// --url)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		logFile, err := os.OpenFile(watchLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer logFile.Close()
		logger := slog.New(slog.NewJSONHandler(logFile, nil))

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		ops, err := stateops.NewStateOps(logger, prometheus.NewRegistry())
		if err != nil {
			return err
		}
		stream, err := client.NewClient(ctx, client.Config{
			URL:              rpcURL,
			Logger:           logger.With("component", "jsonrpc-client"),
			BufferSize:       defaultStateBufferSize,
			StatePatcher:     ops.Patch,
			StateDecoder:     ops.DecodeStateJSON,
			StateDiffDecoder: ops.DecodeStateDiffJSON,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, Green+"Watching "+rpcURL+Reset+Gray+" (logs: "+watchLogFile+")"+Reset)
		latest := &SafeState{}
		for {
			select {
			case state := <-stream.State():
				first := latest.Get() == nil
				latest.Update(state)
				printSequence(out, state)
				if first {
					printProtocolSummary(out, state)
				}
				if watchPools {
					printStatePools(out, state)
				}
			case err := <-stream.Err():
				return err
			case <-ctx.Done():
				fmt.Fprintln(out, "\n"+Yellow+"Shutting down..."+Reset)
				return nil
			}
		}
	},
}

func printStatePools(out io.Writer, state *engine.State) {
	pools, _ := state.Protocols[dex.ProtocolExchanges].Data.([]exchange.PoolView)
	tokens, _ := state.Protocols[dex.ProtocolTokens].Data.([]tokenregistry.Token)
	printPools(out, pools, symbols(tokens))
}
