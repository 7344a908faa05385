// Command client follows a sandmand state stream and logs every committed operation.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/defistate/sandman-swap/cmd/client/config"
	"github.com/defistate/sandman-swap/dex"
	"github.com/defistate/sandman-swap/engine"
	"github.com/defistate/sandman-swap/protocols/exchange"
	"github.com/defistate/sandman-swap/streams/jsonrpc/client"
	"github.com/defistate/sandman-swap/streams/jsonrpc/stateops"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// create the log handler
	rootLogHandler := slog.NewJSONHandler(os.Stdout, nil)
	close := func() {
		os.Exit(1)
	}

	rootLogger := slog.New(rootLogHandler)
	prometheusRegistry := prometheus.DefaultRegisterer
	cfg, err := loadConfig()
	if err != nil {
		rootLogger.Error("Failed to load configuration", "error", err)
		close()
	}

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stateOps, err := stateops.NewStateOps(rootLogger, prometheusRegistry)
	if err != nil {
		rootLogger.Error("Failed to initialize state ops", "error", err)
		close()
	}

	client, err := client.NewClient(
		ctx,
		client.Config{
			URL:              cfg.StateStreamURL,
			Logger:           rootLogger.With("component", "jsonrpc-client"),
			BufferSize:       cfg.BufferSize,
			StatePatcher:     stateOps.Patch,
			StateDecoder:     stateOps.DecodeStateJSON,
			StateDiffDecoder: stateOps.DecodeStateDiffJSON,
		},
	)
	if err != nil {
		rootLogger.Error("Failed to initialize Client", "url", cfg.StateStreamURL, "error", err)
		close()
	}

	for {
		select {
		case state := <-client.State():
			logState(rootLogger, state)
		case err := <-client.Err():
			rootLogger.Error("Fatal client error", "error", err)
			return
		case <-ctx.Done():
			return
		}
	}
}

func logState(logger *slog.Logger, state *engine.State) {
	pools, _ := state.Protocols[dex.ProtocolExchanges].Data.([]exchange.PoolView)
	funded := 0
	for _, p := range pools {
		if !p.BaseReserve.IsZero() {
			funded++
		}
	}
	logger.Info("state",
		"sequence", state.Sequence.Number,
		"operation", state.Sequence.Operation,
		"exchanges", len(pools),
		"funded_exchanges", funded,
	)
}

func loadConfig() (*config.ClientConfig, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadConfig(*configPath)
}
