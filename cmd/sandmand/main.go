// Command sandmand runs a Sandman Swap exchange and serves it over JSON-RPC.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/defistate/sandman-swap/cmd/sandmand/config"
	"github.com/defistate/sandman-swap/dex"
	"github.com/defistate/sandman-swap/streams/jsonrpc/server"
	"github.com/defistate/sandman-swap/streams/jsonrpc/stateops"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	rootLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	close := func() {
		os.Exit(1)
	}

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	prometheusRegistry := prometheus.DefaultRegisterer

	system, err := dex.NewSystem(&dex.Config{
		Logger:         rootLogger.With("component", "dex"),
		Registry:       prometheusRegistry,
		FactoryAddress: cfg.FactoryAddress,
	})
	if err != nil {
		rootLogger.Error("Failed to initialize exchange system", "error", err)
		close()
	}

	deployments, err := cfg.Genesis.Apply(system)
	if err != nil {
		rootLogger.Error("Failed to apply genesis", "error", err)
		close()
	}
	for _, d := range deployments {
		rootLogger.Info("Genesis token deployed", "symbol", d.Symbol, "asset", d.Asset, "exchange", d.Exchange)
	}

	stateOps, err := stateops.NewStateOps(rootLogger.With("component", "stateops"), prometheusRegistry)
	if err != nil {
		rootLogger.Error("Failed to initialize state ops", "error", err)
		close()
	}

	rpcServer, err := server.NewServer(&server.Config{
		Backend:    system,
		Differ:     stateOps,
		Logger:     rootLogger.With("component", "jsonrpc-server"),
		BufferSize: cfg.StreamBufferSize,
		Faucet:     cfg.Faucet,
	})
	if err != nil {
		rootLogger.Error("Failed to initialize JSON-RPC server", "error", err)
		close()
	}
	defer rpcServer.Stop()

	servers := []*http.Server{{
		Addr:              cfg.ListenAddr,
		Handler:           rpcHandler(rpcServer, cfg.WSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}}
	if cfg.MetricsAddr != "" {
		servers = append(servers, &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			rootLogger.Info("Listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				rootLogger.Warn("Server shutdown failed", "addr", srv.Addr, "error", err)
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		rootLogger.Error("Server failed", "error", err)
		close()
	}
	rootLogger.Info("Shut down", "sequence", system.Sequence())
}

// rpcHandler serves websocket upgrades and plain HTTP calls on the same path.
func rpcHandler(srv *rpc.Server, origins []string) http.Handler {
	ws := srv.WebsocketHandler(origins)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			ws.ServeHTTP(w, r)
			return
		}
		srv.ServeHTTP(w, r)
	})
}

func loadConfig() (*config.Config, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadConfig(*configPath)
}
