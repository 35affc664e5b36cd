package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/openalpha/sharepool/api"
	"github.com/openalpha/sharepool/api/websocket"
	"github.com/openalpha/sharepool/indexer"
	"github.com/openalpha/sharepool/metrics"
	"github.com/openalpha/sharepool/pkg/eventbus"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:   "sharepool-api",
		Short: "Standalone SharePool ledger with HTTP and WebSocket API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := api.LoadConfig(v, configFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
		SilenceUsage: true,
	}

	flags := cmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "config file (yaml, toml or json)")
	flags.String("listen", "", "listen address, e.g. 0.0.0.0:8080")
	flags.String("data-dir", "", "ledger state directory; empty keeps state in memory")
	flags.Bool("faucet", false, "enable the development faucet")
	flags.Bool("no-rate-limit", false, "disable rate limiting")
	flags.String("nats-url", "", "publish events to this NATS server (requires --data-dir)")
	flags.String("log-level", "", "log level")

	for key, flag := range map[string]string{
		"server.listen":         "listen",
		"ledger.data_dir":       "data-dir",
		"ledger.faucet_enabled": "faucet",
		"rate_limit.disabled":   "no-rate-limit",
		"nats.url":              "nats-url",
		"log.level":             "log-level",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}
	return cmd
}

func run(parent context.Context, cfg *api.Config) error {
	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.GetCollector()
	}

	service, err := api.NewLedgerService(api.ServiceOptions{
		Denom:   cfg.Ledger.Denom,
		DataDir: cfg.Ledger.DataDir,
		Logger:  logger,
		Metrics: collector,
	})
	if err != nil {
		return err
	}
	defer service.Close()

	// The in-process index starts empty; replay comes from the durable
	// indexer when one runs behind NATS.
	store := indexer.NewMemoryStore()
	service.AddSink("indexer", indexer.New(store, logger, collector))

	hub := websocket.NewHub(cfg.HubConfig(), logger, collector)
	service.AddSink("websocket", hub)

	if cfg.NATS.URL != "" {
		busCfg := eventbus.DefaultConfig()
		busCfg.URL = cfg.NATS.URL
		busCfg.Name = "sharepool-api"
		if cfg.NATS.SubjectPrefix != "" {
			busCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		}
		conn, err := eventbus.Connect(busCfg, logger)
		if err != nil {
			return err
		}
		publisher := eventbus.NewPublisher(conn, busCfg.SubjectPrefix)
		defer publisher.Close()
		service.AddSink("nats", publisher)
	}

	server, err := api.NewServer(cfg, service, store, hub, logger, collector)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(ctx)
	}()

	logger.Info("SharePool API started",
		"listen", cfg.Server.Listen,
		"ws", "ws://"+cfg.Server.Listen+"/ws",
		"persistent", cfg.Ledger.DataDir != "",
		"nats", cfg.NATS.URL != "",
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if msg, broken := service.CheckInvariants(shutdownCtx); broken {
		logger.Error("ledger invariant broken at shutdown", "details", msg)
	}
	logger.Info("server exited")
	return nil
}
