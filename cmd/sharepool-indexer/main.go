package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cosmossdk.io/log"
	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/mux"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

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
		Use:   "sharepool-indexer",
		Short: "Fold SharePool ledger events from NATS into PostgreSQL",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, configFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
		SilenceUsage: true,
	}

	flags := cmd.Flags()
	flags.StringVarP(&configFile, "config", "c", "", "config file (yaml, toml or json)")
	flags.String("dsn", "", "PostgreSQL DSN")
	flags.String("nats-url", "", "NATS server URL")
	flags.String("queue", "", "NATS queue group")
	flags.String("backfill-url", "", "ledger API base URL used to fill sequence gaps")
	flags.String("metrics-listen", "", "metrics and health listen address")
	flags.String("log-level", "", "log level")

	for key, flag := range map[string]string{
		"database.dsn":     "dsn",
		"nats.url":         "nats-url",
		"nats.queue_group": "queue",
		"backfill_url":     "backfill-url",
		"metrics_listen":   "metrics-listen",
		"log.level":        "log-level",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}
	return cmd
}

func run(parent context.Context, cfg *Config) error {
	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		return err
	}
	collector := metrics.GetCollector()

	store, err := indexer.OpenGormStore(cfg.gorm())
	if err != nil {
		return err
	}
	defer store.Close()

	ix := indexer.New(store, logger, collector)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var backfiller *indexer.Backfiller
	if cfg.BackfillURL != "" {
		backfiller = indexer.NewBackfiller(cfg.BackfillURL, nil)
		ix.RequireContiguous = true
		n, err := backfiller.Run(ctx, ix)
		if err != nil {
			return fmt.Errorf("initial backfill: %w", err)
		}
		logger.Info("initial backfill complete", "applied", n)
	}

	conn, err := connectWithRetry(ctx, cfg.bus(), cfg.NATS.ConnectRetry, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := eventbus.NewSubscriber(conn, cfg.NATS.SubjectPrefix, cfg.NATS.QueueGroup, logger)
	if err := sub.Start(ctx, newHandler(ix, backfiller, logger)); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.MetricsListen,
		Handler:           newRouter(ix),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	logger.Info("SharePool indexer started",
		"subject", sub.Subject(),
		"queue", cfg.NATS.QueueGroup,
		"metrics", cfg.MetricsListen,
		"backfill", cfg.BackfillURL != "",
	)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down indexer")
	if err := sub.Stop(); err != nil {
		logger.Error("unsubscribe failed", "error", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// connectWithRetry dials NATS with exponential backoff until maxWait elapses
func connectWithRetry(ctx context.Context, cfg eventbus.Config, maxWait time.Duration, logger log.Logger) (*nats.Conn, error) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = maxWait

	var conn *nats.Conn
	err := backoff.RetryNotify(func() error {
		c, err := eventbus.Connect(cfg, logger)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
		logger.Info("nats not reachable, retrying", "url", cfg.URL, "wait", wait, "error", err)
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// newHandler applies bus events and, when a backfiller is configured,
// replays the ledger log once on a sequence gap before retrying the event.
func newHandler(ix *indexer.Indexer, backfiller *indexer.Backfiller, logger log.Logger) eventbus.Handler {
	return func(ctx context.Context, ev indexer.Event) error {
		_, err := ix.Apply(ctx, ev)
		if err == nil || backfiller == nil || !errors.Is(err, indexer.ErrSequenceGap) {
			return err
		}

		logger.Info("sequence gap, backfilling", "seq", ev.Seq)
		n, berr := backfiller.Run(ctx, ix)
		if berr != nil {
			return fmt.Errorf("backfill after gap at %d: %w", ev.Seq, berr)
		}
		logger.Info("gap backfill complete", "applied", n)
		_, err = ix.Apply(ctx, ev)
		return err
	}
}

func newRouter(ix *indexer.Indexer) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		last, err := ix.Store().LastSeq(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status":"degraded","error":%q}`, err.Error())
			return
		}
		fmt.Fprintf(w, `{"status":"ok","last_seq":%d}`, last)
	}).Methods(http.MethodGet)
	return r
}
