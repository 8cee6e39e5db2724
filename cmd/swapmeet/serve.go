package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/swapmeet/swapmeet/internal/api"
	"github.com/swapmeet/swapmeet/internal/auth"
	"github.com/swapmeet/swapmeet/internal/config"
	"github.com/swapmeet/swapmeet/internal/db"
	"github.com/swapmeet/swapmeet/internal/exchange"
	"github.com/swapmeet/swapmeet/internal/kafka"
	"github.com/swapmeet/swapmeet/internal/karma"
	"github.com/swapmeet/swapmeet/internal/notify"
	"github.com/swapmeet/swapmeet/internal/store"
)

func serveCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, c)
		},
	}
	cmd.Flags().String("addr", "", "listen address (default :8080)")
	c.v.BindPFlag("http.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

// services tracks the background work serve starts. close first runs the
// drains while the work context is still live, then cancels it, waits for the
// workers and runs the closers. Drains and closers run in reverse order.
type services struct {
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	drains  []func()
	closers []func()
}

func (s *services) onDrain(f func()) { s.drains = append(s.drains, f) }

func (s *services) onClose(f func()) { s.closers = append(s.closers, f) }

func (s *services) close() {
	for i := len(s.drains) - 1; i >= 0; i-- {
		s.drains[i]()
	}
	s.cancel()
	s.wg.Wait()
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func serve(ctx context.Context, c *cli) error {
	cfg := c.cfg

	database, err := c.openDB()
	if err != nil {
		return err
	}
	defer database.Close()
	slog.Info("database ready", "driver", cfg.DB.Driver)

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		// Generated on first run and persisted.
		if secret, err = store.GetJWTSecret(ctx, database); err != nil {
			return err
		}
	}

	// Workers outlive individual requests but stop with the server.
	workCtx, cancelWork := context.WithCancel(context.Background())
	svc := &services{cancel: cancelWork}
	defer svc.close()

	ledger, err := newLedger(ctx, cfg, database, svc)
	if err != nil {
		return err
	}
	sweeper := exchange.NewSweeper(database, ledger)

	sinks := notify.Multi{notify.Log{}}
	var sweeps exchange.Dispatcher
	if len(cfg.Kafka.Brokers) > 0 {
		sweeps, err = startKafka(workCtx, cfg, sweeper, svc)
		if err != nil {
			return err
		}
		notifications := kafka.NewProducer(cfg.Kafka.Brokers, kafka.TopicNotifications, cfg.Sweep.Queue)
		notifications.Start()
		svc.onClose(func() {
			notifications.Close()
			notifications.WaitClosed()
		})
		sinks = append(sinks, notify.Kafka{Publisher: notifications})
		slog.Info("kafka enabled", "brokers", cfg.Kafka.Brokers, "group", cfg.Kafka.Group)
	} else {
		pool := exchange.NewPool(sweeper, cfg.Sweep.Workers, cfg.Sweep.Queue)
		pool.Start(workCtx)
		svc.onDrain(pool.Close)
		sweeps = pool
	}

	registry := exchange.NewRegistry(database, sweeps)
	coord := exchange.NewCoordinator(database, registry, sweeper, sweeps, sinks)

	svc.wg.Add(1)
	go func() {
		defer svc.wg.Done()
		maintain(workCtx, database, sweeper, cfg.Sweep.Interval)
	}()

	router := api.NewRouter(api.Deps{
		DB:             database,
		Tokens:         auth.NewTokens(secret, cfg.Auth.TokenTTL),
		Registry:       registry,
		Coordinator:    coord,
		Ledger:         ledger,
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server started", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("server stopped, draining workers")
	return nil
}

// newLedger picks the Redis ledger when redis.addr is set and the SQL ledger
// otherwise.
func newLedger(ctx context.Context, cfg *config.Config, database *db.DB, svc *services) (exchange.KarmaLedger, error) {
	points := karma.Points{Owner: cfg.Karma.OwnerPoints, Offeror: cfg.Karma.OfferorPoints}
	if cfg.Redis.Addr == "" {
		return karma.NewSQLLedger(database, points), nil
	}

	rdb, err := karma.NewRedisClient(ctx, cfg.Redis.Addr)
	if err != nil {
		return nil, err
	}
	svc.onClose(func() { rdb.Close() })
	slog.Info("karma ledger on redis", "addr", cfg.Redis.Addr)
	return karma.NewRedisLedger(rdb, points), nil
}

// startKafka publishes sweep tasks to the sweep topic and consumes them in
// this instance's consumer group.
func startKafka(ctx context.Context, cfg *config.Config, sweeper *exchange.Sweeper, svc *services) (exchange.Dispatcher, error) {
	producer := kafka.NewProducer(cfg.Kafka.Brokers, kafka.TopicOfferSweep, cfg.Sweep.Queue)
	producer.Start()
	svc.onClose(func() {
		producer.Close()
		producer.WaitClosed()
	})

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Group, kafka.TopicOfferSweep, cfg.Sweep.Workers)
	svc.wg.Add(1)
	go func() {
		defer svc.wg.Done()
		if err := consumer.Run(ctx, exchange.SweepHandler(sweeper)); err != nil {
			slog.Error("sweep consumer stopped", "error", err)
		}
	}()

	return exchange.KafkaDispatcher{Publisher: producer}, nil
}

// maintain runs Reconcile and purges expired token revocations every interval
// until ctx is done.
func maintain(ctx context.Context, database *db.DB, sweeper *exchange.Sweeper, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		res, err := sweeper.Reconcile(ctx)
		if err != nil {
			slog.Error("reconcile failed", "error", err, "failed", res.Failed)
		} else if res.StaleItems > 0 || res.UnsettledOffers > 0 {
			slog.Info("reconciled", "stale_items", res.StaleItems, "unsettled_offers", res.UnsettledOffers)
		}

		if n, err := store.PurgeRevokedTokens(ctx, database, time.Now()); err != nil {
			slog.Error("purging revoked tokens", "error", err)
		} else if n > 0 {
			slog.Info("purged revoked tokens", "count", n)
		}
	}
}
