package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/trilltino/handyman/internal/cart"
	"github.com/trilltino/handyman/internal/checkout"
	"github.com/trilltino/handyman/internal/config"
	"github.com/trilltino/handyman/internal/consumer"
	h "github.com/trilltino/handyman/internal/http"
	"github.com/trilltino/handyman/internal/lock"
	"github.com/trilltino/handyman/internal/order"
	"github.com/trilltino/handyman/internal/payment"
	"github.com/trilltino/handyman/internal/publisher"
	"github.com/trilltino/handyman/internal/repository"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the order outbox publisher",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, log, err := setup()
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, log)
	},
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	cat, err := openCatalog(cfg)
	if err != nil {
		return err
	}
	defer cat.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	health := map[string]h.HealthCheck{
		"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}

	var store cart.Store
	switch cfg.CartStore {
	case config.CartStoreMongo:
		db, err := cart.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return err
		}
		defer db.Client().Disconnect(context.Background())
		ms := cart.NewMongoStore(db, cfg.MongoCartTTL)
		if err := ms.EnsureIndexes(ctx); err != nil {
			return err
		}
		store = cart.NewCachedStore(ms, cart.NewRedisCache(rdb, 15*time.Minute))
		health["mongo"] = func(ctx context.Context) error { return db.Client().Ping(ctx, nil) }
	default:
		store = cart.NewRedisStore(rdb, cfg.CartTTL)
	}
	log.Info("cart store selected", zap.String("store", cfg.CartStore))

	repo, err := repository.NewRepository(ctx, credentials(cfg))
	if err != nil {
		return err
	}
	defer repo.Close()
	if err := repo.RunMigrations(credentials(cfg)); err != nil {
		return err
	}
	health["postgres"] = repo.Ping

	var gateway payment.Gateway
	switch cfg.PaymentMode {
	case config.PaymentModeHTTP:
		gateway = payment.NewHTTPGateway(cfg.PaymentAPIURL, cfg.PaymentAPIKey, nil)
	default:
		gateway = payment.NewSimulatedGateway(cfg.PaymentApprovalRate, 300*time.Millisecond)
	}
	log.Info("payment gateway selected", zap.String("mode", cfg.PaymentMode))

	carts := cart.NewService(store, cat, cfg.Currency)
	submitter := order.NewSubmitter(lock.NewRedisGuard(rdb, "checkout:inflight:"), carts, gateway, repo, cfg.PaymentTimeout)
	checkouts := checkout.NewService(carts, submitter)

	poller := publisher.NewOutboxPoller(repo, cfg.OrdersTopic, cfg.KafkaBrokers...)
	defer poller.Close()
	cleaner := consumer.NewCartCleaner(carts, cfg.OrdersTopic, cfg.KafkaBrokers...)
	defer cleaner.Close()

	var workers sync.WaitGroup
	workers.Add(2)
	go func() {
		defer workers.Done()
		poller.Run(ctx)
	}()
	go func() {
		defer workers.Done()
		cleaner.Run(ctx)
	}()

	router := h.NewRouter(h.RouterConfig{
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
		SecureCookies:      cfg.SecureCookies,
	}, h.Dependencies{
		Catalog:  cat,
		Carts:    carts,
		Checkout: checkouts,
		Contacts: repo,
		Health:   health,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("storefront starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
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
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	workers.Wait()

	log.Info("server exited")
	return nil
}
