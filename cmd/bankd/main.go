package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/bankd/internal/bank"
	"github.com/congo-pay/bankd/internal/config"
	"github.com/congo-pay/bankd/internal/infra"
	"github.com/congo-pay/bankd/internal/logging"
	"github.com/congo-pay/bankd/internal/notification"
	"github.com/congo-pay/bankd/internal/server"
	"github.com/congo-pay/bankd/internal/store"
	"github.com/congo-pay/bankd/internal/verbs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	seed, err := config.LoadSeed(cfg.SeedFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load seed: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	st, cache, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("open store", "backend", cfg.StoreBackend, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	dispatcher := verbs.NewDispatcher(logging.Component(logger, "verbs"))

	srv, err := server.New(cfg, st, cache, dispatcher, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	// Requests answer unready until the bank object has loaded.
	go func() {
		b, err := server.LoadBank(ctx, st, cfg.BankRef, logger,
			bank.WithLogger(logging.Component(logger, "bank")),
			bank.WithNotifier(notification.NewLoggerNotifier(logger)),
			bank.WithAccountCollection(cfg.AccountCollection),
		)
		if err != nil {
			logger.Error("load bank", "bank", cfg.BankRef, "error", err)
			return
		}
		if err := server.ApplySeed(ctx, b, seed, logger); err != nil {
			logger.Error("apply seed", "error", err)
		}
		dispatcher.SetBank(b)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}

// openStore connects the configured document store. The Redis client doubles
// as the idempotency and rate limit backend whenever REDIS_URL is set.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, *redis.Client, func(), error) {
	var (
		cache   *redis.Client
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.RedisURL != "" {
		client, err := infra.NewRedisClient(ctx, cfg.RedisURL, cfg.AppName)
		if err != nil {
			return nil, nil, nil, err
		}
		cache = client
		closers = append(closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		})
	}

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			closeAll()
			return nil, nil, nil, err
		}
		closers = append(closers, db.Close)
		if err := infra.EnsureSchema(ctx, db, store.Schema); err != nil {
			closeAll()
			return nil, nil, nil, err
		}
		return store.NewPostgres(db), cache, closeAll, nil
	case config.BackendRedis:
		return store.NewRedis(cache), cache, closeAll, nil
	default:
		logger.Warn("using in-memory store, state is lost on exit")
		return store.NewMemory(), cache, closeAll, nil
	}
}
