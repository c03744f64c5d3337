// File: cmd/app/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"telegram-reaction-payout/internal/config"
	"telegram-reaction-payout/internal/domain/model"
	"telegram-reaction-payout/internal/domain/ports/adapter"
	payAdapters "telegram-reaction-payout/internal/infra/adapters/payment"
	tele "telegram-reaction-payout/internal/infra/adapters/telegram"
	"telegram-reaction-payout/internal/infra/api"
	pg "telegram-reaction-payout/internal/infra/db/postgres"
	"telegram-reaction-payout/internal/infra/logging"
	"telegram-reaction-payout/internal/infra/metrics"
	red "telegram-reaction-payout/internal/infra/redis"
	"telegram-reaction-payout/internal/infra/sched"
	"telegram-reaction-payout/internal/infra/worker"
	"telegram-reaction-payout/internal/usecase"
)

func main() {
	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "developer mode: in-memory gateway and logging bot")
	mintFor := flag.String("mint-token", "", "print an admin API token for the given subject and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)

	auth := api.NewAuthManager(cfg.Admin.JWTSecret, 24*time.Hour)
	if *mintFor != "" {
		tok, err := auth.Mint(*mintFor)
		if err != nil {
			logger.Fatal().Err(err).Msg("mint token")
		}
		fmt.Println(tok)
		return
	}

	if err := run(cfg, auth, logger); err != nil {
		logger.Fatal().Err(err).Msg("payout service stopped")
	}
}

func run(cfg *config.Config, auth *api.AuthManager, logger *zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] in-memory transfer gateway and noop bot")
	}
	rate, err := model.ParseRate(cfg.Payout.Rate)
	if err != nil {
		return fmt.Errorf("payout.rate: %w", err)
	}

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// ---- Adapters ----
	var gateway adapter.TransferClient
	var bot adapter.TelegramBotAdapter
	if cfg.Runtime.Dev {
		gateway = payAdapters.NewNoopTransferClient(2)
		bot = tele.NewNoopBotAdapter(logger)
	} else {
		if gateway, err = payAdapters.NewYooMoneyClient(cfg.YooMoney.Token, cfg.YooMoney.BaseURL, cfg.YooMoney.Timeout, logger); err != nil {
			return fmt.Errorf("yoomoney: %w", err)
		}
		if bot, err = tele.NewRealTelegramBotAdapter(&cfg.Bot, logger); err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
	}

	// ---- Engine, pool and use case ----
	engine := usecase.NewPayoutEngine(gateway, usecase.EngineConfig{
		MaxAttempts:  cfg.Payout.MaxAttempts,
		PollInterval: cfg.Payout.PollInterval,
	}, logger)

	workers := worker.NewPool(cfg.Payout.Workers, cfg.Payout.QueueSize, logger)
	workers.Start(ctx)

	payoutUC := usecase.NewPayoutUseCase(
		pg.NewPayoutRepo(pool),
		pg.NewTxManager(pool),
		engine,
		red.NewLocker(redisClient),
		bot,
		workers,
		usecase.PayoutOptions{
			DefaultRate:  rate,
			MaxReactions: cfg.Payout.MaxReactions,
			LockTTL:      cfg.Payout.LockTTL,
			Dev:          cfg.Runtime.Dev,
		},
		logger,
	)

	// ---- Admin API ----
	metrics.MustRegister()
	router := api.NewRouter(api.Deps{
		Payouts:   payoutUC,
		Auth:      auth,
		Limiter:   red.NewRateLimiter(redisClient),
		RateLimit: cfg.Admin.RateLimit,
		Metrics:   metrics.Handler(),
		Health: func(ctx context.Context) error {
			if err := pool.Ping(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
			return redisClient.Ping(ctx)
		},
	}, logger)
	server := api.NewServer(cfg.Admin.Port, router, logger)

	logger.Info().
		Str("gateway", gateway.Name()).
		Str("rate", rate.String()).
		Int("max_attempts", cfg.Payout.MaxAttempts).
		Dur("poll_interval", cfg.Payout.PollInterval).
		Int("workers", cfg.Payout.Workers).
		Msg("payout service starting")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		return sched.NewPayoutReconciler(payoutUC, cfg.Payout.ReconcileInterval, cfg.Payout.StaleAfter, cfg.Payout.LockTTL, logger).Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown requested")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	// in-flight payouts see ctx cancelled and persist Broken before the pool drains
	workers.Stop()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
