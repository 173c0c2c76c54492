package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/centledger/centledger/internal/auth/token"
	"github.com/centledger/centledger/internal/infra/postgres"
	infraRedis "github.com/centledger/centledger/internal/infra/redis"
	"github.com/centledger/centledger/internal/ledger/httpapi"
	"github.com/centledger/centledger/internal/ledger/identityclient"
	ledgerpg "github.com/centledger/centledger/internal/ledger/postgres"
	"github.com/centledger/centledger/internal/ledger/posting"
	"github.com/centledger/centledger/pkg/config"
	"github.com/centledger/centledger/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadLedger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewDefault(cfg.Env)
	log.Info("Starting ledger service",
		"env", cfg.Env,
		"port", cfg.Port,
		"identity_url", cfg.IdentityURL,
	)

	db, err := postgres.NewPool(ctx, postgres.Config{URL: cfg.DatabaseURL})
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("Database connection established")

	// The replay cache is an optional fast path; the service runs without it
	var replayCache posting.ReplayCache
	if cfg.RedisURL != "" {
		redisClient, err := infraRedis.NewClient(ctx, cfg.RedisURL, cfg.RedisPassword)
		if err != nil {
			log.Warn("Redis unavailable, idempotent replays will always hit the database", "error", err)
		} else {
			defer redisClient.Close()
			replayCache = infraRedis.NewReplayCache(redisClient, log)
			log.Info("Redis connection established")
		}
	}

	internalTokens := token.NewInternalService(cfg.InternalJWTSecret)
	identity := identityclient.New(cfg.IdentityURL, internalTokens, log)

	ledgerRepo := ledgerpg.NewLedgerRepository(db.Pool, cfg.StatementTimeout, cfg.LockTimeout)
	postingSvc := posting.NewService(ledgerRepo, replayCache, log, cfg.MaxWriteAttempts)

	go postingSvc.RunSweeper(ctx, cfg.SweepInterval)
	log.Info("Idempotency sweeper started", "interval", cfg.SweepInterval)

	allowedOrigins := []string{"http://localhost:5173"}
	if cfg.IsProduction() {
		if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
			allowedOrigins = []string{origins}
		}
	}

	r := httpapi.NewRouter(httpapi.Config{
		Logger:             log,
		AllowedOrigins:     allowedOrigins,
		TransactionHandler: httpapi.NewTransactionHandler(postingSvc, log),
		StatusHandler:      httpapi.NewStatusHandler(db, log),
		UserValidator:      identity,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("Server stopped gracefully")
}
