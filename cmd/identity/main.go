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
	"github.com/centledger/centledger/internal/identity/httpapi"
	identitypg "github.com/centledger/centledger/internal/identity/postgres"
	"github.com/centledger/centledger/internal/identity/user"
	"github.com/centledger/centledger/internal/infra/postgres"
	"github.com/centledger/centledger/pkg/config"
	"github.com/centledger/centledger/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadIdentity()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewDefault(cfg.Env)
	log.Info("Starting identity service",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	db, err := postgres.NewPool(ctx, postgres.Config{URL: cfg.DatabaseURL})
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("Database connection established")

	userRepo := identitypg.NewUserRepository(db.Pool)
	userSvc := user.NewService(userRepo, log)

	externalTokens := token.NewExternalService(cfg.JWTSecret, cfg.AccessTokenTTL)
	internalTokens := token.NewInternalService(cfg.InternalJWTSecret)

	allowedOrigins := []string{"http://localhost:5173"}
	if cfg.IsProduction() {
		if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
			allowedOrigins = []string{origins}
		}
	}

	r := httpapi.NewRouter(httpapi.Config{
		Logger:         log,
		AllowedOrigins: allowedOrigins,
		UserHandler:    httpapi.NewUserHandler(userSvc, log),
		AuthHandler:    httpapi.NewAuthHandler(userSvc, externalTokens, log),
		HealthHandler:  httpapi.NewHealthHandler(db),
		ExternalTokens: externalTokens,
		InternalTokens: internalTokens,
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
