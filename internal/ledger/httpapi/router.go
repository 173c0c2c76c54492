package httpapi

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/centledger/centledger/internal/transport/middleware"
	"github.com/centledger/centledger/pkg/logger"
)

// Config holds router configuration
type Config struct {
	Logger             *logger.Logger
	AllowedOrigins     []string
	TransactionHandler *TransactionHandler
	StatusHandler      *StatusHandler
	// UserValidator resolves bearer tokens remotely via the identity service
	UserValidator middleware.UserValidator
}

// NewRouter creates the ledger service HTTP router
func NewRouter(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Metrics("ledger"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Compress(5))
	r.Use(middleware.RateLimit())

	r.Get("/health", GetHealth)
	r.Handle("/metrics", promhttp.Handler())
	if cfg.StatusHandler != nil {
		r.Get("/health/ready", cfg.StatusHandler.GetReadiness)
	}

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.StatusHandler != nil {
			r.Get("/status", cfg.StatusHandler.GetStatus)
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.UserValidator))

			r.Post("/transactions", cfg.TransactionHandler.Create)
			r.Get("/transactions", cfg.TransactionHandler.List)
			r.Get("/balance", cfg.TransactionHandler.GetBalance)
		})
	})

	return r
}
