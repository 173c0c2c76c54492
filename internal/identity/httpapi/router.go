package httpapi

import (
	"context"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/centledger/centledger/internal/auth/token"
	"github.com/centledger/centledger/internal/transport/middleware"
	"github.com/centledger/centledger/pkg/logger"
)

// Config holds router configuration
type Config struct {
	Logger         *logger.Logger
	AllowedOrigins []string
	UserHandler    *UserHandler
	AuthHandler    *AuthHandler
	HealthHandler  *HealthHandler
	ExternalTokens *token.ExternalService
	InternalTokens *token.InternalService
}

// localValidator validates end-user tokens against the signing secret this
// service owns. The ledger service does the same through the network instead.
type localValidator struct {
	tokens *token.ExternalService
}

func (v localValidator) ValidateUserToken(_ context.Context, tokenString string) (uuid.UUID, string, error) {
	return v.tokens.Validate(tokenString)
}

// NewRouter creates the identity service HTTP router
func NewRouter(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Metrics("identity"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(chimiddleware.Compress(5))
	r.Use(middleware.RateLimit())

	r.Get("/health", GetHealth)
	if cfg.HealthHandler != nil {
		r.Get("/health/ready", cfg.HealthHandler.GetReadiness)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Public
		r.Post("/users", cfg.UserHandler.Register)
		r.Post("/auth", cfg.AuthHandler.Login)

		// Service-to-service only
		r.Group(func(r chi.Router) {
			r.Use(middleware.InternalAuth(cfg.InternalTokens))
			r.Post("/auth/validate-user-jwt", cfg.AuthHandler.ValidateUserJWT)
		})

		// End-user bearer protected
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(localValidator{tokens: cfg.ExternalTokens}))

			r.Get("/users", cfg.UserHandler.List)
			r.Get("/users/{id}", cfg.UserHandler.Get)
			r.Patch("/users/{id}", cfg.UserHandler.Update)
			r.Delete("/users/{id}", cfg.UserHandler.Delete)
		})
	})

	return r
}
