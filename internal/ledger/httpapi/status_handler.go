package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/centledger/centledger/internal/infra/postgres"
	"github.com/centledger/centledger/pkg/logger"
)

// StatusReporter exposes database server and pool statistics
type StatusReporter interface {
	ServerStatus(ctx context.Context) (*postgres.Status, error)
	Ping(ctx context.Context) error
}

// StatusHandler handles health and dependency status requests
type StatusHandler struct {
	db  StatusReporter
	log *logger.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db StatusReporter, log *logger.Logger) *StatusHandler {
	return &StatusHandler{db: db, log: log}
}

// StatusResponse represents the dependency status body
type StatusResponse struct {
	Database *postgres.Status `json:"database"`
}

// GetHealth handles GET /health
func GetHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetReadiness handles GET /health/ready
func (h *StatusHandler) GetReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "NOT_READY", "database not ready")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// GetStatus handles GET /status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	st, err := h.db.ServerStatus(ctx)
	if err != nil {
		h.log.WithError(err).Error("failed to collect database status")
		respondError(w, http.StatusServiceUnavailable, "DATABASE_UNAVAILABLE", "failed to collect database status")
		return
	}

	respondJSON(w, http.StatusOK, StatusResponse{Database: st})
}
