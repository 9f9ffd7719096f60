package handler

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"
)

const serviceVersion = "1.0.0"

type failureCounter interface {
	Failures() int64
}

type HealthHandler struct {
	db    *sql.DB
	audit failureCounter
}

func NewHealthHandler(db *sql.DB, audit failureCounter) *HealthHandler {
	return &HealthHandler{db: db, audit: audit}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"version":   serviceVersion,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness reports database reachability and the count of audit entries
// lost since start. Lost audit entries are surfaced for monitoring but do
// not make the service unready.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	httpStatus := http.StatusOK

	if err := h.db.PingContext(r.Context()); err != nil {
		slog.Warn("readiness check failed: database unreachable", "error", err)
		dbStatus = "down"
		httpStatus = http.StatusServiceUnavailable
	}

	overallStatus := "ok"
	if httpStatus != http.StatusOK {
		overallStatus = "down"
	}

	RespondJSON(w, httpStatus, map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks": map[string]string{
			"database": dbStatus,
		},
		"audit_write_failures": h.audit.Failures(),
	})
}
