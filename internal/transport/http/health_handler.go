package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"hospadmin/internal/infrastructure"
	"hospadmin/internal/services"
)

// HealthHandler handles health and readiness HTTP requests.
type HealthHandler struct {
	licenseService services.LicenseService
	logger         *slog.Logger
	startedAt      time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(licenseService services.LicenseService, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		licenseService: licenseService,
		logger:         logger.With(slog.String("handler", "health")),
		startedAt:      time.Now(),
	}
}

// HealthCheck handles GET /api/health. Always reachable, license gate or
// not.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"status":    "ok",
		"service":   infrastructure.ServiceName,
		"version":   infrastructure.ServiceVersion,
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
		"timestamp": time.Now().UTC(),
	})
}

// ReadinessCheck handles GET /api/health/ready and includes the license
// state, so probes can tell an unactivated deployment from a broken one.
func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	licenseStatus := services.StatusNotActivated
	status, err := h.licenseService.GetStatus(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "readiness license check failed",
			slog.String("error", err.Error()))
	} else {
		licenseStatus = status.LicenseStatus
	}

	render.JSON(w, r, map[string]interface{}{
		"status":         "ok",
		"license_status": licenseStatus,
		"timestamp":      time.Now().UTC(),
	})
}
