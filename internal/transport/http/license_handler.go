package http

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	licenseErrors "hospadmin/internal/errors"
	"hospadmin/internal/infrastructure"
	"hospadmin/internal/license"
	"hospadmin/internal/middleware"
	"hospadmin/internal/services"
)

// maxLicenseFileSize bounds the accepted upload. License files are a few
// kilobytes; anything larger is rejected outright.
const maxLicenseFileSize = 1 << 20

var validate = validator.New()

// LicenseHandler handles license-related HTTP requests.
type LicenseHandler struct {
	service services.LicenseService
	logger  *slog.Logger
}

// NewLicenseHandler creates a new license handler.
func NewLicenseHandler(service services.LicenseService, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "license")),
	}
}

// LicenseActivationResponse is the success payload of the activation
// endpoint.
type LicenseActivationResponse struct {
	Success      bool      `json:"success"`
	Message      string    `json:"message"`
	Institution  string    `json:"institution"`
	ValidUntil   string    `json:"valid_until"`
	Features     []string  `json:"features"`
	ActivationID string    `json:"activation_id"`
	ActivatedAt  time.Time `json:"activated_at"`
	TraceID      string    `json:"trace_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Routes returns a chi router for the license endpoints.
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Post("/activate", h.Activate)
	r.Get("/status", h.GetStatus)
	r.Post("/invalidate-cache", h.InvalidateCache)

	return r
}

// Activate handles POST /api/license/activate. The license file arrives
// as a multipart upload in the "license" field; an optional "domain"
// field overrides the domain derived from the Host header.
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	ctx := infrastructure.EnsureTraceID(r.Context())
	reqID := middleware.GetReqID(ctx)
	tracer := otel.Tracer("license-handler")

	ctx, span := tracer.Start(ctx, "license_handler.activate",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/license/activate"),
			attribute.String("request_id", reqID),
		))
	defer span.End()
	r = r.WithContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, maxLicenseFileSize)
	if err := r.ParseMultipartForm(maxLicenseFileSize); err != nil {
		h.badRequest(w, r, "The request must be a multipart upload with a license file.")
		return
	}

	file, header, err := r.FormFile("license")
	if err != nil {
		h.badRequest(w, r, "Missing license file. Upload it in the \"license\" form field.")
		return
	}
	defer file.Close()

	fileBytes, err := io.ReadAll(io.LimitReader(file, maxLicenseFileSize))
	if err != nil {
		h.badRequest(w, r, "The license file could not be read.")
		return
	}

	requestDomain, err := h.resolveDomain(r)
	if err != nil {
		h.badRequest(w, r, "The domain override is not a valid host name.")
		return
	}

	span.SetAttributes(
		attribute.String("license.filename", header.Filename),
		attribute.Int("license.file_size", len(fileBytes)),
		attribute.String("license.request_domain", requestDomain),
	)

	h.logger.InfoContext(ctx, "license activation requested",
		slog.String("request_id", reqID),
		slog.String("filename", header.Filename),
		slog.Int("file_size", len(fileBytes)),
		slog.String("domain", requestDomain),
		slog.String("remote_addr", r.RemoteAddr))

	state, err := h.service.Activate(ctx, fileBytes, requestDomain)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, &LicenseActivationResponse{
		Success:      true,
		Message:      "License activated successfully.",
		Institution:  state.Institution,
		ValidUntil:   state.ValidUntil,
		Features:     state.Features,
		ActivationID: state.ActivationID,
		ActivatedAt:  state.ActivatedAt,
		TraceID:      infrastructure.TraceIDFromContext(ctx),
		Timestamp:    time.Now().UTC(),
	})
}

// GetStatus handles GET /api/license/status.
func (h *LicenseHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := infrastructure.EnsureTraceID(r.Context())
	tracer := otel.Tracer("license-handler")

	ctx, span := tracer.Start(ctx, "license_handler.get_status",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.route", "/api/license/status"),
			attribute.String("request_id", middleware.GetReqID(ctx)),
		))
	defer span.End()
	r = r.WithContext(ctx)

	response, err := h.service.GetStatus(ctx)
	if err != nil {
		span.RecordError(err)
		h.handleError(w, r, err)
		return
	}

	span.SetAttributes(
		attribute.String("license.status", response.LicenseStatus),
		attribute.Int("license.days_left", response.DaysLeft),
	)
	render.JSON(w, r, response)
}

// InvalidateCache handles POST /api/license/invalidate-cache.
func (h *LicenseHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	ctx := infrastructure.EnsureTraceID(r.Context())
	r = r.WithContext(ctx)

	if err := h.service.InvalidateCache(ctx); err != nil {
		h.handleError(w, r, err)
		return
	}

	h.logger.InfoContext(ctx, "license cache invalidation requested",
		slog.String("request_id", middleware.GetReqID(ctx)),
		slog.String("remote_addr", r.RemoteAddr))

	render.JSON(w, r, map[string]interface{}{
		"success":   true,
		"message":   "License validation cache invalidated.",
		"timestamp": time.Now().UTC(),
	})
}

// resolveDomain picks the domain the license is being activated for:
// an explicit "domain" form field when present, the request Host
// otherwise.
func (h *LicenseHandler) resolveDomain(r *http.Request) (string, error) {
	if override := strings.TrimSpace(r.FormValue("domain")); override != "" {
		if err := validate.Var(override, "hostname_rfc1123"); err != nil {
			return "", err
		}
		return license.NormalizeDomain(override), nil
	}
	return license.NormalizeDomain(hostOnly(r.Host)), nil
}

func hostOnly(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func (h *LicenseHandler) badRequest(w http.ResponseWriter, r *http.Request, detail string) {
	ctx := r.Context()
	traceID := infrastructure.TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = middleware.GetReqID(ctx)
	}

	problem := licenseErrors.NewProblemDetails(
		http.StatusBadRequest,
		"/errors/invalid-request",
		"Invalid Request",
		detail,
		r.URL.Path+"#trace-"+traceID,
	).WithExtension("trace_id", traceID)

	render.Render(w, r, problem)
}

func (h *LicenseHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	traceID := infrastructure.TraceIDFromContext(ctx)
	if traceID == "" {
		traceID = middleware.GetReqID(ctx)
	}

	if licenseErrors.IsSecurityEvent(err) {
		h.logger.WarnContext(ctx, "license security event",
			slog.String("request_id", middleware.GetReqID(ctx)),
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("error", err.Error()))
	}

	render.Render(w, r, licenseErrors.MapLicenseError(err, traceID))
}
