package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	licenseErrors "hospadmin/internal/errors"
	"hospadmin/internal/infrastructure"
	"hospadmin/internal/license"
)

// License status values returned by GetStatus.
const (
	StatusActive       = "active"
	StatusExpired      = "expired"
	StatusNotActivated = "not_activated"
)

// LicenseService provides the business logic for license activation and
// status reporting.
type LicenseService interface {
	// Activate validates an uploaded license file against the request
	// domain and persists the activation on success.
	Activate(ctx context.Context, fileBytes []byte, requestDomain string) (*license.ActivationState, error)

	// GetStatus reports the current activation state.
	GetStatus(ctx context.Context) (*LicenseStatusResponse, error)

	// ValidateWithContext reports whether a valid, unexpired activation
	// exists. The error carries the reason when it does not.
	ValidateWithContext(ctx context.Context) (bool, error)

	// InvalidateCache clears any cached validation verdicts so the next
	// request re-reads the activation state.
	InvalidateCache(ctx context.Context) error

	// AddCacheInvalidator registers a callback fired whenever cached
	// validation verdicts must be discarded.
	AddCacheInvalidator(fn func())
}

// LicenseStatusResponse is the payload of the license status endpoint.
type LicenseStatusResponse struct {
	LicenseStatus string    `json:"license_status"`
	Message       string    `json:"message"`
	Institution   string    `json:"institution,omitempty"`
	ValidUntil    string    `json:"valid_until,omitempty"`
	Features      []string  `json:"features,omitempty"`
	DaysLeft      int       `json:"days_left"`
	IsPermanent   bool      `json:"is_permanent"`
	ActivatedAt   time.Time `json:"activated_at"`
	TraceID       string    `json:"trace_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type licenseService struct {
	validator *license.Validator
	store     *license.Store
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *infrastructure.BusinessMetrics

	// activateMu serializes concurrent activation attempts. Last
	// successful activation wins.
	activateMu sync.Mutex

	invalidateMu sync.Mutex
	invalidators []func()
}

// NewLicenseService creates a license service. metrics may be nil when
// metric export is disabled.
func NewLicenseService(validator *license.Validator, store *license.Store, logger *slog.Logger, metrics *infrastructure.BusinessMetrics) LicenseService {
	return &licenseService{
		validator: validator,
		store:     store,
		logger:    infrastructure.WithComponent(logger, "license_service"),
		tracer:    otel.Tracer("hospadmin/services"),
		metrics:   metrics,
	}
}

func (s *licenseService) Activate(ctx context.Context, fileBytes []byte, requestDomain string) (*license.ActivationState, error) {
	ctx, span := s.tracer.Start(ctx, "LicenseService.Activate",
		trace.WithAttributes(
			attribute.Int("license.file_size", len(fileBytes)),
			attribute.String("license.request_domain", requestDomain),
		))
	defer span.End()

	s.activateMu.Lock()
	defer s.activateMu.Unlock()

	start := time.Now()
	decision, err := s.validator.Validate(fileBytes, requestDomain, time.Now())
	if err != nil {
		infrastructure.RecordLicenseActivation(ctx, s.metrics, time.Since(start), false)
		infrastructure.RecordError(ctx, err)
		if licenseErrors.IsSecurityEvent(err) {
			infrastructure.RecordLicenseSecurityEvent(ctx, s.metrics, "signature_invalid")
		}
		infrastructure.WithError(s.logger, err).WarnContext(ctx, "license activation rejected",
			slog.String("domain", requestDomain))
		return nil, err
	}

	state, err := s.store.Activate(ctx, decision)
	if err != nil {
		infrastructure.RecordLicenseActivation(ctx, s.metrics, time.Since(start), false)
		infrastructure.RecordError(ctx, err)
		return nil, err
	}

	infrastructure.RecordLicenseActivation(ctx, s.metrics, time.Since(start), true)
	infrastructure.AddSpanEvent(ctx, "license.activated", map[string]string{
		"institution":   state.Institution,
		"activation_id": state.ActivationID,
	})
	s.notifyInvalidators()

	s.logger.InfoContext(ctx, "license activated",
		slog.String("institution", state.Institution),
		slog.String("valid_until", state.ValidUntil),
		slog.String("activation_id", state.ActivationID))
	return state, nil
}

func (s *licenseService) GetStatus(ctx context.Context) (*LicenseStatusResponse, error) {
	ctx, span := s.tracer.Start(ctx, "LicenseService.GetStatus")
	defer span.End()

	resp := &LicenseStatusResponse{
		TraceID:   infrastructure.TraceIDFromContext(ctx),
		Timestamp: time.Now().UTC(),
	}

	state, err := s.store.Current(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil {
		resp.LicenseStatus = StatusNotActivated
		resp.Message = "No license has been activated."
		return resp, nil
	}

	now := time.Now()
	resp.Institution = state.Institution
	resp.ValidUntil = state.ValidUntil
	resp.Features = state.Features
	resp.IsPermanent = state.IsPermanent()
	resp.ActivatedAt = state.ActivatedAt
	resp.DaysLeft = state.DaysLeft(now)

	if state.Expired(now) {
		resp.LicenseStatus = StatusExpired
		resp.Message = "Your license has expired. Please renew to continue."
		return resp, nil
	}

	resp.LicenseStatus = StatusActive
	if state.IsPermanent() {
		resp.Message = "Permanent license active."
	} else {
		resp.Message = "License active."
	}
	return resp, nil
}

func (s *licenseService) ValidateWithContext(ctx context.Context) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "LicenseService.ValidateWithContext")
	defer span.End()

	start := time.Now()
	state, err := s.store.Current(ctx)
	if err != nil {
		infrastructure.RecordLicenseValidation(ctx, s.metrics, time.Since(start), false)
		return false, err
	}
	if state == nil {
		infrastructure.RecordLicenseValidation(ctx, s.metrics, time.Since(start), false)
		return false, license.ErrNotActivated
	}
	if state.Expired(time.Now()) {
		infrastructure.RecordLicenseValidation(ctx, s.metrics, time.Since(start), false)
		return false, license.ErrLicenseExpired
	}

	infrastructure.RecordLicenseValidation(ctx, s.metrics, time.Since(start), true)
	return true, nil
}

func (s *licenseService) InvalidateCache(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "LicenseService.InvalidateCache")
	defer span.End()

	s.notifyInvalidators()
	s.logger.InfoContext(ctx, "license validation cache invalidated")
	return nil
}

func (s *licenseService) AddCacheInvalidator(fn func()) {
	s.invalidateMu.Lock()
	defer s.invalidateMu.Unlock()
	s.invalidators = append(s.invalidators, fn)
}

func (s *licenseService) notifyInvalidators() {
	s.invalidateMu.Lock()
	fns := make([]func(), len(s.invalidators))
	copy(fns, s.invalidators)
	s.invalidateMu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
