package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/render"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	licenseErrors "hospadmin/internal/errors"
	"hospadmin/internal/infrastructure"
	"hospadmin/internal/services"
)

// LicenseGate blocks access to the licensed surface until a valid
// activation exists. Verdicts are cached for a short TTL so the
// activation file is not re-read on every request; activation and
// explicit invalidation clear the cache.
type LicenseGate struct {
	service services.LicenseService
	logger  *slog.Logger
	metrics *infrastructure.BusinessMetrics

	cache validationCache

	excludePaths    map[string]struct{}
	excludePrefixes []string
	licensePageURL  string

	// validationMu collapses concurrent cache misses into a single
	// validation.
	validationMu sync.Mutex
}

type validationCache struct {
	mu        sync.RWMutex
	populated bool
	valid     bool
	lastErr   error
	checkedAt time.Time
	ttl       time.Duration
}

// NewLicenseGate creates the gate middleware and registers its cache
// with the service so activations invalidate it.
func NewLicenseGate(service services.LicenseService, logger *slog.Logger, ttl time.Duration, metrics *infrastructure.BusinessMetrics) *LicenseGate {
	gate := &LicenseGate{
		service: service,
		logger:  logger.With(slog.String("component", "license_gate")),
		metrics: metrics,
		cache:   validationCache{ttl: ttl},
		excludePaths: map[string]struct{}{
			"/":                             {},
			"/license":                      {},
			"/license/":                     {},
			"/api/license/activate":         {},
			"/api/license/status":           {},
			"/api/license/invalidate-cache": {},
			"/api/health":                   {},
			"/api/health/ready":             {},
			"/metrics":                      {},
			"/favicon.ico":                  {},
		},
		excludePrefixes: []string{"/static/"},
		licensePageURL:  "/license",
	}
	service.AddCacheInvalidator(gate.Invalidate)
	return gate
}

// Handler returns the middleware handler.
func (g *LicenseGate) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		tracer := otel.Tracer("license-gate")

		ctx, span := tracer.Start(ctx, "license_gate.validate",
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.url", r.URL.Path),
			))
		defer span.End()
		r = r.WithContext(ctx)

		if g.shouldExclude(r.URL.Path) {
			span.SetAttributes(attribute.String("license.validation", "excluded"))
			next.ServeHTTP(w, r)
			return
		}

		if valid, err, ok := g.cachedVerdict(); ok {
			span.SetAttributes(
				attribute.String("license.validation", "cached"),
				attribute.Bool("license.valid", valid),
			)
			g.recordCache(r, true)
			if !valid {
				g.reject(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
			return
		}
		g.recordCache(r, false)

		g.validationMu.Lock()
		valid, err, ok := g.cachedVerdict()
		if !ok {
			start := time.Now()
			valid, err = g.service.ValidateWithContext(ctx)
			g.storeVerdict(valid, err)

			g.logger.InfoContext(ctx, "license validation performed",
				slog.String("path", r.URL.Path),
				slog.Duration("duration", time.Since(start)),
				slog.Bool("valid", valid))
		}
		g.validationMu.Unlock()

		span.SetAttributes(
			attribute.String("license.validation", "performed"),
			attribute.Bool("license.valid", valid),
		)

		if !valid {
			g.reject(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Invalidate clears the cached verdict.
func (g *LicenseGate) Invalidate() {
	g.cache.mu.Lock()
	defer g.cache.mu.Unlock()
	g.cache.populated = false
	g.cache.lastErr = nil
}

func (g *LicenseGate) cachedVerdict() (valid bool, err error, ok bool) {
	g.cache.mu.RLock()
	defer g.cache.mu.RUnlock()
	if !g.cache.populated || time.Since(g.cache.checkedAt) > g.cache.ttl {
		return false, nil, false
	}
	return g.cache.valid, g.cache.lastErr, true
}

func (g *LicenseGate) storeVerdict(valid bool, err error) {
	g.cache.mu.Lock()
	defer g.cache.mu.Unlock()
	g.cache.populated = true
	g.cache.valid = valid
	g.cache.lastErr = err
	g.cache.checkedAt = time.Now()
}

func (g *LicenseGate) shouldExclude(path string) bool {
	if _, ok := g.excludePaths[path]; ok {
		return true
	}
	for _, prefix := range g.excludePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// reject answers API requests with RFC 7807 problem details and browser
// requests with a redirect to the license page.
func (g *LicenseGate) reject(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	g.logger.WarnContext(ctx, "request blocked by license gate",
		slog.String("path", r.URL.Path),
		slog.String("reason", reasonOf(err)))

	if strings.HasPrefix(r.URL.Path, "/api/") {
		traceID := infrastructure.TraceIDFromContext(ctx)
		render.Render(w, r, licenseErrors.MapLicenseError(err, traceID))
		return
	}
	http.Redirect(w, r, g.licensePageURL, http.StatusSeeOther)
}

func (g *LicenseGate) recordCache(r *http.Request, hit bool) {
	if g.metrics == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("component", "license_gate"))
	if hit {
		g.metrics.LicenseCacheHits.Add(r.Context(), 1, attrs)
	} else {
		g.metrics.LicenseCacheMisses.Add(r.Context(), 1, attrs)
	}
}

func reasonOf(err error) string {
	if err == nil {
		return "invalid"
	}
	return err.Error()
}
