package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/render"

	"hospadmin/internal/license"
)

// MapLicenseError maps license domain errors to RFC 7807 problem details.
// Policy rejections (expired, wrong domain) are kept distinct from
// corruption and tampering, and none of the messages leak the shared
// secret or comparison internals.
func MapLicenseError(err error, traceID string) render.Renderer {
	instance := fmt.Sprintf("/api/license#trace-%s", traceID)

	switch {
	case errors.Is(err, license.ErrDecryptionFailed):
		return NewProblemDetails(
			http.StatusBadRequest,
			"/errors/invalid-license-file",
			"Invalid License File",
			"The uploaded file is not a valid license file or is corrupted.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "DECRYPTION_FAILED")

	case errors.Is(err, license.ErrMalformedPayload):
		return NewProblemDetails(
			http.StatusBadRequest,
			"/errors/malformed-license",
			"Malformed License",
			"The license file contents could not be understood.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "MALFORMED_PAYLOAD")

	case errors.Is(err, license.ErrSignatureInvalid):
		return NewProblemDetails(
			http.StatusBadRequest,
			"/errors/license-signature-invalid",
			"License Signature Invalid",
			"The license file failed its integrity check. It may have been tampered with or issued for a different system.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "SIGNATURE_INVALID")

	case errors.Is(err, license.ErrLicenseExpired):
		return NewProblemDetails(
			http.StatusForbidden,
			"/errors/license-expired",
			"License Expired",
			"Your license has expired. Please renew to continue.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "LICENSE_EXPIRED")

	case errors.Is(err, license.ErrDomainMismatch):
		return NewProblemDetails(
			http.StatusForbidden,
			"/errors/license-domain-mismatch",
			"License Domain Mismatch",
			"This license was issued for a different domain.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "DOMAIN_MISMATCH")

	case errors.Is(err, license.ErrNotActivated):
		return NewProblemDetails(
			http.StatusPreconditionRequired,
			"/errors/license-not-activated",
			"License Not Activated",
			"No license has been activated. Please activate a license to continue.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "LICENSE_NOT_ACTIVATED")

	default:
		return NewProblemDetails(
			http.StatusInternalServerError,
			"/errors/internal-error",
			"Internal Server Error",
			"An unexpected error occurred while processing your request.",
			instance,
		).WithExtension("trace_id", traceID).
			WithExtension("error_code", "INTERNAL_ERROR")
	}
}

// IsSecurityEvent reports whether a license error must be logged as a
// security event rather than a plain bad-input failure.
func IsSecurityEvent(err error) bool {
	return errors.Is(err, license.ErrSignatureInvalid)
}
