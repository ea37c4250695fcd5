package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hospadmin/internal/license"
)

func TestMapLicenseError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "decryption failure", err: license.ErrDecryptionFailed, wantStatus: http.StatusBadRequest, wantCode: "DECRYPTION_FAILED"},
		{name: "wrapped decryption failure", err: fmt.Errorf("context: %w", license.ErrDecryptionFailed), wantStatus: http.StatusBadRequest, wantCode: "DECRYPTION_FAILED"},
		{name: "malformed payload", err: license.ErrMalformedPayload, wantStatus: http.StatusBadRequest, wantCode: "MALFORMED_PAYLOAD"},
		{name: "signature invalid", err: license.ErrSignatureInvalid, wantStatus: http.StatusBadRequest, wantCode: "SIGNATURE_INVALID"},
		{name: "expired", err: license.ErrLicenseExpired, wantStatus: http.StatusForbidden, wantCode: "LICENSE_EXPIRED"},
		{name: "domain mismatch", err: license.ErrDomainMismatch, wantStatus: http.StatusForbidden, wantCode: "DOMAIN_MISMATCH"},
		{name: "not activated", err: license.ErrNotActivated, wantStatus: http.StatusPreconditionRequired, wantCode: "LICENSE_NOT_ACTIVATED"},
		{name: "unknown error", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantCode: "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			renderer := MapLicenseError(tt.err, "trace-123")
			problem, ok := renderer.(*ProblemDetails)
			require.True(t, ok)

			assert.Equal(t, tt.wantStatus, problem.Status)
			assert.Equal(t, tt.wantCode, problem.Extensions["error_code"])
			assert.Equal(t, "trace-123", problem.Extensions["trace_id"])
			assert.NotContains(t, problem.Detail, "secret")
		})
	}
}

func TestIsSecurityEvent(t *testing.T) {
	assert.True(t, IsSecurityEvent(license.ErrSignatureInvalid))
	assert.True(t, IsSecurityEvent(fmt.Errorf("wrapped: %w", license.ErrSignatureInvalid)))
	assert.False(t, IsSecurityEvent(license.ErrLicenseExpired))
	assert.False(t, IsSecurityEvent(license.ErrDecryptionFailed))
	assert.False(t, IsSecurityEvent(nil))
}

func TestProblemDetailsMarshalIncludesExtensions(t *testing.T) {
	problem := NewProblemDetails(http.StatusForbidden, "/errors/license-expired", "License Expired", "detail", "/api/license#x").
		WithExtension("error_code", "LICENSE_EXPIRED").
		WithExtension("days_over", 3)

	data, err := json.Marshal(problem)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "/errors/license-expired", decoded["type"])
	assert.Equal(t, float64(http.StatusForbidden), decoded["status"])
	assert.Equal(t, "LICENSE_EXPIRED", decoded["error_code"])
	assert.Equal(t, float64(3), decoded["days_over"])
}
