package license

import (
	"encoding/json"
	"fmt"
	"time"
)

// Decision is the outcome of a successful validation, consumed by the
// HTTP layer and persisted through the Store.
type Decision struct {
	Institution string   `json:"institution"`
	ValidUntil  string   `json:"valid_until"`
	Features    []string `json:"features"`
}

// Validator verifies uploaded license files. It is a pure function of its
// inputs plus the shared secret: no I/O, deterministic for a fixed now.
type Validator struct {
	codec *Codec
}

// NewValidator builds a validator sharing the generator's codec scheme.
func NewValidator(codec *Codec) *Validator {
	return &Validator{codec: codec}
}

// Validate decrypts and verifies a license file against the requesting
// domain and the supplied clock. Checks run in a fixed order and the first
// failure wins: decryption, payload shape, signature, expiry, domain.
func (v *Validator) Validate(blob []byte, requestDomain string, now time.Time) (*Decision, error) {
	plaintext, err := v.codec.Decrypt(blob)
	if err != nil {
		return nil, err
	}

	var payload Payload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := payload.CheckRequired(); err != nil {
		return nil, err
	}

	if err := v.codec.VerifySignature(&payload); err != nil {
		return nil, err
	}

	if !payload.IsPermanent() {
		if _, err := time.Parse(dateLayout, payload.ValidUntil); err != nil {
			return nil, fmt.Errorf("%w: bad valid_until %q", ErrMalformedPayload, payload.ValidUntil)
		}
		// Date-only comparison: the license is valid through the end of
		// its last day. ISO dates compare chronologically as strings.
		if now.Format(dateLayout) > payload.ValidUntil {
			return nil, ErrLicenseExpired
		}
	}

	if !DomainMatches(payload.AllowedDomain, requestDomain) {
		return nil, ErrDomainMismatch
	}

	return &Decision{
		Institution: payload.Institution,
		ValidUntil:  payload.ValidUntil,
		Features:    payload.Features,
	}, nil
}
