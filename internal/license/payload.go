package license

import (
	"strings"
)

const (
	// ValidUntilPermanent disables expiration checking for a license.
	ValidUntilPermanent = "PERMANENT"

	// AnyDomain matches every request domain.
	AnyDomain = "*"

	// dateLayout is the wire format for valid_until and file-name prefixes.
	dateLayout = "2006-01-02"

	// timestampLayout is the human-readable generated_at format.
	timestampLayout = "2006-01-02 15:04:05"
)

// DefaultFeatures is the fixed feature set stamped into every license.
var DefaultFeatures = []string{
	"modulo_archivo",
	"modulo_personal",
	"modulo_ensenanza",
	"modulo_reportes",
	"modulo_estadisticas",
	"modulo_completo",
}

// SignedCore is the subset of the payload covered by the HMAC signature.
// Field order matters: the signature is computed over the serialized JSON,
// and Go's encoder emits struct fields in declaration order, so generator
// and validator agree on the byte stream by construction.
type SignedCore struct {
	Institution   string   `json:"institution"`
	ValidUntil    string   `json:"valid_until"`
	AllowedDomain string   `json:"allowed_domain"`
	Features      []string `json:"features"`
}

// Payload is the full signed license document carried inside the
// encrypted .license file. GeneratedAt and GeneratedBy are informational
// and not covered by the signature.
type Payload struct {
	Institution   string   `json:"institution"`
	ValidUntil    string   `json:"valid_until"`
	AllowedDomain string   `json:"allowed_domain"`
	Features      []string `json:"features"`
	Signature     string   `json:"signature"`
	GeneratedAt   string   `json:"generated_at"`
	GeneratedBy   string   `json:"generated_by"`
}

// SignedCore extracts the signed subset in canonical field order.
func (p *Payload) SignedCore() SignedCore {
	return SignedCore{
		Institution:   p.Institution,
		ValidUntil:    p.ValidUntil,
		AllowedDomain: p.AllowedDomain,
		Features:      p.Features,
	}
}

// CheckRequired verifies the presence of every field the validator relies
// on. It does not verify the signature.
func (p *Payload) CheckRequired() error {
	switch {
	case strings.TrimSpace(p.Institution) == "":
		return ErrMalformedPayload
	case p.ValidUntil == "":
		return ErrMalformedPayload
	case p.AllowedDomain == "":
		return ErrMalformedPayload
	case len(p.Features) == 0:
		return ErrMalformedPayload
	case p.Signature == "":
		return ErrMalformedPayload
	}
	return nil
}

// IsPermanent reports whether the license never expires.
func (p *Payload) IsPermanent() bool {
	return p.ValidUntil == ValidUntilPermanent
}

// NormalizeDomain trims whitespace and strips a single leading "www."
// case-insensitively. The same normalization runs at generation time and
// against the incoming request domain at validation time.
func NormalizeDomain(domain string) string {
	d := strings.TrimSpace(domain)
	if len(d) >= 4 && strings.EqualFold(d[:4], "www.") {
		d = d[4:]
	}
	return d
}

// DomainMatches reports whether a normalized request domain satisfies the
// license's allowed_domain policy.
func DomainMatches(allowed, requestDomain string) bool {
	if allowed == AnyDomain {
		return true
	}
	return strings.EqualFold(allowed, NormalizeDomain(requestDomain))
}
