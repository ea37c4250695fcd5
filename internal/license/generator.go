package license

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

// GeneratedBy identifies the generator in the informational payload fields.
const GeneratedBy = "hospadmin license generator v1"

// LicenseType selects the expiry policy at generation time.
type LicenseType string

const (
	TypeMonthly   LicenseType = "monthly"   // today + 31 days, not calendar-month-aware
	TypeAnnual    LicenseType = "annual"    // today + 365 days, not leap-year-aware
	TypePermanent LicenseType = "permanent" // never expires
	TypeCustom    LicenseType = "custom"    // operator-supplied YYYY-MM-DD
)

// customDatePattern is a format check only. Calendar validity is not
// enforced here; an impossible date fails closed at validation time.
var customDatePattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// Request carries the operator-supplied license parameters.
type Request struct {
	Institution string
	Type        LicenseType
	CustomDate  string // required when Type is TypeCustom
	Domain      string // empty means any domain
	Features    []string
}

// Generator produces signed, encrypted .license files.
type Generator struct {
	codec  *Codec
	outDir string
}

// NewGenerator builds a generator writing under outDir.
func NewGenerator(codec *Codec, outDir string) *Generator {
	return &Generator{codec: codec, outDir: outDir}
}

// Generate builds the signed payload and returns it alongside the
// encrypted blob. now anchors the expiry arithmetic and generated_at.
func (g *Generator) Generate(req Request, now time.Time) (*Payload, []byte, error) {
	institution := strings.TrimSpace(req.Institution)
	if institution == "" {
		return nil, nil, ErrEmptyInstitution
	}

	validUntil, err := resolveValidUntil(req, now)
	if err != nil {
		return nil, nil, err
	}

	domain := AnyDomain
	if strings.TrimSpace(req.Domain) != "" {
		domain = NormalizeDomain(req.Domain)
	}

	features := req.Features
	if len(features) == 0 {
		features = DefaultFeatures
	}

	core := SignedCore{
		Institution:   institution,
		ValidUntil:    validUntil,
		AllowedDomain: domain,
		Features:      features,
	}
	signature, err := g.codec.Sign(core)
	if err != nil {
		return nil, nil, err
	}

	payload := &Payload{
		Institution:   core.Institution,
		ValidUntil:    core.ValidUntil,
		AllowedDomain: core.AllowedDomain,
		Features:      core.Features,
		Signature:     signature,
		GeneratedAt:   now.Format(timestampLayout),
		GeneratedBy:   GeneratedBy,
	}

	plaintext, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal payload: %w", err)
	}

	blob, err := g.codec.Encrypt(plaintext)
	if err != nil {
		return nil, nil, err
	}
	return payload, blob, nil
}

// Save writes the encrypted blob to a dated, slugified file under the
// output directory and returns its path. An existing file of the same
// derived name is overwritten.
func (g *Generator) Save(blob []byte, institution string, now time.Time) (string, error) {
	if err := os.MkdirAll(g.outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	name := Filename(institution, now)
	path := filepath.Join(g.outDir, name)
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		return "", fmt.Errorf("write license file: %w", err)
	}
	return path, nil
}

// Filename derives the .license file name: the generation date, an
// underscore, and the lowercased institution with every run of
// non-alphanumeric characters collapsed to a single underscore.
func Filename(institution string, now time.Time) string {
	return now.Format(dateLayout) + "_" + slugify(institution) + ".license"
}

func slugify(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}

func resolveValidUntil(req Request, now time.Time) (string, error) {
	switch req.Type {
	case TypeMonthly:
		return now.AddDate(0, 0, 31).Format(dateLayout), nil
	case TypeAnnual:
		return now.AddDate(0, 0, 365).Format(dateLayout), nil
	case TypePermanent:
		return ValidUntilPermanent, nil
	case TypeCustom:
		if !customDatePattern.MatchString(req.CustomDate) {
			return "", ErrInvalidCustomDate
		}
		return req.CustomDate, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidLicenseType, req.Type)
	}
}
