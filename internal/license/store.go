package license

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"hospadmin/internal/security"
)

// ActivationState is the persisted record of an accepted license.
type ActivationState struct {
	Institution  string    `json:"institution"`
	ValidUntil   string    `json:"valid_until"`
	Features     []string  `json:"features"`
	ActivatedAt  time.Time `json:"activated_at"`
	ActivationID string    `json:"activation_id"`
	Signature    string    `json:"signature"`
}

// IsPermanent reports whether the activated license never expires.
func (s *ActivationState) IsPermanent() bool {
	return s.ValidUntil == ValidUntilPermanent
}

// Expired reports whether the activated license is past its last valid day.
func (s *ActivationState) Expired(now time.Time) bool {
	if s.IsPermanent() {
		return false
	}
	return now.Format(dateLayout) > s.ValidUntil
}

// DaysLeft returns whole days until expiry, -1 for permanent licenses and
// 0 when already expired.
func (s *ActivationState) DaysLeft(now time.Time) int {
	if s.IsPermanent() {
		return -1
	}
	until, err := time.Parse(dateLayout, s.ValidUntil)
	if err != nil {
		return 0
	}
	today, _ := time.Parse(dateLayout, now.Format(dateLayout))
	days := int(until.Sub(today).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// Store persists the activation state as an HMAC-signed JSON file.
// Writes are serialized so concurrent activation attempts are atomic and
// the last successful validation wins. A tampered or unreadable state file
// reads as "not activated" rather than failing the host.
type Store struct {
	path   string
	secret []byte
	logger *slog.Logger
	mu     sync.Mutex
}

// NewStore builds a store writing to path, signing state with the shared
// secret.
func NewStore(path, secret string, logger *slog.Logger) *Store {
	return &Store{
		path:   path,
		secret: []byte(secret),
		logger: logger.With(slog.String("component", "license_store")),
	}
}

// Activate persists a validation decision and returns the stored state.
func (s *Store) Activate(ctx context.Context, d *Decision) (*ActivationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := &ActivationState{
		Institution:  d.Institution,
		ValidUntil:   d.ValidUntil,
		Features:     d.Features,
		ActivatedAt:  time.Now(),
		ActivationID: uuid.NewString(),
	}
	state.Signature = s.sign(state)

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal activation state: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		s.logger.ErrorContext(ctx, "failed to write activation state",
			slog.String("path", s.path),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("write activation state: %w", err)
	}

	s.logger.InfoContext(ctx, "license activated",
		slog.String("institution", state.Institution),
		slog.String("valid_until", state.ValidUntil),
		slog.String("activation_id", state.ActivationID))
	return state, nil
}

// Current returns the persisted activation state, or nil when no valid
// activation exists. Corruption and tampering are logged, never fatal.
func (s *Store) Current(ctx context.Context) (*ActivationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		s.logger.WarnContext(ctx, "activation state unreadable, treating as not activated",
			slog.String("path", s.path),
			slog.String("error", err.Error()))
		return nil, nil
	}

	var state ActivationState
	if err := json.Unmarshal(data, &state); err != nil {
		s.logger.WarnContext(ctx, "activation state unreadable, treating as not activated",
			slog.String("path", s.path),
			slog.String("error", err.Error()))
		return nil, nil
	}

	expected := s.sign(&state)
	if !security.SecureCompare([]byte(expected), []byte(state.Signature)) {
		s.logger.ErrorContext(ctx, "activation state signature mismatch, possible tampering",
			slog.String("path", s.path),
			slog.String("activation_id", state.ActivationID))
		return nil, nil
	}
	return &state, nil
}

// Clear removes the persisted activation state if present.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *Store) sign(state *ActivationState) string {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s|%s|%s|%s|%s",
		state.Institution,
		state.ValidUntil,
		strings.Join(state.Features, ","),
		state.ActivatedAt.Format(time.RFC3339Nano),
		state.ActivationID)
	return hex.EncodeToString(mac.Sum(nil))
}
