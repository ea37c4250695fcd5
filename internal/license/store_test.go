package license

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type StoreTestSuite struct {
	suite.Suite
	path  string
	store *Store
}

func (s *StoreTestSuite) SetupTest() {
	s.path = filepath.Join(s.T().TempDir(), "activation.json")
	s.store = NewStore(s.path, testSecret, slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
}

func TestStoreTestSuite(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

func (s *StoreTestSuite) TestCurrentWithoutActivation() {
	state, err := s.store.Current(context.Background())
	s.Require().NoError(err)
	s.Nil(state)
}

func (s *StoreTestSuite) TestActivateThenCurrent() {
	decision := &Decision{
		Institution: "Clinica Norte",
		ValidUntil:  "2026-06-01",
		Features:    DefaultFeatures,
	}

	stored, err := s.store.Activate(context.Background(), decision)
	s.Require().NoError(err)
	s.NotEmpty(stored.ActivationID)
	s.NotEmpty(stored.Signature)
	s.WithinDuration(time.Now(), stored.ActivatedAt, 5*time.Second)

	current, err := s.store.Current(context.Background())
	s.Require().NoError(err)
	s.Require().NotNil(current)
	s.Equal(stored.ActivationID, current.ActivationID)
	s.Equal("Clinica Norte", current.Institution)
	s.Equal("2026-06-01", current.ValidUntil)
	s.Equal(DefaultFeatures, current.Features)

	info, err := os.Stat(s.path)
	s.Require().NoError(err)
	s.Equal(os.FileMode(0o600), info.Mode().Perm())
}

func (s *StoreTestSuite) TestLastActivationWins() {
	ctx := context.Background()
	_, err := s.store.Activate(ctx, &Decision{Institution: "First", ValidUntil: ValidUntilPermanent, Features: DefaultFeatures})
	s.Require().NoError(err)
	_, err = s.store.Activate(ctx, &Decision{Institution: "Second", ValidUntil: ValidUntilPermanent, Features: DefaultFeatures})
	s.Require().NoError(err)

	current, err := s.store.Current(ctx)
	s.Require().NoError(err)
	s.Require().NotNil(current)
	s.Equal("Second", current.Institution)
}

func (s *StoreTestSuite) TestTamperedStateReadsAsNotActivated() {
	ctx := context.Background()
	_, err := s.store.Activate(ctx, &Decision{Institution: "Clinica Norte", ValidUntil: "2026-06-01", Features: DefaultFeatures})
	s.Require().NoError(err)

	data, err := os.ReadFile(s.path)
	s.Require().NoError(err)
	var state ActivationState
	s.Require().NoError(json.Unmarshal(data, &state))
	state.ValidUntil = "2099-01-01"
	forged, err := json.Marshal(&state)
	s.Require().NoError(err)
	s.Require().NoError(os.WriteFile(s.path, forged, 0o600))

	current, err := s.store.Current(ctx)
	s.Require().NoError(err)
	s.Nil(current, "tampered state must read as not activated")
}

func (s *StoreTestSuite) TestUnreadableStateReadsAsNotActivated() {
	// A directory at the state path makes the read fail with something
	// other than not-exist.
	s.Require().NoError(os.Mkdir(s.path, 0o700))

	current, err := s.store.Current(context.Background())
	s.Require().NoError(err)
	s.Nil(current, "unreadable state must read as not activated")
}

func (s *StoreTestSuite) TestCorruptStateReadsAsNotActivated() {
	s.Require().NoError(os.WriteFile(s.path, []byte("{broken"), 0o600))

	current, err := s.store.Current(context.Background())
	s.Require().NoError(err)
	s.Nil(current)
}

func (s *StoreTestSuite) TestClear() {
	ctx := context.Background()
	s.Require().NoError(s.store.Clear(), "clearing a missing state is a no-op")

	_, err := s.store.Activate(ctx, &Decision{Institution: "X", ValidUntil: ValidUntilPermanent, Features: DefaultFeatures})
	s.Require().NoError(err)
	s.Require().NoError(s.store.Clear())

	current, err := s.store.Current(ctx)
	s.Require().NoError(err)
	s.Nil(current)
}

func (s *StoreTestSuite) TestConcurrentActivations() {
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.Activate(ctx, &Decision{
				Institution: "Clinica Norte",
				ValidUntil:  ValidUntilPermanent,
				Features:    DefaultFeatures,
			})
			assert.NoError(s.T(), err)
		}()
	}
	wg.Wait()

	current, err := s.store.Current(ctx)
	s.Require().NoError(err)
	s.NotNil(current, "one of the concurrent activations must have won intact")
}

func TestActivationStateExpiry(t *testing.T) {
	now, err := time.Parse(time.RFC3339, "2025-06-10T12:00:00Z")
	require.NoError(t, err)

	tests := []struct {
		name        string
		validUntil  string
		wantExpired bool
		wantDays    int
	}{
		{name: "permanent", validUntil: ValidUntilPermanent, wantExpired: false, wantDays: -1},
		{name: "expires today", validUntil: "2025-06-10", wantExpired: false, wantDays: 0},
		{name: "expires tomorrow", validUntil: "2025-06-11", wantExpired: false, wantDays: 1},
		{name: "expired yesterday", validUntil: "2025-06-09", wantExpired: true, wantDays: 0},
		{name: "a month out", validUntil: "2025-07-10", wantExpired: false, wantDays: 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := &ActivationState{ValidUntil: tt.validUntil}
			assert.Equal(t, tt.wantExpired, state.Expired(now))
			assert.Equal(t, tt.wantDays, state.DaysLeft(now))
		})
	}
}
