package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	domain "github.com/artisan-market/api/internal/domain"
	"github.com/artisan-market/api/internal/repositories"
)

// ProfileStore keeps customer profiles keyed by lower-cased email.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]domain.CustomerProfile
	now      func() time.Time
}

var _ repositories.ProfileRepository = (*ProfileStore)(nil)

// NewProfileStore constructs a store seeded with the given profiles.
func NewProfileStore(seed ...domain.CustomerProfile) *ProfileStore {
	store := &ProfileStore{profiles: make(map[string]domain.CustomerProfile, len(seed)), now: time.Now}
	for _, profile := range seed {
		store.profiles[profileKey(profile.Email)] = profile
	}
	return store
}

func (s *ProfileStore) Get(_ context.Context, email string) (domain.CustomerProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profile, ok := s.profiles[profileKey(email)]
	if !ok {
		return domain.CustomerProfile{}, notFound("profiles.get", email)
	}
	return profile, nil
}

func (s *ProfileStore) Upsert(_ context.Context, profile domain.CustomerProfile) (domain.CustomerProfile, error) {
	key := profileKey(profile.Email)
	if key == "" {
		return domain.CustomerProfile{}, errors.New("profiles.upsert: email is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if existing, ok := s.profiles[key]; ok {
		profile.CreatedAt = existing.CreatedAt
	} else if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.Email = key
	profile.UpdatedAt = now
	s.profiles[key] = profile
	return profile, nil
}

func profileKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
