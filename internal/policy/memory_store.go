package policy

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
)

// MemoryStore provides an in-memory implementation of the Store interface,
// intended for development and testing scenarios.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

// NewMemoryStore initialises the store with the provided seed profiles.
func NewMemoryStore(seeds []Seed) *MemoryStore {
	store := &MemoryStore{profiles: make(map[string]*Profile)}
	for _, seed := range seeds {
		userID := strings.TrimSpace(seed.UserID)
		if userID == "" {
			continue
		}
		if _, exists := store.profiles[userID]; exists {
			continue
		}
		profile := &Profile{
			UserID:         userID,
			DisplayName:    seed.DisplayName,
			VisionConsent:  seed.VisionConsent,
			PreferredChain: seed.PreferredChain,
			Permissions:    dedupeStrings(seed.Permissions),
			Disabled:       seed.Disabled,
		}
		profile.normalise()
		store.profiles[userID] = profile
	}
	return store
}

// Profile returns the stored profile for the user.
func (s *MemoryStore) Profile(_ context.Context, userID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if profile, ok := s.profiles[strings.TrimSpace(userID)]; ok {
		return profile.Clone(), nil
	}
	return nil, ErrProfileNotFound
}

// SaveProfile inserts or replaces the profile keyed by its UserID.
func (s *MemoryStore) SaveProfile(_ context.Context, profile *Profile) error {
	if profile == nil {
		return errors.New("profile cannot be nil")
	}
	userID := strings.TrimSpace(profile.UserID)
	if userID == "" {
		return errors.New("profile user id cannot be empty")
	}

	clone := profile.Clone()
	clone.UserID = userID
	clone.Permissions = dedupeStrings(clone.Permissions)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.profiles == nil {
		s.profiles = make(map[string]*Profile)
	}
	s.profiles[userID] = clone
	return nil
}

func dedupeStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		seen[strings.ToLower(value)] = struct{}{}
	}
	result := make([]string, 0, len(seen))
	for key := range seen {
		result = append(result, key)
	}
	sort.Strings(result)
	return result
}

var _ Store = (*MemoryStore)(nil)
