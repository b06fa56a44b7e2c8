// Package profile manages per-user profile documents and their chat settings.
package profile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vibe-companion/backend/internal/model/persona"
	model "github.com/vibe-companion/backend/internal/model/profile"
)

// ErrInvalidSettings is returned for an unknown personality or language.
var ErrInvalidSettings = errors.New("profile: invalid settings")

// Repository loads and stores profiles.
type Repository interface {
	// GetOrCreate returns the profile for id.UID, creating it with default
	// settings on first access.
	GetOrCreate(ctx context.Context, id model.Identity) (model.Profile, error)
	// UpdateSettings replaces the user's settings and returns the updated profile.
	UpdateSettings(ctx context.Context, id model.Identity, settings model.Settings) (model.Profile, error)
}

// ValidateSettings fills defaults and rejects unknown ids.
func ValidateSettings(s model.Settings) (model.Settings, error) {
	s = s.Normalize()
	if _, ok := persona.FindPersonality(s.Personality); !ok {
		return s, fmt.Errorf("%w: unknown personality %q", ErrInvalidSettings, s.Personality)
	}
	if _, ok := persona.FindLanguage(s.Language); !ok {
		return s, fmt.Errorf("%w: unknown language %q", ErrInvalidSettings, s.Language)
	}
	return s, nil
}

// Memory keeps profiles in process memory.
type Memory struct {
	mu       sync.Mutex
	profiles map[string]model.Profile
	now      func() time.Time
}

// NewMemory returns an empty repository.
func NewMemory() *Memory {
	return &Memory{profiles: make(map[string]model.Profile), now: time.Now}
}

// GetOrCreate implements Repository.
func (m *Memory) GetOrCreate(_ context.Context, id model.Identity) (model.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getOrCreateLocked(id), nil
}

func (m *Memory) getOrCreateLocked(id model.Identity) model.Profile {
	if p, ok := m.profiles[id.UID]; ok {
		return p
	}
	p := model.New(id, m.now().UTC())
	m.profiles[id.UID] = p
	return p
}

// UpdateSettings implements Repository.
func (m *Memory) UpdateSettings(_ context.Context, id model.Identity, settings model.Settings) (model.Profile, error) {
	settings, err := ValidateSettings(settings)
	if err != nil {
		return model.Profile{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.getOrCreateLocked(id)
	p.Settings = settings
	p.UpdatedAt = m.now().UTC()
	m.profiles[id.UID] = p
	return p, nil
}
