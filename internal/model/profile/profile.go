package profile

import (
	"time"

	"github.com/vibe-companion/backend/internal/model/chat"
)

// Settings are the user-selectable conversation options.
type Settings struct {
	Personality string `json:"personality" firestore:"personality"`
	Language    string `json:"language" firestore:"language"`
}

// Profile is the per-user document created on first sign-in.
type Profile struct {
	UID            string    `json:"uid" firestore:"-"`
	Email          string    `json:"email" firestore:"email"`
	Name           string    `json:"name" firestore:"name"`
	ProfilePicture string    `json:"profilePicture" firestore:"profilePicture"`
	Settings       Settings  `json:"settings" firestore:"settings"`
	CreatedAt      time.Time `json:"createdAt" firestore:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt" firestore:"updatedAt"`
}

// DefaultSettings returns young_friend / english.
func DefaultSettings() Settings {
	return Settings{Personality: chat.DefaultPersonality, Language: chat.DefaultLanguage}
}

// Identity is what the auth provider tells us about a user.
type Identity struct {
	UID     string
	Email   string
	Name    string
	Picture string
}

// New builds a profile with default settings for id.
func New(id Identity, now time.Time) Profile {
	return Profile{
		UID:            id.UID,
		Email:          id.Email,
		Name:           id.Name,
		ProfilePicture: id.Picture,
		Settings:       DefaultSettings(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Normalize fills empty settings with defaults.
func (s Settings) Normalize() Settings {
	if s.Personality == "" {
		s.Personality = chat.DefaultPersonality
	}
	if s.Language == "" {
		s.Language = chat.DefaultLanguage
	}
	return s
}
