package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	model "github.com/vibe-companion/backend/internal/model/profile"
)

// SQLite stores profiles in the embedded database.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite wraps db.
func NewSQLite(db *sql.DB) *SQLite {
	return &SQLite{db: db, now: time.Now}
}

// GetOrCreate implements Repository.
func (s *SQLite) GetOrCreate(ctx context.Context, id model.Identity) (model.Profile, error) {
	p, err := s.get(ctx, id.UID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.Profile{}, err
	}

	p = model.New(id, s.now().UTC())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (uid, email, name, profile_picture, personality, language, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (uid) DO NOTHING`,
		p.UID, p.Email, p.Name, p.ProfilePicture, p.Settings.Personality, p.Settings.Language,
		p.CreatedAt.UnixMilli(), p.UpdatedAt.UnixMilli())
	if err != nil {
		return model.Profile{}, fmt.Errorf("create profile: %w", err)
	}
	return s.get(ctx, id.UID)
}

// UpdateSettings implements Repository.
func (s *SQLite) UpdateSettings(ctx context.Context, id model.Identity, settings model.Settings) (model.Profile, error) {
	settings, err := ValidateSettings(settings)
	if err != nil {
		return model.Profile{}, err
	}
	if _, err := s.GetOrCreate(ctx, id); err != nil {
		return model.Profile{}, err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE profiles SET personality = ?, language = ?, updated_at = ? WHERE uid = ?`,
		settings.Personality, settings.Language, s.now().UTC().UnixMilli(), id.UID)
	if err != nil {
		return model.Profile{}, fmt.Errorf("update settings: %w", err)
	}
	return s.get(ctx, id.UID)
}

func (s *SQLite) get(ctx context.Context, uid string) (model.Profile, error) {
	var (
		p                model.Profile
		created, updated int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT uid, email, name, profile_picture, personality, language, created_at, updated_at
		FROM profiles WHERE uid = ?`, uid).
		Scan(&p.UID, &p.Email, &p.Name, &p.ProfilePicture, &p.Settings.Personality, &p.Settings.Language, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Profile{}, err
		}
		return model.Profile{}, fmt.Errorf("load profile: %w", err)
	}
	p.CreatedAt = time.UnixMilli(created).UTC()
	p.UpdatedAt = time.UnixMilli(updated).UTC()
	return p, nil
}
