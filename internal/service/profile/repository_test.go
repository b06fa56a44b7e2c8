package profile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/vibe-companion/backend/internal/model/profile"
	"github.com/vibe-companion/backend/internal/store/sqlitedb"
)

func repositories(t *testing.T) map[string]Repository {
	t.Helper()
	db, err := sqlitedb.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	clock := func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	mem := NewMemory()
	mem.now = clock
	sq := NewSQLite(db)
	sq.now = clock
	return map[string]Repository{"memory": mem, "sqlite": sq}
}

func TestGetOrCreateUsesDefaults(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			id := model.Identity{UID: "u1", Email: "a@b.c", Name: "Asha", Picture: "https://p"}

			p, err := repo.GetOrCreate(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, "u1", p.UID)
			assert.Equal(t, "Asha", p.Name)
			assert.Equal(t, "https://p", p.ProfilePicture)
			assert.Equal(t, model.Settings{Personality: "young_friend", Language: "english"}, p.Settings)
			assert.Equal(t, 2024, p.CreatedAt.Year())

			again, err := repo.GetOrCreate(context.Background(), model.Identity{UID: "u1", Name: "Changed"})
			require.NoError(t, err)
			assert.Equal(t, "Asha", again.Name)
		})
	}
}

func TestUpdateSettings(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			id := model.Identity{UID: "u2"}

			p, err := repo.UpdateSettings(context.Background(), id, model.Settings{Personality: "mentor", Language: "hinglish"})
			require.NoError(t, err)
			assert.Equal(t, "mentor", p.Settings.Personality)
			assert.Equal(t, "hinglish", p.Settings.Language)

			_, err = repo.UpdateSettings(context.Background(), id, model.Settings{Personality: "pirate"})
			assert.ErrorIs(t, err, ErrInvalidSettings)

			p, err = repo.GetOrCreate(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, "mentor", p.Settings.Personality)
		})
	}
}

func TestValidateSettingsFillsDefaults(t *testing.T) {
	s, err := ValidateSettings(model.Settings{Language: "hindi"})
	require.NoError(t, err)
	assert.Equal(t, "young_friend", s.Personality)
	assert.Equal(t, "hindi", s.Language)
}
