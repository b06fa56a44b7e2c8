package profile

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	model "github.com/vibe-companion/backend/internal/model/profile"
)

// Firestore stores each profile as the users/{uid} document.
type Firestore struct {
	client *firestore.Client
	now    func() time.Time
}

// NewFirestore wraps client.
func NewFirestore(client *firestore.Client) *Firestore {
	return &Firestore{client: client, now: time.Now}
}

// GetOrCreate implements Repository.
func (f *Firestore) GetOrCreate(ctx context.Context, id model.Identity) (model.Profile, error) {
	ref := f.client.Collection("users").Doc(id.UID)
	var p model.Profile
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
			p = model.New(id, f.now().UTC())
			return tx.Create(ref, p)
		case err != nil:
			return err
		}
		p = model.Profile{}
		return snap.DataTo(&p)
	})
	if err != nil {
		return model.Profile{}, fmt.Errorf("get profile %s: %w", id.UID, err)
	}
	p.UID = id.UID
	p.Settings = p.Settings.Normalize()
	return p, nil
}

// UpdateSettings implements Repository.
func (f *Firestore) UpdateSettings(ctx context.Context, id model.Identity, settings model.Settings) (model.Profile, error) {
	settings, err := ValidateSettings(settings)
	if err != nil {
		return model.Profile{}, err
	}
	if _, err := f.GetOrCreate(ctx, id); err != nil {
		return model.Profile{}, err
	}
	_, err = f.client.Collection("users").Doc(id.UID).Update(ctx, []firestore.Update{
		{Path: "settings", Value: settings},
		{Path: "updatedAt", Value: f.now().UTC()},
	})
	if err != nil {
		return model.Profile{}, fmt.Errorf("update settings %s: %w", id.UID, err)
	}
	return f.GetOrCreate(ctx, id)
}
