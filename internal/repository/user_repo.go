package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/caniparkhere/caniparkhere/apps/api/internal/preferences"
	"github.com/caniparkhere/caniparkhere/apps/api/pkg/model"
)

// TokenExchanger trades an identity-provider user id for a database custom token.
type TokenExchanger interface {
	GetFirebaseToken(ctx context.Context, identityID string) (string, error)
}

// UserRepository manages users/{uid} profile documents.
type UserRepository struct {
	client *firestore.Client
	tokens TokenExchanger
	now    func() time.Time
}

func NewUserRepository(client *firestore.Client, tokens TokenExchanger) *UserRepository {
	return &UserRepository{client: client, tokens: tokens, now: time.Now}
}

func (r *UserRepository) userRef(userID string) *firestore.DocumentRef {
	return r.client.Collection("users").Doc(userID)
}

// SyncUserProfile exchanges the identity for a custom token, then creates the profile
// if absent or merge-updates its identity fields and lastSeen. Safe to call on every
// authenticated page load.
func (r *UserRepository) SyncUserProfile(ctx context.Context, u model.IdentityUser) (model.UserProfile, string, error) {
	if u.ID == "" {
		return model.UserProfile{}, "", ErrUserRequired
	}
	var token string
	if r.tokens != nil {
		t, err := r.tokens.GetFirebaseToken(ctx, u.ID)
		if err != nil {
			return model.UserProfile{}, "", fmt.Errorf("exchange token for %s: %w", u.ID, err)
		}
		token = t
	}

	ref := r.userRef(u.ID)
	var profile model.UserProfile
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := r.now().UTC()
		snap, err := tx.Get(ref)
		if isNotFound(err) {
			profile = model.UserProfile{
				ClerkID:     u.ID,
				CreatedAt:   now,
				UpdatedAt:   now,
				LastSeen:    now,
				Preferences: model.DefaultPreferences(),
			}
			applyIdentity(&profile, u)
			return tx.Set(ref, profile)
		}
		if err != nil {
			return fmt.Errorf("get profile %s: %w", u.ID, err)
		}

		if err := snap.DataTo(&profile); err != nil {
			return fmt.Errorf("%w: profile %s: %v", model.ErrMalformedDocument, u.ID, err)
		}
		applyIdentity(&profile, u)
		profile.UpdatedAt = now
		profile.LastSeen = now
		return tx.Set(ref, map[string]interface{}{
			"clerkId":   u.ID,
			"email":     profile.Email,
			"firstName": profile.FirstName,
			"lastName":  profile.LastName,
			"fullName":  profile.FullName,
			"imageUrl":  profile.ImageURL,
			"updatedAt": now,
			"lastSeen":  now,
		}, firestore.MergeAll)
	})
	if err != nil {
		return model.UserProfile{}, "", fmt.Errorf("sync profile %s: %w", u.ID, err)
	}
	profile.ID = u.ID
	profile.ClerkID = u.ID
	return profile, token, nil
}

func applyIdentity(p *model.UserProfile, u model.IdentityUser) {
	p.Email = nil
	for _, e := range u.EmailAddresses {
		if e = strings.TrimSpace(e); e != "" {
			p.Email = &e
			break
		}
	}
	p.FirstName = optional(u.FirstName)
	p.LastName = optional(u.LastName)
	p.FullName = optional(u.FullName)
	p.ImageURL = optional(u.ImageURL)
}

func optional(s string) *string {
	if s = strings.TrimSpace(s); s == "" {
		return nil
	}
	return &s
}

func (r *UserRepository) GetUserProfile(ctx context.Context, userID string) (model.UserProfile, error) {
	if userID == "" {
		return model.UserProfile{}, ErrUserRequired
	}
	snap, err := r.userRef(userID).Get(ctx)
	if isNotFound(err) {
		return model.UserProfile{}, fmt.Errorf("profile %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return model.UserProfile{}, fmt.Errorf("get profile %s: %w", userID, err)
	}
	var p model.UserProfile
	if err := snap.DataTo(&p); err != nil {
		return model.UserProfile{}, fmt.Errorf("%w: profile %s: %v", model.ErrMalformedDocument, userID, err)
	}
	p.ID = userID
	if err := p.Validate(); err != nil {
		return model.UserProfile{}, fmt.Errorf("%w: profile %s: %v", model.ErrMalformedDocument, userID, err)
	}
	return p, nil
}

// IncrementUserStat bumps one of the allow-listed counters by exactly one using the
// database's atomic increment, and refreshes lastSeen.
func (r *UserRepository) IncrementUserStat(ctx context.Context, userID string, stat model.StatName) error {
	if userID == "" {
		return ErrUserRequired
	}
	if !stat.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStat, stat)
	}
	_, err := r.userRef(userID).Update(ctx, []firestore.Update{
		{Path: "stats." + string(stat), Value: firestore.Increment(1)},
		{Path: "lastSeen", Value: r.now().UTC()},
	})
	if isNotFound(err) {
		return fmt.Errorf("profile %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("increment %s for %s: %w", stat, userID, err)
	}
	return nil
}

// UpdateUserPreferences merge-writes the set fields of patch and returns the
// preferences as stored afterwards.
func (r *UserRepository) UpdateUserPreferences(ctx context.Context, userID string, patch model.PreferencesPatch) (model.Preferences, error) {
	if userID == "" {
		return model.Preferences{}, ErrUserRequired
	}
	if patch.SpotsLimit != nil {
		n := preferences.ClampSpotsLimit(*patch.SpotsLimit, preferences.MaxSpotsLimit)
		patch.SpotsLimit = &n
	}
	fields := patch.Fields()
	if len(fields) > 0 {
		_, err := r.userRef(userID).Set(ctx, map[string]interface{}{
			"preferences": fields,
			"updatedAt":   r.now().UTC(),
		}, firestore.MergeAll)
		if err != nil {
			return model.Preferences{}, fmt.Errorf("update preferences for %s: %w", userID, err)
		}
	}
	p, err := r.GetUserProfile(ctx, userID)
	if err != nil {
		return model.Preferences{}, err
	}
	return p.Preferences, nil
}
