// Package repository provides Bun-backed implementations of the
// identity store contracts: the primary ProfileStore and the
// best-effort settings mirror.
package repository

import (
	"context"
	"time"

	"github.com/goliatone/go-identity"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ProfileModel is the Bun model for profile records.
type ProfileModel struct {
	bun.BaseModel `bun:"table:profiles,alias:prf"`

	ID              uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	DisplayName     string         `bun:"display_name,notnull" json:"display_name,omitempty"`
	AvatarID        string         `bun:"avatar_id" json:"avatar_id,omitempty"`
	ThemePreference string         `bun:"theme_preference,notnull" json:"theme_preference,omitempty"`
	Locale          string         `bun:"locale" json:"locale,omitempty"`
	Timezone        string         `bun:"timezone" json:"timezone,omitempty"`
	Metadata        map[string]any `bun:"metadata,type:jsonb" json:"metadata,omitempty"`
	CreatedAt       *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt       *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// ProfileRepository implements identity.ProfileStore using Bun.
type ProfileRepository struct {
	repository.Repository[*ProfileModel]
	db    *bun.DB
	clock func() time.Time
}

var _ identity.ProfileStore = (*ProfileRepository)(nil)

// ProfilesOption customizes repository construction.
type ProfilesOption func(*ProfileRepository)

// WithProfilesClock injects a custom clock (useful for tests).
func WithProfilesClock(clock func() time.Time) ProfilesOption {
	return func(r *ProfileRepository) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// NewProfileRepository creates the Bun-backed profile store.
func NewProfileRepository(db *bun.DB, opts ...ProfilesOption) *ProfileRepository {
	repo := repository.NewRepository[*ProfileModel](db, repository.ModelHandlers[*ProfileModel]{
		NewRecord: func() *ProfileModel { return &ProfileModel{} },
		GetID: func(p *ProfileModel) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *ProfileModel, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
	})

	r := &ProfileRepository{
		Repository: repo,
		db:         db,
		clock:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

// GetProfile implements identity.ProfileStore.
func (r *ProfileRepository) GetProfile(ctx context.Context, userID uuid.UUID) (*identity.Profile, error) {
	record := &ProfileModel{}

	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", userID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, identity.ErrProfileNotFound.WithMetadata(map[string]any{
				"user_id": userID.String(),
			})
		}
		return nil, err
	}

	return toProfile(record), nil
}

// InsertProfile implements identity.ProfileStore.
func (r *ProfileRepository) InsertProfile(ctx context.Context, record *identity.Profile) (*identity.Profile, error) {
	model := fromProfile(record)
	prepareProfileDefaults(model, r.clock)

	created, err := r.Repository.Create(ctx, model)
	if err != nil {
		return nil, err
	}

	return toProfile(created), nil
}

// UpdateProfile implements identity.ProfileStore. Only the patch's
// non-nil columns are written; the refreshed record is returned.
func (r *ProfileRepository) UpdateProfile(ctx context.Context, userID uuid.UUID, patch identity.ProfilePatch) (*identity.Profile, error) {
	q := r.db.NewUpdate().
		Model((*ProfileModel)(nil)).
		Where("?TableAlias.id = ?", userID)

	assigned := false
	if patch.DisplayName != nil {
		q = q.Set("display_name = ?", *patch.DisplayName)
		assigned = true
	}
	if patch.AvatarID != nil {
		q = q.Set("avatar_id = ?", *patch.AvatarID)
		assigned = true
	}
	if patch.ThemePreference != nil {
		q = q.Set("theme_preference = ?", *patch.ThemePreference)
		assigned = true
	}
	if patch.Locale != nil {
		q = q.Set("locale = ?", *patch.Locale)
		assigned = true
	}
	if patch.Timezone != nil {
		q = q.Set("timezone = ?", *patch.Timezone)
		assigned = true
	}

	if !assigned {
		return r.GetProfile(ctx, userID)
	}

	q = q.Set("updated_at = ?", r.clock())

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return nil, identity.ErrProfileNotFound.WithMetadata(map[string]any{
			"user_id": userID.String(),
		})
	}

	return r.GetProfile(ctx, userID)
}

func prepareProfileDefaults(model *ProfileModel, clock func() time.Time) {
	if model.ID == uuid.Nil {
		model.ID = uuid.New()
	}
	if model.ThemePreference == "" {
		model.ThemePreference = identity.ThemeAuto
	}
	now := clock()
	if model.CreatedAt == nil {
		model.CreatedAt = &now
	}
	if model.UpdatedAt == nil {
		model.UpdatedAt = &now
	}
}

func toProfile(model *ProfileModel) *identity.Profile {
	if model == nil {
		return nil
	}
	return &identity.Profile{
		ID:              model.ID,
		DisplayName:     model.DisplayName,
		AvatarID:        model.AvatarID,
		ThemePreference: model.ThemePreference,
		Locale:          model.Locale,
		Timezone:        model.Timezone,
		Metadata:        model.Metadata,
		CreatedAt:       model.CreatedAt,
		UpdatedAt:       model.UpdatedAt,
	}
}

func fromProfile(profile *identity.Profile) *ProfileModel {
	if profile == nil {
		return &ProfileModel{}
	}
	return &ProfileModel{
		ID:              profile.ID,
		DisplayName:     profile.DisplayName,
		AvatarID:        profile.AvatarID,
		ThemePreference: profile.ThemePreference,
		Locale:          profile.Locale,
		Timezone:        profile.Timezone,
		Metadata:        profile.Metadata,
		CreatedAt:       profile.CreatedAt,
		UpdatedAt:       profile.UpdatedAt,
	}
}
