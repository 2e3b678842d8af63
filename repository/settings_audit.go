package repository

import (
	"context"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SettingsAuditModel is the Bun model for mirrored settings writes.
type SettingsAuditModel struct {
	bun.BaseModel `bun:"table:profile_settings_audit,alias:psa"`

	ID        uuid.UUID      `bun:"id,pk,nullzero,type:uuid"`
	ProfileID uuid.UUID      `bun:"profile_id,notnull,type:uuid"`
	Patch     map[string]any `bun:"patch,type:jsonb"`
	CreatedAt time.Time      `bun:"created_at,nullzero,default:current_timestamp"`
}

// SettingsAudit implements identity.SettingsMirror by appending every
// applied patch to a secondary audit table. The state machine treats
// this store as best-effort: a failed mirror write is logged by the
// caller and never surfaced.
type SettingsAudit struct {
	db    *bun.DB
	clock func() time.Time
}

var _ identity.SettingsMirror = (*SettingsAudit)(nil)

// NewSettingsAudit creates the audit mirror.
func NewSettingsAudit(db *bun.DB) *SettingsAudit {
	return &SettingsAudit{
		db:    db,
		clock: time.Now,
	}
}

// MirrorSettings implements identity.SettingsMirror.
func (s *SettingsAudit) MirrorSettings(ctx context.Context, userID uuid.UUID, patch identity.ProfilePatch) error {
	record := &SettingsAuditModel{
		ID:        uuid.New(),
		ProfileID: userID,
		Patch:     patchDocument(patch),
		CreatedAt: s.clock(),
	}

	_, err := s.db.NewInsert().Model(record).Exec(ctx)
	return err
}

// History returns the mirrored patches for a profile, newest first.
func (s *SettingsAudit) History(ctx context.Context, userID uuid.UUID) ([]*SettingsAuditModel, error) {
	var records []*SettingsAuditModel
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.profile_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func patchDocument(patch identity.ProfilePatch) map[string]any {
	doc := map[string]any{}
	if patch.DisplayName != nil {
		doc["display_name"] = *patch.DisplayName
	}
	if patch.AvatarID != nil {
		doc["avatar_id"] = *patch.AvatarID
	}
	if patch.ThemePreference != nil {
		doc["theme_preference"] = *patch.ThemePreference
	}
	if patch.Locale != nil {
		doc["locale"] = *patch.Locale
	}
	if patch.Timezone != nil {
		doc["timezone"] = *patch.Timezone
	}
	return doc
}
