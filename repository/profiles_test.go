package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const (
	sqliteCreateProfiles = `CREATE TABLE profiles (
    id TEXT NOT NULL PRIMARY KEY,
    display_name TEXT NOT NULL,
    avatar_id TEXT,
    theme_preference TEXT NOT NULL DEFAULT 'auto',
    locale TEXT,
    timezone TEXT,
    metadata TEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP
);`
	sqliteCreateSettingsAudit = `CREATE TABLE profile_settings_audit (
    id TEXT NOT NULL PRIMARY KEY,
    profile_id TEXT NOT NULL,
    patch TEXT NOT NULL DEFAULT '{}',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);`
)

func setupDB(t *testing.T) (*bun.DB, func()) {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())

	_, err = bunDB.Exec(sqliteCreateProfiles)
	require.NoError(t, err)
	_, err = bunDB.Exec(sqliteCreateSettingsAudit)
	require.NoError(t, err)

	cleanup := func() {
		_ = bunDB.Close()
		_ = db.Close()
	}

	return bunDB, cleanup
}

func TestProfileRepositoryInsertAndGet(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewProfileRepository(db)

	userID := uuid.New()
	created, err := repo.InsertProfile(ctx, &identity.Profile{
		ID:              userID,
		DisplayName:     "ada",
		ThemePreference: identity.ThemeAuto,
		Locale:          "en-GB",
	})
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, userID, created.ID)
	require.NotNil(t, created.CreatedAt)

	got, err := repo.GetProfile(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "ada", got.DisplayName)
	assert.Equal(t, "en-GB", got.Locale)
	assert.False(t, got.IsFallback())
}

func TestProfileRepositoryInsertAssignsDefaults(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewProfileRepository(db)

	created, err := repo.InsertProfile(ctx, &identity.Profile{DisplayName: "anon"})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, created.ID)
	assert.Equal(t, identity.ThemeAuto, created.ThemePreference)
}

func TestProfileRepositoryGetMissingIsNotFound(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	_, err := NewProfileRepository(db).GetProfile(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, identity.IsProfileNotFound(err))
}

func TestProfileRepositoryUpdatePatchColumns(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	repo := NewProfileRepository(db, WithProfilesClock(func() time.Time { return now }))

	userID := uuid.New()
	_, err := repo.InsertProfile(ctx, &identity.Profile{
		ID:              userID,
		DisplayName:     "ada",
		AvatarID:        "avatar-1",
		ThemePreference: identity.ThemeAuto,
	})
	require.NoError(t, err)

	theme := identity.ThemeDark
	updated, err := repo.UpdateProfile(ctx, userID, identity.ProfilePatch{
		ThemePreference: &theme,
	})
	require.NoError(t, err)
	assert.Equal(t, identity.ThemeDark, updated.ThemePreference)
	assert.Equal(t, "ada", updated.DisplayName, "unpatched columns keep their value")
	assert.Equal(t, "avatar-1", updated.AvatarID)
}

func TestProfileRepositoryUpdateMissingIsNotFound(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	theme := identity.ThemeDark
	_, err := NewProfileRepository(db).UpdateProfile(context.Background(), uuid.New(), identity.ProfilePatch{
		ThemePreference: &theme,
	})
	require.Error(t, err)
	assert.True(t, identity.IsProfileNotFound(err))
}

func TestProfileRepositoryUpdateEmptyPatchReturnsRecord(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	repo := NewProfileRepository(db)

	userID := uuid.New()
	_, err := repo.InsertProfile(ctx, &identity.Profile{ID: userID, DisplayName: "ada"})
	require.NoError(t, err)

	got, err := repo.UpdateProfile(ctx, userID, identity.ProfilePatch{})
	require.NoError(t, err)
	assert.Equal(t, "ada", got.DisplayName)
}

func TestSettingsAuditMirrorAndHistory(t *testing.T) {
	db, cleanup := setupDB(t)
	defer cleanup()

	ctx := context.Background()
	mirror := NewSettingsAudit(db)

	userID := uuid.New()
	theme := identity.ThemeDark
	locale := "fr-FR"

	require.NoError(t, mirror.MirrorSettings(ctx, userID, identity.ProfilePatch{ThemePreference: &theme}))
	require.NoError(t, mirror.MirrorSettings(ctx, userID, identity.ProfilePatch{Locale: &locale}))

	history, err := mirror.History(ctx, userID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	for _, entry := range history {
		assert.Equal(t, userID, entry.ProfileID)
	}

	other, err := mirror.History(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, other)
}
