package identity_test

import (
	"context"
	"sync"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/provider/local"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryProfiles struct {
	mu      sync.Mutex
	records map[uuid.UUID]*identity.Profile
}

func newMemoryProfiles() *memoryProfiles {
	return &memoryProfiles{records: map[uuid.UUID]*identity.Profile{}}
}

func (m *memoryProfiles) GetProfile(ctx context.Context, userID uuid.UUID) (*identity.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[userID]
	if !ok {
		return nil, identity.ErrProfileNotFound
	}
	return record.Clone(), nil
}

func (m *memoryProfiles) InsertProfile(ctx context.Context, record *identity.Profile) (*identity.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[record.ID] = record.Clone()
	return record.Clone(), nil
}

func (m *memoryProfiles) UpdateProfile(ctx context.Context, userID uuid.UUID, patch identity.ProfilePatch) (*identity.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[userID]
	if !ok {
		return nil, identity.ErrProfileNotFound
	}
	patch.Apply(record)
	return record.Clone(), nil
}

type memoryAccounts struct {
	mu       sync.Mutex
	accounts map[string]*local.Credential
}

func (m *memoryAccounts) FindByEmail(ctx context.Context, email string) (*local.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, ok := m.accounts[email]
	if !ok {
		return nil, goerrors.New("account not found", goerrors.CategoryNotFound).
			WithCode(goerrors.CodeNotFound)
	}
	return cred, nil
}

func TestMachineOverLocalSourceFullLifecycle(t *testing.T) {
	hash, err := local.HashSecret("s3cret")
	require.NoError(t, err)

	userID := uuid.New()
	accounts := &memoryAccounts{accounts: map[string]*local.Credential{
		"ada@example.com": {UserID: userID, Email: "ada@example.com", SecretHash: hash},
	}}

	source := local.NewSource(accounts, []byte("integration-key"))
	store := newMemoryProfiles()

	machine := identity.New(source, store, identity.WithSettingsMirror(nullMirror{}))
	defer machine.Close()

	// cold start: nobody signed in yet
	require.NoError(t, machine.Start(context.Background()))
	require.True(t, machine.IsVisitor())

	// login synthesizes and persists a first profile
	session, err := machine.Login(context.Background(), "ada@example.com", "s3cret")
	require.NoError(t, err)
	require.Equal(t, userID, session.UserID)

	require.Eventually(t, machine.IsAuthenticated, time.Second, 5*time.Millisecond)
	profile := machine.CurrentProfile()
	require.NotNil(t, profile)
	assert.Equal(t, "ada", profile.DisplayName)

	stored, err := store.GetProfile(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "ada", stored.DisplayName)

	// settings survive a remote round trip
	name := "Ada Lovelace"
	updated, err := machine.UpdateSettings(context.Background(), identity.ProfilePatch{DisplayName: &name})
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", updated.DisplayName)
	assert.Equal(t, "Ada Lovelace", machine.DisplayName())

	// a provider-side token refresh keeps the profile in place
	_, err = source.RefreshSession(context.Background())
	require.NoError(t, err)
	assert.True(t, machine.IsAuthenticated())
	assert.Equal(t, "Ada Lovelace", machine.DisplayName())

	// logout ends the session everywhere
	require.NoError(t, machine.Logout(context.Background()))
	assert.True(t, machine.IsVisitor())
	assert.Nil(t, machine.CurrentProfile())

	current, err := source.CurrentSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, current)

	// the remote profile record survives the sign-out
	kept, err := store.GetProfile(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", kept.DisplayName)
}

type nullMirror struct{}

func (nullMirror) MirrorSettings(context.Context, uuid.UUID, identity.ProfilePatch) error {
	return nil
}
