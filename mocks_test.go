package identity_test

import (
	"context"
	"sync"

	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

var (
	anyCtx   = mock.MatchedBy(func(context.Context) bool { return true })
	anyPatch = mock.AnythingOfType("identity.ProfilePatch")
)

// MockProfileStore implements identity.ProfileStore
type MockProfileStore struct {
	mock.Mock
}

func (m *MockProfileStore) GetProfile(ctx context.Context, userID uuid.UUID) (*identity.Profile, error) {
	args := m.Called(ctx, userID)
	profile, _ := args.Get(0).(*identity.Profile)
	return profile, args.Error(1)
}

func (m *MockProfileStore) InsertProfile(ctx context.Context, record *identity.Profile) (*identity.Profile, error) {
	args := m.Called(ctx, record)
	profile, _ := args.Get(0).(*identity.Profile)
	return profile, args.Error(1)
}

func (m *MockProfileStore) UpdateProfile(ctx context.Context, userID uuid.UUID, patch identity.ProfilePatch) (*identity.Profile, error) {
	args := m.Called(ctx, userID, patch)
	profile, _ := args.Get(0).(*identity.Profile)
	return profile, args.Error(1)
}

// MockSettingsMirror implements identity.SettingsMirror
type MockSettingsMirror struct {
	mock.Mock
}

func (m *MockSettingsMirror) MirrorSettings(ctx context.Context, userID uuid.UUID, patch identity.ProfilePatch) error {
	args := m.Called(ctx, userID, patch)
	return args.Error(0)
}

// fakeSource is a scriptable identity.SessionSource that lets tests
// push provider events through the subscribed handler.
type fakeSource struct {
	mu sync.Mutex

	currentFn func(ctx context.Context) (*identity.Session, error)
	signInFn  func(ctx context.Context, email, secret string) (*identity.Session, error)
	signOutFn func(ctx context.Context) error

	subscribeErr error
	handler      identity.EventHandler
	unsubscribed int
}

func (f *fakeSource) CurrentSession(ctx context.Context) (*identity.Session, error) {
	if f.currentFn != nil {
		return f.currentFn(ctx)
	}
	return nil, nil
}

func (f *fakeSource) SignInWithPassword(ctx context.Context, email, secret string) (*identity.Session, error) {
	if f.signInFn != nil {
		return f.signInFn(ctx, email, secret)
	}
	return nil, identity.ErrInvalidCredentials
}

func (f *fakeSource) SignOut(ctx context.Context) error {
	if f.signOutFn != nil {
		return f.signOutFn(ctx)
	}
	return nil
}

func (f *fakeSource) Subscribe(handler identity.EventHandler) (identity.Subscription, error) {
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}

	f.mu.Lock()
	f.handler = handler
	f.mu.Unlock()

	return identity.SubscriptionFunc(func() {
		f.mu.Lock()
		f.unsubscribed++
		f.handler = nil
		f.mu.Unlock()
	}), nil
}

func (f *fakeSource) push(event identity.SessionEvent) {
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()

	if handler != nil {
		handler(event)
	}
}

func (f *fakeSource) unsubscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubscribed
}

// fakeStore is a function-backed identity.ProfileStore for tests that
// need to gate or count calls without mock plumbing.
type fakeStore struct {
	mu          sync.Mutex
	getFn       func(ctx context.Context, userID uuid.UUID) (*identity.Profile, error)
	insertFn    func(ctx context.Context, record *identity.Profile) (*identity.Profile, error)
	updateFn    func(ctx context.Context, userID uuid.UUID, patch identity.ProfilePatch) (*identity.Profile, error)
	insertCalls int
}

func (f *fakeStore) GetProfile(ctx context.Context, userID uuid.UUID) (*identity.Profile, error) {
	if f.getFn != nil {
		return f.getFn(ctx, userID)
	}
	return nil, identity.ErrProfileNotFound
}

func (f *fakeStore) InsertProfile(ctx context.Context, record *identity.Profile) (*identity.Profile, error) {
	f.mu.Lock()
	f.insertCalls++
	f.mu.Unlock()

	if f.insertFn != nil {
		return f.insertFn(ctx, record)
	}
	return record, nil
}

func (f *fakeStore) UpdateProfile(ctx context.Context, userID uuid.UUID, patch identity.ProfilePatch) (*identity.Profile, error) {
	if f.updateFn != nil {
		return f.updateFn(ctx, userID, patch)
	}
	return nil, identity.ErrProfileNotFound
}

func (f *fakeStore) insertCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insertCalls
}

type logCall struct {
	level   string
	message string
	args    []any
}

// captureLogger records structured log calls for assertions.
type captureLogger struct {
	mu    sync.Mutex
	calls []logCall
}

func (l *captureLogger) record(level, message string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, logCall{level: level, message: message, args: args})
}

func (l *captureLogger) Trace(message string, args ...any) { l.record("trace", message, args...) }
func (l *captureLogger) Debug(message string, args ...any) { l.record("debug", message, args...) }
func (l *captureLogger) Info(message string, args ...any)  { l.record("info", message, args...) }
func (l *captureLogger) Warn(message string, args ...any)  { l.record("warn", message, args...) }
func (l *captureLogger) Error(message string, args ...any) { l.record("error", message, args...) }
func (l *captureLogger) Fatal(message string, args ...any) { l.record("fatal", message, args...) }
func (l *captureLogger) WithContext(context.Context) identity.Logger {
	return l
}

func (l *captureLogger) has(level, message string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, call := range l.calls {
		if call.level == level && call.message == message {
			return true
		}
	}
	return false
}

// capturingSink records activity events.
type capturingSink struct {
	mu     sync.Mutex
	events []identity.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, event identity.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *capturingSink) byType(kind identity.ActivityEventType) []identity.ActivityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []identity.ActivityEvent
	for _, event := range c.events {
		if event.EventType == kind {
			out = append(out, event)
		}
	}
	return out
}
