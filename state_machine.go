package identity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	goerrors "github.com/goliatone/go-errors"
)

// Phase is the machine's current authentication phase
type Phase string

const (
	// PhaseUninitialized is the pre-construction phase.
	PhaseUninitialized Phase = "uninitialized"
	// PhaseInitializing covers the initial session fetch.
	PhaseInitializing Phase = "initializing"
	// PhaseVisitor is the first-class "no authenticated user" state,
	// never an error state.
	PhaseVisitor Phase = "visitor"
	// PhaseAuthenticated pairs a session with a profile.
	PhaseAuthenticated Phase = "authenticated"
)

// AuthState is the single canonical auth value. Authenticated always
// carries both a session and a profile (real or fallback); transitions
// are atomic from the consumer's viewpoint.
type AuthState struct {
	Phase      Phase
	Session    *Session
	Profile    *Profile
	Generation uint64
}

// StateMachine owns the canonical AuthState: it drives initialization,
// subscribes to the session source for the application lifetime, runs
// profile reconciliation, and exposes derived read-only accessors plus
// the login/logout/update-settings operations. Consumers never talk to
// the SessionSource or ProfileStore directly.
type StateMachine struct {
	mu     sync.Mutex
	state  AuthState
	gen    atomic.Uint64
	sub    Subscription
	closed bool

	started atomic.Bool

	source     SessionSource
	store      ProfileStore
	reconciler *ProfileReconciler
	mirror     SettingsMirror
	config     Config

	now          func() time.Time
	logger       Logger
	provider     LoggerProvider
	activitySink ActivitySink
}

// StateMachineOption customizes machine construction.
type StateMachineOption func(*StateMachine)

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) StateMachineOption {
	return func(m *StateMachine) {
		if clock != nil {
			m.now = clock
		}
	}
}

// WithLogger overrides the machine logger.
func WithLogger(logger Logger) StateMachineOption {
	return func(m *StateMachine) {
		if logger != nil {
			m.provider, m.logger = ResolveLogger("identity.machine", m.provider, logger)
		}
	}
}

// WithLoggerProvider overrides the logger provider used to resolve
// scoped loggers for the machine and its reconciler.
func WithLoggerProvider(provider LoggerProvider) StateMachineOption {
	return func(m *StateMachine) {
		if provider != nil {
			m.provider, m.logger = ResolveLogger("identity.machine", provider, m.logger)
		}
	}
}

// WithActivitySink sets the ActivitySink used to publish auth events.
func WithActivitySink(sink ActivitySink) StateMachineOption {
	return func(m *StateMachine) {
		m.activitySink = normalizeActivitySink(sink)
	}
}

// WithSettingsMirror sets the best-effort secondary settings store.
func WithSettingsMirror(mirror SettingsMirror) StateMachineOption {
	return func(m *StateMachine) {
		m.mirror = mirror
	}
}

// WithConfig sets the identity configuration.
func WithConfig(cfg Config) StateMachineOption {
	return func(m *StateMachine) {
		if cfg != nil {
			m.config = cfg
		}
	}
}

// WithReconciler overrides the default profile reconciler.
func WithReconciler(reconciler *ProfileReconciler) StateMachineOption {
	return func(m *StateMachine) {
		if reconciler != nil {
			m.reconciler = reconciler
		}
	}
}

// New creates a StateMachine over the given session source and profile
// store. The machine starts uninitialized; call Start to run the
// initial reconciliation and acquire the event subscription.
func New(source SessionSource, store ProfileStore, opts ...StateMachineOption) *StateMachine {
	provider, logger := ResolveLogger("identity.machine", nil, nil)

	m := &StateMachine{
		state:        AuthState{Phase: PhaseUninitialized},
		source:       source,
		store:        store,
		config:       SimpleConfig{},
		now:          time.Now,
		logger:       logger,
		provider:     provider,
		activitySink: noopActivitySink{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if m.reconciler == nil {
		m.reconciler = NewProfileReconciler(store,
			WithReconcilerConfig(m.config),
			WithReconcilerLoggerProvider(m.provider),
		)
	}

	return m
}

// Start subscribes to the session source and runs the initial
// reconciliation: fetch the current session, and when one exists,
// resolve its profile. Initialization failures degrade to visitor, the
// safe default; only a failed subscription acquisition is returned as
// an error, after releasing anything acquired.
func (m *StateMachine) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrMachineClosed
	}
	if !m.started.CompareAndSwap(false, true) {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.state.Phase = PhaseInitializing
	m.mu.Unlock()

	// subscription is acquired exactly once, before the initial fetch,
	// so provider events emitted during initialization are not lost
	sub, err := m.source.Subscribe(m.handleEvent)
	if err != nil {
		m.commitVisitor(ctx, m.nextGeneration())
		return goerrors.Wrap(err, goerrors.CategoryOperation, "session event subscription failed")
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		sub.Unsubscribe()
		return ErrMachineClosed
	}
	m.sub = sub
	m.mu.Unlock()

	m.initialize(ctx)
	return nil
}

// Close releases the event subscription. Idempotent, safe to call on a
// machine that never started.
func (m *StateMachine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	sub := m.sub
	m.sub = nil
	m.mu.Unlock()

	if sub != nil {
		sub.Unsubscribe()
	}
}

func (m *StateMachine) initialize(ctx context.Context) {
	gen := m.nextGeneration()

	session, err := m.source.CurrentSession(ctx)
	if err != nil {
		m.logger.Debug("initial session fetch failed, defaulting to visitor", "error", err)
		m.commitVisitor(ctx, gen)
		return
	}

	if !session.Usable(m.now()) {
		m.commitVisitor(ctx, gen)
		return
	}

	profile := m.reconciler.Reconcile(ctx, session)
	m.commitAuthenticated(ctx, gen, session.Clone(), profile)
}

// Login delegates the credential check to the session source. Success
// runs the same reconciliation path as initialization; failure leaves
// the machine state untouched and reports only to the caller.
func (m *StateMachine) Login(ctx context.Context, email, secret string) (*Session, error) {
	if m.isClosed() {
		return nil, ErrMachineClosed
	}

	if err := validation.Validate(email, validation.Required, is.EmailFormat); err != nil {
		return nil, ErrInvalidCredentials.WithMetadata(map[string]any{
			"email": email,
			"cause": err.Error(),
		})
	}
	if secret == "" {
		return nil, ErrInvalidCredentials
	}

	gen := m.nextGeneration()

	session, err := m.source.SignInWithPassword(ctx, email, secret)
	if err != nil {
		m.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Metadata:  map[string]any{"email": email, "error": err.Error()},
		})

		var rich *goerrors.Error
		if goerrors.As(err, &rich) {
			return nil, err
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "sign in failed").
			WithTextCode(textCodeInvalidCredentials)
	}

	profile := m.reconciler.Reconcile(ctx, session)
	m.commitAuthenticated(ctx, gen, session.Clone(), profile)

	m.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		UserID:    session.UserID.String(),
		Metadata:  map[string]any{"email": email, "provider": session.Provider},
	})

	return session.Clone(), nil
}

// Logout optimistically commits visitor before the remote call: the
// user must always be able to leave the authenticated view even when
// the source is slow or down. A remote failure is logged and returned,
// never retried; local state stays visitor either way.
func (m *StateMachine) Logout(ctx context.Context) error {
	if m.isClosed() {
		return ErrMachineClosed
	}

	gen := m.nextGeneration()
	userID := ""
	if s := m.CurrentSession(); s != nil {
		userID = s.UserID.String()
	}

	m.commitVisitor(ctx, gen)
	m.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLogout,
		UserID:    userID,
	})

	if err := m.source.SignOut(ctx); err != nil {
		m.logger.Warn("remote sign out failed", "error", err)
		return goerrors.Wrap(err, goerrors.CategoryOperation, "remote sign out failed")
	}
	return nil
}

// UpdateSettings applies a partial profile update for the current user.
// Two-stage write: the primary store update must succeed (a failure
// aborts with the cached profile unchanged); the mirror write is
// best-effort and only logs on failure, since the primary store is the
// source of truth for subsequent reads.
func (m *StateMachine) UpdateSettings(ctx context.Context, patch ProfilePatch) (*Profile, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrMachineClosed
	}
	if m.state.Phase != PhaseAuthenticated || m.state.Session == nil {
		m.mu.Unlock()
		return nil, ErrNotAuthenticated
	}
	userID := m.state.Session.UserID
	m.mu.Unlock()

	if err := patch.Validate(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid settings patch")
	}
	if patch.IsZero() {
		return m.CurrentProfile(), nil
	}

	updated, err := m.store.UpdateProfile(ctx, userID, patch)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "profile update failed")
	}

	m.mu.Lock()
	// a profile mutation never downgrades the auth state; swap the
	// cached record only while still authenticated as the same user
	if m.state.Phase == PhaseAuthenticated && m.state.Session != nil && m.state.Session.UserID == userID {
		if updated != nil {
			m.state.Profile = updated.Clone()
		} else {
			patch.Apply(m.state.Profile)
		}
	}
	result := m.state.Profile.Clone()
	m.mu.Unlock()

	if m.mirror != nil {
		if err := m.mirror.MirrorSettings(ctx, userID, patch); err != nil {
			m.logger.Warn("settings mirror write failed", "user_id", userID, "error", err)
		}
	}

	m.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventSettingsUpdated,
		UserID:    userID.String(),
	})

	if updated != nil {
		return updated.Clone(), nil
	}
	return result, nil
}

// handleEvent processes one provider-pushed event. The generation is
// captured synchronously so ordering follows emission order even when
// the reconciliation work overlaps with a previous event's.
func (m *StateMachine) handleEvent(event SessionEvent) {
	gen := m.nextGeneration()
	ctx := context.Background()

	switch event.Kind {
	case EventSignedOut:
		m.commitVisitor(ctx, gen)

	case EventTokenRefreshed:
		if !event.Session.Usable(m.now()) {
			// a refresh with no usable token ends the session
			m.commitVisitor(ctx, gen)
			return
		}
		if m.refreshInPlace(ctx, gen, event.Session) {
			return
		}
		// refreshed token for a user we are not authenticated as:
		// treat like a fresh sign-in
		go m.reconcileAndCommit(ctx, gen, event.Session.Clone())

	case EventSignedIn:
		if !event.Session.Usable(m.now()) {
			m.commitVisitor(ctx, gen)
			return
		}
		go m.reconcileAndCommit(ctx, gen, event.Session.Clone())

	default:
		m.logger.Debug("ignoring unknown session event", "kind", event.Kind)
	}
}

func (m *StateMachine) reconcileAndCommit(ctx context.Context, gen uint64, session *Session) {
	profile := m.reconciler.Reconcile(ctx, session)
	m.commitAuthenticated(ctx, gen, session, profile)
}

// refreshInPlace swaps the session without re-running profile
// reconciliation when the refreshed token belongs to the currently
// authenticated user. Returns false when a full reconciliation is
// needed, true when the event was consumed (committed or stale).
func (m *StateMachine) refreshInPlace(ctx context.Context, gen uint64, session *Session) bool {
	m.mu.Lock()
	if m.closed || gen <= m.state.Generation {
		m.mu.Unlock()
		return true
	}
	if m.state.Phase != PhaseAuthenticated || m.state.Session == nil ||
		m.state.Session.UserID != session.UserID {
		m.mu.Unlock()
		return false
	}
	m.state.Session = session.Clone()
	m.state.Generation = gen
	userID := session.UserID.String()
	m.mu.Unlock()

	m.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventSessionRefresh,
		UserID:    userID,
	})
	return true
}

func (m *StateMachine) nextGeneration() uint64 {
	return m.gen.Add(1)
}

// commit applies the generation rule: a result whose reconciliation
// started before an already-committed one is discarded, so only the
// most recently started reconciliation ever wins.
func (m *StateMachine) commit(ctx context.Context, next AuthState) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	if next.Generation <= m.state.Generation {
		m.mu.Unlock()
		m.logger.Debug("discarding stale auth transition",
			"generation", next.Generation,
			"phase", next.Phase,
		)
		return false
	}

	from := m.state.Phase
	m.state = next
	m.mu.Unlock()

	if from != next.Phase {
		userID := ""
		if next.Session != nil {
			userID = next.Session.UserID.String()
		}
		m.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventStateChanged,
			UserID:    userID,
			FromPhase: from,
			ToPhase:   next.Phase,
		})
	}
	return true
}

func (m *StateMachine) commitVisitor(ctx context.Context, gen uint64) bool {
	return m.commit(ctx, AuthState{Phase: PhaseVisitor, Generation: gen})
}

func (m *StateMachine) commitAuthenticated(ctx context.Context, gen uint64, session *Session, profile *Profile) bool {
	if session == nil {
		return m.commitVisitor(ctx, gen)
	}
	if profile == nil {
		// a session is never exposed without a profile
		profile = NewFallbackProfile(session, m.config)
	}
	return m.commit(ctx, AuthState{
		Phase:      PhaseAuthenticated,
		Session:    session,
		Profile:    profile,
		Generation: gen,
	})
}

// Phase returns the current authentication phase.
func (m *StateMachine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Phase
}

// IsAuthenticated reports whether a session and profile are current.
func (m *StateMachine) IsAuthenticated() bool {
	return m.Phase() == PhaseAuthenticated
}

// IsVisitor reports whether no authenticated user is current. Anything
// short of authenticated counts as a visitor: it is the safe default
// for authorization decisions, including before initialization ends.
func (m *StateMachine) IsVisitor() bool {
	return !m.IsAuthenticated()
}

// CurrentSession returns a copy of the active session, or nil.
func (m *StateMachine) CurrentSession() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Session.Clone()
}

// CurrentProfile returns a copy of the active profile, or nil.
func (m *StateMachine) CurrentProfile() *Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Profile.Clone()
}

// State returns a snapshot of the canonical auth state.
func (m *StateMachine) State() AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return AuthState{
		Phase:      m.state.Phase,
		Session:    m.state.Session.Clone(),
		Profile:    m.state.Profile.Clone(),
		Generation: m.state.Generation,
	}
}

// DisplayName returns the current profile's display name, empty for
// visitors. Pure derivation: never suspends, never fails.
func (m *StateMachine) DisplayName() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.Profile == nil {
		return ""
	}
	return m.state.Profile.DisplayName
}

func (m *StateMachine) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *StateMachine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = m.now()
	}

	sink := normalizeActivitySink(m.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		m.logger.Warn("activity sink record error", "error", err)
	}
}
