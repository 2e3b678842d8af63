// Package local provides a self-contained identity.SessionSource:
// credential verification against a pluggable store, signed session
// tokens, and an in-process event stream. It exists so the module is
// usable without an external identity provider.
package local

import (
	"context"
	"slices"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
)

// Credential is the stored secret record for an account.
type Credential struct {
	UserID     uuid.UUID
	Email      string
	SecretHash string
}

// CredentialStore retrieves credentials by email. A missing account is
// reported with an error satisfying errors.IsNotFound.
type CredentialStore interface {
	FindByEmail(ctx context.Context, email string) (*Credential, error)
}

// Source implements identity.SessionSource with local credential
// verification and an in-process subscriber registry. Events are
// delivered to handlers in emission order.
type Source struct {
	mu          sync.Mutex
	current     *identity.Session
	subscribers map[uint64]identity.EventHandler
	nextSubID   uint64

	creds    CredentialStore
	tokens   *TokenService
	config   identity.Config
	logger   identity.Logger
	provider identity.LoggerProvider
	now      func() time.Time
	extended bool
}

var _ identity.SessionSource = (*Source)(nil)

// SourceOption customizes source construction.
type SourceOption func(*Source)

// WithSourceClock injects a custom clock (useful for tests).
func WithSourceClock(clock func() time.Time) SourceOption {
	return func(s *Source) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithSourceConfig sets session durations and defaults.
func WithSourceConfig(cfg identity.Config) SourceOption {
	return func(s *Source) {
		if cfg != nil {
			s.config = cfg
		}
	}
}

// WithSourceLogger overrides the source logger.
func WithSourceLogger(logger identity.Logger) SourceOption {
	return func(s *Source) {
		if logger != nil {
			s.provider, s.logger = identity.ResolveLogger("identity.source", s.provider, logger)
		}
	}
}

// WithSourceLoggerProvider overrides the logger provider.
func WithSourceLoggerProvider(provider identity.LoggerProvider) SourceOption {
	return func(s *Source) {
		if provider != nil {
			s.provider, s.logger = identity.ResolveLogger("identity.source", provider, s.logger)
		}
	}
}

// WithExtendedSessions mints sessions with the extended ("remember me")
// duration from config instead of the standard one.
func WithExtendedSessions() SourceOption {
	return func(s *Source) {
		s.extended = true
	}
}

// NewSource creates a local session source over the given credential
// store and token signing key.
func NewSource(creds CredentialStore, signingKey []byte, opts ...SourceOption) *Source {
	provider, logger := identity.ResolveLogger("identity.source", nil, nil)

	s := &Source{
		creds:       creds,
		tokens:      NewTokenService(signingKey, ""),
		config:      identity.SimpleConfig{},
		logger:      logger,
		provider:    provider,
		now:         time.Now,
		subscribers: map[uint64]identity.EventHandler{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// CurrentSession implements identity.SessionSource. An expired session
// is cleared and reported as absent.
func (s *Source) CurrentSession(ctx context.Context) (*identity.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == nil {
		return nil, nil
	}
	if s.current.Expired(s.now()) {
		s.current = nil
		return nil, nil
	}
	return s.current.Clone(), nil
}

// SignInWithPassword implements identity.SessionSource.
func (s *Source) SignInWithPassword(ctx context.Context, email, secret string) (*identity.Session, error) {
	cred, err := s.creds.FindByEmail(ctx, email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			// indistinguishable from a wrong secret on purpose
			return nil, identity.ErrInvalidCredentials
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "credential lookup failed")
	}

	if err := CompareSecretAndHash(secret, cred.SecretHash); err != nil {
		return nil, err
	}

	_, session, err := s.tokens.Mint(cred.UserID, cred.Email, s.now(), s.sessionTTL())
	if err != nil {
		return nil, err
	}

	s.setCurrent(session)
	s.emit(identity.SessionEvent{Kind: identity.EventSignedIn, Session: session.Clone()})

	return session.Clone(), nil
}

// SignOut implements identity.SessionSource.
func (s *Source) SignOut(ctx context.Context) error {
	s.mu.Lock()
	had := s.current != nil
	s.current = nil
	s.mu.Unlock()

	if had {
		s.emit(identity.SessionEvent{Kind: identity.EventSignedOut})
	}
	return nil
}

// RefreshSession renews the current session token and emits a
// token-refreshed event. A refresh with no active or still-valid
// session emits the event with a nil session, ending it downstream.
func (s *Source) RefreshSession(ctx context.Context) (*identity.Session, error) {
	s.mu.Lock()
	current := s.current
	s.mu.Unlock()

	if current == nil || current.Expired(s.now()) {
		s.emit(identity.SessionEvent{Kind: identity.EventTokenRefreshed})
		return nil, identity.ErrNotAuthenticated
	}

	_, session, err := s.tokens.Mint(current.UserID, current.Email, s.now(), s.sessionTTL())
	if err != nil {
		return nil, err
	}

	s.setCurrent(session)
	s.emit(identity.SessionEvent{Kind: identity.EventTokenRefreshed, Session: session.Clone()})

	return session.Clone(), nil
}

// Resume restores the current session from a previously issued token,
// e.g. one persisted across application restarts.
func (s *Source) Resume(ctx context.Context, token string) (*identity.Session, error) {
	session, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	if session.Expired(s.now()) {
		return nil, identity.ErrInvalidCredentials
	}

	s.setCurrent(session)
	s.emit(identity.SessionEvent{Kind: identity.EventSignedIn, Session: session.Clone()})

	return session.Clone(), nil
}

// Subscribe implements identity.SessionSource.
func (s *Source) Subscribe(handler identity.EventHandler) (identity.Subscription, error) {
	if handler == nil {
		return nil, goerrors.New("event handler is required", goerrors.CategoryBadInput)
	}

	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subscribers[id] = handler
	s.mu.Unlock()

	return identity.SubscriptionFunc(func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}), nil
}

// SubscriberCount reports active subscriptions.
func (s *Source) SubscriberCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subscribers)
}

func (s *Source) setCurrent(session *identity.Session) {
	s.mu.Lock()
	s.current = session.Clone()
	s.mu.Unlock()
}

func (s *Source) emit(event identity.SessionEvent) {
	s.mu.Lock()
	ids := make([]uint64, 0, len(s.subscribers))
	for id := range s.subscribers {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	handlers := make([]identity.EventHandler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, s.subscribers[id])
	}
	s.mu.Unlock()

	// handlers run inline, outside the lock, in registration order
	for _, handler := range handlers {
		handler(event)
	}
}

func (s *Source) sessionTTL() time.Duration {
	if s.extended {
		return s.config.GetExtendedSessionDuration()
	}
	return s.config.GetSessionDuration()
}
