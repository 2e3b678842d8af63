package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventKind identifies the session change pushed by a SessionSource.
type EventKind string

const (
	// EventSignedIn indicates a session became active.
	EventSignedIn EventKind = "signed-in"
	// EventSignedOut indicates the current session ended.
	EventSignedOut EventKind = "signed-out"
	// EventTokenRefreshed indicates the current session token was renewed.
	EventTokenRefreshed EventKind = "token-refreshed"
)

// SessionEvent is a single change pushed by a SessionSource. Session is
// nil for signed-out events and for refresh events that carried no
// usable token.
type SessionEvent struct {
	Kind    EventKind
	Session *Session
}

// EventHandler consumes session change events in emission order.
type EventHandler func(event SessionEvent)

// Subscription is a handle to an active event stream registration.
type Subscription interface {
	Unsubscribe()
}

// SubscriptionFunc adapts a function to the Subscription interface.
type SubscriptionFunc func()

// Unsubscribe implements Subscription.
func (f SubscriptionFunc) Unsubscribe() {
	if f != nil {
		f()
	}
}

// SessionSource is the identity provider contract the state machine
// consumes. Implementations own credential verification and token
// issuance; the machine only observes the resulting sessions.
type SessionSource interface {
	CurrentSession(ctx context.Context) (*Session, error)
	SignInWithPassword(ctx context.Context, email, secret string) (*Session, error)
	SignOut(ctx context.Context) error
	Subscribe(handler EventHandler) (Subscription, error)
}

// ProfileStore is the persistent record store for user profiles, keyed
// by user id. A missing record is reported with an error satisfying
// errors.IsNotFound.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error)
	InsertProfile(ctx context.Context, record *Profile) (*Profile, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, patch ProfilePatch) (*Profile, error)
}

// SettingsMirror is the best-effort secondary system-of-record for
// profile settings. Failures are logged, never surfaced, since the
// primary ProfileStore is authoritative for subsequent reads.
type SettingsMirror interface {
	MirrorSettings(ctx context.Context, userID uuid.UUID, patch ProfilePatch) error
}

// Config holds identity options
type Config interface {
	GetSessionDuration() time.Duration
	GetExtendedSessionDuration() time.Duration
	GetDefaultAvatarID() string
	GetDefaultTheme() Theme
	GetDefaultLocale() string
}

// SimpleConfig is a ready-to-use Config value. Zero fields fall back to
// package defaults.
type SimpleConfig struct {
	SessionDuration         time.Duration
	ExtendedSessionDuration time.Duration
	DefaultAvatarID         string
	DefaultTheme            Theme
	DefaultLocale           string
}

const (
	// DefaultSessionDuration is the lifetime of a standard session.
	DefaultSessionDuration = 24 * time.Hour
	// DefaultExtendedSessionDuration is the "remember me" lifetime,
	// an external configuration input rather than something inferred
	// from the sign-in flow.
	DefaultExtendedSessionDuration = 30 * 24 * time.Hour
	// DefaultAvatarID is assigned to synthesized fallback profiles.
	DefaultAvatarID = "avatar-default"
	// DefaultLocale is assigned to synthesized fallback profiles.
	DefaultLocale = "en-US"
)

func (c SimpleConfig) GetSessionDuration() time.Duration {
	if c.SessionDuration <= 0 {
		return DefaultSessionDuration
	}
	return c.SessionDuration
}

func (c SimpleConfig) GetExtendedSessionDuration() time.Duration {
	if c.ExtendedSessionDuration <= 0 {
		return DefaultExtendedSessionDuration
	}
	return c.ExtendedSessionDuration
}

func (c SimpleConfig) GetDefaultAvatarID() string {
	if c.DefaultAvatarID == "" {
		return DefaultAvatarID
	}
	return c.DefaultAvatarID
}

func (c SimpleConfig) GetDefaultTheme() Theme {
	if c.DefaultTheme == "" {
		return ThemeAuto
	}
	return c.DefaultTheme
}

func (c SimpleConfig) GetDefaultLocale() string {
	if c.DefaultLocale == "" {
		return DefaultLocale
	}
	return c.DefaultLocale
}

func normalizeConfig(c Config) Config {
	if c == nil {
		return SimpleConfig{}
	}
	return c
}
