package identity

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session is the identity provider's proof that a user is currently
// authenticated. The state machine holds a read-only copy that is
// replaced wholesale on every event, never partially mutated.
type Session struct {
	UserID    uuid.UUID      `json:"user_id,omitempty"`
	Email     string         `json:"email,omitempty"`
	Provider  string         `json:"provider,omitempty"`
	IssuedAt  time.Time      `json:"issued_at,omitempty"`
	ExpiresAt time.Time      `json:"expires_at,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Expired reports whether the session token has expired at the given
// instant. Sessions without an expiry never expire locally; the source
// is responsible for revoking them.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

// Usable reports whether the session can back an authenticated state.
func (s *Session) Usable(now time.Time) bool {
	return s != nil && s.UserID != uuid.Nil && !s.Expired(now)
}

// Clone returns a defensive copy suitable for handing to consumers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	out := *s
	if len(s.Data) > 0 {
		out.Data = make(map[string]any, len(s.Data))
		for k, v := range s.Data {
			out.Data[k] = v
		}
	}
	return &out
}

func (s Session) String() string {
	return fmt.Sprintf(
		"user=%s email=%s provider=%s iat=%s exp=%s",
		s.UserID,
		s.Email,
		s.Provider,
		s.IssuedAt.Format(time.RFC1123),
		s.ExpiresAt.Format(time.RFC1123),
	)
}

// localPart extracts the mailbox name from an email address, used to
// seed fallback display names.
func localPart(email string) string {
	if at := strings.IndexByte(email, '@'); at >= 0 {
		return email[:at]
	}
	return email
}
