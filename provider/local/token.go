package local

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
)

const tokenProvider = "local"

// SessionClaims are the JWT claims backing a local session token.
type SessionClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// TokenService mints and parses the signed session tokens issued by the
// local source.
type TokenService struct {
	signingKey []byte
	issuer     string
}

// NewTokenService creates a TokenService with the given signing key.
func NewTokenService(signingKey []byte, issuer string) *TokenService {
	if issuer == "" {
		issuer = tokenProvider
	}
	return &TokenService{
		signingKey: signingKey,
		issuer:     issuer,
	}
}

// Mint signs a session token for the given user and lifetime and
// returns the token along with the session it represents.
func (ts *TokenService) Mint(userID uuid.UUID, email string, now time.Time, ttl time.Duration) (string, *identity.Session, error) {
	expiresAt := now.Add(ttl)

	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    ts.issuer,
			Subject:   userID.String(),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: email,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.signingKey)
	if err != nil {
		return "", nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign session token")
	}

	session := &identity.Session{
		UserID:    userID,
		Email:     email,
		Provider:  tokenProvider,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
		Data:      map[string]any{"access_token": signed},
	}

	return signed, session, nil
}

// Parse validates a signed token and rebuilds the session it encodes.
func (ts *TokenService) Parse(raw string) (*identity.Session, error) {
	token, err := jwt.ParseWithClaims(raw, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.signingKey, nil
	}, jwt.WithIssuer(ts.issuer))
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "invalid session token").
			WithCode(goerrors.CodeUnauthorized)
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, goerrors.New("unable to decode session token", goerrors.CategoryAuth).
			WithCode(goerrors.CodeUnauthorized)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "session token carries no user id")
	}

	session := &identity.Session{
		UserID:   userID,
		Email:    claims.Email,
		Provider: tokenProvider,
		Data:     map[string]any{"access_token": raw},
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}

	return session, nil
}
