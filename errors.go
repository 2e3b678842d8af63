package identity

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidCredentials = "INVALID_CREDENTIALS"
	textCodeNotAuthenticated   = "NOT_AUTHENTICATED"
	textCodeProfileNotFound    = "PROFILE_NOT_FOUND"
	textCodeSourceUnavailable  = "SESSION_SOURCE_UNAVAILABLE"
	textCodeStoreUnavailable   = "PROFILE_STORE_UNAVAILABLE"
	textCodeAlreadyStarted     = "MACHINE_ALREADY_STARTED"
	textCodeMachineClosed      = "MACHINE_CLOSED"
)

// ErrInvalidCredentials is returned by Login when the session source
// rejects the supplied email/secret pair.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrNotAuthenticated is returned synchronously by mutations attempted
// outside the authenticated state.
var ErrNotAuthenticated = goerrors.New("not authenticated", goerrors.CategoryAuth).
	WithTextCode(textCodeNotAuthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrProfileNotFound signals a missing profile record. Store
// implementations return it (or any error satisfying errors.IsNotFound)
// so the reconciler can synthesize a fallback profile.
var ErrProfileNotFound = goerrors.New("profile not found", goerrors.CategoryNotFound).
	WithTextCode(textCodeProfileNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrSourceUnavailable wraps transient transport failures talking to
// the session source. Recovered locally, never a blocking UI error.
var ErrSourceUnavailable = goerrors.New("session source unavailable", goerrors.CategoryOperation).
	WithTextCode(textCodeSourceUnavailable)

// ErrStoreUnavailable wraps transient transport failures talking to the
// profile store.
var ErrStoreUnavailable = goerrors.New("profile store unavailable", goerrors.CategoryOperation).
	WithTextCode(textCodeStoreUnavailable)

// ErrAlreadyStarted is returned when Start is called twice.
var ErrAlreadyStarted = goerrors.New("state machine already started", goerrors.CategoryConflict).
	WithTextCode(textCodeAlreadyStarted).
	WithCode(goerrors.CodeConflict)

// ErrMachineClosed is returned by operations invoked after Close.
var ErrMachineClosed = goerrors.New("state machine closed", goerrors.CategoryConflict).
	WithTextCode(textCodeMachineClosed).
	WithCode(goerrors.CodeConflict)

// IsProfileNotFound reports whether err marks a missing profile record.
func IsProfileNotFound(err error) bool {
	if err == nil {
		return false
	}
	return goerrors.Is(err, ErrProfileNotFound) || goerrors.IsNotFound(err)
}
