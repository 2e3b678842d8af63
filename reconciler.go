package identity

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// ProfileReconciler produces a usable profile for a session: loaded from
// the store when present, synthesized locally when missing or
// unreachable. Reconcile never fails; it sits on the application
// startup critical path and must not retry network calls.
type ProfileReconciler struct {
	store    ProfileStore
	config   Config
	logger   Logger
	provider LoggerProvider
}

// ReconcilerOption customizes reconciler construction.
type ReconcilerOption func(*ProfileReconciler)

// WithReconcilerConfig sets the config used for fallback synthesis.
func WithReconcilerConfig(cfg Config) ReconcilerOption {
	return func(r *ProfileReconciler) {
		if cfg != nil {
			r.config = cfg
		}
	}
}

// WithReconcilerLogger overrides the reconciler logger.
func WithReconcilerLogger(logger Logger) ReconcilerOption {
	return func(r *ProfileReconciler) {
		if logger != nil {
			r.provider, r.logger = ResolveLogger("identity.reconciler", r.provider, logger)
		}
	}
}

// WithReconcilerLoggerProvider overrides the logger provider.
func WithReconcilerLoggerProvider(provider LoggerProvider) ReconcilerOption {
	return func(r *ProfileReconciler) {
		if provider != nil {
			r.provider, r.logger = ResolveLogger("identity.reconciler", provider, r.logger)
		}
	}
}

// NewProfileReconciler creates a reconciler backed by the given store.
func NewProfileReconciler(store ProfileStore, opts ...ReconcilerOption) *ProfileReconciler {
	provider, logger := ResolveLogger("identity.reconciler", nil, nil)
	r := &ProfileReconciler{
		store:    store,
		config:   SimpleConfig{},
		logger:   logger,
		provider: provider,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

// Reconcile resolves the profile for session. Store hit returns the
// record verbatim. A missing record synthesizes a fallback and attempts
// a single insert; the stored record is preferred when the insert
// succeeds, the local one is returned when it fails. A transport error
// skips the insert entirely and returns the fallback directly.
func (r *ProfileReconciler) Reconcile(ctx context.Context, session *Session) *Profile {
	fallback := NewFallbackProfile(session, r.config)
	if session == nil || r.store == nil {
		return fallback
	}

	record, err := r.store.GetProfile(ctx, session.UserID)
	if err == nil && record != nil {
		return record
	}

	if err != nil && !IsProfileNotFound(err) {
		r.logger.Warn("profile fetch failed, using fallback profile",
			"user_id", session.UserID,
			"error", goerrors.Wrap(err, goerrors.CategoryOperation, "profile store unreachable"))
		return fallback
	}

	// first successful authentication for this user: create the
	// remote record from the synthesized profile. Insert failure never
	// propagates; the local fallback is good enough to proceed.
	inserted, err := r.store.InsertProfile(ctx, fallback)
	if err != nil || inserted == nil {
		if err != nil {
			r.logger.Warn("fallback profile insert failed",
				"user_id", session.UserID,
				"error", err)
		}
		return fallback
	}

	return inserted
}
