// Package identity maintains a single consistent view of "who is using
// the application right now": an authenticated user with a profile, or
// an anonymous visitor.
//
// State machine:
//   - StateMachine owns the canonical AuthState. It initializes once at
//     startup (fetch current session, reconcile its profile), then holds
//     a subscription to the SessionSource event stream for the
//     application's lifetime. Every provider event re-enters the same
//     reconciliation path used at startup.
//   - Transitions into authenticated or visitor carry a monotonically
//     increasing generation captured when the reconciliation started;
//     a result superseded by a newer generation is discarded on arrival,
//     so a sign-out during an in-flight profile fetch can never
//     re-populate the authenticated state.
//   - Visitor is a first-class state, never an error: initialization
//     failures and unreachable identity infrastructure degrade to it
//     silently, keeping the application usable in read-only form.
//
// Profile reconciliation:
//   - ProfileReconciler resolves a usable profile for every session. A
//     missing record synthesizes a fallback profile from session data
//     (display name from the email local part) and attempts a single
//     insert; an unreachable store skips the insert and returns the
//     fallback directly, without retries.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter describing login,
//     logout, settings and state-change events. Sinks run best-effort
//     (errors are logged) so forwarding to a database or queue never
//     blocks authentication.
package identity
