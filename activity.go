package identity

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventStateChanged    ActivityEventType = "identity.state.changed"
	ActivityEventLoginSuccess    ActivityEventType = "identity.login.success"
	ActivityEventLoginFailure    ActivityEventType = "identity.login.failure"
	ActivityEventLogout          ActivityEventType = "identity.logout"
	ActivityEventSettingsUpdated ActivityEventType = "identity.settings.updated"
	ActivityEventSessionRefresh  ActivityEventType = "identity.session.refreshed"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	FromPhase  Phase
	ToPhase    Phase
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry
// purposes. Sinks run best-effort: errors are logged, never propagated,
// so a slow or failing sink cannot block authentication.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
