package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess       ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure       ActivityEventType = "auth.login.failure"
	ActivityEventRegisterSuccess    ActivityEventType = "auth.register.success"
	ActivityEventLogout             ActivityEventType = "auth.logout"
	ActivityEventRefreshFailure     ActivityEventType = "auth.refresh.failure"
	ActivityEventSessionRestored    ActivityEventType = "auth.session.restored"
	ActivityEventSessionDiscarded   ActivityEventType = "auth.session.discarded"
	ActivityEventCrossTabChange     ActivityEventType = "auth.crosstab.change"
	ActivityEventBookingRecovered   ActivityEventType = "booking.pending.recovered"
	ActivityEventBookingFlagged     ActivityEventType = "booking.pending.flagged"
	ActivityEventPasswordResetStart ActivityEventType = "auth.password.forgot"
	ActivityEventPasswordReset      ActivityEventType = "auth.password.reset"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     int
	Role       Role
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
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
