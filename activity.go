package identity

import (
	"context"
	"time"
)

// ActivityEventType names an audit event
type ActivityEventType string

const (
	ActivityEventAccountRegistered    ActivityEventType = "account.registered"
	ActivityEventAccountVerified      ActivityEventType = "account.verified"
	ActivityEventAccountStatusChanged ActivityEventType = "account.status.changed"
	ActivityEventLoginSuccess         ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure         ActivityEventType = "auth.login.failure"
	ActivityEventOTPIssued            ActivityEventType = "auth.otp.issued"
	ActivityEventPasswordReset        ActivityEventType = "auth.password.reset"
	ActivityEventPasswordChanged      ActivityEventType = "auth.password.changed"
)

// ActivityEvent describes one thing that happened to an account. Codes and
// passwords are never part of it.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	AccountID  string
	FromStatus string
	ToStatus   string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink receives audit events
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc lets a plain function act as an ActivitySink
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type discardSink struct{}

func (discardSink) Record(context.Context, ActivityEvent) error { return nil }

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return discardSink{}
	}
	return s
}

// recordActivity fills defaults and hands event to sink. Sink failures are
// logged and swallowed.
func recordActivity(ctx context.Context, sink ActivitySink, logger Logger, now func() time.Time, event ActivityEvent) {
	if event.Actor.ID == "" && event.Actor.Type == "" {
		event.Actor.Type = ActorTypeSystem
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now().UTC()
	}
	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil {
		normalizeLogger(logger).Warn("activity sink failed", "event", event.EventType, "account_id", event.AccountID, "error", err)
	}
}
