package registration

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventProfileCreated       ActivityEventType = "registration.profile.created"
	ActivityEventActivationEmailSent  ActivityEventType = "registration.email.sent"
	ActivityEventActivationEmailError ActivityEventType = "registration.email.failed"
	ActivityEventActivationSuccess    ActivityEventType = "registration.activation.success"
	ActivityEventActivationInvalidKey ActivityEventType = "registration.activation.invalid_key"
	ActivityEventActivationRejected   ActivityEventType = "registration.activation.rejected"
	ActivityEventProfilesPurged       ActivityEventType = "registration.profiles.purged"
)

// ActivityEvent captures audit friendly information about a registration action.
type ActivityEvent struct {
	EventType  ActivityEventType
	ProfileID  string
	AccountID  string
	Email      string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events. Sinks are best effort, errors are
// logged and never fail the operation that emitted the event.
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

func emitActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := normalizeActivitySink(sink).Record(ctx, event); err != nil && logger != nil {
		logger.Warn("activity sink error", "event", string(event.EventType), "error", err)
	}
}
