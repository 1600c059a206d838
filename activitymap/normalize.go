// Package activitymap turns registration activity events into flat records
// that audit logs, queues and analytics pipelines can store as they are.
package activitymap

import (
	"context"
	"strings"
	"time"

	registration "github.com/goliatone/go-registration"
)

// Stage groups events by the part of the sign up flow that produced them.
type Stage string

const (
	StageSignup      Stage = "signup"
	StageEmail       Stage = "email"
	StageActivation  Stage = "activation"
	StageMaintenance Stage = "maintenance"
	StageUnknown     Stage = "unknown"
)

// Outcome is "ok" for events that completed and "failed" otherwise.
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeFailed Outcome = "failed"
)

const (
	// AttrEmail holds the email address the profile was created for.
	AttrEmail = "email"
	// AttrAccountID holds the account created by a successful activation.
	AttrAccountID = "account_id"
)

const anonymousActor = "anonymous"

// Record is the flattened form of registration.ActivityEvent.
type Record struct {
	Event      string         `json:"event"`
	Stage      Stage          `json:"stage"`
	Outcome    Outcome        `json:"outcome"`
	Actor      string         `json:"actor"`
	Subject    string         `json:"subject,omitempty"`
	Source     string         `json:"source,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	At         time.Time      `json:"at"`
}

var stages = map[registration.ActivityEventType]Stage{
	registration.ActivityEventProfileCreated:       StageSignup,
	registration.ActivityEventActivationEmailSent:  StageEmail,
	registration.ActivityEventActivationEmailError: StageEmail,
	registration.ActivityEventActivationSuccess:    StageActivation,
	registration.ActivityEventActivationInvalidKey: StageActivation,
	registration.ActivityEventActivationRejected:   StageActivation,
	registration.ActivityEventProfilesPurged:       StageMaintenance,
}

var failures = map[registration.ActivityEventType]bool{
	registration.ActivityEventActivationEmailError: true,
	registration.ActivityEventActivationInvalidKey: true,
	registration.ActivityEventActivationRejected:   true,
}

// Mapper converts events to records. The zero value is ready to use.
type Mapper struct {
	// Source is copied to every record, e.g. the site domain or service name.
	Source string
	// Actor is used when the event has no account, defaults to "anonymous".
	Actor string
	// Subject overrides the profile ID as the record subject when it
	// returns a non empty value.
	Subject func(registration.ActivityEvent) string
	// Now stamps events without an occurrence time.
	Now func() time.Time
}

// Map converts a single event.
func (m Mapper) Map(event registration.ActivityEvent) Record {
	rec := Record{
		Event:      string(event.EventType),
		Stage:      stageOf(event.EventType),
		Outcome:    OutcomeOK,
		Actor:      m.actor(event),
		Subject:    m.subject(event),
		Source:     strings.TrimSpace(m.Source),
		Attributes: attributes(event),
		At:         event.OccurredAt,
	}

	if failures[event.EventType] {
		rec.Outcome = OutcomeFailed
	}

	if rec.At.IsZero() {
		now := time.Now
		if m.Now != nil {
			now = m.Now
		}
		rec.At = now().UTC()
	}

	return rec
}

// Sink adapts fn into a registration.ActivitySink that receives mapped records.
func (m Mapper) Sink(fn func(ctx context.Context, rec Record) error) registration.ActivitySink {
	return registration.ActivitySinkFunc(func(ctx context.Context, event registration.ActivityEvent) error {
		if fn == nil {
			return nil
		}
		return fn(ctx, m.Map(event))
	})
}

// Map converts event with a zero Mapper.
func Map(event registration.ActivityEvent) Record {
	return Mapper{}.Map(event)
}

// Sink is Mapper{}.Sink(fn).
func Sink(fn func(ctx context.Context, rec Record) error) registration.ActivitySink {
	return Mapper{}.Sink(fn)
}

func stageOf(t registration.ActivityEventType) Stage {
	if stage, ok := stages[t]; ok {
		return stage
	}
	return StageUnknown
}

func (m Mapper) actor(event registration.ActivityEvent) string {
	if id := strings.TrimSpace(event.AccountID); id != "" {
		return id
	}
	if actor := strings.TrimSpace(m.Actor); actor != "" {
		return actor
	}
	return anonymousActor
}

func (m Mapper) subject(event registration.ActivityEvent) string {
	if m.Subject != nil {
		if s := strings.TrimSpace(m.Subject(event)); s != "" {
			return s
		}
	}
	return strings.TrimSpace(event.ProfileID)
}

// attributes copies the event metadata and adds the email and account
// fields. Metadata set by the emitter wins for the email key.
func attributes(event registration.ActivityEvent) map[string]any {
	email := strings.TrimSpace(event.Email)
	account := strings.TrimSpace(event.AccountID)

	if len(event.Metadata) == 0 && email == "" && account == "" {
		return nil
	}

	attrs := make(map[string]any, len(event.Metadata)+2)
	for k, v := range event.Metadata {
		attrs[k] = v
	}

	if _, set := attrs[AttrEmail]; !set && email != "" {
		attrs[AttrEmail] = email
	}
	if account != "" {
		attrs[AttrAccountID] = account
	}

	return attrs
}
