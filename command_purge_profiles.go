package registration

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// PurgeMode selects which profiles a purge removes
type PurgeMode string

const (
	PurgeExpired   PurgeMode = "expired"
	PurgeActivated PurgeMode = "activated"
	PurgeAll       PurgeMode = "all"
)

type PurgeProfilesMessage struct {
	Mode       PurgeMode   `json:"mode" example:"expired" doc:"Which profiles to remove: expired, activated or all"`
	Scope      []uuid.UUID `json:"scope" doc:"Restrict the purge to these profile IDs"`
	OnResponse func(report CleanReport)
}

func (e PurgeProfilesMessage) Type() string { return "registration.profiles.purge" }

func (e PurgeProfilesMessage) Validate() error {
	switch e.Mode {
	case "", PurgeExpired, PurgeActivated, PurgeAll:
		return nil
	}
	return goerrors.New("unknown purge mode", goerrors.CategoryValidation).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{"mode": string(e.Mode)})
}

type PurgeProfilesHandler struct {
	store *ProfileStore
}

// NewPurgeProfilesHandler returns a handler removing stale profiles
func NewPurgeProfilesHandler(store *ProfileStore) *PurgeProfilesHandler {
	return &PurgeProfilesHandler{store: store}
}

func (h *PurgeProfilesHandler) Execute(ctx context.Context, event PurgeProfilesMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during profile purge")
	default:
		return h.execute(ctx, event)
	}
}

func (h *PurgeProfilesHandler) execute(ctx context.Context, event PurgeProfilesMessage) error {
	if err := event.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var (
		report CleanReport
		err    error
	)

	switch event.Mode {
	case PurgeActivated:
		report.Activated, err = h.store.DeleteActivated(ctx, event.Scope...)
	case PurgeAll:
		report, err = h.store.Clean(ctx, event.Scope...)
	default:
		report.Expired, err = h.store.DeleteExpired(ctx, event.Scope...)
	}

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to purge registration profiles")
	}

	if event.OnResponse != nil {
		event.OnResponse(report)
	}

	return nil
}
