package registration

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type ResendActivationMessage struct {
	Site       Site        `json:"site"`
	Scope      []uuid.UUID `json:"scope" doc:"Restrict the resend to these profile IDs"`
	OnResponse func(sent int)
}

func (e ResendActivationMessage) Type() string { return "registration.activation.resend" }

type ResendActivationHandler struct {
	store  *ProfileStore
	config Config
}

// NewResendActivationHandler returns a handler emailing pending profiles
// again. cfg describes the site when the message does not.
func NewResendActivationHandler(store *ProfileStore, cfg Config) *ResendActivationHandler {
	return &ResendActivationHandler{store: store, config: cfg}
}

func (h *ResendActivationHandler) Execute(ctx context.Context, event ResendActivationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during activation resend")
	default:
		return h.execute(ctx, event)
	}
}

func (h *ResendActivationHandler) execute(ctx context.Context, event ResendActivationMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*30)
	defer cancel()

	site := event.Site
	if site == (Site{}) {
		site = ResolveSite(ctx, h.config)
	}

	sent, err := h.store.ResendActivationEmail(ctx, site, event.Scope...)

	if event.OnResponse != nil {
		event.OnResponse(sent)
	}

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resend activation emails")
	}

	return nil
}
