package registration

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
)

const (
	// RouteRegistrationComplete is where the default backend sends users after sign up
	RouteRegistrationComplete = "registration_complete"
	// RouteActivationComplete is where the default backend sends users after activation
	RouteActivationComplete = "registration_activation_complete"
	// RouteRegistrationDisallowed is shown when sign ups are closed
	RouteRegistrationDisallowed = "registration_disallowed"
)

// Backend encapsulates the registration and activation policy of a deployment
type Backend interface {
	RegistrationAllowed(ctx context.Context) bool
	Register(ctx context.Context, site Site, email string) (*RegistrationProfile, error)
	Activate(ctx context.Context, key string, form ActivationForm, extra map[string]any) (ActivationResult, error)
	RegistrationFormFactory(ctx context.Context) FormFactory[RegistrationForm]
	ActivationFormFactory(ctx context.Context) FormFactory[ActivationForm]
	PostRegistrationRedirect(ctx context.Context, profile *RegistrationProfile) Destination
	PostActivationRedirect(ctx context.Context, account Account) Destination
}

// DefaultBackend signs users up with an email, mails an activation link and
// activates through the configured activation method.
type DefaultBackend struct {
	config           Config
	store            *ProfileStore
	activator        *Activator
	activationMethod ActivationMethod
	registrationForm FormFactory[RegistrationForm]
	activationForm   FormFactory[ActivationForm]
	featureGate      gate.FeatureGate
	extra            map[string]any
	logger           Logger
	provider         LoggerProvider
}

var _ Backend = (*DefaultBackend)(nil)

// DefaultBackendOption customizes a DefaultBackend
type DefaultBackendOption func(*DefaultBackend)

// WithBackendFeatureGate consults gate.FeatureUsersSignup on top of the
// registration open flag.
func WithBackendFeatureGate(featureGate gate.FeatureGate) DefaultBackendOption {
	return func(b *DefaultBackend) {
		b.featureGate = featureGate
	}
}

// WithBackendLogger overrides the logger
func WithBackendLogger(logger Logger) DefaultBackendOption {
	return func(b *DefaultBackend) {
		b.provider, b.logger = ResolveLogger("registration.backend", b.provider, logger)
	}
}

// WithBackendLoggerProvider resolves a scoped logger from provider
func WithBackendLoggerProvider(provider LoggerProvider) DefaultBackendOption {
	return func(b *DefaultBackend) {
		b.provider, b.logger = ResolveLogger("registration.backend", provider, nil)
	}
}

// NewDefaultBackend builds the default backend from resolved options
func NewDefaultBackend(store *ProfileStore, activator *Activator, opts BackendOptions, options ...DefaultBackendOption) (*DefaultBackend, error) {
	if store == nil || activator == nil {
		return nil, improperlyConfigured("default backend requires a profile store and an activator", map[string]any{
			"backend": opts.Name,
		})
	}

	if opts.ActivationMethod == nil {
		return nil, improperlyConfigured("default backend requires an activation method", map[string]any{
			"backend": opts.Name,
		})
	}

	b := &DefaultBackend{
		config:           opts.Config,
		store:            store,
		activator:        activator,
		activationMethod: opts.ActivationMethod,
		registrationForm: opts.RegistrationForm,
		activationForm:   opts.ActivationForm,
		extra:            opts.Extra,
	}

	if fg, ok := opts.Extra[ExtraFeatureGate].(gate.FeatureGate); ok {
		b.featureGate = fg
	}

	for _, opt := range options {
		if opt != nil {
			opt(b)
		}
	}

	if b.logger == nil {
		b.provider, b.logger = ResolveLogger("registration.backend", b.provider, nil)
	}

	return b, nil
}

// RegistrationAllowed is true unless the open flag is explicitly off or the
// signup feature is disabled.
func (b *DefaultBackend) RegistrationAllowed(ctx context.Context) bool {
	if b.config != nil && !b.config.GetRegistrationOpen() {
		return false
	}

	if err := checkSignupGate(ctx, b.featureGate); err != nil {
		b.logger.Debug("registration gated", "error", err)
		return false
	}

	return true
}

// Register creates the pending profile and sends the activation email
func (b *DefaultBackend) Register(ctx context.Context, site Site, email string) (*RegistrationProfile, error) {
	if !b.RegistrationAllowed(ctx) {
		return nil, ErrRegistrationClosed
	}

	profile, err := b.store.CreateProfile(ctx, site, email)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "registration failed")
	}

	return profile, nil
}

// Activate runs the activation with the configured activation method. Extra
// options given to the resolver are merged under the request extras.
func (b *DefaultBackend) Activate(ctx context.Context, key string, form ActivationForm, extra map[string]any) (ActivationResult, error) {
	merged := make(map[string]any, len(b.extra)+len(extra))
	for k, v := range b.extra {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return b.activator.Activate(ctx, key, b.activationMethod, form, merged)
}

func (b *DefaultBackend) RegistrationFormFactory(context.Context) FormFactory[RegistrationForm] {
	return b.registrationForm
}

func (b *DefaultBackend) ActivationFormFactory(context.Context) FormFactory[ActivationForm] {
	return b.activationForm
}

func (b *DefaultBackend) PostRegistrationRedirect(context.Context, *RegistrationProfile) Destination {
	return NamedDestination(RouteRegistrationComplete)
}

func (b *DefaultBackend) PostActivationRedirect(context.Context, Account) Destination {
	return NamedDestination(RouteActivationComplete)
}

// Store exposes the profile store for admin tasks
func (b *DefaultBackend) Store() *ProfileStore {
	return b.store
}
