package registration

import (
	"context"
	"time"

	"github.com/goliatone/go-featuregate/gate"
)

const (
	// FormEmail is the name of BaseRegistrationForm
	FormEmail = "email"
	// FormUniqueEmail is the name of UniqueEmailRegistrationForm
	FormUniqueEmail = "unique_email"
	// FormPassword is the name of BaseActivationForm
	FormPassword = "password"
	// FormAccount is the name of AccountActivationForm
	FormAccount = "account"
)

// Components are the collaborators shared by the backends built by
// DefaultBackendFactory.
type Components struct {
	Repo           RepositoryManager
	Notifier       Notifier
	ActivitySink   ActivitySink
	FeatureGate    gate.FeatureGate
	LoggerProvider LoggerProvider
	Clock          func() time.Time
}

// DefaultBackendFactory builds a DefaultBackend for every resolution
func DefaultBackendFactory(c Components) BackendFactory {
	return func(ctx context.Context, opts BackendOptions) (Backend, error) {
		if c.Repo == nil {
			return nil, improperlyConfigured("default backend requires a repository manager", map[string]any{
				"backend": opts.Name,
			})
		}

		cfg := opts.Config
		if cfg == nil {
			cfg = Settings{}
			opts.Config = cfg
		}

		store := NewProfileStore(c.Repo, cfg,
			WithProfileStoreNotifier(c.Notifier),
			WithProfileStoreActivitySink(c.ActivitySink),
			WithProfileStoreClock(c.Clock),
			WithProfileStoreLoggerProvider(c.LoggerProvider),
		)

		activator := NewActivator(c.Repo, store.Window(),
			WithActivatorActivitySink(c.ActivitySink),
			WithActivatorClock(c.Clock),
			WithActivatorLoggerProvider(c.LoggerProvider),
		)

		options := []DefaultBackendOption{
			WithBackendLoggerProvider(c.LoggerProvider),
		}
		if c.FeatureGate != nil {
			options = append(options, WithBackendFeatureGate(c.FeatureGate))
		}

		return NewDefaultBackend(store, activator, opts, options...)
	}
}

// RegisterDefaults registers the default backend, the bundled forms and the
// account creating activation method.
func RegisterDefaults(r *Registry, c Components) {
	r.RegisterBackend(DefaultBackendName, DefaultBackendFactory(c))
	r.RegisterRegistrationForm(FormEmail, NewBaseRegistrationForm)
	r.RegisterActivationForm(FormPassword, NewBaseActivationForm)

	if c.Repo != nil {
		r.RegisterRegistrationForm(FormUniqueEmail, UniqueEmailRegistrationFormFactory(c.Repo.Accounts()))
		r.RegisterActivationForm(FormAccount, AccountActivationFormFactory(c.Repo.Accounts()))
		r.RegisterActivationMethod(ActivationMethodCreateAccount, NewAccountActivationMethod(c.Repo.Accounts()))
	}
}
