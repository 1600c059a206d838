package registration

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-featuregate/gate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubFeatureGate struct {
	enabled map[string]bool
	calls   []string
	err     error
}

func (s *stubFeatureGate) Enabled(ctx context.Context, key string, opts ...gate.ResolveOption) (bool, error) {
	s.calls = append(s.calls, key)
	if s.err != nil {
		return false, s.err
	}
	if s.enabled == nil {
		return true, nil
	}
	enabled, ok := s.enabled[key]
	if !ok {
		return true, nil
	}
	return enabled, nil
}

type backendFixture struct {
	repo     RepositoryManager
	clock    *testClock
	notifier *captureNotifier
	backend  *DefaultBackend
}

func newBackendFixture(t *testing.T, cfg Settings, extra map[string]any, options ...DefaultBackendOption) backendFixture {
	t.Helper()

	repo, _ := newTestRepo(t)
	clock := newTestClock(testT0)
	notifier := &captureNotifier{}

	store := newTestProfileStore(repo, clock, notifier, nil)
	activator := newTestActivator(repo, clock, nil)

	options = append(options, WithBackendLogger(NopLogger()))
	backend, err := NewDefaultBackend(store, activator, BackendOptions{
		Name:             DefaultBackendName,
		Config:           cfg,
		ActivationMethod: NewAccountActivationMethod(repo.Accounts()),
		ActivationForm:   NewBaseActivationForm,
		Extra:            extra,
	}, options...)
	require.NoError(t, err)

	return backendFixture{
		repo:     repo,
		clock:    clock,
		notifier: notifier,
		backend:  backend,
	}
}

func TestDefaultBackendRegistrationAllowed(t *testing.T) {
	tests := []struct {
		name string
		open *bool
		want bool
	}{
		{name: "unset means open", open: nil, want: true},
		{name: "explicitly open", open: Open(true), want: true},
		{name: "closed", open: Open(false), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newBackendFixture(t, Settings{RegistrationOpen: tt.open}, nil)
			assert.Equal(t, tt.want, f.backend.RegistrationAllowed(context.Background()))
		})
	}
}

func TestDefaultBackendFeatureGate(t *testing.T) {
	stubGate := &stubFeatureGate{
		enabled: map[string]bool{
			gate.FeatureUsersSignup: false,
		},
	}

	f := newBackendFixture(t, Settings{}, nil, WithBackendFeatureGate(stubGate))

	assert.False(t, f.backend.RegistrationAllowed(context.Background()))
	assert.Equal(t, []string{gate.FeatureUsersSignup}, stubGate.calls)

	_, err := f.backend.Register(context.Background(), Site{}, "alice@example.com")
	require.ErrorIs(t, err, ErrRegistrationClosed)
	assert.Equal(t, 0, f.notifier.Count())
}

func TestDefaultBackendFeatureGateFromExtra(t *testing.T) {
	stubGate := &stubFeatureGate{err: errors.New("gate offline")}

	f := newBackendFixture(t, Settings{}, map[string]any{ExtraFeatureGate: stubGate})

	assert.False(t, f.backend.RegistrationAllowed(context.Background()))
	assert.NotEmpty(t, stubGate.calls)
}

func TestDefaultBackendClosedSkipsFeatureGate(t *testing.T) {
	stubGate := &stubFeatureGate{}

	f := newBackendFixture(t, Settings{RegistrationOpen: Open(false)}, nil, WithBackendFeatureGate(stubGate))

	assert.False(t, f.backend.RegistrationAllowed(context.Background()))
	assert.Empty(t, stubGate.calls)
}

func TestDefaultBackendRegisterAndActivate(t *testing.T) {
	f := newBackendFixture(t, Settings{}, map[string]any{"username": "ally"})
	ctx := context.Background()

	site := Site{Name: "Example", Domain: "example.com"}
	profile, err := f.backend.Register(ctx, site, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, 1, f.notifier.Count())

	assert.Equal(t, NamedDestination(RouteRegistrationComplete), f.backend.PostRegistrationRedirect(ctx, profile))

	f.clock.Set(testT0.Add(6 * Day))

	form := &BaseActivationForm{Password1: "s3cret!pass", Password2: "s3cret!pass"}
	result, err := f.backend.Activate(ctx, profile.ActivationKey, form, nil)
	require.NoError(t, err)
	require.True(t, result.OK())

	account, ok := result.Account.(*UserAccount)
	require.True(t, ok)
	assert.Equal(t, "ally", account.Username)
	assert.Equal(t, "alice@example.com", account.Email)
	assert.True(t, account.IsActive)
	assert.NoError(t, ComparePasswordAndHash("s3cret!pass", account.PasswordHash))

	assert.Equal(t, NamedDestination(RouteActivationComplete), f.backend.PostActivationRedirect(ctx, account))

	again, err := f.backend.Activate(ctx, profile.ActivationKey, form, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalidKey, again.Outcome)
}

func TestDefaultBackendRequestExtraWins(t *testing.T) {
	f := newBackendFixture(t, Settings{}, map[string]any{"username": "configured"})
	ctx := context.Background()

	profile, err := f.backend.Register(ctx, Site{}, "bob@example.com")
	require.NoError(t, err)

	result, err := f.backend.Activate(ctx, profile.ActivationKey, nil, map[string]any{
		"username": "picked",
		"password": "another-pass",
	})
	require.NoError(t, err)
	require.True(t, result.OK())
	assert.Equal(t, "picked", result.Account.(*UserAccount).Username)
}

func TestDefaultBackendRegisterValidatesEmail(t *testing.T) {
	f := newBackendFixture(t, Settings{}, nil)

	_, err := f.backend.Register(context.Background(), Site{}, "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRegistrationClosed)
}

func TestNewDefaultBackendRequiresCollaborators(t *testing.T) {
	_, err := NewDefaultBackend(nil, nil, BackendOptions{Name: "broken"})
	require.Error(t, err)
	assert.True(t, IsImproperlyConfigured(err))

	repo, _ := newTestRepo(t)
	clock := newTestClock(testT0)
	_, err = NewDefaultBackend(
		newTestProfileStore(repo, clock, nil, nil),
		newTestActivator(repo, clock, nil),
		BackendOptions{Name: "broken"},
	)
	require.Error(t, err)
	assert.True(t, IsImproperlyConfigured(err))
}

func TestDefaultBackendFactoryRequiresRepository(t *testing.T) {
	_, err := DefaultBackendFactory(Components{})(context.Background(), BackendOptions{Name: DefaultBackendName})
	require.Error(t, err)
	assert.True(t, IsImproperlyConfigured(err))
}
