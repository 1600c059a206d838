package registration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsDefaults(t *testing.T) {
	s := Settings{}

	assert.Equal(t, DefaultActivationDays, s.GetActivationDays())
	assert.True(t, s.GetRegistrationOpen())
	assert.Equal(t, DefaultFromEmail, s.GetDefaultFromEmail())
	assert.Equal(t, "localhost", s.GetSiteDomain())
	assert.Equal(t, "localhost", s.GetSiteName())
	assert.Equal(t, "", s.GetActivationMethod())
}

func TestSettingsOverrides(t *testing.T) {
	s := Settings{
		ActivationDays:   3,
		RegistrationOpen: Open(false),
		FromEmail:        "noreply@example.com",
		ActivationMethod: ActivationMethodCreateAccount,
		RegistrationForm: FormUniqueEmail,
		ActivationForm:   FormAccount,
		SiteDomain:       "example.com",
	}

	assert.Equal(t, 3, s.GetActivationDays())
	assert.False(t, s.GetRegistrationOpen())
	assert.Equal(t, "noreply@example.com", s.GetDefaultFromEmail())
	assert.Equal(t, "example.com", s.GetSiteName())
	assert.Equal(t, FormUniqueEmail, s.GetRegistrationForm())
	assert.Equal(t, FormAccount, s.GetActivationForm())
}

func TestSettingsActivationWindow(t *testing.T) {
	assert.Equal(t, 7*Day, Settings{}.GetActivationWindow())
	assert.Equal(t, 3*Day, Settings{ActivationDays: 3}.GetActivationWindow())

	s := Settings{ActivationDays: 3, ActivationWindow: "36h"}
	assert.Equal(t, 36*time.Hour, s.GetActivationWindow())
	assert.Equal(t, 2, s.GetActivationDays())

	s = Settings{ActivationWindow: "10d"}
	assert.Equal(t, 10*Day, s.GetActivationWindow())
	assert.Equal(t, 10, s.GetActivationDays())
	assert.NoError(t, s.Validate())
}

func TestSettingsValidate(t *testing.T) {
	assert.NoError(t, testSettings().Validate())
	assert.NoError(t, Settings{}.Validate())

	tests := []struct {
		name     string
		settings Settings
	}{
		{name: "negative window", settings: Settings{ActivationDays: -1}},
		{name: "fractional day window", settings: Settings{ActivationWindow: "1.5d"}},
		{name: "unknown window unit", settings: Settings{ActivationWindow: "7x"}},
		{name: "zero window", settings: Settings{ActivationWindow: "0d"}},
		{name: "bad sender", settings: Settings{FromEmail: "not an email"}},
		{name: "bad domain", settings: Settings{SiteDomain: "exa mple.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.settings.Validate()
			require.Error(t, err)
			assert.True(t, IsImproperlyConfigured(err))
		})
	}
}

func TestResolveSite(t *testing.T) {
	cfg := testSettings()

	assert.Equal(t, Site{Name: "Example", Domain: "example.com"}, ResolveSite(context.Background(), cfg))

	ctx := WithSite(context.Background(), Site{Name: "Other", Domain: "other.org"})
	assert.Equal(t, Site{Name: "Other", Domain: "other.org"}, ResolveSite(ctx, cfg))

	assert.Equal(t, Site{}, SiteFromConfig(nil))
}
