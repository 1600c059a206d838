package registration

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

const (
	// DefaultActivationDays is used when no activation window is configured
	DefaultActivationDays = 7
	// DefaultFromEmail is the sender used when none is configured
	DefaultFromEmail = "webmaster@localhost"
)

// Settings is the concrete Config. Zero values fall back to defaults,
// RegistrationOpen left nil means open.
type Settings struct {
	ActivationDays   int    `koanf:"activation_days" json:"activation_days"`
	ActivationWindow string `koanf:"activation_window" json:"activation_window,omitempty"`
	RegistrationOpen *bool  `koanf:"registration_open" json:"registration_open,omitempty"`
	FromEmail        string `koanf:"default_from_email" json:"default_from_email"`
	ActivationMethod string `koanf:"activation_method" json:"activation_method"`
	RegistrationForm string `koanf:"registration_form" json:"registration_form"`
	ActivationForm   string `koanf:"activation_form" json:"activation_form"`
	SiteName         string `koanf:"site_name" json:"site_name"`
	SiteDomain       string `koanf:"site_domain" json:"site_domain"`
}

var _ Config = Settings{}

// Open returns a pointer usable as Settings.RegistrationOpen
func Open(open bool) *bool {
	return &open
}

// GetActivationDays is the window in whole days. An ActivationWindow
// expression wins over ActivationDays and partial days round up.
func (s Settings) GetActivationDays() int {
	if s.ActivationWindow != "" {
		if window, err := ParseActivationWindow(s.ActivationWindow); err == nil {
			return WindowDays(window)
		}
	}
	if s.ActivationDays <= 0 {
		return DefaultActivationDays
	}
	return s.ActivationDays
}

// GetActivationWindow resolves ActivationWindow, falling back to
// ActivationDays. Validate rejects expressions that do not parse.
func (s Settings) GetActivationWindow() time.Duration {
	if s.ActivationWindow != "" {
		if window, err := ParseActivationWindow(s.ActivationWindow); err == nil {
			return window
		}
	}
	return ActivationWindow(s.GetActivationDays())
}

func (s Settings) GetRegistrationOpen() bool {
	if s.RegistrationOpen == nil {
		return true
	}
	return *s.RegistrationOpen
}

func (s Settings) GetDefaultFromEmail() string {
	if s.FromEmail == "" {
		return DefaultFromEmail
	}
	return s.FromEmail
}

func (s Settings) GetActivationMethod() string {
	return s.ActivationMethod
}

func (s Settings) GetRegistrationForm() string {
	return s.RegistrationForm
}

func (s Settings) GetActivationForm() string {
	return s.ActivationForm
}

func (s Settings) GetSiteName() string {
	if s.SiteName == "" {
		return s.GetSiteDomain()
	}
	return s.SiteName
}

func (s Settings) GetSiteDomain() string {
	if s.SiteDomain == "" {
		return "localhost"
	}
	return s.SiteDomain
}

// Validate checks the settings
func (s Settings) Validate() error {
	err := validation.ValidateStruct(&s,
		validation.Field(&s.ActivationDays, validation.Min(0)),
		validation.Field(&s.ActivationWindow, validation.By(validActivationWindow)),
		validation.Field(&s.FromEmail, is.Email),
		validation.Field(&s.SiteDomain, is.Host),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration settings").
			WithTextCode(textCodeImproperlyConfigured)
	}
	return nil
}

func validActivationWindow(value any) error {
	expr, _ := value.(string)
	if expr == "" {
		return nil
	}
	_, err := ParseActivationWindow(expr)
	return err
}

// SiteFromConfig builds the Site descriptor from cfg
func SiteFromConfig(cfg Config) Site {
	if cfg == nil {
		return Site{}
	}
	return Site{
		Name:   cfg.GetSiteName(),
		Domain: cfg.GetSiteDomain(),
	}
}
