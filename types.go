package registration

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Config holds registration options
type Config interface {
	GetActivationDays() int
	GetActivationWindow() time.Duration
	GetRegistrationOpen() bool
	GetDefaultFromEmail() string
	GetActivationMethod() string
	GetRegistrationForm() string
	GetActivationForm() string
	GetSiteName() string
	GetSiteDomain() string
}

// Site identifies the site a registration happens on
type Site struct {
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

// Account is whatever an activation method creates for the user
type Account interface {
	GetID() string
	GetEmail() string
}

// Form is the contract shared by registration and activation forms
type Form interface {
	Validate() error
}

// RegistrationForm collects the data needed to open a registration
type RegistrationForm interface {
	Form
	GetEmail() string
}

// ActivationForm collects extra data at activation time, e.g. credentials
type ActivationForm interface {
	Form
	Values() map[string]any
}

// FormFactory builds an empty form the request payload is bound into
type FormFactory[T Form] func() T

// ActivationRequest is handed to an ActivationMethod. Tx is the transaction
// the activation runs in, writes done through it roll back when the method
// fails or the key is consumed concurrently.
type ActivationRequest struct {
	Profile *RegistrationProfile
	Form    ActivationForm
	Extra   map[string]any
	Tx      bun.IDB
}

// ActivationMethod materializes the account for a pending profile. The
// returned account must report a non empty GetID, and GetID must be safe to
// call on a nil receiver. A missing account rejects the activation.
type ActivationMethod func(ctx context.Context, req ActivationRequest) (Account, error)

// Notifier delivers activation emails
type Notifier interface {
	SendActivationEmail(ctx context.Context, profile *RegistrationProfile, site Site) error
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, profile *RegistrationProfile, site Site) error

// SendActivationEmail implements Notifier
func (f NotifierFunc) SendActivationEmail(ctx context.Context, profile *RegistrationProfile, site Site) error {
	if f == nil {
		return nil
	}
	return f(ctx, profile, site)
}

// Destination names a route plus its positional and keyword arguments.
// URL, when set, takes precedence over the named route.
type Destination struct {
	Name   string         `json:"name"`
	Args   []any          `json:"args,omitempty"`
	Params map[string]any `json:"params,omitempty"`
	URL    string         `json:"url,omitempty"`
}

// IsZero reports an empty destination
func (d Destination) IsZero() bool {
	return d.Name == "" && d.URL == ""
}

// NamedDestination is a route name without arguments
func NamedDestination(name string) Destination {
	return Destination{Name: name}
}

// URLDestination is a literal redirect target
func URLDestination(url string) Destination {
	return Destination{URL: url}
}
