package registration

import (
	"database/sql"
	"errors"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

const (
	textCodeImproperlyConfigured = "IMPROPERLY_CONFIGURED"
	textCodeInvalidActivationKey = "INVALID_ACTIVATION_KEY"
	textCodeActivationRejected   = "ACTIVATION_REJECTED"
	textCodeRegistrationClosed   = "REGISTRATION_CLOSED"
	textCodeNotificationFailed   = "ACTIVATION_EMAIL_FAILED"
)

// InvalidKeyMessage is the single user facing message for any unusable key
const InvalidKeyMessage = "Your activation key is not valid"

// ErrImproperlyConfigured is returned when a backend, form, or activation
// method reference cannot be resolved.
var ErrImproperlyConfigured = goerrors.New("registration is improperly configured", goerrors.CategoryInternal).
	WithTextCode(textCodeImproperlyConfigured)

// ErrInvalidActivationKey covers malformed, unknown, expired and consumed keys.
var ErrInvalidActivationKey = goerrors.New(InvalidKeyMessage, goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidActivationKey).
	WithCode(goerrors.CodeBadRequest)

// ErrActivationRejected is the parent of errors reported by an activation method.
var ErrActivationRejected = goerrors.New("activation rejected", goerrors.CategoryValidation).
	WithTextCode(textCodeActivationRejected).
	WithCode(goerrors.CodeBadRequest)

// ErrRegistrationClosed is returned when sign ups are turned off
var ErrRegistrationClosed = goerrors.New("registration is closed", goerrors.CategoryAuthz).
	WithTextCode(textCodeRegistrationClosed).
	WithCode(goerrors.CodeForbidden)

// ErrNotificationFailed wraps delivery errors from the activation email.
var ErrNotificationFailed = goerrors.New("failed to send activation email", goerrors.CategoryOperation).
	WithTextCode(textCodeNotificationFailed)

func improperlyConfigured(message string, metadata map[string]any) error {
	return goerrors.New(message, goerrors.CategoryInternal).
		WithTextCode(textCodeImproperlyConfigured).
		WithMetadata(metadata)
}

// IsImproperlyConfigured reports configuration errors
func IsImproperlyConfigured(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode == textCodeImproperlyConfigured
	}
	return false
}

// IsProfileNotFound reports a lookup miss on the profile store
func IsProfileNotFound(err error) bool {
	if err == nil {
		return false
	}
	return repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) || goerrors.IsNotFound(err)
}
