package registration

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-featuregate/gate"
)

// ExtraFeatureGate is the backend option key carrying a gate.FeatureGate
const ExtraFeatureGate = "feature_gate"

// checkSignupGate returns nil when the gate allows gate.FeatureUsersSignup.
// A disabled feature yields ErrRegistrationClosed, gate failures are wrapped
// with the registration text code so callers log one error shape.
func checkSignupGate(ctx context.Context, fg gate.FeatureGate) error {
	if fg == nil {
		return nil
	}

	enabled, err := fg.Enabled(ctx, gate.FeatureUsersSignup)
	if err != nil {
		return errors.Wrap(err, errors.CategoryAuthz, "signup gate unavailable").
			WithCode(errors.CodeForbidden).
			WithTextCode(textCodeRegistrationClosed)
	}

	if !enabled {
		return ErrRegistrationClosed
	}

	return nil
}
