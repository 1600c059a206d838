package registration

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// ActivationOutcome tags an ActivationResult
type ActivationOutcome string

const (
	// OutcomeActivated the account was created and the key consumed
	OutcomeActivated ActivationOutcome = "activated"
	// OutcomeInvalidKey the key was malformed, unknown, expired or consumed
	OutcomeInvalidKey ActivationOutcome = "invalid_key"
	// OutcomeRejected the activation method refused, the key stays usable
	OutcomeRejected ActivationOutcome = "rejected"
)

// ActivationResult is the outcome of an activation attempt. Only
// OutcomeActivated carries an Account, the other outcomes carry Message.
type ActivationResult struct {
	Outcome ActivationOutcome
	Account Account
	Message string
	Cause   error
}

// ActivatedResult wraps a successful activation
func ActivatedResult(account Account) ActivationResult {
	return ActivationResult{
		Outcome: OutcomeActivated,
		Account: account,
	}
}

// InvalidKeyResult is returned for any unusable key
func InvalidKeyResult() ActivationResult {
	return ActivationResult{
		Outcome: OutcomeInvalidKey,
		Message: InvalidKeyMessage,
		Cause:   ErrInvalidActivationKey,
	}
}

// RejectedResult carries the activation method failure
func RejectedResult(err error) ActivationResult {
	if err == nil {
		err = goerrors.New("activation method returned no account", goerrors.CategoryValidation).
			WithTextCode(textCodeActivationRejected)
	}

	message := err.Error()
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Message != "" {
		message = richErr.Message
	}

	return ActivationResult{
		Outcome: OutcomeRejected,
		Message: message,
		Cause:   err,
	}
}

// OK reports a successful activation
func (r ActivationResult) OK() bool {
	return r.Outcome == OutcomeActivated
}

// Err returns nil on success, otherwise an error describing the failure
func (r ActivationResult) Err() error {
	switch r.Outcome {
	case OutcomeActivated:
		return nil
	case OutcomeInvalidKey:
		return ErrInvalidActivationKey
	default:
		if r.Cause != nil {
			return r.Cause
		}
		return ErrActivationRejected
	}
}

var errActivationRollback = errors.New("activation rolled back")

// Activator runs the pending to activated transition of registration profiles
type Activator struct {
	repo         RepositoryManager
	window       time.Duration
	now          func() time.Time
	txOptions    *sql.TxOptions
	activitySink ActivitySink
	logger       Logger
	provider     LoggerProvider
}

// ActivatorOption customizes an Activator
type ActivatorOption func(*Activator)

// WithActivatorClock injects a custom clock (useful for tests).
func WithActivatorClock(clock func() time.Time) ActivatorOption {
	return func(a *Activator) {
		if clock != nil {
			a.now = clock
		}
	}
}

// WithActivatorTxOptions sets the options for the activation transaction
func WithActivatorTxOptions(opts *sql.TxOptions) ActivatorOption {
	return func(a *Activator) {
		a.txOptions = opts
	}
}

// WithActivatorActivitySink sets the sink activation events are recorded to
func WithActivatorActivitySink(sink ActivitySink) ActivatorOption {
	return func(a *Activator) {
		a.activitySink = normalizeActivitySink(sink)
	}
}

// WithActivatorLogger overrides the logger
func WithActivatorLogger(logger Logger) ActivatorOption {
	return func(a *Activator) {
		a.provider, a.logger = ResolveLogger("registration.activator", a.provider, logger)
	}
}

// WithActivatorLoggerProvider resolves a scoped logger from provider
func WithActivatorLoggerProvider(provider LoggerProvider) ActivatorOption {
	return func(a *Activator) {
		a.provider, a.logger = ResolveLogger("registration.activator", provider, nil)
	}
}

// NewActivator builds an Activator over the profile store with the given window
func NewActivator(repo RepositoryManager, window time.Duration, opts ...ActivatorOption) *Activator {
	a := &Activator{
		repo:         repo,
		window:       window,
		now:          func() time.Time { return time.Now().UTC() },
		activitySink: noopActivitySink{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	if a.logger == nil {
		a.provider, a.logger = ResolveLogger("registration.activator", a.provider, nil)
	}

	return a
}

// Window returns the activation window
func (a *Activator) Window() time.Duration {
	return a.window
}

// IsAlreadyActivated reports if the key of profile was consumed
func (a *Activator) IsAlreadyActivated(profile *RegistrationProfile) bool {
	return profile.IsAlreadyActivated()
}

// IsExpired reports if the activation window of profile closed
func (a *Activator) IsExpired(profile *RegistrationProfile) bool {
	return profile.IsExpired(a.window, a.now())
}

// IsInvalid reports if profile can not be activated
func (a *Activator) IsInvalid(profile *RegistrationProfile) bool {
	return profile.IsInvalid(a.window, a.now())
}

// State derives the current state of profile
func (a *Activator) State(profile *RegistrationProfile) ProfileState {
	return profile.State(a.window, a.now())
}

// Activate validates key and hands the pending profile to method. The lookup,
// the method call and the key consumption share one transaction, so two
// concurrent attempts on the same key can not both succeed. Invalid keys and
// method failures are reported through the result, the error is reserved for
// configuration and store faults.
func (a *Activator) Activate(ctx context.Context, key string, method ActivationMethod, form ActivationForm, extra map[string]any) (ActivationResult, error) {
	if method == nil {
		return ActivationResult{}, improperlyConfigured("activation method is required", map[string]any{
			"component": "activator",
		})
	}

	if !IsActivationKeyShape(key) {
		a.record(ctx, ActivityEventActivationInvalidKey, nil, nil, map[string]any{"reason": "malformed"})
		return InvalidKeyResult(), nil
	}

	var (
		result  ActivationResult
		profile *RegistrationProfile
		reason  string
	)

	err := a.repo.RunInTx(ctx, a.txOptions, func(ctx context.Context, tx bun.Tx) error {
		var err error
		profile, err = a.repo.Profiles().FindByKeyTx(ctx, tx, key)
		if err != nil {
			if IsProfileNotFound(err) {
				reason = "not_found"
				result = InvalidKeyResult()
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up registration profile")
		}

		if a.IsInvalid(profile) {
			reason = string(a.State(profile))
			result = InvalidKeyResult()
			return nil
		}

		account, err := method(ctx, ActivationRequest{
			Profile: profile,
			Form:    form,
			Extra:   extra,
			Tx:      tx,
		})
		if err != nil || missingAccount(account) {
			result = RejectedResult(err)
			return errActivationRollback
		}

		consumed, err := a.repo.Profiles().ConsumeKeyTx(ctx, tx, profile.ID, key)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume activation key")
		}

		if !consumed {
			reason = "consumed_concurrently"
			result = InvalidKeyResult()
			return errActivationRollback
		}

		profile.ActivationKey = ActivatedSentinel
		result = ActivatedResult(account)
		return nil
	})

	if err != nil && !errors.Is(err, errActivationRollback) {
		a.logger.Error("activation transaction failed", "error", err)
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return ActivationResult{}, richErr
		}
		return ActivationResult{}, goerrors.Wrap(err, goerrors.CategoryInternal, "activation transaction failed")
	}

	switch result.Outcome {
	case OutcomeActivated:
		a.record(ctx, ActivityEventActivationSuccess, profile, result.Account, nil)
	case OutcomeRejected:
		a.logger.Info("activation rejected", "profile_id", profile.ID.String(), "reason", result.Message)
		a.record(ctx, ActivityEventActivationRejected, profile, nil, map[string]any{"reason": result.Message})
	default:
		a.record(ctx, ActivityEventActivationInvalidKey, profile, nil, map[string]any{"reason": reason})
	}

	return result, nil
}

func (a *Activator) record(ctx context.Context, eventType ActivityEventType, profile *RegistrationProfile, account Account, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Metadata:   metadata,
		OccurredAt: a.now(),
	}
	if profile != nil {
		event.ProfileID = profile.ID.String()
		event.Email = profile.Email
	}
	if account != nil {
		event.AccountID = account.GetID()
	}
	emitActivity(ctx, a.activitySink, a.logger, event)
}

// missingAccount treats typed nil accounts and accounts without an ID as
// absent so a method can not consume a key without producing an account.
func missingAccount(account Account) bool {
	return account == nil || strings.TrimSpace(account.GetID()) == ""
}
