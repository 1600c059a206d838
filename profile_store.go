package registration

import (
	"context"
	"errors"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// ProfileStore owns creation and cleanup of registration profiles
type ProfileStore struct {
	repo         RepositoryManager
	notifier     Notifier
	window       time.Duration
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
	provider     LoggerProvider
}

// ProfileStoreOption customizes a ProfileStore
type ProfileStoreOption func(*ProfileStore)

// WithProfileStoreClock injects a custom clock (useful for tests).
func WithProfileStoreClock(clock func() time.Time) ProfileStoreOption {
	return func(s *ProfileStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithProfileStoreNotifier sets the activation email notifier
func WithProfileStoreNotifier(notifier Notifier) ProfileStoreOption {
	return func(s *ProfileStore) {
		s.notifier = notifier
	}
}

// WithProfileStoreActivitySink sets the sink for profile events
func WithProfileStoreActivitySink(sink ActivitySink) ProfileStoreOption {
	return func(s *ProfileStore) {
		s.activitySink = normalizeActivitySink(sink)
	}
}

// WithProfileStoreLogger overrides the logger
func WithProfileStoreLogger(logger Logger) ProfileStoreOption {
	return func(s *ProfileStore) {
		s.provider, s.logger = ResolveLogger("registration.profiles", s.provider, logger)
	}
}

// WithProfileStoreLoggerProvider resolves a scoped logger from provider
func WithProfileStoreLoggerProvider(provider LoggerProvider) ProfileStoreOption {
	return func(s *ProfileStore) {
		s.provider, s.logger = ResolveLogger("registration.profiles", provider, nil)
	}
}

// NewProfileStore returns a store using the activation window from cfg
func NewProfileStore(repo RepositoryManager, cfg Config, opts ...ProfileStoreOption) *ProfileStore {
	s := &ProfileStore{
		repo:         repo,
		window:       cfg.GetActivationWindow(),
		now:          func() time.Time { return time.Now().UTC() },
		activitySink: noopActivitySink{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	if s.logger == nil {
		s.provider, s.logger = ResolveLogger("registration.profiles", s.provider, nil)
	}

	return s
}

// Window returns the activation window
func (s *ProfileStore) Window() time.Duration {
	return s.window
}

// Now returns the current time of the store clock
func (s *ProfileStore) Now() time.Time {
	return s.now()
}

type createOptions struct {
	sendEmail bool
}

// CreateOption customizes CreateProfile
type CreateOption func(*createOptions)

// WithoutActivationEmail skips the activation email
func WithoutActivationEmail() CreateOption {
	return func(o *createOptions) {
		o.sendEmail = false
	}
}

// CreateProfile persists a new pending profile for email and, unless
// suppressed, sends the activation email. Delivery failures are logged and
// do not undo the profile, expired profiles are removed by DeleteExpired.
func (s *ProfileStore) CreateProfile(ctx context.Context, site Site, email string, opts ...CreateOption) (*RegistrationProfile, error) {
	options := createOptions{sendEmail: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	email = strings.TrimSpace(email)
	if email == "" {
		return nil, goerrors.New("email is required", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	key, err := GenerateActivationKey(email)
	if err != nil {
		return nil, err
	}

	profile, err := s.repo.Profiles().Create(ctx, &RegistrationProfile{
		Email:         email,
		ActivationKey: key,
		RegisteredAt:  s.now(),
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create registration profile").
			WithMetadata(map[string]any{"email": email})
	}

	s.record(ctx, ActivityEventProfileCreated, profile, nil)

	if options.sendEmail {
		s.notify(ctx, profile, site)
	}

	return profile, nil
}

// FindByKey looks up a profile by activation key. Misses are reported with
// a not found error, check with IsProfileNotFound.
func (s *ProfileStore) FindByKey(ctx context.Context, key string) (*RegistrationProfile, error) {
	return s.repo.Profiles().FindByKey(ctx, key)
}

// DeleteExpired removes unconsumed profiles whose window closed. An empty
// scope means every profile.
func (s *ProfileStore) DeleteExpired(ctx context.Context, scope ...uuid.UUID) (int64, error) {
	count, err := s.repo.Profiles().DeleteExpired(ctx, ExpirationCutoff(s.now(), s.window), scope...)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete expired profiles")
	}
	s.logger.Debug("deleted expired profiles", "count", count)
	return count, nil
}

// DeleteActivated removes profiles whose key was consumed
func (s *ProfileStore) DeleteActivated(ctx context.Context, scope ...uuid.UUID) (int64, error) {
	count, err := s.repo.Profiles().DeleteActivated(ctx, scope...)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete activated profiles")
	}
	s.logger.Debug("deleted activated profiles", "count", count)
	return count, nil
}

// CleanReport counts the profiles removed by Clean
type CleanReport struct {
	Expired   int64 `json:"expired"`
	Activated int64 `json:"activated"`
}

// Total is the number of removed profiles
func (r CleanReport) Total() int64 {
	return r.Expired + r.Activated
}

// Clean removes expired and activated profiles in scope
func (s *ProfileStore) Clean(ctx context.Context, scope ...uuid.UUID) (CleanReport, error) {
	report := CleanReport{}

	expired, err := s.DeleteExpired(ctx, scope...)
	if err != nil {
		return report, err
	}
	report.Expired = expired

	activated, err := s.DeleteActivated(ctx, scope...)
	if err != nil {
		return report, err
	}
	report.Activated = activated

	s.record(ctx, ActivityEventProfilesPurged, nil, map[string]any{
		"expired":   report.Expired,
		"activated": report.Activated,
	})

	return report, nil
}

// ResendActivationEmail sends the activation email again to every pending
// profile in scope. Expired and activated profiles are skipped.
func (s *ProfileStore) ResendActivationEmail(ctx context.Context, site Site, scope ...uuid.UUID) (int, error) {
	if s.notifier == nil {
		return 0, improperlyConfigured("no notifier configured for activation emails", map[string]any{
			"component": "profile_store",
		})
	}

	pending, err := s.repo.Profiles().ListPending(ctx, ExpirationCutoff(s.now(), s.window), scope...)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to list pending profiles")
	}

	sent := 0
	var errs []error
	for _, profile := range pending {
		if err := s.notifier.SendActivationEmail(ctx, profile, site); err != nil {
			s.logger.Warn("resend activation email failed", "profile_id", profile.ID.String(), "error", err)
			errs = append(errs, err)
			continue
		}
		sent++
	}

	if len(errs) > 0 {
		return sent, goerrors.Wrap(errors.Join(errs...), goerrors.CategoryOperation, "failed to resend some activation emails").
			WithTextCode(textCodeNotificationFailed).
			WithMetadata(map[string]any{"failed": len(errs), "sent": sent})
	}

	return sent, nil
}

func (s *ProfileStore) notify(ctx context.Context, profile *RegistrationProfile, site Site) {
	if s.notifier == nil {
		s.logger.Warn("no notifier configured, activation email not sent", "profile_id", profile.ID.String())
		return
	}

	if err := s.notifier.SendActivationEmail(ctx, profile, site); err != nil {
		s.logger.Error("failed to send activation email", "profile_id", profile.ID.String(), "error", err)
		s.record(ctx, ActivityEventActivationEmailError, profile, map[string]any{"error": err.Error()})
		return
	}

	s.record(ctx, ActivityEventActivationEmailSent, profile, nil)
}

func (s *ProfileStore) record(ctx context.Context, eventType ActivityEventType, profile *RegistrationProfile, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		Metadata:   metadata,
		OccurredAt: s.now(),
	}
	if profile != nil {
		event.ProfileID = profile.ID.String()
		event.Email = profile.Email
	}
	emitActivity(ctx, s.activitySink, s.logger, event)
}
