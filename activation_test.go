package registration

import (
	"context"
	"errors"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func acceptingMethod(calls *int) ActivationMethod {
	return func(_ context.Context, req ActivationRequest) (Account, error) {
		if calls != nil {
			*calls++
		}
		return &UserAccount{ID: uuid.New(), Email: req.Profile.Email}, nil
	}
}

func newTestActivator(repo RepositoryManager, clock *testClock, sink ActivitySink) *Activator {
	return NewActivator(repo, ActivationWindow(7),
		WithActivatorClock(clock.Now),
		WithActivatorActivitySink(sink),
		WithActivatorLogger(NopLogger()),
	)
}

func TestActivateWithinWindow(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	clock := newTestClock(testT0.Add(6 * Day))
	sink := &captureSink{}
	activator := newTestActivator(repo, clock, sink)

	alice := insertProfile(t, repo, "alice@example.com", testT0)

	calls := 0
	result, err := activator.Activate(ctx, alice.ActivationKey, acceptingMethod(&calls), nil, nil)
	require.NoError(t, err)

	assert.True(t, result.OK())
	assert.Equal(t, OutcomeActivated, result.Outcome)
	require.NotNil(t, result.Account)
	assert.Equal(t, "alice@example.com", result.Account.GetEmail())
	assert.NoError(t, result.Err())
	assert.Equal(t, 1, calls)

	stored, err := repo.Profiles().GetByID(ctx, alice.ID.String())
	require.NoError(t, err)
	assert.Equal(t, ActivatedSentinel, stored.ActivationKey)
	assert.Equal(t, ProfileStateActivated, activator.State(stored))

	assert.Equal(t, []ActivityEventType{ActivityEventActivationSuccess}, sink.Types())
}

func TestActivateTwiceFails(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	clock := newTestClock(testT0.Add(Day))
	activator := newTestActivator(repo, clock, nil)

	alice := insertProfile(t, repo, "alice@example.com", testT0)

	calls := 0
	first, err := activator.Activate(ctx, alice.ActivationKey, acceptingMethod(&calls), nil, nil)
	require.NoError(t, err)
	require.True(t, first.OK())

	second, err := activator.Activate(ctx, alice.ActivationKey, acceptingMethod(&calls), nil, nil)
	require.NoError(t, err)
	assert.False(t, second.OK())
	assert.Equal(t, OutcomeInvalidKey, second.Outcome)
	assert.Equal(t, InvalidKeyMessage, second.Message)
	assert.ErrorIs(t, second.Err(), ErrInvalidActivationKey)
	assert.Equal(t, 1, calls)
}

func TestActivateExpiredKey(t *testing.T) {
	tests := []struct {
		name string
		now  time.Time
	}{
		{name: "exactly at the end of the window", now: testT0.Add(7 * Day)},
		{name: "well after the window", now: testT0.Add(8 * Day)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, _ := newTestRepo(t)
			ctx := context.Background()
			sink := &captureSink{}
			activator := newTestActivator(repo, newTestClock(tt.now), sink)

			bob := insertProfile(t, repo, "bob@example.com", testT0)

			calls := 0
			result, err := activator.Activate(ctx, bob.ActivationKey, acceptingMethod(&calls), nil, nil)
			require.NoError(t, err)

			assert.Equal(t, OutcomeInvalidKey, result.Outcome)
			assert.Equal(t, 0, calls)

			stored, err := repo.Profiles().FindByKey(ctx, bob.ActivationKey)
			require.NoError(t, err)
			assert.Equal(t, bob.ActivationKey, stored.ActivationKey)

			require.Len(t, sink.events, 1)
			assert.Equal(t, ActivityEventActivationInvalidKey, sink.events[0].EventType)
			assert.Equal(t, string(ProfileStateExpired), sink.events[0].Metadata["reason"])
		})
	}
}

func TestActivateMalformedKey(t *testing.T) {
	repo, _ := newTestRepo(t)
	sink := &captureSink{}
	activator := newTestActivator(repo, newTestClock(testT0), sink)

	keys := []string{"", "not-a-key", ActivatedSentinel, "A94A8FE5CCB19BA61C4C0873D391E987982FBBD3"}

	for _, key := range keys {
		calls := 0
		result, err := activator.Activate(context.Background(), key, acceptingMethod(&calls), nil, nil)
		require.NoError(t, err)
		assert.Equal(t, OutcomeInvalidKey, result.Outcome, key)
		assert.Equal(t, 0, calls)
	}

	assert.Len(t, sink.events, len(keys))
}

func TestActivateMalformedKeySkipsStore(t *testing.T) {
	repo := &MockRepositoryManager{}
	activator := NewActivator(repo, ActivationWindow(7), WithActivatorLogger(NopLogger()))

	calls := 0
	result, err := activator.Activate(context.Background(), "not-a-valid-key", acceptingMethod(&calls), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalidKey, result.Outcome)
	assert.Equal(t, InvalidKeyMessage, result.Message)
	assert.Equal(t, 0, calls)

	repo.AssertNotCalled(t, "RunInTx", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "Profiles")
	repo.AssertNotCalled(t, "Accounts")
	repo.AssertExpectations(t)
}

func TestActivateUnknownKey(t *testing.T) {
	repo, _ := newTestRepo(t)
	activator := newTestActivator(repo, newTestClock(testT0), nil)

	result, err := activator.Activate(context.Background(), "a94a8fe5ccb19ba61c4c0873d391e987982fbbd3", acceptingMethod(nil), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalidKey, result.Outcome)
}

func TestActivateMethodFailureKeepsKey(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	sink := &captureSink{}
	activator := newTestActivator(repo, newTestClock(testT0.Add(Day)), sink)

	carol := insertProfile(t, repo, "carol@example.com", testT0)

	failing := func(ctx context.Context, req ActivationRequest) (Account, error) {
		_, err := repo.Accounts().CreateTx(ctx, req.Tx, &UserAccount{
			ID:       uuid.New(),
			Username: "carol",
			Email:    req.Profile.Email,
		})
		require.NoError(t, err)

		return nil, goerrors.New("mailbox is not allowed", goerrors.CategoryValidation)
	}

	result, err := activator.Activate(ctx, carol.ActivationKey, failing, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejected, result.Outcome)
	assert.Equal(t, "mailbox is not allowed", result.Message)
	assert.Error(t, result.Err())

	stored, err := repo.Profiles().FindByKey(ctx, carol.ActivationKey)
	require.NoError(t, err)
	assert.Equal(t, ProfileStatePending, activator.State(stored))

	exists, err := repo.Accounts().UsernameExists(ctx, "carol")
	require.NoError(t, err)
	assert.False(t, exists, "writes done by a failing method are rolled back")

	assert.Equal(t, []ActivityEventType{ActivityEventActivationRejected}, sink.Types())

	result, err = activator.Activate(ctx, carol.ActivationKey, acceptingMethod(nil), nil, nil)
	require.NoError(t, err)
	assert.True(t, result.OK())
}

func TestActivateMethodReturningNoAccount(t *testing.T) {
	var typedNil *UserAccount

	tests := []struct {
		name    string
		account Account
	}{
		{name: "nil interface", account: nil},
		{name: "typed nil", account: typedNil},
		{name: "account without id", account: &UserAccount{Email: "dave@example.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, _ := newTestRepo(t)
			ctx := context.Background()
			activator := newTestActivator(repo, newTestClock(testT0.Add(Day)), nil)

			dave := insertProfile(t, repo, "dave@example.com", testT0)

			result, err := activator.Activate(ctx, dave.ActivationKey, func(context.Context, ActivationRequest) (Account, error) {
				return tt.account, nil
			}, nil, nil)
			require.NoError(t, err)
			assert.Equal(t, OutcomeRejected, result.Outcome)
			assert.NotEmpty(t, result.Message)
			assert.Nil(t, result.Account)

			stored, err := repo.Profiles().FindByKey(ctx, dave.ActivationKey)
			require.NoError(t, err)
			assert.Equal(t, dave.ActivationKey, stored.ActivationKey)
		})
	}
}

func TestActivateLostRaceReportsInvalidKey(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	activator := newTestActivator(repo, newTestClock(testT0.Add(Day)), nil)

	erin := insertProfile(t, repo, "erin@example.com", testT0)

	// another activation consumes the key between lookup and consume
	racing := func(ctx context.Context, req ActivationRequest) (Account, error) {
		consumed, err := repo.Profiles().ConsumeKeyTx(ctx, req.Tx, req.Profile.ID, req.Profile.ActivationKey)
		require.NoError(t, err)
		require.True(t, consumed)
		return &UserAccount{ID: uuid.New(), Email: req.Profile.Email}, nil
	}

	result, err := activator.Activate(ctx, erin.ActivationKey, racing, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, OutcomeInvalidKey, result.Outcome)
	assert.Nil(t, result.Account)

	stored, err := repo.Profiles().FindByKey(ctx, erin.ActivationKey)
	require.NoError(t, err)
	assert.Equal(t, erin.ActivationKey, stored.ActivationKey)
}

func TestActivateRequiresMethod(t *testing.T) {
	repo, _ := newTestRepo(t)
	activator := newTestActivator(repo, newTestClock(testT0), nil)

	_, err := activator.Activate(context.Background(), "a94a8fe5ccb19ba61c4c0873d391e987982fbbd3", nil, nil, nil)
	require.Error(t, err)
	assert.True(t, IsImproperlyConfigured(err))
}

func TestActivationResultErr(t *testing.T) {
	cause := errors.New("nope")

	assert.NoError(t, ActivatedResult(&UserAccount{}).Err())
	assert.ErrorIs(t, InvalidKeyResult().Err(), ErrInvalidActivationKey)
	assert.ErrorIs(t, RejectedResult(cause).Err(), cause)
	assert.Equal(t, "nope", RejectedResult(cause).Message)
	assert.ErrorIs(t, ActivationResult{Outcome: OutcomeRejected}.Err(), ErrActivationRejected)
}
