package registration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProfileStore(repo RepositoryManager, clock *testClock, notifier Notifier, sink ActivitySink) *ProfileStore {
	return NewProfileStore(repo, testSettings(),
		WithProfileStoreClock(clock.Now),
		WithProfileStoreNotifier(notifier),
		WithProfileStoreActivitySink(sink),
		WithProfileStoreLogger(NopLogger()),
	)
}

func TestCreateProfileSendsActivationEmail(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	notifier := &captureNotifier{}
	sink := &captureSink{}
	store := newTestProfileStore(repo, newTestClock(testT0), notifier, sink)

	site := Site{Name: "Example", Domain: "example.com"}
	profile, err := store.CreateProfile(ctx, site, " alice@example.com ")
	require.NoError(t, err)

	assert.Equal(t, "alice@example.com", profile.Email)
	assert.True(t, IsActivationKeyShape(profile.ActivationKey))
	assert.True(t, testT0.Equal(profile.RegisteredAt))

	require.Equal(t, 1, notifier.Count())
	assert.Equal(t, profile.ActivationKey, notifier.sent[0].profile.ActivationKey)
	assert.Equal(t, site, notifier.sent[0].site)

	assert.Equal(t, []ActivityEventType{
		ActivityEventProfileCreated,
		ActivityEventActivationEmailSent,
	}, sink.Types())

	found, err := store.FindByKey(ctx, profile.ActivationKey)
	require.NoError(t, err)
	assert.Equal(t, profile.ID, found.ID)
}

func TestCreateProfileWithoutActivationEmail(t *testing.T) {
	repo, _ := newTestRepo(t)
	notifier := &captureNotifier{}
	store := newTestProfileStore(repo, newTestClock(testT0), notifier, nil)

	_, err := store.CreateProfile(context.Background(), Site{}, "alice@example.com", WithoutActivationEmail())
	require.NoError(t, err)
	assert.Equal(t, 0, notifier.Count())
}

func TestCreateProfileKeepsProfileWhenEmailFails(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	notifier := &captureNotifier{err: errors.New("smtp down")}
	sink := &captureSink{}
	store := newTestProfileStore(repo, newTestClock(testT0), notifier, sink)

	profile, err := store.CreateProfile(ctx, Site{}, "alice@example.com")
	require.NoError(t, err)

	_, err = repo.Profiles().FindByKey(ctx, profile.ActivationKey)
	assert.NoError(t, err)

	require.Len(t, sink.events, 2)
	assert.Equal(t, ActivityEventActivationEmailError, sink.events[1].EventType)
	assert.Equal(t, "smtp down", sink.events[1].Metadata["error"])
}

func TestCreateProfileRequiresEmail(t *testing.T) {
	repo, _ := newTestRepo(t)
	store := newTestProfileStore(repo, newTestClock(testT0), nil, nil)

	profile, err := store.CreateProfile(context.Background(), Site{}, "   ")
	assert.Nil(t, profile)
	assert.Error(t, err)
}

func TestCreateProfileKeysDifferPerProfile(t *testing.T) {
	repo, _ := newTestRepo(t)
	store := newTestProfileStore(repo, newTestClock(testT0), nil, nil)

	first, err := store.CreateProfile(context.Background(), Site{}, "alice@example.com")
	require.NoError(t, err)
	second, err := store.CreateProfile(context.Background(), Site{}, "alice@example.com")
	require.NoError(t, err)

	assert.NotEqual(t, first.ActivationKey, second.ActivationKey)
}

func TestProfileStoreClean(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	clock := newTestClock(testT0)
	sink := &captureSink{}
	store := newTestProfileStore(repo, clock, nil, sink)

	expired := insertProfile(t, repo, "expired@example.com", testT0)
	activated := insertProfile(t, repo, "activated@example.com", testT0.Add(5*Day))
	insertProfile(t, repo, "pending@example.com", testT0.Add(5*Day))

	_, err := repo.Profiles().ConsumeKey(ctx, activated.ID, activated.ActivationKey)
	require.NoError(t, err)

	clock.Set(testT0.Add(8 * Day))

	report, err := store.Clean(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), report.Expired)
	assert.Equal(t, int64(1), report.Activated)
	assert.Equal(t, int64(2), report.Total())

	_, err = repo.Profiles().FindByKey(ctx, expired.ActivationKey)
	assert.True(t, IsProfileNotFound(err))

	pending, err := repo.Profiles().ListPending(ctx, ExpirationCutoff(clock.Now(), store.Window()))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "pending@example.com", pending[0].Email)

	assert.Equal(t, []ActivityEventType{ActivityEventProfilesPurged}, sink.Types())
}

func TestProfileStoreDeleteExpiredScope(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	store := newTestProfileStore(repo, newTestClock(testT0.Add(10*Day)), nil, nil)

	first := insertProfile(t, repo, "first@example.com", testT0)
	insertProfile(t, repo, "second@example.com", testT0)

	count, err := store.DeleteExpired(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = store.DeleteExpired(ctx, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	count, err = store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestProfileStoreDeleteExpiredIsIdempotent(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	store := newTestProfileStore(repo, newTestClock(testT0.Add(10*Day)), nil, nil)

	first := insertProfile(t, repo, "first@example.com", testT0)
	second := insertProfile(t, repo, "second@example.com", testT0)
	scope := []uuid.UUID{first.ID, second.ID}

	count, err := store.DeleteExpired(ctx, scope...)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, err = store.DeleteExpired(ctx, scope...)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	count, err = store.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}

func TestResendActivationEmail(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	notifier := &captureNotifier{}
	store := newTestProfileStore(repo, newTestClock(testT0.Add(9*Day)), notifier, nil)

	insertProfile(t, repo, "expired@example.com", testT0)
	pending := insertProfile(t, repo, "pending@example.com", testT0.Add(5*Day))
	done := insertProfile(t, repo, "done@example.com", testT0.Add(5*Day))

	_, err := repo.Profiles().ConsumeKey(ctx, done.ID, done.ActivationKey)
	require.NoError(t, err)

	site := Site{Name: "Example", Domain: "example.com"}
	sent, err := store.ResendActivationEmail(ctx, site)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Equal(t, 1, notifier.Count())
	assert.Equal(t, pending.ID, notifier.sent[0].profile.ID)
}

func TestResendActivationEmailFailures(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	insertProfile(t, repo, "pending@example.com", testT0)

	t.Run("no notifier", func(t *testing.T) {
		store := newTestProfileStore(repo, newTestClock(testT0), nil, nil)
		_, err := store.ResendActivationEmail(ctx, Site{})
		require.Error(t, err)
		assert.True(t, IsImproperlyConfigured(err))
	})

	t.Run("delivery error", func(t *testing.T) {
		notifier := &captureNotifier{err: errors.New("smtp down")}
		store := newTestProfileStore(repo, newTestClock(testT0), notifier, nil)
		sent, err := store.ResendActivationEmail(ctx, Site{})
		require.Error(t, err)
		assert.Equal(t, 0, sent)
		assert.Contains(t, err.Error(), "failed to resend")
	})
}

func TestProfileStoreWindowFromSettings(t *testing.T) {
	repo, _ := newTestRepo(t)

	store := NewProfileStore(repo, Settings{ActivationDays: 7, ActivationWindow: "36h"})
	assert.Equal(t, 36*time.Hour, store.Window())

	store = NewProfileStore(repo, Settings{ActivationDays: 2})
	assert.Equal(t, 2*Day, store.Window())
}
