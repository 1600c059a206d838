package registration

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

var testT0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type captureSink struct {
	mu     sync.Mutex
	events []ActivityEvent
}

func (c *captureSink) Record(_ context.Context, evt ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *captureSink) Types() []ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ActivityEventType, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.EventType)
	}
	return out
}

type sentEmail struct {
	profile *RegistrationProfile
	site    Site
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []sentEmail
	err  error
}

func (n *captureNotifier) SendActivationEmail(_ context.Context, profile *RegistrationProfile, site Site) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	copied := *profile
	n.sent = append(n.sent, sentEmail{profile: &copied, site: site})
	return nil
}

func (n *captureNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = Migrate(context.Background(), db)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func newTestRepo(t *testing.T) (RepositoryManager, *bun.DB) {
	t.Helper()
	db := newTestDB(t)
	return NewRepositoryManager(db), db
}

// insertProfile stores a profile registered at the given time
func insertProfile(t *testing.T, repo RepositoryManager, email string, registeredAt time.Time) *RegistrationProfile {
	t.Helper()

	key, err := GenerateActivationKey(email)
	require.NoError(t, err)

	profile, err := repo.Profiles().Create(context.Background(), &RegistrationProfile{
		Email:         email,
		ActivationKey: key,
		RegisteredAt:  registeredAt,
	})
	require.NoError(t, err)
	return profile
}

func testSettings() Settings {
	return Settings{
		ActivationDays: 7,
		SiteName:       "Example",
		SiteDomain:     "example.com",
	}
}
