package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/certregistry/internal/domain/model"
	"github.com/ericfisherdev/certregistry/internal/domain/port/driven"
	"github.com/ericfisherdev/certregistry/internal/domain/signing"
)

// --- In-memory CredentialStore ---

type memCredentialStore struct {
	mu      sync.Mutex
	creds   map[string]model.AppCredential
	writes  int
	findErr error
}

var _ driven.CredentialStore = (*memCredentialStore)(nil)

func newMemCredentialStore() *memCredentialStore {
	return &memCredentialStore{creds: make(map[string]model.AppCredential)}
}

func (m *memCredentialStore) Find(_ context.Context, appID string) (*model.AppCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	cred, ok := m.creds[appID]
	if !ok {
		return nil, nil
	}
	return &cred, nil
}

func (m *memCredentialStore) CreateIfAbsent(_ context.Context, appID, defaultHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createLocked(appID, defaultHash)
	return nil
}

func (m *memCredentialStore) Update(_ context.Context, cred model.AppCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[cred.AppID] = cred
	m.writes++
	return nil
}

func (m *memCredentialStore) Mutate(_ context.Context, appID, defaultHash string, fn driven.CredentialMutation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return m.findErr
	}
	m.createLocked(appID, defaultHash)

	cred := m.creds[appID]
	changed, err := fn(&cred)
	if err != nil {
		return err
	}
	if changed {
		m.creds[appID] = cred
		m.writes++
	}
	return nil
}

func (m *memCredentialStore) createLocked(appID, defaultHash string) {
	if _, ok := m.creds[appID]; !ok {
		m.creds[appID] = model.AppCredential{AppID: appID, PasswordHash: defaultHash}
	}
}

func (m *memCredentialStore) get(appID string) model.AppCredential {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds[appID]
}

// --- Helpers ---

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestGuard(t *testing.T, store *memCredentialStore) (*LockoutGuard, *fakeClock) {
	t.Helper()
	g, err := NewLockoutGuard(store, SHA256Hasher{}, LockoutPolicy{DefaultSecret: "0000"}, slog.Default())
	require.NoError(t, err)
	clock := &fakeClock{t: time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)}
	g.now = clock.Now
	return g, clock
}

func requireInvalid(t *testing.T, err error) *InvalidSecretError {
	t.Helper()
	var inv *InvalidSecretError
	require.True(t, errors.As(err, &inv), "expected InvalidSecretError, got %v", err)
	return inv
}

func requireLocked(t *testing.T, err error) *LockedError {
	t.Helper()
	var locked *LockedError
	require.True(t, errors.As(err, &locked), "expected LockedError, got %v", err)
	return locked
}

// --- Tests ---

func TestLockoutGuard_CheckCorrectSecret(t *testing.T) {
	store := newMemCredentialStore()
	g, _ := newTestGuard(t, store)

	require.NoError(t, g.Check(context.Background(), "desktop_manager", "0000"))

	cred := store.get("desktop_manager")
	assert.Equal(t, signing.Digest("0000"), cred.PasswordHash)
	assert.Equal(t, 0, cred.FailedAttempts)
	assert.Nil(t, cred.LockedUntil)
}

func TestLockoutGuard_ThresholdLocks(t *testing.T) {
	store := newMemCredentialStore()
	g, _ := newTestGuard(t, store)
	ctx := context.Background()

	inv := requireInvalid(t, g.Check(ctx, "app", "wrong"))
	assert.False(t, inv.Locked)
	assert.Equal(t, 1, inv.Attempts)
	assert.Equal(t, 2, inv.Remaining)
	assert.Equal(t, 1, store.get("app").FailedAttempts)

	inv = requireInvalid(t, g.Check(ctx, "app", "wrong"))
	assert.False(t, inv.Locked)
	assert.Equal(t, 2, store.get("app").FailedAttempts)

	inv = requireInvalid(t, g.Check(ctx, "app", "wrong"))
	assert.True(t, inv.Locked)
	assert.Equal(t, 900, RetryAfterSeconds(inv.RetryAfter))

	cred := store.get("app")
	assert.Equal(t, 0, cred.FailedAttempts, "visible counter resets when the lock starts")
	require.NotNil(t, cred.LockedUntil)
}

func TestLockoutGuard_LockedRejectsWithoutCounting(t *testing.T) {
	store := newMemCredentialStore()
	g, clock := newTestGuard(t, store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		requireInvalid(t, g.Check(ctx, "app", "wrong"))
	}
	before := store.get("app")

	clock.Advance(100 * time.Second)
	locked := requireLocked(t, g.Check(ctx, "app", "0000"))
	assert.Equal(t, 800, RetryAfterSeconds(locked.RetryAfter))

	locked = requireLocked(t, g.Check(ctx, "app", "wrong"))
	assert.Equal(t, 800, RetryAfterSeconds(locked.RetryAfter))

	assert.Equal(t, before, store.get("app"))
}

func TestLockoutGuard_ExpiredLockEvaluatesNormally(t *testing.T) {
	store := newMemCredentialStore()
	g, clock := newTestGuard(t, store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		requireInvalid(t, g.Check(ctx, "app", "wrong"))
	}

	clock.Advance(900 * time.Second)
	require.NoError(t, g.Check(ctx, "app", "0000"))

	cred := store.get("app")
	assert.Equal(t, 0, cred.FailedAttempts)
	assert.Nil(t, cred.LockedUntil)
}

func TestLockoutGuard_ExpiredLockWrongSecretCountsFromZero(t *testing.T) {
	store := newMemCredentialStore()
	g, clock := newTestGuard(t, store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		requireInvalid(t, g.Check(ctx, "app", "wrong"))
	}

	clock.Advance(901 * time.Second)
	inv := requireInvalid(t, g.Check(ctx, "app", "wrong"))
	assert.False(t, inv.Locked)
	assert.Equal(t, 1, inv.Attempts)

	cred := store.get("app")
	assert.Equal(t, 1, cred.FailedAttempts)
	assert.Nil(t, cred.LockedUntil, "expired lock is cleared by the next check")
}

func TestLockoutGuard_SuccessResetsCounter(t *testing.T) {
	store := newMemCredentialStore()
	g, _ := newTestGuard(t, store)
	ctx := context.Background()

	requireInvalid(t, g.Check(ctx, "app", "wrong"))
	requireInvalid(t, g.Check(ctx, "app", "wrong"))
	require.NoError(t, g.Check(ctx, "app", "0000"))
	assert.Equal(t, 0, store.get("app").FailedAttempts)

	// The counter starts over: two more failures do not lock.
	requireInvalid(t, g.Check(ctx, "app", "wrong"))
	inv := requireInvalid(t, g.Check(ctx, "app", "wrong"))
	assert.False(t, inv.Locked)
}

func TestLockoutGuard_AppIDsAreIndependent(t *testing.T) {
	store := newMemCredentialStore()
	g, _ := newTestGuard(t, store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		requireInvalid(t, g.Check(ctx, "a", "wrong"))
	}
	require.NoError(t, g.Check(ctx, "b", "0000"))
}

func TestLockoutGuard_EmptyAppID(t *testing.T) {
	g, _ := newTestGuard(t, newMemCredentialStore())
	assert.ErrorIs(t, g.Check(context.Background(), "  ", "0000"), ErrEmptyAppID)
	assert.ErrorIs(t, g.Change(context.Background(), "", "0000", "1234"), ErrEmptyAppID)
	_, err := g.Status(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyAppID)
}

func TestLockoutGuard_StoreErrorPropagates(t *testing.T) {
	store := newMemCredentialStore()
	store.findErr = errors.New("disk on fire")
	g, _ := newTestGuard(t, store)

	err := g.Check(context.Background(), "app", "0000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")

	var inv *InvalidSecretError
	assert.False(t, errors.As(err, &inv))
}

func TestLockoutGuard_Change(t *testing.T) {
	store := newMemCredentialStore()
	g, _ := newTestGuard(t, store)
	ctx := context.Background()

	requireInvalid(t, g.Check(ctx, "app", "wrong"))
	require.NoError(t, g.Change(ctx, "app", "0000", "4821"))

	cred := store.get("app")
	assert.Equal(t, signing.Digest("4821"), cred.PasswordHash)
	assert.Equal(t, 0, cred.FailedAttempts)
	assert.Nil(t, cred.LockedUntil)

	require.NoError(t, g.Check(ctx, "app", "4821"))
	requireInvalid(t, g.Check(ctx, "app", "0000"))
}

func TestLockoutGuard_ChangeWrongOldSecretDoesNotCount(t *testing.T) {
	store := newMemCredentialStore()
	g, _ := newTestGuard(t, store)
	ctx := context.Background()

	requireInvalid(t, g.Check(ctx, "app", "wrong"))
	before := store.get("app")

	for i := 0; i < 5; i++ {
		assert.ErrorIs(t, g.Change(ctx, "app", "nope", "4821"), ErrOldSecretWrong)
	}

	after := store.get("app")
	assert.Equal(t, before, after)
	assert.Equal(t, 1, after.FailedAttempts)
}

func TestLockoutGuard_ChangeWhileLocked(t *testing.T) {
	store := newMemCredentialStore()
	g, clock := newTestGuard(t, store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		requireInvalid(t, g.Check(ctx, "app", "wrong"))
	}

	clock.Advance(60 * time.Second)
	locked := requireLocked(t, g.Change(ctx, "app", "0000", "4821"))
	assert.Equal(t, 840, RetryAfterSeconds(locked.RetryAfter))
	assert.Equal(t, signing.Digest("0000"), store.get("app").PasswordHash)

	clock.Advance(840 * time.Second)
	require.NoError(t, g.Change(ctx, "app", "0000", "4821"))
	assert.Nil(t, store.get("app").LockedUntil)
}

func TestLockoutGuard_ChangeRejectsEmptySecret(t *testing.T) {
	store := newMemCredentialStore()
	g, _ := newTestGuard(t, store)

	assert.ErrorIs(t, g.Change(context.Background(), "app", "0000", ""), ErrEmptySecret)
	assert.Zero(t, store.writes)
}

func TestLockoutGuard_Status(t *testing.T) {
	store := newMemCredentialStore()
	g, clock := newTestGuard(t, store)
	ctx := context.Background()

	st, err := g.Status(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, LockStatus{AppID: "fresh"}, st)

	requireInvalid(t, g.Check(ctx, "fresh", "wrong"))
	st, err = g.Status(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, 1, st.FailedAttempts)
	assert.False(t, st.Locked)

	requireInvalid(t, g.Check(ctx, "fresh", "wrong"))
	requireInvalid(t, g.Check(ctx, "fresh", "wrong"))
	st, err = g.Status(ctx, "fresh")
	require.NoError(t, err)
	assert.True(t, st.Locked)
	assert.Equal(t, 900*time.Second, st.RetryAfter)

	clock.Advance(600 * time.Second)
	st, err = g.Status(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, 300*time.Second, st.RetryAfter)

	clock.Advance(300 * time.Second)
	st, err = g.Status(ctx, "fresh")
	require.NoError(t, err)
	assert.False(t, st.Locked)
	assert.Zero(t, st.RetryAfter)
}

func TestLockoutGuard_CustomPolicy(t *testing.T) {
	store := newMemCredentialStore()
	g, err := NewLockoutGuard(store, SHA256Hasher{}, LockoutPolicy{
		MaxAttempts:   5,
		LockDuration:  time.Minute,
		DefaultSecret: "letmein",
	}, slog.Default())
	require.NoError(t, err)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		inv := requireInvalid(t, g.Check(ctx, "app", "wrong"))
		assert.False(t, inv.Locked)
	}
	inv := requireInvalid(t, g.Check(ctx, "app", "wrong"))
	assert.True(t, inv.Locked)
	assert.Equal(t, 60, RetryAfterSeconds(inv.RetryAfter))
}

func TestLockoutGuard_ConcurrentChecksNeverBypassLock(t *testing.T) {
	store := newMemCredentialStore()
	g, _ := newTestGuard(t, store)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make(chan error, 30)
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- g.Check(ctx, "app", "wrong")
		}()
	}
	wg.Wait()
	close(results)

	var lockedStarts, lockedRejections int
	for err := range results {
		var inv *InvalidSecretError
		var locked *LockedError
		switch {
		case errors.As(err, &inv):
			if inv.Locked {
				lockedStarts++
			}
		case errors.As(err, &locked):
			lockedRejections++
		default:
			t.Fatalf("unexpected result %v", err)
		}
	}

	assert.Equal(t, 1, lockedStarts)
	assert.Equal(t, 27, lockedRejections)
}

// Scenario: a never-provisioned app is locked after three wrong passwords,
// and the default password is rejected while the lock holds.
func TestLockoutGuard_DesktopManagerScenario(t *testing.T) {
	store := newMemCredentialStore()
	g, clock := newTestGuard(t, store)
	ctx := context.Background()

	cred, err := store.Find(ctx, "desktop_manager")
	require.NoError(t, err)
	require.Nil(t, cred)

	inv := requireInvalid(t, g.Check(ctx, "desktop_manager", "wrong"))
	assert.False(t, inv.Locked)
	created := store.get("desktop_manager")
	assert.Equal(t, signing.Digest("0000"), created.PasswordHash)
	assert.Equal(t, 1, created.FailedAttempts)

	requireInvalid(t, g.Check(ctx, "desktop_manager", "wrong"))
	inv = requireInvalid(t, g.Check(ctx, "desktop_manager", "wrong"))
	assert.True(t, inv.Locked)
	assert.Equal(t, 900, RetryAfterSeconds(inv.RetryAfter))

	clock.Advance(time.Second)
	locked := requireLocked(t, g.Check(ctx, "desktop_manager", "0000"))
	assert.InDelta(t, 900, RetryAfterSeconds(locked.RetryAfter), 1)
}

func newLegacyCredential(appID, secret string) model.AppCredential {
	return model.AppCredential{AppID: appID, PasswordHash: signing.Digest(secret)}
}
