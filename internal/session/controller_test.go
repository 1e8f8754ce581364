package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

// fakeTimers collects scheduled callbacks so the test can fire the grace
// window by hand.
type fakeTimers struct {
	mu      sync.Mutex
	pending []func()
}

func (f *fakeTimers) AfterFunc(d time.Duration, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, fn)
}

func (f *fakeTimers) FireAll() {
	f.mu.Lock()
	pending := f.pending
	f.pending = nil
	f.mu.Unlock()
	for _, fn := range pending {
		fn()
	}
}

type fakeAuth struct {
	mu     sync.Mutex
	err    error
	called int
}

func (f *fakeAuth) Logout(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.called++
	return f.err
}

func testConfig() Config {
	return Config{
		Timeout:             15 * time.Minute,
		ActivityThrottle:    30 * time.Second,
		ExpiryCheckInterval: time.Hour, // tests drive expiry checks by hand
		GraceWindow:         time.Second,
	}
}

func newTestController(t *testing.T, auth RemoteAuth) (*Controller, *fakeClock, *fakeTimers, *MemStore) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	timers := &fakeTimers{}
	store := NewMemStore()

	c := NewController(zap.NewNop(), store, auth, testConfig())
	c.now = clock.Now
	c.afterFunc = timers.AfterFunc
	c.Start()
	t.Cleanup(c.Stop)
	return c, clock, timers, store
}

func TestLoginCreatesSession(t *testing.T) {
	c, _, _, store := newTestController(t, nil)

	sess := c.Login("123456789", RoleRespondent, 0)
	require.NotNil(t, sess)
	assert.Equal(t, "123456789", sess.SubjectID)
	assert.Equal(t, RoleRespondent, sess.Role)

	cur := c.Current()
	require.NotNil(t, cur)
	assert.Equal(t, "123456789", cur.SubjectID)

	_, ok := store.Get("user_session")
	assert.True(t, ok)
	_, ok = store.Get("login_timestamp")
	assert.True(t, ok)
	_, ok = store.Get("window_id")
	assert.True(t, ok)
}

func TestInactivityExpiry(t *testing.T) {
	c, clock, _, _ := newTestController(t, nil)
	c.Login("123456789", RoleRespondent, 0)

	clock.Advance(14 * time.Minute)
	c.CheckExpiryNow()
	assert.NotNil(t, c.Current(), "still inside the window")

	clock.Advance(2 * time.Minute)
	c.CheckExpiryNow()
	assert.Nil(t, c.Current())

	reason, ok := c.LastExpiry()
	require.True(t, ok)
	assert.Equal(t, ExpiredInactivity, reason)
}

func TestLoginTimeoutOverride(t *testing.T) {
	c, clock, _, _ := newTestController(t, nil)
	c.Login("123456789", RoleRespondent, 60)

	clock.Advance(90 * time.Second)
	c.CheckExpiryNow()
	assert.Nil(t, c.Current(), "overridden 60s window should expire well before the default")
}

func TestActivityThrottle(t *testing.T) {
	c, clock, _, store := newTestController(t, nil)
	c.Login("123456789", RoleRespondent, 0)

	initial, _ := store.Get("login_timestamp")

	// The first event after login lands immediately.
	clock.Advance(10 * time.Second)
	c.RecordActivity()
	c.Current() // flush the queue
	firstTS, _ := store.Get("login_timestamp")
	assert.NotEqual(t, initial, firstTS)

	// Within the throttle window nothing is written.
	clock.Advance(10 * time.Second)
	c.RecordActivity()
	c.Current()
	unchanged, _ := store.Get("login_timestamp")
	assert.Equal(t, firstTS, unchanged)

	// Past the throttle window the timestamp moves again.
	clock.Advance(30 * time.Second)
	c.RecordActivity()
	c.Current()
	moved, _ := store.Get("login_timestamp")
	assert.NotEqual(t, firstTS, moved)
}

func TestActivityIgnoredInBackground(t *testing.T) {
	c, clock, _, store := newTestController(t, nil)
	c.Login("123456789", RoleRespondent, 0)
	before, _ := store.Get("login_timestamp")

	c.SetVisible(false)
	clock.Advance(5 * time.Minute)
	c.RecordActivity()
	c.Current()

	after, _ := store.Get("login_timestamp")
	assert.Equal(t, before, after, "background activity must not extend the session")
}

func TestAwayExpiryOnRestore(t *testing.T) {
	c, clock, _, _ := newTestController(t, nil)
	c.Login("123456789", RoleRespondent, 0)

	c.SetVisible(false)
	clock.Advance(16 * time.Minute)
	c.SetVisible(true)

	assert.Nil(t, c.Current())
	reason, ok := c.LastExpiry()
	require.True(t, ok)
	assert.Equal(t, ExpiredAway, reason)
}

func TestRestoreInsideWindowCountsAsActivity(t *testing.T) {
	c, clock, _, store := newTestController(t, nil)
	c.Login("123456789", RoleRespondent, 0)
	before, _ := store.Get("login_timestamp")

	c.SetVisible(false)
	clock.Advance(5 * time.Minute)
	c.SetVisible(true)

	require.NotNil(t, c.Current())
	after, _ := store.Get("login_timestamp")
	assert.NotEqual(t, before, after)
}

func TestReloadKeepsSession(t *testing.T) {
	c, _, timers, store := newTestController(t, nil)
	c.Login("123456789", RoleRespondent, 0)

	c.UnloadIntent()
	_, marked := store.Get("page_refresh_marker")
	require.True(t, marked)

	// The reload's page-load arrives before the grace window ends and
	// consumes the marker.
	sess := c.Bootstrap()
	require.NotNil(t, sess)
	assert.Equal(t, "123456789", sess.SubjectID)

	timers.FireAll()
	assert.NotNil(t, c.Current(), "confirmed reload must not purge the session")
}

func TestCloseConfirmationPurges(t *testing.T) {
	c, _, timers, _ := newTestController(t, nil)
	c.Login("123456789", RoleRespondent, 0)

	c.UnloadIntent()
	// No page load follows; the grace window elapses.
	timers.FireAll()
	c.Current() // flush the posted confirmation

	assert.Nil(t, c.Current())
	reason, ok := c.LastExpiry()
	require.True(t, ok)
	assert.Equal(t, ExpiredClosed, reason)
}

func TestBootstrapNewWindowContinuesSession(t *testing.T) {
	c, clock, _, _ := newTestController(t, nil)
	c.Login("123456789", RoleRespondent, 0)

	clock.Advance(5 * time.Minute)
	sess := c.Bootstrap()
	require.NotNil(t, sess)
	assert.Equal(t, "123456789", sess.SubjectID)
}

func TestBootstrapExpiredSession(t *testing.T) {
	c, clock, _, _ := newTestController(t, nil)
	c.Login("123456789", RoleRespondent, 0)

	clock.Advance(16 * time.Minute)
	assert.Nil(t, c.Bootstrap())
	assert.Nil(t, c.Current())
}

func TestBootstrapWithoutSession(t *testing.T) {
	c, _, _, _ := newTestController(t, nil)
	assert.Nil(t, c.Bootstrap())
}

func TestLogoutClearsDespiteRemoteFailure(t *testing.T) {
	auth := &fakeAuth{err: errors.New("backend unreachable")}
	c, _, _, store := newTestController(t, auth)
	c.Login("123456789", RoleRespondent, 0)

	c.Logout(context.Background())

	assert.Nil(t, c.Current())
	_, ok := store.Get("user_session")
	assert.False(t, ok)
	reason, have := c.LastExpiry()
	require.True(t, have)
	assert.Equal(t, ExpiredLogout, reason)
	assert.Equal(t, 1, auth.called)
}

type fakeStatusAuth struct {
	fakeAuth
	valid bool
}

func (f *fakeStatusAuth) SessionValid(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.valid, nil
}

func TestRemoteInvalidTerminates(t *testing.T) {
	auth := &fakeStatusAuth{valid: false}
	c, _, _, _ := newTestController(t, auth)
	c.Login("123456789", RoleRespondent, 0)

	c.CheckExpiryNow()

	assert.Eventually(t, func() bool {
		return c.Current() == nil
	}, time.Second, 10*time.Millisecond, "explicit backend invalidation ends the session")
}

func TestRemoteValidKeepsSession(t *testing.T) {
	auth := &fakeStatusAuth{valid: true}
	c, _, _, _ := newTestController(t, auth)
	c.Login("123456789", RoleRespondent, 0)

	c.CheckExpiryNow()
	time.Sleep(50 * time.Millisecond)
	assert.NotNil(t, c.Current())
}

func TestSetTimeoutApplies(t *testing.T) {
	c, clock, _, _ := newTestController(t, nil)
	c.Login("123456789", RoleRespondent, 0)

	c.SetTimeout(time.Minute)
	clock.Advance(2 * time.Minute)
	c.CheckExpiryNow()
	assert.Nil(t, c.Current())
}
