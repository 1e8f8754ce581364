package session

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RemoteAuth is the slice of the backend the controller needs: best-effort
// remote session termination on logout.
type RemoteAuth interface {
	Logout(ctx context.Context) error
}

// RemoteStatus is an optional upgrade of RemoteAuth: backends that can
// report whether their own session is still alive get consulted on the
// periodic expiry tick.
type RemoteStatus interface {
	SessionValid(ctx context.Context) (bool, error)
}

// Config holds the lifecycle timings. Timeout is the default inactivity
// window; a login may override it per session and SetTimeout may change it
// later.
type Config struct {
	Timeout             time.Duration
	ActivityThrottle    time.Duration
	ExpiryCheckInterval time.Duration
	GraceWindow         time.Duration
}

// Controller is the single authority for "is there a valid session right
// now" in one browser scope. Every signal (activity ping, visibility
// change, unload beacon, expiry tick, login, logout) is serialized into one
// queue and applied by a single goroutine, so the read-modify-write cycles
// on the stored timestamp never interleave.
type Controller struct {
	log    *zap.Logger
	store  Store
	auth   RemoteAuth
	status RemoteStatus
	cfg    Config

	// Injection points for tests.
	now       func() time.Time
	afterFunc func(d time.Duration, f func())

	queue    chan func()
	done     chan struct{}
	stopOnce sync.Once

	// State below is owned by the run loop.
	current    *Session
	timeout    time.Duration
	visible    bool
	lastExtend time.Time
	lastReason ExpiryReason
	onExpired  func(ExpiryReason)
}

func NewController(log *zap.Logger, store Store, auth RemoteAuth, cfg Config) *Controller {
	status, _ := auth.(RemoteStatus)
	return &Controller{
		status:    status,
		log:       log,
		store:     store,
		auth:      auth,
		cfg:       cfg,
		now:       time.Now,
		afterFunc: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		queue:     make(chan func(), 16),
		done:      make(chan struct{}),
		timeout:   cfg.Timeout,
		visible:   true,
	}
}

// OnExpired registers the expiry callback. Must be called before Start; the
// callback runs on the controller goroutine and must not call back in.
func (c *Controller) OnExpired(f func(ExpiryReason)) {
	c.onExpired = f
}

// Start launches the run loop and the periodic expiry check.
func (c *Controller) Start() {
	go c.run()
}

// Stop terminates the run loop. Pending queue entries are dropped.
func (c *Controller) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *Controller) run() {
	ticker := time.NewTicker(c.cfg.ExpiryCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case f := <-c.queue:
			f()
		case <-ticker.C:
			c.checkExpiry()
		case <-c.done:
			return
		}
	}
}

// post queues f for the run loop without waiting for it.
func (c *Controller) post(f func()) {
	select {
	case c.queue <- f:
	case <-c.done:
	}
}

// call runs f on the run loop and waits for it to finish.
func (c *Controller) call(f func()) {
	ran := make(chan struct{})
	c.post(func() {
		f()
		close(ran)
	})
	select {
	case <-ran:
	case <-c.done:
	}
}

// Bootstrap reconstructs the session on page load. A refresh marker left by
// a recent unload intent means this load is a reload: the session simply
// continues and the activity timestamp is bumped. No marker means an
// independent new window: the session must still be inside the timeout
// window and a window identifier must already exist. Anything inconsistent
// fails open to logged-out.
func (c *Controller) Bootstrap() *Session {
	var out *Session
	c.call(func() {
		out = c.bootstrap()
	})
	return out
}

func (c *Controller) bootstrap() *Session {
	_, isReload := c.store.Get(refreshMarkerKey)
	c.store.Delete(refreshMarkerKey)

	blob, haveBlob := c.store.Get(sessionKey)
	tsValue, haveTS := c.store.Get(timestampKey)
	if !haveBlob || !haveTS {
		c.current = nil
		return nil
	}

	sess, err := decodeSession(blob)
	if err != nil {
		c.log.Warn("Discarding unreadable session", zap.Error(err))
		c.purge()
		return nil
	}
	ts, err := decodeMillis(tsValue)
	if err != nil {
		c.log.Warn("Discarding session with unreadable timestamp", zap.Error(err))
		c.purge()
		return nil
	}

	timeout := c.storedTimeout()
	now := c.now()
	idle := now.Sub(ts)

	if isReload {
		if idle > timeout {
			c.log.Info("Session expired across reload", zap.String("subject", sess.SubjectID))
			c.purge()
			return nil
		}
		// The user is back; reload counts as activity.
		c.store.Set(timestampKey, encodeMillis(now))
	} else {
		_, haveWindow := c.store.Get(windowIDKey)
		if idle > timeout || !haveWindow {
			c.log.Info("Session invalid for new window", zap.String("subject", sess.SubjectID))
			c.purge()
			return nil
		}
		// Track this window as the current one.
		c.store.Set(windowIDKey, uuid.NewString())
	}

	c.current = sess
	c.timeout = timeout
	c.visible = true
	snapshot := *sess
	return &snapshot
}

// Login creates a fresh session. timeoutSeconds <= 0 keeps the configured
// default.
func (c *Controller) Login(subjectID string, role Role, timeoutSeconds int) *Session {
	var out *Session
	c.call(func() {
		now := c.now()
		sess := &Session{SubjectID: subjectID, Role: role, CreatedAt: now}

		blob, err := encodeSession(sess)
		if err != nil {
			// Marshalling a flat struct cannot realistically fail; treat it
			// as fatal for this login attempt.
			c.log.Error("Failed to encode session", zap.Error(err))
			return
		}

		timeout := c.cfg.Timeout
		if timeoutSeconds > 0 {
			timeout = time.Duration(timeoutSeconds) * time.Second
			c.store.Set(timeoutKey, strconv.Itoa(timeoutSeconds))
		}

		c.store.Set(sessionKey, blob)
		c.store.Set(timestampKey, encodeMillis(now))
		c.store.Set(windowIDKey, uuid.NewString())

		c.current = sess
		c.timeout = timeout
		c.visible = true
		c.lastExtend = time.Time{}
		c.lastReason = ""

		c.log.Info("Session created",
			zap.String("subject", subjectID),
			zap.String("role", string(role)),
			zap.Duration("timeout", timeout))

		snapshot := *sess
		out = &snapshot
	})
	return out
}

// Logout terminates the session. The remote call is best-effort: its failure
// is logged and never prevents local teardown.
func (c *Controller) Logout(ctx context.Context) {
	if c.auth != nil {
		if err := c.auth.Logout(ctx); err != nil {
			c.log.Warn("Remote logout failed, clearing local session anyway", zap.Error(err))
		}
	}
	c.call(func() {
		c.terminate(ExpiredLogout)
	})
}

// RecordActivity extends the session on user activity. It only has effect
// while the page is in the foreground, and is applied at most once per
// throttle window (except the first event, which lands immediately).
func (c *Controller) RecordActivity() {
	c.post(func() {
		if c.current == nil || !c.visible {
			return
		}
		now := c.now()
		if !c.lastExtend.IsZero() && now.Sub(c.lastExtend) < c.cfg.ActivityThrottle {
			return
		}
		c.store.Set(timestampKey, encodeMillis(now))
		c.lastExtend = now
	})
}

// SetVisible records tab visibility. A restore re-validates the elapsed
// time: still inside the window counts as activity, past it terminates with
// the "away" reason.
func (c *Controller) SetVisible(visible bool) {
	c.call(func() {
		c.visible = visible
		if !visible || c.current == nil {
			return
		}
		now := c.now()
		if now.Sub(c.storedTimestamp()) > c.timeout {
			c.log.Info("Session expired while tab was hidden", zap.String("subject", c.current.SubjectID))
			c.terminate(ExpiredAway)
			return
		}
		c.store.Set(timestampKey, encodeMillis(now))
	})
}

// UnloadIntent handles a browser close/refresh attempt. A synchronous unload
// event cannot tell the two apart, so a transient marker is written and
// checked again after the grace window: a reload's Bootstrap clears the
// marker; if it is still there, no reload happened and the session is
// purged.
func (c *Controller) UnloadIntent() {
	c.call(func() {
		if c.current == nil {
			return
		}
		c.store.Set(refreshMarkerKey, "true")
		c.afterFunc(c.cfg.GraceWindow, func() {
			c.post(c.confirmClose)
		})
	})
}

func (c *Controller) confirmClose() {
	if _, stillThere := c.store.Get(refreshMarkerKey); !stillThere {
		// A reload consumed the marker; the session lives on.
		return
	}
	c.store.Delete(refreshMarkerKey)
	if c.current == nil {
		return
	}
	c.log.Info("Window close confirmed, purging session", zap.String("subject", c.current.SubjectID))
	c.terminate(ExpiredClosed)
}

// SetTimeout changes the inactivity window for the live session.
func (c *Controller) SetTimeout(d time.Duration) {
	c.call(func() {
		c.timeout = d
		c.store.Set(timeoutKey, strconv.Itoa(int(d/time.Second)))
	})
}

// Current returns a snapshot of the authenticated session, or nil.
func (c *Controller) Current() *Session {
	var out *Session
	c.call(func() {
		if c.current != nil {
			snapshot := *c.current
			out = &snapshot
		}
	})
	return out
}

// LastExpiry reports why the previous session ended, if one did.
func (c *Controller) LastExpiry() (ExpiryReason, bool) {
	var reason ExpiryReason
	c.call(func() { reason = c.lastReason })
	return reason, reason != ""
}

// CheckExpiryNow forces an expiry check outside the periodic schedule.
func (c *Controller) CheckExpiryNow() {
	c.call(c.checkExpiry)
}

func (c *Controller) checkExpiry() {
	if c.current == nil {
		return
	}
	if c.now().Sub(c.storedTimestamp()) > c.timeout {
		c.log.Info("Session expired due to inactivity", zap.String("subject", c.current.SubjectID))
		c.terminate(ExpiredInactivity)
		return
	}
	if c.status != nil {
		go c.checkRemoteStatus()
	}
}

// checkRemoteStatus asks the backend whether its session still stands. The
// check is best-effort: an unreachable backend changes nothing, only an
// explicit "invalid" terminates.
func (c *Controller) checkRemoteStatus() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	valid, err := c.status.SessionValid(ctx)
	if err != nil {
		c.log.Debug("Remote session status check failed", zap.Error(err))
		return
	}
	if valid {
		return
	}
	c.post(func() {
		if c.current == nil {
			return
		}
		c.log.Info("Backend reports session invalid", zap.String("subject", c.current.SubjectID))
		c.terminate(ExpiredInactivity)
	})
}

// terminate clears all session state and reports the reason. Runs on the
// controller goroutine.
func (c *Controller) terminate(reason ExpiryReason) {
	c.purge()
	c.lastReason = reason
	if c.onExpired != nil {
		c.onExpired(reason)
	}
}

func (c *Controller) purge() {
	c.store.Clear()
	c.current = nil
	c.lastExtend = time.Time{}
}

// storedTimestamp reads the shared last-activity field. Writes to it are
// last-write-wins; a slightly stale read at worst shifts expiry by a little
// and expiry only ever logs the user out.
func (c *Controller) storedTimestamp() time.Time {
	value, ok := c.store.Get(timestampKey)
	if !ok {
		return time.Time{}
	}
	ts, err := decodeMillis(value)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func (c *Controller) storedTimeout() time.Duration {
	value, ok := c.store.Get(timeoutKey)
	if !ok {
		return c.cfg.Timeout
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return c.cfg.Timeout
	}
	return time.Duration(seconds) * time.Second
}
