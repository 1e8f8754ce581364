package session

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry tracks one lifecycle controller per connected browser, keyed by
// the client ID cookie. Controllers are created on demand and reaped once
// they have been anonymous and untouched for a while.
type Registry struct {
	log           *zap.Logger
	cfg           Config
	auth          RemoteAuth
	sweepInterval time.Duration

	mu      sync.Mutex
	entries map[string]*registryEntry

	stopOnce sync.Once
	stop     chan struct{}
}

type registryEntry struct {
	ctrl     *Controller
	lastSeen time.Time
}

func NewRegistry(log *zap.Logger, auth RemoteAuth, cfg Config, sweepInterval time.Duration) *Registry {
	return &Registry{
		log:           log,
		cfg:           cfg,
		auth:          auth,
		sweepInterval: sweepInterval,
		entries:       make(map[string]*registryEntry),
		stop:          make(chan struct{}),
	}
}

// Get returns the controller for a client, creating and starting it on
// first sight.
func (r *Registry) Get(clientID string) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[clientID]
	if !ok {
		ctrl := NewController(r.log.With(zap.String("client", clientID)), NewMemStore(), r.auth, r.cfg)
		ctrl.OnExpired(func(reason ExpiryReason) {
			r.log.Info("Session ended",
				zap.String("client", clientID),
				zap.String("reason", string(reason)))
		})
		ctrl.Start()
		entry = &registryEntry{ctrl: ctrl}
		r.entries[clientID] = entry
	}
	entry.lastSeen = time.Now()
	return entry.ctrl
}

// Start runs the reaper in a goroutine.
func (r *Registry) Start() {
	r.log.Info("Starting session registry sweeper...")
	go func() {
		ticker := time.NewTicker(r.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.sweep()
			case <-r.stop:
				return
			}
		}
	}()
}

// Stop terminates the sweeper and every live controller.
func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, entry := range r.entries {
		entry.ctrl.Stop()
		delete(r.entries, id)
	}
}

// sweep drops controllers that hold no session and have not been touched for
// a full timeout window. A live session keeps its controller alive so the
// periodic expiry check can still fire for it.
func (r *Registry) sweep() {
	cutoff := time.Now().Add(-(r.cfg.Timeout + r.sweepInterval))

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, entry := range r.entries {
		if entry.lastSeen.After(cutoff) {
			continue
		}
		if entry.ctrl.Current() != nil {
			continue
		}
		entry.ctrl.Stop()
		delete(r.entries, id)
		r.log.Debug("Reaped idle anonymous client", zap.String("client", id))
	}
}
