package handlers

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"sathi/internal/backend"
	"sathi/internal/session"
	"sathi/internal/speech"
	"sathi/internal/survey"
)

// ClientIDContextKey is where the router middleware stores the per-browser
// client identifier.
const ClientIDContextKey = "client_id"

// Backend is the full collaborator surface the handlers consume. The
// concrete implementation is backend.Client; tests substitute fakes.
type Backend interface {
	session.RemoteAuth
	survey.Source
	survey.Translator
	survey.Submitter
	survey.Monitor
	Login(ctx context.Context, forceID, password string) (*backend.LoginResult, error)
	VerifyRespondent(ctx context.Context, forceID, password string) (bool, error)
}

// Portal holds the per-client state machines behind the JSON API: one
// session lifecycle controller (via the registry) and at most one survey
// flow with its speech capture.
type Portal struct {
	log      *zap.Logger
	sessions *session.Registry
	backend  Backend

	surveyCfg survey.Config
	speechCfg speech.Config
	source    survey.Source

	mu    sync.Mutex
	flows map[string]*clientFlow
}

// clientFlow is everything one respondent's survey pass owns.
type clientFlow struct {
	flow    *survey.Flow
	capture *speech.Capture
	engine  *speech.RemoteEngine

	mu    sync.Mutex
	fatal *speech.FatalError
}

func (cf *clientFlow) setFatal(err *speech.FatalError) {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	cf.fatal = err
}

func (cf *clientFlow) currentFatal() *speech.FatalError {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	return cf.fatal
}

func (cf *clientFlow) clearFatal() {
	cf.mu.Lock()
	defer cf.mu.Unlock()
	cf.fatal = nil
}

func NewPortal(log *zap.Logger, sessions *session.Registry, b Backend, source survey.Source, surveyCfg survey.Config, speechCfg speech.Config) *Portal {
	return &Portal{
		log:       log,
		sessions:  sessions,
		backend:   b,
		source:    source,
		surveyCfg: surveyCfg,
		speechCfg: speechCfg,
		flows:     make(map[string]*clientFlow),
	}
}

// Controller returns the lifecycle controller for a client. Router
// middleware uses it to gate session-scoped routes.
func (p *Portal) Controller(clientID string) *session.Controller {
	return p.sessions.Get(clientID)
}

// flowFor returns the live survey pass for a client, or nil.
func (p *Portal) flowFor(clientID string) *clientFlow {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flows[clientID]
}

// newFlow replaces any existing pass for the client. The old pass, if any,
// is abandoned so its monitoring session gets closed.
func (p *Portal) newFlow(clientID string, creds survey.Credentials) *clientFlow {
	log := p.log.With(zap.String("client", clientID))

	engine := speech.NewRemoteEngine()
	cf := &clientFlow{
		flow:    survey.NewFlow(log, p.source, p.backend, p.backend, p.backend, creds, p.surveyCfg),
		capture: speech.NewCapture(log, engine, p.speechCfg),
		engine:  engine,
	}
	cf.capture.OnFatal(cf.setFatal)

	p.mu.Lock()
	old := p.flows[clientID]
	p.flows[clientID] = cf
	p.mu.Unlock()

	if old != nil {
		old.capture.Stop()
		old.flow.Abandon()
	}
	return cf
}

// dropFlow discards a finished pass.
func (p *Portal) dropFlow(clientID string) {
	p.mu.Lock()
	cf := p.flows[clientID]
	delete(p.flows, clientID)
	p.mu.Unlock()

	if cf != nil {
		cf.capture.Stop()
		cf.flow.Abandon()
	}
}
