package speech

import "sync"

// RemoteEngine stands in for the recognizer that actually runs in the
// browser. Start and Stop only record the commanded state; the presentation
// layer polls Directive with every speech reply and drives the real engine
// accordingly, then reports results and lifecycle events back in.
type RemoteEngine struct {
	mu        sync.Mutex
	listening bool
	lang      string
}

func NewRemoteEngine() *RemoteEngine {
	return &RemoteEngine{}
}

func (e *RemoteEngine) Start(languageTag string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listening = true
	e.lang = languageTag
	return nil
}

func (e *RemoteEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listening = false
}

// Directive reports what the browser-side engine should currently be doing.
func (e *RemoteEngine) Directive() (listening bool, languageTag string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.listening, e.lang
}
