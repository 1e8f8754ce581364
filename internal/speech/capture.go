package speech

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Engine is the capability surface of a continuous speech recognizer. The
// real engine lives in the browser; the adapter relays its lifecycle events
// into HandleResult / HandleError / HandleEnd on the Capture.
type Engine interface {
	Start(languageTag string) error
	Stop()
}

// ErrorKind classifies recognizer errors the way the browser reports them.
type ErrorKind string

const (
	ErrNoSpeech          ErrorKind = "no-speech"
	ErrAudioCapture      ErrorKind = "audio-capture"
	ErrNetwork           ErrorKind = "network"
	ErrNotAllowed        ErrorKind = "not-allowed"
	ErrServiceNotAllowed ErrorKind = "service-not-allowed"
)

// Transient says whether the stream is expected to recover on its own via
// the restart-on-end loop.
func (k ErrorKind) Transient() bool {
	switch k {
	case ErrNotAllowed, ErrServiceNotAllowed:
		return false
	}
	return true
}

// FatalError is surfaced when capture cannot continue. It blocks until the
// user acknowledges and re-toggles recording.
type FatalError struct {
	Kind   ErrorKind
	Reason string
}

func (e *FatalError) Error() string {
	if e.Kind != "" {
		return fmt.Sprintf("speech capture failed (%s)", e.Kind)
	}
	return fmt.Sprintf("speech capture failed: %s", e.Reason)
}

// Config holds the restart policy knobs.
type Config struct {
	MaxRestartAttempts int
	RestartBackoff     time.Duration
}

// Capture runs one dictation stream per question: it accumulates finalized
// transcript chunks, merges them with independently typed text, and keeps
// the stream alive across the engine's unilateral end-of-stream events.
type Capture struct {
	log    *zap.Logger
	engine Engine
	cfg    Config

	mu         sync.Mutex
	active     bool
	lang       string
	finalText  string
	interim    string
	manualText string
	onFatal    func(*FatalError)

	// sleep is swapped out in tests.
	sleep func(time.Duration)
}

func NewCapture(log *zap.Logger, engine Engine, cfg Config) *Capture {
	if cfg.MaxRestartAttempts <= 0 {
		cfg.MaxRestartAttempts = 3
	}
	if cfg.RestartBackoff <= 0 {
		cfg.RestartBackoff = 50 * time.Millisecond
	}
	return &Capture{
		log:    log,
		engine: engine,
		cfg:    cfg,
		sleep:  time.Sleep,
	}
}

// OnFatal registers the handler for blocking capture errors.
func (c *Capture) OnFatal(f func(*FatalError)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onFatal = f
}

// Start begins (or resumes) a continuous stream. Prior dictation for the
// current question is kept: the transcript buffer is only cleared by Reset.
// If a stream is already running it is stopped first, so at most one stream
// is ever active.
func (c *Capture) Start(languageTag string) error {
	c.mu.Lock()
	if c.active {
		c.active = false
		c.mu.Unlock()
		c.engine.Stop()
		c.mu.Lock()
	}
	c.lang = languageTag
	c.interim = ""
	c.mu.Unlock()

	if err := c.engine.Start(languageTag); err != nil {
		return &FatalError{Reason: err.Error()}
	}

	c.mu.Lock()
	c.active = true
	c.mu.Unlock()
	return nil
}

// Stop disables the restart-on-end behavior first, then terminates the
// stream. The ordering matters: an end event racing with the stop must not
// bring the stream back.
func (c *Capture) Stop() {
	c.mu.Lock()
	wasActive := c.active
	c.active = false
	c.interim = ""
	c.mu.Unlock()

	if wasActive {
		c.engine.Stop()
	}
}

// Reset stops any running stream and clears all captured text. Used when
// switching questions.
func (c *Capture) Reset() {
	c.Stop()
	c.mu.Lock()
	c.finalText = ""
	c.interim = ""
	c.manualText = ""
	c.mu.Unlock()
}

// Active reports whether the recording toggle is on.
func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// SetManual replaces the typed portion of the answer.
func (c *Capture) SetManual(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manualText = text
}

// HandleResult folds a recognition event into the transcript: finalized
// chunks accumulate, the interim chunk replaces the previous one.
func (c *Capture) HandleResult(finalChunks []string, interimChunk string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return
	}
	for _, chunk := range finalChunks {
		if chunk == "" {
			continue
		}
		if c.finalText != "" {
			c.finalText += " "
		}
		c.finalText += strings.TrimSpace(chunk)
	}
	c.interim = strings.TrimSpace(interimChunk)
}

// HandleError classifies a recognizer error. Transient kinds are ignored;
// the end-of-stream handler restarts the stream. Fatal kinds stop capture
// and surface a blocking error.
func (c *Capture) HandleError(kind ErrorKind) {
	if kind.Transient() {
		c.log.Debug("Transient speech error, stream will restart", zap.String("kind", string(kind)))
		return
	}

	c.mu.Lock()
	c.active = false
	fatal := c.onFatal
	c.mu.Unlock()

	c.engine.Stop()
	c.log.Warn("Fatal speech error, capture disabled", zap.String("kind", string(kind)))
	if fatal != nil {
		fatal(&FatalError{Kind: kind})
	}
}

// HandleEnd restarts the stream when the engine ends it on its own (silence
// does this) while the toggle is still on. Restart failures are retried with
// a short increasing backoff before giving up.
func (c *Capture) HandleEnd() {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	lang := c.lang
	c.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRestartAttempts; attempt++ {
		if !c.Active() {
			// Stopped while we were retrying.
			return
		}
		if lastErr = c.engine.Start(lang); lastErr == nil {
			// A Stop may have landed between the check and the restart;
			// the restarted stream must not outlive the toggle.
			c.mu.Lock()
			stillActive := c.active
			c.mu.Unlock()
			if !stillActive {
				c.engine.Stop()
				return
			}
			c.log.Debug("Speech stream restarted", zap.Int("attempt", attempt))
			return
		}
		c.log.Debug("Speech restart failed",
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
		c.sleep(c.cfg.RestartBackoff * time.Duration(attempt))
	}

	c.mu.Lock()
	c.active = false
	fatal := c.onFatal
	c.mu.Unlock()

	c.log.Warn("Speech stream could not be restarted", zap.Error(lastErr))
	if fatal != nil {
		fatal(&FatalError{Reason: "recognition stopped and could not be restarted"})
	}
}

// Voice returns the dictated text so far, finalized chunks plus the current
// interim chunk.
func (c *Capture) Voice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.voiceLocked()
}

func (c *Capture) voiceLocked() string {
	if c.finalText == "" {
		return c.interim
	}
	if c.interim == "" {
		return c.finalText
	}
	return c.finalText + " " + c.interim
}

// Merged combines typed and dictated text. Both sources survive edits to the
// other: when both are present they are joined with a single space, typed
// text first.
func (c *Capture) Merged() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	voice := c.voiceLocked()
	switch {
	case c.manualText == "":
		return voice
	case voice == "":
		return c.manualText
	default:
		return c.manualText + " " + voice
	}
}
