package speech

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeEngine records commands and fails Start according to a script. The
// onStart hook runs outside the engine lock just before a start takes
// effect, so tests can interleave a racing call at that exact point.
type fakeEngine struct {
	mu        sync.Mutex
	starts    []string
	stops     int
	startErrs []error
	running   bool
	onStart   func(startCount int)
}

func (e *fakeEngine) Start(languageTag string) error {
	e.mu.Lock()
	n := len(e.starts) + 1
	hook := e.onStart
	e.mu.Unlock()
	if hook != nil {
		hook(n)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.starts = append(e.starts, languageTag)
	if len(e.startErrs) > 0 {
		err := e.startErrs[0]
		e.startErrs = e.startErrs[1:]
		return err
	}
	e.running = true
	return nil
}

func (e *fakeEngine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stops++
	e.running = false
}

func (e *fakeEngine) isRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

func (e *fakeEngine) startCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.starts)
}

func (e *fakeEngine) stopCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stops
}

func newTestCapture(engine *fakeEngine) *Capture {
	c := NewCapture(zap.NewNop(), engine, Config{MaxRestartAttempts: 3, RestartBackoff: time.Millisecond})
	c.sleep = func(time.Duration) {}
	return c
}

func TestMergeTypedAndDictated(t *testing.T) {
	c := newTestCapture(&fakeEngine{})
	require.NoError(t, c.Start("en-US"))

	c.SetManual("hello")
	c.HandleResult([]string{"world"}, "")

	assert.Equal(t, "hello world", c.Merged())
}

func TestMergeWithOnlyOneSource(t *testing.T) {
	c := newTestCapture(&fakeEngine{})
	require.NoError(t, c.Start("en-US"))

	c.SetManual("typed only")
	assert.Equal(t, "typed only", c.Merged())

	c.SetManual("")
	c.HandleResult([]string{"dictated", "only"}, "")
	assert.Equal(t, "dictated only", c.Merged())
}

func TestInterimReplacedFinalsAccumulate(t *testing.T) {
	c := newTestCapture(&fakeEngine{})
	require.NoError(t, c.Start("en-US"))

	c.HandleResult(nil, "hel")
	assert.Equal(t, "hel", c.Voice())

	c.HandleResult(nil, "hello")
	assert.Equal(t, "hello", c.Voice())

	c.HandleResult([]string{"hello"}, "wor")
	assert.Equal(t, "hello wor", c.Voice())

	c.HandleResult([]string{"world"}, "")
	assert.Equal(t, "hello world", c.Voice())
}

func TestRestartOnEnd(t *testing.T) {
	engine := &fakeEngine{}
	c := newTestCapture(engine)
	require.NoError(t, c.Start("hi-IN"))
	require.Equal(t, 1, engine.startCount())

	// Silence makes the recognizer end the stream on its own.
	c.HandleEnd()

	assert.True(t, c.Active())
	assert.Equal(t, 2, engine.startCount())
	engine.mu.Lock()
	assert.Equal(t, "hi-IN", engine.starts[1], "restart keeps the dictation language")
	engine.mu.Unlock()
}

func TestEndAfterStopDoesNotRestart(t *testing.T) {
	engine := &fakeEngine{}
	c := newTestCapture(engine)
	require.NoError(t, c.Start("en-US"))

	c.Stop()
	c.HandleEnd()

	assert.False(t, c.Active())
	assert.Equal(t, 1, engine.startCount(), "an end event after stop must not revive the stream")
}

func TestStopDuringRestartWins(t *testing.T) {
	engine := &fakeEngine{}
	c := newTestCapture(engine)
	require.NoError(t, c.Start("en-US"))

	// The stop toggle lands between the restart decision and the engine
	// start; the revived stream must be torn down again.
	engine.mu.Lock()
	engine.onStart = func(startCount int) {
		if startCount == 2 {
			c.Stop()
		}
	}
	engine.mu.Unlock()

	c.HandleEnd()

	assert.False(t, c.Active())
	assert.False(t, engine.isRunning(), "the engine must not be left listening after stop")
}

func TestRestartRetriesThenFatal(t *testing.T) {
	engine := &fakeEngine{startErrs: []error{
		errors.New("busy"), errors.New("busy"), errors.New("busy"),
	}}
	c := newTestCapture(engine)
	require.NoError(t, c.Start("en-US"))

	var fatal *FatalError
	c.OnFatal(func(err *FatalError) { fatal = err })

	c.HandleEnd()

	assert.False(t, c.Active())
	assert.Equal(t, 4, engine.startCount(), "initial start plus three restart attempts")
	require.NotNil(t, fatal)
}

func TestTransientErrorIsAbsorbed(t *testing.T) {
	engine := &fakeEngine{}
	c := newTestCapture(engine)
	require.NoError(t, c.Start("en-US"))

	var fatal *FatalError
	c.OnFatal(func(err *FatalError) { fatal = err })

	c.HandleError(ErrNoSpeech)
	c.HandleError(ErrNetwork)
	c.HandleError(ErrAudioCapture)

	assert.True(t, c.Active(), "transient errors leave the toggle on")
	assert.Nil(t, fatal)
}

func TestFatalErrorDisablesCapture(t *testing.T) {
	engine := &fakeEngine{}
	c := newTestCapture(engine)
	require.NoError(t, c.Start("en-US"))

	var fatal *FatalError
	c.OnFatal(func(err *FatalError) { fatal = err })

	c.HandleError(ErrNotAllowed)

	assert.False(t, c.Active())
	require.NotNil(t, fatal)
	assert.Equal(t, ErrNotAllowed, fatal.Kind)
	assert.Equal(t, 1, engine.stopCount())

	// The toggle stays off until the user turns it back on.
	c.HandleEnd()
	assert.Equal(t, 1, engine.startCount())
}

func TestRestartPreservesTranscript(t *testing.T) {
	engine := &fakeEngine{}
	c := newTestCapture(engine)
	require.NoError(t, c.Start("en-US"))

	c.HandleResult([]string{"first part"}, "")
	c.HandleEnd()
	c.HandleResult([]string{"second part"}, "")

	assert.Equal(t, "first part second part", c.Voice())
}

func TestStartAgainPreservesFinalsDropsInterim(t *testing.T) {
	engine := &fakeEngine{}
	c := newTestCapture(engine)
	require.NoError(t, c.Start("en-US"))

	c.HandleResult([]string{"kept"}, "dropped")
	require.NoError(t, c.Start("en-US"))

	assert.Equal(t, "kept", c.Voice())
}

func TestResetClearsEverything(t *testing.T) {
	engine := &fakeEngine{}
	c := newTestCapture(engine)
	require.NoError(t, c.Start("en-US"))

	c.SetManual("typed")
	c.HandleResult([]string{"spoken"}, "interim")
	c.Reset()

	assert.Equal(t, "", c.Merged())
	assert.False(t, c.Active())
}

func TestIgnoreResultsWhileStopped(t *testing.T) {
	engine := &fakeEngine{}
	c := newTestCapture(engine)
	require.NoError(t, c.Start("en-US"))
	c.Stop()

	c.HandleResult([]string{"late chunk"}, "")
	assert.Equal(t, "", c.Voice())
}
