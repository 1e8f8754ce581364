package survey

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"sathi/internal/utils"
)

// State is where the survey pass currently is. There is no persistent
// failed state: a failed submission reverts to the state that was in
// progress, with everything collected so far preserved.
type State string

const (
	StateLoading     State = "loading"
	StateActive      State = "active"
	StateMentalState State = "mental_state"
	StateSubmitting  State = "submitting"
	StateSucceeded   State = "succeeded"
)

// Language selects which rendering of the questions is shown and which
// language the dictation stream listens in.
type Language string

const (
	LangEnglish Language = "en"
	LangHindi   Language = "hi"
)

// SpeechTag is the BCP 47 tag handed to the recognizer.
func (l Language) SpeechTag() string {
	if l == LangHindi {
		return "hi-IN"
	}
	return "en-US"
}

// Credentials identify the respondent for submission. The gateway never
// stores them beyond the lifetime of the flow.
type Credentials struct {
	ForceID  string
	Password string
}

// Answer is one recorded response. Answers are kept in question order;
// exactly one is appended per forward transition.
type Answer struct {
	QuestionID int    `json:"question_id"`
	Text       string `json:"answer_text"`
}

// Submission is the full payload handed to the submission service.
type Submission struct {
	QuestionnaireID int
	Responses       []Answer
	Credentials     Credentials
	MentalState     *MentalStateOption
}

// Translator converts a secondary-language answer to the primary language.
type Translator interface {
	ToEnglish(ctx context.Context, text string) (string, error)
}

// QuestionTranslator is an optional upgrade of Translator: authored
// question text can be rendered in Hindi when the questionnaire ships
// without a secondary rendering.
type QuestionTranslator interface {
	ToHindi(ctx context.Context, text string) (string, error)
}

// Submitter delivers the completed survey. It returns the backend's
// monitoring session identifier.
type Submitter interface {
	Submit(ctx context.Context, sub Submission) (sessionID int, err error)
}

// Monitor controls background webcam emotion monitoring. Both calls are
// best-effort from the flow's point of view.
type Monitor interface {
	StartMonitoring(ctx context.Context, forceID string) (webcamEnabled bool, err error)
	EndMonitoring(ctx context.Context, forceID string, sessionID int) error
}

// Config holds the flow's tunables.
type Config struct {
	MinWords    int
	LoadTimeout time.Duration
}

// Flow drives one respondent through the ordered question sequence, the
// mental-state rating, and submission, while refusing to lose collected
// answers to navigation accidents.
type Flow struct {
	log        *zap.Logger
	source     Source
	translator Translator
	submitter  Submitter
	monitor    Monitor
	cfg        Config

	mu              sync.Mutex
	state           State
	loaded          bool
	submitInFlight  bool
	loadStep        string
	loadPercent     int
	creds           Credentials
	lang            Language
	questionnaireID int
	questions       []Question
	idx             int
	answers         []Answer
	rating          int
	monitoring      bool
	backendSession  int
}

func NewFlow(log *zap.Logger, source Source, translator Translator, submitter Submitter, monitor Monitor, creds Credentials, cfg Config) *Flow {
	if cfg.MinWords <= 0 {
		cfg.MinWords = 5
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 30 * time.Second
	}
	return &Flow{
		log:        log,
		source:     source,
		translator: translator,
		submitter:  submitter,
		monitor:    monitor,
		creds:      creds,
		cfg:        cfg,
		state:      StateLoading,
		lang:       LangEnglish,
	}
}

// Load fetches the active question set, once. Re-entry after a successful
// load is a no-op so an incidental re-trigger cannot reset progress; only a
// failed load re-arms it.
func (f *Flow) Load(ctx context.Context) error {
	f.mu.Lock()
	if f.loaded {
		f.mu.Unlock()
		return nil
	}
	f.loaded = true
	f.loadStep = "fetching questions"
	f.loadPercent = 25
	f.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, f.cfg.LoadTimeout)
	defer cancel()

	qn, err := f.source.ActiveQuestionnaire(ctx)

	if err == nil && qn != nil {
		f.translateQuestions(ctx, qn.Questions)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err != nil {
		f.loaded = false
		f.loadStep = "failed"
		f.loadPercent = 0
		return &LoadError{Err: err}
	}
	if qn == nil {
		f.loaded = false
		f.loadStep = "failed"
		f.loadPercent = 0
		return &LoadError{Err: errors.New("no active questionnaire found")}
	}
	if len(qn.Questions) == 0 {
		f.loaded = false
		f.loadStep = "failed"
		f.loadPercent = 0
		return &LoadError{Err: errors.New("no questions found in the questionnaire")}
	}

	f.questionnaireID = qn.ID
	f.questions = qn.Questions
	f.idx = 0
	f.state = StateActive
	f.loadStep = "ready"
	f.loadPercent = 100

	f.log.Info("Survey loaded",
		zap.Int("questionnaire_id", qn.ID),
		zap.Int("questions", len(qn.Questions)))

	// Emotion monitoring starts in the background; its failure never blocks
	// the survey.
	go f.startMonitoring()

	return nil
}

// translateQuestions fills in missing Hindi renderings, best-effort: a
// failed translation leaves that question English-only.
func (f *Flow) translateQuestions(ctx context.Context, questions []Question) {
	qt, ok := f.translator.(QuestionTranslator)
	if !ok {
		return
	}
	for i := range questions {
		if questions[i].TextHindi != "" || questions[i].Text == "" {
			continue
		}
		hindi, err := qt.ToHindi(ctx, questions[i].Text)
		if err != nil {
			f.log.Warn("Question translation failed, showing English only",
				zap.Int("question_id", questions[i].ID),
				zap.Error(err))
			continue
		}
		questions[i].TextHindi = hindi
	}
}

func (f *Flow) startMonitoring() {
	if f.monitor == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	enabled, err := f.monitor.StartMonitoring(ctx, f.creds.ForceID)
	if err != nil {
		f.log.Warn("Background emotion monitoring failed, survey continues", zap.Error(err))
		return
	}
	if !enabled {
		f.log.Info("Webcam disabled by administrator, continuing without monitoring")
		return
	}

	f.mu.Lock()
	f.monitoring = true
	f.mu.Unlock()
	f.log.Info("Background emotion monitoring started", zap.String("force_id", f.creds.ForceID))
}

// SubmitAnswer validates and records the answer for the current question,
// then advances. An under-length answer is rejected without discarding
// anything the respondent typed or dictated. After the last question the
// flow moves to the mental-state rating instead of a next question.
func (f *Flow) SubmitAnswer(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateActive {
		return &StateError{Op: "submit answer", State: f.state}
	}

	if utils.CountWords(text) < f.cfg.MinWords {
		return &ValidationError{Msg: fmt.Sprintf("Please answer in at least %d words", f.cfg.MinWords)}
	}

	f.answers = append(f.answers, Answer{
		QuestionID: f.questions[f.idx].ID,
		Text:       strings.TrimSpace(text),
	})

	if f.idx == len(f.questions)-1 {
		f.state = StateMentalState
		f.log.Debug("Last question answered, moving to mental-state rating")
	} else {
		f.idx++
	}
	return nil
}

// SubmitMentalState records the 1..7 self-report and moves to submission.
func (f *Flow) SubmitMentalState(rating int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateMentalState {
		return &StateError{Op: "submit mental state", State: f.state}
	}
	if rating < 1 || rating > 7 {
		return &ValidationError{Msg: "Mental state rating must be between 1 and 7"}
	}
	f.rating = rating
	f.state = StateSubmitting
	return nil
}

// Finalize translates, submits, and completes the pass. On failure the flow
// reverts to the mental-state step with every collected answer intact, and
// Finalize may be called again after SubmitMentalState replays the rating.
func (f *Flow) Finalize(ctx context.Context) error {
	f.mu.Lock()
	// One submission at a time: the mutex is released during the network
	// call, so a second Finalize racing in would otherwise pass the state
	// check and deliver the survey twice.
	if f.submitInFlight {
		f.mu.Unlock()
		return &StateError{Op: "finalize", State: StateSubmitting}
	}
	// A failed submission leaves the flow back on the rating step with the
	// rating intact, so a retry is allowed to resume from there.
	if f.state == StateMentalState && f.rating != 0 {
		f.state = StateSubmitting
	}
	if f.state != StateSubmitting {
		f.mu.Unlock()
		return &StateError{Op: "finalize", State: f.state}
	}
	f.submitInFlight = true
	lang := f.lang
	responses := make([]Answer, len(f.answers))
	copy(responses, f.answers)
	sub := Submission{
		QuestionnaireID: f.questionnaireID,
		Credentials:     f.creds,
		MentalState:     MentalStateOptionFor(f.rating),
	}
	f.mu.Unlock()

	// Per-answer translation is best-effort: a failed translation falls back
	// to the original text rather than aborting the submission.
	if lang == LangHindi && f.translator != nil {
		for i := range responses {
			if responses[i].Text == "" {
				continue
			}
			english, err := f.translator.ToEnglish(ctx, responses[i].Text)
			if err != nil {
				f.log.Warn("Answer translation failed, submitting original text",
					zap.Int("question_id", responses[i].QuestionID),
					zap.Error(err))
				continue
			}
			responses[i].Text = english
		}
	}
	sub.Responses = responses

	sessionID, err := f.submitter.Submit(ctx, sub)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitInFlight = false

	if err != nil {
		f.state = StateMentalState
		f.log.Error("Survey submission failed", zap.Error(err))
		return &SubmissionError{Err: err}
	}

	f.backendSession = sessionID
	f.state = StateSucceeded
	f.log.Info("Survey submitted",
		zap.Int("questionnaire_id", f.questionnaireID),
		zap.Int("responses", len(responses)),
		zap.Int("session_id", sessionID))

	go f.stopMonitoring(sessionID)
	return nil
}

// stopMonitoring is fire-and-forget; it must never block navigation.
func (f *Flow) stopMonitoring(sessionID int) {
	if f.monitor == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := f.monitor.EndMonitoring(ctx, f.creds.ForceID, sessionID); err != nil {
		f.log.Warn("Failed to stop emotion monitoring", zap.Error(err))
	}
	f.mu.Lock()
	f.monitoring = false
	f.mu.Unlock()
}

// Abandon cleans up after the flow instance is discarded. Only a succeeded
// flow gives up its history protection, so this is also where a lingering
// monitoring session gets closed.
func (f *Flow) Abandon() {
	f.mu.Lock()
	monitoring := f.monitoring
	sessionID := f.backendSession
	f.mu.Unlock()
	if monitoring {
		go f.stopMonitoring(sessionID)
	}
}

// BlockBack reports whether a browser back action must be swallowed. While
// any non-terminal state is in progress the answer is yes: a partial survey
// may only end by completion.
func (f *Flow) BlockBack() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state != StateSucceeded
}

// UnloadGuard reports whether close/refresh should trigger the native
// confirmation prompt.
func (f *Flow) UnloadGuard() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state != StateSucceeded
}

// SetLanguage switches the displayed language; it also determines the
// translation behavior at submission and the dictation language tag.
func (f *Flow) SetLanguage(lang Language) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if lang == LangHindi {
		f.lang = LangHindi
	} else {
		f.lang = LangEnglish
	}
}

// Language returns the current display language.
func (f *Flow) Language() Language {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lang
}

// Progress is a read-only snapshot for rendering.
type Progress struct {
	State           State     `json:"state"`
	QuestionnaireID int       `json:"questionnaire_id"`
	QuestionIndex   int       `json:"question_index"`
	TotalQuestions  int       `json:"total_questions"`
	Question        *Question `json:"question,omitempty"`
	Answered        int       `json:"answered"`
	Rating          int       `json:"rating,omitempty"`
	Language        Language  `json:"language"`
	SessionID       int       `json:"session_id,omitempty"`
	LoadStep        string    `json:"load_step,omitempty"`
	LoadPercent     int       `json:"load_percent"`
}

// Snapshot returns the current flow state for the presentation layer.
func (f *Flow) Snapshot() Progress {
	f.mu.Lock()
	defer f.mu.Unlock()

	p := Progress{
		State:           f.state,
		QuestionnaireID: f.questionnaireID,
		QuestionIndex:   f.idx,
		TotalQuestions:  len(f.questions),
		Answered:        len(f.answers),
		Rating:          f.rating,
		Language:        f.lang,
		SessionID:       f.backendSession,
		LoadStep:        f.loadStep,
		LoadPercent:     f.loadPercent,
	}
	if f.state == StateActive && f.idx < len(f.questions) {
		q := f.questions[f.idx]
		p.Question = &q
	}
	return p
}

// Answers returns a copy of everything recorded so far.
func (f *Flow) Answers() []Answer {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Answer, len(f.answers))
	copy(out, f.answers)
	return out
}

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}
