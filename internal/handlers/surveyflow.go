package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sathi/internal/survey"
	"sathi/internal/utils"
)

// SurveyHandler drives the respondent wizard: enter with credentials, load
// the questionnaire, answer questions, rate mental state, submit.
type SurveyHandler struct {
	log    *zap.Logger
	portal *Portal
}

func NewSurveyHandler(log *zap.Logger, portal *Portal) *SurveyHandler {
	return &SurveyHandler{log: log, portal: portal}
}

type enterRequest struct {
	ForceID  string `json:"force_id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Enter verifies respondent credentials and starts a fresh pass, replacing
// any prior one for this client.
func (h *SurveyHandler) Enter(c *gin.Context) {
	var req enterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "force_id and password are required"})
		return
	}
	if !utils.IsValidForceID(req.ForceID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Force ID must be exactly 9 digits"})
		return
	}

	verified, err := h.portal.backend.VerifyRespondent(c.Request.Context(), req.ForceID, req.Password)
	if err != nil {
		h.log.Error("Respondent verification failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Verification failed. Please try again."})
		return
	}
	if !verified {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	cf := h.portal.newFlow(c.GetString(ClientIDContextKey), survey.Credentials{
		ForceID:  req.ForceID,
		Password: req.Password,
	})
	c.JSON(http.StatusCreated, cf.flow.Snapshot())
}

// Load fetches the active questionnaire for the pass. Safe to call again
// after a failure; a repeat call after success changes nothing.
func (h *SurveyHandler) Load(c *gin.Context) {
	cf, ok := h.flow(c)
	if !ok {
		return
	}
	if err := cf.flow.Load(c.Request.Context()); err != nil {
		var loadErr *survey.LoadError
		if errors.As(err, &loadErr) {
			c.JSON(http.StatusBadGateway, gin.H{
				"error_type": "load",
				"error":      "Failed to load survey. Please try again.",
				"detail":     loadErr.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, cf.flow.Snapshot())
}

// State returns the wizard snapshot plus the merged answer text in flight.
func (h *SurveyHandler) State(c *gin.Context) {
	cf, ok := h.flow(c)
	if !ok {
		return
	}
	listening, lang := cf.engine.Directive()
	c.JSON(http.StatusOK, gin.H{
		"progress": cf.flow.Snapshot(),
		"speech": gin.H{
			"listening": listening,
			"language":  lang,
			"merged":    cf.capture.Merged(),
		},
	})
}

type answerRequest struct {
	Text string `json:"text"`
}

// Answer records the response for the current question. The text is the
// merged typed+dictated value the page holds; rejection keeps it untouched
// and shows the guidance inline.
func (h *SurveyHandler) Answer(c *gin.Context) {
	cf, ok := h.flow(c)
	if !ok {
		return
	}
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}

	text := req.Text
	if text == "" {
		text = cf.capture.Merged()
	}

	if err := cf.flow.SubmitAnswer(text); err != nil {
		h.renderFlowError(c, err)
		return
	}

	// Moving on: the prior question's dictation stream and buffers are done.
	cf.capture.Reset()
	c.JSON(http.StatusOK, cf.flow.Snapshot())
}

type mentalStateRequest struct {
	Rating int `json:"rating" binding:"required"`
}

func (h *SurveyHandler) MentalState(c *gin.Context) {
	cf, ok := h.flow(c)
	if !ok {
		return
	}
	var req mentalStateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rating is required"})
		return
	}
	if err := cf.flow.SubmitMentalState(req.Rating); err != nil {
		h.renderFlowError(c, err)
		return
	}
	c.JSON(http.StatusOK, cf.flow.Snapshot())
}

// Submit finalizes the pass. On failure the collected answers survive and
// the client may retry.
func (h *SurveyHandler) Submit(c *gin.Context) {
	cf, ok := h.flow(c)
	if !ok {
		return
	}
	if err := cf.flow.Finalize(c.Request.Context()); err != nil {
		h.renderFlowError(c, err)
		return
	}
	c.JSON(http.StatusOK, cf.flow.Snapshot())
}

// Back answers a popstate event. While the pass is in progress the
// navigation is refused and the page re-pushes its history entry.
func (h *SurveyHandler) Back(c *gin.Context) {
	cf, ok := h.flow(c)
	if !ok {
		return
	}
	if cf.flow.BlockBack() {
		c.JSON(http.StatusConflict, gin.H{
			"blocked": true,
			"warning": "You cannot go back while the survey is in progress. Please complete and submit the survey first.",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"blocked": false})
}

// UnloadGuard tells the page whether to arm the native leave confirmation.
func (h *SurveyHandler) UnloadGuard(c *gin.Context) {
	cf, ok := h.flow(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"guard": cf.flow.UnloadGuard()})
}

type languageRequest struct {
	Language string `json:"language" binding:"required,oneof=en hi"`
}

func (h *SurveyHandler) Language(c *gin.Context) {
	cf, ok := h.flow(c)
	if !ok {
		return
	}
	var req languageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "language must be en or hi"})
		return
	}
	cf.flow.SetLanguage(survey.Language(req.Language))
	c.JSON(http.StatusOK, cf.flow.Snapshot())
}

// Finish discards a completed pass once the success screen is dismissed.
func (h *SurveyHandler) Finish(c *gin.Context) {
	cf, ok := h.flow(c)
	if !ok {
		return
	}
	if cf.flow.State() != survey.StateSucceeded {
		c.JSON(http.StatusConflict, gin.H{"error": "Survey is still in progress"})
		return
	}
	h.portal.dropFlow(c.GetString(ClientIDContextKey))
	c.JSON(http.StatusOK, gin.H{"message": "Survey closed"})
}

func (h *SurveyHandler) flow(c *gin.Context) (*clientFlow, bool) {
	cf := h.portal.flowFor(c.GetString(ClientIDContextKey))
	if cf == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "No survey in progress"})
		return nil, false
	}
	return cf, true
}

func (h *SurveyHandler) renderFlowError(c *gin.Context, err error) {
	var validationErr *survey.ValidationError
	var stateErr *survey.StateError
	var submissionErr *survey.SubmissionError

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error_type": "validation",
			"error":      validationErr.Msg,
		})
	case errors.As(err, &stateErr):
		c.JSON(http.StatusConflict, gin.H{"error": stateErr.Error()})
	case errors.As(err, &submissionErr):
		c.JSON(http.StatusBadGateway, gin.H{
			"error_type": "submission",
			"error":      "Failed to submit survey. Please try again.",
			"retryable":  true,
		})
	default:
		h.log.Error("Survey operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}
