package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sathi/internal/speech"
)

// SpeechHandler relays recognizer events between the browser-side engine
// and the capture controller. Every reply carries the engine directive
// (should the browser be listening, and in what language) plus the merged
// answer text, so the page can stay a dumb relay.
type SpeechHandler struct {
	log    *zap.Logger
	portal *Portal
}

func NewSpeechHandler(log *zap.Logger, portal *Portal) *SpeechHandler {
	return &SpeechHandler{log: log, portal: portal}
}

// Start toggles recording on for the current question, dictating in the
// flow's current language. Previously captured voice text for the question
// is kept.
func (h *SpeechHandler) Start(c *gin.Context) {
	cf, ok := h.flow(c)
	if !ok {
		return
	}
	cf.clearFatal()
	if err := cf.capture.Start(cf.flow.Language().SpeechTag()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error_type": "speech",
			"error":      "Failed to start speech recognition. Please try again.",
		})
		return
	}
	h.reply(c, cf)
}

// Stop toggles recording off. Restart-on-end is disabled before the stream
// terminates so a racing end event cannot bring it back.
func (h *SpeechHandler) Stop(c *gin.Context) {
	cf, ok := h.flow(c)
	if !ok {
		return
	}
	cf.capture.Stop()
	h.reply(c, cf)
}

type resultRequest struct {
	Finals  []string `json:"finals"`
	Interim string   `json:"interim"`
}

// Result ingests a recognition event: finalized chunks accumulate, the
// interim chunk replaces the previous one.
func (h *SpeechHandler) Result(c *gin.Context) {
	cf, ok := h.flow(c)
	if !ok {
		return
	}
	var req resultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed speech result"})
		return
	}
	cf.capture.HandleResult(req.Finals, req.Interim)
	h.reply(c, cf)
}

type errorRequest struct {
	Kind string `json:"kind" binding:"required"`
}

// Error ingests a recognizer error. Transient kinds are absorbed; fatal
// kinds disable capture until acknowledged and re-toggled.
func (h *SpeechHandler) Error(c *gin.Context) {
	cf, ok := h.flow(c)
	if !ok {
		return
	}
	var req errorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "kind is required"})
		return
	}
	cf.capture.HandleError(speech.ErrorKind(req.Kind))
	h.reply(c, cf)
}

// End ingests the recognizer's end-of-stream event. The capture restarts
// the stream itself while recording is still toggled on; the reply's
// directive tells the browser whether listening should continue.
func (h *SpeechHandler) End(c *gin.Context) {
	cf, ok := h.flow(c)
	if !ok {
		return
	}
	cf.capture.HandleEnd()
	h.reply(c, cf)
}

type manualRequest struct {
	Text string `json:"text"`
}

// Manual updates the typed portion of the answer.
func (h *SpeechHandler) Manual(c *gin.Context) {
	cf, ok := h.flow(c)
	if !ok {
		return
	}
	var req manualRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed text"})
		return
	}
	cf.capture.SetManual(req.Text)
	h.reply(c, cf)
}

// Ack clears a surfaced fatal error after the user dismissed it.
func (h *SpeechHandler) Ack(c *gin.Context) {
	cf, ok := h.flow(c)
	if !ok {
		return
	}
	cf.clearFatal()
	h.reply(c, cf)
}

func (h *SpeechHandler) reply(c *gin.Context, cf *clientFlow) {
	listening, lang := cf.engine.Directive()
	body := gin.H{
		"listening": listening,
		"language":  lang,
		"merged":    cf.capture.Merged(),
		"voice":     cf.capture.Voice(),
	}
	if fatal := cf.currentFatal(); fatal != nil {
		body["fatal"] = fatal.Error()
		if fatal.Kind == speech.ErrNotAllowed || fatal.Kind == speech.ErrServiceNotAllowed {
			body["fatal_message"] = "Please allow microphone access to use voice input."
		} else {
			body["fatal_message"] = "Speech recognition stopped unexpectedly. Please try the voice button again."
		}
	}
	c.JSON(http.StatusOK, body)
}

func (h *SpeechHandler) flow(c *gin.Context) (*clientFlow, bool) {
	cf := h.portal.flowFor(c.GetString(ClientIDContextKey))
	if cf == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "No survey in progress"})
		return nil, false
	}
	return cf, true
}
