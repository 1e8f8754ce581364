package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// SessionHandler turns browser lifecycle events into lifecycle controller
// signals: page load, activity pings, visibility changes, unload beacons.
type SessionHandler struct {
	log    *zap.Logger
	portal *Portal
}

func NewSessionHandler(log *zap.Logger, portal *Portal) *SessionHandler {
	return &SessionHandler{log: log, portal: portal}
}

// Bootstrap runs on every page load. The controller works out whether this
// is a reload, an independent new window, or a cold start, and answers with
// the surviving session if there is one.
func (h *SessionHandler) Bootstrap(c *gin.Context) {
	ctrl := h.portal.sessions.Get(c.GetString(ClientIDContextKey))
	sess := ctrl.Bootstrap()
	if sess == nil {
		body := gin.H{"authenticated": false}
		if reason, ok := ctrl.LastExpiry(); ok {
			body["expired"] = string(reason)
		}
		c.JSON(http.StatusOK, body)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"authenticated": true,
		"user": gin.H{
			"force_id": sess.SubjectID,
			"role":     sess.Role,
		},
	})
}

// Activity is the throttled ping sent on pointer/keyboard/touch/scroll
// events. The controller applies its own throttle and foreground check, so
// this endpoint just forwards the signal.
func (h *SessionHandler) Activity(c *gin.Context) {
	ctrl := h.portal.sessions.Get(c.GetString(ClientIDContextKey))
	ctrl.RecordActivity()
	c.Status(http.StatusNoContent)
}

type visibilityRequest struct {
	Visible *bool `json:"visible" binding:"required"`
}

// Visibility reports tab foreground/background transitions. Returning to a
// tab past the timeout terminates the session with the "away" reason; the
// reply tells the page to leave.
func (h *SessionHandler) Visibility(c *gin.Context) {
	var req visibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "visible flag is required"})
		return
	}

	ctrl := h.portal.sessions.Get(c.GetString(ClientIDContextKey))
	ctrl.SetVisible(*req.Visible)

	if *req.Visible && ctrl.Current() == nil {
		if reason, ok := ctrl.LastExpiry(); ok {
			c.JSON(http.StatusUnauthorized, gin.H{"expired": string(reason)})
			return
		}
	}
	c.Status(http.StatusNoContent)
}

// Unload is the beforeunload beacon. The controller starts the grace-window
// check that tells a close apart from a refresh.
func (h *SessionHandler) Unload(c *gin.Context) {
	ctrl := h.portal.sessions.Get(c.GetString(ClientIDContextKey))
	ctrl.UnloadIntent()
	c.Status(http.StatusNoContent)
}

type timeoutRequest struct {
	Seconds int `json:"seconds" binding:"required,gt=0"`
}

// Timeout overrides the inactivity window for the current session.
func (h *SessionHandler) Timeout(c *gin.Context) {
	var req timeoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "seconds must be a positive integer"})
		return
	}
	ctrl := h.portal.sessions.Get(c.GetString(ClientIDContextKey))
	ctrl.SetTimeout(time.Duration(req.Seconds) * time.Second)
	h.log.Info("Session timeout overridden", zap.Int("seconds", req.Seconds))
	c.Status(http.StatusNoContent)
}
