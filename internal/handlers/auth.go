package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"sathi/internal/backend"
	"sathi/internal/session"
	"sathi/internal/utils"
)

// AuthHandler owns portal login/logout for the admin surface. Credential
// verification happens at the backend; the gateway only keeps the lifecycle
// session.
type AuthHandler struct {
	log    *zap.Logger
	portal *Portal
}

func NewAuthHandler(log *zap.Logger, portal *Portal) *AuthHandler {
	return &AuthHandler{log: log, portal: portal}
}

type loginRequest struct {
	ForceID  string `json:"force_id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "force_id and password are required"})
		return
	}
	if !utils.IsValidForceID(req.ForceID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Force ID must be exactly 9 digits"})
		return
	}

	result, err := h.portal.backend.Login(c.Request.Context(), req.ForceID, req.Password)
	if err != nil {
		if apiErr, ok := err.(*backend.APIError); ok && apiErr.Status == http.StatusUnauthorized {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		h.log.Error("Backend login failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "Login failed. Please try again."})
		return
	}

	ctrl := h.portal.sessions.Get(c.GetString(ClientIDContextKey))
	sess := ctrl.Login(result.ForceID, mapRole(result.Role), result.SessionTimeoutSeconds)
	if sess == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": gin.H{
			"force_id": sess.SubjectID,
			"role":     sess.Role,
		},
		"session_timeout": result.SessionTimeoutSeconds,
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	ctrl := h.portal.sessions.Get(c.GetString(ClientIDContextKey))
	ctrl.Logout(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me reports the authenticated subject, or why there is none.
func (h *AuthHandler) Me(c *gin.Context) {
	ctrl := h.portal.sessions.Get(c.GetString(ClientIDContextKey))
	sess := ctrl.Current()
	if sess == nil {
		body := gin.H{"error": "Not authenticated"}
		if reason, ok := ctrl.LastExpiry(); ok {
			body["expired"] = string(reason)
		}
		c.JSON(http.StatusUnauthorized, body)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"force_id": sess.SubjectID,
		"role":     sess.Role,
	})
}

// The backend still says "soldier"; the gateway speaks "respondent".
func mapRole(role string) session.Role {
	if role == "admin" {
		return session.RoleAdmin
	}
	return session.RoleRespondent
}
