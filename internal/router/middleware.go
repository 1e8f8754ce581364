package router

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"sathi/internal/handlers"
)

// ClientIDMiddleware gives every browser a stable identifier, carried in the
// cookie session. The ID keys the server-side lifecycle controller and
// survey flow for that browser, so it must exist before any handler runs.
func ClientIDMiddleware(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)

		clientID, ok := session.Get(handlers.ClientIDContextKey).(string)
		if !ok || clientID == "" {
			clientID = uuid.NewString()
			session.Set(handlers.ClientIDContextKey, clientID)
			if err := session.Save(); err != nil {
				log.Error("Failed to persist client ID", zap.Error(err))
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
		}

		c.Set(handlers.ClientIDContextKey, clientID)
		c.Next()
	}
}

// SessionRequired rejects requests from clients whose lifecycle controller
// holds no live session.
func SessionRequired(portal *handlers.Portal) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctrl := portal.Controller(c.GetString(handlers.ClientIDContextKey))
		if ctrl.Current() == nil {
			body := gin.H{"error": "Not authenticated"}
			if reason, ok := ctrl.LastExpiry(); ok {
				body["expired"] = string(reason)
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, body)
			return
		}
		c.Next()
	}
}
