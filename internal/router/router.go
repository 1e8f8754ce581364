package router

import (
	"net/http"
	"time"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
	"go.uber.org/zap"

	"sathi/internal/config"
	"sathi/internal/handlers"
)

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func errorHandler(c *gin.Context, info ratelimit.Info) {
	c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests. Try again later."})
}

func Setup(log *zap.Logger, portal *handlers.Portal) *gin.Engine {
	// Set up a new Gin router, add recovery middleware and request logging.
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))

	store := cookie.NewStore([]byte(config.Conf.Server.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   false, // Set to true in production
		SameSite: http.SameSiteLaxMode,
		MaxAge:   86400 * 7,
	})
	router.Use(sessions.Sessions("sathi_session", store))

	// --- Now that sessions are initialized, other middleware can use them ---
	router.Use(ClientIDMiddleware(log))
	router.Use(CSRFProtection())

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
	})
	router.Use(func(c *gin.Context) {
		err := secureMiddleware.Process(c.Writer, c.Request)
		if err != nil {
			c.Abort()
			return
		}
	})

	// Handlers and routes
	authHandler := handlers.NewAuthHandler(log, portal)
	sessionHandler := handlers.NewSessionHandler(log, portal)
	surveyHandler := handlers.NewSurveyHandler(log, portal)
	speechHandler := handlers.NewSpeechHandler(log, portal)

	rateLimitStore := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Minute,
		Limit: 5,
	})
	limiter := ratelimit.RateLimiter(rateLimitStore, &ratelimit.Options{
		ErrorHandler: errorHandler,
		KeyFunc:      keyFunc,
	})

	portalRoutes := router.Group("/portal")
	{
		portalRoutes.GET("/bootstrap", sessionHandler.Bootstrap)
		portalRoutes.POST("/login", limiter, authHandler.Login)
		portalRoutes.POST("/logout", authHandler.Logout)
		portalRoutes.GET("/me", authHandler.Me)
	}

	sessionRoutes := router.Group("/session")
	sessionRoutes.Use(SessionRequired(portal))
	{
		sessionRoutes.POST("/activity", sessionHandler.Activity)
		sessionRoutes.POST("/visibility", sessionHandler.Visibility)
		sessionRoutes.POST("/unload", sessionHandler.Unload)
		sessionRoutes.POST("/timeout", sessionHandler.Timeout)
	}

	surveyRoutes := router.Group("/survey")
	{
		surveyRoutes.POST("/enter", limiter, surveyHandler.Enter)
		surveyRoutes.POST("/load", surveyHandler.Load)
		surveyRoutes.GET("/state", surveyHandler.State)
		surveyRoutes.POST("/answer", surveyHandler.Answer)
		surveyRoutes.POST("/mental-state", surveyHandler.MentalState)
		surveyRoutes.POST("/submit", surveyHandler.Submit)
		surveyRoutes.POST("/back", surveyHandler.Back)
		surveyRoutes.GET("/unload-guard", surveyHandler.UnloadGuard)
		surveyRoutes.POST("/language", surveyHandler.Language)
		surveyRoutes.POST("/finish", surveyHandler.Finish)
	}

	speechRoutes := router.Group("/speech")
	{
		speechRoutes.POST("/start", speechHandler.Start)
		speechRoutes.POST("/stop", speechHandler.Stop)
		speechRoutes.POST("/result", speechHandler.Result)
		speechRoutes.POST("/error", speechHandler.Error)
		speechRoutes.POST("/end", speechHandler.End)
		speechRoutes.POST("/manual", speechHandler.Manual)
		speechRoutes.POST("/ack", speechHandler.Ack)
	}

	return router
}
