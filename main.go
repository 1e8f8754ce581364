package main

import (
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"sathi/internal/backend"
	"sathi/internal/config"
	"sathi/internal/handlers"
	logger "sathi/internal/logging"
	"sathi/internal/router"
	"sathi/internal/session"
	"sathi/internal/speech"
	"sathi/internal/survey"
)

func main() {
	// Initialize Logger
	log, err := logger.Init(".")
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer log.Sync()

	// Load configuration
	if err := config.Init(".", log); err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Rebuild the logger with the configured rotation policy.
	if lc := config.Conf.Logging; lc != (config.LoggingConfig{}) {
		rebuilt, err := logger.InitWithSettings(".", logger.FileSettings{
			MaxSize:    lc.MaxSize,
			MaxBackups: lc.MaxBackups,
			MaxAge:     lc.MaxAge,
			Compress:   lc.Compress,
		})
		if err != nil {
			log.Fatal("Failed to rebuild logger", zap.Error(err))
		}
		log = rebuilt
	}

	// Backend REST client, shared by all collaborators
	client := backend.NewClient(log, config.Conf.Backend.BaseURL, config.Conf.Backend.Timeout)

	// One lifecycle controller per browser, reaped when idle
	registry := session.NewRegistry(log, client, session.Config{
		Timeout:             config.Conf.Session.Timeout,
		ActivityThrottle:    config.Conf.Session.ActivityThrottle,
		ExpiryCheckInterval: config.Conf.Session.ExpiryCheckInterval,
		GraceWindow:         config.Conf.Session.GraceWindow,
	}, config.Conf.Session.SweepInterval)
	registry.Start()
	defer registry.Stop()

	// Questions come from the backend by default; a local YAML file serves
	// standalone deployments.
	var source survey.Source = client
	if config.Conf.Survey.QuestionSource == "file" {
		source = survey.NewFileSource(config.Conf.Survey.QuestionFile)
	}

	portal := handlers.NewPortal(log, registry, client, source,
		survey.Config{
			MinWords:    config.Conf.Survey.MinWords,
			LoadTimeout: config.Conf.Survey.LoadTimeout,
		},
		speech.Config{
			MaxRestartAttempts: config.Conf.Speech.MaxRestartAttempts,
			RestartBackoff:     config.Conf.Speech.RestartBackoff,
		})

	// Setup router, passing the logger to it
	r := router.Setup(log, portal)

	// Stop controllers cleanly on SIGINT/SIGTERM
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		registry.Stop()
		log.Sync()
		os.Exit(0)
	}()

	// Start the Gin server
	port := ":" + config.Conf.Server.Port
	log.Info("Server listening on http://localhost" + port)
	if err := r.Run(port); err != nil {
		log.Fatal("Failed to run Gin server", zap.Error(err))
	}
}
