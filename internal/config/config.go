package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Conf holds the application configuration, making it accessible globally.
// The session timeout is still threaded explicitly into each lifecycle
// controller at construction; SetTimeout on the controller is the only way
// to change it for a live session.
var Conf *Config

// Config struct is the top-level configuration structure.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Backend BackendConfig `mapstructure:"backend"`
	Session SessionConfig `mapstructure:"session"`
	Survey  SurveyConfig  `mapstructure:"survey"`
	Speech  SpeechConfig  `mapstructure:"speech"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds gateway server settings.
type ServerConfig struct {
	Port          string `mapstructure:"port"`
	SessionSecret string `mapstructure:"session_secret"`
}

// BackendConfig points at the monitoring backend REST API.
type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SessionConfig holds session lifecycle settings.
type SessionConfig struct {
	Timeout             time.Duration `mapstructure:"timeout"`
	ActivityThrottle    time.Duration `mapstructure:"activity_throttle"`
	ExpiryCheckInterval time.Duration `mapstructure:"expiry_check_interval"`
	GraceWindow         time.Duration `mapstructure:"grace_window"`
	SweepInterval       time.Duration `mapstructure:"sweep_interval"`
}

// SurveyConfig holds survey flow settings.
type SurveyConfig struct {
	MinWords       int           `mapstructure:"min_words"`
	LoadTimeout    time.Duration `mapstructure:"load_timeout"`
	QuestionSource string        `mapstructure:"question_source"` // "api" or "file"
	QuestionFile   string        `mapstructure:"question_file"`
}

// SpeechConfig holds speech capture settings.
type SpeechConfig struct {
	MaxRestartAttempts int           `mapstructure:"max_restart_attempts"`
	RestartBackoff     time.Duration `mapstructure:"restart_backoff"`
}

// LoggingConfig holds settings for the logger.
type LoggingConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// setDefaults sets the default values for the configuration.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "5050")
	v.SetDefault("server.session_secret", "change-me-in-production")

	// Backend defaults
	v.SetDefault("backend.base_url", "http://localhost:5000/api")
	v.SetDefault("backend.timeout", 15*time.Second)

	// Session defaults. The expiry check is a coarse poll; detection latency
	// up to one interval is accepted.
	v.SetDefault("session.timeout", 15*time.Minute)
	v.SetDefault("session.activity_throttle", 30*time.Second)
	v.SetDefault("session.expiry_check_interval", 2*time.Minute)
	v.SetDefault("session.grace_window", time.Second)
	v.SetDefault("session.sweep_interval", time.Minute)

	// Survey defaults
	v.SetDefault("survey.min_words", 5)
	v.SetDefault("survey.load_timeout", 30*time.Second)
	v.SetDefault("survey.question_source", "api")
	v.SetDefault("survey.question_file", "config/questions.yaml")

	// Speech defaults
	v.SetDefault("speech.max_restart_attempts", 3)
	v.SetDefault("speech.restart_backoff", 50*time.Millisecond)

	// Logging defaults
	v.SetDefault("logging.max_size", 10)   // 10 MB
	v.SetDefault("logging.max_backups", 3) // Keep 3 backups
	v.SetDefault("logging.max_age", 7)     // 7 days
	v.SetDefault("logging.compress", true) // Compress old logs
}

// Init initializes the configuration with Viper.
func Init(projectRoot string, log *zap.Logger) error {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// --- File Configuration ---
	v.AddConfigPath(filepath.Join(projectRoot, "config"))
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// --- Environment Variable Binding ---
	v.SetEnvPrefix("SATHI") // e.g., SATHI_SERVER_PORT
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read the initial configuration from the file.
	// It's okay if the file doesn't exist; defaults and env vars will be used.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Unmarshal the config into our global Conf variable
	if err := v.Unmarshal(&Conf); err != nil {
		return fmt.Errorf("unable to decode config into struct: %w", err)
	}

	// Set up a watch for configuration changes for hot-reloading
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		log.Info("Configuration file changed, reloading.", zap.String("file", e.Name))
		if err := v.Unmarshal(&Conf); err != nil {
			log.Error("Error reloading configuration", zap.Error(err))
		}
	})

	log.Info("Configuration loaded successfully")
	return nil
}
