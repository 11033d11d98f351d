package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	HTTPPort    int    `envconfig:"HTTP_PORT" default:"8080"`

	// Telegram
	TelegramToken string        `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	PollTimeout   int           `envconfig:"POLL_TIMEOUT_SECONDS" default:"25"`
	RemoteTimeout time.Duration `envconfig:"REMOTE_TIMEOUT" default:"10s"`

	// Store
	DBPath string `envconfig:"DB_PATH" default:"nightwatch.db"`

	// Scheduler
	TickInterval  time.Duration `envconfig:"TICK_INTERVAL" default:"60s"`
	DeleteSpacing time.Duration `envconfig:"DELETE_SPACING" default:"100ms"`

	// Defaults applied when a chat is first registered
	DefaultStartTime  string `envconfig:"DEFAULT_START_TIME" default:"23:00"`
	DefaultEndTime    string `envconfig:"DEFAULT_END_TIME" default:"05:00"`
	DefaultNotifyText string `envconfig:"DEFAULT_NOTIFY_TEXT" default:"🌙 Quiet hours are on. Messages sent now will be removed when the window ends."`

	// Management API
	MgmtListenAddr string `envconfig:"MGMT_LISTEN_ADDR" default:":8090"`
	MgmtAPIKey     string `envconfig:"MGMT_API_KEY"`
}

// Load reads configuration from environment variables and validates the
// window defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	for _, tod := range []string{c.DefaultStartTime, c.DefaultEndTime} {
		if _, err := time.Parse("15:04", tod); err != nil {
			return fmt.Errorf("invalid default window time %q: %w", tod, err)
		}
	}
	if c.DefaultStartTime == c.DefaultEndTime {
		return fmt.Errorf("default window start and end must differ (both %q)", c.DefaultStartTime)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("tick interval must be positive, got %s", c.TickInterval)
	}
	return nil
}
