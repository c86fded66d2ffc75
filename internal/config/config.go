package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

type Config struct {
	Port      string     `env:"PORT" envDefault:"8080"`
	LogLevel  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat string     `env:"LOG_FORMAT" envDefault:"text" validate:"omitempty,oneof=text json"`
	LogFile   string     `env:"LOG_FILE"`

	StoreProvider         string `env:"STORE_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory rest redis postgres"`
	APIBaseURL            string `env:"API_BASE_URL" validate:"required_if=StoreProvider rest"`
	RedisConnectionString string `env:"REDIS_CONNECTION_STRING" envDefault:"redis://localhost:6379/0" validate:"required_if=StoreProvider redis,required_if=SettingsProvider redis"`
	DatabaseURL           string `env:"DATABASE_URL" validate:"required_if=StoreProvider postgres"`

	SettingsProvider string `env:"SETTINGS_PROVIDER" envDefault:"memory" validate:"omitempty,oneof=memory redis"`
	MenuFile         string `env:"MENU_FILE"`
	BoardMode        string `env:"BOARD_MODE" envDefault:"poll" validate:"omitempty,oneof=poll watch"`

	SentryDSN         string `env:"SENTRY_DSN"`
	SentryEnvironment string `env:"SENTRY_ENVIRONMENT" envDefault:"development"`
}

var configValidator = validator.New()

func Load() (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return err
	}

	apiBaseURL := strings.TrimSpace(c.APIBaseURL)
	if apiBaseURL != "" {
		parsed, err := url.Parse(apiBaseURL)
		if err != nil || parsed.Hostname() == "" {
			return fmt.Errorf("API_BASE_URL must be a valid absolute URL")
		}
		if !isLocalHost(parsed.Hostname()) && !strings.EqualFold(parsed.Scheme, "https") {
			return fmt.Errorf("API_BASE_URL must use https outside local development")
		}
	}

	if c.BoardMode == "watch" && c.StoreProvider == "rest" {
		return fmt.Errorf("BOARD_MODE=watch needs a store that can push changes; the rest store can only be polled")
	}

	return nil
}

func isLocalHost(host string) bool {
	switch strings.ToLower(strings.TrimSpace(host)) {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
