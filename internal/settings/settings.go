// Package settings keeps the per-device screen preferences.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ovenline/ovenline/internal/kv"
)

const storageKey = "appSettings"

const (
	DefaultRefreshInterval = 30
	DefaultAPIURL          = "https://pizza-inventory-system.nw.r.appspot.com"
	MinRefreshInterval     = 5
)

var ErrInvalid = errors.New("invalid settings")

type Settings struct {
	DarkTheme            bool   `json:"darkTheme"`
	SoundEnabled         bool   `json:"soundEnabled"`
	NotificationsEnabled bool   `json:"notificationsEnabled"`
	AutoRefresh          bool   `json:"autoRefresh"`
	RefreshInterval      int    `json:"refreshInterval" validate:"gte=5"`
	APIURL               string `json:"apiUrl" validate:"required,http_url"`
}

func Defaults() Settings {
	return Settings{
		SoundEnabled:         true,
		NotificationsEnabled: true,
		AutoRefresh:          true,
		RefreshInterval:      DefaultRefreshInterval,
		APIURL:               DefaultAPIURL,
	}
}

// RefreshEvery is the polling interval as a duration.
func (s Settings) RefreshEvery() time.Duration {
	return time.Duration(s.RefreshInterval) * time.Second
}

// InvalidError lists the rejected keys and why.
type InvalidError struct {
	Fields map[string]string
}

func (e *InvalidError) Error() string {
	keys := slices.Sorted(maps.Keys(e.Fields))
	parts := make([]string, len(keys))
	for i, key := range keys {
		parts[i] = key + ": " + e.Fields[key]
	}
	return fmt.Sprintf("%s: %s", ErrInvalid, strings.Join(parts, "; "))
}

func (e *InvalidError) Unwrap() error {
	return ErrInvalid
}

type Manager struct {
	provider kv.Provider
	validate *validator.Validate
	logger   *slog.Logger

	mu        sync.RWMutex
	current   Settings
	listeners []func(Settings)
}

func NewManager(provider kv.Provider, logger *slog.Logger) *Manager {
	return &Manager{
		provider: provider,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		current:  Defaults(),
	}
}

// Load reads the saved settings. A missing or unreadable blob yields the
// defaults; a saved field that no longer validates falls back to its default.
func (m *Manager) Load(ctx context.Context) (Settings, error) {
	loaded := Defaults()

	raw, err := m.provider.Get(ctx, storageKey)
	switch {
	case errors.Is(err, kv.ErrNotFound):
	case err != nil:
		return Settings{}, fmt.Errorf("failed to read settings: %w", err)
	default:
		if decodeErr := json.Unmarshal([]byte(raw), &loaded); decodeErr != nil {
			m.warn("saved settings are malformed, using defaults", decodeErr)
			loaded = Defaults()
		}
	}

	defaults := Defaults()
	if loaded.RefreshInterval < MinRefreshInterval {
		loaded.RefreshInterval = defaults.RefreshInterval
	}
	if m.validate.Var(loaded.APIURL, "required,http_url") != nil {
		loaded.APIURL = defaults.APIURL
	}

	m.mu.Lock()
	m.current = loaded
	m.mu.Unlock()
	return loaded, nil
}

func (m *Manager) Current() Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Set applies string-valued edits as typed into the settings screen. Any
// rejected key leaves every setting unchanged.
func (m *Manager) Set(ctx context.Context, values map[string]string) (Settings, error) {
	candidate := m.Current()
	fields := make(map[string]string)

	for key, raw := range values {
		raw = strings.TrimSpace(raw)
		switch key {
		case "refreshInterval":
			interval, err := strconv.Atoi(raw)
			if err != nil || interval < MinRefreshInterval {
				fields[key] = fmt.Sprintf("must be a whole number of seconds, at least %d", MinRefreshInterval)
				continue
			}
			candidate.RefreshInterval = interval
		case "apiUrl":
			candidate.APIURL = raw
		case "darkTheme", "soundEnabled", "notificationsEnabled", "autoRefresh":
			flag, err := strconv.ParseBool(raw)
			if err != nil {
				fields[key] = "must be true or false"
				continue
			}
			setFlag(&candidate, key, flag)
		default:
			fields[key] = "unknown setting"
		}
	}

	if len(fields) > 0 {
		return m.Current(), &InvalidError{Fields: fields}
	}
	return m.Replace(ctx, candidate)
}

// Replace validates and saves a full settings value.
func (m *Manager) Replace(ctx context.Context, next Settings) (Settings, error) {
	if err := m.validate.Struct(next); err != nil {
		return m.Current(), m.invalid(err)
	}

	encoded, err := json.Marshal(next)
	if err != nil {
		return m.Current(), fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := m.provider.Set(ctx, storageKey, string(encoded), 0); err != nil {
		return m.Current(), fmt.Errorf("failed to save settings: %w", err)
	}

	m.mu.Lock()
	m.current = next
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(next)
	}
	return next, nil
}

// Reset restores and saves the defaults.
func (m *Manager) Reset(ctx context.Context) (Settings, error) {
	return m.Replace(ctx, Defaults())
}

// OnChange registers fn to run after every successful save.
func (m *Manager) OnChange(fn func(Settings)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

func (m *Manager) invalid(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("failed to validate settings: %w", err)
	}
	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		switch fe.Field() {
		case "RefreshInterval":
			fields["refreshInterval"] = fmt.Sprintf("must be at least %d seconds", MinRefreshInterval)
		case "APIURL":
			fields["apiUrl"] = "must be an absolute http or https URL"
		default:
			fields[fe.Field()] = fmt.Sprintf("failed %s check", fe.Tag())
		}
	}
	return &InvalidError{Fields: fields}
}

func (m *Manager) warn(msg string, err error) {
	if m.logger != nil {
		m.logger.Warn(msg, "error", err)
	}
}

func setFlag(s *Settings, key string, value bool) {
	switch key {
	case "darkTheme":
		s.DarkTheme = value
	case "soundEnabled":
		s.SoundEnabled = value
	case "notificationsEnabled":
		s.NotificationsEnabled = value
	case "autoRefresh":
		s.AutoRefresh = value
	}
}
