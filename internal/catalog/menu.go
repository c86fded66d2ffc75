// Package catalog provides the pizza menu, order pricing, and order-entry validation.
package catalog

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed default_menu.yaml
var defaultMenuYAML []byte

type Menu struct {
	Pizzas []MenuItem `yaml:"pizzas" json:"pizzas"`
}

type MenuItem struct {
	ID         string `yaml:"id" json:"id"`
	Name       string `yaml:"name" json:"name"`
	PriceCents int64  `yaml:"price_cents" json:"priceCents"`
	Active     bool   `yaml:"active" json:"active"`
}

// Find looks a pizza up by id, falling back to a case-insensitive name match
// for orders that only carry the pizza type.
func (m *Menu) Find(idOrName string) (*MenuItem, bool) {
	if m == nil {
		return nil, false
	}
	key := strings.TrimSpace(idOrName)
	for i := range m.Pizzas {
		if m.Pizzas[i].ID == key {
			return &m.Pizzas[i], true
		}
	}
	for i := range m.Pizzas {
		if strings.EqualFold(m.Pizzas[i].Name, key) {
			return &m.Pizzas[i], true
		}
	}
	return nil, false
}

func ParseMenu(content []byte) (*Menu, error) {
	var menu Menu
	decoder := yaml.NewDecoder(bytes.NewReader(content))
	decoder.KnownFields(true)
	if err := decoder.Decode(&menu); err != nil {
		return nil, fmt.Errorf("failed to parse menu YAML: %w", err)
	}
	if err := validateMenu(&menu); err != nil {
		return nil, err
	}
	return &menu, nil
}

func validateMenu(menu *Menu) error {
	if len(menu.Pizzas) == 0 {
		return fmt.Errorf("menu has no pizzas")
	}
	ids := make(map[string]bool, len(menu.Pizzas))
	for i, item := range menu.Pizzas {
		if strings.TrimSpace(item.ID) == "" {
			return fmt.Errorf("menu item %d: id is required", i)
		}
		if strings.TrimSpace(item.Name) == "" {
			return fmt.Errorf("menu item %s: name is required", item.ID)
		}
		if item.PriceCents <= 0 {
			return fmt.Errorf("menu item %s: price must be positive", item.ID)
		}
		if ids[item.ID] {
			return fmt.Errorf("duplicate menu item id: %s", item.ID)
		}
		ids[item.ID] = true
	}
	return nil
}

// DefaultMenu is the menu compiled into the binary.
func DefaultMenu() *Menu {
	menu, err := ParseMenu(defaultMenuYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded default menu is invalid: %v", err))
	}
	return menu
}

func LoadMenuFile(path string) (*Menu, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read menu file: %w", err)
	}
	return ParseMenu(content)
}

// MenuFetcher loads the menu from a remote backend.
type MenuFetcher interface {
	FetchMenu(ctx context.Context) (*Menu, error)
}

// MenuSource holds the menu currently in effect: the last remote menu that
// loaded, otherwise the local fallback. Current never touches the network;
// Refresh and Run load the remote menu ahead of time.
type MenuSource struct {
	remote   MenuFetcher
	fallback *Menu
	logger   *slog.Logger

	mu     sync.RWMutex
	loaded *Menu
}

func NewMenuSource(remote MenuFetcher, fallback *Menu, logger *slog.Logger) *MenuSource {
	if fallback == nil {
		fallback = DefaultMenu()
	}
	return &MenuSource{remote: remote, fallback: fallback, logger: logger}
}

func (s *MenuSource) Current() *Menu {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.loaded != nil {
		return s.loaded
	}
	return s.fallback
}

// Refresh fetches the remote menu. On failure the menu already in effect
// stays in place.
func (s *MenuSource) Refresh(ctx context.Context) error {
	if s.remote == nil {
		return nil
	}
	menu, err := s.remote.FetchMenu(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch menu: %w", err)
	}
	if menu == nil || len(menu.Pizzas) == 0 {
		return fmt.Errorf("remote menu has no pizzas")
	}

	s.mu.Lock()
	s.loaded = menu
	s.mu.Unlock()
	return nil
}

// Run refreshes the remote menu every interval until ctx is done.
func (s *MenuSource) Run(ctx context.Context, every time.Duration) {
	if s.remote == nil || every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil && s.logger != nil {
				s.logger.Warn("remote menu unavailable, keeping current menu", "error", err)
			}
		}
	}
}
