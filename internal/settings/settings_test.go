package settings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ovenline/ovenline/internal/kv"
)

func newTestManager(t *testing.T) (*Manager, kv.Provider) {
	t.Helper()
	provider, err := kv.NewMemoryProvider()
	if err != nil {
		t.Fatal(err)
	}
	return NewManager(provider, nil), provider
}

func TestManager_LoadDefaults(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t)

	got, err := m.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got != Defaults() {
		t.Fatalf("Load() = %+v, want defaults", got)
	}
	if got.RefreshEvery() != 30*time.Second {
		t.Fatalf("RefreshEvery() = %v", got.RefreshEvery())
	}
}

func TestManager_LoadMalformed(t *testing.T) {
	t.Parallel()
	m, provider := newTestManager(t)
	ctx := context.Background()

	if err := provider.Set(ctx, storageKey, "{not json", 0); err != nil {
		t.Fatal(err)
	}
	got, err := m.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != Defaults() {
		t.Fatalf("Load() = %+v, want defaults", got)
	}
}

func TestManager_LoadResetsInvalidFields(t *testing.T) {
	t.Parallel()
	m, provider := newTestManager(t)
	ctx := context.Background()

	if err := provider.Set(ctx, storageKey, `{"darkTheme":true,"refreshInterval":1,"apiUrl":"nope"}`, 0); err != nil {
		t.Fatal(err)
	}
	got, err := m.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !got.DarkTheme {
		t.Error("expected saved darkTheme to survive")
	}
	if got.RefreshInterval != DefaultRefreshInterval || got.APIURL != DefaultAPIURL {
		t.Errorf("Load() = %+v", got)
	}
}

func TestManager_Set(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		values     map[string]string
		wantFields []string
		check      func(t *testing.T, s Settings)
	}{
		{
			name:   "valid edits",
			values: map[string]string{"refreshInterval": "10", "darkTheme": "true", "apiUrl": "http://localhost:8080"},
			check: func(t *testing.T, s Settings) {
				if s.RefreshInterval != 10 || !s.DarkTheme || s.APIURL != "http://localhost:8080" {
					t.Fatalf("settings = %+v", s)
				}
			},
		},
		{
			name:       "interval below minimum",
			values:     map[string]string{"refreshInterval": "2"},
			wantFields: []string{"refreshInterval"},
		},
		{
			name:       "interval not a number",
			values:     map[string]string{"refreshInterval": "abc", "darkTheme": "true"},
			wantFields: []string{"refreshInterval"},
		},
		{
			name:       "bad url",
			values:     map[string]string{"apiUrl": "ftp://example.com"},
			wantFields: []string{"apiUrl"},
		},
		{
			name:       "bad flag and unknown key",
			values:     map[string]string{"soundEnabled": "loud", "volume": "11"},
			wantFields: []string{"soundEnabled", "volume"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, provider := newTestManager(t)
			ctx := context.Background()

			got, err := m.Set(ctx, tt.values)
			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("Set() error = %v", err)
				}
				tt.check(t, got)
				if _, err := provider.Get(ctx, storageKey); err != nil {
					t.Fatalf("settings not persisted: %v", err)
				}
				return
			}

			if !errors.Is(err, ErrInvalid) {
				t.Fatalf("Set() error = %v, want ErrInvalid", err)
			}
			var invalid *InvalidError
			if !errors.As(err, &invalid) {
				t.Fatalf("Set() error = %T", err)
			}
			for _, field := range tt.wantFields {
				if _, ok := invalid.Fields[field]; !ok {
					t.Errorf("missing reason for %s in %v", field, invalid.Fields)
				}
			}
			if m.Current() != Defaults() {
				t.Fatalf("settings changed after rejected edit: %+v", m.Current())
			}
			if _, err := provider.Get(ctx, storageKey); !errors.Is(err, kv.ErrNotFound) {
				t.Fatalf("rejected edit was persisted: %v", err)
			}
		})
	}
}

func TestManager_OnChangeAndReset(t *testing.T) {
	t.Parallel()
	m, _ := newTestManager(t)
	ctx := context.Background()

	var seen []int
	m.OnChange(func(s Settings) { seen = append(seen, s.RefreshInterval) })

	if _, err := m.Set(ctx, map[string]string{"refreshInterval": "15"}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Set(ctx, map[string]string{"refreshInterval": "1"}); err == nil {
		t.Fatal("expected error")
	}
	if _, err := m.Reset(ctx); err != nil {
		t.Fatal(err)
	}

	if len(seen) != 2 || seen[0] != 15 || seen[1] != DefaultRefreshInterval {
		t.Fatalf("listener saw %v, want [15 30]", seen)
	}

	reloaded := NewManager(m.provider, nil)
	got, err := reloaded.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != Defaults() {
		t.Fatalf("reloaded = %+v", got)
	}
}
