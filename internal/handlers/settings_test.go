package handlers

import (
	"net/http"
	"testing"

	"github.com/ovenline/ovenline/internal/settings"
)

func TestUpdateSettings(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantField  string
		check      func(t *testing.T, got settings.Settings)
	}{
		{
			name:       "string values",
			body:       `{"refreshInterval":"10","darkTheme":"true"}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, got settings.Settings) {
				if got.RefreshInterval != 10 || !got.DarkTheme {
					t.Fatalf("unexpected settings: %+v", got)
				}
			},
		},
		{
			name:       "bare json values",
			body:       `{"refreshInterval":60,"autoRefresh":false}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, got settings.Settings) {
				if got.RefreshInterval != 60 || got.AutoRefresh {
					t.Fatalf("unexpected settings: %+v", got)
				}
			},
		},
		{
			name:       "interval below minimum",
			body:       `{"refreshInterval":"2"}`,
			wantStatus: http.StatusBadRequest,
			wantField:  "refreshInterval",
		},
		{
			name:       "unknown key",
			body:       `{"volume":"11"}`,
			wantStatus: http.StatusBadRequest,
			wantField:  "volume",
		},
		{
			name:       "bad api url",
			body:       `{"apiUrl":"not a url"}`,
			wantStatus: http.StatusBadRequest,
			wantField:  "apiUrl",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)

			rec := serve(env.h.UpdateSettings, http.MethodPut, "/api/settings", tt.body, nil)
			if rec.Code != tt.wantStatus {
				t.Fatalf("unexpected status: got=%d want=%d body=%s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.check != nil {
				tt.check(t, decodeBody[settings.Settings](t, rec))
			}
			if tt.wantField != "" {
				resp := decodeBody[errorResponse](t, rec)
				if _, ok := resp.Fields[tt.wantField]; !ok {
					t.Fatalf("expected field error for %s, got %v", tt.wantField, resp.Fields)
				}
				if got := env.h.settings.Current(); got != settings.Defaults() {
					t.Fatalf("rejected update changed settings: %+v", got)
				}
			}
		})
	}
}

func TestGetAndResetSettings(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := serve(env.h.UpdateSettings, http.MethodPut, "/api/settings", `{"soundEnabled":false}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: got=%d body=%s", rec.Code, rec.Body.String())
	}
	rec = serve(env.h.GetSettings, http.MethodGet, "/api/settings", "", nil)
	if got := decodeBody[settings.Settings](t, rec); got.SoundEnabled {
		t.Fatalf("expected saved setting, got %+v", got)
	}

	rec = serve(env.h.ResetSettings, http.MethodDelete, "/api/settings", "", nil)
	if got := decodeBody[settings.Settings](t, rec); got != settings.Defaults() {
		t.Fatalf("reset returned %+v, want defaults", got)
	}
}
