package handlers

import (
	"encoding/json"
	"net/http"
)

func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.settings.Current())
}

// UpdateSettings applies the posted keys. Values may be sent as JSON strings
// or as bare booleans and numbers.
func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	if !h.decodeJSON(w, r, &body) {
		return
	}

	values := make(map[string]string, len(body))
	for key, raw := range body {
		values[key] = rawText(raw)
	}

	saved, err := h.settings.Set(r.Context(), values)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.loggerFromContext(r.Context()).Info("settings updated", "keys", len(values))
	h.writeJSON(w, r, http.StatusOK, saved)
}

func (h *Handlers) ResetSettings(w http.ResponseWriter, r *http.Request) {
	saved, err := h.settings.Reset(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, saved)
}
