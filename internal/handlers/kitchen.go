package handlers

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/ovenline/ovenline/internal/board"
	"github.com/ovenline/ovenline/internal/lifecycle"
	"github.com/ovenline/ovenline/internal/models"
	"github.com/ovenline/ovenline/internal/store"
	"github.com/ovenline/ovenline/internal/urgency"
)

type kitchenEntry struct {
	Order     store.OrderDocument `json:"order"`
	Urgency   urgency.Assessment  `json:"urgency"`
	Remaining string              `json:"remaining"`
	Actions   []models.Status     `json:"actions"`
}

type kitchenResponse struct {
	Orders []kitchenEntry `json:"orders"`
	State  board.State    `json:"state"`
}

func (h *Handlers) kitchenView() kitchenResponse {
	entries := h.board.Kitchen(h.now())
	out := make([]kitchenEntry, len(entries))
	for i, entry := range entries {
		out[i] = kitchenEntry{
			Order:     store.EncodeOrder(entry.Order),
			Urgency:   entry.Urgency,
			Remaining: entry.Urgency.Remaining(),
			Actions:   lifecycle.NextStatuses(entry.Order.Status),
		}
	}
	return kitchenResponse{Orders: out, State: h.board.State()}
}

// Kitchen serves the cooking queue, most at-risk order first.
func (h *Handlers) Kitchen(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, h.kitchenView())
}

// KitchenOrders serves the open-orders view of the board.
func (h *Handlers) KitchenOrders(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"orders": store.EncodeOrders(h.board.Orders()),
		"state":  h.board.State(),
	})
}

func (h *Handlers) RefreshKitchen(w http.ResponseWriter, r *http.Request) {
	if err := h.board.Refresh(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, h.kitchenView())
}

type toggleCookedRequest struct {
	Cooked *bool `json:"cooked"`
}

func (h *Handlers) ToggleCooked(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		h.badRequest(w, r, "pizza index must be a number")
		return
	}

	var req toggleCookedRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.Cooked == nil {
		h.badRequest(w, r, "cooked is required")
		return
	}

	order, err := h.board.ToggleCooked(r.Context(), vars["id"], index, *req.Cooked)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, store.EncodeOrder(*order))
}

type kitchenStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handlers) KitchenStatus(w http.ResponseWriter, r *http.Request) {
	var req kitchenStatusRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	status, err := models.ParseStatus(req.Status)
	if err != nil {
		h.badRequest(w, r, err.Error())
		return
	}

	order, err := h.board.UpdateStatus(r.Context(), mux.Vars(r)["id"], status)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, store.EncodeOrder(*order))
}

func (h *Handlers) KitchenArchive(w http.ResponseWriter, r *http.Request) {
	order, err := h.board.Archive(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, store.EncodeOrder(*order))
}

// KitchenNotices hands out the notices queued since the last call.
func (h *Handlers) KitchenNotices(w http.ResponseWriter, r *http.Request) {
	notices := h.board.DrainNotices()
	if notices == nil {
		notices = []board.Notice{}
	}
	h.writeJSON(w, r, http.StatusOK, map[string]any{
		"notices": notices,
	})
}
