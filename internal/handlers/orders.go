package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/ovenline/ovenline/internal/catalog"
	"github.com/ovenline/ovenline/internal/models"
	"github.com/ovenline/ovenline/internal/services"
	"github.com/ovenline/ovenline/internal/store"
)

func (h *Handlers) Ping(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// ListOrders serves active orders. Optional query params: status, search.
func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	query := services.ListQuery{Search: r.URL.Query().Get("search")}
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" && !strings.EqualFold(raw, "all") {
		status, err := models.ParseStatus(raw)
		if err != nil {
			h.badRequest(w, r, err.Error())
			return
		}
		query.Status = status
	}

	orders, err := h.orders.List(r.Context(), query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, store.EncodeOrders(orders))
}

func (h *Handlers) ListArchivedOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListArchived(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, store.EncodeOrders(orders))
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, store.EncodeOrder(*order))
}

type createOrderItem struct {
	PizzaID             string `json:"pizzaId"`
	PizzaType           string `json:"pizzaType"`
	Name                string `json:"name"`
	Quantity            int    `json:"quantity"`
	SpecialInstructions string `json:"specialInstructions"`
}

// createOrderRequest takes both the order-entry form and a full order
// document, whose prepTime is a number rather than text.
type createOrderRequest struct {
	CustomerName   string            `json:"customerName"`
	Platform       string            `json:"platform"`
	CustomPlatform string            `json:"customPlatform"`
	PrepTime       json.RawMessage   `json:"prepTime"`
	Pizzas         []createOrderItem `json:"pizzas"`
}

func (req createOrderRequest) draft() models.Draft {
	draft := models.Draft{
		CustomerName:   req.CustomerName,
		Platform:       req.Platform,
		CustomPlatform: req.CustomPlatform,
		PrepTime:       rawText(req.PrepTime),
		Pizzas:         make([]models.DraftItem, len(req.Pizzas)),
	}
	for i, item := range req.Pizzas {
		id := item.PizzaID
		if strings.TrimSpace(id) == "" {
			id = item.PizzaType
		}
		if strings.TrimSpace(id) == "" {
			id = item.Name
		}
		draft.Pizzas[i] = models.DraftItem{
			PizzaID:             id,
			Quantity:            item.Quantity,
			SpecialInstructions: item.SpecialInstructions,
		}
	}
	return draft
}

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	order, err := h.orders.Create(r.Context(), req.draft())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusCreated, store.EncodeOrder(*order))
}

type updateOrderRequest struct {
	Status *string `json:"status"`
	Notes  *string `json:"notes"`
}

func (h *Handlers) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req updateOrderRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	update := models.OrderUpdate{Notes: req.Notes}
	if req.Status != nil {
		status, err := models.ParseStatus(*req.Status)
		if err != nil {
			h.badRequest(w, r, err.Error())
			return
		}
		update.Status = &status
	}

	order, err := h.orders.Update(r.Context(), mux.Vars(r)["id"], update)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, store.EncodeOrder(*order))
}

func (h *Handlers) ArchiveOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.Archive(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, store.EncodeOrder(*order))
}

// pizzaStatusRequest carries the full cooked array. A status sent alongside
// it is ignored; the order status follows from the flags.
type pizzaStatusRequest struct {
	Cooked []bool `json:"cooked"`
}

func (h *Handlers) UpdatePizzaStatus(w http.ResponseWriter, r *http.Request) {
	var req pizzaStatusRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if req.Cooked == nil {
		h.badRequest(w, r, "cooked is required")
		return
	}

	order, err := h.orders.SetCooked(r.Context(), mux.Vars(r)["id"], req.Cooked)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, store.EncodeOrder(*order))
}

func (h *Handlers) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// menuResponse adds the order-entry platforms to the pizza list.
type menuResponse struct {
	*catalog.Menu
	Platforms []string `json:"platforms"`
}

func (h *Handlers) Menu(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, menuResponse{Menu: h.orders.Menu(), Platforms: models.Platforms})
}

func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.orders.Stats(r.Context(), h.now())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, stats)
}

// rawText returns a JSON string's contents, or the literal text of any other
// value. null and absent values are empty.
func rawText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}
