package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/ovenline/ovenline/internal/models"
	"github.com/ovenline/ovenline/internal/urgency"
)

// OrderDocument is the JSON shape orders take on the HTTP API. It carries both
// the decimal totalAmount older clients read and the integer cents, and the
// prep-time urgency tier those clients still display.
type OrderDocument struct {
	ID           string            `json:"id"`
	CustomerName string            `json:"customerName"`
	Platform     string            `json:"platform"`
	OrderTime    time.Time         `json:"orderTime"`
	PrepTime     int               `json:"prepTime"`
	Status       models.Status     `json:"status"`
	Archived     bool              `json:"archived"`
	Pizzas       []models.LineItem `json:"pizzas"`
	Cooked       []bool            `json:"cooked"`
	Urgency      urgency.Tier      `json:"urgency"`
	TotalAmount  float64           `json:"totalAmount"`
	TotalCents   int64             `json:"totalCents"`
	Notes        string            `json:"notes,omitempty"`
	UpdatedAt    time.Time         `json:"updatedAt,omitzero"`
}

func EncodeOrder(order models.Order) OrderDocument {
	pizzas := order.Pizzas
	if pizzas == nil {
		pizzas = []models.LineItem{}
	}
	cooked := make([]bool, len(pizzas))
	for i, item := range pizzas {
		cooked[i] = item.IsCooked
	}
	return OrderDocument{
		ID:           order.ID,
		CustomerName: order.CustomerName,
		Platform:     order.Platform,
		OrderTime:    order.OrderTime,
		PrepTime:     order.PrepTime,
		Status:       order.Status,
		Archived:     order.Archived,
		Pizzas:       pizzas,
		Cooked:       cooked,
		Urgency:      urgency.FixedTier(order.PrepMinutes()),
		TotalAmount:  float64(order.TotalCents) / 100,
		TotalCents:   order.TotalCents,
		Notes:        order.Notes,
		UpdatedAt:    order.UpdatedAt,
	}
}

func EncodeOrders(orders []models.Order) []OrderDocument {
	out := make([]OrderDocument, len(orders))
	for i, order := range orders {
		out[i] = EncodeOrder(order)
	}
	return out
}

type wireOrder struct {
	ID           string          `json:"id"`
	OrderID      string          `json:"orderId"`
	DocID        string          `json:"_id"`
	CustomerName string          `json:"customerName"`
	Platform     string          `json:"platform"`
	OrderTime    json.RawMessage `json:"orderTime"`
	CreatedAt    json.RawMessage `json:"createdAt"`
	PrepTime     json.RawMessage `json:"prepTime"`
	Status       string          `json:"status"`
	Archived     bool            `json:"archived"`
	IsArchived   bool            `json:"isArchived"`
	Pizzas       []wireItem      `json:"pizzas"`
	Cooked       []bool          `json:"cooked"`
	TotalAmount  json.RawMessage `json:"totalAmount"`
	TotalCents   *int64          `json:"totalCents"`
	Notes        string          `json:"notes"`
	UpdatedAt    json.RawMessage `json:"updatedAt"`
}

type wireItem struct {
	PizzaID             string          `json:"pizzaId"`
	PizzaType           string          `json:"pizzaType"`
	Name                string          `json:"name"`
	Quantity            json.RawMessage `json:"quantity"`
	IsCooked            bool            `json:"isCooked"`
	SpecialInstructions string          `json:"specialInstructions"`
	Notes               string          `json:"notes"`
	UnitPriceCents      int64           `json:"unitPriceCents"`
}

// DecodeOrder accepts the field spellings used by the known backends and
// returns the canonical order.
func DecodeOrder(data []byte) (models.Order, error) {
	var w wireOrder
	if err := json.Unmarshal(data, &w); err != nil {
		return models.Order{}, fmt.Errorf("failed to decode order: %w", err)
	}
	return w.toOrder()
}

// DecodeOrders accepts either a bare array or an object wrapping it under "orders".
func DecodeOrders(data []byte) ([]models.Order, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			Orders json.RawMessage `json:"orders"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, fmt.Errorf("failed to decode order list: %w", err)
		}
		trimmed = wrapped.Orders
	}
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return []models.Order{}, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode order list: %w", err)
	}
	orders := make([]models.Order, 0, len(raw))
	for i, item := range raw {
		order, err := DecodeOrder(item)
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (w wireOrder) toOrder() (models.Order, error) {
	order := models.Order{
		ID:           firstNonEmpty(w.ID, w.OrderID, w.DocID),
		CustomerName: w.CustomerName,
		Platform:     w.Platform,
		Archived:     w.Archived || w.IsArchived,
		Notes:        w.Notes,
	}
	if order.ID == "" {
		return models.Order{}, fmt.Errorf("order has no id")
	}

	status := models.StatusPending
	if strings.TrimSpace(w.Status) != "" {
		parsed, err := models.ParseStatus(w.Status)
		if err != nil {
			return models.Order{}, err
		}
		status = parsed
	}
	order.Status = status

	var err error
	if order.OrderTime, err = parseTime(w.OrderTime); err != nil {
		return models.Order{}, fmt.Errorf("orderTime: %w", err)
	}
	if order.OrderTime.IsZero() {
		if order.OrderTime, err = parseTime(w.CreatedAt); err != nil {
			return models.Order{}, fmt.Errorf("createdAt: %w", err)
		}
	}
	if order.UpdatedAt, err = parseTime(w.UpdatedAt); err != nil {
		return models.Order{}, fmt.Errorf("updatedAt: %w", err)
	}

	order.PrepTime = parseLenientInt(w.PrepTime)

	order.Pizzas = make([]models.LineItem, len(w.Pizzas))
	for i, item := range w.Pizzas {
		quantity := parseLenientInt(item.Quantity)
		if quantity <= 0 {
			quantity = 1
		}
		name := firstNonEmpty(item.Name, item.PizzaType)
		order.Pizzas[i] = models.LineItem{
			PizzaID:             firstNonEmpty(item.PizzaID, item.PizzaType, item.Name),
			Name:                name,
			Quantity:            quantity,
			IsCooked:            item.IsCooked,
			SpecialInstructions: firstNonEmpty(item.SpecialInstructions, item.Notes),
			UnitPriceCents:      item.UnitPriceCents,
		}
		if i < len(w.Cooked) {
			order.Pizzas[i].IsCooked = w.Cooked[i]
		}
	}

	switch {
	case w.TotalCents != nil:
		order.TotalCents = *w.TotalCents
	case len(w.TotalAmount) > 0:
		amount, err := parseNumber(w.TotalAmount)
		if err != nil {
			return models.Order{}, fmt.Errorf("totalAmount: %w", err)
		}
		order.TotalCents = int64(math.Round(amount * 100))
	}

	return order, nil
}

// parseTime reads RFC 3339 strings or epoch milliseconds. Missing values are zero.
func parseTime(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		if s == "" {
			return time.Time{}, nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, err
		}
		return t, nil
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unsupported time value %s", raw)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// parseLenientInt reads a number or numeric string; anything else is zero.
func parseLenientInt(raw json.RawMessage) int {
	value, err := parseNumber(raw)
	if err != nil {
		return 0
	}
	return int(value)
}

func parseNumber(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, fmt.Errorf("missing number")
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, err
		}
	}
	return strconv.ParseFloat(strings.TrimSpace(text), 64)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
