package models

import (
	"fmt"
	"strings"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// DefaultPrepMinutes is used whenever an order carries no usable prep time.
const DefaultPrepMinutes = 15

// WalkInCustomer is shown for orders placed without a customer name.
const WalkInCustomer = "Walk-in"

var statusAliases = map[string]Status{
	"pending":     StatusPending,
	"in-progress": StatusInProgress,
	"in_progress": StatusInProgress,
	"inprogress":  StatusInProgress,
	"cooking":     StatusInProgress,
	"processing":  StatusInProgress,
	"completed":   StatusCompleted,
	"complete":    StatusCompleted,
	"ready":       StatusCompleted,
	"delivered":   StatusDelivered,
	"cancelled":   StatusCancelled,
	"canceled":    StatusCancelled,
}

// ParseStatus maps the status spellings used by the different backends onto
// the canonical set.
func ParseStatus(raw string) (Status, error) {
	key := strings.ToLower(strings.TrimSpace(raw))
	if status, ok := statusAliases[key]; ok {
		return status, nil
	}
	return "", fmt.Errorf("unknown order status %q", raw)
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

type LineItem struct {
	PizzaID             string `json:"pizzaId"`
	Name                string `json:"name"`
	Quantity            int    `json:"quantity"`
	IsCooked            bool   `json:"isCooked"`
	SpecialInstructions string `json:"specialInstructions,omitempty"`
	UnitPriceCents      int64  `json:"unitPriceCents,omitempty"`
}

type Order struct {
	ID           string     `json:"id"`
	CustomerName string     `json:"customerName,omitempty"`
	Platform     string     `json:"platform"`
	OrderTime    time.Time  `json:"orderTime"`
	PrepTime     int        `json:"prepTime"`
	Status       Status     `json:"status"`
	Archived     bool       `json:"archived"`
	Pizzas       []LineItem `json:"pizzas"`
	TotalCents   int64      `json:"totalCents"`
	Notes        string     `json:"notes,omitempty"`
	UpdatedAt    time.Time  `json:"updatedAt,omitzero"`
}

func (o *Order) DisplayCustomer() string {
	if name := strings.TrimSpace(o.CustomerName); name != "" {
		return name
	}
	return WalkInCustomer
}

func (o *Order) PrepMinutes() int {
	if o.PrepTime <= 0 {
		return DefaultPrepMinutes
	}
	return o.PrepTime
}

func (o *Order) PizzaCount() int {
	total := 0
	for _, item := range o.Pizzas {
		total += item.Quantity
	}
	return total
}

// Clone returns a copy that shares no line items with the receiver.
func (o Order) Clone() Order {
	if o.Pizzas != nil {
		items := make([]LineItem, len(o.Pizzas))
		copy(items, o.Pizzas)
		o.Pizzas = items
	}
	return o
}

// CloneAll deep-copies a slice of orders.
func CloneAll(orders []Order) []Order {
	if orders == nil {
		return nil
	}
	out := make([]Order, len(orders))
	for i := range orders {
		out[i] = orders[i].Clone()
	}
	return out
}

// OrderUpdate is a partial update; nil fields are left untouched.
type OrderUpdate struct {
	Status   *Status `json:"status,omitempty"`
	Archived *bool   `json:"archived,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

func (u OrderUpdate) Empty() bool {
	return u.Status == nil && u.Archived == nil && u.Notes == nil
}

// Draft is an order as typed into the order-entry form, before validation.
type Draft struct {
	CustomerName   string      `json:"customerName"`
	Platform       string      `json:"platform" validate:"required"`
	CustomPlatform string      `json:"customPlatform,omitempty"`
	PrepTime       string      `json:"prepTime"`
	Pizzas         []DraftItem `json:"pizzas" validate:"required,min=1,dive"`
}

type DraftItem struct {
	PizzaID             string `json:"pizzaId" validate:"required"`
	Quantity            int    `json:"quantity" validate:"gte=1"`
	SpecialInstructions string `json:"specialInstructions,omitempty"`
}

// ResolvedPlatform returns the free-text platform when "Other" was picked.
func (d Draft) ResolvedPlatform() string {
	platform := strings.TrimSpace(d.Platform)
	if strings.EqualFold(platform, PlatformOther) {
		return strings.TrimSpace(d.CustomPlatform)
	}
	return platform
}
