// Package store persists orders behind a backend-neutral interface.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/ovenline/ovenline/internal/lifecycle"
	"github.com/ovenline/ovenline/internal/models"
)

var ErrNotFound = errors.New("order not found")

// Filter narrows ListOrders results. The zero value matches every active order.
type Filter struct {
	Statuses []models.Status
	Since    time.Time
}

func (f Filter) Match(order *models.Order) bool {
	if order.Archived {
		return false
	}
	if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, order.Status) {
		return false
	}
	if !f.Since.IsZero() && order.OrderTime.Before(f.Since) {
		return false
	}
	return true
}

type Store interface {
	ListOrders(ctx context.Context, filter Filter) ([]models.Order, error)
	ListArchived(ctx context.Context) ([]models.Order, error)
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	UpdateOrder(ctx context.Context, id string, update models.OrderUpdate) (*models.Order, error)
	UpdatePizzaStatus(ctx context.Context, id string, index int, cooked bool) (*models.Order, error)
	DeleteOrder(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close() error
}

// Subscriber is implemented by stores that can push changes instead of being polled.
// The callback receives the full filtered list after every change.
type Subscriber interface {
	Subscribe(ctx context.Context, filter Filter, fn func([]models.Order)) (Subscription, error)
}

type Subscription interface {
	Close() error
}

// applyUpdate validates and applies a partial update in place.
func applyUpdate(order *models.Order, update models.OrderUpdate) error {
	if update.Status != nil && *update.Status != order.Status {
		if err := lifecycle.Transition(order, *update.Status); err != nil {
			return err
		}
	}
	if update.Archived != nil {
		order.Archived = *update.Archived
	}
	if update.Notes != nil {
		order.Notes = *update.Notes
	}
	return nil
}

func prepareNew(order *models.Order, newID func() string, now time.Time) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}
	if order.ID == "" {
		order.ID = newID()
	}
	if order.Status == "" {
		order.Status = models.StatusPending
	}
	if !order.Status.Valid() {
		return fmt.Errorf("invalid order status %q", order.Status)
	}
	if order.OrderTime.IsZero() {
		order.OrderTime = now
	}
	if order.PrepTime <= 0 {
		order.PrepTime = models.DefaultPrepMinutes
	}
	order.UpdatedAt = now
	return nil
}

func sortByOrderTime(orders []models.Order) {
	slices.SortStableFunc(orders, func(a, b models.Order) int {
		return a.OrderTime.Compare(b.OrderTime)
	})
}

func filterOrders(orders []models.Order, filter Filter) []models.Order {
	out := make([]models.Order, 0, len(orders))
	for i := range orders {
		if filter.Match(&orders[i]) {
			out = append(out, orders[i])
		}
	}
	return out
}
