// Package lifecycle holds the order status state machine.
package lifecycle

import (
	"errors"
	"fmt"

	"github.com/ovenline/ovenline/internal/models"
)

var (
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrTerminal          = errors.New("order is already delivered or cancelled")
	ErrItemIndex         = errors.New("line item index out of range")
)

var allowed = map[models.Status]map[models.Status]bool{
	models.StatusPending: {
		models.StatusInProgress: true,
		models.StatusCompleted:  true,
		models.StatusCancelled:  true,
	},
	models.StatusInProgress: {
		models.StatusCompleted: true,
		models.StatusCancelled: true,
	},
	models.StatusCompleted: {
		models.StatusDelivered: true,
		models.StatusCancelled: true,
	},
	models.StatusDelivered: {},
	models.StatusCancelled: {},
}

// CanTransition reports whether a manual status change from -> to is allowed.
func CanTransition(from, to models.Status) bool {
	next := allowed[from]
	return next != nil && next[to]
}

// NextStatuses lists the manual actions available from a status.
func NextStatuses(from models.Status) []models.Status {
	ordered := []models.Status{
		models.StatusInProgress,
		models.StatusCompleted,
		models.StatusDelivered,
		models.StatusCancelled,
	}
	out := make([]models.Status, 0, len(ordered))
	for _, to := range ordered {
		if CanTransition(from, to) {
			out = append(out, to)
		}
	}
	return out
}

// Transition applies a manual status change to the order.
func Transition(order *models.Order, to models.Status) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}
	if !CanTransition(order.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, to)
	}
	order.Status = to
	return nil
}

// ToggleCooked sets one line item's cooked flag and recomputes the aggregate
// status from the item flags. It is the only path that may move an order from
// completed back to in-progress.
func ToggleCooked(order *models.Order, index int, cooked bool) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}
	if order.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrTerminal, order.Status)
	}
	if index < 0 || index >= len(order.Pizzas) {
		return fmt.Errorf("%w: %d of %d", ErrItemIndex, index, len(order.Pizzas))
	}

	order.Pizzas[index].IsCooked = cooked
	order.Status = AggregateStatus(order)
	return nil
}

// AggregateStatus derives the status implied by the line items' cooked flags
// after a toggle: all cooked means completed, anything else means the kitchen
// has started on the order.
func AggregateStatus(order *models.Order) models.Status {
	if order.Status.Terminal() {
		return order.Status
	}
	if len(order.Pizzas) == 0 {
		return order.Status
	}
	for _, item := range order.Pizzas {
		if !item.IsCooked {
			return models.StatusInProgress
		}
	}
	return models.StatusCompleted
}

// CookedFlags returns the per-item cooked flags in line-item order.
func CookedFlags(order *models.Order) []bool {
	flags := make([]bool, len(order.Pizzas))
	for i, item := range order.Pizzas {
		flags[i] = item.IsCooked
	}
	return flags
}
