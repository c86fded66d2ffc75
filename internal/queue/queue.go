// Package queue builds the kitchen and order-list views from a set of orders.
package queue

import (
	"slices"
	"time"

	"github.com/ovenline/ovenline/internal/models"
	"github.com/ovenline/ovenline/internal/urgency"
)

type Entry struct {
	Order   models.Order       `json:"order"`
	Urgency urgency.Assessment `json:"urgency"`
}

// Active drops delivered, cancelled, and archived orders.
func Active(orders []models.Order) []models.Order {
	return filter(orders, func(o *models.Order) bool {
		return !o.Archived && !o.Status.Terminal()
	})
}

// Open is the order-list view: everything not yet delivered or archived.
func Open(orders []models.Order) []models.Order {
	return filter(orders, func(o *models.Order) bool {
		return !o.Archived && o.Status != models.StatusDelivered
	})
}

// Cooking keeps the orders the kitchen still has to work on.
func Cooking(orders []models.Order) []models.Order {
	return filter(orders, func(o *models.Order) bool {
		return !o.Archived && (o.Status == models.StatusPending || o.Status == models.StatusInProgress)
	})
}

// Sort returns a new slice ordered by tier rank, then oldest order first.
// Equal keys keep their input order.
func Sort(orders []models.Order, tierOf func(*models.Order) urgency.Tier) []models.Order {
	sorted := make([]models.Order, len(orders))
	copy(sorted, orders)

	ranks := make(map[*models.Order]int, len(sorted))
	keyed := make([]*models.Order, len(sorted))
	for i := range sorted {
		keyed[i] = &sorted[i]
		ranks[keyed[i]] = tierOf(keyed[i]).Rank()
	}

	slices.SortStableFunc(keyed, func(a, b *models.Order) int {
		if ra, rb := ranks[a], ranks[b]; ra != rb {
			return ra - rb
		}
		return a.OrderTime.Compare(b.OrderTime)
	})

	out := make([]models.Order, len(keyed))
	for i, o := range keyed {
		out[i] = *o
	}
	return out
}

// Kitchen is the kitchen display: orders still to cook, most at-risk first.
func Kitchen(orders []models.Order, now time.Time) []Entry {
	sorted := Sort(Cooking(orders), urgency.TierAt(now))
	entries := make([]Entry, len(sorted))
	for i := range sorted {
		entries[i] = Entry{
			Order:   sorted[i],
			Urgency: urgency.Assess(&sorted[i], now),
		}
	}
	return entries
}

func filter(orders []models.Order, keep func(*models.Order) bool) []models.Order {
	out := make([]models.Order, 0, len(orders))
	for i := range orders {
		if keep(&orders[i]) {
			out = append(out, orders[i])
		}
	}
	return out
}
