// Package urgency derives due times and urgency from an order's prep time and
// the current clock.
package urgency

import (
	"fmt"
	"time"

	"github.com/ovenline/ovenline/internal/models"
)

type Level string

const (
	LevelOverdue Level = "overdue"
	LevelUrgent  Level = "urgent"
	LevelNormal  Level = "normal"
)

// Tier is the coarse bucket the kitchen queue sorts on.
type Tier string

const (
	TierOverdue Tier = "overdue"
	TierHigh    Tier = "high"
	TierMedium  Tier = "medium"
	TierLow     Tier = "low"
)

const (
	// UrgentWindow is how close to the due time an order turns urgent.
	UrgentWindow = 5
	// RelaxedAfter is the remaining time from which a normal order sorts as low.
	RelaxedAfter = 15
)

// Rank orders tiers for sorting. Unknown tiers rank with medium.
func (t Tier) Rank() int {
	switch t {
	case TierOverdue:
		return 0
	case TierHigh:
		return 1
	case TierLow:
		return 3
	default:
		return 2
	}
}

// DueTime is the instant the order should be ready.
func DueTime(orderTime time.Time, prepMinutes int) time.Time {
	return orderTime.Add(time.Duration(prepMinutes) * time.Minute)
}

type Assessment struct {
	Due         time.Time `json:"dueTime"`
	MinutesLeft int       `json:"minutesLeft"`
	Level       Level     `json:"level"`
	Tier        Tier      `json:"tier"`
	Label       string    `json:"label"`
}

// Remaining formats the signed minutes left, e.g. "4 min" or "-1 min".
func (a Assessment) Remaining() string {
	return fmt.Sprintf("%d min", a.MinutesLeft)
}

// Assess recomputes urgency for the order at now.
func Assess(order *models.Order, now time.Time) Assessment {
	return AssessDue(DueTime(order.OrderTime, order.PrepMinutes()), now)
}

// AssessDue classifies the remaining time until due.
func AssessDue(due, now time.Time) Assessment {
	left := floorMinutes(due.Sub(now))
	a := Assessment{Due: due, MinutesLeft: left}

	switch {
	case left < 0:
		a.Level = LevelOverdue
		a.Tier = TierOverdue
		a.Label = "OVERDUE"
	case left < UrgentWindow:
		a.Level = LevelUrgent
		a.Tier = TierHigh
		a.Label = "URGENT"
	default:
		a.Level = LevelNormal
		a.Tier = TierMedium
		if left >= RelaxedAfter {
			a.Tier = TierLow
		}
		a.Label = fmt.Sprintf("%d min left", left)
	}
	return a
}

// TierAt is a convenience for sorters.
func TierAt(now time.Time) func(*models.Order) Tier {
	return func(order *models.Order) Tier {
		return Assess(order, now).Tier
	}
}

// FixedTier classifies an order from its prep time alone, the way older
// clients did at creation. It only feeds the legacy urgency field on the wire;
// it goes stale as soon as the clock moves, so scheduling uses Assess.
func FixedTier(prepMinutes int) Tier {
	switch {
	case prepMinutes <= 15:
		return TierHigh
	case prepMinutes <= 30:
		return TierMedium
	default:
		return TierLow
	}
}

func floorMinutes(d time.Duration) int {
	m := d / time.Minute
	if d < 0 && d%time.Minute != 0 {
		m--
	}
	return int(m)
}
