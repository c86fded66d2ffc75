package catalog

import (
	"fmt"

	"github.com/ovenline/ovenline/internal/models"
)

type Pricer struct{}

func NewPricer() *Pricer {
	return &Pricer{}
}

// Price fills in names and unit prices from the menu and returns the order total in cents.
func (p *Pricer) Price(menu *Menu, items []models.LineItem) (int64, error) {
	var total int64
	for i := range items {
		item, ok := menu.Find(items[i].PizzaID)
		if !ok {
			return 0, fmt.Errorf("pizza %s not found on the menu", items[i].PizzaID)
		}
		items[i].PizzaID = item.ID
		items[i].Name = item.Name
		items[i].UnitPriceCents = item.PriceCents
		total += item.PriceCents * int64(items[i].Quantity)
	}
	return total, nil
}
