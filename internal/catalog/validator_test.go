package catalog

import (
	"errors"
	"testing"

	"github.com/ovenline/ovenline/internal/models"
)

func testMenu() *Menu {
	return &Menu{Pizzas: []MenuItem{
		{ID: "margie", Name: "Margie", PriceCents: 14900, Active: true},
		{ID: "champ", Name: "Champ", PriceCents: 17900, Active: true},
		{ID: "retired", Name: "Retired", PriceCents: 9900, Active: false},
	}}
}

func TestValidator_ValidateDraft(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		draft      models.Draft
		wantFields []string
		wantPrep   int
	}{
		{
			name: "valid draft",
			draft: models.Draft{
				Platform: models.PlatformWindow,
				PrepTime: "20",
				Pizzas:   []models.DraftItem{{PizzaID: "margie", Quantity: 2}},
			},
			wantPrep: 20,
		},
		{
			name: "blank prep time defaults",
			draft: models.Draft{
				Platform: models.PlatformUberEats,
				Pizzas:   []models.DraftItem{{PizzaID: "champ", Quantity: 1}},
			},
			wantPrep: models.DefaultPrepMinutes,
		},
		{
			name: "missing platform",
			draft: models.Draft{
				Pizzas: []models.DraftItem{{PizzaID: "margie", Quantity: 1}},
			},
			wantFields: []string{"platform"},
		},
		{
			name: "other platform without name",
			draft: models.Draft{
				Platform: models.PlatformOther,
				Pizzas:   []models.DraftItem{{PizzaID: "margie", Quantity: 1}},
			},
			wantFields: []string{"customPlatform"},
		},
		{
			name: "no pizzas",
			draft: models.Draft{
				Platform: models.PlatformWindow,
				Pizzas:   []models.DraftItem{},
			},
			wantFields: []string{"pizzas"},
		},
		{
			name: "pizza not selected and zero quantity",
			draft: models.Draft{
				Platform: models.PlatformWindow,
				Pizzas:   []models.DraftItem{{PizzaID: "", Quantity: 0}},
			},
			wantFields: []string{"pizzas[0].pizzaId", "pizzas[0].quantity"},
		},
		{
			name: "unknown and inactive pizzas",
			draft: models.Draft{
				Platform: models.PlatformWindow,
				Pizzas: []models.DraftItem{
					{PizzaID: "pineapple", Quantity: 1},
					{PizzaID: "retired", Quantity: 1},
				},
			},
			wantFields: []string{"pizzas[0].pizzaId", "pizzas[1].pizzaId"},
		},
		{
			name: "bad prep time",
			draft: models.Draft{
				Platform: models.PlatformWindow,
				PrepTime: "soon",
				Pizzas:   []models.DraftItem{{PizzaID: "margie", Quantity: 1}},
			},
			wantFields: []string{"prepTime"},
		},
		{
			name: "negative prep time",
			draft: models.Draft{
				Platform: models.PlatformWindow,
				PrepTime: "-5",
				Pizzas:   []models.DraftItem{{PizzaID: "margie", Quantity: 1}},
			},
			wantFields: []string{"prepTime"},
		},
	}

	v := NewValidator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			prep, err := v.ValidateDraft(tt.draft, testMenu())
			if len(tt.wantFields) == 0 {
				if err != nil {
					t.Fatalf("ValidateDraft() error = %v", err)
				}
				if prep != tt.wantPrep {
					t.Fatalf("prep = %d, want %d", prep, tt.wantPrep)
				}
				return
			}

			var verrs ValidationErrors
			if !errors.As(err, &verrs) {
				t.Fatalf("ValidateDraft() error = %v, want ValidationErrors", err)
			}
			got := make(map[string]bool, len(verrs))
			for _, fe := range verrs {
				got[fe.Field] = true
				if fe.Reason == "" {
					t.Errorf("field %s has empty reason", fe.Field)
				}
			}
			for _, field := range tt.wantFields {
				if !got[field] {
					t.Errorf("missing error for %s, got %v", field, verrs)
				}
			}
		})
	}
}
