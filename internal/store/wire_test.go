package store

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/ovenline/ovenline/internal/models"
	"github.com/ovenline/ovenline/internal/urgency"
)

func TestDecodeOrder_Aliases(t *testing.T) {
	t.Parallel()

	payload := `{
		"_id": "abc123",
		"customerName": "Sam",
		"platform": "Uber Eats",
		"createdAt": 1714564800000,
		"prepTime": "20",
		"status": "Cooking",
		"isArchived": true,
		"pizzas": [
			{"pizzaType": "Margie", "quantity": "2", "notes": "extra cheese"},
			{"pizzaId": "champ", "name": "Champ", "quantity": 1}
		],
		"cooked": [true, false],
		"totalAmount": 47.7
	}`

	order, err := DecodeOrder([]byte(payload))
	if err != nil {
		t.Fatalf("DecodeOrder() error = %v", err)
	}
	if order.ID != "abc123" {
		t.Errorf("id = %q", order.ID)
	}
	if !order.OrderTime.Equal(time.UnixMilli(1714564800000)) {
		t.Errorf("orderTime = %v", order.OrderTime)
	}
	if order.PrepTime != 20 {
		t.Errorf("prepTime = %d", order.PrepTime)
	}
	if order.Status != models.StatusInProgress {
		t.Errorf("status = %s", order.Status)
	}
	if !order.Archived {
		t.Error("expected archived")
	}
	if order.TotalCents != 4770 {
		t.Errorf("totalCents = %d", order.TotalCents)
	}
	first := order.Pizzas[0]
	if first.PizzaID != "Margie" || first.Name != "Margie" || first.Quantity != 2 || !first.IsCooked || first.SpecialInstructions != "extra cheese" {
		t.Errorf("first pizza = %+v", first)
	}
	if order.Pizzas[1].IsCooked {
		t.Error("second pizza should not be cooked")
	}
}

func TestDecodeOrder_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		payload string
	}{
		{name: "missing id", payload: `{"platform":"Window"}`},
		{name: "unknown status", payload: `{"id":"1","status":"lost"}`},
		{name: "bad time", payload: `{"id":"1","orderTime":"yesterday"}`},
		{name: "not json", payload: `nope`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := DecodeOrder([]byte(tt.payload)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDecodeOrders_Wrapped(t *testing.T) {
	t.Parallel()

	orders, err := DecodeOrders([]byte(`{"orders":[{"id":"a"},{"orderId":"b","status":"ready"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 2 || orders[0].Status != models.StatusPending || orders[1].Status != models.StatusCompleted {
		t.Fatalf("orders = %+v", orders)
	}

	empty, err := DecodeOrders([]byte(`null`))
	if err != nil || len(empty) != 0 {
		t.Fatalf("DecodeOrders(null) = %v, %v", empty, err)
	}
}

func TestEncodeOrder_RoundTripsThroughDecode(t *testing.T) {
	t.Parallel()

	order := models.Order{
		ID:         "x1",
		Platform:   models.PlatformBoltFood,
		OrderTime:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		PrepTime:   12,
		Status:     models.StatusCompleted,
		Pizzas:     []models.LineItem{{PizzaID: "spud", Name: "Spud", Quantity: 1, IsCooked: true}},
		TotalCents: 14900,
	}
	doc := EncodeOrder(order)
	if doc.TotalAmount != 149 || len(doc.Cooked) != 1 || !doc.Cooked[0] {
		t.Fatalf("doc = %+v", doc)
	}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := DecodeOrder(data)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.ID != order.ID || !decoded.OrderTime.Equal(order.OrderTime) || decoded.TotalCents != order.TotalCents || decoded.Status != order.Status {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestEncodeOrder_LegacyUrgency(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		prepTime int
		want     urgency.Tier
	}{
		{name: "quick", prepTime: 10, want: urgency.TierHigh},
		{name: "default prep", prepTime: 0, want: urgency.TierHigh},
		{name: "half hour", prepTime: 30, want: urgency.TierMedium},
		{name: "slow", prepTime: 45, want: urgency.TierLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			doc := EncodeOrder(models.Order{ID: "x", PrepTime: tt.prepTime})
			if doc.Urgency != tt.want {
				t.Fatalf("Urgency = %q, want %q", doc.Urgency, tt.want)
			}

			data, err := json.Marshal(doc)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(string(data), `"urgency":"`+string(tt.want)+`"`) {
				t.Fatalf("encoded document %s lacks urgency", data)
			}
		})
	}
}
