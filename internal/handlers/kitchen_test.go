package handlers

import (
	"context"
	"net/http"
	"slices"
	"testing"
	"time"

	"github.com/ovenline/ovenline/internal/board"
	"github.com/ovenline/ovenline/internal/models"
	"github.com/ovenline/ovenline/internal/store"
	"github.com/ovenline/ovenline/internal/urgency"
)

func TestKitchen_SortsByUrgency(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	now := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	env.h.now = func() time.Time { return now }

	relaxed := env.seed(t, now, models.LineItem{PizzaID: "margie", Name: "Margie", Quantity: 1})
	overdue := env.seed(t, now.Add(-20*time.Minute), models.LineItem{PizzaID: "champ", Name: "Champ", Quantity: 1})
	if err := env.board.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	rec := serve(env.h.Kitchen, http.MethodGet, "/api/kitchen", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d", rec.Code)
	}
	resp := decodeBody[kitchenResponse](t, rec)
	if len(resp.Orders) != 2 {
		t.Fatalf("got %d kitchen orders, want 2", len(resp.Orders))
	}
	if resp.Orders[0].Order.ID != overdue.ID || resp.Orders[1].Order.ID != relaxed.ID {
		t.Fatalf("unexpected order: %s, %s", resp.Orders[0].Order.ID, resp.Orders[1].Order.ID)
	}
	if resp.Orders[0].Urgency.Label != "OVERDUE" || resp.Orders[0].Urgency.Tier != urgency.TierOverdue {
		t.Fatalf("unexpected urgency for overdue order: %+v", resp.Orders[0].Urgency)
	}
	if resp.Orders[1].Urgency.Label != "15 min left" || resp.Orders[1].Remaining != "15 min" {
		t.Fatalf("unexpected urgency for new order: %+v remaining=%q", resp.Orders[1].Urgency, resp.Orders[1].Remaining)
	}
	wantActions := []models.Status{models.StatusInProgress, models.StatusCompleted, models.StatusCancelled}
	if !slices.Equal(resp.Orders[0].Actions, wantActions) {
		t.Fatalf("actions = %v, want %v", resp.Orders[0].Actions, wantActions)
	}
	if !resp.State.Loaded || resp.State.Mode != board.ModePoll {
		t.Fatalf("unexpected board state: %+v", resp.State)
	}
}

func TestRefreshKitchen(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.seed(t, time.Now(), models.LineItem{PizzaID: "margie", Name: "Margie", Quantity: 1})

	rec := serve(env.h.RefreshKitchen, http.MethodPost, "/api/kitchen/refresh", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: got=%d body=%s", rec.Code, rec.Body.String())
	}
	if resp := decodeBody[kitchenResponse](t, rec); len(resp.Orders) != 1 {
		t.Fatalf("got %d kitchen orders, want 1", len(resp.Orders))
	}

	env.board.Close()
	rec = serve(env.h.RefreshKitchen, http.MethodPost, "/api/kitchen/refresh", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("refresh after close: got=%d want=%d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestToggleCooked(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		index      string
		body       string
		wantStatus int
		wantOrder  models.Status
	}{
		{name: "cook one of two", index: "0", body: `{"cooked":true}`, wantStatus: http.StatusOK, wantOrder: models.StatusInProgress},
		{name: "index out of range", index: "5", body: `{"cooked":true}`, wantStatus: http.StatusBadRequest},
		{name: "index not a number", index: "first", body: `{"cooked":true}`, wantStatus: http.StatusBadRequest},
		{name: "missing flag", index: "0", body: `{}`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			order := env.seed(t, time.Now(),
				models.LineItem{PizzaID: "margie", Name: "Margie", Quantity: 1},
				models.LineItem{PizzaID: "champ", Name: "Champ", Quantity: 1},
			)
			if err := env.board.Refresh(context.Background()); err != nil {
				t.Fatalf("Refresh() error = %v", err)
			}

			vars := map[string]string{"id": order.ID, "index": tt.index}
			rec := serve(env.h.ToggleCooked, http.MethodPut, "/", tt.body, vars)
			if rec.Code != tt.wantStatus {
				t.Fatalf("unexpected status: got=%d want=%d body=%s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if doc := decodeBody[store.OrderDocument](t, rec); doc.Status != tt.wantOrder {
				t.Fatalf("status = %s, want %s", doc.Status, tt.wantOrder)
			}
			onBoard, ok := env.board.Get(order.ID)
			if !ok || !onBoard.Pizzas[0].IsCooked {
				t.Fatalf("board copy not updated: %+v", onBoard)
			}
		})
	}
}

func TestKitchenStatusAndArchive(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	order := env.seed(t, time.Now(), models.LineItem{PizzaID: "margie", Name: "Margie", Quantity: 1})
	if err := env.board.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	vars := map[string]string{"id": order.ID}

	rec := serve(env.h.KitchenStatus, http.MethodPut, "/", `{"status":"delivered"}`, vars)
	if rec.Code != http.StatusConflict {
		t.Fatalf("pending to delivered: got=%d want=%d", rec.Code, http.StatusConflict)
	}
	rec = serve(env.h.KitchenStatus, http.MethodPut, "/", `{"status":"completed"}`, vars)
	if rec.Code != http.StatusOK {
		t.Fatalf("pending to completed: got=%d body=%s", rec.Code, rec.Body.String())
	}

	rec = serve(env.h.KitchenArchive, http.MethodPost, "/", "", vars)
	if rec.Code != http.StatusOK {
		t.Fatalf("archive: got=%d body=%s", rec.Code, rec.Body.String())
	}
	if _, ok := env.board.Get(order.ID); ok {
		t.Fatal("archived order still on the board")
	}

	rec = serve(env.h.KitchenOrders, http.MethodGet, "/api/kitchen/orders", "", nil)
	if resp := decodeBody[struct {
		Orders []store.OrderDocument `json:"orders"`
	}](t, rec); len(resp.Orders) != 0 {
		t.Fatalf("got %d open orders, want 0", len(resp.Orders))
	}
}

func TestKitchenNotices_EmptyIsArray(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	rec := serve(env.h.KitchenNotices, http.MethodGet, "/api/kitchen/notices", "", nil)
	resp := decodeBody[map[string][]board.Notice](t, rec)
	notices, ok := resp["notices"]
	if !ok || notices == nil || len(notices) != 0 {
		t.Fatalf("expected empty notices array, got %s", rec.Body.String())
	}
}
