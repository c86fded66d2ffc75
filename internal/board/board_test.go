package board

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ovenline/ovenline/internal/lifecycle"
	"github.com/ovenline/ovenline/internal/models"
	"github.com/ovenline/ovenline/internal/store"
)

// fakeStore wraps a MemoryStore so tests can hold list calls open and make
// writes fail. A held list call has already read the store when it blocks.
type fakeStore struct {
	*store.MemoryStore

	mu          sync.Mutex
	gates       []chan struct{}
	listCalls   int
	updateCalls int
	failWrites  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{MemoryStore: store.NewMemoryStore()}
}

func (f *fakeStore) hold() chan struct{} {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gates = append(f.gates, gate)
	f.mu.Unlock()
	return gate
}

func (f *fakeStore) ListOrders(ctx context.Context, filter store.Filter) ([]models.Order, error) {
	orders, err := f.MemoryStore.ListOrders(ctx, filter)

	f.mu.Lock()
	f.listCalls++
	var gate chan struct{}
	if len(f.gates) > 0 {
		gate = f.gates[0]
		f.gates = f.gates[1:]
	}
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return orders, err
}

func (f *fakeStore) UpdatePizzaStatus(ctx context.Context, id string, index int, cooked bool) (*models.Order, error) {
	if err := f.writeErr(); err != nil {
		return nil, err
	}
	return f.MemoryStore.UpdatePizzaStatus(ctx, id, index, cooked)
}

func (f *fakeStore) UpdateOrder(ctx context.Context, id string, update models.OrderUpdate) (*models.Order, error) {
	if err := f.writeErr(); err != nil {
		return nil, err
	}
	return f.MemoryStore.UpdateOrder(ctx, id, update)
}

func (f *fakeStore) writeErr() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateCalls++
	return f.failWrites
}

func (f *fakeStore) calls() (list, update int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls, f.updateCalls
}

func seedOrder(t *testing.T, s *fakeStore, customer string, at time.Time) models.Order {
	t.Helper()
	order := &models.Order{
		CustomerName: customer,
		Platform:     models.PlatformWindow,
		OrderTime:    at,
		PrepTime:     15,
		Pizzas: []models.LineItem{
			{PizzaID: "margie", Name: "Margie", Quantity: 1},
			{PizzaID: "spud", Name: "Spud", Quantity: 1},
		},
	}
	if err := s.CreateOrder(context.Background(), order); err != nil {
		t.Fatal(err)
	}
	return *order
}

func newTestBoard(t *testing.T, s *fakeStore, mode Mode) *Board {
	t.Helper()
	b, err := New(Options{Store: s, Mode: mode, NoticeBuffer: 4})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(b.Close)
	return b
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestBoard_StaleFetchIsDiscarded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newFakeStore()
	b := newTestBoard(t, s, ModePoll)
	seedOrder(t, s, "First", time.Now())

	gate := s.hold()
	errc := make(chan error, 1)
	go func() { errc <- b.Refresh(ctx) }()
	waitFor(t, "first fetch to read", func() bool { list, _ := s.calls(); return list == 1 })

	seedOrder(t, s, "Second", time.Now())
	if err := b.Refresh(ctx); err != nil {
		t.Fatal(err)
	}
	close(gate)
	if err := <-errc; err != nil {
		t.Fatal(err)
	}

	if got := len(b.Orders()); got != 2 {
		t.Fatalf("orders = %d, want 2 from the newer fetch", got)
	}
	if state := b.State(); state.Discarded != 1 || !state.Loaded {
		t.Fatalf("state = %+v", state)
	}
}

func TestBoard_LocalChangeDiscardsInFlightFetch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newFakeStore()
	b := newTestBoard(t, s, ModePoll)
	order := seedOrder(t, s, "Ann", time.Now())
	if err := b.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	gate := s.hold()
	errc := make(chan error, 1)
	go func() { errc <- b.Refresh(ctx) }()
	waitFor(t, "fetch to read", func() bool { list, _ := s.calls(); return list == 2 })

	updated, err := b.ToggleCooked(ctx, order.ID, 0, true)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != models.StatusInProgress {
		t.Fatalf("status = %s, want in-progress", updated.Status)
	}

	close(gate)
	if err := <-errc; err != nil {
		t.Fatal(err)
	}

	got, ok := b.Get(order.ID)
	if !ok {
		t.Fatal("order missing from board")
	}
	if !got.Pizzas[0].IsCooked || got.Status != models.StatusInProgress {
		t.Fatalf("stale fetch overwrote local change: %+v", got)
	}
}

func TestBoard_ToggleRollsBackOnFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newFakeStore()
	b := newTestBoard(t, s, ModePoll)
	order := seedOrder(t, s, "Ann", time.Now())
	if err := b.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	s.mu.Lock()
	s.failWrites = errors.New("backend offline")
	s.mu.Unlock()

	if _, err := b.ToggleCooked(ctx, order.ID, 0, true); err == nil {
		t.Fatal("expected error")
	}

	got, _ := b.Get(order.ID)
	if got.Pizzas[0].IsCooked || got.Status != models.StatusPending {
		t.Fatalf("local change not reverted: %+v", got)
	}
	notices := b.DrainNotices()
	if len(notices) != 1 || notices[0].OrderID != order.ID || notices[0].Level != NoticeError {
		t.Fatalf("notices = %+v", notices)
	}
	if list, _ := s.calls(); list != 2 {
		t.Fatalf("list calls = %d, want a re-fetch after the failure", list)
	}
	if _, update := s.calls(); update != 1 {
		t.Fatalf("update calls = %d, want no retry", update)
	}
}

func TestBoard_InvalidTransitionNeverReachesStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newFakeStore()
	b := newTestBoard(t, s, ModePoll)
	order := seedOrder(t, s, "Ann", time.Now())
	if err := b.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := b.UpdateStatus(ctx, order.ID, models.StatusDelivered); !errors.Is(err, lifecycle.ErrInvalidTransition) {
		t.Fatalf("error = %v, want ErrInvalidTransition", err)
	}
	if _, update := s.calls(); update != 0 {
		t.Fatalf("update calls = %d, want 0", update)
	}

	updated, err := b.UpdateStatus(ctx, order.ID, models.StatusCompleted)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != models.StatusCompleted {
		t.Fatalf("status = %s", updated.Status)
	}
}

func TestBoard_Archive(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newFakeStore()
	b := newTestBoard(t, s, ModePoll)
	first := seedOrder(t, s, "First", time.Now().Add(-time.Minute))
	second := seedOrder(t, s, "Second", time.Now())
	if err := b.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	s.mu.Lock()
	s.failWrites = errors.New("backend offline")
	s.mu.Unlock()
	if _, err := b.Archive(ctx, first.ID); err == nil {
		t.Fatal("expected error")
	}
	orders := b.Orders()
	if len(orders) != 2 || orders[0].ID != first.ID {
		t.Fatalf("rollback did not restore order: %+v", orders)
	}

	s.mu.Lock()
	s.failWrites = nil
	s.mu.Unlock()
	if _, err := b.Archive(ctx, first.ID); err != nil {
		t.Fatal(err)
	}
	orders = b.Orders()
	if len(orders) != 1 || orders[0].ID != second.ID {
		t.Fatalf("archived order still listed: %+v", orders)
	}
}

func TestBoard_CloseDiscardsLateResults(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newFakeStore()
	b, err := New(Options{Store: s})
	if err != nil {
		t.Fatal(err)
	}
	order := seedOrder(t, s, "Ann", time.Now())

	gate := s.hold()
	errc := make(chan error, 1)
	go func() { errc <- b.Refresh(ctx) }()
	waitFor(t, "fetch to read", func() bool { list, _ := s.calls(); return list == 1 })

	b.Close()
	close(gate)
	if err := <-errc; err != nil {
		t.Fatal(err)
	}
	if got := len(b.Orders()); got != 0 {
		t.Fatalf("orders = %d after close, want 0", got)
	}
	if err := b.Refresh(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("Refresh() after close = %v, want ErrClosed", err)
	}
	if _, err := b.ToggleCooked(ctx, order.ID, 0, true); !errors.Is(err, ErrClosed) {
		t.Fatalf("ToggleCooked() after close = %v, want ErrClosed", err)
	}
}

func TestBoard_WatchMode(t *testing.T) {
	t.Parallel()
	s := newFakeStore()
	b := newTestBoard(t, s, ModeWatch)
	seedOrder(t, s, "Ann", time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- b.Run(ctx) }()

	waitFor(t, "initial emission", func() bool { return len(b.Orders()) == 1 })
	seedOrder(t, s, "Bob", time.Now())
	waitFor(t, "change emission", func() bool { return len(b.Orders()) == 2 })

	cancel()
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	if list, _ := s.calls(); list != 0 {
		t.Fatalf("list calls = %d, watch mode should not poll", list)
	}
}

func TestBoard_PollStopsOnClose(t *testing.T) {
	t.Parallel()
	s := newFakeStore()
	b, err := New(Options{Store: s, Mode: ModePoll})
	if err != nil {
		t.Fatal(err)
	}
	seedOrder(t, s, "Ann", time.Now())

	runErr := make(chan error, 1)
	go func() { runErr <- b.Run(context.Background()) }()
	waitFor(t, "initial poll", func() bool { return b.State().Loaded })

	b.Close()
	select {
	case err := <-runErr:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after Close")
	}
}

func TestBoard_NoticesDropOldest(t *testing.T) {
	t.Parallel()
	b, err := New(Options{Store: newFakeStore(), NoticeBuffer: 2})
	if err != nil {
		t.Fatal(err)
	}
	for _, msg := range []string{"one", "two", "three"} {
		b.publish(Notice{Level: NoticeInfo, Message: msg})
	}
	notices := b.DrainNotices()
	if len(notices) != 2 || notices[0].Message != "two" || notices[1].Message != "three" {
		t.Fatalf("notices = %+v", notices)
	}
}

func TestBoard_KitchenView(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newFakeStore()
	b := newTestBoard(t, s, ModePoll)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	relaxed := seedOrder(t, s, "Relaxed", now.Add(-time.Minute))
	late := seedOrder(t, s, "Late", now.Add(-30*time.Minute))
	if err := b.Refresh(ctx); err != nil {
		t.Fatal(err)
	}

	entries := b.Kitchen(now)
	if len(entries) != 2 || entries[0].Order.ID != late.ID || entries[1].Order.ID != relaxed.ID {
		t.Fatalf("kitchen order = %+v", entries)
	}
	if entries[0].Urgency.Label != "OVERDUE" {
		t.Fatalf("label = %q", entries[0].Urgency.Label)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()
	if _, err := New(Options{}); err == nil {
		t.Fatal("expected error without store")
	}
	if _, err := New(Options{Store: newFakeStore(), Mode: "push"}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
