package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ovenline/ovenline/internal/lifecycle"
	"github.com/ovenline/ovenline/internal/models"
)

type MemoryStore struct {
	mu       sync.RWMutex
	orders   map[string]models.Order
	now      func() time.Time
	watchers map[int]*memoryWatcher
	nextID   int
}

type memoryWatcher struct {
	filter Filter
	fn     func([]models.Order)
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:   make(map[string]models.Order),
		now:      time.Now,
		watchers: make(map[int]*memoryWatcher),
	}
}

func (m *MemoryStore) ListOrders(ctx context.Context, filter Filter) ([]models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(filter), nil
}

func (m *MemoryStore) listLocked(filter Filter) []models.Order {
	out := make([]models.Order, 0, len(m.orders))
	for _, order := range m.orders {
		if filter.Match(&order) {
			out = append(out, order.Clone())
		}
	}
	sortByOrderTime(out)
	return out
}

func (m *MemoryStore) ListArchived(ctx context.Context) ([]models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Order, 0)
	for _, order := range m.orders {
		if order.Archived {
			out = append(out, order.Clone())
		}
	}
	sortByOrderTime(out)
	return out, nil
}

func (m *MemoryStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	order, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := order.Clone()
	return &clone, nil
}

func (m *MemoryStore) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := prepareNew(order, uuid.NewString, m.now()); err != nil {
		return err
	}
	m.mu.Lock()
	m.orders[order.ID] = order.Clone()
	m.mu.Unlock()
	m.notify()
	return nil
}

func (m *MemoryStore) UpdateOrder(ctx context.Context, id string, update models.OrderUpdate) (*models.Order, error) {
	return m.mutate(ctx, id, func(order *models.Order) error {
		return applyUpdate(order, update)
	})
}

func (m *MemoryStore) UpdatePizzaStatus(ctx context.Context, id string, index int, cooked bool) (*models.Order, error) {
	return m.mutate(ctx, id, func(order *models.Order) error {
		return lifecycle.ToggleCooked(order, index, cooked)
	})
}

func (m *MemoryStore) mutate(ctx context.Context, id string, apply func(*models.Order) error) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	current, ok := m.orders[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	next := current.Clone()
	if err := apply(&next); err != nil {
		m.mu.Unlock()
		return nil, err
	}
	next.UpdatedAt = m.now()
	m.orders[id] = next
	m.mu.Unlock()

	m.notify()
	result := next.Clone()
	return &result, nil
}

func (m *MemoryStore) DeleteOrder(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if _, ok := m.orders[id]; !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.orders, id)
	m.mu.Unlock()
	m.notify()
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.watchers)
	return nil
}

// Subscribe delivers the current list immediately and again after every change.
func (m *MemoryStore) Subscribe(ctx context.Context, filter Filter, fn func([]models.Order)) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = &memoryWatcher{filter: filter, fn: fn}
	initial := m.listLocked(filter)
	m.mu.Unlock()

	fn(initial)
	return &memorySubscription{store: m, id: id}, nil
}

func (m *MemoryStore) notify() {
	type emission struct {
		fn     func([]models.Order)
		orders []models.Order
	}
	m.mu.RLock()
	pending := make([]emission, 0, len(m.watchers))
	for _, w := range m.watchers {
		pending = append(pending, emission{fn: w.fn, orders: m.listLocked(w.filter)})
	}
	m.mu.RUnlock()

	for _, e := range pending {
		e.fn(e.orders)
	}
}

type memorySubscription struct {
	store *MemoryStore
	id    int
	once  sync.Once
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.store.mu.Lock()
		delete(s.store.watchers, s.id)
		s.store.mu.Unlock()
	})
	return nil
}
