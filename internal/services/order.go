package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/ovenline/ovenline/internal/catalog"
	"github.com/ovenline/ovenline/internal/lifecycle"
	"github.com/ovenline/ovenline/internal/logging"
	"github.com/ovenline/ovenline/internal/models"
	"github.com/ovenline/ovenline/internal/observability"
	"github.com/ovenline/ovenline/internal/queue"
	"github.com/ovenline/ovenline/internal/store"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrCookedMismatch = errors.New("cooked flags do not match the order's pizzas")
)

// menuSource returns the menu already loaded; it must not block on the network.
type menuSource interface {
	Current() *catalog.Menu
}

type draftValidator interface {
	ValidateDraft(draft models.Draft, menu *catalog.Menu) (int, error)
}

type orderPricer interface {
	Price(menu *catalog.Menu, items []models.LineItem) (int64, error)
}

type OrderService struct {
	store     store.Store
	menu      menuSource
	validator draftValidator
	pricer    orderPricer
	metrics   *observability.Metrics
	now       func() time.Time
	logger    *slog.Logger
}

func NewOrderService(orderStore store.Store, menu menuSource, validator draftValidator, pricer orderPricer, metrics *observability.Metrics, logger *slog.Logger) *OrderService {
	return &OrderService{
		store:     orderStore,
		menu:      menu,
		validator: validator,
		pricer:    pricer,
		metrics:   metrics,
		now:       time.Now,
		logger:    logger,
	}
}

func (s *OrderService) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, s.logger)
}

func startSpan(ctx context.Context, name string) (*sentry.Span, context.Context) {
	span := sentry.StartSpan(
		ctx,
		"service.order."+name,
		sentry.WithOpName("service.order"),
		sentry.WithDescription(name),
		sentry.WithSpanOrigin(sentry.SpanOriginManual),
	)
	return span, span.Context()
}

// Create validates an order-entry draft, prices it from the current menu, and
// stores it as a new pending order. Nothing is stored when validation fails.
func (s *OrderService) Create(ctx context.Context, draft models.Draft) (*models.Order, error) {
	span, ctx := startSpan(ctx, "create")
	defer span.Finish()
	logger := s.loggerFromContext(ctx)

	menu := s.menu.Current()
	prepTime, err := s.validator.ValidateDraft(draft, menu)
	if err != nil {
		return nil, err
	}

	items := make([]models.LineItem, len(draft.Pizzas))
	for i, item := range draft.Pizzas {
		items[i] = models.LineItem{
			PizzaID:             item.PizzaID,
			Quantity:            item.Quantity,
			SpecialInstructions: strings.TrimSpace(item.SpecialInstructions),
		}
	}
	total, err := s.pricer.Price(menu, items)
	if err != nil {
		return nil, fmt.Errorf("failed to price order: %w", err)
	}

	order := &models.Order{
		CustomerName: strings.TrimSpace(draft.CustomerName),
		Platform:     draft.ResolvedPlatform(),
		OrderTime:    s.now(),
		PrepTime:     prepTime,
		Status:       models.StatusPending,
		Pizzas:       items,
		TotalCents:   total,
	}
	if err := s.store.CreateOrder(ctx, order); err != nil {
		logger.Error("failed to store order", "error", err)
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	s.metrics.OrderCreated()
	logger.Info("order created",
		"order_id", order.ID,
		"platform", order.Platform,
		"pizzas", order.PizzaCount(),
		"total_cents", order.TotalCents,
	)
	return order, nil
}

func (s *OrderService) Get(ctx context.Context, id string) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, notFound(err)
	}
	return order, nil
}

// ListQuery narrows the order list the way the dashboard filter does.
type ListQuery struct {
	Status models.Status
	Search string
}

// List returns active orders, optionally limited to one status and to
// orders whose id or customer name contains the search text.
func (s *OrderService) List(ctx context.Context, q ListQuery) ([]models.Order, error) {
	filter := store.Filter{}
	if q.Status != "" {
		filter.Statuses = []models.Status{q.Status}
	}
	orders, err := s.store.ListOrders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	search := strings.ToLower(strings.TrimSpace(q.Search))
	if search == "" {
		return orders, nil
	}
	matched := make([]models.Order, 0, len(orders))
	for _, order := range orders {
		if strings.Contains(strings.ToLower(order.ID), search) ||
			strings.Contains(strings.ToLower(order.DisplayCustomer()), search) {
			matched = append(matched, order)
		}
	}
	return matched, nil
}

func (s *OrderService) ListArchived(ctx context.Context) ([]models.Order, error) {
	orders, err := s.store.ListArchived(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived orders: %w", err)
	}
	return orders, nil
}

// Update applies a partial update; status changes must follow the lifecycle.
func (s *OrderService) Update(ctx context.Context, id string, update models.OrderUpdate) (*models.Order, error) {
	span, ctx := startSpan(ctx, "update")
	defer span.Finish()

	if update.Empty() {
		return s.Get(ctx, id)
	}
	order, err := s.store.UpdateOrder(ctx, id, update)
	if err != nil {
		return nil, notFound(err)
	}
	logging.ForOrder(ctx, s.logger, id).Info("order updated", "status", order.Status, "archived", order.Archived)
	return order, nil
}

func (s *OrderService) UpdateStatus(ctx context.Context, id string, status models.Status) (*models.Order, error) {
	return s.Update(ctx, id, models.OrderUpdate{Status: &status})
}

func (s *OrderService) Archive(ctx context.Context, id string) (*models.Order, error) {
	archived := true
	return s.Update(ctx, id, models.OrderUpdate{Archived: &archived})
}

func (s *OrderService) TogglePizza(ctx context.Context, id string, index int, cooked bool) (*models.Order, error) {
	span, ctx := startSpan(ctx, "toggle_pizza")
	defer span.Finish()

	order, err := s.store.UpdatePizzaStatus(ctx, id, index, cooked)
	if err != nil {
		return nil, notFound(err)
	}
	logging.ForOrder(ctx, s.logger, id).Debug("pizza status changed", "index", index, "cooked", cooked, "status", order.Status)
	return order, nil
}

// SetCooked brings every line item in line with flags, toggling only the
// items whose flag differs. The order's state is checked before anything is
// written, but each toggle is persisted on its own: a store failure part way
// through leaves the earlier toggles in place and the error says how many.
func (s *OrderService) SetCooked(ctx context.Context, id string, flags []bool) (*models.Order, error) {
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(flags) != len(order.Pizzas) {
		return nil, fmt.Errorf("%w: got %d cooked flags for %d pizzas", ErrCookedMismatch, len(flags), len(order.Pizzas))
	}

	var changed []int
	for i, cooked := range flags {
		if order.Pizzas[i].IsCooked != cooked {
			changed = append(changed, i)
		}
	}
	if len(changed) == 0 {
		return order, nil
	}
	if order.Status.Terminal() {
		return nil, fmt.Errorf("%w: order is %s", lifecycle.ErrTerminal, order.Status)
	}

	for applied, i := range changed {
		if order, err = s.TogglePizza(ctx, id, i, flags[i]); err != nil {
			return nil, fmt.Errorf("failed to set cooked flags (%d of %d applied): %w", applied, len(changed), err)
		}
	}
	return order, nil
}

func (s *OrderService) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteOrder(ctx, id); err != nil {
		return notFound(err)
	}
	logging.ForOrder(ctx, s.logger, id).Info("order deleted")
	return nil
}

func (s *OrderService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *OrderService) Menu() *catalog.Menu {
	return s.menu.Current()
}

type Stats struct {
	TotalOrders       int                   `json:"totalOrders"`
	ActiveOrders      int                   `json:"activeOrders"`
	OutstandingOrders int                   `json:"outstandingOrders"`
	ArchivedOrders    int                   `json:"archivedOrders"`
	ByStatus          map[models.Status]int `json:"byStatus"`
	TodayOrders       int                   `json:"todayOrders"`
	TodayRevenueCents int64                 `json:"todayRevenueCents"`
	TotalRevenueCents int64                 `json:"totalRevenueCents"`
}

// Stats summarises active and archived orders. Outstanding orders are the
// active ones not yet delivered or cancelled. "Today" starts at local
// midnight in now's location. Cancelled orders count but earn nothing.
func (s *OrderService) Stats(ctx context.Context, now time.Time) (*Stats, error) {
	active, err := s.store.ListOrders(ctx, store.Filter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	archived, err := s.store.ListArchived(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived orders: %w", err)
	}

	year, month, day := now.Date()
	midnight := time.Date(year, month, day, 0, 0, 0, 0, now.Location())

	stats := &Stats{
		ActiveOrders:      len(active),
		OutstandingOrders: len(queue.Active(active)),
		ArchivedOrders:    len(archived),
		ByStatus:          make(map[models.Status]int),
	}
	for _, group := range [][]models.Order{active, archived} {
		for _, order := range group {
			stats.TotalOrders++
			stats.ByStatus[order.Status]++
			revenue := order.TotalCents
			if order.Status == models.StatusCancelled {
				revenue = 0
			}
			stats.TotalRevenueCents += revenue
			if !order.OrderTime.Before(midnight) {
				stats.TodayOrders++
				stats.TodayRevenueCents += revenue
			}
		}
	}
	return stats, nil
}

func notFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrOrderNotFound, err)
	}
	return err
}
