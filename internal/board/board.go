// Package board is the screen controller behind the kitchen display. It keeps
// the latest order list, refreshes it by polling or through a store
// subscription, and applies staff actions optimistically.
package board

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ovenline/ovenline/internal/lifecycle"
	"github.com/ovenline/ovenline/internal/models"
	"github.com/ovenline/ovenline/internal/observability"
	"github.com/ovenline/ovenline/internal/queue"
	"github.com/ovenline/ovenline/internal/settings"
	"github.com/ovenline/ovenline/internal/store"
)

var ErrClosed = errors.New("board is closed")

type Mode string

const (
	ModePoll  Mode = "poll"
	ModeWatch Mode = "watch"
)

const defaultNoticeBuffer = 32

// Preferences supplies the refresh settings; *settings.Manager satisfies it.
type Preferences interface {
	Current() settings.Settings
}

type Options struct {
	Store        store.Store
	Preferences  Preferences
	Mode         Mode
	Filter       store.Filter
	Metrics      *observability.Metrics
	Logger       *slog.Logger
	Now          func() time.Time
	NoticeBuffer int
}

type Board struct {
	store   store.Store
	prefs   Preferences
	mode    Mode
	filter  store.Filter
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time

	mu          sync.Mutex
	orders      []models.Order
	issued      uint64
	applied     uint64
	closed      bool
	loaded      bool
	lastRefresh time.Time
	stale       int

	notices chan Notice
	rearm   chan struct{}
	done    chan struct{}
}

func New(opts Options) (*Board, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("board: store is required")
	}
	if opts.Mode == "" {
		opts.Mode = ModePoll
	}
	if opts.Mode != ModePoll && opts.Mode != ModeWatch {
		return nil, fmt.Errorf("board: unsupported mode %q", opts.Mode)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.NoticeBuffer <= 0 {
		opts.NoticeBuffer = defaultNoticeBuffer
	}

	return &Board{
		store:   opts.Store,
		prefs:   opts.Preferences,
		mode:    opts.Mode,
		filter:  opts.Filter,
		metrics: opts.Metrics,
		logger:  opts.Logger.With("component", "board"),
		now:     opts.Now,
		orders:  []models.Order{},
		notices: make(chan Notice, opts.NoticeBuffer),
		rearm:   make(chan struct{}, 1),
		done:    make(chan struct{}),
	}, nil
}

// Refresh fetches the order list and applies it unless a newer fetch or a
// local change has been applied since this one started.
func (b *Board) Refresh(ctx context.Context) error {
	seq, err := b.begin()
	if err != nil {
		return err
	}

	orders, err := b.store.ListOrders(ctx, b.filter)
	if err != nil {
		b.metrics.BoardRefresh("failed")
		if !b.isClosed() {
			b.publish(Notice{Level: NoticeError, Message: "Could not load orders", Detail: err.Error()})
		}
		return fmt.Errorf("failed to refresh orders: %w", err)
	}

	b.apply(seq, orders)
	return nil
}

func (b *Board) begin() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrClosed
	}
	b.issued++
	return b.issued, nil
}

// apply installs orders fetched under seq. It reports whether they were used.
func (b *Board) apply(seq uint64, orders []models.Order) bool {
	b.mu.Lock()
	if b.closed || seq <= b.applied {
		b.stale++
		b.mu.Unlock()
		b.metrics.BoardRefresh("stale")
		return false
	}
	b.applied = seq
	b.orders = models.CloneAll(orders)
	b.loaded = true
	b.lastRefresh = b.now()
	snapshot := models.CloneAll(b.orders)
	b.mu.Unlock()

	b.metrics.BoardRefresh("applied")
	b.recordDepth(snapshot)
	return true
}

func (b *Board) recordDepth(orders []models.Order) {
	if b.metrics == nil {
		return
	}
	depth := make(map[string]int)
	for _, entry := range queue.Kitchen(orders, b.now()) {
		depth[string(entry.Urgency.Tier)]++
	}
	b.metrics.SetQueueDepth(depth)
}

// Run keeps the board current until ctx ends or the board is closed. In watch
// mode with a store that can push changes it holds one subscription;
// otherwise it polls at the configured refresh interval.
func (b *Board) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-b.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	if b.mode == ModeWatch {
		if sub, ok := b.store.(store.Subscriber); ok {
			err := b.watch(ctx, sub)
			if err == nil || ctx.Err() != nil {
				return nil
			}
			b.logger.Warn("order subscription failed, falling back to polling", "error", err)
		} else {
			b.logger.Info("store cannot push changes, polling instead")
		}
	}
	return b.poll(ctx)
}

func (b *Board) watch(ctx context.Context, sub store.Subscriber) error {
	subscription, err := sub.Subscribe(ctx, b.filter, func(orders []models.Order) {
		seq, err := b.begin()
		if err != nil {
			return
		}
		b.apply(seq, orders)
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := subscription.Close(); err != nil {
			b.logger.Warn("failed to close order subscription", "error", err)
		}
	}()

	<-ctx.Done()
	return nil
}

func (b *Board) poll(ctx context.Context) error {
	b.refreshQuietly(ctx)

	timer := time.NewTimer(b.interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.rearm:
			timer.Reset(b.interval())
		case <-timer.C:
			if b.autoRefresh() {
				b.refreshQuietly(ctx)
			}
			timer.Reset(b.interval())
		}
	}
}

func (b *Board) refreshQuietly(ctx context.Context) {
	if err := b.Refresh(ctx); err != nil && ctx.Err() == nil && !errors.Is(err, ErrClosed) {
		b.logger.Warn("scheduled refresh failed", "error", err)
	}
}

// Reset re-arms the poll timer, typically after the refresh interval changed.
func (b *Board) Reset() {
	select {
	case b.rearm <- struct{}{}:
	default:
	}
}

func (b *Board) interval() time.Duration {
	if b.prefs == nil {
		return settings.Defaults().RefreshEvery()
	}
	return b.prefs.Current().RefreshEvery()
}

func (b *Board) autoRefresh() bool {
	if b.prefs == nil {
		return true
	}
	return b.prefs.Current().AutoRefresh
}

// ToggleCooked marks one line item cooked or not and lets the aggregate
// status follow.
func (b *Board) ToggleCooked(ctx context.Context, id string, index int, cooked bool) (*models.Order, error) {
	return b.mutate(ctx, "toggle", id,
		func(order *models.Order) error {
			return lifecycle.ToggleCooked(order, index, cooked)
		},
		func() (*models.Order, error) {
			return b.store.UpdatePizzaStatus(ctx, id, index, cooked)
		},
	)
}

func (b *Board) UpdateStatus(ctx context.Context, id string, status models.Status) (*models.Order, error) {
	return b.mutate(ctx, "status", id,
		func(order *models.Order) error {
			if order.Status == status {
				return nil
			}
			return lifecycle.Transition(order, status)
		},
		func() (*models.Order, error) {
			return b.store.UpdateOrder(ctx, id, models.OrderUpdate{Status: &status})
		},
	)
}

func (b *Board) Archive(ctx context.Context, id string) (*models.Order, error) {
	archived := true
	return b.mutate(ctx, "archive", id,
		func(order *models.Order) error {
			order.Archived = true
			return nil
		},
		func() (*models.Order, error) {
			return b.store.UpdateOrder(ctx, id, models.OrderUpdate{Archived: &archived})
		},
	)
}

// mutate applies a change locally before persisting it. Fetches that were in
// flight when the change was applied are discarded. If the store rejects the
// change the local copy is restored, a notice is published, and the list is
// fetched again. Failed changes are not retried.
func (b *Board) mutate(ctx context.Context, action, id string, apply func(*models.Order) error, persist func() (*models.Order, error)) (*models.Order, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	idx := b.indexLocked(id)
	var snapshot *models.Order
	if idx >= 0 {
		before := b.orders[idx].Clone()
		next := before.Clone()
		if err := apply(&next); err != nil {
			b.mu.Unlock()
			return nil, err
		}
		snapshot = &before
		if b.filter.Match(&next) {
			b.orders[idx] = next
		} else {
			b.orders = slices.Delete(b.orders, idx, idx+1)
		}
		b.issued++
		b.applied = b.issued
	}
	b.mu.Unlock()

	saved, err := persist()
	if err != nil {
		if snapshot != nil {
			b.restore(*snapshot, idx)
		}
		b.metrics.BoardRollback(action)
		b.publish(Notice{Level: NoticeError, OrderID: id, Message: failureMessage(action), Detail: err.Error()})
		b.logger.Warn("order change rejected, reverted", "action", action, "order_id", id, "error", err)
		if refreshErr := b.Refresh(ctx); refreshErr != nil && !errors.Is(refreshErr, ErrClosed) {
			b.logger.Warn("refresh after rejected change failed", "error", refreshErr)
		}
		return nil, err
	}

	b.settle(*saved)
	return saved, nil
}

// restore puts the pre-change copy back, at its old position if it was removed.
func (b *Board) restore(snapshot models.Order, idx int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if i := b.indexLocked(snapshot.ID); i >= 0 {
		b.orders[i] = snapshot
		return
	}
	idx = min(max(idx, 0), len(b.orders))
	b.orders = slices.Insert(b.orders, idx, snapshot)
}

// settle replaces the optimistic copy with what the store returned.
func (b *Board) settle(saved models.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	i := b.indexLocked(saved.ID)
	switch {
	case i >= 0 && b.filter.Match(&saved):
		b.orders[i] = saved.Clone()
	case i >= 0:
		b.orders = slices.Delete(b.orders, i, i+1)
	}
}

func (b *Board) indexLocked(id string) int {
	return slices.IndexFunc(b.orders, func(o models.Order) bool { return o.ID == id })
}

// Kitchen returns the sorted kitchen queue as of now.
func (b *Board) Kitchen(now time.Time) []queue.Entry {
	return queue.Kitchen(b.snapshot(), now)
}

// Orders returns the open-orders view.
func (b *Board) Orders() []models.Order {
	return queue.Open(b.snapshot())
}

func (b *Board) Get(id string) (models.Order, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := b.indexLocked(id); i >= 0 {
		return b.orders[i].Clone(), true
	}
	return models.Order{}, false
}

func (b *Board) snapshot() []models.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	return models.CloneAll(b.orders)
}

// State describes freshness of the board's data.
type State struct {
	Mode        Mode      `json:"mode"`
	Loaded      bool      `json:"loaded"`
	LastRefresh time.Time `json:"lastRefresh,omitzero"`
	Discarded   int       `json:"discardedFetches"`
}

func (b *Board) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return State{Mode: b.mode, Loaded: b.loaded, LastRefresh: b.lastRefresh, Discarded: b.stale}
}

// Close stops Run and discards any fetch that completes afterwards.
func (b *Board) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
}

func (b *Board) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func failureMessage(action string) string {
	switch action {
	case "toggle":
		return "Could not update pizza status"
	case "status":
		return "Could not update order status"
	case "archive":
		return "Could not archive order"
	default:
		return "Could not save change"
	}
}
