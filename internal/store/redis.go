package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ovenline/ovenline/internal/lifecycle"
	"github.com/ovenline/ovenline/internal/models"
)

const (
	redisActiveKey     = "orders:active"
	redisArchivedKey   = "orders:archived"
	redisChangeChannel = "orders:changed"
)

// RedisStore keeps one JSON document per order and indexes them in two
// sorted sets scored by order time.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisStore(connectionString string, logger *slog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis connection string: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close() //nolint
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, logger: logger}, nil
}

func redisOrderKey(id string) string {
	return "order:" + id
}

func redisIndexKey(archived bool) string {
	if archived {
		return redisArchivedKey
	}
	return redisActiveKey
}

func (r *RedisStore) ListOrders(ctx context.Context, filter Filter) ([]models.Order, error) {
	orders, err := r.listIndex(ctx, redisActiveKey)
	if err != nil {
		return nil, err
	}
	return filterOrders(orders, filter), nil
}

func (r *RedisStore) ListArchived(ctx context.Context) ([]models.Order, error) {
	return r.listIndex(ctx, redisArchivedKey)
}

func (r *RedisStore) listIndex(ctx context.Context, index string) ([]models.Order, error) {
	ids, err := r.client.ZRange(ctx, index, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", index, err)
	}
	if len(ids) == 0 {
		return []models.Order{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisOrderKey(id)
	}
	docs, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}

	orders := make([]models.Order, 0, len(docs))
	for i, doc := range docs {
		raw, ok := doc.(string)
		if !ok {
			// Index entry without a document; skip it.
			continue
		}
		var order models.Order
		if err := json.Unmarshal([]byte(raw), &order); err != nil {
			return nil, fmt.Errorf("failed to decode order %s: %w", ids[i], err)
		}
		orders = append(orders, order)
	}
	sortByOrderTime(orders)
	return orders, nil
}

func (r *RedisStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	raw, err := r.client.Get(ctx, redisOrderKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", id, err)
	}
	var order models.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("failed to decode order %s: %w", id, err)
	}
	return &order, nil
}

func (r *RedisStore) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := prepareNew(order, uuid.NewString, time.Now()); err != nil {
		return err
	}
	return r.save(ctx, order, false)
}

func (r *RedisStore) UpdateOrder(ctx context.Context, id string, update models.OrderUpdate) (*models.Order, error) {
	return r.mutate(ctx, id, func(order *models.Order) error {
		return applyUpdate(order, update)
	})
}

func (r *RedisStore) UpdatePizzaStatus(ctx context.Context, id string, index int, cooked bool) (*models.Order, error) {
	return r.mutate(ctx, id, func(order *models.Order) error {
		return lifecycle.ToggleCooked(order, index, cooked)
	})
}

// mutate is a plain read-modify-write; concurrent edits are last-write-wins.
func (r *RedisStore) mutate(ctx context.Context, id string, apply func(*models.Order) error) (*models.Order, error) {
	order, err := r.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	wasArchived := order.Archived
	if err := apply(order); err != nil {
		return nil, err
	}
	order.UpdatedAt = time.Now()
	if err := r.save(ctx, order, wasArchived != order.Archived); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *RedisStore) save(ctx context.Context, order *models.Order, reindex bool) error {
	doc, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to encode order: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		queueSave(ctx, pipe, order, doc, reindex)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save order %s: %w", order.ID, err)
	}
	return nil
}

// queueSave writes the document, moves the id to the index matching its
// archived flag when reindex is set, and announces the change.
func queueSave(ctx context.Context, pipe redis.Pipeliner, order *models.Order, doc []byte, reindex bool) {
	pipe.Set(ctx, redisOrderKey(order.ID), doc, 0)
	if reindex {
		pipe.ZRem(ctx, redisIndexKey(!order.Archived), order.ID)
	}
	pipe.ZAdd(ctx, redisIndexKey(order.Archived), redis.Z{
		Score:  float64(order.OrderTime.UnixMilli()),
		Member: order.ID,
	})
	pipe.Publish(ctx, redisChangeChannel, order.ID)
}

func queueDelete(ctx context.Context, pipe redis.Pipeliner, id string) *redis.IntCmd {
	deleted := pipe.Del(ctx, redisOrderKey(id))
	pipe.ZRem(ctx, redisActiveKey, id)
	pipe.ZRem(ctx, redisArchivedKey, id)
	pipe.Publish(ctx, redisChangeChannel, id)
	return deleted
}

func (r *RedisStore) DeleteOrder(ctx context.Context, id string) error {
	var deleted *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		deleted = queueDelete(ctx, pipe, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete order %s: %w", id, err)
	}
	if deleted.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Subscribe listens on the change channel and re-reads the active list after
// every message. The current list is delivered before Subscribe returns.
func (r *RedisStore) Subscribe(ctx context.Context, filter Filter, fn func([]models.Order)) (Subscription, error) {
	pubsub := r.client.Subscribe(ctx, redisChangeChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close() //nolint
		return nil, fmt.Errorf("failed to subscribe to order changes: %w", err)
	}

	initial, err := r.ListOrders(ctx, filter)
	if err != nil {
		_ = pubsub.Close() //nolint
		return nil, err
	}
	fn(initial)

	subCtx, cancel := context.WithCancel(ctx)
	sub := &redisSubscription{pubsub: pubsub, cancel: cancel}
	reload := func(ctx context.Context) ([]models.Order, error) {
		return r.ListOrders(ctx, filter)
	}
	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		relayChanges(subCtx, pubsub.Channel(), reload, fn, r.logger)
	}()
	return sub, nil
}

// relayChanges reloads and emits the full list for every change message until
// ctx ends or the channel closes. A failed reload is logged and skipped.
func relayChanges(ctx context.Context, messages <-chan *redis.Message, reload func(context.Context) ([]models.Order, error), fn func([]models.Order), logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-messages:
			if !ok {
				return
			}
			orders, err := reload(ctx)
			if err != nil {
				if ctx.Err() == nil && logger != nil {
					logger.Warn("failed to reload orders after change", "error", err)
				}
				continue
			}
			fn(orders)
		}
	}
}

type redisSubscription struct {
	pubsub io.Closer
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
	err    error
}

func (s *redisSubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.err = s.pubsub.Close()
		s.wg.Wait()
	})
	return s.err
}
