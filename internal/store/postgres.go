package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ovenline/ovenline/internal/lifecycle"
	"github.com/ovenline/ovenline/internal/models"
)

//go:embed schema.sql
var postgresSchema string

const postgresChangeChannel = "orders_changed"

const orderColumns = `id, customer_name, platform, order_time, prep_time, status, archived, pizzas, total_cents, notes, updated_at`

// Connect opens a pgx pool with query tracing and verifies it.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	config.ConnConfig.Tracer = newQueryTracer()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgresStore wraps pool and creates the orders table if it is missing.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool, logger *slog.Logger) (*PostgresStore, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		return nil, fmt.Errorf("failed to apply orders schema: %w", err)
	}
	return &PostgresStore{pool: pool, logger: logger}, nil
}

func (s *PostgresStore) ListOrders(ctx context.Context, filter Filter) ([]models.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE archived = FALSE`
	args := []any{}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			statuses[i] = string(status)
		}
		args = append(args, statuses)
		query += fmt.Sprintf(` AND status = ANY($%d)`, len(args))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		query += fmt.Sprintf(` AND order_time >= $%d`, len(args))
	}
	query += ` ORDER BY order_time ASC`

	return s.query(ctx, query, args...)
}

func (s *PostgresStore) ListArchived(ctx context.Context) ([]models.Order, error) {
	return s.query(ctx, `SELECT `+orderColumns+` FROM orders WHERE archived = TRUE ORDER BY order_time ASC`)
}

func (s *PostgresStore) query(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query orders: %w", err)
	}
	defer rows.Close()

	orders := []models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read orders: %w", err)
	}
	return orders, nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return order, err
}

func (s *PostgresStore) CreateOrder(ctx context.Context, order *models.Order) error {
	if err := prepareNew(order, uuid.NewString, time.Now()); err != nil {
		return err
	}
	pizzas, err := json.Marshal(order.Pizzas)
	if err != nil {
		return fmt.Errorf("failed to encode pizzas: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, order.ID, order.CustomerName, order.Platform, order.OrderTime, order.PrepTime,
		string(order.Status), order.Archived, pizzas, order.TotalCents, order.Notes, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	s.notify(ctx, order.ID)
	return nil
}

func (s *PostgresStore) UpdateOrder(ctx context.Context, id string, update models.OrderUpdate) (*models.Order, error) {
	return s.mutate(ctx, id, func(order *models.Order) error {
		return applyUpdate(order, update)
	})
}

func (s *PostgresStore) UpdatePizzaStatus(ctx context.Context, id string, index int, cooked bool) (*models.Order, error) {
	return s.mutate(ctx, id, func(order *models.Order) error {
		return lifecycle.ToggleCooked(order, index, cooked)
	})
}

func (s *PostgresStore) mutate(ctx context.Context, id string, apply func(*models.Order) error) (*models.Order, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := apply(order); err != nil {
		return nil, err
	}
	order.UpdatedAt = time.Now()

	pizzas, err := json.Marshal(order.Pizzas)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pizzas: %w", err)
	}
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET status = $1, archived = $2, pizzas = $3, notes = $4, updated_at = $5
		WHERE id = $6
	`, string(order.Status), order.Archived, pizzas, order.Notes, order.UpdatedAt, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update order %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return nil, ErrNotFound
	}
	s.notify(ctx, id)
	return order, nil
}

func (s *PostgresStore) DeleteOrder(ctx context.Context, id string) error {
	cmdTag, err := s.pool.Exec(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete order %s: %w", id, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrNotFound
	}
	s.notify(ctx, id)
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// notify is best effort; the row change has already been committed.
func (s *PostgresStore) notify(ctx context.Context, id string) {
	if _, err := s.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, postgresChangeChannel, id); err != nil && s.logger != nil {
		s.logger.Warn("failed to announce order change", "order_id", id, "error", err)
	}
}

// Subscribe holds one pooled connection in LISTEN mode until the subscription
// is closed. The current list is delivered before Subscribe returns.
func (s *PostgresStore) Subscribe(ctx context.Context, filter Filter, fn func([]models.Order)) (Subscription, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire listen connection: %w", err)
	}
	if _, err := conn.Exec(ctx, `LISTEN `+postgresChangeChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("failed to listen for order changes: %w", err)
	}

	initial, err := s.ListOrders(ctx, filter)
	if err != nil {
		releaseListener(conn, conn.Conn().Close)
		return nil, err
	}
	fn(initial)

	subCtx, cancel := context.WithCancel(ctx)
	sub := &postgresSubscription{cancel: cancel}
	sub.wg.Add(1)
	go func() {
		defer sub.wg.Done()
		defer releaseListener(conn, conn.Conn().Close)
		for {
			if _, err := conn.Conn().WaitForNotification(subCtx); err != nil {
				if subCtx.Err() == nil && s.logger != nil {
					s.logger.Warn("order change listener stopped", "error", err)
				}
				return
			}
			orders, err := s.ListOrders(subCtx, filter)
			if err != nil {
				if subCtx.Err() != nil {
					return
				}
				if s.logger != nil {
					s.logger.Warn("failed to reload orders after change", "error", err)
				}
				continue
			}
			fn(orders)
		}
	}()
	return sub, nil
}

// pooledListener is the part of *pgxpool.Conn a listener hands back.
type pooledListener interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Release()
}

// releaseListener stops listening and returns the connection to the pool.
func releaseListener(conn pooledListener, closeConn func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := conn.Exec(ctx, `UNLISTEN `+postgresChangeChannel); err != nil {
		// The connection state is unknown; drop it instead of returning it to the pool.
		_ = closeConn(ctx) //nolint
	}
	conn.Release()
}

type postgresSubscription struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

func (s *postgresSubscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		s.wg.Wait()
	})
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var (
		order  models.Order
		status string
		pizzas []byte
	)
	err := row.Scan(
		&order.ID,
		&order.CustomerName,
		&order.Platform,
		&order.OrderTime,
		&order.PrepTime,
		&status,
		&order.Archived,
		&pizzas,
		&order.TotalCents,
		&order.Notes,
		&order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}
	order.Status = models.Status(status)
	if len(pizzas) > 0 {
		if err := json.Unmarshal(pizzas, &order.Pizzas); err != nil {
			return nil, fmt.Errorf("failed to decode pizzas for order %s: %w", order.ID, err)
		}
	}
	return &order, nil
}
