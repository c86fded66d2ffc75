package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ovenline/ovenline/internal/catalog"
	"github.com/ovenline/ovenline/internal/lifecycle"
	"github.com/ovenline/ovenline/internal/models"
)

const maxErrorBody = 4 << 10

// APIError is a non-2xx response from the order backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case lifecycle.ErrInvalidTransition:
		return e.StatusCode == http.StatusConflict
	default:
		return false
	}
}

// RESTStore talks to an order backend over its HTTP/JSON API. It has no push
// channel, so screens poll it.
type RESTStore struct {
	baseURL *url.URL
	client  *http.Client
}

func NewRESTStore(baseURL string, client *http.Client) (*RESTStore, error) {
	parsed, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse API base URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("API base URL must be http or https: %q", baseURL)
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &RESTStore{baseURL: parsed, client: client}, nil
}

func (s *RESTStore) ListOrders(ctx context.Context, filter Filter) ([]models.Order, error) {
	body, err := s.do(ctx, http.MethodGet, "/api/orders", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	orders, err := DecodeOrders(body)
	if err != nil {
		return nil, err
	}
	orders = filterOrders(orders, filter)
	sortByOrderTime(orders)
	return orders, nil
}

func (s *RESTStore) ListArchived(ctx context.Context) ([]models.Order, error) {
	body, err := s.do(ctx, http.MethodGet, "/api/archived-orders", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list archived orders: %w", err)
	}
	orders, err := DecodeOrders(body)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Archived = true
	}
	sortByOrderTime(orders)
	return orders, nil
}

func (s *RESTStore) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	body, err := s.do(ctx, http.MethodGet, orderPath(id), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", id, err)
	}
	return decodeOne(body)
}

func (s *RESTStore) CreateOrder(ctx context.Context, order *models.Order) error {
	if order == nil {
		return fmt.Errorf("order is required")
	}
	body, err := s.do(ctx, http.MethodPost, "/api/orders", EncodeOrder(*order))
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	created, err := decodeOne(body)
	if err != nil {
		return err
	}
	*order = *created
	return nil
}

type orderPatch struct {
	Status *models.Status `json:"status,omitempty"`
	Notes  *string        `json:"notes,omitempty"`
}

// ErrRestoreUnsupported is returned when asked to move an archived order back
// to the active list; the order backend has no endpoint for it.
var ErrRestoreUnsupported = errors.New("order backend cannot restore archived orders")

// UpdateOrder validates the change against the current order before sending it.
// Archiving goes through the dedicated archive endpoint.
func (s *RESTStore) UpdateOrder(ctx context.Context, id string, update models.OrderUpdate) (*models.Order, error) {
	current, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if update.Archived != nil && !*update.Archived && current.Archived {
		return nil, fmt.Errorf("order %s: %w", id, ErrRestoreUnsupported)
	}
	if err := applyUpdate(current, update); err != nil {
		return nil, err
	}

	if update.Status != nil || update.Notes != nil {
		patch := orderPatch{Status: update.Status, Notes: update.Notes}
		if _, err := s.do(ctx, http.MethodPut, orderPath(id), patch); err != nil {
			return nil, fmt.Errorf("failed to update order %s: %w", id, err)
		}
	}
	if update.Archived != nil && *update.Archived {
		if _, err := s.do(ctx, http.MethodPost, orderPath(id)+"/archive", nil); err != nil {
			return nil, fmt.Errorf("failed to archive order %s: %w", id, err)
		}
	}
	return current, nil
}

type pizzaStatusRequest struct {
	Cooked []bool        `json:"cooked"`
	Status models.Status `json:"status"`
}

// UpdatePizzaStatus sends the full cooked array along with the recomputed status.
func (s *RESTStore) UpdatePizzaStatus(ctx context.Context, id string, index int, cooked bool) (*models.Order, error) {
	current, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.ToggleCooked(current, index, cooked); err != nil {
		return nil, err
	}
	req := pizzaStatusRequest{Cooked: lifecycle.CookedFlags(current), Status: current.Status}
	if _, err := s.do(ctx, http.MethodPut, orderPath(id)+"/pizza-status", req); err != nil {
		return nil, fmt.Errorf("failed to update pizza status for order %s: %w", id, err)
	}
	return current, nil
}

func (s *RESTStore) DeleteOrder(ctx context.Context, id string) error {
	if _, err := s.do(ctx, http.MethodDelete, orderPath(id), nil); err != nil {
		return fmt.Errorf("failed to delete order %s: %w", id, err)
	}
	return nil
}

func (s *RESTStore) Ping(ctx context.Context) error {
	if _, err := s.do(ctx, http.MethodGet, "/api/ping", nil); err != nil {
		return fmt.Errorf("failed to ping order backend: %w", err)
	}
	return nil
}

// FetchMenu reads the backend's pizza list.
func (s *RESTStore) FetchMenu(ctx context.Context) (*catalog.Menu, error) {
	body, err := s.do(ctx, http.MethodGet, "/api/menu", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch menu: %w", err)
	}
	var menu catalog.Menu
	if err := json.Unmarshal(body, &menu); err != nil {
		return nil, fmt.Errorf("failed to decode menu: %w", err)
	}
	return &menu, nil
}

func (s *RESTStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *RESTStore) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL.JoinPath(path).String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("no response from order backend: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() //nolint:errcheck
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
	}
	return body, nil
}

func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return payload.Message
	}
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return strings.TrimSpace(string(body))
}

func decodeOne(body []byte) (*models.Order, error) {
	order, err := DecodeOrder(body)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func orderPath(id string) string {
	return "/api/orders/" + id
}

var _ Store = (*RESTStore)(nil)

