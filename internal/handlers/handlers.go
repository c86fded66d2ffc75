package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ovenline/ovenline/internal/board"
	"github.com/ovenline/ovenline/internal/catalog"
	"github.com/ovenline/ovenline/internal/lifecycle"
	"github.com/ovenline/ovenline/internal/logging"
	"github.com/ovenline/ovenline/internal/observability"
	"github.com/ovenline/ovenline/internal/services"
	"github.com/ovenline/ovenline/internal/settings"
	"github.com/ovenline/ovenline/internal/store"
)

const maxRequestBodyBytes = 1 << 20 // 1 MB

// Handlers serves the order API and the kitchen screen API.
type Handlers struct {
	orders   *services.OrderService
	board    *board.Board
	settings *settings.Manager
	metrics  *observability.Metrics
	now      func() time.Time
	logger   *slog.Logger
}

type Dependencies struct {
	Orders   *services.OrderService
	Board    *board.Board
	Settings *settings.Manager
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Orders == nil {
		return nil, fmt.Errorf("handlers dependencies: orders is required")
	}
	if deps.Board == nil {
		return nil, fmt.Errorf("handlers dependencies: board is required")
	}
	if deps.Settings == nil {
		return nil, fmt.Errorf("handlers dependencies: settings is required")
	}

	return &Handlers{
		orders:   deps.Orders,
		board:    deps.Board,
		settings: deps.Settings,
		metrics:  deps.Metrics,
		now:      time.Now,
		logger:   logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if err := h.orders.Ping(ctx); err != nil {
		logger.Error("store health check failed", "error", err)
		h.writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
		})
		return
	}

	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// NotFound answers unknown routes with the JSON error shape.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusNotFound, errorResponse{
		Error:   "not_found",
		Message: "Route not found",
	})
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}

type errorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (h *Handlers) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.loggerFromContext(r.Context()).Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, r, http.StatusBadRequest, errorResponse{
			Error:   "bad_request",
			Message: "Request body must be valid JSON",
		})
		return false
	}
	return true
}

func (h *Handlers) badRequest(w http.ResponseWriter, r *http.Request, message string) {
	h.writeJSON(w, r, http.StatusBadRequest, errorResponse{Error: "bad_request", Message: message})
}

// writeError maps domain errors onto status codes.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErrs catalog.ValidationErrors
	var settingsErr *settings.InvalidError

	switch {
	case errors.As(err, &validationErrs):
		fields := make(map[string]string, len(validationErrs))
		for _, fe := range validationErrs {
			fields[fe.Field] = fe.Reason
		}
		h.writeJSON(w, r, http.StatusBadRequest, errorResponse{
			Error:   "validation_failed",
			Message: "Order is not valid",
			Fields:  fields,
		})
	case errors.As(err, &settingsErr):
		h.writeJSON(w, r, http.StatusBadRequest, errorResponse{
			Error:   "validation_failed",
			Message: "Settings are not valid",
			Fields:  settingsErr.Fields,
		})
	case errors.Is(err, lifecycle.ErrItemIndex), errors.Is(err, services.ErrCookedMismatch):
		h.badRequest(w, r, err.Error())
	case errors.Is(err, services.ErrOrderNotFound), errors.Is(err, store.ErrNotFound):
		h.writeJSON(w, r, http.StatusNotFound, errorResponse{Error: "not_found", Message: "Order not found"})
	case errors.Is(err, lifecycle.ErrInvalidTransition), errors.Is(err, lifecycle.ErrTerminal):
		h.writeJSON(w, r, http.StatusConflict, errorResponse{Error: "conflict", Message: err.Error()})
	case errors.Is(err, board.ErrClosed):
		h.writeJSON(w, r, http.StatusServiceUnavailable, errorResponse{Error: "unavailable", Message: "Kitchen board is shutting down"})
	default:
		h.loggerFromContext(r.Context()).Error("request failed", "error", err)
		h.writeJSON(w, r, http.StatusBadGateway, errorResponse{Error: "store_unavailable", Message: "Backing store is unavailable"})
	}
}
