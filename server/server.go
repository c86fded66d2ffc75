package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ovenline/ovenline/internal/config"
	"github.com/ovenline/ovenline/internal/handlers"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	metrics    http.Handler
	httpServer *http.Server
}

// New builds the HTTP server. metrics serves /metrics and may be nil.
func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers, metrics http.Handler) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
		metrics:  metrics,
	}

	router := s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s, nil
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) buildRouter() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.SecurityHeaders)
	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods("GET").Name("metrics")
	}

	r.NotFoundHandler = http.HandlerFunc(h.NotFound)

	// Order backend surface, also spoken by the rest store.
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/ping", h.Ping).Methods("GET").Name("api.ping")
	api.HandleFunc("/menu", h.Menu).Methods("GET").Name("api.menu")
	api.HandleFunc("/stats", h.Stats).Methods("GET").Name("api.stats")
	api.HandleFunc("/orders", h.ListOrders).Methods("GET").Name("api.orders.list")
	api.HandleFunc("/orders", h.CreateOrder).Methods("POST").Name("api.orders.create")
	api.HandleFunc("/archived-orders", h.ListArchivedOrders).Methods("GET").Name("api.orders.archived")
	api.HandleFunc("/orders/{id}", h.GetOrder).Methods("GET").Name("api.orders.get")
	api.HandleFunc("/orders/{id}", h.UpdateOrder).Methods("PUT").Name("api.orders.update")
	api.HandleFunc("/orders/{id}", h.DeleteOrder).Methods("DELETE").Name("api.orders.delete")
	api.HandleFunc("/orders/{id}/archive", h.ArchiveOrder).Methods("POST").Name("api.orders.archive")
	api.HandleFunc("/orders/{id}/pizza-status", h.UpdatePizzaStatus).Methods("PUT").Name("api.orders.pizza_status")

	// Screen surface for kitchen displays and the settings page.
	screens := api.NewRoute().Subrouter()
	screens.Use(h.RequireSameOrigin)
	screens.HandleFunc("/kitchen", h.Kitchen).Methods("GET").Name("kitchen")
	screens.HandleFunc("/kitchen/refresh", h.RefreshKitchen).Methods("POST").Name("kitchen.refresh")
	screens.HandleFunc("/kitchen/orders", h.KitchenOrders).Methods("GET").Name("kitchen.orders")
	screens.HandleFunc("/kitchen/orders/{id}/pizzas/{index:[0-9]+}", h.ToggleCooked).Methods("PUT").Name("kitchen.orders.pizza")
	screens.HandleFunc("/kitchen/orders/{id}/status", h.KitchenStatus).Methods("PUT").Name("kitchen.orders.status")
	screens.HandleFunc("/kitchen/orders/{id}/archive", h.KitchenArchive).Methods("POST").Name("kitchen.orders.archive")
	screens.HandleFunc("/kitchen/notices", h.KitchenNotices).Methods("GET").Name("kitchen.notices")
	screens.HandleFunc("/settings", h.GetSettings).Methods("GET").Name("settings.get")
	screens.HandleFunc("/settings", h.UpdateSettings).Methods("PUT").Name("settings.update")
	screens.HandleFunc("/settings", h.ResetSettings).Methods("DELETE").Name("settings.reset")

	return r
}
