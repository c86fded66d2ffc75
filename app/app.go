package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/lmittmann/tint"

	"github.com/ovenline/ovenline/internal/board"
	"github.com/ovenline/ovenline/internal/catalog"
	"github.com/ovenline/ovenline/internal/config"
	"github.com/ovenline/ovenline/internal/handlers"
	"github.com/ovenline/ovenline/internal/kv"
	"github.com/ovenline/ovenline/internal/logging"
	"github.com/ovenline/ovenline/internal/observability"
	"github.com/ovenline/ovenline/internal/services"
	"github.com/ovenline/ovenline/internal/settings"
	"github.com/ovenline/ovenline/internal/store"
)

const (
	backendTimeout      = 15 * time.Second
	menuRefreshInterval = 5 * time.Minute
)

type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	Metrics     *observability.Metrics
	Store       store.Store
	KVProvider  kv.Provider
	Settings    *settings.Manager
	Menu        *catalog.MenuSource
	Board       *board.Board
	Handlers    *handlers.Handlers
	logFile     io.Closer
	stopBoard   context.CancelFunc
	boardDone   sync.WaitGroup
	sentryReady bool
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger, logFile, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger, logFile: logFile}
	if err := a.init(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init() error {
	cfg := a.Config
	logger := a.Logger

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			EnableTracing:    true,
			TracesSampleRate: 1.0,
		}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		a.sentryReady = true
	}

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	a.Metrics = observability.NewMetrics()
	httpClient := observability.NewHTTPClient(backendTimeout, cfg.APIBaseURL)

	orderStore, err := store.NewStore(startupCtx, store.Config{
		Provider:              cfg.StoreProvider,
		APIBaseURL:            cfg.APIBaseURL,
		RedisConnectionString: cfg.RedisConnectionString,
		DatabaseURL:           cfg.DatabaseURL,
		HTTPClient:            httpClient,
		Logger:                logger.With("component", "store"),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize order store: %w", err)
	}
	a.Store = orderStore

	kvProvider, err := kv.NewProvider(kv.Config{
		Provider:              cfg.SettingsProvider,
		RedisConnectionString: cfg.RedisConnectionString,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize settings provider: %w", err)
	}
	a.KVProvider = kvProvider

	a.Settings = settings.NewManager(kvProvider, logger.With("component", "settings"))
	if _, err := a.Settings.Load(startupCtx); err != nil {
		return err
	}

	menuLogger := logger.With("component", "menu")
	menu, err := newMenuSource(cfg, orderStore, menuLogger)
	if err != nil {
		return err
	}
	if err := menu.Refresh(startupCtx); err != nil {
		menuLogger.Warn("remote menu unavailable, using local menu", "error", err)
	}
	a.Menu = menu

	orderService := services.NewOrderService(
		orderStore,
		menu,
		catalog.NewValidator(),
		catalog.NewPricer(),
		a.Metrics,
		logger.With("component", "order_service"),
	)

	a.Board, err = board.New(board.Options{
		Store:       orderStore,
		Preferences: a.Settings,
		Mode:        board.Mode(cfg.BoardMode),
		Metrics:     a.Metrics,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize kitchen board: %w", err)
	}
	a.Settings.OnChange(func(settings.Settings) {
		a.Board.Reset()
	})

	a.Handlers, err = handlers.New(handlers.Dependencies{
		Orders:   orderService,
		Board:    a.Board,
		Settings: a.Settings,
		Metrics:  a.Metrics,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize handlers: %w", err)
	}

	return nil
}

// Start keeps the kitchen board and the menu current in the background until
// Close.
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopBoard = cancel
	a.boardDone.Add(2)
	go func() {
		defer a.boardDone.Done()
		if err := a.Board.Run(ctx); err != nil {
			a.Logger.Error("kitchen board stopped", "error", err)
		}
	}()
	go func() {
		defer a.boardDone.Done()
		a.Menu.Run(ctx, menuRefreshInterval)
	}()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.stopBoard != nil {
		a.stopBoard()
	}
	if a.Board != nil {
		a.Board.Close()
	}
	a.boardDone.Wait()

	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Warn("failed to close order store", "error", err)
		}
	}
	if a.KVProvider != nil {
		if err := a.KVProvider.Close(); err != nil {
			a.Logger.Warn("failed to close settings provider", "error", err)
		}
	}
	if a.sentryReady {
		sentry.Flush(2 * time.Second)
	}
	if a.logFile != nil {
		_ = a.logFile.Close() //nolint:errcheck
	}
}

// newMenuSource prefers the backend's menu when orders live behind the REST
// API, then MENU_FILE, then the built-in menu.
func newMenuSource(cfg *config.Config, orderStore store.Store, logger *slog.Logger) (*catalog.MenuSource, error) {
	fallback := catalog.DefaultMenu()
	if path := strings.TrimSpace(cfg.MenuFile); path != "" {
		loaded, err := catalog.LoadMenuFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load menu file: %w", err)
		}
		fallback = loaded
	}

	var remote catalog.MenuFetcher
	if fetcher, ok := orderStore.(catalog.MenuFetcher); ok {
		remote = fetcher
	}
	return catalog.NewMenuSource(remote, fallback, logger), nil
}

func newLogger(cfg *config.Config) (*slog.Logger, io.Closer, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var stdout slog.Handler
	switch strings.ToLower(strings.TrimSpace(cfg.LogFormat)) {
	case "json":
		stdout = slog.NewJSONHandler(os.Stdout, opts)
	default:
		stdout = tint.NewHandler(os.Stdout, &tint.Options{Level: cfg.LogLevel})
	}

	path := strings.TrimSpace(cfg.LogFile)
	if path == "" {
		return slog.New(stdout), nil, nil
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return slog.New(logging.MultiHandler(stdout, slog.NewJSONHandler(file, opts))), file, nil
}
