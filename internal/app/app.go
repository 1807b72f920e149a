// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/reliefgrid/sos-engine/internal/clusters"
	"github.com/reliefgrid/sos-engine/internal/config"
	"github.com/reliefgrid/sos-engine/internal/disasters"
	disasterspostgres "github.com/reliefgrid/sos-engine/internal/disasters/postgres"
	"github.com/reliefgrid/sos-engine/internal/escalation"
	"github.com/reliefgrid/sos-engine/internal/notify"
	"github.com/reliefgrid/sos-engine/internal/notify/webhook"
	"github.com/reliefgrid/sos-engine/internal/pkg/ctxlog"
	"github.com/reliefgrid/sos-engine/internal/pkg/httputil"
	"github.com/reliefgrid/sos-engine/internal/pkg/metrics"
	"github.com/reliefgrid/sos-engine/internal/pkg/postgres"
	signalspostgres "github.com/reliefgrid/sos-engine/internal/signals/postgres"
	"github.com/reliefgrid/sos-engine/internal/version"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	scheduler     *escalation.Scheduler
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnectTimeout:  cfg.Database.ConnectTimeout,
		ConnectAttempts: cfg.Database.ConnectAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		db:            db,
		metricsCancel: metricsCancel,
	}

	go app.collectDBMetrics(metricsCtx)

	router, scheduler, err := app.setupRouter()
	if err != nil {
		db.Close()
		metricsCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

	app.scheduler = scheduler

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

// Run starts the scheduler and the HTTP servers. Blocks until the main
// server exits.
func (a *App) Run() error {
	if a.scheduler != nil {
		a.scheduler.Start(context.Background())
	}

	// Start metrics server in background
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down")

	a.metricsCancel()

	// Stop the scheduler first so no pass starts against a closing pool
	if a.scheduler != nil {
		a.scheduler.Stop()
	}

	// Shutdown both servers in parallel
	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	wg.Add(2)

	go func() {
		defer wg.Done()
		if err := a.server.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
			mu.Unlock()
		}
	}()

	go func() {
		defer wg.Done()
		if err := a.metricsServer.Shutdown(ctx); err != nil {
			mu.Lock()
			errs = append(errs, fmt.Errorf("shutdown metrics server: %w", err))
			mu.Unlock()
		}
	}()

	wg.Wait()

	a.db.Close()

	return errors.Join(errs...)
}

func (a *App) collectDBMetrics(ctx context.Context) {
	// Collect immediately on start
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// DB returns the connection pool. Used in tests to seed data.
func (a *App) DB() *pgxpool.Pool {
	return a.db
}

func (a *App) setupRouter() (*chi.Mux, *escalation.Scheduler, error) {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-yaml")
		http.ServeFile(w, r, "api/openapi/openapi.yaml")
	})

	signalsRepo := signalspostgres.NewRepository(a.db)
	disastersRepo := disasterspostgres.NewRepository(a.db)

	var notifier notify.Notifier = notify.Nop{}
	if a.config.Notifications.Enabled {
		sender, err := webhook.NewSender(webhook.Config{
			URL:       a.config.Notifications.Webhook.URL,
			Username:  a.config.Notifications.Webhook.Username,
			Timeout:   a.config.Notifications.Webhook.Timeout,
			RateLimit: a.config.Notifications.Webhook.RateLimit,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("create webhook sender: %w", err)
		}
		notifier = notify.NewDispatcher(sender)
	} else {
		slog.Info("notifications disabled")
	}

	synthesizer := disasters.NewSynthesizer(disasters.SynthesizerConfig{
		RadiusKM:          a.config.Disasters.RadiusKM,
		Lookback:          a.config.Disasters.Lookback,
		MinNearby:         a.config.Disasters.MinNearbySignals,
		HighSeverityTotal: a.config.Disasters.HighSeverityTotal,
	}, signalsRepo, disastersRepo)

	engine := escalation.NewEngine(escalation.EngineConfig{
		Thresholds: escalation.Thresholds{
			First:    a.config.Escalation.FirstAfter,
			Second:   a.config.Escalation.SecondAfter,
			Critical: a.config.Escalation.CriticalAfter,
		},
		QueryTimeout: a.config.Escalation.QueryTimeout,
	}, signalsRepo, synthesizer, notifier)

	statsReporter := escalation.NewStatsReporter(signalsRepo)
	escalationHandler := escalation.NewHandler(engine, statsReporter)

	clustersService := clusters.NewService(signalsRepo, a.config.Clusters.DefaultRadiusKM)
	clustersHandler := clusters.NewHandler(clustersService)

	var scheduler *escalation.Scheduler
	if a.config.Escalation.SchedulerEnabled {
		scheduler = escalation.NewScheduler(engine, a.config.Escalation.Interval)
	} else {
		slog.Info("escalation scheduler disabled")
	}

	r.Route("/api/v1", func(r chi.Router) {
		escalationHandler.RegisterRoutes(r)
		clustersHandler.RegisterRoutes(r)
	})

	return r, scheduler, nil
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.db.Ping(ctx); err != nil {
		ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
		httputil.Text(w, http.StatusServiceUnavailable, "Database unavailable")
		return
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, map[string]string{
		"version":    version.Version,
		"commit":     version.Commit,
		"build_date": version.BuildDate,
	})
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
