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
	"github.com/stafflink/shift-digest/internal/agency"
	agencypostgres "github.com/stafflink/shift-digest/internal/agency/postgres"
	"github.com/stafflink/shift-digest/internal/auth"
	"github.com/stafflink/shift-digest/internal/config"
	"github.com/stafflink/shift-digest/internal/digest"
	"github.com/stafflink/shift-digest/internal/digest/email"
	digestpostgres "github.com/stafflink/shift-digest/internal/digest/postgres"
	"github.com/stafflink/shift-digest/internal/domain"
	"github.com/stafflink/shift-digest/internal/pkg/ctxlog"
	"github.com/stafflink/shift-digest/internal/pkg/httputil"
	"github.com/stafflink/shift-digest/internal/pkg/metrics"
	"github.com/stafflink/shift-digest/internal/pkg/postgres"
	"github.com/stafflink/shift-digest/internal/version"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
	scheduler     *digest.Scheduler
	dispatcher    *digest.Dispatcher
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)

	if err := postgres.Migrate(cfg.Database.URL); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	connectCtx, connectCancel := context.WithTimeout(context.Background(), cfg.Database.ConnectTimeout)
	defer connectCancel()

	db, err := postgres.Connect(connectCtx, postgres.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
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

	router, err := app.setupRouter(metricsCtx)
	if err != nil {
		db.Close()
		metricsCancel()
		return nil, fmt.Errorf("setup router: %w", err)
	}

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

// Run starts the HTTP servers and the digest scheduler.
func (a *App) Run() error {
	if a.scheduler != nil {
		a.scheduler.Start()
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

	// Start main server
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
	a.logger.Info("shutting down servers")

	a.metricsCancel()

	// Stop the scheduler first so no run starts mid-shutdown
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

func (a *App) collectQueueMetrics(ctx context.Context, repo digest.Repository) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stats, err := repo.GetQueueStats(ctx)
			if err != nil {
				slog.Error("failed to get queue stats", "error", err)
				continue
			}
			digest.RecordQueueStats(stats)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Dispatcher returns the digest dispatcher. Used in tests to trigger runs
// directly.
func (a *App) Dispatcher() *digest.Dispatcher {
	return a.dispatcher
}

func (a *App) setupRouter(ctx context.Context) (*chi.Mux, error) {
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

	queueRepo := digestpostgres.NewRepository(a.db)
	agencyRepo := agencypostgres.NewRepository(a.db)
	agencyService := agency.NewService(agencyRepo)
	agencyHandler := agency.NewHandler(agencyService)

	enqueuer := digest.NewEnqueuer(digest.EnqueuerConfig{
		DebounceWindow: a.config.Digest.DebounceWindow,
	}, queueRepo)

	renderer, err := digest.NewRenderer(digest.BrandingDefaults{
		AgencyName:     a.config.Branding.AgencyName,
		ContactEmail:   a.config.Branding.ContactEmail,
		ContactPhone:   a.config.Branding.ContactPhone,
		PreferencesURL: a.config.Branding.PreferencesURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create digest renderer: %w", err)
	}

	emailSender, err := email.NewSender(email.Config{
		Enabled:      a.config.Email.Enabled,
		SMTPHost:     a.config.Email.SMTPHost,
		SMTPPort:     a.config.Email.SMTPPort,
		SMTPUser:     a.config.Email.SMTPUser,
		SMTPPassword: a.config.Email.SMTPPassword,
		FromAddress:  a.config.Email.FromAddress,
		RateLimit:    a.config.Email.RateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("create email sender: %w", err)
	}

	if !a.config.Email.Enabled {
		slog.Warn("email sender is disabled: digests will be marked sent without delivery")
	}

	a.dispatcher = digest.NewDispatcher(digest.DispatcherConfig{
		BatchSize:         a.config.Digest.BatchSize,
		SendTimeout:       a.config.Email.SendTimeout,
		MaxAttempts:       a.config.Digest.Retry.MaxAttempts,
		InitialBackoff:    a.config.Digest.Retry.InitialBackoff,
		MaxBackoff:        a.config.Digest.Retry.MaxBackoff,
		BackoffMultiplier: a.config.Digest.Retry.BackoffMultiplier,
		StaleClaimAfter:   a.config.Digest.StaleClaimAfter,
	}, queueRepo, agencyService, renderer, emailSender)

	if a.config.Digest.CronSpec != "" {
		scheduler, err := digest.NewScheduler(a.config.Digest.CronSpec, a.dispatcher)
		if err != nil {
			return nil, fmt.Errorf("create digest scheduler: %w", err)
		}
		a.scheduler = scheduler
	}

	go a.collectQueueMetrics(ctx, queueRepo)

	digestService := digest.NewService(queueRepo)
	digestHandler := digest.NewHandler(enqueuer, a.dispatcher, digestService)

	authenticator := auth.NewAuthenticator(auth.Config{
		SecretKey:           a.config.JWT.SecretKey,
		AccessTokenDuration: a.config.JWT.AccessTokenDuration,
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(httputil.AuthMiddleware(authenticator))

			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireRole(domain.RoleOperator))
				digestHandler.RegisterRoutes(r)
			})

			r.Group(func(r chi.Router) {
				r.Use(httputil.RequireRole(domain.RoleAdmin))
				agencyHandler.RegisterRoutes(r)
			})
		})
	})

	return r, nil
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
		"commit":     version.GitCommit,
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
