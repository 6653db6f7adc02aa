// Package app wires the voucher service together: configuration, logging,
// storage, the device client, services, and the HTTP server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"voucherd/internal/codegen"
	"voucherd/internal/config"
	"voucherd/internal/device"
	apierrors "voucherd/internal/errors"
	"voucherd/internal/infrastructure"
	custommw "voucherd/internal/middleware"
	"voucherd/internal/render"
	"voucherd/internal/services"
	"voucherd/internal/store"
	httptransport "voucherd/internal/transport/http"
	"voucherd/internal/websocket"
)

// Version is the service version reported by the health endpoint.
const Version = "1.0.0"

// Application holds all initialized components.
type Application struct {
	cfg    *config.Config
	logger *slog.Logger
	otel   *infrastructure.OTelProviders

	store  store.Store
	hub    *websocket.Hub
	server *http.Server
}

// New builds the application from configuration. Components are constructed
// bottom-up: store and device client first, then services, then transport.
func New(ctx context.Context, cfg *config.Config) (*Application, error) {
	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("initializing telemetry: %w", err)
	}

	var metrics *infrastructure.VoucherMetrics
	if otelProviders.Meter != nil {
		metrics, err = infrastructure.CreateVoucherMetrics(otelProviders.Meter)
		if err != nil {
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	devices := device.NewHTTPClient(cfg.Device.BaseURL, cfg.Device.RequestTimeout, logger)

	hub := websocket.NewHub(logger, websocket.Options{
		ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: cfg.WebSocket.WriteBufferSize,
		PingPeriod:      cfg.WebSocket.PingPeriod,
		PongWait:        cfg.WebSocket.PongWait,
	})

	generator := codegen.New(cfg.Generator.RetryMultiplier)
	voucherSvc := services.NewVoucherService(st, generator, devices, hub, metrics, logger,
		cfg.Generator.MaxBatchSize, cfg.Generator.SequentialPad)
	profileSvc := services.NewProfileService(st, devices, logger)
	sessionSvc := services.NewSessionController(st, devices, hub, metrics, logger)
	templateSvc := services.NewTemplateService(st, logger)

	sheets, err := render.New()
	if err != nil {
		return nil, fmt.Errorf("initializing sheet renderer: %w", err)
	}
	pdf := render.NewPDFRenderer(sheets, logger)

	errHandler := apierrors.NewErrorHandler(logger, false)

	router := buildRouter(cfg, logger, otelProviders, hub, httptransport.Handlers{
		Vouchers:  httptransport.NewVoucherHandler(voucherSvc, errHandler, logger),
		Profiles:  httptransport.NewProfileHandler(profileSvc, errHandler, logger),
		Sessions:  httptransport.NewSessionHandler(sessionSvc, errHandler, logger),
		Templates: httptransport.NewTemplateHandler(templateSvc, voucherSvc, sheets, pdf, metrics, errHandler, logger),
		Health:    httptransport.NewHealthHandler(Version),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Application{
		cfg:    cfg,
		logger: logger,
		otel:   otelProviders,
		store:  st,
		hub:    hub,
		server: server,
	}, nil
}

// openStore selects the store implementation. An empty DSN runs without a
// database, which suits demos and tests but loses state on restart.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.Database.DSN == "" {
		logger.Warn("no database DSN configured, using in-memory store")
		return store.NewMemoryStore(), nil
	}

	st, err := store.NewPostgresStore(ctx, store.PostgresOptions{
		DSN:            cfg.Database.DSN,
		MaxConns:       int32(cfg.Database.MaxConns),
		ConnectTimeout: cfg.Database.ConnectTimeout,
		MigrateOnStart: cfg.Database.MigrateOnStart,
	})
	if err != nil {
		return nil, fmt.Errorf("opening postgres store: %w", err)
	}
	logger.Info("postgres store ready", "migrate_on_start", cfg.Database.MigrateOnStart)
	return st, nil
}

func buildRouter(
	cfg *config.Config,
	logger *slog.Logger,
	otelProviders *infrastructure.OTelProviders,
	hub *websocket.Hub,
	handlers httptransport.Handlers,
) chi.Router {
	r := chi.NewRouter()

	r.Use(custommw.RequestID)
	r.Use(custommw.RealIP)
	r.Use(custommw.StructuredLogger(logger))
	r.Use(custommw.Recoverer(logger))
	r.Use(custommw.SecurityHeaders)
	r.Use(custommw.Compress(5))
	r.Use(custommw.Timeout(cfg.Server.WriteTimeout, logger))

	if cfg.Security.RateLimit.Enabled {
		limiter := custommw.NewRateLimiter(cfg.Security.RateLimit.RPS, cfg.Security.RateLimit.Burst, logger)
		r.Use(limiter.Handler)
	}

	httptransport.MountAPI(r, handlers)

	r.Get("/ws", func(w http.ResponseWriter, req *http.Request) {
		if err := websocket.ServeWS(hub, w, req); err != nil {
			logger.ErrorContext(req.Context(), "websocket upgrade failed", "error", err)
		}
	})

	if otelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", otelProviders.PrometheusHTTP)
	}

	return r
}

// Run starts the hub and the HTTP server and blocks until the context is
// cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	a.hub.Start()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown failed", "error", err)
	}
	a.hub.Stop()
	a.store.Close()
	if err := a.otel.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("telemetry shutdown failed", "error", err)
	}
	infrastructure.CloseLogFile()
	return nil
}

// Handler exposes the assembled router for tests.
func (a *Application) Handler() http.Handler {
	return a.server.Handler
}

// WaitForReady polls the health endpoint until the server answers or the
// timeout expires. Used by integration tests.
func WaitForReady(ctx context.Context, baseURL string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	client := &http.Client{Timeout: time.Second}
	for time.Now().Before(deadline) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/v1/health", nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	return fmt.Errorf("server not ready after %s", timeout)
}
