package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/MusicHub/backend/internal/api/http"
	"github.com/GriffinCanCode/MusicHub/backend/internal/api/middleware"
	"github.com/GriffinCanCode/MusicHub/backend/internal/api/ws"
	"github.com/GriffinCanCode/MusicHub/backend/internal/domain/download"
	"github.com/GriffinCanCode/MusicHub/backend/internal/domain/registry"
	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/database"
	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/MusicHub/backend/internal/infrastructure/tracing"
)

const shutdownTimeout = 15 * time.Second

// Server wraps the HTTP server and dependencies
type Server struct {
	router    *gin.Engine
	http      *http.Server
	db        *sql.DB
	downloads *download.Manager
	hub       *ws.Handler
	tracer    *tracing.Tracer
	logger    *logging.Logger
	config    *config.Config
	metrics   *monitoring.Metrics
}

// NewServer opens the database, seeds sources and wires every component
func NewServer(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*Server, error) {
	logger.Info("Initializing MusicHub server",
		zap.String("port", cfg.Server.Port),
		zap.String("database", cfg.Database.Path),
		zap.String("search_policy", cfg.Resolver.SearchPolicy),
	)

	metrics := monitoring.NewMetrics()
	tracer := tracing.New("musichub", logger.Logger)

	db, err := database.Open(ctx, cfg.Database.Path)
	if err != nil {
		tracer.Close()
		return nil, err
	}

	// The store validates through the runtime, and the runtime reads sources
	// from the store, so the validator is bound after both exist.
	var runtime *Runtime
	sources := registry.NewStore(db, func(ctx context.Context, script string) error {
		return runtime.Validate(ctx, script)
	}, logger.Named("registry"))

	runtime, err = NewRuntime(cfg, sources, logger.Logger, metrics, tracer)
	if err != nil {
		db.Close()
		tracer.Close()
		return nil, err
	}

	if cfg.Seed.Dir != "" {
		res, err := registry.NewSeeder(sources, cfg.Seed.Dir, logger.Named("seeder")).Seed(ctx)
		if err != nil {
			logger.Warn("Failed to seed sources", zap.String("dir", cfg.Seed.Dir), zap.Error(err))
		} else {
			logger.Info("Seeded sources",
				zap.Int("loaded", res.Loaded),
				zap.Int("skipped", res.Skipped),
				zap.Int("failed", res.Failed),
			)
		}
	}

	hub := ws.NewHandler(logger.Named("ws"), metrics)
	downloads := download.NewManager(download.NewStore(db), download.Config{
		Dir:              cfg.Download.Dir,
		MaxConcurrent:    cfg.Download.MaxConcurrent,
		Timeout:          cfg.Download.Timeout,
		ProgressInterval: cfg.Download.ProgressInterval,
	}, logger.Named("download"), download.WithBroadcaster(hub), download.WithMetrics(metrics))

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(apihttp.Recovery(logger.Logger))
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(middleware.RequestLogger(logger.Named("http")))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	handlers := apihttp.NewHandlers(sources, runtime.Engine, downloads, db, metrics, logger.Named("api"))
	handlers.Register(router)
	router.GET("/ws/download", hub.HandleConnection)

	logger.Info("Server initialized successfully")

	return &Server{
		router:    router,
		db:        db,
		downloads: downloads,
		hub:       hub,
		tracer:    tracer,
		logger:    logger,
		config:    cfg,
		metrics:   metrics,
	}, nil
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	if err := s.downloads.Start(ctx); err != nil {
		return errors.Join(fmt.Errorf("failed to start download manager: %w", err), s.Close())
	}

	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server",
			zap.String("addr", addr),
			zap.String("websocket", "ws://"+addr+"/ws/download"),
		)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		return s.Close()
	case err, ok := <-errCh:
		closeErr := s.Close()
		if ok && err != nil {
			return err
		}
		return closeErr
	}
}

// Close stops accepting requests, drains workers and releases resources
func (s *Server) Close() error {
	s.logger.Info("Shutting down gracefully")

	var errs []error
	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	s.hub.Close()
	s.downloads.Stop()
	s.tracer.Close()
	if err := s.db.Close(); err != nil {
		errs = append(errs, fmt.Errorf("database close: %w", err))
	}
	_ = s.logger.Sync()
	return errors.Join(errs...)
}
