// Package server sets up the HTTP server, router, and all route definitions.
//
// This package is the "composition root": the store, services, handlers and
// middleware are built once in New and wired to routes in setupRoutes. Keeping
// this out of main.go lets tests build a full server around an in-memory
// database.
//
// DEPENDENCY CHAIN:
//
//	config.Config → repository.Store (sqlite | postgres)
//	             → AuthService, TaskService
//	             → AuthHandler, TaskHandler, HealthHandler
//	             → chi router
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"

	"github.com/sakif/tasklist/internal/auth"
	"github.com/sakif/tasklist/internal/config"
	"github.com/sakif/tasklist/internal/handler"
	"github.com/sakif/tasklist/internal/middleware"
	"github.com/sakif/tasklist/internal/repository"
	pgRepo "github.com/sakif/tasklist/internal/repository/postgres"
	sqliteRepo "github.com/sakif/tasklist/internal/repository/sqlite"
	"github.com/sakif/tasklist/internal/service"
)

// Server represents the HTTP server and all its dependencies. It owns the
// store and the optional Redis client and closes both on shutdown.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	store  repository.Store
	redis  *redis.Client
}

// New opens the configured store and builds a ready-to-serve Server.
//
// IMPORT ALIASES:
// repository/sqlite and repository/postgres are imported as sqliteRepo and
// pgRepo so they don't read like the driver packages.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s, err := NewWithStore(cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}
	return s, nil
}

// NewWithStore builds a Server around an already-open store. Tests use it
// with an in-memory SQLite database.
func NewWithStore(cfg config.Config, store repository.Store, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		store:  store,
	}

	if cfg.RedisAddr != "" {
		s.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.redis.Ping(pingCtx).Err(); err != nil {
			// The limiter fails open, so the server still starts.
			logger.Warn("redis unreachable, auth rate limiting will fail open",
				slog.String("addr", cfg.RedisAddr),
				slog.String("error", err.Error()),
			)
		}
	}

	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

func openStore(ctx context.Context, cfg config.Config) (repository.Store, error) {
	if cfg.UsesPostgres() {
		return pgRepo.New(ctx, cfg.DatabaseURL, int32(cfg.DBMaxConns))
	}

	if cfg.DatabaseURL != ":memory:" && !strings.HasPrefix(cfg.DatabaseURL, "file:") {
		dir := filepath.Dir(cfg.DatabaseURL)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory %s: %w", dir, err)
		}
	}
	return sqliteRepo.New(cfg.DatabaseURL, cfg.DBMaxConns)
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /health          → datastore liveness
//	POST   /auth/register   → create account           (rate limited)
//	POST   /auth/login      → exchange credentials     (rate limited)
//	GET    /auth/me         → current user             (bearer)
//	GET    /tasks           → list own tasks           (bearer)
//	POST   /tasks           → create task              (bearer)
//	GET    /tasks/{id}      → get own task             (bearer)
//	PUT    /tasks/{id}      → update own task          (bearer)
//	DELETE /tasks/{id}      → delete own task          (bearer)
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: unique id per request, echoed in logs
//  2. RealIP: client IP from proxy headers, used by the rate limiter
//  3. Logger: one line per request
//  4. Recoverer: panics become 500s
//  5. CORS: only the configured origin may call from a browser
//  6. Timeout: per-request deadline, which also bounds waits for a DB connection
func (s *Server) setupRoutes() error {
	tokens, err := auth.NewTokenService(s.config.JWTSecret, s.config.TokenTTL)
	if err != nil {
		return err
	}
	passwords := auth.NewPasswordService()

	authService := service.NewAuthService(s.store.Users(), tokens, passwords, s.logger)
	taskService := service.NewTaskService(s.store.Tasks(), s.logger)

	resp := handler.NewResponder(s.logger, !s.config.IsProduction())
	authHandler := handler.NewAuthHandler(authService, resp, s.logger)
	taskHandler := handler.NewTaskHandler(taskService, resp, s.logger)
	healthHandler := handler.NewHealthHandler(s.store, s.logger)

	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{s.config.CORSOrigin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Retry-After", "X-Request-Id"},
		MaxAge:         300,
	}))
	s.router.Use(chimiddleware.Timeout(s.config.RequestTimeout))

	s.router.With(auth.OptionalAuth(tokens), middleware.TagUser).Get("/health", healthHandler.HandleHealth)

	s.router.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if s.redis != nil {
				r.Use(middleware.RateLimit(
					middleware.NewRedisCounter(s.redis),
					middleware.RateLimitConfig{Limit: s.config.AuthRateLimit, Window: time.Minute, Prefix: "ratelimit:auth"},
					s.logger,
				))
			}
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/login", authHandler.HandleLogin)
		})

		r.With(auth.RequireAuth(tokens), middleware.TagUser).Get("/me", authHandler.HandleMe)
	})

	s.router.Route("/tasks", func(r chi.Router) {
		r.Use(auth.RequireAuth(tokens))
		r.Use(middleware.TagUser)

		r.Get("/", taskHandler.HandleList)
		r.Post("/", taskHandler.HandleCreate)
		r.Get("/{id}", taskHandler.HandleGet)
		r.Put("/{id}", taskHandler.HandleUpdate)
		r.Delete("/{id}", taskHandler.HandleDelete)
	})

	return nil
}

// Handler exposes the router, for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Close releases the store and the Redis client.
func (s *Server) Close() error {
	var errs []error
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}

// Start serves until SIGINT/SIGTERM, then shuts down gracefully:
//  1. Stop accepting new connections
//  2. Wait up to 30s for in-flight requests
//  3. Close the store (flushes the SQLite WAL, releases pool connections)
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      s.config.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("env", s.config.Env),
			slog.Bool("postgres", s.config.UsesPostgres()),
			slog.Bool("rateLimit", s.redis != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
