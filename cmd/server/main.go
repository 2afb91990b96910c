// codeoracle - repository question-answering chat server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/ashureev/codeoracle/internal/api"
	"github.com/ashureev/codeoracle/internal/config"
	"github.com/ashureev/codeoracle/internal/convlog"
	"github.com/ashureev/codeoracle/internal/identity"
	"github.com/ashureev/codeoracle/internal/middleware"
	"github.com/ashureev/codeoracle/internal/oracle"
	"github.com/ashureev/codeoracle/internal/store"
	"github.com/ashureev/codeoracle/internal/stream"
	"github.com/ashureev/codeoracle/internal/sweeper"
	"github.com/ashureev/codeoracle/internal/workspace"
	"github.com/ashureev/codeoracle/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "oracle_base_url", cfg.Oracle.BaseURL)

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	oracleClient, err := oracle.NewClient(oracle.Config{
		BaseURL: cfg.Oracle.BaseURL,
		Timeout: cfg.Oracle.RequestTimeout,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize oracle client", "error", err)
		os.Exit(1)
	}

	conversationLogger, err := convlog.New(convlog.Config{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()

	// Initialize services.
	hub := stream.NewHub()
	mgr := workspace.NewManager(repo, oracleClient,
		workspace.WithGreeting(cfg.Greeting),
		workspace.WithPublisher(hub),
		workspace.WithRecorder(conversationLogger),
		workspace.WithLogger(logger),
	)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, mgr, cfg)
	workspaceHandler := api.NewWorkspaceHandler(baseHandler)
	wsHandler := stream.NewWebSocketHandler(hub, mgr, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(middleware.Origins(cfg.FrontendURL)))
	r.Use(identity.Middleware(repo, cfg.IsDevelopment()))

	workspaceHandler.RegisterRoutes(r, limiter.Middleware)

	// WebSocket endpoint.
	r.Get("/ws/transcript", wsHandler.ServeHTTP)

	// Serve embedded frontend (SPA catch-all).
	r.Handle("/*", web.SPAHandler())

	// Chat and ingestion requests wait on the remote service with no
	// deadline of their own, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweepDone := sweeper.Start(ctx, repo, mgr, sweeper.Config{
		TTL:      cfg.SessionTTL,
		Interval: cfg.SweepInterval,
	}, func(key workspace.Key) {
		hub.CloseSession(stream.SessionKey(key.UserID, key.SessionID))
	}, limiter)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	<-sweepDone

	slog.Info("Server stopped successfully")
}
