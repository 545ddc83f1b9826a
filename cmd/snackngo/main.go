package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"snackngo/internal/chat"
	"snackngo/internal/config"
	"snackngo/internal/database"
	"snackngo/internal/engine"
	"snackngo/internal/extract"
	"snackngo/internal/handler"
	"snackngo/internal/mw"
	"snackngo/internal/store"
	"snackngo/internal/worker"
)

func main() {
	cfg := config.New()

	db, err := database.NewDB(cfg.DatabaseURI)
	if err != nil {
		slog.Error("failed to connect to DB", "error", err)
		os.Exit(1)
	}
	defer database.CloseDB(context.Background(), db)

	if err := database.InitSchema(db); err != nil {
		slog.Error("failed to init DB schema", "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.ScreenshotDir, 0o755); err != nil {
		slog.Error("failed to create screenshot dir", "error", err)
		os.Exit(1)
	}

	// Stores and external clients
	userStore := store.NewUserStore(db)
	orderStore := store.NewOrderStore(db)
	extractor := extract.NewClient(cfg.ExtractorAddress)
	chatClient := chat.NewClient(cfg.ChatAddress, cfg.ChatToken)

	// Workflow engine
	eng := engine.New(orderStore, extractor, chatClient, cfg.ScreenshotDir)

	// Worker
	reminderWorker := worker.NewReminderWorker(orderStore, chatClient)

	// Router
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public routes
	r.Post("/api/user/register", handler.RegisterHandler(userStore, cfg.JWTSecret))
	r.Post("/api/user/login", handler.LoginHandler(userStore, cfg.JWTSecret))

	// Chat bridge webhook
	r.Group(func(r chi.Router) {
		r.Use(mw.WebhookAuthMiddleware(cfg.WebhookSecret))
		r.Post("/api/events", handler.EventsHandler(eng))
	})

	// Protected reporter routes
	r.Group(func(r chi.Router) {
		r.Use(mw.AuthMiddleware(cfg.JWTSecret))

		r.Post("/api/user/orders", handler.StartOrderHandler(eng))
		r.Get("/api/user/orders", handler.ListOrdersHandler(orderStore))
	})

	srv := &http.Server{
		Addr:         cfg.RunAddress,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	go reminderWorker.Start(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	slog.Info("starting server", "addr", cfg.RunAddress)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-quit
	slog.Info("shutting down...")

	cancel() // stop worker
	ctxShut, cancelShut := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShut()

	if err := srv.Shutdown(ctxShut); err != nil {
		slog.Error("server shutdown failed", "error", err)
	}

	slog.Info("server stopped")
}
