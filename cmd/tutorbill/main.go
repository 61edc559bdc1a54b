package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rowanhall/tutorbill/internal/database"
	"github.com/rowanhall/tutorbill/internal/logging"
	"github.com/rowanhall/tutorbill/internal/server"
	"github.com/rowanhall/tutorbill/internal/stripeclient"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	godotenv.Load()

	logger := logging.Setup(
		envOr("TUTORBILL_LOG_LEVEL", "info"),
		envOr("TUTORBILL_LOG_FORMAT", "json"),
	)

	dbPath := envOr("TUTORBILL_DB_PATH", "tutorbill.db")
	db, err := database.Open(dbPath)
	if err != nil {
		logger.Error("open database", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	cfg := server.Config{
		Stripe: stripeclient.Config{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
		},
		BaseURL:    envOr("TUTORBILL_BASE_URL", "http://localhost:8090"),
		AuthSecret: os.Getenv("TUTORBILL_AUTH_SECRET"),
	}
	if cfg.Stripe.SecretKey != "" && cfg.AuthSecret == "" {
		logger.Error("TUTORBILL_AUTH_SECRET is required when billing is enabled")
		os.Exit(1)
	}

	srv := server.New(db, cfg, logger)

	addr := ":" + envOr("TUTORBILL_PORT", "8090")
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "addr", addr, "billing_enabled", srv.BillingEnabled())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}
