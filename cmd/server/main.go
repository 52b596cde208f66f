// Package main is the entry point for the Syphax API server. It loads
// configuration, connects to MariaDB and (optionally) Redis, loads the
// token keys, wires the plugins and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/syphax/syphax/internal/app"
	"github.com/syphax/syphax/internal/config"
	"github.com/syphax/syphax/internal/database"
	"github.com/syphax/syphax/internal/envelope"
	"github.com/syphax/syphax/internal/plugins/notify"
	"github.com/syphax/syphax/internal/token"
)

func main() {
	// A missing .env is fine; the environment may already be populated.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("could not read .env", slog.Any("error", err))
	}

	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	setupLogging(cfg)

	slog.Info("starting Syphax",
		slog.String("env", cfg.Env),
		slog.Int("port", cfg.Port),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to MariaDB ---
	db, err := database.NewMariaDB(ctx, cfg.Database)
	if err != nil {
		slog.Error("failed to connect to MariaDB", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to MariaDB")

	if cfg.Database.RunMigrations {
		if err := database.RunMigrations(db, cfg.Database.MigrationsPath); err != nil {
			slog.Error("failed to run migrations", slog.Any("error", err))
			os.Exit(1)
		}
	}

	// --- Token keys and payload cipher ---
	keys, err := token.LoadKeys(cfg.Auth.PrivateKeyPath, cfg.Auth.PublicKeyPath)
	if err != nil {
		slog.Error("failed to load JWT keypair", slog.Any("error", err))
		os.Exit(1)
	}
	cipher, err := envelope.New(cfg.Auth.CipherSecret, cfg.Auth.CipherSalt, cfg.Auth.CipherKeyLength)
	if err != nil {
		slog.Error("failed to derive payload cipher key", slog.Any("error", err))
		os.Exit(1)
	}

	// --- Notifications ---
	hub := notify.NewHub()
	defer hub.Close()

	var notifier notify.Notifier = hub
	rdb, err := database.NewRedis(ctx, cfg.Redis)
	switch {
	case err != nil:
		slog.Warn("redis unavailable, notifications stay on this instance", slog.Any("error", err))
	case rdb == nil:
		slog.Info("redis not configured, notifications stay on this instance")
	default:
		defer rdb.Close()
		relay := notify.NewRedisRelay(hub, rdb)
		go relay.Run(ctx)
		notifier = relay
		slog.Info("connected to Redis, notification relay enabled")
	}

	// --- Create Application ---
	application := app.New(cfg, app.Deps{
		DB:       db,
		Redis:    rdb,
		Cipher:   cipher,
		Issuer:   token.NewIssuer(keys),
		Hub:      hub,
		Notifier: notifier,
	})
	application.RegisterRoutes()

	// --- Graceful Shutdown ---
	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := application.Echo.Shutdown(shutdownCtx); err != nil {
			slog.Error("server forced shutdown", slog.Any("error", err))
		}
	}()

	if err := application.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// setupLogging configures the global slog logger. Development uses text
// format for readability, production uses JSON for log aggregation.
func setupLogging(cfg *config.Config) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}

	var handler slog.Handler
	if cfg.IsDevelopment() {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
