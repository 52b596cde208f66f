// Package app is the application bootstrap and dependency injection root.
// It holds the shared infrastructure (DB pool, Redis client, notification
// hub, Echo instance) and wires the plugins together.
package app

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/syphax/syphax/internal/apperror"
	"github.com/syphax/syphax/internal/config"
	"github.com/syphax/syphax/internal/middleware"
	"github.com/syphax/syphax/internal/plugins/auth"
	"github.com/syphax/syphax/internal/plugins/notify"
	"github.com/syphax/syphax/internal/templates/pages"
)

// Deps are the long-lived objects built in main and shared by the plugins.
type Deps struct {
	// DB is the MariaDB pool backing the identity store.
	DB *sql.DB

	// Redis is optional; nil when the relay is disabled.
	Redis *redis.Client

	// Cipher seals token payloads.
	Cipher auth.PayloadCipher

	// Issuer signs and verifies tokens.
	Issuer auth.TokenIssuer

	// Hub owns this instance's WebSocket connections.
	Hub *notify.Hub

	// Notifier delivers events: the hub itself, or a RedisRelay around it.
	Notifier notify.Notifier
}

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	Config *config.Config
	Deps   Deps
	Echo   *echo.Echo
}

// New creates a new App and configures the Echo server with global
// middleware and error handling.
func New(cfg *config.Config, deps Deps) *App {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	middleware.TrustedProxies(e, cfg.TrustedProxies)

	app := &App{
		Config: cfg,
		Deps:   deps,
		Echo:   e,
	}

	app.setupMiddleware()
	e.HTTPErrorHandler = app.errorHandler

	return app
}

// setupMiddleware registers global middleware on the Echo instance.
// The request logger is outermost so it sees the final status, recovery
// sits inside it so panics are logged as 500s.
func (a *App) setupMiddleware() {
	a.Echo.Use(middleware.RequestLogger())
	a.Echo.Use(middleware.Recovery())
	a.Echo.Use(middleware.SecurityHeaders(a.Config.IsProduction()))
	a.Echo.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   a.Config.CORS.AllowedOrigins,
		AllowCredentials: true,
	}))
}

// errorHandler maps errors to responses. API requests always get the JSON
// envelope; anything else gets a small HTML error page.
func (a *App) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := defaultErrorMessage(code)

	var appErr *apperror.AppError
	var echoErr *echo.HTTPError
	switch {
	case errors.As(err, &appErr):
		code = appErr.Code
		message = appErr.Message
		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
			)
		}
	case errors.As(err, &echoErr):
		code = echoErr.Code
		message = defaultErrorMessage(code)
		if msg, ok := echoErr.Message.(string); ok && code < 500 {
			message = msg
		}
	default:
		slog.Error("unhandled error",
			slog.Any("error", err),
			slog.String("path", c.Request().URL.Path),
		)
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(code)
	} else if middleware.WantsJSON(c) {
		writeErr = middleware.JSONError(c, code, message)
	} else {
		writeErr = middleware.Render(c, code, pages.ErrorPage(code, message))
	}
	if writeErr != nil {
		slog.Warn("writing error response", slog.Any("error", writeErr))
	}
}

// defaultErrorMessage returns a client-facing message for status codes
// that arrive without one.
func defaultErrorMessage(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "The request was invalid or cannot be processed."
	case http.StatusUnauthorized:
		return "Unauthorized"
	case http.StatusForbidden:
		return "You don't have permission to access this resource."
	case http.StatusNotFound:
		return "Page not found!"
	case http.StatusMethodNotAllowed:
		return "This action is not allowed."
	case http.StatusRequestEntityTooLarge:
		return "The request body is too large."
	case http.StatusTooManyRequests:
		return "Too many attempts. Please try again later."
	case http.StatusServiceUnavailable:
		return "The service is temporarily unavailable. Please try again later."
	default:
		return "An unexpected error occurred. Please try again."
	}
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting Syphax server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
	)
	return a.Echo.Start(addr)
}
