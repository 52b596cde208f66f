package notify

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/syphax/syphax/internal/middleware"
)

// Handler exposes the notification hub over HTTP.
type Handler struct {
	hub      *Hub
	notifier Notifier
	upgrader websocket.Upgrader
}

// NewHandler creates a handler that accepts WebSocket connections into hub
// and publishes through notifier (the hub itself, or a relay in front of it).
// Browsers are only allowed to connect from allowedOrigins; clients that
// send no Origin header are not browsers and are accepted.
func NewHandler(hub *Hub, notifier Notifier, allowedOrigins []string) *Handler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = true
	}

	return &Handler{
		hub:      hub,
		notifier: notifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed[origin]
			},
		},
	}
}

// Connect upgrades the request and serves the connection (GET /ws).
func (h *Handler) Connect(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		slog.Debug("websocket upgrade failed", slog.Any("error", err))
		return nil
	}

	h.hub.Serve(conn)
	return nil
}

// DataReady broadcasts a newDataReady event to every connected client
// (POST /api/programs/data-ready). Used by native programs after they
// push new data. The message is always the fixed default text; any
// request body is ignored.
func (h *Handler) DataReady(c echo.Context) error {
	h.notifier.Broadcast(c.Request().Context(), NewEvent(KindNewDataReady))
	return middleware.JSONSuccess(c, http.StatusOK, "Notification sent!", nil, nil)
}
