package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/syphax/syphax/internal/apperror"
	"github.com/syphax/syphax/internal/middleware"
	"github.com/syphax/syphax/internal/plugins/notify"
)

// Client-facing messages. Every failure of a flow uses the same text.
const (
	msgLoginOK        = "Successfully logged in!"
	msgLoginFailed    = "Failed to authenticate!"
	msgTokenValid     = "Token valid!"
	msgTokenRefreshed = "Token refreshed!"
	msgVerifyFailed   = "Verification failed!"
	msgLoggedOut      = "Successfully logged out!"
)

// AccessTokenHeader carries a freshly minted access token back to the
// client whenever the refresh protocol replaced it.
const AccessTokenHeader = "X-Access-Token"

// HandlerConfig holds the cookie and lifetime settings of the handler.
type HandlerConfig struct {
	// CookieName names the refresh token cookie.
	CookieName string

	// CookieSecure sets the Secure attribute. Requests arriving over TLS
	// get a Secure cookie regardless.
	CookieSecure bool

	// RefreshDays and StaySignedInDays pick the refresh token lifetime.
	RefreshDays      int
	StaySignedInDays int

	// Location is the time zone used to find the end of day.
	Location *time.Location
}

// Handler handles HTTP requests for authentication. Handlers are thin:
// they bind the request, call the service, push the returned events and
// render the response envelope.
type Handler struct {
	service  AuthService
	notifier notify.Notifier
	cfg      HandlerConfig
	now      func() time.Time
}

// NewHandler creates a new auth handler.
func NewHandler(service AuthService, notifier notify.Notifier, cfg HandlerConfig) *Handler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Handler{
		service:  service,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Login authenticates a user and sets the refresh cookie (POST /api/auth/login).
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewUnauthorized(msgLoginFailed)
	}
	if err := req.Validate(); err != nil {
		slog.Debug("login request rejected", slog.Any("reason", err))
		return apperror.NewUnauthorized(msgLoginFailed)
	}

	days := h.cfg.RefreshDays
	if req.StaySignedIn {
		days = h.cfg.StaySignedInDays
	}
	ttl := RefreshTTL(h.now(), days, h.cfg.Location)

	ctx := c.Request().Context()
	session, events, err := h.service.AuthenticateUser(ctx, req.Email, req.Password, ttl)
	notify.Emit(ctx, h.notifier, connectionID(c), events)
	if err != nil {
		logLoginFailure(c, err)
		return apperror.NewUnauthorized(msgLoginFailed)
	}

	h.setRefreshCookie(c, session.RefreshToken, ttl)

	return middleware.JSONSuccess(c, http.StatusOK, msgLoginOK, &middleware.AuthBody{
		Authenticated: true,
		AccessToken:   session.AccessToken,
		User:          session.Identity,
	}, nil)
}

// programLoginData is the data member of a successful program login.
type programLoginData struct {
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"`
}

// ProgramLogin authenticates a native program (POST /api/auth/program/login).
// Programs keep no cookie jar, so both tokens are returned in the body.
func (h *Handler) ProgramLogin(c echo.Context) error {
	var req ProgramLoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewUnauthorized(msgLoginFailed)
	}
	if err := req.Validate(); err != nil {
		slog.Debug("program login request rejected", slog.Any("reason", err))
		return apperror.NewUnauthorized(msgLoginFailed)
	}

	ttl := RefreshTTL(h.now(), h.cfg.StaySignedInDays, h.cfg.Location)

	ctx := c.Request().Context()
	session, events, err := h.service.AuthenticateProgram(ctx, req.Key, req.Secret, ttl)
	notify.Emit(ctx, h.notifier, connectionID(c), events)
	if err != nil {
		logLoginFailure(c, err)
		return apperror.NewUnauthorized(msgLoginFailed)
	}

	return middleware.JSONSuccess(c, http.StatusOK, msgLoginOK, &middleware.AuthBody{
		Authenticated: true,
		AccessToken:   session.AccessToken,
		User:          session.Identity,
	}, programLoginData{
		RefreshToken: session.RefreshToken,
		ExpiresIn:    int(ttl.Seconds()),
	})
}

// VerifyToken runs the refresh protocol on the bearer token and the refresh
// cookie (GET /api/auth/verifyToken).
func (h *Handler) VerifyToken(c echo.Context) error {
	return h.respondRefresh(c, bearerToken(c), msgTokenValid)
}

// RefreshToken mints a new access token from the refresh cookie alone
// (POST /api/auth/refreshToken).
func (h *Handler) RefreshToken(c echo.Context) error {
	return h.respondRefresh(c, "", msgTokenRefreshed)
}

func (h *Handler) respondRefresh(c echo.Context, accessToken, okMessage string) error {
	refreshToken := h.refreshCookie(c)
	ctx := c.Request().Context()

	result := h.service.Refresh(ctx, accessToken, refreshToken)
	notify.Emit(ctx, h.notifier, connectionID(c), result.Events)

	if !result.Authenticated() {
		if result.RefreshRejected() {
			h.clearRefreshCookie(c)
		}
		return apperror.NewUnauthorized(msgVerifyFailed)
	}

	access := *result.Data.AccessToken
	if result.UpdatedToken {
		c.Response().Header().Set(AccessTokenHeader, access)
	}

	return middleware.JSONSuccess(c, http.StatusOK, okMessage, &middleware.AuthBody{
		Authenticated: true,
		AccessToken:   access,
		User:          result.Data.UserData,
	}, result)
}

// Logout clears the refresh cookie (GET|POST /api/auth/logout). Tokens
// are stateless, so there is nothing to revoke server-side.
func (h *Handler) Logout(c echo.Context) error {
	h.clearRefreshCookie(c)
	return middleware.JSONSuccess(c, http.StatusOK, msgLoggedOut, nil, nil)
}

// Me returns the caller's identity (GET /api/me). Requires RequireAuth.
func (h *Handler) Me(c echo.Context) error {
	identity := GetIdentity(c)
	if identity == nil {
		return apperror.NewUnauthorized(msgVerifyFailed)
	}
	return middleware.JSONSuccess(c, http.StatusOK, "", &middleware.AuthBody{
		Authenticated: true,
		User:          identity,
	}, identity)
}

// logLoginFailure logs infrastructure failures loudly and credential
// failures quietly. Neither detail reaches the client.
func logLoginFailure(c echo.Context, err error) {
	if errors.Is(err, ErrStore) || errors.Is(err, ErrTokenIssue) {
		slog.Error("login failed", slog.Any("error", err), slog.String("remote_ip", c.RealIP()))
		return
	}
	slog.Info("login rejected", slog.String("remote_ip", c.RealIP()))
}

// --- Cookie helpers ---

// refreshCookie reads the refresh token from its cookie.
func (h *Handler) refreshCookie(c echo.Context) string {
	return readCookie(c, h.cfg.CookieName)
}

// setRefreshCookie stores the refresh token in an HttpOnly, SameSite=Lax
// cookie whose lifetime mirrors the token's.
func (h *Handler) setRefreshCookie(c echo.Context, value string, ttl time.Duration) {
	req := c.Request()
	c.SetCookie(&http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure || req.TLS != nil || req.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(ttl.Seconds()),
	})
}

// clearRefreshCookie removes the refresh cookie by setting MaxAge to -1.
func (h *Handler) clearRefreshCookie(c echo.Context) {
	clearCookie(c, h.cfg.CookieName)
}

func readCookie(c echo.Context, name string) string {
	cookie, err := c.Cookie(name)
	if err != nil || cookie.Value == "" {
		return ""
	}
	return cookie.Value
}

func clearCookie(c echo.Context, name string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// connectionID returns the WebSocket connection the client asked to be
// notified on, if any.
func connectionID(c echo.Context) string {
	return c.Request().Header.Get(notify.ConnectionHeader)
}
