package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/syphax/syphax/internal/apperror"
	"github.com/syphax/syphax/internal/plugins/notify"
)

// Context key for the authenticated identity. Other plugins read it via
// GetIdentity.
const contextKeyIdentity = "auth_identity"

// RequireAuth returns middleware that runs the refresh protocol on the
// bearer token and the refresh cookie. Authenticated requests get the
// identity stored in the context; when a new access token was minted it
// is returned in the X-Access-Token response header. Any other outcome is
// a 401.
func RequireAuth(service AuthService, notifier notify.Notifier, cookieName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			refreshToken := readCookie(c, cookieName)

			result := service.Refresh(ctx, bearerToken(c), refreshToken)
			notify.Emit(ctx, notifier, connectionID(c), result.Events)

			if !result.Authenticated() {
				if result.RefreshRejected() {
					clearCookie(c, cookieName)
				}
				return apperror.NewUnauthorized(msgVerifyFailed)
			}

			if result.UpdatedToken {
				c.Response().Header().Set(AccessTokenHeader, *result.Data.AccessToken)
			}
			c.Set(contextKeyIdentity, result.Data.UserData)

			return next(c)
		}
	}
}

// RequireAuthStatic guards static files. It accepts the same credentials
// as RequireAuth but answers failures with a bare 401 instead of the JSON
// envelope, and pushes no notifications.
func RequireAuthStatic(service AuthService, cookieName string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			result := service.Refresh(c.Request().Context(), bearerToken(c), readCookie(c, cookieName))
			if !result.Authenticated() {
				return c.String(http.StatusUnauthorized, "Unauthorized")
			}
			if result.UpdatedToken {
				c.Response().Header().Set(AccessTokenHeader, *result.Data.AccessToken)
			}
			c.Set(contextKeyIdentity, result.Data.UserData)
			return next(c)
		}
	}
}

// RequireProgram lets only native programs through. It reads the identity
// stored by RequireAuth and must be chained after it.
func RequireProgram(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		identity := GetIdentity(c)
		if identity == nil {
			return apperror.NewUnauthorized(msgVerifyFailed)
		}
		if identity.Key == "" {
			return apperror.NewForbidden("This endpoint is reserved for native programs.")
		}
		return next(c)
	}
}

// GetIdentity retrieves the authenticated identity from the Echo context.
// Returns nil if the request is not authenticated (middleware not applied).
func GetIdentity(c echo.Context) *Projection {
	identity, ok := c.Get(contextKeyIdentity).(*Projection)
	if !ok {
		return nil
	}
	return identity
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Returns "" when the header is absent or uses another scheme.
func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	scheme, tok, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}
