package middleware

import (
	"github.com/labstack/echo/v4"
)

// AuthBody is the "auth" member of the response envelope.
type AuthBody struct {
	Authenticated bool   `json:"authenticated"`
	AccessToken   string `json:"accessToken,omitempty"`
	User          any    `json:"user,omitempty"`
}

// ErrorBody is the "error" member of the response envelope.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Envelope is the JSON shape of every /api response. The frontend relies
// on all five members being present, so none of them is omitted.
type Envelope struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Auth    *AuthBody  `json:"auth"`
	Data    any        `json:"data"`
	Error   *ErrorBody `json:"error"`
}

// JSONSuccess writes a successful envelope.
func JSONSuccess(c echo.Context, code int, message string, auth *AuthBody, data any) error {
	return c.JSON(code, Envelope{
		Success: true,
		Message: message,
		Auth:    auth,
		Data:    data,
	})
}

// JSONError writes a failed envelope. The top-level message stays empty;
// the client-facing text lives in error.message.
func JSONError(c echo.Context, code int, message string) error {
	return c.JSON(code, Envelope{
		Error: &ErrorBody{Code: code, Message: message},
	})
}
