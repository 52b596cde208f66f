package apperror

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestSafeMessage_WrappedAppError(t *testing.T) {
	err := fmt.Errorf("handler: %w", NewUnauthorized("Failed to authenticate!"))
	if got := SafeMessage(err); got != "Failed to authenticate!" {
		t.Errorf("SafeMessage = %q", got)
	}
	if got := SafeCode(err); got != http.StatusUnauthorized {
		t.Errorf("SafeCode = %d", got)
	}
}

func TestSafeMessage_HidesRawErrors(t *testing.T) {
	err := errors.New("dial tcp 10.0.0.5:3306: connection refused")
	if got := SafeMessage(err); got == err.Error() {
		t.Error("raw error leaked through SafeMessage")
	}
	if got := SafeCode(err); got != http.StatusInternalServerError {
		t.Errorf("SafeCode = %d, want 500", got)
	}
}

func TestNewInternal_KeepsCause(t *testing.T) {
	err := NewInternal(sql.ErrConnDone)
	if !errors.Is(err, sql.ErrConnDone) {
		t.Error("expected Unwrap to expose the cause")
	}
	if err.Message == sql.ErrConnDone.Error() {
		t.Error("internal cause must not become the client message")
	}
}

func TestIsNotFound(t *testing.T) {
	if !IsNotFound(fmt.Errorf("repo: %w", NewNotFound("user not found"))) {
		t.Error("expected wrapped NotFound to match")
	}
	if IsNotFound(NewConflict("duplicate")) {
		t.Error("conflict is not a NotFound")
	}
	if IsNotFound(nil) {
		t.Error("nil is not a NotFound")
	}
}
