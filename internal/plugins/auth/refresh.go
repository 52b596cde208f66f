package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/syphax/syphax/internal/apperror"
	"github.com/syphax/syphax/internal/envelope"
	"github.com/syphax/syphax/internal/plugins/notify"
	"github.com/syphax/syphax/internal/token"
)

// errEmptyIdentity is returned when a decrypted payload carries no id.
var errEmptyIdentity = errors.New("auth: token payload has no identity")

// Refresh decides whether a request is authenticated from its access
// token and refresh token. The access token is always tried first; the
// refresh token is only consulted when the access token is absent or
// unusable, in which case a new access token is minted from the identity
// as currently stored. Refresh never fails: every problem yields an
// unauthenticated result.
func (s *authService) Refresh(ctx context.Context, accessToken, refreshToken string) RefreshResult {
	// At most one advisory event per request.
	var events []notify.Event
	note := func(err error) {
		if len(events) > 0 {
			return
		}
		switch {
		case errors.Is(err, token.ErrExpired):
			events = append(events, notify.NewEvent(notify.KindTokenExpired))
		case errors.Is(err, token.ErrInvalid),
			errors.Is(err, envelope.ErrMalformed),
			errors.Is(err, envelope.ErrDecrypt):
			events = append(events, notify.NewEvent(notify.KindInvalidToken))
		}
	}

	if accessToken == "" && refreshToken == "" {
		return RefreshResult{}
	}

	if accessToken != "" {
		projection, err := s.readAccess(accessToken)
		if err == nil {
			return authenticated(accessToken, projection, false, events)
		}
		note(err)
		slog.Debug("access token rejected", slog.Any("reason", err))
	}

	if refreshToken == "" {
		return RefreshResult{Events: events}
	}

	projection, access, err := s.reissue(ctx, refreshToken)
	if err != nil {
		note(err)
		if errors.Is(err, ErrStore) || errors.Is(err, ErrTokenIssue) {
			slog.Warn("refresh failed", slog.Any("error", err))
		} else {
			slog.Debug("refresh token rejected", slog.Any("reason", err))
		}
		return RefreshResult{Events: events, refreshErr: err}
	}

	return authenticated(access, projection, true, events)
}

// readAccess verifies an access token and decodes its projection.
func (s *authService) readAccess(accessToken string) (Projection, error) {
	claims, err := s.issuer.Verify(accessToken)
	if err != nil {
		return Projection{}, err
	}

	raw, err := s.cipher.Decrypt(claims.Payload)
	if err != nil {
		return Projection{}, fmt.Errorf("decrypting access payload: %w", err)
	}

	var projection Projection
	if err := json.Unmarshal([]byte(raw), &projection); err != nil {
		return Projection{}, fmt.Errorf("decoding access payload: %w", err)
	}
	if projection.ID == "" {
		return Projection{}, errEmptyIdentity
	}

	return projection, nil
}

// reissue verifies a refresh token, re-reads the identity it names and
// mints a fresh access token for it.
func (s *authService) reissue(ctx context.Context, refreshToken string) (Projection, string, error) {
	claims, err := s.issuer.Verify(refreshToken)
	if err != nil {
		return Projection{}, "", err
	}

	id, err := s.cipher.Decrypt(claims.Payload)
	if err != nil {
		return Projection{}, "", fmt.Errorf("decrypting refresh payload: %w", err)
	}
	if id == "" {
		return Projection{}, "", errEmptyIdentity
	}

	subject, err := s.findSubject(ctx, id)
	if err != nil {
		return Projection{}, "", err
	}

	projection := subject.Projection()
	access, err := s.mintAccess(projection)
	if err != nil {
		return Projection{}, "", err
	}

	return projection, access, nil
}

// findSubject looks id up among users, then programs. Both lookups only
// match active, non-deleted identities.
func (s *authService) findSubject(ctx context.Context, id string) (Subject, error) {
	user, err := s.users.FindByID(ctx, id)
	if err == nil {
		return user, nil
	}
	if !apperror.IsNotFound(err) {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	program, err := s.programs.FindByID(ctx, id)
	if err == nil {
		return program, nil
	}
	if !apperror.IsNotFound(err) {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	return nil, ErrUnknownIdentity
}

func authenticated(accessToken string, projection Projection, updated bool, events []notify.Event) RefreshResult {
	return RefreshResult{
		AuthStatus:   1,
		UpdatedToken: updated,
		Data: RefreshData{
			AccessToken: &accessToken,
			UserData:    &projection,
		},
		Events: events,
	}
}

// RefreshTTL returns the refresh token lifetime for a login at now: until
// the last second of the day `days` days later, in loc. The result is
// never below one second, so a same-day login in the final second still
// gets a usable token.
func RefreshTTL(now time.Time, days int, loc *time.Location) time.Duration {
	local := now.In(loc)
	y, m, d := local.Date()
	end := time.Date(y, m, d+days, 23, 59, 59, 0, loc)
	return max(end.Sub(local).Truncate(time.Second), time.Second)
}
