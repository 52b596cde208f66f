package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/syphax/syphax/internal/apperror"
	"github.com/syphax/syphax/internal/plugins/notify"
	"github.com/syphax/syphax/internal/token"
)

// PayloadCipher seals the identity data embedded in tokens.
// Implemented by *envelope.Cipher.
type PayloadCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(envelope string) (string, error)
}

// TokenIssuer signs and verifies tokens. Implemented by *token.Issuer.
type TokenIssuer interface {
	Sign(payload string, ttl time.Duration) (string, error)
	Verify(tokenString string) (*token.Claims, error)
}

// AuthService defines the business logic contract for authentication.
// Handlers and middleware call these methods -- they never touch the
// repositories directly.
//
// The returned events are advisory notifications for the client's
// WebSocket; the caller decides whether and where to push them.
type AuthService interface {
	AuthenticateUser(ctx context.Context, email, password string, ttl time.Duration) (*Session, []notify.Event, error)
	AuthenticateProgram(ctx context.Context, key, secret string, ttl time.Duration) (*Session, []notify.Event, error)
	Refresh(ctx context.Context, accessToken, refreshToken string) RefreshResult
}

// authService implements AuthService on top of the identity repositories,
// the payload cipher and the token issuer.
type authService struct {
	users     UserRepository
	programs  ProgramRepository
	cipher    PayloadCipher
	issuer    TokenIssuer
	accessTTL time.Duration
}

// NewAuthService creates a new auth service with the given dependencies.
// accessTTL is the lifetime of every access token it mints.
func NewAuthService(users UserRepository, programs ProgramRepository, cipher PayloadCipher, issuer TokenIssuer, accessTTL time.Duration) AuthService {
	return &authService{
		users:     users,
		programs:  programs,
		cipher:    cipher,
		issuer:    issuer,
		accessTTL: accessTTL,
	}
}

// AuthenticateUser verifies an email/password pair and issues a token
// pair whose refresh token lives for ttl.
func (s *authService) AuthenticateUser(ctx context.Context, email, password string, ttl time.Duration) (*Session, []notify.Event, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" || ttl <= 0 {
		return nil, nil, ErrMissingCredentials
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return s.reject(lookupError(err, password))
	}

	session, err := s.login(user, password, ttl)
	if err != nil {
		return s.reject(err)
	}

	slog.Info("user logged in", slog.String("user_id", user.ID))
	return session, []notify.Event{notify.NewEvent(notify.KindLoginSuccess)}, nil
}

// AuthenticateProgram verifies a program key/secret pair and issues a
// token pair whose refresh token lives for ttl.
func (s *authService) AuthenticateProgram(ctx context.Context, key, secret string, ttl time.Duration) (*Session, []notify.Event, error) {
	key = strings.TrimSpace(key)
	if key == "" || secret == "" || ttl <= 0 {
		return nil, nil, ErrMissingCredentials
	}

	program, err := s.programs.FindByKey(ctx, key)
	if err != nil {
		return s.reject(lookupError(err, secret))
	}

	session, err := s.login(program, secret, ttl)
	if err != nil {
		return s.reject(err)
	}

	slog.Info("program logged in", slog.String("program_id", program.ID))
	return session, []notify.Event{notify.NewEvent(notify.KindLoginSuccess)}, nil
}

// login checks the secret and builds the token pair. Nothing is returned
// unless both tokens were produced.
func (s *authService) login(subject Subject, secret string, ttl time.Duration) (*Session, error) {
	if err := subject.VerifySecret(secret); err != nil {
		return nil, err
	}

	projection := subject.Projection()
	access, err := s.mintAccess(projection)
	if err != nil {
		return nil, err
	}

	sealedID, err := s.cipher.Encrypt(subject.SubjectID())
	if err != nil {
		return nil, fmt.Errorf("%w: encrypting id: %v", ErrTokenIssue, err)
	}
	refresh, err := s.issuer.Sign(sealedID, ttl)
	if err != nil {
		return nil, fmt.Errorf("%w: signing refresh token: %v", ErrTokenIssue, err)
	}

	return &Session{
		AccessToken:  access,
		RefreshToken: refresh,
		Identity:     projection,
	}, nil
}

// mintAccess encrypts the full projection and signs a short-lived token.
func (s *authService) mintAccess(projection Projection) (string, error) {
	raw, err := json.Marshal(projection)
	if err != nil {
		return "", fmt.Errorf("%w: encoding projection: %v", ErrTokenIssue, err)
	}
	sealed, err := s.cipher.Encrypt(string(raw))
	if err != nil {
		return "", fmt.Errorf("%w: encrypting projection: %v", ErrTokenIssue, err)
	}
	access, err := s.issuer.Sign(sealed, s.accessTTL)
	if err != nil {
		return "", fmt.Errorf("%w: signing access token: %v", ErrTokenIssue, err)
	}
	return access, nil
}

// reject is the single failure exit for both login flows.
func (s *authService) reject(err error) (*Session, []notify.Event, error) {
	return nil, []notify.Event{notify.NewEvent(notify.KindLoginFailed)}, err
}

// lookupError classifies a repository error. On not-found it burns a
// bcrypt comparison so a missing account costs about as much as a wrong
// password.
func lookupError(err error, secret string) error {
	if apperror.IsNotFound(err) {
		_ = bcrypt.CompareHashAndPassword(dummyHash(), []byte(secret))
		return ErrUnknownIdentity
	}
	slog.Warn("identity lookup failed", slog.Any("error", err))
	return fmt.Errorf("%w: %v", ErrStore, err)
}

var (
	dummyOnce sync.Once
	dummy     []byte
)

// dummyHash returns a bcrypt hash that matches no real password.
func dummyHash() []byte {
	dummyOnce.Do(func() {
		dummy, _ = bcrypt.GenerateFromPassword([]byte("syphax-no-such-identity"), bcrypt.DefaultCost)
	})
	return dummy
}
