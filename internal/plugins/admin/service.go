package admin

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"golang.org/x/crypto/bcrypt"

	"github.com/syphax/syphax/internal/apperror"
	"github.com/syphax/syphax/internal/plugins/auth"
	"github.com/syphax/syphax/internal/sanitize"
)

// maxSuggestions bounds the "did you mean" list on a failed name lookup.
const maxSuggestions = 5

// Service defines the admin operations on the identity store. Users are
// addressed by name or email, programs by their public key.
type Service interface {
	CreateUser(ctx context.Context, in CreateUserInput) (*auth.User, error)
	ListUsers(ctx context.Context, includeDeleted bool) ([]auth.User, error)
	RevokeUser(ctx context.Context, nameOrEmail string) error
	RestoreUser(ctx context.Context, nameOrEmail string) error
	MarkUserDeletable(ctx context.Context, nameOrEmail string) error
	DeleteUser(ctx context.Context, nameOrEmail string) error

	RegisterProgram(ctx context.Context, in RegisterProgramInput) (*ProgramCredentials, error)
	ListPrograms(ctx context.Context, ownerNameOrEmail string) ([]auth.Program, error)
	RevokeProgram(ctx context.Context, key string) error
}

type service struct {
	users       auth.UserRepository
	programs    auth.ProgramRepository
	phoneRegion string
	bcryptCost  int
	now         func() time.Time
}

// NewService creates the admin service. phoneRegion is the ISO 3166 region
// assumed for mobile numbers entered without a + prefix.
func NewService(users auth.UserRepository, programs auth.ProgramRepository, phoneRegion string) Service {
	return &service{
		users:       users,
		programs:    programs,
		phoneRegion: strings.ToUpper(phoneRegion),
		bcryptCost:  bcrypt.DefaultCost,
		now:         time.Now,
	}
}

// CreateUser validates the input, hashes the password and stores an
// active user.
func (s *service) CreateUser(ctx context.Context, in CreateUserInput) (*auth.User, error) {
	in.Name = sanitize.Text(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Mobile = strings.TrimSpace(in.Mobile)

	if err := in.Validate(); err != nil {
		return nil, apperror.NewValidation(err.Error())
	}

	var mobile *string
	if in.Mobile != "" {
		e164, err := s.normalizeMobile(in.Mobile)
		if err != nil {
			return nil, err
		}
		mobile = &e164
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.bcryptCost)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing password: %w", err))
	}
	hashStr := string(hash)

	now := s.now().UTC()
	user := &auth.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		Mobile:       mobile,
		Image:        in.Image,
		PasswordHash: &hashStr,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	slog.Info("user created", slog.String("user_id", user.ID))
	return user, nil
}

// normalizeMobile parses a phone number and formats it as E.164.
func (s *service) normalizeMobile(raw string) (string, error) {
	num, err := phonenumbers.Parse(raw, s.phoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", apperror.NewValidation(fmt.Sprintf("mobile: %q is not a valid phone number", raw))
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// ListUsers returns users, optionally including those marked deleted.
func (s *service) ListUsers(ctx context.Context, includeDeleted bool) ([]auth.User, error) {
	return s.users.List(ctx, includeDeleted)
}

// RevokeUser deactivates a user. Their refresh tokens stop working at the
// next refresh; access tokens already issued run out on their own.
func (s *service) RevokeUser(ctx context.Context, nameOrEmail string) error {
	user, err := s.resolveUser(ctx, nameOrEmail)
	if err != nil {
		return err
	}
	if err := s.users.SetActive(ctx, user.ID, false); err != nil {
		return err
	}
	slog.Info("user revoked", slog.String("user_id", user.ID))
	return nil
}

// RestoreUser reactivates a revoked user.
func (s *service) RestoreUser(ctx context.Context, nameOrEmail string) error {
	user, err := s.resolveUser(ctx, nameOrEmail)
	if err != nil {
		return err
	}
	if user.IsDeleted {
		return apperror.NewConflict("user is marked deleted and cannot be restored")
	}
	if err := s.users.SetActive(ctx, user.ID, true); err != nil {
		return err
	}
	slog.Info("user restored", slog.String("user_id", user.ID))
	return nil
}

// MarkUserDeletable flags a user as deleted. The row stays until DeleteUser.
func (s *service) MarkUserDeletable(ctx context.Context, nameOrEmail string) error {
	user, err := s.resolveUser(ctx, nameOrEmail)
	if err != nil {
		return err
	}
	if err := s.users.MarkDeleted(ctx, user.ID); err != nil {
		return err
	}
	slog.Info("user marked deletable", slog.String("user_id", user.ID))
	return nil
}

// DeleteUser permanently removes a user previously marked deletable.
func (s *service) DeleteUser(ctx context.Context, nameOrEmail string) error {
	user, err := s.resolveUser(ctx, nameOrEmail)
	if err != nil {
		return err
	}
	if !user.IsDeleted {
		return apperror.NewConflict("user must be marked deletable first")
	}
	if err := s.users.Delete(ctx, user.ID); err != nil {
		return err
	}
	slog.Info("user deleted", slog.String("user_id", user.ID))
	return nil
}

// resolveUser finds exactly one user by name or email. A miss returns
// NotFound listing similarly sounding names; an ambiguous name returns
// Conflict.
func (s *service) resolveUser(ctx context.Context, nameOrEmail string) (*auth.User, error) {
	nameOrEmail = strings.TrimSpace(nameOrEmail)
	if nameOrEmail == "" {
		return nil, apperror.NewBadRequest("a user name or email is required")
	}

	matches, err := s.users.FindByNameOrEmail(ctx, nameOrEmail)
	if err != nil {
		return nil, apperror.NewInternal(err)
	}

	switch len(matches) {
	case 1:
		return &matches[0], nil
	case 0:
		msg := fmt.Sprintf("no user named %q", nameOrEmail)
		suggestions, err := s.users.SuggestByName(ctx, nameOrEmail, maxSuggestions)
		if err != nil {
			slog.Warn("name suggestions failed", slog.Any("error", err))
		}
		if len(suggestions) > 0 {
			msg += "; did you mean: " + strings.Join(suggestions, ", ") + "?"
		}
		return nil, apperror.NewNotFound(msg)
	default:
		return nil, apperror.NewConflict(fmt.Sprintf("%d users match %q; use the email address", len(matches), nameOrEmail))
	}
}

// RegisterProgram creates a program owned by an existing user and returns
// its credentials. The raw secret is only available in the return value.
func (s *service) RegisterProgram(ctx context.Context, in RegisterProgramInput) (*ProgramCredentials, error) {
	in.OwnerEmail = strings.ToLower(strings.TrimSpace(in.OwnerEmail))
	in.Name = sanitize.Text(in.Name)

	if err := in.Validate(); err != nil {
		return nil, apperror.NewValidation(err.Error())
	}

	owner, err := s.resolveUser(ctx, in.OwnerEmail)
	if err != nil {
		return nil, err
	}

	secret, err := newSecret()
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("generating secret: %w", err))
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), s.bcryptCost)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("hashing secret: %w", err))
	}

	now := s.now().UTC()
	program := auth.Program{
		ID:         uuid.NewString(),
		UserID:     owner.ID,
		Name:       in.Name,
		Key:        uuid.NewString(),
		SecretHash: string(hash),
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.programs.Create(ctx, &program); err != nil {
		return nil, err
	}

	slog.Info("program registered",
		slog.String("program_id", program.ID),
		slog.String("owner_id", owner.ID),
	)
	return &ProgramCredentials{Program: program, Key: program.Key, Secret: secret}, nil
}

// ListPrograms returns the programs owned by a user.
func (s *service) ListPrograms(ctx context.Context, ownerNameOrEmail string) ([]auth.Program, error) {
	owner, err := s.resolveUser(ctx, ownerNameOrEmail)
	if err != nil {
		return nil, err
	}
	return s.programs.ListByUser(ctx, owner.ID)
}

// RevokeProgram deactivates a program by its public key.
func (s *service) RevokeProgram(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if err := uuid.Validate(key); err != nil {
		return apperror.NewValidation("key: must be a valid UUID")
	}
	if err := s.programs.SetActive(ctx, key, false); err != nil {
		return err
	}
	slog.Info("program revoked", slog.String("program_key", key))
	return nil
}

// newSecret returns 32 random bytes, hex encoded.
func newSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
