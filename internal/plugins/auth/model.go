// Package auth owns the identity lifecycle: verifying credentials, issuing
// the access/refresh token pair, and the stateless refresh protocol that
// decides on every request whether a client is still authenticated.
//
// Identities come in two variants, User (email + password) and Program
// (machine client, key + secret), both implementing Subject.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"golang.org/x/crypto/bcrypt"

	"github.com/syphax/syphax/internal/plugins/notify"
)

// Error kinds returned by the auth core. The HTTP layer collapses all of
// them into one generic 401 so clients cannot tell them apart.
var (
	// ErrMissingCredentials is returned before any I/O when a credential
	// field or the token lifetime is missing.
	ErrMissingCredentials = errors.New("auth: missing credentials")

	// ErrUnknownIdentity means no active, non-deleted identity matched.
	ErrUnknownIdentity = errors.New("auth: unknown or inactive identity")

	// ErrBadSecret means the password or program secret did not match, or
	// the identity has no stored hash.
	ErrBadSecret = errors.New("auth: secret mismatch")

	// ErrTokenIssue means encrypting or signing the token pair failed.
	ErrTokenIssue = errors.New("auth: token issue failed")

	// ErrStore wraps identity store failures other than not-found.
	ErrStore = errors.New("auth: identity store failure")
)

// Subject is the capability shared by every identity variant.
type Subject interface {
	// SubjectID is the stable identifier embedded in refresh tokens.
	SubjectID() string

	// VerifySecret compares secret with the stored hash.
	VerifySecret(secret string) error

	// Projection is the redacted view handed to clients and embedded in
	// access tokens.
	Projection() Projection
}

// Projection is the client-facing view of an identity. Users fill
// ID/Name/Email/Mobile/Image, programs fill ID/Name/Key.
type Projection struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email,omitempty"`
	Mobile string `json:"mobile,omitempty"`
	Image  string `json:"image,omitempty"`
	Key    string `json:"key,omitempty"`
}

// User is a human account. PasswordHash may be NULL for accounts that
// have never been given a password; such accounts cannot log in.
type User struct {
	ID           string
	Name         string
	Email        string
	Mobile       *string
	Image        string
	PasswordHash *string
	IsActive     bool
	IsDeleted    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// SubjectID implements Subject.
func (u *User) SubjectID() string { return u.ID }

// VerifySecret checks password against the stored bcrypt hash. Hashes
// written by PHP ($2y$) are read as $2b$ for the comparison only.
func (u *User) VerifySecret(password string) error {
	if u.PasswordHash == nil || *u.PasswordHash == "" {
		return ErrBadSecret
	}
	hash := normalizeLegacyHash(*u.PasswordHash)
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSecret, err)
	}
	return nil
}

// Projection implements Subject.
func (u *User) Projection() Projection {
	p := Projection{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Email,
		Image: u.Image,
	}
	if u.Mobile != nil {
		p.Mobile = *u.Mobile
	}
	return p
}

// Program is a machine client that authenticates with a public key and a
// secret. The raw secret is shown once at registration; only its hash is kept.
type Program struct {
	ID         string
	UserID     string
	Name       string
	Key        string
	SecretHash string
	IsActive   bool
	IsDeleted  bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SubjectID implements Subject.
func (p *Program) SubjectID() string { return p.ID }

// VerifySecret checks secret against the stored bcrypt hash.
func (p *Program) VerifySecret(secret string) error {
	if p.SecretHash == "" {
		return ErrBadSecret
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.SecretHash), []byte(secret)); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSecret, err)
	}
	return nil
}

// Projection implements Subject.
func (p *Program) Projection() Projection {
	return Projection{ID: p.ID, Name: p.Name, Key: p.Key}
}

// normalizeLegacyHash rewrites a leading "$2y" (any case) to "$2b". The
// stored value is never modified.
func normalizeLegacyHash(hash string) string {
	if len(hash) > 3 && strings.EqualFold(hash[:3], "$2y") {
		return "$2b" + hash[3:]
	}
	return hash
}

// Session is the result of a successful login. It is either fully
// populated or not returned at all.
type Session struct {
	AccessToken  string
	RefreshToken string
	Identity     Projection
}

// RefreshResult is the decision of the refresh protocol. Events lists the
// advisory notifications the caller should push to the client.
type RefreshResult struct {
	AuthStatus   int            `json:"authStatus"`
	UpdatedToken bool           `json:"updatedToken"`
	Data         RefreshData    `json:"data"`
	Events       []notify.Event `json:"-"`

	// refreshErr is why the refresh token did not yield a session, when
	// one was presented and used.
	refreshErr error
}

// RefreshData carries the (possibly new) access token and the identity.
// Both are null when unauthenticated.
type RefreshData struct {
	AccessToken *string     `json:"accessToken"`
	UserData    *Projection `json:"userData"`
}

// Authenticated reports whether the request was authenticated.
func (r RefreshResult) Authenticated() bool {
	return r.AuthStatus == 1
}

// RefreshRejected reports whether the presented refresh token was refused
// on its own merits: malformed, forged, expired, undecryptable or naming
// no active identity. A store or signing failure is not a rejection; the
// same token may succeed on retry and the client should keep it.
func (r RefreshResult) RefreshRejected() bool {
	if r.refreshErr == nil {
		return false
	}
	return !errors.Is(r.refreshErr, ErrStore) && !errors.Is(r.refreshErr, ErrTokenIssue)
}

// --- Request DTOs (bound from HTTP requests) ---

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email        string `json:"email" form:"email"`
	Password     string `json:"password" form:"password"`
	StaySignedIn bool   `json:"staySignedIn" form:"staySignedIn"`
}

// Validate implements validation.Validatable.
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 255), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 128)),
	)
}

// ProgramLoginRequest is the body of POST /api/auth/program/login.
type ProgramLoginRequest struct {
	Key    string `json:"key" form:"key"`
	Secret string `json:"secret" form:"secret"`
}

// Validate implements validation.Validatable.
func (r ProgramLoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Key, validation.Required, is.UUID),
		validation.Field(&r.Secret, validation.Required, validation.Length(1, 128)),
	)
}
