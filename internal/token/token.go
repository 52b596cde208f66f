// Package token signs and verifies the RS256 JWTs Syphax hands to clients.
// A token carries a single opaque "payload" claim (an encrypted envelope)
// plus the standard exp/iat claims.
package token

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissing is returned when no token was presented.
	ErrMissing = errors.New("token: missing")

	// ErrInvalid covers bad signatures, wrong algorithms and malformed tokens.
	ErrInvalid = errors.New("token: invalid")

	// ErrExpired is returned for a correctly signed token past its exp claim.
	ErrExpired = errors.New("token: expired")

	// ErrNoPayload is returned when signing an empty payload or when a
	// verified token carries none.
	ErrNoPayload = errors.New("token: no payload")
)

// Claims is the JWT body.
type Claims struct {
	Payload string `json:"payload"`
	jwt.RegisteredClaims
}

// Keys is the process-wide RS256 keypair. Loaded once at startup and
// read-only afterwards.
type Keys struct {
	private *rsa.PrivateKey
	public  *rsa.PublicKey
}

// NewKeys wraps an already parsed keypair.
func NewKeys(private *rsa.PrivateKey, public *rsa.PublicKey) *Keys {
	return &Keys{private: private, public: public}
}

// LoadKeys reads a PEM private key and a PEM public key from disk.
func LoadKeys(privatePath, publicPath string) (*Keys, error) {
	privPEM, err := os.ReadFile(privatePath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	private, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing private key %s: %w", privatePath, err)
	}

	pubPEM, err := os.ReadFile(publicPath)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	public, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, fmt.Errorf("parsing public key %s: %w", publicPath, err)
	}

	return NewKeys(private, public), nil
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// Issuer signs and verifies tokens with a Keys pair. Safe for concurrent use.
type Issuer struct {
	keys *Keys
	now  func() time.Time
}

// NewIssuer creates an Issuer bound to keys.
func NewIssuer(keys *Keys, opts ...Option) *Issuer {
	i := &Issuer{keys: keys, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Sign returns a token embedding payload that expires after ttl.
func (i *Issuer) Sign(payload string, ttl time.Duration) (string, error) {
	if payload == "" {
		return "", ErrNoPayload
	}

	now := i.now()
	claims := Claims{
		Payload: payload,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(i.keys.private)
	if err != nil {
		return "", fmt.Errorf("token: signing: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm and expiry and returns the claims.
// A correctly signed but expired token yields ErrExpired so callers can
// tell it apart from a forged one.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissing
	}

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (any, error) {
			return i.keys.public, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		// The signature is checked before the claims, so an expiry error
		// implies the signature was good.
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if !tok.Valid {
		return nil, ErrInvalid
	}
	if claims.Payload == "" {
		return nil, ErrNoPayload
	}

	return claims, nil
}
