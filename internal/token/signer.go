// Package token is the signing authority: it mints and validates signed
// access tokens and generates opaque refresh token values. It is
// stateless; refresh-token semantics live in the ledger.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/trackhire/trackhire/internal/domain/user"
)

const refreshValueBytes = 32 // 256 bits of entropy

var ErrTokenInvalid = errors.New("invalid access token")

// AccessClaims is the signed payload of an access token.
type AccessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim back into the owner id.
func (c *AccessClaims) UserID() (int64, error) {
	return strconv.ParseInt(c.Subject, 10, 64)
}

type Config struct {
	Secret    []byte
	Issuer    string
	AccessTTL time.Duration
}

type Signer struct {
	cfg Config
}

// NewSigner validates the signing configuration once, at startup.
// A missing key or non-positive TTL is fatal here so that no request
// ever has to handle it.
func NewSigner(cfg Config) (*Signer, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("signing key is not configured")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("access token TTL must be positive")
	}
	return &Signer{cfg: cfg}, nil
}

// MintAccess signs a short-lived access token for u. Pure function of
// (user, now, key, ttl); the jti makes every token unique.
func (s *Signer) MintAccess(u *user.User, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(s.cfg.AccessTTL)
	claims := AccessClaims{
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			ID:        uuid.NewString(),
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate checks signature, expiry, signing method, and issuer.
// Side-effect free; no storage is consulted.
func (s *Signer) Validate(tokenStr string) (*AccessClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}

	parsed, err := jwt.ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.cfg.Secret, nil
	}, opts...)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// NewRefreshValue returns an unguessable opaque refresh token value.
// It carries no claims; all semantics live in the ledger record.
func NewRefreshValue() (string, error) {
	b := make([]byte, refreshValueBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashValue maps a raw refresh value to its ledger key. Storing only the
// hash keeps a database dump from yielding usable tokens.
func HashValue(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
