package token

import (
	"errors"
	"time"
)

var (
	// ErrInvalidRefreshToken covers not-found, expired, and revoked alike;
	// the caller must not be able to tell which.
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrNotFound            = errors.New("refresh token not found")
)

// RefreshToken is one durable ledger record. The raw value never touches
// the database: records are keyed by TokenHash. ChainID stays constant
// across rotations of one logical session, so a whole device session can
// be revoked at once.
type RefreshToken struct {
	ID        int64
	ChainID   string
	UserID    int64
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
}

// Pair is what a successful login or rotation hands back to the caller.
// RefreshValue is empty when the session was not asked to persist.
type Pair struct {
	AccessToken     string
	AccessExpiresAt time.Time
	RefreshValue    string
}
