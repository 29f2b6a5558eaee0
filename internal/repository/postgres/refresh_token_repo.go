package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/trackhire/trackhire/internal/domain/token"
)

var _ token.Ledger = (*RefreshTokenRepo)(nil)

// RefreshTokenRepo is the durable ledger. Rotation never mutates a
// token value in place; consuming flips the revoked flag and the
// successor is a fresh row, so the full chain stays auditable.
type RefreshTokenRepo struct{ db *DB }

func NewRefreshTokenRepo(db *DB) *RefreshTokenRepo { return &RefreshTokenRepo{db: db} }

const (
	qRTInsert = `
INSERT INTO refresh_tokens(chain_id, user_id, token_hash, issued_at, expires_at, revoked)
VALUES ($1, $2, $3, $4, $5, FALSE)
RETURNING id;`

	// The WHERE clause is the compare-and-set: of N concurrent consumers
	// of one hash, exactly one sees a matched row.
	qRTConsume = `
UPDATE refresh_tokens
SET revoked = TRUE, revoked_at = NOW()
WHERE token_hash = $1 AND revoked = FALSE AND expires_at > NOW()
RETURNING id, chain_id, user_id, token_hash, issued_at, expires_at, revoked_at;`

	qRTFind = `
SELECT id, chain_id, user_id, token_hash, issued_at, expires_at, revoked, revoked_at
FROM refresh_tokens
WHERE token_hash = $1
LIMIT 1;`

	qRTRevoke = `
UPDATE refresh_tokens
SET revoked = TRUE, revoked_at = NOW()
WHERE token_hash = $1 AND revoked = FALSE;`

	qRTRevokeChain = `
UPDATE refresh_tokens
SET revoked = TRUE, revoked_at = NOW()
WHERE chain_id = $1 AND revoked = FALSE;`
)

func (r *RefreshTokenRepo) Insert(ctx context.Context, t *token.RefreshToken) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if err := r.db.execQueryer(ctx).
		QueryRow(ctx, qRTInsert, t.ChainID, t.UserID, t.TokenHash, t.IssuedAt, t.ExpiresAt).
		Scan(&t.ID); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepo) Consume(ctx context.Context, tokenHash string) (*token.RefreshToken, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var t token.RefreshToken
	if err := r.db.execQueryer(ctx).
		QueryRow(ctx, qRTConsume, tokenHash).
		Scan(&t.ID, &t.ChainID, &t.UserID, &t.TokenHash, &t.IssuedAt, &t.ExpiresAt, &t.RevokedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, token.ErrNotFound
		}
		return nil, fmt.Errorf("consume refresh token: %w", err)
	}
	t.Revoked = true
	return &t, nil
}

func (r *RefreshTokenRepo) Find(ctx context.Context, tokenHash string) (*token.RefreshToken, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var t token.RefreshToken
	if err := r.db.execQueryer(ctx).
		QueryRow(ctx, qRTFind, tokenHash).
		Scan(&t.ID, &t.ChainID, &t.UserID, &t.TokenHash, &t.IssuedAt, &t.ExpiresAt, &t.Revoked, &t.RevokedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, token.ErrNotFound
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return &t, nil
}

func (r *RefreshTokenRepo) Revoke(ctx context.Context, tokenHash string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.execQueryer(ctx).Exec(ctx, qRTRevoke, tokenHash); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

func (r *RefreshTokenRepo) RevokeChain(ctx context.Context, chainID string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.execQueryer(ctx).Exec(ctx, qRTRevokeChain, chainID); err != nil {
		return fmt.Errorf("revoke chain: %w", err)
	}
	return nil
}
