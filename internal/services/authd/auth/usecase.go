package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/trackhire/trackhire/internal/domain/token"
	"github.com/trackhire/trackhire/internal/domain/user"
	"github.com/trackhire/trackhire/internal/obs"
	signer "github.com/trackhire/trackhire/internal/token"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrInvalidRefreshToken deliberately covers not-found, expired,
	// revoked, and race-lost alike.
	ErrInvalidRefreshToken = token.ErrInvalidRefreshToken
)

type Config struct {
	RefreshTTL time.Duration
	Now        func() time.Time
}

// Usecase is the rotation service: it owns login, rotation, and logout
// against the ledger, and exposes access-token validation to everything
// outside the credential core.
type Usecase struct {
	users  user.Repo
	ledger token.Ledger
	tx     token.Transactor
	signer *signer.Signer
	log    *zap.Logger
	cfg    Config
}

func NewUsecase(users user.Repo, ledger token.Ledger, tx token.Transactor, s *signer.Signer, log *zap.Logger, cfg Config) *Usecase {
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Usecase{users: users, ledger: ledger, tx: tx, signer: s, log: log, cfg: cfg}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Login checks credentials and mints an access token. A refresh token is
// minted and recorded only when the caller opted into a persistent
// session; otherwise the session simply ends when the access token does.
func (u *Usecase) Login(ctx context.Context, email, password string, persistSession bool) (*token.Pair, error) {
	rec, err := u.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		obs.Logins.WithLabelValues("rejected").Inc()
		return nil, ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(rec.PasswordHash), []byte(password)) != nil {
		obs.Logins.WithLabelValues("rejected").Inc()
		return nil, ErrInvalidCredentials
	}

	now := u.cfg.Now()
	access, expiresAt, err := u.signer.MintAccess(rec, now)
	if err != nil {
		obs.Logins.WithLabelValues("error").Inc()
		return nil, err
	}

	pair := &token.Pair{AccessToken: access, AccessExpiresAt: expiresAt}
	if persistSession {
		// A login starts a new chain; rotations will carry its id forward.
		refresh, err := u.recordRefresh(ctx, rec.ID, uuid.NewString(), now)
		if err != nil {
			obs.Logins.WithLabelValues("error").Inc()
			return nil, err
		}
		pair.RefreshValue = refresh
	}

	obs.Logins.WithLabelValues("ok").Inc()
	u.log.Info("login", zap.Int64("user_id", rec.ID), zap.Bool("persist", persistSession))
	return pair, nil
}

// Refresh rotates a presented refresh token: consume exactly once, then
// mint and record the successor. Consume and insert share a transaction,
// so no interleaving can observe a consumed token without its successor.
func (u *Usecase) Refresh(ctx context.Context, presented string) (*token.Pair, error) {
	if presented == "" {
		return nil, ErrInvalidRefreshToken
	}

	start := time.Now()
	hash := signer.HashValue(presented)

	var pair *token.Pair
	err := u.tx.WithTx(ctx, func(ctx context.Context) error {
		rec, err := u.ledger.Consume(ctx, hash)
		if err != nil {
			if errors.Is(err, token.ErrNotFound) {
				return ErrInvalidRefreshToken
			}
			return fmt.Errorf("consume: %w", err)
		}

		owner, err := u.users.GetByID(ctx, rec.UserID)
		if err != nil {
			return ErrInvalidRefreshToken
		}

		now := u.cfg.Now()
		access, expiresAt, err := u.signer.MintAccess(owner, now)
		if err != nil {
			return err
		}
		refresh, err := u.recordRefresh(ctx, rec.UserID, rec.ChainID, now)
		if err != nil {
			return err
		}
		pair = &token.Pair{AccessToken: access, AccessExpiresAt: expiresAt, RefreshValue: refresh}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			// Outside the rolled-back transaction on purpose: a chain
			// revocation triggered by reuse has to stick.
			u.handleConsumeMiss(ctx, hash)
			obs.Rotations.WithLabelValues("rejected").Inc()
		} else {
			obs.Rotations.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	obs.Rotations.WithLabelValues("ok").Inc()
	obs.RotationDuration.Observe(time.Since(start).Seconds())
	return pair, nil
}

// reuseGraceWindow separates theft from a lost race. A duplicate
// submission that lost a concurrent rotation arrives within moments of
// the winner; a replayed stolen value typically arrives much later.
// Inside the window a miss is just a race, not a signal.
const reuseGraceWindow = 15 * time.Second

// handleConsumeMiss decides whether a failed consume was a replay of an
// already-rotated token. Reuse of a revoked, unexpired value outside the
// grace window means somebody other than the legitimate holder has the
// old value, so the whole chain is put down. The caller still sees the
// generic rejection either way.
func (u *Usecase) handleConsumeMiss(ctx context.Context, hash string) {
	rec, err := u.ledger.Find(ctx, hash)
	if err != nil || !rec.Revoked || !rec.ExpiresAt.After(u.cfg.Now()) {
		return
	}
	if rec.RevokedAt == nil || u.cfg.Now().Sub(*rec.RevokedAt) < reuseGraceWindow {
		return
	}

	obs.ReuseDetected.Inc()
	u.log.Warn("refresh token reuse detected, revoking chain",
		zap.Int64("user_id", rec.UserID),
		zap.String("chain_id", rec.ChainID))
	if err := u.ledger.RevokeChain(ctx, rec.ChainID); err != nil {
		u.log.Error("revoke chain", zap.Error(err))
	}
}

// Logout revokes the presented value. Idempotent: unknown and
// already-revoked tokens are not errors.
func (u *Usecase) Logout(ctx context.Context, presented string) error {
	obs.Logouts.Inc()
	if presented == "" {
		return nil
	}
	return u.ledger.Revoke(ctx, signer.HashValue(presented))
}

// Authenticate validates an access token and returns its claims. This is
// the one interface the credential core exposes to the rest of the
// application; no database is touched.
func (u *Usecase) Authenticate(tokenStr string) (*signer.AccessClaims, error) {
	return u.signer.Validate(tokenStr)
}

func (u *Usecase) recordRefresh(ctx context.Context, userID int64, chainID string, now time.Time) (string, error) {
	raw, err := signer.NewRefreshValue()
	if err != nil {
		return "", err
	}
	rec := &token.RefreshToken{
		ChainID:   chainID,
		UserID:    userID,
		TokenHash: signer.HashValue(raw),
		IssuedAt:  now,
		ExpiresAt: now.Add(u.cfg.RefreshTTL),
	}
	if err := u.ledger.Insert(ctx, rec); err != nil {
		return "", fmt.Errorf("record refresh token: %w", err)
	}
	return raw, nil
}
