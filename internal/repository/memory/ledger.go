// Package memory holds mutex-guarded implementations of the storage
// ports. They mirror the SQL semantics exactly (including the
// single-winner consume) and back the unit tests and local development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/trackhire/trackhire/internal/domain/token"
)

var _ token.Ledger = (*Ledger)(nil)

type Ledger struct {
	mu      sync.Mutex
	nextID  int64
	records map[string]*token.RefreshToken // keyed by token hash
	now     func() time.Time
}

func NewLedger() *Ledger {
	return &Ledger{
		nextID:  1,
		records: make(map[string]*token.RefreshToken),
		now:     time.Now,
	}
}

// WithNow overrides the clock, for expiry tests.
func (l *Ledger) WithNow(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) Insert(_ context.Context, t *token.RefreshToken) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	t.ID = l.nextID
	l.nextID++
	cp := *t
	l.records[t.TokenHash] = &cp
	return nil
}

func (l *Ledger) Consume(_ context.Context, tokenHash string) (*token.RefreshToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[tokenHash]
	if !ok || rec.Revoked || !rec.ExpiresAt.After(l.now()) {
		return nil, token.ErrNotFound
	}
	now := l.now()
	rec.Revoked = true
	rec.RevokedAt = &now
	cp := *rec
	return &cp, nil
}

func (l *Ledger) Find(_ context.Context, tokenHash string) (*token.RefreshToken, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.records[tokenHash]
	if !ok {
		return nil, token.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (l *Ledger) Revoke(_ context.Context, tokenHash string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if rec, ok := l.records[tokenHash]; ok && !rec.Revoked {
		now := l.now()
		rec.Revoked = true
		rec.RevokedAt = &now
	}
	return nil
}

func (l *Ledger) RevokeChain(_ context.Context, chainID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, rec := range l.records {
		if rec.ChainID == chainID && !rec.Revoked {
			now := l.now()
			rec.Revoked = true
			rec.RevokedAt = &now
		}
	}
	return nil
}

// ActiveCount reports live records, for tests.
func (l *Ledger) ActiveCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, rec := range l.records {
		if !rec.Revoked && rec.ExpiresAt.After(l.now()) {
			n++
		}
	}
	return n
}

// NopTransactor satisfies the transactor port where the backing store is
// already serialized under one lock.
type NopTransactor struct{}

func (NopTransactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
