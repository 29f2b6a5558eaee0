package token

import "context"

// Ledger is the durable record of issued refresh tokens.
//
// Consume is the rotation primitive: it marks the record revoked and
// returns it, but only if it was live (present, not revoked, not
// expired) at that instant. Two callers racing on the same hash get
// exactly one winner; the loser sees ErrNotFound. Implementations back
// this with a compare-and-set on the revoked flag.
type Ledger interface {
	Insert(ctx context.Context, t *RefreshToken) error
	Consume(ctx context.Context, tokenHash string) (*RefreshToken, error)
	Find(ctx context.Context, tokenHash string) (*RefreshToken, error)
	Revoke(ctx context.Context, tokenHash string) error
	RevokeChain(ctx context.Context, chainID string) error
}

// Transactor scopes a function to one atomic unit. The rotation service
// uses it to make consume-then-insert a single transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
