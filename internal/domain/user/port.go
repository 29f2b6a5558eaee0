package user

import "context"

// Repo is read-only here: account creation lives with the registration
// collaborator, outside the credential core.
type Repo interface {
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}
