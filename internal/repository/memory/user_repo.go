package memory

import (
	"context"
	"sync"

	"github.com/trackhire/trackhire/internal/domain/user"
)

var _ user.Repo = (*UserRepo)(nil)

type UserRepo struct {
	mu      sync.RWMutex
	byID    map[int64]*user.User
	byEmail map[string]*user.User
}

func NewUserRepo(users ...*user.User) *UserRepo {
	r := &UserRepo{
		byID:    make(map[int64]*user.User),
		byEmail: make(map[string]*user.User),
	}
	for _, u := range users {
		r.Add(u)
	}
	return r
}

func (r *UserRepo) Add(u *user.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	r.byID[u.ID] = &cp
	r.byEmail[u.Email] = &cp
}

func (r *UserRepo) GetByID(_ context.Context, id int64) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byEmail[email]
	if !ok {
		return nil, user.ErrNotFound
	}
	cp := *u
	return &cp, nil
}
