package memory

import (
	"context"

	"wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UserRepo implements ports.UserRepository.
type UserRepo struct {
	store *Store
}

// NewUserRepo creates a new UserRepo.
func NewUserRepo(store *Store) *UserRepo {
	return &UserRepo{store: store}
}

func (r *UserRepo) Create(ctx context.Context, tx pgx.Tx, user *domain.User) error {
	t, err := txOf(tx)
	if err != nil {
		return err
	}
	if err := t.lock(ctx, "user:subject:"+user.Subject); err != nil {
		return err
	}
	if _, ok := t.userBySubject(user.Subject); ok {
		return duplicate("users_subject_key")
	}
	if err := t.lock(ctx, "user:"+user.ID.String()); err != nil {
		return err
	}
	t.users[user.ID] = *user
	return nil
}

func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	u, ok := r.store.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r *UserRepo) GetBySubject(_ context.Context, subject string) (*domain.User, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	for _, u := range r.store.users {
		if u.Subject == subject {
			return &u, nil
		}
	}
	return nil, nil
}

func (r *UserRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.User, error) {
	t, err := txOf(tx)
	if err != nil {
		return nil, err
	}
	if err := t.lock(ctx, "user:"+id.String()); err != nil {
		return nil, err
	}
	u, ok := t.user(id)
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (t *Tx) user(id uuid.UUID) (domain.User, bool) {
	if u, ok := t.users[id]; ok {
		return u, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	u, ok := t.store.users[id]
	return u, ok
}

func (t *Tx) userBySubject(subject string) (domain.User, bool) {
	for _, u := range t.users {
		if u.Subject == subject {
			return u, true
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for _, u := range t.store.users {
		if u.Subject == subject {
			return u, true
		}
	}
	return domain.User{}, false
}
