package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/sugar-marketplace/internal/user"
)

type userRepository struct {
	s *Store
}

func (r userRepository) Create(_ context.Context, u *user.User) (uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	email := strings.ToLower(u.Email)
	if _, taken := r.s.emails[email]; taken {
		return uuid.Nil, user.ErrEmailExists
	}
	if u.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return uuid.Nil, fmt.Errorf("memory: failed to generate user id: %w", err)
		}
		u.ID = id
	}

	stored := *u
	stored.Email = email
	r.s.users[stored.ID] = stored
	r.s.emails[email] = stored.ID
	return stored.ID, nil
}

func (r userRepository) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return &u, nil
}

func (r userRepository) GetByEmail(_ context.Context, email string) (*user.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	id, ok := r.s.emails[strings.ToLower(email)]
	if !ok {
		return nil, user.ErrNotFound
	}
	u := r.s.users[id]
	return &u, nil
}
