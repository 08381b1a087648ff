package memory

import (
	"context"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/pbazhenov/lockerdesk/internal/repository"
)

type UserStore struct {
	mu     sync.RWMutex
	users  map[string]*repository.User
	nextID int64
}

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*repository.User), nextID: 1}
}

func (s *UserStore) CreateUser(ctx context.Context, username, password string, isAdmin bool) error {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[username] = &repository.User{
		ID:       s.nextID,
		Username: username,
		Password: string(hashed),
		IsAdmin:  isAdmin,
	}
	s.nextID++
	return nil
}

func (s *UserStore) Authenticate(ctx context.Context, username, password string) (*repository.User, error) {
	s.mu.RLock()
	user, found := s.users[username]
	s.mu.RUnlock()
	if !found {
		return nil, repository.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, repository.ErrInvalidCredentials
	}
	cp := *user
	return &cp, nil
}
