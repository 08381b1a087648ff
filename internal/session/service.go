package session

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pbazhenov/lockerdesk/internal/repository"
)

type UserRepo interface {
	Authenticate(ctx context.Context, username, password string) (*repository.User, error)
}

// Service ties the token store to the user table: login mints a session,
// logout destroys it, validate resolves a token to an identity.
type Service struct {
	store  *Store
	users  UserRepo
	logger *zap.Logger
}

func NewService(store *Store, users UserRepo, logger *zap.Logger) *Service {
	return &Service{store: store, users: users, logger: logger}
}

// Login verifies credentials and mints a fresh session. The actor ID is a
// new opaque identity per session; locks acquired under it die with it.
func (s *Service) Login(ctx context.Context, username, password string) (string, Session, error) {
	user, err := s.users.Authenticate(ctx, username, password)
	if err != nil {
		return "", Session{}, err
	}

	token, err := NewToken()
	if err != nil {
		return "", Session{}, err
	}

	sess := Session{
		ActorID:  uuid.NewString(),
		UserName: user.Username,
		IsAdmin:  user.IsAdmin,
	}
	s.store.Create(token, sess)

	s.logger.Info("operator logged in",
		zap.String("user", user.Username),
		zap.Bool("admin", user.IsAdmin))

	sess.Token = token
	return token, sess, nil
}

// Validate resolves a token without touching it. The auth middleware is
// responsible for the rolling-expiry Touch after a successful validation.
func (s *Service) Validate(token string) (Session, bool) {
	return s.store.Get(token)
}

func (s *Service) Touch(token string) bool {
	return s.store.Touch(token)
}

func (s *Service) Logout(token string) {
	s.store.Delete(token)
}
