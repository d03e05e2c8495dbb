package auth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Gazel/SecureKasir/internal/shared"
	"github.com/Gazel/SecureKasir/internal/users"
)

// UserLookup is the slice of the user service needed for login.
type UserLookup interface {
	FindByUsername(ctx context.Context, username string) (users.User, error)
	Get(ctx context.Context, id string) (users.User, error)
}

// Session is returned on successful login.
type Session struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      users.User `json:"user"`
}

// Service wraps authentication business rules.
type Service struct {
	users  UserLookup
	tokens *TokenManager
}

// NewService constructs a new Service.
func NewService(users UserLookup, tokens *TokenManager) *Service {
	return &Service{users: users, tokens: tokens}
}

// Login validates username/password credentials and issues a token.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return Session{}, shared.ErrInvalidCredentials
		}
		return Session{}, err
	}
	if !user.Active {
		return Session{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Session{}, shared.ErrInvalidCredentials
	}
	token, expires, err := s.tokens.Issue(shared.Principal{UserID: user.ID, Username: user.Username, Role: user.Role})
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: expires, User: user}, nil
}

// Current reloads the account behind a principal so disabled users lose
// access before their token expires.
func (s *Service) Current(ctx context.Context, p shared.Principal) (users.User, error) {
	user, err := s.users.Get(ctx, p.UserID)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			return users.User{}, shared.ErrUnauthenticated
		}
		return users.User{}, err
	}
	if !user.Active {
		return users.User{}, shared.ErrUnauthenticated
	}
	return user, nil
}
