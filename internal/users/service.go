package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Gazel/SecureKasir/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	CountUsers(ctx context.Context) (int, error)
	ListUsers(ctx context.Context) ([]User, error)
	GetUser(ctx context.Context, id string) (User, error)
	FindByUsername(ctx context.Context, username string) (User, error)
	CreateUser(ctx context.Context, u User) error
	UpdateUser(ctx context.Context, u User) error
}

// Service handles user business logic.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	cost   int
	clock  func() time.Time
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, cost: bcrypt.DefaultCost, clock: func() time.Time { return time.Now().UTC() }}
}

// WithHashCost overrides the bcrypt cost, used by tests to stay fast.
func (s *Service) WithHashCost(cost int) *Service {
	s.cost = cost
	return s
}

// EnsureSeed creates the initial accounts when the user table is empty.
// It returns the number of accounts created.
func (s *Service) EnsureSeed(ctx context.Context, cfg SeedConfig) (int, error) {
	count, err := s.repo.CountUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("users: count: %w", err)
	}
	if count > 0 {
		return 0, nil
	}
	if cfg.AdminUsername == "" || cfg.AdminPassword == "" {
		return 0, errors.New("users: seed admin credentials missing")
	}
	seeds := []CreateRequest{{
		Username: cfg.AdminUsername,
		Password: cfg.AdminPassword,
		FullName: "Administrator",
		Role:     shared.RoleAdmin,
	}}
	if cfg.CashierUsername != "" && cfg.CashierPassword != "" {
		seeds = append(seeds, CreateRequest{
			Username: cfg.CashierUsername,
			Password: cfg.CashierPassword,
			FullName: "Kasir",
			Role:     shared.RoleCashier,
		})
	}
	created := 0
	for _, req := range seeds {
		if _, err := s.Create(ctx, req); err != nil {
			return created, fmt.Errorf("users: seed %s: %w", req.Username, err)
		}
		s.logger.Info("seeded user", slog.String("username", req.Username), slog.String("role", req.Role))
		created++
	}
	return created, nil
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.ListUsers(ctx)
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// FindByUsername looks a user up for login.
func (s *Service) FindByUsername(ctx context.Context, username string) (User, error) {
	return s.repo.FindByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
}

// Create registers a new account.
func (s *Service) Create(ctx context.Context, req CreateRequest) (User, error) {
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.FullName = strings.TrimSpace(req.FullName)
	if err := shared.ValidateStruct(req); err != nil {
		return User{}, err
	}
	if _, err := s.repo.FindByUsername(ctx, req.Username); err == nil {
		return User{}, ErrUsernameTaken
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, fmt.Errorf("users: lookup username: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}
	now := s.clock()
	u := User{
		ID:           uuid.NewString(),
		Username:     req.Username,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		Role:         req.Role,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateUser(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (User, error) {
	if err := shared.ValidateStruct(req); err != nil {
		return User{}, err
	}
	u, err := s.repo.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	losesAdmin := u.Role == shared.RoleAdmin && u.Active &&
		((req.Role != nil && *req.Role != shared.RoleAdmin) || (req.Active != nil && !*req.Active))
	if losesAdmin {
		if err := s.ensureAnotherAdmin(ctx, u.ID); err != nil {
			return User{}, err
		}
	}
	if req.FullName != nil {
		u.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Role != nil {
		u.Role = *req.Role
	}
	if req.Active != nil {
		u.Active = *req.Active
	}
	if req.Password != nil {
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), s.cost)
		if err != nil {
			return User{}, fmt.Errorf("users: hash password: %w", err)
		}
		u.PasswordHash = string(hash)
	}
	u.UpdatedAt = s.clock()
	if err := s.repo.UpdateUser(ctx, u); err != nil {
		return User{}, err
	}
	return u, nil
}

// Disable deactivates an account; users are never hard deleted.
func (s *Service) Disable(ctx context.Context, id string) (User, error) {
	inactive := false
	return s.Update(ctx, id, UpdateRequest{Active: &inactive})
}

func (s *Service) ensureAnotherAdmin(ctx context.Context, excludeID string) error {
	all, err := s.repo.ListUsers(ctx)
	if err != nil {
		return fmt.Errorf("users: list: %w", err)
	}
	for _, other := range all {
		if other.ID != excludeID && other.Active && other.Role == shared.RoleAdmin {
			return nil
		}
	}
	return ErrLastAdmin
}
