package user

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

var ErrInvalidCredentials = errors.New("invalid email or password")

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Register stores a new user with a bcrypt hash of the password.
func (s *Service) Register(ctx context.Context, name, email, password string, role Role) (*User, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, errors.New("email and password are required")
	}
	if role == "" {
		role = RoleCustomer
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := &User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: hash,
		Role:         role,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// Authenticate returns the user owning the credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !CheckPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}
