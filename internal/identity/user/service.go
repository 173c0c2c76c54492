package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/centledger/centledger/pkg/logger"
)

// RegisterInput carries the fields accepted at registration
type RegisterInput struct {
	Email     string
	FirstName string
	LastName  string
	Password  string
}

// UpdateInput carries the optional fields of a self-update. Nil means
// "leave unchanged".
type UpdateInput struct {
	Email     *string
	FirstName *string
	LastName  *string
	Password  *string
}

// Service handles user business logic
type Service struct {
	repo Repository
	log  *logger.Logger
}

// NewService creates a new user service
func NewService(repo Repository, log *logger.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log,
	}
}

// Register creates a new user from validated input
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	now := time.Now()
	u := &User{
		ID:        uuid.New(),
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := u.SetPassword(in.Password); err != nil {
		return nil, err
	}

	if err := u.Validate(); err != nil {
		return nil, err
	}

	// The unique index on email is the authority; a pre-check would race
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, ErrEmailConflict) {
			return nil, ErrEmailConflict
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return u, nil
}

// Login authenticates a user with email and password
func (s *Service) Login(ctx context.Context, email, password string) (*User, error) {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Do not reveal whether the email exists
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if err := u.CheckPassword(password); err != nil {
		return nil, err
	}

	// Best-effort; a failed timestamp update must not fail the login
	u.UpdateLastLogin()
	if err := s.repo.Update(ctx, u); err != nil {
		s.log.WithError(err).Warn("failed to update last login")
	}

	return u, nil
}

// GetByID retrieves a user by ID
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// List retrieves all users
func (s *Service) List(ctx context.Context) ([]*User, error) {
	return s.repo.List(ctx)
}

// Update applies a self-update. The principal must match the target.
func (s *Service) Update(ctx context.Context, principal, target uuid.UUID, in UpdateInput) (*User, error) {
	if principal != target {
		return nil, ErrForbidden
	}

	u, err := s.repo.GetByID(ctx, target)
	if err != nil {
		return nil, err
	}

	if in.Email != nil {
		u.Email = *in.Email
	}
	if in.FirstName != nil {
		u.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		u.LastName = *in.LastName
	}
	if in.Password != nil {
		if err := u.SetPassword(*in.Password); err != nil {
			return nil, err
		}
	}

	u.UpdatedAt = time.Now()

	if err := u.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.Update(ctx, u); err != nil {
		if errors.Is(err, ErrEmailConflict) {
			return nil, ErrEmailConflict
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	return u, nil
}

// Delete removes a user. The principal must match the target.
func (s *Service) Delete(ctx context.Context, principal, target uuid.UUID) error {
	if principal != target {
		return ErrForbidden
	}

	return s.repo.Delete(ctx, target)
}
