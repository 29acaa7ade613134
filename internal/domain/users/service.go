package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Togather-Foundation/places/internal/domain/ids"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
)

// CreateParams contains parameters for creating a new user
type CreateParams struct {
	Name  string `validate:"required,max=200"`
	Email string `validate:"required,email,max=320"`
}

// Service handles user management operations
type Service struct {
	repo      Repository
	validator *validator.Validate
	logger    zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		validator: validator.New(),
		logger:    logger.With().Str("component", "users").Logger(),
	}
}

// Create registers a user with an empty place set.
func (s *Service) Create(ctx context.Context, params CreateParams) (*User, error) {
	params.Name = strings.TrimSpace(params.Name)
	params.Email = strings.ToLower(strings.TrimSpace(params.Email))
	if err := s.validator.Struct(params); err != nil {
		return nil, fmt.Errorf("invalid user: %w", err)
	}

	user := User{
		ID:        ids.New(),
		Name:      params.Name,
		Email:     params.Email,
		PlaceIDs:  []string{},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info().Str("user_id", user.ID).Str("email", user.Email).Msg("user created")
	return &user, nil
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	user, err := s.repo.GetUser(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *Service) List(ctx context.Context) ([]User, error) {
	list, err := s.repo.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	if list == nil {
		list = []User{}
	}
	return list, nil
}
