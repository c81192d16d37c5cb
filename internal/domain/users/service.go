package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jobboard/server/internal/auth"
	"github.com/jobboard/server/internal/domain/ids"
	"github.com/rs/zerolog"
)

// Service handles account registration and credential checks.
type Service struct {
	repo     Repository
	hashCost int
	timeout  time.Duration
	logger   zerolog.Logger

	// dummyHash is compared against when the email is unknown so that both
	// failure paths pay for one bcrypt comparison.
	dummyHash string
}

// NewService returns a users service. A hashCost bcrypt rejects is replaced
// with auth.DefaultBcryptCost.
func NewService(repo Repository, hashCost int, timeout time.Duration, logger zerolog.Logger) *Service {
	logger = logger.With().Str("component", "users").Logger()

	dummy, err := auth.HashPassword("not-a-real-password", hashCost)
	if err != nil {
		logger.Warn().Err(err).Int("cost", hashCost).Int("fallback_cost", auth.DefaultBcryptCost).
			Msg("invalid bcrypt cost, using default")
		hashCost = auth.DefaultBcryptCost
		dummy, _ = auth.HashPassword("not-a-real-password", hashCost)
	}
	return &Service{
		repo:      repo,
		hashCost:  hashCost,
		timeout:   timeout,
		logger:    logger,
		dummyHash: dummy,
	}
}

// Register creates an account for email with a bcrypt hash of password.
func (s *Service) Register(ctx context.Context, email, password string) (User, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return User{}, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return User{}, ErrEmailTaken
	} else if !errors.Is(err, ErrNotFound) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := auth.HashPassword(password, s.hashCost)
	if err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return User{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		return User{}, err
	}

	id, err := ids.NewULID()
	if err != nil {
		return User{}, fmt.Errorf("generate user id: %w", err)
	}

	user := User{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if errors.Is(err, ErrEmailTaken) {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("create user: %w", err)
	}

	s.logger.Info().Str("user_id", user.ID).Msg("user registered")
	return user, nil
}

// Authenticate returns the user when password matches the stored hash.
// Unknown emails and wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, email, password string) (User, error) {
	email = NormalizeEmail(email)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			auth.VerifyPassword(password, s.dummyHash)
			return User{}, ErrInvalidCredentials
		}
		return User{}, fmt.Errorf("lookup user: %w", err)
	}

	if !auth.VerifyPassword(password, user.PasswordHash) {
		return User{}, ErrInvalidCredentials
	}
	return *user, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}
