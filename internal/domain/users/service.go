package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/solidus-pim/server/internal/audit"
	"github.com/solidus-pim/server/internal/domain/ids"
)

var (
	ErrNotFound            = errors.New("user not found")
	ErrEmailTaken          = errors.New("email is already taken")
	ErrUsernameTaken       = errors.New("username is already taken")
	ErrCustomerNumberTaken = errors.New("customer number is already taken")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrInvalidInput        = errors.New("invalid input")
	ErrInactive            = errors.New("account is inactive")
)

// BcryptCost is the cost factor for bcrypt password hashing.
const BcryptCost = 12

// Repository is the persistence contract for accounts.
type Repository interface {
	GetByULID(ctx context.Context, ulid string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByCustomerNumber(ctx context.Context, number string) (*User, error)
	Create(ctx context.Context, user User) error
	Update(ctx context.Context, user User) error
	SetActive(ctx context.Context, ulid string, active bool) error
	UpdateLastLogin(ctx context.Context, ulid string, at time.Time) error
	List(ctx context.Context, filters Filters) ([]User, int64, error)
}

// TokenIssuer mints session tokens after a successful login.
type TokenIssuer interface {
	Generate(subject, username, role string) (string, error)
}

// WelcomeSender notifies a new account holder. Failures are non-fatal.
type WelcomeSender interface {
	SendAccountCreated(to, username string) error
}

type Service struct {
	repo     Repository
	tokens   TokenIssuer
	email    WelcomeSender
	recorder *audit.Recorder
	validate *validator.Validate
	logger   zerolog.Logger
}

func NewService(repo Repository, tokens TokenIssuer, email WelcomeSender, recorder *audit.Recorder, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		tokens:   tokens,
		email:    email,
		recorder: recorder,
		validate: validator.New(),
		logger:   logger.With().Str("component", "users").Logger(),
	}
}

// CreateParams carries validated input for account creation.
type CreateParams struct {
	Username       string `validate:"required,min=3,max=64"`
	Email          string `validate:"required,email"`
	Password       string `validate:"required,min=10,max=128"`
	Role           string `validate:"required"`
	CustomerNumber string `validate:"omitempty,max=32"`
}

// Create registers an account. Customer accounts carry a unique customer
// number used by feeds and pricing.
func (s *Service) Create(ctx context.Context, params CreateParams, actor string) (*User, error) {
	if err := s.validate.Struct(params); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}
	if !ValidRole(params.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, params.Role)
	}
	if Role(params.Role) == RoleCustomer && params.CustomerNumber == "" {
		return nil, fmt.Errorf("%w: customer accounts require a customer_number", ErrInvalidInput)
	}

	username := strings.ToLower(strings.TrimSpace(params.Username))
	emailAddr := strings.ToLower(strings.TrimSpace(params.Email))

	if existing, err := s.repo.GetByUsername(ctx, username); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check username: %w", err)
	} else if existing != nil {
		return nil, ErrUsernameTaken
	}
	if existing, err := s.repo.GetByEmail(ctx, emailAddr); err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	} else if existing != nil {
		return nil, ErrEmailTaken
	}
	if params.CustomerNumber != "" {
		if existing, err := s.repo.GetByCustomerNumber(ctx, params.CustomerNumber); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("check customer number: %w", err)
		} else if existing != nil {
			return nil, ErrCustomerNumberTaken
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(params.Password), BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	ulid, err := ids.NewULID()
	if err != nil {
		return nil, fmt.Errorf("generate ulid: %w", err)
	}

	now := time.Now().UTC()
	user := User{
		ID:             ulid,
		Username:       username,
		Email:          emailAddr,
		Role:           Role(params.Role),
		CustomerNumber: params.CustomerNumber,
		PasswordHash:   string(hash),
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	if s.email != nil {
		if err := s.email.SendAccountCreated(user.Email, user.Username); err != nil {
			s.logger.Warn().Err(err).Str("email", user.Email).Msg("failed to send account created email")
		}
	}

	s.recorder.RecordSuccess(ctx, audit.Entry{
		Action:     "user.created",
		Actor:      actor,
		EntityType: "user",
		EntityID:   user.ID,
		Changes:    map[string]any{"username": user.Username, "email": user.Email, "role": string(user.Role)},
	})
	return &user, nil
}

// Authenticate verifies credentials and returns the user plus a signed
// session token. Failed attempts are audit logged.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, string, error) {
	username = strings.ToLower(strings.TrimSpace(username))

	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Burn a comparison so missing users cost the same as bad passwords.
			_ = bcrypt.CompareHashAndPassword([]byte("$2a$12$000000000000000000000uGZLKJxJPihom8E3nL77UOkm1vuonPa"), []byte(password))
			s.recordLoginFailure(ctx, username, "unknown user")
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("get user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.recordLoginFailure(ctx, username, "bad password")
		return nil, "", ErrInvalidCredentials
	}

	if !user.IsActive {
		s.recordLoginFailure(ctx, username, "inactive account")
		return nil, "", ErrInactive
	}

	token, err := s.tokens.Generate(user.ID, user.Username, string(user.Role))
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}

	now := time.Now().UTC()
	if err := s.repo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record last login")
	}
	user.LastLoginAt = &now

	s.recorder.RecordSuccess(ctx, audit.Entry{
		Action:     "auth.login",
		Actor:      user.Username,
		EntityType: "user",
		EntityID:   user.ID,
	})
	return user, token, nil
}

func (s *Service) recordLoginFailure(ctx context.Context, username, reason string) {
	s.recorder.RecordFailure(ctx, audit.Entry{
		Action:     "auth.login",
		Actor:      username,
		EntityType: "user",
		Changes:    map[string]any{"reason": reason},
	})
}

// UpdateParams carries mutable account fields.
type UpdateParams struct {
	Email          string `validate:"required,email"`
	Role           string `validate:"required"`
	CustomerNumber string `validate:"omitempty,max=32"`
}

func (s *Service) Update(ctx context.Context, ulid string, params UpdateParams, actor string) (*User, error) {
	if err := s.validate.Struct(params); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInput, err.Error())
	}
	if !ValidRole(params.Role) {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, params.Role)
	}

	user, err := s.repo.GetByULID(ctx, ulid)
	if err != nil {
		return nil, err
	}

	emailAddr := strings.ToLower(strings.TrimSpace(params.Email))
	if emailAddr != user.Email {
		if existing, err := s.repo.GetByEmail(ctx, emailAddr); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("check email: %w", err)
		} else if existing != nil && existing.ID != user.ID {
			return nil, ErrEmailTaken
		}
	}
	if params.CustomerNumber != "" && params.CustomerNumber != user.CustomerNumber {
		if existing, err := s.repo.GetByCustomerNumber(ctx, params.CustomerNumber); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("check customer number: %w", err)
		} else if existing != nil && existing.ID != user.ID {
			return nil, ErrCustomerNumberTaken
		}
	}

	user.Email = emailAddr
	user.Role = Role(params.Role)
	user.CustomerNumber = params.CustomerNumber
	user.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, *user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}

	s.recorder.RecordSuccess(ctx, audit.Entry{
		Action:     "user.updated",
		Actor:      actor,
		EntityType: "user",
		EntityID:   user.ID,
		Changes:    map[string]any{"email": user.Email, "role": string(user.Role)},
	})
	return user, nil
}

// ChangePassword sets a new password after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, ulid, current, next string) error {
	if len(next) < 10 {
		return fmt.Errorf("%w: password must be at least 10 characters", ErrInvalidInput)
	}

	user, err := s.repo.GetByULID(ctx, ulid)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
		return ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user.PasswordHash = string(hash)
	user.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, *user); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.recorder.RecordSuccess(ctx, audit.Entry{
		Action:     "user.password_changed",
		Actor:      user.Username,
		EntityType: "user",
		EntityID:   user.ID,
	})
	return nil
}

func (s *Service) SetActive(ctx context.Context, ulid string, active bool, actor string) error {
	user, err := s.repo.GetByULID(ctx, ulid)
	if err != nil {
		return err
	}

	if err := s.repo.SetActive(ctx, ulid, active); err != nil {
		return fmt.Errorf("set active: %w", err)
	}

	action := "user.deactivated"
	if active {
		action = "user.activated"
	}
	s.recorder.RecordSuccess(ctx, audit.Entry{
		Action:     action,
		Actor:      actor,
		EntityType: "user",
		EntityID:   ulid,
		Changes:    map[string]any{"username": user.Username},
	})
	return nil
}

func (s *Service) Get(ctx context.Context, ulid string) (*User, error) {
	return s.repo.GetByULID(ctx, ulid)
}

func (s *Service) List(ctx context.Context, filters Filters) ([]User, int64, error) {
	if filters.Limit <= 0 {
		filters.Limit = 50
	}
	return s.repo.List(ctx, filters)
}

// Bootstrap creates the admin account from environment configuration if it
// does not exist yet. Used by setup and seed.
func (s *Service) Bootstrap(ctx context.Context, username, password, emailAddr string) (bool, error) {
	if username == "" || password == "" {
		return false, nil
	}

	existing, err := s.repo.GetByUsername(ctx, strings.ToLower(username))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return false, fmt.Errorf("check admin: %w", err)
	}
	if existing != nil {
		return false, nil
	}

	if emailAddr == "" {
		emailAddr = username + "@solidus.local"
	}
	_, err = s.Create(ctx, CreateParams{
		Username: username,
		Email:    emailAddr,
		Password: password,
		Role:     string(RoleAdmin),
	}, "system")
	if err != nil {
		return false, fmt.Errorf("create admin: %w", err)
	}
	return true, nil
}
