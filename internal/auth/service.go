package auth

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/mrlokans/librapp/internal/config"
	"github.com/mrlokans/librapp/internal/entities"
)

// Validation patterns
var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,64}$`)
	emailPattern    = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
)

var (
	ErrUserNotFound     = errors.New("user not found")
	ErrUserExists       = errors.New("user already exists")
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrAuthRequired     = errors.New("authentication required")
	ErrInvalidRole      = errors.New("invalid role")
	ErrUsernameRequired = errors.New("username is required")
	ErrEmailRequired    = errors.New("email is required")
	ErrPasswordRequired = errors.New("password is required")
	ErrAccountLocked    = errors.New("account is locked due to too many failed login attempts")
	ErrUsernameInvalid  = errors.New("username must be 3-64 characters, alphanumeric and underscore/hyphen only")
	ErrEmailInvalid     = errors.New("invalid email format")
)

// UserStore is the persistence the service needs. Lookups return
// (nil, nil) when no account matches.
type UserStore interface {
	CreateUser(user *entities.User) error
	GetUserByID(id uint) (*entities.User, error)
	GetUserByLogin(login string) (*entities.User, error)
	GetUserByTokenHash(hash string) (*entities.User, error)
	Exists(username, email string) (bool, error)
	UpdateFields(id uint, fields map[string]any) (bool, error)
	CountUsers() (int64, error)
	ListUsers() ([]entities.User, error)
}

// Service handles authentication and staff account management.
type Service struct {
	store  UserStore
	config config.Auth
	now    func() time.Time
}

// NewService creates a new authentication service.
func NewService(store UserStore, cfg config.Auth) *Service {
	return &Service{
		store:  store,
		config: cfg,
		now:    time.Now,
	}
}

// CreateUser creates a new staff account with password authentication.
func (s *Service) CreateUser(username, email, password string, role entities.UserRole) (*entities.User, error) {
	if username == "" {
		return nil, ErrUsernameRequired
	}
	if email == "" {
		return nil, ErrEmailRequired
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}

	if !usernamePattern.MatchString(username) {
		return nil, ErrUsernameInvalid
	}

	// RFC 5321 limit is 254
	if len(email) > 254 || !emailPattern.MatchString(email) {
		return nil, ErrEmailInvalid
	}

	switch role {
	case entities.UserRoleAdmin, entities.UserRoleLibrarian:
	default:
		return nil, ErrInvalidRole
	}

	exists, err := s.store.Exists(username, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if exists {
		return nil, ErrUserExists
	}

	passwordHash, err := HashPassword(password, s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &entities.User{
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
	}
	if err := s.store.CreateUser(user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Authenticate validates credentials and returns the user.
// Accounts are locked after MaxLoginAttempts consecutive failures.
func (s *Service) Authenticate(login, password string) (*entities.User, error) {
	user, err := s.store.GetUserByLogin(login)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	now := s.now()
	if user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		return nil, ErrAccountLocked
	}

	if err := CheckPassword(password, user.PasswordHash); err != nil {
		s.recordFailedLogin(user)
		return nil, err
	}

	updates := map[string]any{
		"last_login_at":      now,
		"failed_login_count": 0,
		"locked_until":       nil,
	}
	if NeedsRehash(user.PasswordHash, s.config.BcryptCost) {
		if hash, err := HashPassword(password, s.config.BcryptCost); err == nil {
			updates["password_hash"] = hash
			user.PasswordHash = hash
		}
	}
	// Best effort; a failed bookkeeping write does not fail the login.
	_, _ = s.store.UpdateFields(user.ID, updates)
	user.LastLoginAt = &now
	user.FailedLoginCount = 0
	user.LockedUntil = nil
	return user, nil
}

func (s *Service) recordFailedLogin(user *entities.User) {
	user.FailedLoginCount++
	updates := map[string]any{
		"failed_login_count": user.FailedLoginCount,
	}

	threshold := s.config.MaxLoginAttempts
	if threshold <= 0 {
		threshold = 5
	}
	if user.FailedLoginCount >= threshold {
		lockout := s.config.LockoutDuration
		if lockout == 0 {
			lockout = 30 * time.Minute
		}
		lockedUntil := s.now().Add(lockout)
		updates["locked_until"] = lockedUntil
		user.LockedUntil = &lockedUntil
	}

	_, _ = s.store.UpdateFields(user.ID, updates)
}

func (s *Service) GetUserByID(id uint) (*entities.User, error) {
	user, err := s.store.GetUserByID(id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// ValidateToken checks a plaintext token and returns the associated user.
func (s *Service) ValidateToken(token string) (*entities.User, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	user, err := s.store.GetUserByTokenHash(HashToken(token))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidToken
	}

	if s.config.TokenExpiry > 0 && user.TokenCreatedAt != nil {
		if s.now().Sub(*user.TokenCreatedAt) > s.config.TokenExpiry {
			return nil, ErrTokenExpired
		}
	}
	return user, nil
}

// GenerateToken issues a new API token for a user, replacing any previous one.
// Only the hash is stored; the plaintext is returned once.
func (s *Service) GenerateToken(userID uint) (string, error) {
	plaintext, hash, err := GenerateAPIToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	ok, err := s.store.UpdateFields(userID, map[string]any{
		"token_hash":       hash,
		"token_created_at": s.now(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to save token: %w", err)
	}
	if !ok {
		return "", ErrUserNotFound
	}
	return plaintext, nil
}

// RevokeToken removes a user's API token.
func (s *Service) RevokeToken(userID uint) error {
	_, err := s.store.UpdateFields(userID, map[string]any{
		"token_hash":       "",
		"token_created_at": nil,
	})
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	return nil
}

// ChangePassword updates a user's password after checking the old one.
func (s *Service) ChangePassword(userID uint, oldPassword, newPassword string) error {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return err
	}
	if err := CheckPassword(oldPassword, user.PasswordHash); err != nil {
		return err
	}
	newHash, err := HashPassword(newPassword, s.config.BcryptCost)
	if err != nil {
		return err
	}
	_, err = s.store.UpdateFields(userID, map[string]any{"password_hash": newHash})
	return err
}

// HasUsers returns true if any staff account exists.
func (s *Service) HasUsers() (bool, error) {
	count, err := s.store.CountUsers()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ListUsers returns every staff account.
func (s *Service) ListUsers() ([]entities.User, error) {
	return s.store.ListUsers()
}

// IsAuthEnabled returns true if authentication is required.
func (s *Service) IsAuthEnabled() bool {
	return s.config.Mode == config.AuthModeLocal
}

func (s *Service) GetAuthMode() config.AuthMode {
	return s.config.Mode
}
