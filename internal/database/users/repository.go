// Package users provides database operations for staff accounts.
//
// # Usage
//
//	repo := users.NewRepository(db)
//	user, err := repo.GetUserByTokenHash(hash)
//
// Lookups return (nil, nil) when no account matches.
package users

import (
	"errors"

	"gorm.io/gorm"

	"github.com/mrlokans/librapp/internal/entities"
)

// Repository handles all user database operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new users repository.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// CreateUser inserts a fully populated user.
func (r *Repository) CreateUser(user *entities.User) error {
	return r.db.Create(user).Error
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(id uint) (*entities.User, error) {
	return r.first(r.db.Where("id = ?", id))
}

// GetUserByLogin matches either the username or the email address.
func (r *Repository) GetUserByLogin(login string) (*entities.User, error) {
	return r.first(r.db.Where("username = ? OR email = ?", login, login))
}

// GetUserByTokenHash retrieves the owner of a hashed API token.
func (r *Repository) GetUserByTokenHash(hash string) (*entities.User, error) {
	if hash == "" {
		return nil, nil
	}
	return r.first(r.db.Where("token_hash = ?", hash))
}

// Exists reports whether the username or email is already taken.
func (r *Repository) Exists(username, email string) (bool, error) {
	var count int64
	err := r.db.Model(&entities.User{}).
		Where("username = ? OR email = ?", username, email).
		Count(&count).Error
	return count > 0, err
}

// UpdateFields applies a partial update and returns whether the user existed.
func (r *Repository) UpdateFields(id uint, fields map[string]any) (bool, error) {
	result := r.db.Model(&entities.User{}).Where("id = ?", id).Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// CountUsers returns the number of staff accounts.
func (r *Repository) CountUsers() (int64, error) {
	var count int64
	err := r.db.Model(&entities.User{}).Count(&count).Error
	return count, err
}

// ListUsers returns all accounts ordered by username.
func (r *Repository) ListUsers() ([]entities.User, error) {
	var users []entities.User
	err := r.db.Order("username ASC").Find(&users).Error
	return users, err
}

func (r *Repository) first(q *gorm.DB) (*entities.User, error) {
	var user entities.User
	err := q.First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
