package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/teamhive/collab-api/internal/models"
)

// UserRepository resolves user identities, primarily for mention lookup.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	// FindByDisplayName performs a case-sensitive exact match.
	FindByDisplayName(ctx context.Context, displayName string) (models.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository constructs a user repository backed by GORM.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Create(user).Error
}

func (r *userRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *userRepository) FindByDisplayName(ctx context.Context, displayName string) (models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "display_name = ?", displayName).Error; err != nil {
		return models.User{}, err
	}
	return user, nil
}
