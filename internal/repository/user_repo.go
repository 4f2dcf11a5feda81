package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/angple/kb-engine/internal/domain"
)

// UserRepository staff user lookup
type UserRepository interface {
	FindByID(ctx context.Context, tenantID, id uint64) (*domain.User, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) FindByID(ctx context.Context, tenantID, id uint64) (*domain.User, error) {
	var user domain.User
	err := conn(ctx, r.db).Where("tenant_id = ? AND id = ?", tenantID, id).First(&user).Error
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return &user, nil
}
