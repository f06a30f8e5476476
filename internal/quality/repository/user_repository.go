package repository

import (
	"context"
	"errors"

	"github.com/zhigong-tech/conquality/internal/quality/entity"
	"gorm.io/gorm"
)

// UserRepository 用户仓库（身份服务最小契约的落地）
type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID 按ID查找用户
func (r *UserRepository) FindByID(ctx context.Context, id string) (*entity.User, error) {
	var user entity.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// Exists 用户是否存在
func (r *UserRepository) Exists(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.User{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// IsActive 用户是否在职可用
func (r *UserRepository) IsActive(ctx context.Context, id string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.User{}).
		Where("id = ? AND status = 'active'", id).Count(&count).Error
	return count > 0, err
}

// DisplayName 用户显示名；查不到时返回空串
func (r *UserRepository) DisplayName(ctx context.Context, id string) string {
	user, err := r.FindByID(ctx, id)
	if err != nil {
		return ""
	}
	return user.Name
}
