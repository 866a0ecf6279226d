package repository

import (
	"context"

	"github.com/SwiftAkira/SpeedLink/internal/domain"
)

// UserRepository 定义用户数据的持久化接口。
type UserRepository interface {
	// Create 创建新用户；邮箱冲突时返回 ErrDuplicateEntry。
	Create(ctx context.Context, user *domain.User) error
	// FindByEmail 按邮箱查找用户；不存在时返回 ErrNotFound。
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	// FindByID 按 ID 查找用户；不存在时返回 ErrNotFound。
	FindByID(ctx context.Context, id uint) (*domain.User, error)
}
