package gormpersistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/SwiftAkira/SpeedLink/internal/domain"
)

// GormMessageRepository 是 MessageRepository 接口的 GORM 实现
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository 创建 GormMessageRepository 实例
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	if db == nil {
		panic("database connection cannot be nil for GormMessageRepository")
	}
	return &GormMessageRepository{db: db}
}

// Create 实现写入一条队伍消息，GORM 回填 ID 和 CreatedAt
func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.PartyMessage) error {
	if err := r.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("gorm: create party message (party: %d, user: %d): %w", msg.PartyID, msg.UserID, err)
	}
	return nil
}

// ListRecent 实现按时间倒序返回最近的消息
func (r *GormMessageRepository) ListRecent(ctx context.Context, partyID uint, limit int) ([]domain.PartyMessage, error) {
	var messages []domain.PartyMessage
	err := r.db.WithContext(ctx).
		Where("party_id = ?", partyID).
		Order("created_at DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list recent messages of party %d: %w", partyID, err)
	}
	return messages, nil
}
