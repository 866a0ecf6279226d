package repository

import (
	"context"

	"github.com/SwiftAkira/SpeedLink/internal/domain"
)

// MessageRepository 定义队伍消息的持久化接口。
// 消息先落库再广播，断线的成员之后还能通过历史接口补看。
type MessageRepository interface {
	// Create 写入一条消息，写入后 msg.ID 和 msg.CreatedAt 被回填。
	Create(ctx context.Context, msg *domain.PartyMessage) error
	// ListRecent 按时间倒序返回队伍最近的 limit 条消息。
	ListRecent(ctx context.Context, partyID uint, limit int) ([]domain.PartyMessage, error)
}
