package domain

import "time"

// PartyMessage 表示队伍内的一条文字消息（持久化后再广播）。
type PartyMessage struct {
	ID        uint      `gorm:"primaryKey"`
	PartyID   uint      `gorm:"index;not null"`
	UserID    uint      `gorm:"index;not null"`
	Message   string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}
