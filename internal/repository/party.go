package repository

import (
	"context"
	"time"

	"github.com/SwiftAkira/SpeedLink/internal/domain"
)

// PartyRepository 定义队伍及成员关系的持久化接口。
type PartyRepository interface {
	// CreateWithLeader 在一个事务里创建队伍并把创建者写成首个成员。
	// 邀请码撞到唯一索引时返回 ErrDuplicateEntry，调用方负责换码重试。
	CreateWithLeader(ctx context.Context, party *domain.Party, leaderID uint) error

	// FindByID 按 ID 查找队伍（不区分是否有效）；不存在时返回 ErrNotFound。
	FindByID(ctx context.Context, id uint) (*domain.Party, error)

	// FindActiveByCode 按邀请码查找仍然有效（is_active 且未到期）的队伍；
	// 没有匹配时返回 ErrNotFound。
	FindActiveByCode(ctx context.Context, code string) (*domain.Party, error)

	// Deactivate 软停用一个队伍 (is_active=false)。
	Deactivate(ctx context.Context, partyID uint) error

	// FindExpiredActive 返回已过期但仍标记为有效的队伍，供定时清扫用。
	FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]domain.Party, error)

	// AddMember 写入成员关系；(party, user) 已存在时返回 ErrDuplicateEntry。
	AddMember(ctx context.Context, member *domain.PartyMember) error

	// RemoveMember 删除成员关系；关系不存在时返回 ErrNotFound。
	RemoveMember(ctx context.Context, partyID, userID uint) error

	// IsMember 判断用户是否是队伍成员。
	IsMember(ctx context.Context, partyID, userID uint) (bool, error)

	// CountMembers 返回队伍当前的成员数量。
	CountMembers(ctx context.Context, partyID uint) (int64, error)

	// ListMembers 返回队伍全部成员（联表带出昵称和车辆类型）。
	ListMembers(ctx context.Context, partyID uint) ([]domain.MemberInfo, error)

	// SetMemberOnline 更新某个成员的在线快照和 last_seen_at。
	SetMemberOnline(ctx context.Context, partyID, userID uint, online bool) error

	// FindActiveByUser 返回用户参与的所有仍然有效的队伍。
	FindActiveByUser(ctx context.Context, userID uint) ([]domain.Party, error)
}
