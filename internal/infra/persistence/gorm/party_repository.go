package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/SwiftAkira/SpeedLink/internal/domain"
	"github.com/SwiftAkira/SpeedLink/internal/repository"
)

// GormPartyRepository 是 PartyRepository 接口的 GORM 实现
type GormPartyRepository struct {
	db *gorm.DB
}

// NewGormPartyRepository 创建 GormPartyRepository 实例
func NewGormPartyRepository(db *gorm.DB) *GormPartyRepository {
	if db == nil {
		panic("database connection cannot be nil for GormPartyRepository")
	}
	return &GormPartyRepository{db: db}
}

// CreateWithLeader 在一个事务里创建队伍并写入队长的成员关系。
// 两条 INSERT 要么都成功要么都回滚，不会出现没有成员的队伍。
// 邀请码撞唯一索引时返回 ErrDuplicateEntry，由服务层换码重试。
func (r *GormPartyRepository) CreateWithLeader(ctx context.Context, party *domain.Party, leaderID uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(party).Error; err != nil {
			return err
		}
		member := domain.PartyMember{
			PartyID:    party.ID,
			UserID:     leaderID,
			LastSeenAt: time.Now().UTC(),
		}
		return tx.Create(&member).Error
	})
	if err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: create party (code: %s): %w", party.Code, err)
	}
	return nil
}

// FindByID 实现根据队伍 ID 查找队伍
func (r *GormPartyRepository) FindByID(ctx context.Context, id uint) (*domain.Party, error) {
	var party domain.Party
	err := r.db.WithContext(ctx).First(&party, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("gorm: find party by id %d: %w", id, err)
	}
	return &party, nil
}

// FindActiveByCode 实现根据邀请码查找仍然有效的队伍。
// 过期但还没被清扫的队伍在这里就被过滤掉了（惰性过期）。
func (r *GormPartyRepository) FindActiveByCode(ctx context.Context, code string) (*domain.Party, error) {
	var party domain.Party
	err := r.db.WithContext(ctx).
		Where("code = ? AND is_active = ? AND expires_at > ?", code, true, time.Now().UTC()).
		First(&party).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("gorm: find active party by code '%s': %w", code, err)
	}
	return &party, nil
}

// Deactivate 实现软停用队伍 (is_active=false)，记录保留，邀请码不回收
func (r *GormPartyRepository) Deactivate(ctx context.Context, partyID uint) error {
	err := r.db.WithContext(ctx).Model(&domain.Party{}).
		Where("id = ?", partyID).
		Update("is_active", false).Error
	if err != nil {
		return fmt.Errorf("gorm: deactivate party %d: %w", partyID, err)
	}
	return nil
}

// FindExpiredActive 实现查找已过期但仍标记为有效的队伍，供清扫任务使用
func (r *GormPartyRepository) FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]domain.Party, error) {
	var parties []domain.Party
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND expires_at <= ?", true, now).
		Limit(limit).
		Find(&parties).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find expired active parties: %w", err)
	}
	return parties, nil
}

// AddMember 实现写入成员关系；(party_id, user_id) 冲突映射为 ErrDuplicateEntry
func (r *GormPartyRepository) AddMember(ctx context.Context, member *domain.PartyMember) error {
	err := r.db.WithContext(ctx).Create(member).Error
	if err != nil {
		if isDuplicateEntryError(err) {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: add member (party: %d, user: %d): %w", member.PartyID, member.UserID, err)
	}
	return nil
}

// RemoveMember 实现删除成员关系
func (r *GormPartyRepository) RemoveMember(ctx context.Context, partyID, userID uint) error {
	result := r.db.WithContext(ctx).
		Where("party_id = ? AND user_id = ?", partyID, userID).
		Delete(&domain.PartyMember{})
	if result.Error != nil {
		return fmt.Errorf("gorm: remove member (party: %d, user: %d): %w", partyID, userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// IsMember 实现成员资格检查
func (r *GormPartyRepository) IsMember(ctx context.Context, partyID, userID uint) (bool, error) {
	var count int64
	// 使用 Count() 优化查询，只查询数量
	err := r.db.WithContext(ctx).Model(&domain.PartyMember{}).
		Where("party_id = ? AND user_id = ?", partyID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: count membership (party: %d, user: %d): %w", partyID, userID, err)
	}
	return count > 0, nil
}

// CountMembers 实现统计队伍成员数量（用于容量检查）
func (r *GormPartyRepository) CountMembers(ctx context.Context, partyID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.PartyMember{}).
		Where("party_id = ?", partyID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("gorm: count members of party %d: %w", partyID, err)
	}
	return count, nil
}

// ListMembers 实现联表查询队伍全部成员及其用户信息
func (r *GormPartyRepository) ListMembers(ctx context.Context, partyID uint) ([]domain.MemberInfo, error) {
	var members []domain.MemberInfo
	err := r.db.WithContext(ctx).Model(&domain.PartyMember{}).
		Select("party_members.user_id, users.display_name, users.vehicle_type, party_members.is_online, party_members.joined_at, party_members.last_seen_at").
		Joins("JOIN users ON users.id = party_members.user_id").
		Where("party_members.party_id = ?", partyID).
		Order("party_members.joined_at ASC").
		Scan(&members).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list members of party %d: %w", partyID, err)
	}
	return members, nil
}

// SetMemberOnline 实现更新成员的在线快照和 last_seen_at
func (r *GormPartyRepository) SetMemberOnline(ctx context.Context, partyID, userID uint, online bool) error {
	err := r.db.WithContext(ctx).Model(&domain.PartyMember{}).
		Where("party_id = ? AND user_id = ?", partyID, userID).
		Updates(map[string]interface{}{
			"is_online":    online,
			"last_seen_at": time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("gorm: set member online (party: %d, user: %d): %w", partyID, userID, err)
	}
	return nil
}

// FindActiveByUser 实现查询用户参与的所有仍然有效的队伍
func (r *GormPartyRepository) FindActiveByUser(ctx context.Context, userID uint) ([]domain.Party, error) {
	var parties []domain.Party
	err := r.db.WithContext(ctx).Model(&domain.Party{}).
		Joins("JOIN party_members ON party_members.party_id = parties.id").
		Where("party_members.user_id = ? AND parties.is_active = ? AND parties.expires_at > ?", userID, true, time.Now().UTC()).
		Find(&parties).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: find active parties of user %d: %w", userID, err)
	}
	return parties, nil
}
