package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SwiftAkira/SpeedLink/internal/domain"
	"github.com/SwiftAkira/SpeedLink/internal/repository"
)

// 队伍生命周期常量。
const (
	partyTTL        = 24 * time.Hour // 创建后固定 24 小时过期
	maxPartyMembers = 20             // 单个队伍的成员上限
	maxCodeAttempts = 10             // 邀请码撞唯一索引时的最大重试次数
	sweepBatchSize  = 100            // 一次清扫处理的过期队伍上限
)

// CodeSource 产生一个 6 位数字邀请码候选。
// 通过注入替换：生产环境用 crypto/rand，测试里用固定序列驱动冲突分支。
type CodeSource func() (string, error)

// RandomCodeSource 用 crypto/rand 均匀采样 000000-999999。
// 不用时间戳做种子，码值不可预测也不会在并发创建时相撞出规律。
func RandomCodeSource() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("failed to generate random code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// PartyService 负责队伍生命周期相关的业务逻辑：
// 创建（邀请码分配）、按码加入、离开、状态快照和过期清扫。
type PartyService struct {
	partyRepo repository.PartyRepository
	stateRepo repository.StateRepository
	codeSrc   CodeSource
}

// NewPartyService 创建 PartyService 实例。
func NewPartyService(partyRepo repository.PartyRepository, stateRepo repository.StateRepository, codeSrc CodeSource) *PartyService {
	if partyRepo == nil {
		panic("PartyRepository cannot be nil for PartyService")
	}
	if stateRepo == nil {
		panic("StateRepository cannot be nil for PartyService")
	}
	if codeSrc == nil {
		codeSrc = RandomCodeSource
	}
	return &PartyService{
		partyRepo: partyRepo,
		stateRepo: stateRepo,
		codeSrc:   codeSrc,
	}
}

// Create 创建一个新队伍，创建者自动成为队长兼首个成员。
// 唯一性不靠预查询而靠数据库唯一索引：两个实例同时抽到同一个码时，
// 输掉 INSERT 的那个换码重试，不存在检查和写入之间的窗口。
func (s *PartyService) Create(ctx context.Context, leaderID uint, name string) (*domain.PartyState, error) {
	logCtx := logrus.WithField("leader_id", leaderID)

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.codeSrc()
		if err != nil {
			logCtx.WithError(err).Error("Failed to generate party code")
			return nil, ErrInternalServer
		}

		partyName := name
		if partyName == "" {
			partyName = "Party " + code
		}
		now := time.Now().UTC()
		party := &domain.Party{
			Code:      code,
			Name:      partyName,
			LeaderID:  leaderID,
			ExpiresAt: now.Add(partyTTL),
			IsActive:  true,
		}

		err = s.partyRepo.CreateWithLeader(ctx, party, leaderID)
		if err != nil {
			if errors.Is(err, repository.ErrDuplicateEntry) {
				// 码被占用（包括已停用队伍的码，码永不回收），换一个再试
				logCtx.WithField("code", code).Warnf("Party code collision, retrying (attempt %d)...", attempt+1)
				continue
			}
			logCtx.WithError(err).Error("Failed to create party")
			return nil, ErrInternalServer
		}

		logCtx.WithFields(logrus.Fields{"party_id": party.ID, "code": code}).Info("Party created")
		return s.State(ctx, party.ID)
	}

	logCtx.Errorf("Failed to allocate a unique party code after %d attempts", maxCodeAttempts)
	return nil, ErrCodeExhausted
}

// JoinByCode 处理用户通过邀请码加入队伍。
// 重复加入是幂等的：已是成员时直接返回当前状态快照，不报错。
// 第二个返回值表示这次调用是否真的新增了成员关系，
// 调用方据此决定要不要向队伍广播 member-joined。
func (s *PartyService) JoinByCode(ctx context.Context, userID uint, code string) (*domain.PartyState, bool, error) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "code": code})

	// 1. 查找仍然有效的队伍（过期/停用的码一律视为不存在）
	party, err := s.partyRepo.FindActiveByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logCtx.Warn("Join failed: no active party with this code")
			return nil, false, ErrPartyNotFound
		}
		logCtx.WithError(err).Error("Join failed: repository error")
		return nil, false, ErrInternalServer
	}

	logCtx = logCtx.WithField("party_id", party.ID)

	// 2. 已是成员则幂等返回
	isMember, err := s.partyRepo.IsMember(ctx, party.ID, userID)
	if err != nil {
		logCtx.WithError(err).Error("Join failed: membership check error")
		return nil, false, ErrInternalServer
	}
	if isMember {
		logCtx.Debug("Join is idempotent: user already a member")
		state, err := s.State(ctx, party.ID)
		return state, false, err
	}

	// 3. 容量检查
	count, err := s.partyRepo.CountMembers(ctx, party.ID)
	if err != nil {
		logCtx.WithError(err).Error("Join failed: member count error")
		return nil, false, ErrInternalServer
	}
	if count >= maxPartyMembers {
		logCtx.Warn("Join failed: party is full")
		return nil, false, ErrPartyFull
	}

	// 4. 写入成员关系；并发重复加入撞唯一索引也按幂等处理
	member := &domain.PartyMember{
		PartyID:    party.ID,
		UserID:     userID,
		LastSeenAt: time.Now().UTC(),
	}
	joined := true
	if err := s.partyRepo.AddMember(ctx, member); err != nil {
		if !errors.Is(err, repository.ErrDuplicateEntry) {
			logCtx.WithError(err).Error("Join failed: add member error")
			return nil, false, ErrInternalServer
		}
		joined = false
	}

	logCtx.Info("User joined party")
	state, err := s.State(ctx, party.ID)
	return state, joined, err
}

// Leave 处理用户离开队伍。最后一个成员离开时队伍被软停用，
// Redis 里的易失状态（位置、计数）一并清掉。
func (s *PartyService) Leave(ctx context.Context, userID, partyID uint) error {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "party_id": partyID})

	err := s.partyRepo.RemoveMember(ctx, partyID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logCtx.Warn("Leave failed: user is not a member")
			return ErrNotInParty
		}
		logCtx.WithError(err).Error("Leave failed: repository error")
		return ErrInternalServer
	}

	count, err := s.partyRepo.CountMembers(ctx, partyID)
	if err != nil {
		logCtx.WithError(err).Error("Leave: member count error, skipping empty-party cleanup")
		return nil // 成员关系已删掉，离开本身算成功
	}
	if count == 0 {
		if err := s.deactivateParty(ctx, partyID); err != nil {
			logCtx.WithError(err).Error("Leave: failed to deactivate empty party")
			return nil
		}
		logCtx.Info("Last member left, party deactivated")
	}

	logCtx.Info("User left party")
	return nil
}

// State 构建队伍的完整状态快照：队伍元数据 + 成员列表 + 最新位置。
func (s *PartyService) State(ctx context.Context, partyID uint) (*domain.PartyState, error) {
	logCtx := logrus.WithField("party_id", partyID)

	party, err := s.partyRepo.FindByID(ctx, partyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrPartyNotFound
		}
		logCtx.WithError(err).Error("State: repository error")
		return nil, ErrInternalServer
	}

	members, err := s.partyRepo.ListMembers(ctx, partyID)
	if err != nil {
		logCtx.WithError(err).Error("State: list members error")
		return nil, ErrInternalServer
	}

	// 位置缓存不可用时降级为无位置快照，不让整个查询失败
	locations, err := s.stateRepo.GetPartyLocations(ctx, partyID)
	if err != nil {
		logCtx.WithError(err).Warn("State: location cache unavailable, returning snapshot without locations")
		locations = nil
	}

	states := make([]domain.MemberState, 0, len(members))
	for _, m := range members {
		ms := domain.MemberState{MemberInfo: m}
		if loc, ok := locations[m.UserID]; ok {
			ms.Location = loc
		}
		states = append(states, ms)
	}

	return &domain.PartyState{
		ID:        party.ID,
		Code:      party.Code,
		Name:      party.Name,
		LeaderID:  party.LeaderID,
		Members:   states,
		CreatedAt: party.CreatedAt,
		ExpiresAt: party.ExpiresAt,
	}, nil
}

// UserParties 返回用户参与的所有仍然有效的队伍。
func (s *PartyService) UserParties(ctx context.Context, userID uint) ([]domain.Party, error) {
	parties, err := s.partyRepo.FindActiveByUser(ctx, userID)
	if err != nil {
		logrus.WithField("user_id", userID).WithError(err).Error("UserParties: repository error")
		return nil, ErrInternalServer
	}
	return parties, nil
}

// IsMember 判断用户是否是队伍成员（WebSocket 事件的权限检查入口）。
func (s *PartyService) IsMember(ctx context.Context, partyID, userID uint) (bool, error) {
	ok, err := s.partyRepo.IsMember(ctx, partyID, userID)
	if err != nil {
		logrus.WithFields(logrus.Fields{"party_id": partyID, "user_id": userID}).
			WithError(err).Error("IsMember: repository error")
		return false, ErrInternalServer
	}
	return ok, nil
}

// SweepExpired 停用所有已到期但仍标记为有效的队伍，返回处理数量。
// 加入路径已经惰性过滤过期队伍，这里只是兜底回收，晚一点没有影响。
func (s *PartyService) SweepExpired(ctx context.Context) (int, error) {
	parties, err := s.partyRepo.FindExpiredActive(ctx, time.Now().UTC(), sweepBatchSize)
	if err != nil {
		logrus.WithError(err).Error("SweepExpired: repository error")
		return 0, ErrInternalServer
	}

	swept := 0
	for _, p := range parties {
		if err := s.deactivateParty(ctx, p.ID); err != nil {
			logrus.WithField("party_id", p.ID).WithError(err).Error("SweepExpired: failed to deactivate party")
			continue
		}
		swept++
	}
	if swept > 0 {
		logrus.WithField("count", swept).Info("Expired parties deactivated")
	}
	return swept, nil
}

// deactivateParty 软停用队伍并清理它在 Redis 里的易失状态。
func (s *PartyService) deactivateParty(ctx context.Context, partyID uint) error {
	if err := s.partyRepo.Deactivate(ctx, partyID); err != nil {
		return err
	}
	// 清理失败只记日志：这些键都有 TTL，最终会自然过期
	if err := s.stateRepo.ClearPartyState(ctx, partyID); err != nil {
		logrus.WithField("party_id", partyID).WithError(err).Warn("Failed to clear party state in Redis")
	}
	return nil
}
