package service

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SwiftAkira/SpeedLink/internal/domain"
	"github.com/SwiftAkira/SpeedLink/internal/repository"
)

// 单条队伍消息的最大长度（字符数），超出部分直接拒绝。
const maxMessageLength = 500

// RealtimeService 承载 WebSocket 事件背后的业务逻辑：
// 位置样本写入、消息持久化、以及基于连接引用计数的在线状态判定。
type RealtimeService struct {
	stateRepo repository.StateRepository
	msgRepo   repository.MessageRepository
	partyRepo repository.PartyRepository
}

// NewRealtimeService 创建 RealtimeService 实例。
func NewRealtimeService(stateRepo repository.StateRepository, msgRepo repository.MessageRepository, partyRepo repository.PartyRepository) *RealtimeService {
	if stateRepo == nil {
		panic("StateRepository cannot be nil for RealtimeService")
	}
	if msgRepo == nil {
		panic("MessageRepository cannot be nil for RealtimeService")
	}
	if partyRepo == nil {
		panic("PartyRepository cannot be nil for RealtimeService")
	}
	return &RealtimeService{
		stateRepo: stateRepo,
		msgRepo:   msgRepo,
		partyRepo: partyRepo,
	}
}

// StoreLocation 把一次位置上报写入缓存（带 TTL，后写覆盖）。
// 时间戳在这里统一盖章，客户端时钟不可信。
func (s *RealtimeService) StoreLocation(ctx context.Context, loc *domain.LocationSample) error {
	loc.Timestamp = time.Now().UTC()
	if err := s.stateRepo.PutLocation(ctx, loc); err != nil {
		logrus.WithFields(logrus.Fields{"party_id": loc.PartyID, "user_id": loc.UserID}).
			WithError(err).Error("StoreLocation: cache write failed")
		return ErrInternalServer
	}
	return nil
}

// PartyLocations 返回队伍里所有未过期的位置样本。
func (s *RealtimeService) PartyLocations(ctx context.Context, partyID uint) (map[uint]*domain.LocationSample, error) {
	locations, err := s.stateRepo.GetPartyLocations(ctx, partyID)
	if err != nil {
		logrus.WithField("party_id", partyID).WithError(err).Error("PartyLocations: cache read failed")
		return nil, ErrInternalServer
	}
	return locations, nil
}

// SaveMessage 校验并持久化一条队伍消息，返回落库后的记录（含时间戳）。
func (s *RealtimeService) SaveMessage(ctx context.Context, partyID, userID uint, text string) (*domain.PartyMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" || len([]rune(text)) > maxMessageLength {
		return nil, ErrInvalidInput
	}

	msg := &domain.PartyMessage{
		PartyID: partyID,
		UserID:  userID,
		Message: text,
	}
	if err := s.msgRepo.Create(ctx, msg); err != nil {
		logrus.WithFields(logrus.Fields{"party_id": partyID, "user_id": userID}).
			WithError(err).Error("SaveMessage: persistence failed")
		return nil, ErrInternalServer
	}
	return msg, nil
}

// RecentMessages 返回队伍最近的消息（REST 补看接口用）。
func (s *RealtimeService) RecentMessages(ctx context.Context, partyID uint, limit int) ([]domain.PartyMessage, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	messages, err := s.msgRepo.ListRecent(ctx, partyID, limit)
	if err != nil {
		logrus.WithField("party_id", partyID).WithError(err).Error("RecentMessages: repository error")
		return nil, ErrInternalServer
	}
	return messages, nil
}

// MarkOnline 给 (队伍, 用户) 的连接计数 +1。
// 返回 true 表示 0→1 的跳变：该成员刚上线，调用方应广播 member-online。
// 同一用户的第二个设备连上来只加计数，不再广播。
func (s *RealtimeService) MarkOnline(ctx context.Context, partyID, userID uint) (bool, error) {
	count, err := s.stateRepo.IncrConnection(ctx, partyID, userID)
	if err != nil {
		logrus.WithFields(logrus.Fields{"party_id": partyID, "user_id": userID}).
			WithError(err).Error("MarkOnline: counter error")
		return false, ErrInternalServer
	}
	first := count == 1
	if first {
		// 在线快照只在跳变沿更新，重复连接不产生多余的数据库写
		if err := s.partyRepo.SetMemberOnline(ctx, partyID, userID, true); err != nil {
			logrus.WithFields(logrus.Fields{"party_id": partyID, "user_id": userID}).
				WithError(err).Warn("MarkOnline: failed to update online snapshot")
		}
	}
	return first, nil
}

// MarkOffline 给 (队伍, 用户) 的连接计数 -1。
// 返回 true 表示 1→0 的跳变：最后一个连接断开，调用方应广播 member-offline。
func (s *RealtimeService) MarkOffline(ctx context.Context, partyID, userID uint) (bool, error) {
	count, err := s.stateRepo.DecrConnection(ctx, partyID, userID)
	if err != nil {
		logrus.WithFields(logrus.Fields{"party_id": partyID, "user_id": userID}).
			WithError(err).Error("MarkOffline: counter error")
		return false, ErrInternalServer
	}
	last := count == 0
	if last {
		if err := s.partyRepo.SetMemberOnline(ctx, partyID, userID, false); err != nil {
			logrus.WithFields(logrus.Fields{"party_id": partyID, "user_id": userID}).
				WithError(err).Warn("MarkOffline: failed to update online snapshot")
		}
	}
	return last, nil
}
