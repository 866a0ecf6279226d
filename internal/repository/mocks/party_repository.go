package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/SwiftAkira/SpeedLink/internal/domain"
)

// PartyRepository 是 repository.PartyRepository 的 mock。
type PartyRepository struct {
	mock.Mock
}

func (m *PartyRepository) CreateWithLeader(ctx context.Context, party *domain.Party, leaderID uint) error {
	args := m.Called(ctx, party, leaderID)
	return args.Error(0)
}

func (m *PartyRepository) FindByID(ctx context.Context, id uint) (*domain.Party, error) {
	args := m.Called(ctx, id)
	if p := args.Get(0); p != nil {
		return p.(*domain.Party), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *PartyRepository) FindActiveByCode(ctx context.Context, code string) (*domain.Party, error) {
	args := m.Called(ctx, code)
	if p := args.Get(0); p != nil {
		return p.(*domain.Party), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *PartyRepository) Deactivate(ctx context.Context, partyID uint) error {
	args := m.Called(ctx, partyID)
	return args.Error(0)
}

func (m *PartyRepository) FindExpiredActive(ctx context.Context, now time.Time, limit int) ([]domain.Party, error) {
	args := m.Called(ctx, now, limit)
	if p := args.Get(0); p != nil {
		return p.([]domain.Party), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *PartyRepository) AddMember(ctx context.Context, member *domain.PartyMember) error {
	args := m.Called(ctx, member)
	return args.Error(0)
}

func (m *PartyRepository) RemoveMember(ctx context.Context, partyID, userID uint) error {
	args := m.Called(ctx, partyID, userID)
	return args.Error(0)
}

func (m *PartyRepository) IsMember(ctx context.Context, partyID, userID uint) (bool, error) {
	args := m.Called(ctx, partyID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *PartyRepository) CountMembers(ctx context.Context, partyID uint) (int64, error) {
	args := m.Called(ctx, partyID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *PartyRepository) ListMembers(ctx context.Context, partyID uint) ([]domain.MemberInfo, error) {
	args := m.Called(ctx, partyID)
	if p := args.Get(0); p != nil {
		return p.([]domain.MemberInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *PartyRepository) SetMemberOnline(ctx context.Context, partyID, userID uint, online bool) error {
	args := m.Called(ctx, partyID, userID, online)
	return args.Error(0)
}

func (m *PartyRepository) FindActiveByUser(ctx context.Context, userID uint) ([]domain.Party, error) {
	args := m.Called(ctx, userID)
	if p := args.Get(0); p != nil {
		return p.([]domain.Party), args.Error(1)
	}
	return nil, args.Error(1)
}
