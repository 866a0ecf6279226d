package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/SwiftAkira/SpeedLink/internal/domain"
	"github.com/SwiftAkira/SpeedLink/internal/repository"
)

// StateRepository 是 repository.StateRepository 的 mock。
type StateRepository struct {
	mock.Mock
}

func (m *StateRepository) PutLocation(ctx context.Context, loc *domain.LocationSample) error {
	args := m.Called(ctx, loc)
	return args.Error(0)
}

func (m *StateRepository) GetPartyLocations(ctx context.Context, partyID uint) (map[uint]*domain.LocationSample, error) {
	args := m.Called(ctx, partyID)
	if p := args.Get(0); p != nil {
		return p.(map[uint]*domain.LocationSample), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *StateRepository) ClearPartyState(ctx context.Context, partyID uint) error {
	args := m.Called(ctx, partyID)
	return args.Error(0)
}

func (m *StateRepository) IncrConnection(ctx context.Context, partyID, userID uint) (int64, error) {
	args := m.Called(ctx, partyID, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *StateRepository) DecrConnection(ctx context.Context, partyID, userID uint) (int64, error) {
	args := m.Called(ctx, partyID, userID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *StateRepository) CheckRateLimit(ctx context.Context, key string, limit int, duration time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, duration)
	return args.Bool(0), args.Error(1)
}

func (m *StateRepository) Publish(ctx context.Context, partyID uint, payload []byte) error {
	args := m.Called(ctx, partyID, payload)
	return args.Error(0)
}

func (m *StateRepository) Subscribe(ctx context.Context, partyID uint) (repository.BackplaneSubscription, error) {
	args := m.Called(ctx, partyID)
	if s := args.Get(0); s != nil {
		return s.(repository.BackplaneSubscription), args.Error(1)
	}
	return nil, args.Error(1)
}

// Subscription 是 BackplaneSubscription 的简单 fake，供 hub 测试使用。
type Subscription struct {
	Ch     chan []byte
	Closed bool
}

func NewSubscription() *Subscription {
	return &Subscription{Ch: make(chan []byte, 16)}
}

func (s *Subscription) Messages() <-chan []byte { return s.Ch }

func (s *Subscription) Close() error {
	if !s.Closed {
		s.Closed = true
		close(s.Ch)
	}
	return nil
}
