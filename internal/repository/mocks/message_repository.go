package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/SwiftAkira/SpeedLink/internal/domain"
)

// MessageRepository 是 repository.MessageRepository 的 mock。
type MessageRepository struct {
	mock.Mock
}

func (m *MessageRepository) Create(ctx context.Context, msg *domain.PartyMessage) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MessageRepository) ListRecent(ctx context.Context, partyID uint, limit int) ([]domain.PartyMessage, error) {
	args := m.Called(ctx, partyID, limit)
	if p := args.Get(0); p != nil {
		return p.([]domain.PartyMessage), args.Error(1)
	}
	return nil, args.Error(1)
}
