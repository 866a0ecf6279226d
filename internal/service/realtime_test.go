package service_test // 测试包

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/SwiftAkira/SpeedLink/internal/domain"
	"github.com/SwiftAkira/SpeedLink/internal/repository/mocks"
	"github.com/SwiftAkira/SpeedLink/internal/service"
)

func newRealtimeService() (*service.RealtimeService, *mocks.StateRepository, *mocks.MessageRepository, *mocks.PartyRepository) {
	stateRepo := new(mocks.StateRepository)
	msgRepo := new(mocks.MessageRepository)
	partyRepo := new(mocks.PartyRepository)
	return service.NewRealtimeService(stateRepo, msgRepo, partyRepo), stateRepo, msgRepo, partyRepo
}

// --- 测试 StoreLocation 方法 ---

func TestRealtimeService_StoreLocation_StampsTimestamp(t *testing.T) {
	// Arrange
	realtimeService, mockStateRepo, _, _ := newRealtimeService()
	ctx := context.Background()

	loc := &domain.LocationSample{
		PartyID:   42,
		UserID:    8,
		Latitude:  51.5,
		Longitude: -0.12,
		// 客户端时钟不可信，传进来的时间戳应被服务端覆盖
		Timestamp: time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	mockStateRepo.On("PutLocation", ctx, mock.MatchedBy(func(l *domain.LocationSample) bool {
		return time.Since(l.Timestamp) < 5*time.Second
	})).Return(nil).Once()

	// Act
	err := realtimeService.StoreLocation(ctx, loc)

	// Assert
	assert.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), loc.Timestamp, 5*time.Second, "时间戳应由服务端盖章")
	mockStateRepo.AssertExpectations(t)
}

// --- 测试 SaveMessage 方法 ---

func TestRealtimeService_SaveMessage_Success(t *testing.T) {
	// Arrange
	realtimeService, _, mockMsgRepo, _ := newRealtimeService()
	ctx := context.Background()

	mockMsgRepo.On("Create", ctx, mock.MatchedBy(func(m *domain.PartyMessage) bool {
		return m.PartyID == 42 && m.UserID == 8 && m.Message == "Fuel stop ahead"
	})).
		Run(func(args mock.Arguments) { // 模拟数据库填充字段
			msgArg := args.Get(1).(*domain.PartyMessage)
			msgArg.ID = 100
			msgArg.CreatedAt = time.Now()
		}).
		Return(nil).
		Once()

	// Act: 首尾空白应被裁剪
	msg, err := realtimeService.SaveMessage(ctx, 42, 8, "  Fuel stop ahead  ")

	// Assert
	assert.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, uint(100), msg.ID)
	assert.Equal(t, "Fuel stop ahead", msg.Message)
	mockMsgRepo.AssertExpectations(t)
}

func TestRealtimeService_SaveMessage_Invalid(t *testing.T) {
	realtimeService, _, mockMsgRepo, _ := newRealtimeService()
	ctx := context.Background()

	// 空消息
	_, err := realtimeService.SaveMessage(ctx, 42, 8, "   ")
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	// 超长消息（按字符数而不是字节数判断）
	_, err = realtimeService.SaveMessage(ctx, 42, 8, strings.Repeat("喂", 501))
	assert.ErrorIs(t, err, service.ErrInvalidInput)

	// 恰好在上限的消息是合法的
	mockMsgRepo.On("Create", ctx, mock.AnythingOfType("*domain.PartyMessage")).Return(nil).Once()
	_, err = realtimeService.SaveMessage(ctx, 42, 8, strings.Repeat("喂", 500))
	assert.NoError(t, err)

	mockMsgRepo.AssertExpectations(t)
}

// --- 测试 RecentMessages 方法 ---

func TestRealtimeService_RecentMessages_ClampsLimit(t *testing.T) {
	realtimeService, _, mockMsgRepo, _ := newRealtimeService()
	ctx := context.Background()

	// 非法 limit 一律回落到 50
	mockMsgRepo.On("ListRecent", ctx, uint(42), 50).Return([]domain.PartyMessage{}, nil).Twice()
	_, err := realtimeService.RecentMessages(ctx, 42, 0)
	assert.NoError(t, err)
	_, err = realtimeService.RecentMessages(ctx, 42, 9999)
	assert.NoError(t, err)

	mockMsgRepo.On("ListRecent", ctx, uint(42), 10).Return([]domain.PartyMessage{{ID: 1}}, nil).Once()
	messages, err := realtimeService.RecentMessages(ctx, 42, 10)
	assert.NoError(t, err)
	assert.Len(t, messages, 1)

	mockMsgRepo.AssertExpectations(t)
}

// --- 测试在线状态引用计数 ---

func TestRealtimeService_MarkOnline_FirstConnection(t *testing.T) {
	// Arrange: 计数 0→1，应更新快照并通知调用方广播
	realtimeService, mockStateRepo, _, mockPartyRepo := newRealtimeService()
	ctx := context.Background()

	mockStateRepo.On("IncrConnection", ctx, uint(42), uint(8)).Return(int64(1), nil).Once()
	mockPartyRepo.On("SetMemberOnline", ctx, uint(42), uint(8), true).Return(nil).Once()

	// Act
	first, err := realtimeService.MarkOnline(ctx, 42, 8)

	// Assert
	assert.NoError(t, err)
	assert.True(t, first, "第一个连接应报告上线跳变")
	mockStateRepo.AssertExpectations(t)
	mockPartyRepo.AssertExpectations(t)
}

func TestRealtimeService_MarkOnline_SecondDevice(t *testing.T) {
	// Arrange: 同一用户第二个设备连上来，只加计数
	realtimeService, mockStateRepo, _, mockPartyRepo := newRealtimeService()
	ctx := context.Background()

	mockStateRepo.On("IncrConnection", ctx, uint(42), uint(8)).Return(int64(2), nil).Once()

	// Act
	first, err := realtimeService.MarkOnline(ctx, 42, 8)

	// Assert: 不更新快照，也不应触发广播
	assert.NoError(t, err)
	assert.False(t, first)
	mockPartyRepo.AssertNotCalled(t, "SetMemberOnline", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockStateRepo.AssertExpectations(t)
}

func TestRealtimeService_MarkOffline_LastConnection(t *testing.T) {
	// Arrange: 计数 1→0，最后一个连接断开
	realtimeService, mockStateRepo, _, mockPartyRepo := newRealtimeService()
	ctx := context.Background()

	mockStateRepo.On("DecrConnection", ctx, uint(42), uint(8)).Return(int64(0), nil).Once()
	mockPartyRepo.On("SetMemberOnline", ctx, uint(42), uint(8), false).Return(nil).Once()

	// Act
	last, err := realtimeService.MarkOffline(ctx, 42, 8)

	// Assert
	assert.NoError(t, err)
	assert.True(t, last, "最后一个连接断开应报告下线跳变")
	mockStateRepo.AssertExpectations(t)
	mockPartyRepo.AssertExpectations(t)
}

func TestRealtimeService_MarkOffline_OtherDeviceStillConnected(t *testing.T) {
	realtimeService, mockStateRepo, _, mockPartyRepo := newRealtimeService()
	ctx := context.Background()

	mockStateRepo.On("DecrConnection", ctx, uint(42), uint(8)).Return(int64(1), nil).Once()

	last, err := realtimeService.MarkOffline(ctx, 42, 8)

	assert.NoError(t, err)
	assert.False(t, last, "还有别的连接在线时不应报告下线")
	mockPartyRepo.AssertNotCalled(t, "SetMemberOnline", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	mockStateRepo.AssertExpectations(t)
}
