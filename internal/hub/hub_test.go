package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/SwiftAkira/SpeedLink/internal/domain"
	"github.com/SwiftAkira/SpeedLink/internal/protocol"
	"github.com/SwiftAkira/SpeedLink/internal/repository/mocks"
	"github.com/SwiftAkira/SpeedLink/internal/service"
)

// newTestHub 组装一个跑在 mock 仓库上的 Hub（Service 层用真实实现）。
func newTestHub() (*Hub, *mocks.PartyRepository, *mocks.StateRepository, *mocks.MessageRepository) {
	partyRepo := new(mocks.PartyRepository)
	stateRepo := new(mocks.StateRepository)
	msgRepo := new(mocks.MessageRepository)

	partySvc := service.NewPartyService(partyRepo, stateRepo, nil)
	realtimeSvc := service.NewRealtimeService(stateRepo, msgRepo, partyRepo)
	h := NewHub(partySvc, realtimeSvc, stateRepo)
	return h, partyRepo, stateRepo, msgRepo
}

// newTestClient 创建一个不带真实连接的客户端（测试里不启动读写泵）。
func newTestClient(h *Hub, userID uint, name string) *Client {
	return NewClient(h, nil, userID, name)
}

// recvEvent 从客户端发送队列取出一条事件并解码，超时视为测试失败。
func recvEvent(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case data := <-c.send:
		var event map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &event))
		return event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event on client send channel")
		return nil
	}
}

// assertNoEvent 断言客户端发送队列里没有东西。
func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("expected no event, got: %s", data)
	default:
	}
}

// --- 测试 Dispatch 的错误路径 ---

func TestDispatch_MalformedFrame(t *testing.T) {
	h, _, _, _ := newTestHub()
	client := newTestClient(h, 8, "Rider")

	h.Dispatch(context.Background(), client, []byte("{not json"))

	event := recvEvent(t, client)
	assert.Equal(t, protocol.TypeError, event["type"])
	assert.Equal(t, protocol.CodeValidationError, event["code"])
}

func TestDispatch_PartyUpdate_NotInParty(t *testing.T) {
	h, partyRepo, stateRepo, _ := newTestHub()
	client := newTestClient(h, 8, "Rider")

	// 成员关系检查走持久层，非成员的上报被拒绝，不产生任何写入或广播
	partyRepo.On("IsMember", mock.Anything, uint(42), uint(8)).Return(false, nil).Once()

	raw := []byte(`{"type":"party:update","partyId":42,"location":{"latitude":51.5,"longitude":-0.12}}`)
	h.Dispatch(context.Background(), client, raw)

	event := recvEvent(t, client)
	assert.Equal(t, protocol.TypeError, event["type"])
	assert.Equal(t, protocol.CodeNotInParty, event["code"])
	stateRepo.AssertNotCalled(t, "PutLocation", mock.Anything, mock.Anything)
	stateRepo.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
	partyRepo.AssertExpectations(t)
}

// --- 测试广播都走背板 ---

func TestDispatch_PartyUpdate_PublishesToBackplane(t *testing.T) {
	// Arrange
	h, partyRepo, stateRepo, _ := newTestHub()
	client := newTestClient(h, 8, "Rider")
	client.addParty(42)

	var published []byte
	partyRepo.On("IsMember", mock.Anything, uint(42), uint(8)).Return(true, nil).Once()
	stateRepo.On("PutLocation", mock.Anything, mock.MatchedBy(func(l *domain.LocationSample) bool {
		return l.PartyID == 42 && l.UserID == 8
	})).Return(nil).Once()
	stateRepo.On("Publish", mock.Anything, uint(42), mock.AnythingOfType("[]uint8")).
		Run(func(args mock.Arguments) { published = args.Get(2).([]byte) }).
		Return(nil).Once()

	// Act
	raw := []byte(`{"type":"party:update","partyId":42,"location":{"latitude":51.5,"longitude":-0.12,"speed":88.5}}`)
	h.Dispatch(context.Background(), client, raw)

	// Assert: 事件只进背板，不走本地直发（本地投递由回流完成）
	assertNoEvent(t, client)
	require.NotNil(t, published)

	var env backplaneEnvelope
	require.NoError(t, json.Unmarshal(published, &env))
	assert.Equal(t, client.SessionID(), env.Origin)
	assert.False(t, env.ExcludeOrigin, "位置广播应回显给上报者作写入确认")

	var locEvent protocol.LocationUpdateEvent
	require.NoError(t, json.Unmarshal(env.Payload, &locEvent))
	assert.Equal(t, protocol.TypeLocationUpdate, locEvent.Type)
	assert.Equal(t, uint(8), locEvent.UserID)
	assert.Equal(t, "Rider", locEvent.Name)
	assert.InDelta(t, 88.5, locEvent.Location.Speed, 1e-9)
	assert.False(t, locEvent.Location.Timestamp.IsZero(), "时间戳应由服务端盖章")

	stateRepo.AssertExpectations(t)
}

func TestDispatch_PartyMessage_EchoesToSender(t *testing.T) {
	// Arrange
	h, partyRepo, stateRepo, msgRepo := newTestHub()
	client := newTestClient(h, 8, "Rider")
	client.addParty(42)

	partyRepo.On("IsMember", mock.Anything, uint(42), uint(8)).Return(true, nil).Once()
	msgRepo.On("Create", mock.Anything, mock.AnythingOfType("*domain.PartyMessage")).
		Run(func(args mock.Arguments) {
			msgArg := args.Get(1).(*domain.PartyMessage)
			msgArg.ID = 100
			msgArg.CreatedAt = time.Now().UTC()
		}).
		Return(nil).Once()

	var published []byte
	stateRepo.On("Publish", mock.Anything, uint(42), mock.AnythingOfType("[]uint8")).
		Run(func(args mock.Arguments) { published = args.Get(2).([]byte) }).
		Return(nil).Once()

	// Act
	raw := []byte(`{"type":"party:message","partyId":42,"message":"Fuel stop ahead"}`)
	h.Dispatch(context.Background(), client, raw)

	// Assert: 消息广播包含发送者本人 (ExcludeOrigin=false)
	require.NotNil(t, published)
	var env backplaneEnvelope
	require.NoError(t, json.Unmarshal(published, &env))
	assert.False(t, env.ExcludeOrigin, "消息应回显给发送者")

	var msgEvent protocol.MessageReceivedEvent
	require.NoError(t, json.Unmarshal(env.Payload, &msgEvent))
	assert.Equal(t, protocol.TypeMessageReceived, msgEvent.Type)
	assert.Equal(t, "Fuel stop ahead", msgEvent.Message)
	assert.Equal(t, "Rider", msgEvent.Name)

	stateRepo.AssertExpectations(t)
	msgRepo.AssertExpectations(t)
}

// --- 测试本地投递的回显排除 ---

func TestDeliverLocal_ExcludesOriginSession(t *testing.T) {
	// Arrange: 两个客户端订阅同一队伍
	h, _, _, _ := newTestHub()
	sender := newTestClient(h, 8, "Sender")
	receiver := newTestClient(h, 9, "Receiver")
	h.rooms[42] = &partyRoom{clients: map[*Client]bool{sender: true, receiver: true}}

	payload := protocol.Marshal(protocol.NewMemberEvent(protocol.TypeMemberJoined, 42, 8, "Sender"))

	// Act: ExcludeOrigin=true 时发起会话收不到
	h.deliverLocal(42, &backplaneEnvelope{
		Origin:        sender.SessionID(),
		ExcludeOrigin: true,
		Payload:       payload,
	})

	// Assert
	event := recvEvent(t, receiver)
	assert.Equal(t, protocol.TypeMemberJoined, event["type"])
	assertNoEvent(t, sender)

	// Act: ExcludeOrigin=false 时两个都收到
	h.deliverLocal(42, &backplaneEnvelope{
		Origin:        sender.SessionID(),
		ExcludeOrigin: false,
		Payload:       payload,
	})

	recvEvent(t, sender)
	recvEvent(t, receiver)
}

// --- 测试订阅生命周期和背板回流 ---

func TestSubscribeClient_BackplaneLifecycle(t *testing.T) {
	// Arrange
	h, partyRepo, stateRepo, _ := newTestHub()
	client := newTestClient(h, 8, "Rider")
	ctx := context.Background()
	sub := mocks.NewSubscription()

	stateRepo.On("Subscribe", mock.Anything, uint(42)).Return(sub, nil).Once()
	// 0→1 跳变：更新在线快照并广播 member-online
	stateRepo.On("IncrConnection", mock.Anything, uint(42), uint(8)).Return(int64(1), nil).Once()
	partyRepo.On("SetMemberOnline", mock.Anything, uint(42), uint(8), true).Return(nil).Once()
	stateRepo.On("Publish", mock.Anything, uint(42), mock.AnythingOfType("[]uint8")).Return(nil).Once()

	// Act: 本实例首个订阅者出现，建立背板订阅
	h.subscribeClient(ctx, client, 42)

	// Assert: 回流一条远端实例的事件，本地订阅者应收到
	remotePayload := protocol.Marshal(protocol.NewMemberEvent(protocol.TypeMemberOnline, 42, 99, "Remote"))
	remoteEnv, err := json.Marshal(backplaneEnvelope{Origin: "remote-session", Payload: remotePayload})
	require.NoError(t, err)
	sub.Ch <- remoteEnv

	event := recvEvent(t, client)
	assert.Equal(t, protocol.TypeMemberOnline, event["type"])

	// Arrange: 1→0 跳变
	stateRepo.On("DecrConnection", mock.Anything, uint(42), uint(8)).Return(int64(0), nil).Once()
	partyRepo.On("SetMemberOnline", mock.Anything, uint(42), uint(8), false).Return(nil).Once()
	stateRepo.On("Publish", mock.Anything, uint(42), mock.AnythingOfType("[]uint8")).Return(nil).Once()

	// Act: 最后一个本地订阅者走掉
	h.unsubscribeClient(ctx, client, 42)

	// Assert: 背板订阅被关闭，房间被回收
	assert.True(t, sub.Closed, "最后一个本地订阅者离开后背板订阅应关闭")
	h.roomsMu.RLock()
	_, ok := h.rooms[42]
	h.roomsMu.RUnlock()
	assert.False(t, ok, "空房间应被回收")

	stateRepo.AssertExpectations(t)
	partyRepo.AssertExpectations(t)
}

func TestSubscribeClient_SecondSubscriberReusesBackplane(t *testing.T) {
	// Arrange: 队伍已经有一个本地订阅者和背板订阅
	h, partyRepo, stateRepo, _ := newTestHub()
	first := newTestClient(h, 8, "First")
	second := newTestClient(h, 9, "Second")
	ctx := context.Background()
	sub := mocks.NewSubscription()

	stateRepo.On("Subscribe", mock.Anything, uint(42)).Return(sub, nil).Once()
	stateRepo.On("IncrConnection", mock.Anything, uint(42), mock.AnythingOfType("uint")).Return(int64(1), nil).Twice()
	partyRepo.On("SetMemberOnline", mock.Anything, uint(42), mock.AnythingOfType("uint"), true).Return(nil).Twice()
	stateRepo.On("Publish", mock.Anything, uint(42), mock.AnythingOfType("[]uint8")).Return(nil).Twice()

	// Act
	h.subscribeClient(ctx, first, 42)
	h.subscribeClient(ctx, second, 42)

	// Assert: Subscribe 只被调用一次（.Once() 约束），两个客户端共用一条回流
	stateRepo.AssertExpectations(t)

	// 重复订阅是幂等的，不触发任何新的副作用
	h.subscribeClient(ctx, first, 42)
	stateRepo.AssertNumberOfCalls(t, "IncrConnection", 2)
}
