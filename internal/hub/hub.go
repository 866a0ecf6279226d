// Package hub 是实时侧的会话协调器：维护本实例的活跃连接、
// 每个队伍的本地订阅者集合，以及通往 Redis 背板的转发通道。
// 所有广播（本实例发起的也一样）都先发到背板再回流，
// 多实例部署时每个连接恰好收到一次。
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/SwiftAkira/SpeedLink/internal/domain"
	"github.com/SwiftAkira/SpeedLink/internal/protocol"
	"github.com/SwiftAkira/SpeedLink/internal/repository"
	"github.com/SwiftAkira/SpeedLink/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 包内使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// HubMessage 定义了在 Hub 内部通道传递的消息类型。
// 事件本身不走这个通道：它们在各自连接的 readPump 里同步分发，
// 保证单连接内的先后顺序；这里只承载注册/注销。
type HubMessage struct {
	Type   string // "register", "unregister"
	Client *Client
}

// backplaneEnvelope 是经过 Redis 背板的消息信封。
// Origin 是发起连接的会话 ID，ExcludeOrigin 控制事件是否回显给发起者。
type backplaneEnvelope struct {
	Origin        string          `json:"origin"`
	ExcludeOrigin bool            `json:"excludeOrigin"`
	Payload       json.RawMessage `json:"payload"`
}

// partyRoom 是某个队伍在本实例上的订阅状态。
type partyRoom struct {
	clients   map[*Client]bool
	backplane repository.BackplaneSubscription
}

// Hub 维护活跃客户端集合并协调注册、注销和广播。
type Hub struct {
	// 内部通道，处理注册/注销请求
	messageChan chan HubMessage

	// 每个队伍的本地订阅状态
	// map[partyID]*partyRoom
	rooms   map[uint]*partyRoom
	roomsMu sync.RWMutex

	// 注入的 Service 和状态仓库
	partySvc    *service.PartyService
	realtimeSvc *service.RealtimeService
	stateRepo   repository.StateRepository
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(partySvc *service.PartyService, realtimeSvc *service.RealtimeService, stateRepo repository.StateRepository) *Hub {
	// 启动时检查依赖注入是否有效
	if partySvc == nil {
		panic("PartyService cannot be nil for Hub")
	}
	if realtimeSvc == nil {
		panic("RealtimeService cannot be nil for Hub")
	}
	if stateRepo == nil {
		panic("StateRepository cannot be nil for Hub")
	}
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		rooms:       make(map[uint]*partyRoom),
		partySvc:    partySvc,
		realtimeSvc: realtimeSvc,
		stateRepo:   stateRepo,
	}
}

// Run 启动 Hub 的主事件处理循环。
// 它应该在一个单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for msg := range h.messageChan {
		switch msg.Type {
		case "register":
			h.registerClient(msg.Client)
		case "unregister":
			h.unregisterClient(msg.Client)
		default:
			log.Warnf("Hub: Received unknown message type: %s", msg.Type)
		}
	}
	log.Info("Hub is shutting down...")
}

// QueueMessage 将消息放入 Hub 的处理队列 (非阻塞)。
// 返回 true 如果消息成功入队，false 如果队列已满。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithField("message_type", msg.Type).Warn("Hub message channel full, dropping message")
		return false
	}
}

// Shutdown 关闭全部背板订阅并停止主循环。
func (h *Hub) Shutdown() {
	h.roomsMu.Lock()
	for partyID, room := range h.rooms {
		if room.backplane != nil {
			_ = room.backplane.Close()
		}
		delete(h.rooms, partyID)
	}
	h.roomsMu.Unlock()
	close(h.messageChan)
}

// --- 注册 / 注销 ---

// registerClient 处理客户端注册：把连接订阅到该用户参与的所有队伍。
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"user_id": client.UserID(),
		"session": client.SessionID(),
		"action":  "registerClient",
	})

	ctx := context.Background()
	parties, err := h.partySvc.UserParties(ctx, client.UserID())
	if err != nil {
		logCtx.WithError(err).Error("Failed to load user parties during register")
		client.TrySend(protocol.Marshal(protocol.NewError(protocol.CodeInternalError, "failed to restore party subscriptions")))
		return
	}

	for _, p := range parties {
		h.subscribeClient(ctx, client, p.ID)
	}
	logCtx.WithField("party_count", len(parties)).Info("Client registered to Hub")
}

// unregisterClient 处理客户端注销：退订它订阅过的每个队伍并关闭发送通道。
// 只退订这条连接真正订阅过的队伍，引用计数不会被别的连接拖偏。
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"user_id": client.UserID(),
		"session": client.SessionID(),
		"action":  "unregisterClient",
	})

	ctx := context.Background()
	for _, partyID := range client.Parties() {
		h.unsubscribeClient(ctx, client, partyID)
	}

	client.closeSend()
	logCtx.Info("Client unregistered from Hub")
}

// --- 订阅管理 ---

// subscribeClient 把连接加入队伍的本地房间，维护在线引用计数，
// 并在本实例首个订阅者出现时建立背板订阅。
func (h *Hub) subscribeClient(ctx context.Context, client *Client, partyID uint) {
	logCtx := logrus.WithFields(logrus.Fields{
		"party_id": partyID,
		"user_id":  client.UserID(),
		"session":  client.SessionID(),
	})

	if !client.addParty(partyID) {
		return // 这条连接已经订阅过了
	}

	h.roomsMu.Lock()
	room, ok := h.rooms[partyID]
	if !ok {
		room = &partyRoom{clients: make(map[*Client]bool)}
		h.rooms[partyID] = room
	}
	room.clients[client] = true
	needBackplane := room.backplane == nil
	h.roomsMu.Unlock()

	if needBackplane {
		sub, err := h.stateRepo.Subscribe(ctx, partyID)
		if err != nil {
			logCtx.WithError(err).Error("Failed to subscribe party backplane channel")
		} else {
			h.roomsMu.Lock()
			// 二次检查：锁外订阅期间可能有并发路径已经建好了
			if current, ok := h.rooms[partyID]; ok && current.backplane == nil {
				current.backplane = sub
				go h.relayBackplane(partyID, sub)
			} else {
				_ = sub.Close()
			}
			h.roomsMu.Unlock()
		}
	}

	// 在线引用计数 +1；0→1 跳变时向全队广播 member-online
	first, err := h.realtimeSvc.MarkOnline(ctx, partyID, client.UserID())
	if err != nil {
		logCtx.WithError(err).Warn("Failed to mark member online")
		return
	}
	if first {
		event := protocol.NewMemberEvent(protocol.TypeMemberOnline, partyID, client.UserID(), client.DisplayName())
		h.BroadcastToParty(ctx, partyID, event, client.SessionID(), false)
	}
	logCtx.Debug("Client subscribed to party room")
}

// unsubscribeClient 把连接从队伍房间移除，递减在线引用计数，
// 1→0 跳变时广播 member-offline；本实例最后一个订阅者走掉时关闭背板订阅。
func (h *Hub) unsubscribeClient(ctx context.Context, client *Client, partyID uint) {
	logCtx := logrus.WithFields(logrus.Fields{
		"party_id": partyID,
		"user_id":  client.UserID(),
		"session":  client.SessionID(),
	})

	if !client.removeParty(partyID) {
		return
	}

	h.roomsMu.Lock()
	var orphanedSub repository.BackplaneSubscription
	if room, ok := h.rooms[partyID]; ok {
		delete(room.clients, client)
		if len(room.clients) == 0 {
			orphanedSub = room.backplane
			delete(h.rooms, partyID)
		}
	}
	h.roomsMu.Unlock()

	if orphanedSub != nil {
		_ = orphanedSub.Close()
		logCtx.Debug("Last local subscriber left, backplane subscription closed")
	}

	last, err := h.realtimeSvc.MarkOffline(ctx, partyID, client.UserID())
	if err != nil {
		logCtx.WithError(err).Warn("Failed to mark member offline")
		return
	}
	if last {
		event := protocol.NewMemberEvent(protocol.TypeMemberOffline, partyID, client.UserID(), client.DisplayName())
		h.BroadcastToParty(ctx, partyID, event, client.SessionID(), true)
	}
	logCtx.Debug("Client unsubscribed from party room")
}

// --- 广播 ---

// BroadcastToParty 把事件发到队伍的背板通道。
// 本实例的订阅者也经由背板回流收到它，不走本地直发：
// 这样本地和远端实例的投递路径完全一致，每个连接恰好一次。
func (h *Hub) BroadcastToParty(ctx context.Context, partyID uint, event interface{}, originSession string, excludeOrigin bool) {
	env := backplaneEnvelope{
		Origin:        originSession,
		ExcludeOrigin: excludeOrigin,
		Payload:       protocol.Marshal(event),
	}
	data, err := json.Marshal(env)
	if err != nil {
		logrus.WithField("party_id", partyID).WithError(err).Error("Failed to marshal backplane envelope")
		return
	}
	if err := h.stateRepo.Publish(ctx, partyID, data); err != nil {
		logrus.WithField("party_id", partyID).WithError(err).Error("Failed to publish event to backplane")
	}
}

// relayBackplane 消费背板订阅，把事件分发给本地订阅者。
// 订阅被 Close 后 Messages 通道关闭，goroutine 随之退出。
func (h *Hub) relayBackplane(partyID uint, sub repository.BackplaneSubscription) {
	logCtx := logrus.WithFields(logrus.Fields{"component": "hub", "party_id": partyID})
	logCtx.Debug("Backplane relay started")

	for data := range sub.Messages() {
		var env backplaneEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			logCtx.WithError(err).Warn("Dropping malformed backplane envelope")
			continue
		}
		h.deliverLocal(partyID, &env)
	}
	logCtx.Debug("Backplane relay stopped")
}

// deliverLocal 把信封里的事件发给本实例上该队伍的所有订阅者。
func (h *Hub) deliverLocal(partyID uint, env *backplaneEnvelope) {
	h.roomsMu.RLock()
	room, ok := h.rooms[partyID]
	// 拷贝接收者列表，避免发送时长时间持有锁
	clientsToSend := make([]*Client, 0, 8)
	if ok {
		for client := range room.clients {
			if env.ExcludeOrigin && client.SessionID() == env.Origin {
				continue
			}
			clientsToSend = append(clientsToSend, client)
		}
	}
	h.roomsMu.RUnlock()

	for _, client := range clientsToSend {
		if !client.TrySend(env.Payload) {
			// 发送队列满说明客户端读得太慢，丢弃这一条，连接自身的
			// ping/pong 超时机制会负责淘汰真正死掉的连接
			logrus.WithFields(logrus.Fields{
				"party_id": partyID,
				"user_id":  client.UserID(),
			}).Warn("Client send channel full during broadcast, message dropped")
		}
	}
}

// --- 事件分发 ---

// Dispatch 处理一条来自客户端的原始 WebSocket 帧。
// 它在连接自己的 readPump goroutine 里同步执行：同一连接的事件
// 严格按到达顺序生效，不同连接互不阻塞。
func (h *Hub) Dispatch(ctx context.Context, client *Client, raw []byte) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithFields(logrus.Fields{
				"user_id": client.UserID(),
				"session": client.SessionID(),
				"panic":   r,
			}).Error("Panic while handling client event")
			client.TrySend(protocol.Marshal(protocol.NewError(protocol.CodeInternalError, "internal server error")))
		}
	}()

	event, err := protocol.ParseClientEvent(raw)
	if err != nil {
		var vErr *protocol.ValidationError
		if errors.As(err, &vErr) {
			client.TrySend(protocol.Marshal(protocol.NewError(protocol.CodeValidationError, vErr.Reason)))
		} else {
			client.TrySend(protocol.Marshal(protocol.NewError(protocol.CodeValidationError, "invalid event")))
		}
		return
	}

	switch ev := event.(type) {
	case protocol.PartyCreate:
		h.handlePartyCreate(ctx, client, ev)
	case protocol.PartyJoin:
		h.handlePartyJoin(ctx, client, ev)
	case protocol.PartyLeave:
		h.handlePartyLeave(ctx, client, ev)
	case protocol.PartyUpdate:
		h.handlePartyUpdate(ctx, client, ev)
	case protocol.PartyMessage:
		h.handlePartyMessage(ctx, client, ev)
	default:
		// ParseClientEvent 的变体集合是封闭的，走到这里说明新增事件没接分发
		client.TrySend(protocol.Marshal(protocol.NewError(protocol.CodeValidationError, "unsupported event")))
	}
}

func (h *Hub) handlePartyCreate(ctx context.Context, client *Client, ev protocol.PartyCreate) {
	state, err := h.partySvc.Create(ctx, client.UserID(), ev.Name)
	if err != nil {
		client.TrySend(protocol.Marshal(h.errorEvent(err)))
		return
	}
	h.subscribeClient(ctx, client, state.ID)
	client.TrySend(protocol.Marshal(protocol.NewPartyCreated(*state)))
}

func (h *Hub) handlePartyJoin(ctx context.Context, client *Client, ev protocol.PartyJoin) {
	state, joined, err := h.partySvc.JoinByCode(ctx, client.UserID(), ev.Code)
	if err != nil {
		client.TrySend(protocol.Marshal(h.errorEvent(err)))
		return
	}

	// 先广播 member-joined 再订阅自己：加入者不需要收到关于自己的广播
	if joined {
		event := protocol.NewMemberEvent(protocol.TypeMemberJoined, state.ID, client.UserID(), client.DisplayName())
		h.BroadcastToParty(ctx, state.ID, event, client.SessionID(), true)
	}
	h.subscribeClient(ctx, client, state.ID)

	// 加入者拿到的是包含成员列表和最新位置的完整快照
	client.TrySend(protocol.Marshal(protocol.NewPartyJoined(*state)))
}

func (h *Hub) handlePartyLeave(ctx context.Context, client *Client, ev protocol.PartyLeave) {
	if err := h.partySvc.Leave(ctx, client.UserID(), ev.PartyID); err != nil {
		client.TrySend(protocol.Marshal(h.errorEvent(err)))
		return
	}

	// 退订在广播之前：离开者不再收到这个队伍的任何事件
	h.unsubscribeClient(ctx, client, ev.PartyID)

	event := protocol.NewMemberEvent(protocol.TypeMemberLeft, ev.PartyID, client.UserID(), client.DisplayName())
	h.BroadcastToParty(ctx, ev.PartyID, event, client.SessionID(), true)

	client.TrySend(protocol.Marshal(protocol.NewPartyLeft(ev.PartyID)))
}

func (h *Hub) handlePartyUpdate(ctx context.Context, client *Client, ev protocol.PartyUpdate) {
	if !h.requireMembership(ctx, client, ev.PartyID) {
		return
	}

	loc := &domain.LocationSample{
		UserID:    client.UserID(),
		PartyID:   ev.PartyID,
		Latitude:  ev.Location.Latitude,
		Longitude: ev.Location.Longitude,
		Speed:     ev.Location.Speed,
		Heading:   ev.Location.Heading,
		Accuracy:  ev.Location.Accuracy,
	}
	if err := h.realtimeSvc.StoreLocation(ctx, loc); err != nil {
		client.TrySend(protocol.Marshal(h.errorEvent(err)))
		return
	}

	// 位置广播包含上报者本人：回显就是写入确认
	event := protocol.NewLocationUpdate(client.DisplayName(), *loc)
	h.BroadcastToParty(ctx, ev.PartyID, event, client.SessionID(), false)
}

func (h *Hub) handlePartyMessage(ctx context.Context, client *Client, ev protocol.PartyMessage) {
	if !h.requireMembership(ctx, client, ev.PartyID) {
		return
	}

	msg, err := h.realtimeSvc.SaveMessage(ctx, ev.PartyID, client.UserID(), ev.Message)
	if err != nil {
		client.TrySend(protocol.Marshal(h.errorEvent(err)))
		return
	}

	// 消息广播包含发送者本人：客户端以服务端时间戳为准渲染
	event := protocol.NewMessageReceived(*msg, client.DisplayName())
	h.BroadcastToParty(ctx, ev.PartyID, event, client.SessionID(), false)
}

// requireMembership 校验调用方是队伍的现任成员，不是则发 NOT_IN_PARTY。
// 判定走持久层而不是这条连接的订阅集合：用户可能从另一台设备
// 加入或离开了队伍，订阅状态会滞后于成员关系。
func (h *Hub) requireMembership(ctx context.Context, client *Client, partyID uint) bool {
	isMember, err := h.partySvc.IsMember(ctx, partyID, client.UserID())
	if err != nil {
		client.TrySend(protocol.Marshal(h.errorEvent(err)))
		return false
	}
	if !isMember {
		client.TrySend(protocol.Marshal(protocol.NewError(protocol.CodeNotInParty, "not a member of this party")))
		return false
	}
	return true
}

// errorEvent 把服务层业务错误映射成 scoped error 事件。
func (h *Hub) errorEvent(err error) protocol.ErrorEvent {
	switch {
	case errors.Is(err, service.ErrPartyNotFound):
		return protocol.NewError(protocol.CodePartyNotFound, "party not found or expired")
	case errors.Is(err, service.ErrPartyFull):
		return protocol.NewError(protocol.CodePartyFull, "party is full")
	case errors.Is(err, service.ErrNotInParty):
		return protocol.NewError(protocol.CodeNotInParty, "not a member of this party")
	case errors.Is(err, service.ErrInvalidInput):
		return protocol.NewError(protocol.CodeValidationError, "invalid input")
	default:
		return protocol.NewError(protocol.CodeInternalError, "internal server error")
	}
}
