package hub

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Client 代表一个连接到 Hub 的 WebSocket 客户端。
// 一条连接可以同时订阅多个队伍；sessionID 标识这条连接本身，
// 背板广播用它做回显排除（同一用户的其他设备不受影响）。
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	userID      uint
	displayName string
	sessionID   string      // 连接级唯一标识
	send        chan []byte // 向此客户端发送消息的缓冲通道

	mu      sync.Mutex // 保护 parties 和 sendOnce
	parties map[uint]bool
	closed  bool
}

// NewClient 创建一个新的 Client 实例
func NewClient(hub *Hub, conn *websocket.Conn, userID uint, displayName string) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		userID:      userID,
		displayName: displayName,
		sessionID:   uuid.NewString(),
		send:        make(chan []byte, 256),
		parties:     make(map[uint]bool),
	}
}

// Run 启动客户端的读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

func (c *Client) UserID() uint        { return c.userID }
func (c *Client) DisplayName() string { return c.displayName }
func (c *Client) SessionID() string   { return c.sessionID }

// Parties 返回这条连接当前订阅的队伍 ID 快照。
func (c *Client) Parties() []uint {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]uint, 0, len(c.parties))
	for id := range c.parties {
		ids = append(ids, id)
	}
	return ids
}

// addParty 记录订阅；返回 false 表示已经订阅过。
func (c *Client) addParty(partyID uint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.parties[partyID] {
		return false
	}
	c.parties[partyID] = true
	return true
}

// removeParty 删除订阅记录；返回 false 表示原本就没订阅。
func (c *Client) removeParty(partyID uint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.parties[partyID] {
		return false
	}
	delete(c.parties, partyID)
	return true
}

// TrySend 非阻塞地把消息放进发送队列。
// 返回 false 表示队列已满或连接已注销，消息被丢弃。
func (c *Client) TrySend(message []byte) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// closeSend 关闭发送通道，让 WritePump 退出。只会生效一次。
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump 将消息从 WebSocket 连接同步分发给 Hub。
// 它在自己的 goroutine 中运行；同一连接的事件严格按到达顺序处理。
func (c *Client) ReadPump() {
	defer func() {
		// 清理操作：请求 Hub 注销此客户端
		unregisterMsg := HubMessage{Type: "unregister", Client: c}
		select {
		case c.hub.messageChan <- unregisterMsg:
		case <-time.After(1 * time.Second): // 以防 Hub 已停止
			logrus.WithFields(logrus.Fields{"user_id": c.userID, "session": c.sessionID}).Warn("Timeout sending unregister message to Hub channel")
		}
		c.conn.Close()
		logrus.WithFields(logrus.Fields{"user_id": c.userID, "session": c.sessionID}).Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	// 设置初始读取超时和 Pong 处理程序
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait)) // 收到 Pong 后重置读取超时
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			logCtx := logrus.WithFields(logrus.Fields{"user_id": c.userID, "session": c.sessionID})
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed normally or read error")
			}
			break // 退出循环，触发 defer 中的注销
		}

		// 只处理文本消息
		if messageType != websocket.TextMessage {
			logrus.WithFields(logrus.Fields{"user_id": c.userID, "session": c.sessionID}).Debugf("Received non-text message type: %d", messageType)
			continue
		}

		// 同步分发：前一个事件的副作用（订阅、广播）对后一个事件可见
		c.hub.Dispatch(context.Background(), c, message)
	}
}

// WritePump 将消息从 Client 的 send 通道泵送到 WebSocket 连接。
// 它在自己的 goroutine 中运行。
func (c *Client) WritePump() {
	// 定期发送 Ping 消息，检测对端是否还活着
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logrus.WithFields(logrus.Fields{"user_id": c.userID, "session": c.sessionID}).Info("writePump exited")
		// 不需要在这里 unregister，readPump 退出会处理
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// send 通道被 Hub 关闭了（通常在注销时）
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithFields(logrus.Fields{"user_id": c.userID, "session": c.sessionID}).WithError(err).Warn("Failed to write message to websocket")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				// 发送 Ping 失败，通常意味着连接已断开
				logrus.WithFields(logrus.Fields{"user_id": c.userID, "session": c.sessionID}).WithError(err).Warn("Failed to send ping message")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})
		}
	}
}
