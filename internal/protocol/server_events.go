package protocol

import (
	"encoding/json"
	"time"

	"github.com/SwiftAkira/SpeedLink/internal/domain"
)

// 服务端事件类型名。
const (
	TypePartyCreated    = "party:created"
	TypePartyJoined     = "party:joined"
	TypePartyLeft       = "party:left"
	TypeMemberJoined    = "party:member-joined"
	TypeMemberLeft      = "party:member-left"
	TypeMemberOnline    = "party:member-online"
	TypeMemberOffline   = "party:member-offline"
	TypeLocationUpdate  = "party:location-update"
	TypeMessageReceived = "party:message-received"
	TypeError           = "error"
)

// 错误码，随 scoped error 事件下发给出错的那个连接。
const (
	CodeValidationError = "VALIDATION_ERROR"
	CodePartyNotFound   = "PARTY_NOT_FOUND"
	CodePartyFull       = "PARTY_FULL"
	CodeNotInParty      = "NOT_IN_PARTY"
	CodeInternalError   = "INTERNAL_ERROR"
)

// PartyCreatedEvent 仅发给创建者：队伍已建立，自己是唯一成员。
type PartyCreatedEvent struct {
	Type  string            `json:"type"`
	Party domain.PartyState `json:"party"`
}

// PartyJoinedEvent 仅发给加入者，携带完整的队伍状态快照。
type PartyJoinedEvent struct {
	Type  string            `json:"type"`
	Party domain.PartyState `json:"party"`
}

// PartyLeftEvent 仅发给离开者，确认离开已生效。
type PartyLeftEvent struct {
	Type    string `json:"type"`
	PartyID uint   `json:"partyId"`
}

// MemberEvent 广播给队伍其余成员：有人加入/离开/上线/下线。
type MemberEvent struct {
	Type      string    `json:"type"`
	PartyID   uint      `json:"partyId"`
	UserID    uint      `json:"userId"`
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// LocationUpdateEvent 广播一次位置样本（带上报者昵称）。
type LocationUpdateEvent struct {
	Type     string                `json:"type"`
	PartyID  uint                  `json:"partyId"`
	UserID   uint                  `json:"userId"`
	Name     string                `json:"name"`
	Location domain.LocationSample `json:"location"`
}

// MessageReceivedEvent 广播一条队伍消息（包含发送者本人）。
type MessageReceivedEvent struct {
	Type      string    `json:"type"`
	PartyID   uint      `json:"partyId"`
	UserID    uint      `json:"userId"`
	Name      string    `json:"name"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorEvent 只发给触发错误的那个连接，连接本身保持打开。
type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewPartyCreated 构造 party:created 事件。
func NewPartyCreated(state domain.PartyState) PartyCreatedEvent {
	return PartyCreatedEvent{Type: TypePartyCreated, Party: state}
}

// NewPartyJoined 构造 party:joined 事件。
func NewPartyJoined(state domain.PartyState) PartyJoinedEvent {
	return PartyJoinedEvent{Type: TypePartyJoined, Party: state}
}

// NewPartyLeft 构造 party:left 事件。
func NewPartyLeft(partyID uint) PartyLeftEvent {
	return PartyLeftEvent{Type: TypePartyLeft, PartyID: partyID}
}

// NewMemberEvent 构造成员变更广播事件（加入/离开/上线/下线共用一个形状）。
func NewMemberEvent(typ string, partyID, userID uint, name string) MemberEvent {
	return MemberEvent{Type: typ, PartyID: partyID, UserID: userID, Name: name, Timestamp: time.Now().UTC()}
}

// NewLocationUpdate 构造 party:location-update 事件。
func NewLocationUpdate(name string, loc domain.LocationSample) LocationUpdateEvent {
	return LocationUpdateEvent{Type: TypeLocationUpdate, PartyID: loc.PartyID, UserID: loc.UserID, Name: name, Location: loc}
}

// NewMessageReceived 构造 party:message-received 事件。
func NewMessageReceived(msg domain.PartyMessage, name string) MessageReceivedEvent {
	return MessageReceivedEvent{
		Type:      TypeMessageReceived,
		PartyID:   msg.PartyID,
		UserID:    msg.UserID,
		Name:      name,
		Message:   msg.Message,
		Timestamp: msg.CreatedAt,
	}
}

// NewError 构造 scoped error 事件。
func NewError(code, message string) ErrorEvent {
	return ErrorEvent{Type: TypeError, Code: code, Message: message}
}

// Marshal 把任意服务端事件编码成 WebSocket 文本帧。
// 事件结构都是本包定义的纯数据，编码失败属于程序错误。
func Marshal(event interface{}) []byte {
	data, err := json.Marshal(event)
	if err != nil {
		panic("protocol: marshal server event: " + err.Error())
	}
	return data
}
