// Package protocol 定义了 WebSocket 通道上的消息格式：
// 客户端到服务端的事件是一个封闭的变体集合（sum type），
// 通过 ParseClientEvent 解析后由 Hub 做穷举分发，
// 新增事件类型必须在编译期显式处理，而不是运行时字符串查表。
package protocol

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// 客户端事件类型名（与移动端/网页端约定的 socket 事件名保持一致）。
const (
	TypePartyCreate  = "party:create"
	TypePartyJoin    = "party:join"
	TypePartyLeave   = "party:leave"
	TypePartyUpdate  = "party:update"
	TypePartyMessage = "party:message"
)

// ClientEvent 是所有客户端到服务端事件的标记接口。
type ClientEvent interface {
	clientEvent()
}

// PartyCreate 请求创建一个新队伍。
type PartyCreate struct {
	Name string // 可选的队伍名称
}

// PartyJoin 请求通过邀请码加入队伍。
type PartyJoin struct {
	Code string // 必须是 6 位数字
}

// PartyLeave 请求离开某个队伍。
type PartyLeave struct {
	PartyID uint
}

// PartyUpdate 上报一次位置样本。
type PartyUpdate struct {
	PartyID  uint
	Location LocationPayload
}

// PartyMessage 向队伍发送一条文字消息。
type PartyMessage struct {
	PartyID uint
	Message string
}

func (PartyCreate) clientEvent()  {}
func (PartyJoin) clientEvent()    {}
func (PartyLeave) clientEvent()   {}
func (PartyUpdate) clientEvent()  {}
func (PartyMessage) clientEvent() {}

// LocationPayload 是 party:update 里携带的位置数据。
type LocationPayload struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Speed     float64 `json:"speed"`
	Heading   float64 `json:"heading"`
	Accuracy  float64 `json:"accuracy,omitempty"`
}

// ValidationError 表示客户端发来的事件格式非法。
// 它会被转换成发送者范围内的 error 事件，不会影响连接本身。
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return "invalid event: " + e.Reason }

var codePattern = regexp.MustCompile(`^[0-9]{6}$`)

// envelope 是线格式的统一信封：{"type": "...", ...payload 字段}。
type envelope struct {
	Type     string           `json:"type"`
	Name     string           `json:"name,omitempty"`
	Code     string           `json:"code,omitempty"`
	PartyID  uint             `json:"partyId,omitempty"`
	Location *LocationPayload `json:"location,omitempty"`
	Message  string           `json:"message,omitempty"`
}

// ParseClientEvent 将原始 WebSocket 帧解析为一个具体的事件变体。
// 任何格式问题都返回 *ValidationError，由调用方转成 scoped error 事件。
func ParseClientEvent(data []byte) (ClientEvent, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &ValidationError{Reason: "malformed JSON payload"}
	}

	switch env.Type {
	case TypePartyCreate:
		return PartyCreate{Name: env.Name}, nil

	case TypePartyJoin:
		if !codePattern.MatchString(env.Code) {
			return nil, &ValidationError{Reason: "code must be exactly 6 digits"}
		}
		return PartyJoin{Code: env.Code}, nil

	case TypePartyLeave:
		if env.PartyID == 0 {
			return nil, &ValidationError{Reason: "partyId is required"}
		}
		return PartyLeave{PartyID: env.PartyID}, nil

	case TypePartyUpdate:
		if env.PartyID == 0 {
			return nil, &ValidationError{Reason: "partyId is required"}
		}
		if env.Location == nil {
			return nil, &ValidationError{Reason: "location is required"}
		}
		if env.Location.Latitude < -90 || env.Location.Latitude > 90 ||
			env.Location.Longitude < -180 || env.Location.Longitude > 180 {
			return nil, &ValidationError{Reason: "latitude/longitude out of range"}
		}
		return PartyUpdate{PartyID: env.PartyID, Location: *env.Location}, nil

	case TypePartyMessage:
		if env.PartyID == 0 {
			return nil, &ValidationError{Reason: "partyId is required"}
		}
		if env.Message == "" {
			return nil, &ValidationError{Reason: "message is required"}
		}
		return PartyMessage{PartyID: env.PartyID, Message: env.Message}, nil

	case "":
		return nil, &ValidationError{Reason: "missing event type"}
	default:
		return nil, &ValidationError{Reason: fmt.Sprintf("unknown event type %q", env.Type)}
	}
}
