package domain

import "time"

// LocationSample 表示某个成员在某个队伍里上报的一次位置样本。
// 它只存在于 Redis（短 TTL，后写覆盖），不是数据库模型：
// 这里只保留每个 (队伍, 用户) 的最新样本，过期后静默消失。
type LocationSample struct {
	UserID    uint      `json:"userId"`
	PartyID   uint      `json:"partyId"`
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Speed     float64   `json:"speed"`              // km/h
	Heading   float64   `json:"heading"`            // 角度 0-360，客户端上报
	Accuracy  float64   `json:"accuracy,omitempty"` // 米，可选
	Timestamp time.Time `json:"timestamp"`
}
