package domain

import "time"

// Party 表示一个共享位置的队伍（车队）。
// 队伍通过 6 位数字邀请码加入；到期或人数清零后软停用 (IsActive=false)，
// 永不物理删除，邀请码也不会被重新分配。
type Party struct {
	ID        uint      `gorm:"primaryKey"`                                    // 队伍唯一标识符 (主键)
	Code      string    `gorm:"type:varchar(6);uniqueIndex:idx_code;not null"` // 6 位数字邀请码，全局唯一
	Name      string    `gorm:"type:varchar(100);not null"`                    // 队伍名称 (默认 "Party <code>")
	LeaderID  uint      `gorm:"index;not null"`                                // 创建者用户 ID
	CreatedAt time.Time `gorm:"autoCreateTime"`                                // 创建时间 (GORM 自动填充)
	ExpiresAt time.Time `gorm:"index;not null"`                                // 到期时间 (创建时间 + 固定 TTL)
	IsActive  bool      `gorm:"not null;default:true"`                         // 是否仍然有效（软停用标记）
	UpdatedAt time.Time `gorm:"autoUpdateTime"`                                // 最后更新时间 (GORM 自动填充)
}

// PartyMember 表示 (队伍, 用户) 的成员关系。
// (PartyID, UserID) 组合唯一；重复加入是幂等的。
// IsOnline 只是给非实时查询路径用的快照，权威的在线状态由
// Session Coordinator 的连接引用计数决定。
type PartyMember struct {
	ID         uint      `gorm:"primaryKey"`
	PartyID    uint      `gorm:"uniqueIndex:idx_party_user;not null"` // 所属队伍 ID
	UserID     uint      `gorm:"uniqueIndex:idx_party_user;not null"` // 成员用户 ID
	JoinedAt   time.Time `gorm:"autoCreateTime"`                      // 加入时间
	LastSeenAt time.Time `gorm:"index"`                               // 最后一次在线状态变更时间
	IsOnline   bool      `gorm:"not null;default:false"`              // 在线状态快照（非权威）
}

// MemberInfo 是成员关系与用户信息的联表视图，用于队伍状态快照。
type MemberInfo struct {
	UserID      uint      `json:"userId"`
	DisplayName string    `json:"displayName"`
	VehicleType string    `json:"vehicleType"`
	IsOnline    bool      `json:"isOnline"`
	JoinedAt    time.Time `json:"joinedAt"`
	LastSeenAt  time.Time `json:"lastSeenAt"`
}

// PartyState 是发送给客户端的完整队伍状态快照（加入成功时下发）。
type PartyState struct {
	ID        uint          `json:"id"`
	Code      string        `json:"code"`
	Name      string        `json:"name"`
	LeaderID  uint          `json:"leaderId"`
	Members   []MemberState `json:"members"`
	CreatedAt time.Time     `json:"createdAt"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

// MemberState 在 MemberInfo 基础上附带该成员最近的位置样本（如果有）。
type MemberState struct {
	MemberInfo
	Location *LocationSample `json:"location,omitempty"`
}
