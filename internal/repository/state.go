package repository

import (
	"context"
	"time"

	"github.com/SwiftAkira/SpeedLink/internal/domain"
)

// BackplaneSubscription 是对某个队伍事件通道的一次订阅。
// Messages 返回的通道在 Close 之后会被关闭。
type BackplaneSubscription interface {
	Messages() <-chan []byte
	Close() error
}

// StateRepository 定义易失状态（位置缓存、在线引用计数、跨实例广播）的接口。
// 实现上全部落在 Redis：位置是带 TTL 的键，在线状态是引用计数，
// 广播走 pub/sub，保证多实例部署时事件能到达所有订阅者。
type StateRepository interface {
	// PutLocation 覆盖写入某成员在某队伍的最新位置样本（带固定 TTL）。
	PutLocation(ctx context.Context, loc *domain.LocationSample) error

	// GetPartyLocations 返回队伍里所有未过期的位置样本，按 userId 索引。
	GetPartyLocations(ctx context.Context, partyID uint) (map[uint]*domain.LocationSample, error)

	// ClearPartyState 删除队伍的全部易失状态（位置、计数），队伍停用时调用。
	ClearPartyState(ctx context.Context, partyID uint) error

	// IncrConnection 给 (队伍, 用户) 的连接引用计数 +1，返回新值。
	// 0→1 的跳变意味着该成员刚刚上线。
	IncrConnection(ctx context.Context, partyID, userID uint) (int64, error)

	// DecrConnection 给 (队伍, 用户) 的连接引用计数 -1，返回新值。
	// 1→0 的跳变意味着该成员最后一个连接断开；计数不会降到 0 以下。
	DecrConnection(ctx context.Context, partyID, userID uint) (int64, error)

	// CheckRateLimit 递增 key 的计数并判断是否超过 limit（滑动窗口近似）。
	CheckRateLimit(ctx context.Context, key string, limit int, duration time.Duration) (bool, error)

	// Publish 把一条已编码的事件信封发到队伍的广播通道。
	Publish(ctx context.Context, partyID uint, payload []byte) error

	// Subscribe 订阅队伍的广播通道，收到的是 Publish 发出的原始字节。
	Subscribe(ctx context.Context, partyID uint) (BackplaneSubscription, error)
}
