// Package redisstate 实现 StateRepository 接口的 Redis 版本：
// 位置缓存（短 TTL 键）、在线连接引用计数、限流计数，
// 以及队伍事件的 pub/sub 广播通道（多实例部署的背板）。
package redisstate

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/SwiftAkira/SpeedLink/internal/domain"
	"github.com/SwiftAkira/SpeedLink/internal/repository"
)

// 位置样本的 TTL：成员停止上报后，陈旧位置在 5 分钟内静默消失。
const locationTTL = 5 * time.Minute

// 连接计数键的 TTL 比队伍寿命略长，保证进程崩溃留下的脏计数最终被回收。
const connCountTTL = 25 * time.Hour

// RedisStateRepository 是 StateRepository 接口的 Redis 实现
type RedisStateRepository struct {
	client    *redis.Client // 依赖 Redis 客户端
	keyPrefix string        // Redis key 前缀，方便多应用共用实例
}

// NewRedisStateRepository 创建 RedisStateRepository 实例
func NewRedisStateRepository(client *redis.Client, keyPrefix string) *RedisStateRepository {
	if client == nil {
		panic("redis client cannot be nil for RedisStateRepository")
	}
	if keyPrefix == "" {
		keyPrefix = "sl:" // 默认前缀 "sl:" (SpeedLink)
	}
	return &RedisStateRepository{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// --- Key Generation Helpers ---

func (r *RedisStateRepository) locationKey(partyID, userID uint) string {
	return fmt.Sprintf("%sparty:%d:location:%d", r.keyPrefix, partyID, userID)
}

func (r *RedisStateRepository) locationKeyPattern(partyID uint) string {
	return fmt.Sprintf("%sparty:%d:location:*", r.keyPrefix, partyID)
}

func (r *RedisStateRepository) connCountKey(partyID, userID uint) string {
	return fmt.Sprintf("%sparty:%d:conns:%d", r.keyPrefix, partyID, userID)
}

func (r *RedisStateRepository) partyEventsChannel(partyID uint) string {
	return fmt.Sprintf("%sparty:%d:events", r.keyPrefix, partyID)
}

// --- StateRepository Interface Implementation ---

// PutLocation 覆盖写入最新位置样本（SET ... EX locationTTL）。
// 后写覆盖先写，读侧永远只看到每个成员的最新一条。
func (r *RedisStateRepository) PutLocation(ctx context.Context, loc *domain.LocationSample) error {
	key := r.locationKey(loc.PartyID, loc.UserID)
	payload, err := json.Marshal(loc)
	if err != nil {
		return fmt.Errorf("redis: marshal location sample (party %d, user %d): %w", loc.PartyID, loc.UserID, err)
	}
	if err := r.client.Set(ctx, key, payload, locationTTL).Err(); err != nil {
		return fmt.Errorf("redis: put location for key %s: %w", key, err)
	}
	return nil
}

// GetPartyLocations 用 SCAN + MGET 收集队伍里所有未过期的位置样本。
// 不用 KEYS：它会阻塞整个 Redis 实例，SCAN 分批迭代没有这个问题。
func (r *RedisStateRepository) GetPartyLocations(ctx context.Context, partyID uint) (map[uint]*domain.LocationSample, error) {
	pattern := r.locationKeyPattern(partyID)
	result := make(map[uint]*domain.LocationSample)

	var keys []string
	iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis: scan locations for party %d: %w", partyID, err)
	}
	if len(keys) == 0 {
		return result, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: mget locations for party %d: %w", partyID, err)
	}
	for i, v := range values {
		if v == nil {
			continue // SCAN 和 MGET 之间过期了，跳过
		}
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var loc domain.LocationSample
		if err := json.Unmarshal([]byte(raw), &loc); err != nil {
			logrus.WithField("key", keys[i]).WithError(err).Warn("Skipping corrupt location sample in Redis")
			continue
		}
		result[loc.UserID] = &loc
	}
	return result, nil
}

// ClearPartyState 删除队伍的全部易失键（位置 + 连接计数）。
// 队伍停用后这些键即使漏删也会靠 TTL 自然过期，这里只是加速回收。
func (r *RedisStateRepository) ClearPartyState(ctx context.Context, partyID uint) error {
	patterns := []string{
		r.locationKeyPattern(partyID),
		fmt.Sprintf("%sparty:%d:conns:*", r.keyPrefix, partyID),
	}
	for _, pattern := range patterns {
		iter := r.client.Scan(ctx, 0, pattern, 100).Iterator()
		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("redis: scan party state for party %d (pattern %s): %w", partyID, pattern, err)
		}
		if len(keys) > 0 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("redis: delete party state keys for party %d: %w", partyID, err)
			}
		}
	}
	return nil
}

// IncrConnection 原子递增 (队伍, 用户) 的连接计数并刷新 TTL。
// 计数放在 Redis 而不是进程内存里，多实例部署时上线/下线判定仍然正确。
func (r *RedisStateRepository) IncrConnection(ctx context.Context, partyID, userID uint) (int64, error) {
	key := r.connCountKey(partyID, userID)
	pipe := r.client.Pipeline()
	incrCmd := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, connCountTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("redis: incr connection count on key %s: %w", key, err)
	}
	return incrCmd.Val(), nil
}

// DecrConnection 原子递减连接计数，并把负值钳回 0。
// 负值只会在计数键被 TTL 回收后又有连接断开时出现，钳位避免越减越负。
func (r *RedisStateRepository) DecrConnection(ctx context.Context, partyID, userID uint) (int64, error) {
	key := r.connCountKey(partyID, userID)
	count, err := r.client.Decr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis: decr connection count on key %s: %w", key, err)
	}
	if count < 0 {
		if err := r.client.Set(ctx, key, "0", connCountTTL).Err(); err != nil {
			return 0, fmt.Errorf("redis: clamp connection count on key %s: %w", key, err)
		}
		return 0, nil
	}
	return count, nil
}

// CheckRateLimit 检查给定 key 的请求频率是否超限，并递增计数。
func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, key string, limit int, duration time.Duration) (bool, error) {
	// 使用 Pipeline 减少网络往返
	pipe := r.client.Pipeline()
	incrCmd := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, duration)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("redis: pipeline failed for rate limit check on key %s: %w", key, err)
	}
	count, err := incrCmd.Result()
	if err != nil {
		return false, fmt.Errorf("redis: failed to get incr result for rate limit on key %s: %w", key, err)
	}
	return count > int64(limit), nil
}

// Publish 把已编码的事件信封发到队伍的广播频道。
func (r *RedisStateRepository) Publish(ctx context.Context, partyID uint, payload []byte) error {
	channel := r.partyEventsChannel(partyID)
	if err := r.client.Publish(ctx, channel, payload).Err(); err != nil {
		logrus.WithFields(logrus.Fields{
			"channel":      channel,
			"payload_size": len(payload),
			"party_id":     partyID,
		}).WithError(err).Error("Redis Publish failed")
		return fmt.Errorf("redis: publish to channel %s: %w", channel, err)
	}
	return nil
}

// Subscribe 订阅队伍的广播频道，返回可关闭的订阅句柄。
func (r *RedisStateRepository) Subscribe(ctx context.Context, partyID uint) (repository.BackplaneSubscription, error) {
	channel := r.partyEventsChannel(partyID)
	pubsub := r.client.Subscribe(ctx, channel)
	// Receive 会等到订阅确认，保证返回后 Publish 的消息不会丢
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe to channel %s: %w", channel, err)
	}

	sub := &redisSubscription{
		pubsub: pubsub,
		out:    make(chan []byte, 64),
	}
	go sub.pump()
	return sub, nil
}

// redisSubscription 把 go-redis 的 *redis.Message 通道降解成原始字节通道。
type redisSubscription struct {
	pubsub *redis.PubSub
	out    chan []byte
}

func (s *redisSubscription) pump() {
	defer close(s.out)
	for msg := range s.pubsub.Channel() {
		s.out <- []byte(msg.Payload)
	}
}

func (s *redisSubscription) Messages() <-chan []byte { return s.out }

func (s *redisSubscription) Close() error {
	// Close 会让 pubsub.Channel() 关闭，pump 随之退出并关闭 out
	return s.pubsub.Close()
}
