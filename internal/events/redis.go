package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisConfig 描述 Redis 事件列表的连接参数。
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Key      string
	// MaxLen 限制列表长度，<=0 表示不裁剪。
	MaxLen int64
}

// RedisPublisher 使用 Redis list 保存事件，消费者可通过 BRPOP 读取。
type RedisPublisher struct {
	client redis.UniversalClient
	key    string
	maxLen int64
	owned  bool
}

// NewRedisPublisher 创建 Redis 发布器并检查连接。
func NewRedisPublisher(ctx context.Context, cfg RedisConfig) (*RedisPublisher, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	p := NewRedisPublisherWithClient(client, cfg.Key, cfg.MaxLen)
	p.owned = true
	return p, nil
}

// NewRedisPublisherWithClient 复用已有的 Redis 客户端，Close 不会关闭它。
func NewRedisPublisherWithClient(client redis.UniversalClient, key string, maxLen int64) *RedisPublisher {
	if key == "" {
		key = "payroll:events"
	}
	return &RedisPublisher{client: client, key: key, maxLen: maxLen}
}

// Publish 将事件写入列表头部。
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	body, err := encode(event)
	if err != nil {
		return fmt.Errorf("编码事件失败: %w", err)
	}
	pipe := p.client.TxPipeline()
	pipe.LPush(ctx, p.key, body)
	if p.maxLen > 0 {
		pipe.LTrim(ctx, p.key, 0, p.maxLen-1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("Redis 发布事件失败: %w", err)
	}
	return nil
}

// Close 关闭自己创建的 Redis 连接。
func (p *RedisPublisher) Close() error {
	if p == nil || !p.owned {
		return nil
	}
	return p.client.Close()
}
