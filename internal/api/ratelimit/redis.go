package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis 使用固定窗口计数，多个 payrolld 副本共享同一份额度。
type Redis struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
	owned  bool
	now    func() time.Time
}

// NewRedis 复用已有客户端创建限流器，Close 不会关闭它。
func NewRedis(client redis.UniversalClient, prefix string, limit int, window time.Duration) *Redis {
	if prefix == "" {
		prefix = "payroll:ratelimit"
	}
	if limit <= 0 {
		limit = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Redis{client: client, prefix: prefix, limit: limit, window: window, now: time.Now}
}

// Allow 为当前窗口计数加一并判断是否超限。
func (l *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	now := l.now()
	bucket := now.UnixNano() / int64(l.window)
	windowKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, bucket)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, 2*l.window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{}, fmt.Errorf("Redis 限流计数失败: %w", err)
	}

	count := int(incr.Val())
	resetAt := time.Unix(0, (bucket+1)*int64(l.window))
	d := Decision{Limit: l.limit, Remaining: max(l.limit-count, 0)}
	if count > l.limit {
		d.RetryAfter = resetAt.Sub(now)
		return d, nil
	}
	d.Allowed = true
	return d, nil
}

// Close 关闭自己创建的连接。
func (l *Redis) Close() error {
	if !l.owned {
		return nil
	}
	return l.client.Close()
}
