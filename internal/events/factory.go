package events

import (
	"context"
	"fmt"

	"AgentPayroll/internal/config"
)

// Open 根据配置创建事件发布器。
func Open(ctx context.Context, cfg config.EventsConfig) (Publisher, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryPublisher(0), nil
	case "none":
		return NopPublisher{}, nil
	case "rabbitmq":
		return NewRabbitMQPublisher(RabbitMQConfig{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
		})
	case "redis":
		return NewRedisPublisher(ctx, RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Key:      cfg.Redis.Key,
			MaxLen:   cfg.Redis.MaxLen,
		})
	default:
		return nil, fmt.Errorf("不支持的事件驱动: %s", cfg.Driver)
	}
}
