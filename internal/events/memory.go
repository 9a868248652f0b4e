package events

import (
	"context"
	"errors"
	"sync"
)

// MemoryPublisher 把事件保存在内存中，主要用于测试与单机运行。
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
	limit  int
	closed bool
}

// NewMemoryPublisher 创建内存事件存储，limit 为保留的最大事件数，<=0 时使用 1024。
func NewMemoryPublisher(limit int) *MemoryPublisher {
	if limit <= 0 {
		limit = 1024
	}
	return &MemoryPublisher{limit: limit}
}

// Publish 记录事件，超出容量时丢弃最旧的事件。
func (p *MemoryPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("事件发布器已关闭")
	}
	p.events = append(p.events, event)
	if over := len(p.events) - p.limit; over > 0 {
		p.events = append([]Event(nil), p.events[over:]...)
	}
	return nil
}

// Events 返回已记录事件的副本。
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

// Close 关闭发布器。
func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}
