// Package events publishes payroll lifecycle events (one per payment plus a
// run summary) to an in-memory sink, RabbitMQ or Redis. Publishing never
// decides the outcome of a run.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Type 是事件类型。
type Type string

const (
	TypePaymentCompleted Type = "payroll.payment.completed"
	TypePaymentFailed    Type = "payroll.payment.failed"
	TypeRunCompleted     Type = "payroll.run.completed"
)

// Event 描述一次发薪过程中的事件。
type Event struct {
	Type       Type      `json:"type"`
	RunID      string    `json:"runId"`
	EmployeeID string    `json:"employeeId,omitempty"`
	Status     string    `json:"status,omitempty"`
	PaymentID  string    `json:"paymentId,omitempty"`
	Amount     string    `json:"amount,omitempty"`
	Currency   string    `json:"currency,omitempty"`
	Simulated  bool      `json:"simulated"`
	Error      string    `json:"error,omitempty"`
	Total      int       `json:"total,omitempty"`
	Failed     int       `json:"failed,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Publisher 投递事件。实现必须支持并发调用。
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NopPublisher 丢弃所有事件。
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
func (NopPublisher) Close() error                         { return nil }

func encode(event Event) ([]byte, error) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	return json.Marshal(event)
}
