package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"AgentPayroll/internal/config"
)

func TestMemoryPublisherKeepsNewestEvents(t *testing.T) {
	ctx := context.Background()
	pub := NewMemoryPublisher(2)

	for _, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, pub.Publish(ctx, Event{Type: TypePaymentCompleted, RunID: "run", EmployeeID: id}))
	}

	got := pub.Events()
	require.Len(t, got, 2)
	assert.Equal(t, "e2", got[0].EmployeeID)
	assert.Equal(t, "e3", got[1].EmployeeID)

	require.NoError(t, pub.Close())
	assert.Error(t, pub.Publish(ctx, Event{Type: TypeRunCompleted}))
}

func TestMemoryPublisherHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewMemoryPublisher(0).Publish(ctx, Event{}), context.Canceled)
}

func TestEncodeStampsTime(t *testing.T) {
	body, err := encode(Event{Type: TypePaymentFailed, RunID: "run-1", EmployeeID: "e2", Error: "missing to"})
	require.NoError(t, err)

	var decoded Event
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, TypePaymentFailed, decoded.Type)
	assert.WithinDuration(t, time.Now(), decoded.OccurredAt, time.Minute)
}

func TestRabbitMQRoutingKey(t *testing.T) {
	p := &RabbitMQPublisher{}
	assert.Equal(t, "payroll.run.completed", p.RoutingKey(Event{Type: TypeRunCompleted}))

	p.routingKey = "staging"
	assert.Equal(t, "staging.payroll.payment.failed", p.RoutingKey(Event{Type: TypePaymentFailed}))
}

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()

	pub, err := Open(ctx, config.EventsConfig{Driver: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &MemoryPublisher{}, pub)

	pub, err = Open(ctx, config.EventsConfig{Driver: "none"})
	require.NoError(t, err)
	assert.IsType(t, NopPublisher{}, pub)

	_, err = Open(ctx, config.EventsConfig{Driver: "kafka"})
	assert.Error(t, err)

	_, err = Open(ctx, config.EventsConfig{Driver: "rabbitmq"})
	assert.Error(t, err)
}

func TestRedisPublisherRequiresReachableServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisPublisher(ctx, RedisConfig{Address: "127.0.0.1:1"})
	assert.Error(t, err)
}
