package eventbridge

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newRedisConnector(t *testing.T) (*miniredis.Miniredis, *RedisConnector) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := NewRedisConnectorFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = c.Close() })
	return mr, c
}

func receive(t *testing.T, sub BusSubscription) (BusMessage, bool) {
	t.Helper()
	select {
	case m, ok := <-sub.Messages():
		return m, ok
	case <-time.After(2 * time.Second):
		t.Fatal("no message from redis subscription")
		return BusMessage{}, false
	}
}

func TestRedisConnectorPatternSubscribe(t *testing.T) {
	_, c := newRedisConnector(t)
	ctx := context.Background()

	conn, err := c.Conn(ctx)
	require.NoError(t, err)
	sub, err := conn.Subscribe(ctx, "bus.extensions.events.*")
	require.NoError(t, err)

	require.NoError(t, c.Publish(ctx, "bus.usage.events.tick", []byte(`{"type":"tick","data":1}`)))
	require.NoError(t, c.Publish(ctx, "bus.extensions.events.created", []byte(`{"type":"extension_created","data":{}}`)))

	m, ok := receive(t, sub)
	require.True(t, ok)
	assert.Equal(t, "bus.extensions.events.created", m.Subject)
	assert.JSONEq(t, `{"type":"extension_created","data":{}}`, string(m.Data))

	require.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())
	for range sub.Messages() {
	}
}

func TestRedisConnectorNotReady(t *testing.T) {
	mr, c := newRedisConnector(t)
	mr.Close()

	_, err := c.Conn(context.Background())
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestRedisSubscriptionEndsWhenServerGoesAway(t *testing.T) {
	mr, c := newRedisConnector(t)
	ctx := context.Background()
	conn, err := c.Conn(ctx)
	require.NoError(t, err)
	sub, err := conn.Subscribe(ctx, "bus.messages.events.*")
	require.NoError(t, err)

	mr.Close()
	_, ok := receive(t, sub)
	assert.False(t, ok)
	_ = sub.Close()
}

func TestEventBridgeOverRedisFollowsOutage(t *testing.T) {
	mr, c := newRedisConnector(t)
	const subject = "bus.policies.events.*"

	b, err := New(Config{Subjects: []string{subject}, RetryDelay: 10 * time.Millisecond}, c, WithLogger(zap.NewNop()))
	require.NoError(t, err)
	sub, err := b.Subscribe("policies:updates", 4)
	require.NoError(t, err)

	b.Start(context.Background())
	defer b.Stop()
	subscribed := func() bool { return b.States()[subject] == StateSubscribed }
	require.Eventually(t, subscribed, 2*time.Second, 5*time.Millisecond)

	mr.Close()
	require.Eventually(t, func() bool {
		return b.States()[subject] == StateSubscriptionPending
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, mr.Restart())
	require.Eventually(t, subscribed, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.Publish(context.Background(), "bus.policies.events.updated", []byte(`{"type":"policy_updated","data":{"id":"p1"}}`)))
	select {
	case ev := <-sub.C:
		assert.Equal(t, "policy_updated", ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no event after the bus came back")
	}
}
