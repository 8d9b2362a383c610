package eventbridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const pattern = "bus.extensions.events.*"

type collected struct {
	mu   sync.Mutex
	msgs []BusMessage
}

func (c *collected) handle(_ context.Context, m BusMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, m)
}

func (c *collected) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func TestSubscriberRetriesUntilBusReady(t *testing.T) {
	bus := newFakeBus(false)
	c := &collected{}
	s := NewSubscriber(bus, []string{pattern}, c.handle, 250*time.Millisecond, zap.NewNop())

	retry := make(chan time.Time)
	waits := make(chan time.Duration, 8)
	s.after = func(d time.Duration) <-chan time.Time {
		waits <- d
		return retry
	}

	assert.Equal(t, StateDisconnected, s.States()[pattern])
	s.Start(context.Background())
	defer s.Stop()

	// First attempt fails; the loop parks on the retry timer.
	assert.Equal(t, 250*time.Millisecond, <-waits)
	assert.Equal(t, StateSubscriptionPending, s.States()[pattern])
	assert.Equal(t, 0, bus.subscriptions(pattern))

	// Still not ready: one more failed attempt per tick.
	retry <- time.Now()
	assert.Equal(t, 250*time.Millisecond, <-waits)
	assert.Equal(t, StateSubscriptionPending, s.States()[pattern])

	bus.setReady(true)
	retry <- time.Now()
	require.Eventually(t, func() bool { return s.States()[pattern] == StateSubscribed }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, bus.subscriptions(pattern))

	require.True(t, bus.send(pattern, "bus.extensions.events.created", `{"type":"x","data":{}}`))
	require.Eventually(t, func() bool { return c.len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSubscriberResubscribesAfterLoss(t *testing.T) {
	bus := newFakeBus(true)
	c := &collected{}
	s := NewSubscriber(bus, []string{pattern}, c.handle, 5*time.Millisecond, zap.NewNop())
	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool { return s.States()[pattern] == StateSubscribed }, time.Second, 5*time.Millisecond)
	bus.drop(pattern)

	require.Eventually(t, func() bool {
		return bus.subscriptions(pattern) == 2 && s.States()[pattern] == StateSubscribed
	}, time.Second, 5*time.Millisecond)

	require.True(t, bus.send(pattern, "bus.extensions.events.updated", `{}`))
	require.Eventually(t, func() bool { return c.len() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSubscriberSurvivesHandlerPanic(t *testing.T) {
	bus := newFakeBus(true)
	c := &collected{}
	first := true
	handler := func(ctx context.Context, m BusMessage) {
		if first {
			first = false
			panic("bad handler")
		}
		c.handle(ctx, m)
	}
	s := NewSubscriber(bus, []string{pattern}, handler, 5*time.Millisecond, zap.NewNop())
	s.Start(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool { return s.States()[pattern] == StateSubscribed }, time.Second, 5*time.Millisecond)
	bus.send(pattern, "bus.extensions.events.a", `{}`)
	bus.send(pattern, "bus.extensions.events.b", `{}`)

	require.Eventually(t, func() bool { return c.len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "bus.extensions.events.b", c.msgs[0].Subject)
}

func TestSubscriberStop(t *testing.T) {
	bus := newFakeBus(true)
	s := NewSubscriber(bus, []string{pattern, "bus.usage.events.*"}, func(context.Context, BusMessage) {}, time.Millisecond, zap.NewNop())
	s.Start(context.Background())
	require.Eventually(t, func() bool {
		st := s.States()
		return st[pattern] == StateSubscribed && st["bus.usage.events.*"] == StateSubscribed
	}, time.Second, 5*time.Millisecond)

	s.Stop()
	for _, st := range s.States() {
		assert.Equal(t, StateDisconnected, st)
	}
}
