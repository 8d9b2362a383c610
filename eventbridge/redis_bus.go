package eventbridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConnector uses Redis pub/sub as the external bus. Subject patterns are
// PSUBSCRIBE globs, so "bus.extensions.events.*" matches every extension event.
type RedisConnector struct {
	client       *redis.Client
	pingInterval time.Duration
}

// DefaultPingInterval is how long a subscription may stay silent before it is
// pinged; a ping unanswered for another interval counts as a lost connection.
const DefaultPingInterval = 30 * time.Second

var (
	_ Connector = (*RedisConnector)(nil)
	_ BusConn   = (*RedisConnector)(nil)
)

// NewRedisConnector parses a redis:// URL. No connection is made until Conn.
func NewRedisConnector(url string) (*RedisConnector, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse bus url: %w", err)
	}
	return NewRedisConnectorFromClient(redis.NewClient(opts)), nil
}

// NewRedisConnectorFromClient wraps an existing client; Close closes it.
func NewRedisConnectorFromClient(c *redis.Client) *RedisConnector {
	return &RedisConnector{client: c, pingInterval: DefaultPingInterval}
}

// Conn pings Redis and reports ErrNotReady while it is unreachable.
func (r *RedisConnector) Conn(ctx context.Context) (BusConn, error) {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	return r, nil
}

func (r *RedisConnector) Subscribe(ctx context.Context, pattern string) (BusSubscription, error) {
	ps := r.client.PSubscribe(ctx, pattern)
	// Wait for the subscription confirmation so failures surface here.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	pctx, cancel := context.WithCancel(context.Background())
	rs := &redisSubscription{
		ps:     ps,
		out:    make(chan BusMessage, 64),
		ctx:    pctx,
		cancel: cancel,
		ping:   r.pingInterval,
	}
	go rs.pump()
	return rs, nil
}

// Publish sends a payload on subject. Used by tooling to inject test events.
func (r *RedisConnector) Publish(ctx context.Context, subject string, payload []byte) error {
	return r.client.Publish(ctx, subject, payload).Err()
}

func (r *RedisConnector) Close() error {
	return r.client.Close()
}

type redisSubscription struct {
	ps     *redis.PubSub
	out    chan BusMessage
	ctx    context.Context
	cancel context.CancelFunc
	ping   time.Duration
	once   sync.Once
}

// pump forwards messages until Close or until the connection is lost, closing
// out either way. PubSub.Channel would reconnect silently, so pump reads itself:
// a read error or a ping left unanswered for a whole interval ends the subscription.
func (s *redisSubscription) pump() {
	defer close(s.out)

	awaitingPong := false
	for {
		msg, err := s.ps.ReceiveTimeout(s.ctx, s.ping)
		if err != nil {
			if s.ctx.Err() != nil || !isTimeout(err) || awaitingPong {
				return
			}
			if err := s.ps.Ping(s.ctx); err != nil {
				return
			}
			awaitingPong = true
			continue
		}

		switch m := msg.(type) {
		case *redis.Pong:
			awaitingPong = false
		case *redis.Message:
			awaitingPong = false
			select {
			case s.out <- BusMessage{Subject: m.Channel, Data: []byte(m.Payload)}:
			case <-s.ctx.Done():
				return
			}
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (s *redisSubscription) Messages() <-chan BusMessage { return s.out }

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.ps.Close()
	})
	return err
}
