package eventbridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/opengovern/backend-bridge/internal/logger"
)

// ErrNotReady is returned by a Connector whose bus connection is not available yet.
var ErrNotReady = errors.New("bus connection not ready")

// SubjectState tracks one subject's subscription.
type SubjectState string

const (
	StateDisconnected        SubjectState = "disconnected"
	StateSubscriptionPending SubjectState = "subscription_pending"
	StateSubscribed          SubjectState = "subscribed"
)

// BusMessage is one raw message from the external bus.
type BusMessage struct {
	Subject string
	Data    []byte
}

// BusSubscription delivers messages for one subject pattern. Messages is closed
// when the subscription ends or its connection is lost.
type BusSubscription interface {
	Messages() <-chan BusMessage
	Close() error
}

// BusConn subscribes to subject patterns with prefix wildcards.
type BusConn interface {
	Subscribe(ctx context.Context, pattern string) (BusSubscription, error)
}

// Connector hands out the bus connection, or an error wrapping ErrNotReady.
type Connector interface {
	Conn(ctx context.Context) (BusConn, error)
}

// Handler processes one message. It runs on the subject's own goroutine, so
// messages of a subject are handled in arrival order.
type Handler func(ctx context.Context, msg BusMessage)

// Subscriber keeps one subscription per configured subject alive. Failures to
// subscribe are logged and retried after RetryDelay; they never stop the process.
type Subscriber struct {
	connector  Connector
	subjects   []string
	handler    Handler
	retryDelay time.Duration
	after      func(time.Duration) <-chan time.Time
	log        *zap.Logger

	mu     sync.Mutex
	states map[string]SubjectState
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSubscriber(connector Connector, subjects []string, handler Handler, retryDelay time.Duration, log *zap.Logger) *Subscriber {
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	if log == nil {
		log = logger.Named("subscriber")
	}
	s := &Subscriber{
		connector:  connector,
		subjects:   append([]string(nil), subjects...),
		handler:    handler,
		retryDelay: retryDelay,
		after:      time.After,
		log:        log,
		states:     make(map[string]SubjectState, len(subjects)),
	}
	for _, subj := range subjects {
		s.states[subj] = StateDisconnected
	}
	return s
}

// Start launches one loop per subject and returns immediately.
func (s *Subscriber) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	for _, subject := range s.subjects {
		s.wg.Add(1)
		go func(subject string) {
			defer s.wg.Done()
			s.run(ctx, subject)
		}(subject)
	}
}

// Stop ends every loop and waits for them to exit.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// States returns a snapshot of every subject's state.
func (s *Subscriber) States() map[string]SubjectState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]SubjectState, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out
}

func (s *Subscriber) setState(subject string, st SubjectState) {
	s.mu.Lock()
	s.states[subject] = st
	s.mu.Unlock()
}

func (s *Subscriber) run(ctx context.Context, subject string) {
	defer s.setState(subject, StateDisconnected)
	log := s.log.With(logger.Subject(subject))

	for {
		s.setState(subject, StateSubscriptionPending)

		sub, err := s.subscribe(ctx, subject)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("bus subscription failed, retrying", logger.Err(err), logger.Duration(s.retryDelay))
			if !s.wait(ctx) {
				return
			}
			continue
		}

		s.setState(subject, StateSubscribed)
		log.Info("subscribed to bus subject")

		lost := s.consume(ctx, subject, sub)
		if err := sub.Close(); err != nil {
			log.Debug("closing bus subscription", logger.Err(err))
		}
		if !lost {
			return
		}
		log.Warn("bus subscription lost, resubscribing", logger.Duration(s.retryDelay))
		s.setState(subject, StateSubscriptionPending)
		if !s.wait(ctx) {
			return
		}
	}
}

func (s *Subscriber) subscribe(ctx context.Context, subject string) (BusSubscription, error) {
	conn, err := s.connector.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, ErrNotReady
	}
	sub, err := conn.Subscribe(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}

// consume reports true when the subscription ended on its own (connection lost).
func (s *Subscriber) consume(ctx context.Context, subject string, sub BusSubscription) bool {
	msgs := sub.Messages()
	for {
		select {
		case <-ctx.Done():
			return false
		case msg, ok := <-msgs:
			if !ok {
				return true
			}
			s.dispatch(ctx, subject, msg)
		}
	}
}

func (s *Subscriber) dispatch(ctx context.Context, subject string, msg BusMessage) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("bus message handler panicked",
				logger.Subject(subject), logger.Bytes(len(msg.Data)), zap.Any("panic", r))
		}
	}()
	s.handler(ctx, msg)
}

func (s *Subscriber) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.after(s.retryDelay):
		return true
	}
}
