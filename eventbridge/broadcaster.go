package eventbridge

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/opengovern/backend-bridge/internal/logger"
)

var (
	ErrBroadcasterClosed = errors.New("broadcaster is closed")
	ErrEmptyTopic        = errors.New("topic must not be empty")
)

// DefaultBuffer is the channel capacity of a subscription when none is given.
const DefaultBuffer = 16

// Broadcaster is the in-process pub/sub bus render loops subscribe to.
//
// Publish never blocks: an event is delivered at most once to each current
// subscriber of its topic and dropped for subscribers whose buffer is full.
// There is no replay and nothing is persisted.
type Broadcaster struct {
	mu     sync.RWMutex
	topics map[string]map[string]*Subscription
	closed bool

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64

	log *zap.Logger
}

// Subscription receives events for one topic on C until Unsubscribe or Close.
type Subscription struct {
	ID    string
	Topic string
	C     <-chan Event

	ch      chan Event
	b       *Broadcaster
	dropped atomic.Uint64
}

// Unsubscribe stops delivery and closes C. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.b.remove(s)
}

// Dropped counts events this subscriber missed because its buffer was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Stats is a snapshot of broadcaster counters.
type Stats struct {
	Published   uint64
	Delivered   uint64
	Dropped     uint64
	Subscribers map[string]int // per topic
}

func NewBroadcaster(log *zap.Logger) *Broadcaster {
	if log == nil {
		log = logger.Named("broadcaster")
	}
	return &Broadcaster{
		topics: make(map[string]map[string]*Subscription),
		log:    log,
	}
}

// Subscribe registers a new subscriber on topic with the given channel buffer.
func (b *Broadcaster) Subscribe(topic string, buffer int) (*Subscription, error) {
	if topic == "" {
		return nil, ErrEmptyTopic
	}
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan Event, buffer)
	s := &Subscription{ID: uuid.NewString(), Topic: topic, C: ch, ch: ch, b: b}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBroadcasterClosed
	}
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[string]*Subscription)
		b.topics[topic] = subs
	}
	subs[s.ID] = s
	return s, nil
}

func (b *Broadcaster) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.topics[s.Topic]
	if !ok {
		return
	}
	if _, ok := subs[s.ID]; !ok {
		return
	}
	delete(subs, s.ID)
	if len(subs) == 0 {
		delete(b.topics, s.Topic)
	}
	close(s.ch)
}

// Publish delivers e to every subscriber of e.Topic and returns how many received it.
func (b *Broadcaster) Publish(e Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0
	}
	b.published.Add(1)

	n := 0
	for _, s := range b.topics[e.Topic] {
		select {
		case s.ch <- e:
			n++
		default:
			s.dropped.Add(1)
			b.dropped.Add(1)
			b.log.Debug("subscriber buffer full, event dropped",
				logger.Topic(e.Topic), zap.String("subscriber", s.ID))
		}
	}
	b.delivered.Add(uint64(n))
	return n
}

func (b *Broadcaster) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st := Stats{
		Published:   b.published.Load(),
		Delivered:   b.delivered.Load(),
		Dropped:     b.dropped.Load(),
		Subscribers: make(map[string]int, len(b.topics)),
	}
	for topic, subs := range b.topics {
		st.Subscribers[topic] = len(subs)
	}
	return st
}

// Close closes every subscription. Later Publish calls are no-ops and
// Subscribe returns ErrBroadcasterClosed.
func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for topic, subs := range b.topics {
		for _, s := range subs {
			close(s.ch)
		}
		delete(b.topics, topic)
	}
	return nil
}
