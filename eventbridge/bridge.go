// Package eventbridge republishes external bus events on an in-process pub/sub bus.
//
// Each inbound message is mapped from its subject to a local topic, decoded, and
// broadcast to the render loops subscribed to that topic. Undecodable messages are
// logged and dropped; they never stop the subscription.
package eventbridge

import (
	"context"
	"time"

	"go.uber.org/zap"

	backendbridge "github.com/opengovern/backend-bridge"
	"github.com/opengovern/backend-bridge/internal/logger"
)

type Config struct {
	Subjects   []string
	RetryDelay time.Duration
	Rules      []Rule // DefaultRules when empty
}

type EventBridge struct {
	mapper      *TopicMapper
	broadcaster *Broadcaster
	subscriber  *Subscriber
	instr       backendbridge.Instrumenter
	log         *zap.Logger
	now         func() time.Time
}

type Option func(*EventBridge)

func WithInstrumenter(i backendbridge.Instrumenter) Option {
	return func(b *EventBridge) { b.instr = i }
}

func WithLogger(l *zap.Logger) Option {
	return func(b *EventBridge) { b.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(b *EventBridge) { b.now = now }
}

// WithBroadcaster shares an existing local bus instead of creating one.
func WithBroadcaster(bc *Broadcaster) Option {
	return func(b *EventBridge) { b.broadcaster = bc }
}

func New(cfg Config, connector Connector, opts ...Option) (*EventBridge, error) {
	rules := cfg.Rules
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	mapper, err := NewTopicMapper(rules)
	if err != nil {
		return nil, err
	}
	subjects := cfg.Subjects
	if len(subjects) == 0 {
		subjects = backendbridge.DefaultSubjects
	}

	b := &EventBridge{
		mapper: mapper,
		instr:  backendbridge.NopInstrumenter{},
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = logger.Named("eventbridge")
	}
	if b.broadcaster == nil {
		b.broadcaster = NewBroadcaster(b.log.Named("broadcaster"))
	}
	b.subscriber = NewSubscriber(connector, subjects, b.HandleMessage, cfg.RetryDelay, b.log.Named("subscriber"))
	return b, nil
}

// FromConfig adapts the bus section of the bridge configuration, loading topic
// rules from RulesFile when set.
func FromConfig(bc backendbridge.BusConfig) (Config, error) {
	cfg := Config{Subjects: bc.Subjects, RetryDelay: bc.RetryDelay}
	if bc.RulesFile != "" {
		rules, err := LoadRules(bc.RulesFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Rules = rules
	}
	return cfg, nil
}

// Start subscribes in the background; it does not wait for the bus.
func (b *EventBridge) Start(ctx context.Context) { b.subscriber.Start(ctx) }

// Stop ends the subscriptions and closes every local subscription.
func (b *EventBridge) Stop() {
	b.subscriber.Stop()
	_ = b.broadcaster.Close()
}

// Subscribe is a shortcut for Broadcaster().Subscribe.
func (b *EventBridge) Subscribe(topic string, buffer int) (*Subscription, error) {
	return b.broadcaster.Subscribe(topic, buffer)
}

func (b *EventBridge) Broadcaster() *Broadcaster { return b.broadcaster }

func (b *EventBridge) Mapper() *TopicMapper { return b.mapper }

func (b *EventBridge) States() map[string]SubjectState { return b.subscriber.States() }

// HandleMessage maps, decodes and broadcasts one bus message.
func (b *EventBridge) HandleMessage(_ context.Context, msg BusMessage) {
	start := b.now()
	topic := b.mapper.Map(msg.Subject)
	ev := backendbridge.MessageEvent{
		Subject: msg.Subject,
		Topic:   topic,
		Size:    len(msg.Data),
	}

	payload, typ, err := Decode(msg.Data)
	if err != nil {
		b.log.Warn("dropping undecodable bus message",
			logger.Subject(msg.Subject), logger.Bytes(len(msg.Data)), logger.Err(err))
		ev.Outcome = backendbridge.OutcomeError
		ev.Err = err
		ev.Duration = b.now().Sub(start)
		b.instr.MessageProcessed(ev)
		return
	}

	b.broadcaster.Publish(Event{
		Topic:      topic,
		Type:       typ,
		Payload:    payload,
		Subject:    msg.Subject,
		ReceivedAt: start,
	})

	ev.EventType = typ
	ev.Outcome = backendbridge.OutcomeOK
	ev.Duration = b.now().Sub(start)
	b.instr.MessageProcessed(ev)
}
