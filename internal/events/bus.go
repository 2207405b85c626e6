package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AllTopics is the topic recorded on SubscribeAll subscriptions.
const AllTopics = "*"

// Default values applied by NewBus.
const (
	DefaultRequestTimeout = 5 * time.Second
	DefaultHistoryLimit   = 1000
)

// Handler receives delivered messages. Handlers run on the subscription's own
// goroutine, one message at a time.
type Handler func(Message)

// Options configures a Bus.
type Options struct {
	// HistoryLimit bounds retained history. Zero keeps DefaultHistoryLimit,
	// negative keeps everything.
	HistoryLimit   int
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.HistoryLimit == 0 {
		o.HistoryLimit = DefaultHistoryLimit
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Subscription is one (worker, topic, handler) binding with its own mailbox.
type Subscription struct {
	WorkerID string
	Topic    string

	bus     *Bus
	id      uint64
	handler Handler
	box     *mailbox
}

// Unsubscribe removes this subscription. Messages still queued for it are
// discarded.
func (s *Subscription) Unsubscribe() {
	s.bus.remove(s)
}

// Bus is an in-process topic based publish/subscribe hub.
//
// Every subscription owns an unbounded FIFO mailbox drained by its own
// goroutine, so Publish never blocks on handlers and never drops messages.
// Messages published with a Target are only enqueued for subscriptions whose
// WorkerID equals the target. SubscribeAll subscriptions see every message.
type Bus struct {
	mu      sync.Mutex
	subs    map[string][]*Subscription
	all     []*Subscription
	history []Message
	closed  bool
	nextID  uint64

	pending atomic.Int64

	historyLimit   int
	requestTimeout time.Duration
	logger         *zap.Logger
}

// NewBus creates a new bus.
func NewBus(opts Options) *Bus {
	opts = opts.withDefaults()
	return &Bus{
		subs:           make(map[string][]*Subscription),
		historyLimit:   opts.HistoryLimit,
		requestTimeout: opts.RequestTimeout,
		logger:         opts.Logger.Named("bus"),
	}
}

// Publish appends a message to history and enqueues it for every matching
// subscription. Publishing with no subscribers is a no-op beyond history.
// After Close the message is returned but neither recorded nor delivered.
func (b *Bus) Publish(source, topic string, payload Payload, opts ...PublishOption) Message {
	msg := Message{
		ID:        uuid.NewString(),
		Topic:     topic,
		Source:    source,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	for _, opt := range opts {
		opt(&msg)
	}

	if payload != nil && payload.PayloadType() != topic {
		b.logger.Warn("payload does not match topic",
			zap.String("topic", topic),
			zap.String("payload", payload.PayloadType()))
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return msg
	}

	b.history = append(b.history, msg)
	if b.historyLimit > 0 && len(b.history) > b.historyLimit {
		trimmed := make([]Message, b.historyLimit)
		copy(trimmed, b.history[len(b.history)-b.historyLimit:])
		b.history = trimmed
	}

	for _, s := range b.subs[topic] {
		if msg.Target != "" && msg.Target != s.WorkerID {
			continue
		}
		b.enqueue(s, msg)
	}
	for _, s := range b.all {
		b.enqueue(s, msg)
	}
	return msg
}

func (b *Bus) enqueue(s *Subscription, msg Message) {
	b.pending.Add(1)
	if !s.box.push(msg) {
		b.pending.Add(-1)
	}
}

// Subscribe registers handler for topic on behalf of workerID. Duplicate
// subscriptions are allowed and each fires.
func (b *Bus) Subscribe(workerID, topic string, handler Handler) *Subscription {
	return b.add(workerID, topic, handler)
}

// SubscribeAll registers handler for every topic, including messages targeted
// at other workers.
func (b *Bus) SubscribeAll(workerID string, handler Handler) *Subscription {
	return b.add(workerID, AllTopics, handler)
}

func (b *Bus) add(workerID, topic string, handler Handler) *Subscription {
	s := &Subscription{
		WorkerID: workerID,
		Topic:    topic,
		bus:      b,
		handler:  handler,
		box:      newMailbox(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		s.box.stop()
		return s
	}

	b.nextID++
	s.id = b.nextID
	if topic == AllTopics {
		b.all = append(b.all, s)
	} else {
		b.subs[topic] = append(b.subs[topic], s)
	}
	go s.box.run(func(msg Message) { b.dispatch(s, msg) })
	return s
}

func (b *Bus) dispatch(s *Subscription, msg Message) {
	defer b.pending.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("subscriber panicked",
				zap.String("subscriber", s.WorkerID),
				zap.String("topic", msg.Topic),
				zap.Any("panic", r))
		}
	}()
	s.handler(msg)
}

// Unsubscribe removes every subscription workerID holds on topic and returns
// how many were removed.
func (b *Bus) Unsubscribe(workerID, topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	var list []*Subscription
	if topic == AllTopics {
		list = b.all
	} else {
		list = b.subs[topic]
	}

	kept := list[:0]
	removed := 0
	for _, s := range list {
		if s.WorkerID == workerID {
			b.stopLocked(s)
			removed++
			continue
		}
		kept = append(kept, s)
	}
	b.setLocked(topic, kept)
	return removed
}

// UnsubscribeWorker removes every subscription held by workerID.
func (b *Bus) UnsubscribeWorker(workerID string) int {
	b.mu.Lock()
	topics := make([]string, 0, len(b.subs)+1)
	for topic := range b.subs {
		topics = append(topics, topic)
	}
	b.mu.Unlock()

	removed := b.Unsubscribe(workerID, AllTopics)
	for _, topic := range topics {
		removed += b.Unsubscribe(workerID, topic)
	}
	return removed
}

func (b *Bus) remove(target *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var list []*Subscription
	if target.Topic == AllTopics {
		list = b.all
	} else {
		list = b.subs[target.Topic]
	}

	for i, s := range list {
		if s == target {
			b.stopLocked(s)
			kept := append(list[:i:i], list[i+1:]...)
			b.setLocked(target.Topic, kept)
			return
		}
	}
}

func (b *Bus) setLocked(topic string, list []*Subscription) {
	switch {
	case topic == AllTopics:
		b.all = list
	case len(list) == 0:
		delete(b.subs, topic)
	default:
		b.subs[topic] = list
	}
}

func (b *Bus) stopLocked(s *Subscription) {
	if dropped := s.box.stop(); dropped > 0 {
		b.pending.Add(int64(-dropped))
	}
}

// SubscriberCount returns the number of subscriptions on topic.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if topic == AllTopics {
		return len(b.all)
	}
	return len(b.subs[topic])
}

// History returns up to limit of the most recent messages, oldest first.
// A limit <= 0 returns the whole retained history.
func (b *Bus) History(limit int) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := 0
	if limit > 0 && len(b.history) > limit {
		start = len(b.history) - limit
	}
	out := make([]Message, len(b.history)-start)
	copy(out, b.history[start:])
	return out
}

// RequestTimeout returns the default timeout used by Request.
func (b *Bus) RequestTimeout() time.Duration {
	return b.requestTimeout
}

// WaitIdle blocks until no message is queued or being handled.
func (b *Bus) WaitIdle(ctx context.Context) error {
	ticker := time.NewTicker(2 * time.Millisecond)
	defer ticker.Stop()
	for {
		if b.pending.Load() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Reset removes all subscriptions and clears history.
func (b *Bus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

func (b *Bus) resetLocked() {
	for _, list := range b.subs {
		for _, s := range list {
			b.stopLocked(s)
		}
	}
	for _, s := range b.all {
		b.stopLocked(s)
	}
	b.subs = make(map[string][]*Subscription)
	b.all = nil
	b.history = nil
}

// Close stops every subscription. Safe to call multiple times.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.resetLocked()
	b.closed = true
}
