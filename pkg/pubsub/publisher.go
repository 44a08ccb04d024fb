// Package pubsub provides the listener registry shared by the chart sync stores.
//
// A Publisher delivers values of one type to a set of listeners. Listeners are
// held by subscription id, so unsubscribing is O(1) and delivery order is the
// order of registration.
//
//	pub := pubsub.New[State]("hover", pubsub.Distinct())
//	sub := pub.Subscribe(func(s State) { render(s) })
//	defer sub.Unsubscribe()
//
//	pub.Publish(next)
package pubsub

import (
	"bytes"
	"encoding/json"
	"slices"
	"sync"
)

// Observer receives delivery statistics from a Publisher.
// Implementations must be safe for concurrent use.
type Observer interface {
	// Published is called after a value was delivered to subscribers.
	Published(topic string, subscribers int)

	// Suppressed is called when a Distinct publisher skipped an unchanged value.
	Suppressed(topic string)
}

// Option configures a Publisher.
type Option func(*config)

type config struct {
	distinct bool
	observer Observer
}

// Distinct makes Publish skip values whose JSON encoding equals the last
// value delivered.
func Distinct() Option {
	return func(c *config) {
		c.distinct = true
	}
}

// WithObserver attaches an Observer to the publisher.
func WithObserver(o Observer) Option {
	return func(c *config) {
		c.observer = o
	}
}

// Publisher is a typed fan-out of values to subscribed listeners.
// It is safe for concurrent use. Listeners run on a publishing goroutine
// after internal locks are released, so a listener may call back into the
// publisher or the store that owns it.
//
// Values are delivered in the order they were enqueued. When several
// goroutines publish at once, one of them drains the queue for all; a value
// published from inside a listener is delivered after that listener's round.
type Publisher[T any] struct {
	topic  string
	config config

	mu       sync.Mutex
	nextID   uint64
	subs     map[uint64]func(T)
	last     []byte
	sent     bool
	queue    []T
	draining bool
}

// New creates a publisher for the given topic. The topic is only used for
// observer reporting.
func New[T any](topic string, opts ...Option) *Publisher[T] {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Publisher[T]{
		topic:  topic,
		config: cfg,
		subs:   make(map[uint64]func(T)),
	}
}

// Topic returns the topic name.
func (p *Publisher[T]) Topic() string {
	return p.topic
}

// Subscribe registers fn and returns its handle. A nil fn is ignored and
// yields an inert subscription.
func (p *Publisher[T]) Subscribe(fn func(T)) *Subscription {
	if fn == nil {
		return &Subscription{}
	}

	p.mu.Lock()
	p.nextID++
	id := p.nextID
	p.subs[id] = fn
	p.mu.Unlock()

	return &Subscription{id: id, cancel: func() { p.remove(id) }}
}

func (p *Publisher[T]) remove(id uint64) {
	p.mu.Lock()
	delete(p.subs, id)
	p.mu.Unlock()
}

// Len returns the number of live subscriptions.
func (p *Publisher[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Publish enqueues v and drains the queue. It reports whether v was
// accepted: a Distinct publisher returns false when v encodes the same as
// the previously accepted value.
func (p *Publisher[T]) Publish(v T) bool {
	ok := p.Enqueue(v)
	p.Drain()
	return ok
}

// Enqueue accepts v for delivery without running any listener. A store calls
// it while holding its own lock, so queue order matches snapshot order, and
// calls Drain once the lock is released.
func (p *Publisher[T]) Enqueue(v T) bool {
	p.mu.Lock()
	if p.config.distinct {
		encoded, err := json.Marshal(v)
		if err == nil && p.sent && bytes.Equal(encoded, p.last) {
			p.mu.Unlock()
			if p.config.observer != nil {
				p.config.observer.Suppressed(p.topic)
			}
			return false
		}
		// Unencodable values are always delivered.
		p.last = encoded
		p.sent = err == nil
	}
	p.queue = append(p.queue, v)
	p.mu.Unlock()
	return true
}

// Drain delivers queued values to every subscriber in registration order.
// It returns at once if another goroutine is already draining; that
// goroutine delivers the queued values.
func (p *Publisher[T]) Drain() {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return
	}
	p.draining = true

	finished := false
	defer func() {
		if !finished {
			p.mu.Lock()
			p.draining = false
			p.mu.Unlock()
		}
	}()

	for len(p.queue) > 0 {
		v := p.queue[0]
		var zero T
		p.queue[0] = zero
		p.queue = p.queue[1:]
		fns := p.listenersLocked()
		p.mu.Unlock()

		for _, fn := range fns {
			fn(v)
		}
		if p.config.observer != nil {
			p.config.observer.Published(p.topic, len(fns))
		}

		p.mu.Lock()
	}
	p.queue = nil
	p.draining = false
	finished = true
	p.mu.Unlock()
}

// listenersLocked must be called with p.mu held.
func (p *Publisher[T]) listenersLocked() []func(T) {
	ids := make([]uint64, 0, len(p.subs))
	for id := range p.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(T), len(ids))
	for i, id := range ids {
		fns[i] = p.subs[id]
	}
	return fns
}

// Forget drops the memory of the last accepted value, so the next Publish
// on a Distinct publisher is always delivered.
func (p *Publisher[T]) Forget() {
	p.mu.Lock()
	p.last = nil
	p.sent = false
	p.mu.Unlock()
}

// Close removes every subscription and discards undelivered values.
func (p *Publisher[T]) Close() {
	p.mu.Lock()
	clear(p.subs)
	p.queue = nil
	p.last = nil
	p.sent = false
	p.mu.Unlock()
}

// Subscription is a handle to a registered listener.
type Subscription struct {
	id     uint64
	once   sync.Once
	cancel func()
}

// ID returns the subscription id. Ids are unique per publisher and increase
// with registration order. An inert subscription has id 0.
func (s *Subscription) ID() uint64 {
	return s.id
}

// Unsubscribe removes the listener. It is safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}
