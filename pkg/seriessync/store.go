package seriessync

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/vango-dev/chartsync/pkg/pubsub"
)

// State is the shared interaction state of one channel.
type State struct {
	ActiveIndex   *int    `json:"activeIndex"`
	ActivePayload any     `json:"activePayload"`
	ActiveLabel   *string `json:"activeLabel"`
	IsHovering    bool    `json:"isHovering"`
}

// Initial returns the empty channel state.
func Initial() State {
	return State{}
}

func (s State) clone() State {
	out := State{ActivePayload: s.ActivePayload, IsHovering: s.IsHovering}
	if s.ActiveIndex != nil {
		i := *s.ActiveIndex
		out.ActiveIndex = &i
	}
	if s.ActiveLabel != nil {
		l := *s.ActiveLabel
		out.ActiveLabel = &l
	}
	return out
}

// Channel is one synchronization group.
type Channel struct {
	key   string
	state State
	pub   *pubsub.Publisher[State]
}

// Key returns the channel key.
func (c *Channel) Key() string {
	return c.key
}

// Subscribers returns the number of live subscriptions on the channel.
func (c *Channel) Subscribers() int {
	return c.pub.Len()
}

// Option configures a Store.
type Option func(*config)

type config struct {
	logger   *slog.Logger
	observer pubsub.Observer
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver receives broadcast statistics.
func WithObserver(o pubsub.Observer) Option {
	return func(c *config) {
		c.observer = o
	}
}

// Store holds every channel, keyed by synchronization key.
// It is safe for concurrent use.
type Store struct {
	config config

	mu       sync.Mutex
	channels map[string]*Channel
}

// New creates an empty store.
func New(opts ...Option) *Store {
	cfg := config{logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Store{
		config:   cfg,
		channels: make(map[string]*Channel),
	}
}

// GetOrCreateChannel returns the channel for key, creating it with the
// initial state when it does not exist yet. It is the only place channels
// are created. It returns nil for the empty key.
func (s *Store) GetOrCreateChannel(key string) *Channel {
	if key == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(key)
}

func (s *Store) getOrCreateLocked(key string) *Channel {
	if ch, ok := s.channels[key]; ok {
		return ch
	}
	ch := &Channel{
		key:   key,
		state: Initial(),
		pub:   pubsub.New[State]("series/"+key, pubsub.WithObserver(s.config.observer)),
	}
	s.channels[key] = ch
	s.config.logger.Debug("series channel created", "key", key)
	return ch
}

// State returns the state of key. Unknown and empty keys read as the
// initial state; reading does not create a channel.
func (s *Store) State(key string) State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.channels[key]; ok {
		return ch.state.clone()
	}
	return Initial()
}

// UpdateState applies patches to the channel for key, in order, and
// broadcasts the merged state to its subscribers. An empty key is a no-op.
func (s *Store) UpdateState(key string, patches ...Patch) {
	if key == "" {
		return
	}

	s.mu.Lock()
	ch := s.getOrCreateLocked(key)
	next := ch.state.clone()
	for _, p := range patches {
		if p != nil {
			p(&next)
		}
	}
	ch.state = next
	ch.pub.Enqueue(next.clone())
	pub := ch.pub
	s.mu.Unlock()

	pub.Drain()
}

// ClearState resets the channel for key to the initial state and broadcasts.
func (s *Store) ClearState(key string) {
	s.UpdateState(key, Full(Initial()))
}

// Subscribe registers fn for key. Every subscriber of a key receives every
// update, in registration order. An empty key yields a no-op subscription.
func (s *Store) Subscribe(key string, fn func(State)) (unsubscribe func()) {
	if key == "" {
		return func() {}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getOrCreateLocked(key).pub.Subscribe(fn).Unsubscribe
}

// Cleanup removes the channel for key along with its subscribers.
func (s *Store) Cleanup(key string) {
	s.mu.Lock()
	ch, ok := s.channels[key]
	if ok {
		delete(s.channels, key)
		ch.pub.Close()
	}
	s.mu.Unlock()

	if ok {
		s.config.logger.Debug("series channel removed", "key", key)
	}
}

// Keys returns the keys of every live channel, sorted.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.channels))
	for k := range s.channels {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// ResetForTesting removes every channel.
func (s *Store) ResetForTesting() {
	s.mu.Lock()
	channels := s.channels
	s.channels = make(map[string]*Channel)
	s.mu.Unlock()

	for _, ch := range channels {
		ch.pub.Close()
	}
}
