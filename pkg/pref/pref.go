// Package pref provides typed user preferences backed by durable storage.
//
// Preferences are persisted values that:
//   - Live in memory and are always readable without I/O
//   - Hydrate from a Storage backend on Load
//   - Persist best-effort on Set: a storage failure is logged, never returned
//
// Values are stored JSON-encoded, one entry per key.
//
// Example:
//
//	store := pref.NewFileStorage("/var/lib/chartsync/prefs.json")
//	syncHover := pref.New("chart-sync-hover-enabled", true, pref.WithStorage(store))
//
//	_ = syncHover.Load(ctx)
//	syncHover.Set(false)
package pref

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultTimeout bounds a single storage call made by a preference.
const DefaultTimeout = 5 * time.Second

// PrefOption is a functional option for configuring preferences.
type PrefOption func(*prefConfig)

type prefConfig struct {
	storage Storage
	logger  *slog.Logger
	onError func(key string, err error)
	timeout time.Duration
}

// WithStorage sets the backend the preference hydrates from and persists to.
// Without storage a preference is memory-only.
func WithStorage(s Storage) PrefOption {
	return func(c *prefConfig) {
		c.storage = s
	}
}

// WithLogger sets the logger used for persistence warnings.
func WithLogger(l *slog.Logger) PrefOption {
	return func(c *prefConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// OnError registers a handler called for every failed persist.
func OnError(handler func(key string, err error)) PrefOption {
	return func(c *prefConfig) {
		c.onError = handler
	}
}

// WithTimeout bounds each storage call. Default: DefaultTimeout.
func WithTimeout(d time.Duration) PrefOption {
	return func(c *prefConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// Pref represents a persisted user preference.
type Pref[T any] struct {
	key       string
	value     T
	defaults  T
	updatedAt time.Time
	config    prefConfig

	mu sync.RWMutex

	// persistMu orders writes so storage always ends on the newest value.
	persistMu sync.Mutex
}

// New creates a new preference with the given key and default value.
func New[T any](key string, defaultValue T, opts ...PrefOption) *Pref[T] {
	config := prefConfig{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&config)
	}

	return &Pref[T]{
		key:       key,
		value:     defaultValue,
		defaults:  defaultValue,
		updatedAt: time.Now(),
		config:    config,
	}
}

// Get returns the current preference value.
func (p *Pref[T]) Get() T {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.value
}

// Default returns the value the preference was created with.
func (p *Pref[T]) Default() T {
	return p.defaults
}

// Set updates the in-memory value, then persists it.
// Persistence is best-effort and never affects the in-memory value.
func (p *Pref[T]) Set(value T) {
	p.SetLocal(value)
	p.Persist()
}

// SetLocal updates the in-memory value without persisting it.
func (p *Pref[T]) SetLocal(value T) {
	p.mu.Lock()
	p.value = value
	p.updatedAt = time.Now()
	p.mu.Unlock()
}

// Persist writes the current value to storage, best-effort. Concurrent
// calls are serialized and each reads the value when its write starts, so
// the last write to land carries the newest value.
func (p *Pref[T]) Persist() {
	if p.config.storage == nil {
		return
	}

	p.persistMu.Lock()
	defer p.persistMu.Unlock()
	p.persist(p.Get())
}

// Reset resets the preference to its default value.
func (p *Pref[T]) Reset() {
	p.Set(p.defaults)
}

// Key returns the preference key.
func (p *Pref[T]) Key() string {
	return p.key
}

// UpdatedAt returns when the preference was last updated.
func (p *Pref[T]) UpdatedAt() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.updatedAt
}

// Load hydrates the preference from storage. A missing entry leaves the
// current value untouched and is not an error. On any error the in-memory
// value is unchanged.
func (p *Pref[T]) Load(ctx context.Context) error {
	if p.config.storage == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.timeout)
	defer cancel()

	data, err := p.config.storage.Load(ctx, p.key)
	if err != nil {
		return fmt.Errorf("pref %q: load: %w", p.key, err)
	}
	if data == nil {
		return nil
	}

	var value T
	if err := json.Unmarshal(data, &value); err != nil {
		return fmt.Errorf("pref %q: decode: %w", p.key, err)
	}

	p.mu.Lock()
	p.value = value
	p.updatedAt = time.Now()
	p.mu.Unlock()
	return nil
}

// persist must be called with p.persistMu held.
func (p *Pref[T]) persist(value T) {
	data, err := json.Marshal(value)
	if err == nil {
		ctx, cancel := context.WithTimeout(context.Background(), p.config.timeout)
		err = p.config.storage.Save(ctx, p.key, data)
		cancel()
	}
	if err == nil {
		return
	}

	p.config.logger.Warn("preference persist failed", "key", p.key, "error", err)
	if p.config.onError != nil {
		p.config.onError(p.key, err)
	}
}

// MarshalJSON implements json.Marshaler.
func (p *Pref[T]) MarshalJSON() ([]byte, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return json.Marshal(struct {
		Key       string    `json:"key"`
		Value     T         `json:"value"`
		UpdatedAt time.Time `json:"updated_at"`
	}{
		Key:       p.key,
		Value:     p.value,
		UpdatedAt: p.updatedAt,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Pref[T]) UnmarshalJSON(data []byte) error {
	var temp struct {
		Key       string    `json:"key"`
		Value     T         `json:"value"`
		UpdatedAt time.Time `json:"updated_at"`
	}
	if err := json.Unmarshal(data, &temp); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.key = temp.Key
	p.value = temp.Value
	p.updatedAt = temp.UpdatedAt
	return nil
}
