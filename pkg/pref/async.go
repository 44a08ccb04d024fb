package pref

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
)

// AsyncOption configures an AsyncStorage.
type AsyncOption func(*asyncConfig)

type asyncConfig struct {
	logger  *slog.Logger
	onError func(key string, err error)
	timeout time.Duration
}

// AsyncLogger sets the logger for background write failures.
func AsyncLogger(l *slog.Logger) AsyncOption {
	return func(c *asyncConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// AsyncOnError registers a handler for background write failures.
func AsyncOnError(handler func(key string, err error)) AsyncOption {
	return func(c *asyncConfig) {
		c.onError = handler
	}
}

// AsyncTimeout bounds each background write. Default: DefaultTimeout.
func AsyncTimeout(d time.Duration) AsyncOption {
	return func(c *asyncConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// AsyncStorage makes writes to another Storage fire-and-forget.
//
// Save records the value and returns immediately; a single background
// goroutine writes pending values to the wrapped storage. When a key is saved
// several times before the writer catches up, only the latest value is
// written. Load observes pending and in-flight values, so callers read their
// own writes.
type AsyncStorage struct {
	inner  Storage
	config asyncConfig

	mu       sync.Mutex
	pending  map[string][]byte
	inflight map[string][]byte
	closed   bool

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup

	// drainErr collects failures of writes taken after Close. Only the
	// writer goroutine touches it until wg is done.
	drainErr *multierror.Error
}

// Async wraps inner and starts its background writer. Call Close to flush.
func Async(inner Storage, opts ...AsyncOption) *AsyncStorage {
	cfg := asyncConfig{
		logger:  slog.Default(),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	a := &AsyncStorage{
		inner:   inner,
		config:  cfg,
		pending:  make(map[string][]byte),
		inflight: make(map[string][]byte),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	a.wg.Add(1)
	go a.writeLoop()
	return a
}

// Load returns the newest unwritten value for key, pending or in flight, if
// one exists. Otherwise it reads through to the wrapped storage.
func (a *AsyncStorage) Load(ctx context.Context, key string) ([]byte, error) {
	a.mu.Lock()
	data, ok := a.pending[key]
	if !ok {
		data, ok = a.inflight[key]
	}
	if ok {
		out := make([]byte, len(data))
		copy(out, data)
		a.mu.Unlock()
		return out, nil
	}
	a.mu.Unlock()

	return a.inner.Load(ctx, key)
}

// Save queues data for key. It only fails once the storage is closed.
func (a *AsyncStorage) Save(ctx context.Context, key string, data []byte) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return ErrStorageClosed
	}
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	a.pending[key] = dataCopy
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
	return nil
}

// Pending returns the number of writes not yet handed to the wrapped storage.
func (a *AsyncStorage) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Close stops accepting writes, flushes everything pending and waits for the
// background writer to exit. It returns every write that failed while
// draining. It is safe to call more than once.
func (a *AsyncStorage) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	a.mu.Unlock()

	close(a.done)
	a.wg.Wait()
	return a.drainErr.ErrorOrNil()
}

func (a *AsyncStorage) writeLoop() {
	defer a.wg.Done()

	for {
		select {
		case <-a.wake:
			a.flush()
		case <-a.done:
			a.flush()
			return
		}
	}
}

func (a *AsyncStorage) flush() {
	a.mu.Lock()
	batch := a.pending
	a.pending = make(map[string][]byte)
	for key, data := range batch {
		a.inflight[key] = data
	}
	draining := a.closed
	a.mu.Unlock()

	for key, data := range batch {
		ctx, cancel := context.WithTimeout(context.Background(), a.config.timeout)
		err := a.inner.Save(ctx, key, data)
		cancel()

		a.mu.Lock()
		delete(a.inflight, key)
		a.mu.Unlock()
		if err == nil {
			continue
		}

		a.config.logger.Warn("async preference write failed", "key", key, "error", err)
		if a.config.onError != nil {
			a.config.onError(key, err)
		}
		if draining {
			a.drainErr = multierror.Append(a.drainErr, fmt.Errorf("%s: %w", key, err))
		}
	}
}
