package pref

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStorage fails every call with err.
type failingStorage struct {
	err error
}

func (f failingStorage) Load(ctx context.Context, key string) ([]byte, error) {
	return nil, f.err
}

func (f failingStorage) Save(ctx context.Context, key string, data []byte) error {
	return f.err
}

func TestPrefNew(t *testing.T) {
	t.Run("WithDefaults", func(t *testing.T) {
		p := New("theme", "light")

		assert.Equal(t, "theme", p.Key())
		assert.Equal(t, "light", p.Get())
		assert.Equal(t, "light", p.Default())
	})

	t.Run("WithTimeout", func(t *testing.T) {
		p := New("volume", 50, WithTimeout(time.Second))
		assert.Equal(t, time.Second, p.config.timeout)

		p = New("volume", 50, WithTimeout(0))
		assert.Equal(t, DefaultTimeout, p.config.timeout)
	})
}

func TestPrefSetPersists(t *testing.T) {
	storage := NewMemoryStorage()
	p := New("chart-sync-hover-enabled", true, WithStorage(storage))

	p.Set(false)
	assert.False(t, p.Get())
	assert.False(t, p.UpdatedAt().IsZero())

	data, err := storage.Load(context.Background(), "chart-sync-hover-enabled")
	require.NoError(t, err)
	assert.Equal(t, "false", string(data))
}

func TestPrefSetLocalDoesNotPersist(t *testing.T) {
	storage := NewMemoryStorage()
	p := New("flag", true, WithStorage(storage))

	p.SetLocal(false)
	assert.False(t, p.Get())
	assert.Zero(t, storage.Len())
}

func TestPrefReset(t *testing.T) {
	p := New("theme", "light")

	p.Set("dark")
	require.Equal(t, "dark", p.Get())

	p.Reset()
	assert.Equal(t, "light", p.Get())
}

func TestPrefLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("Hydrates", func(t *testing.T) {
		storage := NewMemoryStorage()
		require.NoError(t, storage.Save(ctx, "flag", []byte("false")))

		p := New("flag", true, WithStorage(storage))
		require.NoError(t, p.Load(ctx))
		assert.False(t, p.Get())
	})

	t.Run("MissingKeepsDefault", func(t *testing.T) {
		p := New("flag", true, WithStorage(NewMemoryStorage()))
		require.NoError(t, p.Load(ctx))
		assert.True(t, p.Get())
	})

	t.Run("NoStorage", func(t *testing.T) {
		p := New("flag", true)
		assert.NoError(t, p.Load(ctx))
	})

	t.Run("DecodeError", func(t *testing.T) {
		storage := NewMemoryStorage()
		require.NoError(t, storage.Save(ctx, "flag", []byte(`"yes"`)))

		p := New("flag", true, WithStorage(storage))
		assert.Error(t, p.Load(ctx))
		assert.True(t, p.Get())
	})

	t.Run("StorageError", func(t *testing.T) {
		boom := errors.New("unavailable")
		p := New("flag", true, WithStorage(failingStorage{err: boom}))

		err := p.Load(ctx)
		assert.ErrorIs(t, err, boom)
		assert.True(t, p.Get())
	})
}

func TestPrefPersistFailureIsSwallowed(t *testing.T) {
	boom := errors.New("quota exceeded")

	var mu sync.Mutex
	var failedKeys []string
	p := New("flag", true,
		WithStorage(failingStorage{err: boom}),
		OnError(func(key string, err error) {
			mu.Lock()
			defer mu.Unlock()
			assert.ErrorIs(t, err, boom)
			failedKeys = append(failedKeys, key)
		}),
	)

	p.Set(false)
	assert.False(t, p.Get())
	assert.Equal(t, []string{"flag"}, failedKeys)
}

func TestPrefJSON(t *testing.T) {
	p := New("theme", "light")
	p.Set("dark")

	data, err := json.Marshal(p)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "theme", decoded["key"])
	assert.Equal(t, "dark", decoded["value"])
	assert.Contains(t, decoded, "updated_at")

	restored := New("", "")
	require.NoError(t, json.Unmarshal(data, restored))
	assert.Equal(t, "theme", restored.Key())
	assert.Equal(t, "dark", restored.Get())
}

func TestPrefConcurrentAccess(t *testing.T) {
	p := New("counter", 0, WithStorage(NewMemoryStorage()))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(v int) {
			defer wg.Done()
			p.Set(v)
		}(i)
		go func() {
			defer wg.Done()
			_ = p.Get()
		}()
	}
	wg.Wait()
}

func TestPrefConcurrentSetsLeaveStorageOnNewest(t *testing.T) {
	for round := 0; round < 20; round++ {
		storage := NewMemoryStorage()
		p := New("counter", 0, WithStorage(storage))

		var wg sync.WaitGroup
		for i := 1; i <= 16; i++ {
			wg.Add(1)
			go func(v int) {
				defer wg.Done()
				p.Set(v)
			}(i)
		}
		wg.Wait()

		data, err := storage.Load(context.Background(), "counter")
		require.NoError(t, err)

		var stored int
		require.NoError(t, json.Unmarshal(data, &stored))
		assert.Equal(t, p.Get(), stored, "round %d", round)
	}
}
