package pref

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrStorageClosed is returned when operations are attempted on a closed storage.
var ErrStorageClosed = errors.New("pref: storage is closed")

// Storage defines the interface for preference persistence backends.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Load returns the stored bytes for key.
	// Returns (nil, nil) if the key has never been saved.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save stores data under key, overwriting any previous value.
	Save(ctx context.Context, key string, data []byte) error
}

// MemoryStorage is an in-memory Storage. It is the default for tests and
// for processes that do not need preferences to survive a restart.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{entries: make(map[string][]byte)}
}

// Load returns a copy of the stored value.
func (m *MemoryStorage) Load(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.entries[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Save stores a copy of data.
func (m *MemoryStorage) Save(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	m.entries[key] = dataCopy
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// FileStorage keeps every preference in a single JSON object on disk.
// Writes replace the file atomically via a temporary file and rename.
type FileStorage struct {
	path string
	mu   sync.Mutex
}

// NewFileStorage creates a storage backed by the JSON file at path.
// The file and its directory are created on first Save.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{path: path}
}

// Path returns the backing file path.
func (f *FileStorage) Path() string {
	return f.path
}

// Load returns the raw JSON value stored under key.
func (f *FileStorage) Load(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil {
		return nil, err
	}
	raw, ok := entries[key]
	if !ok {
		return nil, nil
	}
	return []byte(raw), nil
}

// Save rewrites the file with key set to data. data must be valid JSON.
func (f *FileStorage) Save(ctx context.Context, key string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("pref file %s: value for %q is not valid JSON", f.path, key)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.read()
	if err != nil {
		return err
	}
	entries[key] = json.RawMessage(append([]byte(nil), data...))

	encoded, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("pref file %s: encode: %w", f.path, err)
	}
	encoded = append(encoded, '\n')

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("pref file %s: %w", f.path, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("pref file %s: %w", f.path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("pref file %s: write: %w", f.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("pref file %s: write: %w", f.path, err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("pref file %s: replace: %w", f.path, err)
	}
	return nil
}

// read must be called with f.mu held.
func (f *FileStorage) read() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]json.RawMessage), nil
		}
		return nil, fmt.Errorf("pref file %s: read: %w", f.path, err)
	}

	entries := make(map[string]json.RawMessage)
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("pref file %s: parse: %w", f.path, err)
	}
	return entries, nil
}
