package pref

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorageCopies(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()

	original := []byte("true")
	require.NoError(t, storage.Save(ctx, "k", original))
	original[0] = 'x'

	loaded, err := storage.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "true", string(loaded))

	loaded[0] = 'y'
	again, err := storage.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "true", string(again))

	missing, err := storage.Load(ctx, "other")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestFileStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "prefs.json")
	storage := NewFileStorage(path)

	missing, err := storage.Load(ctx, "chart-sync-hover-enabled")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, storage.Save(ctx, "chart-sync-hover-enabled", []byte("false")))
	require.NoError(t, storage.Save(ctx, "chart-sync-tooltip-enabled", []byte("true")))

	reopened := NewFileStorage(path)
	hover, err := reopened.Load(ctx, "chart-sync-hover-enabled")
	require.NoError(t, err)
	assert.Equal(t, "false", string(hover))

	tooltip, err := reopened.Load(ctx, "chart-sync-tooltip-enabled")
	require.NoError(t, err)
	assert.Equal(t, "true", string(tooltip))

	entries, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFileStorageRejectsInvalidJSON(t *testing.T) {
	storage := NewFileStorage(filepath.Join(t.TempDir(), "prefs.json"))
	assert.Error(t, storage.Save(context.Background(), "k", []byte("{not json")))
}

func TestFileStorageCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	storage := NewFileStorage(path)
	_, err := storage.Load(context.Background(), "k")
	assert.Error(t, err)
	assert.Error(t, storage.Save(context.Background(), "k", []byte("true")))
}

// fakeS3 is an in-memory S3API.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string][]byte)}
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[*in.Bucket+"/"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func TestS3StorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	client := newFakeS3()
	storage := NewS3Storage(client, "prefs", "chartsync/")

	assert.Equal(t, "chartsync/flag.json", storage.ObjectKey("flag"))

	missing, err := storage.Load(ctx, "flag")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, storage.Save(ctx, "flag", []byte("false")))
	assert.Contains(t, client.objects, "prefs/chartsync/flag.json")

	data, err := storage.Load(ctx, "flag")
	require.NoError(t, err)
	assert.Equal(t, "false", string(data))
}

func TestS3StoragePutError(t *testing.T) {
	client := newFakeS3()
	client.putErr = errors.New("access denied")
	storage := NewS3Storage(client, "prefs", "")

	err := storage.Save(context.Background(), "flag", []byte("true"))
	assert.ErrorIs(t, err, client.putErr)
}

func TestNewS3Client(t *testing.T) {
	client := NewS3Client(S3ClientConfig{
		Region:       "us-east-1",
		Endpoint:     "http://localhost:9000",
		UsePathStyle: true,
		AccessKeyID:  "key",
	})
	require.NotNil(t, client)

	opts := client.Options()
	assert.Equal(t, "us-east-1", opts.Region)
	assert.True(t, opts.UsePathStyle)
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "http://localhost:9000", *opts.BaseEndpoint)
}

// blockingStorage holds every Save until release is closed.
type blockingStorage struct {
	*MemoryStorage
	release chan struct{}
}

func (b *blockingStorage) Save(ctx context.Context, key string, data []byte) error {
	<-b.release
	return b.MemoryStorage.Save(ctx, key, data)
}

func TestAsyncStorageDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	inner := &blockingStorage{MemoryStorage: NewMemoryStorage(), release: make(chan struct{})}
	storage := Async(inner)

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, storage.Save(ctx, "flag", []byte("false")))
		assert.NoError(t, storage.Save(ctx, "flag", []byte("true")))
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Save blocked on the wrapped storage")
	}

	close(inner.release)
	require.NoError(t, storage.Close())
	require.NoError(t, storage.Close())

	data, err := inner.MemoryStorage.Load(ctx, "flag")
	require.NoError(t, err)
	assert.Equal(t, "true", string(data))

	assert.ErrorIs(t, storage.Save(ctx, "flag", []byte("false")), ErrStorageClosed)
}

func TestAsyncStorageReadsOwnWrites(t *testing.T) {
	ctx := context.Background()
	inner := &blockingStorage{MemoryStorage: NewMemoryStorage(), release: make(chan struct{})}
	storage := Async(inner)
	defer func() {
		close(inner.release)
		_ = storage.Close()
	}()

	require.NoError(t, storage.Save(ctx, "a", []byte("1")))
	require.NoError(t, storage.Save(ctx, "b", []byte("2")))

	for key, want := range map[string]string{"a": "1", "b": "2"} {
		data, err := storage.Load(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, want, string(data))
	}
}

func TestAsyncStorageReadsWritesInFlight(t *testing.T) {
	ctx := context.Background()
	inner := &blockingStorage{MemoryStorage: NewMemoryStorage(), release: make(chan struct{})}
	storage := Async(inner)

	// The writer takes "a" and blocks on it.
	require.NoError(t, storage.Save(ctx, "a", []byte("1")))
	require.Eventually(t, func() bool { return storage.Pending() == 0 }, 2*time.Second, 5*time.Millisecond)

	data, err := storage.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))

	// A newer pending value wins over the one in flight.
	require.NoError(t, storage.Save(ctx, "a", []byte("2")))
	data, err = storage.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "2", string(data))

	close(inner.release)
	require.NoError(t, storage.Close())

	data, err = storage.Load(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "2", string(data))
	assert.Empty(t, storage.inflight)
}

func TestAsyncStorageReportsErrors(t *testing.T) {
	boom := errors.New("unavailable")

	var mu sync.Mutex
	var failed []string
	storage := Async(failingStorage{err: boom}, AsyncOnError(func(key string, err error) {
		mu.Lock()
		defer mu.Unlock()
		failed = append(failed, key)
	}))

	require.NoError(t, storage.Save(context.Background(), "flag", []byte("true")))
	_ = storage.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"flag"}, failed)
	assert.Zero(t, storage.Pending())
}

// gatedFailingStorage fails every Save once release is closed.
type gatedFailingStorage struct {
	release chan struct{}
	err     error
}

func (g gatedFailingStorage) Load(ctx context.Context, key string) ([]byte, error) {
	return nil, nil
}

func (g gatedFailingStorage) Save(ctx context.Context, key string, data []byte) error {
	<-g.release
	return g.err
}

func TestAsyncStorageCloseReturnsDrainFailures(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("unavailable")
	inner := gatedFailingStorage{release: make(chan struct{}), err: boom}
	storage := Async(inner)

	// The writer takes "first" and blocks on it.
	require.NoError(t, storage.Save(ctx, "first", []byte("1")))
	require.Eventually(t, func() bool { return storage.Pending() == 0 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, storage.Save(ctx, "second", []byte("2")))
	require.NoError(t, storage.Save(ctx, "third", []byte("3")))

	closed := make(chan error, 1)
	go func() { closed <- storage.Close() }()
	require.Eventually(t, func() bool {
		storage.mu.Lock()
		defer storage.mu.Unlock()
		return storage.closed
	}, 2*time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, storage.Save(ctx, "late", []byte("0")), ErrStorageClosed)
	close(inner.release)

	var err error
	select {
	case err = <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 2)
	assert.Contains(t, err.Error(), "second")
	assert.Contains(t, err.Error(), "third")
	assert.NotContains(t, err.Error(), "first")
	assert.NotContains(t, err.Error(), "late")
}
