package content_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/argos/internal/content"
)

func TestHash_Shape(t *testing.T) {
	h := content.Hash([]byte("hello"))
	assert.Len(t, h, content.HashLength)
	assert.True(t, content.ValidHash(h))
	assert.Equal(t, h, content.Hash([]byte("hello")))
	assert.NotEqual(t, h, content.Hash([]byte("hello!")))
}

func TestParseFileName(t *testing.T) {
	h := content.Hash([]byte("x"))
	got, ok := content.ParseFileName(content.FileName(h))
	require.True(t, ok)
	assert.Equal(t, h, got)

	for _, bad := range []string{"", h, h + ".jpg", "../../etc/passwd.png", "ABCDEF0123456789.png"} {
		_, ok := content.ParseFileName(bad)
		assert.False(t, ok, bad)
	}
}

func TestPropertyHash_AlwaysParses(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		data := rapid.SliceOf(rapid.Byte()).Draw(rt, "data")
		h := content.Hash(data)
		got, ok := content.ParseFileName(content.FileName(h))
		assert.True(rt, ok)
		assert.Equal(rt, h, got)
	})
}

func TestNopStore(t *testing.T) {
	var s content.NopStore
	require.NoError(t, s.Put(context.Background(), "0123456789abcdef", []byte("x")))
	_, err := s.Get(context.Background(), "0123456789abcdef")
	assert.True(t, errors.Is(err, content.ErrNotFound))
}

func TestDiskStore_PutGet(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "gen")
	s, err := content.NewDiskStore(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, s.Dir())

	ctx := context.Background()
	data := []byte("payload")
	h := content.Hash(data)
	require.NoError(t, s.Put(ctx, h, data))
	require.NoError(t, s.Put(ctx, h, []byte("ignored")), "second put is a no-op")

	got, err := s.Get(ctx, h)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
	assert.Equal(t, content.FileName(h), entries[0].Name())
}

func TestDiskStore_Errors(t *testing.T) {
	_, err := content.NewDiskStore("")
	assert.Error(t, err)

	s, err := content.NewDiskStore(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, s.Put(context.Background(), "../escape", []byte("x")))

	_, err = s.Get(context.Background(), "0123456789abcdef")
	assert.True(t, errors.Is(err, content.ErrNotFound))
	_, err = s.Get(context.Background(), "nope")
	assert.True(t, errors.Is(err, content.ErrNotFound))
}

type recordingStore struct {
	mu   sync.Mutex
	puts map[string][]byte
	gate chan struct{}
}

func (r *recordingStore) Put(_ context.Context, hash string, data []byte) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.puts[hash] = data
	return nil
}

func (r *recordingStore) Get(_ context.Context, hash string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.puts[hash]
	if !ok {
		return nil, content.ErrNotFound
	}
	return data, nil
}

func (r *recordingStore) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.puts)
}

func TestWriter_PersistsQueuedPayloads(t *testing.T) {
	store := &recordingStore{puts: map[string][]byte{}}
	w := content.NewWriter(store, 8, zaptest.NewLogger(t))
	go func() { _ = w.Start() }()

	assert.True(t, w.Enqueue("0000000000000001", []byte("a")))
	assert.True(t, w.Enqueue("0000000000000002", []byte("b")))

	assert.Eventually(t, func() bool { return store.len() == 2 }, time.Second, 5*time.Millisecond)
	w.Stop()
}

func TestWriter_DropsWhenFull(t *testing.T) {
	store := &recordingStore{puts: map[string][]byte{}, gate: make(chan struct{})}
	w := content.NewWriter(store, 1, zaptest.NewLogger(t))

	assert.True(t, w.Enqueue("0000000000000001", []byte("a")))
	assert.False(t, w.Enqueue("0000000000000002", []byte("b")))

	close(store.gate)
	go func() { _ = w.Start() }()
	w.Stop()
	assert.Equal(t, 1, store.len(), "queued payloads are flushed on stop")
}
