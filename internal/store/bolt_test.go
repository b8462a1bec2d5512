package store

import (
	"bytes"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, maxBytes int64) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(t.TempDir(), maxBytes)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestBoltStore_SetAndGet(t *testing.T) {
	s := newTestStore(t, DefaultMaxBytes)

	data := []byte("block contents")
	require.NoError(t, s.Set("http://example.com/f.65536.0", data))

	got, err := s.Get("http://example.com/f.65536.0")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	assert.True(t, s.Contains("http://example.com/f.65536.0"))
	assert.False(t, s.Contains("http://example.com/f.65536.1"))
}

func TestBoltStore_GetMissing(t *testing.T) {
	s := newTestStore(t, DefaultMaxBytes)

	_, err := s.Get("nope")
	assert.Error(t, err)
}

func TestBoltStore_Overwrite(t *testing.T) {
	s := newTestStore(t, DefaultMaxBytes)

	require.NoError(t, s.Set("k", []byte("first")))
	require.NoError(t, s.Set("k", []byte("second")))

	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
	assert.Equal(t, 1, s.Len())
}

func TestBoltStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := NewBoltStore(dir, DefaultMaxBytes)
	require.NoError(t, err)
	require.NoError(t, s.Set("k", []byte("persisted")))
	require.NoError(t, s.Close())

	s, err = NewBoltStore(dir, DefaultMaxBytes)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), got)
}

func TestBoltStore_EnforcesByteCap(t *testing.T) {
	block := bytes.Repeat([]byte("x"), 1024)
	s := newTestStore(t, 4*1024)

	for i := 0; i < 8; i++ {
		require.NoError(t, s.Set(fmt.Sprintf("key-%d", i), block))
		// Access stamps need distinct nanosecond values for a stable
		// eviction order.
		time.Sleep(time.Millisecond)
	}

	assert.LessOrEqual(t, s.Len(), 4)
	// The most recent write is never evicted.
	assert.True(t, s.Contains("key-7"))
	// The oldest entries went first.
	assert.False(t, s.Contains("key-0"))
	assert.False(t, s.Contains("key-1"))
}

func TestBoltStore_GetRefreshesRecency(t *testing.T) {
	block := bytes.Repeat([]byte("x"), 1024)
	s := newTestStore(t, 3*1024)

	require.NoError(t, s.Set("a", block))
	time.Sleep(time.Millisecond)
	require.NoError(t, s.Set("b", block))
	time.Sleep(time.Millisecond)
	require.NoError(t, s.Set("c", block))
	time.Sleep(time.Millisecond)

	// Touch "a" so that "b" is now the oldest.
	_, err := s.Get("a")
	require.NoError(t, err)
	time.Sleep(time.Millisecond)

	require.NoError(t, s.Set("d", block))
	assert.True(t, s.Contains("a"))
	assert.False(t, s.Contains("b"))
}

func TestNew_Defaults(t *testing.T) {
	s, err := New(Config{Type: BackendTypeBolt, Dir: t.TempDir()})
	require.NoError(t, err)
	defer s.Close()
	assert.IsType(t, &BoltStore{}, s)

	_, err = New(Config{Type: BackendTypeBolt})
	assert.Error(t, err)

	_, err = New(Config{Type: "etcd"})
	assert.Error(t, err)

	_, err = New(Config{Type: BackendTypePostgres})
	assert.Error(t, err)

	_, err = New(Config{Type: BackendTypeMongoDB})
	assert.Error(t, err)
}
