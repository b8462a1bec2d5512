package metrics

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/higlass/httpfs-go/internal/engine"
)

type fixedFetcher struct {
	content []byte
}

func (f *fixedFetcher) Size(ctx context.Context, url string) (int64, error) {
	return int64(len(f.content)), nil
}

func (f *fixedFetcher) Range(ctx context.Context, url string, start, end int64) ([]byte, error) {
	if start >= int64(len(f.content)) {
		return nil, nil
	}
	if end >= int64(len(f.content)) {
		end = int64(len(f.content)) - 1
	}
	return f.content[start : end+1], nil
}

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.New(engine.Config{
		Schema:  "https",
		Fetcher: &fixedFetcher{content: []byte("0123456789")},
		Logger:  zerolog.Nop(),
	})
	require.NoError(t, err)
	return eng
}

func TestCollectorExportsEngineCounters(t *testing.T) {
	eng := newTestEngine(t)

	// Two reads of the same block: one miss, one memory hit.
	_, err := eng.Read(context.Background(), "/example.com/data..", 4, 0)
	require.NoError(t, err)
	_, err = eng.Read(context.Background(), "/example.com/data..", 4, 4)
	require.NoError(t, err)

	server := httptest.NewServer(Handler(NewRegistry(eng)))
	defer server.Close()

	resp, err := server.Client().Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, `httpfs_read_calls_total{schema="https"} 2`)
	assert.Contains(t, text, `httpfs_memory_hits_total{schema="https"} 1`)
	assert.Contains(t, text, `httpfs_memory_misses_total{schema="https"} 1`)
	assert.Contains(t, text, `httpfs_block_requests_total{schema="https"} 2`)
	assert.Contains(t, text, fmt.Sprintf(`httpfs_bytes_read_total{schema="https"} %d`, 8))
	// Standard collectors are registered alongside.
	assert.Contains(t, text, "go_goroutines")
}

func TestCollectorDescribe(t *testing.T) {
	c := NewCollector(newTestEngine(t))

	ch := make(chan *prometheus.Desc, 16)
	c.Describe(ch)
	close(ch)

	names := 0
	for range ch {
		names++
	}
	assert.Equal(t, 7, names)
}
