package engine

import (
	"context"
	"fmt"
)

// blockKey is a block identity: the URL, the block size it was fetched
// under, and the block index. Its string form doubles as the persistent
// store key.
type blockKey struct {
	url       string
	blockSize int64
	index     int64
}

func (k blockKey) String() string {
	return fmt.Sprintf("%s.%d.%d", k.url, k.blockSize, k.index)
}

// GetBlock returns the block at index for url, consulting the in-memory
// cache, then the persistent store, then the fetcher, populating both tiers
// on a miss. Concurrent calls for the same block identity collapse into one
// underlying fetch: late arrivals wait on the initiating caller's completion
// channel and then retry the cache lookup. A block is immutable once cached
// and is never refetched while present; no partial block is ever stored.
func (e *Engine) GetBlock(ctx context.Context, url string, index int64) ([]byte, error) {
	e.stats.BlockRequests.Add(1)
	key := blockKey{url: url, blockSize: e.blockSize, index: index}

	for {
		if data, ok := e.blocks.Get(key); ok {
			e.stats.MemoryHits.Add(1)
			return data, nil
		}
		e.stats.MemoryMisses.Add(1)

		e.mu.Lock()
		if done, inflight := e.inflight[key]; inflight {
			e.mu.Unlock()
			select {
			case <-done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}
		done := make(chan struct{})
		e.inflight[key] = done
		e.mu.Unlock()

		data, err := e.fetchBlock(ctx, key)

		e.mu.Lock()
		delete(e.inflight, key)
		e.mu.Unlock()
		close(done)

		return data, err
	}
}

// fetchBlock fills a memory miss from the persistent store or, failing that,
// from the remote backend. Store read failures degrade to misses and store
// write failures are ignored: the persistent tier is an optimization, not a
// correctness dependency.
func (e *Engine) fetchBlock(ctx context.Context, key blockKey) ([]byte, error) {
	// A previous leader may have cached the block and retired between this
	// caller's memory miss and its in-flight registration; re-checking here
	// keeps a cached block from ever being refetched. The earlier miss has
	// already been counted.
	if data, ok := e.blocks.Get(key); ok {
		return data, nil
	}

	storeKey := key.String()

	if e.store != nil && e.store.Contains(storeKey) {
		if data, err := e.store.Get(storeKey); err == nil {
			e.stats.DiskHits.Add(1)
			e.blocks.Set(key, data)
			return data, nil
		} else {
			e.logger.Warn().Str("key", storeKey).Err(err).Msg("store read failed, treating as miss")
		}
	}
	e.stats.DiskMisses.Add(1)

	start := key.index * key.blockSize
	end := start + key.blockSize - 1
	data, err := e.fetcher.Range(ctx, key.url, start, end)
	if err != nil {
		return nil, fmt.Errorf("fetching block %d of %s: %w", key.index, key.url, err)
	}

	e.blocks.Set(key, data)
	if e.store != nil {
		if err := e.store.Set(storeKey, data); err != nil {
			e.logger.Warn().Str("key", storeKey).Err(err).Msg("store write failed")
		}
	}
	return data, nil
}
