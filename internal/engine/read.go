package engine

import (
	"context"
	"fmt"
	"time"
)

// Read returns length bytes of the file at path starting at offset. The
// request is decomposed into block-aligned windows; each window's block is
// obtained through GetBlock and the overlapping sub-slice is copied into the
// output buffer. Reads extending past end-of-file return zero bytes for the
// excess rather than failing; any block-fetch failure aborts the whole read.
func (e *Engine) Read(ctx context.Context, path string, length int, offset int64) ([]byte, error) {
	e.stats.ReadCalls.Add(1)
	started := time.Now()

	url, kind := Resolve(path, e.schema)
	if kind == KindDirectory {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	out := make([]byte, length)
	if kind == KindSidecar || length == 0 {
		return out, nil
	}

	end := offset + int64(length)
	cur := offset
	for cur < end {
		index := cur / e.blockSize
		blockStart := index * e.blockSize

		block, err := e.GetBlock(ctx, url, index)
		if err != nil {
			return nil, err
		}

		winStart := cur - blockStart
		winEnd := e.blockSize
		if end-blockStart < winEnd {
			winEnd = end - blockStart
		}

		if winStart >= int64(len(block)) {
			// The window starts past end-of-file; the rest of the output
			// buffer stays zero-filled.
			break
		}
		copyEnd := winEnd
		if copyEnd > int64(len(block)) {
			copyEnd = int64(len(block))
		}
		copy(out[cur-offset:], block[winStart:copyEnd])

		if copyEnd < winEnd {
			// Truncated final block.
			break
		}
		cur = blockStart + winEnd
	}

	e.stats.BytesRead.Add(int64(length))
	snap := e.stats.Snapshot()
	e.logger.Debug().
		Str("url", url).
		Int64("offset", offset).
		Int("length", length).
		Dur("elapsed", time.Since(started)).
		Int64("memory_hits", snap.MemoryHits).
		Int64("memory_misses", snap.MemoryMisses).
		Int64("disk_hits", snap.DiskHits).
		Int64("disk_misses", snap.DiskMisses).
		Msg("read")

	return out, nil
}
