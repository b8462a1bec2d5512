package engine

import "sync/atomic"

// Metrics holds the engine's hit/miss tallies. Counters are monotonically
// increasing for the lifetime of the engine instance and are observability
// only: they never affect correctness.
type Metrics struct {
	MemoryHits    atomic.Int64
	MemoryMisses  atomic.Int64
	DiskHits      atomic.Int64
	DiskMisses    atomic.Int64
	BlockRequests atomic.Int64
	ReadCalls     atomic.Int64
	BytesRead     atomic.Int64
}

// Snapshot is a point-in-time copy of the engine counters.
type Snapshot struct {
	MemoryHits    int64
	MemoryMisses  int64
	DiskHits      int64
	DiskMisses    int64
	BlockRequests int64
	ReadCalls     int64
	BytesRead     int64
}

// Snapshot returns a consistent-enough copy of the counters. Values are read
// individually; exact cross-counter consistency is not guaranteed or needed.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		MemoryHits:    m.MemoryHits.Load(),
		MemoryMisses:  m.MemoryMisses.Load(),
		DiskHits:      m.DiskHits.Load(),
		DiskMisses:    m.DiskMisses.Load(),
		BlockRequests: m.BlockRequests.Load(),
		ReadCalls:     m.ReadCalls.Load(),
		BytesRead:     m.BytesRead.Load(),
	}
}
