package wal

// Stats is the externally-visible snapshot of ring state and diagnostics,
// returned by the store's WalStats operation.
type Stats struct {
	WritePos      uint64
	CheckpointPos uint64
	LastSequence  uint64
	PendingBytes  uint64
	Size          uint64

	WrapCount          uint64
	CheckpointCount    uint64
	SentinelWriteCount uint64
	WriteCallCount     uint64
	AutoCommitCount    uint64
}

// Stats returns a consistent snapshot of the ring's current state.
func (r *Ring) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		WritePos:      r.writePos,
		CheckpointPos: r.checkpointPos,
		LastSequence:  r.lastSequence,
		PendingBytes:  r.pendingBytes,
		Size:          r.size,

		WrapCount:          r.counters.WrapCount,
		CheckpointCount:    r.counters.CheckpointCount,
		SentinelWriteCount: r.counters.SentinelWriteCount,
		WriteCallCount:     r.counters.WriteCallCount,
		AutoCommitCount:    r.counters.AutoCommitCount,
	}
}
