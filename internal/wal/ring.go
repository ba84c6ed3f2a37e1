// Package wal implements the write-ahead log ring (§4.6): append
// discipline with padding and sentinel placement, scan-and-replay
// recovery, and pressure-triggered auto-commit signaling.
package wal

import (
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/mv2s/mv2s/internal/format"
	"github.com/mv2s/mv2s/pkg/errors"
	"github.com/mv2s/mv2s/pkg/filesys"
)

// Counters tracks ring diagnostics exposed through Store.WalStats.
type Counters struct {
	WrapCount          uint64
	CheckpointCount    uint64
	SentinelWriteCount uint64
	WriteCallCount     uint64
	AutoCommitCount    uint64
}

// Config constructs a Ring over an already-open store file.
type Config struct {
	File   *os.File
	Region uint64 // byte offset of the WAL ring's first byte within the store file.
	Size   uint64 // total ring capacity in bytes.

	// Resume state, as recovered from the header page or a completed scan.
	WritePos      uint64
	CheckpointPos uint64
	LastSequence  uint64

	AutoCommitThresholdPercent int
	Logger                     *zap.SugaredLogger
}

// Ring is the append-only circular write-ahead log. All positions are
// relative to Region; the ring never writes outside [Region, Region+Size).
type Ring struct {
	mu sync.Mutex

	file   *os.File
	region uint64
	size   uint64

	writePos      uint64
	checkpointPos uint64
	lastSequence  uint64
	pendingBytes  uint64

	autoCommitThresholdPercent int
	log                        *zap.SugaredLogger

	counters Counters
}

// New returns a Ring ready to append at cfg's resume position.
func New(cfg Config) *Ring {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	pending := cfg.WritePos - cfg.CheckpointPos
	if cfg.WritePos < cfg.CheckpointPos {
		pending = cfg.Size - cfg.CheckpointPos + cfg.WritePos
	}
	return &Ring{
		file:                       cfg.File,
		region:                     cfg.Region,
		size:                       cfg.Size,
		writePos:                   cfg.WritePos,
		checkpointPos:              cfg.CheckpointPos,
		lastSequence:               cfg.LastSequence,
		pendingBytes:               pending,
		autoCommitThresholdPercent: cfg.AutoCommitThresholdPercent,
		log:                        log,
	}
}

// WritePos, CheckpointPos, and LastSequence report the ring's current
// resume-relevant state, to be persisted into the header page on commit.
func (r *Ring) WritePos() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writePos
}

func (r *Ring) CheckpointPos() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkpointPos
}

func (r *Ring) LastSequence() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSequence
}

func (r *Ring) Counters() Counters {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counters
}

// Checkpoint marks every record written so far as committed: the next
// recovery scan will start at the new checkpoint position. Called once
// per successful Commit.
func (r *Ring) Checkpoint() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkpointPos = r.writePos
	r.pendingBytes = 0
	r.counters.CheckpointCount++
}

// PressureExceeded reports whether the fraction of the ring consumed by
// uncommitted records has crossed the auto-commit threshold (§4.6).
func (r *Ring) PressureExceeded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.autoCommitThresholdPercent <= 0 {
		return false
	}
	return r.pendingBytes*100 >= r.size*uint64(r.autoCommitThresholdPercent)
}

// NoteAutoCommit increments the auto-commit diagnostic counter; called by
// the store after it reacts to PressureExceeded by committing.
func (r *Ring) NoteAutoCommit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters.AutoCommitCount++
}

// Append writes one data record carrying opcode+payload and returns its
// assigned sequence number. Empty payloads and payloads larger than
// u32::MAX are rejected; an entry that cannot fit within the ring without
// overrunning uncommitted data fails with CapacityExceeded (§4.6).
func (r *Ring) Append(opcode format.Opcode, payload []byte) (uint64, error) {
	if len(payload) == 0 {
		return 0, errors.NewTocError(nil, errors.ErrorCodeWalCorruption, "wal payload must not be empty")
	}
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return 0, errors.NewTocError(nil, errors.ErrorCodeWalCorruption, "wal payload exceeds u32 maximum")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// The wire payload is the opcode tag followed by the caller's encoded
	// mutation bytes; scan/replay recovers the opcode the same way.
	body := make([]byte, 1+len(payload))
	body[0] = byte(opcode)
	copy(body[1:], payload)

	entrySize := uint64(format.WalRecordHeaderSize) + uint64(len(body))
	if entrySize > r.size {
		return 0, errors.NewStorageError(nil, errors.ErrorCodeCapacityExceeded, "wal entry larger than ring capacity").
			WithDetail("entry_size", entrySize).WithDetail("wal_size", r.size)
	}

	// Budget check: the ring must never let write_pos lap checkpoint_pos.
	// Worst case this entry needs one wrap's padding plus a trailing
	// sentinel, so size the request generously before committing to writes.
	worstCase := entrySize + format.WalRecordHeaderSize*2
	if r.pendingBytes+worstCase > r.size {
		return 0, errors.NewStorageError(nil, errors.ErrorCodeCapacityExceeded, "wal pending-bytes budget exceeded").
			WithDetail("pending_bytes", r.pendingBytes).WithDetail("wal_size", r.size)
	}

	sequence := r.lastSequence + 1

	contiguous := r.size - r.writePos
	if contiguous < format.WalRecordHeaderSize {
		if err := r.zeroFillAt(r.writePos, contiguous); err != nil {
			return 0, err
		}
		r.advancePending(contiguous)
		r.writePos = 0
		r.counters.WrapCount++
		contiguous = r.size
	}

	if contiguous >= format.WalRecordHeaderSize && contiguous < entrySize {
		skip := contiguous - format.WalRecordHeaderSize
		padHeader := format.NewPaddingRecordHeader(sequence, uint32(skip))
		if err := r.writeAt(r.writePos, padHeader.Encode()); err != nil {
			return 0, err
		}
		if skip > 0 {
			if err := r.zeroFillAt(r.writePos+format.WalRecordHeaderSize, skip); err != nil {
				return 0, err
			}
		}
		r.advancePending(contiguous)
		r.writePos = 0
		r.counters.WrapCount++
		sequence++
	}

	dataHeader := format.NewDataRecordHeader(sequence, body)
	record := append(dataHeader.Encode(), body...)
	if err := r.writeAt(r.writePos, record); err != nil {
		return 0, err
	}
	r.counters.WriteCallCount++

	postPos := r.writePos + entrySize
	remaining := r.size - postPos

	if remaining >= format.WalRecordHeaderSize {
		combined := append(record, make([]byte, format.WalRecordHeaderSize)...)
		if err := r.writeAt(r.writePos, combined); err != nil {
			return 0, err
		}
	} else if remaining > 0 {
		if err := r.zeroFillAt(postPos, remaining); err != nil {
			return 0, err
		}
		r.counters.SentinelWriteCount++
	} else {
		r.counters.SentinelWriteCount++
	}

	r.advancePending(entrySize)
	r.writePos = postPos
	r.lastSequence = sequence

	return sequence, nil
}

func (r *Ring) advancePending(n uint64) {
	r.pendingBytes += n
}

func (r *Ring) writeAt(relPos uint64, data []byte) error {
	if err := filesys.WriteAllAt(r.file, int64(r.region+relPos), data); err != nil {
		return errors.ClassifySyncError(err, r.file.Name(), int64(r.region+relPos))
	}
	return nil
}

func (r *Ring) zeroFillAt(relPos, n uint64) error {
	if n == 0 {
		return nil
	}
	return r.writeAt(relPos, make([]byte, n))
}
