// Package wal implements the log manager collaborator named in spec.md
// §6: "held by reference; not invoked in the operations above (reserved
// for future WAL integration)". Nothing in core/storage calls Append;
// the type exists so that a caller wiring the buffer pool together can
// hand it a real, working log manager today and start invoking it later
// without changing the buffer pool's constructor signature.
//
// Trimmed from the teacher's core/write_engine/wal/log_manager.go, which
// additionally implements segment rotation, checkpointing, two-phase
// commit, and recovery (analysis/redo/undo passes) — all either
// transaction or recovery machinery, both explicit spec.md Non-goals.
// What survives is the append-only segment file and the LSN counter.
package wal

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

// LSN is a log sequence number: a monotonically increasing identifier
// assigned to each appended record.
type LSN uint64

// InvalidLSN is the reserved sentinel meaning "no record".
const InvalidLSN LSN = 0

// Record is a single WAL entry. PageID and Payload are opaque to this
// package — interpreting them is the job of whatever higher layer
// eventually calls Append, which this package's own callers do not.
type Record struct {
	LSN     LSN
	PageID  int32
	Payload []byte
}

// LogManager appends Records to a single append-only segment file and
// hands back the LSN assigned to each. It performs no rotation,
// archiving, or recovery — a restart starts a fresh LSN sequence over
// whatever bytes are already in the file, since nothing in this
// repository's scope ever replays the log.
type LogManager struct {
	mu  sync.Mutex
	dir string
	log *zap.Logger

	file       *os.File
	currentLSN LSN
}

// NewLogManager opens (creating if necessary) a single segment file
// named "wal.log" inside dir.
func NewLogManager(dir string, log *zap.Logger) (*LogManager, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating wal dir %s: %w", dir, err)
	}
	path := dir + "/wal.log"
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening wal segment %s: %w", path, err)
	}
	lm := &LogManager{dir: dir, log: log, file: file}
	log.Debug("log manager opened", zap.String("path", path))
	return lm, nil
}

// Append assigns the next LSN to rec, writes it to the active segment,
// and returns the assigned LSN. The on-disk encoding is a fixed header
// (lsn, page_id, payload length) followed by the payload bytes — no
// segment checksum or record type tag, since nothing reads this format
// back.
func (lm *LogManager) Append(rec Record) (LSN, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.file == nil {
		return InvalidLSN, fmt.Errorf("wal: log manager is closed")
	}
	lm.currentLSN++
	rec.LSN = lm.currentLSN

	header := make([]byte, 16)
	binary.LittleEndian.PutUint64(header[0:8], uint64(rec.LSN))
	binary.LittleEndian.PutUint32(header[8:12], uint32(rec.PageID))
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(rec.Payload)))
	if _, err := lm.file.Write(header); err != nil {
		return InvalidLSN, fmt.Errorf("writing wal record header: %w", err)
	}
	if len(rec.Payload) > 0 {
		if _, err := lm.file.Write(rec.Payload); err != nil {
			return InvalidLSN, fmt.Errorf("writing wal record payload: %w", err)
		}
	}
	lm.log.Debug("wal append", zap.Uint64("lsn", uint64(rec.LSN)), zap.Int32("page_id", rec.PageID), zap.Int("payload_len", len(rec.Payload)))
	return rec.LSN, nil
}

// Sync flushes the segment file to stable storage.
func (lm *LogManager) Sync() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.file == nil {
		return fmt.Errorf("wal: log manager is closed")
	}
	return lm.file.Sync()
}

// Close syncs and closes the segment file.
func (lm *LogManager) Close() error {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.file == nil {
		return nil
	}
	syncErr := lm.file.Sync()
	closeErr := lm.file.Close()
	lm.file = nil
	if syncErr != nil {
		return syncErr
	}
	return closeErr
}
