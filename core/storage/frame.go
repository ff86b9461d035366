package storage

import (
	"sync"

	"go.uber.org/zap"

	"github.com/rdhar/pagecache/internal/common"
)

// Frame is a fixed-size slot in the buffer pool. It holds the raw bytes of
// whichever page is currently resident, plus the metadata the buffer pool
// and replacer need to manage it. Frames are allocated once, at pool
// construction, and live for the pool's lifetime; only the page_id, bytes,
// pin count and dirty bit change as pages come and go.
//
// The frame's own latch is distinct from the pool-wide latch (see
// BufferPool.mu): it protects the byte contents during disk I/O, so a
// reader blocked on it waits for that I/O rather than for unrelated pool
// bookkeeping on other frames.
type Frame struct {
	latch sync.RWMutex
	log   *zap.Logger

	pageID   PageID
	data     []byte
	pinCount int
	isDirty  bool
}

// newFrame allocates a frame's backing buffer. Frames start out empty and
// on the pool's free list. log may be nil, in which case latch
// acquisitions are not logged.
func newFrame(pageSize int, log *zap.Logger) *Frame {
	if log == nil {
		log = zap.NewNop()
	}
	return &Frame{
		pageID: InvalidPageID,
		data:   make([]byte, pageSize),
		log:    log,
	}
}

// Data returns the frame's raw page bytes. Callers must hold at least a
// read latch (RLock) on the frame while inspecting them, and the write
// latch (Lock) while mutating them.
func (f *Frame) Data() []byte { return f.data }

// PageID reports which logical page currently occupies this frame, or
// InvalidPageID if it is free.
func (f *Frame) PageID() PageID { return f.pageID }

// IsDirty reports whether the frame's bytes differ from the on-disk copy.
func (f *Frame) IsDirty() bool { return f.isDirty }

// PinCount reports the number of outstanding pins on this frame.
func (f *Frame) PinCount() int { return f.pinCount }

func (f *Frame) reset() {
	f.pageID = InvalidPageID
	f.pinCount = 0
	f.isDirty = false
	for i := range f.data {
		f.data[i] = 0
	}
}

// RLock/RUnlock/Lock/Unlock expose the frame's latch directly so callers
// that already hold a pinned handle (e.g. a hash table block page view)
// can serialize concurrent readers and writers of the frame's bytes
// without going through the buffer pool again.
//
// Each acquisition logs a Debug line naming the calling goroutine, the
// teacher's page_manager/page.go equivalent of an unconditional
// commonutils.PrintCaller call on every Lock/Unlock, adapted here into a
// zap.Logger.Debug call gated by Check so it costs nothing once the
// logger's level is above Debug.
func (f *Frame) RLock() {
	f.latch.RLock()
	if ce := f.log.Check(zap.DebugLevel, "frame rlock"); ce != nil {
		ce.Write(zap.Stringer("page_id", f.pageID), zap.Int64("goroutine", common.GoID()))
	}
}

func (f *Frame) RUnlock() {
	if ce := f.log.Check(zap.DebugLevel, "frame runlock"); ce != nil {
		ce.Write(zap.Stringer("page_id", f.pageID), zap.Int64("goroutine", common.GoID()))
	}
	f.latch.RUnlock()
}

func (f *Frame) Lock() {
	f.latch.Lock()
	if ce := f.log.Check(zap.DebugLevel, "frame lock"); ce != nil {
		ce.Write(zap.Stringer("page_id", f.pageID), zap.Int64("goroutine", common.GoID()))
	}
}

func (f *Frame) Unlock() {
	if ce := f.log.Check(zap.DebugLevel, "frame unlock"); ce != nil {
		ce.Write(zap.Stringer("page_id", f.pageID), zap.Int64("goroutine", common.GoID()))
	}
	f.latch.Unlock()
}
