package storage

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/rdhar/pagecache/core/replacer"
	"github.com/rdhar/pagecache/pkg/telemetry"
)

// BufferPool owns a fixed-size array of frames, the page-id to frame-index
// mapping, and a free list, and mediates Fetch/New/Unpin/Flush/Delete
// against a Clock replacer and a DiskManager. It is the sole owner of
// frames, the replacer, and the page table (see spec.md §9 on cyclic
// ownership): everything it hands callers is a borrowed *Frame whose
// lifetime is the pool's.
//
// Grounded on original_source/src/buffer/buffer_pool_manager.cpp and the
// teacher's core/write_engine/memtable/bufferpoolmanager.go for lock
// ordering and method shape; the eviction policy itself is delegated to
// replacer.Clock rather than the teacher's container/list LRU.
type BufferPool struct {
	mu sync.Mutex // pool-wide latch: page table, free list, frame metadata

	frames    []*Frame
	pageTable map[PageID]int // page_id -> frame index
	freeList  []int          // frame indices holding no logical page

	replacer *replacer.Clock
	disk     *DiskManager
	log      *zap.Logger

	// wal is the log manager collaborator named in spec.md §6: held by
	// reference, never invoked by any operation below.
	wal WriteAheadLogger

	tel     *telemetry.Telemetry
	metrics *telemetry.BufferPoolMetrics
}

// WriteAheadLogger is the minimal surface the buffer pool keeps a
// reference to but never calls, per spec.md §6 ("held by reference; not
// invoked ... reserved for future WAL integration"). core/wal.LogManager
// satisfies it.
type WriteAheadLogger interface {
	Close() error
}

// NewBufferPool constructs a pool of poolSize frames, each pageSize bytes.
// log and tel may be nil (treated as no-ops); wal may be nil. tel's
// BufferPoolMetrics are derived internally rather than passed
// separately, so a caller only has one telemetry handle to thread
// through construction.
func NewBufferPool(poolSize, pageSize int, disk *DiskManager, wal WriteAheadLogger, log *zap.Logger, tel *telemetry.Telemetry) *BufferPool {
	if log == nil {
		log = zap.NewNop()
	}
	metrics, err := telemetry.NewBufferPoolMetrics(tel)
	if err != nil {
		log.Warn("buffer pool: metrics unavailable, recording is disabled", zap.Error(err))
	}
	frames := make([]*Frame, poolSize)
	freeList := make([]int, poolSize)
	for i := 0; i < poolSize; i++ {
		frames[i] = newFrame(pageSize, log)
		freeList[i] = i
	}
	return &BufferPool{
		frames:    frames,
		pageTable: make(map[PageID]int, poolSize),
		freeList:  freeList,
		replacer:  replacer.NewClock(poolSize),
		disk:      disk,
		wal:       wal,
		log:       log,
		tel:       tel,
		metrics:   metrics,
	}
}

// FetchPage returns a pinned handle to page_id, reading it from disk if it
// is not already resident. Returns (nil, false) if the pool is exhausted
// (every frame pinned and no free frame available).
func (bp *BufferPool) FetchPage(ctx context.Context, pageID PageID) (*Frame, bool) {
	ctx, span := bp.tel.StartSpan(ctx, "BufferPool.FetchPage")
	defer span.End()

	bp.mu.Lock()
	if idx, ok := bp.pageTable[pageID]; ok {
		frame := bp.frames[idx]
		frame.pinCount++
		newlyPinned := frame.pinCount == 1
		if newlyPinned {
			bp.replacer.Pin(idx)
		}
		bp.mu.Unlock()
		if newlyPinned {
			bp.recordPinDelta(ctx, 1)
		}
		bp.metrics.RecordHit(ctx)
		bp.log.Debug("fetch page: hit", zap.Stringer("page_id", pageID), zap.Int("frame", idx), zap.Int("pin_count", frame.pinCount))
		return frame, true
	}
	if len(bp.freeList) == 0 && bp.replacer.Size() == 0 {
		bp.mu.Unlock()
		bp.log.Debug("fetch page: pool exhausted", zap.Stringer("page_id", pageID))
		return nil, false
	}
	bp.metrics.RecordFault(ctx)
	frame, err := bp.replaceAndUpdate(ctx, pageID, false)
	if err != nil {
		bp.log.Error("fetch page: replace failed", zap.Stringer("page_id", pageID), zap.Error(err))
		return nil, false
	}
	bp.recordPinDelta(ctx, 1)
	return frame, true
}

// NewPage allocates a fresh page id via the disk manager and returns a
// pinned, zeroed handle to it. Returns (nil, InvalidPageID, false) if the
// pool is exhausted.
func (bp *BufferPool) NewPage(ctx context.Context) (*Frame, PageID, bool) {
	ctx, span := bp.tel.StartSpan(ctx, "BufferPool.NewPage")
	defer span.End()

	bp.mu.Lock()
	if len(bp.freeList) == 0 && bp.replacer.Size() == 0 {
		bp.mu.Unlock()
		bp.log.Debug("new page: pool exhausted")
		return nil, InvalidPageID, false
	}
	pageID, err := bp.disk.AllocatePage()
	if err != nil {
		bp.mu.Unlock()
		bp.log.Error("new page: disk allocation failed", zap.Error(err))
		return nil, InvalidPageID, false
	}
	frame, err := bp.replaceAndUpdate(ctx, pageID, true)
	if err != nil {
		bp.log.Error("new page: replace failed", zap.Stringer("page_id", pageID), zap.Error(err))
		return nil, InvalidPageID, false
	}
	bp.recordPinDelta(ctx, 1)
	bp.log.Debug("new page", zap.Stringer("page_id", pageID))
	return frame, pageID, true
}

// UnpinPage decrements page_id's pin count, ORing isDirty into the
// frame's dirty bit (dirty is sticky until a flush). Returns false if
// page_id is not resident or its pin count is already zero.
func (bp *BufferPool) UnpinPage(ctx context.Context, pageID PageID, isDirty bool) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()
	idx, ok := bp.pageTable[pageID]
	if !ok {
		return false
	}
	frame := bp.frames[idx]
	if frame.pinCount <= 0 {
		return false
	}
	frame.isDirty = frame.isDirty || isDirty
	frame.pinCount--
	if frame.pinCount == 0 {
		bp.replacer.Unpin(idx)
		bp.recordPinDelta(ctx, -1)
	}
	bp.log.Debug("unpin page", zap.Stringer("page_id", pageID), zap.Bool("is_dirty", isDirty), zap.Int("pin_count", frame.pinCount))
	return true
}

// FlushPage writes page_id's bytes to disk if dirty, and clears the dirty
// bit. Returns false if page_id is not resident.
func (bp *BufferPool) FlushPage(ctx context.Context, pageID PageID) bool {
	bp.mu.Lock()
	idx, ok := bp.pageTable[pageID]
	if !ok {
		bp.mu.Unlock()
		return false
	}
	frame := bp.frames[idx]
	frame.Lock()
	bp.mu.Unlock()
	defer frame.Unlock()

	if frame.pageID != InvalidPageID && frame.isDirty {
		if err := bp.disk.WritePage(frame.pageID, frame.data); err != nil {
			bp.log.Error("flush page: write failed", zap.Stringer("page_id", frame.pageID), zap.Error(err))
			return false
		}
		frame.isDirty = false
		bp.metrics.RecordDirtyWriteback(ctx)
		bp.log.Debug("flush page", zap.Stringer("page_id", pageID))
	}
	return true
}

// FlushAllPages writes every dirty resident frame to disk.
func (bp *BufferPool) FlushAllPages(ctx context.Context) {
	bp.mu.Lock()
	pageIDs := make([]PageID, 0, len(bp.pageTable))
	for pid := range bp.pageTable {
		pageIDs = append(pageIDs, pid)
	}
	bp.mu.Unlock()
	for _, pid := range pageIDs {
		bp.FlushPage(ctx, pid)
	}
}

// DeletePage removes page_id from the pool, deallocating it on disk.
// Returns false if the page is currently pinned (in use). If the page is
// not resident, it is deallocated on disk anyway and this reports true.
//
// spec.md §9 Open Questions: the original C++ returns false on this
// success path; this implementation returns true for consistency with
// the rest of the boolean-contract API (see DESIGN.md).
//
// Latch ordering follows original_source/buffer_pool_manager.cpp's
// DeletePageImpl exactly: the frame's write latch is taken while the
// pool latch is still held, before the pin-count check and before idx
// is exposed via the free list, and is held through DeallocatePage and
// the memory reset, only releasing at the very end. Exposing idx on the
// free list before the frame latch is held would let a concurrent
// FetchPage/NewPage claim and repopulate the frame while this call is
// still resetting it, clobbering the newer page's metadata.
func (bp *BufferPool) DeletePage(pageID PageID) bool {
	bp.mu.Lock()
	idx, ok := bp.pageTable[pageID]
	if !ok {
		bp.mu.Unlock()
		if err := bp.disk.DeallocatePage(pageID); err != nil {
			bp.log.Error("delete page: deallocate failed", zap.Stringer("page_id", pageID), zap.Error(err))
		}
		return true
	}
	frame := bp.frames[idx]
	frame.Lock()
	if frame.pinCount > 0 {
		bp.mu.Unlock()
		frame.Unlock()
		bp.log.Debug("delete page: in use", zap.Stringer("page_id", pageID), zap.Int("pin_count", frame.pinCount))
		return false
	}
	bp.replacer.Pin(idx) // exclude from future eviction sweeps
	delete(bp.pageTable, pageID)
	bp.freeList = append(bp.freeList, idx)
	bp.mu.Unlock()

	if err := bp.disk.DeallocatePage(pageID); err != nil {
		bp.log.Error("delete page: deallocate failed", zap.Stringer("page_id", pageID), zap.Error(err))
	}
	frame.reset()
	frame.Unlock()
	bp.log.Debug("delete page", zap.Stringer("page_id", pageID))
	return true
}

// replaceAndUpdate implements spec.md §4.2's Replace-and-Update: it is
// called with bp.mu held, and is responsible for releasing it before any
// disk I/O. The free list is drained before the replacer is consulted,
// matching spec.md's ordering.
func (bp *BufferPool) replaceAndUpdate(ctx context.Context, newPageID PageID, isNew bool) (*Frame, error) {
	_, span := bp.tel.StartSpan(ctx, "BufferPool.replaceAndUpdate")
	defer span.End()

	var idx int
	var evicted PageID
	wasEviction := false

	if n := len(bp.freeList); n > 0 {
		idx = bp.freeList[0]
		bp.freeList = bp.freeList[1:]
		bp.pageTable[newPageID] = idx
	} else {
		var ok bool
		idx, ok = bp.replacer.Victim()
		if !ok {
			bp.mu.Unlock()
			return nil, fmt.Errorf("%w: replacer reported a candidate but returned none", ErrBufferPoolFull)
		}
		evicted = bp.frames[idx].pageID
		wasEviction = true
		delete(bp.pageTable, evicted)
		bp.pageTable[newPageID] = idx
		bp.replacer.Pin(idx) // defensive; Victim already decremented size
	}

	frame := bp.frames[idx]
	frame.Lock()
	bp.mu.Unlock() // lock handoff: pool latch released, frame latch held across I/O

	if wasEviction && frame.isDirty {
		if err := bp.disk.WritePage(evicted, frame.data); err != nil {
			frame.Unlock()
			return nil, fmt.Errorf("writing back evicted page %s: %w", evicted, err)
		}
		bp.metrics.RecordDirtyWriteback(ctx)
		bp.log.Debug("evicted dirty page written back", zap.Stringer("page_id", evicted), zap.Int("frame", idx))
	}
	if wasEviction {
		bp.metrics.RecordEviction(ctx)
	}

	if isNew {
		for i := range frame.data {
			frame.data[i] = 0
		}
	} else if err := bp.disk.ReadPage(newPageID, frame.data); err != nil {
		frame.Unlock()
		return nil, fmt.Errorf("reading page %s: %w", newPageID, err)
	}

	frame.pageID = newPageID
	frame.pinCount = 1
	frame.isDirty = isNew
	frame.Unlock()

	bp.log.Debug("replace and update", zap.Stringer("page_id", newPageID), zap.Int("frame", idx), zap.Bool("is_new", isNew), zap.Bool("was_eviction", wasEviction))
	return frame, nil
}

func (bp *BufferPool) recordPinDelta(ctx context.Context, delta int64) {
	bp.metrics.AdjustPinned(ctx, delta)
}

// PoolSize returns the number of frames in the pool.
func (bp *BufferPool) PoolSize() int { return len(bp.frames) }
