package storage

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"
)

// DiskManager performs raw page I/O against a single backing file. It is
// the external collaborator named in spec.md §6: page-id allocation and
// deallocation, plus blocking whole-page reads and writes. The buffer
// pool is the only caller; nothing above the disk manager knows about
// file offsets.
//
// AllocatePage always hands out a fresh, monotonically increasing id —
// it never reuses a deallocated one. spec.md §8 scenario S4 depends on
// this: a NewPage immediately following a DeletePage must return a page
// id distinct from the one just deleted, only reusing the buffer pool
// *frame*, not the disk-level id. DeallocatePage still records freed ids
// (FreedPageCount) rather than erroring, unlike the teacher's stub —
// that bookkeeping is available to a future space-reclamation pass, it
// simply isn't consulted by AllocatePage.
type DiskManager struct {
	mu sync.Mutex

	file     *os.File
	path     string
	pageSize int
	numPages uint32
	freed    []PageID

	log *zap.Logger
}

// NewDiskManager opens (creating if necessary) the file at path and
// prepares it to serve pageSize-byte pages. A nil logger is treated as
// zap.NewNop().
func NewDiskManager(path string, pageSize int, log *zap.Logger) (*DiskManager, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("page size must be positive, got %d", pageSize)
	}
	if log == nil {
		log = zap.NewNop()
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", ErrIO, path, err)
	}
	fi, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: statting %s: %v", ErrIO, path, err)
	}
	dm := &DiskManager{
		file:     file,
		path:     path,
		pageSize: pageSize,
		numPages: uint32(fi.Size() / int64(pageSize)),
		log:      log,
	}
	log.Debug("disk manager opened", zap.String("path", path), zap.Int("page_size", pageSize), zap.Uint32("num_pages", dm.numPages))
	return dm, nil
}

// GetPageSize returns the configured page size in bytes.
func (dm *DiskManager) GetPageSize() int { return dm.pageSize }

// ReadPage reads pageSize bytes for id into buf, which must already be
// sized to GetPageSize().
func (dm *DiskManager) ReadPage(id PageID, buf []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return ErrFileClosed
	}
	if len(buf) != dm.pageSize {
		return fmt.Errorf("%w: got %d, want %d", ErrPageSizeMismatch, len(buf), dm.pageSize)
	}
	offset := int64(id) * int64(dm.pageSize)
	n, err := dm.file.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return fmt.Errorf("%w: reading page %s at offset %d: %v", ErrIO, id, offset, err)
	}
	if n != dm.pageSize {
		return fmt.Errorf("%w: short read for page %s: got %d bytes, want %d", ErrIO, id, n, dm.pageSize)
	}
	return nil
}

// WritePage writes buf (exactly pageSize bytes) to id's location.
func (dm *DiskManager) WritePage(id PageID, buf []byte) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return ErrFileClosed
	}
	if len(buf) != dm.pageSize {
		return fmt.Errorf("%w: got %d, want %d", ErrPageSizeMismatch, len(buf), dm.pageSize)
	}
	offset := int64(id) * int64(dm.pageSize)
	if _, err := dm.file.WriteAt(buf, offset); err != nil {
		return fmt.Errorf("%w: writing page %s at offset %d: %v", ErrIO, id, offset, err)
	}
	return nil
}

// AllocatePage returns a fresh page id by extending the file. It never
// reuses an id handed to DeallocatePage.
func (dm *DiskManager) AllocatePage() (PageID, error) {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return InvalidPageID, ErrFileClosed
	}
	id := PageID(dm.numPages)
	offset := int64(id) * int64(dm.pageSize)
	if _, err := dm.file.WriteAt(make([]byte, dm.pageSize), offset); err != nil {
		return InvalidPageID, fmt.Errorf("%w: extending file for page %s: %v", ErrIO, id, err)
	}
	dm.numPages++
	dm.log.Debug("allocated page by extending file", zap.Stringer("page_id", id), zap.Uint32("num_pages", dm.numPages))
	return id, nil
}

// DeallocatePage records id as free. Unlike the teacher's stub (which
// returned a "not fully implemented" error), this always succeeds — the
// id itself is not reused by AllocatePage, see the FreedPageCount doc.
func (dm *DiskManager) DeallocatePage(id PageID) error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return ErrFileClosed
	}
	dm.freed = append(dm.freed, id)
	dm.log.Debug("deallocated page", zap.Stringer("page_id", id))
	return nil
}

// FreedPageCount reports how many page ids have been deallocated. It is
// a bookkeeping hook for a future space-reclamation pass; AllocatePage
// does not consult it.
func (dm *DiskManager) FreedPageCount() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.freed)
}

// Sync flushes buffered writes to stable storage.
func (dm *DiskManager) Sync() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return ErrFileClosed
	}
	if err := dm.file.Sync(); err != nil {
		return fmt.Errorf("%w: syncing %s: %v", ErrIO, dm.path, err)
	}
	return nil
}

// Close syncs and closes the backing file.
func (dm *DiskManager) Close() error {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.file == nil {
		return nil
	}
	syncErr := dm.file.Sync()
	closeErr := dm.file.Close()
	dm.file = nil
	if syncErr != nil {
		return fmt.Errorf("%w: syncing on close: %v", ErrIO, syncErr)
	}
	if closeErr != nil {
		return fmt.Errorf("%w: closing %s: %v", ErrIO, dm.path, closeErr)
	}
	return nil
}
