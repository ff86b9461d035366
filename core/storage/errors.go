package storage

import "errors"

// Sentinel errors returned by the disk manager and used internally by the
// buffer pool. The public BufferPool operations (Fetch/New/Unpin/Flush/
// Delete) keep the boolean/nil-handle contract from spec.md §7; these
// errors back the disk-I/O tier and reach callers of the DiskManager
// methods directly (e.g. tests). The BufferPool logs them but does not
// return them, so its callers see only a false or nil result.
var (
	ErrPageNotFound   = errors.New("page not found in buffer pool")
	ErrBufferPoolFull = errors.New("buffer pool is full and no pages can be evicted")
	ErrPagePinned     = errors.New("page is pinned and cannot be evicted")
	ErrIO             = errors.New("disk i/o error")
	ErrFileClosed     = errors.New("disk manager file is not open")
	ErrPageSizeMismatch = errors.New("page data buffer size does not match configured page size")
)
