// Package storage implements the buffer-pool core: fixed-size page frames,
// the buffer pool manager that pins and evicts them, and the disk manager
// that backs them with a file.
package storage

import "fmt"

// PageID identifies a logical on-disk page. It is a signed 32-bit integer
// so that InvalidPageID can be represented as a negative sentinel, matching
// the on-disk convention this package's disk manager uses.
type PageID int32

// InvalidPageID is the reserved sentinel meaning "no page" / "unallocated".
const InvalidPageID PageID = -1

func (id PageID) String() string {
	if id == InvalidPageID {
		return "<invalid>"
	}
	return fmt.Sprintf("page(%d)", int32(id))
}

// RID (record identifier) names a row's location as the page it lives on
// plus its slot within that page. It is the typical value type stored in a
// hash table block page (see core/hashblock), paired there with a key type
// supplied by the caller.
type RID struct {
	PageID  PageID
	SlotNum uint32
}
