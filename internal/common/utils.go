// Package common holds small helpers shared across the buffer pool core
// that don't belong to any one package. Trimmed from the teacher's
// internal/common_utils: CopyToSyncMap survived nothing here needs it
// (no sync.Map in this scope), so only GoID remains, used by debug log
// lines that want to show which goroutine touched a frame latch.
package common

import (
	"bytes"
	"runtime"
	"strconv"
)

// GoID extracts the calling goroutine's id by parsing the first line of
// a runtime.Stack dump. It exists purely for diagnostic log fields —
// nothing in this package's scope uses goroutine ids for control flow.
func GoID() int64 {
	b := make([]byte, 64)
	b = b[:runtime.Stack(b, false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	i := bytes.IndexByte(b, ' ')
	if i < 0 {
		return -1
	}
	n, err := strconv.ParseInt(string(b[:i]), 10, 64)
	if err != nil {
		return -1
	}
	return n
}
