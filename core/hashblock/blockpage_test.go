package hashblock

import (
	"encoding/binary"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdhar/pagecache/core/storage"
)

// int32Codec is a fixed-width Codec[int32] used by these tests, standing
// in for the generated-key comparators (GenericKey<N>) the original C++
// tests used int/RID for.
type int32Codec struct{}

func (int32Codec) Size() int { return 4 }
func (int32Codec) Encode(dst []byte, v int32) {
	binary.LittleEndian.PutUint32(dst, uint32(v))
}
func (int32Codec) Decode(src []byte) int32 {
	return int32(binary.LittleEndian.Uint32(src))
}

// ridCodec is a fixed-width Codec[storage.RID], the value type the block
// page is actually documented and modeled to hold (see storage.RID's doc
// comment and original_source/.../hash_table_block_page.h's RID value
// type).
type ridCodec struct{}

func (ridCodec) Size() int { return 8 }
func (ridCodec) Encode(dst []byte, v storage.RID) {
	binary.LittleEndian.PutUint32(dst[0:4], uint32(v.PageID))
	binary.LittleEndian.PutUint32(dst[4:8], v.SlotNum)
}
func (ridCodec) Decode(src []byte) storage.RID {
	return storage.RID{
		PageID:  storage.PageID(binary.LittleEndian.Uint32(src[0:4])),
		SlotNum: binary.LittleEndian.Uint32(src[4:8]),
	}
}

func newTestPage(t *testing.T) *BlockPage[int32, storage.RID] {
	t.Helper()
	buf := make([]byte, 256)
	return New[int32, storage.RID](buf, int32Codec{}, ridCodec{})
}

func TestMaxSlots(t *testing.T) {
	// 4 bytes key + 8 byte RID value = 12 byte slots, three persisted
	// bitmaps (occupied, readable, claimed).
	n := MaxSlots(256, 12)
	require.Greater(t, n, 0)
	bmBytes := bitmapBytesFor(n)
	assert.LessOrEqual(t, 3*bmBytes+n*12, 256)
	// n+1 slots must not fit.
	bmBytesNext := bitmapBytesFor(n + 1)
	assert.Greater(t, 3*bmBytesNext+(n+1)*12, 256)
}

func TestInsertReadRoundTrip(t *testing.T) {
	bp := newTestPage(t)
	rid := storage.RID{PageID: 99, SlotNum: 3}
	ok := bp.Insert(5, 42, rid)
	require.True(t, ok)
	assert.True(t, bp.IsOccupied(5))
	assert.True(t, bp.IsReadable(5))
	assert.Equal(t, int32(42), bp.KeyAt(5))
	assert.Equal(t, rid, bp.ValueAt(5))
}

func TestInsertIntoLiveSlotFails(t *testing.T) {
	bp := newTestPage(t)
	require.True(t, bp.Insert(0, 1, storage.RID{PageID: 1, SlotNum: 1}))
	assert.False(t, bp.Insert(0, 2, storage.RID{PageID: 2, SlotNum: 2}))
	// Original payload is untouched.
	assert.Equal(t, int32(1), bp.KeyAt(0))
}

// TestTombstoneLaw is spec.md §8 property 6 / §8 scenario S6.
func TestTombstoneLaw(t *testing.T) {
	bp := newTestPage(t)
	require.True(t, bp.Insert(5, 1, storage.RID{PageID: 1, SlotNum: 1}))
	bp.Remove(5)
	assert.True(t, bp.IsOccupied(5))
	assert.False(t, bp.IsReadable(5))
	rid2 := storage.RID{PageID: 2, SlotNum: 2}
	assert.True(t, bp.Insert(5, 2, rid2))
	assert.Equal(t, int32(2), bp.KeyAt(5))
	assert.Equal(t, rid2, bp.ValueAt(5))
}

func TestEmptySlotIsNeitherOccupiedNorReadable(t *testing.T) {
	bp := newTestPage(t)
	assert.False(t, bp.IsOccupied(3))
	assert.False(t, bp.IsReadable(3))
}

// TestConcurrentInsertSameSlot verifies that at most one of many racing
// inserts on the same never-occupied slot succeeds, all racing against a
// single BlockPage instance.
func TestConcurrentInsertSameSlot(t *testing.T) {
	bp := newTestPage(t)
	const n = 32
	results := make([]bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = bp.Insert(7, int32(i), storage.RID{PageID: storage.PageID(i), SlotNum: uint32(i)})
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, ok := range results {
		if ok {
			successes++
		}
	}
	assert.Equal(t, 1, successes)
	assert.True(t, bp.IsReadable(7))
}

// TestConcurrentInsertSameSlotAcrossViews exercises the documented usage
// pattern directly: two independently constructed BlockPage values
// wrapping the *same* underlying byte slice, racing to insert into the
// same slot. Claiming must be visible across views since it lives in buf,
// not in either BlockPage struct.
func TestConcurrentInsertSameSlotAcrossViews(t *testing.T) {
	buf := make([]byte, 256)
	bpA := New[int32, storage.RID](buf, int32Codec{}, ridCodec{})
	bpB := New[int32, storage.RID](buf, int32Codec{}, ridCodec{})

	var wg sync.WaitGroup
	var okA, okB bool
	wg.Add(2)
	go func() {
		defer wg.Done()
		okA = bpA.Insert(7, 1, storage.RID{PageID: 1, SlotNum: 1})
	}()
	go func() {
		defer wg.Done()
		okB = bpB.Insert(7, 2, storage.RID{PageID: 2, SlotNum: 2})
	}()
	wg.Wait()

	assert.NotEqual(t, okA, okB, "exactly one of the two racing views must win the claim")
	assert.True(t, bpA.IsReadable(7))
}

// TestManySlotsAcrossBitmapWords populates a page wide enough to span
// more than one 4-byte (32-bit) bitmap word, then interleaves removes
// and reinserts on a scattered subset. It asserts every slot's key/value
// bytes stay correct throughout, which catches bitmap-region aliasing
// bugs (e.g. a wrong base offset in wordPtr) that a test touching only
// one or two slots at a time cannot: such a bug would have the
// occupied/readable/claimed bitmaps and the slot array overlapping in
// buf, so writes meant for one slot's bitmap bit corrupt another slot's
// stored payload once the page has enough slots to need more than one
// bitmap word.
func TestManySlotsAcrossBitmapWords(t *testing.T) {
	buf := make([]byte, 1024)
	bp := New[int32, storage.RID](buf, int32Codec{}, ridCodec{})
	n := bp.NumSlots()
	require.Greater(t, n, 32, "test needs more slots than fit in one 32-bit bitmap word")

	for i := 0; i < n; i++ {
		rid := storage.RID{PageID: storage.PageID(i), SlotNum: uint32(i)}
		require.True(t, bp.Insert(i, int32(i*7+1), rid))
	}

	// Scatter removes and reinserts across the full slot range, so any
	// bitmap write that lands on the wrong byte would clobber some other
	// slot's array bytes.
	for i := 0; i < n; i += 5 {
		bp.Remove(i)
		rid := storage.RID{PageID: storage.PageID(i + 1000), SlotNum: uint32(i)}
		require.True(t, bp.Insert(i, int32(i*7+2), rid))
	}

	for i := 0; i < n; i++ {
		assert.True(t, bp.IsReadable(i))
		if i%5 == 0 {
			assert.Equal(t, int32(i*7+2), bp.KeyAt(i))
			assert.Equal(t, storage.RID{PageID: storage.PageID(i + 1000), SlotNum: uint32(i)}, bp.ValueAt(i))
		} else {
			assert.Equal(t, int32(i*7+1), bp.KeyAt(i))
			assert.Equal(t, storage.RID{PageID: storage.PageID(i), SlotNum: uint32(i)}, bp.ValueAt(i))
		}
	}
}

func TestOutOfRangeSlotPanics(t *testing.T) {
	bp := newTestPage(t)
	assert.Panics(t, func() { bp.Insert(bp.NumSlots(), 1, storage.RID{}) })
	assert.Panics(t, func() { bp.IsOccupied(-1) })
}
