// Package replacer implements the buffer pool's eviction policy: a
// second-chance ("clock") approximation of LRU over a fixed set of
// frame slots.
package replacer

import (
	"fmt"
	"sync"
)

// Clock tracks, for each frame in the pool, whether it is currently a
// candidate for eviction (exists) and whether it has been touched since
// the last sweep (ref). Victim sweeps the cells starting at hand,
// clearing ref bits on a first pass and evicting the first frame it
// finds with exists=true, ref=false.
//
// This is a direct port of the second-chance algorithm: see
// original_source/src/buffer/clock_replacer.cpp for the C++ this was
// modeled on. The hand does not advance past a chosen victim; the next
// sweep starts at the same index, which is equivalent to advancing by
// zero and keeps the implementation simple without weakening fairness
// (every unreferenced frame is still visited within one rotation).
type Clock struct {
	mu    sync.RWMutex
	cells []cell
	hand  int
	size  int
}

type cell struct {
	exists bool
	ref    bool
}

// NewClock creates a replacer sized for numFrames frame ids, 0..numFrames-1.
// All frames start out not-a-candidate (exists=false): a fresh buffer
// pool has every frame on the free list, not in the replacer.
func NewClock(numFrames int) *Clock {
	return &Clock{cells: make([]cell, numFrames)}
}

func (c *Clock) checkBounds(frameID int) {
	if frameID < 0 || frameID >= len(c.cells) {
		panic(fmt.Sprintf("replacer: frame id %d out of range [0,%d)", frameID, len(c.cells)))
	}
}

// Victim selects an eviction candidate in second-chance order. It
// returns (0, false) if no frame is currently a candidate.
func (c *Clock) Victim() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.size == 0 {
		return 0, false
	}
	for {
		i := c.hand
		switch {
		case !c.cells[i].exists:
			// not a candidate, keep sweeping
		case c.cells[i].ref:
			c.cells[i].ref = false // grant a second chance
		default:
			c.cells[i].exists = false
			c.size--
			// Hand stays put: the cell just cleared is a natural place
			// for the next sweep to resume, per spec.md §4.1.
			return i, true
		}
		c.hand = (c.hand + 1) % len(c.cells)
	}
}

// Pin removes frameID from the candidate set, if present, and clears its
// reference bit. Idempotent when the frame was already pinned.
func (c *Clock) Pin(frameID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkBounds(frameID)
	if c.cells[frameID].exists {
		c.cells[frameID].exists = false
		c.size--
	}
	c.cells[frameID].ref = false
}

// Unpin marks frameID as an eviction candidate with its reference bit
// set. Idempotent when the frame is already unpinned.
func (c *Clock) Unpin(frameID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checkBounds(frameID)
	if !c.cells[frameID].exists {
		c.cells[frameID].exists = true
		c.size++
	}
	c.cells[frameID].ref = true
}

// Size reports the number of frames currently eligible for eviction.
func (c *Clock) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size
}
