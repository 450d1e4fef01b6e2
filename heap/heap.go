// Package heap implements a fixed-capacity malloc/free emulation inside a
// single arena buffer. Blocks align to a fixed slot size, block headers are
// encoded in the arena bytes themselves, and free blocks form a doubly-linked
// list threaded through those headers. Allocation is first-fit with block
// splitting; adjacent free blocks are never coalesced.
package heap

import (
	"fmt"

	cerrors "github.com/cockroachdb/errors"
	"github.com/pkg/errors"
	"golang.org/x/exp/slog"

	"github.com/oliverschwartz/alloc"
	"github.com/oliverschwartz/alloc/arena"
)

const (
	// maxSlots is the hard cap on slots per arena: slot offsets travel in
	// single-byte link fields, so offsets above 255 cannot be encoded.
	maxSlots = 256
	// minSlotSize leaves room for the three free-header bytes plus at least
	// one usable byte in a single-slot block.
	minSlotSize = 4
)

// Config carries the construction parameters for a Heap.
type Config struct {
	// Capacity is the total arena size in bytes. It must be a positive
	// multiple of SlotSize, and Capacity/SlotSize may not exceed 256.
	Capacity int
	// SlotSize is the allocation granularity in bytes, at least 4. Every
	// block occupies a whole number of slots.
	SlotSize int
}

// Region is a view into the arena returned by Alloc: the byte position of the
// caller's usable area and its capacity in bytes. The byte immediately before
// Start belongs to the block header and must not be touched.
type Region struct {
	Start int
	Size  int
}

// Heap manages one arena. All allocator state other than the allocation
// counter (which is diagnostic only) lives inside the arena's bytes. A Heap
// is not safe for concurrent use.
type Heap struct {
	arena    *arena.Arena
	slotSize int
	slots    int

	allocCount int
}

var _ alloc.Validatable = &Heap{}

// New creates a Heap over a fresh zeroed arena and establishes the initial
// free list: a single block covering every slot except the reserved slot 0.
func New(config Config) (*Heap, error) {
	if config.SlotSize < minSlotSize {
		return nil, cerrors.Wrapf(alloc.ErrInvalidConfig, "slot size is %d, but at least %d bytes are needed for block headers", config.SlotSize, minSlotSize)
	}
	if err := alloc.CheckMultiple(config.Capacity, config.SlotSize, "capacity"); err != nil {
		return nil, err
	}

	slots := config.Capacity / config.SlotSize
	if slots > maxSlots {
		return nil, cerrors.Wrapf(alloc.ErrInvalidConfig, "%d slots requested, but single-byte link fields cap an arena at %d", slots, maxSlots)
	}
	if slots < 2 {
		return nil, cerrors.Wrapf(alloc.ErrInvalidConfig, "%d slots leave no allocatable space after the reserved slot", slots)
	}

	a, err := arena.New(config.Capacity)
	if err != nil {
		return nil, err
	}

	h := &Heap{
		arena:    a,
		slotSize: config.SlotSize,
		slots:    slots,
	}
	h.Clear()

	return h, nil
}

// Arena returns the underlying buffer, for filling allocated regions and for
// diagnostics. Writing outside regions returned by Alloc corrupts the heap.
func (h *Heap) Arena() *arena.Arena {
	return h.arena
}

// SlotSize returns the allocation granularity in bytes.
func (h *Heap) SlotSize() int {
	return h.slotSize
}

// Clear instantly frees all allocations, restoring the single free block that
// spans the whole arena minus the reserved slot. User bytes are not zeroed.
func (h *Heap) Clear() {
	h.setHead(noFreeBlocks)
	h.insertFreeBlock(1, h.slots-1)
	h.allocCount = 0
}

// Alloc finds or splits a free block able to hold n usable bytes and returns
// a Region describing it. The boolean is false when no free block fits; that
// is exhaustion, not an error, and the free list is left untouched. A non-nil
// error means the request could never succeed on this arena.
func (h *Heap) Alloc(n int) (bool, Region, error) {
	if n < 0 {
		return false, Region{}, errors.Errorf("allocation size must be non-negative, got %d", n)
	}

	alloc.DebugValidate(h)

	slots, err := h.requiredSlots(n)
	if err != nil {
		return false, Region{}, err
	}

	offset, ok := h.findFirstFit(slots * h.slotSize)
	if !ok {
		return false, Region{}, nil
	}

	blockSlots := h.blockBytes(offset) / h.slotSize
	h.removeFreeBlock(offset)

	// The remainder re-enters the free list before the allocated header is
	// written; there is no point where a block is in neither state.
	if blockSlots > slots {
		h.insertFreeBlock(offset+slots, blockSlots-slots)
	}

	h.setAllocatedLength(offset, slots)
	h.allocCount++

	return true, Region{
		Start: h.slotToByte(offset) + 1,
		Size:  slots*h.slotSize - 1,
	}, nil
}

// Free returns the block owning the provided region start to the free list.
// Only positions that could never have come from Alloc are rejected; freeing
// a position twice, or one that came from a different heap, corrupts the free
// list without detection.
func (h *Heap) Free(start int) error {
	if start <= h.slotSize || start >= h.arena.Capacity() {
		return errors.Errorf("position %d is not inside the arena's allocatable slots", start)
	}
	if (start-1)%h.slotSize != 0 {
		return errors.Errorf("position %d is not the start of an allocated region", start)
	}

	offset := (start - 1) / h.slotSize
	slots := h.allocatedLength(offset)

	h.insertFreeBlock(offset, slots)
	h.allocCount--

	return nil
}

// AllocationCount returns the number of live allocations.
func (h *Heap) AllocationCount() int {
	return h.allocCount
}

// IsEmpty returns true when no allocations are live.
func (h *Heap) IsEmpty() bool {
	return h.allocCount == 0
}

// SumFreeSize returns the total free bytes across the free list. Because free
// blocks are never merged, this can exceed the largest satisfiable request.
func (h *Heap) SumFreeSize() int {
	var sum int
	for offset := h.head(); offset != noFreeBlocks; offset = h.freeNext(offset) {
		sum += h.blockBytes(offset)
	}

	return sum
}

// FreeRegionsCount returns the number of blocks on the free list.
func (h *Heap) FreeRegionsCount() int {
	var count int
	for offset := h.head(); offset != noFreeBlocks; offset = h.freeNext(offset) {
		count++
	}

	return count
}

// LargestFreeRegion returns the size in bytes of the biggest free block, the
// upper bound on what a single Alloc can currently return.
func (h *Heap) LargestFreeRegion() int {
	var largest int
	for offset := h.head(); offset != noFreeBlocks; offset = h.freeNext(offset) {
		if h.blockBytes(offset) > largest {
			largest = h.blockBytes(offset)
		}
	}

	return largest
}

// managedBytes is the arena capacity minus the reserved slot.
func (h *Heap) managedBytes() int {
	return (h.slots - 1) * h.slotSize
}

// collectFreeBlocks walks the free list and marks each member's slot offset.
// The physical walk needs this because a block's header alone does not encode
// its state: the length byte moves depending on whether the block is free.
func (h *Heap) collectFreeBlocks() ([]bool, error) {
	freeSet := make([]bool, h.slots)

	for offset := h.head(); offset != noFreeBlocks; offset = h.freeNext(offset) {
		if offset < 1 || offset >= h.slots {
			return nil, errors.Errorf("free list references slot offset %d, outside the arena's %d slots", offset, h.slots)
		}
		if freeSet[offset] {
			return nil, errors.Errorf("free list visits slot offset %d twice", offset)
		}

		length := h.blockBytes(offset) / h.slotSize
		if length < 1 || offset+length > h.slots {
			return nil, errors.Errorf("free block at slot offset %d has length %d slots, which does not fit the arena", offset, length)
		}

		freeSet[offset] = true
	}

	return freeSet, nil
}

// VisitAllBlocks calls the provided callback once per block, free and
// allocated, in physical order. Positions and sizes are in bytes.
func (h *Heap) VisitAllBlocks(handleBlock func(pos int, size int, free bool) error) error {
	freeSet, err := h.collectFreeBlocks()
	if err != nil {
		return err
	}

	for offset := 1; offset < h.slots; {
		var length int
		if freeSet[offset] {
			length = h.blockBytes(offset) / h.slotSize
		} else {
			length = h.allocatedLength(offset)
		}

		if length < 1 || offset+length > h.slots {
			return errors.Errorf("block at slot offset %d has length %d slots, which does not fit the arena", offset, length)
		}

		err = handleBlock(h.slotToByte(offset), length*h.slotSize, freeSet[offset])
		if err != nil {
			return err
		}

		offset += length
	}

	return nil
}

// Validate performs internal consistency checks on the heap: the free list
// must be acyclic and doubly consistent, and the blocks must exactly tile the
// arena's allocatable slots. When the implementation is functioning correctly
// it should not be possible for this method to return an error.
func (h *Heap) Validate() error {
	head := h.head()
	if head >= h.slots {
		return errors.Errorf("free-list head is %d, outside the arena's %d slots", head, h.slots)
	}

	visited := make([]bool, h.slots)
	prev := noFreeBlocks
	var freeBytes int

	for offset := head; offset != noFreeBlocks; {
		if offset < 1 || offset >= h.slots {
			return errors.Errorf("free list references slot offset %d, outside the arena's %d slots", offset, h.slots)
		}
		if visited[offset] {
			return errors.Errorf("free list cycles back to slot offset %d", offset)
		}
		visited[offset] = true

		length := h.blockBytes(offset) / h.slotSize
		if length < 1 || offset+length > h.slots {
			return errors.Errorf("free block at slot offset %d has length %d slots, which does not fit the arena", offset, length)
		}

		if h.freePrev(offset) != prev {
			return errors.Errorf("free block at slot offset %d lists %d as its previous block, expected %d", offset, h.freePrev(offset), prev)
		}

		freeBytes += length * h.slotSize
		prev = offset
		offset = h.freeNext(offset)
	}

	var allocCount, allocBytes int
	for offset := 1; offset < h.slots; {
		var length int
		if visited[offset] {
			length = h.blockBytes(offset) / h.slotSize
		} else {
			length = h.allocatedLength(offset)
			allocCount++
			allocBytes += length * h.slotSize
		}

		if length < 1 {
			return errors.Errorf("block at slot offset %d has zero length", offset)
		}
		if offset+length > h.slots {
			return errors.Errorf("block at slot offset %d has length %d slots, which overruns the arena", offset, length)
		}

		offset += length
	}

	if allocCount != h.allocCount {
		return errors.Errorf("the heap reports %d live allocations, but the physical blocks only added up to %d", h.allocCount, allocCount)
	}

	if freeBytes+allocBytes != h.managedBytes() {
		return errors.Errorf("free and allocated blocks add up to %d bytes, but the arena manages %d", freeBytes+allocBytes, h.managedBytes())
	}

	return nil
}

// AddStatistics sums this heap's allocation statistics into the statistics
// currently present in the provided alloc.Statistics object.
func (h *Heap) AddStatistics(stats *alloc.Statistics) {
	stats.ArenaCount++
	stats.AllocationCount += h.allocCount
	stats.ArenaBytes += h.managedBytes()
	stats.AllocationBytes += h.managedBytes() - h.SumFreeSize()
}

// AddDetailedStatistics sums this heap's allocation statistics into the
// statistics currently present in the provided alloc.DetailedStatistics
// object.
func (h *Heap) AddDetailedStatistics(stats *alloc.DetailedStatistics) {
	stats.ArenaCount++
	stats.ArenaBytes += h.managedBytes()

	_ = h.VisitAllBlocks(
		func(pos int, size int, free bool) error {
			if free {
				stats.AddUnusedRange(size)
			} else {
				stats.AddAllocation(size)
			}

			return nil
		})
}

// DebugLogAllAllocations calls logFunc once for each live allocation.
func (h *Heap) DebugLogAllAllocations(logger *slog.Logger, logFunc func(log *slog.Logger, pos int, size int)) {
	err := h.VisitAllBlocks(
		func(pos int, size int, free bool) error {
			if !free {
				logFunc(logger, pos, size)
			}

			return nil
		})
	if err != nil {
		panic(fmt.Sprintf("heap state was too corrupt to enumerate allocations: %+v", err))
	}
}
