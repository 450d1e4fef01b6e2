package heap

import (
	cerrors "github.com/cockroachdb/errors"

	"github.com/oliverschwartz/alloc"
)

// Block headers live inside the arena itself and use two encodings for the
// same length field:
//
//   - free block: byte 0 holds the previous free block's slot offset, byte 1
//     holds the block length in slots, and the block's last byte holds the
//     next free block's slot offset
//   - allocated block: byte 0 holds the block length in slots and every
//     remaining byte belongs to the caller
//
// The user-visible position of an allocated block is its slot start plus one,
// so both encodings keep the length adjacent to the returned position.

// maxBlockSlots is the largest length a single-byte slot count can encode.
const maxBlockSlots = 255

// noFreeBlocks is the list terminator: slot 0 is reserved for the head
// pointer, so no real block can occupy offset 0.
const noFreeBlocks = 0

func (h *Heap) slotToByte(offset int) int {
	return offset * h.slotSize
}

// blockBytes returns the byte length of the block at offset, read through the
// free encoding. It is only meaningful while the block is on the free list.
func (h *Heap) blockBytes(offset int) int {
	slots := int(h.arena.At(h.slotToByte(offset) + 1))
	return slots * h.slotSize
}

func (h *Heap) freePrev(offset int) int {
	return int(h.arena.At(h.slotToByte(offset)))
}

func (h *Heap) freeNext(offset int) int {
	return int(h.arena.At(h.slotToByte(offset) + h.blockBytes(offset) - 1))
}

func (h *Heap) setFreePrev(offset, prev int) {
	h.arena.Set(h.slotToByte(offset), byte(prev))
}

func (h *Heap) setFreeNext(offset, next int) {
	h.arena.Set(h.slotToByte(offset)+h.blockBytes(offset)-1, byte(next))
}

// setFreeLength must be written before setFreeNext can locate the block's
// last byte.
func (h *Heap) setFreeLength(offset, slots int) {
	h.arena.Set(h.slotToByte(offset)+1, byte(slots))
}

func (h *Heap) setAllocatedLength(offset, slots int) {
	h.arena.Set(h.slotToByte(offset), byte(slots))
}

func (h *Heap) allocatedLength(offset int) int {
	return int(h.arena.At(h.slotToByte(offset)))
}

// requiredSlots converts a requested byte count into slot units. One byte is
// reserved ahead of the returned region for the allocated-length header. The
// size check happens before the rounding arithmetic so requests near the
// integer ceiling cannot wrap around it.
func (h *Heap) requiredSlots(n int) (int, error) {
	largest := maxBlockSlots
	if h.slots-1 < largest {
		largest = h.slots - 1
	}

	if n >= largest*h.slotSize {
		return 0, cerrors.Wrapf(alloc.ErrSizeTooLarge, "%d bytes do not fit in the largest possible block of %d slots", n, largest)
	}

	return alloc.CeilDiv(n+1, h.slotSize), nil
}
