package heap

// The free list is a doubly-linked list threaded through the free blocks'
// own headers. The only bookkeeping outside block headers is the head
// pointer, stored in the first byte of the reserved slot 0.

func (h *Heap) head() int {
	return int(h.arena.At(0))
}

func (h *Heap) setHead(offset int) {
	h.arena.Set(0, byte(offset))
}

// insertFreeBlock writes the complete free-block header for a block of the
// provided length and pushes it onto the head of the list. Insertion is LIFO:
// the most recently freed block is the first candidate for reuse.
func (h *Heap) insertFreeBlock(offset, slots int) {
	head := h.head()

	h.setFreeLength(offset, slots)
	h.setFreePrev(offset, noFreeBlocks)
	h.setFreeNext(offset, head)

	if head != noFreeBlocks {
		h.setFreePrev(head, offset)
	}

	h.setHead(offset)
}

// removeFreeBlock unlinks the block at offset from the list by rewiring the
// neighbor on each side, or the head pointer when the block is first.
func (h *Heap) removeFreeBlock(offset int) {
	prev := h.freePrev(offset)
	next := h.freeNext(offset)

	if prev != noFreeBlocks {
		h.setFreeNext(prev, next)
	} else {
		h.setHead(next)
	}

	if next != noFreeBlocks {
		h.setFreePrev(next, prev)
	}
}

// findFirstFit walks the list from the head and returns the offset of the
// first block of at least minBytes. The second return value is false when the
// list is exhausted.
func (h *Heap) findFirstFit(minBytes int) (int, bool) {
	for offset := h.head(); offset != noFreeBlocks; offset = h.freeNext(offset) {
		if h.blockBytes(offset) >= minBytes {
			return offset, true
		}
	}

	return 0, false
}
