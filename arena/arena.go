// Package arena provides the fixed-capacity byte buffer that backs a heap.
// Every piece of allocator bookkeeping lives inside this buffer- there are no
// side tables- so the arena exposes nothing but bounds-checked byte access.
package arena

import (
	"fmt"

	cerrors "github.com/cockroachdb/errors"

	"github.com/oliverschwartz/alloc"
)

// Arena is a fixed-size region of bytes. The capacity is set at construction
// and never changes. An Arena is not safe for concurrent use.
type Arena struct {
	data []byte
}

// New creates a zeroed Arena of the provided capacity in bytes.
func New(capacity int) (*Arena, error) {
	if capacity <= 0 {
		return nil, cerrors.Wrapf(alloc.ErrInvalidConfig, "capacity is %d", capacity)
	}

	return &Arena{
		data: make([]byte, capacity),
	}, nil
}

// Capacity returns the fixed size of the arena in bytes.
func (a *Arena) Capacity() int {
	return len(a.data)
}

// At returns the byte at the provided position. Positions outside
// [0, Capacity()) indicate broken header arithmetic in the caller, so this
// method panics rather than returning an error.
func (a *Arena) At(pos int) byte {
	if pos < 0 || pos >= len(a.data) {
		panic(fmt.Sprintf("arena: read at position %d, capacity %d", pos, len(a.data)))
	}

	return a.data[pos]
}

// Set stores a byte at the provided position. Like At, an out-of-range
// position panics.
func (a *Arena) Set(pos int, value byte) {
	if pos < 0 || pos >= len(a.data) {
		panic(fmt.Sprintf("arena: write at position %d, capacity %d", pos, len(a.data)))
	}

	a.data[pos] = value
}

// Write copies data into the arena starting at pos. It is a convenience for
// filling an allocated region and fails if any part of the copy would land
// outside the buffer.
func (a *Arena) Write(pos int, data []byte) error {
	if pos < 0 || pos+len(data) > len(a.data) {
		return cerrors.Wrapf(alloc.ErrOutOfBounds, "write of %d bytes at position %d, capacity %d", len(data), pos, len(a.data))
	}

	copy(a.data[pos:], data)
	return nil
}

// Inspect returns a copy of the bytes in the half-open range [start, end).
// It is a read-only diagnostic and takes no part in the allocator's
// correctness contract.
func (a *Arena) Inspect(start, end int) ([]byte, error) {
	if start < 0 || end > len(a.data) || start > end {
		return nil, cerrors.Wrapf(alloc.ErrOutOfBounds, "inspect of range [%d, %d), capacity %d", start, end, len(a.data))
	}

	out := make([]byte, end-start)
	copy(out, a.data[start:end])
	return out, nil
}
