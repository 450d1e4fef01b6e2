package alloc

import "github.com/pkg/errors"

// ErrInvalidConfig is the error returned when an arena or heap is constructed with
// parameters that cannot produce a valid slot layout
var ErrInvalidConfig error = errors.New("invalid arena configuration")

// ErrSizeTooLarge is the error returned when a requested allocation rounds up to a
// slot count that cannot be represented in a single-byte length field, or that no
// block in this arena could ever satisfy
var ErrSizeTooLarge error = errors.New("requested size is too large for this arena")

// ErrOutOfBounds is the error returned from the arena's range-based accessors when
// a position falls outside the buffer
var ErrOutOfBounds error = errors.New("position is outside the arena")
