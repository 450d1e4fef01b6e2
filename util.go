package alloc

import (
	cerrors "github.com/cockroachdb/errors"
)

// CheckMultiple verifies that value is a positive multiple of divisor.
func CheckMultiple(value, divisor int, name string) error {
	if value <= 0 || value%divisor != 0 {
		return cerrors.Wrapf(ErrInvalidConfig, "%s is %d, which is not a positive multiple of %d", name, value, divisor)
	}
	return nil
}

// CeilDiv divides value by divisor, rounding up.
func CeilDiv(value, divisor int) int {
	return (value + divisor - 1) / divisor
}
