//go:build !debug_alloc

package alloc

// DebugValidate will call Validate on the provided object and panics if any errors are returned.
// This method no-ops unless the debug_alloc build tag is present.
func DebugValidate(validatable Validatable) {
}
