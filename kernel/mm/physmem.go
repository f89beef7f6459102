package mm

import "unsafe"

// NativeMemory implements PhysicalMemory by overlaying slices directly on top
// of the requested addresses. It is only valid while the kernel runs with
// identity-mapped (or disabled) paging.
type NativeMemory struct{}

// Bytes overlays a slice on top of [addr, addr+size).
func (NativeMemory) Bytes(addr, size uintptr) []byte {
	if size == 0 {
		return nil
	}

	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
}
