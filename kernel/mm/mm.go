// Package mm contains the memory primitives shared by the heap and paging
// subsystems.
package mm

const (
	// PageShift is equal to log2(PageSize). This constant is used when
	// we need to convert a physical address to a page number (shift right by PageShift)
	// and vice-versa.
	PageShift = uintptr(12)

	// PageSize defines the system's page size in bytes.
	PageSize = uintptr(1 << PageShift)
)

// Size represents a memory block size in bytes.
type Size uint32

// Common memory block sizes.
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
)

// AlignUp rounds addr up to the next multiple of PageSize. Addresses that are
// already page-aligned are returned unchanged.
func AlignUp(addr uintptr) uintptr {
	return (addr + PageSize - 1) &^ (PageSize - 1)
}

// PhysicalMemory provides access to physical memory. The kernel core never
// dereferences raw addresses; it asks a PhysicalMemory for a slice that
// overlays the region it wants to touch.
type PhysicalMemory interface {
	// Bytes returns a slice overlaying the physical region
	// [addr, addr+size). Implementations may panic if the region is
	// outside the memory they manage.
	Bytes(addr, size uintptr) []byte
}
