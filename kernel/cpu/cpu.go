// Package cpu defines the hardware access capability used by the rest of the
// kernel. Everything above this package talks to the machine exclusively
// through the Hardware interface so it can run on a host against a simulated
// backend.
package cpu

// Hardware exposes the indivisible machine operations the kernel core needs.
// Implementations must execute each method as a single uninterrupted
// instruction sequence.
type Hardware interface {
	// PortReadByte reads a uint8 value from the requested port.
	PortReadByte(port uint16) uint8

	// PortWriteByte writes a uint8 value to the requested port.
	PortWriteByte(port uint16, val uint8)

	// EnableInterrupts enables interrupt handling.
	EnableInterrupts()

	// DisableInterrupts disables interrupt handling.
	DisableInterrupts()

	// Halt stops instruction execution until the next interrupt arrives.
	Halt()

	// LoadGDT loads the GDT register with the supplied table pointer and
	// reloads CS with codeSelector and the remaining segment registers
	// with dataSelector.
	LoadGDT(ptr *TablePointer, codeSelector, dataSelector uint16)

	// LoadIDT loads the IDT register with the supplied table pointer.
	LoadIDT(ptr *TablePointer)

	// SwitchPDT loads the physical address of a page directory into CR3.
	SwitchPDT(pdtPhysAddr uintptr)

	// EnablePaging sets the paging bit in CR0.
	EnablePaging()
}

const (
	// CR0PagingEnabled is the CR0 bit that turns on address translation.
	CR0PagingEnabled = uint32(1 << 31)
)

// TablePointer is the operand of the LGDT/LIDT instructions.
type TablePointer struct {
	// Limit is the table size in bytes minus one.
	Limit uint16

	// Base is the linear address of the first table entry.
	Base uint32
}

// TablePointerSize is the size of the packed image produced by Encode.
const TablePointerSize = 6

// Encode writes the packed 6-byte image of the pointer to dst.
func (p *TablePointer) Encode(dst *[TablePointerSize]byte) {
	dst[0] = byte(p.Limit)
	dst[1] = byte(p.Limit >> 8)
	dst[2] = byte(p.Base)
	dst[3] = byte(p.Base >> 8)
	dst[4] = byte(p.Base >> 16)
	dst[5] = byte(p.Base >> 24)
}

// DecodeTablePointer rebuilds a TablePointer from its packed image.
func DecodeTablePointer(src *[TablePointerSize]byte) TablePointer {
	return TablePointer{
		Limit: uint16(src[0]) | uint16(src[1])<<8,
		Base:  uint32(src[2]) | uint32(src[3])<<8 | uint32(src[4])<<16 | uint32(src[5])<<24,
	}
}

var active Hardware

// SetActive registers the hardware backend used by package-level helpers such
// as HaltForever. It is invoked once by the kernel entrypoint.
func SetActive(hw Hardware) {
	active = hw
}

// Active returns the hardware backend registered via SetActive.
func Active() Hardware {
	return active
}

// HaltForever disables interrupts and halts the CPU. Calls to HaltForever
// never return.
func HaltForever() {
	for {
		active.DisableInterrupts()
		active.Halt()
	}
}
