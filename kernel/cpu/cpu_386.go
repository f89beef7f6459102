//go:build 386

package cpu

import "unsafe"

// Native implements Hardware on top of the real processor. All methods are
// thin wrappers around the assembly primitives in cpu_386.s.
type Native struct {
	// ptrImage holds the packed LGDT/LIDT operand; it must stay alive
	// until the load instruction executes.
	ptrImage [TablePointerSize]byte
}

// PortReadByte reads a uint8 value from the requested port.
func (*Native) PortReadByte(port uint16) uint8 { return portReadByte(port) }

// PortWriteByte writes a uint8 value to the requested port.
func (*Native) PortWriteByte(port uint16, val uint8) { portWriteByte(port, val) }

// EnableInterrupts executes STI.
func (*Native) EnableInterrupts() { enableInterrupts() }

// DisableInterrupts executes CLI.
func (*Native) DisableInterrupts() { disableInterrupts() }

// Halt executes HLT.
func (*Native) Halt() { halt() }

// LoadGDT executes LGDT followed by a far return that reloads CS and moves
// dataSelector into the remaining segment registers.
func (n *Native) LoadGDT(ptr *TablePointer, codeSelector, dataSelector uint16) {
	ptr.Encode(&n.ptrImage)
	loadGDT(uintptr(unsafe.Pointer(&n.ptrImage[0])), codeSelector, dataSelector)
}

// LoadIDT executes LIDT.
func (n *Native) LoadIDT(ptr *TablePointer) {
	ptr.Encode(&n.ptrImage)
	loadIDT(uintptr(unsafe.Pointer(&n.ptrImage[0])))
}

// SwitchPDT writes the page directory address to CR3.
func (*Native) SwitchPDT(pdtPhysAddr uintptr) { writeCR3(uint32(pdtPhysAddr)) }

// EnablePaging sets CR0.PG.
func (*Native) EnablePaging() { writeCR0(readCR0() | CR0PagingEnabled) }

func portReadByte(port uint16) uint8
func portWriteByte(port uint16, val uint8)
func enableInterrupts()
func disableInterrupts()
func halt()
func loadGDT(ptrAddr uintptr, codeSelector, dataSelector uint16)
func loadIDT(ptrAddr uintptr)
func readCR0() uint32
func writeCR0(val uint32)
func writeCR3(val uint32)
