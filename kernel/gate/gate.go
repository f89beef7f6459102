// Package gate builds and loads the Interrupt Descriptor Table.
package gate

import (
	"encoding/binary"
	"kcore/kernel/cpu"
	"kcore/kernel/gdt"
	"kcore/kernel/kfmt"
	"kcore/kernel/mm"
	"unsafe"
)

const (
	// EntryCount is the number of gates in the IDT; one per vector.
	EntryCount = 256

	// EntrySize is the size of a packed gate.
	EntrySize = 8

	// SyscallVector is the software interrupt that user code may raise.
	SyscallVector = 0x80
)

// Gate flag values.
const (
	FlagPresent = uint8(1 << 7)

	// FlagsInterruptGate is a present, ring 0, 32-bit interrupt gate.
	FlagsInterruptGate = uint8(0x8e)

	// FlagsUserInterruptGate is FlagsInterruptGate with DPL 3.
	FlagsUserInterruptGate = uint8(0xee)
)

// Gate is the unpacked form of an interrupt gate.
type Gate struct {
	// Offset is the linear address of the trap-entry stub.
	Offset   uint32
	Selector uint16
	Flags    uint8
}

// Present returns true if the gate's present bit is set.
func (g Gate) Present() bool {
	return g.Flags&FlagPresent != 0
}

// DPL returns the privilege level required to raise the gate with INT.
func (g Gate) DPL() uint8 {
	return (g.Flags >> 5) & 0x3
}

// EncodeGate packs g into dst: offset[0:16], selector, reserved byte,
// flags, offset[16:32].
func EncodeGate(dst *[EntrySize]byte, g Gate) {
	dst[0] = byte(g.Offset)
	dst[1] = byte(g.Offset >> 8)
	dst[2] = byte(g.Selector)
	dst[3] = byte(g.Selector >> 8)
	dst[4] = 0
	dst[5] = g.Flags
	dst[6] = byte(g.Offset >> 16)
	dst[7] = byte(g.Offset >> 24)
}

// DecodeGate unpacks a gate produced by EncodeGate.
func DecodeGate(src *[EntrySize]byte) Gate {
	return Gate{
		Offset:   uint32(src[0]) | uint32(src[1])<<8 | uint32(src[6])<<16 | uint32(src[7])<<24,
		Selector: uint16(src[2]) | uint16(src[3])<<8,
		Flags:    src[5],
	}
}

// StubTableSize is the size of the stub address table provided by the boot
// code.
const StubTableSize = EntryCount * 4

// StubTable overlays the array of EntryCount little-endian uint32 trap-entry
// stub addresses provided by the boot code. A zero entry means that the boot
// code did not provide a stub for that vector.
type StubTable []byte

// StubTableAt returns a StubTable over the array located at tableAddr.
func StubTableAt(mem mm.PhysicalMemory, tableAddr uintptr) StubTable {
	return StubTable(mem.Bytes(tableAddr, StubTableSize))
}

// Addr returns the stub address for vector.
func (st StubTable) Addr(vector uint8) uint32 {
	return binary.LittleEndian.Uint32(st[int(vector)*4:])
}

// Table is the backing storage for the IDT together with the pointer image
// loaded into IDTR.
type Table struct {
	gates [EntryCount][EntrySize]byte
	ptr   cpu.TablePointer
}

// Gate returns the decoded gate for vector.
func (t *Table) Gate(vector uint8) Gate {
	return DecodeGate(&t.gates[vector])
}

// Pointer returns the IDTR image for this table.
func (t *Table) Pointer() cpu.TablePointer {
	return t.ptr
}

// Install points every vector with a stub at that stub and loads the IDT.
// Vectors without a stub keep a non-present gate so raising them faults
// instead of jumping to address 0.
func (t *Table) Install(hw cpu.Hardware, stubs StubTable) {
	var installed int

	t.ptr = cpu.TablePointer{
		Limit: uint16(unsafe.Sizeof(t.gates) - 1),
		Base:  uint32(uintptr(unsafe.Pointer(&t.gates))),
	}

	for vector := 0; vector < EntryCount; vector++ {
		addr := stubs.Addr(uint8(vector))
		if addr == 0 {
			t.gates[vector] = [EntrySize]byte{}
			continue
		}

		flags := FlagsInterruptGate
		if vector == SyscallVector {
			flags = FlagsUserInterruptGate
		}

		EncodeGate(&t.gates[vector], Gate{Offset: addr, Selector: gdt.KernelCodeSelector, Flags: flags})
		installed++
	}

	hw.LoadIDT(&t.ptr)
	kfmt.Printf("[idt] installed %d gates at 0x%x\n", installed, t.ptr.Base)
}

// kernelIDT is the table installed at boot. It is never rebuilt.
var kernelIDT Table

// Init installs the kernel IDT. The GDT must already be loaded since every
// gate references the kernel code selector.
func Init(hw cpu.Hardware, stubs StubTable) {
	kernelIDT.Install(hw, stubs)
}

// KernelTable returns the table installed by Init.
func KernelTable() *Table {
	return &kernelIDT
}
