// Package gdt builds and loads the Global Descriptor Table for a flat
// memory model: every segment spans the full 4GB address space and segments
// differ only in privilege level and type.
package gdt

import (
	"kcore/kernel/cpu"
	"kcore/kernel/kfmt"
	"unsafe"
)

const (
	// EntryCount is the number of descriptors in the table.
	EntryCount = 5

	// EntrySize is the size of a packed segment descriptor.
	EntrySize = 8
)

// Selectors for the descriptors installed by Init. User selectors carry
// RPL 3.
const (
	KernelCodeSelector = uint16(1 * EntrySize)
	KernelDataSelector = uint16(2 * EntrySize)
	UserCodeSelector   = uint16(3*EntrySize) | 3
	UserDataSelector   = uint16(4*EntrySize) | 3
)

// Access byte values: present, ring, code/data type.
const (
	AccessKernelCode = uint8(0x9a)
	AccessKernelData = uint8(0x92)
	AccessUserCode   = uint8(0xfa)
	AccessUserData   = uint8(0xf2)
)

const (
	// FlagPageGranularity scales the limit by 4K.
	FlagPageGranularity = uint8(1 << 7)

	// FlagOperand32 selects 32-bit operands.
	FlagOperand32 = uint8(1 << 6)

	// GranularityFlat is the granularity byte used by all flat segments.
	GranularityFlat = FlagPageGranularity | FlagOperand32 | 0x0f

	// flatLimit covers the whole 32-bit address space.
	flatLimit = uint32(0xffffffff)
)

// Descriptor is the unpacked form of a segment descriptor.
type Descriptor struct {
	Base uint32

	// Limit is the raw 20-bit limit field.
	Limit uint32

	Access uint8

	// Flags holds the upper nibble of the granularity byte.
	Flags uint8
}

// EffectiveLimit returns the segment limit in bytes taking page
// granularity into account.
func (d Descriptor) EffectiveLimit() uint32 {
	if d.Flags&FlagPageGranularity != 0 {
		return d.Limit<<12 | 0xfff
	}
	return d.Limit
}

// EncodeDescriptor packs base, limit, access and granularity into dst using
// the x86 layout: limit[0:16], base[0:16], base[16:24], access,
// flags|limit[16:20], base[24:32].
func EncodeDescriptor(dst *[EntrySize]byte, base, limit uint32, access, gran uint8) {
	dst[0] = byte(limit)
	dst[1] = byte(limit >> 8)
	dst[2] = byte(base)
	dst[3] = byte(base >> 8)
	dst[4] = byte(base >> 16)
	dst[5] = access
	dst[6] = byte(limit>>16)&0x0f | gran&0xf0
	dst[7] = byte(base >> 24)
}

// DecodeDescriptor unpacks a descriptor produced by EncodeDescriptor.
func DecodeDescriptor(src *[EntrySize]byte) Descriptor {
	return Descriptor{
		Base:   uint32(src[2]) | uint32(src[3])<<8 | uint32(src[4])<<16 | uint32(src[7])<<24,
		Limit:  uint32(src[0]) | uint32(src[1])<<8 | uint32(src[6]&0x0f)<<16,
		Access: src[5],
		Flags:  src[6] & 0xf0,
	}
}

// Table is the backing storage for the GDT together with the pointer image
// loaded into GDTR.
type Table struct {
	entries [EntryCount][EntrySize]byte
	ptr     cpu.TablePointer
}

// SetGate writes descriptor num. num must be in [0, EntryCount).
func (t *Table) SetGate(num int, base, limit uint32, access, gran uint8) {
	EncodeDescriptor(&t.entries[num], base, limit, access, gran)
}

// Descriptor returns the decoded descriptor num.
func (t *Table) Descriptor(num int) Descriptor {
	return DecodeDescriptor(&t.entries[num])
}

// Raw returns the packed 8-byte image of descriptor num.
func (t *Table) Raw(num int) [EntrySize]byte {
	return t.entries[num]
}

// Pointer returns the GDTR image for this table.
func (t *Table) Pointer() cpu.TablePointer {
	return t.ptr
}

// Init builds the null, kernel code, kernel data, user code and user data
// descriptors and loads the table, reloading every segment register.
func (t *Table) Init(hw cpu.Hardware) {
	t.ptr = cpu.TablePointer{
		Limit: uint16(unsafe.Sizeof(t.entries)) - 1,
		Base:  uint32(uintptr(unsafe.Pointer(&t.entries))),
	}

	t.SetGate(0, 0, 0, 0, 0)
	t.SetGate(1, 0, flatLimit, AccessKernelCode, GranularityFlat)
	t.SetGate(2, 0, flatLimit, AccessKernelData, GranularityFlat)
	t.SetGate(3, 0, flatLimit, AccessUserCode, GranularityFlat)
	t.SetGate(4, 0, flatLimit, AccessUserData, GranularityFlat)

	hw.LoadGDT(&t.ptr, KernelCodeSelector, KernelDataSelector)
	kfmt.Printf("[gdt] loaded %d descriptors at 0x%x\n", EntryCount, t.ptr.Base)
}

// kernelGDT is the table installed at boot. It is never rebuilt.
var kernelGDT Table

// Init builds and loads the kernel GDT. It must be called exactly once,
// before the IDT is installed.
func Init(hw cpu.Hardware) {
	kernelGDT.Init(hw)
}

// KernelTable returns the table installed by Init.
func KernelTable() *Table {
	return &kernelGDT
}
