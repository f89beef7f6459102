// Package multiboot parses the multiboot2 information structure passed to the
// kernel by the bootloader.
package multiboot

import (
	"encoding/binary"
	"kcore/kernel"
	"kcore/kernel/mm"
)

// BootMagic is the value the bootloader leaves in EAX when it hands over a
// multiboot2 information structure.
const BootMagic = uint32(0x36d76289)

type tagType uint32

// nolint
const (
	tagMbSectionEnd tagType = iota
	tagBootCmdLine
	tagBootLoaderName
	tagModules
	tagBasicMemoryInfo
	tagBiosBootDevice
	tagMemoryMap
	tagVbeInfo
	tagFramebufferInfo
	tagElfSymbols
	tagApmTable
)

const (
	// infoHeaderSize covers the total size and reserved fields.
	infoHeaderSize = 8

	// tagHeaderSize covers the tag type and size fields.
	tagHeaderSize = 8

	// mmapHeaderSize covers the entry size and version fields.
	mmapHeaderSize = 8

	// mmapEntrySize is the minimum size of a memory map entry.
	mmapEntrySize = 20
)

var (
	errBadMagic  = &kernel.Error{Module: "multiboot", Message: "kernel was not loaded by a multiboot2 compliant bootloader"}
	errMalformed = &kernel.Error{Module: "multiboot", Message: "malformed boot information"}
)

// MemoryEntryType defines the type of a MemoryMapEntry.
type MemoryEntryType uint32

const (
	// MemAvailable indicates that the memory region is available for use.
	MemAvailable MemoryEntryType = iota + 1

	// MemReserved indicates that the memory region is not available for use.
	MemReserved

	// MemAcpiReclaimable indicates a memory region that holds ACPI info that
	// can be reused by the OS.
	MemAcpiReclaimable

	// MemNvs indicates memory that must be preserved when hibernating.
	MemNvs

	// Any value >= memUnknown will be mapped to MemReserved.
	memUnknown
)

// String implements fmt.Stringer for MemoryEntryType.
func (t MemoryEntryType) String() string {
	switch t {
	case MemAvailable:
		return "available"
	case MemReserved:
		return "reserved"
	case MemAcpiReclaimable:
		return "ACPI (reclaimable)"
	case MemNvs:
		return "NVS"
	default:
		return "unknown"
	}
}

// MemoryMapEntry describes a memory region entry, namely its physical address,
// its length and its type.
type MemoryMapEntry struct {
	// The physical address for this memory region.
	PhysAddress uint64

	// The length of the memory region.
	Length uint64

	// The type of this entry.
	Type MemoryEntryType
}

// MemRegionVisitor defies a visitor function that gets invoked by VisitMemRegions
// for each memory region provided by the boot loader. The visitor must return true
// to continue or false to abort the scan.
type MemRegionVisitor func(entry *MemoryMapEntry) bool

// Info is a bounds-checked view of the boot information structure.
type Info struct {
	data []byte
}

// Parse validates the bootloader magic and returns a view over the boot
// information structure located at infoPtr.
func Parse(mem mm.PhysicalMemory, magic uint32, infoPtr uintptr) (Info, *kernel.Error) {
	if magic != BootMagic {
		return Info{}, errBadMagic
	}

	totalSize := binary.LittleEndian.Uint32(mem.Bytes(infoPtr, infoHeaderSize))
	if totalSize < infoHeaderSize+tagHeaderSize {
		return Info{}, errMalformed
	}

	return Info{data: mem.Bytes(infoPtr, uintptr(totalSize))}, nil
}

// visitEntry is the scratch entry handed to memory map visitors. Visitors
// must copy it if they need to keep it.
var visitEntry MemoryMapEntry

// VisitMemRegions will invoke the supplied visitor for each memory region that
// is defined by the multiboot info data that we received from the bootloader.
func (i Info) VisitMemRegions(visitor MemRegionVisitor) {
	tag := i.findTagByType(tagMemoryMap)
	if len(tag) < mmapHeaderSize {
		return
	}

	entrySize := int(binary.LittleEndian.Uint32(tag))
	if entrySize < mmapEntrySize {
		return
	}

	entry := &visitEntry
	for cur := tag[mmapHeaderSize:]; len(cur) >= entrySize; cur = cur[entrySize:] {
		entry.PhysAddress = binary.LittleEndian.Uint64(cur)
		entry.Length = binary.LittleEndian.Uint64(cur[8:])
		entry.Type = MemoryEntryType(binary.LittleEndian.Uint32(cur[16:]))

		// Mark unknown entry types as reserved
		if entry.Type == 0 || entry.Type >= memUnknown {
			entry.Type = MemReserved
		}

		if !visitor(entry) {
			return
		}
	}
}

// BootLoaderName returns the name reported by the bootloader or nil.
func (i Info) BootLoaderName() []byte {
	return cString(i.findTagByType(tagBootLoaderName))
}

// CmdLine returns the raw kernel command line or nil.
func (i Info) CmdLine() []byte {
	return cString(i.findTagByType(tagBootCmdLine))
}

// CmdLineValue returns the value of a key=value pair from the kernel command
// line. Keys given without a value map to themselves. CmdLineValue returns nil
// if key is not present.
func (i Info) CmdLineValue(key string) []byte {
	cmdLine := i.CmdLine()
	for start := 0; start < len(cmdLine); {
		for start < len(cmdLine) && cmdLine[start] == ' ' {
			start++
		}

		end := start
		for end < len(cmdLine) && cmdLine[end] != ' ' {
			end++
		}

		field := cmdLine[start:end]
		sep := 0
		for sep < len(field) && field[sep] != '=' {
			sep++
		}

		if string(field[:sep]) == key {
			if sep == len(field) {
				return field
			}
			return field[sep+1:]
		}

		start = end
	}

	return nil
}

// CmdLineEnabled returns true if the command line sets key to "on".
func (i Info) CmdLineEnabled(key string) bool {
	return string(i.CmdLineValue(key)) == "on"
}

// findTagByType scans the multiboot info data looking for the specified tag
// type and returns its contents excluding the tag header. It returns nil if
// the tag is missing or the tag list is truncated.
func (i Info) findTagByType(want tagType) []byte {
	for offset := infoHeaderSize; offset+tagHeaderSize <= len(i.data); {
		curType := binary.LittleEndian.Uint32(i.data[offset:])
		size := int(binary.LittleEndian.Uint32(i.data[offset+4:]))
		if tagType(curType) == tagMbSectionEnd || size < tagHeaderSize || offset+size > len(i.data) {
			return nil
		}

		if tagType(curType) == want {
			return i.data[offset+tagHeaderSize : offset+size]
		}

		// Tags are aligned at 8-byte aligned addresses
		offset += (size + 7) &^ 7
	}

	return nil
}

// cString trims data at the first NUL byte.
func cString(data []byte) []byte {
	for i, b := range data {
		if b == 0 {
			return data[:i]
		}
	}

	return data
}

var bootInfo Info

// Init parses the boot information passed by the bootloader and makes it
// available to the package-level accessors.
func Init(mem mm.PhysicalMemory, magic uint32, infoPtr uintptr) *kernel.Error {
	info, err := Parse(mem, magic, infoPtr)
	if err != nil {
		return err
	}

	bootInfo = info
	return nil
}

// VisitMemRegions visits the memory map of the boot information passed to Init.
func VisitMemRegions(visitor MemRegionVisitor) {
	bootInfo.VisitMemRegions(visitor)
}

// CmdLineEnabled reports whether key=on was passed on the kernel command line.
func CmdLineEnabled(key string) bool {
	return bootInfo.CmdLineEnabled(key)
}

// BootLoaderName returns the bootloader name from the boot information passed
// to Init.
func BootLoaderName() []byte {
	return bootInfo.BootLoaderName()
}
