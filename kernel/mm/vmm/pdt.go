package vmm

import (
	"encoding/binary"
	"kcore/kernel"
	"kcore/kernel/cpu"
	"kcore/kernel/mm"
)

const (
	// EntriesPerTable is the number of entries in a page directory or
	// page table.
	EntriesPerTable = 1024

	// TableSize is the size in bytes of a page directory or page table.
	TableSize = EntriesPerTable * 4

	// RegionSize is the span of virtual memory mapped by one page table.
	RegionSize = EntriesPerTable * mm.PageSize

	pageLevels = 2
)

var (
	// pageLevelShifts gives the virtual address bit where each level's
	// table index starts.
	pageLevelShifts = [pageLevels]uint8{22, 12}

	// ErrInvalidMapping is returned when trying to lookup a virtual memory address that is not yet mapped.
	ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

	errUnalignedTable  = &kernel.Error{Module: "vmm", Message: "paging structures must be page-aligned"}
	errUnalignedRegion = &kernel.Error{Module: "vmm", Message: "mapped region must start at a 4M virtual and page-aligned physical address"}
)

// PageDirectory manages a two-level page table hierarchy stored at fixed
// physical addresses. Page tables are handed out sequentially from a cursor
// that starts right after the directory.
type PageDirectory struct {
	mem mm.PhysicalMemory

	// pdtFrame is the physical frame holding the directory.
	pdtFrame mm.Frame

	// nextTable is the physical address used by the next MapRegion call.
	nextTable uintptr
}

// Init places the directory at dirAddr and marks every entry as not present,
// supervisor-only and writable. Page tables are allocated upwards from
// firstTableAddr.
func (pd *PageDirectory) Init(mem mm.PhysicalMemory, dirAddr, firstTableAddr uintptr) *kernel.Error {
	if dirAddr&(mm.PageSize-1) != 0 || firstTableAddr&(mm.PageSize-1) != 0 {
		return errUnalignedTable
	}

	pd.mem = mem
	pd.pdtFrame = mm.FrameFromAddress(dirAddr)
	pd.nextTable = firstTableAddr

	dir := mem.Bytes(dirAddr, TableSize)
	for i := 0; i < EntriesPerTable; i++ {
		binary.LittleEndian.PutUint32(dir[i*4:], uint32(FlagRW))
	}

	return nil
}

// Frame returns the physical frame that contains the directory.
func (pd *PageDirectory) Frame() mm.Frame {
	return pd.pdtFrame
}

// MapRegion maps the RegionSize bytes starting at virtAddr to consecutive
// frames starting at physAddr. Every frame is marked present and writable.
// Each call consumes one page table; regions cannot be partially mapped or
// remapped.
func (pd *PageDirectory) MapRegion(virtAddr, physAddr uintptr) *kernel.Error {
	if virtAddr&(RegionSize-1) != 0 || physAddr&(mm.PageSize-1) != 0 {
		return errUnalignedRegion
	}

	tableAddr := pd.nextTable
	table := pd.mem.Bytes(tableAddr, TableSize)

	var pte pageTableEntry
	for i := 0; i < EntriesPerTable; i, physAddr = i+1, physAddr+mm.PageSize {
		pte = 0
		pte.SetFrame(mm.FrameFromAddress(physAddr))
		pte.SetFlags(FlagPresent | FlagRW)
		binary.LittleEndian.PutUint32(table[i*4:], uint32(pte))
	}

	pte = 0
	pte.SetFrame(mm.FrameFromAddress(tableAddr))
	pte.SetFlags(FlagPresent | FlagRW)
	pd.setEntry(pd.pdtFrame.Address(), virtAddr>>pageLevelShifts[0], pte)

	pd.nextTable += TableSize
	return nil
}

// Activate loads the directory into CR3 and turns on paging. Every memory
// access after this call is translated.
func (pd *PageDirectory) Activate(hw cpu.Hardware) {
	hw.SwitchPDT(pd.pdtFrame.Address())
	hw.EnablePaging()
}

// Translate returns the physical address that corresponds to the supplied
// virtual address or ErrInvalidMapping if the virtual address does not
// correspond to a mapped physical address.
func (pd *PageDirectory) Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	pte, err := pd.pteForAddress(virtAddr)
	if err != nil {
		return 0, err
	}

	return pte.Frame().Address() + PageOffset(virtAddr), nil
}

// PageOffset returns the offset within the page specified by a virtual
// address.
func PageOffset(virtAddr uintptr) uintptr {
	return virtAddr & (mm.PageSize - 1)
}

// pteForAddress walks the hierarchy and returns the final page table entry
// for virtAddr or ErrInvalidMapping if any level is not present.
func (pd *PageDirectory) pteForAddress(virtAddr uintptr) (pageTableEntry, *kernel.Error) {
	var (
		err   *kernel.Error
		entry pageTableEntry
	)

	pd.walk(virtAddr, func(_ uint8, pte pageTableEntry) bool {
		if !pte.HasFlags(FlagPresent) {
			err = ErrInvalidMapping
			return false
		}

		entry = pte
		return true
	})

	return entry, err
}

// pageTableWalker is a function that can be passed to the walk method. The
// function receives the current page level and page table entry as its
// arguments. If the function returns false, then the page walk is aborted.
type pageTableWalker func(pteLevel uint8, pte pageTableEntry) bool

// walk calls walkFn with the entry that corresponds to virtAddr at each level
// of the hierarchy, starting at the directory.
func (pd *PageDirectory) walk(virtAddr uintptr, walkFn pageTableWalker) {
	tableAddr := pd.pdtFrame.Address()
	for level := uint8(0); level < pageLevels; level++ {
		entryIndex := (virtAddr >> pageLevelShifts[level]) & (EntriesPerTable - 1)
		pte := pd.entry(tableAddr, entryIndex)
		if !walkFn(level, pte) {
			return
		}

		tableAddr = pte.Frame().Address()
	}
}

func (pd *PageDirectory) entry(tableAddr, index uintptr) pageTableEntry {
	return pageTableEntry(binary.LittleEndian.Uint32(pd.mem.Bytes(tableAddr+index*4, 4)))
}

func (pd *PageDirectory) setEntry(tableAddr, index uintptr, pte pageTableEntry) {
	binary.LittleEndian.PutUint32(pd.mem.Bytes(tableAddr+index*4, 4), uint32(pte))
}
