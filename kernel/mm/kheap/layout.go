package kheap

import (
	"kcore/kernel"
	"kcore/kernel/mm"
)

const (
	// MaxPageAlignedAllocs is the number of page-sized slots managed by
	// Pmalloc.
	MaxPageAlignedAllocs = 32

	// PheapEnd is the exclusive upper bound of the kernel heap window.
	PheapEnd = uintptr(0x400000)

	// PheapBegin is the address of the first page-aligned slot.
	PheapBegin = PheapEnd - MaxPageAlignedAllocs*mm.PageSize
)

var errInvalidLayout = &kernel.Error{Module: "kheap", Message: "heap window is empty or misaligned"}

// Layout describes the regions managed by a Heap. The byte heap occupies
// [HeapBegin, HeapEnd) and the page-aligned heap occupies
// [PheapBegin, PheapEnd) immediately above it.
type Layout struct {
	// KernelEnd is the end of the loaded kernel image as reported by
	// the linker.
	KernelEnd uintptr

	HeapBegin  uintptr
	HeapEnd    uintptr
	PheapBegin uintptr
	PheapEnd   uintptr
}

// LayoutFor returns the heap layout for a kernel image ending at kernelEnd.
// The byte heap starts at the first page boundary strictly above kernelEnd
// so at least one byte separates the image from the heap.
func LayoutFor(kernelEnd uintptr) Layout {
	return Layout{
		KernelEnd:  kernelEnd,
		HeapBegin:  (kernelEnd + mm.PageSize) &^ (mm.PageSize - 1),
		HeapEnd:    PheapBegin,
		PheapBegin: PheapBegin,
		PheapEnd:   PheapEnd,
	}
}

// HeapSize returns the size of the byte heap.
func (l Layout) HeapSize() uintptr {
	return l.HeapEnd - l.HeapBegin
}

// validate checks that heap_begin < heap_end == pheap_begin < pheap_end,
// that the page-aligned heap holds exactly MaxPageAlignedAllocs pages and
// that the byte heap can hold the page descriptor array.
func (l Layout) validate() *kernel.Error {
	switch {
	case l.HeapBegin >= l.HeapEnd,
		l.HeapEnd != l.PheapBegin,
		l.PheapBegin&(mm.PageSize-1) != 0,
		l.PheapEnd-l.PheapBegin != MaxPageAlignedAllocs*mm.PageSize,
		l.HeapSize() <= MaxPageAlignedAllocs+headerSize+blockPad:
		return errInvalidLayout
	}

	return nil
}
