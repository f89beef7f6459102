// Package kheap implements the kernel heap: a first-fit byte allocator over a
// fixed window above the kernel image and a page-aligned allocator with
// MaxPageAlignedAllocs fixed slots directly above it.
//
// Both allocators return physical addresses. A zero address signals that no
// memory was allocated.
package kheap

import (
	"encoding/binary"
	"kcore/kernel"
	"kcore/kernel/kfmt"
	"kcore/kernel/mm"
)

const (
	// headerSize is the size of the block header: a status byte, three
	// bytes of padding and the little-endian 32-bit block size.
	headerSize = uintptr(8)

	// blockPad separates consecutive blocks.
	blockPad = uintptr(4)

	statusFree      = uint8(0)
	statusAllocated = uint8(1)

	pageFree      = uint8(0)
	pageAllocated = uint8(1)
)

var (
	// panicFn is mocked by tests and is automatically inlined by the compiler.
	panicFn = kfmt.Panic

	errOutOfMemory = &kernel.Error{Module: "kheap", Message: "cannot allocate bytes: out of memory"}
)

// Stats reports byte heap usage.
type Stats struct {
	Used uintptr
	Free uintptr
	Size uintptr
}

// Heap manages the byte heap and the page-aligned heap described by a
// Layout. The zero value is not usable; call Init first.
//
// Heap is not safe for use from interrupt handlers.
type Heap struct {
	layout Layout

	// arena overlays [layout.HeapBegin, layout.PheapEnd).
	arena []byte

	// lastAlloc is the frontier; memory at or above it has never
	// been handed out.
	lastAlloc uintptr

	memoryUsed uintptr

	// pheapDesc holds one status byte per page-aligned slot. It is
	// itself the first block carved out of the byte heap.
	pheapDesc []byte

	trace bool
}

// Init zeroes the byte heap described by layout and allocates the
// page-aligned heap descriptors from it.
func (h *Heap) Init(mem mm.PhysicalMemory, layout Layout) *kernel.Error {
	if err := layout.validate(); err != nil {
		return err
	}

	h.layout = layout
	h.arena = mem.Bytes(layout.HeapBegin, layout.PheapEnd-layout.HeapBegin)
	h.lastAlloc = layout.HeapBegin
	h.memoryUsed = 0
	kernel.Memset(h.arena[:layout.HeapSize()], 0)

	descAddr := h.Malloc(MaxPageAlignedAllocs)
	h.pheapDesc = h.arena[h.offset(descAddr) : h.offset(descAddr)+MaxPageAlignedAllocs]

	kfmt.Printf("[kheap] Kernel heap starts at 0x%x\n", layout.HeapBegin)
	return nil
}

// SetTrace toggles per-allocation diagnostics.
func (h *Heap) SetTrace(enabled bool) {
	h.trace = enabled
}

// Layout returns the regions managed by the heap.
func (h *Heap) Layout() Layout {
	return h.layout
}

func (h *Heap) offset(addr uintptr) uintptr {
	return addr - h.layout.HeapBegin
}

func (h *Heap) status(off uintptr) uint8 {
	return h.arena[off]
}

func (h *Heap) blockSize(off uintptr) uintptr {
	return uintptr(binary.LittleEndian.Uint32(h.arena[off+4 : off+headerSize]))
}

func (h *Heap) setHeader(off uintptr, status uint8, size uintptr) {
	h.arena[off] = status
	binary.LittleEndian.PutUint32(h.arena[off+4:off+headerSize], uint32(size))
}

// Malloc returns the address of a zero-filled block of at least size bytes.
// Free blocks are reused first-fit in address order without splitting;
// otherwise the block is carved at the frontier. Malloc returns 0 if size is
// 0. Running out of heap space is fatal.
func (h *Heap) Malloc(size uintptr) uintptr {
	if size == 0 {
		return 0
	}

	for off, frontier := uintptr(0), h.offset(h.lastAlloc); off < frontier; {
		blockSize := h.blockSize(off)
		if blockSize == 0 {
			// treat a corrupted header as the end of the chain
			break
		}

		if h.status(off) == statusFree && blockSize >= size {
			h.setHeader(off, statusAllocated, blockSize)
			h.memoryUsed += blockSize + headerSize

			data := off + headerSize
			kernel.Memset(h.arena[data:data+blockSize], 0)

			addr := h.layout.HeapBegin + data
			if h.trace {
				kfmt.Printf("[kheap] reallocated %d bytes from 0x%x to 0x%x\n", size, addr, addr+size)
			}
			return addr
		}

		off += blockSize + headerSize + blockPad
	}

	if !h.fitsAtFrontier(size) {
		panicFn(errOutOfMemory)
		return 0
	}

	off := h.offset(h.lastAlloc)
	h.setHeader(off, statusAllocated, size)
	h.lastAlloc += size + headerSize + blockPad
	h.memoryUsed += size + headerSize

	data := off + headerSize
	kernel.Memset(h.arena[data:data+size], 0)

	addr := h.layout.HeapBegin + data
	if h.trace {
		kfmt.Printf("[kheap] allocated %d bytes from 0x%x to 0x%x\n", size, addr, addr+size)
	}
	return addr
}

// fitsAtFrontier returns true if a header plus size bytes carved at the
// frontier end strictly below HeapEnd. The comparison is arranged so that
// huge sizes cannot wrap around on 32-bit targets.
func (h *Heap) fitsAtFrontier(size uintptr) bool {
	if h.lastAlloc >= h.layout.HeapEnd {
		return false
	}

	room := h.layout.HeapEnd - h.lastAlloc
	return room > headerSize && size < room-headerSize
}

// Free returns the block at addr to the heap. Freed blocks are never merged
// with their neighbours. Addresses that do not point at an allocated block
// are ignored.
func (h *Heap) Free(addr uintptr) {
	if addr < h.layout.HeapBegin+headerSize || addr >= h.lastAlloc {
		return
	}

	off := h.offset(addr) - headerSize
	if h.status(off) != statusAllocated {
		return
	}

	h.memoryUsed -= h.blockSize(off) + headerSize
	h.arena[off] = statusFree
}

// Pmalloc returns the address of a free page-aligned slot. The size argument
// is ignored: every allocation spans exactly one page. Pmalloc returns 0
// when all slots are in use.
func (h *Heap) Pmalloc(_ uintptr) uintptr {
	for i, status := range h.pheapDesc {
		if status != pageFree {
			continue
		}

		h.pheapDesc[i] = pageAllocated
		addr := h.layout.PheapBegin + uintptr(i)*mm.PageSize
		if h.trace {
			kfmt.Printf("[kheap] pallocated from 0x%x to 0x%x\n", addr, addr+mm.PageSize)
		}
		return addr
	}

	kfmt.Printf("[kheap] pmalloc: FATAL: failure!\n")
	return 0
}

// Pfree releases the page-aligned slot containing addr. Addresses outside
// [PheapBegin, PheapEnd) are ignored.
func (h *Heap) Pfree(addr uintptr) {
	if addr < h.layout.PheapBegin || addr >= h.layout.PheapEnd {
		return
	}

	h.pheapDesc[(addr-h.layout.PheapBegin)>>mm.PageShift] = pageFree
}

// Stats returns the byte heap usage counters.
func (h *Heap) Stats() Stats {
	size := h.layout.HeapSize()
	return Stats{
		Used: h.memoryUsed,
		Free: size - h.memoryUsed,
		Size: size,
	}
}

// PrintMemoryLayout reports heap usage and region boundaries.
func (h *Heap) PrintMemoryLayout() {
	stats := h.Stats()
	kfmt.Printf("[kheap] Memory used: %d bytes\n", stats.Used)
	kfmt.Printf("[kheap] Memory free: %d bytes\n", stats.Free)
	kfmt.Printf("[kheap] Heap size: %d bytes\n", stats.Size)
	kfmt.Printf("[kheap] Heap start: 0x%x\n", h.layout.HeapBegin)
	kfmt.Printf("[kheap] Heap end: 0x%x\n", h.layout.HeapEnd)
	kfmt.Printf("[kheap] PHeap start: 0x%x\n", h.layout.PheapBegin)
	kfmt.Printf("[kheap] PHeap end: 0x%x\n", h.layout.PheapEnd)
}

var kernelHeap Heap

// Init sets up the kernel heap above the kernel image ending at kernelEnd.
func Init(mem mm.PhysicalMemory, kernelEnd uintptr) *kernel.Error {
	return kernelHeap.Init(mem, LayoutFor(kernelEnd))
}

// KernelHeap returns the kernel heap.
func KernelHeap() *Heap {
	return &kernelHeap
}

// Malloc allocates size bytes from the kernel heap.
func Malloc(size uintptr) uintptr { return kernelHeap.Malloc(size) }

// Free releases a block allocated by Malloc.
func Free(addr uintptr) { kernelHeap.Free(addr) }

// Pmalloc allocates a page-aligned page from the kernel heap.
func Pmalloc(size uintptr) uintptr { return kernelHeap.Pmalloc(size) }

// Pfree releases a page allocated by Pmalloc.
func Pfree(addr uintptr) { kernelHeap.Pfree(addr) }

// PrintMemoryLayout reports the kernel heap usage.
func PrintMemoryLayout() { kernelHeap.PrintMemoryLayout() }
