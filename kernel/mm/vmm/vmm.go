// Package vmm sets up the kernel page tables. The kernel runs with the first
// IdentityMapSize bytes of memory mapped 1:1 so enabling paging does not
// disturb control flow.
package vmm

import (
	"kcore/kernel"
	"kcore/kernel/cpu"
	"kcore/kernel/kfmt"
	"kcore/kernel/mm"
)

const (
	// PageDirectoryAddr is the physical address of the kernel page
	// directory. It sits directly above the kernel heap window.
	PageDirectoryAddr = uintptr(0x400000)

	// FirstPageTableAddr is the physical address of the first page
	// table handed out by the kernel page directory.
	FirstPageTableAddr = PageDirectoryAddr + mm.PageSize

	// IdentityMapSize is the amount of memory identity-mapped by Init.
	IdentityMapSize = 2 * RegionSize
)

var kernelPDT PageDirectory

// Init builds the kernel page directory, identity-maps [0, IdentityMapSize)
// and enables paging.
func Init(hw cpu.Hardware, mem mm.PhysicalMemory) *kernel.Error {
	kfmt.Printf("[vmm] Setting up paging\n")

	if err := kernelPDT.Init(mem, PageDirectoryAddr, FirstPageTableAddr); err != nil {
		return err
	}

	for addr := uintptr(0); addr < IdentityMapSize; addr += RegionSize {
		if err := kernelPDT.MapRegion(addr, addr); err != nil {
			return err
		}
	}

	kernelPDT.Activate(hw)
	kfmt.Printf("[vmm] Paging was successfully enabled!\n")
	return nil
}

// KernelPageDirectory returns the page directory installed by Init.
func KernelPageDirectory() *PageDirectory {
	return &kernelPDT
}

// Translate resolves virtAddr through the kernel page directory.
func Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	return kernelPDT.Translate(virtAddr)
}
