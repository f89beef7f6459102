//go:build 386

package kmain

import (
	"kcore/kernel/cpu"
	"kcore/kernel/mm"
)

var nativeCPU cpu.Native

// Kmain is invoked by the boot assembly code once the CPU runs in 32-bit
// protected mode with a stack. The boot code passes the bootloader magic, the
// multiboot2 information address, the linker-provided end of the kernel image
// and the address of the trap-entry stub table.
//
// Kmain is not expected to return. If it does, the boot code will halt the CPU.
//
//go:noinline
func Kmain(multibootMagic uint32, multibootInfoPtr, kernelEnd, trapStubTable uintptr) {
	Boot(&nativeCPU, mm.NativeMemory{}, BootParams{
		MultibootMagic: multibootMagic,
		MultibootInfo:  multibootInfoPtr,
		KernelEnd:      kernelEnd,
		TrapStubTable:  trapStubTable,
	})

	idle(&nativeCPU)

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	panicFn(errKmainReturned)
}
