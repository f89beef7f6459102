// Package kmain sequences kernel initialization.
package kmain

import (
	"kcore/kernel"
	"kcore/kernel/cpu"
	"kcore/kernel/gate"
	"kcore/kernel/gdt"
	"kcore/kernel/hal"
	"kcore/kernel/hal/multiboot"
	"kcore/kernel/irq"
	"kcore/kernel/kfmt"
	"kcore/kernel/mm"
	"kcore/kernel/mm/kheap"
	"kcore/kernel/mm/vmm"
	"kcore/kernel/pit"
)

const (
	// sleepTestMs is the duration of the boot-time timer self test.
	sleepTestMs = 1000
)

var (
	// panicFn is mocked by tests and is automatically inlined by the compiler.
	panicFn = kfmt.Panic

	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

	// bootInfoWriter tags the memory map dump. It lives here so that
	// passing it to Fprintf does not move it to the Go heap.
	bootInfoWriter = kfmt.PrefixWriter{Prefix: []byte("[kmain] ")}
)

// BootParams holds the values handed over by the boot assembly code.
type BootParams struct {
	// MultibootMagic is the value of EAX when the bootloader jumped to
	// the kernel.
	MultibootMagic uint32

	// MultibootInfo is the physical address of the multiboot2
	// information structure.
	MultibootInfo uintptr

	// KernelEnd is the linker-provided end of the kernel image.
	KernelEnd uintptr

	// TrapStubTable is the address of the table with the 256 trap-entry
	// stub addresses.
	TrapStubTable uintptr
}

// Boot brings the machine from the bootloader hand-off to a state with
// descriptor tables, interrupt dispatch, the kernel heap, paging and the
// timer all running. The initialization order is fixed: interrupts reference
// the GDT code selector, paging tables live above the heap window and the
// timer needs dispatch.
//
// Errors are fatal and reported through kfmt.Panic.
func Boot(hw cpu.Hardware, mem mm.PhysicalMemory, params BootParams) {
	cpu.SetActive(hw)
	kfmt.SetOutputSink(hal.InitTerminal(mem))
	kfmt.Printf("[kmain] starting kcore\n")

	var err *kernel.Error
	if err = multiboot.Init(mem, params.MultibootMagic, params.MultibootInfo); err != nil {
		panicFn(err)
		return
	}
	printBootInfo()

	gdt.Init(hw)
	gate.Init(hw, gate.StubTableAt(mem, params.TrapStubTable))
	irq.Init(hw)

	if err = kheap.Init(mem, params.KernelEnd); err != nil {
		panicFn(err)
		return
	}
	kheap.KernelHeap().SetTrace(multiboot.CmdLineEnabled("kheap.trace"))

	if err = vmm.Init(hw, mem); err != nil {
		panicFn(err)
		return
	}
	kheap.PrintMemoryLayout()

	pit.Init(hw)
	if multiboot.CmdLineEnabled("pit.sleepTest") {
		start := pit.Ticks()
		pit.SleepInterrupt(sleepTestMs)
		kfmt.Printf("[kmain] slept for %d ms (%d ticks)\n", sleepTestMs, pit.Ticks()-start)
	}
}

// printBootInfo dumps the bootloader name and memory map.
func printBootInfo() {
	if name := multiboot.BootLoaderName(); name != nil {
		kfmt.Printf("[kmain] booted by %s\n", name)
	}

	bootInfoWriter.Sink = kfmt.GetOutputSink()
	kfmt.Fprintf(&bootInfoWriter, "system memory map:\n")
	multiboot.VisitMemRegions(func(region *multiboot.MemoryMapEntry) bool {
		kfmt.Fprintf(&bootInfoWriter, "  [0x%10x - 0x%10x], size: %10d, type: %s\n", region.PhysAddress, region.PhysAddress+region.Length, region.Length, region.Type.String())
		return true
	})
}

// idle waits for interrupts forever.
func idle(hw cpu.Hardware) {
	for {
		hw.EnableInterrupts()
		hw.Halt()
	}
}
