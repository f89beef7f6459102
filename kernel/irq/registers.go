package irq

import (
	"io"
	"kcore/kernel/kfmt"
)

// Registers contains a snapshot of the register values captured by the
// trap-entry stubs. The field order is an ABI contract with the stubs: the
// data segment, the PUSHA block, the vector number and error code pushed by
// the stub and finally the frame pushed by the CPU.
type Registers struct {
	DS uint32

	EDI uint32
	ESI uint32
	EBP uint32
	ESP uint32
	EBX uint32
	EDX uint32
	ECX uint32
	EAX uint32

	// IntNo is the vector number as pushed by the stub. The CPU
	// sign-extends it so only the low byte is meaningful.
	IntNo uint32

	// ErrCode holds the exception error code or 0 for vectors that do
	// not push one.
	ErrCode uint32

	// The return frame used by IRET
	EIP     uint32
	CS      uint32
	EFlags  uint32
	UserESP uint32
	SS      uint32
}

// Vector returns the interrupt vector that triggered this trap.
func (r *Registers) Vector() Vector {
	return Vector(r.IntNo & 0xff)
}

// DumpTo outputs the register contents to w.
func (r *Registers) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "EAX = %8x EBX = %8x\n", r.EAX, r.EBX)
	kfmt.Fprintf(w, "ECX = %8x EDX = %8x\n", r.ECX, r.EDX)
	kfmt.Fprintf(w, "ESI = %8x EDI = %8x\n", r.ESI, r.EDI)
	kfmt.Fprintf(w, "EBP = %8x ESP = %8x\n", r.EBP, r.ESP)
	kfmt.Fprintf(w, "EIP = %8x CS  = %8x\n", r.EIP, r.CS)
	kfmt.Fprintf(w, "EFL = %8x SS  = %8x\n", r.EFlags, r.SS)
	kfmt.Fprintf(w, "INT = %8x ERR = %8x\n", r.IntNo, r.ErrCode)
}

// Vector describes an x86 interrupt/exception/trap slot.
type Vector uint8

const (
	// DivideByZero occurs when dividing any number by 0 using the DIV or
	// IDIV instruction.
	DivideByZero = Vector(0)

	// NMI (non-maskable-interrupt) is a hardware interrupt that indicates
	// issues with RAM or unrecoverable hardware problems.
	NMI = Vector(2)

	// InvalidOpcode occurs when the CPU attempts to execute an invalid or
	// undefined instruction opcode.
	InvalidOpcode = Vector(6)

	// DoubleFault occurs when an unhandled exception occurs or when an
	// exception occurs within a running exception handler.
	DoubleFault = Vector(8)

	// GPFException occurs when a general protection fault occurs.
	GPFException = Vector(13)

	// PageFaultException occurs when a page directory or table entry is
	// not present or when a privilege and/or RW protection check fails.
	PageFaultException = Vector(14)

	// IRQBase is the vector that the master PIC delivers IRQ0 to after
	// remapping; IRQ8-15 follow at IRQBase+8.
	IRQBase = Vector(32)

	// IRQ0 is raised by the programmable interval timer.
	IRQ0 = IRQBase

	// IRQ15 is the last remapped hardware interrupt.
	IRQ15 = IRQBase + 15

	// Syscall is the software interrupt used for syscall-style requests.
	Syscall = Vector(0x80)
)

// IsIRQ returns true if v is one of the remapped hardware interrupts.
func (v Vector) IsIRQ() bool {
	return v >= IRQBase && v <= IRQ15
}
