// Package irq routes interrupts delivered by the trap-entry stubs to the
// handlers registered for each vector.
package irq

import (
	"kcore/kernel/cpu"
	"kcore/kernel/kfmt"
	"unsafe"
)

// Handler processes an interrupt. The handler may modify regs; changes are
// restored by the trap-entry stub before returning with IRET. context is the
// opaque value supplied when the handler was registered.
//
// Handlers run with interrupts disabled and must not call into the kernel
// heap.
type Handler func(regs *Registers, context unsafe.Pointer)

// State is the outcome of dispatching an interrupt.
type State uint8

const (
	// StateDispatching is the state while a handler lookup is in progress.
	StateDispatching State = iota

	// StateHandled means that a registered handler processed the interrupt.
	StateHandled

	// StateHalted means that no handler was registered for the vector.
	// This is a terminal state: the CPU must not resume.
	StateHalted
)

type registration struct {
	handler Handler
	context unsafe.Pointer
}

// Dispatcher maps each of the 256 vectors to at most one handler.
type Dispatcher struct {
	handlers [256]registration

	// hw receives end-of-interrupt commands for hardware vectors. It may
	// be nil when no interrupt controller is present.
	hw cpu.Hardware
}

// Register installs handler for vector v, replacing any previous
// registration. It must not be called while v may fire.
func (d *Dispatcher) Register(v Vector, handler Handler, context unsafe.Pointer) {
	d.handlers[v] = registration{handler: handler, context: context}
}

// Registered returns true if a handler is installed for v.
func (d *Dispatcher) Registered(v Vector) bool {
	return d.handlers[v].handler != nil
}

// Dispatch invokes the handler registered for the vector in regs.
// Hardware vectors are acknowledged once their handler returns. If no
// handler is registered, Dispatch reports the vector and returns StateHalted.
func (d *Dispatcher) Dispatch(regs *Registers) State {
	v := regs.Vector()
	reg := d.handlers[v]
	if reg.handler == nil {
		kfmt.Printf("[irq] unhandled interrupt: vector %d\n", uint8(v))
		regs.DumpTo(kfmt.GetOutputSink())
		return StateHalted
	}

	reg.handler(regs, reg.context)

	if v.IsIRQ() && d.hw != nil {
		acknowledge(d.hw, v)
	}

	return StateHandled
}

var (
	// haltFn is mocked by tests and is automatically inlined by the compiler.
	haltFn = cpu.HaltForever

	kernelDispatcher Dispatcher
)

// Init remaps the interrupt controller and binds the kernel dispatcher to hw
// so hardware vectors get acknowledged. The IDT must already be loaded.
func Init(hw cpu.Hardware) {
	RemapPIC(hw)
	kernelDispatcher.hw = hw
	kfmt.Printf("[irq] hardware interrupts remapped to vectors %d-%d\n", uint8(IRQBase), uint8(IRQ15))
}

// HandleInterrupt registers handler for vector v with the kernel dispatcher.
func HandleInterrupt(v Vector, handler Handler, context unsafe.Pointer) {
	kernelDispatcher.Register(v, handler, context)
}

// HandleIRQ registers handler for hardware interrupt line irq (0-15).
func HandleIRQ(irq uint8, handler Handler, context unsafe.Pointer) {
	kernelDispatcher.Register(IRQBase+Vector(irq&0xf), handler, context)
}

// KernelDispatcher returns the dispatcher used by DispatchTrap.
func KernelDispatcher() *Dispatcher {
	return &kernelDispatcher
}

// DispatchTrap is the entrypoint invoked by the trap-entry stubs with the
// captured register snapshot. Unhandled vectors halt the CPU permanently.
func DispatchTrap(regs *Registers) {
	if kernelDispatcher.Dispatch(regs) == StateHalted {
		haltFn()
	}
}
