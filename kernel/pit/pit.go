// Package pit drives channel 0 of the 8253/8254 programmable interval timer
// and maintains the kernel tick counter.
package pit

import (
	"kcore/kernel/cpu"
	"kcore/kernel/irq"
	"kcore/kernel/kfmt"
	"sync/atomic"
	"unsafe"
)

const (
	// BaseFrequency is the input clock of the PIT in Hz.
	BaseFrequency = 1193180

	// TargetFrequency is the rate at which the timer interrupt fires.
	TargetFrequency = 1000

	// TicksPerMs is the number of timer interrupts per millisecond.
	TicksPerMs = TargetFrequency / 1000

	// Divisor is the reload value programmed into channel 0. The
	// truncated remainder makes the timer drift slightly over time.
	Divisor = BaseFrequency / TargetFrequency

	// IRQ is the interrupt line the PIT is wired to.
	IRQ = uint8(0)
)

const (
	channel0Port = uint16(0x40)
	cmdPort      = uint16(0x43)

	// channel 0, lobyte/hibyte access, mode 3 (square wave), binary
	cmdChannel0SquareWave = uint8(0x36)
)

// Timer counts interrupts raised by the PIT. The zero value is not usable
// for sleeping; call Init first.
type Timer struct {
	// ticks is written only by the interrupt handler.
	ticks uint32

	hw cpu.Hardware
}

// Init registers the tick handler for IRQ0 and programs channel 0 to fire at
// TargetFrequency.
func (t *Timer) Init(hw cpu.Hardware) {
	t.hw = hw
	irq.HandleIRQ(IRQ, tick, unsafe.Pointer(t))

	hw.PortWriteByte(cmdPort, cmdChannel0SquareWave)
	hw.PortWriteByte(channel0Port, uint8(Divisor&0xff))
	hw.PortWriteByte(channel0Port, uint8((Divisor>>8)&0xff))

	kfmt.Printf("[pit] timer running at %d Hz (divisor %d)\n", TargetFrequency, Divisor)
}

// tick is the IRQ0 handler.
func tick(_ *irq.Registers, context unsafe.Pointer) {
	atomic.AddUint32(&(*Timer)(context).ticks, 1)
}

// Ticks returns the number of timer interrupts observed since Init. The
// counter wraps at 2^32.
func (t *Timer) Ticks() uint32 {
	return atomic.LoadUint32(&t.ticks)
}

// deadline returns the tick value that marks the end of an ms long sleep.
// Sleeps that straddle the counter wraparound return early.
func (t *Timer) deadline(ms uint32) uint32 {
	return t.Ticks() + ms*TicksPerMs
}

// SleepInterrupt blocks for at least ms milliseconds. The CPU halts between
// ticks so interrupts get enabled as a side effect. A zero-length sleep
// returns without touching the hardware, so it is safe before Init.
func (t *Timer) SleepInterrupt(ms uint32) {
	for end := t.deadline(ms); t.Ticks() < end; {
		t.hw.EnableInterrupts()
		t.hw.Halt()
	}
}

// SleepBusy blocks for at least ms milliseconds by spinning on the tick
// counter. Interrupts must already be enabled or the call never returns.
func (t *Timer) SleepBusy(ms uint32) {
	for end := t.deadline(ms); t.Ticks() < end; {
		spinFn()
	}
}

var (
	// spinFn is mocked by tests and is automatically inlined by the compiler.
	spinFn = func() {}

	kernelTimer Timer
)

// Init starts the kernel timer.
func Init(hw cpu.Hardware) {
	kernelTimer.Init(hw)
}

// Ticks returns the kernel tick counter.
func Ticks() uint32 {
	return kernelTimer.Ticks()
}

// SleepInterrupt halts the CPU until ms milliseconds have elapsed.
func SleepInterrupt(ms uint32) {
	kernelTimer.SleepInterrupt(ms)
}

// SleepBusy spins until ms milliseconds have elapsed.
func SleepBusy(ms uint32) {
	kernelTimer.SleepBusy(ms)
}
