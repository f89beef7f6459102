package irq

import (
	"bytes"
	"kcore/kernel/cpu"
	"kcore/kernel/cpu/sim"
	"kcore/kernel/kfmt"
	"strings"
	"testing"
	"unsafe"
)

func TestDispatchRouting(t *testing.T) {
	var (
		d        Dispatcher
		ctxA     = 1
		ctxB     = 2
		gotCalls []int
	)

	record := func(_ *Registers, ctx unsafe.Pointer) {
		gotCalls = append(gotCalls, *(*int)(ctx))
	}

	d.Register(PageFaultException, record, unsafe.Pointer(&ctxA))
	d.Register(GPFException, record, unsafe.Pointer(&ctxB))

	specs := []struct {
		intNo   uint32
		expCtx  int
		expCall bool
	}{
		{uint32(PageFaultException), ctxA, true},
		{uint32(GPFException), ctxB, true},
	}

	for specIndex, spec := range specs {
		gotCalls = gotCalls[:0]
		if state := d.Dispatch(&Registers{IntNo: spec.intNo}); state != StateHandled {
			t.Errorf("[spec %d] expected state %d; got %d", specIndex, StateHandled, state)
		}

		if len(gotCalls) != 1 || gotCalls[0] != spec.expCtx {
			t.Errorf("[spec %d] expected exactly one call with context %d; got %v", specIndex, spec.expCtx, gotCalls)
		}
	}
}

func TestDispatchLastRegistrationWins(t *testing.T) {
	var (
		d     Dispatcher
		first bool
		last  bool
	)

	d.Register(Syscall, func(_ *Registers, _ unsafe.Pointer) { first = true }, nil)
	d.Register(Syscall, func(_ *Registers, _ unsafe.Pointer) { last = true }, nil)
	d.Dispatch(&Registers{IntNo: uint32(Syscall)})

	if first || !last {
		t.Fatalf("expected only the last registered handler to run; first: %t, last: %t", first, last)
	}
}

func TestDispatchMasksVector(t *testing.T) {
	var (
		d      Dispatcher
		called bool
	)

	d.Register(Syscall, func(regs *Registers, _ unsafe.Pointer) {
		called = true
		// syscall-style handlers report results through the snapshot
		regs.EAX = 42
	}, nil)

	// The CPU sign-extends vectors >= 0x80.
	regs := &Registers{IntNo: 0xffffff80}
	if state := d.Dispatch(regs); state != StateHandled || !called {
		t.Fatalf("expected the sign-extended vector to reach the 0x80 handler; state: %d, called: %t", state, called)
	}

	if regs.EAX != 42 {
		t.Fatalf("expected handler changes to the register snapshot to be preserved; got EAX=%d", regs.EAX)
	}
}

func TestDispatchUnhandled(t *testing.T) {
	var (
		d   Dispatcher
		buf bytes.Buffer
	)

	origSink := kfmt.GetOutputSink()
	defer kfmt.SetOutputSink(origSink)
	kfmt.SetOutputSink(&buf)

	if state := d.Dispatch(&Registers{IntNo: 200, EIP: 0xbadf00d}); state != StateHalted {
		t.Fatalf("expected unhandled vector to yield state %d; got %d", StateHalted, state)
	}

	if d.Registered(200) {
		t.Fatal("expected vector 200 to have no handler")
	}

	out := buf.String()
	for _, exp := range []string{"unhandled interrupt: vector 200", "EIP = 0badf00d"} {
		if !strings.Contains(out, exp) {
			t.Errorf("expected output to contain %q; got:\n%s", exp, out)
		}
	}
}

func TestDispatchAcknowledgesIRQs(t *testing.T) {
	nop := func(_ *Registers, _ unsafe.Pointer) {}

	specs := []struct {
		v           Vector
		expMaster   int
		expSlave    int
		description string
	}{
		{IRQ0, 1, 0, "timer"},
		{IRQBase + 9, 1, 1, "slave line"},
		{PageFaultException, 0, 0, "exception"},
		{Syscall, 0, 0, "software interrupt"},
	}

	for specIndex, spec := range specs {
		m := sim.New(0)
		d := Dispatcher{hw: m}
		d.Register(spec.v, nop, nil)
		d.Dispatch(&Registers{IntNo: uint32(spec.v)})

		if got := len(m.WritesTo(picMasterCmd)); got != spec.expMaster {
			t.Errorf("[spec %d: %s] expected %d EOIs to the master PIC; got %d", specIndex, spec.description, spec.expMaster, got)
		}
		if got := len(m.WritesTo(picSlaveCmd)); got != spec.expSlave {
			t.Errorf("[spec %d: %s] expected %d EOIs to the slave PIC; got %d", specIndex, spec.description, spec.expSlave, got)
		}
	}
}

func TestDispatchTrap(t *testing.T) {
	defer func() {
		haltFn = cpu.HaltForever
		kernelDispatcher = Dispatcher{}
	}()

	var haltCalled bool
	haltFn = func() { haltCalled = true }

	m := sim.New(0)
	Init(m)

	var ticks int
	HandleIRQ(0, func(_ *Registers, ctx unsafe.Pointer) { *(*int)(ctx)++ }, unsafe.Pointer(&ticks))

	DispatchTrap(&Registers{IntNo: uint32(IRQ0)})
	if ticks != 1 || haltCalled {
		t.Fatalf("expected IRQ0 to be handled without halting; ticks: %d, halted: %t", ticks, haltCalled)
	}

	if !KernelDispatcher().Registered(IRQ0) {
		t.Fatal("expected HandleIRQ(0) to register vector 32")
	}

	DispatchTrap(&Registers{IntNo: uint32(IRQBase + 1)})
	if !haltCalled {
		t.Fatal("expected unhandled vector to halt the CPU")
	}

	HandleInterrupt(IRQBase+1, func(_ *Registers, _ unsafe.Pointer) {}, nil)
	haltCalled = false
	DispatchTrap(&Registers{IntNo: uint32(IRQBase + 1)})
	if haltCalled {
		t.Fatal("expected registered vector not to halt the CPU")
	}
}

func TestRemapPIC(t *testing.T) {
	m := sim.New(0)
	RemapPIC(m)

	exp := []sim.PortWrite{
		{Port: 0x20, Val: 0x11}, {Port: 0xa0, Val: 0x11},
		{Port: 0x21, Val: 0x20}, {Port: 0xa1, Val: 0x28},
		{Port: 0x21, Val: 0x04}, {Port: 0xa1, Val: 0x02},
		{Port: 0x21, Val: 0x01}, {Port: 0xa1, Val: 0x01},
		{Port: 0x21, Val: 0x00}, {Port: 0xa1, Val: 0x00},
	}

	if len(m.PortWrites) != len(exp) {
		t.Fatalf("expected %d port writes; got %d", len(exp), len(m.PortWrites))
	}

	for i := range exp {
		if m.PortWrites[i] != exp[i] {
			t.Errorf("[write %d] expected %+v; got %+v", i, exp[i], m.PortWrites[i])
		}
	}
}
