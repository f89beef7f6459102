// Package sim provides a simulated x86 machine that implements
// cpu.Hardware and mm.PhysicalMemory so the kernel core can be exercised on
// a host.
package sim

import (
	"encoding/binary"
	"fmt"
	"kcore/kernel/cpu"
)

// PortWrite records a single byte written to an I/O port.
type PortWrite struct {
	Port uint16
	Val  uint8
}

// Machine is a single-core machine with flat physical memory starting at
// address 0.
type Machine struct {
	// Memory backs the physical address space [0, len(Memory)).
	Memory []byte

	// PortWrites lists every port write in issue order.
	PortWrites []PortWrite

	// PortValues holds the values returned by port reads. Unset ports
	// read as 0.
	PortValues map[uint16]uint8

	InterruptsEnabled bool

	// HaltCount counts the HLT instructions executed so far.
	HaltCount int

	// OnHalt, if set, is invoked whenever the CPU halts. Tests use it to
	// deliver the interrupt that wakes the processor.
	OnHalt func()

	GDTR, IDTR cpu.TablePointer

	// Segment selectors loaded by the last LoadGDT call.
	CS, DS uint16

	CR0, CR3 uint32
}

// New returns a Machine with memSize bytes of zeroed physical memory.
func New(memSize uintptr) *Machine {
	return &Machine{
		Memory:     make([]byte, memSize),
		PortValues: make(map[uint16]uint8),
	}
}

// Bytes implements mm.PhysicalMemory.
func (m *Machine) Bytes(addr, size uintptr) []byte {
	if addr > uintptr(len(m.Memory)) || size > uintptr(len(m.Memory))-addr {
		panic(fmt.Sprintf("sim: physical access [0x%x, 0x%x) outside of %d bytes of memory", addr, addr+size, len(m.Memory)))
	}

	return m.Memory[addr : addr+size : addr+size]
}

// PortReadByte implements cpu.Hardware.
func (m *Machine) PortReadByte(port uint16) uint8 {
	return m.PortValues[port]
}

// PortWriteByte implements cpu.Hardware.
func (m *Machine) PortWriteByte(port uint16, val uint8) {
	m.PortWrites = append(m.PortWrites, PortWrite{Port: port, Val: val})
	m.PortValues[port] = val
}

// WritesTo returns the values written to port in issue order.
func (m *Machine) WritesTo(port uint16) []uint8 {
	var out []uint8
	for _, w := range m.PortWrites {
		if w.Port == port {
			out = append(out, w.Val)
		}
	}
	return out
}

// EnableInterrupts implements cpu.Hardware.
func (m *Machine) EnableInterrupts() { m.InterruptsEnabled = true }

// DisableInterrupts implements cpu.Hardware.
func (m *Machine) DisableInterrupts() { m.InterruptsEnabled = false }

// Halt implements cpu.Hardware.
func (m *Machine) Halt() {
	m.HaltCount++
	if m.OnHalt != nil {
		m.OnHalt()
	}
}

// LoadGDT implements cpu.Hardware.
func (m *Machine) LoadGDT(ptr *cpu.TablePointer, codeSelector, dataSelector uint16) {
	m.GDTR = *ptr
	m.CS, m.DS = codeSelector, dataSelector
}

// LoadIDT implements cpu.Hardware.
func (m *Machine) LoadIDT(ptr *cpu.TablePointer) {
	m.IDTR = *ptr
}

// SwitchPDT implements cpu.Hardware.
func (m *Machine) SwitchPDT(pdtPhysAddr uintptr) {
	m.CR3 = uint32(pdtPhysAddr)
}

// EnablePaging implements cpu.Hardware.
func (m *Machine) EnablePaging() {
	m.CR0 |= cpu.CR0PagingEnabled
}

// PagingEnabled returns true if CR0.PG is set.
func (m *Machine) PagingEnabled() bool {
	return m.CR0&cpu.CR0PagingEnabled != 0
}

const (
	entryPresent = 1 << 0
	entryRW      = 1 << 1
	frameMask    = 0xfffff000
)

// Translate performs the two-level page walk the MMU would perform for
// virt. It returns the physical address, whether the final entry is
// writable, and false if any level is not present. With paging disabled the
// address is returned unchanged.
func (m *Machine) Translate(virt uint32) (phys uint32, writable, ok bool) {
	if !m.PagingEnabled() {
		return virt, true, true
	}

	pde := m.readEntry(m.CR3&frameMask + (virt>>22)*4)
	if pde&entryPresent == 0 {
		return 0, false, false
	}

	pte := m.readEntry(pde&frameMask + ((virt>>12)&0x3ff)*4)
	if pte&entryPresent == 0 {
		return 0, false, false
	}

	return pte&frameMask | virt&0xfff, pde&pte&entryRW != 0, true
}

func (m *Machine) readEntry(addr uint32) uint32 {
	return binary.LittleEndian.Uint32(m.Bytes(uintptr(addr), 4))
}
