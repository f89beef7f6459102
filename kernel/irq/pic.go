package irq

import "kcore/kernel/cpu"

// 8259A programmable interrupt controller ports and commands.
const (
	picMasterCmd  = uint16(0x20)
	picMasterData = uint16(0x21)
	picSlaveCmd   = uint16(0xa0)
	picSlaveData  = uint16(0xa1)

	picICW1Init = uint8(0x11) // edge triggered, cascade, ICW4 follows
	picICW4x86  = uint8(0x01)
	picEOI      = uint8(0x20)
)

// RemapPIC moves IRQ0-7 to IRQBase and IRQ8-15 to IRQBase+8 so that hardware
// interrupts no longer collide with CPU exceptions, then unmasks every line.
func RemapPIC(hw cpu.Hardware) {
	hw.PortWriteByte(picMasterCmd, picICW1Init)
	hw.PortWriteByte(picSlaveCmd, picICW1Init)

	// ICW2: vector offsets
	hw.PortWriteByte(picMasterData, uint8(IRQBase))
	hw.PortWriteByte(picSlaveData, uint8(IRQBase+8))

	// ICW3: slave attached to master IRQ2
	hw.PortWriteByte(picMasterData, 0x04)
	hw.PortWriteByte(picSlaveData, 0x02)

	hw.PortWriteByte(picMasterData, picICW4x86)
	hw.PortWriteByte(picSlaveData, picICW4x86)

	hw.PortWriteByte(picMasterData, 0x00)
	hw.PortWriteByte(picSlaveData, 0x00)
}

// acknowledge signals end-of-interrupt for a remapped hardware vector.
// Interrupts routed through the slave controller must be acknowledged on
// both controllers.
func acknowledge(hw cpu.Hardware, v Vector) {
	if v >= IRQBase+8 {
		hw.PortWriteByte(picSlaveCmd, picEOI)
	}
	hw.PortWriteByte(picMasterCmd, picEOI)
}
