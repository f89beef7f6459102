// Package hal wires the boot console used for kernel diagnostics.
package hal

import (
	"kcore/kernel/driver/tty"
	"kcore/kernel/driver/video/console"
	"kcore/kernel/mm"
)

var (
	egaConsole = &console.Ega{}

	// ActiveTerminal points to the currently active terminal.
	ActiveTerminal = &tty.Vt{}
)

// InitTerminal provides a basic terminal to allow the kernel to emit some output
// till everything is properly setup
func InitTerminal(mem mm.PhysicalMemory) *tty.Vt {
	fb := mem.Bytes(console.EgaFramebufferAddr, console.EgaWidth*console.EgaHeight*2)

	egaConsole.Init(console.EgaWidth, console.EgaHeight, fb)
	ActiveTerminal.AttachTo(egaConsole)
	ActiveTerminal.Clear()

	return ActiveTerminal
}
