package console

import "kcore/kernel"

const (
	// EgaFramebufferAddr is the physical address of the text-mode
	// framebuffer.
	EgaFramebufferAddr = uintptr(0xb8000)

	// EgaWidth and EgaHeight are the dimensions of the standard text
	// mode in characters.
	EgaWidth  = 80
	EgaHeight = 25

	// cellSize is the size of a framebuffer cell: a character byte
	// followed by an attribute byte.
	cellSize = 2

	clearColor = Black
	clearChar  = byte(' ')
)

// Ega implements an EGA-compatible text console on top of a framebuffer
// slice holding width*height cells.
type Ega struct {
	width  uint16
	height uint16

	fb []byte
}

// Init sets up the console. fb must hold at least width*height cells.
func (cons *Ega) Init(width, height uint16, fb []byte) {
	cons.width = width
	cons.height = height
	cons.fb = fb[:int(width)*int(height)*cellSize]
}

// Clear clears the specified rectangular region
func (cons *Ega) Clear(x, y, width, height uint16) {
	var (
		attr      = uint16((clearColor << 4) | clearColor)
		clr       = attr<<8 | uint16(clearChar)
		rowOffset int
	)

	// clip rectangle
	if x >= cons.width {
		x = cons.width
	}
	if y >= cons.height {
		y = cons.height
	}

	if x+width > cons.width {
		width = cons.width - x
	}
	if y+height > cons.height {
		height = cons.height - y
	}

	rowOffset = cons.offset(x, y)
	for ; height > 0; height, rowOffset = height-1, rowOffset+int(cons.width)*cellSize {
		kernel.Memset16(cons.fb[rowOffset:rowOffset+int(width)*cellSize], clr)
	}
}

// Dimensions returns the console width and height in characters.
func (cons *Ega) Dimensions() (uint16, uint16) {
	return cons.width, cons.height
}

// Scroll a particular number of lines to the specified direction.
func (cons *Ega) Scroll(dir ScrollDir, lines uint16) {
	if lines == 0 || lines > cons.height {
		return
	}

	offset := cons.offset(0, lines)

	switch dir {
	case Up:
		kernel.Memcopy(cons.fb, cons.fb[offset:])
	case Down:
		kernel.Memcopy(cons.fb[offset:], cons.fb[:len(cons.fb)-offset])
	}
}

// Write a char to the specified location.
func (cons *Ega) Write(ch byte, attr Attr, x, y uint16) {
	if x >= cons.width || y >= cons.height {
		return
	}

	offset := cons.offset(x, y)
	cons.fb[offset] = ch
	cons.fb[offset+1] = byte(attr)
}

func (cons *Ega) offset(x, y uint16) int {
	return (int(y)*int(cons.width) + int(x)) * cellSize
}
