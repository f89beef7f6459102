package main

import (
	"errors"
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"
	"strconv"

	"kcore/kernel/mm/kheap"
	"kcore/kernel/mm/vmm"

	"github.com/fogleman/gg"
)

const (
	// kernelLoadAddr is where the bootloader places the kernel image.
	kernelLoadAddr = uintptr(0x100000)

	rowHeight   = 36
	margin      = 16
	scaleWidth  = 48
	swatchWidth = 24
)

// region is a labeled physical address range [start, end).
type region struct {
	name       string
	start, end uintptr
	color      color.RGBA
}

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[memlayout] error: %s\n", err.Error())
	os.Exit(1)
}

// regionsFor returns the physical memory map of the identity-mapped window
// for a kernel image ending at kernelEnd, sorted by address.
func regionsFor(kernelEnd uintptr) ([]region, error) {
	layout := kheap.LayoutFor(kernelEnd)
	if kernelEnd <= kernelLoadAddr || layout.HeapBegin >= layout.HeapEnd {
		return nil, fmt.Errorf("kernel end 0x%x must be between 0x%x and 0x%x", kernelEnd, kernelLoadAddr, kheap.PheapBegin)
	}

	tablesEnd := vmm.FirstPageTableAddr + (vmm.IdentityMapSize/vmm.RegionSize)*vmm.TableSize

	return []region{
		{"low memory", 0, kernelLoadAddr, color.RGBA{R: 0x90, G: 0x90, B: 0x90, A: 0xff}},
		{"kernel image", kernelLoadAddr, kernelEnd, color.RGBA{R: 0x3b, G: 0x6e, B: 0xc4, A: 0xff}},
		{"guard", kernelEnd, layout.HeapBegin, color.RGBA{R: 0x40, G: 0x40, B: 0x40, A: 0xff}},
		{"heap", layout.HeapBegin, layout.HeapEnd, color.RGBA{R: 0x4c, G: 0xaf, B: 0x50, A: 0xff}},
		{"pheap", layout.PheapBegin, layout.PheapEnd, color.RGBA{R: 0xff, G: 0x98, B: 0x00, A: 0xff}},
		{"page directory", vmm.PageDirectoryAddr, vmm.FirstPageTableAddr, color.RGBA{R: 0xe9, G: 0x1e, B: 0x63, A: 0xff}},
		{"page tables", vmm.FirstPageTableAddr, tablesEnd, color.RGBA{R: 0x9c, G: 0x27, B: 0xb0, A: 0xff}},
		{"identity mapped", tablesEnd, vmm.IdentityMapSize, color.RGBA{R: 0xcf, G: 0xd8, B: 0xdc, A: 0xff}},
	}, nil
}

// render draws regions as a proportional address scale on the left and one
// labeled row per region, highest address at the top.
func render(regions []region, width int) image.Image {
	height := 2*margin + rowHeight*len(regions)
	dc := gg.NewContext(width, height)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	total := float64(regions[len(regions)-1].end - regions[0].start)
	scaleHeight := float64(height - 2*margin)

	for i, r := range regions {
		dc.SetColor(r.color)

		// proportional scale
		top := float64(margin) + scaleHeight*(1-float64(r.end)/total)
		dc.DrawRectangle(margin, top, scaleWidth, scaleHeight*float64(r.end-r.start)/total)
		dc.Fill()

		// labeled row
		y := float64(margin + rowHeight*(len(regions)-1-i))
		dc.DrawRectangle(2*margin+scaleWidth, y+4, swatchWidth, rowHeight-8)
		dc.Fill()

		dc.SetRGB(0, 0, 0)
		label := fmt.Sprintf("%-16s [0x%08x - 0x%08x) %8d KiB", r.name, r.start, r.end, (r.end-r.start)>>10)
		dc.DrawStringAnchored(label, float64(3*margin+scaleWidth+swatchWidth), y+rowHeight/2, 0, 0.5)
	}

	return dc.Image()
}

func parseAddr(s string) (uintptr, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, err
	}
	return uintptr(v), nil
}

func runTool() error {
	kernelEnd := flag.String("kernel-end", "0x200000", "the address of the end of the kernel image (linker symbol end)")
	width := flag.Int("width", 720, "the width of the generated image in pixels")
	output := flag.String("out", "memlayout.png", "the PNG file to write")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "memlayout: render the kernel physical memory layout to a PNG image\n\n")
		fmt.Fprint(os.Stderr, "Usage: memlayout [options]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *width < 4*margin+scaleWidth+swatchWidth {
		return errors.New("image width is too small")
	}

	end, err := parseAddr(*kernelEnd)
	if err != nil {
		return err
	}

	regions, err := regionsFor(end)
	if err != nil {
		return err
	}

	return gg.SavePNG(*output, render(regions, *width))
}

func main() {
	if err := runTool(); err != nil {
		exit(err)
	}
}
