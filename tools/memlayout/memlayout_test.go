package main

import (
	"kcore/kernel/mm/kheap"
	"kcore/kernel/mm/vmm"
	"testing"
)

func TestRegionsFor(t *testing.T) {
	regions, err := regionsFor(0x180123)
	if err != nil {
		t.Fatal(err)
	}

	if regions[0].start != 0 {
		t.Fatalf("expected the map to start at 0; got 0x%x", regions[0].start)
	}

	if last := regions[len(regions)-1]; last.end != vmm.IdentityMapSize {
		t.Fatalf("expected the map to end at 0x%x; got 0x%x", vmm.IdentityMapSize, last.end)
	}

	for i := 1; i < len(regions); i++ {
		if regions[i].start != regions[i-1].end {
			t.Errorf("expected region %q to start where %q ends (0x%x); got 0x%x", regions[i].name, regions[i-1].name, regions[i-1].end, regions[i].start)
		}
	}

	specs := map[string][2]uintptr{
		"heap":           {0x181000, kheap.PheapBegin},
		"pheap":          {kheap.PheapBegin, kheap.PheapEnd},
		"page directory": {0x400000, 0x401000},
		"page tables":    {0x401000, 0x403000},
	}

	for _, r := range regions {
		exp, ok := specs[r.name]
		if !ok {
			continue
		}

		if r.start != exp[0] || r.end != exp[1] {
			t.Errorf("expected region %q to span [0x%x, 0x%x); got [0x%x, 0x%x)", r.name, exp[0], exp[1], r.start, r.end)
		}
	}
}

func TestRegionsForInvalidKernelEnd(t *testing.T) {
	for specIndex, kernelEnd := range []uintptr{0, 0x100000, kheap.PheapBegin} {
		if _, err := regionsFor(kernelEnd); err == nil {
			t.Errorf("[spec %d] expected an error for kernel end 0x%x", specIndex, kernelEnd)
		}
	}
}

func TestRender(t *testing.T) {
	regions, err := regionsFor(0x200000)
	if err != nil {
		t.Fatal(err)
	}

	img := render(regions, 640)
	bounds := img.Bounds()
	if bounds.Dx() != 640 || bounds.Dy() != 2*margin+rowHeight*len(regions) {
		t.Fatalf("unexpected image bounds %v", bounds)
	}

	// the top row shows the last region swatch
	x, y := 2*margin+scaleWidth+swatchWidth/2, margin+rowHeight/2
	r, g, b, _ := img.At(x, y).RGBA()
	exp := regions[len(regions)-1].color
	if uint8(r>>8) != exp.R || uint8(g>>8) != exp.G || uint8(b>>8) != exp.B {
		t.Fatalf("expected swatch color %v at (%d, %d); got (%d, %d, %d)", exp, x, y, r>>8, g>>8, b>>8)
	}
}

func TestParseAddr(t *testing.T) {
	specs := []struct {
		in     string
		exp    uintptr
		expErr bool
	}{
		{"0x200000", 0x200000, false},
		{"2097152", 0x200000, false},
		{"bogus", 0, true},
		{"0x100000000", 0, true},
	}

	for specIndex, spec := range specs {
		got, err := parseAddr(spec.in)
		if (err != nil) != spec.expErr || got != spec.exp {
			t.Errorf("[spec %d] expected (0x%x, err: %t); got (0x%x, %v)", specIndex, spec.exp, spec.expErr, got, err)
		}
	}
}
