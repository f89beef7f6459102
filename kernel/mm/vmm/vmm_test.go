package vmm

import (
	"bytes"
	"kcore/kernel/cpu/sim"
	"kcore/kernel/kfmt"
	"kcore/kernel/mm"
	"strings"
	"testing"
)

func TestInitIdentityMapsFirst8M(t *testing.T) {
	var buf bytes.Buffer
	defer kfmt.SetOutputSink(kfmt.GetOutputSink())
	kfmt.SetOutputSink(&buf)

	m := sim.New(FirstPageTableAddr + 2*TableSize)
	if err := Init(m, m); err != nil {
		t.Fatal(err)
	}

	if m.CR3 != uint32(PageDirectoryAddr) || !m.PagingEnabled() {
		t.Fatalf("expected paging enabled with CR3=0x%x; got CR0=0x%x CR3=0x%x", PageDirectoryAddr, m.CR0, m.CR3)
	}

	for addr := uintptr(0); addr < IdentityMapSize; addr += mm.PageSize {
		for _, offset := range []uintptr{0, 0x7ff, mm.PageSize - 1} {
			a := addr + offset

			phys, writable, ok := m.Translate(uint32(a))
			if !ok || !writable || uintptr(phys) != a {
				t.Fatalf("expected MMU to map 0x%x to itself as writable; got 0x%x (writable: %t, ok: %t)", a, phys, writable, ok)
			}

			got, err := Translate(a)
			if err != nil || got != a {
				t.Fatalf("expected Translate(0x%x) to return 0x%x; got 0x%x, %v", a, a, got, err)
			}
		}
	}

	if _, err := Translate(IdentityMapSize); err != ErrInvalidMapping {
		t.Fatalf("expected address above the identity map to be unmapped; got %v", err)
	}

	if KernelPageDirectory().Frame().Address() != PageDirectoryAddr {
		t.Fatalf("expected kernel directory at 0x%x", PageDirectoryAddr)
	}

	for _, exp := range []string{"Setting up paging", "Paging was successfully enabled!"} {
		if !strings.Contains(buf.String(), exp) {
			t.Errorf("expected output to contain %q; got %q", exp, buf.String())
		}
	}
}
