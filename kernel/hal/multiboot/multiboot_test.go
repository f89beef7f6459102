package multiboot

import (
	"encoding/binary"
	"kcore/kernel/cpu/sim"
	"testing"
)

const testInfoAddr = uintptr(0x1000)

type testTag struct {
	tagType tagType
	payload []byte
}

// buildInfo serializes tags into a boot information structure at
// testInfoAddr and returns the simulated machine holding it.
func buildInfo(tags ...testTag) *sim.Machine {
	data := make([]byte, infoHeaderSize)
	all := append(append([]testTag{}, tags...), testTag{tagType: tagMbSectionEnd})
	for _, tag := range all {
		var hdr [tagHeaderSize]byte
		binary.LittleEndian.PutUint32(hdr[0:], uint32(tag.tagType))
		binary.LittleEndian.PutUint32(hdr[4:], uint32(tagHeaderSize+len(tag.payload)))
		data = append(data, hdr[:]...)
		data = append(data, tag.payload...)
		for len(data)%8 != 0 {
			data = append(data, 0)
		}
	}
	binary.LittleEndian.PutUint32(data, uint32(len(data)))

	m := sim.New(0x2000)
	copy(m.Memory[testInfoAddr:], data)
	return m
}

func mmapPayload(entries ...MemoryMapEntry) []byte {
	const entrySize = 24

	payload := make([]byte, mmapHeaderSize, mmapHeaderSize+len(entries)*entrySize)
	binary.LittleEndian.PutUint32(payload[0:], entrySize)
	for _, entry := range entries {
		var raw [entrySize]byte
		binary.LittleEndian.PutUint64(raw[0:], entry.PhysAddress)
		binary.LittleEndian.PutUint64(raw[8:], entry.Length)
		binary.LittleEndian.PutUint32(raw[16:], uint32(entry.Type))
		payload = append(payload, raw[:]...)
	}
	return payload
}

var testTags = []testTag{
	{tagBootCmdLine, []byte("kheap.trace=on  nosmp pit.sleepTest=off root=/dev/sda\x00")},
	{tagBootLoaderName, []byte("GRUB 2.06\x00")},
	{tagMemoryMap, mmapPayload(
		MemoryMapEntry{0, 654336, MemAvailable},
		MemoryMapEntry{654336, 1024, MemReserved},
		MemoryMapEntry{1048576, 133038080, MemAvailable},
		MemoryMapEntry{134086656, 131072, MemoryEntryType(0)},
		MemoryMapEntry{4294705152, 262144, MemoryEntryType(42)},
	)},
}

func TestParse(t *testing.T) {
	m := buildInfo(testTags...)

	if _, err := Parse(m, 0x2badb002, testInfoAddr); err != errBadMagic {
		t.Fatalf("expected errBadMagic; got %v", err)
	}

	empty := sim.New(0x2000)
	if _, err := Parse(empty, BootMagic, testInfoAddr); err != errMalformed {
		t.Fatalf("expected errMalformed; got %v", err)
	}

	if _, err := Parse(m, BootMagic, testInfoAddr); err != nil {
		t.Fatal(err)
	}
}

func TestFindTagByType(t *testing.T) {
	m := buildInfo(testTags...)
	info, _ := Parse(m, BootMagic, testInfoAddr)

	specs := []struct {
		tagType tagType
		expSize int
	}{
		{tagBootCmdLine, len(testTags[0].payload)},
		{tagBootLoaderName, 10},
		{tagMemoryMap, 8 + 5*24},
		{tagModules, 0},
		{tagFramebufferInfo, 0},
	}

	for specIndex, spec := range specs {
		if got := len(info.findTagByType(spec.tagType)); got != spec.expSize {
			t.Errorf("[spec %d] expected tag size for tag type %d to be %d; got %d", specIndex, spec.tagType, spec.expSize, got)
		}
	}
}

func TestFindTagByTypeTruncated(t *testing.T) {
	m := buildInfo(testTags...)

	// corrupt the size of the first tag so it extends past the structure
	binary.LittleEndian.PutUint32(m.Memory[testInfoAddr+infoHeaderSize+4:], 0xffff)

	info, err := Parse(m, BootMagic, testInfoAddr)
	if err != nil {
		t.Fatal(err)
	}

	if tag := info.findTagByType(tagMemoryMap); tag != nil {
		t.Fatalf("expected truncated tag list to yield no tags; got %d bytes", len(tag))
	}
}

func TestVisitMemRegions(t *testing.T) {
	specs := []MemoryMapEntry{
		{0, 654336, MemAvailable},
		{654336, 1024, MemReserved},
		{1048576, 133038080, MemAvailable},
		// unknown types are reported as reserved
		{134086656, 131072, MemReserved},
		{4294705152, 262144, MemReserved},
	}

	m := buildInfo(testTags...)
	if err := Init(m, BootMagic, testInfoAddr); err != nil {
		t.Fatal(err)
	}

	var visitCount int
	VisitMemRegions(func(entry *MemoryMapEntry) bool {
		if visitCount >= len(specs) {
			t.Fatalf("unexpected visit %d", visitCount)
		}

		if *entry != specs[visitCount] {
			t.Errorf("[visit %d] expected entry %+v; got %+v", visitCount, specs[visitCount], *entry)
		}
		visitCount++
		return true
	})

	if visitCount != len(specs) {
		t.Fatalf("expected visitor to be invoked %d times; got %d", len(specs), visitCount)
	}

	// abort the scan early
	visitCount = 0
	VisitMemRegions(func(_ *MemoryMapEntry) bool {
		visitCount++
		return false
	})

	if visitCount != 1 {
		t.Fatalf("expected visitor to be invoked once; got %d", visitCount)
	}
}

var visitedRegions int

func countRegion(_ *MemoryMapEntry) bool {
	visitedRegions++
	return true
}

func TestVisitMemRegionsNoAlloc(t *testing.T) {
	if err := Init(buildInfo(testTags...), BootMagic, testInfoAddr); err != nil {
		t.Fatal(err)
	}

	// the memory map is dumped before any allocator exists
	allocs := testing.AllocsPerRun(10, func() {
		VisitMemRegions(countRegion)
	})

	if allocs != 0 {
		t.Fatalf("expected VisitMemRegions to perform no allocations; got %v", allocs)
	}

	if visitedRegions == 0 {
		t.Fatal("expected visitor to be invoked")
	}
}

func TestVisitMemRegionsWithoutMemoryMap(t *testing.T) {
	info, _ := Parse(buildInfo(testTags[:2]...), BootMagic, testInfoAddr)
	info.VisitMemRegions(func(_ *MemoryMapEntry) bool {
		t.Fatal("visitor should not be called")
		return false
	})
}

func TestCmdLine(t *testing.T) {
	m := buildInfo(testTags...)
	if err := Init(m, BootMagic, testInfoAddr); err != nil {
		t.Fatal(err)
	}

	if got := string(BootLoaderName()); got != "GRUB 2.06" {
		t.Errorf("expected bootloader name %q; got %q", "GRUB 2.06", got)
	}

	specs := []struct {
		key    string
		exp    string
		expNil bool
	}{
		{"kheap.trace", "on", false},
		{"pit.sleepTest", "off", false},
		{"nosmp", "nosmp", false},
		{"root", "/dev/sda", false},
		{"kheap", "", true},
		{"missing", "", true},
	}

	info, _ := Parse(m, BootMagic, testInfoAddr)
	for specIndex, spec := range specs {
		got := info.CmdLineValue(spec.key)
		if spec.expNil {
			if got != nil {
				t.Errorf("[spec %d] expected key %q to be missing; got %q", specIndex, spec.key, got)
			}
			continue
		}

		if string(got) != spec.exp {
			t.Errorf("[spec %d] expected value %q for key %q; got %q", specIndex, spec.exp, spec.key, got)
		}
	}

	if !CmdLineEnabled("kheap.trace") {
		t.Error("expected kheap.trace to be enabled")
	}

	if CmdLineEnabled("pit.sleepTest") || CmdLineEnabled("missing") {
		t.Error("expected pit.sleepTest and missing keys to be disabled")
	}
}

func TestMemoryEntryTypeString(t *testing.T) {
	specs := []struct {
		input MemoryEntryType
		exp   string
	}{
		{MemAvailable, "available"},
		{MemReserved, "reserved"},
		{MemAcpiReclaimable, "ACPI (reclaimable)"},
		{MemNvs, "NVS"},
		{MemoryEntryType(123), "unknown"},
	}

	for specIndex, spec := range specs {
		if got := spec.input.String(); got != spec.exp {
			t.Errorf("[spec %d] expected MemoryEntryType(%d).String() to return %q; got %q", specIndex, spec.input, spec.exp, got)
		}
	}
}
