package vm

import (
	"testing"
	"unsafe"

	"github.com/monix-go/monix/kern/defaults"
)

// buildTestMap returns a Map backed by a real Go buffer, identity-mapped
// onto itself, so addresses Alloc hands back are real, dereferenceable
// memory (needed for the guard-page poison write).
func buildTestMap(t *testing.T, pageCount int) *Map {
	t.Helper()

	buf := make([]byte, pageCount*defaults.PageSize)
	membase := uint64(uintptr(unsafe.Pointer(&buf[0])))

	pages := &PageAllocator{}
	pages.Bootstrap(membase, uint64(len(buf)), 0)

	region := &PTRegion{}
	if err := region.Create(); err != nil {
		t.Fatalf("region.Create: %v", err)
	}

	pmap, err := CreateKernelPmap(region, membase, membase+uint64(len(buf)))
	if err != nil {
		t.Fatalf("CreateKernelPmap: %v", err)
	}

	return NewMap(pmap, membase, membase+uint64(len(buf)), pages, region)
}

func readWord(addr uint64) uint64 {
	return *(*uint64)(unsafe.Pointer(uintptr(addr)))
}

func TestMapAllocPlacesGuardPagesAndFillsThem(t *testing.T) {
	m := buildTestMap(t, 8)

	base, err := m.Alloc(defaults.PageSize, AllocGuardFirst|AllocGuardLast)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	entries := m.Entries()
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3 (guard, body, guard)", len(entries))
	}
	if !entries[0].GuardPage || entries[1].GuardPage || !entries[2].GuardPage {
		t.Fatalf("entries = %+v, want guard/body/guard", entries)
	}
	if entries[1].Base != base {
		t.Fatalf("body entry base = 0x%x, want 0x%x (Alloc's return value)", entries[1].Base, base)
	}

	leadingGuard := base - defaults.PageSize
	trailingGuard := base + defaults.PageSize

	if got := readWord(leadingGuard); got != defaults.VMPageGuardMagic {
		t.Fatalf("leading guard page = 0x%x, want guard magic 0x%x", got, defaults.VMPageGuardMagic)
	}
	if got := readWord(trailingGuard); got != defaults.VMPageGuardMagic {
		t.Fatalf("trailing guard page = 0x%x, want guard magic 0x%x", got, defaults.VMPageGuardMagic)
	}
}

func TestMapAllocSequentialEntriesBump(t *testing.T) {
	m := buildTestMap(t, 8)

	first, err := m.Alloc(defaults.PageSize, AllocNone)
	if err != nil {
		t.Fatalf("Alloc #1: %v", err)
	}
	second, err := m.Alloc(defaults.PageSize, AllocNone)
	if err != nil {
		t.Fatalf("Alloc #2: %v", err)
	}

	if second <= first {
		t.Fatalf("second allocation (0x%x) did not bump past the first (0x%x)", second, first)
	}
	if len(m.Entries()) != 2 {
		t.Fatalf("entries = %d, want 2 (no guard pages requested)", len(m.Entries()))
	}
}

func TestMapAllocKernelCodeFlag(t *testing.T) {
	m := buildTestMap(t, 4)

	m.EntryCreate(m.Min, defaults.PageSize, false, true)

	entries := m.Entries()
	if len(entries) != 1 || !entries[0].KernelCode {
		t.Fatalf("entries = %+v, want exactly one KernelCode entry", entries)
	}
}
