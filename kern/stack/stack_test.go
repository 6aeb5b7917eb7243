package stack

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/monix-go/monix/kern/defaults"
	"github.com/monix-go/monix/kern/errs"
	"github.com/monix-go/monix/kern/vm"
	"github.com/monix-go/monix/kern/zalloc"
)

func buildTestMap(t *testing.T, pageCount int) *vm.Map {
	t.Helper()

	buf := make([]byte, pageCount*defaults.PageSize)
	membase := uint64(uintptr(unsafe.Pointer(&buf[0])))

	pages := &vm.PageAllocator{}
	pages.Bootstrap(membase, uint64(len(buf)), 0)

	region := &vm.PTRegion{}
	if err := region.Create(); err != nil {
		t.Fatalf("region.Create: %v", err)
	}

	pmap, err := vm.CreateKernelPmap(region, membase, membase+uint64(len(buf)))
	if err != nil {
		t.Fatalf("CreateKernelPmap: %v", err)
	}

	return vm.NewMap(pmap, membase, membase+uint64(len(buf)), pages, region)
}

func freshZoneTable(t *testing.T) *zalloc.Table {
	t.Helper()
	var zt zalloc.Table
	zt.Init()
	if err := Init(&zt); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return &zt
}

func TestAllocBeforeInitFails(t *testing.T) {
	var zt zalloc.Table
	zt.Init()
	stackZone = nil
	stacks = nil

	if _, _, err := Alloc(nil); !errors.Is(err, errs.ErrAlreadyInitialized) {
		t.Fatalf("Alloc before Init = %v, want ErrAlreadyInitialized", err)
	}
}

func TestAllocReturnsGuardedRange(t *testing.T) {
	freshZoneTable(t)
	m := buildTestMap(t, 8)

	base, size, err := Alloc(m)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if size != defaults.ThreadStackDefaultSize {
		t.Fatalf("size = %d, want %d", size, defaults.ThreadStackDefaultSize)
	}
	if Count() != 1 {
		t.Fatalf("Count() = %d, want 1", Count())
	}

	entries := m.Entries()
	if len(entries) != 3 || entries[1].Base != base {
		t.Fatalf("entries = %+v, want 3 entries with the body at 0x%x", entries, base)
	}
}

func TestFreeRemovesRecord(t *testing.T) {
	freshZoneTable(t)
	m := buildTestMap(t, 8)

	base, _, err := Alloc(m)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}

	if err := Free(base); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if Count() != 0 {
		t.Fatalf("Count() after Free = %d, want 0", Count())
	}
}

func TestFreeOfUnknownBaseFails(t *testing.T) {
	freshZoneTable(t)

	if err := Free(0xdeadbeef); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("Free(unknown) = %v, want ErrNotFound", err)
	}
}
