// Package vm is the kernel's physical page allocator and virtual memory
// map: the physical frame table, the translation-table builder (pmap), and
// per-task virtual address space tracking (vm_map).
//
// Grounded on _examples/original_source/kern/vm/vm_page.c, pmap.c,
// vm_map.c and vm.c.
package vm

import (
	"fmt"

	"github.com/monix-go/monix/kern/defaults"
	"github.com/monix-go/monix/kern/errs"
)

// PageState records whether a physical frame is in use.
type PageState uint8

const (
	PageFree PageState = iota
	PageAlloc
)

// Page is a physical page descriptor (vm_page_t). The C original threads
// these together with an intrusive list; here the allocator simply keeps
// them in a slice indexed by page number, since the free/used scan walks
// every page in order regardless.
type Page struct {
	Paddr  uint64
	Idx    uint64
	State  PageState
	Mapped bool
}

// PageAllocator is the bump-created table of every physical frame in the
// system, plus a linear free-page scan (vm_page_alloc's behaviour,
// preserved rather than optimised to a free list: the original scans from
// index 0 every time, and nothing in spec.md asks for O(1) allocation
// here — only the zone allocator needs that).
type PageAllocator struct {
	pages   []Page
	memBase uint64
}

// Bootstrap creates one Page per VM_PAGE_SIZE-aligned frame across
// [membase, membase+memsize), then marks the frames covering the kernel
// image and the page descriptor table itself (kernsize bytes) as already
// allocated and mapped — vm_page_bootstrap's kernel carve-out.
func (a *PageAllocator) Bootstrap(membase, memsize, kernsize uint64) {
	count := memsize / defaults.PageSize
	a.memBase = membase
	a.pages = make([]Page, count)

	pcursor := membase
	for i := range a.pages {
		a.pages[i] = Page{
			Paddr:  pcursor,
			Idx:    uint64(i),
			State:  PageFree,
			Mapped: false,
		}
		pcursor += defaults.PageSize
	}

	descriptorBytes := uint64(count) * uint64(unsafeSizeofPage)
	kernPageCount := (kernsize+descriptorBytes)/defaults.PageSize + 1
	if kernPageCount > count {
		kernPageCount = count
	}
	for i := uint64(0); i < kernPageCount; i++ {
		a.pages[i].State = PageAlloc
		a.pages[i].Mapped = true
	}
}

// unsafeSizeofPage approximates vm_page_t's struct size for the kernel
// carve-out calculation; Page's actual Go layout differs from the C
// struct's packed bitfields, but the carve-out only needs to be
// conservative, not exact.
const unsafeSizeofPage = 32

// Alloc returns the physical address of the first free page (vm_page_alloc).
func (a *PageAllocator) Alloc() (uint64, error) {
	for i := range a.pages {
		if a.pages[i].State == PageFree {
			a.pages[i].State = PageAlloc
			return a.pages[i].Paddr, nil
		}
	}
	return 0, errs.ErrOutOfFrames
}

// Free returns the page at paddr to the free list (vm_page_free).
func (a *PageAllocator) Free(paddr uint64) {
	idx := (paddr - a.memBase) / defaults.PageSize
	if idx >= uint64(len(a.pages)) {
		panic(fmt.Sprintf("vm: free of out-of-range page 0x%x", paddr))
	}
	a.pages[idx].State = PageFree
}

// NPages reports the total number of frames tracked, for diagnostics and
// tests.
func (a *PageAllocator) NPages() int { return len(a.pages) }

// Page returns a copy of the page descriptor at idx, for tests.
func (a *PageAllocator) Page(idx int) Page { return a.pages[idx] }

// GuardPageFill stamps a guard page with the poison pattern vm_guard_page_fill
// writes, so a stray read shows up unmistakably in a crash dump.
func GuardPageFill(page []uint64) {
	for i := range page {
		page[i] = defaults.VMPageGuardMagic
	}
}
