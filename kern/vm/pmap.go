package vm

import (
	"unsafe"

	"github.com/monix-go/monix/internal/reg"
	"github.com/monix-go/monix/kern/defaults"
	"github.com/monix-go/monix/kern/errs"
)

// ptRegion backs every translation table this kernel ever builds: a fixed
// carveout, bump-allocated one page at a time. Real hardware memory,
// addressed through reg.Read64/Write64 like any other register, since the
// MMU walks it directly.
var ptRegion [defaults.TTRegionSize]byte

// PTRegion is the bump allocator over ptRegion (pmap_ptregion_create/
// pmap_ptregion_alloc).
type PTRegion struct {
	base        uint64
	cursor      uint64
	end         uint64
	initialized bool
}

// Create establishes the translation table region's bounds. Must be called
// exactly once during virtual memory bring-up, before any table is built.
func (r *PTRegion) Create() error {
	if r.initialized {
		return errs.ErrAlreadyInitialized
	}

	r.base = uint64(uintptr(unsafe.Pointer(&ptRegion[0])))
	r.cursor = r.base
	r.end = r.base + defaults.TTRegionSize
	r.initialized = true

	return nil
}

// Alloc carves one page out of the region for a new translation table and
// returns its (virtual, in this kernel's identity-ish upper-half window)
// address.
func (r *PTRegion) Alloc() (uint64, error) {
	if r.cursor+defaults.PageSize > r.end {
		return 0, errs.ErrRegionExhausted
	}

	addr := r.cursor
	r.cursor += defaults.PageSize

	return addr, nil
}

// Pmap is a task's view of physical memory: the root translation table, its
// physical address, the virtual address range it covers, and an address
// space identifier. Grounded on pmap.h's pmap_t.
type Pmap struct {
	TTE  uint64 // virtual address of the root translation table
	TTEP uint64 // physical address of the root translation table
	Min  uint64
	Max  uint64
	ASID uint8
}

// CreateTTE walks (and extends, via region) the translation table rooted at
// table, mapping the virtual range [vbase, vbase+size) to the physical
// range starting at pbase. Only a 2-level walk (L1 table -> L2 block) is
// implemented, matching DEFAULTS_KERNEL_VM_USE_L3_TABLE=false; there is no
// L3 walk, so every entry written is a 2MB L2 block, including for a range
// smaller than 2MB such as the single pages Map.Alloc maps. The access
// argument is not applied to the written entry.
func CreateTTE(region *PTRegion, tableAddr uint64, pbase, vbase, size uint64, _ AccessFlags) error {
	if pbase > defaults.KernelVirtBase {
		return errs.ErrInvalidPhysBase
	}

	vend := vbase + size

	for mapAddr := vbase; mapAddr < vend; mapAddr += l1Size {
		l1Index := (mapAddr & l1IndexMask) >> l1Shift
		l1EntryAddr := tableAddr + l1Index*8

		l2Table, err := l2TableFor(region, l1EntryAddr)
		if err != nil {
			return err
		}

		l2End := mapAddr + l1Size
		if l2End > vend {
			l2End = vend
		}

		for l2Addr := mapAddr; l2Addr < l2End; l2Addr += l2Size {
			l2Index := (l2Addr & l2IndexMask) >> l2Shift
			entry := TTEBlockTemplate | TTE((pbase+(l2Addr-vbase))&ttTableMask)
			reg.Write64(l2Table+l2Index*8, uint64(entry))
		}
	}

	return nil
}

// l2TableFor returns the virtual address of the L2 table referenced by the
// L1 entry at l1EntryAddr, allocating and linking a fresh one if the entry
// isn't already a table descriptor.
func l2TableFor(region *PTRegion, l1EntryAddr uint64) (uint64, error) {
	existing := TTE(reg.Read64(l1EntryAddr))
	if existing&tteTypeMask == TTETypeTable {
		return uint64(existing) & ttTableMask, nil
	}

	l2Table, err := region.Alloc()
	if err != nil {
		return 0, err
	}

	entry := TTE(l2Table&ttTableMask) | TTETypeTable
	reg.Write64(l1EntryAddr, uint64(entry))

	return l2Table, nil
}

// CreateKernelPmap builds the kernel's own pmap: a single root table
// allocated from region, covering [min, max).
func CreateKernelPmap(region *PTRegion, min, max uint64) (*Pmap, error) {
	root, err := region.Alloc()
	if err != nil {
		return nil, err
	}

	return &Pmap{
		TTE:  root,
		TTEP: root,
		Min:  min,
		Max:  max,
		ASID: 0,
	}, nil
}
