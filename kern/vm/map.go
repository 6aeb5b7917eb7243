package vm

import (
	"unsafe"

	"github.com/monix-go/monix/kern/defaults"
)

// MapEntry describes one allocated region of a Map (vm_map_entry_t). Entries
// are placed sequentially, so unlike Thread/Task (which belong to two lists
// at once — the global list and a per-owner sibling list) a plain slice on
// Map is the entry's only membership; there is no second list it needs an
// intrusive node for.
type MapEntry struct {
	Base       uint64
	Size       uint64
	GuardPage  bool
	KernelCode bool
}

// AllocFlags selects guard-page placement and classification for Map.Alloc
// (VM_ALLOC_* in vm_map.h).
type AllocFlags uint32

const (
	AllocNone       AllocFlags = 0
	AllocGuardFirst AllocFlags = defaults.AllocGuardFirst
	AllocGuardLast  AllocFlags = defaults.AllocGuardLast
	AllocKernelCode AllocFlags = defaults.AllocKernelCode
)

// Map is a virtual address space: an ordered run of MapEntry and the pmap
// backing it. Grounded on vm_map.h's vm_map_t.
type Map struct {
	Timestamp uint64
	Pmap      *Pmap
	Min, Max  uint64
	Size      uint64
	locked    bool
	entries   []MapEntry

	pages  *PageAllocator
	region *PTRegion
}

// NewMap creates an empty map over [min, max) backed by pmap, with pages
// and region supplying the physical frames and translation tables that
// Alloc will need (vm_map_create).
func NewMap(pmap *Pmap, min, max uint64, pages *PageAllocator, region *PTRegion) *Map {
	return &Map{
		Pmap:   pmap,
		Min:    min,
		Max:    max,
		pages:  pages,
		region: region,
	}
}

// Lock and Unlock are the map's single-bit critical-section flag, carried
// as-is from vm_map_lock/vm_map_unlock: a real lock/unlock pair is not
// implemented yet, matching the teacher's own TODO.
func (m *Map) Lock()   { m.locked = true }
func (m *Map) Unlock() { m.locked = false }

// EntryCreate appends a new entry describing [base, base+size) to the map
// (vm_map_entry_create). It does not allocate the underlying pages or
// translation table entries; callers arrange that first.
func (m *Map) EntryCreate(base, size uint64, guardPage, kernelCode bool) {
	m.Lock()
	defer m.Unlock()

	m.entries = append(m.entries, MapEntry{
		Base:       base,
		Size:       size - 1,
		GuardPage:  guardPage,
		KernelCode: kernelCode,
	})
	m.Size += size
}

// Entries returns the map's entries in allocation order, for diagnostics
// and tests.
func (m *Map) Entries() []MapEntry { return m.entries }

// alignAddr4 mirrors VM_ALIGN_ADDR: round up to a 4-byte boundary.
func alignAddr4(addr uint64) uint64 {
	return (addr + 3) &^ 3
}

// Alloc allocates size bytes of virtual address space within m, creating
// physical pages and translation table entries as it goes, and returns the
// base address of the allocation (vm_map_alloc). Guard pages are placed
// before and/or after the allocation per flags and poisoned with
// GuardPageFill. They are mapped with the same entry attributes as the
// body: CreateTTE does not apply the no-access flag they are passed with.
func (m *Map) Alloc(size uint64, flags AllocFlags) (uint64, error) {
	var last *MapEntry
	if n := len(m.entries); n > 0 {
		last = &m.entries[n-1]
	}

	var vcursor uint64
	if last != nil {
		vcursor = alignAddr4(last.Base + last.Size + 1)
	} else {
		vcursor = m.Min
	}
	vbase := vcursor

	if flags&AllocGuardFirst != 0 {
		if err := m.mapGuardPage(vcursor); err != nil {
			return 0, err
		}
		m.EntryCreate(vcursor, defaults.PageSize, true, false)
		vbase = vcursor + defaults.PageSize
		vcursor = vbase
	}

	pageCount := size / defaults.PageSize
	if size < defaults.PageSize || pageCount == 0 {
		pageCount = 1
	}

	for i := uint64(0); i < pageCount; i++ {
		pageAddr, err := m.pages.Alloc()
		if err != nil {
			return 0, err
		}
		if err := CreateTTE(m.region, m.Pmap.TTE, pageAddr, vcursor, defaults.PageSize, AccessReadWrite); err != nil {
			return 0, err
		}
		vcursor += defaults.PageSize
	}

	m.EntryCreate(vbase, pageCount*defaults.PageSize, false, flags&AllocKernelCode != 0)

	if flags&AllocGuardLast != 0 {
		if err := m.mapGuardPage(vcursor); err != nil {
			return 0, err
		}
		m.EntryCreate(vcursor, defaults.PageSize, true, false)
	}

	return vbase, nil
}

func (m *Map) mapGuardPage(vaddr uint64) error {
	pageAddr, err := m.pages.Alloc()
	if err != nil {
		return err
	}
	if err := CreateTTE(m.region, m.Pmap.TTE, pageAddr, vaddr, defaults.PageSize, AccessNoAccess); err != nil {
		return err
	}

	GuardPageFill(unsafe.Slice((*uint64)(unsafe.Pointer(uintptr(vaddr))), defaults.PageSize/8))

	return nil
}

// IsAddressValid reports whether addr falls within the map's virtual
// address range (vm_is_address_valid).
func (m *Map) IsAddressValid(addr uint64) bool {
	return addr >= m.Min && addr < m.Max
}
