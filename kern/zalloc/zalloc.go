// Package zalloc implements the kernel's zone allocator: fixed-size-element
// pools carved out of kernel virtual memory, used for every dynamically
// allocated kernel data structure (tasks, threads, processors).
//
// Grounded on _examples/original_source/kern/mm/zalloc.c and zalloc.h,
// itself based on Mach's zalloc. A zone's elements are tracked by an
// "alloc metadata" header moved between a free list and a used list; the
// original gets away with packing the header directly before the element
// bytes in memory because C lets it recover the owning struct from the
// list node via container_of. Go can't do that safely, so elementMeta
// holds the element's backing storage directly instead of assuming it
// sits in adjacent memory — same two-list bookkeeping, no pointer-offset
// trick required.
package zalloc

import (
	"unsafe"

	"github.com/monix-go/monix/internal/list"
	"github.com/monix-go/monix/kern/defaults"
	"github.com/monix-go/monix/kern/errs"
)

// elementMeta is one zone element's bookkeeping record. node is the first
// field so a *list.Node recovered while walking free/used can be converted
// back to *elementMeta the same way Thread recovers itself from its
// context block — see elementMetaOf.
type elementMeta struct {
	node list.Node // first field; recovered via elementMetaOf
	data []byte
}

func init() {
	if unsafe.Offsetof(elementMeta{}.node) != 0 {
		panic("zalloc: elementMeta.node must be the first field")
	}
}

func elementMetaOf(n *list.Node) *elementMeta {
	return (*elementMeta)(unsafe.Pointer(n))
}

// State records whether a zone table slot is in use.
type State uint8

const (
	StateUnused State = iota
	StateUsed
)

// Zone is a fixed-element-size memory pool (zone_t).
type Zone struct {
	Name      string
	Index     int
	State     State
	ElemSize  uint64
	MaxSize   uint64
	Count     int // in-use elements
	CountFree int // free elements

	freeElems list.Node
	usedElems list.Node
}

// Table is the kernel's bounded set of zones (zone_array), matching
// defaults.MaxZones.
type Table struct {
	zones [defaults.MaxZones]Zone
	used  int
}

// Used reports how many zone table slots are currently allocated.
func (t *Table) Used() int { return t.used }

// Init resets every zone slot to unused (zone_init).
func (t *Table) Init() {
	for i := range t.zones {
		t.zones[i] = Zone{Index: i, State: StateUnused}
		t.zones[i].freeElems.Init()
		t.zones[i].usedElems.Init()
	}
	t.used = 0
}

// Create allocates the first free zone table slot for elements of size
// elemSize bytes, with room for max bytes of element data (zone_create).
// The original allocates the zone's backing pages from the kernel vm_map;
// here the backing storage for every element is allocated up front as
// plain Go byte slices, since this kernel's zones exist to bound and track
// allocation counts, not to manage raw physical pages themselves (vm.Map
// already owns that).
func (t *Table) Create(elemSize, max uint64, name string) (*Zone, error) {
	if elemSize == 0 || max == 0 {
		return nil, errs.ErrZoneExhausted
	}

	var z *Zone
	for i := range t.zones {
		if t.zones[i].State == StateUnused {
			z = &t.zones[i]
			break
		}
	}
	if z == nil {
		return nil, errs.ErrZoneTableFull
	}

	z.ElemSize = elemSize
	z.CountFree = int(max / elemSize)
	z.Count = 0
	z.MaxSize = uint64(z.CountFree) * elemSize
	z.Name = name

	z.freeElems.Init()
	z.usedElems.Init()

	for i := 0; i < z.CountFree; i++ {
		meta := &elementMeta{data: make([]byte, elemSize)}
		z.freeElems.AddTail(&meta.node)
	}

	z.State = StateUsed
	t.used++

	return z, nil
}

// Alloc takes the first free element from z, moves its metadata to the
// used list and returns its backing storage (zalloc).
func Alloc(z *Zone) ([]byte, error) {
	n := z.freeElems.First()
	if n == nil {
		return nil, errs.ErrZoneExhausted
	}

	n.Del()
	z.usedElems.AddTail(n)

	meta := elementMetaOf(n)
	z.Count++
	z.CountFree--

	return meta.data, nil
}

// Free returns the element backed by data to z's free list, zeroing its
// contents, after finding it on the used list (zfree). Mirrors the
// original's linear scan-and-panic-if-missing behaviour, surfaced here as
// an error instead of a panic so callers can decide.
func Free(z *Zone, data []byte) error {
	var found *list.Node

	z.usedElems.Each(func(n *list.Node) bool {
		if sameBacking(elementMetaOf(n).data, data) {
			found = n
			return false
		}
		return true
	})

	if found == nil {
		return errs.ErrZoneElementNotFound
	}

	meta := elementMetaOf(found)
	for i := range meta.data {
		meta.data[i] = 0
	}

	found.Del()
	z.freeElems.AddTail(found)

	z.Count--
	z.CountFree++

	return nil
}

func sameBacking(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	return &a[0] == &b[0]
}
