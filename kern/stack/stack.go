// Package stack is the thread stack allocator: a thin wrapper over a
// vm.Map that hands out one guarded virtual range per thread.
//
// Grounded on _examples/original_source/kern/mm/stack.c and stack.h.
package stack

import (
	"github.com/monix-go/monix/kern/defaults"
	"github.com/monix-go/monix/kern/errs"
	"github.com/monix-go/monix/kern/vm"
	"github.com/monix-go/monix/kern/zalloc"
)

// record is the bookkeeping kept for every stack handed out, mirroring
// stack_t's (stack_base, siblings) pair.
type record struct {
	base     uint64
	size     uint64
	zoneElem []byte
}

var (
	stackZone *zalloc.Zone
	stacks    []record
)

const unsafeSizeofStack = 24

// Init prepares the stack zone (stack_init).
func Init(zt *zalloc.Table) error {
	z, err := zt.Create(unsafeSizeofStack, uint64(defaults.MaxCPUs)*4*unsafeSizeofStack, "stacks")
	if err != nil {
		return err
	}
	stackZone = z
	stacks = nil
	return nil
}

// Alloc carves a guarded thread stack out of m, returning its base virtual
// address and size (stack_alloc). Leading and trailing guard pages flank
// the body, matching VM_ALLOC_GUARD_FIRST|VM_ALLOC_GUARD_LAST.
func Alloc(m *vm.Map) (base uint64, size uint64, err error) {
	if stackZone == nil {
		return 0, 0, errs.ErrAlreadyInitialized
	}

	zoneElem, err := zalloc.Alloc(stackZone)
	if err != nil {
		return 0, 0, err
	}

	base, err = m.Alloc(defaults.ThreadStackDefaultSize, vm.AllocGuardFirst|vm.AllocGuardLast)
	if err != nil {
		_ = zalloc.Free(stackZone, zoneElem)
		return 0, 0, err
	}

	stacks = append(stacks, record{base: base, size: defaults.ThreadStackDefaultSize, zoneElem: zoneElem})

	return base, defaults.ThreadStackDefaultSize, nil
}

// Free releases the stack based at base back to its zone (stack_free).
func Free(base uint64) error {
	for i, s := range stacks {
		if s.base == base {
			err := zalloc.Free(stackZone, s.zoneElem)
			stacks = append(stacks[:i], stacks[i+1:]...)
			return err
		}
	}
	return errs.ErrNotFound
}

// Count returns the number of stacks currently outstanding, for tests.
func Count() int { return len(stacks) }
