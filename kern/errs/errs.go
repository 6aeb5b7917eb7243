// Package errs defines the sentinel errors returned across kernel package
// boundaries.
//
// The original kernel (_examples/original_source/libkern/types.h) reports
// failure with a single kern_return_t, either KERN_RETURN_SUCCESS or
// KERN_RETURN_FAIL, and leans on NULL returns and panic() for everything
// else. Go's error type lets every package return a distinct, wrapped
// sentinel instead of collapsing all failures to one code, so call sites
// can errors.Is against the specific condition instead of testing a single
// "did it fail" bit.
package errs

import "errors"

var (
	// ErrOutOfFrames is returned when the physical page allocator has no
	// free frames left.
	ErrOutOfFrames = errors.New("vm: out of physical frames")

	// ErrRegionExhausted is returned when a bump-allocated translation
	// table region has no space left for another table.
	ErrRegionExhausted = errors.New("vm: translation table region exhausted")

	// ErrMapExhausted is returned when a virtual memory map has no room
	// left for another entry.
	ErrMapExhausted = errors.New("vm: map exhausted")

	// ErrAlreadyInitialized is returned when the translation table region
	// is created a second time, and by the stack allocator and the task,
	// thread and processor constructors when they are called before their
	// package's Init has run.
	ErrAlreadyInitialized = errors.New("vm: already initialized")

	// ErrInvalidPhysBase is returned when a requested physical mapping
	// base is not below the kernel's virtual base, mirroring pmap.c's
	// phys_base > kernel_virt_base rejection.
	ErrInvalidPhysBase = errors.New("vm: physical base above kernel virtual base")

	// ErrZoneTableFull is returned when zone.Create is called after the
	// fixed-size zone table has already allocated its last slot.
	ErrZoneTableFull = errors.New("zalloc: zone table full")

	// ErrZoneExhausted is returned when a zone has no free elements left
	// and is not configured to grow.
	ErrZoneExhausted = errors.New("zalloc: zone exhausted")

	// ErrZoneElementNotFound is returned by Free when the element being
	// freed cannot be found on the zone's used list.
	ErrZoneElementNotFound = errors.New("zalloc: element not on used list")

	// ErrNotFound is returned by device-tree and topology lookups that
	// find no matching node or property.
	ErrNotFound = errors.New("not found")

	// ErrMalformed is returned when a device tree blob fails header or
	// structural validation.
	ErrMalformed = errors.New("devicetree: malformed blob")

	// ErrBootArgsVersion is returned when the boot_args record presented
	// by the bootloader does not match the version this kernel expects.
	ErrBootArgsVersion = errors.New("boot: unsupported boot_args version")

	// ErrCPUTableFull is returned when cpu.Register has no free slot left
	// in the bounded CPU data array.
	ErrCPUTableFull = errors.New("cpu: cpu data table full")

	// ErrTaskTableFull is returned when the task zone cannot satisfy a
	// new task allocation.
	ErrTaskTableFull = errors.New("task: task allocation failed")

	// ErrThreadActive is returned when destroying a thread that is
	// currently the active thread on some processor.
	ErrThreadActive = errors.New("thread: cannot destroy active thread")

	// ErrThreadNotFirst is returned when destroying the very first thread
	// created (thread_id 0, the kernel thread), which is never removed.
	ErrThreadNotFirst = errors.New("thread: first thread must be the kernel thread")

	// ErrInvalidIntID is returned when an interrupt ID outside the
	// SGI/PPI range is presented to an operation that only configures
	// that range (gic_irq_register's SPI/extended-range rejection).
	ErrInvalidIntID = errors.New("gic: interrupt id not configurable")
)
