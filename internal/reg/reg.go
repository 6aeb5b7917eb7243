// Package reg provides primitives for retrieving and modifying memory-mapped
// hardware registers.
//
// Adapted from github.com/usbarmory/tamago internal/reg (reg32.go/reg64.go),
// generalized from 32-bit to 64-bit register addresses: this kernel runs
// with the MMU enabled from its first instruction and every peripheral is
// addressed through the upper-half kernel window, never through a flat
// 32-bit physical alias.
package reg

import (
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"
)

// Get reads a 32-bit register field at addr, shifted by pos and masked by
// mask.
func Get(addr uint64, pos int, mask int) uint32 {
	r := (*uint32)(unsafe.Pointer(uintptr(addr)))
	v := atomic.LoadUint32(r)

	return uint32((int(v) >> pos) & mask)
}

// Set sets a single bit at pos in the 32-bit register at addr.
func Set(addr uint64, pos int) {
	r := (*uint32)(unsafe.Pointer(uintptr(addr)))

	v := atomic.LoadUint32(r)
	v |= 1 << pos

	atomic.StoreUint32(r, v)
}

// SetTo sets or clears a single bit at pos in the 32-bit register at addr
// depending on val.
func SetTo(addr uint64, pos int, val bool) {
	if val {
		Set(addr, pos)
	} else {
		Clear(addr, pos)
	}
}

// Clear clears a single bit at pos in the 32-bit register at addr.
func Clear(addr uint64, pos int) {
	r := (*uint32)(unsafe.Pointer(uintptr(addr)))

	v := atomic.LoadUint32(r)
	v &^= 1 << pos

	atomic.StoreUint32(r, v)
}

// SetN sets a multi-bit field at pos, masked by mask, to val.
func SetN(addr uint64, pos int, mask int, val uint32) {
	r := (*uint32)(unsafe.Pointer(uintptr(addr)))

	v := atomic.LoadUint32(r)
	v = (v &^ (uint32(mask) << pos)) | (val << pos)

	atomic.StoreUint32(r, v)
}

// ClearN clears a multi-bit field at pos, masked by mask.
func ClearN(addr uint64, pos int, mask int) {
	r := (*uint32)(unsafe.Pointer(uintptr(addr)))

	v := atomic.LoadUint32(r)
	v &^= uint32(mask) << pos

	atomic.StoreUint32(r, v)
}

// Read reads the full 32-bit register at addr.
func Read(addr uint64) uint32 {
	r := (*uint32)(unsafe.Pointer(uintptr(addr)))
	return atomic.LoadUint32(r)
}

// Write writes val to the 32-bit register at addr.
func Write(addr uint64, val uint32) {
	r := (*uint32)(unsafe.Pointer(uintptr(addr)))
	atomic.StoreUint32(r, val)
}

// Or ORs val into the 32-bit register at addr.
func Or(addr uint64, val uint32) {
	r := (*uint32)(unsafe.Pointer(uintptr(addr)))

	v := atomic.LoadUint32(r)
	v |= val

	atomic.StoreUint32(r, v)
}

// Read64 reads a full 64-bit register/translation-table entry at addr.
func Read64(addr uint64) uint64 {
	r := (*uint64)(unsafe.Pointer(uintptr(addr)))
	return atomic.LoadUint64(r)
}

// Write64 writes val to the 64-bit register/translation-table entry at addr.
func Write64(addr uint64, val uint64) {
	r := (*uint64)(unsafe.Pointer(uintptr(addr)))
	atomic.StoreUint64(r, val)
}

// Wait spins until a specific register field matches val. Must not be used
// before the scheduler is running, Gosched is a cooperative yield only.
func Wait(addr uint64, pos int, mask int, val uint32) {
	for Get(addr, pos, mask) != val {
		runtime.Gosched()
	}
}

// WaitFor spins, until timeout expires, for a specific register field to
// match val. Returns false on timeout.
func WaitFor(timeout time.Duration, addr uint64, pos int, mask int, val uint32) bool {
	start := time.Now()

	for Get(addr, pos, mask) != val {
		runtime.Gosched()

		if time.Since(start) >= timeout {
			return false
		}
	}

	return true
}
