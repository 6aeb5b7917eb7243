package vm

// TTE is a single 64-bit translation table entry, following the 4KB
// granule AArch64 long-descriptor format used throughout
// _examples/original_source/arch/proc_reg.h.
type TTE uint64

// Entry type encoding (bits [1:0]).
const (
	tteTypeMask  TTE = 0x3
	TTETypeTable TTE = 0x3
	TTETypeBlock TTE = 0x1
)

// Access permission templates, carried verbatim from proc_reg.h.
const (
	TTEPageTemplate  TTE = 0x0000000000000403
	TTEBlockTemplate TTE = 0x0000000000000401
)

// Table index geometry for the 2-level walk (L1 table -> L2 block, this
// kernel's DEFAULTS_KERNEL_VM_USE_L3_TABLE=0 configuration) plus the L3
// level a 3-level walk would add, covering a 39-bit (512GB) address space.
const (
	l1IndexMask uint64 = 0x0000007fc0000000
	l1Size      uint64 = 0x0000000040000000
	l1Shift     uint   = 30

	l2IndexMask uint64 = 0x000000003fe00000
	l2Size      uint64 = 0x0000000000200000
	l2Shift     uint   = 21

	l3IndexMask uint64 = 0x00000000001ff000
	l3Size      uint64 = 0x0000000000001000
	l3Shift     uint   = 12

	ttTableMask uint64 = 0x0000fffffffff000
)

// AccessFlags selects the protection attributes applied when creating a
// translation table entry. Only the flags pmap_tt_create_tte's callers
// actually use are modelled; attribute bits are not yet folded into the
// written entry (matching the TODO in pmap.c).
type AccessFlags int

const (
	AccessNoAccess AccessFlags = iota
	AccessReadOnly
	AccessReadWrite
)
