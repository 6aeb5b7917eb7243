package arm64

import (
	"github.com/monix-go/monix/kern/vm"
)

// defined in arm64.s
func writeTTBR0(addr uint64)
func writeTCR(val uint64)
func writeMAIR(val uint64)
func readSCTLR() uint64
func writeSCTLR(val uint64)

// MAIR_EL1 attribute indices, matching TTEPageTemplate/TTEBlockTemplate's
// lower attribute-index bits in kern/vm/tte.go.
const (
	mairNormalIdx = 0
	mairDeviceIdx = 1

	mairNormalAttr = 0xff // Normal, Inner/Outer Write-Back, Read/Write-Allocate
	mairDeviceAttr = 0x00 // Device-nGnRnE
	mairValue      = mairDeviceAttr<<(8*mairDeviceIdx) | mairNormalAttr<<(8*mairNormalIdx)
)

// TCR_EL1 fields for a 39-bit (512GB) VA space, 4KB granule, identical T0SZ
// for TTBR0 and TTBR1 (proc_reg.h's TCR_* bit layout).
const (
	tcrT0SZ   = 64 - 39
	tcrT1SZ   = (64 - 39) << 16
	tcrTG0_4K = 0 << 14
	tcrTG1_4K = 2 << 30
	tcrIPS40  = 2 << 32 // 40-bit physical address range
	tcrValue  = tcrT0SZ | tcrT1SZ | tcrTG0_4K | tcrTG1_4K | tcrIPS40
)

const (
	sctlrMEnable = 1 << 0
	sctlrCEnable = 1 << 2
	sctlrIEnable = 1 << 12
)

// InitMMU programs MAIR_EL1/TCR_EL1/TTBR0_EL1 from pmap's root table and
// enables the MMU (arm_vm_init's tail end in kernel_init, after
// vm_configure has built the kernel pmap). Caches were already enabled by
// CPU.Init; this only flips SCTLR_EL1.M.
func (cpu *CPU) InitMMU(pmap *vm.Pmap) {
	writeMAIR(mairValue)
	writeTCR(tcrValue)
	writeTTBR0(pmap.TTEP)

	dsbSY()
	isb()
	flushTLB()
	dsbSY()
	isb()

	writeSCTLR(readSCTLR() | sctlrMEnable | sctlrCEnable | sctlrIEnable)
	isb()
}
