// Package gic is a GICv3 interrupt controller driver: distributor and
// redistributor bring-up, per-interrupt enable/disable/priority
// configuration, interrupt acknowledge/EOI, and SGI send for waking a
// sibling core.
//
// The register map (GICD_CTLR/TYPER/IGROUPR/ISENABLER/ICENABLER/ICPENDR/
// IROUTER, GICR_WAKER/IGROUPR at the SGI_BASE redistributor frame offset)
// and bring-up sequence (wake the redistributor, disable and clear every
// line, switch on the system register CPU interface, unmask all
// priorities, enable Group routing) are ported from
// _examples/usbarmory-tamago/arm64/gic/gic.go.
//
// Per-interrupt configuration (gic_irq_register's priority write plus
// Group1/non-secure classification, gic_irq_enable/_disable,
// gic_send_sgi's ICC_SGI1R_EL1 affinity encoding) is grounded on
// _examples/original_source/drivers/irq/irq-gicv3.c, which this kernel
// follows in targeting Non-secure Group 1 (icc_igrpen1_el1, GICD_CTLR's
// ENABLE_G1NS bit) rather than tamago's Group 0 — the two drivers agree on
// everything except which interrupt group the CPU interface unmasks.
package gic

import (
	"time"

	"github.com/monix-go/monix/arch/arm64"
	"github.com/monix-go/monix/internal/reg"
	"github.com/monix-go/monix/kern/errs"
)

// Distributor register map (GICD_*), offsets from Dist.
const (
	gicdCTLR      uint64 = 0x0000
	gicdTYPER     uint64 = 0x0004
	gicdIGROUPR   uint64 = 0x0080
	gicdISENABLER uint64 = 0x0100
	gicdICENABLER uint64 = 0x0180
	gicdICPENDR   uint64 = 0x0280
	gicdIROUTER   uint64 = 0x6100
)

// GICD_CTLR bits.
const (
	ctlrEnableG1NS = 1
	ctlrARENS      = 4
	ctlrARES       = 5
)

const typerITLinesMask = 0x1f

// Redistributor register map (GICR_*), offsets from Redist.
const (
	rdBase  uint64 = 0x00000
	sgiBase uint64 = 0x10000

	gicrWAKER   = rdBase + 0x0014
	gicrIGROUPR = sgiBase + 0x0080

	gicrISENABLER0 = sgiBase + 0x0100
	gicrICENABLER0 = sgiBase + 0x0180
	gicrIPRIORITYR = sgiBase + 0x0400
)

const (
	wakerProcessorSleep = 1
	wakerChildrenAsleep = 2
)

// Interrupt ID ranges (ARM IHI 0069G).
const (
	FirstSGI = 0
	FirstPPI = 16
	FirstSPI = 32
	FirstSIN = 1020
)

// GIC is one GICv3 instance: a distributor and this core's redistributor
// frame.
type GIC struct {
	Dist   uint64
	Redist uint64

	affinity uint64
}

// defined in gic.s
func writeICCSREEL1(val uint64)
func readICCSREEL1() uint64
func writeICCPMREL1(val uint64)
func writeICCIGRPEN1EL1(val uint64)
func readICCIGRPEN1EL1() uint64
func readICCIAR1() uint64
func writeICCEOIR1(val uint64)
func writeICCSGI1REL1(val uint64)
func readMPIDREL1() uint64

// Init brings up the distributor, this core's redistributor, and the CPU
// interface (gic_dist_init/gic_redist_init/gic_cpuif_init folded into one
// call, since this kernel only ever initialises the boot CPU's GIC view).
func (g *GIC) Init() {
	if g.Dist == 0 || g.Redist == 0 {
		panic("gic: invalid GIC instance")
	}

	reg.Clear(g.Dist+gicdCTLR, ctlrEnableG1NS)

	itLines := reg.Get(g.Dist+gicdTYPER, 0, typerITLinesMask) + 1
	for n := uint64(0); n < uint64(itLines); n++ {
		reg.Write(g.Dist+gicdICENABLER+4*n, 0xffffffff)
		reg.Write(g.Dist+gicdICPENDR+4*n, 0xffffffff)
	}

	reg.Clear(g.Redist+gicrWAKER, wakerProcessorSleep)
	if !reg.WaitFor(1*time.Second, g.Redist+gicrWAKER, wakerChildrenAsleep, 1, 0) {
		panic("gic: redistributor did not wake")
	}

	writeICCSREEL1(readICCSREEL1() | 0x3) // SRE + DIB/DFB enable bits
	writeICCPMREL1(0xff)
	writeICCIGRPEN1EL1(readICCIGRPEN1EL1() | 0x1)

	reg.Set(g.Dist+gicdCTLR, ctlrEnableG1NS)
	reg.Set(g.Dist+gicdCTLR, ctlrARENS)
	reg.Set(g.Dist+gicdCTLR, ctlrARES)

	g.affinity = readMPIDREL1() &^ (0xff << 24) | ((readMPIDREL1() >> 32 & 0xff) << 24)
}

// Register configures intid's priority and Group 1 classification and
// enables it (gic_irq_register). Only SGI/PPI (intid < 32) is supported,
// matching the original: SPI configuration is refused the same way
// gic_irq_register refuses intid >= 1020.
func (g *GIC) Register(intid uint32, priority uint8) error {
	if intid >= FirstSPI {
		return errs.ErrInvalidIntID
	}

	n := uint64(intid / 32)
	i := int(intid % 32)

	reg.SetN(g.Redist+gicrIPRIORITYR+uint64(intid&^3), int(intid%4)*8, 0xff, uint32(priority))

	reg.Set(g.Redist+gicrIGROUPR+4*n, i)      // Group 1
	reg.Clear(g.Redist+sgiBase+0x0d00+4*n, i) // igrpmodr: non-secure Group 1 (not Group 1S)

	g.Enable(intid)

	return nil
}

// Enable unmasks intid at the redistributor (gic_irq_enable).
func (g *GIC) Enable(intid uint32) {
	reg.Set(g.Redist+gicrISENABLER0+4*uint64(intid/32), int(intid%32))
}

// Disable masks intid at the redistributor (gic_irq_disable).
func (g *GIC) Disable(intid uint32) {
	// ICENABLER is write-1-to-clear: a read-modify-write would mask every
	// line that reads back as enabled, not just intid.
	reg.Write(g.Redist+gicrICENABLER0+4*uint64(intid/32), 1<<(intid%32))
}

// Wire installs g's Acknowledge/EndOfInterrupt as arch/arm64's IRQ dispatch
// hooks (machine_init_interrupts' responsibility of pointing the handler at
// a concrete GIC instance), so exception.go's handleIRQ/handleFIQ can reach
// this GIC without arch/arm64 importing this package.
func (g *GIC) Wire() {
	arm64.SetGICHooks(g.Acknowledge, g.EndOfInterrupt)
}

// Acknowledge reads and returns the highest priority pending Group 1
// interrupt's ID (icc_iar1_el1).
func (g *GIC) Acknowledge() uint32 {
	return uint32(readICCIAR1() & 0xffffff)
}

// EndOfInterrupt signals completion of intid's handling (icc_eoir1_el1).
func (g *GIC) EndOfInterrupt(intid uint32) {
	writeICCEOIR1(uint64(intid))
}

// SendSGI raises intid as a Software Generated Interrupt targeting
// target, an Aff0 core id within this core's own Aff1/Aff2/Aff3 cluster
// (gic_send_sgi, CREATE_SGIR_VALUE). Grounded on
// _examples/original_source/drivers/irq/irq-gicv3.c: this kernel has no
// SMP, so SendSGI exists for completeness and test coverage rather than
// any caller outside them.
func (g *GIC) SendSGI(intid uint32, target uint8) {
	mpidr := readMPIDREL1()

	aff1 := (mpidr >> 8) & 0xff
	aff2 := (mpidr >> 16) & 0xff
	aff3 := (mpidr >> 32) & 0xff

	val := aff3<<48 | aff2<<32 | uint64(intid)<<24 | aff1<<16 | uint64(1)<<(target%16)

	writeICCSGI1REL1(val)
}
