// Package timer drives the ARMv8-A Generic Timer: the EL1 physical timer
// counting at CNTFRQ_EL0, delivering its expiry through PPI 30 (the same
// line QEMU's virt machine wires the non-secure EL1 physical timer to).
//
// Grounded on _examples/usbarmory-tamago/arm64/timer.go (CNTCR/CNTFID0
// system-counter bring-up, TimerMultiplier/TimerOffset nanosecond
// conversion, SetAlarm's CNTP_TVAL_EL0 absolute-to-relative arithmetic) and
// _examples/original_source/kern/machine/machine_timer.{c,h}
// (MACHINE_TIMER_EL1PHYS_IRQ_ID, MACHINE_TIMER_RESET_VALUE, the
// machine_init_timers/machine_timer_reset split this package's Init/Reset
// mirror).
package timer

import (
	"math"

	"github.com/monix-go/monix/arch/arm64"
	"github.com/monix-go/monix/internal/reg"
)

// ARM Generic Timer system counter frame registers (ARMv8-A ARM, CNTBaseN).
const (
	cntCR      = 0
	cntFID0    = 0x20
	cntCRFCREQ = 8
	cntCRHDBG  = 1
	cntCREN    = 0
)

// IRQID is the PPI this kernel's EL1 physical timer is wired to
// (machine_timer.h's MACHINE_TIMER_EL1PHYS_IRQ_ID).
const IRQID = 30

// ResetValue is the default down-counter reload used by Reset
// (machine_timer.h's MACHINE_TIMER_RESET_VALUE), a tick count at the
// timer's native CNTFRQ_EL0 frequency, not nanoseconds.
const ResetValue = 0x5000000

const refFreqNS int64 = 1e9

// defined in timer.s
func readCNTFRQ() uint32
func writeCNTFRQ(freq uint32)
func writeCNTKCTL(val uint32)
func readCNTPCT() uint64
func writeCNTPTVAL(val uint32, enable bool)

// Init brings up the generic timer for cpu (machine_init_timers): when freq
// is non-zero it is written to CNTFRQ_EL0, a supplied system counter frame
// base is primed to freq and started, and PL0 counter access is granted;
// with freq zero none of that happens. cpu's TimerMultiplier is then derived
// from the running CNTFRQ_EL0, converting counter ticks to nanoseconds for
// every call below. It also installs Reset as arch/arm64's timer-reset
// hook, the same wiring role GIC.Wire plays for interrupt acknowledge.
func Init(cpu *arm64.CPU, base uint32, freq uint32) {
	if freq != 0 {
		writeCNTFRQ(freq)

		if base != 0 {
			reg.Write(uint64(base+cntFID0), freq)

			reg.Set(uint64(base+cntCR), cntCRFCREQ)
			reg.Set(uint64(base+cntCR), cntCRHDBG)
			reg.Set(uint64(base+cntCR), cntCREN)
		}

		writeCNTKCTL(1) // CNTKCTL_EL1.EL0PCTEN
	}

	cpu.TimerMultiplier = float64(refFreqNS) / float64(readCNTFRQ())

	arm64.SetTimerResetHook(func() { Reset(ResetValue) })
}

// Counter returns the raw CNTPCT_EL0 tick count.
func Counter() uint64 {
	return readCNTPCT()
}

// GetTime returns cpu's current system time in nanoseconds.
func GetTime(cpu *arm64.CPU) int64 {
	return int64(float64(Counter())*cpu.TimerMultiplier) + cpu.TimerOffset
}

// SetTime adjusts cpu's system time so that GetTime would return ns if
// called now.
func SetTime(cpu *arm64.CPU, ns int64) {
	if cpu.TimerMultiplier == 0 {
		return
	}

	cpu.TimerOffset = ns - int64(float64(Counter())*cpu.TimerMultiplier)
}

// SetAlarm arms the EL1 physical timer to fire at the absolute system time
// ns, or disarms it if ns is zero (arm64_timer_reset's enable/disable
// split, generalized to an absolute deadline the way SetAlarm takes one).
func SetAlarm(cpu *arm64.CPU, ns int64) {
	if ns == 0 {
		writeCNTPTVAL(0, false)
		return
	}

	if cpu.TimerMultiplier == 0 {
		return
	}

	set := uint64(ns-cpu.TimerOffset) / uint64(cpu.TimerMultiplier)
	now := Counter()

	var cnt uint64
	switch {
	case set <= now:
		cnt = 1
	case set-now > math.MaxInt32:
		cnt = math.MaxInt32
	default:
		cnt = set - now
	}

	writeCNTPTVAL(uint32(cnt), true)
}

// Reset reloads the EL1 physical timer's down-counter to reset ticks and
// re-arms it (arm64_timer_reset), the relative-reload counterpart to
// SetAlarm's absolute-deadline form: machine_timer_reset always passes
// ResetValue, rearming the next tick from "now" rather than a wall-clock
// time.
func Reset(reset uint32) {
	writeCNTPTVAL(reset, true)
}
