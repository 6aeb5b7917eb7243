// Package arm64 is the architecture layer: the one package allowed to know
// how ARMv8-A registers, exception levels and context-switch assembly
// actually work, wired into kern/panic and kern/sched as function variables
// so those packages stay architecture-blind.
//
// Grounded on _examples/usbarmory-tamago/arm64 (package layout: a CPU type
// carrying per-core state, small .go files fronting .s-defined register
// primitives) and _examples/original_source/arch/arch.h +
// arch/proc_reg.h (DAIF/SCTLR_EL1 bit layout, barrier/system-op macros, the
// exception class and fault status enums reproduced below as typed Go
// constants instead of C #defines).
package arm64

import (
	"github.com/monix-go/monix/kern/task"
)

// CPU is one ARMv8-A core's architecture-specific state (arm64_cpu_t in the
// original's machine layer, folded together with tamago's per-core CPU
// type). It embeds task.CPUData, the architecture-agnostic half that
// kern/task itself reads and mutates; TimerMultiplier/TimerOffset mirror
// tamago's arm64.CPU so arch/arm64/timer can convert counter ticks to
// nanoseconds the same way.
type CPU struct {
	task.CPUData

	TimerMultiplier float64
	TimerOffset     int64
}

// defined in arm64.s
func readMPIDR() uint64
func readCurrentEL() uint64
func wfi()
func dsbSY()
func isb()

// bootCPUInstance backs CurrentCPU's getter. This kernel never brings up a
// second core (no SMP, per the original's single-boot-CPU path through
// kernel_init), so one package-level pointer is all task.SetCurrentCPUGetter
// ever needs to close over.
var bootCPUInstance *CPU

// Init brings up this core's architecture state: registers it with
// kern/task, wires the panic/sched seams on the boot CPU, and enables the
// instruction/data caches. Grounded on cpu_init's responsibilities in
// _examples/original_source/kern/main.c's kernel_init (cache/MMU/exception
// bring-up happens before cpu_init returns control to kernel_init).
func (cpu *CPU) Init(number int, boot bool) error {
	cpu.CPUData.Number = number

	if err := task.Register(&cpu.CPUData); err != nil {
		return err
	}

	if boot {
		task.SetBootCPU(&cpu.CPUData)
		bootCPUInstance = cpu
		task.SetCurrentCPUGetter(func() *task.CPUData {
			if bootCPUInstance == nil {
				return nil
			}
			return task.Get(bootCPUInstance.CPUData.Number)
		})
		wireSeams()
	}

	cpu.initVectorTable()
	enableCache()

	return nil
}

// BootCPU returns the boot CPU's architecture state, or nil before Init has
// run with boot==true. Used by packages (e.g. cmd/monix's kernel thread)
// that need the same *CPU the scheduler already tracks rather than a fresh
// zero-valued one, since TimerMultiplier/TimerOffset live on it.
func BootCPU() *CPU {
	return bootCPUInstance
}

// AffinityID returns the core's MPIDR-derived affinity value, used to match
// a device tree cpu node's "reg" property (platform/topology). The GIC driver
// reads MPIDR_EL1 itself when building ICC_SGI1R_EL1 values.
func (cpu *CPU) AffinityID() uint64 {
	return readMPIDR() & 0x00ffffff00ffffff
}

// CurrentEL returns the processor's current exception level (bits [3:2] of
// CurrentEL). kern/panic's frame dump does not call it.
func CurrentEL() int {
	return int(readCurrentEL()&0b1100) >> 2
}

// WaitForInterrupt suspends execution until an interrupt is pending
// (ESR_EC_WFI_WFE's non-trapped case; cpu_idle in the original spins here
// between schedule quanta).
func WaitForInterrupt() {
	wfi()
}
