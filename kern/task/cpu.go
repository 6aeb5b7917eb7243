package task

import (
	"fmt"

	"github.com/monix-go/monix/kern/defaults"
	"github.com/monix-go/monix/kern/errs"
)

// CPUFlag is a bitmask of per-CPU state flags (CPU_FLAG_*).
type CPUFlag uint32

const CPUFlagThreadingEnabled CPUFlag = 1 << 0

// CPUData is the architecture-agnostic half of a CPU descriptor
// (cpu_data_t / cpu_t). arch/arm64.CPU embeds this and adds the generic
// timer's tick-to-nanosecond multiplier and system-time offset; neither type
// carries a reset vector or exception/interrupt stack addresses.
type CPUData struct {
	Number int
	Type   int
	Flags  CPUFlag

	Processor *Processor

	ActiveThread *Thread
	ActiveStack  uint64

	TPIDREL0 uint64
}

var (
	cpuTable      [defaults.CPUNumberMax]CPUData
	bootCPU       CPUData
	getCurrentCPU func() *CPUData
)

// SetCurrentCPUGetter installs the architecture's mechanism for
// identifying "the CPU executing this code" (machine_get_cpu_num, reading
// MPIDR_EL1). kern/task has no architecture access of its own.
func SetCurrentCPUGetter(fn func() *CPUData) {
	getCurrentCPU = fn
}

// Register records cpu within the bounded CPU data table at cpu.Number
// (cpu_register).
func Register(cpu *CPUData) error {
	if cpu.Number < 0 || cpu.Number >= defaults.CPUNumberMax {
		return fmt.Errorf("%w: cpu number %d", errs.ErrCPUTableFull, cpu.Number)
	}
	cpuTable[cpu.Number] = *cpu
	return nil
}

// SetBootCPU records cpu as the boot CPU (cpu_set_boot_cpu).
func SetBootCPU(cpu *CPUData) {
	bootCPU = *cpu
}

// Get returns the CPU data for cpuNum.
func Get(cpuNum int) *CPUData {
	return &cpuTable[cpuNum]
}

// CurrentCPU returns the CPU data for the CPU executing this code
// (cpu_get_current). Returns nil if the architecture hasn't installed a
// getter yet (e.g. during the very earliest boot steps, or in tests).
func CurrentCPU() *CPUData {
	if getCurrentCPU == nil {
		return nil
	}
	return getCurrentCPU()
}

// CurrentTask returns the task owning the currently active thread on the
// current CPU, or nil before threading is enabled.
func CurrentTask() *Task {
	cpu := CurrentCPU()
	if cpu == nil || cpu.ActiveThread == nil {
		return nil
	}
	return cpu.ActiveThread.Task
}

// SetActiveThread assigns t as cpuNum's active thread (cpu_set_active_thread).
func SetActiveThread(cpuNum int, t *Thread) error {
	if cpuNum < 0 || cpuNum >= defaults.CPUNumberMax {
		return errs.ErrCPUTableFull
	}
	cpuTable[cpuNum].ActiveThread = t
	return nil
}

// SetActiveStack records the base address of cpuNum's active thread's
// stack (cpu_set_active_stack).
func SetActiveStack(cpuNum int, stack uint64) error {
	if cpuNum < 0 || cpuNum >= defaults.CPUNumberMax {
		return errs.ErrCPUTableFull
	}
	cpuTable[cpuNum].ActiveStack = stack
	return nil
}

// SetProcessor assigns p as cpuNum's processor (cpu_set_processor).
func SetProcessor(cpuNum int, p *Processor) error {
	if cpuNum < 0 || cpuNum >= defaults.CPUNumberMax {
		return errs.ErrCPUTableFull
	}
	cpuTable[cpuNum].Processor = p
	return nil
}
