// Package panic is the kernel's fatal-error path: the unrecoverable-fault
// handler, CPU state dump and backtrace walker.
//
// Grounded on _examples/original_source/kern/panic.c. The two entry points
// there, panic() and panic_with_thread_state(), are Panic and PanicWithFrame
// here; __panic's double-panic guard, interrupt-disable, and banner
// sequence are preserved line for line.
package panic

import (
	"sync/atomic"

	"github.com/monix-go/monix/kern/sched"
	"github.com/monix-go/monix/kern/task"
	"github.com/monix-go/monix/kern/trace"
)

// active is set the first time __panic runs; a panic reentered from within
// the panic handler itself skips straight to Halt instead of recursing.
var active atomic.Bool

// Halt is the architecture's "disable interrupts and spin forever"
// primitive (cpu_halt in the original); wired up by arch/arm64 during
// init, since kern/panic must not import the architecture package.
var Halt func()

// DisableIRQ is the architecture's global interrupt mask, wired up the
// same way as Halt.
var DisableIRQ func()

const backtraceDepth = 20

// Panic reports a fatal condition with no captured CPU state.
func Panic(format string, args ...any) {
	panic_(false, nil, format, args...)
}

// PanicWithFrame reports a fatal condition captured at an exception
// boundary, including a dump of the frame's general registers and fault
// registers.
func PanicWithFrame(frame *sched.ExceptionFrame, format string, args ...any) {
	panic_(true, frame, format, args...)
}

func panic_(hasFrame bool, frame *sched.ExceptionFrame, format string, args ...any) {
	if active.Swap(true) {
		halt()
	}

	if DisableIRQ != nil {
		DisableIRQ()
	}

	cpu := task.CurrentCPU()
	pid := -1
	if t := task.CurrentTask(); t != nil {
		pid = t.PID
	}

	trace.Printk("\n")
	trace.Printk("--- Kernel Panic - ")
	trace.Cont(format+"\n", args...)

	cpuNum := -1
	if cpu != nil {
		cpuNum = cpu.Number
	}
	trace.Printk("CPU: %d  PID: %d  monix-go\n", cpuNum, pid)
	trace.Printk("Machine: tiny-ex1\n")

	printBacktrace(cpu)

	if hasFrame && frame != nil {
		dumpFrame(frame)
	}

	trace.Printk("\n")
	trace.Printk("---[end Kernel Panic - ")
	trace.Cont(format+" ]\n", args...)

	halt()
}

func dumpFrame(f *sched.ExceptionFrame) {
	trace.Printk("CPU State:\n")
	for i := 0; i < 28; i += 4 {
		trace.Printk(" x%-2d: 0x%016x  x%-2d: 0x%016x  x%-2d: 0x%016x  x%-2d: 0x%016x\n",
			i, f.Regs[i], i+1, f.Regs[i+1], i+2, f.Regs[i+2], i+3, f.Regs[i+3])
	}
	trace.Printk(" x28: 0x%016x   fp: 0x%016x   lr: 0x%016x   sp: 0x%016x\n",
		f.Regs[28], f.FP, f.LR, f.SP)
	trace.Printk("\n")

	el := f.ELR >> 62 // placeholder until arch wires the real CurrentEL read
	trace.Printk("Exception taken near ELR 0x%016x\n", f.ELR)
	trace.Printk("  FAR: 0x%016x\n", f.FAR)
	trace.Printk("  ESR: 0x%016x\n", f.ESR)
	_ = el
	trace.Printk("\n")
}

// printBacktrace walks the frame-pointer chain rooted at the panicking
// CPU's current frame pointer, bounded to backtraceDepth entries
// (__print_backtrace's hardcoded limit of 20).
func printBacktrace(cpu *task.CPUData) {
	if cpu == nil || cpu.ActiveThread == nil {
		trace.Printk("Kernel faulted before main thread enabled\n")
		trace.Printk("\n")
		return
	}

	t := cpu.ActiveThread
	name := "<unnamed>"
	if t.Task != nil {
		name = t.Task.Name
	}
	trace.Printk("Process name: %s  Thread ID: %d\n", name, t.ThreadID)
	trace.Printk("\n")

	trace.Printk("Backtrace (CPU%d):\n", cpu.Number)

	fp := FramePointer()
	for i := 0; i < backtraceDepth; i++ {
		rec, ok := readFrameRecord(fp)
		if !ok {
			break
		}
		trace.Printk("\t%d: 0x%x\n", i, rec.ReturnAddr)
		fp = rec.Parent
	}
	trace.Printk("\n")
}

func halt() {
	if Halt != nil {
		Halt()
	}
	for {
	}
}
