package sched

import (
	"github.com/monix-go/monix/kern/defaults"
	"github.com/monix-go/monix/kern/task"
	"github.com/monix-go/monix/kern/trace"
)

// SaveContext and LoadContext are the architecture's context-switch
// primitives (thread_save_context/thread_load_context): copying the
// callee-saved register block between a Thread and the live CPU state.
// kern/sched only decides WHICH thread runs next; arch/arm64 is the only
// package that knows how to actually move registers, so these are wired up
// the same way kern/panic.Halt is.
var (
	SaveContext func(th *task.Thread, frame *ExceptionFrame)
	LoadContext func(th *task.Thread)

	DisableIRQ func()
	EnableIRQ  func()
)

// Init does nothing yet; kept as the package's entry point because
// sched_init is one in the original and callers expect to find it here.
func Init() {}

// selectThread returns the thread after active in the global thread list,
// wrapping around, whatever its state (__select_thread); Schedule skips
// the ones that are not runnable. With a single
// run queue and no priorities this is a flat round robin over every
// thread the kernel has ever created.
func selectThread(active *task.Thread) *task.Thread {
	all := task.Threads()
	if len(all) == 0 {
		return nil
	}

	idx := -1
	for i, t := range all {
		if t == active {
			idx = i
			break
		}
	}
	if idx == -1 {
		return all[0]
	}

	return all[(idx+1)%len(all)]
}

// Schedule is called from the timer interrupt handler to pick the next
// thread to run and switch to it (__schedule). frame is the exception
// frame the timer interrupt was taken with; it becomes the outgoing
// thread's saved context.
func Schedule(frame *ExceptionFrame) {
	if DisableIRQ != nil {
		DisableIRQ()
	}

	cpu := task.CurrentCPU()
	if cpu == nil || cpu.ActiveThread == nil {
		return
	}

	active := cpu.ActiveThread

	next := selectThread(active)
	for next != nil && next.State != task.ThreadRunnable {
		if defaults.SchedDebugMessages {
			name := "<unnamed>"
			if next.Task != nil {
				name = next.Task.Name
			}
			trace.Debug("failed to select an active thread: %s.%d: %d\n", name, next.ThreadID, next.State)
		}
		next = selectThread(next)
		if next == active {
			// every thread is blocked; nothing to do.
			return
		}
	}
	if next == nil {
		return
	}

	if defaults.SchedDebugMessages {
		name := "<unnamed>"
		if next.Task != nil {
			name = next.Task.Name
		}
		trace.Debug("switching to thread: %s.%d\n", name, next.ThreadID)
	}

	if SaveContext != nil {
		SaveContext(active, frame)
	}
	if LoadContext != nil {
		LoadContext(next)
	}
}

// Tail runs on the way back from a context switch: it records thread as
// the CPU's active thread and stack, then unmasks interrupts (sched_tail).
func Tail(thread *task.Thread) {
	cpuNum := 0
	if cpu := task.CurrentCPU(); cpu != nil {
		cpuNum = cpu.Number
	}

	_ = task.SetActiveThread(cpuNum, thread)
	_ = task.SetActiveStack(cpuNum, thread.StackBase)

	if EnableIRQ != nil {
		EnableIRQ()
	}
}
