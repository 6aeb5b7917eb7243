package arm64

import (
	"unsafe"

	"github.com/monix-go/monix/kern/sched"
	"github.com/monix-go/monix/kern/task"
)

// defined in arm64.s
//
// loadContextAsm restores the callee-saved registers (x19-x28, fp, lr, sp)
// from ctx and returns: for a running thread this resumes wherever it last
// called saveContext from; for a freshly created thread (whose LR was set
// by InitContext to threadTrampoline) this instead lands the CPU on its
// first instruction (thread_load_context).
func loadContextAsm(ctx *task.Context)

// funcPC extracts a plain (non-closure) Go function's entry address the
// same way tamago's arm64.vector does (arm64/exception.go): a func value
// for a function with no captured variables is just a pointer to a single
// word holding the PC, so dereferencing twice recovers it. This only holds
// because threadTrampoline captures nothing; it is not a general cure for
// Thread.Entry, which can be an arbitrary closure supplied by a caller.
func funcPC(fn func()) uint64 {
	return **(**uint64)(unsafe.Pointer(&fn))
}

// saveContext copies the outgoing thread's register state out of frame
// (the exception frame the timer interrupt was taken with) into th's saved
// Context, rather than off the live registers: at the point kern/sched
// calls this, the caller is already running on the exception stack, not
// th's own, so the values worth saving are the ones the vector stub
// captured at entry.
func saveContext(th *task.Thread, frame *sched.ExceptionFrame) {
	th.Context = task.Context{
		X19: frame.Regs[19], X20: frame.Regs[20], X21: frame.Regs[21],
		X22: frame.Regs[22], X23: frame.Regs[23], X24: frame.Regs[24],
		X25: frame.Regs[25], X26: frame.Regs[26], X27: frame.Regs[27],
		X28: frame.Regs[28],
		FP:  frame.FP, LR: frame.LR, SP: frame.SP,
	}
}

// loadContext restores th's saved Context onto the live registers and
// returns into th's own call stack (thread_load_context). Used both for
// the very first dispatch of a freshly created thread and to resume a
// thread the scheduler picked.
func loadContext(th *task.Thread) {
	loadContextAsm(&th.Context)
}

// InitContext finishes what CreateThread left undone: pointing a freshly
// created thread's saved LR at threadTrampoline, since only arch/arm64
// knows that function's address. Must be called once, right after
// CreateThread, before the thread can ever be switched to.
func InitContext(th *task.Thread) {
	th.Context.LR = funcPC(threadTrampoline)
}

// threadTrampoline is where a freshly created thread's first context load
// lands: SP is already the top of its stack (CreateThread's doing, via the
// stack allocator), so it is free to call into the real entry point. sched.Tail
// records the thread
// as active and re-enables interrupts before the entry function runs,
// matching sched_tail's placement right after thread_load_context in the
// original's fork-return path.
func threadTrampoline() {
	cpu := task.CurrentCPU()
	if cpu == nil || cpu.ActiveThread == nil {
		panic("threadTrampoline: no active thread")
	}
	th := cpu.ActiveThread
	sched.Tail(th)
	th.Entry(th.Args)
}
