// Package task is the kernel's process/thread model: the bounded CPU
// descriptor table, the processor abstraction, tasks, and threads.
//
// Grounded on _examples/original_source/kern/cpu.{c,h}, processor.{c,h},
// task.{c,h} and thread.{c,h}.
package task

// Context is the callee-saved register block the scheduler swaps on a
// context switch (arm64_cpu_context_t in arch.h): x19-x28, fp, lr, sp.
// Only the registers a function call must preserve across a call are
// saved here — everything else lives on the stack or is caller-saved,
// exactly as the original comments explain.
//
// This is the first field of Thread; see the offset assertion in
// thread.go. The assembly context-switch primitives in arch/arm64 index
// into a Thread through this fixed layout, so field order must not change
// without updating them.
type Context struct {
	X19, X20, X21, X22, X23, X24, X25, X26, X27, X28 uint64
	FP, LR, SP                                       uint64
}
