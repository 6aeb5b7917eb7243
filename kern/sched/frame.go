// Package sched is the kernel's round-robin scheduler: the exception
// frame layout exceptions are delivered in, and the thread-selection and
// context-switch logic __schedule/sched_tail drive from the timer
// interrupt.
//
// Grounded on _examples/original_source/kern/sched.{c,h} and the frame
// layout in arch/arch.h.
package sched

// ExceptionFrame is the saved register state at an exception boundary
// (arm64_exception_frame_t): x0-x28, fp, lr, sp, plus the three fault
// registers read out of the System register file by the vector stub
// before kern/sched ever sees it.
type ExceptionFrame struct {
	Regs [29]uint64 // x0-x28

	FP uint64
	LR uint64
	SP uint64

	FAR uint64
	ESR uint64
	ELR uint64
}
