package arm64

import (
	"github.com/monix-go/monix/kern/panic"
	"github.com/monix-go/monix/kern/sched"
)

// Exception class values read out of ESR_EL1[31:26] (esr_exception_class_t
// in arch/arch.h).
const (
	escUncategorized = 0x00
	escMSRTrap       = 0x18
	escIAbortEL0     = 0x20
	escIAbortEL1     = 0x21
	escPCAlign       = 0x22
	escDAbortEL0     = 0x24
	escDAbortEL1     = 0x25
	escBrkAArch64    = 0x3c
)

// Fault status codes read out of a data/instruction abort's ISS field
// (fault_status_t in arch/arch.h).
const (
	fscTranslationFaultL0 = 0x00
	fscTranslationFaultL1 = 0x05
	fscTranslationFaultL2 = 0x06
	fscTranslationFaultL3 = 0x07
	fscPermissionFaultL1  = 0x0d
	fscPermissionFaultL2  = 0x0e
	fscPermissionFaultL3  = 0x0f
	fscAlignmentFault     = 0x21
)

func esrEC(esr uint64) uint64    { return (esr >> 26) & 0x3f }
func esrISS(esr uint64) uint64   { return esr & 0x01ffffff }
func issDAFSC(iss uint64) uint64 { return iss & 0x3f }
func issIAFSC(iss uint64) uint64 { return iss & 0x3f }

func isTranslationFault(fsc uint64) bool {
	switch fsc {
	case fscTranslationFaultL0, fscTranslationFaultL1, fscTranslationFaultL2, fscTranslationFaultL3:
		return true
	}
	return false
}

func isPermissionFault(fsc uint64) bool {
	switch fsc {
	case fscPermissionFaultL1, fscPermissionFaultL2, fscPermissionFaultL3:
		return true
	}
	return false
}

func vmFaultLevel(fsc uint64) int {
	switch fsc {
	case fscTranslationFaultL0:
		return 0
	case fscTranslationFaultL1, fscPermissionFaultL1:
		return 1
	case fscTranslationFaultL2, fscPermissionFaultL2:
		return 2
	case fscTranslationFaultL3, fscPermissionFaultL3:
		return 3
	}
	return -1
}

// handleDataAbort matches handle_data_abort's fault-type-to-panic-message
// mapping.
func handleDataAbort(frame *sched.ExceptionFrame, fsc uint64) {
	switch {
	case isTranslationFault(fsc):
		panic.PanicWithFrame(frame, "Data Abort - Translation Fault Level %d", vmFaultLevel(fsc))
	case isPermissionFault(fsc):
		panic.PanicWithFrame(frame, "Data Abort - Permissions Fault, Level %d", vmFaultLevel(fsc))
	case fsc == fscAlignmentFault:
		panic.PanicWithFrame(frame, "Alignment Fault")
	default:
		panic.PanicWithFrame(frame, "Data Abort - Unknown (0x%x)", fsc)
	}
}

// handleInstructionAbort matches handle_instruction_abort.
func handleInstructionAbort(frame *sched.ExceptionFrame, fsc uint64) {
	if isTranslationFault(fsc) {
		panic.PanicWithFrame(frame, "Kernel Instruction Abort - Translation Fault, Level %d", vmFaultLevel(fsc))
		return
	}
	panic.PanicWithFrame(frame, "Kernel Instruction Abort - Unknown (0x%x)", fsc)
}

// handleSynchronous is the synchronous exception first-stage handler
// (arm64_handler_synchronous), dispatching on ESR's exception class.
func handleSynchronous(frame *sched.ExceptionFrame) {
	class := esrEC(frame.ESR)

	switch class {
	case escPCAlign:
		panic.PanicWithFrame(frame, "PC Alignment Fault")

	case escDAbortEL0, escDAbortEL1:
		handleDataAbort(frame, issDAFSC(esrISS(frame.ESR)))

	case escBrkAArch64:
		panic.PanicWithFrame(frame, "Breakpoint 64")

	case 0x15: // ESR_EC_SVC_64
		panic.PanicWithFrame(frame, "Supervisor Call (64)")

	case escMSRTrap:
		panic.PanicWithFrame(frame, "Trapped MSR, MRS, or System instruction")

	case escIAbortEL0, escIAbortEL1:
		handleInstructionAbort(frame, issIAFSC(esrISS(frame.ESR)))

	case escUncategorized:
		panic.PanicWithFrame(frame, "Undefined Instruction")

	default:
		panic.PanicWithFrame(frame, "Unknown Exception (class 0x%x)", class)
	}
}

// handleSError is the SError first-stage handler (arm64_handler_serror).
func handleSError(frame *sched.ExceptionFrame) {
	panic.PanicWithFrame(frame, "SError")
}

// handleFIQ is the FIQ first-stage handler (arm64_handler_fiq). This
// kernel routes its single timer source through IRQ, not FIQ, so this just
// acknowledges and ends anything that does arrive on it.
func handleFIQ(frame *sched.ExceptionFrame) {
	intid := gicAckIRQ()
	gicEndOfInterrupt(intid)
}

// handleIRQ is the IRQ first-stage handler (arm64_handler_irq): acks the
// interrupt at the GIC, and on the generic timer's PPI (intid 30) resets
// the timer and invokes the scheduler with the frame the interrupt was
// taken with, exactly as machine_timer_reset/__schedule are called inline
// from the original's handler rather than through a registered callback
// table.
func handleIRQ(frame *sched.ExceptionFrame) {
	intid := gicAckIRQ()
	gicEndOfInterrupt(intid)

	irqDisable()

	if intid == timerIRQID {
		timerReset()
		sched.Schedule(frame)
	}
}

// gicAckIRQ, gicEndOfInterrupt, timerReset and timerIRQID are installed by
// arch/arm64/gic and arch/arm64/timer during their own Init, the same seam
// pattern as kern/panic.Halt: the exception dispatcher must not import
// either driver package directly, since both import arch/arm64 for
// register access.
var (
	gicAckIRQ         func() uint32 = func() uint32 { return 0 }
	gicEndOfInterrupt func(uint32)  = func(uint32) {}
	timerReset        func()       = func() {}
)

const timerIRQID = 30

// SetGICHooks lets arch/arm64/gic install its interrupt-acknowledge
// primitives without arch/arm64 importing it.
func SetGICHooks(ack func() uint32, eoi func(uint32)) {
	gicAckIRQ = ack
	gicEndOfInterrupt = eoi
}

// SetTimerResetHook lets arch/arm64/timer install its rearm primitive.
func SetTimerResetHook(reset func()) {
	timerReset = reset
}

// dispatchSynchronous, dispatchSError, dispatchFIQ and dispatchIRQ are the
// fixed CALL targets the vector stubs in vectors_arm64.s jump to after it has
// pushed x0-x28/fp/lr/sp onto the exception stack and read far_el1/esr_el1/
// elr_el1: framePtr points at that pushed register dump, laid out
// identically to sched.ExceptionFrame so it can be reinterpreted in place
// rather than copied field by field.
func dispatchSynchronous(framePtr *sched.ExceptionFrame) { handleSynchronous(framePtr) }
func dispatchSError(framePtr *sched.ExceptionFrame)      { handleSError(framePtr) }
func dispatchFIQ(framePtr *sched.ExceptionFrame)         { handleFIQ(framePtr) }
func dispatchIRQ(framePtr *sched.ExceptionFrame)         { handleIRQ(framePtr) }

func setVBAR()

// initVectorTable installs this kernel's exception vector table
// (cpu_init's arm64_init_vector_table equivalent).
func (cpu *CPU) initVectorTable() {
	setVBAR()
}
