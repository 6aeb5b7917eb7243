package arm64

import (
	"github.com/monix-go/monix/kern/panic"
	"github.com/monix-go/monix/kern/sched"
)

// defined in arm64.s
func irqEnable()
func irqDisable()

// EnableInterrupts unmasks IRQ interrupts on this core (irq_enable,
// DAIF.I cleared).
func (cpu *CPU) EnableInterrupts() { irqEnable() }

// DisableInterrupts masks IRQ interrupts on this core (irq_disable,
// DAIF.I set).
func (cpu *CPU) DisableInterrupts() { irqDisable() }

// wireSeams installs this package's register-level primitives as the
// function variables kern/panic and kern/sched expose instead of importing
// arch/arm64 directly (avoiding the import cycle those packages would
// otherwise have with the architecture layer that depends on them).
func wireSeams() {
	panic.Halt = func() {
		irqDisable()
		for {
			wfi()
		}
	}
	panic.DisableIRQ = irqDisable

	sched.DisableIRQ = irqDisable
	sched.EnableIRQ = irqEnable
	sched.SaveContext = saveContext
	sched.LoadContext = loadContext
}
