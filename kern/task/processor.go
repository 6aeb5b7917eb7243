package task

import (
	"github.com/monix-go/monix/kern/defaults"
	"github.com/monix-go/monix/kern/errs"
	"github.com/monix-go/monix/kern/zalloc"
)

// ProcessorState mirrors processor_state_t: a processor is either idle
// (nothing runnable assigned to it) or running a thread.
type ProcessorState int

const (
	ProcessorIdle ProcessorState = iota
	ProcessorRunning
)

// Processor is the scheduling unit bound to a CPUData (processor_t). With no
// SMP this kernel only ever creates one, but the type keeps the original's
// cpu/processor split so the scheduler doesn't need to know that.
type Processor struct {
	CPUNumber int
	State     ProcessorState

	ActiveThread *Thread
	IdleThread   *Thread

	RunQueue []*Thread
}

var (
	processorZone *zalloc.Zone
	zoneTable     *zalloc.Table

	// activeProcessors and idleProcessors hold every Processor created, split
	// by current state. A processor moves between the two slices when
	// MarkRunning (called by Enqueue) or MarkIdle runs; unlike zalloc's free/used
	// element lists this movement is driven by pointer identity, not list
	// splicing, so plain slices suffice (see the design note in vm/map.go).
	activeProcessors []*Processor
	idleProcessors   []*Processor

	primaryProcessor *Processor
	primaryCPUNumber int
)

// InitProcessors prepares the processor zone (processor_init). zt is the
// kernel's shared zone table; it is also used by Task/Thread init.
func InitProcessors(zt *zalloc.Table) error {
	zoneTable = zt

	z, err := zoneTable.Create(unsafeSizeofProcessor, uint64(defaults.MaxCPUs)*unsafeSizeofProcessor, "processors")
	if err != nil {
		return err
	}
	processorZone = z

	activeProcessors = nil
	idleProcessors = nil

	return nil
}

const unsafeSizeofProcessor = 64

// CreateProcessor allocates and registers a new Processor bound to
// cpuNumber (processor_create). The processor starts idle; SetPrimary
// marks the boot processor once the boot CPU's scheduler is about to
// start running.
func CreateProcessor(cpuNumber int) (*Processor, error) {
	if processorZone == nil {
		return nil, errs.ErrAlreadyInitialized
	}
	if _, err := zalloc.Alloc(processorZone); err != nil {
		return nil, err
	}

	p := &Processor{
		CPUNumber: cpuNumber,
		State:     ProcessorIdle,
	}

	idleProcessors = append(idleProcessors, p)

	if err := SetProcessor(cpuNumber, p); err != nil {
		return nil, err
	}

	return p, nil
}

// SetPrimary marks p as the primary (boot) processor.
func SetPrimary(p *Processor) {
	primaryProcessor = p
	primaryCPUNumber = p.CPUNumber
}

// Primary returns the primary processor, or nil before SetPrimary runs.
func Primary() *Processor { return primaryProcessor }

// MarkRunning moves p from the idle set to the active set (called when a
// thread is assigned to it and it starts executing).
func MarkRunning(p *Processor) {
	if p.State == ProcessorRunning {
		return
	}
	removeProcessor(&idleProcessors, p)
	activeProcessors = append(activeProcessors, p)
	p.State = ProcessorRunning
}

// MarkIdle moves p from the active set back to idle (its run queue emptied
// out and it fell back to its idle thread).
func MarkIdle(p *Processor) {
	if p.State == ProcessorIdle {
		return
	}
	removeProcessor(&activeProcessors, p)
	idleProcessors = append(idleProcessors, p)
	p.State = ProcessorIdle
}

func removeProcessor(list *[]*Processor, p *Processor) {
	for i, v := range *list {
		if v == p {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return
		}
	}
}

// Enqueue appends t to p's run queue (round-robin insertion order).
func (p *Processor) Enqueue(t *Thread) {
	p.RunQueue = append(p.RunQueue, t)
	MarkRunning(p)
}

// Dequeue pops the thread at the front of p's run queue (FIFO order). Nothing
// re-appends it: kern/sched picks threads from the global thread list, not
// from this queue.
func (p *Processor) Dequeue() *Thread {
	if len(p.RunQueue) == 0 {
		return nil
	}
	t := p.RunQueue[0]
	p.RunQueue = p.RunQueue[1:]
	return t
}
