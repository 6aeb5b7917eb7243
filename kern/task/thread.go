package task

import (
	"unsafe"

	"github.com/monix-go/monix/kern/defaults"
	"github.com/monix-go/monix/kern/errs"
	"github.com/monix-go/monix/kern/stack"
	"github.com/monix-go/monix/kern/zalloc"
)

// ThreadState mirrors thread_state_t.
type ThreadState int

const (
	ThreadRunnable ThreadState = iota
	ThreadBlocked
	ThreadDestroyed
)

// ThreadIDKernThread is the ID reserved for the very first thread created
// (THREAD_ID_KERN_THREAD): the original boot thread the kernel itself is
// running on before the scheduler takes over. thread_create refuses to
// hand this ID to anything but the first thread ever created.
const ThreadIDKernThread = 0

// Thread is one schedulable unit of execution (thread_t). Context must
// remain the first field: the assembly context-switch primitives in
// arch/arm64 index into a Thread assuming its callee-saved register block
// starts at offset 0, exactly like arm64_cpu_context_t is the first member
// of thread_t in the original. See the offset assertion below.
type Thread struct {
	Context

	ThreadID int
	Name     string
	State    ThreadState

	Task *Task

	// Entry is the thread's starting function. A raw machine PC the way
	// arm64_cpu_context_t.x19 holds one in the original isn't something Go
	// code can synthesize safely, so the architecture's fork-return
	// trampoline calls Entry(Args) directly instead of jumping to it; LR is
	// still pointed at that trampoline so the context-switch primitive
	// itself stays a faithful callee-saved register restore.
	Entry func(args uintptr)
	Args  uintptr

	// StackBase and StackSize describe the guarded virtual range the
	// stack allocator carved for this thread (kern/stack.Alloc).
	StackBase uint64
	StackSize uint64

	Processor *Processor

	zoneElem []byte
}

func init() {
	if unsafe.Offsetof(Thread{}.Context) != 0 {
		panic("task: Thread.Context must be the first field")
	}
}

var (
	threadZone  *zalloc.Zone
	threads     []*Thread
	threadIDMax int
)

const unsafeSizeofThread = 192

// InitThreads prepares the thread zone and the stack allocator behind it
// (thread_init, which in turn calls stack_init).
func InitThreads(zt *zalloc.Table) error {
	z, err := zt.Create(unsafeSizeofThread, uint64(defaults.MaxCPUs)*4*unsafeSizeofThread, "threads")
	if err != nil {
		return err
	}
	if err := stack.Init(zt); err != nil {
		return err
	}
	threadZone = z
	threads = nil
	threadIDMax = 0
	return nil
}

// CreateThread allocates a new thread owned by t, with entry/args set up
// for a fresh context switch into entry(args) and a fresh stack carved
// from t.Map by the stack allocator (thread_create). The very first
// thread created across the kernel's lifetime is assigned
// ThreadIDKernThread; thread_destroy refuses to ever remove it, since it's
// the thread the kernel itself booted on.
func CreateThread(t *Task, name string, entry func(args uintptr), args uintptr) (*Thread, error) {
	if threadZone == nil {
		return nil, errs.ErrAlreadyInitialized
	}
	zoneElem, err := zalloc.Alloc(threadZone)
	if err != nil {
		return nil, err
	}

	stackBase, stackSize, err := stack.Alloc(t.Map)
	if err != nil {
		_ = zalloc.Free(threadZone, zoneElem)
		return nil, err
	}

	id := threadIDMax
	threadIDMax++

	if len(name) > defaults.ThreadNameMaxLen {
		name = name[:defaults.ThreadNameMaxLen]
	}

	th := &Thread{
		ThreadID:  id,
		Name:      name,
		State:     ThreadRunnable,
		Task:      t,
		Entry:     entry,
		Args:      args,
		StackBase: stackBase,
		StackSize: stackSize,
		zoneElem:  zoneElem,
	}

	// thread_load_context: a freshly created thread's saved context is
	// arranged so the first switch into it lands on the architecture's
	// fork-return trampoline with sp at the top of its stack. LR is filled
	// in by arch/arm64.InitContext once the thread is handed to it, since
	// only the architecture glue knows the trampoline's address; Entry and
	// Args above are what that trampoline calls once it's landed.
	th.Context.SP = stackBase + stackSize - 1

	threads = append(threads, th)
	t.AssignThread(th)

	return th, nil
}

// KernelThreadCreate is CreateThread specialised for kernel-only threads:
// no userland task wraps them, so they're assigned to the kernel task kt
// (kernel_thread_create).
func KernelThreadCreate(kt *Task, name string, entry func()) (*Thread, error) {
	return CreateThread(kt, name, func(uintptr) { entry() }, 0)
}

// Destroy removes th from the thread table (thread_destroy). Refuses to
// destroy the kernel's first thread or a thread that's currently the
// active thread on any CPU, matching thread_destroy's own guards.
func Destroy(th *Thread) error {
	if th.ThreadID == ThreadIDKernThread {
		return errs.ErrThreadNotFirst
	}
	for i := range cpuTable {
		if cpuTable[i].ActiveThread == th {
			return errs.ErrThreadActive
		}
	}

	for i, v := range threads {
		if v == th {
			threads = append(threads[:i], threads[i+1:]...)
			break
		}
	}
	if task := th.Task; task != nil {
		for i, v := range task.Threads {
			if v == th {
				task.Threads = append(task.Threads[:i], task.Threads[i+1:]...)
				break
			}
		}
	}

	th.State = ThreadDestroyed

	if err := stack.Free(th.StackBase); err != nil {
		return err
	}

	return zalloc.Free(threadZone, th.zoneElem)
}

// Block marks th as not runnable (thread_block).
func Block(th *Thread) { th.State = ThreadBlocked }

// Unblock marks th as runnable again (thread_unblock).
func Unblock(th *Thread) { th.State = ThreadRunnable }

// SetName renames th, truncating to defaults.ThreadNameMaxLen
// (thread_set_name).
func (th *Thread) SetName(name string) {
	if len(name) > defaults.ThreadNameMaxLen {
		name = name[:defaults.ThreadNameMaxLen]
	}
	th.Name = name
}

// CurrentThread returns the active thread on the current CPU, or nil.
func CurrentThread() *Thread {
	cpu := CurrentCPU()
	if cpu == nil {
		return nil
	}
	return cpu.ActiveThread
}

// Threads returns every thread created so far, for diagnostics and tests.
func Threads() []*Thread { return threads }
