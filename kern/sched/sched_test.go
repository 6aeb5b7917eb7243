package sched

import (
	"testing"
	"unsafe"

	"github.com/monix-go/monix/kern/defaults"
	"github.com/monix-go/monix/kern/task"
	"github.com/monix-go/monix/kern/vm"
	"github.com/monix-go/monix/kern/zalloc"
)

// buildTestMap constructs a small real vm.Map, backed by a real Go buffer,
// so thread stack allocation (and its guard-page fill) has addressable
// memory to work with.
func buildTestMap(t *testing.T) *vm.Map {
	t.Helper()

	buf := make([]byte, 64*defaults.PageSize)
	membase := uint64(uintptr(unsafe.Pointer(&buf[0])))

	pages := &vm.PageAllocator{}
	pages.Bootstrap(membase, uint64(len(buf)), 0)

	region := &vm.PTRegion{}
	if err := region.Create(); err != nil {
		t.Fatalf("region.Create: %v", err)
	}

	pmap, err := vm.CreateKernelPmap(region, membase, membase+uint64(len(buf)))
	if err != nil {
		t.Fatalf("CreateKernelPmap: %v", err)
	}

	return vm.NewMap(pmap, membase, membase+uint64(len(buf)), pages, region)
}

func freshTaskState(t *testing.T) *task.Task {
	t.Helper()

	var zt zalloc.Table
	zt.Init()
	if err := task.Init(&zt); err != nil {
		t.Fatalf("task.Init: %v", err)
	}

	tk, err := task.Create(buildTestMap(t), "test_task")
	if err != nil {
		t.Fatalf("task.Create: %v", err)
	}
	return tk
}

func TestSelectThreadRoundRobinWrapsAround(t *testing.T) {
	tk := freshTaskState(t)

	th1, err := task.CreateThread(tk, "t1", func(uintptr) {}, 0)
	if err != nil {
		t.Fatalf("Create t1: %v", err)
	}
	th2, err := task.CreateThread(tk, "t2", func(uintptr) {}, 0)
	if err != nil {
		t.Fatalf("Create t2: %v", err)
	}
	th3, err := task.CreateThread(tk, "t3", func(uintptr) {}, 0)
	if err != nil {
		t.Fatalf("Create t3: %v", err)
	}

	if next := selectThread(th1); next != th2 {
		t.Fatalf("selectThread(t1) = %v, want t2", next)
	}
	if next := selectThread(th2); next != th3 {
		t.Fatalf("selectThread(t2) = %v, want t3", next)
	}
	if next := selectThread(th3); next != th1 {
		t.Fatalf("selectThread(t3) = %v, want t1 (wrap around)", next)
	}
}

func TestSelectThreadEmptyList(t *testing.T) {
	freshTaskState(t)

	if next := selectThread(nil); next != nil {
		t.Fatalf("selectThread on empty thread list = %v, want nil", next)
	}
}

func TestScheduleSwitchesToNextRunnableThread(t *testing.T) {
	tk := freshTaskState(t)

	th1, err := task.CreateThread(tk, "t1", func(uintptr) {}, 0)
	if err != nil {
		t.Fatalf("Create t1: %v", err)
	}
	th2, err := task.CreateThread(tk, "t2", func(uintptr) {}, 0)
	if err != nil {
		t.Fatalf("Create t2: %v", err)
	}

	cpu := &task.CPUData{Number: 0, ActiveThread: th1}
	if err := task.Register(cpu); err != nil {
		t.Fatalf("task.Register: %v", err)
	}
	task.SetCurrentCPUGetter(func() *task.CPUData { return task.Get(0) })
	defer task.SetCurrentCPUGetter(nil)

	var saved *task.Thread
	var loaded *task.Thread
	SaveContext = func(th *task.Thread, frame *ExceptionFrame) { saved = th }
	LoadContext = func(th *task.Thread) { loaded = th }
	defer func() { SaveContext = nil; LoadContext = nil }()

	Schedule(&ExceptionFrame{})

	if saved != th1 {
		t.Fatalf("SaveContext called with %v, want t1 (the outgoing active thread)", saved)
	}
	if loaded != th2 {
		t.Fatalf("LoadContext called with %v, want t2", loaded)
	}
}

func TestScheduleSkipsBlockedThreads(t *testing.T) {
	tk := freshTaskState(t)

	th1, _ := task.CreateThread(tk, "t1", func(uintptr) {}, 0)
	th2, _ := task.CreateThread(tk, "t2", func(uintptr) {}, 0)
	th3, _ := task.CreateThread(tk, "t3", func(uintptr) {}, 0)
	task.Block(th2)

	cpu := &task.CPUData{Number: 0, ActiveThread: th1}
	if err := task.Register(cpu); err != nil {
		t.Fatalf("task.Register: %v", err)
	}
	task.SetCurrentCPUGetter(func() *task.CPUData { return task.Get(0) })
	defer task.SetCurrentCPUGetter(nil)

	var loaded *task.Thread
	LoadContext = func(th *task.Thread) { loaded = th }
	SaveContext = func(th *task.Thread, frame *ExceptionFrame) {}
	defer func() { SaveContext = nil; LoadContext = nil }()

	Schedule(&ExceptionFrame{})

	if loaded != th3 {
		t.Fatalf("LoadContext called with %v, want t3 (t2 is blocked)", loaded)
	}
}

func TestTailRecordsActiveThreadAndStack(t *testing.T) {
	tk := freshTaskState(t)
	th, _ := task.CreateThread(tk, "t1", func(uintptr) {}, 0)

	cpu := &task.CPUData{Number: 0}
	if err := task.Register(cpu); err != nil {
		t.Fatalf("task.Register: %v", err)
	}
	task.SetCurrentCPUGetter(func() *task.CPUData { return task.Get(0) })
	defer task.SetCurrentCPUGetter(nil)

	enabled := false
	EnableIRQ = func() { enabled = true }
	defer func() { EnableIRQ = nil }()

	Tail(th)

	if task.Get(0).ActiveThread != th {
		t.Fatalf("Tail did not record the active thread")
	}
	if task.Get(0).ActiveStack != th.StackBase {
		t.Fatalf("Tail recorded ActiveStack 0x%x, want 0x%x", task.Get(0).ActiveStack, th.StackBase)
	}
	if !enabled {
		t.Fatal("Tail did not call EnableIRQ")
	}
}
