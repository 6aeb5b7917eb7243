package task

import (
	"github.com/monix-go/monix/kern/defaults"
	"github.com/monix-go/monix/kern/errs"
	"github.com/monix-go/monix/kern/vm"
	"github.com/monix-go/monix/kern/zalloc"
)

// Task is a container of threads (task_t). This kernel never runs
// userland, so every task's Map is the kernel's own vm.Map rather than a
// private address space; Map is still carried on Task, matching task_t's
// pmap pointer, since thread_create's stack allocation reads it back off
// the owning task rather than reaching for a global.
type Task struct {
	Name string
	PID  int
	Map  *vm.Map

	Threads []*Thread
}

var (
	taskZone *zalloc.Zone
	tasks    []*Task
	nextPID  int
)

const unsafeSizeofTask = 96

// InitTasks prepares the task zone (task_init).
func InitTasks(zt *zalloc.Table) error {
	z, err := zt.Create(unsafeSizeofTask, uint64(defaults.MaxCPUs)*2*unsafeSizeofTask, "tasks")
	if err != nil {
		return err
	}
	taskZone = z
	tasks = nil
	nextPID = 0
	return nil
}

// Create allocates a new task named name, bound to m, and assigns it the
// next PID (task_create(map, name)).
func Create(m *vm.Map, name string) (*Task, error) {
	if taskZone == nil {
		return nil, errs.ErrAlreadyInitialized
	}
	if _, err := zalloc.Alloc(taskZone); err != nil {
		return nil, err
	}

	if len(name) > defaults.TaskNameMaxLen {
		name = name[:defaults.TaskNameMaxLen]
	}

	t := &Task{
		Name: name,
		PID:  nextPID,
		Map:  m,
	}
	nextPID++

	tasks = append(tasks, t)

	return t, nil
}

// AssignThread records th as belonging to t (task_assign_thread). th.Task
// is set by the caller (CreateThread) before this runs.
func (t *Task) AssignThread(th *Thread) {
	t.Threads = append(t.Threads, th)
}

// Tasks returns every task created so far, for diagnostics and tests.
func Tasks() []*Task { return tasks }
