package task

import "github.com/monix-go/monix/kern/zalloc"

// Init brings up the processor, task and thread zones in the order the
// original kernel_init does (processor_init, task_init, thread_init),
// sharing one zone table across all three.
func Init(zt *zalloc.Table) error {
	if err := InitProcessors(zt); err != nil {
		return err
	}
	if err := InitTasks(zt); err != nil {
		return err
	}
	if err := InitThreads(zt); err != nil {
		return err
	}
	return nil
}
