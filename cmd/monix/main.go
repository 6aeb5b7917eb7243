// Command monix is the kernel's entry point: KernelInit performs the same
// bring-up sequence as kernel_init in
// _examples/original_source/kern/main.c, wiring every subsystem package
// built under arch/, kern/ and platform/ into a running system culminating
// in a single kernel thread.
//
// The reset-vector-to-first-Go-instruction handoff (stack pointer setup,
// preserving the tBoot-supplied boot_args address across Go runtime
// bring-up) has no precedent anywhere in the example pack — every example
// repo that touches ARM64 either runs hosted (under an OS) or is a TinyGo
// board support package whose boards have no boot_args-style handoff at
// all, so there is nothing in-corpus to ground a custom reset stub on.
// This package therefore starts from KernelInit(bootArgsAddr), documented
// as the function a loader stub calls once the Go runtime is ready to run,
// with X0 intact, the same contract kernel_init itself expects from
// start.S.
package main

import (
	"strings"

	"github.com/monix-go/monix/arch/arm64"
	"github.com/monix-go/monix/arch/arm64/gic"
	"github.com/monix-go/monix/arch/arm64/timer"
	"github.com/monix-go/monix/boot"
	"github.com/monix-go/monix/kern/defaults"
	"github.com/monix-go/monix/kern/panic"
	"github.com/monix-go/monix/kern/sched"
	"github.com/monix-go/monix/kern/task"
	"github.com/monix-go/monix/kern/trace"
	"github.com/monix-go/monix/kern/vm"
	"github.com/monix-go/monix/kern/zalloc"
	"github.com/monix-go/monix/platform/console"
	"github.com/monix-go/monix/platform/devicetree"
	"github.com/monix-go/monix/platform/topology"
)

const kernelBuildVersion = "0.1.0"

var (
	bootCPUID int
	kernelMap *vm.Map
)

// KernelInit brings the kernel from the tBoot handoff to a running kernel
// thread. It never returns: the final step loads the kernel thread's
// context and transfers control to threadTrampoline via arch/arm64's
// context-switch primitive, exactly as kernel_init's own tail end
// (thread_load_context, followed by an unreachable "b .") never returns
// either.
func KernelInit(bootArgsAddr uint64) {
	cpu := &arm64.CPU{}

	args := boot.Decode(bootArgsAddr)
	if err := args.Verify(); err != nil {
		panic.Panic("%v", err)
	}

	args.FixupFDTBase()

	tree, err := devicetree.Init(args.FDTBytes())
	if err != nil {
		panic.Panic("devicetree: %v", err)
	}

	// kernel_init recomputes its own virtual address here so it can keep
	// dereferencing boot_args once the identity window it arrived through
	// is gone; this kernel already holds every field in args, so the
	// recomputed address is only needed for parity with the original, not
	// for any further reads.
	_ = args.RelocatedSelf(bootArgsAddr)

	membase, memsize, err := boot.GetMemory(tree)
	if err != nil {
		panic.Panic("platform: %v", err)
	}

	pages := &vm.PageAllocator{}
	pages.Bootstrap(membase, memsize, args.KernSize)

	region := &vm.PTRegion{}
	if err := region.Create(); err != nil {
		panic.Panic("vm: %v", err)
	}

	kernMax := defaults.KernelVirtBase + memsize
	pmap, err := vm.CreateKernelPmap(region, defaults.KernelVirtBase, kernMax)
	if err != nil {
		panic.Panic("vm: %v", err)
	}

	if err := vm.CreateTTE(region, pmap.TTE, membase, defaults.KernelVirtBase, memsize, vm.AccessReadWrite); err != nil {
		panic.Panic("vm: %v", err)
	}

	kernelMap = vm.NewMap(pmap, defaults.KernelVirtBase, kernMax, pages, region)
	kernelMap.EntryCreate(defaults.KernelVirtBase, args.KernSize, false, true)

	uart := &console.UART{Base: defaults.KernelPeriphBase}
	uart.Init(defaults.DebugUARTBaud, defaults.DebugUARTClk)
	trace.SetOutput(uart)

	if !devicetree.Verify() {
		panic.Panic("devicetree: not verified")
	}

	root, err := devicetree.BootRoot()
	if err != nil {
		panic.Panic("devicetree: %v", err)
	}

	topo, err := topology.Parse(tree, uint32(cpu.AffinityID()))
	if err != nil {
		panic.Panic("topology: %v", err)
	}

	bootCPUID = topo.GetBootCPUNum()

	if err := cpu.Init(bootCPUID, true); err != nil {
		panic.Panic("cpu: %v", err)
	}

	cpu.InitMMU(pmap)

	trace.Printk("Booting Monix on Physical CPU: 0x%08x\n", topo.CPUs[bootCPUID].PhysID)
	trace.Printk("Monix Kernel Version %s\n", kernelBuildVersion)
	trace.Printk("tBoot version: %s\n", args.TBootVers)

	if machine, err := tree.PropertyValue(root, "compatible"); err == nil {
		trace.Printk("machine: %s\n", strings.TrimRight(string(machine), "\x00"))
	}
	trace.Printk("machine: detected %d cpus across %d clusters\n", topo.GetNumCPUs(), topo.GetNumClusters())

	zt := &zalloc.Table{}
	zt.Init()

	if err := task.Init(zt); err != nil {
		panic.Panic("task: %v", err)
	}

	dist, redist, err := boot.GetGICv3(tree)
	if err != nil {
		panic.Panic("gic: %v", err)
	}
	controller := &gic.GIC{Dist: dist, Redist: redist}
	controller.Init()
	controller.Wire()
	if err := controller.Register(timer.IRQID, 0); err != nil {
		panic.Panic("gic: %v", err)
	}

	timer.Init(cpu, 0, 0)

	proc, err := task.CreateProcessor(bootCPUID)
	if err != nil {
		panic.Panic("task: %v", err)
	}
	task.SetPrimary(proc)

	kernelTask, err := task.Create(kernelMap, "kernel_task")
	if err != nil {
		panic.Panic("task: %v", err)
	}

	kernelThread, err := task.KernelThreadCreate(kernelTask, "kernel_thread_main", kernelThreadMain)
	if err != nil {
		panic.Panic("task: %v", err)
	}

	arm64.InitContext(kernelThread)

	sched.LoadContext(kernelThread)

	// unreachable: LoadContext transfers control via threadTrampoline.
	for {
		arm64.WaitForInterrupt()
	}
}

// kernelThreadMain is the kernel's first scheduled thread
// (kernel_thread_main): it enables the active-thread-aware CPU state,
// rearms the scheduling timer, and falls into the idle loop the scheduler
// round-robins away from on every timer tick.
func kernelThreadMain() {
	trace.Printk("kernel_task: kernel_init complete\n")

	if cpu := task.Get(bootCPUID); cpu != nil {
		cpu.Flags |= task.CPUFlagThreadingEnabled
	}

	if cpu := arm64.BootCPU(); cpu != nil {
		timer.SetAlarm(cpu, timer.GetTime(cpu)+int64(float64(timer.ResetValue)*cpu.TimerMultiplier))
	}

	for {
		arm64.WaitForInterrupt()
	}
}
