// Package boot decodes the boot_args record tBoot hands off in x0, and
// resolves the platform memory layout and interrupt controller base
// addresses out of the boot device tree, mirroring the first half of
// kernel_init in _examples/original_source/kern/main.c before vm_configure
// runs.
package boot

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/monix-go/monix/internal/reg"
	"github.com/monix-go/monix/kern/defaults"
	"github.com/monix-go/monix/kern/errs"
	"github.com/monix-go/monix/platform/devicetree"
)

// Args is the decoded boot_args record (struct boot_args), the memory and
// device tree handoff tBoot places in shared non-secure memory before
// passing its address to the kernel in x0.
type Args struct {
	Version uint32

	VirtBase uint64
	PhysBase uint64
	MemSize  uint64

	KernBase uint64
	KernSize uint64

	FDTBase uint64
	FDTSize uint64

	UARTBase uint64
	UARTSize uint64

	Flags      uint32
	TBootVers string
}

// Decode reads a boot_args record out of memory at addr, using the byte
// offsets kern/defaults records for the layout (BootArgsOffset*).
func Decode(addr uint64) *Args {
	a := &Args{
		Version:  reg.Read(addr + defaults.BootArgsOffsetVersion),
		VirtBase: reg.Read64(addr + defaults.BootArgsOffsetVirtBase),
		PhysBase: reg.Read64(addr + defaults.BootArgsOffsetPhysBase),
		MemSize:  reg.Read64(addr + defaults.BootArgsOffsetMemSize),
		KernBase: reg.Read64(addr + defaults.BootArgsOffsetKernBase),
		KernSize: reg.Read64(addr + defaults.BootArgsOffsetKernSize),
		FDTBase:  reg.Read64(addr + defaults.BootArgsOffsetFDTBase),
		FDTSize:  reg.Read64(addr + defaults.BootArgsOffsetFDTSize),
		UARTBase: reg.Read64(addr + defaults.BootArgsOffsetUARTBase),
		UARTSize: reg.Read64(addr + defaults.BootArgsOffsetUARTSize),
		Flags:    reg.Read(addr + defaults.BootArgsOffsetFlags),
	}
	a.TBootVers = readCString(addr+defaults.BootArgsOffsetTBootVers, defaults.BootArgsTBootVersLen)
	return a
}

func readCString(addr uint64, maxLen int) string {
	var b strings.Builder
	for i := 0; i < maxLen; i++ {
		c := *(*byte)(unsafe.Pointer(uintptr(addr) + uintptr(i)))
		if c == 0 {
			break
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Verify checks the record's version against the only layout this kernel
// accepts (kernel_init's "boot_args version mismatch" panic).
func (a *Args) Verify() error {
	if a.Version != defaults.BootArgsVersion1_1 {
		return fmt.Errorf("%w: got 0x%x, want 0x%x", errs.ErrBootArgsVersion, a.Version, defaults.BootArgsVersion1_1)
	}
	return nil
}

// FixupFDTBase converts FDTBase to a kernel virtual address if tBoot left
// it as a physical address below VirtBase, exactly as kernel_init does
// before handing the blob to devicetree.Init.
func (a *Args) FixupFDTBase() {
	if a.FDTBase < a.VirtBase {
		a.FDTBase = a.VirtBase + (a.FDTBase - a.PhysBase)
	}
}

// FDTBytes returns a read-only view of the flattened device tree blob at
// FDTBase, sized FDTSize, suitable for devicetree.Init.
func (a *Args) FDTBytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(a.FDTBase))), a.FDTSize)
}

// RelocatedSelf returns the kernel-virtual address of the boot_args record
// itself, given the address origAddr it was actually read from
// (kernel_init's own x0 = virtbase + (boot_args - physbase) recomputation,
// done once virtual memory covers the handoff region and the identity
// window it arrived through may no longer be mapped).
func (a *Args) RelocatedSelf(origAddr uint64) uint64 {
	return a.VirtBase + (origAddr - a.PhysBase)
}

// GetMemory resolves the platform's usable physical memory range from the
// device tree's "/memory" node (platform_get_memory).
func GetMemory(t *devicetree.Tree) (membase, memsize uint64, err error) {
	node, err := t.LookupPath("/memory")
	if err != nil {
		return 0, 0, err
	}
	return t.RegValue(node)
}

// GetGICv3 resolves the GICv3 distributor and redistributor base addresses
// from the device tree's interrupt controller node (platform_get_gicv3,
// declared but never implemented in
// _examples/original_source/platform/platform.h — this kernel answers the
// Open Question by doing what platform_get_memory already does for
// "/memory": find the node by content, not a hardcoded path, since a GICv3
// node's unit address varies by platform).
func GetGICv3(t *devicetree.Tree) (dist, redist uint64, err error) {
	root, err := t.LookupPath("/")
	if err != nil {
		return 0, 0, err
	}

	node, err := findCompatible(t, root, "arm,gic-v3")
	if err != nil {
		return 0, 0, err
	}

	raw, err := t.PropertyValue(node, "reg")
	if err != nil {
		return 0, 0, err
	}

	cellBytes := defaults.DeviceTreeCellSize * 4
	pairSize := cellBytes * 2
	if len(raw) < pairSize*2 {
		return 0, 0, errs.ErrMalformed
	}

	dist = readCells(raw[0:cellBytes])
	redist = readCells(raw[pairSize : pairSize+cellBytes])

	return dist, redist, nil
}

func findCompatible(t *devicetree.Tree, node devicetree.Node, want string) (devicetree.Node, error) {
	if raw, err := t.PropertyValue(node, "compatible"); err == nil {
		for _, s := range strings.Split(strings.TrimRight(string(raw), "\x00"), "\x00") {
			if s == want {
				return node, nil
			}
		}
	}

	children, err := t.Children(node)
	if err != nil {
		return devicetree.Node{}, err
	}
	for _, c := range children {
		if found, err := findCompatible(t, c, want); err == nil {
			return found, nil
		}
	}

	return devicetree.Node{}, errs.ErrNotFound
}

func readCells(b []byte) uint64 {
	var v uint64
	for len(b) >= 4 {
		v = (v << 32) | uint64(uint32(b[0])<<24|uint32(b[1])<<16|uint32(b[2])<<8|uint32(b[3]))
		b = b[4:]
	}
	return v
}
