package boot

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"unsafe"

	"github.com/monix-go/monix/internal/reg"
	"github.com/monix-go/monix/kern/defaults"
	"github.com/monix-go/monix/kern/errs"
	"github.com/monix-go/monix/platform/devicetree"
)

// fdtFixture builds the minimal FDT blob GetMemory/GetGICv3 need: a root
// node with a "/memory" child (a two-cell reg pair) and a "compatible"
// "arm,gic-v3" child carrying two reg pairs (distributor, redistributor).
// Hand-assembled the same way
// platform/devicetree/devicetree_test.go's buildTestFDT is, since both
// exercise the same on-disk FDT token format
// (_examples/tinyrange-cc/internal/fdt/build.go).
func fdtFixture() []byte {
	var structBuf, strings bytes.Buffer
	stringOff := map[string]uint32{}

	nameOffset := func(name string) uint32 {
		if off, ok := stringOff[name]; ok {
			return off
		}
		off := uint32(strings.Len())
		strings.WriteString(name)
		strings.WriteByte(0)
		stringOff[name] = off
		return off
	}
	pad := func() {
		for structBuf.Len()%4 != 0 {
			structBuf.WriteByte(0)
		}
	}
	token := func(tok uint32) {
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], tok)
		structBuf.Write(tmp[:])
	}
	beginNode := func(name string) {
		token(1)
		structBuf.WriteString(name)
		structBuf.WriteByte(0)
		pad()
	}
	endNode := func() { token(2) }
	prop := func(name string, val []byte) {
		token(3)
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], uint32(len(val)))
		structBuf.Write(tmp[:])
		binary.BigEndian.PutUint32(tmp[:], nameOffset(name))
		structBuf.Write(tmp[:])
		structBuf.Write(val)
		pad()
	}
	cells32 := func(vals ...uint32) []byte {
		b := make([]byte, 4*len(vals))
		for i, v := range vals {
			binary.BigEndian.PutUint32(b[4*i:], v)
		}
		return b
	}

	beginNode("")
	beginNode("memory")
	prop("reg", cells32(0, 0x40000000, 0, 0x10000000))
	endNode()
	beginNode("intc@8000000")
	prop("compatible", []byte("arm,gic-v3\x00"))
	prop("reg", cells32(0, 0x08000000, 0, 0x00010000, 0, 0x08060000, 0, 0x00020000))
	endNode()
	endNode()
	token(9)
	pad()

	offStruct := 0x28
	offStrings := offStruct + structBuf.Len()
	total := offStrings + strings.Len()

	blob := make([]byte, total)
	binary.BigEndian.PutUint32(blob[0:4], 0xd00dfeed)
	binary.BigEndian.PutUint32(blob[4:8], uint32(total))
	binary.BigEndian.PutUint32(blob[8:12], uint32(offStruct))
	binary.BigEndian.PutUint32(blob[12:16], uint32(offStrings))
	binary.BigEndian.PutUint32(blob[20:24], 17)
	binary.BigEndian.PutUint32(blob[36:40], uint32(structBuf.Len()))
	copy(blob[offStruct:], structBuf.Bytes())
	copy(blob[offStrings:], strings.Bytes())

	return blob
}

// writeArgs lays out a boot_args record into buf at defaults' byte offsets,
// using reg.Write/Write64 so the record is built the same way Decode reads
// it back (through the real memory address of buf, not a parsed struct).
func writeArgs(buf []byte, version uint32, virtBase, physBase, memSize, fdtBase, fdtSize uint64, tbootVers string) uint64 {
	addr := uint64(uintptr(unsafe.Pointer(&buf[0])))

	reg.Write(addr+defaults.BootArgsOffsetVersion, version)
	reg.Write64(addr+defaults.BootArgsOffsetVirtBase, virtBase)
	reg.Write64(addr+defaults.BootArgsOffsetPhysBase, physBase)
	reg.Write64(addr+defaults.BootArgsOffsetMemSize, memSize)
	reg.Write64(addr+defaults.BootArgsOffsetFDTBase, fdtBase)
	reg.Write64(addr+defaults.BootArgsOffsetFDTSize, fdtSize)

	copy(buf[defaults.BootArgsOffsetTBootVers:defaults.BootArgsOffsetTBootVers+defaults.BootArgsTBootVersLen], tbootVers)

	return addr
}

func TestDecodeAndVerify(t *testing.T) {
	buf := make([]byte, defaults.BootArgsSize)
	addr := writeArgs(buf, defaults.BootArgsVersion1_1, 0xfffffff000000000, 0x40000000, 0x10000000, 0x48000000, 0x10000, "tboot-1.0")

	args := Decode(addr)

	if args.Version != defaults.BootArgsVersion1_1 {
		t.Fatalf("Version = 0x%x, want 0x%x", args.Version, defaults.BootArgsVersion1_1)
	}
	if args.VirtBase != 0xfffffff000000000 {
		t.Fatalf("VirtBase = 0x%x, want 0xfffffff000000000", args.VirtBase)
	}
	if args.TBootVers != "tboot-1.0" {
		t.Fatalf("TBootVers = %q, want %q", args.TBootVers, "tboot-1.0")
	}

	if err := args.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsWrongVersion(t *testing.T) {
	buf := make([]byte, defaults.BootArgsSize)
	addr := writeArgs(buf, 0x99, 0, 0, 0, 0, 0, "")

	args := Decode(addr)
	if err := args.Verify(); err == nil {
		t.Fatal("Verify() succeeded for a mismatched version, want an error")
	} else if !errors.Is(err, errs.ErrBootArgsVersion) {
		t.Fatalf("Verify() = %v, want wrapping ErrBootArgsVersion", err)
	}
}

func TestFixupFDTBase(t *testing.T) {
	a := &Args{VirtBase: 0xfffffff000000000, PhysBase: 0x40000000, FDTBase: 0x48000000}
	a.FixupFDTBase()
	want := uint64(0xfffffff000000000 + (0x48000000 - 0x40000000))
	if a.FDTBase != want {
		t.Fatalf("FDTBase after fixup = 0x%x, want 0x%x", a.FDTBase, want)
	}

	// Already a virtual address: no change.
	b := &Args{VirtBase: 0xfffffff000000000, PhysBase: 0x40000000, FDTBase: 0xfffffff000800000}
	b.FixupFDTBase()
	if b.FDTBase != 0xfffffff000800000 {
		t.Fatalf("FixupFDTBase() touched an already-virtual FDTBase: got 0x%x", b.FDTBase)
	}
}

func TestFDTBytesViewsBackingMemory(t *testing.T) {
	want := []byte{0xd0, 0x0d, 0xfe, 0xed, 1, 2, 3, 4}
	a := &Args{FDTBase: uint64(uintptr(unsafe.Pointer(&want[0]))), FDTSize: uint64(len(want))}

	got := a.FDTBytes()
	if !bytes.Equal(got, want) {
		t.Fatalf("FDTBytes() = % x, want % x", got, want)
	}
}

func TestRelocatedSelf(t *testing.T) {
	a := &Args{VirtBase: 0xfffffff000000000, PhysBase: 0x40000000}
	got := a.RelocatedSelf(0x40001000)
	want := uint64(0xfffffff000000000 + 0x1000)
	if got != want {
		t.Fatalf("RelocatedSelf = 0x%x, want 0x%x", got, want)
	}
}

func TestGetMemory(t *testing.T) {
	tree, err := devicetree.Parse(fdtFixture())
	if err != nil {
		t.Fatalf("devicetree.Parse: %v", err)
	}

	membase, memsize, err := GetMemory(tree)
	if err != nil {
		t.Fatalf("GetMemory: %v", err)
	}
	if membase != 0x40000000 || memsize != 0x10000000 {
		t.Fatalf("GetMemory = (0x%x, 0x%x), want (0x40000000, 0x10000000)", membase, memsize)
	}
}

func TestGetGICv3(t *testing.T) {
	tree, err := devicetree.Parse(fdtFixture())
	if err != nil {
		t.Fatalf("devicetree.Parse: %v", err)
	}

	dist, redist, err := GetGICv3(tree)
	if err != nil {
		t.Fatalf("GetGICv3: %v", err)
	}
	if dist != 0x08000000 || redist != 0x08060000 {
		t.Fatalf("GetGICv3 = (0x%x, 0x%x), want (0x08000000, 0x08060000)", dist, redist)
	}
}

func TestReadCells(t *testing.T) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint32(b[0:4], 0)
	binary.BigEndian.PutUint32(b[4:8], 0x40000000)

	if got := readCells(b); got != 0x40000000 {
		t.Fatalf("readCells = 0x%x, want 0x40000000", got)
	}
}
