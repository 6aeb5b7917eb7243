package devicetree

import (
	"bytes"
	"encoding/binary"
	"testing"
)

// testNode and buildTestFDT assemble a minimal FDT blob by hand, following
// the same token/header layout _examples/tinyrange-cc/internal/fdt/build.go
// writes (FDT_BEGIN_NODE/FDT_PROP/FDT_END_NODE/FDT_END, a single structure
// block plus a strings block, no memory reservation entries).
type testNode struct {
	name     string
	props    map[string][]byte
	children []testNode
}

type fdtBuilder struct {
	structBuf bytes.Buffer
	strings   bytes.Buffer
	stringOff map[string]uint32
}

func buildTestFDT(root testNode) []byte {
	b := &fdtBuilder{stringOff: make(map[string]uint32)}
	b.emitNode(root)
	b.writeToken(endToken)
	b.pad()

	structBytes := b.structBuf.Bytes()
	stringsBytes := b.strings.Bytes()

	offStruct := headerSize
	offStrings := offStruct + len(structBytes)
	total := offStrings + len(stringsBytes)

	blob := make([]byte, total)
	binary.BigEndian.PutUint32(blob[0:4], magic)
	binary.BigEndian.PutUint32(blob[4:8], uint32(total))
	binary.BigEndian.PutUint32(blob[8:12], uint32(offStruct))
	binary.BigEndian.PutUint32(blob[12:16], uint32(offStrings))
	binary.BigEndian.PutUint32(blob[20:24], 17)
	binary.BigEndian.PutUint32(blob[36:40], uint32(len(structBytes)))

	copy(blob[offStruct:], structBytes)
	copy(blob[offStrings:], stringsBytes)

	return blob
}

func (b *fdtBuilder) emitNode(n testNode) {
	b.writeToken(beginNode)
	b.structBuf.WriteString(n.name)
	b.structBuf.WriteByte(0)
	b.pad()

	for name, val := range n.props {
		b.writeToken(propToken)
		var tmp [4]byte
		binary.BigEndian.PutUint32(tmp[:], uint32(len(val)))
		b.structBuf.Write(tmp[:])
		binary.BigEndian.PutUint32(tmp[:], b.nameOffset(name))
		b.structBuf.Write(tmp[:])
		b.structBuf.Write(val)
		b.pad()
	}

	for _, c := range n.children {
		b.emitNode(c)
	}

	b.writeToken(endNode)
}

func (b *fdtBuilder) writeToken(tok uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], tok)
	b.structBuf.Write(tmp[:])
}

func (b *fdtBuilder) pad() {
	for b.structBuf.Len()%4 != 0 {
		b.structBuf.WriteByte(0)
	}
}

func (b *fdtBuilder) nameOffset(name string) uint32 {
	if off, ok := b.stringOff[name]; ok {
		return off
	}
	off := uint32(b.strings.Len())
	b.strings.WriteString(name)
	b.strings.WriteByte(0)
	b.stringOff[name] = off
	return off
}

func cells(vals ...uint32) []byte {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.BigEndian.PutUint32(buf[4*i:], v)
	}
	return buf
}

func sampleTree() []byte {
	return buildTestFDT(testNode{
		name: "",
		props: map[string][]byte{
			"compatible": append([]byte("acme,board\x00")),
		},
		children: []testNode{
			{
				name: "memory",
				props: map[string][]byte{
					"reg": cells(0, 0x40000000, 0, 0x10000000),
				},
			},
			{
				name: "intc@8000000",
				props: map[string][]byte{
					"compatible": []byte("arm,gic-v3\x00"),
					"reg":        cells(0, 0x08000000, 0, 0x00010000, 0, 0x08060000, 0, 0x00020000),
				},
			},
			{
				name: "cpus",
				children: []testNode{
					{
						name: "cpu@0",
						props: map[string][]byte{
							"reg":     cells(0),
							"phandle": cells(1),
						},
					},
				},
			},
		},
	})
}

func TestParseRejectsBadMagic(t *testing.T) {
	blob := make([]byte, headerSize)
	if _, err := Parse(blob); err == nil {
		t.Fatal("Parse of a zeroed header succeeded, want malformed error")
	}
}

func TestParseRejectsTruncatedBlob(t *testing.T) {
	if _, err := Parse(make([]byte, 4)); err == nil {
		t.Fatal("Parse of a too-short blob succeeded, want malformed error")
	}
}

func TestLookupPathAndRegValue(t *testing.T) {
	tree, err := Parse(sampleTree())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	mem, err := tree.LookupPath("/memory")
	if err != nil {
		t.Fatalf("LookupPath(/memory): %v", err)
	}

	addr, size, err := tree.RegValue(mem)
	if err != nil {
		t.Fatalf("RegValue: %v", err)
	}
	if addr != 0x40000000 || size != 0x10000000 {
		t.Fatalf("RegValue = (0x%x, 0x%x), want (0x40000000, 0x10000000)", addr, size)
	}
}

func TestLookupPathByUnitAddress(t *testing.T) {
	tree, err := Parse(sampleTree())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if _, err := tree.LookupPath("/cpus/cpu@0"); err != nil {
		t.Fatalf("LookupPath(/cpus/cpu@0): %v", err)
	}
	if _, err := tree.LookupPath("/cpus/cpu"); err != nil {
		t.Fatalf("LookupPath(/cpus/cpu) (base-name match): %v", err)
	}
	if _, err := tree.LookupPath("/nonexistent"); err == nil {
		t.Fatal("LookupPath(/nonexistent) succeeded, want not-found error")
	}
}

func TestChildrenAndPropertyValue(t *testing.T) {
	tree, err := Parse(sampleTree())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	children, err := tree.Children(tree.root)
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(children) != 3 {
		t.Fatalf("len(Children(root)) = %d, want 3", len(children))
	}

	compat, err := tree.PropertyValue(tree.root, "compatible")
	if err != nil {
		t.Fatalf("PropertyValue: %v", err)
	}
	if string(compat) != "acme,board\x00" {
		t.Fatalf("compatible = %q, want %q", compat, "acme,board\x00")
	}

	if _, err := tree.PropertyValue(tree.root, "missing"); err == nil {
		t.Fatal("PropertyValue(missing) succeeded, want not-found error")
	}
}

func TestLookupPhandle(t *testing.T) {
	tree, err := Parse(sampleTree())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	node, err := tree.LookupPhandle(1)
	if err != nil {
		t.Fatalf("LookupPhandle(1): %v", err)
	}
	if node.Name != "cpu@0" {
		t.Fatalf("LookupPhandle(1).Name = %q, want cpu@0", node.Name)
	}

	if _, err := tree.LookupPhandle(99); err == nil {
		t.Fatal("LookupPhandle(99) succeeded, want not-found error")
	}
}

func TestInitAndVerifyAndBootRoot(t *testing.T) {
	if _, err := Init(sampleTree()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if !Verify() {
		t.Fatal("Verify() = false after successful Init")
	}

	root, err := BootRoot()
	if err != nil {
		t.Fatalf("BootRoot: %v", err)
	}
	if root.Name != "" {
		t.Fatalf("BootRoot().Name = %q, want empty (root node)", root.Name)
	}
}
