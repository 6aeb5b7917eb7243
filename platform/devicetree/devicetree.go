// Package devicetree is a read-only flattened device tree (FDT) reader: the
// platform wrapper the original kernel builds over libfdt
// (_examples/original_source/platform/devicetree.{c,h}).
//
// The blob format read here (header layout, FDT_BEGIN_NODE/FDT_END_NODE/
// FDT_PROP/FDT_END structure tokens) is grounded on
// _examples/tinyrange-cc/internal/fdt/build.go, the only place in the
// example pack that actually lays out an FDT byte for byte; this package is
// its mirror image, a reader instead of a writer.
package devicetree

import (
	"encoding/binary"

	"github.com/monix-go/monix/kern/errs"
)

const (
	headerSize  = 0x28
	magic       = 0xd00dfeed
	beginNode   = 0x1
	endNode     = 0x2
	propToken   = 0x3
	nopToken    = 0x4
	endToken    = 0x9
	propNameMax = 32
)

// Node is a resolved device tree node: its name and the byte offset of its
// FDT_BEGIN_NODE token in the structure block, from which Children and
// Properties can both be re-walked (DeviceTreeNode/DTNode).
type Node struct {
	Name   string
	Offset int
}

// Tree is a parsed, read-only device tree blob (the boot device tree, set
// up once by Init and held for the kernel's lifetime).
type Tree struct {
	blob       []byte
	offStruct  uint32
	offStrings uint32
	sizeStruct uint32
	version    uint32
	root       Node
}

var boot *Tree

// Init parses the FDT blob at base[:size] and records it as the boot device
// tree (DeviceTreeInit). Must be called exactly once, early in bring-up,
// before any lookup function runs.
func Init(blob []byte) (*Tree, error) {
	t, err := Parse(blob)
	if err != nil {
		return nil, err
	}
	boot = t
	return t, nil
}

// Verify reports whether the boot device tree was successfully initialised
// (DeviceTreeVerify).
func Verify() bool { return boot != nil }

// BootRoot returns the boot device tree's root node
// (BootDeviceTreeGetRootNode).
func BootRoot() (Node, error) {
	if boot == nil {
		return Node{}, errs.ErrNotFound
	}
	return boot.root, nil
}

// Parse validates an FDT header and returns a Tree ready for lookups
// (DeviceTreeInit's libfdt fdt_check_header equivalent).
func Parse(blob []byte) (*Tree, error) {
	if len(blob) < headerSize {
		return nil, errs.ErrMalformed
	}
	if binary.BigEndian.Uint32(blob[0:4]) != magic {
		return nil, errs.ErrMalformed
	}

	totalSize := binary.BigEndian.Uint32(blob[4:8])
	if int(totalSize) > len(blob) {
		return nil, errs.ErrMalformed
	}

	t := &Tree{
		blob:       blob,
		offStruct:  binary.BigEndian.Uint32(blob[8:12]),
		offStrings: binary.BigEndian.Uint32(blob[12:16]),
		version:    binary.BigEndian.Uint32(blob[20:24]),
		sizeStruct: binary.BigEndian.Uint32(blob[36:40]),
	}

	root, _, err := t.parseNode(int(t.offStruct))
	if err != nil {
		return nil, err
	}
	t.root = root

	return t, nil
}

// parseNode reads the node beginning at the FDT_BEGIN_NODE token at off and
// returns it along with the structure-block offset immediately after its
// matching FDT_END_NODE.
func (t *Tree) parseNode(off int) (Node, int, error) {
	if off+4 > len(t.blob) {
		return Node{}, 0, errs.ErrMalformed
	}
	if binary.BigEndian.Uint32(t.blob[off:off+4]) != beginNode {
		return Node{}, 0, errs.ErrMalformed
	}

	nameStart := off + 4
	nameEnd := nameStart
	for nameEnd < len(t.blob) && t.blob[nameEnd] != 0 {
		nameEnd++
	}
	if nameEnd >= len(t.blob) {
		return Node{}, 0, errs.ErrMalformed
	}

	node := Node{Name: string(t.blob[nameStart:nameEnd]), Offset: off}

	cursor := align4(nameEnd + 1)
	depth := 1
	for depth > 0 {
		if cursor+4 > len(t.blob) {
			return Node{}, 0, errs.ErrMalformed
		}
		tok := binary.BigEndian.Uint32(t.blob[cursor : cursor+4])
		cursor += 4

		switch tok {
		case beginNode:
			for cursor < len(t.blob) && t.blob[cursor] != 0 {
				cursor++
			}
			cursor = align4(cursor + 1)
			depth++
		case endNode:
			depth--
		case propToken:
			if cursor+8 > len(t.blob) {
				return Node{}, 0, errs.ErrMalformed
			}
			length := binary.BigEndian.Uint32(t.blob[cursor : cursor+4])
			cursor += 8 // length + nameoff
			cursor = align4(cursor + int(length))
		case nopToken:
			// no payload
		case endToken:
			return Node{}, 0, errs.ErrMalformed
		default:
			return Node{}, 0, errs.ErrMalformed
		}
	}

	return node, cursor, nil
}

func align4(off int) int { return (off + 3) &^ 3 }
