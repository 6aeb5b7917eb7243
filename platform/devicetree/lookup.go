package devicetree

import (
	"encoding/binary"
	"strings"

	"github.com/monix-go/monix/kern/defaults"
	"github.com/monix-go/monix/kern/errs"
)

// property is one FDT_PROP token's decoded payload.
type property struct {
	name  string
	value []byte
}

// walk enumerates node's immediate children and properties in a single
// pass over the structure block, returning both plus the offset just past
// the node's matching FDT_END_NODE.
func (t *Tree) walk(node Node) ([]Node, []property, int, error) {
	nameEnd := node.Offset + 4
	for nameEnd < len(t.blob) && t.blob[nameEnd] != 0 {
		nameEnd++
	}

	cursor := align4(nameEnd + 1)

	var children []Node
	var props []property

	for {
		if cursor+4 > len(t.blob) {
			return nil, nil, 0, errs.ErrMalformed
		}
		tok := binary.BigEndian.Uint32(t.blob[cursor : cursor+4])

		switch tok {
		case beginNode:
			child, next, err := t.parseNode(cursor)
			if err != nil {
				return nil, nil, 0, err
			}
			children = append(children, child)
			cursor = next
		case propToken:
			p, next, err := t.parseProp(cursor)
			if err != nil {
				return nil, nil, 0, err
			}
			props = append(props, p)
			cursor = next
		case nopToken:
			cursor += 4
		case endNode:
			return children, props, cursor + 4, nil
		default:
			return nil, nil, 0, errs.ErrMalformed
		}
	}
}

func (t *Tree) parseProp(off int) (property, int, error) {
	if off+8 > len(t.blob) {
		return property{}, 0, errs.ErrMalformed
	}
	length := binary.BigEndian.Uint32(t.blob[off+4 : off+8])
	nameOff := binary.BigEndian.Uint32(t.blob[off+8 : off+12])

	valStart := off + 12
	valEnd := valStart + int(length)
	if valEnd > len(t.blob) {
		return property{}, 0, errs.ErrMalformed
	}

	nameStart := int(t.offStrings) + int(nameOff)
	nameEnd := nameStart
	for nameEnd < len(t.blob) && t.blob[nameEnd] != 0 {
		nameEnd++
	}

	p := property{
		name:  string(t.blob[nameStart:nameEnd]),
		value: t.blob[valStart:valEnd],
	}

	return p, align4(valEnd), nil
}

// Children returns node's immediate children, in document order
// (DeviceTreeNodeFirstSubnode/DeviceTreeNodeNextSubnode driven by an
// Iterator in the original; here a single call suffices since Go can
// just return a slice).
func (t *Tree) Children(node Node) ([]Node, error) {
	children, _, _, err := t.walk(node)
	return children, err
}

// PropertyValue returns the raw bytes of node's propName property
// (DeviceTreeLookupPropertyValue).
func (t *Tree) PropertyValue(node Node, propName string) ([]byte, error) {
	_, props, _, err := t.walk(node)
	if err != nil {
		return nil, err
	}
	for _, p := range props {
		if p.name == propName {
			return p.value, nil
		}
	}
	return nil, errs.ErrNotFound
}

// LookupPath resolves a slash-separated absolute path ("/cpus/cpu-map") to
// its node, walking one path segment at a time from the root
// (DeviceTreeLookupNode).
func (t *Tree) LookupPath(path string) (Node, error) {
	if path == "/" || path == "" {
		return t.root, nil
	}

	cur := t.root
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		children, err := t.Children(cur)
		if err != nil {
			return Node{}, err
		}

		found := false
		for _, c := range children {
			if c.Name == seg || nodeBaseName(c.Name) == seg {
				cur = c
				found = true
				break
			}
		}
		if !found {
			return Node{}, errs.ErrNotFound
		}
	}

	return cur, nil
}

// nodeBaseName strips a unit address ("cpu@0" -> "cpu") the way device
// tree node names are conventionally matched when searching by name alone.
func nodeBaseName(name string) string {
	if i := strings.IndexByte(name, '@'); i >= 0 {
		return name[:i]
	}
	return name
}

// LookupPhandle resolves a phandle value (a node's "phandle" property) to
// its node by scanning the whole tree (DeviceTreeLookupNodeByPhandle). The
// original's libfdt keeps a phandle offset cache; this kernel's device
// trees are small enough (a handful of CPU nodes) that a depth-first scan
// is simpler and fast enough not to need one.
func (t *Tree) LookupPhandle(phandle uint32) (Node, error) {
	found, ok, err := t.scanPhandle(t.root, phandle)
	if err != nil {
		return Node{}, err
	}
	if !ok {
		return Node{}, errs.ErrNotFound
	}
	return found, nil
}

func (t *Tree) scanPhandle(node Node, phandle uint32) (Node, bool, error) {
	children, props, _, err := t.walk(node)
	if err != nil {
		return Node{}, false, err
	}

	for _, p := range props {
		if p.name == "phandle" && len(p.value) >= 4 {
			if binary.BigEndian.Uint32(p.value) == phandle {
				return node, true, nil
			}
		}
	}

	for _, c := range children {
		found, ok, err := t.scanPhandle(c, phandle)
		if err != nil {
			return Node{}, false, err
		}
		if ok {
			return found, true, nil
		}
	}

	return Node{}, false, nil
}

// RegValue decodes node's "reg" property as an (address, size) pair, each
// defaults.DeviceTreeCellSize 32-bit cells wide (DeviceTreeLookupRegValue).
func (t *Tree) RegValue(node Node) (addr, size uint64, err error) {
	raw, err := t.PropertyValue(node, "reg")
	if err != nil {
		return 0, 0, err
	}

	cellBytes := defaults.DeviceTreeCellSize * 4
	if len(raw) < cellBytes*2 {
		return 0, 0, errs.ErrMalformed
	}

	addr = readCells(raw[0:cellBytes])
	size = readCells(raw[cellBytes : cellBytes*2])

	return addr, size, nil
}

func readCells(b []byte) uint64 {
	var v uint64
	for len(b) >= 4 {
		v = (v << 32) | uint64(binary.BigEndian.Uint32(b[:4]))
		b = b[4:]
	}
	return v
}
