// Package list implements the circular intrusive doubly-linked list used by
// the zone allocator for its free/used element lists. Tasks, threads and
// processors are kept in plain slices instead.
//
// Grounded on _examples/original_source/libkern/list.h. The C original
// threads a bare struct list_head through every container and recovers the
// owning struct with container_of(ptr, type, member). Here the only
// embedding is the zone allocator's element header, which holds a Node as
// its first field; a Node carries nothing but its next/prev links, and
// zalloc gets the owning header back with an unsafe.Pointer conversion
// (elementMetaOf).
package list

// Node is one link in a circular doubly-linked list. The zero value is not
// a valid empty list; use Init or NewHead.
type Node struct {
	next, prev *Node
}

// NewHead returns a new, empty list head.
func NewHead() *Node {
	n := &Node{}
	n.Init()
	return n
}

// Init resets n to be an empty list head (INIT_LIST_HEAD).
func (n *Node) Init() {
	n.next = n
	n.prev = n
}

// Empty reports whether head (a list head, not a member) has no entries.
func (head *Node) Empty() bool {
	return head.next == head
}

// addBetween links n between prev and next (__list_add).
func addBetween(n, prev, next *Node) {
	next.prev = n
	n.next = next
	n.prev = prev
	prev.next = n
}

// AddHead inserts n right after head (list_add); useful for stacks.
func (head *Node) AddHead(n *Node) {
	addBetween(n, head, head.next)
}

// AddTail inserts n right before head (list_add_tail); useful for queues.
func (head *Node) AddTail(n *Node) {
	addBetween(n, head.prev, head)
}

// Del unlinks n from whatever list it is on (list_del). n is left in a
// detached, reusable state.
func (n *Node) Del() {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.next = nil
	n.prev = nil
}

// Move relinks n as the last entry before head (list_move: del + add_tail).
func (head *Node) Move(n *Node) {
	n.prev.next = n.next
	n.next.prev = n.prev
	addBetween(n, head.prev, head)
}

// Next returns the next node after n; after the last entry that is the head
// itself, never nil (callers compare against the head they started from; see
// IsLast).
func (n *Node) Next() *Node { return n.next }

// Prev returns the node preceding n.
func (n *Node) Prev() *Node { return n.prev }

// First returns the first entry on the list headed by head, or nil if empty.
func (head *Node) First() *Node {
	if head.Empty() {
		return nil
	}
	return head.next
}

// Last returns the last entry on the list headed by head, or nil if empty.
func (head *Node) Last() *Node {
	if head.Empty() {
		return nil
	}
	return head.prev
}

// IsLast reports whether n is the last entry before head (list_is_last).
func (n *Node) IsLast(head *Node) bool {
	return n.next == head
}

// Each calls fn for every entry in the list headed by head, in order,
// stopping early if fn returns false (list_for_each_entry).
func (head *Node) Each(fn func(n *Node) bool) {
	for n := head.next; n != head; n = n.next {
		if !fn(n) {
			return
		}
	}
}
