// Package orderedlist - provides an arena backed doubly linked list with
// comparator driven sorted insertion.
//
// Nodes live in a slice owned by the list and are addressed by Handle values.
// Callers never see node pointers, so removing a node can never leave a
// dangling reference behind: a removed Handle is detected as stale.
package orderedlist

import (
	"github.com/pkg/errors"
)

var (
	// ErrInvalidHandle is returned when a Handle is nil, out of range or refers
	// to a node that has already been removed.
	ErrInvalidHandle = errors.New("orderedlist: invalid or stale handle")
	// ErrCorrupted is returned by Validate when the links disagree with the size.
	ErrCorrupted = errors.New("orderedlist: structure corrupted")
)

// none marks an absent link inside the arena.
const none int32 = -1

// Handle addresses one node of a List. The zero Handle is nil.
type Handle struct {
	index int32
	gen   uint32
}

// IsNil reports whether h refers to no node.
func (h Handle) IsNil() bool {
	return h.gen == 0
}

// CompareFunc orders two values. A positive result means a sorts before b.
type CompareFunc[T any] func(a, b T) int

type node[T any] struct {
	value T
	prev  int32
	next  int32
	gen   uint32
	used  bool
}

// List is a doubly linked list stored in an arena.
//
// List is not safe for concurrent use; see Safe for the lock guarded variant.
type List[T any] struct {
	nodes   []node[T]
	free    []int32
	head    int32
	tail    int32
	size    int
	compare CompareFunc[T]
}

// New creates an empty list.
//
// Arguments:
// - compare: Ordering used by SortedInsert. May be nil, in which case
// SortedInsert appends at the tail.
//
// Returns:
// - The empty list.
//
// @example
//
//	l := orderedlist.New(func(a, b float32) int {
//	    if a > b {
//	        return 1
//	    }
//	    return 0
//	})
func New[T any](compare CompareFunc[T]) *List[T] {
	return &List[T]{
		head:    none,
		tail:    none,
		compare: compare,
	}
}

// Len returns the number of nodes in the list.
func (l *List[T]) Len() int {
	return l.size
}

// Front returns the head node, or a nil Handle when the list is empty.
func (l *List[T]) Front() Handle {
	return l.handle(l.head)
}

// Back returns the tail node, or a nil Handle when the list is empty.
func (l *List[T]) Back() Handle {
	return l.handle(l.tail)
}

// Next returns the node after h. It returns a nil Handle at the tail or when h
// is not valid.
func (l *List[T]) Next(h Handle) Handle {
	if !l.valid(h) {
		return Handle{}
	}
	return l.handle(l.nodes[h.index].next)
}

// Prev returns the node before h. It returns a nil Handle at the head or when h
// is not valid.
func (l *List[T]) Prev(h Handle) Handle {
	if !l.valid(h) {
		return Handle{}
	}
	return l.handle(l.nodes[h.index].prev)
}

// Get returns the value stored at h.
func (l *List[T]) Get(h Handle) (T, error) {
	if !l.valid(h) {
		var zero T
		return zero, ErrInvalidHandle
	}
	return l.nodes[h.index].value, nil
}

// PushFront inserts v at the head of the list.
func (l *List[T]) PushFront(v T) Handle {
	i := l.alloc(v)
	l.linkBefore(i, l.head)
	return l.handle(i)
}

// PushBack inserts v at the tail of the list.
func (l *List[T]) PushBack(v T) Handle {
	i := l.alloc(v)
	l.linkBefore(i, none)
	return l.handle(i)
}

// InsertBefore inserts v immediately before the node at.
func (l *List[T]) InsertBefore(at Handle, v T) (Handle, error) {
	if !l.valid(at) {
		return Handle{}, errors.Wrap(ErrInvalidHandle, "insert before")
	}
	i := l.alloc(v)
	l.linkBefore(i, at.index)
	return l.handle(i), nil
}

// InsertAfter inserts v immediately after the node at.
func (l *List[T]) InsertAfter(at Handle, v T) (Handle, error) {
	if !l.valid(at) {
		return Handle{}, errors.Wrap(ErrInvalidHandle, "insert after")
	}
	i := l.alloc(v)
	l.linkBefore(i, l.nodes[at.index].next)
	return l.handle(i), nil
}

// Remove unlinks the node at h, releases its slot and returns its value.
// The handle and every copy of it become stale.
func (l *List[T]) Remove(h Handle) (T, error) {
	if !l.valid(h) {
		var zero T
		return zero, errors.Wrap(ErrInvalidHandle, "remove")
	}
	return l.release(h.index), nil
}

// PopFront removes the head node and returns its value. ok is false when the
// list is empty.
func (l *List[T]) PopFront() (v T, ok bool) {
	if l.head == none {
		return v, false
	}
	return l.release(l.head), true
}

// PopBack removes the tail node and returns its value. ok is false when the
// list is empty.
func (l *List[T]) PopBack() (v T, ok bool) {
	if l.tail == none {
		return v, false
	}
	return l.release(l.tail), true
}

// Find scans from the head and returns the first node whose value satisfies
// match. ok is false when no node matches.
func (l *List[T]) Find(match func(v T) bool) (h Handle, ok bool) {
	for i := l.head; i != none; i = l.nodes[i].next {
		if match(l.nodes[i].value) {
			return l.handle(i), true
		}
	}
	return Handle{}, false
}

// ForEach visits every node from head to tail until fn returns false.
// fn must not mutate the list.
func (l *List[T]) ForEach(fn func(h Handle, v T) bool) {
	for i := l.head; i != none; i = l.nodes[i].next {
		if !fn(l.handle(i), l.nodes[i].value) {
			return
		}
	}
}

// ForEachReverse visits every node from tail to head until fn returns false.
// fn must not mutate the list.
func (l *List[T]) ForEachReverse(fn func(h Handle, v T) bool) {
	for i := l.tail; i != none; i = l.nodes[i].prev {
		if !fn(l.handle(i), l.nodes[i].value) {
			return
		}
	}
}

// SortedInsert inserts v before the first node that v compares greater than,
// scanning from the head. Values that compare equal to existing nodes are
// placed after them, so insertion is stable.
//
// The result is only ordered if every previous insertion also went through
// SortedInsert; mixing with PushFront/PushBack/Insert* is the caller's
// responsibility.
func (l *List[T]) SortedInsert(v T) Handle {
	at := none
	if l.compare != nil {
		for i := l.head; i != none; i = l.nodes[i].next {
			if l.compare(v, l.nodes[i].value) > 0 {
				at = i
				break
			}
		}
	}
	i := l.alloc(v)
	l.linkBefore(i, at)
	return l.handle(i)
}

// Values returns the values from head to tail.
func (l *List[T]) Values() []T {
	out := make([]T, 0, l.size)
	for i := l.head; i != none; i = l.nodes[i].next {
		out = append(out, l.nodes[i].value)
	}
	return out
}

// Clear releases every node. All outstanding handles become stale.
func (l *List[T]) Clear() {
	for l.head != none {
		l.release(l.head)
	}
}

// Validate checks the head/tail sentinels and that forward and backward
// traversals both count exactly Len nodes.
func (l *List[T]) Validate() error {
	if l.head != none && l.nodes[l.head].prev != none {
		return errors.Wrap(ErrCorrupted, "head has a predecessor")
	}
	if l.tail != none && l.nodes[l.tail].next != none {
		return errors.Wrap(ErrCorrupted, "tail has a successor")
	}
	if (l.head == none) != (l.tail == none) {
		return errors.Wrap(ErrCorrupted, "head and tail disagree on emptiness")
	}

	forward := 0
	for i := l.head; i != none; i = l.nodes[i].next {
		forward++
		if forward > l.size {
			break
		}
	}
	if forward != l.size {
		return errors.Wrapf(ErrCorrupted, "forward count %d, size %d", forward, l.size)
	}

	backward := 0
	for i := l.tail; i != none; i = l.nodes[i].prev {
		backward++
		if backward > l.size {
			break
		}
	}
	if backward != l.size {
		return errors.Wrapf(ErrCorrupted, "backward count %d, size %d", backward, l.size)
	}
	return nil
}

func (l *List[T]) handle(i int32) Handle {
	if i == none {
		return Handle{}
	}
	return Handle{index: i, gen: l.nodes[i].gen}
}

func (l *List[T]) valid(h Handle) bool {
	if h.IsNil() || h.index < 0 || int(h.index) >= len(l.nodes) {
		return false
	}
	n := &l.nodes[h.index]
	return n.used && n.gen == h.gen
}

// alloc takes a slot from the free list or grows the arena. Generations start
// at 1 so the zero Handle never matches a live node.
func (l *List[T]) alloc(v T) int32 {
	var i int32
	if n := len(l.free); n > 0 {
		i = l.free[n-1]
		l.free = l.free[:n-1]
	} else {
		l.nodes = append(l.nodes, node[T]{})
		i = int32(len(l.nodes) - 1)
	}
	n := &l.nodes[i]
	n.value = v
	n.prev = none
	n.next = none
	n.gen++
	if n.gen == 0 {
		n.gen = 1
	}
	n.used = true
	return i
}

// linkBefore links the detached node i in front of at. at == none appends.
func (l *List[T]) linkBefore(i, at int32) {
	n := &l.nodes[i]
	if at == none {
		n.prev = l.tail
		n.next = none
		if l.tail != none {
			l.nodes[l.tail].next = i
		} else {
			l.head = i
		}
		l.tail = i
	} else {
		prev := l.nodes[at].prev
		n.prev = prev
		n.next = at
		l.nodes[at].prev = i
		if prev != none {
			l.nodes[prev].next = i
		} else {
			l.head = i
		}
	}
	l.size++
}

// release unlinks node i and returns its slot to the free list.
func (l *List[T]) release(i int32) T {
	n := &l.nodes[i]
	if n.prev != none {
		l.nodes[n.prev].next = n.next
	} else {
		l.head = n.next
	}
	if n.next != none {
		l.nodes[n.next].prev = n.prev
	} else {
		l.tail = n.prev
	}

	v := n.value
	var zero T
	n.value = zero
	n.prev = none
	n.next = none
	n.used = false
	l.free = append(l.free, i)
	l.size--
	return v
}
