// Package klist is the kernel's intrusive doubly linked list. A node is
// embedded in its owning structure and records the owner, so membership costs
// no allocation and removal is O(1). Callers serialize access themselves
// (interrupts off or a lock held), as everywhere else in the kernel.
package klist

/// Elem_t is the embedded list node. Owner points back at the structure the
/// node is embedded in.
type Elem_t struct {
	Prev  *Elem_t
	Next  *Elem_t
	Owner interface{}
}

/// List_t chains Elem_t nodes between two sentinels.
type List_t struct {
	head Elem_t
	tail Elem_t
}

/// Init resets the list to empty.
func (l *List_t) Init() {
	l.head.Prev = nil
	l.head.Next = &l.tail
	l.tail.Prev = &l.head
	l.tail.Next = nil
}

/// Empty reports whether the list has no elements.
func (l *List_t) Empty() bool {
	return l.head.Next == &l.tail
}

func insert_before(before, elem *Elem_t) {
	elem.Prev = before.Prev
	elem.Next = before
	before.Prev.Next = elem
	before.Prev = elem
}

/// Append adds elem at the back.
func (l *List_t) Append(elem *Elem_t) {
	if l.Find(elem) {
		panic("elem already on list")
	}
	insert_before(&l.tail, elem)
}

/// Push adds elem at the front.
func (l *List_t) Push(elem *Elem_t) {
	if l.Find(elem) {
		panic("elem already on list")
	}
	insert_before(l.head.Next, elem)
}

/// Remove unlinks elem from whatever list it is on.
func Remove(elem *Elem_t) {
	elem.Prev.Next = elem.Next
	elem.Next.Prev = elem.Prev
	elem.Prev, elem.Next = nil, nil
}

/// Pop unlinks and returns the front element. The list must not be empty.
func (l *List_t) Pop() *Elem_t {
	if l.Empty() {
		panic("pop of empty list")
	}
	e := l.head.Next
	Remove(e)
	return e
}

/// Find reports whether elem is on this list.
func (l *List_t) Find(elem *Elem_t) bool {
	for e := l.head.Next; e != &l.tail; e = e.Next {
		if e == elem {
			return true
		}
	}
	return false
}

// Traversal applies f to each element in order until f returns true, and
// returns the element that stopped the walk, or nil.
func (l *List_t) Traversal(arg int, f func(*Elem_t, int) bool) *Elem_t {
	for e := l.head.Next; e != &l.tail; e = e.Next {
		if f(e, arg) {
			return e
		}
	}
	return nil
}

/// Len counts the elements.
func (l *List_t) Len() int {
	n := 0
	for e := l.head.Next; e != &l.tail; e = e.Next {
		n++
	}
	return n
}
