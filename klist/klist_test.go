package klist

import "testing"

type item_t struct {
	val int
	tag Elem_t
}

func mkitem(v int) *item_t {
	it := &item_t{val: v}
	it.tag.Owner = it
	return it
}

func TestAppendPop(t *testing.T) {
	var l List_t
	l.Init()
	if !l.Empty() {
		t.Fatalf("fresh list not empty")
	}
	items := []*item_t{mkitem(1), mkitem(2), mkitem(3)}
	for _, it := range items {
		l.Append(&it.tag)
	}
	if l.Len() != 3 {
		t.Fatalf("len = %d, want 3", l.Len())
	}
	for i := 0; i < 3; i++ {
		got := l.Pop().Owner.(*item_t)
		if got.val != i+1 {
			t.Fatalf("pop %d = %d, want FIFO order", i, got.val)
		}
	}
	if !l.Empty() {
		t.Fatalf("list not empty after pops")
	}
}

func TestPushFront(t *testing.T) {
	var l List_t
	l.Init()
	l.Append(&mkitem(1).tag)
	l.Push(&mkitem(2).tag)
	if got := l.Pop().Owner.(*item_t).val; got != 2 {
		t.Fatalf("pop after push = %d, want 2", got)
	}
}

func TestRemoveMiddle(t *testing.T) {
	var l List_t
	l.Init()
	a, b, c := mkitem(1), mkitem(2), mkitem(3)
	l.Append(&a.tag)
	l.Append(&b.tag)
	l.Append(&c.tag)

	if !l.Find(&b.tag) {
		t.Fatalf("b not found")
	}
	Remove(&b.tag)
	if l.Find(&b.tag) {
		t.Fatalf("b still on list after remove")
	}
	if l.Len() != 2 {
		t.Fatalf("len = %d after remove, want 2", l.Len())
	}
	if got := l.Pop().Owner.(*item_t).val; got != 1 {
		t.Fatalf("head = %d, want 1", got)
	}
	if got := l.Pop().Owner.(*item_t).val; got != 3 {
		t.Fatalf("next = %d, want 3", got)
	}
}

func TestTraversal(t *testing.T) {
	var l List_t
	l.Init()
	for i := 1; i <= 5; i++ {
		l.Append(&mkitem(i).tag)
	}
	hit := l.Traversal(4, func(e *Elem_t, arg int) bool {
		return e.Owner.(*item_t).val == arg
	})
	if hit == nil || hit.Owner.(*item_t).val != 4 {
		t.Fatalf("traversal did not stop at 4")
	}
	miss := l.Traversal(9, func(e *Elem_t, arg int) bool {
		return e.Owner.(*item_t).val == arg
	})
	if miss != nil {
		t.Fatalf("traversal found nonexistent value")
	}
}
