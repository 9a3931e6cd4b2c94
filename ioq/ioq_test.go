package ioq

import "testing"

import "tinyos/mach"
import "tinyos/mem"
import "tinyos/thread"

func boot(t *testing.T) {
	t.Helper()
	mach.Bootmem(32 << 20)
	mem.Mem_init()
	thread.Thread_init()
}

func spin(t *testing.T, cond func() bool) {
	t.Helper()
	for i := 0; i < 1_000_000; i++ {
		if cond() {
			return
		}
		thread.Thread_yield()
	}
	t.Fatalf("condition never held")
}

func TestPutGet(t *testing.T) {
	boot(t)
	var q Ioqueue_t
	q.Ioqueue_init()

	old := mach.Intr_disable()
	for _, c := range []byte("hello") {
		q.Putchar(c)
	}
	mach.Intr_set_status(old)

	got := make([]byte, 0, 5)
	old = mach.Intr_disable()
	for i := 0; i < 5; i++ {
		got = append(got, q.Getchar())
	}
	mach.Intr_set_status(old)
	if string(got) != "hello" {
		t.Fatalf("ring returned %q", got)
	}
}

func TestConsumerBlocksOnEmpty(t *testing.T) {
	boot(t)
	var q Ioqueue_t
	q.Ioqueue_init()

	var got byte
	done := false
	thread.Thread_start("consumer", 8, func(arg interface{}) {
		old := mach.Intr_disable()
		got = q.Getchar()
		mach.Intr_set_status(old)
		done = true
	}, nil)

	for i := 0; i < 50; i++ {
		thread.Thread_yield()
	}
	if done {
		t.Fatalf("consumer read from empty ring")
	}

	old := mach.Intr_disable()
	q.Putchar('x')
	mach.Intr_set_status(old)
	spin(t, func() bool { return done })
	if got != 'x' {
		t.Fatalf("consumer got %q", got)
	}
}

// After BUF_SIZE-1 inserts without a consumer the next insert blocks; any
// read resumes the blocked producer.
func TestProducerBlocksOnFull(t *testing.T) {
	boot(t)
	var q Ioqueue_t
	q.Ioqueue_init()

	produced := 0
	thread.Thread_start("producer", 8, func(arg interface{}) {
		old := mach.Intr_disable()
		for i := 0; i < BUF_SIZE; i++ {
			q.Putchar(byte(i))
			produced++
		}
		mach.Intr_set_status(old)
	}, nil)

	spin(t, func() bool { return produced == BUF_SIZE-1 })
	for i := 0; i < 50; i++ {
		thread.Thread_yield()
	}
	if produced != BUF_SIZE-1 {
		t.Fatalf("producer inserted %d into a %d-slot ring", produced, BUF_SIZE-1)
	}

	old := mach.Intr_disable()
	c := q.Getchar()
	mach.Intr_set_status(old)
	if c != 0 {
		t.Fatalf("first byte %d", c)
	}
	spin(t, func() bool { return produced == BUF_SIZE })
}
