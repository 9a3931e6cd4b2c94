// Package ioq is the bounded keyboard ring: a 64-byte circular buffer with
// at most one blocked producer and one blocked consumer. The interrupt
// handler is the only producer and never blocks; it checks for space first.
package ioq

import "tinyos/ksync"
import "tinyos/mach"
import "tinyos/thread"

/// BUF_SIZE is the ring capacity; one slot stays empty to tell full from
/// empty, so BUF_SIZE-1 bytes fit.
const BUF_SIZE = 64

/// Ioqueue_t is the ring. head is the producer index, tail the consumer
/// index; head==tail means empty and next(head)==tail means full.
type Ioqueue_t struct {
	lock     ksync.Lock_t
	producer *thread.Task_t
	consumer *thread.Task_t
	buf      [BUF_SIZE]byte
	head     int
	tail     int
}

/// Ioqueue_init empties the ring.
func (ioq *Ioqueue_t) Ioqueue_init() {
	ioq.lock.Lock_init()
	ioq.producer = nil
	ioq.consumer = nil
	ioq.head = 0
	ioq.tail = 0
}

func next_pos(pos int) int {
	return (pos + 1) % BUF_SIZE
}

/// Full reports a full ring. Interrupts must be off.
func (ioq *Ioqueue_t) Full() bool {
	if mach.Intr_get_status() {
		mach.Panic("ioq full-check with interrupts on")
	}
	return next_pos(ioq.head) == ioq.tail
}

/// Empty reports an empty ring. Interrupts must be off.
func (ioq *Ioqueue_t) Empty() bool {
	if mach.Intr_get_status() {
		mach.Panic("ioq empty-check with interrupts on")
	}
	return ioq.head == ioq.tail
}

// ioq_wait parks the current task in the given waiter slot; only one waiter
// may occupy a slot.
func ioq_wait(waiter **thread.Task_t) {
	if *waiter != nil {
		mach.Panic("ioq waiter slot occupied")
	}
	*waiter = thread.Running_thread()
	thread.Thread_block(thread.TASK_BLOCKED)
}

func ioq_wakeup(waiter **thread.Task_t) {
	if *waiter == nil {
		mach.Panic("ioq wakeup of empty slot")
	}
	thread.Thread_unblock(*waiter)
	*waiter = nil
}

// Getchar takes the oldest byte, blocking in the consumer slot while the
// ring is empty, and wakes a blocked producer afterwards.
func (ioq *Ioqueue_t) Getchar() byte {
	if mach.Intr_get_status() {
		mach.Panic("ioq getchar with interrupts on")
	}
	for ioq.Empty() {
		ioq.lock.Acquire()
		ioq_wait(&ioq.consumer)
		ioq.lock.Release()
	}

	ch := ioq.buf[ioq.tail]
	ioq.tail = next_pos(ioq.tail)

	if ioq.producer != nil {
		ioq_wakeup(&ioq.producer)
	}
	return ch
}

// Putchar appends a byte, blocking in the producer slot while the ring is
// full, and wakes a blocked consumer afterwards.
func (ioq *Ioqueue_t) Putchar(ch byte) {
	if mach.Intr_get_status() {
		mach.Panic("ioq putchar with interrupts on")
	}
	for ioq.Full() {
		ioq.lock.Acquire()
		ioq_wait(&ioq.producer)
		ioq.lock.Release()
	}
	ioq.buf[ioq.head] = ch
	ioq.head = next_pos(ioq.head)

	if ioq.consumer != nil {
		ioq_wakeup(&ioq.consumer)
	}
}
