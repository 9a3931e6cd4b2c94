// Package ksync provides the kernel's two blocking primitives: a counting
// semaphore with FIFO waiters and a reentrant lock built on a binary
// semaphore. Mutual exclusion inside the primitives themselves comes from
// disabling interrupts; the machine is a uniprocessor and the scheduler only
// runs from interrupt handlers or voluntary calls.
//
// The scheduler is wired in at thread-init time through Sched_i so that the
// memory manager (which the thread package depends on) can still take locks.
// Before the scheduler exists nothing contends, so Down never has to block.
package ksync

import "tinyos/klist"
import "tinyos/mach"

/// Sched_i is the slice of the scheduler the primitives need.
type Sched_i interface {
	// Block_on appends the running task's wait tag to w and blocks it.
	Block_on(w *klist.List_t)
	// Unblock moves a task taken from a wait list back to the ready list.
	Unblock(owner interface{})
	// Running identifies the running task; used for lock ownership.
	Running() interface{}
}

var sched Sched_i

/// Set_sched installs the scheduler. Called once from thread init.
func Set_sched(s Sched_i) {
	sched = s
}

/// Sema_t is a counting semaphore. Waiters are served in FIFO order.
type Sema_t struct {
	value   uint8
	waiters klist.List_t
}

/// Sema_init sets the initial value and empties the wait list.
func (s *Sema_t) Sema_init(value uint8) {
	s.value = value
	s.waiters.Init()
}

// Down decrements the semaphore, blocking while the value is zero. Must not
// be called from interrupt context.
func (s *Sema_t) Down() {
	old := mach.Intr_disable()
	for s.value == 0 {
		if sched == nil {
			mach.Panic("sema down would block before scheduler init")
		}
		sched.Block_on(&s.waiters)
	}
	s.value--
	mach.Intr_set_status(old)
}

// Up increments the semaphore and wakes the longest-waiting task, if any.
// Safe from interrupt context; the wait-list edit runs with interrupts off.
func (s *Sema_t) Up() {
	old := mach.Intr_disable()
	if !s.waiters.Empty() {
		sched.Unblock(s.waiters.Pop().Owner)
	}
	s.value++
	mach.Intr_set_status(old)
}

/// Binary_down is Down plus the binary-semaphore invariant check.
func (s *Sema_t) Binary_down() {
	s.Down()
	if s.value != 0 {
		mach.Panic("binary semaphore value %d", s.value)
	}
}

/// Binary_up is Up plus the binary-semaphore invariant check.
func (s *Sema_t) Binary_up() {
	old := mach.Intr_disable()
	if s.value != 0 {
		mach.Panic("binary semaphore up with value %d", s.value)
	}
	if !s.waiters.Empty() {
		sched.Unblock(s.waiters.Pop().Owner)
	}
	s.value++
	mach.Intr_set_status(old)
}

/// Lock_t is a reentrant mutex. holder is non-nil exactly while the
/// underlying semaphore's value is zero.
type Lock_t struct {
	holder           interface{}
	holder_repeat_nr uint32
	sema             Sema_t
}

/// Lock_init prepares an unowned lock.
func (l *Lock_t) Lock_init() {
	l.holder = nil
	l.holder_repeat_nr = 0
	l.sema.Sema_init(1)
}

// Acquire takes the lock, blocking behind earlier acquirers. Reacquisition by
// the holder only bumps the reentry count.
func (l *Lock_t) Acquire() {
	cur := running()
	if cur == nil || l.holder != cur {
		l.sema.Binary_down()
		l.holder = cur
		if l.holder_repeat_nr != 0 {
			mach.Panic("fresh lock holder with reentry count %d", l.holder_repeat_nr)
		}
		l.holder_repeat_nr = 1
	} else {
		l.holder_repeat_nr++
	}
}

// Release drops one acquisition; the lock is only handed over when the count
// returns to zero.
func (l *Lock_t) Release() {
	if l.holder != running() {
		mach.Panic("lock released by non-holder")
	}
	if l.holder_repeat_nr > 1 {
		l.holder_repeat_nr--
		return
	}
	if l.holder_repeat_nr != 1 {
		mach.Panic("lock reentry count %d", l.holder_repeat_nr)
	}
	l.holder = nil
	l.holder_repeat_nr = 0
	l.sema.Binary_up()
}

/// Holder reports whether the running task holds the lock.
func (l *Lock_t) Holder() bool {
	return l.holder != nil && l.holder == running()
}

func running() interface{} {
	if sched == nil {
		// boot context, before the main thread has a PCB
		return nil
	}
	return sched.Running()
}
