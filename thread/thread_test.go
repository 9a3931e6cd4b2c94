package thread_test

import "testing"
import "time"

import "tinyos/ksync"
import "tinyos/mach"
import "tinyos/mem"
import . "tinyos/thread"
import "tinyos/timer"

func boot(t *testing.T) {
	t.Helper()
	mach.Bootmem(32 << 20)
	mem.Mem_init()
	Thread_init()
}

// spin yields until cond holds; the boot task drives the other threads this
// way because nothing preempts without the timer.
func spin(t *testing.T, cond func() bool) {
	t.Helper()
	for i := 0; i < 1_000_000; i++ {
		if cond() {
			return
		}
		Thread_yield()
	}
	t.Fatalf("condition never held")
}

func TestThreadRuns(t *testing.T) {
	boot(t)
	done := false
	tk := Thread_start("worker", 8, func(arg interface{}) {
		if arg.(int) != 42 {
			t.Errorf("arg = %v", arg)
		}
		done = true
	}, 42)
	if tk.Pid == 0 {
		t.Fatalf("no pid")
	}
	spin(t, func() bool { return done })
}

func TestRoundRobinOrder(t *testing.T) {
	boot(t)
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		Thread_start("w", 8, func(arg interface{}) {
			order = append(order, i)
		}, nil)
	}
	spin(t, func() bool { return len(order) == 3 })
	for i, v := range order {
		if v != i {
			t.Fatalf("run order %v, want creation order", order)
		}
	}
}

func TestSemaphoreFIFO(t *testing.T) {
	boot(t)
	var sema ksync.Sema_t
	sema.Sema_init(0)
	var woke []int
	started := 0
	for i := 0; i < 3; i++ {
		i := i
		Thread_start("waiter", 8, func(arg interface{}) {
			started++
			sema.Down()
			woke = append(woke, i)
		}, nil)
	}
	spin(t, func() bool { return started == 3 })

	for i := 0; i < 3; i++ {
		sema.Up()
		want := i + 1
		spin(t, func() bool { return len(woke) == want })
	}
	for i, v := range woke {
		if v != i {
			t.Fatalf("wake order %v, want FIFO", woke)
		}
	}
}

func TestMutexReentrant(t *testing.T) {
	boot(t)
	var lk ksync.Lock_t
	lk.Lock_init()
	lk.Acquire()
	lk.Acquire() // reentry must not deadlock
	lk.Release()

	// still held: a contender must block until the final release
	got := false
	Thread_start("contender", 8, func(arg interface{}) {
		lk.Acquire()
		got = true
		lk.Release()
	}, nil)
	for i := 0; i < 50; i++ {
		Thread_yield()
	}
	if got {
		t.Fatalf("contender acquired a held lock")
	}
	lk.Release()
	spin(t, func() bool { return got })
}

func TestMutexExcludes(t *testing.T) {
	boot(t)
	var lk ksync.Lock_t
	lk.Lock_init()
	counter := 0
	finished := 0
	for i := 0; i < 4; i++ {
		Thread_start("adder", 8, func(arg interface{}) {
			for j := 0; j < 100; j++ {
				lk.Acquire()
				v := counter
				Thread_yield() // invite interleaving inside the section
				counter = v + 1
				lk.Release()
			}
			finished++
		}, nil)
	}
	spin(t, func() bool { return finished == 4 })
	if counter != 400 {
		t.Fatalf("counter = %d, want 400", counter)
	}
}

func TestBlockUnblock(t *testing.T) {
	boot(t)
	var tk *Task_t
	state := 0
	tk = Thread_start("blocker", 8, func(arg interface{}) {
		state = 1
		Thread_block(TASK_BLOCKED)
		state = 2
	}, nil)
	spin(t, func() bool { return state == 1 })
	if tk.Status != TASK_BLOCKED {
		t.Fatalf("status %v after block", tk.Status)
	}
	Thread_unblock(tk)
	spin(t, func() bool { return state == 2 })
}

func TestPCBMagicGuard(t *testing.T) {
	boot(t)
	defer func() {
		if recover() == nil {
			t.Fatalf("trashed PCB magic not caught")
		}
	}()
	old := mach.Intr_disable()
	defer mach.Intr_set_status(old)
	Running_thread().Stack_magic = 0xdeadbeef
	Tick(10_000_000)
}

func TestPreemptionFairness(t *testing.T) {
	if testing.Short() {
		t.Skip("wall-clock test")
	}
	boot(t)
	timer.Timer_init()
	defer timer.Timer_stop()

	stop := false
	var a, b *Task_t
	body := func(arg interface{}) {
		for !stop {
			mach.Checkpoint()
		}
	}
	a = Thread_start("cpu_a", 2, body, nil)
	b = Thread_start("cpu_b", 2, body, nil)

	deadline := time.Now().Add(1500 * time.Millisecond)
	for time.Now().Before(deadline) {
		Thread_yield()
	}
	stop = true
	ea, eb := int(a.Elapsed_ticks), int(b.Elapsed_ticks)
	if ea == 0 || eb == 0 {
		t.Fatalf("threads not preempted: a=%d b=%d", ea, eb)
	}
	diff := ea - eb
	if diff < 0 {
		diff = -diff
	}
	if diff*10 > ea+eb {
		t.Fatalf("unfair slices: a=%d b=%d", ea, eb)
	}
	spin(t, func() bool { return a.Status == TASK_DIED && b.Status == TASK_DIED })
}
