// Package timer programs the interval timer for 100 Hz and owns the tick
// interrupt: bump the global tick count, account the running task and hand
// control to the scheduler when the slice runs out.
package timer

import "time"

import "tinyos/mach"
import "tinyos/thread"

/// HZ is the tick rate.
const HZ = 100

/// MS_PER_TICK is the tick period in milliseconds.
const MS_PER_TICK = 1000 / HZ

const tick_ns = MS_PER_TICK * 1000 * 1000

var total_ticks uint64

var stopch chan struct{}

/// Ticks returns the count of timer interrupts since boot.
func Ticks() uint64 {
	return total_ticks
}

func intr_timer_handler(vec int) {
	total_ticks++
	thread.Tick(tick_ns)
}

// Timer_init registers the tick handler and starts the 100 Hz source. The
// source goroutine only raises the IRQ; all tick work happens in the handler
// on the interrupted task.
func Timer_init() {
	mach.Register_handler(mach.IRQ_TIMER, intr_timer_handler)
	stopch = make(chan struct{})
	go func(stop chan struct{}) {
		tk := time.NewTicker(MS_PER_TICK * time.Millisecond)
		defer tk.Stop()
		for {
			select {
			case <-tk.C:
				mach.Irq_raise(mach.IRQ_TIMER)
			case <-stop:
				return
			}
		}
	}(stopch)
}

/// Timer_stop halts the tick source; the hosted harness calls it between
/// boots.
func Timer_stop() {
	if stopch != nil {
		close(stopch)
		stopch = nil
	}
}

// Mtime_sleep busy-yields for at least ms milliseconds of tick time. Used by
// the disk driver's bounded status polling.
func Mtime_sleep(ms int) {
	sleep_ticks := uint64((ms + MS_PER_TICK - 1) / MS_PER_TICK)
	if sleep_ticks == 0 {
		sleep_ticks = 1
	}
	start := total_ticks
	for total_ticks-start < sleep_ticks {
		thread.Thread_yield()
	}
}
