// Package mach simulates the machine the kernel runs on: installed RAM, a
// uniprocessor interrupt controller and a port-mapped I/O bus. The rest of
// the kernel only ever talks to hardware through this package, so a port to a
// different substrate replaces mach and nothing else.
//
// Interrupt model: devices raise IRQs from their own goroutines; a raised IRQ
// is queued and delivered on the running task's goroutine at the next
// interrupt window (Checkpoint, Intr_enable, or Hlt), with interrupts off for
// the duration of the handler. Exactly one task goroutine executes at a time
// (the scheduler hands the CPU over channels), so "disable interrupts" really
// is the whole concurrency story, as on the uniprocessor this models.
package mach

import "fmt"
import "runtime"
import "sync"

/// NVECTORS is the size of the interrupt vector table.
const NVECTORS = 0x81

/// IRQ vector assignments.
const (
	IRQ_TIMER    = 0x20
	IRQ_KEYBOARD = 0x21
	IRQ_IDE0     = 0x2e
	IRQ_IDE1     = 0x2f
	T_SYSCALL    = 0x80
)

/// Handler_t services one interrupt vector.
type Handler_t func(vec int)

/// Portdev_i is a device attached to a range of I/O ports.
type Portdev_i interface {
	Inb(port int) uint8
	Outb(port int, v uint8)
	Inw(port int) uint16
	Outw(port int, v uint16)
}

type portrange_t struct {
	base, end int
	dev       Portdev_i
}

/// Machine_t is the simulated machine. There is one instance per boot,
/// reachable through the package-level Mach pointer.
type Machine_t struct {
	Ram []uint8

	// interrupt state. intr_on is only touched by the goroutine holding the
	// CPU; the pending queue is shared with device goroutines.
	intr_on bool
	vectors [NVECTORS]Handler_t

	pendmu  sync.Mutex
	pendcv  *sync.Cond
	pending []int
	stopped bool

	ports []portrange_t
}

/// Mach is the machine the kernel is currently running on.
var Mach *Machine_t

/// Bootmem creates a fresh machine with the given amount of installed RAM and
/// makes it current. Interrupts start disabled, as after a real reset.
func Bootmem(rambytes int) *Machine_t {
	m := &Machine_t{}
	m.Ram = make([]uint8, rambytes)
	m.pendcv = sync.NewCond(&m.pendmu)
	Mach = m
	return m
}

/// Memsz returns the installed RAM size in bytes.
func (m *Machine_t) Memsz() int {
	return len(m.Ram)
}

/// Stop shuts the machine down: raised IRQs are discarded and any Hlt wakes
/// up. Used by the hosted harness between boots.
func (m *Machine_t) Stop() {
	m.pendmu.Lock()
	m.stopped = true
	m.pendcv.Broadcast()
	m.pendmu.Unlock()
}

/// Register_handler installs h for vector vec.
func Register_handler(vec int, h Handler_t) {
	if vec < 0 || vec >= NVECTORS {
		panic("bad vector")
	}
	Mach.vectors[vec] = h
}

/// Intr_get_status reports whether interrupts are enabled.
func Intr_get_status() bool {
	return Mach.intr_on
}

/// Intr_disable turns interrupts off and returns the previous state.
func Intr_disable() bool {
	old := Mach.intr_on
	Mach.intr_on = false
	return old
}

/// Intr_enable turns interrupts on and returns the previous state. Pending
/// IRQs are delivered immediately, like the one-instruction window after sti.
func Intr_enable() bool {
	old := Mach.intr_on
	Mach.intr_on = true
	Checkpoint()
	return old
}

/// Intr_set_status restores a state saved by Intr_disable.
func Intr_set_status(on bool) {
	if on {
		Intr_enable()
	} else {
		Intr_disable()
	}
}

// Irq_raise queues vector vec for delivery. Safe to call from any goroutine;
// this is the device side of the interrupt controller.
func Irq_raise(vec int) {
	m := Mach
	m.pendmu.Lock()
	if !m.stopped {
		m.pending = append(m.pending, vec)
		m.pendcv.Broadcast()
	}
	m.pendmu.Unlock()
}

func (m *Machine_t) irq_pop() (int, bool) {
	m.pendmu.Lock()
	defer m.pendmu.Unlock()
	if len(m.pending) == 0 {
		return 0, false
	}
	vec := m.pending[0]
	m.pending = m.pending[1:]
	return vec, true
}

// Checkpoint is an instruction boundary of the simulated CPU: if interrupts
// are enabled, deliver every pending IRQ. Handlers run with interrupts off.
func Checkpoint() {
	m := Mach
	for m.intr_on {
		vec, ok := m.irq_pop()
		if !ok {
			return
		}
		m.intr_on = false
		h := m.vectors[vec]
		if h != nil {
			h(vec)
		}
		m.intr_on = true
	}
}

// Hlt parks the CPU with interrupts enabled until an IRQ arrives, delivers
// it, and returns with interrupts still enabled. The idle task's sti;hlt.
// When the machine has been stopped the halted goroutine ends instead of
// returning into a dead kernel.
func Hlt() {
	m := Mach
	m.intr_on = true
	m.pendmu.Lock()
	for len(m.pending) == 0 && !m.stopped {
		m.pendcv.Wait()
	}
	stopped := m.stopped
	m.pendmu.Unlock()
	if stopped {
		runtime.Goexit()
	}
	Checkpoint()
}

/// Softint raises a software interrupt: the handler for vec runs immediately
/// on the caller, regardless of the interrupt flag. Vector 0x80 is the
/// syscall gate.
func Softint(vec int) {
	h := Mach.vectors[vec]
	if h == nil {
		Panic("no handler for soft vector %#x", vec)
	}
	old := Intr_disable()
	h(vec)
	Intr_set_status(old)
}

/// Register_ports attaches dev to ports [base, end].
func Register_ports(base, end int, dev Portdev_i) {
	Mach.ports = append(Mach.ports, portrange_t{base, end, dev})
}

func (m *Machine_t) portdev(port int) Portdev_i {
	for _, pr := range m.ports {
		if port >= pr.base && port <= pr.end {
			return pr.dev
		}
	}
	Panic("no device at port %#x", port)
	return nil
}

/// Inb reads a byte from an I/O port.
func Inb(port int) uint8 {
	return Mach.portdev(port).Inb(port)
}

/// Outb writes a byte to an I/O port.
func Outb(port int, v uint8) {
	Mach.portdev(port).Outb(port, v)
}

/// Inw reads a 16-bit word from an I/O port.
func Inw(port int) uint16 {
	return Mach.portdev(port).Inw(port)
}

/// Outw writes a 16-bit word to an I/O port.
func Outw(port int, v uint16) {
	Mach.portdev(port).Outw(port, v)
}

// Insw performs the word-string input of the data port: words 16-bit reads
// into buf, little-endian.
func Insw(port int, buf []uint8, words int) {
	dev := Mach.portdev(port)
	for i := 0; i < words; i++ {
		w := dev.Inw(port)
		buf[2*i] = uint8(w)
		buf[2*i+1] = uint8(w >> 8)
	}
}

// Outsw performs the word-string output of the data port.
func Outsw(port int, buf []uint8, words int) {
	dev := Mach.portdev(port)
	for i := 0; i < words; i++ {
		w := uint16(buf[2*i]) | uint16(buf[2*i+1])<<8
		dev.Outw(port, w)
	}
}

// Panic prints the formatted message and kills the kernel. Must-not-happen
// conditions in the kernel end up here.
func Panic(format string, args ...interface{}) {
	fmt.Printf("kernel PANIC: "+format+"\n", args...)
	Intr_disable()
	panic("kernel panic")
}

/// Assert panics with msg when cond is false.
func Assert(cond bool, msg string) {
	if !cond {
		Panic("assertion failed: %s", msg)
	}
}
