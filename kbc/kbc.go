// Package kbc is the keyboard controller of the hosted machine: a byte
// queue behind port 0x60 that raises IRQ 1 for every scan code pushed in by
// the terminal front-end.
package kbc

import "sync"

import "tinyos/mach"

/// Ctrl_t buffers scan codes between the host terminal and the ISR.
type Ctrl_t struct {
	mu    sync.Mutex
	codes []uint8
}

/// MkCtrl attaches a fresh controller to the port bus.
func MkCtrl() *Ctrl_t {
	c := &Ctrl_t{}
	mach.Register_ports(0x60, 0x64, c)
	return c
}

// Inject queues scan-code bytes and raises one interrupt per byte, the way
// the 8042 clocks them out.
func (c *Ctrl_t) Inject(codes ...uint16) {
	for _, sc := range codes {
		if sc > 0xff {
			// extended code: prefix byte first
			c.push(0xe0)
			c.push(uint8(sc))
			continue
		}
		c.push(uint8(sc))
	}
}

func (c *Ctrl_t) push(b uint8) {
	c.mu.Lock()
	c.codes = append(c.codes, b)
	c.mu.Unlock()
	mach.Irq_raise(mach.IRQ_KEYBOARD)
}

func (c *Ctrl_t) Inb(port int) uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.codes) == 0 {
		return 0
	}
	b := c.codes[0]
	c.codes = c.codes[1:]
	return b
}

func (c *Ctrl_t) Outb(port int, v uint8) {}

func (c *Ctrl_t) Inw(port int) uint16 {
	mach.Panic("word read of keyboard controller")
	return 0
}

func (c *Ctrl_t) Outw(port int, v uint16) {
	mach.Panic("word write of keyboard controller")
}
