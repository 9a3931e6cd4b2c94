// Package console serializes text output from every task behind one lock.
// The glyph-level VGA details are behind Sink_i; the hosted machine writes to
// a byte sink (stdout, or a capture buffer in tests).
package console

import "fmt"

import "tinyos/ksync"

/// Sink_i is the low-level text output device.
type Sink_i interface {
	Put(b []byte)
	Clear()
}

var console_lock ksync.Lock_t
var sink Sink_i

/// Console_init takes the output device and prepares the lock.
func Console_init(s Sink_i) {
	console_lock.Lock_init()
	sink = s
}

/// Put_str writes s atomically with respect to other tasks.
func Put_str(s string) {
	if sink == nil {
		return
	}
	console_lock.Acquire()
	sink.Put([]byte(s))
	console_lock.Release()
}

/// Put_char writes one character.
func Put_char(c byte) {
	if sink == nil {
		return
	}
	console_lock.Acquire()
	sink.Put([]byte{c})
	console_lock.Release()
}

/// Clear erases the screen.
func Clear() {
	if sink == nil {
		return
	}
	console_lock.Acquire()
	sink.Clear()
	console_lock.Release()
}

/// Printk formats to the console; the kernel's diagnostic output.
func Printk(format string, args ...interface{}) {
	Put_str(fmt.Sprintf(format, args...))
}

// interrupt handlers cannot block on the console lock
/// Put_str_intr writes from interrupt context, skipping the lock.
func Put_str_intr(s string) {
	if sink == nil {
		return
	}
	sink.Put([]byte(s))
}
