package kbd

import "testing"

import "tinyos/kbc"
import "tinyos/mach"
import "tinyos/mem"
import "tinyos/thread"

func boot(t *testing.T) *kbc.Ctrl_t {
	t.Helper()
	mach.Bootmem(32 << 20)
	mem.Mem_init()
	thread.Thread_init()
	Keyboard_init()
	return kbc.MkCtrl()
}

func drain(t *testing.T, n int) string {
	t.Helper()
	got := make([]byte, 0, n)
	old := mach.Intr_disable()
	for i := 0; i < n; i++ {
		got = append(got, Kbd_buf.Getchar())
	}
	mach.Intr_set_status(old)
	return string(got)
}

func inject(kc *kbc.Ctrl_t, codes ...uint16) {
	kc.Inject(codes...)
	mach.Intr_enable()
	mach.Intr_disable()
}

func TestPlainKeys(t *testing.T) {
	kc := boot(t)
	// make/break of 'a', 'b', '1'
	inject(kc, 0x1e, 0x9e, 0x30, 0xb0, 0x02, 0x82)
	if got := drain(t, 3); got != "ab1" {
		t.Fatalf("decoded %q", got)
	}
}

func TestShiftPairs(t *testing.T) {
	kc := boot(t)
	// shift down, 'a', '1', shift up, 'a'
	inject(kc, 0x2a, 0x1e, 0x9e, 0x02, 0x82, 0xaa, 0x1e, 0x9e)
	if got := drain(t, 3); got != "A!a" {
		t.Fatalf("decoded %q", got)
	}
}

func TestCapsLock(t *testing.T) {
	kc := boot(t)
	// caps on: letters upper, digits unaffected; shift+letter flips back
	inject(kc, 0x3a, 0xba) // caps lock press/release
	inject(kc, 0x1e, 0x9e) // 'a' -> 'A'
	inject(kc, 0x02, 0x82) // '1' stays '1'
	inject(kc, 0x2a, 0x1e, 0x9e, 0xaa) // shift+'a' -> 'a'
	if got := drain(t, 3); got != "A1a" {
		t.Fatalf("decoded %q", got)
	}
}

func TestExtendedPrefix(t *testing.T) {
	kc := boot(t)
	// right ctrl arrives as 0xe0 0x1d across two interrupts; the modifier
	// itself emits nothing and 'c' passes through unconverted
	inject(kc, 0xe01d, 0x2e, 0xae, 0xe09d)
	if got := drain(t, 1); got != "c" {
		t.Fatalf("decoded %q", got)
	}
	old := mach.Intr_disable()
	empty := Kbd_buf.Empty()
	mach.Intr_set_status(old)
	if !empty {
		t.Fatalf("modifier key emitted bytes")
	}
}

func TestCtrlLU(t *testing.T) {
	kc := boot(t)
	inject(kc, 0x1d)               // ctrl down
	inject(kc, 0x26, 0xa6)         // 'l' -> ctrl-l
	inject(kc, 0x16, 0x96)         // 'u' -> ctrl-u
	inject(kc, 0x9d)               // ctrl up
	if got := drain(t, 2); got != "\x0c\x15" {
		t.Fatalf("decoded % x", got)
	}
}

func TestMakeCodesRoundTrip(t *testing.T) {
	kc := boot(t)
	msg := "ls -l /Dir_1\n"
	for i := 0; i < len(msg); i++ {
		codes := Make_codes(msg[i])
		if codes == nil {
			t.Fatalf("no scan codes for %q", msg[i])
		}
		inject(kc, codes...)
	}
	want := "ls -l /Dir_1\r"
	if got := drain(t, len(want)); got != want {
		t.Fatalf("round trip %q, want %q", got, want)
	}
}
