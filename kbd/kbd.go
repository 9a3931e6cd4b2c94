// Package kbd decodes scan codes from the keyboard controller into ASCII and
// feeds the input ring. The interrupt handler is the ring's only producer and
// drops bytes instead of blocking when the ring is full.
package kbd

import "tinyos/ioq"
import "tinyos/mach"

/// KBD_BUF_PORT is the controller's output buffer.
const KBD_BUF_PORT = 0x60

const (
	char_esc       = '\x1b'
	char_backspace = '\b'
	char_tab       = '\t'
	char_enter     = '\r'
)

const char_invisible = 0

// make codes of the modifier keys; extended (0xe0-prefixed) codes carry the
// prefix in the high byte.
const (
	l_shift_make   = 0x2a
	r_shift_make   = 0x36
	l_alt_make     = 0x38
	r_alt_make     = 0xe038
	l_ctrl_make    = 0x1d
	r_ctrl_make    = 0xe01d
	caps_lock_make = 0x3a
)

// keymap maps a make code to its (unshifted, shifted) pair, up to caps lock.
var keymap = [][2]byte{
	{0, 0},
	{char_esc, char_esc},
	{'1', '!'},
	{'2', '@'},
	{'3', '#'},
	{'4', '$'},
	{'5', '%'},
	{'6', '^'},
	{'7', '&'},
	{'8', '*'},
	{'9', '('},
	{'0', ')'},
	{'-', '_'},
	{'=', '+'},
	{char_backspace, char_backspace},
	{char_tab, char_tab},
	{'q', 'Q'},
	{'w', 'W'},
	{'e', 'E'},
	{'r', 'R'},
	{'t', 'T'},
	{'y', 'Y'},
	{'u', 'U'},
	{'i', 'I'},
	{'o', 'O'},
	{'p', 'P'},
	{'[', '{'},
	{']', '}'},
	{char_enter, char_enter},
	{char_invisible, char_invisible}, // left ctrl
	{'a', 'A'},
	{'s', 'S'},
	{'d', 'D'},
	{'f', 'F'},
	{'g', 'G'},
	{'h', 'H'},
	{'j', 'J'},
	{'k', 'K'},
	{'l', 'L'},
	{';', ':'},
	{'\'', '"'},
	{'`', '~'},
	{char_invisible, char_invisible}, // left shift
	{'\\', '|'},
	{'z', 'Z'},
	{'x', 'X'},
	{'c', 'C'},
	{'v', 'V'},
	{'b', 'B'},
	{'n', 'N'},
	{'m', 'M'},
	{',', '<'},
	{'.', '>'},
	{'/', '?'},
	{char_invisible, char_invisible}, // right shift
	{'*', '*'},
	{char_invisible, char_invisible}, // left alt
	{' ', ' '},
	{char_invisible, char_invisible}, // caps lock
}

var ctrl_status bool
var shift_status bool
var alt_status bool
var caps_lock_status bool
var extend_scancode bool

/// Kbd_buf is the input ring between the interrupt handler and the tty
/// reader.
var Kbd_buf ioq.Ioqueue_t

func intr_keyboard_handler(vec int) {
	ctrl_down_last := ctrl_status
	shift_down_last := shift_status
	caps_lock_last := caps_lock_status

	scancode := uint16(mach.Inb(KBD_BUF_PORT))

	// a 0xe0 prefix means the code continues in the next interrupt
	if scancode == 0xe0 {
		extend_scancode = true
		return
	}
	if extend_scancode {
		scancode |= 0xe000
		extend_scancode = false
	}

	break_code := scancode&0x0080 != 0
	if break_code {
		makecode := scancode &^ 0x0080
		switch makecode {
		case l_ctrl_make, r_ctrl_make:
			ctrl_status = false
		case l_shift_make, r_shift_make:
			shift_status = false
		case l_alt_make, r_alt_make:
			alt_status = false
		}
		return
	}

	if scancode < 0x3b || scancode == r_ctrl_make || scancode == r_alt_make {
		shift := false
		if two_char_key(scancode) {
			// keys with two glyphs: shift alone selects the second
			if shift_down_last {
				shift = true
			}
		} else {
			// letters: shift XOR caps lock
			if shift_down_last != caps_lock_last {
				shift = true
			}
		}

		index := scancode & 0x00ff
		cur_char := keymap[index][b2i(shift)]

		// ctrl-l and ctrl-u reach the shell as control bytes
		if ctrl_down_last && (cur_char == 'l' || cur_char == 'u') {
			cur_char -= 'a' - 1
		}
		if cur_char != 0 {
			if !Kbd_buf.Full() {
				Kbd_buf.Putchar(cur_char)
			}
			return
		}

		switch scancode {
		case l_ctrl_make, r_ctrl_make:
			ctrl_status = true
		case l_shift_make, r_shift_make:
			shift_status = true
		case l_alt_make, r_alt_make:
			alt_status = true
		case caps_lock_make:
			caps_lock_status = !caps_lock_status
		}
	}
}

// the keys whose shifted glyph is another printable symbol rather than an
// upper-case letter
func two_char_key(sc uint16) bool {
	return sc < 0x0e || sc == 0x29 || sc == 0x1a || sc == 0x1b || sc == 0x2b ||
		sc == 0x27 || sc == 0x28 || sc == 0x33 || sc == 0x34 || sc == 0x35
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}

/// Keyboard_init empties the ring and claims IRQ 0x21.
func Keyboard_init() {
	Kbd_buf.Ioqueue_init()
	ctrl_status, shift_status, alt_status, caps_lock_status = false, false, false, false
	extend_scancode = false
	mach.Register_handler(mach.IRQ_KEYBOARD, intr_keyboard_handler)
}

// Make_codes translates ASCII back into the make/break scan-code sequence
// that would produce it; the hosted terminal front-end feeds these to the
// controller. Unknown bytes map to nothing.
func Make_codes(c byte) []uint16 {
	shifted := false
	var sc uint16
	switch {
	case c >= 'A' && c <= 'Z':
		c += 'a' - 'A'
		shifted = true
	case c == '\n':
		c = char_enter
	case c == 0x7f:
		c = char_backspace
	}
	for i, pair := range keymap {
		if pair[0] == c {
			sc = uint16(i)
			break
		}
		if pair[1] == c {
			sc = uint16(i)
			shifted = true
			break
		}
	}
	if sc == 0 {
		return nil
	}
	if shifted {
		return []uint16{l_shift_make, sc, sc | 0x80, l_shift_make | 0x80}
	}
	return []uint16{sc, sc | 0x80}
}
