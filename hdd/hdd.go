// Package hdd is the ATA controller of the hosted machine: two IDE channels
// of two drives behind the classic port block, LBA28 READ/WRITE/IDENTIFY, an
// IRQ on command completion. Drives are backed by image files or memory.
package hdd

import "os"

import "tinyos/defs"
import "tinyos/mach"
import "tinyos/util"

// status register bits
const (
	stat_bsy  = 0x80
	stat_drdy = 0x40
	stat_drq  = 0x08
)

// device register bits
const (
	dev_mbs   = 0xa0
	dev_lba   = 0x40
	dev_slave = 0x10
)

// commands
const (
	cmd_identify = 0xec
	cmd_read     = 0x20
	cmd_write    = 0x30
)

/// Backing_i stores a drive's sectors.
type Backing_i interface {
	Readsect(lba int, buf []uint8)
	Writesect(lba int, buf []uint8)
	Sectors() int
}

/// Filedisk_t backs a drive with an image file.
type Filedisk_t struct {
	f       *os.File
	sectors int
}

/// MkFiledisk opens (creating if needed) an image of the given sector
/// count; zero means size the drive from the existing file.
func MkFiledisk(path string, sectors int) (*Filedisk_t, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	if sectors == 0 {
		st, err := f.Stat()
		if err != nil {
			f.Close()
			return nil, err
		}
		sectors = int(st.Size()) / defs.SECTSZ
	} else if err := f.Truncate(int64(sectors * defs.SECTSZ)); err != nil {
		f.Close()
		return nil, err
	}
	return &Filedisk_t{f: f, sectors: sectors}, nil
}

/// Close releases the image file.
func (fd *Filedisk_t) Close() error {
	return fd.f.Close()
}

func (fd *Filedisk_t) Readsect(lba int, buf []uint8) {
	if _, err := fd.f.ReadAt(buf[:defs.SECTSZ], int64(lba*defs.SECTSZ)); err != nil {
		panic(err)
	}
}

func (fd *Filedisk_t) Writesect(lba int, buf []uint8) {
	if _, err := fd.f.WriteAt(buf[:defs.SECTSZ], int64(lba*defs.SECTSZ)); err != nil {
		panic(err)
	}
}

func (fd *Filedisk_t) Sectors() int {
	return fd.sectors
}

/// Memdisk_t backs a drive with a byte slice.
type Memdisk_t struct {
	b []uint8
}

/// MkMemdisk builds an in-memory drive of the given sector count.
func MkMemdisk(sectors int) *Memdisk_t {
	return &Memdisk_t{b: make([]uint8, sectors*defs.SECTSZ)}
}

func (md *Memdisk_t) Readsect(lba int, buf []uint8) {
	copy(buf[:defs.SECTSZ], md.b[lba*defs.SECTSZ:])
}

func (md *Memdisk_t) Writesect(lba int, buf []uint8) {
	copy(md.b[lba*defs.SECTSZ:], buf[:defs.SECTSZ])
}

func (md *Memdisk_t) Sectors() int {
	return len(md.b) / defs.SECTSZ
}

const (
	mode_idle = iota
	mode_pio_in
	mode_pio_out
)

/// channel_t is one IDE channel's register file and transfer engine.
type channel_t struct {
	ctrl      *Ctrl_t
	port_base int
	irq       int
	drives    [2]Backing_i

	sect_cnt uint8
	lba      [4]uint8 // low, mid, high, device-register nibble
	devreg   uint8
	status   uint8

	mode   int
	buf    []uint8
	bufpos int
	// write state
	wr_lba  int
	wr_left int
}

func (ch *channel_t) drive() Backing_i {
	idx := 0
	if ch.devreg&dev_slave != 0 {
		idx = 1
	}
	return ch.drives[idx]
}

func (ch *channel_t) cur_lba() int {
	return int(ch.lba[0]) | int(ch.lba[1])<<8 | int(ch.lba[2])<<16 |
		int(ch.devreg&0x0f)<<24
}

func (ch *channel_t) nsect() int {
	if ch.sect_cnt == 0 {
		return 256
	}
	return int(ch.sect_cnt)
}

func (ch *channel_t) command(cmd uint8) {
	d := ch.drive()
	if d == nil {
		ch.status = stat_drdy // no DRQ; driver's busy-wait will give up
		mach.Irq_raise(ch.irq)
		return
	}
	switch cmd {
	case cmd_identify:
		ch.buf = identify_data(d)
		ch.bufpos = 0
		ch.mode = mode_pio_in
		ch.status = stat_drdy | stat_drq
		mach.Irq_raise(ch.irq)
	case cmd_read:
		n := ch.nsect()
		ch.buf = make([]uint8, n*defs.SECTSZ)
		lba := ch.cur_lba()
		for i := 0; i < n; i++ {
			d.Readsect(lba+i, ch.buf[i*defs.SECTSZ:])
		}
		ch.bufpos = 0
		ch.mode = mode_pio_in
		ch.status = stat_drdy | stat_drq
		mach.Irq_raise(ch.irq)
	case cmd_write:
		n := ch.nsect()
		ch.buf = make([]uint8, n*defs.SECTSZ)
		ch.bufpos = 0
		ch.mode = mode_pio_out
		ch.wr_lba = ch.cur_lba()
		ch.wr_left = n
		// ready to accept data; the IRQ fires once the data arrived
		ch.status = stat_drdy | stat_drq
	default:
		mach.Panic("ata command %#x", cmd)
	}
}

func (ch *channel_t) data_in() uint16 {
	if ch.mode != mode_pio_in {
		mach.Panic("data read with no transfer")
	}
	w := uint16(ch.buf[ch.bufpos]) | uint16(ch.buf[ch.bufpos+1])<<8
	ch.bufpos += 2
	if ch.bufpos >= len(ch.buf) {
		ch.mode = mode_idle
		ch.status = stat_drdy
	}
	return w
}

func (ch *channel_t) data_out(w uint16) {
	if ch.mode != mode_pio_out {
		mach.Panic("data write with no transfer")
	}
	ch.buf[ch.bufpos] = uint8(w)
	ch.buf[ch.bufpos+1] = uint8(w >> 8)
	ch.bufpos += 2
	if ch.bufpos >= len(ch.buf) {
		d := ch.drive()
		for i := 0; i < ch.wr_left; i++ {
			d.Writesect(ch.wr_lba+i, ch.buf[i*defs.SECTSZ:])
		}
		ch.mode = mode_idle
		ch.status = stat_drdy
		mach.Irq_raise(ch.irq)
	}
}

func identify_data(d Backing_i) []uint8 {
	id := make([]uint8, defs.SECTSZ)
	// words 10..19: serial, words 27..46: model, byte-swapped pairs
	put := func(word int, s string) {
		for i := 0; i < len(s); i += 2 {
			a, b := s[i], uint8(' ')
			if i+1 < len(s) {
				b = s[i+1]
			}
			id[word*2+i] = b
			id[word*2+i+1] = a
		}
	}
	put(10, "TINYOS-DISK-0001    ")
	put(27, "tinyos hosted ata drive                 ")
	util.Writen(id, 4, 60*2, d.Sectors())
	return id
}

/// Ctrl_t is the controller: both channels, attached to the port bus.
type Ctrl_t struct {
	channels [2]channel_t
}

/// MkCtrl creates the controller and registers its port ranges.
func MkCtrl() *Ctrl_t {
	c := &Ctrl_t{}
	c.channels[0] = channel_t{ctrl: c, port_base: 0x1f0, irq: mach.IRQ_IDE0, status: stat_drdy}
	c.channels[1] = channel_t{ctrl: c, port_base: 0x170, irq: mach.IRQ_IDE1, status: stat_drdy}
	mach.Register_ports(0x1f0, 0x1f7, c)
	mach.Register_ports(0x170, 0x177, c)
	return c
}

/// Attach puts a drive behind (channel, device).
func (c *Ctrl_t) Attach(channel, dev int, b Backing_i) {
	c.channels[channel].drives[dev] = b
}

func (c *Ctrl_t) chandev(port int) (*channel_t, int) {
	ch := &c.channels[0]
	if port < 0x1f0 {
		ch = &c.channels[1]
	}
	return ch, port - ch.port_base
}

func (c *Ctrl_t) Inb(port int) uint8 {
	ch, reg := c.chandev(port)
	switch reg {
	case 7:
		return ch.status
	case 6:
		return ch.devreg
	}
	return 0
}

func (c *Ctrl_t) Outb(port int, v uint8) {
	ch, reg := c.chandev(port)
	switch reg {
	case 2:
		ch.sect_cnt = v
	case 3:
		ch.lba[0] = v
	case 4:
		ch.lba[1] = v
	case 5:
		ch.lba[2] = v
	case 6:
		ch.devreg = v
	case 7:
		ch.command(v)
	}
}

func (c *Ctrl_t) Inw(port int) uint16 {
	ch, reg := c.chandev(port)
	if reg != 0 {
		mach.Panic("word read of ata register %d", reg)
	}
	return ch.data_in()
}

func (c *Ctrl_t) Outw(port int, v uint16) {
	ch, reg := c.chandev(port)
	if reg != 0 {
		mach.Panic("word write of ata register %d", reg)
	}
	ch.data_out(v)
}
