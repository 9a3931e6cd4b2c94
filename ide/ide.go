// Package ide drives the ATA channels: LBA28 reads and writes in batches of
// at most 256 sectors, an interrupt-coupled completion semaphore per channel,
// and the MBR/EBR partition scan.
package ide

import "fmt"

import "tinyos/console"
import "tinyos/defs"
import "tinyos/klist"
import "tinyos/ksync"
import "tinyos/mach"
import "tinyos/timer"
import "tinyos/util"

// register offsets from the channel's port base
func reg_data(c *Channel_t) int       { return c.Port_base + 0 }
func reg_sector_cnt(c *Channel_t) int { return c.Port_base + 2 }
func reg_lba_l(c *Channel_t) int      { return c.Port_base + 3 }
func reg_lba_m(c *Channel_t) int      { return c.Port_base + 4 }
func reg_lba_h(c *Channel_t) int      { return c.Port_base + 5 }
func reg_device(c *Channel_t) int     { return c.Port_base + 6 }
func reg_status(c *Channel_t) int     { return c.Port_base + 7 }
func reg_cmd(c *Channel_t) int        { return c.Port_base + 7 }

// status register bits
const (
	bit_stat_busy = 0x80
	bit_stat_drdy = 0x40
	bit_stat_dreq = 0x08
)

// device register bits
const (
	bit_dev_mbs   = 0xa0
	bit_dev_lba   = 0x40
	bit_dev_slave = 0x10
)

// commands
const (
	cmd_identify     = 0xec
	cmd_read_sector  = 0x20
	cmd_write_sector = 0x30
)

/// MAX_LBA caps addressable sectors at the 80 MiB of the modeled drive.
const MAX_LBA = 80*1024*1024/512 - 1

/// Partition_t is one slice of a disk found by the partition scan. The file
/// system mounts on top of it.
type Partition_t struct {
	Start_lba  uint32
	Sector_cnt uint32
	Which_disk *Disk_t
	Name       string
	Part_tag   klist.Elem_t
}

/// Disk_t is one drive on a channel.
type Disk_t struct {
	Name          string
	Which_channel *Channel_t
	Dev_no        uint8
	Prim_parts    [4]Partition_t
	Logic_parts   [8]Partition_t
}

/// Channel_t is an IDE channel: two drives, a lock held across each I/O
/// operation and the semaphore the interrupt handler posts.
type Channel_t struct {
	Name           string
	Port_base      int
	Irq_no         int
	Lock           ksync.Lock_t
	Expecting_intr bool
	Disk_done      ksync.Sema_t
	Devices        [2]Disk_t
}

var channel_cnt int

/// Channels are the (up to) two IDE channels of the machine.
var Channels [2]Channel_t

/// Partition_list collects every partition of every scanned disk.
var Partition_list klist.List_t

func select_disk(hd *Disk_t) {
	reg := uint8(bit_dev_mbs | bit_dev_lba)
	if hd.Dev_no == 1 {
		reg |= bit_dev_slave
	}
	mach.Outb(reg_device(hd.Which_channel), reg)
}

// select_sector programs the sector count and LBA registers; a count of 256
// is written as 0.
func select_sector(hd *Disk_t, lba uint32, sector_cnt int) {
	if lba > MAX_LBA {
		mach.Panic("lba %#x out of range", lba)
	}
	channel := hd.Which_channel
	mach.Outb(reg_sector_cnt(channel), uint8(sector_cnt))
	mach.Outb(reg_lba_l(channel), uint8(lba))
	mach.Outb(reg_lba_m(channel), uint8(lba>>8))
	mach.Outb(reg_lba_h(channel), uint8(lba>>16))
	dev := uint8(bit_dev_mbs | bit_dev_lba)
	if hd.Dev_no == 1 {
		dev |= bit_dev_slave
	}
	mach.Outb(reg_device(channel), dev|uint8(lba>>24))
}

// cmd_out issues a command and marks the channel as expecting its interrupt.
func cmd_out(channel *Channel_t, cmd uint8) {
	channel.Expecting_intr = true
	mach.Outb(reg_cmd(channel), cmd)
}

func read_from_sector(hd *Disk_t, buf []uint8, sector_cnt int) {
	size_in_byte := sector_cnt * defs.SECTSZ
	mach.Insw(reg_data(hd.Which_channel), buf, size_in_byte/2)
}

func write_to_sector(hd *Disk_t, buf []uint8, sector_cnt int) {
	size_in_byte := sector_cnt * defs.SECTSZ
	mach.Outsw(reg_data(hd.Which_channel), buf, size_in_byte/2)
}

// busy_wait polls the status register for up to 30 seconds, sleeping 10 ms
// between polls, until the drive drops BUSY; it then reports whether data is
// requested.
func busy_wait(hd *Disk_t) bool {
	channel := hd.Which_channel
	time_limit := 30 * 1000
	for time_limit >= 0 {
		if mach.Inb(reg_status(channel))&bit_stat_busy == 0 {
			return mach.Inb(reg_status(channel))&bit_stat_dreq != 0
		}
		timer.Mtime_sleep(10)
		time_limit -= 10
	}
	return false
}

// Ide_read reads sector_cnt sectors at lba into buf, at most 256 per
// command. The caller sleeps on the channel's semaphore until the completion
// interrupt, then polls the status register before draining the data port.
func Ide_read(hd *Disk_t, lba uint32, buf []uint8, sector_cnt int) {
	if lba > MAX_LBA || sector_cnt <= 0 {
		mach.Panic("ide_read lba %#x cnt %d", lba, sector_cnt)
	}
	hd.Which_channel.Lock.Acquire()
	select_disk(hd)

	sector_done := 0
	for sector_done < sector_cnt {
		sector_operate := 256
		if sector_done+256 > sector_cnt {
			sector_operate = sector_cnt - sector_done
		}

		select_sector(hd, lba+uint32(sector_done), sector_operate)
		cmd_out(hd.Which_channel, cmd_read_sector)

		// sleep until the drive has the data and interrupted
		hd.Which_channel.Disk_done.Down()

		if !busy_wait(hd) {
			mach.Panic("%s read sector %d failed", hd.Name, lba)
		}
		read_from_sector(hd, buf[sector_done*defs.SECTSZ:], sector_operate)
		sector_done += sector_operate
	}
	hd.Which_channel.Lock.Release()
}

// Ide_write writes sector_cnt sectors from buf at lba. Unlike reads, the
// data goes out first and the interrupt arrives once the drive has accepted
// it, so the semaphore wait follows the transfer.
func Ide_write(hd *Disk_t, lba uint32, buf []uint8, sector_cnt int) {
	if lba > MAX_LBA || sector_cnt <= 0 {
		mach.Panic("ide_write lba %#x cnt %d", lba, sector_cnt)
	}
	hd.Which_channel.Lock.Acquire()
	select_disk(hd)

	sector_done := 0
	for sector_done < sector_cnt {
		sector_operate := 256
		if sector_done+256 > sector_cnt {
			sector_operate = sector_cnt - sector_done
		}

		select_sector(hd, lba+uint32(sector_done), sector_operate)
		cmd_out(hd.Which_channel, cmd_write_sector)

		if !busy_wait(hd) {
			mach.Panic("%s write sector %d failed", hd.Name, lba)
		}
		write_to_sector(hd, buf[sector_done*defs.SECTSZ:], sector_operate)
		hd.Which_channel.Disk_done.Down()
		sector_done += sector_operate
	}
	hd.Which_channel.Lock.Release()
}

// intr_hd_handler acknowledges a channel's completion interrupt and wakes
// the sleeping driver. Interrupts that nobody expects are ignored.
func intr_hd_handler(vec int) {
	if vec != mach.IRQ_IDE0 && vec != mach.IRQ_IDE1 {
		mach.Panic("disk interrupt vector %#x", vec)
	}
	channel := &Channels[vec-mach.IRQ_IDE0]
	if channel.Irq_no != vec {
		mach.Panic("channel %s irq mismatch", channel.Name)
	}
	if channel.Expecting_intr {
		channel.Expecting_intr = false
		channel.Disk_done.Up()
		// reading the status register acknowledges the interrupt
		mach.Inb(reg_status(channel))
	}
}

func swap_pairs_bytes(src []uint8) string {
	buf := make([]uint8, len(src))
	for i := 0; i+1 < len(src); i += 2 {
		buf[i] = src[i+1]
		buf[i+1] = src[i]
	}
	return string(buf)
}

// identify_disk asks the drive who it is and prints the answer.
func identify_disk(hd *Disk_t) {
	id_info := make([]uint8, defs.SECTSZ)
	select_disk(hd)
	cmd_out(hd.Which_channel, cmd_identify)
	hd.Which_channel.Disk_done.Down()

	if !busy_wait(hd) {
		mach.Panic("%s identify failed", hd.Name)
	}
	read_from_sector(hd, id_info, 1)

	serial := swap_pairs_bytes(id_info[10*2 : 10*2+20])
	model := swap_pairs_bytes(id_info[27*2 : 27*2+40])
	sectors := util.Readn(id_info, 4, 60*2)
	console.Printk(" disk %s info:\n      Serial-Number: %s\n", hd.Name, serial)
	console.Printk("      Model: %s\n", model)
	console.Printk("      CAPACITY: %dMB\n", sectors*512/1024/1024)
}

// one partition scan's cursor; primary and logical counters restart per disk
type scan_state_t struct {
	ext_lba_base uint32
	p_no         int
	l_no         int
}

// partition_scan reads the partition table at base_lba and records primary
// partitions, descending into the extended chain. A logical partition is
// addressed relative to the EBR that lists it; each further EBR link is
// relative to the main extended partition's start.
func partition_scan(hd *Disk_t, base_lba uint32, st *scan_state_t) {
	bs := make([]uint8, defs.SECTSZ)
	Ide_read(hd, base_lba, bs, 1)
	if bs[510] != 0x55 || bs[511] != 0xaa {
		console.Printk("%s: no partition table signature at lba %d\n", hd.Name, base_lba)
		return
	}
	for part_idx := 0; part_idx < 4; part_idx++ {
		p := bs[446+16*part_idx:]
		fs_type := p[4]
		start_off := uint32(util.Readn(p, 4, 8))
		sector_cnt := uint32(util.Readn(p, 4, 12))

		if fs_type == 0x5 {
			// extended partition: recurse into the EBR chain
			if st.ext_lba_base != 0 {
				partition_scan(hd, start_off+st.ext_lba_base, st)
			} else {
				st.ext_lba_base = start_off
				partition_scan(hd, start_off, st)
			}
		} else if fs_type != 0 {
			if base_lba == 0 {
				if st.p_no >= 4 {
					mach.Panic("more than 4 primary partitions")
				}
				part := &hd.Prim_parts[st.p_no]
				part.Start_lba = start_off
				part.Sector_cnt = sector_cnt
				part.Which_disk = hd
				part.Name = fmt.Sprintf("%s%d", hd.Name, st.p_no+1)
				part.Part_tag.Owner = part
				Partition_list.Append(&part.Part_tag)
				st.p_no++
			} else {
				if st.l_no >= 8 {
					return
				}
				part := &hd.Logic_parts[st.l_no]
				part.Start_lba = base_lba + start_off
				part.Sector_cnt = sector_cnt
				part.Which_disk = hd
				part.Name = fmt.Sprintf("%s%d", hd.Name, st.l_no+5)
				part.Part_tag.Owner = part
				Partition_list.Append(&part.Part_tag)
				st.l_no++
			}
		}
	}
}

// Ide_init sizes the channels from the BIOS drive count, identifies every
// drive and scans partitions on everything but the boot disk.
func Ide_init(hd_cnt int) {
	console.Printk("ide_init start\n")
	if hd_cnt <= 0 {
		mach.Panic("no disks")
	}
	Partition_list.Init()
	channel_cnt = util.Divroundup(hd_cnt, 2)

	for channel_no := 0; channel_no < channel_cnt; channel_no++ {
		channel := &Channels[channel_no]
		channel.Name = fmt.Sprintf("ide%d", channel_no)
		switch channel_no {
		case 0:
			channel.Port_base = 0x1f0
			channel.Irq_no = mach.IRQ_IDE0
		case 1:
			channel.Port_base = 0x170
			channel.Irq_no = mach.IRQ_IDE1
		}
		channel.Expecting_intr = false
		channel.Lock.Lock_init()
		channel.Disk_done.Sema_init(0)
		mach.Register_handler(channel.Irq_no, intr_hd_handler)

		ndev := util.Min(hd_cnt-channel_no*2, 2)
		for dev_no := 0; dev_no < ndev; dev_no++ {
			hd := &channel.Devices[dev_no]
			hd.Which_channel = channel
			hd.Dev_no = uint8(dev_no)
			hd.Name = fmt.Sprintf("sd%c", 'a'+channel_no*2+dev_no)
			identify_disk(hd)
			// the boot disk carries the kernel image, not partitions
			if channel_no != 0 || dev_no != 0 {
				st := &scan_state_t{}
				partition_scan(hd, 0, st)
			}
		}
	}

	console.Printk("\n all partition info as follows:\n")
	Partition_list.Traversal(0, func(e *klist.Elem_t, _ int) bool {
		part := e.Owner.(*Partition_t)
		console.Printk("   %s start_lba:0x%x, sector_cnt:0x%x\n",
			part.Name, part.Start_lba, part.Sector_cnt)
		return false
	})
	console.Printk("ide_init done\n")
}
