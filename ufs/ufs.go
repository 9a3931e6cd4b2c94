// Package ufs boots the whole kernel in a host process over disk image
// files: the simulated machine, memory manager, threads, devices and the
// file system come up in the same order the real boot uses. Tools and tests
// drive the kernel through it.
package ufs

import "bytes"
import "io"
import "sync"

import "tinyos/console"
import "tinyos/defs"
import "tinyos/fs"
import "tinyos/hdd"
import "tinyos/ide"
import "tinyos/kbd"
import "tinyos/mach"
import "tinyos/mem"
import "tinyos/proc"
import "tinyos/thread"
import "tinyos/timer"
import "tinyos/util"

/// Consbuf_t captures console output, optionally echoing it to a writer.
type Consbuf_t struct {
	mu   sync.Mutex
	b    bytes.Buffer
	echo io.Writer
}

func (cb *Consbuf_t) Put(p []byte) {
	cb.mu.Lock()
	cb.b.Write(p)
	cb.mu.Unlock()
	if cb.echo != nil {
		cb.echo.Write(p)
	}
}

func (cb *Consbuf_t) Clear() {
	cb.mu.Lock()
	cb.b.Reset()
	cb.mu.Unlock()
	if cb.echo != nil {
		io.WriteString(cb.echo, "\x1b[2J\x1b[H")
	}
}

/// String returns everything printed since the last clear.
func (cb *Consbuf_t) String() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.b.String()
}

/// Bootopts_t tunes a boot; the zero value gives 32 MiB of RAM, no timer
/// and a silent console.
type Bootopts_t struct {
	Rambytes int
	Timer    bool      // start the 100 Hz tick source
	Echo     io.Writer // echo console output here
}

/// Ufs_t is a booted kernel instance.
type Ufs_t struct {
	Ctrl *hdd.Ctrl_t
	Cons *Consbuf_t

	bootdisk *hdd.Memdisk_t
	datadisk *hdd.Filedisk_t
}

// BootFS brings the kernel up over the data-disk image at dst; the boot
// disk holding the kernel image is a stub. Subsystems start in the fixed
// order memory, threads, timer, console, keyboard, syscalls, disk, file
// system.
func BootFS(dst string, opts Bootopts_t) *Ufs_t {
	u := &Ufs_t{}
	ram := opts.Rambytes
	if ram == 0 {
		ram = 32 << 20
	}
	mach.Bootmem(ram)

	u.Cons = &Consbuf_t{echo: opts.Echo}

	mem.Mem_init()
	thread.Thread_init()
	if opts.Timer {
		timer.Timer_init()
	} else {
		// handler only; ticks can be injected by hand
		mach.Register_handler(mach.IRQ_TIMER, func(int) { thread.Tick(timer.MS_PER_TICK * 1000 * 1000) })
	}
	console.Console_init(u.Cons)
	mem.Set_printer(console.Put_str)
	kbd.Keyboard_init()
	proc.Syscall_init()

	u.Ctrl = hdd.MkCtrl()
	u.bootdisk = hdd.MkMemdisk(128)
	u.Ctrl.Attach(0, 0, u.bootdisk)
	var err error
	u.datadisk, err = hdd.MkFiledisk(dst, 0)
	if err != nil {
		panic(err)
	}
	if u.datadisk.Sectors() == 0 {
		panic("empty data-disk image; run mkdisk first")
	}
	u.Ctrl.Attach(0, 1, u.datadisk)
	ide.Ide_init(2)

	fs.Filesys_init("sdb1")

	// boot is done: the boot task runs on with interrupts enabled, so a disk
	// completion reaches a task sleeping on it while the boot task yields
	mach.Intr_enable()
	return u
}

/// ShutdownFS stops the tick source and the machine and closes the images.
func ShutdownFS(u *Ufs_t) {
	timer.Timer_stop()
	mach.Mach.Stop()
	u.datadisk.Close()
}

// MkDisk writes a fresh image at path with an MBR holding the given primary
// partitions and, when logic is non-empty, an extended partition whose EBR
// chain carries the logical ones. Sizes are sector counts.
func MkDisk(path string, total_sectors int, prim []int, logic []int) error {
	if len(prim) > 3 && len(logic) > 0 || len(prim) > 4 {
		panic("too many primary partitions")
	}
	if len(logic) > 8 {
		panic("too many logical partitions")
	}
	d, err := hdd.MkFiledisk(path, total_sectors)
	if err != nil {
		return err
	}
	defer d.Close()

	sect := make([]uint8, defs.SECTSZ)
	entry := func(buf []uint8, idx int, ptype uint8, start, cnt int) {
		e := buf[446+16*idx:]
		e[4] = ptype
		util.Writen(e, 4, 8, start)
		util.Writen(e, 4, 12, cnt)
	}
	sign := func(buf []uint8) {
		buf[510] = 0x55
		buf[511] = 0xaa
	}

	next := 2048
	for i, cnt := range prim {
		entry(sect, i, 0x83, next, cnt)
		next += cnt
	}
	if len(logic) > 0 {
		ext_total := total_sectors - next
		entry(sect, len(prim), 0x05, next, ext_total)
		ext_base := next

		// EBR chain: each EBR maps its logical partition one sector in and
		// links the next EBR relative to the extended base
		ebr_lba := ext_base
		for i, cnt := range logic {
			ebr := make([]uint8, defs.SECTSZ)
			entry(ebr, 0, 0x83, 1, cnt)
			if i+1 < len(logic) {
				next_ebr := ebr_lba + 1 + cnt
				entry(ebr, 1, 0x05, next_ebr-ext_base, 1+logic[i+1])
				sign(ebr)
				d.Writesect(ebr_lba, ebr)
				ebr_lba = next_ebr
			} else {
				sign(ebr)
				d.Writesect(ebr_lba, ebr)
			}
		}
	}
	sign(sect)
	d.Writesect(0, sect)
	return nil
}

// Mkelf assembles a minimal 32-bit i386 ELF executable: one PT_LOAD segment
// carrying payload at vaddr, entered at vaddr. What execv loads and
// validates; the behavior behind the entry point is supplied by a
// registered program body.
func Mkelf(vaddr uint32, payload []uint8) []uint8 {
	const ehdr_sz = 52
	const phdr_sz = 32
	img := make([]uint8, ehdr_sz+phdr_sz+len(payload))
	copy(img, []uint8{0x7f, 'E', 'L', 'F', 1, 1, 1})
	util.Writen(img, 2, 16, 2)        // ET_EXEC
	util.Writen(img, 2, 18, 3)        // EM_386
	util.Writen(img, 4, 20, 1)        // EV_CURRENT
	util.Writen(img, 4, 24, int(vaddr))
	util.Writen(img, 4, 28, ehdr_sz)  // e_phoff
	util.Writen(img, 2, 40, ehdr_sz)  // e_ehsize
	util.Writen(img, 2, 42, phdr_sz)  // e_phentsize
	util.Writen(img, 2, 44, 1)        // e_phnum

	ph := img[ehdr_sz:]
	util.Writen(ph, 4, 0, 1) // PT_LOAD
	util.Writen(ph, 4, 4, ehdr_sz+phdr_sz)
	util.Writen(ph, 4, 8, int(vaddr))
	util.Writen(ph, 4, 12, int(vaddr))
	util.Writen(ph, 4, 16, len(payload))
	util.Writen(ph, 4, 20, len(payload))
	util.Writen(ph, 4, 24, 5) // r-x
	util.Writen(ph, 4, 28, 0x1000)

	copy(img[ehdr_sz+phdr_sz:], payload)
	return img
}

// FS helpers for tools and tests; they run in the booted kernel's boot task.

/// MkFile creates p and writes data into it.
func (u *Ufs_t) MkFile(p string, data []uint8) int {
	fd := fs.Sys_open(p, defs.O_CREAT|defs.O_RDWR)
	if fd == -1 {
		return -1
	}
	if len(data) > 0 {
		if fs.Sys_write(fd, data) != len(data) {
			fs.Sys_close(fd)
			return -1
		}
	}
	return fs.Sys_close(fd)
}

/// Append appends data to the existing file at p.
func (u *Ufs_t) Append(p string, data []uint8) int {
	fd := fs.Sys_open(p, defs.O_RDWR)
	if fd == -1 {
		return -1
	}
	// data writes always land at the end of the file
	if fs.Sys_write(fd, data) != len(data) {
		fs.Sys_close(fd)
		return -1
	}
	return fs.Sys_close(fd)
}

/// MkDir creates the directory at p.
func (u *Ufs_t) MkDir(p string) int {
	return fs.Sys_mkdir(p)
}

/// Unlink removes the file at p.
func (u *Ufs_t) Unlink(p string) int {
	return fs.Sys_unlink(p)
}

/// Rmdir removes the empty directory at p.
func (u *Ufs_t) Rmdir(p string) int {
	return fs.Sys_rmdir(p)
}

/// Stat returns p's metadata.
func (u *Ufs_t) Stat(p string) (fs.Stat_t, int) {
	var st fs.Stat_t
	ret := fs.Sys_stat(p, &st)
	return st, ret
}

/// ReadFile returns the whole contents of the file at p.
func (u *Ufs_t) ReadFile(p string) ([]uint8, int) {
	st, ret := u.Stat(p)
	if ret == -1 {
		return nil, -1
	}
	fd := fs.Sys_open(p, defs.O_RDONLY)
	if fd == -1 {
		return nil, -1
	}
	defer fs.Sys_close(fd)
	if st.St_size == 0 {
		return []uint8{}, 0
	}
	buf := make([]uint8, st.St_size)
	if fs.Sys_read(fd, buf) != int(st.St_size) {
		return nil, -1
	}
	return buf, 0
}

/// Ls lists directory p as name -> stat.
func (u *Ufs_t) Ls(p string) (map[string]fs.Stat_t, int) {
	dir := fs.Sys_opendir(p)
	if dir == nil {
		return nil, -1
	}
	defer fs.Sys_closedir(dir)
	fs.Sys_rewinddir(dir)

	res := make(map[string]fs.Stat_t)
	prefix := p
	if prefix[len(prefix)-1] != '/' {
		prefix += "/"
	}
	for de := fs.Sys_readdir(dir); de != nil; de = fs.Sys_readdir(dir) {
		if de.Filename == "." || de.Filename == ".." {
			continue
		}
		var st fs.Stat_t
		if fs.Sys_stat(prefix+de.Filename, &st) == -1 {
			return nil, -1
		}
		res[de.Filename] = st
	}
	return res, 0
}
