package proc

import "tinyos/console"
import "tinyos/defs"
import "tinyos/fs"
import "tinyos/mem"
import "tinyos/thread"
import "tinyos/util"

// 32-bit little-endian ELF layout
const (
	elf_ehdr_sz  = 52
	elf_phdr_sz  = 32
	elfclass32   = 1
	elfdata2lsb  = 1
	et_exec      = 2
	em_386       = 3
	pt_load      = 1
	max_phnum    = 1024
)

/// prog_table maps an executable's canonical path to its hosted body; exec
/// of an image without one loads the segments but has nothing to run.
var prog_table = map[string]Uprog_f{}

/// Register_prog attaches a hosted program body to an executable path.
func Register_prog(path string, body Uprog_f) {
	prog_table[path] = body
}

// segment_load brings one PT_LOAD segment into the calling process: back
// every page the segment touches (first touch only; pages may be shared
// between segments) and read the file bytes over them.
func segment_load(fd int, offset, filesz, vaddr uint32) bool {
	vaddr_first_page := mem.Vaddr_t(vaddr) &^ mem.Vaddr_t(mem.PGSIZE-1)
	size_in_first_page := uint32(mem.PGSIZE) - (vaddr & uint32(mem.PGSIZE-1))

	segment_pages := uint32(1)
	if filesz > size_in_first_page {
		segment_pages = uint32(util.Divroundup(filesz-size_in_first_page, uint32(mem.PGSIZE))) + 1
	}

	page := vaddr_first_page
	for i := uint32(0); i < segment_pages; i++ {
		if !mem.Mapped(page) {
			if mem.Get_a_page(mem.PF_USER, page) == 0 {
				console.Printk("segment_load: get_a_page failed\n")
				return false
			}
		}
		page += mem.Vaddr_t(mem.PGSIZE)
	}

	if fs.Sys_lseek(fd, int(offset), defs.SEEK_SET) == -1 {
		return false
	}
	buf := make([]uint8, filesz)
	if fs.Sys_read(fd, buf) != int(filesz) {
		return false
	}
	mem.Vmemcpy_to(mem.Vaddr_t(vaddr), buf)
	return true
}

// load parses the ELF at pathname and loads its PT_LOAD segments, returning
// the entry address or -1. The header is checked field by field: magic,
// class, endianness, version, machine, and sane program-header geometry.
func load(pathname string) int {
	fd := fs.Sys_open(pathname, defs.O_RDONLY)
	if fd == -1 {
		return -1
	}
	ret := -1
	defer fs.Sys_close(fd)

	ehdr := make([]uint8, elf_ehdr_sz)
	if fs.Sys_read(fd, ehdr) != elf_ehdr_sz {
		return -1
	}
	if ehdr[0] != 0x7f || ehdr[1] != 'E' || ehdr[2] != 'L' || ehdr[3] != 'F' {
		return -1
	}
	if ehdr[4] != elfclass32 || ehdr[5] != elfdata2lsb || ehdr[6] != 1 {
		return -1
	}
	e_type := util.Readn(ehdr, 2, 16)
	e_machine := util.Readn(ehdr, 2, 18)
	e_version := util.Readn(ehdr, 4, 20)
	e_entry := util.Readn(ehdr, 4, 24)
	e_phoff := util.Readn(ehdr, 4, 28)
	e_phentsize := util.Readn(ehdr, 2, 42)
	e_phnum := util.Readn(ehdr, 2, 44)
	if e_type != et_exec || e_machine != em_386 || e_version != 1 {
		return -1
	}
	if e_phnum > max_phnum || e_phentsize != elf_phdr_sz || e_phoff <= 0 {
		return -1
	}

	phdr := make([]uint8, elf_phdr_sz)
	prog_header_offset := e_phoff
	for prog_idx := 0; prog_idx < e_phnum; prog_idx++ {
		if fs.Sys_lseek(fd, prog_header_offset, defs.SEEK_SET) == -1 {
			return -1
		}
		if fs.Sys_read(fd, phdr) != elf_phdr_sz {
			return -1
		}
		p_type := util.Readn(phdr, 4, 0)
		p_offset := util.Readn(phdr, 4, 4)
		p_vaddr := util.Readn(phdr, 4, 8)
		p_filesz := util.Readn(phdr, 4, 16)
		p_memsz := util.Readn(phdr, 4, 20)

		if p_type == pt_load {
			if p_filesz > p_memsz {
				return -1
			}
			if uint32(p_vaddr) < uint32(mem.USER_VADDR_START) ||
				uint32(p_vaddr)+uint32(p_filesz) >= uint32(mem.KERNBASE) {
				return -1
			}
			if !segment_load(fd, uint32(p_offset), uint32(p_filesz), uint32(p_vaddr)) {
				return -1
			}
		}
		prog_header_offset += e_phentsize
	}
	ret = e_entry
	return ret
}

// Sys_execv replaces the calling process image with the executable at path:
// segments are loaded into the current address space, the trap frame restarts
// at the new entry with argc in ecx (argv is handed to the program body
// directly, not through ebx), and control leaves through the interrupt-exit
// trampoline. It only returns on failure.
func Sys_execv(path string, argv []string) int {
	argc := len(argv)
	entry_point := load(path)
	if entry_point == -1 {
		return -1
	}

	cur := thread.Running_thread()
	name := path
	if len(name) > 15 {
		name = name[:15]
	}
	cur.Name = name

	tf := &cur.Tf
	tf.Ecx = uint32(argc)
	tf.Eip = uint32(entry_point)
	tf.Esp = uint32(mem.KERNBASE)

	up := &uproc_t{body: prog_table[path], argc: argc, argv: argv}
	intr_exit(cur, up)
	thread.Thread_exit()
	return 0
}
