package proc

import "tinyos/bitmap"
import "tinyos/defs"
import "tinyos/fs"
import "tinyos/mach"
import "tinyos/mem"
import "tinyos/thread"

// copy_pcb_and_vaddr_bitmap clones the parent's PCB into child and gives the
// child its own copy of the user virtual-address bitmap; the arena
// descriptors restart empty, their free lists belonged to the parent's
// pages.
func copy_pcb_and_vaddr_bitmap(child, parent *thread.Task_t) int {
	thread.Clone_pcb(child, parent)
	mem.Block_desc_init(&child.U_mb_descs)

	src := parent.Userprog_vaddr.Vaddr_bitmap
	dst := bitmap.MkBitmap(src.Btmp_bytes_len)
	copy(dst.Bits, src.Bits)
	child.Userprog_vaddr.Vaddr_start = parent.Userprog_vaddr.Vaddr_start
	child.Userprog_vaddr.Vaddr_bitmap = dst
	return 0
}

// copy_body_and_userstack copies every present user page of the parent into
// the child through a kernel scratch page: read the page while the parent's
// directory is loaded, switch to the child's, back the same virtual address
// with a fresh frame (the bitmap was cloned already), copy in, switch back.
func copy_body_and_userstack(child, parent *thread.Task_t, scratch mem.Vaddr_t) int {
	vb := parent.Userprog_vaddr.Vaddr_bitmap
	vstart := parent.Userprog_vaddr.Vaddr_start
	scratch_pa := mem.Addr_v2p(scratch)

	for idx_byte := 0; idx_byte < vb.Btmp_bytes_len; idx_byte++ {
		if vb.Bits[idx_byte] == 0 {
			continue
		}
		for idx_bit := 0; idx_bit < 8; idx_bit++ {
			if vb.Bits[idx_byte]&(1<<uint(idx_bit)) == 0 {
				continue
			}
			vaddr := vstart + mem.Vaddr_t((idx_byte*8+idx_bit)*mem.PGSIZE)

			copy(mem.Pa_slice(scratch_pa, mem.PGSIZE),
				mem.Pa_slice(mem.Addr_v2p(vaddr), mem.PGSIZE))

			mem.Set_cur_pgdir(child.Pg_dir)
			if mem.Get_a_page_without_bitmap(mem.PF_USER, vaddr) == 0 {
				mem.Set_cur_pgdir(parent.Pg_dir)
				return -1
			}
			copy(mem.Pa_slice(mem.Addr_v2p(vaddr), mem.PGSIZE),
				mem.Pa_slice(scratch_pa, mem.PGSIZE))
			mem.Set_cur_pgdir(parent.Pg_dir)
		}
	}
	return 0
}

// build_child_stack stages the child's first dispatch: the trap frame
// returns zero in eax and the context frame lands in the interrupt-exit
// trampoline, so the child enters user mode as if its own fork() just came
// back.
func build_child_stack(child *thread.Task_t, cont func(defs.Pid_t)) int {
	child.Tf.Eax = 0
	up := &uproc_t{}
	if cont != nil {
		up.body = func(argc int, argv []string) { cont(0) }
	}
	thread.Thread_create(child, func(arg interface{}) {
		intr_exit(child, arg.(*uproc_t))
	}, up)
	return 0
}

// update_inode_open_cnt bumps the open count of every file the child
// inherited through its fd table.
func update_inode_open_cnt(child *thread.Task_t) {
	for local_fd := 3; local_fd < defs.MAX_FILES_OPEN_PROC; local_fd++ {
		g := child.Fd_table[local_fd]
		if g == -1 {
			continue
		}
		if g < 0 || g >= defs.MAX_FILES_OPEN {
			mach.Panic("fork fd slot %d", g)
		}
		if fs.File_table[g].Fd_inode == nil {
			mach.Panic("forked fd %d with no inode", local_fd)
		}
		fs.File_table[g].Fd_inode.I_open_cnt++
	}
}

func copy_process(child, parent *thread.Task_t, cont func(defs.Pid_t)) int {
	scratch := mem.Get_kernel_pages(1)
	if scratch == 0 {
		return -1
	}
	defer mem.Mfree_page(mem.PF_KERNEL, scratch, 1)

	if copy_pcb_and_vaddr_bitmap(child, parent) == -1 {
		return -1
	}
	child.Pg_dir = Create_page_dir()
	if child.Pg_dir == 0 {
		return -1
	}
	if copy_body_and_userstack(child, parent, scratch) == -1 {
		return -1
	}
	build_child_stack(child, cont)
	update_inode_open_cnt(child)
	return 0
}

// Sys_fork duplicates the calling user process and returns the child's PID
// (the child's own entry sees zero through its trap frame).
func Sys_fork(cont func(defs.Pid_t)) defs.Pid_t {
	parent := thread.Running_thread()
	if parent.Pg_dir == 0 {
		mach.Panic("fork of kernel thread %s", parent.Name)
	}
	child := &thread.Task_t{}
	if copy_process(child, parent, cont) == -1 {
		return -1
	}
	thread.Attach(child)
	return child.Pid
}
