// Package proc turns kernel threads into user processes: a private page
// directory sharing the kernel's upper mappings, a user virtual-address
// bitmap, ring-3 entry through a trap frame, the numbered syscall table, and
// fork/execv on top.
//
// On this hosted machine "user code" is a Go function attached to the task;
// entering ring 3 means invoking it after the trap frame has been staged,
// and a loaded ELF executes only if a program body was registered for it.
package proc

import "tinyos/bitmap"
import "tinyos/console"
import "tinyos/mach"
import "tinyos/mem"
import "tinyos/thread"
import "tinyos/util"

/// Default_prio is the time slice of a new user process.
const Default_prio = 31

// ring-3 segment selectors and the mandatory eflags bits of the entry frame
const (
	selector_u_code = 0x4b
	selector_u_data = 0x53
	eflags_mbs      = 1 << 1
	eflags_if_1     = 1 << 9
)

/// Uprog_f is a user program body: argc/argv as execv delivers them.
type Uprog_f func(argc int, argv []string)

// uproc_t is the hosted rendering of the user half of a task: the program
// body and its arguments, run when the trap-frame "iret" happens.
type uproc_t struct {
	body Uprog_f
	argc int
	argv []string
}

// Create_page_dir builds a process page directory: the kernel's 255 upper
// entries (768..1022) are copied in so every process sees the kernel identically, and
// the last slot points back at the directory itself.
func Create_page_dir() mem.Pa_t {
	pgdir_vaddr := mem.Get_kernel_pages(1)
	if pgdir_vaddr == 0 {
		console.Printk("create_page_dir: get_kernel_pages failed!\n")
		return 0
	}
	pgdir_pa := mem.Addr_v2p(pgdir_vaddr)

	// kernel PDEs 768..1022 plus the self-map slot
	copy(mem.Pa_slice(pgdir_pa+mem.Pa_t(768*4), 255*4),
		mem.Pa_slice(mem.KERN_PGDIR+mem.Pa_t(768*4), 255*4))
	util.Writen(mem.Pa_slice(pgdir_pa+mem.Pa_t(1023*4), 4), 4, 0,
		int(uint32(pgdir_pa)|mem.PG_US|mem.PG_RW|mem.PG_P))
	return pgdir_pa
}

// Create_user_vaddr_bitmap sizes a process's virtual pool over
// [USER_VADDR_START, 3 GiB).
func Create_user_vaddr_bitmap(t *thread.Task_t) {
	t.Userprog_vaddr.Vaddr_start = mem.USER_VADDR_START
	bytes_len := int(uint32(mem.KERNBASE)-uint32(mem.USER_VADDR_START)) / mem.PGSIZE / 8
	t.Userprog_vaddr.Vaddr_bitmap = bitmap.MkBitmap(bytes_len)
}

// start_process is the first code a user task runs in the kernel: stage the
// ring-3 trap frame, allocate the user stack page, and "iret" into the body.
func start_process(arg interface{}) {
	up := arg.(*uproc_t)
	cur := thread.Running_thread()

	tf := &cur.Tf
	tf.Edi, tf.Esi, tf.Ebp, tf.Esp_dummy = 0, 0, 0, 0
	tf.Ebx, tf.Edx, tf.Ecx, tf.Eax = 0, 0, 0, 0
	tf.Gs = 0
	tf.Ds, tf.Es, tf.Fs = selector_u_data, selector_u_data, selector_u_data
	tf.Cs = selector_u_code
	tf.Eflags = eflags_if_1 | eflags_mbs
	tf.Ss = selector_u_data
	tf.Esp = uint32(mem.Get_a_page(mem.PF_USER, mem.USER_STACK3_VADDR)) + uint32(mem.PGSIZE)

	intr_exit(cur, up)
}

// intr_exit is the interrupt-exit trampoline: control falls to ring 3 at the
// trap frame's eip, with the frame's eflags (IF set) restored. Here that
// means calling the attached program body; a process whose image has no
// hosted body has nothing to execute and dies.
func intr_exit(cur *thread.Task_t, up *uproc_t) {
	mach.Intr_enable()
	if up != nil && up.body != nil {
		cur.Uprog = up
		up.body(up.argc, up.argv)
	} else {
		console.Printk("%s: no executable body at eip %#x\n", cur.Name, cur.Tf.Eip)
	}
}

// Process_execute creates a user process running body under the given name
// and hands it to the scheduler.
func Process_execute(body Uprog_f, name string) *thread.Task_t {
	t := &thread.Task_t{}
	t.Kstack = mem.Get_kernel_pages(1)
	if t.Kstack == 0 {
		mach.Panic("no page for PCB of %s", name)
	}
	thread.Init_thread(t, name, Default_prio)
	Create_user_vaddr_bitmap(t)
	thread.Thread_create(t, start_process, &uproc_t{body: body})
	t.Pg_dir = Create_page_dir()
	if t.Pg_dir == 0 {
		mach.Panic("no page directory for %s", name)
	}
	mem.Block_desc_init(&t.U_mb_descs)
	thread.Attach(t)
	return t
}
