// Package thread implements the task model: the PCB, the FIFO round-robin
// scheduler with an idle task, blocking and wakeup, and the per-task state
// (fd table, working directory, user memory bookkeeping) everything above it
// builds on.
//
// A task runs on its own goroutine, but the kernel is strictly uniprocessor:
// the context switch hands a CPU token over the task's wake channel, so at
// most one task executes kernel code at any moment and "interrupts off" is a
// complete critical section, exactly as in the machine this models.
package thread

import "fmt"
import "runtime"

import "tinyos/accnt"
import "tinyos/defs"
import "tinyos/klist"
import "tinyos/ksync"
import "tinyos/mach"
import "tinyos/mem"

/// Status_t is a task's scheduling state.
type Status_t int

const (
	TASK_RUNNING Status_t = iota
	TASK_READY
	TASK_BLOCKED
	TASK_WAITING
	TASK_HANGING
	TASK_DIED
)

func (s Status_t) String() string {
	switch s {
	case TASK_RUNNING:
		return "RUNNING"
	case TASK_READY:
		return "READY"
	case TASK_BLOCKED:
		return "BLOCKED"
	case TASK_WAITING:
		return "WAITING"
	case TASK_HANGING:
		return "HANGING"
	case TASK_DIED:
		return "DIED"
	}
	return "?"
}

/// Trapframe_t is the register save area built by the interrupt entry stub.
/// It is kept in the PCB itself (Task_t.Tf); for user tasks exec and fork
/// rewrite it, and eip/esp/ebx/ecx/eax carry the user-visible ABI.
type Trapframe_t struct {
	Vec_no uint32
	Edi    uint32
	Esi    uint32
	Ebp    uint32
	Esp_dummy uint32
	Ebx    uint32
	Edx    uint32
	Ecx    uint32
	Eax    uint32
	Gs, Fs, Es, Ds uint32
	Err_code uint32
	Eip    uint32
	Cs     uint32
	Eflags uint32
	Esp    uint32
	Ss     uint32
}

/// Thread_func is a kernel thread body.
type Thread_func func(arg interface{})

/// Task_t is the PCB. Each task also owns one kernel page (Kstack) for its
/// kernel stack, and the magic word at the PCB is checked on every tick.
type Task_t struct {
	wake chan struct{} // CPU token; receiving it means this task runs

	Kstack   mem.Vaddr_t
	Pid      defs.Pid_t
	Status   Status_t
	Priority uint8
	Name     string

	Ticks         uint8
	Elapsed_ticks uint32
	Accnt         accnt.Accnt_t

	Fd_table [defs.MAX_FILES_OPEN_PROC]int32

	General_tag  klist.Elem_t
	All_list_tag klist.Elem_t

	// page directory; zero for kernel threads
	Pg_dir mem.Pa_t

	Userprog_vaddr mem.Vaddrpool_t
	U_mb_descs     [mem.MB_DESC_CNT]mem.Blkdesc_t

	Cwd_inode_nr uint32
	Parent_pid   defs.Pid_t

	Tf Trapframe_t

	// hosted user program attached by exec/fork; opaque here
	Uprog interface{}

	// in-flight syscall argument block, staged by the user-side wrappers
	Syscall_args interface{}

	Stack_magic uint32
}

// Memowner_i for the memory manager.

func (t *Task_t) Pgdir() mem.Pa_t             { return t.Pg_dir }
func (t *Task_t) Uvaddr() *mem.Vaddrpool_t    { return &t.Userprog_vaddr }
func (t *Task_t) Ublkdescs() *[mem.MB_DESC_CNT]mem.Blkdesc_t { return &t.U_mb_descs }

var main_thread *Task_t
var idle_thread *Task_t
var cur *Task_t

var thread_ready_list klist.List_t
var thread_all_list klist.List_t
var pid_lock ksync.Lock_t
var next_pid defs.Pid_t

/// Tss_esp0 is the ring-0 stack the single TSS points at; process activation
/// refreshes it to the top of the incoming task's PCB page.
var Tss_esp0 mem.Vaddr_t

/// Running_thread returns the current task's PCB.
func Running_thread() *Task_t {
	return cur
}

func allocate_pid() defs.Pid_t {
	pid_lock.Acquire()
	next_pid++
	pid := next_pid
	pid_lock.Release()
	return pid
}

/// Fork_pid hands out a fresh PID for a forked child.
func Fork_pid() defs.Pid_t {
	return allocate_pid()
}

// Init_thread fills in a PCB: fresh PID, time slice from the priority, fds
// 0/1/2 preopened, root cwd, no parent, and the overflow magic.
func Init_thread(t *Task_t, name string, priority int) {
	t.Pid = allocate_pid()
	t.Name = name
	if t == main_thread {
		t.Status = TASK_RUNNING
	} else {
		t.Status = TASK_READY
	}
	t.Priority = uint8(priority)
	t.Ticks = uint8(priority)
	t.Elapsed_ticks = 0
	t.Pg_dir = 0
	t.Fd_table[0] = defs.STDIN_NO
	t.Fd_table[1] = defs.STDOUT_NO
	t.Fd_table[2] = defs.STDERR_NO
	for i := 3; i < defs.MAX_FILES_OPEN_PROC; i++ {
		t.Fd_table[i] = -1
	}
	t.Cwd_inode_nr = 0
	t.Parent_pid = -1
	t.Stack_magic = defs.STACK_MAGIC
	t.General_tag.Owner = t
	t.All_list_tag.Owner = t
	t.wake = make(chan struct{}, 1)
}

// Thread_create arms the task's first dispatch: when the scheduler first
// hands it the CPU the trampoline enables interrupts and calls the body.
func Thread_create(t *Task_t, function Thread_func, arg interface{}) {
	go func() {
		<-t.wake
		mach.Intr_enable()
		function(arg)
		Thread_exit()
	}()
}

/// Thread_start creates and readies a kernel thread. The PCB's kernel-stack
/// page comes from the kernel pool.
func Thread_start(name string, priority int, function Thread_func, arg interface{}) *Task_t {
	t := &Task_t{}
	t.Kstack = mem.Get_kernel_pages(1)
	if t.Kstack == 0 {
		mach.Panic("no page for PCB of %s", name)
	}
	Init_thread(t, name, priority)
	Thread_create(t, function, arg)

	old := mach.Intr_disable()
	thread_ready_list.Append(&t.General_tag)
	thread_all_list.Append(&t.All_list_tag)
	mach.Intr_set_status(old)
	return t
}

/// Attach attaches an already-initialized task (a user process or a forked
/// child) to the ready and all-task lists.
func Attach(t *Task_t) {
	old := mach.Intr_disable()
	thread_ready_list.Append(&t.General_tag)
	thread_all_list.Append(&t.All_list_tag)
	mach.Intr_set_status(old)
}

func make_main_thread() {
	main_thread = &Task_t{}
	main_thread.Kstack = mem.Get_kernel_pages(1)
	cur = main_thread
	Init_thread(main_thread, "main", 31)
	thread_all_list.Append(&main_thread.All_list_tag)
}

// process_activate loads the task's page directory (kernel directory for
// kernel threads) and, for user processes, points the TSS's esp0 at the top
// of the task's kernel-stack page.
func process_activate(t *Task_t) {
	mem.Set_cur_pgdir(t.Pg_dir)
	if t.Pg_dir != 0 {
		Tss_esp0 = t.Kstack + mem.Vaddr_t(mem.PGSIZE)
	}
}

// Schedule picks the next task. Preconditions: interrupts off. A task whose
// slice expired goes to the back of the ready list with a fresh slice; if
// nothing is runnable the idle task is woken.
func Schedule() {
	if mach.Intr_get_status() {
		mach.Panic("schedule with interrupts on")
	}
	prev := cur
	if prev.Status == TASK_RUNNING {
		if thread_ready_list.Find(&prev.General_tag) {
			mach.Panic("running task on ready list")
		}
		thread_ready_list.Append(&prev.General_tag)
		prev.Ticks = prev.Priority
		prev.Status = TASK_READY
	}

	if thread_ready_list.Empty() {
		Thread_unblock(idle_thread)
	}
	next := thread_ready_list.Pop().Owner.(*Task_t)
	next.Status = TASK_RUNNING
	process_activate(next)
	switch_to(prev, next)
}

// switch_to hands the CPU token to next and parks the outgoing task until it
// is handed back. Nothing may touch kernel state between the two steps. A
// dead task hands the token over and its goroutine ends.
func switch_to(prev, next *Task_t) {
	cur = next
	if prev == next {
		return
	}
	if prev.Status == TASK_DIED {
		next.wake <- struct{}{}
		runtime.Goexit()
	}
	next.wake <- struct{}{}
	<-prev.wake
}

/// Thread_block takes the current task off the CPU in the given state.
func Thread_block(stat Status_t) {
	if stat != TASK_BLOCKED && stat != TASK_WAITING && stat != TASK_HANGING {
		mach.Panic("block with state %v", stat)
	}
	old := mach.Intr_disable()
	cur.Status = stat
	Schedule()
	mach.Intr_set_status(old)
}

/// Thread_unblock puts a blocked task at the front of the ready list.
func Thread_unblock(t *Task_t) {
	old := mach.Intr_disable()
	if t.Status != TASK_BLOCKED && t.Status != TASK_WAITING && t.Status != TASK_HANGING {
		mach.Panic("unblock of %s in state %v", t.Name, t.Status)
	}
	if thread_ready_list.Find(&t.General_tag) {
		mach.Panic("blocked thread on ready list")
	}
	thread_ready_list.Push(&t.General_tag)
	t.Status = TASK_READY
	mach.Intr_set_status(old)
}

/// Thread_yield gives up the CPU but stays runnable.
func Thread_yield() {
	old := mach.Intr_disable()
	if thread_ready_list.Find(&cur.General_tag) {
		mach.Panic("yielding task on ready list")
	}
	thread_ready_list.Append(&cur.General_tag)
	cur.Status = TASK_READY
	Schedule()
	mach.Intr_set_status(old)
}

// Thread_exit ends the calling task: it leaves the all-tasks list, turns
// DIED and gives the CPU away for good.
func Thread_exit() {
	mach.Intr_disable()
	cur.Status = TASK_DIED
	klist.Remove(&cur.All_list_tag)
	Schedule()
	mach.Panic("dead task rescheduled")
}

// the idle task: block until the scheduler finds the ready list empty, then
// halt until an interrupt readies someone.
func idle(arg interface{}) {
	for {
		Thread_block(TASK_BLOCKED)
		// an interrupt delivered while resuming may already have readied
		// someone; halting then would wait for an IRQ that is not coming
		if thread_ready_list.Empty() {
			mach.Hlt()
		}
	}
}

// Tick is the timer interrupt's work: account the running task's time, check
// the PCB guard word and preempt when the slice is used up.
func Tick(tick_ns int) {
	t := cur
	if t.Stack_magic != defs.STACK_MAGIC {
		mach.Panic("PCB of %s trashed, magic %#x", t.Name, t.Stack_magic)
	}
	t.Elapsed_ticks++
	if t.Pg_dir != 0 {
		t.Accnt.Utadd(tick_ns)
	} else {
		t.Accnt.Systadd(tick_ns)
	}
	if t.Ticks == 0 {
		Schedule()
	} else {
		t.Ticks--
	}
}

// Clone_pcb copies the parent's PCB into child and resets everything that
// must be private: a fresh kernel-stack page and CPU token, a new PID, a
// full time slice and detached list tags.
func Clone_pcb(child, parent *Task_t) {
	*child = *parent
	child.wake = make(chan struct{}, 1)
	child.Kstack = mem.Get_kernel_pages(1)
	if child.Kstack == 0 {
		mach.Panic("no page for forked PCB")
	}
	child.Pid = Fork_pid()
	child.Elapsed_ticks = 0
	child.Status = TASK_READY
	child.Ticks = child.Priority
	child.Parent_pid = parent.Pid
	child.Accnt = accnt.Accnt_t{}
	child.Uprog = nil
	child.Syscall_args = nil
	child.General_tag = klist.Elem_t{Owner: child}
	child.All_list_tag = klist.Elem_t{Owner: child}
	if len(child.Name) >= 11 {
		child.Name = child.Name[:10]
	}
	child.Name += "_fork"
}

// scheduler hook for the sync primitives

type sched_t struct{}

func (sched_t) Block_on(w *klist.List_t) {
	if w.Find(&cur.General_tag) {
		mach.Panic("blocked task already on wait list")
	}
	w.Append(&cur.General_tag)
	Thread_block(TASK_BLOCKED)
}

func (sched_t) Unblock(owner interface{}) {
	Thread_unblock(owner.(*Task_t))
}

func (sched_t) Running() interface{} {
	if cur == nil {
		return nil
	}
	return cur
}

// Sys_ps writes one line per live task through the given writer.
func Sys_ps(w func(string)) {
	w(fmt.Sprintf("%-8s%-8s%-10s%-8s%s\n", "PID", "PPID", "STAT", "TICKS", "COMMAND"))
	old := mach.Intr_disable()
	thread_all_list.Traversal(0, func(e *klist.Elem_t, _ int) bool {
		t := e.Owner.(*Task_t)
		ppid := "NULL"
		if t.Parent_pid != -1 {
			ppid = fmt.Sprintf("%d", t.Parent_pid)
		}
		w(fmt.Sprintf("%-8d%-8s%-10s%-8d%s\n", t.Pid, ppid, t.Status, t.Elapsed_ticks, t.Name))
		return false
	})
	mach.Intr_set_status(old)
}

/// Task_alive reports whether a task with the given PID is still live.
func Task_alive(pid defs.Pid_t) bool {
	found := false
	All_tasks(func(t *Task_t) {
		if t.Pid == pid && t.Status != TASK_DIED {
			found = true
		}
	})
	return found
}

/// All_tasks applies f to every live task.
func All_tasks(f func(*Task_t)) {
	old := mach.Intr_disable()
	thread_all_list.Traversal(0, func(e *klist.Elem_t, _ int) bool {
		f(e.Owner.(*Task_t))
		return false
	})
	mach.Intr_set_status(old)
}

/// Thread_init synthesizes a PCB for the boot flow, starts the idle task and
/// wires the scheduler into the sync primitives and the memory manager.
func Thread_init() {
	thread_ready_list.Init()
	thread_all_list.Init()
	pid_lock.Lock_init()
	next_pid = 0
	make_main_thread()
	ksync.Set_sched(sched_t{})
	mem.Running = func() mem.Memowner_i {
		if cur == nil {
			return nil
		}
		return cur
	}
	idle_thread = Thread_start("idle", 10, idle, nil)
}
