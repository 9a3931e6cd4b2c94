package proc

import "tinyos/console"
import "tinyos/defs"
import "tinyos/fs"
import "tinyos/mach"
import "tinyos/thread"

// Sysargs_t is a syscall's register block: the number that lands in eax and
// up to three arguments from ebx/ecx/edx. On this hosted machine arguments
// that were user pointers travel as Go values; numeric ones are mirrored
// into the trap frame as the real machine would see them.
type Sysargs_t struct {
	Nr         int
	A0, A1, A2 interface{}
	Ret        interface{}
}

type syscall_f func(a *Sysargs_t)

var syscall_table [defs.SYSCALL_NR]syscall_f

// syscall_handler is the vector-0x80 gate: route through the numbered table
// and write the result back into the caller's "eax".
func syscall_handler(vec int) {
	cur := thread.Running_thread()
	a, ok := cur.Syscall_args.(*Sysargs_t)
	if !ok || a == nil {
		mach.Panic("syscall with no argument block")
	}
	if a.Nr < 0 || a.Nr >= defs.SYSCALL_NR || syscall_table[a.Nr] == nil {
		mach.Panic("bad syscall number %d", a.Nr)
	}
	cur.Tf.Eax = uint32(a.Nr)
	regs := []*uint32{&cur.Tf.Ebx, &cur.Tf.Ecx, &cur.Tf.Edx}
	for i, v := range []interface{}{a.A0, a.A1, a.A2} {
		switch n := v.(type) {
		case int:
			*regs[i] = uint32(n)
		case uint32:
			*regs[i] = n
		case uint8:
			*regs[i] = uint32(n)
		}
	}
	syscall_table[a.Nr](a)
	if ret, isint := a.Ret.(int); isint {
		cur.Tf.Eax = uint32(ret)
	}
}

// syscall enters the kernel through the software-interrupt gate.
func syscall(a *Sysargs_t) interface{} {
	cur := thread.Running_thread()
	cur.Syscall_args = a
	mach.Softint(mach.T_SYSCALL)
	cur.Syscall_args = nil
	return a.Ret
}

/// Sys_getpid returns the calling task's PID.
func Sys_getpid() defs.Pid_t {
	return thread.Running_thread().Pid
}

// Syscall_init fills the dispatch table.
func Syscall_init() {
	console.Printk("syscall_init start\n")
	syscall_table[defs.SYS_GETPID] = func(a *Sysargs_t) { a.Ret = int(Sys_getpid()) }
	syscall_table[defs.SYS_WRITE] = func(a *Sysargs_t) {
		a.Ret = fs.Sys_write(a.A0.(int), a.A1.([]uint8))
	}
	syscall_table[defs.SYS_FORK] = func(a *Sysargs_t) {
		cont, _ := a.A0.(func(defs.Pid_t))
		a.Ret = int(Sys_fork(cont))
	}
	syscall_table[defs.SYS_READ] = func(a *Sysargs_t) {
		a.Ret = fs.Sys_read(a.A0.(int), a.A1.([]uint8))
	}
	syscall_table[defs.SYS_PUTCHAR] = func(a *Sysargs_t) { console.Put_char(a.A0.(byte)) }
	syscall_table[defs.SYS_CLEAR] = func(a *Sysargs_t) { console.Clear() }
	syscall_table[defs.SYS_GETCWD] = func(a *Sysargs_t) { a.Ret = fs.Sys_getcwd() }
	syscall_table[defs.SYS_OPEN] = func(a *Sysargs_t) {
		a.Ret = fs.Sys_open(a.A0.(string), a.A1.(uint32))
	}
	syscall_table[defs.SYS_CLOSE] = func(a *Sysargs_t) { a.Ret = fs.Sys_close(a.A0.(int)) }
	syscall_table[defs.SYS_LSEEK] = func(a *Sysargs_t) {
		a.Ret = fs.Sys_lseek(a.A0.(int), a.A1.(int), a.A2.(int))
	}
	syscall_table[defs.SYS_UNLINK] = func(a *Sysargs_t) { a.Ret = fs.Sys_unlink(a.A0.(string)) }
	syscall_table[defs.SYS_MKDIR] = func(a *Sysargs_t) { a.Ret = fs.Sys_mkdir(a.A0.(string)) }
	syscall_table[defs.SYS_OPENDIR] = func(a *Sysargs_t) { a.Ret = fs.Sys_opendir(a.A0.(string)) }
	syscall_table[defs.SYS_CLOSEDIR] = func(a *Sysargs_t) {
		dir, _ := a.A0.(*fs.Dir_t)
		a.Ret = fs.Sys_closedir(dir)
	}
	syscall_table[defs.SYS_CHDIR] = func(a *Sysargs_t) { a.Ret = fs.Sys_chdir(a.A0.(string)) }
	syscall_table[defs.SYS_RMDIR] = func(a *Sysargs_t) { a.Ret = fs.Sys_rmdir(a.A0.(string)) }
	syscall_table[defs.SYS_READDIR] = func(a *Sysargs_t) { a.Ret = fs.Sys_readdir(a.A0.(*fs.Dir_t)) }
	syscall_table[defs.SYS_REWINDDIR] = func(a *Sysargs_t) { fs.Sys_rewinddir(a.A0.(*fs.Dir_t)) }
	syscall_table[defs.SYS_STAT] = func(a *Sysargs_t) {
		a.Ret = fs.Sys_stat(a.A0.(string), a.A1.(*fs.Stat_t))
	}
	syscall_table[defs.SYS_PS] = func(a *Sysargs_t) { thread.Sys_ps(console.Put_str) }
	syscall_table[defs.SYS_EXECV] = func(a *Sysargs_t) {
		a.Ret = Sys_execv(a.A0.(string), a.A1.([]string))
	}
	mach.Register_handler(mach.T_SYSCALL, syscall_handler)
	console.Printk("syscall_init done\n")
}

// The user-side wrappers: stage the register block and trap.

/// Getpid returns the caller's PID.
func Getpid() defs.Pid_t {
	return defs.Pid_t(syscall(&Sysargs_t{Nr: defs.SYS_GETPID}).(int))
}

/// Write writes buf to fd.
func Write(fd int, buf []uint8) int {
	return syscall(&Sysargs_t{Nr: defs.SYS_WRITE, A0: fd, A1: buf}).(int)
}

/// Read reads len(buf) bytes from fd.
func Read(fd int, buf []uint8) int {
	return syscall(&Sysargs_t{Nr: defs.SYS_READ, A0: fd, A1: buf}).(int)
}

/// Putchar writes one character to the console.
func Putchar(c byte) {
	syscall(&Sysargs_t{Nr: defs.SYS_PUTCHAR, A0: c})
}

/// Clear clears the screen.
func Clear() {
	syscall(&Sysargs_t{Nr: defs.SYS_CLEAR})
}

/// Getcwd returns the caller's working directory.
func Getcwd() string {
	return syscall(&Sysargs_t{Nr: defs.SYS_GETCWD}).(string)
}

/// Open opens path with the given flags.
func Open(path string, flag uint32) int {
	return syscall(&Sysargs_t{Nr: defs.SYS_OPEN, A0: path, A1: flag}).(int)
}

/// Close closes fd.
func Close(fd int) int {
	return syscall(&Sysargs_t{Nr: defs.SYS_CLOSE, A0: fd}).(int)
}

/// Lseek repositions fd.
func Lseek(fd, offset, whence int) int {
	return syscall(&Sysargs_t{Nr: defs.SYS_LSEEK, A0: fd, A1: offset, A2: whence}).(int)
}

/// Unlink removes the file at path.
func Unlink(path string) int {
	return syscall(&Sysargs_t{Nr: defs.SYS_UNLINK, A0: path}).(int)
}

/// Mkdir creates a directory at path.
func Mkdir(path string) int {
	return syscall(&Sysargs_t{Nr: defs.SYS_MKDIR, A0: path}).(int)
}

/// Opendir opens the directory at path.
func Opendir(path string) *fs.Dir_t {
	ret := syscall(&Sysargs_t{Nr: defs.SYS_OPENDIR, A0: path})
	dir, _ := ret.(*fs.Dir_t)
	return dir
}

/// Closedir closes a directory.
func Closedir(dir *fs.Dir_t) int {
	return syscall(&Sysargs_t{Nr: defs.SYS_CLOSEDIR, A0: dir}).(int)
}

/// Readdir returns the directory's next entry, or nil.
func Readdir(dir *fs.Dir_t) *fs.Dir_entry_t {
	ret := syscall(&Sysargs_t{Nr: defs.SYS_READDIR, A0: dir})
	de, _ := ret.(*fs.Dir_entry_t)
	return de
}

/// Rewinddir resets the directory cursor.
func Rewinddir(dir *fs.Dir_t) {
	syscall(&Sysargs_t{Nr: defs.SYS_REWINDDIR, A0: dir})
}

/// Chdir changes the working directory.
func Chdir(path string) int {
	return syscall(&Sysargs_t{Nr: defs.SYS_CHDIR, A0: path}).(int)
}

/// Rmdir removes an empty directory.
func Rmdir(path string) int {
	return syscall(&Sysargs_t{Nr: defs.SYS_RMDIR, A0: path}).(int)
}

/// Stat fills st for path.
func Stat(path string, st *fs.Stat_t) int {
	return syscall(&Sysargs_t{Nr: defs.SYS_STAT, A0: path, A1: st}).(int)
}

/// Ps prints the task table.
func Ps() {
	syscall(&Sysargs_t{Nr: defs.SYS_PS})
}

/// Execv replaces the calling process image; it does not return on success.
func Execv(path string, argv []string) int {
	return syscall(&Sysargs_t{Nr: defs.SYS_EXECV, A0: path, A1: argv}).(int)
}

// Fork duplicates the calling process. The continuation runs twice: with the
// child's PID on the parent and with zero on the child (the hosted machine
// cannot resume a Go stack twice, so the post-fork code is passed
// explicitly; the kernel-side duplication is the full fork).
func Fork(cont func(ret defs.Pid_t)) {
	pid := defs.Pid_t(syscall(&Sysargs_t{Nr: defs.SYS_FORK, A0: cont}).(int))
	if pid == -1 {
		cont(-1)
		return
	}
	cont(pid)
}
