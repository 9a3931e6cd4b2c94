package proc_test

import "testing"

import "tinyos/defs"
import "tinyos/fs"
import "tinyos/mem"
import "tinyos/proc"
import "tinyos/thread"
import "tinyos/ufs"

func boot(t *testing.T) *ufs.Ufs_t {
	t.Helper()
	img := t.TempDir() + "/disk.img"
	if err := ufs.MkDisk(img, 40000, []int{20000}, nil); err != nil {
		t.Fatal(err)
	}
	u := ufs.BootFS(img, ufs.Bootopts_t{})
	t.Cleanup(func() { ufs.ShutdownFS(u) })
	return u
}

func spin(t *testing.T, cond func() bool) {
	t.Helper()
	for i := 0; i < 5_000_000; i++ {
		if cond() {
			return
		}
		thread.Thread_yield()
	}
	t.Fatalf("condition never held")
}

func TestUserProcess(t *testing.T) {
	boot(t)
	var pid defs.Pid_t
	done := false
	tk := proc.Process_execute(func(argc int, argv []string) {
		pid = proc.Getpid()
		done = true
	}, "u_prog_a")
	spin(t, func() bool { return done })
	if pid != tk.Pid {
		t.Fatalf("getpid() = %d, task pid %d", pid, tk.Pid)
	}
	if tk.Pg_dir == 0 {
		t.Fatalf("user process without page directory")
	}
}

func TestUserHeap(t *testing.T) {
	boot(t)
	done := false
	var va, vb mem.Vaddr_t
	proc.Process_execute(func(argc int, argv []string) {
		va = mem.Sys_malloc(33)
		vb = mem.Sys_malloc(33)
		mem.Vmemset(va, 0x11, 33)
		mem.Vmemset(vb, 0x22, 33)
		done = true
	}, "heap_prog")
	spin(t, func() bool { return done })
	if va == 0 || vb == 0 {
		t.Fatalf("user malloc failed")
	}
	if uint32(va) < uint32(mem.USER_VADDR_START) || uint32(va) >= 0xc0000000 {
		t.Fatalf("user block at %#x outside user space", va)
	}
	if va&^mem.Vaddr_t(mem.PGSIZE-1) != vb&^mem.Vaddr_t(mem.PGSIZE-1) {
		t.Fatalf("user blocks not in one arena")
	}
}

// fork: the parent sees the child's PID, the child sees zero, and the two
// address spaces are copies that diverge after the fork.
func TestFork(t *testing.T) {
	boot(t)
	const marker = 0x5a

	type result_t struct {
		ret      defs.Pid_t
		heapbyte uint8
		pid      defs.Pid_t
	}
	var results []result_t
	var page mem.Vaddr_t
	finished := 0

	proc.Process_execute(func(argc int, argv []string) {
		page = mem.Sys_malloc(2048)
		mem.Vmemset(page, marker, 2048)
		proc.Fork(func(ret defs.Pid_t) {
			if ret == 0 {
				// the child must observe the pre-fork heap, then scribble
				b := make([]uint8, 1)
				mem.Vmemcpy_from(b, page)
				results = append(results, result_t{0, b[0], proc.Getpid()})
				mem.Vmemset(page, 0xee, 2048)
				finished++
				return
			}
			// parent: wait out the child, then check isolation
			for thread.Task_alive(ret) {
				thread.Thread_yield()
			}
			b := make([]uint8, 1)
			mem.Vmemcpy_from(b, page)
			results = append(results, result_t{ret, b[0], proc.Getpid()})
			finished++
		})
	}, "forker")

	spin(t, func() bool { return finished == 2 })
	if len(results) != 2 {
		t.Fatalf("%d results", len(results))
	}
	child, parent := results[0], results[1]
	if child.ret != 0 {
		t.Fatalf("child saw ret %d", child.ret)
	}
	if parent.ret != child.pid {
		t.Fatalf("parent saw ret %d, child pid %d", parent.ret, child.pid)
	}
	if parent.ret <= 0 {
		t.Fatalf("parent fork returned %d", parent.ret)
	}
	if child.heapbyte != marker {
		t.Fatalf("child heap byte %#x, want %#x", child.heapbyte, marker)
	}
	// the child's writes must not leak into the parent
	if parent.heapbyte != marker {
		t.Fatalf("parent heap byte %#x after child wrote %#x", parent.heapbyte, 0xee)
	}
}

func TestForkInheritsFds(t *testing.T) {
	u := boot(t)
	if u.MkFile("/shared", []uint8("fd table data")) != 0 {
		t.Fatalf("create failed")
	}

	finished := 0
	childread := ""
	proc.Process_execute(func(argc int, argv []string) {
		fd := proc.Open("/shared", defs.O_RDONLY)
		if fd == -1 {
			t.Errorf("open failed")
			finished = 2
			return
		}
		proc.Fork(func(ret defs.Pid_t) {
			if ret == 0 {
				buf := make([]uint8, 13)
				if proc.Read(fd, buf) == 13 {
					childread = string(buf)
				}
				proc.Close(fd)
				finished++
				return
			}
			for thread.Task_alive(ret) {
				thread.Thread_yield()
			}
			proc.Close(fd)
			finished++
		})
	}, "fd_forker")

	spin(t, func() bool { return finished == 2 })
	if childread != "fd table data" {
		t.Fatalf("child read %q through inherited fd", childread)
	}
}

func TestExecv(t *testing.T) {
	u := boot(t)

	elf := ufs.Mkelf(uint32(mem.USER_VADDR_START), []uint8("payload-bytes"))
	if u.MkFile("/prog", elf) != 0 {
		t.Fatalf("install failed")
	}

	ran := false
	var gotargs []string
	proc.Register_prog("/prog", func(argc int, argv []string) {
		ran = true
		gotargs = argv
		// the loader must have brought the segment into user memory
		buf := make([]uint8, 13)
		mem.Vmemcpy_from(buf, mem.USER_VADDR_START)
		if string(buf) != "payload-bytes" {
			t.Errorf("segment contents %q", buf)
		}
	})

	done := false
	proc.Process_execute(func(argc int, argv []string) {
		proc.Fork(func(ret defs.Pid_t) {
			if ret == 0 {
				proc.Execv("/prog", []string{"/prog", "arg1"})
				t.Errorf("execv returned")
				return
			}
			for thread.Task_alive(ret) {
				thread.Thread_yield()
			}
			done = true
		})
	}, "execer")

	spin(t, func() bool { return done })
	if !ran {
		t.Fatalf("exec'd program did not run")
	}
	if len(gotargs) != 2 || gotargs[1] != "arg1" {
		t.Fatalf("argv = %v", gotargs)
	}
}

func TestExecvRejectsGarbage(t *testing.T) {
	u := boot(t)
	if u.MkFile("/notelf", []uint8("this is not an executable at all......")) != 0 {
		t.Fatalf("install failed")
	}
	done := false
	ret := 0
	proc.Process_execute(func(argc int, argv []string) {
		ret = proc.Execv("/notelf", []string{"/notelf"})
		done = true
	}, "badexec")
	spin(t, func() bool { return done })
	if ret != -1 {
		t.Fatalf("execv of garbage returned %d", ret)
	}
}

func TestSyscallTable(t *testing.T) {
	u := boot(t)
	done := false
	proc.Process_execute(func(argc int, argv []string) {
		if proc.Mkdir("/viacall") != 0 {
			t.Errorf("mkdir syscall failed")
		}
		fd := proc.Open("/viacall/f", defs.O_CREAT|defs.O_RDWR)
		if fd == -1 {
			t.Errorf("open syscall failed")
		}
		if proc.Write(fd, []uint8("xyz")) != 3 {
			t.Errorf("write syscall failed")
		}
		proc.Close(fd)
		var st fs.Stat_t
		if proc.Stat("/viacall/f", &st) != 0 || st.St_size != 3 {
			t.Errorf("stat syscall: size %d", st.St_size)
		}
		done = true
	}, "caller")
	spin(t, func() bool { return done })
	if _, ret := u.Stat("/viacall/f"); ret != 0 {
		t.Fatalf("file created through syscalls missing")
	}
}
