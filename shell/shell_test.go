package shell_test

import "strings"
import "testing"

import "tinyos/kbc"
import "tinyos/kbd"
import "tinyos/mem"
import "tinyos/proc"
import "tinyos/shell"
import "tinyos/thread"
import "tinyos/ufs"

type env_t struct {
	u  *ufs.Ufs_t
	kc *kbc.Ctrl_t
}

func boot(t *testing.T) *env_t {
	t.Helper()
	img := t.TempDir() + "/disk.img"
	if err := ufs.MkDisk(img, 40000, []int{20000}, nil); err != nil {
		t.Fatal(err)
	}
	u := ufs.BootFS(img, ufs.Bootopts_t{})
	t.Cleanup(func() { ufs.ShutdownFS(u) })
	kc := kbc.MkCtrl()
	proc.Process_execute(shell.Init_prog, "init")
	return &env_t{u: u, kc: kc}
}

// typeline feeds a command through the keyboard controller and lets the
// machine run until the shell prints its next prompt.
func (e *env_t) typeline(t *testing.T, line string) {
	t.Helper()
	mark := len(e.u.Cons.String())
	for i := 0; i < len(line); i++ {
		codes := kbd.Make_codes(line[i])
		if codes == nil {
			t.Fatalf("no scan codes for %q", line[i])
		}
		e.kc.Inject(codes...)
	}
	e.kc.Inject(kbd.Make_codes('\n')...)
	for i := 0; i < 5_000_000; i++ {
		if strings.Contains(e.u.Cons.String()[mark:], "]$ ") {
			return
		}
		thread.Thread_yield()
	}
	t.Fatalf("no prompt after %q; console:\n%s", line, e.u.Cons.String()[mark:])
}

func (e *env_t) wait_prompt(t *testing.T) {
	t.Helper()
	for i := 0; i < 5_000_000; i++ {
		if strings.Contains(e.u.Cons.String(), "]$ ") {
			return
		}
		thread.Thread_yield()
	}
	t.Fatalf("shell never printed a prompt")
}

func TestPromptAndPwd(t *testing.T) {
	e := boot(t)
	e.wait_prompt(t)
	e.typeline(t, "pwd")
	if !strings.Contains(e.u.Cons.String(), "\n/\n") {
		t.Fatalf("pwd output missing:\n%s", e.u.Cons.String())
	}
}

func TestMkdirLsCdRm(t *testing.T) {
	e := boot(t)
	e.wait_prompt(t)

	e.typeline(t, "mkdir /work")
	if _, ret := e.u.Stat("/work"); ret != 0 {
		t.Fatalf("mkdir via shell did not create /work")
	}

	e.typeline(t, "ls /")
	if !strings.Contains(e.u.Cons.String(), "work") {
		t.Fatalf("ls does not show /work:\n%s", e.u.Cons.String())
	}

	e.typeline(t, "cd /work")
	e.typeline(t, "pwd")
	if !strings.Contains(e.u.Cons.String(), "/work\n") {
		t.Fatalf("cd+pwd failed:\n%s", e.u.Cons.String())
	}

	e.typeline(t, "cd ..")
	e.typeline(t, "rmdir /work")
	if _, ret := e.u.Stat("/work"); ret != -1 {
		t.Fatalf("rmdir via shell did not remove /work")
	}
}

func TestRelativePaths(t *testing.T) {
	e := boot(t)
	e.wait_prompt(t)
	e.typeline(t, "mkdir /a")
	e.typeline(t, "cd /a")
	e.typeline(t, "mkdir b")
	if _, ret := e.u.Stat("/a/b"); ret != 0 {
		t.Fatalf("relative mkdir did not create /a/b")
	}
}

func TestUnknownCommand(t *testing.T) {
	e := boot(t)
	e.wait_prompt(t)
	e.typeline(t, "frobnicate")
	if !strings.Contains(e.u.Cons.String(), "no such file or directory") {
		t.Fatalf("missing external not diagnosed:\n%s", e.u.Cons.String())
	}
}

func TestPs(t *testing.T) {
	e := boot(t)
	e.wait_prompt(t)
	e.typeline(t, "ps")
	out := e.u.Cons.String()
	if !strings.Contains(out, "PID") || !strings.Contains(out, "init") {
		t.Fatalf("ps output:\n%s", out)
	}
}

func TestExternalCommand(t *testing.T) {
	e := boot(t)
	elf := ufs.Mkelf(uint32(mem.USER_VADDR_START), []uint8("echo"))
	if e.u.MkFile("/echo", elf) != 0 {
		t.Fatalf("install failed")
	}
	proc.Register_prog("/echo", func(argc int, argv []string) {
		for i := 1; i < argc; i++ {
			if i > 1 {
				proc.Putchar(' ')
			}
			proc.Write(1, []uint8(argv[i]))
		}
		proc.Putchar('\n')
	})

	e.wait_prompt(t)
	e.typeline(t, "echo hello from tinyos")
	if !strings.Contains(e.u.Cons.String(), "hello from tinyos") {
		t.Fatalf("external echo did not run:\n%s", e.u.Cons.String())
	}
}

func TestLineEditing(t *testing.T) {
	e := boot(t)
	e.wait_prompt(t)
	// type a bogus prefix, erase it with ctrl-u, run pwd instead
	for _, c := range []byte("zzzz") {
		e.kc.Inject(kbd.Make_codes(c)...)
	}
	// ctrl down, 'u', ctrl up
	e.kc.Inject(0x1d)
	e.kc.Inject(0x16, 0x96)
	e.kc.Inject(0x9d)
	e.typeline(t, "pwd")
	out := e.u.Cons.String()
	if strings.Contains(out, "/zzzz") {
		t.Fatalf("erased input still executed:\n%s", out)
	}
	if !strings.Contains(out, "\n/\n") {
		t.Fatalf("pwd after ctrl-u failed:\n%s", out)
	}
}
