// Command tinyos boots the kernel interactively: the console writes to
// stdout, the host terminal goes raw and every keystroke is translated into
// scan codes for the keyboard controller. init forks the shell and the
// machine runs until the terminal closes or ctrl-c arrives.
package main

import (
	"fmt"
	"os"

	"golang.org/x/term"

	"tinyos/defs"
	"tinyos/kbc"
	"tinyos/kbd"
	"tinyos/proc"
	"tinyos/shell"
	"tinyos/thread"
	"tinyos/ufs"
)

func main() {
	image := "tinyos-disk.img"
	if len(os.Args) >= 2 {
		image = os.Args[1]
	}
	if _, err := os.Stat(image); err != nil {
		fmt.Printf("disk image %s missing; create it with mkfs first\n", image)
		os.Exit(1)
	}

	ufs.BootFS(image, ufs.Bootopts_t{Timer: true, Echo: os.Stdout})
	kc := kbc.MkCtrl()

	// demo external program; its image is installed by mkfs
	proc.Register_prog("/echo", func(argc int, argv []string) {
		for i := 1; i < argc; i++ {
			if i > 1 {
				proc.Putchar(' ')
			}
			proc.Write(defs.STDOUT_NO, []byte(argv[i]))
		}
		proc.Putchar('\n')
	})

	old, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err == nil {
		defer term.Restore(int(os.Stdin.Fd()), old)
	}

	// host keystrokes become scan codes on the controller
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil || n == 0 {
				return
			}
			if buf[0] == 0x03 { // ctrl-c: power off
				if old != nil {
					term.Restore(int(os.Stdin.Fd()), old)
				}
				os.Exit(0)
			}
			kc.Inject(kbd.Make_codes(buf[0])...)
		}
	}()

	proc.Process_execute(shell.Init_prog, "init")

	// the boot task has nothing left to do; give the CPU away forever
	for {
		thread.Thread_yield()
	}
}
