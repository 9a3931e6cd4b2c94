// Command mkfs builds a bootable data-disk image: an MBR with one primary
// partition plus an extended chain of two logical ones, a formatted file
// system on sdb1, a skeleton tree copied from the host, and an /echo
// executable for the shell.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"tinyos/mem"
	"tinyos/ufs"
)

const default_sectors = 80 * 1024 * 1024 / 512

func usage() {
	fmt.Printf("Usage: mkfs <output image> [total sectors] [skel dir]\n")
	os.Exit(1)
}

// copydata streams the host file at src into the image at dst.
func copydata(u *ufs.Ufs_t, src, dst string) {
	f, err := os.Open(src)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	buf := make([]byte, 4096)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if u.Append(dst, buf[:n]) != 0 {
				fmt.Printf("failed to append to %v\n", dst)
				os.Exit(1)
			}
		}
		if rerr == io.EOF {
			return
		}
		if rerr != nil {
			panic(rerr)
		}
	}
}

// addfiles replicates skeldir into the image.
func addfiles(u *ufs.Ufs_t, skeldir string) {
	err := filepath.WalkDir(skeldir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(path, skeldir)
		if rel == "" {
			return nil
		}
		if d.IsDir() {
			if u.MkDir(rel) != 0 {
				fmt.Printf("failed to create dir %v\n", rel)
			}
			return nil
		}
		if u.MkFile(rel, nil) != 0 {
			fmt.Printf("failed to create file %v\n", rel)
			return nil
		}
		copydata(u, path, rel)
		return nil
	})
	if err != nil {
		fmt.Printf("error walking %q: %v\n", skeldir, err)
		os.Exit(1)
	}
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}
	image := os.Args[1]
	sectors := default_sectors
	if len(os.Args) >= 3 {
		n, err := strconv.Atoi(os.Args[2])
		if err != nil || n < 40000 {
			fmt.Printf("bad sector count %q\n", os.Args[2])
			os.Exit(1)
		}
		sectors = n
	}

	// one primary data partition and two small logical ones
	prim := sectors - 2048 - 2*8192 - 64
	if err := ufs.MkDisk(image, sectors, []int{prim}, []int{8192, 8192}); err != nil {
		panic(err)
	}

	u := ufs.BootFS(image, ufs.Bootopts_t{Echo: os.Stdout})

	// demo executables the shell can fork+exec
	elf := ufs.Mkelf(uint32(mem.USER_VADDR_START), []byte("echo"))
	if u.MkFile("/echo", elf) != 0 {
		fmt.Printf("failed to install /echo\n")
		os.Exit(1)
	}

	if len(os.Args) >= 4 {
		addfiles(u, os.Args[3])
	}

	if _, ret := u.Stat("/"); ret != 0 {
		fmt.Printf("not a valid fs: no root inode\n")
		os.Exit(1)
	}
	ufs.ShutdownFS(u)
	fmt.Printf("%s ready\n", image)
}
