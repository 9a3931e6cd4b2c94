package ufs

import "bytes"
import "debug/elf"
import "testing"

import "tinyos/defs"
import "tinyos/hdd"
import "tinyos/mem"

func TestMkelfParses(t *testing.T) {
	payload := []uint8("entry code bytes")
	img := Mkelf(uint32(mem.USER_VADDR_START), payload)

	ef, err := elf.NewFile(bytes.NewReader(img))
	if err != nil {
		t.Fatalf("stdlib refused the image: %v", err)
	}
	if ef.Class != elf.ELFCLASS32 || ef.Data != elf.ELFDATA2LSB {
		t.Fatalf("class %v data %v", ef.Class, ef.Data)
	}
	if ef.Type != elf.ET_EXEC || ef.Machine != elf.EM_386 {
		t.Fatalf("type %v machine %v", ef.Type, ef.Machine)
	}
	if ef.Entry != uint64(mem.USER_VADDR_START) {
		t.Fatalf("entry %#x", ef.Entry)
	}
	if len(ef.Progs) != 1 || ef.Progs[0].Type != elf.PT_LOAD {
		t.Fatalf("progs %v", ef.Progs)
	}
	got := make([]byte, len(payload))
	if _, err := ef.Progs[0].ReadAt(got, 0); err != nil {
		t.Fatalf("segment read: %v", err)
	}
	if !bytes.Equal(got, []byte(payload)) {
		t.Fatalf("segment %q", got)
	}
}

func TestMkDiskGeometry(t *testing.T) {
	img := t.TempDir() + "/geom.img"
	if err := MkDisk(img, 40000, []int{8192, 4096}, []int{1024}); err != nil {
		t.Fatal(err)
	}
	d, err := hdd.MkFiledisk(img, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	mbr := make([]uint8, defs.SECTSZ)
	d.Readsect(0, mbr)
	if mbr[510] != 0x55 || mbr[511] != 0xaa {
		t.Fatalf("missing MBR signature")
	}
	// entry 0 primary at 2048, entry 2 extended
	if mbr[446+4] != 0x83 {
		t.Fatalf("first partition type %#x", mbr[446+4])
	}
	if mbr[446+2*16+4] != 0x05 {
		t.Fatalf("third entry type %#x, want extended", mbr[446+2*16+4])
	}
}

func TestBootedHarness(t *testing.T) {
	img := t.TempDir() + "/h.img"
	if err := MkDisk(img, 40000, []int{20000}, nil); err != nil {
		t.Fatal(err)
	}
	u := BootFS(img, Bootopts_t{})
	defer ShutdownFS(u)

	if u.MkDir("/x") != 0 {
		t.Fatalf("mkdir failed")
	}
	if u.MkFile("/x/y", []uint8("abc")) != 0 {
		t.Fatalf("mkfile failed")
	}
	if u.Append("/x/y", []uint8("def")) != 0 {
		t.Fatalf("append failed")
	}
	data, ret := u.ReadFile("/x/y")
	if ret != 0 || string(data) != "abcdef" {
		t.Fatalf("read back %q", data)
	}
	ls, ret := u.Ls("/x")
	if ret != 0 || len(ls) != 1 || ls["y"].St_size != 6 {
		t.Fatalf("ls %v", ls)
	}
	if u.Unlink("/x/y") != 0 || u.Rmdir("/x") != 0 {
		t.Fatalf("cleanup failed")
	}
}
