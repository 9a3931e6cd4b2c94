package ide_test

import "testing"

import "tinyos/defs"
import "tinyos/hdd"
import "tinyos/ide"
import "tinyos/klist"
import "tinyos/mach"
import "tinyos/mem"
import "tinyos/thread"
import "tinyos/ufs"

func boot(t *testing.T, sectors int) *ide.Disk_t {
	t.Helper()
	mach.Bootmem(32 << 20)
	mem.Mem_init()
	thread.Thread_init()

	ctrl := hdd.MkCtrl()
	ctrl.Attach(0, 0, hdd.MkMemdisk(128))
	data := hdd.MkMemdisk(sectors)
	ctrl.Attach(0, 1, data)

	img := t.TempDir() + "/parts.img"
	if err := ufs.MkDisk(img, sectors, []int{20000, 4096}, []int{2048, 2048}); err != nil {
		t.Fatal(err)
	}
	fd, err := hdd.MkFiledisk(img, 0)
	if err != nil {
		t.Fatal(err)
	}
	// copy the partitioned image into the memory drive sector by sector
	buf := make([]uint8, defs.SECTSZ)
	for lba := 0; lba < sectors; lba++ {
		fd.Readsect(lba, buf)
		data.Writesect(lba, buf)
	}
	fd.Close()

	ide.Ide_init(2)
	return &ide.Channels[0].Devices[1]
}

func TestReadWriteRoundtrip(t *testing.T) {
	hd := boot(t, 40000)
	wbuf := make([]uint8, 3*defs.SECTSZ)
	for i := range wbuf {
		wbuf[i] = uint8(i % 251)
	}
	ide.Ide_write(hd, 30000, wbuf, 3)

	rbuf := make([]uint8, 3*defs.SECTSZ)
	ide.Ide_read(hd, 30000, rbuf, 3)
	for i := range wbuf {
		if rbuf[i] != wbuf[i] {
			t.Fatalf("byte %d = %d, want %d", i, rbuf[i], wbuf[i])
		}
	}
}

// transfers above 256 sectors must split into multiple commands
func TestLargeTransfer(t *testing.T) {
	hd := boot(t, 40000)
	n := 300
	wbuf := make([]uint8, n*defs.SECTSZ)
	for i := range wbuf {
		wbuf[i] = uint8((i * 13) % 255)
	}
	ide.Ide_write(hd, 25000, wbuf, n)

	rbuf := make([]uint8, n*defs.SECTSZ)
	ide.Ide_read(hd, 25000, rbuf, n)
	for i := range wbuf {
		if rbuf[i] != wbuf[i] {
			t.Fatalf("byte %d differs after 300-sector transfer", i)
		}
	}
}

func TestPartitionScan(t *testing.T) {
	hd := boot(t, 40000)

	want := map[string]uint32{
		"sdb1": 20000,
		"sdb2": 4096,
		"sdb5": 2048,
		"sdb6": 2048,
	}
	got := map[string]uint32{}
	ide.Partition_list.Traversal(0, func(e *klist.Elem_t, _ int) bool {
		p := e.Owner.(*ide.Partition_t)
		got[p.Name] = p.Sector_cnt
		return false
	})
	for name, cnt := range want {
		if got[name] != cnt {
			t.Fatalf("partition %s: sector_cnt %d, want %d (all: %v)", name, got[name], cnt, got)
		}
	}

	if hd.Prim_parts[0].Start_lba != 2048 {
		t.Fatalf("sdb1 start %d, want 2048", hd.Prim_parts[0].Start_lba)
	}
	// the first logical partition lies beyond sdb2, inside the extended partition
	if hd.Logic_parts[0].Start_lba <= hd.Prim_parts[1].Start_lba {
		t.Fatalf("sdb5 start %d not inside the extended partition", hd.Logic_parts[0].Start_lba)
	}
}

func TestDiskNames(t *testing.T) {
	boot(t, 40000)
	if ide.Channels[0].Name != "ide0" {
		t.Fatalf("channel name %q", ide.Channels[0].Name)
	}
	if ide.Channels[0].Devices[1].Name != "sdb" {
		t.Fatalf("disk name %q", ide.Channels[0].Devices[1].Name)
	}
}
