package fs

import "tinyos/defs"
import "tinyos/ide"
import "tinyos/klist"
import "tinyos/mach"
import "tinyos/util"

/// Inode_t is an inode in memory: the on-disk record plus the open count,
/// the writer exclusion flag and the open-list link.
type Inode_t struct {
	I_no     uint32
	I_size   uint32
	I_blocks [13]uint32

	I_open_cnt uint32
	Write_deny bool
	Inode_tag  klist.Elem_t
}

// inode_position_t locates an inode inside the inode table; an inode whose
// tail crosses a sector boundary occupies two sectors.
type inode_position_t struct {
	cross_sectors bool
	sector_lba    uint32
	off_in_sector int
}

func inode_locate(part *Partition_t, inode_no uint32, pos *inode_position_t) {
	if inode_no >= defs.MAX_FILES_PER_PART {
		mach.Panic("inode %d out of range", inode_no)
	}
	off_bytes := int(inode_no) * INODE_SZ
	pos.sector_lba = part.Sup_b.Inode_table_lba + uint32(off_bytes/defs.SECTSZ)
	pos.off_in_sector = off_bytes % defs.SECTSZ
	pos.cross_sectors = defs.SECTSZ-pos.off_in_sector < INODE_SZ
}

func (inode *Inode_t) marshal(buf []uint8) {
	util.Writen(buf, 4, 0, int(inode.I_no))
	util.Writen(buf, 4, 4, int(inode.I_size))
	for i, b := range inode.I_blocks {
		util.Writen(buf, 4, 8+i*4, int(b))
	}
}

func (inode *Inode_t) unmarshal(buf []uint8) {
	inode.I_no = uint32(util.Readn(buf, 4, 0))
	inode.I_size = uint32(util.Readn(buf, 4, 4))
	for i := range inode.I_blocks {
		inode.I_blocks[i] = uint32(util.Readn(buf, 4, 8+i*4))
	}
}

// Inode_sync writes the inode's persistent fields into the inode table,
// read-modify-writing the one or two sectors it occupies. The in-memory-only
// fields never reach the disk; the packed layout simply omits them.
func Inode_sync(part *Partition_t, inode *Inode_t, io_buf []uint8) {
	var pos inode_position_t
	inode_locate(part, inode.I_no, &pos)
	if pos.sector_lba > part.Start_lba+part.Sector_cnt {
		mach.Panic("inode %d beyond partition", inode.I_no)
	}

	nsect := 1
	if pos.cross_sectors {
		nsect = 2
	}
	ide.Ide_read(part.Which_disk, pos.sector_lba, io_buf, nsect)
	inode.marshal(io_buf[pos.off_in_sector:])
	ide.Ide_write(part.Which_disk, pos.sector_lba, io_buf, nsect)
}

// Inode_open returns the in-memory inode for inode_no, bumping the open
// count when it is already cached on the partition's open list and reading
// it from the inode table otherwise. Inodes are shared across every task, so
// the structure lives in kernel memory.
func Inode_open(part *Partition_t, inode_no uint32) *Inode_t {
	found := part.Open_inodes.Traversal(0, func(e *klist.Elem_t, _ int) bool {
		return e.Owner.(*Inode_t).I_no == inode_no
	})
	if found != nil {
		inode := found.Owner.(*Inode_t)
		inode.I_open_cnt++
		return inode
	}

	var pos inode_position_t
	inode_locate(part, inode_no, &pos)

	nsect := 1
	if pos.cross_sectors {
		nsect = 2
	}
	inode_buf := make([]uint8, nsect*defs.SECTSZ)
	ide.Ide_read(part.Which_disk, pos.sector_lba, inode_buf, nsect)

	inode := &Inode_t{}
	inode.unmarshal(inode_buf[pos.off_in_sector:])
	inode.Inode_tag.Owner = inode
	part.Open_inodes.Push(&inode.Inode_tag)
	inode.I_open_cnt = 1
	return inode
}

// Inode_close drops one reference; the last close unlinks the inode from the
// open list.
func Inode_close(inode *Inode_t) {
	old := mach.Intr_disable()
	if inode.I_open_cnt == 0 {
		mach.Panic("close of unopened inode %d", inode.I_no)
	}
	inode.I_open_cnt--
	if inode.I_open_cnt == 0 {
		klist.Remove(&inode.Inode_tag)
	}
	mach.Intr_set_status(old)
}

/// Inode_init prepares a brand-new empty inode.
func Inode_init(inode_no uint32, inode *Inode_t) {
	inode.I_no = inode_no
	inode.I_size = 0
	inode.I_open_cnt = 0
	inode.Write_deny = false
	for i := range inode.I_blocks {
		inode.I_blocks[i] = 0
	}
	inode.Inode_tag.Owner = inode
}

// inode_delete zeroes the inode's slot in the inode table. Allocation is
// governed by the inode bitmap; the erase keeps the table readable.
func inode_delete(part *Partition_t, inode_no uint32, io_buf []uint8) {
	var pos inode_position_t
	inode_locate(part, inode_no, &pos)

	nsect := 1
	if pos.cross_sectors {
		nsect = 2
	}
	ide.Ide_read(part.Which_disk, pos.sector_lba, io_buf, nsect)
	for i := 0; i < INODE_SZ; i++ {
		io_buf[pos.off_in_sector+i] = 0
	}
	ide.Ide_write(part.Which_disk, pos.sector_lba, io_buf, nsect)
}

// Inode_release frees everything an inode holds: every data block, the
// indirect table block if present, and finally the inode's bitmap bit.
func Inode_release(part *Partition_t, inode_no uint32) {
	inode := Inode_open(part, inode_no)
	if inode.I_no != inode_no {
		mach.Panic("inode %d opened as %d", inode_no, inode.I_no)
	}

	var all_blocks [defs.MAXBLKS]uint32
	block_cnt := defs.NDIRECT
	for i := 0; i < defs.NDIRECT; i++ {
		all_blocks[i] = inode.I_blocks[i]
	}
	if inode.I_blocks[12] != 0 {
		read_indirect(part, inode.I_blocks[12], all_blocks[12:])
		block_cnt = defs.MAXBLKS

		idx := int(inode.I_blocks[12] - part.Sup_b.Data_start_lba)
		if idx <= 0 {
			mach.Panic("indirect table at data block %d", idx)
		}
		part.Block_bitmap.Set(idx, 0)
		Bitmap_sync(part, idx, BLOCK_BITMAP)
	}

	for i := 0; i < block_cnt; i++ {
		if all_blocks[i] == 0 {
			continue
		}
		idx := int(all_blocks[i] - part.Sup_b.Data_start_lba)
		if idx <= 0 {
			mach.Panic("file data in block %d", idx)
		}
		part.Block_bitmap.Set(idx, 0)
		Bitmap_sync(part, idx, BLOCK_BITMAP)
	}

	part.Inode_bitmap.Set(int(inode_no), 0)
	Bitmap_sync(part, int(inode_no), INODE_BITMAP)

	io_buf := make([]uint8, 2*defs.SECTSZ)
	inode_delete(part, inode_no, io_buf)
	Inode_close(inode)
}

// read_indirect loads the 128 block pointers of an indirect table into dst.
func read_indirect(part *Partition_t, table_lba uint32, dst []uint32) {
	buf := make([]uint8, defs.SECTSZ)
	ide.Ide_read(part.Which_disk, table_lba, buf, 1)
	for i := 0; i < defs.NINDIRECT; i++ {
		dst[i] = uint32(util.Readn(buf, 4, i*4))
	}
}

// write_indirect stores the 128 block pointers from src into the table.
func write_indirect(part *Partition_t, table_lba uint32, src []uint32) {
	buf := make([]uint8, defs.SECTSZ)
	for i := 0; i < defs.NINDIRECT; i++ {
		util.Writen(buf, 4, i*4, int(src[i]))
	}
	ide.Ide_write(part.Which_disk, table_lba, buf, 1)
}
