// Package fs implements the on-disk file system: superblock, inode and block
// bitmaps, an inode table with direct and one-level indirect blocks,
// directories as entry-array files, the global open-file table and the
// path-based syscalls on top.
package fs

import "tinyos/bitmap"
import "tinyos/defs"
import "tinyos/ide"
import "tinyos/klist"
import "tinyos/util"

/// INODE_SZ is the packed on-disk inode size: i_no, i_size and 13 block
/// pointers. 512 is not a multiple of it, so an inode can straddle a sector
/// boundary.
const INODE_SZ = 4 + 4 + 13*4

/// DIR_ENTRY_SZ is the packed directory entry size.
const DIR_ENTRY_SZ = defs.MAX_FILE_NAME_LEN + 4 + 4

/// Superblock_t mirrors the 512-byte superblock in sector 1 of a partition.
type Superblock_t struct {
	Magic      uint32
	Sector_cnt uint32
	Inode_cnt  uint32
	Part_lba   uint32

	Block_bitmap_lba   uint32
	Block_bitmap_sects uint32

	Inode_bitmap_lba   uint32
	Inode_bitmap_sects uint32

	Inode_table_lba   uint32
	Inode_table_sects uint32

	Data_start_lba uint32
	Root_inode_no  uint32
	Dir_entry_size uint32
}

func (sb *Superblock_t) marshal(buf []uint8) {
	fields := []uint32{
		sb.Magic, sb.Sector_cnt, sb.Inode_cnt, sb.Part_lba,
		sb.Block_bitmap_lba, sb.Block_bitmap_sects,
		sb.Inode_bitmap_lba, sb.Inode_bitmap_sects,
		sb.Inode_table_lba, sb.Inode_table_sects,
		sb.Data_start_lba, sb.Root_inode_no, sb.Dir_entry_size,
	}
	for i, f := range fields {
		util.Writen(buf, 4, i*4, int(f))
	}
}

func (sb *Superblock_t) unmarshal(buf []uint8) {
	fields := []*uint32{
		&sb.Magic, &sb.Sector_cnt, &sb.Inode_cnt, &sb.Part_lba,
		&sb.Block_bitmap_lba, &sb.Block_bitmap_sects,
		&sb.Inode_bitmap_lba, &sb.Inode_bitmap_sects,
		&sb.Inode_table_lba, &sb.Inode_table_sects,
		&sb.Data_start_lba, &sb.Root_inode_no, &sb.Dir_entry_size,
	}
	for i, f := range fields {
		*f = uint32(util.Readn(buf, 4, i*4))
	}
}

/// Partition_t is a mounted (or mountable) partition: the scanned geometry
/// plus the in-memory superblock, bitmaps and open-inode list.
type Partition_t struct {
	*ide.Partition_t
	Sup_b        *Superblock_t
	Block_bitmap *bitmap.Bitmap_t
	Inode_bitmap *bitmap.Bitmap_t
	Open_inodes  klist.List_t
}

/// Cur_part is the mounted partition all file syscalls operate on.
var Cur_part *Partition_t
