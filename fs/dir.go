package fs

import "tinyos/console"
import "tinyos/defs"
import "tinyos/ide"
import "tinyos/mach"
import "tinyos/util"

/// Dir_t is an open directory: its inode, the read cursor and a one-sector
/// buffer the iterator hands entries out of.
type Dir_t struct {
	inode   *Inode_t
	Dir_pos uint32
	dir_buf [defs.SECTSZ]uint8
}

/// Dir_entry_t is one fixed-size entry of a directory file. A zero F_type
/// marks a free slot.
type Dir_entry_t struct {
	Filename string
	I_no     uint32
	F_type   defs.Ftype_t
}

func (de *Dir_entry_t) marshal(buf []uint8) {
	if len(de.Filename) >= defs.MAX_FILE_NAME_LEN {
		mach.Panic("filename %q too long", de.Filename)
	}
	for i := 0; i < defs.MAX_FILE_NAME_LEN; i++ {
		if i < len(de.Filename) {
			buf[i] = de.Filename[i]
		} else {
			buf[i] = 0
		}
	}
	util.Writen(buf, 4, defs.MAX_FILE_NAME_LEN, int(de.I_no))
	util.Writen(buf, 4, defs.MAX_FILE_NAME_LEN+4, int(de.F_type))
}

func (de *Dir_entry_t) unmarshal(buf []uint8) {
	n := 0
	for n < defs.MAX_FILE_NAME_LEN && buf[n] != 0 {
		n++
	}
	de.Filename = string(buf[:n])
	de.I_no = uint32(util.Readn(buf, 4, defs.MAX_FILE_NAME_LEN))
	de.F_type = defs.Ftype_t(util.Readn(buf, 4, defs.MAX_FILE_NAME_LEN+4))
}

/// Root_dir is the always-open root directory of the mounted partition.
var Root_dir Dir_t

/// Open_root_dir opens the root after a mount.
func Open_root_dir(part *Partition_t) {
	Root_dir.inode = Inode_open(part, part.Sup_b.Root_inode_no)
	Root_dir.Dir_pos = 0
}

/// Dir_open opens the directory with the given inode number.
func Dir_open(part *Partition_t, inode_no uint32) *Dir_t {
	pdir := &Dir_t{}
	pdir.inode = Inode_open(part, inode_no)
	pdir.Dir_pos = 0
	return pdir
}

/// Inode_nr returns the directory's inode number.
func (dir *Dir_t) Inode_nr() uint32 {
	return dir.inode.I_no
}

// all_blocks_of gathers the 140 possible block addresses of a file: the 12
// direct slots and, when present, the indirect table's 128.
func all_blocks_of(part *Partition_t, inode *Inode_t, all_blocks *[defs.MAXBLKS]uint32) {
	for i := 0; i < defs.NDIRECT; i++ {
		all_blocks[i] = inode.I_blocks[i]
	}
	for i := defs.NDIRECT; i < defs.MAXBLKS; i++ {
		all_blocks[i] = 0
	}
	if inode.I_blocks[12] != 0 {
		read_indirect(part, inode.I_blocks[12], all_blocks[defs.NDIRECT:])
	}
}

// Search_dir_entry scans pdir's blocks for an entry named name; the match is
// copied into dir_e.
func Search_dir_entry(part *Partition_t, pdir *Dir_t, name string, dir_e *Dir_entry_t) bool {
	var all_blocks [defs.MAXBLKS]uint32
	all_blocks_of(part, pdir.inode, &all_blocks)

	buf := make([]uint8, defs.SECTSZ)
	per_sector := defs.SECTSZ / DIR_ENTRY_SZ
	for block_idx := 0; block_idx < defs.MAXBLKS; block_idx++ {
		if all_blocks[block_idx] == 0 {
			continue
		}
		ide.Ide_read(part.Which_disk, all_blocks[block_idx], buf, 1)
		for i := 0; i < per_sector; i++ {
			var de Dir_entry_t
			de.unmarshal(buf[i*DIR_ENTRY_SZ:])
			if de.F_type != defs.FT_UNKNOWN && de.Filename == name {
				*dir_e = de
				return true
			}
		}
	}
	return false
}

/// Dir_close releases a directory; the root is never closed.
func Dir_close(dir *Dir_t) {
	if dir == &Root_dir {
		return
	}
	Inode_close(dir.inode)
}

/// Create_dir_entry fills in an entry structure.
func Create_dir_entry(filename string, inode_no uint32, ftype defs.Ftype_t, de *Dir_entry_t) {
	if len(filename) >= defs.MAX_FILE_NAME_LEN {
		mach.Panic("filename %q too long", filename)
	}
	de.Filename = filename
	de.I_no = inode_no
	de.F_type = ftype
}

// Sync_dir_entry writes entry de into parent_dir, taking the first free slot
// and growing the directory file block by block: a zero direct slot gets a
// fresh data block, slot 12 first gets the indirect table and then its first
// indirect block, later zero slots get indirect blocks.
func Sync_dir_entry(parent_dir *Dir_t, de *Dir_entry_t, io_buf []uint8) bool {
	dir_inode := parent_dir.inode
	if dir_inode.I_size%DIR_ENTRY_SZ != 0 {
		mach.Panic("dir %d size %d unaligned", dir_inode.I_no, dir_inode.I_size)
	}
	per_sector := defs.SECTSZ / DIR_ENTRY_SZ

	var all_blocks [defs.MAXBLKS]uint32
	all_blocks_of(Cur_part, dir_inode, &all_blocks)

	for block_idx := 0; block_idx < defs.MAXBLKS; block_idx++ {
		if all_blocks[block_idx] == 0 {
			block_lba := Block_bitmap_alloc(Cur_part)
			if block_lba == -1 {
				console.Printk("alloc block for sync_dir_entry failed\n")
				return false
			}
			Bitmap_sync(Cur_part, int(uint32(block_lba)-Cur_part.Sup_b.Data_start_lba), BLOCK_BITMAP)

			if block_idx < defs.NDIRECT {
				dir_inode.I_blocks[block_idx] = uint32(block_lba)
				all_blocks[block_idx] = uint32(block_lba)
			} else if block_idx == defs.NDIRECT {
				// the fresh block becomes the indirect table; take another
				// for the first indirect data block
				dir_inode.I_blocks[12] = uint32(block_lba)
				data_lba := Block_bitmap_alloc(Cur_part)
				if data_lba == -1 {
					idx := int(dir_inode.I_blocks[12] - Cur_part.Sup_b.Data_start_lba)
					Cur_part.Block_bitmap.Set(idx, 0)
					dir_inode.I_blocks[12] = 0
					console.Printk("alloc block for sync_dir_entry failed\n")
					return false
				}
				Bitmap_sync(Cur_part, int(uint32(data_lba)-Cur_part.Sup_b.Data_start_lba), BLOCK_BITMAP)
				all_blocks[12] = uint32(data_lba)
				block_lba = data_lba
				write_indirect(Cur_part, dir_inode.I_blocks[12], all_blocks[defs.NDIRECT:])
			} else {
				all_blocks[block_idx] = uint32(block_lba)
				write_indirect(Cur_part, dir_inode.I_blocks[12], all_blocks[defs.NDIRECT:])
			}

			for i := range io_buf[:defs.SECTSZ] {
				io_buf[i] = 0
			}
			de.marshal(io_buf)
			ide.Ide_write(Cur_part.Which_disk, uint32(block_lba), io_buf, 1)
			dir_inode.I_size += DIR_ENTRY_SZ
			return true
		}

		// block exists: look for a dead slot inside it
		ide.Ide_read(Cur_part.Which_disk, all_blocks[block_idx], io_buf, 1)
		for i := 0; i < per_sector; i++ {
			ft := defs.Ftype_t(util.Readn(io_buf, 4, i*DIR_ENTRY_SZ+defs.MAX_FILE_NAME_LEN+4))
			if ft == defs.FT_UNKNOWN {
				de.marshal(io_buf[i*DIR_ENTRY_SZ:])
				ide.Ide_write(Cur_part.Which_disk, all_blocks[block_idx], io_buf, 1)
				dir_inode.I_size += DIR_ENTRY_SZ
				return true
			}
		}
	}
	console.Printk("directory is full!\n")
	return false
}

// Delete_dir_entry removes the entry with inode number inode_no from pdir.
// A block left with no live entries is freed (and the indirect table with
// it, when it empties), except the directory's first block, which keeps
// '.' and '..'.
func Delete_dir_entry(part *Partition_t, pdir *Dir_t, inode_no uint32, io_buf []uint8) bool {
	dir_inode := pdir.inode
	var all_blocks [defs.MAXBLKS]uint32
	all_blocks_of(part, dir_inode, &all_blocks)

	per_sector := defs.SECTSZ / DIR_ENTRY_SZ

	for block_idx := 0; block_idx < defs.MAXBLKS; block_idx++ {
		if all_blocks[block_idx] == 0 {
			continue
		}
		ide.Ide_read(part.Which_disk, all_blocks[block_idx], io_buf, 1)

		is_dir_first_block := false
		dir_entry_cnt := 0
		found_idx := -1
		for i := 0; i < per_sector; i++ {
			var de Dir_entry_t
			de.unmarshal(io_buf[i*DIR_ENTRY_SZ:])
			if de.F_type == defs.FT_UNKNOWN {
				continue
			}
			if de.Filename == "." {
				is_dir_first_block = true
			} else if de.Filename != ".." {
				dir_entry_cnt++
				if de.I_no == inode_no {
					if found_idx != -1 {
						mach.Panic("inode %d appears twice in dir", inode_no)
					}
					found_idx = i
				}
			}
		}
		if found_idx == -1 {
			continue
		}

		if dir_entry_cnt == 1 && !is_dir_first_block {
			// the found entry is this block's only live one: free the block
			idx := int(all_blocks[block_idx] - part.Sup_b.Data_start_lba)
			part.Block_bitmap.Set(idx, 0)
			Bitmap_sync(part, idx, BLOCK_BITMAP)

			if block_idx < defs.NDIRECT {
				dir_inode.I_blocks[block_idx] = 0
			} else {
				indirect_blocks := 0
				for i := defs.NDIRECT; i < defs.MAXBLKS; i++ {
					if all_blocks[i] != 0 {
						indirect_blocks++
					}
				}
				if indirect_blocks < 1 {
					mach.Panic("empty indirect table in dir %d", dir_inode.I_no)
				}
				if indirect_blocks > 1 {
					all_blocks[block_idx] = 0
					write_indirect(part, dir_inode.I_blocks[12], all_blocks[defs.NDIRECT:])
				} else {
					// last indirect block gone; drop the table too
					tidx := int(dir_inode.I_blocks[12] - part.Sup_b.Data_start_lba)
					part.Block_bitmap.Set(tidx, 0)
					Bitmap_sync(part, tidx, BLOCK_BITMAP)
					dir_inode.I_blocks[12] = 0
				}
			}
		} else {
			for i := 0; i < DIR_ENTRY_SZ; i++ {
				io_buf[found_idx*DIR_ENTRY_SZ+i] = 0
			}
			ide.Ide_write(part.Which_disk, all_blocks[block_idx], io_buf, 1)
		}

		if dir_inode.I_size < DIR_ENTRY_SZ {
			mach.Panic("dir %d size underflow", dir_inode.I_no)
		}
		dir_inode.I_size -= DIR_ENTRY_SZ
		sync_buf := make([]uint8, 2*defs.SECTSZ)
		Inode_sync(part, dir_inode, sync_buf)
		return true
	}
	return false
}

// Dir_read iterates the directory: each call returns the next live entry and
// advances Dir_pos by one entry size, or nil at end of directory.
func (dir *Dir_t) Dir_read() *Dir_entry_t {
	var all_blocks [defs.MAXBLKS]uint32
	all_blocks_of(Cur_part, dir.inode, &all_blocks)

	per_sector := defs.SECTSZ / DIR_ENTRY_SZ
	cur_dir_entry_pos := uint32(0)

	for block_idx := 0; block_idx < defs.MAXBLKS && dir.Dir_pos < dir.inode.I_size; block_idx++ {
		if all_blocks[block_idx] == 0 {
			continue
		}
		ide.Ide_read(Cur_part.Which_disk, all_blocks[block_idx], dir.dir_buf[:], 1)
		for i := 0; i < per_sector; i++ {
			var de Dir_entry_t
			de.unmarshal(dir.dir_buf[i*DIR_ENTRY_SZ:])
			if de.F_type == defs.FT_UNKNOWN {
				continue
			}
			// skip the entries already returned
			if cur_dir_entry_pos < dir.Dir_pos {
				cur_dir_entry_pos += DIR_ENTRY_SZ
				continue
			}
			if cur_dir_entry_pos != dir.Dir_pos {
				mach.Panic("dir cursor out of step")
			}
			dir.Dir_pos += DIR_ENTRY_SZ
			ret := de
			return &ret
		}
	}
	return nil
}

/// Dir_is_empty reports whether dir holds only '.' and '..'.
func Dir_is_empty(dir *Dir_t) bool {
	return dir.inode.I_size == DIR_ENTRY_SZ*2
}

// Dir_remove unlinks the empty child_dir from parent_dir and releases its
// inode and blocks.
func Dir_remove(parent_dir, child_dir *Dir_t) int {
	child_inode := child_dir.inode
	for i := 1; i < 13; i++ {
		if child_inode.I_blocks[i] != 0 {
			mach.Panic("empty dir %d with block %d", child_inode.I_no, i)
		}
	}
	io_buf := make([]uint8, 2*defs.SECTSZ)
	Delete_dir_entry(Cur_part, parent_dir, child_inode.I_no, io_buf)
	Inode_release(Cur_part, child_inode.I_no)
	return 0
}
