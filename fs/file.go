package fs

import "tinyos/console"
import "tinyos/defs"
import "tinyos/ide"
import "tinyos/mach"
import "tinyos/thread"
import "tinyos/util"

/// File_t is a global open-file table entry. A slot is free iff Fd_inode is
/// nil.
type File_t struct {
	Fd_pos   uint32
	Fd_flag  uint32
	Fd_inode *Inode_t
}

/// File_table is the system-wide open-file table; slots 0..2 are reserved
/// for the standard descriptors.
var File_table [defs.MAX_FILES_OPEN]File_t

/// Bitmap_type_t selects which on-disk bitmap Bitmap_sync writes back.
type Bitmap_type_t int

const (
	INODE_BITMAP Bitmap_type_t = iota
	BLOCK_BITMAP
)

// Get_free_slot_in_global_ft finds an unused file-table slot at index 3 or
// above, or returns -1.
func Get_free_slot_in_global_ft() int {
	for fd_idx := 3; fd_idx < defs.MAX_FILES_OPEN; fd_idx++ {
		if File_table[fd_idx].Fd_inode == nil {
			return fd_idx
		}
	}
	console.Printk("exceed max open files\n")
	return -1
}

// Pcb_fd_install puts a global file-table index into the calling task's
// first free fd slot at or above 3 and returns the local fd, or -1.
func Pcb_fd_install(global_fd_idx int) int {
	cur := thread.Running_thread()
	for local_fd := 3; local_fd < defs.MAX_FILES_OPEN_PROC; local_fd++ {
		if cur.Fd_table[local_fd] == -1 {
			cur.Fd_table[local_fd] = int32(global_fd_idx)
			return local_fd
		}
	}
	console.Printk("exceed max open files for each process\n")
	return -1
}

/// Inode_bitmap_alloc claims a free inode number, or returns -1.
func Inode_bitmap_alloc(part *Partition_t) int {
	bit_idx := part.Inode_bitmap.Scan(1)
	if bit_idx == -1 {
		return -1
	}
	part.Inode_bitmap.Set(bit_idx, 1)
	return bit_idx
}

/// Block_bitmap_alloc claims a free data block and returns its LBA, or -1.
func Block_bitmap_alloc(part *Partition_t) int {
	bit_idx := part.Block_bitmap.Scan(1)
	if bit_idx == -1 {
		return -1
	}
	part.Block_bitmap.Set(bit_idx, 1)
	return int(part.Sup_b.Data_start_lba) + bit_idx
}

// Bitmap_sync writes the one bitmap sector containing bit_idx back to disk;
// the disk works in sectors, so the whole 512-byte window goes out.
func Bitmap_sync(part *Partition_t, bit_idx int, btmp Bitmap_type_t) {
	off_sector := bit_idx / defs.BITS_PER_SECTOR
	off_byte := off_sector * defs.SECTSZ

	var sector_lba uint32
	var bits []uint8
	switch btmp {
	case INODE_BITMAP:
		sector_lba = part.Sup_b.Inode_bitmap_lba + uint32(off_sector)
		bits = part.Inode_bitmap.Bits[off_byte:]
	case BLOCK_BITMAP:
		sector_lba = part.Sup_b.Block_bitmap_lba + uint32(off_sector)
		bits = part.Block_bitmap.Bits[off_byte:]
	}
	ide.Ide_write(part.Which_disk, sector_lba, bits, 1)
}

// File_create makes filename in parent_dir and returns a local fd for it.
// On any failure the steps already taken are rolled back in reverse order:
// the file-table slot, the in-memory inode, the inode bitmap bit.
func File_create(parent_dir *Dir_t, filename string, flag uint32) int {
	io_buf := make([]uint8, 1024)

	rollback_slot := -1
	var rollback_inode_no int = -1

	new_inode_no := Inode_bitmap_alloc(Cur_part)
	if new_inode_no == -1 {
		console.Printk("file_create: allocate inode bit failed\n")
		return -1
	}
	rollback_inode_no = new_inode_no

	new_inode := &Inode_t{}
	Inode_init(uint32(new_inode_no), new_inode)

	fd_idx := Get_free_slot_in_global_ft()
	if fd_idx == -1 {
		Cur_part.Inode_bitmap.Set(rollback_inode_no, 0)
		return -1
	}
	File_table[fd_idx].Fd_flag = flag
	File_table[fd_idx].Fd_inode = new_inode
	File_table[fd_idx].Fd_pos = 0
	new_inode.Write_deny = false
	rollback_slot = fd_idx

	var new_dir_entry Dir_entry_t
	Create_dir_entry(filename, uint32(new_inode_no), defs.FT_REGULAR, &new_dir_entry)

	if !Sync_dir_entry(parent_dir, &new_dir_entry, io_buf) {
		console.Printk("sync dir_entry to disk failed\n")
		File_table[rollback_slot] = File_t{}
		Cur_part.Inode_bitmap.Set(rollback_inode_no, 0)
		return -1
	}

	for i := range io_buf {
		io_buf[i] = 0
	}
	Inode_sync(Cur_part, parent_dir.inode, io_buf)
	for i := range io_buf {
		io_buf[i] = 0
	}
	Inode_sync(Cur_part, new_inode, io_buf)
	Bitmap_sync(Cur_part, new_inode_no, INODE_BITMAP)

	Cur_part.Open_inodes.Push(&new_inode.Inode_tag)
	new_inode.I_open_cnt = 1

	return Pcb_fd_install(fd_idx)
}

// File_open opens inode_no into a fresh file-table slot. Opening for writing
// takes the inode's write_deny flag; a second writer is refused.
func File_open(inode_no uint32, flag uint32) int {
	fd_idx := Get_free_slot_in_global_ft()
	if fd_idx == -1 {
		return -1
	}
	File_table[fd_idx].Fd_flag = flag
	File_table[fd_idx].Fd_inode = Inode_open(Cur_part, inode_no)
	File_table[fd_idx].Fd_pos = 0

	if flag&defs.O_WRONLY != 0 || flag&defs.O_RDWR != 0 {
		old := mach.Intr_disable()
		if File_table[fd_idx].Fd_inode.Write_deny {
			mach.Intr_set_status(old)
			console.Printk("file can't be write now, try again later\n")
			Inode_close(File_table[fd_idx].Fd_inode)
			File_table[fd_idx].Fd_inode = nil
			return -1
		}
		File_table[fd_idx].Fd_inode.Write_deny = true
		mach.Intr_set_status(old)
	}
	return Pcb_fd_install(fd_idx)
}

/// File_close releases a file-table slot and its inode reference.
func File_close(file *File_t) int {
	if file == nil || file.Fd_inode == nil {
		return -1
	}
	file.Fd_inode.Write_deny = false
	Inode_close(file.Fd_inode)
	file.Fd_inode = nil
	return 0
}

// File_write appends count bytes at the end of the file (the file position
// is moved to the end first), growing the file one block at a time. The first touched block may hold
// old data and is merged read-modify-write; the inode goes out at the end.
func File_write(file *File_t, buf []uint8, count int) int {
	if int(file.Fd_inode.I_size)+count > defs.BLKSZ*defs.MAXBLKS {
		console.Printk("exceed max file_size %d bytes, write file failed\n",
			defs.BLKSZ*defs.MAXBLKS)
		return -1
	}
	io_buf := make([]uint8, defs.BLKSZ)
	var all_blocks [defs.MAXBLKS]uint32

	// first-ever write: give the file its first block
	if file.Fd_inode.I_blocks[0] == 0 {
		block_lba := Block_bitmap_alloc(Cur_part)
		if block_lba == -1 {
			console.Printk("file_write: block_bitmap_alloc failed\n")
			return -1
		}
		file.Fd_inode.I_blocks[0] = uint32(block_lba)
		idx := int(uint32(block_lba) - Cur_part.Sup_b.Data_start_lba)
		if idx == 0 {
			mach.Panic("file data in root dir block")
		}
		Bitmap_sync(Cur_part, idx, BLOCK_BITMAP)
	}

	// blocks 0..has_used-1 exist (block 0 was just ensured); the write needs
	// every block up to will_use-1
	file_has_used_blocks := util.Divroundup(int(file.Fd_inode.I_size), defs.BLKSZ)
	if file_has_used_blocks == 0 {
		file_has_used_blocks = 1
	}
	file_will_use_blocks := util.Divroundup(int(file.Fd_inode.I_size)+count, defs.BLKSZ)
	if file_will_use_blocks > defs.MAXBLKS {
		mach.Panic("file grows past %d blocks", defs.MAXBLKS)
	}
	add_blocks := file_will_use_blocks - file_has_used_blocks

	if add_blocks == 0 {
		if file_has_used_blocks <= defs.NDIRECT {
			block_idx := file_has_used_blocks - 1
			all_blocks[block_idx] = file.Fd_inode.I_blocks[block_idx]
		} else {
			if file.Fd_inode.I_blocks[12] == 0 {
				mach.Panic("indirect file with no table")
			}
			read_indirect(Cur_part, file.Fd_inode.I_blocks[12], all_blocks[defs.NDIRECT:])
		}
	} else {
		switch {
		case file_will_use_blocks <= defs.NDIRECT:
			// growth stays within the direct slots
			block_idx := file_has_used_blocks - 1
			all_blocks[block_idx] = file.Fd_inode.I_blocks[block_idx]
			for block_idx = file_has_used_blocks; block_idx < file_will_use_blocks; block_idx++ {
				block_lba := Block_bitmap_alloc(Cur_part)
				if block_lba == -1 {
					console.Printk("file_write: block_bitmap_alloc failed (situation 1)\n")
					return -1
				}
				if file.Fd_inode.I_blocks[block_idx] != 0 {
					mach.Panic("direct block %d occupied", block_idx)
				}
				file.Fd_inode.I_blocks[block_idx] = uint32(block_lba)
				all_blocks[block_idx] = uint32(block_lba)
				Bitmap_sync(Cur_part, int(uint32(block_lba)-Cur_part.Sup_b.Data_start_lba), BLOCK_BITMAP)
			}

		case file_has_used_blocks <= defs.NDIRECT:
			// growth crosses from direct into indirect blocks
			block_idx := file_has_used_blocks - 1
			all_blocks[block_idx] = file.Fd_inode.I_blocks[block_idx]

			table_lba := Block_bitmap_alloc(Cur_part)
			if table_lba == -1 {
				console.Printk("file_write: block_bitmap_alloc failed (situation 2)\n")
				return -1
			}
			if file.Fd_inode.I_blocks[12] != 0 {
				mach.Panic("indirect table occupied")
			}
			file.Fd_inode.I_blocks[12] = uint32(table_lba)
			Bitmap_sync(Cur_part, int(uint32(table_lba)-Cur_part.Sup_b.Data_start_lba), BLOCK_BITMAP)

			for block_idx = file_has_used_blocks; block_idx < file_will_use_blocks; block_idx++ {
				block_lba := Block_bitmap_alloc(Cur_part)
				if block_lba == -1 {
					console.Printk("file_write: block_bitmap_alloc failed (situation 2)\n")
					return -1
				}
				if block_idx < defs.NDIRECT {
					if file.Fd_inode.I_blocks[block_idx] != 0 {
						mach.Panic("direct block %d occupied", block_idx)
					}
					file.Fd_inode.I_blocks[block_idx] = uint32(block_lba)
					all_blocks[block_idx] = uint32(block_lba)
				} else {
					all_blocks[block_idx] = uint32(block_lba)
				}
				Bitmap_sync(Cur_part, int(uint32(block_lba)-Cur_part.Sup_b.Data_start_lba), BLOCK_BITMAP)
			}
			write_indirect(Cur_part, file.Fd_inode.I_blocks[12], all_blocks[defs.NDIRECT:])

		default:
			// already past the direct slots
			if file.Fd_inode.I_blocks[12] == 0 {
				mach.Panic("indirect file with no table")
			}
			read_indirect(Cur_part, file.Fd_inode.I_blocks[12], all_blocks[defs.NDIRECT:])
			for block_idx := file_has_used_blocks; block_idx < file_will_use_blocks; block_idx++ {
				block_lba := Block_bitmap_alloc(Cur_part)
				if block_lba == -1 {
					console.Printk("file_write: block_bitmap_alloc failed (situation 3)\n")
					return -1
				}
				all_blocks[block_idx] = uint32(block_lba)
				Bitmap_sync(Cur_part, int(uint32(block_lba)-Cur_part.Sup_b.Data_start_lba), BLOCK_BITMAP)
			}
			write_indirect(Cur_part, file.Fd_inode.I_blocks[12], all_blocks[defs.NDIRECT:])
		}
	}

	// every needed block address is in all_blocks; move the bytes
	bytes_written := 0
	bytes_left := count
	first_write_block := true
	file.Fd_pos = file.Fd_inode.I_size
	for bytes_written < count {
		sector_idx := int(file.Fd_inode.I_size) / defs.BLKSZ
		sector_lba := all_blocks[sector_idx]
		off := int(file.Fd_inode.I_size) % defs.BLKSZ
		left_in_sector := defs.BLKSZ - off
		chunk := util.Min(bytes_left, left_in_sector)

		for i := range io_buf {
			io_buf[i] = 0
		}
		if first_write_block {
			// merge with the block's resident bytes
			ide.Ide_read(Cur_part.Which_disk, sector_lba, io_buf, 1)
			first_write_block = false
		}
		copy(io_buf[off:], buf[bytes_written:bytes_written+chunk])
		ide.Ide_write(Cur_part.Which_disk, sector_lba, io_buf, 1)

		file.Fd_inode.I_size += uint32(chunk)
		file.Fd_pos += uint32(chunk)
		bytes_written += chunk
		bytes_left -= chunk
	}
	Inode_sync(Cur_part, file.Fd_inode, make([]uint8, 2*defs.SECTSZ))
	return bytes_written
}

// File_read copies up to count bytes from the file position into buf,
// capped at end of file; reading at the end returns -1.
func File_read(file *File_t, buf []uint8, count int) int {
	size := count
	if int(file.Fd_pos)+count > int(file.Fd_inode.I_size) {
		size = int(file.Fd_inode.I_size) - int(file.Fd_pos)
		if size == 0 {
			return -1
		}
	}

	io_buf := make([]uint8, defs.BLKSZ)
	var all_blocks [defs.MAXBLKS]uint32

	block_read_start_idx := int(file.Fd_pos) / defs.BLKSZ
	block_read_end_idx := (int(file.Fd_pos) + size - 1) / defs.BLKSZ
	if block_read_start_idx >= defs.MAXBLKS || block_read_end_idx >= defs.MAXBLKS {
		mach.Panic("read past block %d", defs.MAXBLKS)
	}

	for i := block_read_start_idx; i <= util.Min(block_read_end_idx, defs.NDIRECT-1); i++ {
		all_blocks[i] = file.Fd_inode.I_blocks[i]
	}
	if block_read_end_idx >= defs.NDIRECT {
		if file.Fd_inode.I_blocks[12] == 0 {
			mach.Panic("indirect read with no table")
		}
		read_indirect(Cur_part, file.Fd_inode.I_blocks[12], all_blocks[defs.NDIRECT:])
	}

	bytes_read := 0
	size_left := size
	for bytes_read < size {
		sector_idx := int(file.Fd_pos) / defs.BLKSZ
		sector_lba := all_blocks[sector_idx]
		off := int(file.Fd_pos) % defs.BLKSZ
		chunk := util.Min(size_left, defs.BLKSZ-off)

		ide.Ide_read(Cur_part.Which_disk, sector_lba, io_buf, 1)
		copy(buf[bytes_read:bytes_read+chunk], io_buf[off:])

		file.Fd_pos += uint32(chunk)
		bytes_read += chunk
		size_left -= chunk
	}
	return bytes_read
}
