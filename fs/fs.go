package fs

import "strings"

import "tinyos/bitmap"
import "tinyos/console"
import "tinyos/defs"
import "tinyos/ide"
import "tinyos/kbd"
import "tinyos/klist"
import "tinyos/mach"
import "tinyos/thread"
import "tinyos/util"

/// Stat_t is what Sys_stat reports.
type Stat_t struct {
	St_ino      uint32
	St_size     uint32
	St_filetype defs.Ftype_t
}

// Path_search_record_t describes how far a path walk got: the path actually
// visited, the directory the walk ended in, and what the last component
// turned out to be.
type Path_search_record_t struct {
	Searched_path string
	Parent_dir    *Dir_t
	File_type     defs.Ftype_t
}

// partition_format creates a file system on part: superblock at sector 1,
// the block bitmap (sized against the space left after itself), the inode
// bitmap and table, and a root directory holding '.' and '..'.
func partition_format(part *ide.Partition_t) {
	hd := part.Which_disk
	boot_sectors := uint32(1)
	super_block_sectors := uint32(1)
	inode_bitmap_sectors := uint32(util.Divroundup(defs.MAX_FILES_PER_PART, defs.BITS_PER_SECTOR))
	inode_table_sectors := uint32(util.Divroundup(INODE_SZ*defs.MAX_FILES_PER_PART, defs.SECTSZ))

	used_sectors := boot_sectors + super_block_sectors + inode_bitmap_sectors + inode_table_sectors
	free_sectors := part.Sector_cnt - used_sectors
	// the block bitmap occupies data-region space; estimate, subtract, redo
	block_bitmap_sectors := uint32(util.Divroundup(int(free_sectors), defs.BITS_PER_SECTOR))
	real_free_sectors := free_sectors - block_bitmap_sectors
	block_bitmap_sectors = uint32(util.Divroundup(int(real_free_sectors), defs.BITS_PER_SECTOR))

	sb := &Superblock_t{}
	sb.Magic = defs.FS_MAGIC
	sb.Sector_cnt = part.Sector_cnt
	sb.Inode_cnt = defs.MAX_FILES_PER_PART
	sb.Part_lba = part.Start_lba

	sb.Block_bitmap_lba = part.Start_lba + 2
	sb.Block_bitmap_sects = block_bitmap_sectors

	sb.Inode_bitmap_lba = sb.Block_bitmap_lba + sb.Block_bitmap_sects
	sb.Inode_bitmap_sects = inode_bitmap_sectors

	sb.Inode_table_lba = sb.Inode_bitmap_lba + sb.Inode_bitmap_sects
	sb.Inode_table_sects = inode_table_sectors

	sb.Data_start_lba = sb.Inode_table_lba + sb.Inode_table_sects
	sb.Root_inode_no = 0
	sb.Dir_entry_size = DIR_ENTRY_SZ

	console.Printk("%s info:\n", part.Name)
	console.Printk("  magic:0x%x\n  part_lba:0x%x\n  total_sectors:0x%x\n  inode_cnt:0x%x\n"+
		"  block_bitmap_lba:0x%x\n  block_bitmap_sectors:0x%x\n"+
		"  inode_bitmap_lba:0x%x\n  inode_bitmap_sectors:0x%x\n"+
		"  inode_table_lba:0x%x\n  inode_table_sectors:0x%x\n  data_start_lba:0x%x\n",
		sb.Magic, sb.Part_lba, sb.Sector_cnt, sb.Inode_cnt,
		sb.Block_bitmap_lba, sb.Block_bitmap_sects,
		sb.Inode_bitmap_lba, sb.Inode_bitmap_sects,
		sb.Inode_table_lba, sb.Inode_table_sects, sb.Data_start_lba)

	buf := make([]uint8, defs.SECTSZ)
	sb.marshal(buf)
	ide.Ide_write(hd, part.Start_lba+1, buf, 1)
	console.Printk("  super_block_lba:0x%x\n", part.Start_lba+1)

	buf_sects := sb.Block_bitmap_sects
	if sb.Inode_bitmap_sects > buf_sects {
		buf_sects = sb.Inode_bitmap_sects
	}
	if sb.Inode_table_sects > buf_sects {
		buf_sects = sb.Inode_table_sects
	}
	big := make([]uint8, int(buf_sects)*defs.SECTSZ)

	// block bitmap: bit 0 is the root directory's block; the tail bits past
	// the real free sectors are wasted, mark them used
	big[0] |= 0x01
	last_byte := int(real_free_sectors) / 8
	last_bit := int(real_free_sectors) % 8
	unused := int(sb.Block_bitmap_sects)*defs.SECTSZ - last_byte
	for i := 0; i < unused; i++ {
		big[last_byte+i] = 0xff
	}
	for bit := 0; bit < last_bit; bit++ {
		big[last_byte] &^= 1 << uint(bit)
	}
	ide.Ide_write(hd, sb.Block_bitmap_lba, big, int(sb.Block_bitmap_sects))

	// inode bitmap: inode 0 is the root
	for i := range big {
		big[i] = 0
	}
	big[0] |= 0x01
	ide.Ide_write(hd, sb.Inode_bitmap_lba, big, int(sb.Inode_bitmap_sects))

	// inode table: root holds two entries and points at the first data block
	for i := range big {
		big[i] = 0
	}
	root := &Inode_t{}
	Inode_init(0, root)
	root.I_size = DIR_ENTRY_SZ * 2
	root.I_blocks[0] = sb.Data_start_lba
	root.marshal(big)
	ide.Ide_write(hd, sb.Inode_table_lba, big, int(sb.Inode_table_sects))

	// the root directory's block: '.' and '..', both inode 0
	for i := range big {
		big[i] = 0
	}
	var de Dir_entry_t
	Create_dir_entry(".", 0, defs.FT_DIRECTORY, &de)
	de.marshal(big)
	Create_dir_entry("..", 0, defs.FT_DIRECTORY, &de)
	de.marshal(big[DIR_ENTRY_SZ:])
	ide.Ide_write(hd, sb.Data_start_lba, big, 1)

	console.Printk("  root_dir_lba:0x%x\n", sb.Data_start_lba)
	console.Printk("  %s format done\n", part.Name)
}

// mount_partition reads part's superblock and bitmaps into memory and makes
// it the mounted partition.
func mount_partition(idepart *ide.Partition_t) {
	part := &Partition_t{Partition_t: idepart}
	hd := idepart.Which_disk

	buf := make([]uint8, defs.SECTSZ)
	ide.Ide_read(hd, idepart.Start_lba+1, buf, 1)
	part.Sup_b = &Superblock_t{}
	part.Sup_b.unmarshal(buf)

	console.Printk("part I mounted:\n")
	console.Printk("  name: %s\n  root_dir_lba: 0x%x\n", part.Name, part.Sup_b.Data_start_lba)

	bb := bitmap.MkBitmap(int(part.Sup_b.Block_bitmap_sects) * defs.SECTSZ)
	ide.Ide_read(hd, part.Sup_b.Block_bitmap_lba, bb.Bits, int(part.Sup_b.Block_bitmap_sects))
	part.Block_bitmap = bb

	ib := bitmap.MkBitmap(int(part.Sup_b.Inode_bitmap_sects) * defs.SECTSZ)
	ide.Ide_read(hd, part.Sup_b.Inode_bitmap_lba, ib.Bits, int(part.Sup_b.Inode_bitmap_sects))
	part.Inode_bitmap = ib

	part.Open_inodes.Init()
	Cur_part = part
	console.Printk("mount %s done!\n", part.Name)
}

// Filesys_init walks every scanned partition, formatting the ones without a
// recognizable file system, then mounts default_part and opens its root.
func Filesys_init(default_part string) {
	console.Printk("searching filesystem......\n")
	buf := make([]uint8, defs.SECTSZ)
	ide.Partition_list.Traversal(0, func(e *klist.Elem_t, _ int) bool {
		part := e.Owner.(*ide.Partition_t)
		if part.Sector_cnt == 0 {
			return false
		}
		ide.Ide_read(part.Which_disk, part.Start_lba+1, buf, 1)
		magic := uint32(util.Readn(buf, 4, 0))
		if magic == defs.FS_MAGIC {
			console.Printk("%s has filesystem\n", part.Name)
		} else {
			console.Printk("fromatting %s......\n", part.Name)
			partition_format(part)
		}
		return false
	})

	mounted := ide.Partition_list.Traversal(0, func(e *klist.Elem_t, _ int) bool {
		return e.Owner.(*ide.Partition_t).Name == default_part
	})
	if mounted == nil {
		mach.Panic("default partition %s not found", default_part)
	}
	mount_partition(mounted.Owner.(*ide.Partition_t))

	Open_root_dir(Cur_part)
	for i := range File_table {
		File_table[i] = File_t{}
	}
}

// search_file walks pathname from the root and fills record with the parent
// directory of the furthest point reached and the type found. It returns the
// inode number of the found file, or -1. The caller closes
// record.Parent_dir.
func search_file(pathname string, record *Path_search_record_t) int {
	if pathname == "/" || pathname == "/." || pathname == "/.." {
		record.Parent_dir = &Root_dir
		record.File_type = defs.FT_DIRECTORY
		record.Searched_path = ""
		return 0
	}
	path_len := len(pathname)
	if path_len <= 1 || pathname[0] != '/' || path_len >= defs.MAX_PATH_LEN {
		mach.Panic("bad search path %q", pathname)
	}

	parent_dir := &Root_dir
	record.Parent_dir = parent_dir
	record.File_type = defs.FT_UNKNOWN
	parent_inode_no := uint32(0)

	var dir_e Dir_entry_t
	name, sub_path := Path_parse(pathname)
	for name != "" {
		record.Searched_path += "/" + name
		if !Search_dir_entry(Cur_part, parent_dir, name, &dir_e) {
			return -1
		}
		name, sub_path = Path_parse(sub_path)

		if dir_e.F_type == defs.FT_DIRECTORY {
			parent_inode_no = parent_dir.inode.I_no
			Dir_close(parent_dir)
			parent_dir = Dir_open(Cur_part, dir_e.I_no)
			record.Parent_dir = parent_dir
			continue
		}
		if dir_e.F_type == defs.FT_REGULAR {
			record.File_type = defs.FT_REGULAR
			return int(dir_e.I_no)
		}
	}

	// the path named a directory; reopen its parent so the record is useful
	Dir_close(record.Parent_dir)
	record.Parent_dir = Dir_open(Cur_part, parent_inode_no)
	record.File_type = defs.FT_DIRECTORY
	return int(dir_e.I_no)
}

// Sys_open opens (or with O_CREAT creates) the file at pathname and returns
// a local fd, or -1. Directories must go through Sys_opendir.
func Sys_open(pathname string, flag uint32) int {
	if strings.HasSuffix(pathname, "/") {
		console.Printk("sys_open: can't open a directory %s\n", pathname)
		return -1
	}
	if flag > defs.O_WRONLY|defs.O_RDWR|defs.O_CREAT {
		mach.Panic("open flag %#x", flag)
	}

	var record Path_search_record_t
	pathname_depth := Path_depth_cnt(pathname)

	inode_no := search_file(pathname, &record)
	found := inode_no != -1

	if record.File_type == defs.FT_DIRECTORY {
		console.Printk("sys_open: can't open a directory with open(), use opendir instead\n")
		Dir_close(record.Parent_dir)
		return -1
	}

	searched_depth := Path_depth_cnt(record.Searched_path)
	if searched_depth != pathname_depth {
		// an intermediate directory is missing
		console.Printk("sys_open: cannot access %s: not a directory, subpath %s does not exist\n",
			pathname, record.Searched_path)
		Dir_close(record.Parent_dir)
		return -1
	}

	if !found && flag&defs.O_CREAT == 0 {
		console.Printk("sys_open: in path %s, file %s does not exist\n",
			record.Searched_path, last_component(pathname))
		Dir_close(record.Parent_dir)
		return -1
	}
	if found && flag&defs.O_CREAT != 0 {
		console.Printk("%s has already exist!\n", pathname)
		Dir_close(record.Parent_dir)
		return -1
	}

	var fd int
	if flag&defs.O_CREAT != 0 {
		console.Printk("creating file\n")
		fd = File_create(record.Parent_dir, last_component(pathname), flag)
		Dir_close(record.Parent_dir)
	} else {
		fd = File_open(uint32(inode_no), flag)
		Dir_close(record.Parent_dir)
	}
	return fd
}

func last_component(pathname string) string {
	slash := strings.LastIndexByte(pathname, '/')
	return pathname[slash+1:]
}

// fd_local2global maps a task-local fd to its file-table index.
func fd_local2global(local_fd int) int {
	cur := thread.Running_thread()
	if local_fd < 0 || local_fd >= defs.MAX_FILES_OPEN_PROC {
		mach.Panic("local fd %d", local_fd)
	}
	g := cur.Fd_table[local_fd]
	if g < 0 || g >= defs.MAX_FILES_OPEN {
		mach.Panic("fd %d maps to slot %d", local_fd, g)
	}
	return int(g)
}

/// Sys_close closes a local fd; fds 0..2 cannot be closed.
func Sys_close(fd int) int {
	if fd <= 2 {
		return -1
	}
	g := fd_local2global(fd)
	ret := File_close(&File_table[g])
	thread.Running_thread().Fd_table[fd] = -1
	return ret
}

// Sys_write sends buf to fd: the console for stdout/stderr, the file system
// otherwise. Returns bytes written or -1.
func Sys_write(fd int, buf []uint8) int {
	if fd < 0 {
		console.Printk("sys_write: fd error\n")
		return -1
	}
	if fd == defs.STDOUT_NO || fd == defs.STDERR_NO {
		console.Put_str(string(buf))
		return len(buf)
	}
	g := fd_local2global(fd)
	wr_file := &File_table[g]
	if wr_file.Fd_flag&defs.O_WRONLY != 0 || wr_file.Fd_flag&defs.O_RDWR != 0 {
		return File_write(wr_file, buf, len(buf))
	}
	console.Printk("sys_write: not allowed to write file without flag O_RDWR or O_WRONLY\n")
	return -1
}

// Sys_read fills buf from fd: the keyboard queue for stdin, the file system
// otherwise. Returns bytes read or -1.
func Sys_read(fd int, buf []uint8) int {
	if fd < 0 || fd == defs.STDOUT_NO || fd == defs.STDERR_NO {
		console.Printk("sys_read: fd error\n")
		return -1
	}
	if fd == defs.STDIN_NO {
		for i := 0; i < len(buf); i++ {
			old := mach.Intr_disable()
			buf[i] = kbd.Kbd_buf.Getchar()
			mach.Intr_set_status(old)
		}
		return len(buf)
	}
	g := fd_local2global(fd)
	return File_read(&File_table[g], buf, len(buf))
}

// Sys_lseek repositions fd; the new position must stay inside [0, size-1].
func Sys_lseek(fd int, offset int, whence int) int {
	if fd < 3 {
		console.Printk("sys_lseek: fd error\n")
		return -1
	}
	g := fd_local2global(fd)
	file := &File_table[g]
	file_size := int(file.Fd_inode.I_size)

	var new_pos int
	switch whence {
	case defs.SEEK_SET:
		new_pos = offset
	case defs.SEEK_CUR:
		new_pos = int(file.Fd_pos) + offset
	case defs.SEEK_END:
		new_pos = file_size + offset
	default:
		mach.Panic("lseek whence %d", whence)
	}
	if new_pos < 0 || new_pos > file_size-1 {
		return -1
	}
	file.Fd_pos = uint32(new_pos)
	return new_pos
}

// Sys_unlink removes a regular file; directories and files still open are
// refused.
func Sys_unlink(pathname string) int {
	var record Path_search_record_t
	inode_no := search_file(pathname, &record)
	if inode_no == -1 {
		console.Printk("file %s not found!\n", pathname)
		Dir_close(record.Parent_dir)
		return -1
	}
	if record.File_type == defs.FT_DIRECTORY {
		console.Printk("can't delete a directory with unlink(), use rmdir() instead\n")
		Dir_close(record.Parent_dir)
		return -1
	}

	// refuse while any open-file slot still references the inode
	for i := 3; i < defs.MAX_FILES_OPEN; i++ {
		if File_table[i].Fd_inode != nil && File_table[i].Fd_inode.I_no == uint32(inode_no) {
			Dir_close(record.Parent_dir)
			console.Printk("file %s is in use, not allow to delete!\n", pathname)
			return -1
		}
	}

	io_buf := make([]uint8, 2*defs.SECTSZ)
	Delete_dir_entry(Cur_part, record.Parent_dir, uint32(inode_no), io_buf)
	Inode_release(Cur_part, uint32(inode_no))
	Dir_close(record.Parent_dir)
	return 0
}

// Sys_mkdir creates a directory at pathname: a fresh inode, a first block
// holding '.' and '..', and an entry in the parent. Failures roll back in
// reverse order.
func Sys_mkdir(pathname string) int {
	var record Path_search_record_t
	inode_no := search_file(pathname, &record)
	if inode_no != -1 {
		console.Printk("sys_mkdir: file or directory %s exist!\n", pathname)
		Dir_close(record.Parent_dir)
		return -1
	}
	// the miss must be on the final component, not an intermediate one
	pathname_depth := Path_depth_cnt(pathname)
	searched_depth := Path_depth_cnt(record.Searched_path)
	if pathname_depth != searched_depth {
		console.Printk("sys_mkdir: cannot access %s: subpath %s does not exist\n",
			pathname, record.Searched_path)
		Dir_close(record.Parent_dir)
		return -1
	}

	dirname := last_component(record.Searched_path)

	new_inode_no := Inode_bitmap_alloc(Cur_part)
	if new_inode_no == -1 {
		console.Printk("sys_mkdir: allocate inode failed\n")
		Dir_close(record.Parent_dir)
		return -1
	}
	var new_dir_inode Inode_t
	Inode_init(uint32(new_inode_no), &new_dir_inode)

	block_lba := Block_bitmap_alloc(Cur_part)
	if block_lba == -1 {
		console.Printk("sys_mkdir: block_bitmap_alloc failed\n")
		Cur_part.Inode_bitmap.Set(new_inode_no, 0)
		Dir_close(record.Parent_dir)
		return -1
	}
	new_dir_inode.I_blocks[0] = uint32(block_lba)
	block_bitmap_idx := int(uint32(block_lba) - Cur_part.Sup_b.Data_start_lba)
	Bitmap_sync(Cur_part, block_bitmap_idx, BLOCK_BITMAP)

	// '.' and '..' open the directory's first block
	io_buf := make([]uint8, defs.SECTSZ*2)
	var de Dir_entry_t
	Create_dir_entry(".", uint32(new_inode_no), defs.FT_DIRECTORY, &de)
	de.marshal(io_buf)
	Create_dir_entry("..", record.Parent_dir.inode.I_no, defs.FT_DIRECTORY, &de)
	de.marshal(io_buf[DIR_ENTRY_SZ:])
	ide.Ide_write(Cur_part.Which_disk, uint32(block_lba), io_buf, 1)
	new_dir_inode.I_size = 2 * DIR_ENTRY_SZ

	var entry Dir_entry_t
	Create_dir_entry(dirname, uint32(new_inode_no), defs.FT_DIRECTORY, &entry)
	for i := range io_buf {
		io_buf[i] = 0
	}
	if !Sync_dir_entry(record.Parent_dir, &entry, io_buf) {
		console.Printk("sys_mkdir: sync_dir_entry to disk failed!\n")
		Cur_part.Block_bitmap.Set(block_bitmap_idx, 0)
		Cur_part.Inode_bitmap.Set(new_inode_no, 0)
		Dir_close(record.Parent_dir)
		return -1
	}

	for i := range io_buf {
		io_buf[i] = 0
	}
	Inode_sync(Cur_part, record.Parent_dir.inode, io_buf)
	for i := range io_buf {
		io_buf[i] = 0
	}
	Inode_sync(Cur_part, &new_dir_inode, io_buf)
	Bitmap_sync(Cur_part, new_inode_no, INODE_BITMAP)
	Dir_close(record.Parent_dir)
	return 0
}

/// Sys_opendir opens the directory at pathname, or returns nil.
func Sys_opendir(pathname string) *Dir_t {
	if pathname == "/" || pathname == "/." || pathname == "/.." {
		return &Root_dir
	}
	var record Path_search_record_t
	inode_no := search_file(pathname, &record)
	var ret *Dir_t
	if inode_no == -1 {
		console.Printk("in %s, sub path %s not exist\n", pathname, record.Searched_path)
	} else if record.File_type == defs.FT_REGULAR {
		console.Printk("%s is regular file!\n", pathname)
	} else if record.File_type == defs.FT_DIRECTORY {
		ret = Dir_open(Cur_part, uint32(inode_no))
	}
	Dir_close(record.Parent_dir)
	return ret
}

/// Sys_closedir closes a directory from Sys_opendir.
func Sys_closedir(dir *Dir_t) int {
	if dir == nil {
		return -1
	}
	Dir_close(dir)
	return 0
}

/// Sys_readdir returns the next entry of dir, or nil at the end.
func Sys_readdir(dir *Dir_t) *Dir_entry_t {
	if dir == nil {
		return nil
	}
	return dir.Dir_read()
}

/// Sys_rewinddir resets the directory cursor.
func Sys_rewinddir(dir *Dir_t) {
	dir.Dir_pos = 0
}

// Sys_rmdir removes the directory at pathname; it must exist, be a
// directory, and hold nothing but '.' and '..'.
func Sys_rmdir(pathname string) int {
	var record Path_search_record_t
	inode_no := search_file(pathname, &record)
	retval := -1
	if inode_no == -1 {
		console.Printk("in %s, sub path %s not exist\n", pathname, record.Searched_path)
	} else if record.File_type == defs.FT_REGULAR {
		console.Printk("%s is regular file!\n", pathname)
	} else {
		dir := Dir_open(Cur_part, uint32(inode_no))
		if !Dir_is_empty(dir) {
			console.Printk("dir %s is not empty, it is not allowed to delete a nonempty directory!\n", pathname)
		} else {
			if Dir_remove(record.Parent_dir, dir) == 0 {
				retval = 0
			}
		}
		Dir_close(dir)
	}
	Dir_close(record.Parent_dir)
	return retval
}

// get_parent_dir_inode_nr reads a directory's '..' entry, which lives at
// the start of its first block.
func get_parent_dir_inode_nr(child_inode_no uint32, io_buf []uint8) uint32 {
	child_inode := Inode_open(Cur_part, child_inode_no)
	block_lba := child_inode.I_blocks[0]
	if block_lba < Cur_part.Sup_b.Data_start_lba {
		mach.Panic("dir %d first block %#x", child_inode_no, block_lba)
	}
	Inode_close(child_inode)
	ide.Ide_read(Cur_part.Which_disk, block_lba, io_buf, 1)
	var de Dir_entry_t
	de.unmarshal(io_buf[DIR_ENTRY_SZ:])
	if de.Filename != ".." || de.F_type != defs.FT_DIRECTORY {
		mach.Panic("dir %d without '..'", child_inode_no)
	}
	return de.I_no
}

// get_child_dir_name finds the entry of p_inode_no's child c_inode_no and
// returns its name, or "".
func get_child_dir_name(p_inode_no, c_inode_no uint32, io_buf []uint8) string {
	parent_dir_inode := Inode_open(Cur_part, p_inode_no)
	var all_blocks [defs.MAXBLKS]uint32
	all_blocks_of(Cur_part, parent_dir_inode, &all_blocks)
	Inode_close(parent_dir_inode)

	per_sector := defs.SECTSZ / DIR_ENTRY_SZ
	for block_idx := 0; block_idx < defs.MAXBLKS; block_idx++ {
		if all_blocks[block_idx] == 0 {
			continue
		}
		ide.Ide_read(Cur_part.Which_disk, all_blocks[block_idx], io_buf, 1)
		for i := 0; i < per_sector; i++ {
			var de Dir_entry_t
			de.unmarshal(io_buf[i*DIR_ENTRY_SZ:])
			if de.F_type != defs.FT_UNKNOWN && de.I_no == c_inode_no {
				return de.Filename
			}
		}
	}
	return ""
}

// Sys_getcwd rebuilds the task's working directory by walking '..' up to
// the root and matching each child's inode number against the parent's
// entries.
func Sys_getcwd() string {
	cur := thread.Running_thread()
	child_inode_no := cur.Cwd_inode_nr
	if child_inode_no == 0 {
		return "/"
	}

	io_buf := make([]uint8, defs.SECTSZ)
	path := ""
	for child_inode_no != 0 {
		parent_inode_no := get_parent_dir_inode_nr(child_inode_no, io_buf)
		name := get_child_dir_name(parent_inode_no, child_inode_no, io_buf)
		if name == "" {
			return ""
		}
		path = "/" + name + path
		child_inode_no = parent_inode_no
	}
	return path
}

/// Sys_chdir changes the task's working directory to path, which must name
/// a directory.
func Sys_chdir(path string) int {
	var record Path_search_record_t
	inode_no := search_file(path, &record)
	ret := -1
	if inode_no != -1 {
		if record.File_type == defs.FT_DIRECTORY {
			thread.Running_thread().Cwd_inode_nr = uint32(inode_no)
			ret = 0
		} else {
			console.Printk("sys_chdir: %s is regular file or other!\n", path)
		}
	}
	Dir_close(record.Parent_dir)
	return ret
}

/// Sys_stat fills st for the file at path.
func Sys_stat(path string, st *Stat_t) int {
	if path == "/" || path == "/." || path == "/.." {
		st.St_filetype = defs.FT_DIRECTORY
		st.St_ino = 0
		st.St_size = Root_dir.inode.I_size
		return 0
	}

	var record Path_search_record_t
	inode_no := search_file(path, &record)
	ret := -1
	if inode_no != -1 {
		inode := Inode_open(Cur_part, uint32(inode_no))
		st.St_size = inode.I_size
		Inode_close(inode)
		st.St_filetype = record.File_type
		st.St_ino = uint32(inode_no)
		ret = 0
	} else {
		console.Printk("sys_stat: %s not found\n", path)
	}
	Dir_close(record.Parent_dir)
	return ret
}
