// Package mem manages physical and virtual memory: the kernel and user
// physical page pools, the kernel heap's virtual pool, two-level page tables
// stored in simulated RAM, and the arena allocator layered on the page
// allocator.
package mem

import "tinyos/bitmap"
import "tinyos/ksync"
import "tinyos/mach"
import "tinyos/util"

/// PGSHIFT is the base-2 exponent of the page size.
const PGSHIFT uint = 12

/// PGSIZE is the size of a single page in bytes.
const PGSIZE int = 1 << PGSHIFT

/// Pa_t is a physical address: an index into installed RAM.
type Pa_t uint32

/// Vaddr_t is a 32-bit virtual address.
type Vaddr_t uint32

// Page table entry bits.
const (
	PG_P  uint32 = 1 << 0 /// present
	PG_RW uint32 = 1 << 1 /// writable
	PG_US uint32 = 1 << 2 /// user accessible
)

/// KERNBASE is the bottom of the kernel's high half; the boot mapping puts
/// physical page 0 at this virtual address.
const KERNBASE Vaddr_t = 0xc0000000

/// K_HEAP_START is the first kernel heap virtual address, just above the
/// kernel's low megabyte.
const K_HEAP_START Vaddr_t = 0xc0100000

/// USER_VADDR_START is the lowest user virtual address (the classic ELF text
/// base).
const USER_VADDR_START Vaddr_t = 0x8048000

/// USER_STACK3_VADDR is the page backing the initial ring-3 stack, which
/// grows down from KERNBASE.
const USER_STACK3_VADDR Vaddr_t = 0xc0000000 - Vaddr_t(PGSIZE)

/// KERN_PGDIR is the fixed physical address of the kernel page directory; the
/// 255 reserved page tables follow it.
const KERN_PGDIR Pa_t = 0x100000

// One page directory plus 255 page tables are reserved above the kernel's low
// megabyte, so used_mem is 2 MiB before the pools begin.
const reserved_mem = 0x100000 + 256*0x1000

/// Poolflag_t selects the kernel or the user pool.
type Poolflag_t int

const (
	PF_KERNEL Poolflag_t = 1
	PF_USER   Poolflag_t = 2
)

/// Pool_t is a physical memory pool: an allocation bitmap, the physical start
/// address and the pool size. The lock serializes every allocation and free.
type Pool_t struct {
	Pool_bitmap    *bitmap.Bitmap_t
	Phy_addr_start Pa_t
	Pool_size      uint32
	Lock           ksync.Lock_t
}

/// Vaddrpool_t tracks a contiguous virtual region with one bit per page.
type Vaddrpool_t struct {
	Vaddr_start  Vaddr_t
	Vaddr_bitmap *bitmap.Bitmap_t
}

/// Kernel_pool and User_pool split the free physical memory evenly.
var Kernel_pool Pool_t
var User_pool Pool_t

/// Kernel_vaddr is the kernel heap's virtual pool.
var Kernel_vaddr Vaddrpool_t

// MB_DESC_CNT arena descriptors cover block sizes 16..1024.
const MB_DESC_CNT = 7

/// Blkdesc_t describes one arena size class. free_head chains free blocks
/// through a next pointer embedded in each free block's first four bytes;
/// zero terminates the chain.
type Blkdesc_t struct {
	Block_size       uint32
	Blocks_per_arena uint32
	free_head        Vaddr_t
}

// arena header layout, at the start of the arena's first page:
// u32 desc index (or ^0 when none), u32 cnt, u32 large flag.
const arena_hdr_sz = 12
const desc_none uint32 = ^uint32(0)

/// K_mb_descs are the kernel's arena descriptors. Each user process carries
/// its own copy so user blocks come from user memory.
var K_mb_descs [MB_DESC_CNT]Blkdesc_t

/// Memowner_i is the slice of the running task the memory manager needs: a
/// null page directory marks a kernel thread, user tasks bring their own
/// virtual pool and arena descriptors.
type Memowner_i interface {
	Pgdir() Pa_t
	Uvaddr() *Vaddrpool_t
	Ublkdescs() *[MB_DESC_CNT]Blkdesc_t
}

// Running is installed by the thread package; it returns nil during boot.
var Running = func() Memowner_i { return nil }

var cur_pgdir Pa_t = KERN_PGDIR

/// Set_cur_pgdir loads a page directory, the CR3 write of this machine.
func Set_cur_pgdir(pa Pa_t) {
	if pa == 0 {
		pa = KERN_PGDIR
	}
	cur_pgdir = pa
}

/// Cur_pgdir returns the loaded page directory.
func Cur_pgdir() Pa_t {
	return cur_pgdir
}

func ram() []uint8 {
	return mach.Mach.Ram
}

/// Pa_slice returns the RAM backing [pa, pa+n) — the direct map of this
/// machine. Any PDE or PTE is reachable through it without a temporary
/// mapping.
func Pa_slice(pa Pa_t, n int) []uint8 {
	r := ram()
	if int(pa)+n > len(r) {
		mach.Panic("phys address %#x+%d beyond installed RAM", pa, n)
	}
	return r[pa : int(pa)+n]
}

func pa_readw(pa Pa_t) uint32 {
	return uint32(util.Readn(ram(), 4, int(pa)))
}

func pa_writew(pa Pa_t, v uint32) {
	util.Writen(ram(), 4, int(pa), int(v))
}

func pa_memset(pa Pa_t, v uint8, n int) {
	s := Pa_slice(pa, n)
	for i := range s {
		s[i] = v
	}
}

func pde_index(vaddr Vaddr_t) uint32 {
	return uint32(vaddr) >> 22
}

func pte_index(vaddr Vaddr_t) uint32 {
	return (uint32(vaddr) >> 12) & 0x3ff
}

// pde_pa returns the physical address of the PDE for vaddr in pgdir.
func pde_pa(pgdir Pa_t, vaddr Vaddr_t) Pa_t {
	return pgdir + Pa_t(pde_index(vaddr)*4)
}

// pte_pa returns the physical address of the PTE for vaddr, or 0 when the
// page table is absent.
func pte_pa(pgdir Pa_t, vaddr Vaddr_t) Pa_t {
	pde := pa_readw(pde_pa(pgdir, vaddr))
	if pde&PG_P == 0 {
		return 0
	}
	pt := Pa_t(pde &^ 0xfff)
	return pt + Pa_t(pte_index(vaddr)*4)
}

/// Mem_init builds the kernel page directory and the reserved page tables,
/// boot-maps the low megabyte into the high half, splits the remaining RAM
/// into the two physical pools and prepares the kernel heap pool and arena
/// descriptors.
func Mem_init() {
	kprint("mem_init start\n")
	pgdir := KERN_PGDIR
	pa_memset(pgdir, 0, PGSIZE)

	// 255 fixed kernel page tables cover PDEs 768..1022; sharing them with
	// every process page directory makes all kernel mappings global. The last
	// slot points back at the directory itself.
	for i := 0; i < 255; i++ {
		pt := KERN_PGDIR + Pa_t((1+i)*PGSIZE)
		pa_memset(pt, 0, PGSIZE)
		pa_writew(pgdir+Pa_t((768+i)*4), uint32(pt)|PG_US|PG_RW|PG_P)
	}
	pa_writew(pgdir+Pa_t(1023*4), uint32(pgdir)|PG_US|PG_RW|PG_P)

	// boot mapping: the kernel's low megabyte at KERNBASE+p -> p
	for off := 0; off < 0x100000; off += PGSIZE {
		pte := pte_pa(pgdir, KERNBASE+Vaddr_t(off))
		pa_writew(pte, uint32(off)|PG_RW|PG_P)
	}

	mem_pool_init(mach.Mach.Memsz())
	Block_desc_init(&K_mb_descs)
	Set_cur_pgdir(KERN_PGDIR)
	kprint("mem_init done\n")
}

func mem_pool_init(all_mem int) {
	Kernel_pool.Lock.Lock_init()
	User_pool.Lock.Lock_init()

	used_mem := reserved_mem
	free_mem := all_mem - used_mem
	all_free_pages := free_mem / PGSIZE

	kernel_free_pages := all_free_pages / 2
	user_free_pages := all_free_pages - kernel_free_pages

	kernel_pool_start := Pa_t(used_mem)
	user_pool_start := kernel_pool_start + Pa_t(kernel_free_pages*PGSIZE)

	Kernel_pool.Phy_addr_start = kernel_pool_start
	Kernel_pool.Pool_size = uint32(kernel_free_pages * PGSIZE)
	Kernel_pool.Pool_bitmap = bitmap.MkBitmap(kernel_free_pages / 8)

	User_pool.Phy_addr_start = user_pool_start
	User_pool.Pool_size = uint32(user_free_pages * PGSIZE)
	User_pool.Pool_bitmap = bitmap.MkBitmap(user_free_pages / 8)

	Kernel_vaddr.Vaddr_start = K_HEAP_START
	Kernel_vaddr.Vaddr_bitmap = bitmap.MkBitmap(kernel_free_pages / 8)
}

/// Block_desc_init prepares an arena descriptor array: sizes 16, 32, ...,
/// 1024 with empty free lists.
func Block_desc_init(descs *[MB_DESC_CNT]Blkdesc_t) {
	block_size := uint32(16)
	for i := 0; i < MB_DESC_CNT; i++ {
		descs[i].Block_size = block_size
		descs[i].Blocks_per_arena = uint32((PGSIZE - arena_hdr_sz)) / block_size
		descs[i].free_head = 0
		block_size *= 2
	}
}

// vaddr_get claims cnt consecutive pages from the right virtual pool and
// returns the starting address, or 0 when the pool is exhausted.
func vaddr_get(pf Poolflag_t, cnt int) Vaddr_t {
	var vp *Vaddrpool_t
	if pf == PF_KERNEL {
		vp = &Kernel_vaddr
	} else {
		cur := Running()
		if cur == nil {
			mach.Panic("user vaddr alloc with no running task")
		}
		vp = cur.Uvaddr()
	}
	idx := vp.Vaddr_bitmap.Scan(cnt)
	if idx == -1 {
		return 0
	}
	for i := 0; i < cnt; i++ {
		vp.Vaddr_bitmap.Set(idx+i, 1)
	}
	vaddr := vp.Vaddr_start + Vaddr_t(idx*PGSIZE)
	if pf == PF_USER && uint32(vaddr) >= uint32(KERNBASE)-uint32(PGSIZE) {
		mach.Panic("user vaddr %#x above user space", vaddr)
	}
	return vaddr
}

func vaddr_remove(pf Poolflag_t, vaddr Vaddr_t, cnt int) {
	var vp *Vaddrpool_t
	if pf == PF_KERNEL {
		vp = &Kernel_vaddr
	} else {
		vp = Running().Uvaddr()
	}
	idx := int(vaddr-vp.Vaddr_start) / PGSIZE
	for i := 0; i < cnt; i++ {
		vp.Vaddr_bitmap.Set(idx+i, 0)
	}
}

// palloc grabs one physical page from the pool, or returns 0.
func palloc(pool *Pool_t) Pa_t {
	idx := pool.Pool_bitmap.Scan(1)
	if idx == -1 {
		return 0
	}
	pool.Pool_bitmap.Set(idx, 1)
	return pool.Phy_addr_start + Pa_t(idx*PGSIZE)
}

// Pfree returns a physical page to whichever pool owns it.
func Pfree(pa Pa_t) {
	pool := &Kernel_pool
	if pa >= User_pool.Phy_addr_start {
		pool = &User_pool
	}
	idx := int(pa-pool.Phy_addr_start) / PGSIZE
	pool.Pool_bitmap.Set(idx, 0)
}

// page_table_add maps vaddr -> pa in the current page directory. A missing
// page table is allocated from the kernel pool (page tables always live in
// kernel RAM) and zeroed.
func page_table_add(vaddr Vaddr_t, pa Pa_t) bool {
	pgdir := cur_pgdir
	pdepa := pde_pa(pgdir, vaddr)
	pde := pa_readw(pdepa)
	if pde&PG_P == 0 {
		pt := palloc(&Kernel_pool)
		if pt == 0 {
			return false
		}
		pa_memset(pt, 0, PGSIZE)
		pa_writew(pdepa, uint32(pt)|PG_US|PG_RW|PG_P)
	}
	ptepa := pte_pa(pgdir, vaddr)
	if pa_readw(ptepa)&PG_P != 0 {
		mach.Panic("pte for %#x already present", vaddr)
	}
	pa_writew(ptepa, uint32(pa)|PG_US|PG_RW|PG_P)
	return true
}

// page_table_pte_remove unmaps vaddr by zeroing its PTE. The simulated
// machine has no TLB, so there is no cached translation to invalidate.
func page_table_pte_remove(vaddr Vaddr_t) {
	ptepa := pte_pa(cur_pgdir, vaddr)
	if ptepa == 0 {
		mach.Panic("unmap of %#x with no page table", vaddr)
	}
	pa_writew(ptepa, 0)
}

// Malloc_page allocates cnt virtual pages from pool pf, backs each with a
// physical frame and installs the mappings. On a partial failure everything
// claimed so far — virtual bits, physical frames and mappings — is rolled
// back before returning 0.
func Malloc_page(pf Poolflag_t, cnt int) Vaddr_t {
	if cnt <= 0 || cnt >= 3840 {
		mach.Panic("malloc_page count %d", cnt)
	}
	vaddr_start := vaddr_get(pf, cnt)
	if vaddr_start == 0 {
		return 0
	}

	pool := &Kernel_pool
	if pf == PF_USER {
		pool = &User_pool
	}
	vaddr := vaddr_start
	for i := 0; i < cnt; i++ {
		pa := palloc(pool)
		if pa != 0 && !page_table_add(vaddr, pa) {
			Pfree(pa)
			pa = 0
		}
		if pa == 0 {
			// undo the pages installed so far and give back the vaddr run
			undo := vaddr_start
			for j := 0; j < i; j++ {
				Pfree(Addr_v2p(undo))
				page_table_pte_remove(undo)
				undo += Vaddr_t(PGSIZE)
			}
			vaddr_remove(pf, vaddr_start, cnt)
			return 0
		}
		vaddr += Vaddr_t(PGSIZE)
	}
	return vaddr_start
}

/// Get_kernel_pages allocates and zeroes cnt kernel pages.
func Get_kernel_pages(cnt int) Vaddr_t {
	Kernel_pool.Lock.Acquire()
	vaddr := Malloc_page(PF_KERNEL, cnt)
	if vaddr != 0 {
		Vmemset(vaddr, 0, cnt*PGSIZE)
	}
	Kernel_pool.Lock.Release()
	return vaddr
}

/// Get_user_pages allocates and zeroes cnt user pages for the running
/// process.
func Get_user_pages(cnt int) Vaddr_t {
	User_pool.Lock.Acquire()
	vaddr := Malloc_page(PF_USER, cnt)
	if vaddr != 0 {
		Vmemset(vaddr, 0, cnt*PGSIZE)
	}
	User_pool.Lock.Release()
	return vaddr
}

// Get_a_page maps the single page at vaddr from pool pf, claiming the
// matching bit in the owner's virtual bitmap. Used where the virtual address
// is dictated (user stack, ELF segments).
func Get_a_page(pf Poolflag_t, vaddr Vaddr_t) Vaddr_t {
	pool := &Kernel_pool
	if pf == PF_USER {
		pool = &User_pool
	}
	pool.Lock.Acquire()
	defer pool.Lock.Release()

	cur := Running()
	if pf == PF_USER && cur != nil && cur.Pgdir() != 0 {
		idx := int(vaddr-cur.Uvaddr().Vaddr_start) / PGSIZE
		if idx < 0 {
			mach.Panic("user vaddr %#x below pool", vaddr)
		}
		cur.Uvaddr().Vaddr_bitmap.Set(idx, 1)
	} else if pf == PF_KERNEL && (cur == nil || cur.Pgdir() == 0) {
		idx := int(vaddr-Kernel_vaddr.Vaddr_start) / PGSIZE
		if idx < 0 {
			mach.Panic("kernel vaddr %#x below pool", vaddr)
		}
		Kernel_vaddr.Vaddr_bitmap.Set(idx, 1)
	} else {
		mach.Panic("pool flag does not match task for %#x", vaddr)
	}

	pa := palloc(pool)
	if pa == 0 {
		return 0
	}
	if !page_table_add(vaddr, pa) {
		Pfree(pa)
		return 0
	}
	return vaddr
}

// Get_a_page_without_bitmap installs a fresh frame at vaddr without touching
// any virtual bitmap; fork uses it while cloning a parent's address space
// whose bitmap was already copied wholesale.
func Get_a_page_without_bitmap(pf Poolflag_t, vaddr Vaddr_t) Vaddr_t {
	pool := &Kernel_pool
	if pf == PF_USER {
		pool = &User_pool
	}
	pool.Lock.Acquire()
	defer pool.Lock.Release()
	pa := palloc(pool)
	if pa == 0 {
		return 0
	}
	if !page_table_add(vaddr, pa) {
		Pfree(pa)
		return 0
	}
	return vaddr
}

/// Addr_v2p translates a mapped virtual address through the current page
/// directory.
func Addr_v2p(vaddr Vaddr_t) Pa_t {
	ptepa := pte_pa(cur_pgdir, vaddr)
	if ptepa == 0 {
		mach.Panic("v2p: no page table for %#x", vaddr)
	}
	pte := pa_readw(ptepa)
	if pte&PG_P == 0 {
		mach.Panic("v2p: %#x not mapped", vaddr)
	}
	return Pa_t(pte&^0xfff) + Pa_t(uint32(vaddr)&0xfff)
}

/// Mapped reports whether vaddr has a present mapping in the current page
/// directory.
func Mapped(vaddr Vaddr_t) bool {
	ptepa := pte_pa(cur_pgdir, vaddr)
	return ptepa != 0 && pa_readw(ptepa)&PG_P != 0
}

// Mfree_page unmaps and frees cnt pages starting at vaddr: clear the physical
// bits, drop the PTEs, then give back the virtual run.
func Mfree_page(pf Poolflag_t, vaddr Vaddr_t, cnt int) {
	if cnt < 1 || uint32(vaddr)%uint32(PGSIZE) != 0 {
		mach.Panic("mfree_page vaddr %#x cnt %d", vaddr, cnt)
	}
	v := vaddr
	for i := 0; i < cnt; i++ {
		pa := Addr_v2p(v)
		if uint32(pa)%uint32(PGSIZE) != 0 || pa < Kernel_pool.Phy_addr_start {
			mach.Panic("mfree_page of frame %#x", pa)
		}
		Pfree(pa)
		page_table_pte_remove(v)
		v += Vaddr_t(PGSIZE)
	}
	vaddr_remove(pf, vaddr, cnt)
}

// running task's pool selection for the arena allocator
func malloc_context() (Poolflag_t, *Pool_t, *[MB_DESC_CNT]Blkdesc_t) {
	cur := Running()
	if cur == nil || cur.Pgdir() == 0 {
		return PF_KERNEL, &Kernel_pool, &K_mb_descs
	}
	return PF_USER, &User_pool, cur.Ublkdescs()
}

func arena_desc(pa Pa_t) uint32 { return pa_readw(pa) }
func arena_cnt(pa Pa_t) uint32  { return pa_readw(pa + 4) }
func arena_large(pa Pa_t) bool  { return pa_readw(pa+8) != 0 }

func arena_set(pa Pa_t, desc, cnt uint32, large bool) {
	pa_writew(pa, desc)
	pa_writew(pa+4, cnt)
	l := uint32(0)
	if large {
		l = 1
	}
	pa_writew(pa+8, l)
}

func arena_block(a Vaddr_t, desc *Blkdesc_t, idx uint32) Vaddr_t {
	return a + arena_hdr_sz + Vaddr_t(idx*desc.Block_size)
}

func block_arena(b Vaddr_t) Vaddr_t {
	return b &^ Vaddr_t(PGSIZE-1)
}

// free-list helpers; the next pointer lives in the block itself.
func freelist_push(desc *Blkdesc_t, b Vaddr_t) {
	pa_writew(Addr_v2p(b), uint32(desc.free_head))
	desc.free_head = b
}

func freelist_pop(desc *Blkdesc_t) Vaddr_t {
	b := desc.free_head
	if b == 0 {
		mach.Panic("pop of empty block free list")
	}
	desc.free_head = Vaddr_t(pa_readw(Addr_v2p(b)))
	return b
}

func freelist_unlink_arena(desc *Blkdesc_t, a Vaddr_t) {
	for desc.free_head != 0 && block_arena(desc.free_head) == a {
		desc.free_head = Vaddr_t(pa_readw(Addr_v2p(desc.free_head)))
	}
	b := desc.free_head
	for b != 0 {
		next := Vaddr_t(pa_readw(Addr_v2p(b)))
		if next != 0 && block_arena(next) == a {
			next = Vaddr_t(pa_readw(Addr_v2p(next)))
			pa_writew(Addr_v2p(b), uint32(next))
			continue
		}
		b = next
	}
}

// Sys_malloc allocates size bytes from the running task's pool. Requests
// above 1024 bytes become whole pages with a large-arena header; smaller ones
// come from the matching size class, formatting a fresh arena when the free
// list is dry. Returns 0 when memory is exhausted.
func Sys_malloc(size int) Vaddr_t {
	pf, pool, descs := malloc_context()
	if size <= 0 || uint32(size) >= pool.Pool_size {
		return 0
	}

	pool.Lock.Acquire()
	defer pool.Lock.Release()

	if size > 1024 {
		pg_cnt := util.Divroundup(size+arena_hdr_sz, PGSIZE)
		a := Malloc_page(pf, pg_cnt)
		if a == 0 {
			return 0
		}
		Vmemset(a, 0, pg_cnt*PGSIZE)
		arena_set(Addr_v2p(a), desc_none, uint32(pg_cnt), true)
		return a + arena_hdr_sz
	}

	var didx int
	for didx = 0; didx < MB_DESC_CNT; didx++ {
		if uint32(size) <= descs[didx].Block_size {
			break
		}
	}
	desc := &descs[didx]

	if desc.free_head == 0 {
		a := Malloc_page(pf, 1)
		if a == 0 {
			return 0
		}
		Vmemset(a, 0, PGSIZE)
		arena_set(Addr_v2p(a), uint32(didx), desc.Blocks_per_arena, false)
		old := mach.Intr_disable()
		for i := uint32(0); i < desc.Blocks_per_arena; i++ {
			freelist_push(desc, arena_block(a, desc, i))
		}
		mach.Intr_set_status(old)
	}

	b := freelist_pop(desc)
	Vmemset(b, 0, int(desc.Block_size))
	apa := Addr_v2p(block_arena(b))
	arena_set(apa, arena_desc(apa), arena_cnt(apa)-1, false)
	return b
}

// Sys_free returns a sys_malloc'd block. Releasing the last block of a small
// arena unlinks the arena's blocks from the free list and frees the page.
func Sys_free(vaddr Vaddr_t) {
	if vaddr == 0 {
		mach.Panic("free of null")
	}
	pf, pool, descs := malloc_context()

	pool.Lock.Acquire()
	defer pool.Lock.Release()

	a := block_arena(vaddr)
	apa := Addr_v2p(a)
	if arena_desc(apa) == desc_none && arena_large(apa) {
		Mfree_page(pf, a, int(arena_cnt(apa)))
		return
	}
	desc := &descs[arena_desc(apa)]
	freelist_push(desc, vaddr)
	newcnt := arena_cnt(apa) + 1
	arena_set(apa, arena_desc(apa), newcnt, false)
	if newcnt == desc.Blocks_per_arena {
		freelist_unlink_arena(desc, a)
		Mfree_page(pf, a, 1)
	}
}

// Vmemset fills [vaddr, vaddr+n) through the current page tables.
func Vmemset(vaddr Vaddr_t, c uint8, n int) {
	for n > 0 {
		pa := Addr_v2p(vaddr)
		chunk := util.Min(n, PGSIZE-int(uint32(vaddr)&0xfff))
		s := Pa_slice(pa, chunk)
		for i := range s {
			s[i] = c
		}
		vaddr += Vaddr_t(chunk)
		n -= chunk
	}
}

// Vmemcpy_to copies src into the current address space at vaddr.
func Vmemcpy_to(vaddr Vaddr_t, src []uint8) {
	for len(src) > 0 {
		pa := Addr_v2p(vaddr)
		chunk := util.Min(len(src), PGSIZE-int(uint32(vaddr)&0xfff))
		copy(Pa_slice(pa, chunk), src[:chunk])
		vaddr += Vaddr_t(chunk)
		src = src[chunk:]
	}
}

// Vmemcpy_from copies len(dst) bytes out of the current address space.
func Vmemcpy_from(dst []uint8, vaddr Vaddr_t) {
	for len(dst) > 0 {
		pa := Addr_v2p(vaddr)
		chunk := util.Min(len(dst), PGSIZE-int(uint32(vaddr)&0xfff))
		copy(dst[:chunk], Pa_slice(pa, chunk))
		vaddr += Vaddr_t(chunk)
		dst = dst[chunk:]
	}
}

/// Free_page_count returns the free page counts of the kernel and user pools.
func Free_page_count() (int, int) {
	count := func(p *Pool_t) int {
		n := 0
		total := p.Pool_bitmap.Btmp_bytes_len * 8
		for i := 0; i < total; i++ {
			if !p.Pool_bitmap.Test(i) {
				n++
			}
		}
		return n
	}
	return count(&Kernel_pool), count(&User_pool)
}

var kprint = func(s string) {}

/// Set_printer hooks boot progress output to the console once it exists.
func Set_printer(f func(string)) {
	kprint = f
}
