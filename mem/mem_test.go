package mem

import "testing"

import "tinyos/mach"

func boot(t *testing.T) {
	t.Helper()
	mach.Bootmem(32 << 20)
	Mem_init()
}

func TestKernelPageMapping(t *testing.T) {
	boot(t)
	vaddr := Get_kernel_pages(2)
	if vaddr == 0 {
		t.Fatalf("get_kernel_pages failed")
	}
	if vaddr != K_HEAP_START {
		t.Fatalf("first heap pages at %#x, want %#x", vaddr, K_HEAP_START)
	}
	for i := 0; i < 2; i++ {
		v := vaddr + Vaddr_t(i*PGSIZE)
		if !Mapped(v) {
			t.Fatalf("page %#x not mapped", v)
		}
		pa := Addr_v2p(v)
		if pa < Kernel_pool.Phy_addr_start || pa >= User_pool.Phy_addr_start {
			t.Fatalf("kernel page frame %#x outside kernel pool", pa)
		}
		idx := int(pa-Kernel_pool.Phy_addr_start) / PGSIZE
		if !Kernel_pool.Pool_bitmap.Test(idx) {
			t.Fatalf("frame %#x not marked in pool bitmap", pa)
		}
	}
}

func TestMemcpyRoundtrip(t *testing.T) {
	boot(t)
	vaddr := Get_kernel_pages(2)
	src := make([]uint8, PGSIZE+123)
	for i := range src {
		src[i] = uint8(i * 7)
	}
	Vmemcpy_to(vaddr+1, src)
	dst := make([]uint8, len(src))
	Vmemcpy_from(dst, vaddr+1)
	for i := range src {
		if dst[i] != src[i] {
			t.Fatalf("byte %d = %d, want %d", i, dst[i], src[i])
		}
	}
}

func TestFreeThenReuse(t *testing.T) {
	boot(t)
	kfree0, _ := Free_page_count()
	vaddr := Get_kernel_pages(3)
	kfree1, _ := Free_page_count()
	// 3 heap pages plus possibly a fresh page table
	if kfree0-kfree1 < 3 {
		t.Fatalf("free pages went %d -> %d after 3-page alloc", kfree0, kfree1)
	}
	Mfree_page(PF_KERNEL, vaddr, 3)
	kfree2, _ := Free_page_count()
	if kfree2 != kfree1+3 {
		t.Fatalf("free pages went %d -> %d after free", kfree1, kfree2)
	}
	if Mapped(vaddr) {
		t.Fatalf("page still mapped after free")
	}
	again := Get_kernel_pages(3)
	if again != vaddr {
		t.Fatalf("freed run reallocated at %#x, want %#x", again, vaddr)
	}
}

func TestPoolExhaustion(t *testing.T) {
	boot(t)
	kfree, _ := Free_page_count()
	var allocs []Vaddr_t
	for {
		v := Get_kernel_pages(64)
		if v == 0 {
			break
		}
		allocs = append(allocs, v)
	}
	if len(allocs) == 0 {
		t.Fatalf("no allocations succeeded")
	}
	// under 64 pages may remain, but a subsequent free must make room again
	Mfree_page(PF_KERNEL, allocs[len(allocs)-1], 64)
	v := Get_kernel_pages(64)
	if v == 0 {
		t.Fatalf("allocation after free failed")
	}
	Mfree_page(PF_KERNEL, v, 64)
	for _, a := range allocs[:len(allocs)-1] {
		Mfree_page(PF_KERNEL, a, 64)
	}
	kfree2, _ := Free_page_count()
	if kfree2 != kfree {
		t.Fatalf("pool leaked: %d free before, %d after", kfree, kfree2)
	}
}

func TestSysMallocSmall(t *testing.T) {
	boot(t)
	kfree0, _ := Free_page_count()

	a := Sys_malloc(33)
	b := Sys_malloc(33)
	if a == 0 || b == 0 {
		t.Fatalf("sys_malloc failed")
	}
	// both come from the same 64-byte arena page
	if a&^Vaddr_t(PGSIZE-1) != b&^Vaddr_t(PGSIZE-1) {
		t.Fatalf("blocks %#x and %#x not in one arena", a, b)
	}
	if b-a != 64 && a-b != 64 {
		t.Fatalf("64-byte blocks %#x and %#x", a, b)
	}
	Sys_free(a)
	Sys_free(b)

	kfree1, _ := Free_page_count()
	if kfree1 != kfree0 {
		t.Fatalf("empty arena not reclaimed: %d -> %d", kfree0, kfree1)
	}
}

func TestSysMallocLarge(t *testing.T) {
	boot(t)
	kfree0, _ := Free_page_count()
	v := Sys_malloc(3 * PGSIZE)
	if v == 0 {
		t.Fatalf("large sys_malloc failed")
	}
	// usable immediately
	Vmemset(v, 0xaa, 3*PGSIZE)
	Sys_free(v)
	kfree1, _ := Free_page_count()
	if kfree1 != kfree0 {
		t.Fatalf("large arena leaked: %d -> %d", kfree0, kfree1)
	}
}

func TestSysMallocSizeClasses(t *testing.T) {
	boot(t)
	sizes := []int{1, 16, 17, 128, 1000, 1024}
	var blocks []Vaddr_t
	for _, sz := range sizes {
		v := Sys_malloc(sz)
		if v == 0 {
			t.Fatalf("sys_malloc(%d) failed", sz)
		}
		Vmemset(v, 0x5a, sz)
		blocks = append(blocks, v)
	}
	for _, v := range blocks {
		Sys_free(v)
	}
}
