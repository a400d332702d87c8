package vmm

import (
	"unsafe"

	"virtos/kernel/mm"
)

var (
	// ptePtrFn returns a pointer to the supplied entry address. It is
	// used by tests to override the generated page table entry pointers so
	// walk() can be properly tested. When compiling the kernel this function
	// will be automatically inlined.
	ptePtrFn = func(entryAddr uintptr) unsafe.Pointer {
		return unsafe.Pointer(entryAddr)
	}
)

// pageTableWalker is a function that can be passed to the walk method. The
// function receives the current page level and page table entry as its
// arguments. If the function returns false, then the page walk is aborted.
type pageTableWalker func(pteLevel uint8, pte *pageTableEntry) bool

// walk performs a page table walk rooted at the supplied table frame for the
// given virtual address. It calls the supplied walkFn with the page table
// entry that corresponds to each page table level. If walkFn returns false
// then the walk is aborted at that level.
//
// Tables are accessed through their physical addresses which works because
// the kernel identity-maps all managed RAM.
func walk(root mm.Frame, virtAddr uintptr, walkFn pageTableWalker) {
	var (
		level      uint8
		tableAddr  = root.Address()
		entryAddr  uintptr
		entryIndex uintptr
		pte        *pageTableEntry
	)

	for level = 0; level < pageLevels; level++ {
		// Extract the bits from the virtual address that correspond
		// to the index in this level's page table
		entryIndex = (virtAddr >> pageLevelShifts[level]) & ((1 << pageLevelBits[level]) - 1)
		entryAddr = tableAddr + (entryIndex << mm.PointerShift)

		pte = (*pageTableEntry)(ptePtrFn(entryAddr))
		if !walkFn(level, pte) {
			return
		}

		// The entry points to the physical address of the next level
		// table.
		tableAddr = pte.Frame().Address()
	}
}
