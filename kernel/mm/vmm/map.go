package vmm

import (
	"virtos/kernel"
	"virtos/kernel/kfmt"
	"virtos/kernel/mm"
)

var (
	// mapFn is used by tests and is automatically inlined by the compiler.
	mapFn = Map

	errMissingMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}
)

// Map establishes a mapping between a virtual page and a physical memory
// frame in the page table hierarchy rooted at root. Calls to Map allocate
// missing intermediate tables from the physical frame allocator; the
// allocator hands out zeroed frames so fresh tables start with every entry
// invalid.
//
// The supplied flags are merged into the leaf descriptor together with the
// page-descriptor marker and the access flag. Mapping a page that is already
// mapped replaces the previous mapping. Map does not touch the TLB;
// invalidating stale translations is the caller's responsibility.
func Map(root mm.Frame, page mm.Page, frame mm.Frame, flags PageTableEntryFlag) *kernel.Error {
	var err *kernel.Error

	walk(root, page.Address(), func(pteLevel uint8, pte *pageTableEntry) bool {
		// If we reached the last level all we need to do is to compose
		// the page descriptor in place.
		if pteLevel == pageLevels-1 {
			*pte = 0
			pte.SetFrame(frame)
			pte.SetFlags(FlagValid | flagTypeBit | FlagAccess | flags)
			return true
		}

		// Next table does not yet exist; we need to allocate a
		// physical frame for it and install a table descriptor.
		if !pte.HasFlags(FlagValid) {
			var newTableFrame mm.Frame
			newTableFrame, err = mm.AllocFrame()
			if err != nil {
				kfmt.Printf("[vmm] unable to allocate level-%d table: %s\n", pteLevel+2, err.Message)
				return false
			}

			*pte = 0
			pte.SetFrame(newTableFrame)
			pte.SetFlags(FlagValid | flagTypeBit)
		}

		return true
	})

	return err
}

// IdentityMapRegion establishes an identity mapping for the physical memory
// region which starts at the given frame and ends at frame + pages(size).
// The size argument is always rounded up to the nearest page boundary.
func IdentityMapRegion(root mm.Frame, startFrame mm.Frame, size uintptr, flags PageTableEntryFlag) *kernel.Error {
	pageCount := mm.Page((size + (mm.PageSize - 1)) &^ uintptr(mm.PageSize-1)) >> mm.PageShift

	startPage := mm.Page(startFrame)
	for curPage := startPage; curPage < startPage+pageCount; curPage++ {
		if err := mapFn(root, curPage, mm.Frame(curPage), flags); err != nil {
			return err
		}
	}

	return nil
}

// Translate returns the physical address that corresponds to the supplied
// virtual address in the table hierarchy rooted at root or an error if the
// virtual address does not correspond to a mapped physical address.
func Translate(root mm.Frame, virtAddr uintptr) (uintptr, *kernel.Error) {
	var (
		err   = errMissingMapping
		entry pageTableEntry
	)

	walk(root, virtAddr, func(pteLevel uint8, pte *pageTableEntry) bool {
		if !pte.HasFlags(FlagValid) {
			return false
		}

		if pteLevel == pageLevels-1 {
			entry = *pte
			err = nil
		}
		return true
	})

	if err != nil {
		return 0, err
	}

	// The physical address is the frame address plus the offset within
	// the page.
	return entry.Frame().Address() + PageOffset(virtAddr), nil
}

// PageOffset returns the offset within the page specified by a virtual
// address.
func PageOffset(virtAddr uintptr) uintptr {
	return virtAddr & (mm.PageSize - 1)
}
