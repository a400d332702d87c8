package vmm

import "virtos/kernel/mm"

// The kernel uses the 4 KiB translation granule with a 39-bit virtual
// address space which yields a 3-level table walk. Each level is a 4 KiB
// table of 512 64-bit descriptors.
const (
	// pageLevels indicates the number of page-table levels used for the
	// 39-bit/4 KiB configuration.
	pageLevels = 3

	// tableEntryCount is the number of descriptors in each table.
	tableEntryCount = 512

	// ptePhysPageMask is a mask that allows us to extract the physical
	// address stored in a page table entry (bits 12-47).
	ptePhysPageMask = uintptr(0x0000fffffffff000)
)

var (
	// pageLevelBits defines the number of virtual address bits that
	// correspond to each page level. Each level resolves 9 bits which
	// amounts to 512 entries per table.
	pageLevelBits = [pageLevels]uint8{
		9,
		9,
		9,
	}

	// pageLevelShifts defines the shift required to extract each page
	// table index from a virtual address: L1 covers bits 38-30, L2 bits
	// 29-21 and L3 bits 20-12.
	pageLevelShifts = [pageLevels]uint8{
		30,
		21,
		12,
	}
)

// PageTableEntryFlag describes a flag that can be applied to a page table entry.
type PageTableEntryFlag uintptr

const (
	// FlagValid marks the entry as holding a live translation. An entry
	// with this flag clear is ignored by the MMU.
	FlagValid PageTableEntryFlag = 1 << 0

	// flagTypeBit distinguishes table descriptors from block descriptors
	// at L1/L2 and marks 4 KiB page descriptors at L3. Combined with
	// FlagValid it forms the 0b11 low-bit pattern of both descriptor
	// kinds used by this kernel.
	flagTypeBit PageTableEntryFlag = 1 << 1

	// FlagDeviceMemory selects the device (nGnRnE) attribute index from
	// the memory attribute indirection register.
	FlagDeviceMemory PageTableEntryFlag = attrDeviceIndex << 2

	// FlagNormalMemory selects the normal write-back cacheable attribute
	// index from the memory attribute indirection register.
	FlagNormalMemory PageTableEntryFlag = attrNormalIndex << 2

	// FlagUserAccessible is set if EL0 code can access this page. If not
	// set only kernel code can access the page.
	FlagUserAccessible PageTableEntryFlag = 1 << 6

	// FlagReadOnly write-protects the page. If not set the page is
	// writable at the privilege level selected by FlagUserAccessible.
	FlagReadOnly PageTableEntryFlag = 1 << 7

	// FlagInnerShareable marks the page as coherent across the inner
	// shareable domain.
	FlagInnerShareable PageTableEntryFlag = 3 << 8

	// FlagAccess is the access flag. Leaf descriptors must carry it; a
	// translation through an entry with the flag clear raises an access
	// fault instead of completing.
	FlagAccess PageTableEntryFlag = 1 << 10

	// FlagNoExecute prevents instruction fetches from the page at any
	// privilege level (PXN and UXN combined).
	FlagNoExecute PageTableEntryFlag = 1<<53 | 1<<54
)

// Attribute-indirection indices referenced by page descriptors. They must
// match the attribute bytes programmed into the indirection register below.
const (
	attrDeviceIndex = 0
	attrNormalIndex = 1
)

const (
	// mairValue programs attribute index 0 as device nGnRnE memory
	// (0x00) and index 1 as normal outer/inner write-back cacheable
	// memory (0xff).
	mairValue = uint64(0xff) << (8 * attrNormalIndex)

	// tcrValue configures both translation bases for 39-bit virtual
	// addresses (T0SZ/T1SZ = 25) with 4 KiB granules and inner-shareable
	// write-back walks.
	tcrValue = uint64(25) | // T0SZ
		uint64(1)<<8 | uint64(1)<<10 | // IRGN0/ORGN0 write-back
		uint64(3)<<12 | // SH0 inner shareable
		uint64(25)<<16 | // T1SZ
		uint64(1)<<24 | uint64(1)<<26 | // IRGN1/ORGN1 write-back
		uint64(3)<<28 | // SH1 inner shareable
		uint64(2)<<30 // TG1 4 KiB granule
)

// QEMU virt memory map constants used while setting up the kernel address
// space. RAM starts at 1 GiB; the interrupt controller and the UART live
// below it.
const (
	// RAMBase is the physical address of the first byte of RAM.
	RAMBase = uintptr(0x40000000)

	// RAMSize is the managed RAM range identity-mapped at boot.
	RAMSize = uintptr(128 << 20)

	gicMMIOBase = uintptr(0x08000000)
	gicMMIOSize = uintptr(0x20000)

	uartMMIOBase = uintptr(0x09000000)
	uartMMIOSize = uintptr(mm.PageSize)
)
