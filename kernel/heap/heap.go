// Package heap implements the kernel's dynamic memory allocator: a single
// intrusive free list of variable-size blocks carved out of a contiguous
// region of kernel RAM. Allocation is first-fit with splitting; freeing
// coalesces forward so adjacent free blocks never persist.
package heap

import (
	"unsafe"

	"virtos/kernel"
	"virtos/kernel/kfmt"
)

// blockAlign is the allocation granularity. Block payloads and sizes are
// always multiples of this value and the header is padded to it, so every
// payload the allocator hands out is 16-byte aligned.
const blockAlign = 16

// blockHeader prefixes every block in the heap. Blocks are laid out
// contiguously in address order; next links them in that same order.
type blockHeader struct {
	// size is the payload size in bytes, excluding the header.
	size uintptr

	// next points to the header of the block that immediately follows
	// this block's payload, or nil for the last block.
	next *blockHeader

	// free flags the block as available.
	free bool

	_ [15]byte // pad the header to a blockAlign boundary
}

const headerSize = unsafe.Sizeof(blockHeader{})

var (
	// kernelHeap is the allocator instance serving all kernel
	// allocations.
	kernelHeap Allocator

	// memsetFn is used by tests to override payload zeroing.
	memsetFn = kernel.Memset

	errOutOfMemory    = &kernel.Error{Module: "heap", Message: "out of memory"}
	errRegionTooSmall = &kernel.Error{Module: "heap", Message: "heap region cannot hold a single block"}
)

// Allocator manages one contiguous heap region.
type Allocator struct {
	head       *blockHeader
	start, end uintptr
}

// Init installs a single free block spanning the supplied region. The start
// address is aligned up to the allocation granularity first.
func (h *Allocator) Init(start, end uintptr) *kernel.Error {
	start = (start + blockAlign - 1) &^ uintptr(blockAlign-1)
	if start+headerSize+blockAlign > end {
		return errRegionTooSmall
	}

	h.start = start
	h.end = end
	h.head = (*blockHeader)(unsafe.Pointer(start))
	h.head.size = (end - start - headerSize) &^ uintptr(blockAlign-1)
	h.head.next = nil
	h.head.free = true

	return nil
}

// Alloc reserves size bytes from the heap and returns the address of the
// zero-filled payload. The requested size is rounded up to the allocation
// granularity. Alloc returns an error when no free block is large enough.
func (h *Allocator) Alloc(size uintptr) (uintptr, *kernel.Error) {
	if size == 0 {
		size = blockAlign
	}
	size = (size + blockAlign - 1) &^ uintptr(blockAlign-1)

	for block := h.head; block != nil; block = block.next {
		if !block.free || block.size < size {
			continue
		}

		// Split off the tail of the block when the remainder can hold
		// a header plus at least one allocation unit of payload.
		if block.size-size >= headerSize+blockAlign {
			tail := (*blockHeader)(unsafe.Pointer(uintptr(unsafe.Pointer(block)) + headerSize + size))
			tail.size = block.size - size - headerSize
			tail.next = block.next
			tail.free = true

			block.next = tail
			block.size = size
		}

		block.free = false

		payload := uintptr(unsafe.Pointer(block)) + headerSize
		memsetFn(payload, 0, block.size)
		return payload, nil
	}

	kfmt.Printf("[heap] out of memory\n")
	return 0, errOutOfMemory
}

// Free releases a payload previously returned by Alloc. Freeing address 0 is
// a no-op. After the block is marked free, a forward sweep over the block
// list absorbs every run of adjacent free blocks so that no two free blocks
// remain neighbours.
func (h *Allocator) Free(addr uintptr) {
	if addr == 0 {
		return
	}

	block := (*blockHeader)(unsafe.Pointer(addr - headerSize))
	block.free = true

	for cur := h.head; cur != nil; cur = cur.next {
		for cur.free && cur.next != nil && cur.next.free {
			cur.size += headerSize + cur.next.size
			cur.next = cur.next.next
		}
	}
}

// FreeBytes returns the total payload bytes currently available for
// allocation.
func (h *Allocator) FreeBytes() uintptr {
	var total uintptr
	for block := h.head; block != nil; block = block.next {
		if block.free {
			total += block.size
		}
	}
	return total
}

// Init installs the kernel heap over the supplied region.
func Init(start, end uintptr) *kernel.Error {
	return kernelHeap.Init(start, end)
}

// Alloc reserves size bytes from the kernel heap.
func Alloc(size uintptr) (uintptr, *kernel.Error) {
	return kernelHeap.Alloc(size)
}

// Free releases a payload previously returned by Alloc.
func Free(addr uintptr) {
	kernelHeap.Free(addr)
}
