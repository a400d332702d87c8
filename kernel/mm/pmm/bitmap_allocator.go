package pmm

import (
	"virtos/kernel"
	"virtos/kernel/kfmt"
	"virtos/kernel/mm"
)

const (
	// maxManagedSize defines the compiled-in capacity of the allocator
	// bitmap: enough bits to track every 4 KiB frame in 128 MiB of RAM.
	maxManagedSize = 128 << 20

	maxFrames   = maxManagedSize >> mm.PageShift
	bitmapWords = maxFrames / 64
)

var (
	// FrameAllocator is a BitmapAllocator instance that serves as the
	// primary allocator for reserving pages.
	FrameAllocator BitmapAllocator

	// memsetFn is used by tests to override calls to kernel.Memset which
	// would otherwise write through raw frame addresses.
	memsetFn = kernel.Memset

	errInvalidRegion = &kernel.Error{Module: "pmm", Message: "managed region size must be a multiple of the page size"}
	errRegionTooBig  = &kernel.Error{Module: "pmm", Message: "managed region exceeds the compiled bitmap capacity"}
	errOutOfMemory   = &kernel.Error{Module: "pmm", Message: "out of memory"}
)

// BitmapAllocator tracks the reservation state of every physical frame in a
// single contiguous region of RAM using a bitmap. Bit i of the bitmap is set
// when the frame at base + i*PageSize is allocated.
//
// The allocator and the live page-table entries are the only legitimate
// references to managed frames; every frame handed out by AllocFrame is
// zero-filled before delivery so no data leaks across ownership changes.
type BitmapAllocator struct {
	// base is the physical address of the first managed frame.
	base uintptr

	// frameCount is the number of frames covered by the managed region.
	frameCount uint32

	// reservedCount tracks the number of currently allocated frames.
	reservedCount uint32

	bitmap [bitmapWords]uint64
}

// Init sets up the allocator to manage size bytes of physical memory
// starting at base. All frames start out free.
func (alloc *BitmapAllocator) Init(base, size uintptr) *kernel.Error {
	if size&(mm.PageSize-1) != 0 {
		return errInvalidRegion
	}

	if size>>mm.PageShift > maxFrames {
		return errRegionTooBig
	}

	alloc.base = base
	alloc.frameCount = uint32(size >> mm.PageShift)
	alloc.reservedCount = 0
	for i := range alloc.bitmap {
		alloc.bitmap[i] = 0
	}

	return nil
}

// AllocFrame reserves the first free frame in the managed region, zero-fills
// it and returns it. It returns an error if all frames are in use.
func (alloc *BitmapAllocator) AllocFrame() (mm.Frame, *kernel.Error) {
	wordCount := (alloc.frameCount + 63) >> 6
	for wordIndex := uint32(0); wordIndex < wordCount; wordIndex++ {
		// Skip fully allocated blocks of 64 frames without scanning
		// the individual bits.
		if alloc.bitmap[wordIndex] == ^uint64(0) {
			continue
		}

		for bitIndex := uint32(0); bitIndex < 64; bitIndex++ {
			frameIndex := wordIndex<<6 + bitIndex
			if frameIndex >= alloc.frameCount {
				break
			}

			mask := uint64(1 << (63 - bitIndex))
			if alloc.bitmap[wordIndex]&mask != 0 {
				continue
			}

			alloc.bitmap[wordIndex] |= mask
			alloc.reservedCount++

			frame := mm.FrameFromAddress(alloc.base + uintptr(frameIndex)<<mm.PageShift)
			memsetFn(frame.Address(), 0, mm.PageSize)
			return frame, nil
		}
	}

	kfmt.Printf("[pmm] out of memory\n")
	return mm.InvalidFrame, errOutOfMemory
}

// FreeFrame releases a frame previously obtained via AllocFrame. Frames
// outside the managed region are silently ignored which guards against
// spurious double or stray frees. Freed frames are not zeroed; the next
// allocation will take care of that.
func (alloc *BitmapAllocator) FreeFrame(frame mm.Frame) {
	if frame.Address() < alloc.base {
		return
	}

	frameIndex := uint32((frame.Address() - alloc.base) >> mm.PageShift)
	if frameIndex >= alloc.frameCount {
		return
	}

	mask := uint64(1 << (63 - (frameIndex & 63)))
	if alloc.bitmap[frameIndex>>6]&mask == 0 {
		return
	}

	alloc.bitmap[frameIndex>>6] &^= mask
	alloc.reservedCount--
}

// printStats outputs the allocator frame accounting to the console.
func (alloc *BitmapAllocator) printStats() {
	kfmt.Printf(
		"[pmm] page stats: free: %d/%d (%d reserved)\n",
		alloc.frameCount-alloc.reservedCount,
		alloc.frameCount,
		alloc.reservedCount,
	)
}

// allocFrame is a helper that delegates a frame allocation request to the
// FrameAllocator instance. It is registered with mm.SetFrameAllocator so
// that the vmm code can obtain frames for new page tables.
func allocFrame() (mm.Frame, *kernel.Error) {
	return FrameAllocator.AllocFrame()
}

// Init sets up the kernel physical memory allocation sub-system to manage
// size bytes starting at base.
func Init(base, size uintptr) *kernel.Error {
	if err := FrameAllocator.Init(base, size); err != nil {
		return err
	}

	FrameAllocator.printStats()
	mm.SetFrameAllocator(allocFrame)
	return nil
}
