package heap

import (
	"testing"
	"unsafe"
)

// newTestHeap lays an allocator over a host buffer of the requested size and
// returns it together with its initial free payload size.
func newTestHeap(t *testing.T, size uintptr) (*Allocator, uintptr) {
	t.Helper()

	buf := make([]byte, size+blockAlign)
	start := uintptr(unsafe.Pointer(&buf[0]))

	// Pin the backing buffer for the duration of the test; the allocator
	// only holds raw addresses into it.
	t.Cleanup(func() { _ = buf })

	var h Allocator
	if err := h.Init(start, start+size); err != nil {
		t.Fatal(err)
	}

	return &h, h.FreeBytes()
}

func TestHeapInit(t *testing.T) {
	t.Run("region too small", func(t *testing.T) {
		var h Allocator
		if err := h.Init(0x1000, 0x1010); err != errRegionTooSmall {
			t.Fatalf("expected to get errRegionTooSmall; got %v", err)
		}
	})

	t.Run("success", func(t *testing.T) {
		h, freeBytes := newTestHeap(t, 64<<10)

		if h.head == nil || !h.head.free {
			t.Fatal("expected Init to install a single free block")
		}

		if h.head.next != nil {
			t.Fatal("expected the initial block to be the only block")
		}

		if freeBytes%blockAlign != 0 {
			t.Fatalf("expected initial free size to be a multiple of %d; got %d", blockAlign, freeBytes)
		}
	})
}

func TestHeapAlloc(t *testing.T) {
	h, initialFree := newTestHeap(t, 64<<10)

	addr, err := h.Alloc(100)
	if err != nil {
		t.Fatal(err)
	}

	if addr%blockAlign != 0 {
		t.Fatalf("expected payload address to be %d-byte aligned; got %x", blockAlign, addr)
	}

	// The requested 100 bytes must be rounded up to a full allocation unit.
	block := (*blockHeader)(unsafe.Pointer(addr - headerSize))
	if exp, got := uintptr(112), block.size; got != exp {
		t.Fatalf("expected block payload size to be %d; got %d", exp, got)
	}

	// The payload must come back zeroed.
	payload := unsafe.Slice((*byte)(unsafe.Pointer(addr)), block.size)
	for i, b := range payload {
		if b != 0 {
			t.Fatalf("expected payload byte %d to be zero; got %d", i, b)
		}
	}

	// The remainder of the initial block must have been split off as a
	// free tail.
	if block.next == nil || !block.next.free {
		t.Fatal("expected allocation to split off a free tail block")
	}

	if exp, got := initialFree-112-headerSize, h.FreeBytes(); got != exp {
		t.Fatalf("expected %d free bytes after allocation; got %d", exp, got)
	}
}

func TestHeapAllocNoSplitForSmallResidue(t *testing.T) {
	h, initialFree := newTestHeap(t, 4<<10)

	// Allocate everything but a residue smaller than a header plus one
	// allocation unit: the block must be handed out whole.
	addr, err := h.Alloc(initialFree - headerSize)
	if err != nil {
		t.Fatal(err)
	}

	block := (*blockHeader)(unsafe.Pointer(addr - headerSize))
	if exp, got := initialFree, block.size; got != exp {
		t.Fatalf("expected unsplit block of %d payload bytes; got %d", exp, got)
	}

	if block.next != nil {
		t.Fatal("expected no split block to be created")
	}
}

func TestHeapExhaustion(t *testing.T) {
	h, initialFree := newTestHeap(t, 4<<10)

	if _, err := h.Alloc(initialFree + blockAlign); err != errOutOfMemory {
		t.Fatalf("expected to get errOutOfMemory; got %v", err)
	}

	// A failed allocation must leave the heap untouched.
	if got := h.FreeBytes(); got != initialFree {
		t.Fatalf("expected free bytes to remain %d; got %d", initialFree, got)
	}
}

func TestHeapFreeNil(t *testing.T) {
	h, initialFree := newTestHeap(t, 4<<10)

	// Freeing address 0 is a no-op.
	h.Free(0)

	if got := h.FreeBytes(); got != initialFree {
		t.Fatalf("expected free bytes to remain %d; got %d", initialFree, got)
	}
}

func TestHeapSplitAndCoalesce(t *testing.T) {
	h, initialFree := newTestHeap(t, 64<<10)

	a, err := h.Alloc(100)
	if err != nil {
		t.Fatal(err)
	}
	b, err := h.Alloc(200)
	if err != nil {
		t.Fatal(err)
	}
	c, err := h.Alloc(100)
	if err != nil {
		t.Fatal(err)
	}

	h.Free(b)
	h.Free(a)
	h.Free(c)

	// All blocks must have coalesced back into a single free block whose
	// payload matches the initial free payload.
	if h.head.next != nil {
		t.Fatal("expected heap to coalesce back into a single block")
	}

	if !h.head.free {
		t.Fatal("expected the remaining block to be free")
	}

	if exp, got := initialFree, h.head.size; got != exp {
		t.Fatalf("expected coalesced payload size %d; got %d", exp, got)
	}
}

func TestHeapAccountingConserved(t *testing.T) {
	h, initialFree := newTestHeap(t, 16<<10)

	addrs := make([]uintptr, 0, 8)
	for _, size := range []uintptr{16, 48, 400, 32, 1024} {
		addr, err := h.Alloc(size)
		if err != nil {
			t.Fatal(err)
		}
		addrs = append(addrs, addr)
	}

	// Sum of free payloads plus used payloads plus headers must cover the
	// whole initial block at every point in time.
	var used uintptr
	blockCount := 0
	for block := h.head; block != nil; block = block.next {
		blockCount++
		if !block.free {
			used += block.size
		}
	}

	if exp, got := initialFree, h.FreeBytes()+used+uintptr(blockCount-1)*headerSize; got != exp {
		t.Fatalf("expected heap accounting to conserve %d bytes; got %d", exp, got)
	}

	for _, addr := range addrs {
		h.Free(addr)
	}

	if got := h.FreeBytes(); got != initialFree {
		t.Fatalf("expected all %d bytes to return to the free pool; got %d", initialFree, got)
	}
}
