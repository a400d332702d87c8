package vmm

import (
	"testing"

	"virtos/kernel/cpu"
	"virtos/kernel/irq"
	"virtos/kernel/mm"
)

func TestVmmInit(t *testing.T) {
	defer func() {
		loadTranslationBaseFn = cpu.LoadTranslationBase
		setMemoryAttributesFn = cpu.SetMemoryAttributes
		setTranslationControlFn = cpu.SetTranslationControl
		enableMMUAndCachesFn = cpu.EnableMMUAndCaches
		flushTLBFn = cpu.FlushTLB
		handleExceptionFn = irq.HandleException
		kernelRoot = mm.InvalidFrame
	}()

	// Building the full kernel address space takes one root, one L2 shared
	// by both device regions plus one L3 for each of them, and the tables
	// covering 128 MiB of RAM (one L2 and 64 L3 tables): 69 frames.
	newFrameSource(t, 80)

	var (
		loadedRoot        uintptr
		mairSet, tcrSet   bool
		mmuEnabled        bool
		tlbFlushed        bool
		registeredClasses []irq.ExceptionClass
	)

	loadTranslationBaseFn = func(addr uintptr) { loadedRoot = addr }
	setMemoryAttributesFn = func(_ uint64) { mairSet = true }
	setTranslationControlFn = func(_ uint64) { tcrSet = true }
	enableMMUAndCachesFn = func() { mmuEnabled = true }
	flushTLBFn = func() { tlbFlushed = true }
	handleExceptionFn = func(class irq.ExceptionClass, _ irq.ExceptionHandler) {
		registeredClasses = append(registeredClasses, class)
	}

	if err := Init(); err != nil {
		t.Fatal(err)
	}

	root := KernelRoot()
	if !root.Valid() {
		t.Fatal("expected a valid kernel root table")
	}
	if loadedRoot != root.Address() {
		t.Fatalf("expected the root table at %x to be loaded; got %x", root.Address(), loadedRoot)
	}
	if !mairSet || !tcrSet || !mmuEnabled || !tlbFlushed {
		t.Fatal("expected memory attributes, translation control, TLB flush and MMU enable to all happen")
	}

	// Spot-check the identity mappings: UART, interrupt controller and
	// two RAM addresses must translate to themselves.
	for _, virtAddr := range []uintptr{
		uartMMIOBase + 0x18,
		gicMMIOBase,
		RAMBase + 0x1234,
		RAMBase + RAMSize - mm.PageSize,
	} {
		phys, err := Translate(root, virtAddr)
		if err != nil {
			t.Fatalf("expected %x to be mapped: %v", virtAddr, err)
		}
		if phys != virtAddr {
			t.Fatalf("expected identity mapping for %x; got %x", virtAddr, phys)
		}
	}

	// An address outside every mapped region stays unmapped.
	if _, err := Translate(root, DemandPagingBase); err != errMissingMapping {
		t.Fatalf("expected the demand region to start out unmapped; got %v", err)
	}

	// All four abort classes route to the page-fault handler.
	if exp := 4; len(registeredClasses) != exp {
		t.Fatalf("expected %d fault handler registrations; got %d", exp, len(registeredClasses))
	}
}
