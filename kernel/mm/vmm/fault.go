package vmm

import (
	"virtos/kernel/cpu"
	"virtos/kernel/irq"
	"virtos/kernel/kfmt"
	"virtos/kernel/mm"
	"virtos/kernel/proc"
)

// The demand-paged region. Aborts on addresses inside the region are
// resolved by mapping a fresh zeroed frame; aborts anywhere else terminate
// the faulting process.
const (
	// DemandPagingBase is the first virtual address of the demand-paged
	// region.
	DemandPagingBase = uintptr(0x50000000)

	// DemandPagingSize is the size of the demand-paged region.
	DemandPagingSize = uintptr(16 << 20)
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	readFaultAddressFn = cpu.ReadFaultAddress
	flushTLBEntryFn    = cpu.FlushTLBEntry
	frameAllocFn       = mm.AllocFrame
	exitFn             = proc.Exit

	// handleExceptionFn is used by tests.
	handleExceptionFn = irq.HandleException
)

// installFaultHandlers registers the page-fault handler for the abort
// exception classes raised by both kernel and user mode accesses.
func installFaultHandlers() {
	handleExceptionFn(irq.ExceptionDataAbortLowerEL, pageFaultHandler)
	handleExceptionFn(irq.ExceptionDataAbortSameEL, pageFaultHandler)
	handleExceptionFn(irq.ExceptionInstrAbortLowerEL, pageFaultHandler)
	handleExceptionFn(irq.ExceptionInstrAbortSameEL, pageFaultHandler)
}

// pageFaultHandler is invoked for data and instruction aborts. Faults inside
// the demand-paged region are resolved by mapping a zeroed frame read-write
// at the faulting page and retrying the instruction; any other fault, and
// any fault that cannot obtain a frame, terminates the current process.
func pageFaultHandler(_ *irq.Context) {
	faultAddress := readFaultAddressFn()

	if faultAddress < DemandPagingBase || faultAddress >= DemandPagingBase+DemandPagingSize {
		kfmt.Printf("[vmm] fault outside demand-paged region while accessing 0x%16x\n", faultAddress)
		exitFn(-1)
		return
	}

	frame, err := frameAllocFn()
	if err != nil {
		kfmt.Printf("[vmm] unable to allocate frame for demand-paged address 0x%16x: %s\n", faultAddress, err.Message)
		exitFn(-1)
		return
	}

	faultPage := mm.PageFromAddress(faultAddress)
	if err = mapFn(kernelRoot, faultPage, frame, FlagNormalMemory|FlagInnerShareable); err != nil {
		exitFn(-1)
		return
	}

	// Drop any stale translation so the retried instruction sees the new
	// mapping.
	flushTLBEntryFn(faultPage.Address())
}
