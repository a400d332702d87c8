package vmm

import (
	"virtos/kernel"
	"virtos/kernel/cpu"
	"virtos/kernel/mm"
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	loadTranslationBaseFn   = cpu.LoadTranslationBase
	setMemoryAttributesFn   = cpu.SetMemoryAttributes
	setTranslationControlFn = cpu.SetTranslationControl
	enableMMUAndCachesFn    = cpu.EnableMMUAndCaches
	flushTLBFn              = cpu.FlushTLB

	// kernelRoot is the root table of the shared kernel address space. It
	// is allocated from the physical frame allocator which guarantees the
	// 4 KiB alignment the MMU requires.
	kernelRoot = mm.InvalidFrame
)

// KernelRoot returns the root table frame of the kernel address space.
func KernelRoot() mm.Frame {
	return kernelRoot
}

// Init builds the kernel address space and switches the MMU on. The device
// MMIO regions used by the interrupt controller and the UART are identity
// mapped as device memory and the full managed RAM range is identity mapped
// as normal cacheable memory. The resulting root table is then loaded into
// both translation base registers before the MMU and caches are enabled.
func Init() *kernel.Error {
	root, err := mm.AllocFrame()
	if err != nil {
		return err
	}
	kernelRoot = root

	deviceFlags := FlagDeviceMemory | FlagNoExecute
	if err = IdentityMapRegion(root, mm.FrameFromAddress(gicMMIOBase), gicMMIOSize, deviceFlags); err != nil {
		return err
	}
	if err = IdentityMapRegion(root, mm.FrameFromAddress(uartMMIOBase), uartMMIOSize, deviceFlags); err != nil {
		return err
	}

	ramFlags := FlagNormalMemory | FlagInnerShareable
	if err = IdentityMapRegion(root, mm.FrameFromAddress(RAMBase), RAMSize, ramFlags); err != nil {
		return err
	}

	setMemoryAttributesFn(mairValue)
	setTranslationControlFn(tcrValue)
	loadTranslationBaseFn(root.Address())
	flushTLBFn()
	enableMMUAndCachesFn()

	installFaultHandlers()
	return nil
}
