package irq

import "unsafe"

// GICv2 register map for the QEMU virt machine: the distributor lives at
// 0x08000000 and the CPU interface at 0x08010000.
const (
	gicDistBase = uintptr(0x08000000)
	gicCPUBase  = uintptr(0x08010000)

	// Distributor registers.
	gicdCTLR      = gicDistBase + 0x000
	gicdISENABLER = gicDistBase + 0x100
	gicdICPENDR   = gicDistBase + 0x280
	gicdIPRIORITY = gicDistBase + 0x400
	gicdITARGETSR = gicDistBase + 0x800

	// CPU interface registers.
	giccCTLR = gicCPUBase + 0x000
	giccPMR  = gicCPUBase + 0x004
	giccIAR  = gicCPUBase + 0x00c
	giccEOIR = gicCPUBase + 0x010

	// irqCount is the number of interrupt IDs tracked by the handler
	// registry. SPIs on this platform stay well below this bound.
	irqCount = 256

	// spuriousIRQ is returned by the acknowledge register when no
	// interrupt is actually pending.
	spuriousIRQ = uint32(1023)
)

var (
	// mmioRead32Fn and mmioWrite32Fn perform the actual device register
	// accesses; they are mocked by tests.
	mmioRead32Fn = func(addr uintptr) uint32 {
		return *(*uint32)(unsafe.Pointer(addr))
	}
	mmioWrite32Fn = func(addr uintptr, value uint32) {
		*(*uint32)(unsafe.Pointer(addr)) = value
	}

	// ackFn and eoiFn are mocked by tests driving DispatchIRQ.
	ackFn = gicAcknowledge
	eoiFn = gicEOI
)

// InitController brings up the interrupt controller: both the distributor
// and the CPU interface are disabled while pending state is cleared, the
// priority mask is opened up to admit every priority level and finally both
// halves are re-enabled.
func InitController() {
	mmioWrite32Fn(gicdCTLR, 0)
	mmioWrite32Fn(giccCTLR, 0)

	// Admit all interrupt priorities.
	mmioWrite32Fn(giccPMR, 0xff)

	// Clear any pending state left over from before the reset.
	for i := uintptr(0); i < 8; i++ {
		mmioWrite32Fn(gicdICPENDR+i*4, 0xffffffff)
	}

	mmioWrite32Fn(gicdCTLR, 1)
	mmioWrite32Fn(giccCTLR, 1)
}

// EnableIRQ tells the distributor to forward the given interrupt ID to
// core 0 with the highest priority.
func EnableIRQ(id uint32) {
	// One priority byte per interrupt.
	mmioWrite32Fn(gicdIPRIORITY+uintptr(id&^3), 0)

	// One target byte per interrupt; bit 0 selects core 0. SGIs and PPIs
	// (IDs below 32) are banked per core and have read-only target
	// registers.
	if id >= 32 {
		reg := gicdITARGETSR + uintptr(id&^3)
		value := mmioRead32Fn(reg)
		value |= 1 << ((id & 3) * 8)
		mmioWrite32Fn(reg, value)
	}

	// One enable bit per interrupt.
	mmioWrite32Fn(gicdISENABLER+uintptr(id>>5)*4, 1<<(id&31))
}

// gicAcknowledge reads the interrupt acknowledge register, marking the
// highest-priority pending interrupt as active and returning its ID.
func gicAcknowledge() uint32 {
	return mmioRead32Fn(giccIAR) & 0x3ff
}

// gicEOI signals completion of the interrupt previously obtained from the
// acknowledge register, allowing the controller to deliver the next one.
func gicEOI(id uint32) {
	mmioWrite32Fn(giccEOIR, id)
}
