//go:build arm64 && baremetal

package cpu

// The functions in this file are implemented by the assembly support code
// that also provides the boot trampoline and the exception vector table. The
// kernel is written against these signatures; their bodies never appear in
// Go.

// EnableInterrupts clears the DAIF IRQ mask bit allowing interrupt delivery.
func EnableInterrupts()

// DisableInterrupts sets the DAIF IRQ mask bit blocking interrupt delivery.
func DisableInterrupts()

// SaveFlags returns the current DAIF interrupt mask state.
func SaveFlags() uint64

// RestoreFlags restores a DAIF interrupt mask state previously obtained via
// SaveFlags.
func RestoreFlags(flags uint64)

// Halt masks interrupts and stops instruction execution.
func Halt()

// WaitForInterrupt suspends the CPU until the next interrupt is delivered.
func WaitForInterrupt()

// FlushTLB invalidates all TLB entries.
func FlushTLB()

// FlushTLBEntry invalidates the TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// LoadTranslationBase installs the physical address of the root page table
// into both translation table base registers.
func LoadTranslationBase(rootPhysAddr uintptr)

// SetMemoryAttributes programs the memory attribute indirection register with
// the attribute encodings referenced by the page table entries.
func SetMemoryAttributes(mair uint64)

// SetTranslationControl programs the translation control register which
// defines the virtual address width and granule size.
func SetTranslationControl(tcr uint64)

// EnableMMUAndCaches sets the MMU-enable, data-cache and instruction-cache
// bits in the system control register.
func EnableMMUAndCaches()

// ReadFaultAddress returns the faulting virtual address of the last
// synchronous exception.
func ReadFaultAddress() uintptr

// CounterFrequency returns the frequency of the architected counter in Hz.
func CounterFrequency() uint64

// SetTimerCountdown programs the physical timer countdown register; the
// timer fires when the countdown reaches zero.
func SetTimerCountdown(ticks uint32)

// EnableTimer enables the physical timer and unmasks its interrupt output.
func EnableTimer()

// SwitchContext saves the callee-saved register state of the outgoing task
// into old and resumes execution from the state captured in new.
func SwitchContext(old, new *Context)

// EnterUserMode performs an exception return to EL0 using the program
// counter and stack pointer captured in ctx. It does not return.
func EnterUserMode(ctx *UserContext)

// TaskTrampolineAddr returns the address of the assembly trampoline that
// newly created tasks start executing at. The trampoline invokes the
// exported task runner with the PID stashed in x19.
func TaskTrampolineAddr() uintptr
