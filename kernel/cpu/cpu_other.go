//go:build !(arm64 && baremetal)

package cpu

// Host stubs that stand in for the assembly support code when the kernel
// packages are built outside the bare-metal target (e.g. while running the
// tests). Tests never call into real hardware; any code path that would is
// mocked through the package function variables of its caller.

func EnableInterrupts()  {}
func DisableInterrupts() {}

func SaveFlags() uint64 { return 0 }

func RestoreFlags(_ uint64) {}

func WaitForInterrupt() {}

func FlushTLB() {}

func FlushTLBEntry(_ uintptr) {}

func Halt() {
	select {}
}

func LoadTranslationBase(_ uintptr) {}

func SetMemoryAttributes(_ uint64) {}

func SetTranslationControl(_ uint64) {}

func EnableMMUAndCaches() {}

func ReadFaultAddress() uintptr { return 0 }

func CounterFrequency() uint64 { return 62500000 }

func SetTimerCountdown(_ uint32) {}

func EnableTimer() {}

func SwitchContext(_, _ *Context) {}

func EnterUserMode(_ *UserContext) {}

func TaskTrampolineAddr() uintptr { return 0 }
