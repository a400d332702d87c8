package irq

import (
	"virtos/kernel/cpu"
	"virtos/kernel/proc"
)

const (
	// TimerIRQ is the interrupt ID of the EL1 physical timer.
	TimerIRQ = uint32(30)

	// TimerInterval is the reload value programmed into the timer
	// countdown register. At the 19.2 MHz counter frequency used by the
	// platform this amounts to roughly 104 ms per tick.
	TimerInterval = uint32(2000000)
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	setTimerCountdownFn = cpu.SetTimerCountdown
	enableTimerFn       = cpu.EnableTimer
	timerTickFn         = proc.TimerTick
)

// InitTimer programs the periodic timer, registers its interrupt handler
// and routes the timer interrupt through the controller. The CPU-side
// interrupt mask is left untouched; the caller decides when interrupt
// delivery actually starts.
func InitTimer() {
	HandleIRQ(TimerIRQ, handleTimerIRQ)

	setTimerCountdownFn(TimerInterval)
	enableTimerFn()
	EnableIRQ(TimerIRQ)
}

// handleTimerIRQ services one timer interrupt: the countdown is re-armed
// for the next period and the scheduler's tick bookkeeping runs. Any
// reschedule the tick asks for is deferred to the IRQ-return path.
func handleTimerIRQ() {
	setTimerCountdownFn(TimerInterval)
	timerTickFn()
}
