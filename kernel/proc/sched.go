package proc

import (
	"virtos/kernel/cpu"
	"virtos/kernel/kfmt"
)

// DefaultQuantum is the number of ticks a process may run before the timer
// asks for a reschedule.
const DefaultQuantum = 5

// agingThreshold bounds the selection penalty: a chosen process only pays
// the penalty while its priority sits below this value, which keeps the
// penalty from pushing priorities without bound.
const agingThreshold = Priority(10)

var (
	// ticks is the global monotonic tick counter, incremented exactly
	// once per timer interrupt.
	ticks uint64

	// needReschedule is set from IRQ context when the current process
	// exhausted its quantum; it is consulted on the IRQ-return path.
	// Context switches never happen inside the interrupt handler itself.
	needReschedule bool

	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	switchContextFn     = cpu.SwitchContext
	enableInterruptsFn  = cpu.EnableInterrupts
)

// Now returns the current value of the global tick counter.
func Now() uint64 {
	return ticks
}

// TimerTick advances the kernel clock by one tick. It charges the tick to
// the currently running process, requests a deferred reschedule once the
// quantum runs out and releases every sleeper whose deadline has passed.
// Processes blocked on semaphores are left alone; only a signal can release
// those.
//
// TimerTick runs in IRQ context and must not switch contexts itself.
func TimerTick() {
	ticks++

	if current.state == StateRunning {
		current.cpuTime++
		if current.pid > 0 {
			current.quantum--
			if current.quantum <= 0 {
				needReschedule = true
			}
		}
	}

	for i := range procTable {
		p := &procTable[i]
		if p.state == StateBlocked && p.blockReason == BlockSleep && p.wakeUpTime <= ticks {
			p.state = StateReady
			p.blockReason = BlockNone
		}
	}
}

// Schedule selects the next process to run and switches to it. The
// selection is priority based with aging: every ready process that is not
// currently running creeps towards priority zero so nothing starves, while
// the chosen process pays a small penalty so nothing monopolizes the CPU.
// Equal priorities resolve to the lowest PID which gives round-robin
// behaviour between peers.
//
// Schedule is called voluntarily from sleep, exit and the semaphore layer
// and on the IRQ-return path when a tick requested it. It never runs inside
// an interrupt handler.
func Schedule() {
	needReschedule = false

	// Aging: pull every waiting ready process one step towards the most
	// urgent priority.
	for i := range procTable {
		p := &procTable[i]
		if p.state == StateReady && p != current && p.priority > 0 {
			p.priority--
		}
	}

	// Selection: smallest priority wins, ties go to the lowest PID.
	var chosen *PCB
	for i := range procTable {
		p := &procTable[i]
		if p.state != StateReady && p.state != StateRunning {
			continue
		}
		if chosen == nil || p.priority < chosen.priority {
			chosen = p
		}
	}

	// Fallback: with everything asleep or blocked the idle process runs,
	// even if it has to be revived first.
	if chosen == nil {
		chosen = &procTable[0]
		if chosen.state != StateReady && chosen.state != StateRunning {
			kfmt.Printf("[proc] no runnable process; reviving the idle process\n")
			chosen.state = StateReady
			chosen.blockReason = BlockNone
		}
	}

	// Penalty and quantum refill for the winner.
	if chosen.priority < agingThreshold {
		chosen.priority += 2
	}
	if chosen.pid > 0 {
		chosen.quantum = DefaultQuantum
	}

	if chosen == current {
		chosen.state = StateRunning
		return
	}

	prev := current
	if prev.state == StateRunning {
		prev.state = StateReady
	}

	chosen.state = StateRunning
	current = chosen
	switchContextFn(&prev.ctx, &chosen.ctx)
}

// ScheduleIfNeeded runs the scheduler when a timer tick asked for it. The
// exception-return glue calls this after every serviced interrupt.
func ScheduleIfNeeded() {
	if needReschedule {
		Schedule()
	}
}

// Yield voluntarily hands the CPU to the scheduler.
func Yield() {
	Schedule()
}

// Sleep blocks the calling process for at least the supplied number of
// ticks. The wake-up is driven by TimerTick which makes the process ready
// again once the deadline passes; when the process is eventually scheduled
// back in, interrupts are re-enabled before Sleep returns.
func Sleep(sleepTicks uint64) {
	current.wakeUpTime = ticks + sleepTicks
	current.state = StateBlocked
	current.blockReason = BlockSleep

	Schedule()

	enableInterruptsFn()
}

// BlockCurrent marks the current process blocked for the supplied reason
// and hands the CPU to the scheduler. It is the suspension primitive used
// by the semaphore layer; the caller is responsible for having queued the
// process somewhere a wake-up can find it.
func BlockCurrent(reason BlockReason) {
	current.state = StateBlocked
	current.blockReason = reason

	Schedule()
}

// Unblock transitions a blocked process back to ready.
func Unblock(p *PCB) {
	p.state = StateReady
	p.blockReason = BlockNone
}
