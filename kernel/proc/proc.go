// Package proc implements the process table, the priority scheduler and the
// kernel's notion of time. All processes share the kernel address space;
// what distinguishes them is a control block holding their callee-saved
// register context, scheduling state and a heap-allocated stack.
package proc

import (
	"virtos/kernel"
	"virtos/kernel/cpu"
	"virtos/kernel/heap"
	"virtos/kernel/kfmt"
	"virtos/kernel/mm"
)

const (
	// MaxProcs is the capacity of the process table.
	MaxProcs = 32

	// NameLen is the maximum process name length; longer names are
	// truncated.
	NameLen = 15

	// stackSize is the size of the kernel stack allocated for each
	// process.
	stackSize = mm.PageSize

	// IdlePriority is the priority assigned to the idle process. It is
	// the least urgent priority in use so the idle process only runs
	// when nothing else can.
	IdlePriority = Priority(127)
)

// State describes the lifecycle state of a process table slot.
type State uint8

const (
	// StateUnused flags a free table slot.
	StateUnused State = iota

	// StateRunning is the state of the single process that owns the CPU.
	StateRunning

	// StateReady flags a process eligible for selection by the scheduler.
	StateReady

	// StateBlocked flags a process waiting for a wake-up (sleep deadline
	// or semaphore signal).
	StateBlocked

	// StateZombie flags a terminated process whose slot and stack have
	// not been reclaimed yet.
	StateZombie
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUnused:
		return "unused"
	case StateRunning:
		return "running"
	case StateReady:
		return "ready"
	case StateBlocked:
		return "blocked"
	case StateZombie:
		return "zombie"
	default:
		return "invalid"
	}
}

// BlockReason records why a blocked process is waiting.
type BlockReason uint8

const (
	// BlockNone means the process is not blocked.
	BlockNone BlockReason = iota

	// BlockSleep means the process waits for its wake-up tick.
	BlockSleep

	// BlockWait means the process waits in a semaphore queue.
	BlockWait
)

// Pid identifies a process. The PID doubles as the index of the process in
// the table and stays stable for the lifetime of the slot's current
// incarnation.
type Pid int

// InvalidPid is returned by creation functions that fail.
const InvalidPid = Pid(-1)

// Priority orders processes for selection. Lower values are MORE urgent:
// the scheduler picks the numerically smallest priority and ages waiting
// processes by decrementing towards the floor of zero. Code comparing
// priorities must keep this inverted sense in mind.
type Priority int

// EntryFn is the type of a process entry function. The argument is the
// value supplied at creation time.
type EntryFn func(arg uintptr)

// PCB is a process control block.
type PCB struct {
	// ctx is the callee-saved register snapshot used to switch the
	// process in and out.
	ctx cpu.Context

	state       State
	pid         Pid
	priority    Priority
	quantum     int
	wakeUpTime  uint64
	blockReason BlockReason
	cpuTime     uint64
	exitCode    int

	// stackAddr is the base of the heap-allocated kernel stack; 0 for
	// the idle process which runs on the boot stack.
	stackAddr uintptr

	// userStackAddr is the base of the EL0 stack for processes created
	// via CreateUserProcess; 0 otherwise.
	userStackAddr uintptr

	// userCtx captures the EL0 entry state for user processes.
	userCtx cpu.UserContext

	name    [NameLen + 1]byte
	nameLen uint8

	entry    EntryFn
	entryArg uintptr

	// next links the PCB into at most one wait queue. The link is owned
	// by the queue while the process is blocked on it and is cleared
	// when the process is woken.
	next *PCB
}

// Pid returns the process identifier.
func (p *PCB) Pid() Pid { return p.pid }

// State returns the current lifecycle state.
func (p *PCB) State() State { return p.state }

// BlockReason returns why the process is blocked.
func (p *PCB) BlockReason() BlockReason { return p.blockReason }

// Priority returns the current priority.
func (p *PCB) Priority() Priority { return p.priority }

// CPUTime returns the number of ticks the process has been observed
// running.
func (p *PCB) CPUTime() uint64 { return p.cpuTime }

// ExitCode returns the value recorded at exit.
func (p *PCB) ExitCode() int { return p.exitCode }

// Name returns the process name.
func (p *PCB) Name() string { return string(p.name[:p.nameLen]) }

func (p *PCB) setName(name string) {
	if len(name) > NameLen {
		name = name[:NameLen]
	}
	copy(p.name[:], name)
	p.nameLen = uint8(len(name))
}

var (
	procTable [MaxProcs]PCB

	// current points at the PCB that owns the CPU. It is never nil after
	// Init.
	current *PCB

	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	heapAllocFn          = heap.Alloc
	heapFreeFn           = heap.Free
	taskTrampolineAddrFn = cpu.TaskTrampolineAddr
	enterUserModeFn      = cpu.EnterUserMode
	panicFn              = kfmt.Panic

	errTableFull   = &kernel.Error{Module: "proc", Message: "process table is full"}
	errExitReturn  = &kernel.Error{Module: "proc", Message: "schedule returned into an exited process"}
)

// Init resets the process table and installs the idle process in slot 0 as
// the currently running process. The idle process keeps the boot stack, so
// no heap allocation happens here.
func Init() {
	for i := range procTable {
		procTable[i] = PCB{pid: Pid(i)}
	}

	idle := &procTable[0]
	idle.setName("Kernel")
	idle.priority = IdlePriority
	idle.state = StateRunning

	current = idle
	ticks = 0
	needReschedule = false
}

// Current returns the PCB of the process that owns the CPU.
func Current() *PCB {
	return current
}

// Lookup returns the PCB with the given PID or nil if the PID is out of
// range.
func Lookup(pid Pid) *PCB {
	if pid < 0 || pid >= MaxProcs {
		return nil
	}
	return &procTable[pid]
}

// Create allocates a process table slot and a kernel stack for a new
// process that will start executing entry with the supplied argument once
// the scheduler first selects it. The returned PID equals the slot index.
// Create fails when the table is full or the heap cannot supply a stack; a
// failed creation leaves the table untouched.
func Create(entry EntryFn, arg uintptr, priority Priority, name string) (Pid, *kernel.Error) {
	var p *PCB
	for i := range procTable {
		if procTable[i].state == StateUnused {
			p = &procTable[i]
			break
		}
	}
	if p == nil {
		return InvalidPid, errTableFull
	}

	stackAddr, err := heapAllocFn(stackSize)
	if err != nil {
		return InvalidPid, err
	}

	pid := p.pid
	*p = PCB{pid: pid}
	p.setName(name)
	p.priority = priority
	p.stackAddr = stackAddr
	p.entry = entry
	p.entryArg = arg
	p.quantum = 0
	p.blockReason = BlockNone

	// Seed the context so the first switch-in lands in the task
	// trampoline with the PID available in x19. The trampoline hands
	// control to RunTask which invokes the entry function.
	p.ctx.PC = uint64(taskTrampolineAddrFn())
	p.ctx.SP = uint64((stackAddr + stackSize) &^ 15)
	p.ctx.X19 = uint64(pid)

	p.state = StateReady
	return pid, nil
}

// CreateThread creates a kernel process that runs entry with a nil
// argument.
func CreateThread(entry EntryFn, priority Priority, name string) (Pid, *kernel.Error) {
	return Create(entry, 0, priority, name)
}

// CreateUserProcess creates a process that drops to EL0 and starts
// executing at entry on a separate heap-allocated user stack.
func CreateUserProcess(entry uintptr, name string) (Pid, *kernel.Error) {
	userStack, err := heapAllocFn(stackSize)
	if err != nil {
		return InvalidPid, err
	}

	pid, err := Create(enterUserTask, 0, Priority(10), name)
	if err != nil {
		heapFreeFn(userStack)
		return InvalidPid, err
	}

	p := &procTable[pid]
	p.entryArg = uintptr(pid)
	p.userStackAddr = userStack
	p.userCtx = cpu.UserContext{
		PC: uint64(entry),
		SP: uint64((userStack + stackSize) &^ 15),
	}

	return pid, nil
}

// enterUserTask is the kernel-mode body of a user process: it performs the
// one-way EL1 to EL0 transition described by the PCB's user context.
func enterUserTask(pidArg uintptr) {
	enterUserModeFn(&procTable[Pid(pidArg)].userCtx)
}

// RunTask is invoked by the task trampoline on a process's first switch-in.
// It runs the entry function and terminates the process when the function
// returns.
func RunTask(pid Pid) {
	p := &procTable[pid]
	p.entry(p.entryArg)
	Exit(0)
}

// Exit terminates the calling process: the slot turns into a zombie holding
// the exit code until the reaper recycles it. Exit never returns.
func Exit(code int) {
	enableInterruptsFn()

	current.state = StateZombie
	current.exitCode = code

	Schedule()

	// A zombie must never be selected again.
	panicFn(errExitReturn)
}

// ReapZombies recycles every zombie slot: the stack goes back to the heap
// and the slot becomes available for reuse. Called from the idle loop.
func ReapZombies() {
	for i := range procTable {
		p := &procTable[i]
		if p.state != StateZombie {
			continue
		}

		heapFreeFn(p.stackAddr)
		if p.userStackAddr != 0 {
			heapFreeFn(p.userStackAddr)
			p.userStackAddr = 0
		}
		p.stackAddr = 0
		p.state = StateUnused
	}
}

// DumpTable prints one line of accounting per active process.
func DumpTable() {
	kfmt.Printf("[proc] pid state    prio quantum cpu\n")
	for i := range procTable {
		p := &procTable[i]
		if p.state == StateUnused {
			continue
		}
		kfmt.Printf("[proc] %3d %8s %4d %7d %d %s\n",
			int(p.pid), p.state.String(), int(p.priority), p.quantum, p.cpuTime, p.Name())
	}
}
