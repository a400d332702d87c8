package sync

import (
	"virtos/kernel/cpu"
	"virtos/kernel/proc"
)

var (
	// semLock serializes every semaphore operation in the kernel. One
	// lock for all semaphores is coarse but sufficient for a single core
	// with short critical sections; splitting it per semaphore would not
	// change the observable semantics.
	semLock Spinlock

	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	saveFlagsFn         = cpu.SaveFlags
	restoreFlagsFn      = cpu.RestoreFlags
	disableInterruptsFn = cpu.DisableInterrupts
	currentFn           = proc.Current
	blockCurrentFn      = proc.BlockCurrent
	unblockFn           = proc.Unblock
)

// Semaphore is a counting semaphore over an intrusive FIFO of blocked
// processes. While count is positive the queue is empty; once the count
// runs out, waiters queue up in arrival order and each signal releases
// exactly the oldest one.
type Semaphore struct {
	count   int
	waiters proc.WaitQueue
}

// Init resets the semaphore to the supplied count with no waiters.
func (s *Semaphore) Init(value int) {
	s.count = value
	s.waiters = proc.WaitQueue{}
}

// Wait decrements the semaphore. If no count is available the calling
// process joins the tail of the wait queue and blocks until a signal hands
// it a slot. The caller's interrupt mask state is saved on entry and
// restored before Wait returns, including on the resume path after a block.
func (s *Semaphore) Wait() {
	flags := saveFlagsFn()
	disableInterruptsFn()
	semLock.Acquire()

	if s.count > 0 {
		s.count--
		semLock.Release()
		restoreFlagsFn(flags)
		return
	}

	s.waiters.Push(currentFn())
	semLock.Release()

	// The scheduler takes over here; by the time BlockCurrent returns a
	// signal has already dequeued this process and made it ready.
	blockCurrentFn(proc.BlockWait)

	restoreFlagsFn(flags)
}

// Signal increments the semaphore. If processes are queued the oldest one
// is woken instead of incrementing the count: the slot transfers directly
// to the woken process, so no other waiter can race it to the decrement.
func (s *Semaphore) Signal() {
	flags := saveFlagsFn()
	disableInterruptsFn()
	semLock.Acquire()

	if p := s.waiters.Pop(); p != nil {
		unblockFn(p)
	} else {
		s.count++
	}

	semLock.Release()
	restoreFlagsFn(flags)
}

// Count returns the currently available count.
func (s *Semaphore) Count() int {
	return s.count
}

// Waiting returns the number of queued processes.
func (s *Semaphore) Waiting() int {
	return s.waiters.Len()
}
