// Package irq provides the C-level half of the exception and interrupt
// plumbing: decoding of the exception syndrome, the handler registries that
// the vector-table glue dispatches through, and the drivers for the
// interrupt controller and the architected timer.
package irq

import (
	"virtos/kernel"
	"virtos/kernel/cpu"
	"virtos/kernel/kfmt"
	"virtos/kernel/proc"
)

// ExceptionClass describes the exception class field (bits 31:26) of the
// exception syndrome register.
type ExceptionClass uint8

const (
	// ExceptionSVC64 is raised by an SVC instruction executed in AArch64
	// state.
	ExceptionSVC64 = ExceptionClass(0x15)

	// ExceptionInstrAbortLowerEL is raised by an instruction fetch abort
	// taken from EL0.
	ExceptionInstrAbortLowerEL = ExceptionClass(0x20)

	// ExceptionInstrAbortSameEL is raised by an instruction fetch abort
	// taken from EL1.
	ExceptionInstrAbortSameEL = ExceptionClass(0x21)

	// ExceptionDataAbortLowerEL is raised by a data access abort taken
	// from EL0.
	ExceptionDataAbortLowerEL = ExceptionClass(0x24)

	// ExceptionDataAbortSameEL is raised by a data access abort taken
	// from EL1.
	ExceptionDataAbortSameEL = ExceptionClass(0x25)

	// exceptionClassCount bounds the handler registry; the class field
	// is 6 bits wide.
	exceptionClassCount = 64
)

// Context contains the register snapshot captured by the exception vector
// glue before it dispatches to Go code. Modifications to the snapshot are
// propagated back when the glue performs the exception return.
type Context struct {
	// X0 holds the conventional first argument register which doubles as
	// the syscall argument register.
	X0 uint64

	// X8 holds the conventional syscall number register.
	X8 uint64

	// Task holds the callee-saved register state in the same layout used
	// by the process control blocks.
	Task cpu.Context

	// ESR is the exception syndrome register value captured at entry.
	ESR uint64
}

// Class extracts the exception class from the captured syndrome.
func (c *Context) Class() ExceptionClass {
	return ExceptionClass(c.ESR >> 26)
}

// ExceptionHandler is a function that handles a synchronous exception. If
// the handler returns, execution resumes at the instruction selected by the
// captured context.
type ExceptionHandler func(*Context)

// Handler is a function invoked to service one interrupt ID.
type Handler func()

var (
	syncHandlers [exceptionClassCount]ExceptionHandler

	irqHandlers [irqCount]Handler

	// scheduleIfNeededFn and panicFn are mocked by tests.
	scheduleIfNeededFn = proc.ScheduleIfNeeded
	panicFn            = kfmt.Panic

	errUnhandledException = &kernel.Error{Module: "irq", Message: "unhandled synchronous exception"}
)

// HandleException registers a handler for the given exception class,
// replacing any previous registration.
func HandleException(class ExceptionClass, handler ExceptionHandler) {
	syncHandlers[class] = handler
}

// HandleIRQ registers a handler for the given interrupt ID, replacing any
// previous registration.
func HandleIRQ(id uint32, handler Handler) {
	if id < irqCount {
		irqHandlers[id] = handler
	}
}

// DispatchSync routes a synchronous exception to the handler registered for
// its exception class. An exception with no registered handler means the
// kernel itself took a trap it cannot recover from.
func DispatchSync(ctx *Context) {
	handler := syncHandlers[ctx.Class()]
	if handler == nil {
		kfmt.Printf("[irq] unhandled exception class 0x%x\n", uint8(ctx.Class()))
		panicFn(errUnhandledException)
		return
	}

	handler(ctx)
}

// DispatchIRQ services one pending interrupt: it acknowledges the interrupt,
// signals completion to the controller, runs the registered handler and
// finally honors a reschedule requested while the handler ran. Context
// switches never happen inside the handler itself; the switch is performed
// here, on the return path, once the controller has been released.
func DispatchIRQ() {
	id := ackFn()
	if id == spuriousIRQ {
		return
	}

	eoiFn(id)

	if id < irqCount && irqHandlers[id] != nil {
		irqHandlers[id]()
	} else {
		kfmt.Printf("[irq] ignoring unexpected irq %d\n", id)
	}

	scheduleIfNeededFn()
}
