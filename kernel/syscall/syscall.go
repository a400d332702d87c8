// Package syscall implements the supervisor-call dispatcher. User code
// issues an SVC with the call number in x8 and the argument in x0; the
// vector glue captures both into the exception context before handing it to
// Dispatch.
package syscall

import (
	"unsafe"

	"virtos/kernel/driver/uart"
	"virtos/kernel/irq"
	"virtos/kernel/kfmt"
	"virtos/kernel/proc"
)

// Syscall numbers.
const (
	// Write outputs the NUL-terminated string at the address in x0 to
	// the console.
	Write = uint64(0)

	// Exit terminates the calling process with the code in x0.
	Exit = uint64(1)

	// Open and Read have no built-in handler; a filesystem registers
	// them through Handle. Until then Dispatch ignores them like unknown
	// numbers.
	Open = uint64(2)
	Read = uint64(3)

	tableSize = 4

	// maxWriteLen bounds how far the write handler will scan for the
	// string terminator.
	maxWriteLen = 1024
)

// HandlerFn services one syscall number.
type HandlerFn func(ctx *irq.Context)

var (
	handlers [tableSize]HandlerFn

	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	putcharFn = uart.WriteByte
	exitFn    = proc.Exit
)

// Init populates the dispatch table with the built-in handlers and
// registers the dispatcher for the SVC exception class.
func Init() {
	handlers[Write] = handleWrite
	handlers[Exit] = handleExit

	irq.HandleException(irq.ExceptionSVC64, Dispatch)
}

// Handle registers a handler for the given syscall number, replacing the
// previous one. The filesystem uses this to wire up Open and Read.
func Handle(num uint64, handler HandlerFn) {
	if num < tableSize {
		handlers[num] = handler
	}
}

// Dispatch routes a supervisor call to the handler registered for the
// number in x8. Unknown or unregistered numbers are logged and ignored.
func Dispatch(ctx *irq.Context) {
	if ctx.X8 >= tableSize || handlers[ctx.X8] == nil {
		kfmt.Printf("[syscall] ignoring unknown syscall %d\n", ctx.X8)
		return
	}

	handlers[ctx.X8](ctx)
}

// handleWrite emits the NUL-terminated string at the address held in x0,
// one byte at a time, to the console.
func handleWrite(ctx *irq.Context) {
	addr := uintptr(ctx.X0)
	if addr == 0 {
		return
	}

	for i := uintptr(0); i < maxWriteLen; i++ {
		b := *(*byte)(unsafe.Pointer(addr + i))
		if b == 0 {
			break
		}
		putcharFn(b)
	}
}

// handleExit terminates the calling process with the code passed in x0.
func handleExit(ctx *irq.Context) {
	exitFn(int(int64(ctx.X0)))
}
