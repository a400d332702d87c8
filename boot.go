package main

import "virtos/kernel/kmain"

// main is the only Go symbol that is visible (exported) from the rt0
// initialization code. This function works as a trampoline for calling the
// actual kernel entrypoint (kmain.Kmain) and is intentionally defined to
// prevent the Go compiler from optimizing away the actual kernel code as
// its not aware of the presence of the rt0 code.
//
// The rt0 code parks every core except core 0 in a low-power wait, points
// the stack pointer at the linker-provided stack top, zero-fills the BSS
// range and then branches here. It also provides the exception vector table
// whose entries capture the register context and dispatch through
// irq.DispatchSync and irq.DispatchIRQ, and the task trampoline that enters
// proc.RunTask on a new process's first switch-in.
//
// main is not expected to return. If it does, the rt0 code will halt the CPU.
func main() {
	kmain.Kmain()
}
