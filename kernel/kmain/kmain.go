// Package kmain contains the C-level kernel entry point invoked by the boot
// trampoline once the stack is set up and the BSS is cleared.
package kmain

import (
	"virtos/kernel/cpu"
	"virtos/kernel/driver/uart"
	"virtos/kernel/heap"
	"virtos/kernel/irq"
	"virtos/kernel/kfmt"
	"virtos/kernel/mm/pmm"
	"virtos/kernel/mm/vmm"
	"virtos/kernel/proc"
	"virtos/kernel/syscall"
)

// Kernel RAM carve-up. The kernel image and the boot stack own the first
// 32 MiB of RAM, the heap gets the next 4 MiB and the physical page manager
// hands out everything that remains.
const (
	heapBase = vmm.RAMBase + 32<<20
	heapSize = uintptr(4 << 20)

	managedBase = heapBase + heapSize
	managedSize = (vmm.RAMBase + vmm.RAMSize - managedBase) &^ uintptr(0xfff)
)

// Kmain is the kernel entry point. It brings the subsystems up in
// dependency order, enables interrupt delivery and then becomes the idle
// process: reaping zombies, offering the CPU to the scheduler and waiting
// for the next interrupt.
//
// Kmain is not expected to return. If it does, the boot code halts the CPU.
func Kmain() {
	kfmt.SetOutputSink(uart.Output())
	kfmt.Printf("virtos starting\n")

	if err := pmm.Init(managedBase, managedSize); err != nil {
		kfmt.Panic(err)
	}
	if err := vmm.Init(); err != nil {
		kfmt.Panic(err)
	}
	if err := heap.Init(heapBase, heapBase+heapSize); err != nil {
		kfmt.Panic(err)
	}

	proc.Init()
	syscall.Init()

	irq.InitController()
	irq.InitTimer()
	uart.EnableRX()

	cpu.EnableInterrupts()

	// Idle loop of PID 0.
	for {
		proc.ReapZombies()
		proc.Schedule()
		cpu.WaitForInterrupt()
	}
}
