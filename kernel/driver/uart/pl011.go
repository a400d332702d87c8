// Package uart drives the PL011 serial port of the virt machine. The write
// path backs the kernel console; received bytes are drained by the RX
// interrupt into a small ring buffer that the shell consumes.
package uart

import (
	"io"
	"unsafe"

	"virtos/kernel/irq"
)

const (
	mmioBase = uintptr(0x09000000)

	regDR   = mmioBase + 0x00
	regFR   = mmioBase + 0x18
	regIMSC = mmioBase + 0x38

	// Flag register bits.
	frTXFF = uint32(1 << 5) // transmit FIFO full
	frRXFE = uint32(1 << 4) // receive FIFO empty

	// Interrupt mask bits.
	imscRX = uint32(1 << 4)

	// RXIRQ is the interrupt ID the virt machine assigns to the UART.
	RXIRQ = uint32(33)

	// rxBufferSize is the capacity of the receive ring. Must be a power
	// of 2.
	rxBufferSize = 128
)

var (
	// mmioRead32Fn and mmioWrite32Fn perform the actual device register
	// accesses; they are mocked by tests.
	mmioRead32Fn = func(addr uintptr) uint32 {
		return *(*uint32)(unsafe.Pointer(addr))
	}
	mmioWrite32Fn = func(addr uintptr, value uint32) {
		*(*uint32)(unsafe.Pointer(addr)) = value
	}

	// handleIRQFn and enableIRQFn are mocked by tests which have no
	// interrupt controller to talk to.
	handleIRQFn = irq.HandleIRQ
	enableIRQFn = irq.EnableIRQ

	rxBuffer        [rxBufferSize]byte
	rxRead, rxWrite int
)

// WriteByte emits one byte out of the serial port, spinning while the
// transmit FIFO is full.
func WriteByte(b byte) {
	for mmioRead32Fn(regFR)&frTXFF != 0 {
	}
	mmioWrite32Fn(regDR, uint32(b))
}

// writer adapts the transmit path to io.Writer so it can serve as the kfmt
// output sink.
type writer struct{}

func (writer) Write(p []byte) (int, error) {
	for _, b := range p {
		WriteByte(b)
	}
	return len(p), nil
}

// Output returns an io.Writer that emits to the serial port.
func Output() io.Writer {
	return writer{}
}

// EnableRX unmasks the receive interrupt and registers its handler with the
// interrupt layer. The transmit path needs no setup and works from the
// first instruction.
func EnableRX() {
	handleIRQFn(RXIRQ, handleRXIRQ)
	enableIRQFn(RXIRQ)
	mmioWrite32Fn(regIMSC, imscRX)
}

// handleRXIRQ drains the receive FIFO into the ring buffer. When the ring
// is full the oldest byte is dropped in favour of the new one.
func handleRXIRQ() {
	for mmioRead32Fn(regFR)&frRXFE == 0 {
		b := byte(mmioRead32Fn(regDR))

		rxBuffer[rxWrite&(rxBufferSize-1)] = b
		rxWrite++
		if rxWrite-rxRead > rxBufferSize {
			rxRead++
		}
	}
}

// ReadByte pops the oldest received byte from the ring buffer. It returns
// false if no input is pending.
func ReadByte() (byte, bool) {
	if rxRead == rxWrite {
		return 0, false
	}

	b := rxBuffer[rxRead&(rxBufferSize-1)]
	rxRead++
	return b, true
}
