package kfmt

import (
	"io"
	"testing"
)

func TestRingBufferWriteReadWithoutWrap(t *testing.T) {
	var (
		rb  ringBuffer
		buf = make([]byte, 16)
	)

	payload := []byte("hello world")
	if n, err := rb.Write(payload); n != len(payload) || err != nil {
		t.Fatalf("expected Write to return (%d, nil); got (%d, %v)", len(payload), n, err)
	}

	n, err := rb.Read(buf)
	if err != nil {
		t.Fatal(err)
	}

	if got := string(buf[:n]); got != string(payload) {
		t.Fatalf("expected to read %q; got %q", payload, got)
	}

	// A second read should report EOF as the buffer has been drained.
	if _, err = rb.Read(buf); err != io.EOF {
		t.Fatalf("expected to get io.EOF; got %v", err)
	}
}

func TestRingBufferWriteWithWrap(t *testing.T) {
	var rb ringBuffer

	// Fill the buffer and then write one more byte so the write index
	// wraps around and pushes the read index forward.
	for i := 0; i < ringBufferSize; i++ {
		rb.Write([]byte{byte(i % 251)})
	}
	rb.Write([]byte{0xff})

	if exp := 1; rb.wIndex != exp {
		t.Fatalf("expected write index to wrap to %d; got %d", exp, rb.wIndex)
	}

	if exp := 2; rb.rIndex != exp {
		t.Fatalf("expected read index to be pushed to %d; got %d", exp, rb.rIndex)
	}

	// Reading drains from rIndex to the end of the buffer first, then the
	// wrapped tail.
	buf := make([]byte, ringBufferSize)
	n, err := rb.Read(buf)
	if err != nil {
		t.Fatal(err)
	}

	if exp := ringBufferSize - rb.rIndex; n > ringBufferSize {
		t.Fatalf("expected first read to return at most %d bytes; got %d", exp, n)
	}

	total := n
	for {
		n, err = rb.Read(buf)
		if err == io.EOF {
			break
		}
		total += n
	}

	if exp := ringBufferSize - 1; total != exp {
		t.Fatalf("expected to drain %d bytes in total; got %d", exp, total)
	}
}
