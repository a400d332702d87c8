//go:build !(arm64 && baremetal)

package sync

import "sync/atomic"

// archAcquireSpinlock stands in for the load/store-exclusive assembly
// implementation when building on a host.
func archAcquireSpinlock(state *uint32, _ uint32) {
	for atomic.SwapUint32(state, 1) != 0 {
	}
}
