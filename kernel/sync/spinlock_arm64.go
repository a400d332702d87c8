//go:build arm64 && baremetal

package sync

// archAcquireSpinlock spins on the lock state using load-exclusive and
// store-exclusive pairs until the state can be flipped from 0 to 1. It is
// implemented by the assembly support code.
func archAcquireSpinlock(state *uint32, attemptsBeforeYielding uint32)
