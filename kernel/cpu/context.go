package cpu

// Context captures the callee-saved register state of a task. Only the
// registers that the AAPCS64 calling convention requires a callee to
// preserve need to be recorded here; everything else is dead across the
// function call that performs the switch.
//
// The field order matches the layout expected by SwitchContext and must not
// be changed.
type Context struct {
	X19 uint64
	X20 uint64
	X21 uint64
	X22 uint64
	X23 uint64
	X24 uint64
	X25 uint64
	X26 uint64
	X27 uint64
	X28 uint64

	// FP is the frame pointer (x29).
	FP uint64

	// PC is the address execution resumes from (restored via x30).
	PC uint64

	// SP is the stack pointer.
	SP uint64
}

// UserContext captures the minimal state needed to enter a task at EL0: the
// entry point and the top of its user-mode stack.
type UserContext struct {
	PC uint64
	SP uint64
}
