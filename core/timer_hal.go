package core

// CycleCounter is the free-running CPU cycle counter the engine schedules
// edges against. The count wraps around; all schedule comparisons use
// wrap-safe signed differences, so the wrap itself is harmless.
type CycleCounter interface {
	// Cycles returns the current cycle count.
	Cycles() uint32
}

// EdgeTimer is the shared single-shot hardware timer. Arming it schedules
// exactly one interrupt; the handler must re-arm it to keep the service
// loop alive. The engine expresses all delays in CPU cycles; a port whose
// timer ticks slower than the CPU clock does the scaling inside Arm and
// Remaining.
type EdgeTimer interface {
	// Attach enables the timer and installs the interrupt handler.
	Attach(handler func())

	// Detach disables the timer and removes the handler.
	Detach()

	// Arm schedules one interrupt ccys cycles from now.
	Arm(ccys int32)

	// Remaining returns the cycles left until the armed interrupt fires.
	Remaining() int32
}
