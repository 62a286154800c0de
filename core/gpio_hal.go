package core

// GPIOBank is the abstract pin output interface the engine drives edges
// through. Platform-specific implementations handle actual hardware control.
//
// Implementations must tolerate calls from both execution contexts: a
// zero-duty start forces its pin low from the foreground while the service
// routine may be flipping other pins from the interrupt context.
type GPIOBank interface {
	// Set drives every pin in mask high.
	Set(mask uint32)

	// Clear drives every pin in mask low.
	Clear(mask uint32)

	// SetSlow drives the one pin whose output register has no dedicated
	// set/clear addresses and needs a read-modify-write instead of a
	// mask write. See SlowPin.
	SetSlow(level bool)
}
