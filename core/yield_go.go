//go:build !tinygo

package core

import "runtime"

// platformYield parks the caller briefly while a start request waits for
// the service routine.
func platformYield() {
	runtime.Gosched()
}

// spinHint relaxes the stop-path wait. Hosted builds have no real interrupt
// context, so handing the processor over is always legal here and keeps a
// cooperative scheduler from live-locking.
func spinHint() {
	runtime.Gosched()
}
