//go:build tinygo

package core

import "runtime"

// platformYield parks the caller briefly while a start request waits for
// the service routine.
func platformYield() {
	runtime.Gosched()
}

// spinHint must stay callable from an interrupt context, so it never
// yields or sleeps.
func spinHint() {
}
