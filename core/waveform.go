package core

import "sync/atomic"

// Waveform lifecycle. The service routine resolves the two staging modes
// into absolute schedule cycles; modeInfinite and modeExpires are the steady
// states and modeExpires is the only one that self-terminates.
//
// An update to a live pin always passes through modeInfinite before a new
// expiry is staged, so the service routine can never observe a stale
// absolute expiry paired with fresh duty/period values.
const (
	modeInfinite     uint32 = iota // run until explicitly stopped
	modeExpires                    // stop at expiryCcy
	modeUpdateExpiry               // resolve staged runTimeCcys into a new expiry
	modeInit                       // resolve a freshly started pin's schedule
)

// waveform is one pin's descriptor.
//
// The schedule fields are owned by the service routine once the pin is live.
// The staging fields are written by the foreground before the pin is
// published through the toSet register and read by the service routine after
// it consumes the register, so the handshake orders them. The atomic fields
// may be rewritten by a live update while the service routine is reading
// them; such updates take effect on the next period.
type waveform struct {
	nextEventCcy  uint32 // next edge flip, or the expiry
	nextPeriodCcy uint32 // cycle the current period began / will begin
	endDutyCcy    uint32 // cycle the high phase of the current period ends
	expiryCcy     uint32 // absolute stop cycle while mode == modeExpires

	phaseCcys   uint32 // staged phase offset, resolved on modeInit
	runTimeCcys uint32 // staged relative run time, resolved on modeInit/modeUpdateExpiry

	dutyCcys   atomic.Uint32
	periodCcys atomic.Uint32
	mode       atomic.Uint32
	autoPwm    atomic.Bool

	alignPin int8 // pin to phase-lock against, -1 for none
}

// StartWaveform begins or updates a waveform on pin, with all durations in
// microseconds. See StartWaveformCycles.
func (e *Engine) StartWaveform(pin int, highUs, lowUs, runTimeUs uint32,
	alignPhase int, phaseOffsetUs uint32, autoPwm bool) bool {
	return e.StartWaveformCycles(pin,
		e.usToCcys(highUs), e.usToCcys(lowUs),
		e.usToCcys(runTimeUs), alignPhase, e.usToCcys(phaseOffsetUs), autoPwm)
}

// StartWaveformCycles begins a waveform on pin, or updates the one already
// running. An update changes over smoothly on the next low->high
// transition; stop the pin first for an immediate change.
//
// highCcys and lowCcys set the duty and idle phases. A runTimeCcys of zero
// runs forever; otherwise the pin disables itself after that many cycles.
// alignPhase names a pin whose period start this waveform locks to, shifted
// by phaseOffsetCcys; pass a negative value for no alignment. autoPwm trades
// instantaneous frequency for a preserved duty/idle ratio when interrupts
// are serviced late.
//
// Returns false for an invalid pin, a reserved pin, an out-of-range
// alignment target, a zero or overflowing period, or a duty phase exceeding
// the period. Blocks (yielding) until the service routine has taken over
// the request.
func (e *Engine) StartWaveformCycles(pin int, highCcys, lowCcys, runTimeCcys uint32,
	alignPhase int, phaseOffsetCcys uint32, autoPwm bool) bool {
	periodCcys := highCcys + lowCcys
	if periodCcys != 0 && periodCcys < uint32(e.maxIdleCcys) {
		// Stretch short periods to an integer multiple that keeps the
		// interrupt rate at or below the servicing floor. Pure-low and
		// pure-high waveforms keep their duty ratio exactly; mixed ones
		// are left alone so their timing stays precise.
		if highCcys == 0 {
			periodCcys = (uint32(e.maxIdleCcys) / periodCcys) * periodCcys
		} else if lowCcys == 0 {
			periodCcys = (uint32(e.maxIdleCcys) / periodCcys) * periodCcys
			highCcys = periodCcys
		}
	}
	// Sanity checks, including mixed signed/unsigned arithmetic safety.
	if pin < 0 || pin >= NumPins || e.reservedPins&(1<<uint(pin)) != 0 ||
		alignPhase >= NumPins || int32(periodCcys) <= 0 || highCcys > periodCcys {
		return false
	}
	wave := &e.pins[pin]
	wave.dutyCcys.Store(highCcys)
	wave.periodCcys.Store(periodCcys)
	wave.autoPwm.Store(autoPwm)

	mask := uint32(1) << uint(pin)
	if e.enabled.Load()&mask == 0 {
		// Fresh start. The schedule fields are resolved by the service
		// routine once it consumes the request.
		wave.phaseCcys = phaseOffsetCcys
		wave.runTimeCcys = runTimeCcys
		if alignPhase < 0 {
			wave.alignPin = -1
		} else {
			wave.alignPin = int8(alignPhase)
		}
		wave.mode.Store(modeInit)
		if highCcys == 0 {
			// Zero duty: force the output low before going live.
			if pin == SlowPin {
				e.gpio.SetSlow(false)
			} else {
				e.gpio.Clear(mask)
			}
		}
		e.toSet.Store(int32(pin))
		if !e.timerRunning.Load() {
			e.initTimer()
		} else if e.tmr.Remaining() > e.armFloorCcys+e.dispatchCcys {
			// Must not interfere if the timer is due shortly; clustering
			// request handling with pending edges reduces interrupt load.
			e.tmr.Arm(int32(e.cyclesPerUs))
		}
	} else {
		// Live update. Drop any expiry first so the service routine can
		// never pair a stale absolute expiry with the new timings.
		wave.mode.Store(modeInfinite)
		wave.runTimeCcys = runTimeCcys
		if runTimeCcys != 0 {
			wave.mode.Store(modeUpdateExpiry)
			e.toSet.Store(int32(pin))
		}
	}
	for e.toSet.Load() >= 0 {
		e.yield() // wait for the service routine to take the request
	}
	return true
}

// StopWaveform stops the waveform on pin. Disabling an already-disabled pin
// changes nothing and succeeds. Returns false only when the shared timer
// subsystem was dormant.
//
// Safe to call from an interrupt context: the wait for the service routine
// spins without sleeping or yielding.
func (e *Engine) StopWaveform(pin int) bool {
	// Can't possibly need to stop anything if there is no timer active.
	if !e.timerRunning.Load() {
		return false
	}
	if pin >= 0 && pin < NumPins && e.enabled.Load()&(1<<uint(pin)) != 0 {
		e.toDisable.Store(int32(pin))
		// Must not interfere if the timer is due shortly.
		if e.tmr.Remaining() > e.armFloorCcys+e.dispatchCcys {
			e.tmr.Arm(int32(e.cyclesPerUs))
		}
		for e.toDisable.Load() >= 0 {
			spinHint()
		}
	}
	if e.enabled.Load() == 0 && e.timerCB.Load() == nil {
		e.deinitTimer()
	}
	return true
}
