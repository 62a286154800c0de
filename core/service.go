package core

import "math/bits"

// service is the single-shot timer interrupt handler. One invocation applies
// at most one pending request of each kind, flips every due edge, and
// re-arms the timer for the soonest pending deadline across all pins.
//
// Overshoot recovery: when the interrupt ran so late that whole periods were
// missed, the schedule is advanced by those whole periods, keeping the
// waveform phase-coherent instead of letting the error accumulate.
func (e *Engine) service() {
	serviceStartCcy := e.clk.Cycles()

	toSet := e.toSet.Load()
	var toSetMask uint32
	if toSet >= 0 {
		toSetMask = 1 << uint(toSet)
	}
	toDisable := e.toDisable.Load()
	var toDisableMask uint32
	if toDisable >= 0 {
		toDisableMask = 1 << uint(toDisable)
	}

	enabled := e.enabled.Load()
	if (toSetMask != 0 && enabled&toSetMask == 0) || toDisableMask != 0 {
		// Handle enable/disable requests from the foreground.
		enabled = (enabled &^ toDisableMask) | toSetMask
		e.enabled.Store(enabled)
		// Track the window of pins in use so the common one-pin case
		// never scans the whole table.
		e.startPin = bits.TrailingZeros32(enabled)
		e.endPin = bits.Len32(enabled)
		e.toDisable.Store(-1)
		recordDiag(evtRequest, uint8(e.startPin), serviceStartCcy, toSetMask, toDisableMask)
	}

	now := e.clk.Cycles()

	if toSetMask != 0 {
		wave := &e.pins[toSet]
		switch wave.mode.Load() {
		case modeInit:
			e.states &^= toSetMask // a freshly started pin begins low
			if wave.alignPin >= 0 && enabled&(1<<uint(wave.alignPin)) != 0 {
				wave.nextPeriodCcy = e.pins[wave.alignPin].nextPeriodCcy + wave.phaseCcys
			} else {
				wave.nextPeriodCcy = now
			}
			wave.nextEventCcy = wave.nextPeriodCcy
			if wave.runTimeCcys == 0 {
				wave.mode.Store(modeInfinite)
				break
			}
			fallthrough
		case modeUpdateExpiry:
			wave.expiryCcy = wave.nextPeriodCcy + wave.runTimeCcys
			wave.mode.Store(modeExpires)
		}
		e.toSet.Store(-1)
	}

	// Keep servicing back-to-back edges while the nearest deadline still
	// falls inside this invocation's budget; that folds clusters of edges
	// into one interrupt dispatch.
	budgetCcy := serviceStartCcy + e.budgetCcys
	var nextTimerCcy uint32
	busy := enabled != 0
	if !busy {
		nextTimerCcy = now + uint32(e.maxIdleCcys)
	} else if enabled&(1<<uint(e.nextPin)) == 0 {
		e.nextPin = e.startPin
	}
	for busy {
		nextTimerCcy = now + uint32(e.maxIdleCcys)
		stopPin := e.nextPin
		pin := e.nextPin
		for {
			mask := uint32(1) << uint(pin)
			if enabled&mask != 0 {
				wave := &e.pins[pin]

				if int32(now-wave.nextEventCcy) >= 0 {
					if wave.mode.Load() == modeExpires && wave.nextEventCcy == wave.expiryCcy {
						// Done; drop the pin without another edge.
						enabled &^= mask
						e.enabled.Store(enabled)
						recordDiag(evtExpire, uint8(pin), now, wave.expiryCcy, 0)
					} else {
						duty := wave.dutyCcys.Load()
						period := wave.periodCcys.Load()
						idleCcys := period - duty
						// True accumulated overshoot, guaranteed >= 0 here.
						var overshootCcys uint32
						if e.states&mask != 0 {
							overshootCcys = now - wave.endDutyCcy
						} else {
							overshootCcys = now - wave.nextPeriodCcy
						}
						var fwdPeriods uint32
						if overshootCcys >= idleCcys {
							fwdPeriods = (overshootCcys + duty) / period
						}
						fwdPeriodCcys := fwdPeriods * period
						if fwdPeriods != 0 {
							recordDiag(evtSkip, uint8(pin), now, fwdPeriods, overshootCcys)
						}
						var nextEdgeCcy uint32
						if e.states&mask != 0 {
							// Up to and including this period 100% duty.
							endOfPeriod := wave.nextPeriodCcy == wave.endDutyCcy
							if idleCcys == 0 {
								// Still 100% duty: nothing to flip, roll the
								// schedule forward.
								wave.nextPeriodCcy += fwdPeriodCcys + period
								wave.endDutyCcy = wave.nextPeriodCcy
								nextEdgeCcy = wave.nextPeriodCcy
							} else if endOfPeriod {
								// The preceding period had no idle phase;
								// continue directly into the new duty phase.
								if fwdPeriods != 0 {
									wave.nextPeriodCcy += fwdPeriodCcys
									// Adapt the expiry so it still lands in
									// the intended period.
									if wave.mode.Load() == modeExpires {
										wave.expiryCcy += fwdPeriodCcys
									}
								}
								wave.endDutyCcy = wave.nextPeriodCcy + duty
								wave.nextPeriodCcy += period
								nextEdgeCcy = wave.endDutyCcy
							} else {
								e.states &^= mask
								nextEdgeCcy = wave.nextPeriodCcy
								if wave.autoPwm.Load() && duty >= e.autoPwmMinCcys {
									// Serviced the falling edge late: push
									// the next rising edge out in proportion
									// so the duty/idle ratio holds.
									nextEdgeCcy += (overshootCcys / duty) * idleCcys
								}
								if pin == SlowPin {
									e.gpio.SetSlow(false)
								} else {
									e.gpio.Clear(mask)
								}
							}
						} else {
							if duty == 0 {
								wave.nextPeriodCcy += fwdPeriodCcys + period
								wave.endDutyCcy = wave.nextPeriodCcy
							} else {
								e.states |= mask
								wave.nextPeriodCcy += period
								wave.endDutyCcy = now + duty
								if fwdPeriods != 0 {
									wave.nextPeriodCcy += fwdPeriodCcys
									if wave.autoPwm.Load() {
										// Keep phase and duty/idle ratio;
										// frequency dips by fwdPeriods.
										wave.endDutyCcy += fwdPeriods * duty
									}
									if wave.mode.Load() == modeExpires {
										wave.expiryCcy += fwdPeriodCcys
									}
								}
								if pin == SlowPin {
									e.gpio.SetSlow(true)
								} else {
									e.gpio.Set(mask)
								}
							}
							nextEdgeCcy = wave.endDutyCcy
						}

						if wave.mode.Load() == modeExpires && int32(nextEdgeCcy-wave.expiryCcy) > 0 {
							wave.nextEventCcy = wave.expiryCcy
						} else {
							wave.nextEventCcy = nextEdgeCcy
						}
					}
				}

				if int32(nextTimerCcy-wave.nextEventCcy) > 0 {
					nextTimerCcy = wave.nextEventCcy
					e.nextPin = pin
				}
				now = e.clk.Cycles()
			}
			if pin < e.endPin {
				pin++
			} else {
				pin = e.startPin
			}
			if pin == stopPin {
				break
			}
		}

		busy = int32(budgetCcy-nextTimerCcy) > 0
		if busy {
			for int32(nextTimerCcy-now) > 0 {
				now = e.clk.Cycles()
			}
		}
	}

	var nextTimerCcys int32
	if cb := e.timerCB.Load(); cb != nil {
		callbackCcys := int32(e.usToCcys((*cb)()))
		// Account for the unknown duration of the callback itself.
		nextTimerCcys = int32(nextTimerCcy - e.clk.Cycles())
		if nextTimerCcys > callbackCcys {
			nextTimerCcys = callbackCcys
		}
	} else {
		nextTimerCcys = int32(nextTimerCcy - now)
	}

	// Arming too soon would fire the interrupt before this handler has
	// returned; arming too late is bounded by the idle ceiling.
	if nextTimerCcys <= e.armFloorCcys+e.dispatchCcys {
		nextTimerCcys = e.armFloorCcys
	} else if nextTimerCcys >= e.maxIdleCcys {
		nextTimerCcys = e.maxIdleCcys - e.dispatchCcys
	} else {
		nextTimerCcys -= e.dispatchCcys
	}
	e.tmr.Arm(nextTimerCcys)
}
