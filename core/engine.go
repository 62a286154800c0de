// Waveform generation engine
//
// The engine produces two-level waveforms (PWM, tones, servo pulses) on any
// subset of output pins from a single shared single-shot timer. Edges are
// scheduled against the free-running CPU cycle counter rather than the timer
// itself, which removes interrupt jitter and delay from the generated
// signal: the service routine always knows the exact cycle an edge was due,
// even when it runs late, and catches up without accumulating drift.
package core

import (
	"fmt"
	"sync/atomic"
)

// Engine tuning, in microseconds. Converted to cycles per engine instance.
const (
	// Longest allowed delay between two timer interrupts.
	maxIdleUs = 10000
	// Budget for servicing edges within a single interrupt.
	serviceBudgetUs = 14
	// The hardware takes a while to get from the timer firing to the
	// handler running; arm the timer early by this much.
	dispatchUs = 4
	// Earliest the timer may be told to fire after re-arming from inside
	// the handler.
	armFloorUs = 3
	// Duty phases shorter than this are not worth autoPwm correction.
	autoPwmMinUs = 3
)

const (
	// NumPins is the size of the waveform table.
	NumPins = 17

	// SlowPin is the one pin whose output register needs read-modify-write
	// access; the engine drives it through GPIOBank.SetSlow.
	SlowPin = 16

	// DefaultCyclesPerUs matches an 80MHz core clock.
	DefaultCyclesPerUs = 80

	// DefaultReservedPins masks the flash interface pins (6-11), which the
	// engine must never drive.
	DefaultReservedPins = 0x0FC0
)

// TimerCallback is a periodic callback multiplexed onto the shared timer by
// higher-level timing services. It runs in the interrupt context and returns
// the delay until it wants to run again, in microseconds.
type TimerCallback func() uint32

// Config assembles an Engine from its hardware collaborators.
type Config struct {
	Clock CycleCounter
	Timer EdgeTimer
	GPIO  GPIOBank

	// CyclesPerUs is the cycle counter rate. Zero selects
	// DefaultCyclesPerUs.
	CyclesPerUs uint32

	// ReservedPins is a bitmask of pins StartWaveform must reject. Zero
	// selects DefaultReservedPins.
	ReservedPins uint32

	// Yield, if set, is called while a start request waits for the service
	// routine to consume it. Nil selects the platform yield.
	Yield func()
}

// Engine owns the waveform table and the shared timer.
//
// Single-writer discipline replaces locking: the waveform table, the states
// mask and the scan window are written only by the service routine. The
// foreground publishes work through the two single-slot request registers
// and, for a live update, through the atomic descriptor fields. The public
// API expects a single foreground caller, matching the single-threaded
// sketch model of the hardware this engine comes from.
type Engine struct {
	clk  CycleCounter
	tmr  EdgeTimer
	gpio GPIOBank

	cyclesPerUs  uint32
	reservedPins uint32
	yield        func()

	maxIdleCcys    int32
	budgetCcys     uint32
	dispatchCcys   int32
	armFloorCcys   int32
	autoPwmMinCcys uint32

	pins    [NumPins]waveform
	enabled atomic.Uint32 // pins generating a waveform
	states  uint32        // pins currently in their high phase; service routine only

	toSet     atomic.Int32 // pending start/update request, -1 when empty
	toDisable atomic.Int32 // pending stop request, -1 when empty

	timerCB      atomic.Pointer[TimerCallback]
	timerRunning atomic.Bool

	// Scan window and cursor, maintained by the service routine. The
	// cursor amortizes the scan when one pin dominates the schedule.
	startPin, endPin, nextPin int
}

// New builds an Engine from cfg. The timer stays dormant until the first
// StartWaveform or SetTimerCallback.
func New(cfg Config) (*Engine, error) {
	if cfg.Clock == nil || cfg.Timer == nil || cfg.GPIO == nil {
		return nil, fmt.Errorf("engine config requires Clock, Timer and GPIO")
	}
	if cfg.CyclesPerUs == 0 {
		cfg.CyclesPerUs = DefaultCyclesPerUs
	}
	if cfg.ReservedPins == 0 {
		cfg.ReservedPins = DefaultReservedPins
	}
	if cfg.Yield == nil {
		cfg.Yield = platformYield
	}
	e := &Engine{
		clk:          cfg.Clock,
		tmr:          cfg.Timer,
		gpio:         cfg.GPIO,
		cyclesPerUs:  cfg.CyclesPerUs,
		reservedPins: cfg.ReservedPins,
		yield:        cfg.Yield,

		maxIdleCcys:    int32(maxIdleUs * cfg.CyclesPerUs),
		budgetCcys:     serviceBudgetUs * cfg.CyclesPerUs,
		dispatchCcys:   int32(dispatchUs * cfg.CyclesPerUs),
		armFloorCcys:   int32(armFloorUs * cfg.CyclesPerUs),
		autoPwmMinCcys: autoPwmMinUs * cfg.CyclesPerUs,
	}
	e.toSet.Store(-1)
	e.toDisable.Store(-1)
	return e, nil
}

func (e *Engine) usToCcys(us uint32) uint32 {
	return us * e.cyclesPerUs
}

// SetTimerCallback registers a periodic callback multiplexed onto the shared
// timer, starting the timer if it was dormant. Pass nil to unregister; the
// timer is torn down once neither the callback nor any waveform needs it.
func (e *Engine) SetTimerCallback(cb TimerCallback) {
	if cb == nil {
		e.timerCB.Store(nil)
		if e.timerRunning.Load() && e.enabled.Load() == 0 {
			e.deinitTimer()
		}
		return
	}
	e.timerCB.Store(&cb)
	if !e.timerRunning.Load() {
		e.initTimer()
	}
}

func (e *Engine) initTimer() {
	DebugPrintln("waveform timer started")
	e.tmr.Attach(e.service)
	e.timerRunning.Store(true)
	// Cause an interrupt post-haste.
	e.tmr.Arm(int32(e.cyclesPerUs))
}

func (e *Engine) deinitTimer() {
	e.tmr.Detach()
	e.timerRunning.Store(false)
	DebugPrintln("waveform timer stopped")
}
