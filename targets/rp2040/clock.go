//go:build rp2040

package main

import (
	"device/rp"
	"runtime/interrupt"
	"runtime/volatile"
	"unsafe"

	"wavegen/core"
)

// RP2040 TIMER peripheral memory map. The timer runs at 1MHz, so the
// engine is configured with one cycle per microsecond.
const (
	timerBase       = 0x40054000
	timerALARM0     = timerBase + 0x10
	timerARMED      = timerBase + 0x20
	timerTIMERAWH   = timerBase + 0x24
	timerTIMERAWL   = timerBase + 0x28
	timerINTR       = timerBase + 0x34
	timerINTE       = timerBase + 0x38
	alarm0Bit       = 1 << 0
	CyclesPerMicros = 1
)

var (
	regALARM0 = (*volatile.Register32)(unsafe.Pointer(uintptr(timerALARM0)))
	regARMED  = (*volatile.Register32)(unsafe.Pointer(uintptr(timerARMED)))
	regRAWH   = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWH)))
	regRAWL   = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))
	regINTR   = (*volatile.Register32)(unsafe.Pointer(uintptr(timerINTR)))
	regINTE   = (*volatile.Register32)(unsafe.Pointer(uintptr(timerINTE)))
)

// timeCounter reads the free-running microsecond counter as the engine's
// cycle source.
type timeCounter struct{}

func (timeCounter) Cycles() uint32 {
	return regRAWL.Get()
}

// Uptime reads the full 64-bit counter, high half first with a retry to
// survive rollover between the two reads.
func Uptime() uint64 {
	for {
		high1 := regRAWH.Get()
		low := regRAWL.Get()
		high2 := regRAWH.Get()
		if high1 == high2 {
			return uint64(high1)<<32 | uint64(low)
		}
	}
}

// alarmTimer drives the engine from TIMER ALARM0 in single-shot mode.
type alarmTimer struct {
	irq interrupt.Interrupt
}

var alarmHandler func()

func newAlarmTimer() *alarmTimer {
	t := &alarmTimer{}
	t.irq = interrupt.New(rp.IRQ_TIMER_IRQ_0, alarmISR)
	return t
}

func alarmISR(interrupt.Interrupt) {
	regINTR.Set(alarm0Bit) // acknowledge
	if alarmHandler != nil {
		alarmHandler()
	}
}

func (t *alarmTimer) Attach(handler func()) {
	alarmHandler = handler
	regINTR.Set(alarm0Bit)
	regINTE.SetBits(alarm0Bit)
	t.irq.Enable()
}

func (t *alarmTimer) Detach() {
	regINTE.ClearBits(alarm0Bit)
	regARMED.Set(alarm0Bit) // writing 1 disarms a pending alarm
	alarmHandler = nil
}

func (t *alarmTimer) Arm(ccys int32) {
	// Writing ALARM0 arms it; the alarm fires on counter equality, so the
	// target must be strictly in the future.
	if ccys < 1 {
		ccys = 1
	}
	regALARM0.Set(regRAWL.Get() + uint32(ccys))
}

func (t *alarmTimer) Remaining() int32 {
	return int32(regALARM0.Get() - regRAWL.Get())
}

var _ core.CycleCounter = timeCounter{}
var _ core.EdgeTimer = (*alarmTimer)(nil)
