//go:build rp2040

package main

import (
	"machine"
	"runtime/volatile"
	"unsafe"

	"wavegen/core"
)

// RP2040 SIO fast GPIO access. OUT_SET/OUT_CLR take whole bitmasks in a
// single write, exactly the primitive the engine schedules edges through.
const (
	sioBase       = 0xD0000000
	sioGPIOOutSet = sioBase + 0x14
	sioGPIOOutClr = sioBase + 0x18
)

var (
	regOutSet = (*volatile.Register32)(unsafe.Pointer(uintptr(sioGPIOOutSet)))
	regOutClr = (*volatile.Register32)(unsafe.Pointer(uintptr(sioGPIOOutClr)))
)

type sioBank struct{}

func (sioBank) Set(mask uint32) {
	regOutSet.Set(mask)
}

func (sioBank) Clear(mask uint32) {
	regOutClr.Set(mask)
}

// SetSlow covers the engine's read-modify-write pin. The RP2040 has atomic
// set/clear for every GPIO, so it degenerates to a mask write here.
func (b sioBank) SetSlow(level bool) {
	if level {
		b.Set(1 << core.SlowPin)
	} else {
		b.Clear(1 << core.SlowPin)
	}
}

// configureOutputs claims the pins the engine will drive.
func configureOutputs(mask uint32) {
	for pin := 0; pin < core.NumPins; pin++ {
		if mask&(1<<uint(pin)) == 0 {
			continue
		}
		p := machine.Pin(pin)
		p.Configure(machine.PinConfig{Mode: machine.PinOutput})
		p.Low()
	}
}

var _ core.GPIOBank = sioBank{}
