//go:build rp2040

// Reference port of the waveform engine for the RP2040. Generates a demo
// PWM signal and a servo pulse train, and streams the resulting output
// edges over USB CDC for wavecap on the host side.
package main

import (
	"machine"
	"time"

	"wavegen/core"
	"wavegen/trace"
)

const (
	pwmPin   = 2 // 1kHz, 25% duty
	servoPin = 3 // 50Hz, 1.5ms pulse
)

func main() {
	time.Sleep(2 * time.Second) // let USB enumerate

	configureOutputs(1<<pwmPin | 1<<servoPin)

	core.SetDebugWriter(func(s string) { println(s) })
	core.SetDebugEnabled(true)

	bank := trace.NewRecordingBank(sioBank{}, timeCounter{}, 256)
	engine, err := core.New(core.Config{
		Clock:        timeCounter{},
		Timer:        newAlarmTimer(),
		GPIO:         bank,
		CyclesPerUs:  CyclesPerMicros,
		ReservedPins: core.DefaultReservedPins,
	})
	if err != nil {
		for {
			println("engine:", err.Error())
			time.Sleep(time.Second)
		}
	}

	if !engine.StartWaveform(pwmPin, 250, 750, 0, -1, 0, true) {
		println("start pwm failed")
	}
	if !engine.StartWaveform(servoPin, 1500, 18500, 0, -1, 0, false) {
		println("start servo failed")
	}

	w := trace.NewWriter(machine.Serial)
	dropped := uint32(0)
	for {
		if err := bank.Flush(w); err != nil {
			println("trace:", err.Error())
		}
		if d := bank.Dropped(); d != dropped {
			dropped = d
			println("dropped edges:", d, "uptime us:", Uptime())
			core.DumpDiagRing()
		}
		time.Sleep(50 * time.Millisecond)
	}
}
