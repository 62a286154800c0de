package core

import (
	"strings"
	"testing"
)

func TestDiagRingRecordsExpiry(t *testing.T) {
	ClearDiagRing()
	var lines []string
	SetDebugWriter(func(s string) { lines = append(lines, s) })
	SetDebugEnabled(true)
	defer func() {
		SetDebugEnabled(false)
		SetDebugWriter(func(string) {})
	}()

	e, m := newTestEngine(t)
	if !e.StartWaveform(4, 100, 100, 2000, -1, 0, false) {
		t.Fatal("StartWaveform failed")
	}
	m.waitUntil(t, ccys(8000), func() bool {
		return e.enabled.Load()&(1<<4) == 0
	})
	m.halt()

	var sawStart bool
	for _, line := range lines {
		if strings.Contains(line, "waveform timer started") {
			sawStart = true
		}
	}
	if !sawStart {
		t.Error("no timer start message while debug output is enabled")
	}

	// Disabled debug output suppresses the dump entirely.
	SetDebugEnabled(false)
	before := len(lines)
	DumpDiagRing()
	if len(lines) != before {
		t.Fatalf("dump emitted %d lines with debug output disabled", len(lines)-before)
	}
	SetDebugEnabled(true)

	DumpDiagRing()
	var sawRequest, sawExpire bool
	for _, line := range lines[before:] {
		if strings.Contains(line, "REQUEST") {
			sawRequest = true
		}
		if strings.Contains(line, "EXPIRE") && strings.Contains(line, "pin=4") {
			sawExpire = true
		}
	}
	if !sawRequest {
		t.Error("no REQUEST event in ring dump")
	}
	if !sawExpire {
		t.Error("no EXPIRE event for pin 4 in ring dump")
	}

	ClearDiagRing()
	lines = nil
	DumpDiagRing()
	for _, line := range lines {
		if strings.Contains(line, "REQUEST") || strings.Contains(line, "EXPIRE") {
			t.Fatalf("event survived ClearDiagRing: %q", line)
		}
	}
}
