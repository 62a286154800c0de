package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// DiagEvent captures a timing-critical event for post-mortem analysis
type DiagEvent struct {
	EventType uint8  // Event type code
	Pin       uint8  // Pin the event concerns
	Clock     uint32 // Cycle counter at event
	Value1    uint32 // Context-dependent value
	Value2    uint32 // Context-dependent value
}

// Event type codes
const (
	evtRequest uint8 = 1 // enable/disable request consumed
	evtSkip    uint8 = 2 // whole periods skipped to recover from overshoot
	evtExpire  uint8 = 3 // waveform reached its run time
)

const (
	diagRingSize = 32 // Keep last 32 events for post-mortem
)

var (
	// debugPrintln is the global debug print function (set by platform code)
	debugPrintln DebugWriter = func(s string) {} // No-op by default

	// debugEnabled controls whether debug output is active
	// Disabled by default; dumping still works when disabled
	debugEnabled bool = false

	// Diagnostic capture ring buffer (non-blocking, written from the
	// interrupt context only)
	diagRing     [diagRingSize]DiagEvent
	diagRingHead uint8
	diagEnabled  bool = true
)

// SetDebugWriter sets the platform-specific debug output function
// This allows platforms to redirect debug output to UART, USB, etc.
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
// Useful for benchmarks where debug output would affect timing
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// recordDiag captures an event in the ring buffer. Always non-blocking;
// must only be called from the service routine.
func recordDiag(eventType, pin uint8, clock, value1, value2 uint32) {
	if !diagEnabled {
		return
	}
	idx := diagRingHead
	diagRing[idx] = DiagEvent{
		EventType: eventType,
		Pin:       pin,
		Clock:     clock,
		Value1:    value1,
		Value2:    value2,
	}
	diagRingHead = (idx + 1) % diagRingSize
}

// DumpDiagRing outputs the diagnostic ring buffer (call on shutdown/error)
// Call this after stopping time-critical code, never from the interrupt
func DumpDiagRing() {
	if !debugEnabled || debugPrintln == nil {
		return
	}

	debugPrintln("[DIAG] === Event Ring Dump ===")

	// Read from oldest to newest
	start := diagRingHead
	for i := uint8(0); i < diagRingSize; i++ {
		idx := (start + i) % diagRingSize
		evt := &diagRing[idx]
		if evt.EventType == 0 {
			continue // Empty slot
		}

		var name string
		switch evt.EventType {
		case evtRequest:
			name = "REQUEST"
		case evtSkip:
			name = "SKIP!"
		case evtExpire:
			name = "EXPIRE"
		default:
			name = "UNKNOWN"
		}

		debugPrintln("[DIAG] " + name +
			" pin=" + itoa(int(evt.Pin)) +
			" clock=" + utoa(evt.Clock) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	debugPrintln("[DIAG] === End Dump ===")
}

// ClearDiagRing clears the diagnostic buffer
func ClearDiagRing() {
	for i := range diagRing {
		diagRing[i] = DiagEvent{}
	}
	diagRingHead = 0
}
