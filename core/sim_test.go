package core

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

// Simulated MCU for engine tests: a virtual cycle counter, a single-shot
// alarm dispatched on a dedicated goroutine standing in for the interrupt
// context, and a GPIO bank that records every output transition with its
// virtual timestamp.

// simClock is the virtual cycle counter. Reading it advances it slightly so
// cycle-granular spin loops make progress even inside the simulated
// interrupt handler.
type simClock struct {
	ccys atomic.Uint32
}

func (c *simClock) Cycles() uint32 {
	return c.ccys.Add(2)
}

// simTimer models the single-shot timer as an armed deadline on the virtual
// clock. The simulator loop dispatches the handler when the deadline is due.
type simTimer struct {
	clk      *simClock
	handler  atomic.Pointer[func()]
	armed    atomic.Bool
	deadline atomic.Uint32
}

func (t *simTimer) Attach(h func()) {
	t.handler.Store(&h)
}

func (t *simTimer) Detach() {
	t.armed.Store(false)
	t.handler.Store(nil)
}

func (t *simTimer) Arm(ccys int32) {
	t.deadline.Store(t.clk.ccys.Load() + uint32(ccys))
	t.armed.Store(true)
}

func (t *simTimer) Remaining() int32 {
	if !t.armed.Load() {
		return 0
	}
	return int32(t.deadline.Load() - t.clk.ccys.Load())
}

// simEdge is one recorded output transition.
type simEdge struct {
	ccy  uint32
	pin  int
	high bool
}

// simBank records transitions; writes that do not change a pin's level are
// dropped, like a real output register.
type simBank struct {
	clk    *simClock
	mu     sync.Mutex
	levels uint32
	edges  []simEdge
}

func (b *simBank) Set(mask uint32) {
	b.write(mask, true)
}

func (b *simBank) Clear(mask uint32) {
	b.write(mask, false)
}

func (b *simBank) SetSlow(level bool) {
	b.write(1<<SlowPin, level)
}

func (b *simBank) write(mask uint32, high bool) {
	now := b.clk.ccys.Load()
	b.mu.Lock()
	defer b.mu.Unlock()
	for pin := 0; pin < NumPins; pin++ {
		bit := uint32(1) << uint(pin)
		if mask&bit == 0 {
			continue
		}
		if (b.levels&bit != 0) == high {
			continue
		}
		if high {
			b.levels |= bit
		} else {
			b.levels &^= bit
		}
		b.edges = append(b.edges, simEdge{ccy: now, pin: pin, high: high})
	}
}

func (b *simBank) level(pin int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.levels&(1<<uint(pin)) != 0
}

func (b *simBank) snapshot() []simEdge {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]simEdge, len(b.edges))
	copy(out, b.edges)
	return out
}

// pinEdges filters a snapshot down to one pin.
func pinEdges(edges []simEdge, pin int) []simEdge {
	var out []simEdge
	for _, e := range edges {
		if e.pin == pin {
			out = append(out, e)
		}
	}
	return out
}

// simMCU ties the drivers together and runs the virtual machine.
type simMCU struct {
	clk    simClock
	tmr    simTimer
	bank   simBank
	stop   atomic.Bool
	pause  atomic.Bool
	halted bool
	done   chan struct{}
}

func newSimMCU() *simMCU {
	m := &simMCU{done: make(chan struct{})}
	m.tmr.clk = &m.clk
	m.bank.clk = &m.clk
	return m
}

func (m *simMCU) start() {
	go func() {
		defer close(m.done)
		for !m.stop.Load() {
			now := m.clk.ccys.Add(16)
			if m.pause.Load() || !m.tmr.armed.Load() {
				continue
			}
			if int32(now-m.tmr.deadline.Load()) < 0 {
				continue
			}
			if h := m.tmr.handler.Load(); h != nil {
				m.tmr.armed.Store(false)
				(*h)()
			}
		}
	}()
}

// halt stops the virtual machine. Engine internals are safe to inspect
// after halt returns.
func (m *simMCU) halt() {
	if m.halted {
		return
	}
	m.halted = true
	m.stop.Store(true)
	<-m.done
}

// pauseDispatch holds off interrupt dispatch while the virtual clock keeps
// running, standing in for a stretch of disabled interrupts. The armed
// deadline stays pending and fires on resume.
func (m *simMCU) pauseDispatch() {
	m.pause.Store(true)
}

func (m *simMCU) resumeDispatch() {
	m.pause.Store(false)
}

// runFor lets the virtual machine advance by at least ccys cycles.
func (m *simMCU) runFor(ccys uint32) {
	target := m.clk.ccys.Load() + ccys
	for int32(target-m.clk.ccys.Load()) > 0 {
		runtime.Gosched()
	}
}

// waitUntil polls cond while the virtual clock advances, giving up after
// limitCcys. Returns the virtual cycle at which cond first held.
func (m *simMCU) waitUntil(t *testing.T, limitCcys uint32, cond func() bool) uint32 {
	t.Helper()
	deadline := m.clk.ccys.Load() + limitCcys
	for !cond() {
		if int32(deadline-m.clk.ccys.Load()) <= 0 {
			t.Fatalf("condition not reached within %d virtual cycles", limitCcys)
		}
		runtime.Gosched()
	}
	return m.clk.ccys.Load()
}

func ccys(us uint32) uint32 {
	return us * DefaultCyclesPerUs
}

func newTestEngine(t *testing.T) (*Engine, *simMCU) {
	t.Helper()
	m := newSimMCU()
	e, err := New(Config{Clock: &m.clk, Timer: &m.tmr, GPIO: &m.bank})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.start()
	t.Cleanup(m.halt)
	return e, m
}
