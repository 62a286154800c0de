package trace

import (
	"sync/atomic"

	"wavegen/core"
)

// RecordingBank decorates a GPIOBank, timestamping every real output
// transition and queueing it for the foreground. The hardware write happens
// first so recording never delays an edge.
//
// Writes arrive from both execution contexts, like any GPIOBank: the
// service routine flips edges from the interrupt context while a zero-duty
// start forces its pin low from the foreground. The level tracking and the
// queue both tolerate that.
//
// The queue is sized at construction; when the foreground drains too
// slowly, edges are dropped and counted rather than blocking the interrupt
// context.
type RecordingBank struct {
	inner   core.GPIOBank
	clk     core.CycleCounter
	levels  atomic.Uint32
	q       *ring
	dropped atomic.Uint32
}

func NewRecordingBank(inner core.GPIOBank, clk core.CycleCounter, depth int) *RecordingBank {
	return &RecordingBank{inner: inner, clk: clk, q: newRing(depth)}
}

func (b *RecordingBank) Set(mask uint32) {
	b.inner.Set(mask)
	b.record(mask, true)
}

func (b *RecordingBank) Clear(mask uint32) {
	b.inner.Clear(mask)
	b.record(mask, false)
}

func (b *RecordingBank) SetSlow(level bool) {
	b.inner.SetSlow(level)
	b.record(1<<core.SlowPin, level)
}

func (b *RecordingBank) record(mask uint32, high bool) {
	now := b.clk.Cycles()
	var old uint32
	for {
		old = b.levels.Load()
		next := old | mask
		if !high {
			next = old &^ mask
		}
		if old == next {
			return // no level change, like a real output register
		}
		if b.levels.CompareAndSwap(old, next) {
			break
		}
	}
	changed := mask &^ old
	if !high {
		changed = mask & old
	}
	for pin := uint8(0); changed != 0; pin++ {
		if changed&1 != 0 {
			if !b.q.push(Edge{Ccy: now, Pin: pin, High: high}) {
				b.dropped.Add(1)
			}
		}
		changed >>= 1
	}
}

// Drain hands every queued edge to fn and returns how many were delivered.
// Foreground only.
func (b *RecordingBank) Drain(fn func(Edge)) int {
	n := 0
	for {
		e, ok := b.q.pop()
		if !ok {
			return n
		}
		fn(e)
		n++
	}
}

// Flush drains the queue into w as trace frames.
func (b *RecordingBank) Flush(w *Writer) error {
	var batch []Edge
	b.Drain(func(e Edge) {
		batch = append(batch, e)
	})
	if len(batch) == 0 {
		return nil
	}
	return w.WriteEdges(batch)
}

// Dropped reports how many edges were lost to queue overflow.
func (b *RecordingBank) Dropped() uint32 {
	return b.dropped.Load()
}
