package trace

import "sync/atomic"

// ring is a bounded edge queue with one consumer and concurrent producers.
// The interrupt context pushes on every scheduled edge flip, and the
// foreground pushes too: a zero-duty start forces its pin low before the
// pin goes live. Each slot carries a sequence number, so a producer claims
// a slot with a compare-and-swap on head and publishes it only once the
// edge is fully written; a claimed but unpublished slot reads as empty,
// never as a torn edge.
type ring struct {
	slots []ringSlot
	mask  uint32
	head  atomic.Uint32 // next slot to claim, shared by producers
	tail  atomic.Uint32 // next slot to read, consumer-owned
}

type ringSlot struct {
	seq atomic.Uint32
	e   Edge
}

func newRing(depth int) *ring {
	size := 1
	for size < depth {
		size <<= 1
	}
	r := &ring{slots: make([]ringSlot, size), mask: uint32(size - 1)}
	for i := range r.slots {
		r.slots[i].seq.Store(uint32(i))
	}
	return r
}

// push claims a slot, writes e, and publishes it. Reports whether there
// was room.
func (r *ring) push(e Edge) bool {
	for {
		head := r.head.Load()
		s := &r.slots[head&r.mask]
		switch d := int32(s.seq.Load() - head); {
		case d == 0:
			if r.head.CompareAndSwap(head, head+1) {
				s.e = e
				s.seq.Store(head + 1)
				return true
			}
		case d < 0:
			// The consumer has not freed this slot: the ring is full.
			return false
		}
		// Another producer claimed the slot first; reload head.
	}
}

// pop dequeues the oldest published edge.
func (r *ring) pop() (Edge, bool) {
	tail := r.tail.Load()
	s := &r.slots[tail&r.mask]
	if int32(s.seq.Load()-(tail+1)) < 0 {
		return Edge{}, false
	}
	e := s.e
	s.seq.Store(tail + uint32(len(r.slots)))
	r.tail.Store(tail + 1)
	return e, true
}
