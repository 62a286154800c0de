// Package capture turns a stream of waveform output edges into per-pin
// signal statistics, for verifying generated waveforms against what
// actually appeared on the pins.
package capture

import "wavegen/trace"

const maxPins = 32

// Stats summarizes one pin's observed signal.
type Stats struct {
	Edges   uint32 // transitions seen
	Periods uint32 // complete rise-to-rise periods

	MeanPeriodCcys uint32
	MeanHighCcys   uint32

	// DutyPermille is the observed high fraction, in thousandths.
	DutyPermille uint32
}

// FrequencyHz converts the mean period into Hertz for a given cycle
// counter rate.
func (s Stats) FrequencyHz(cyclesPerUs uint32) uint32 {
	if s.MeanPeriodCcys == 0 {
		return 0
	}
	return uint32(uint64(cyclesPerUs) * 1e6 / uint64(s.MeanPeriodCcys))
}

type pinAcc struct {
	edges     uint32
	haveRise  bool
	lastRise  uint32
	periodSum uint64
	periods   uint32
	highSum   uint64
	highs     uint32
}

// Analyzer accumulates statistics from edges fed in timestamp order.
// Cycle-counter wrap between consecutive edges of a pin is handled by the
// unsigned subtraction.
type Analyzer struct {
	pins [maxPins]pinAcc
}

func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Feed accounts one edge.
func (a *Analyzer) Feed(e trace.Edge) {
	if int(e.Pin) >= maxPins {
		return
	}
	acc := &a.pins[e.Pin]
	acc.edges++
	if e.High {
		if acc.haveRise {
			acc.periodSum += uint64(e.Ccy - acc.lastRise)
			acc.periods++
		}
		acc.lastRise = e.Ccy
		acc.haveRise = true
	} else if acc.haveRise {
		acc.highSum += uint64(e.Ccy - acc.lastRise)
		acc.highs++
	}
}

// Stats reports pin's accumulated statistics; ok is false when the pin has
// produced no edges.
func (a *Analyzer) Stats(pin int) (s Stats, ok bool) {
	if pin < 0 || pin >= maxPins {
		return Stats{}, false
	}
	acc := &a.pins[pin]
	if acc.edges == 0 {
		return Stats{}, false
	}
	s.Edges = acc.edges
	s.Periods = acc.periods
	if acc.periods > 0 {
		s.MeanPeriodCcys = uint32(acc.periodSum / uint64(acc.periods))
	}
	if acc.highs > 0 {
		s.MeanHighCcys = uint32(acc.highSum / uint64(acc.highs))
	}
	if acc.periodSum > 0 {
		s.DutyPermille = uint32(acc.highSum * 1000 / acc.periodSum)
	}
	return s, true
}

// ActivePins lists the pins that have produced at least one edge.
func (a *Analyzer) ActivePins() []int {
	var out []int
	for pin := range a.pins {
		if a.pins[pin].edges > 0 {
			out = append(out, pin)
		}
	}
	return out
}

// Reset clears all accumulated statistics.
func (a *Analyzer) Reset() {
	*a = Analyzer{}
}
