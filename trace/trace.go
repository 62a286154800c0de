// Package trace carries waveform output edges off the device as a compact
// framed byte stream, so a host can verify duty ratios and frequencies
// against an actual signal rather than against the engine's own bookkeeping.
//
// Each frame is
//
//	[length] [sequence] [records...] [crc16 hi] [crc16 lo] [sync]
//
// where length counts the whole frame including the sync byte, the sequence
// high nibble is a fixed destination tag, and the CRC covers everything
// before itself. A record is a VLQ-encoded absolute cycle count followed by
// one byte holding the pin number and the new level.
package trace

import (
	"bytes"
	"errors"
	"io"
)

const (
	frameHeader  = 2 // length + sequence
	frameTrailer = 3 // crc16 + sync
	frameMin     = frameHeader + frameTrailer
	frameMax     = 64
	syncByte     = 0x7E
	seqDest      = 0x10
	seqMask      = 0x0F

	// Worst-case encoded record: 5 VLQ bytes + the pin/level byte.
	recordMax = 6
)

// Edge is one output transition: pin moved to level High at cycle Ccy.
type Edge struct {
	Ccy  uint32
	Pin  uint8
	High bool
}

// Writer encodes edges into frames on an underlying stream.
type Writer struct {
	w       io.Writer
	seq     uint8
	scratch []byte
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w, scratch: make([]byte, 0, frameMax)}
}

// WriteEdges emits the given edges, splitting them across as many frames as
// needed.
func (w *Writer) WriteEdges(edges []Edge) error {
	for len(edges) > 0 {
		n := (frameMax - frameMin) / recordMax
		if n > len(edges) {
			n = len(edges)
		}
		if err := w.writeFrame(edges[:n]); err != nil {
			return err
		}
		edges = edges[n:]
	}
	return nil
}

func (w *Writer) writeFrame(edges []Edge) error {
	buf := w.scratch[:0]
	buf = append(buf, 0, seqDest|w.seq&seqMask)
	for _, e := range edges {
		buf = appendVLQUint(buf, e.Ccy)
		pl := e.Pin << 1
		if e.High {
			pl |= 1
		}
		buf = append(buf, pl)
	}
	buf[0] = byte(len(buf) + frameTrailer)
	crc := crc16(buf)
	buf = append(buf, byte(crc>>8), byte(crc), syncByte)
	w.seq++
	_, err := w.w.Write(buf)
	w.scratch = buf[:0]
	return err
}

// Reader decodes frames from a stream, re-synchronizing on the sync byte
// after garbage or a failed CRC. Damaged frames are dropped, not surfaced.
type Reader struct {
	r       io.Reader
	buf     []byte
	pending []Edge
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadEdge returns the next decoded edge, blocking on the underlying stream
// as needed.
func (r *Reader) ReadEdge() (Edge, error) {
	for len(r.pending) == 0 {
		payload, err := r.nextFrame()
		if err != nil {
			return Edge{}, err
		}
		r.decodeRecords(payload)
	}
	e := r.pending[0]
	r.pending = r.pending[1:]
	return e, nil
}

func (r *Reader) decodeRecords(payload []byte) {
	for len(payload) > 0 {
		ccy, n, err := decodeVLQUint(payload)
		if err != nil || n >= len(payload) {
			// Truncated record; the CRC passed, so this is an encoder
			// bug rather than line noise. Drop the remainder.
			return
		}
		pl := payload[n]
		payload = payload[n+1:]
		r.pending = append(r.pending, Edge{Ccy: ccy, Pin: pl >> 1, High: pl&1 != 0})
	}
}

func (r *Reader) nextFrame() ([]byte, error) {
	for {
		for len(r.buf) < frameMin {
			if err := r.fill(); err != nil {
				return nil, err
			}
		}
		length := int(r.buf[0])
		if length < frameMin || length > frameMax || r.buf[1]&^byte(seqMask) != seqDest {
			r.resync()
			continue
		}
		for len(r.buf) < length {
			if err := r.fill(); err != nil {
				return nil, err
			}
		}
		frame := r.buf[:length]
		crc := uint16(frame[length-3])<<8 | uint16(frame[length-2])
		if frame[length-1] != syncByte || crc16(frame[:length-3]) != crc {
			r.resync()
			continue
		}
		payload := append([]byte(nil), frame[frameHeader:length-frameTrailer]...)
		r.buf = r.buf[length:]
		return payload, nil
	}
}

// resync drops buffered bytes through the next sync byte.
func (r *Reader) resync() {
	if i := bytes.IndexByte(r.buf, syncByte); i >= 0 {
		r.buf = r.buf[i+1:]
	} else {
		r.buf = r.buf[:0]
	}
}

func (r *Reader) fill() error {
	var chunk [256]byte
	n, err := r.r.Read(chunk[:])
	if n > 0 {
		r.buf = append(r.buf, chunk[:n]...)
		return nil
	}
	if err == nil {
		err = errors.New("trace: empty read")
	}
	return err
}
