package trace

import (
	"bytes"
	"testing"
)

func sampleEdges(n int) []Edge {
	edges := make([]Edge, n)
	ccy := uint32(0xFFFFF000) // exercise counter wrap
	for i := range edges {
		ccy += 40000
		edges[i] = Edge{Ccy: ccy, Pin: uint8(i % 17), High: i%2 == 0}
	}
	return edges
}

func readAll(t *testing.T, r *Reader, n int) []Edge {
	t.Helper()
	out := make([]Edge, 0, n)
	for i := 0; i < n; i++ {
		e, err := r.ReadEdge()
		if err != nil {
			t.Fatalf("ReadEdge after %d edges: %v", len(out), err)
		}
		out = append(out, e)
	}
	return out
}

func TestWriteReadRoundTrip(t *testing.T) {
	// More edges than fit one frame, to cover frame splitting.
	edges := sampleEdges(25)

	var buf bytes.Buffer
	w := NewWriter(&buf)
	if err := w.WriteEdges(edges); err != nil {
		t.Fatalf("WriteEdges: %v", err)
	}

	got := readAll(t, NewReader(&buf), len(edges))
	for i, e := range got {
		if e != edges[i] {
			t.Fatalf("edge %d: got %+v, want %+v", i, e, edges[i])
		}
	}
	if _, err := NewReader(&buf).ReadEdge(); err == nil {
		t.Error("ReadEdge on drained stream succeeded")
	}
}

func TestReaderResyncsAfterGarbage(t *testing.T) {
	edges := sampleEdges(4)

	var buf bytes.Buffer
	buf.Write([]byte{0x00, 0xDE, 0xAD, syncByte}) // leading noise
	w := NewWriter(&buf)
	if err := w.WriteEdges(edges[:2]); err != nil {
		t.Fatalf("WriteEdges: %v", err)
	}
	// A frame with a flipped payload byte must be dropped entirely.
	frameStart := buf.Len()
	if err := w.WriteEdges(edges[2:3]); err != nil {
		t.Fatalf("WriteEdges: %v", err)
	}
	corrupted := buf.Bytes()
	corrupted[frameStart+2] ^= 0x55
	if err := w.WriteEdges(edges[3:]); err != nil {
		t.Fatalf("WriteEdges: %v", err)
	}

	want := []Edge{edges[0], edges[1], edges[3]}
	got := readAll(t, NewReader(&buf), len(want))
	for i, e := range got {
		if e != want[i] {
			t.Fatalf("edge %d: got %+v, want %+v", i, e, want[i])
		}
	}
}

func TestVLQRoundTrip(t *testing.T) {
	cases := []uint32{0, 1, 31, 32, 127, 128, 0xFFFF, 80000, 0x7FFFFFFF, 0x80000000, 0xFFFFFFFF}
	for _, v := range cases {
		enc := appendVLQUint(nil, v)
		dec, n, err := decodeVLQUint(enc)
		if err != nil {
			t.Errorf("decode %#x: %v", v, err)
			continue
		}
		if dec != v || n != len(enc) {
			t.Errorf("round trip %#x: got %#x (%d of %d bytes)", v, dec, n, len(enc))
		}
	}
	if _, _, err := decodeVLQUint([]byte{0x80}); err == nil {
		t.Error("decoding a dangling continuation byte succeeded")
	}
}

func TestRingOverflowDrops(t *testing.T) {
	r := newRing(4)
	for i := 0; i < 4; i++ {
		if !r.push(Edge{Ccy: uint32(i)}) {
			t.Fatalf("push %d failed below capacity", i)
		}
	}
	if r.push(Edge{Ccy: 99}) {
		t.Error("push succeeded on a full ring")
	}
	for i := 0; i < 4; i++ {
		e, ok := r.pop()
		if !ok || e.Ccy != uint32(i) {
			t.Fatalf("pop %d: got %+v ok=%v", i, e, ok)
		}
	}
	if _, ok := r.pop(); ok {
		t.Error("pop succeeded on an empty ring")
	}
}
