package trace

import "errors"

var errTruncatedVLQ = errors.New("truncated VLQ value")

// appendVLQInt appends v in variable-length-quantity form: 7 payload bits
// per byte, most significant group first, high bit marking continuation.
func appendVLQInt(dst []byte, v int32) []byte {
	if !(-(1<<26) <= v && v < (3<<26)) {
		dst = append(dst, byte((v>>28)&0x7F)|0x80)
	}
	if !(-(1<<19) <= v && v < (3<<19)) {
		dst = append(dst, byte((v>>21)&0x7F)|0x80)
	}
	if !(-(1<<12) <= v && v < (3<<12)) {
		dst = append(dst, byte((v>>14)&0x7F)|0x80)
	}
	if !(-(1<<5) <= v && v < (3<<5)) {
		dst = append(dst, byte((v>>7)&0x7F)|0x80)
	}
	return append(dst, byte(v&0x7F))
}

func appendVLQUint(dst []byte, v uint32) []byte {
	return appendVLQInt(dst, int32(v))
}

// decodeVLQInt decodes one value from data, returning it and the number of
// bytes consumed.
func decodeVLQInt(data []byte) (int32, int, error) {
	if len(data) == 0 {
		return 0, 0, errTruncatedVLQ
	}
	c := uint32(data[0])
	n := 1
	v := c & 0x7F
	if c&0x60 == 0x60 {
		// Sign-extend the leading group.
		v |= ^uint32(0x1F)
	}
	for c&0x80 != 0 {
		if n >= len(data) {
			return 0, 0, errTruncatedVLQ
		}
		c = uint32(data[n])
		n++
		v = v<<7 | c&0x7F
	}
	return int32(v), n, nil
}

func decodeVLQUint(data []byte) (uint32, int, error) {
	v, n, err := decodeVLQInt(data)
	return uint32(v), n, err
}
