package blue

import (
	"encoding/binary"
	"fmt"
)

// Rep is the 4-byte byte-order tag stored in head_rep and data_rep.
type Rep string

const (
	RepIEEE Rep = "IEEE" // big-endian
	RepEEEI Rep = "EEEI" // little-endian
)

// NativeRep is the representation written by default.
const NativeRep = RepEEEI

// ByteOrder maps the tag onto an encoding/binary order.
func (r Rep) ByteOrder() (binary.ByteOrder, error) {
	switch r {
	case RepIEEE:
		return binary.BigEndian, nil
	case RepEEEI:
		return binary.LittleEndian, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedByteOrder, string(r))
	}
}

// SwapBytes reverses the byte order of every width-sized word in p in place.
// Swapping twice restores the original bytes.
func SwapBytes(p []byte, width int) {
	if width <= 1 {
		return
	}
	for i := 0; i+width <= len(p); i += width {
		w := p[i : i+width]
		for a, b := 0, width-1; a < b; a, b = a+1, b-1 {
			w[a], w[b] = w[b], w[a]
		}
	}
}
